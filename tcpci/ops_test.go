package tcpci

import (
	"context"
	"testing"
)

func TestInitTimeoutAfterExhaustingRetries(t *testing.T) {
	bus := newFakeBus()
	bus.bytes[regPowerStatus] = powerStatusUninit
	p := newTestPort(Config{}, bus, &fakeHooks{})

	err := p.Init(context.Background())
	if err != CodeTimeout {
		t.Fatalf("Init() = %v, want CodeTimeout", err)
	}
	if got := bus.readByteCount[regPowerStatus]; got != initTries {
		t.Fatalf("POWER_STATUS was polled %d times, want %d", got, initTries)
	}
}

func TestInitProgramsMasksOnSuccess(t *testing.T) {
	bus := newFakeBus()
	bus.bytes[regPowerStatus] = powerStatusVbusPresent
	hooks := &fakeHooks{}
	p := newTestPort(Config{VBUSDetectTCPC: true}, bus, hooks)

	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init() = %v, want nil", err)
	}
	if bus.words[regAlertMask] != p.alertMask() {
		t.Fatalf("ALERT_MASK = %#x, want %#x", bus.words[regAlertMask], p.alertMask())
	}
	if bus.bytes[regPowerStatusMask] != p.powerStatusMask() {
		t.Fatalf("POWER_STATUS_MASK = %#x, want %#x", bus.bytes[regPowerStatusMask], p.powerStatusMask())
	}
	if len(hooks.vbusChanges) != 1 || !hooks.vbusChanges[0] {
		t.Fatalf("VBUSChange calls = %v, want [true] (POWER_STATUS already reported VBUS present)", hooks.vbusChanges)
	}
}

func TestSetCCCachesCommandedPull(t *testing.T) {
	bus := newFakeBus()
	p := newTestPort(Config{}, bus, &fakeHooks{})

	if err := p.SetCC(context.Background(), PullRd, Rp1A5); err != nil {
		t.Fatalf("SetCC() = %v", err)
	}
	p.mu.Lock()
	pull, rp := p.cachedPull, p.cachedRp
	p.mu.Unlock()
	if pull != PullRd || rp != Rp1A5 {
		t.Fatalf("cached pull/rp = %v/%v, want Rd/1A5", pull, rp)
	}

	got := bus.bytes[regRoleCtrl]
	want := roleCtrlValue(false, Rp1A5, PullRd, PullRd)
	if got != want {
		t.Fatalf("ROLE_CTRL = %#x, want %#x", got, want)
	}
}

// TestGetCCNonDRPUsesRoleCtrlForPresentingRd covers the non-DRP path: the
// chip never reports whether a line's voltage reading is the partner's Rp or
// our own commanded Rd, so on a non-DRP port ROLE_CTRL (what we last
// commanded) is consulted instead, and ORed onto the voltage reading rather
// than replacing it.
func TestGetCCNonDRPUsesRoleCtrlForPresentingRd(t *testing.T) {
	bus := newFakeBus()
	p := newTestPort(Config{}, bus, &fakeHooks{})
	if err := p.SetCC(context.Background(), PullRd, RpUSB); err != nil {
		t.Fatal(err)
	}
	// ROLE_CTRL.DRP bit left clear; CC_STATUS reports an Rp-class voltage
	// reading on both lines, as the partner's Rp would show up.
	bus.bytes[regCCStatus] = uint8(PullRp) | uint8(PullRp)<<2

	cc1, cc2, err := p.GetCC(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cc1.Voltage() != PullRp || cc2.Voltage() != PullRp {
		t.Fatalf("GetCC() voltage = %v/%v, want Rp/Rp (voltage reading must survive)", cc1, cc2)
	}
	if !cc1.PresentingRd() || !cc2.PresentingRd() {
		t.Fatalf("GetCC() presenting-Rd = %v/%v, want true/true (from ROLE_CTRL)", cc1.PresentingRd(), cc2.PresentingRd())
	}
}

func TestGetCCDRPUsesTermBit(t *testing.T) {
	bus := newFakeBus()
	p := newTestPort(Config{}, bus, &fakeHooks{})
	bus.bytes[regRoleCtrl] = 1 << 6 // DRP bit set
	bus.bytes[regCCStatus] = uint8(PullRp) | uint8(PullRp)<<2 | 1<<4 // ConnectResult set

	cc1, cc2, err := p.GetCC(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cc1.Voltage() != PullRp || cc2.Voltage() != PullRp {
		t.Fatalf("GetCC() voltage = %v/%v, want Rp/Rp", cc1, cc2)
	}
	if !cc1.PresentingRd() || !cc2.PresentingRd() {
		t.Fatalf("GetCC() presenting-Rd = %v/%v, want true/true (from CC_STATUS.ConnectResult)", cc1.PresentingRd(), cc2.PresentingRd())
	}
}

func TestGetCCReportsLooking4Connection(t *testing.T) {
	bus := newFakeBus()
	p := newTestPort(Config{}, bus, &fakeHooks{})
	bus.bytes[regCCStatus] = 1 << 5 // Looking4Connection

	cc1, cc2, err := p.GetCC(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !cc1.LookingForConnection() || !cc2.LookingForConnection() {
		t.Fatalf("GetCC() looking4connection = %v/%v, want true/true on both lines", cc1.LookingForConnection(), cc2.LookingForConnection())
	}
}

func TestSetPolarityNoneIsNoOp(t *testing.T) {
	bus := newFakeBus()
	bus.bytes[regTCPCCtrl] = 0x42
	p := newTestPort(Config{}, bus, &fakeHooks{})

	if err := p.SetPolarity(context.Background(), PolarityNone); err != nil {
		t.Fatal(err)
	}
	if bus.bytes[regTCPCCtrl] != 0x42 {
		t.Fatalf("TCPC_CTRL changed on PolarityNone: got %#x", bus.bytes[regTCPCCtrl])
	}
}

func TestSetPolaritySetsCC2Bit(t *testing.T) {
	bus := newFakeBus()
	p := newTestPort(Config{}, bus, &fakeHooks{})

	if err := p.SetPolarity(context.Background(), PolarityCC2); err != nil {
		t.Fatal(err)
	}
	if bus.bytes[regTCPCCtrl]&tcpcCtrlPolarity == 0 {
		t.Fatal("TCPC_CTRL.POLARITY not set for PolarityCC2")
	}
}

func TestEnableFastRoleSwapRequiresConfig(t *testing.T) {
	bus := newFakeBus()
	p := newTestPort(Config{}, bus, &fakeHooks{})
	if err := p.EnableFastRoleSwap(context.Background(), true); err != CodeInval {
		t.Fatalf("EnableFastRoleSwap() without Config.FRS = %v, want CodeInval", err)
	}
}

func TestGetChipInfoCachesAcrossCalls(t *testing.T) {
	bus := newFakeBus()
	bus.words[regVendorID] = 0x1234
	bus.words[regProductID] = 0x5678
	bus.words[regBCDDev] = 0x0001
	p := newTestPort(Config{}, bus, &fakeHooks{})

	info, err := p.GetChipInfo(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if info.VendorID != 0x1234 || info.ProductID != 0x5678 {
		t.Fatalf("GetChipInfo() = %+v, want VendorID=0x1234 ProductID=0x5678", info)
	}

	bus.words[regVendorID] = 0xdead
	cached, err := p.GetChipInfo(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if cached.VendorID != 0x1234 {
		t.Fatalf("GetChipInfo(live=false) re-read the bus: VendorID = %#x", cached.VendorID)
	}
}
