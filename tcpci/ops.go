package tcpci

import (
	"context"
	"time"

	"github.com/oxplot/go-tcpci/tcpcbus"
)

// initTries and initRetryDelay bound how long Init waits for the chip to
// come out of reset and start acknowledging register reads, matching
// TCPM_INIT_TRIES/MSEC(10) in the original driver.
const (
	initTries      = 30
	initRetryDelay = 10 * time.Millisecond
)

// maxAllowedFailedRxReads is the number of failed RX_STATUS drain reads the
// alert handler tolerates in one invocation before it gives up on the port
// and suspends it; a successful read in between does not reset the count.
const maxAllowedFailedRxReads = 10

// Init brings up the port: polls POWER_STATUS until the chip clears its
// UNINIT bit (or exhausts initTries, matching TCPM_INIT_TRIES), then enables
// the v2.0 Look4Connection alert if needed, clears ALERT, programs the
// power-status and alert masks, primes the VBUS-presence shadow from the
// POWER_STATUS reading already in hand, and warms the chip-info cache while
// the chip is known to be awake, matching tcpci_tcpm_init.
func (p *Port) Init(ctx context.Context) error {
	p.mu.Lock()
	p.cachedPull = PullOpen
	p.mu.Unlock()

	var status uint8
	ready := false
	for i := 0; i < initTries; i++ {
		var err error
		status, err = p.readByte(ctx, regPowerStatus)
		if err == nil && status&powerStatusUninit == 0 {
			ready = true
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(initRetryDelay):
		}
	}
	if !ready {
		return CodeTimeout
	}

	// For TCPCI v2.0, the chip masks the Looking4Connection alert unless we
	// opt in here; without it a DRP auto-toggle cycling through attempts
	// never raises an interrupt.
	if p.cfg.V2_0 {
		if err := p.updateMask(ctx, regTCPCCtrl, tcpcCtrlEnableLook4ConnAlert, tcpcbus.MaskSet); err != nil {
			return err
		}
	}

	if err := p.writeWord(ctx, regAlert, alertMaskAll); err != nil {
		return err
	}
	if err := p.writeByte(ctx, regPowerStatusMask, p.powerStatusMask()); err != nil {
		return err
	}

	present := status&powerStatusVbusPresent != 0
	p.mu.Lock()
	p.vbusPresent = present
	p.mu.Unlock()
	if p.cfg.VBUSDetectTCPC {
		p.chg.VBUSChange(p.num, present)
	}

	if err := p.writeWord(ctx, regAlertMask, p.alertMask()); err != nil {
		return err
	}
	if p.cfg.FRS {
		if err := p.updateMask(ctx, regAlertExtMask, alertExtSnkFRS, tcpcbus.MaskSet); err != nil {
			return err
		}
	}

	p.mu.Lock()
	_, err := p.getChipInfo(ctx, true)
	p.mu.Unlock()
	return err
}

func (p *Port) alertMask() uint16 {
	m := alertCCStatus | alertPowerStatus | alertRxStatus | alertRxHardRst |
		alertTxComplete | alertRxOverflow | alertFault
	if p.cfg.FRS {
		m |= alertAlertExt
	}
	if p.cfg.VBUSDetectTCPC {
		m |= alertVAlarmLo | alertVAlarmHi
	}
	return m
}

func (p *Port) powerStatusMask() uint8 {
	m := powerStatusSourcingVbus
	if p.cfg.VBUSDetectTCPC {
		m |= powerStatusVbusPresent
	}
	return m
}

// Release disables alerts and tears down cached state; it does not put the
// chip in any particular pull state, matching tcpci_tcpm_release leaving
// board-level disconnect handling to the caller.
func (p *Port) Release(ctx context.Context) error {
	p.mu.Lock()
	p.chipInfoCached = false
	p.rx.clear()
	p.mu.Unlock()
	return p.writeWord(ctx, regAlertMask, 0)
}

// GetCC reads the CC line states. CC_STATUS alone reports each line's
// voltage class but not whether that class is Rp or the Rd we ourselves are
// presenting as a sink; on a DRP port CC_STATUS.ConnectResult answers that,
// and on a non-DRP port only ROLE_CTRL (what we last commanded) can, since
// the chip never reports it directly. Both cases are folded into the
// returned CCStatus alongside CC_STATUS.Looking4Connection, matching
// tcpci_tcpm_get_cc's cc1/cc2 |= present_rd << 2 encoding.
func (p *Port) GetCC(ctx context.Context) (cc1, cc2 CCStatus, err error) {
	role, err := p.readByte(ctx, regRoleCtrl)
	if err != nil {
		return CCStatus(PullOpen), CCStatus(PullOpen), err
	}
	status, err := p.readByte(ctx, regCCStatus)
	if err != nil {
		return CCStatus(PullOpen), CCStatus(PullOpen), err
	}

	v1, v2 := ccStatusCC1(status), ccStatusCC2(status)
	var rd1, rd2 bool
	if roleCtrlDRP(role) {
		term := ccStatusTerm(status)
		if v1 != PullOpen {
			rd1 = term
		}
		if v2 != PullOpen {
			rd2 = term
		}
	} else {
		rc1, rc2 := roleCtrlCC1(role), roleCtrlCC2(role)
		if v1 != PullOpen {
			rd1 = rc1 == PullRd
		}
		if v2 != PullOpen {
			rd2 = rc2 == PullRd
		}
	}

	cc1, cc2 = CCStatus(v1), CCStatus(v2)
	if rd1 {
		cc1 |= 1 << 2
	}
	if rd2 {
		cc2 |= 1 << 2
	}
	if ccStatusLooking4Conn(status) {
		cc1 |= 1 << 3
		cc2 |= 1 << 3
	}
	return cc1, cc2, nil
}

// SetCC commands a pull on both CC lines, then narrows to a single line when
// the port is attached: driving both lines independently once attached can
// desync some chips' detection state machines (crbug.com/951681), so the
// line the known polarity doesn't select is forced Open, matching
// tcpci_tcpm_set_cc consulting pd_get_polarity.
func (p *Port) SetCC(ctx context.Context, pull Pull, rp RpValue) error {
	p.mu.Lock()
	p.cachedPull = pull
	p.cachedRp = rp
	p.mu.Unlock()

	cc1, cc2 := pull, pull
	switch p.pd.GetPolarity(p.num).line() {
	case PolarityCC1:
		cc2 = PullOpen
	case PolarityCC2:
		cc1 = PullOpen
	}

	return p.writeByte(ctx, regRoleCtrl, roleCtrlValue(false, rp, cc1, cc2))
}

// SetPolarity re-drives SetCC under the newly known polarity before writing
// TCPC_CTRL.POLARITY, since SetCC's single-line-driving workaround depends on
// the polarity PDHooks.GetPolarity now reports, matching
// tcpci_tcpm_set_polarity calling tcpm_set_cc first. PolarityNone stops after
// the SetCC call: there is no "neither line" encoding in TCPC_CTRL, and the
// original driver leaves the register untouched in that case rather than
// guessing.
func (p *Port) SetPolarity(ctx context.Context, pol Polarity) error {
	p.mu.Lock()
	pull, rp := p.cachedPull, p.cachedRp
	p.mu.Unlock()
	if err := p.SetCC(ctx, pull, rp); err != nil {
		return err
	}
	if pol.line() == PolarityNone {
		return nil
	}
	action := tcpcbus.MaskClear
	if pol.line() == PolarityCC2 {
		action = tcpcbus.MaskSet
	}
	return p.updateMask(ctx, regTCPCCtrl, tcpcCtrlPolarity, action)
}

// SetVconn enables or disables VCONN sourcing and updates the RX_DETECT
// mask so SOP' / SOP'' reception tracks which line is now the cable line.
func (p *Port) SetVconn(ctx context.Context, enable bool) error {
	action := tcpcbus.MaskClear
	if enable {
		action = tcpcbus.MaskSet
	}
	if err := p.updateMask(ctx, regPowerCtrl, powerCtrlVconn, action); err != nil {
		return err
	}
	p.mu.Lock()
	p.vconnEnabled = enable
	rxEnabled := p.rxEnabled
	p.mu.Unlock()
	if rxEnabled {
		return p.writeRxDetect(ctx, true)
	}
	return nil
}

// SetMsgHeader programs MSG_HDR_INFO with the current data/power role.
func (p *Port) SetMsgHeader(ctx context.Context, dataRole, powerRole uint8) error {
	return p.writeByte(ctx, regMsgHdrInfo, msgHdrInfoValue(dataRole, powerRole))
}

// SetRxEnable turns PD message reception on or off by programming RX_DETECT.
func (p *Port) SetRxEnable(ctx context.Context, enable bool) error {
	p.mu.Lock()
	p.rxEnabled = enable
	p.mu.Unlock()
	return p.writeRxDetect(ctx, enable)
}

func (p *Port) writeRxDetect(ctx context.Context, enable bool) error {
	if !enable {
		return p.writeByte(ctx, regRxDetect, rxDetectDisabled)
	}
	p.mu.Lock()
	vconn := p.vconnEnabled
	p.mu.Unlock()
	v := rxDetectSOPHardReset
	if p.cfg.DecodeSOP && vconn {
		v = rxDetectSOPAllHardReset
	}
	return p.writeByte(ctx, regRxDetect, v)
}

// SelectRpValue updates the advertised Rp current without changing which
// pull is presented; ROLE_CTRL is rewritten through SetCC, so the
// single-line narrowing for a known polarity is kept.
func (p *Port) SelectRpValue(ctx context.Context, rp RpValue) error {
	p.mu.Lock()
	pull := p.cachedPull
	p.mu.Unlock()
	return p.SetCC(ctx, pull, rp)
}

// GetVBUSLevel reads the VBUS_VOLTAGE register in millivolts (register LSB
// is 25mV per the TCPCI specification, masked to the 10-bit field).
func (p *Port) GetVBUSLevel(ctx context.Context) (uint16, error) {
	raw, err := p.readWord(ctx, regVbusVoltage)
	if err != nil {
		return 0, err
	}
	return (raw & 0x3ff) * 25, nil
}

// DischargeVBUS forces the VBUS discharge path on or off.
func (p *Port) DischargeVBUS(ctx context.Context, enable bool) error {
	action := tcpcbus.MaskClear
	if enable {
		action = tcpcbus.MaskSet
	}
	return p.updateMask(ctx, regPowerCtrl, powerCtrlForceDischarge, action)
}

// EnableAutoDischargeDisconnect toggles the chip's automatic VBUS discharge
// on disconnect.
func (p *Port) EnableAutoDischargeDisconnect(ctx context.Context, enable bool) error {
	action := tcpcbus.MaskClear
	if enable {
		action = tcpcbus.MaskSet
	}
	return p.updateMask(ctx, regPowerCtrl, powerCtrlAutoDischargeDisconnect, action)
}

// DRPToggle kicks off the chip's autonomous dual-role-port connection
// toggle; it returns CodeInval unless Config.DualRoleAutoToggle is set.
func (p *Port) DRPToggle(ctx context.Context) error {
	if !p.cfg.DualRoleAutoToggle {
		return CodeInval
	}
	if err := p.updateMask(ctx, regTCPCCtrl, tcpcCtrlEnableLook4ConnAlert, tcpcbus.MaskSet); err != nil {
		return err
	}
	return p.writeByte(ctx, regCommand, commandLook4Connection)
}

// SetSinkCtrl and SetSourceCtrl drive the PPC control commands; they return
// CodeInval unless Config.PPCPresent is set.
func (p *Port) SetSinkCtrl(ctx context.Context, enable bool) error {
	if !p.cfg.PPCPresent {
		return CodeInval
	}
	v := commandSnkCtrlLow
	if enable {
		v = commandSnkCtrlHigh
	}
	return p.writeByte(ctx, regCommand, v)
}

func (p *Port) SetSourceCtrl(ctx context.Context, enable bool) error {
	if !p.cfg.PPCPresent {
		return CodeInval
	}
	v := commandSrcCtrlLow
	if enable {
		v = commandSrcCtrlHigh
	}
	return p.writeByte(ctx, regCommand, v)
}

// EnableFastRoleSwap arms or disarms FRS and notifies board wiring, mirroring
// the original driver's call out to board_pd_set_frs_enable.
func (p *Port) EnableFastRoleSwap(ctx context.Context, enable bool) error {
	if !p.cfg.FRS {
		return CodeInval
	}
	action := tcpcbus.MaskClear
	if enable {
		action = tcpcbus.MaskSet
	}
	if err := p.updateMask(ctx, regPowerCtrl, powerCtrlFRSEnable, action); err != nil {
		return err
	}
	p.brd.FastRoleSwapEnable(p.num, enable)
	return nil
}

// EnterLowPowerMode commands the chip into its I2C-idle low power state by
// writing COMMAND.I2CIDLE, matching tcpci_enter_low_power_mode. Waking back
// up is handled on the read path: every register access in bus_access.go
// calls LowPowerCoordinator.WaitExitLowPower before touching the bus.
func (p *Port) EnterLowPowerMode(ctx context.Context) error {
	if !p.cfg.LowPower {
		return CodeInval
	}
	return p.writeByte(ctx, regCommand, commandI2CIdle)
}

// GetChipInfo returns the cached chip identification, rereading from the
// chip when live is true or nothing has been cached yet.
func (p *Port) GetChipInfo(ctx context.Context, live bool) (ChipInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getChipInfo(ctx, live)
}
