package tcpci

import (
	"context"
	"errors"
	"testing"
)

func TestHandleAlertDetectsSilentReset(t *testing.T) {
	bus := newFakeBus()
	bus.words[regAlertMask] = alertMaskAll
	hooks := &fakeHooks{}
	p := newTestPort(Config{}, bus, hooks)

	p.handleAlert(context.Background())

	if len(hooks.events) != 1 || !hooks.events[0].Has(EventTCPCReset) {
		t.Fatalf("events = %v, want exactly one EventTCPCReset", hooks.events)
	}
}

func TestHandleAlertDetectsSilentResetViaPowerStatusMask(t *testing.T) {
	bus := newFakeBus()
	bus.bytes[regPowerStatusMask] = powerStatusMaskAll
	hooks := &fakeHooks{}
	p := newTestPort(Config{}, bus, hooks)

	p.handleAlert(context.Background())

	if len(hooks.events) != 1 || !hooks.events[0].Has(EventTCPCReset) {
		t.Fatalf("events = %v, want exactly one EventTCPCReset", hooks.events)
	}
}

func TestHandleAlertSkipsSilentResetProbeInLowPower(t *testing.T) {
	bus := newFakeBus()
	bus.words[regAlertMask] = alertMaskAll
	bus.words[regAlert] = 0
	hooks := &fakeHooks{}
	p := newTestPort(Config{LowPower: true}, bus, hooks)

	p.handleAlert(context.Background())

	if len(hooks.events) != 0 {
		t.Fatalf("events = %v, want none (ALERT read back as 0)", hooks.events)
	}
}

func TestHandleAlertAggregatesEventsIntoOnePost(t *testing.T) {
	bus := newFakeBus()
	bus.words[regAlert] = alertCCStatus | alertPowerStatus
	bus.bytes[regPowerStatus] = powerStatusVbusPresent
	hooks := &fakeHooks{}
	p := newTestPort(Config{VBUSDetectTCPC: true}, bus, hooks)

	p.handleAlert(context.Background())

	if len(hooks.events) != 1 {
		t.Fatalf("SetEvent called %d times, want exactly 1 (aggregated post)", len(hooks.events))
	}
	e := hooks.events[0]
	if !e.Has(EventCC) || !e.Has(EventWake) {
		t.Fatalf("events = %v, want EventCC|EventWake", e)
	}
	if len(hooks.vbusChanges) != 1 || !hooks.vbusChanges[0] {
		t.Fatalf("VBUSChange calls = %v, want [true]", hooks.vbusChanges)
	}
}

func TestHandleAlertClearsOnlyHandledBits(t *testing.T) {
	bus := newFakeBus()
	bus.words[regAlert] = alertCCStatus
	p := newTestPort(Config{}, bus, &fakeHooks{})

	p.handleAlert(context.Background())

	if bus.words[regAlert] != 0 {
		t.Fatalf("ALERT = %#x after handling, want fully cleared", bus.words[regAlert])
	}
}

// TestHandleAlertDoesNotDoubleClearRxStatus covers the exclusion documented
// in handleAlert: once drainRx has cleared RX_STATUS per message, the
// aggregate ack below must not also target that bit, so a message that
// arrives between the drain loop ending and the aggregate write is not lost.
func TestHandleAlertDoesNotDoubleClearRxStatus(t *testing.T) {
	bus := rxMessageBus()
	bus.words[regAlert] = alertCCStatus | alertRxStatus
	p := newTestPort(Config{}, bus, &fakeHooks{})

	p.handleAlert(context.Background())

	if len(bus.alertWrites) < 2 {
		t.Fatalf("expected at least 2 ALERT writes (drain ack + aggregate ack), got %d", len(bus.alertWrites))
	}
	final := bus.alertWrites[len(bus.alertWrites)-1]
	if final&alertRxStatus != 0 {
		t.Fatalf("aggregate ALERT ack targeted alertRxStatus: %#x", final)
	}
}

func rxMessageBus() *fakeBus {
	bus := newFakeBus()
	bus.bytes[regRxByteCnt] = 2
	bus.words[regRxHdr] = 0x0001
	return bus
}

func TestDrainRxPublishesUntilRxStatusClears(t *testing.T) {
	bus := rxMessageBus()
	bus.words[regAlert] = alertRxStatus
	hooks := &fakeHooks{}
	p := newTestPort(Config{RingCapacity: 4}, bus, hooks)

	// getMessageRaw's own ALERT write resets the word to 0 after the first
	// message, since fakeBus models ALERT's write-1-to-clear, so the second
	// drainRx iteration observes it cleared and stops.
	got := p.drainRx(context.Background())
	if !got {
		t.Fatal("drainRx() returned false, want true (one message enqueued)")
	}
	if !p.HasPendingMessage() {
		t.Fatal("no pending message after drainRx")
	}
	header, _, _, ok := p.PendingMessage()
	if !ok || header != 0x0001 {
		t.Fatalf("PendingMessage() = %#x, %v, want 0x0001, true", header, ok)
	}
}

func TestDrainRxSuspendsAfterMaxFailedReads(t *testing.T) {
	bus := rxMessageBus()
	bus.words[regAlert] = alertRxStatus
	bus.readErr[regRxByteCnt] = errors.New("bus nak")
	hooks := &fakeHooks{}
	p := newTestPort(Config{}, bus, hooks)

	got := p.drainRx(context.Background())
	if got {
		t.Fatal("drainRx() returned true, want false (every read failed)")
	}
	if len(hooks.suspendCalls) != 1 || !hooks.suspendCalls[0] {
		t.Fatalf("SetSuspend calls = %v, want [true]", hooks.suspendCalls)
	}
	if bus.readByteCount[regRxByteCnt] != maxAllowedFailedRxReads {
		t.Fatalf("RX_BYTE_CNT read %d times, want %d", bus.readByteCount[regRxByteCnt], maxAllowedFailedRxReads)
	}
}

func TestDrainRxStopsOnRingOverflow(t *testing.T) {
	bus := rxMessageBus()
	bus.words[regAlert] = alertRxStatus
	p := newTestPort(Config{RingCapacity: 1}, bus, &fakeHooks{})

	// Pre-fill the single-slot ring so drainRx finds it full before reading.
	p.mu.Lock()
	slot := p.rx.reserve()
	slot.header = 0xffff
	p.rx.publish()
	p.mu.Unlock()

	got := p.drainRx(context.Background())
	if got {
		t.Fatal("drainRx() returned true, want false (ring was already full)")
	}
	header, _, _, ok := p.PendingMessage()
	if !ok || header != 0xffff {
		t.Fatalf("pre-filled message lost: header=%#x ok=%v", header, ok)
	}
}

func TestRxHardResetClearsRing(t *testing.T) {
	bus := newFakeBus()
	bus.words[regAlert] = alertRxHardRst
	p := newTestPort(Config{}, bus, &fakeHooks{})

	p.mu.Lock()
	slot := p.rx.reserve()
	slot.header = 0x1
	p.rx.publish()
	p.mu.Unlock()

	p.handleAlert(context.Background())

	if p.HasPendingMessage() {
		t.Fatal("ring not cleared on RX hard reset alert")
	}
}

func TestPendingMessageReportsFrameType(t *testing.T) {
	p := newTestPort(Config{}, newFakeBus(), &fakeHooks{})
	p.mu.Lock()
	slot := p.rx.reserve()
	slot.header = 0x42
	slot.frameType = FrameTypeSOPPrime
	slot.count = 1
	slot.payload[0] = 7
	p.rx.publish()
	p.mu.Unlock()

	header, data, ft, ok := p.PendingMessage()
	if !ok || header != 0x42 || ft != FrameTypeSOPPrime || len(data) != 1 || data[0] != 7 {
		t.Fatalf("PendingMessage() = %#x %v %v %v", header, data, ft, ok)
	}
}
