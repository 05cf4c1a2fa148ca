package tcpci

import (
	"context"
	"log/slog"
)

// handleAlert runs one pass of the interrupt-driven alert algorithm: drain
// ALERT, service each condition it reports, write-1-to-clear the bits we
// handled, and post the aggregated event set to the PD task exactly once at
// the end so it cannot observe a partially-serviced alert and re-enter low
// power mode mid-transaction.
//
// A silently-reset chip reads its mask registers back as their power-on
// all-ones default; that is detected before anything else and short-circuits
// straight to re-init, since every other register read in this function
// would otherwise return garbage.
func (p *Port) handleAlert(ctx context.Context) {
	if p.detectSilentReset(ctx) {
		slog.Warn("tcpci: chip silently reset, reinitialization required", "port", p.num)
		var e Event
		e.Add(EventTCPCReset)
		p.evt.SetEvent(p.num, e)
		return
	}

	alert, err := p.readWord(ctx, regAlert)
	if err != nil || alert == 0 {
		return
	}

	var events Event
	handled := alert

	if alert&alertFault != 0 {
		status, err := p.readByte(ctx, regFaultStatus)
		if err == nil {
			slog.Error("tcpci: fault reported", "port", p.num, "fault_status", status)
		}
		p.writeByte(ctx, regFaultStatus, powerStatusMaskAll)
	}

	if alert&alertCCStatus != 0 {
		events.Add(EventCC)
	}

	if alert&alertPowerStatus != 0 {
		p.handlePowerStatus(ctx)
		events.Add(EventWake)
	}

	if alert&alertTxComplete != 0 {
		p.pd.TransmitComplete(p.num, alert&alertTxSuccess != 0)
	}

	if alert&alertRxHardRst != 0 {
		p.mu.Lock()
		p.rx.clear()
		p.mu.Unlock()
		p.pd.ExecuteHardReset(p.num)
		events.Add(EventWake)
	}

	if alert&alertAlertExt != 0 {
		ext, err := p.readByte(ctx, regAlertExt)
		if err == nil {
			p.writeByte(ctx, regAlertExt, ext)
			if ext&alertExtSnkFRS != 0 && p.cfg.FRS {
				p.pd.GotFRSSignal(p.num)
			}
		}
	}

	if alert&alertRxStatus != 0 {
		if p.drainRx(ctx) {
			events.Add(EventWake)
		}
		// drainRx clears RX_STATUS itself per message; don't also ack it
		// below or we'd clear a message that arrived after the drain loop
		// gave up and left ALERT set for the next interrupt.
		handled &^= alertRxStatus
	}

	if handled != 0 {
		p.writeWord(ctx, regAlert, handled)
	}

	if events != 0 {
		p.evt.SetEvent(p.num, events)
	}
}

// drainRx pulls pending messages off the chip into the ring until RX_STATUS
// clears, the ring fills, or maxAllowedFailedRxReads read failures occur in
// one call, at which point it suspends the port rather than spin forever
// against a chip stuck reporting a message it cannot deliver.
//
// The failure counter is intentionally not reset on a successful read
// between failures within the same call: a chip alternating between good
// and bad reads is still unhealthy enough to suspend, matching the original
// driver's single per-alert counter rather than a rolling one.
func (p *Port) drainRx(ctx context.Context) bool {
	got := false
	failed := 0
	for failed < maxAllowedFailedRxReads {
		status, err := p.readWord(ctx, regAlert)
		if err != nil || status&alertRxStatus == 0 {
			break
		}

		p.mu.Lock()
		full := p.rx.full()
		p.mu.Unlock()
		if full {
			// Ring overflow: the message is left unread on the chip,
			// matching tcpm_enqueue_message returning EC_ERROR_OVERFLOW
			// without further chip I/O. RX_STATUS stays set, so the chip
			// raises the alert again.
			break
		}

		msg, err := p.getMessageRaw(ctx)
		if err != nil {
			failed++
			continue
		}

		p.mu.Lock()
		slot := p.rx.reserve()
		if slot != nil {
			*slot = msg
			p.rx.publish()
		}
		p.mu.Unlock()
		if slot == nil {
			break
		}
		got = true
	}

	if failed >= maxAllowedFailedRxReads {
		slog.Error("tcpci: suspending port after repeated RX read failures", "port", p.num, "failed_reads", failed)
		p.pd.SetSuspend(p.num, true)
	}
	return got
}

// detectSilentReset probes ALERT_MASK and POWER_STATUS_MASK: a chip that
// reset without asserting its interrupt line reads either back as its
// power-on all-ones default, since no TCPCI chip ships with every alert or
// every power status condition unmasked by default, matching
// register_mask_reset's OR of both checks.
func (p *Port) detectSilentReset(ctx context.Context) bool {
	if p.cfg.LowPower {
		// Every wake from low power is itself treated as a reset-recovery
		// point, so the probe is redundant there.
		return false
	}
	mask, err := p.readWord(ctx, regAlertMask)
	if err != nil {
		return false
	}
	if mask == alertMaskAll {
		return true
	}
	powerMask, err := p.readByte(ctx, regPowerStatusMask)
	if err != nil {
		return false
	}
	return powerMask == powerStatusMaskAll
}

func (p *Port) handlePowerStatus(ctx context.Context) {
	status, err := p.readByte(ctx, regPowerStatus)
	if err != nil {
		return
	}
	present := status&powerStatusVbusPresent != 0
	p.mu.Lock()
	changed := present != p.vbusPresent
	p.vbusPresent = present
	p.mu.Unlock()
	if changed && p.cfg.VBUSDetectTCPC {
		p.chg.VBUSChange(p.num, present)
	}
}

// PendingMessage returns the oldest received message not yet consumed by
// the PD task, or false if the ring is empty.
func (p *Port) PendingMessage() (header uint16, data []uint32, frameType FrameType, ok bool) {
	p.mu.Lock()
	m, ok := p.rx.dequeue()
	p.mu.Unlock()
	if !ok {
		return 0, nil, 0, false
	}
	return m.header, append([]uint32(nil), m.payload[:m.count]...), m.frameType, true
}

// HasPendingMessage reports whether PendingMessage would return a message.
func (p *Port) HasPendingMessage() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rx.hasPending()
}

// ClearPendingMessages discards all queued received messages without
// returning them, matching tcpm_clear_pending_messages.
func (p *Port) ClearPendingMessages() {
	p.mu.Lock()
	p.rx.clear()
	p.mu.Unlock()
}
