package tcpci

// Config is the compile-time feature-flag record for one port, resolved
// once at NewPort and never mutated afterward. Each conditional code path in
// the original driver (a source-language #ifdef) becomes a branch on one of
// these fields.
type Config struct {
	// V2_0 selects TCPCI v2.0 wire framing (shared TX/RX_BUFFER registers,
	// multi-segment locked transfers) over v1.0 (separate BYTE_CNT/HDR/DATA
	// registers).
	V2_0 bool

	// DecodeSOP enables SOP'/SOP'' frame-type decoding: a received message's
	// FrameType is populated from RX_BUF_FRAME_TYPE, and VCONN/RX-enable
	// shadows are tracked to pick the right RX_DETECT mask.
	DecodeSOP bool

	// LowPower enables the wake/accessed wrapper around every register
	// access and suppresses the silent-reset probe (every wake from low
	// power is itself a reset-recovery point).
	LowPower bool

	// VBUSDetectTCPC delegates VBUS presence detection to the TCPC: the
	// driver observes POWER_STATUS.VBUS_PRES and notifies the charger
	// subsystem on change.
	VBUSDetectTCPC bool

	// FRS enables sink fast role swap: the extended-alert SNK_FRS bit is
	// unmasked and POWER_CTRL.FRS_ENABLE becomes settable.
	FRS bool

	// DualRoleAutoToggle enables the DRP auto-toggle command. The
	// Look4Connection alert is enabled by Init on every v2.0 chip,
	// independent of this field.
	DualRoleAutoToggle bool

	// PPCPresent exposes the sink/source control commands used when a
	// dedicated power-path controller owns VBUS switching.
	PPCPresent bool

	// MuxShare indicates a USB mux shares this TCPC; it changes nothing in
	// this package beyond documentation, since mux wiring is board-level and
	// out of scope here (see SPEC_FULL.md §12).
	MuxShare bool

	// RingCapacity is the received-message ring size; must be a power of
	// two. Zero defaults to 4.
	RingCapacity uint32
}

func (c Config) ringCapacity() uint32 {
	if c.RingCapacity == 0 {
		return defaultRingCapacity
	}
	return c.RingCapacity
}
