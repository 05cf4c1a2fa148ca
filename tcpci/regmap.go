package tcpci

// Register offsets and widths from the USB-IF TCPCI specification (v1.0 and
// v2.0 share this map; v2.0 additionally overlays RX_BUFFER on top of
// RX_BYTE_CNT/RX_BUF_FRAME_TYPE/RX_HDR and TX_BUFFER on top of
// TX_BYTE_CNT/TX_HDR, see transmit.go and receive.go).
const (
	regVendorID  = 0x00 // 16-bit
	regProductID = 0x02 // 16-bit
	regBCDDev    = 0x04 // 16-bit
	regTCRev     = 0x06 // 16-bit
	regPDRev     = 0x08 // 16-bit
	regPDIntRev  = 0x0a // 16-bit

	regAlert           = 0x10 // 16-bit, write-1-to-clear
	regAlertMask       = 0x12 // 16-bit
	regPowerStatusMask = 0x14 // 8-bit
	regFaultStatusMask = 0x15 // 8-bit
	regExtStatusMask   = 0x16 // 8-bit
	regAlertExtMask    = 0x17 // 8-bit
	regConfigStdOutput = 0x18 // 8-bit
	regTCPCCtrl        = 0x19 // 8-bit
	regRoleCtrl        = 0x1a // 8-bit
	regFaultCtrl       = 0x1b // 8-bit
	regPowerCtrl       = 0x1c // 8-bit
	regCCStatus        = 0x1d // 8-bit
	regPowerStatus     = 0x1e // 8-bit
	regFaultStatus     = 0x1f // 8-bit
	regCommand         = 0x23 // 8-bit
	regAlertExt        = 0x21 // 8-bit

	regDevCap1      = 0x24 // 16-bit
	regDevCap2      = 0x26 // 16-bit
	regStdInputCap  = 0x28 // 8-bit
	regStdOutputCap = 0x29 // 8-bit
	regConfigExt1   = 0x2a // 8-bit

	regMsgHdrInfo     = 0x2e // 8-bit
	regRxDetect       = 0x2f // 8-bit
	regRxByteCnt      = 0x30 // 8-bit
	regRxBufFrameType = 0x31 // 8-bit
	regRxHdr          = 0x32 // 16-bit
	regRxData         = 0x34 // block
	regRxBuffer       = 0x30 // block, v2.0: byte count + frame type + header + payload

	regTransmit = 0x50 // 8-bit
	regTxByteCnt = 0x51 // 8-bit
	regTxHdr     = 0x52 // 16-bit
	regTxData    = 0x54 // block
	regTxBuffer  = 0x51 // block, v2.0: byte count shares TX_BUFFER with payload

	regVbusVoltage                = 0x70 // 16-bit
	regVbusSinkDisconnectThresh   = 0x72 // 16-bit
	regVbusStopDischargeThresh    = 0x74 // 16-bit
	regVbusVoltageAlarmHiCfg      = 0x76 // 16-bit
	regVbusVoltageAlarmLoCfg      = 0x78 // 16-bit
)

// ALERT register bits.
const (
	alertCCStatus      uint16 = 1 << 0
	alertPowerStatus   uint16 = 1 << 1
	alertRxStatus      uint16 = 1 << 2
	alertRxHardRst     uint16 = 1 << 3
	alertTxSuccess     uint16 = 1 << 4
	alertTxDiscarded   uint16 = 1 << 5
	alertTxFailed      uint16 = 1 << 6
	alertRxOverflow    uint16 = 1 << 7
	alertFault         uint16 = 1 << 8
	alertVAlarmLo      uint16 = 1 << 9
	alertVAlarmHi      uint16 = 1 << 10
	alertExtStatus     uint16 = 1 << 11
	alertAlertExt      uint16 = 1 << 12
	alertTxComplete           = alertTxSuccess | alertTxDiscarded | alertTxFailed
	alertMaskAll       uint16 = 0xffff
)

// ALERT_EXT (extended alert) register bits.
const (
	alertExtSnkFRS uint8 = 1 << 0
)

// POWER_STATUS register bits.
const (
	powerStatusSinkingVbus  uint8 = 1 << 0
	powerStatusVbusDetect   uint8 = 1 << 1
	powerStatusVbusPresent  uint8 = 1 << 2
	powerStatusSourcingVbus uint8 = 1 << 4
	powerStatusDebugAcc     uint8 = 1 << 5
	powerStatusUninit       uint8 = 1 << 6
	powerStatusMaskAll      uint8 = 0xff
)

// POWER_CTRL register bits.
const (
	powerCtrlVconn                    uint8 = 1 << 0
	powerCtrlForceDischarge           uint8 = 1 << 2
	powerCtrlAutoDischargeDisconnect  uint8 = 1 << 4
	powerCtrlFRSEnable                uint8 = 1 << 7
)

// TCPC_CTRL register bits.
const (
	tcpcCtrlPolarity             uint8 = 1 << 0
	tcpcCtrlEnableLook4ConnAlert uint8 = 1 << 6
)

// COMMAND register values.
const (
	commandLook4Connection uint8 = 0x99
	commandI2CIdle         uint8 = 0xff
	commandSnkCtrlLow      uint8 = 0x44
	commandSnkCtrlHigh     uint8 = 0x55
	commandSrcCtrlLow      uint8 = 0x66
	commandSrcCtrlHigh     uint8 = 0x77
)

// CC pull / voltage-status values, shared between ROLE_CTRL (what we command)
// and CC_STATUS (what the chip reports).
type Pull uint8

const (
	PullRa   Pull = 0
	PullRp   Pull = 1
	PullRd   Pull = 2
	PullOpen Pull = 3
)

// RpValue is the Rp current level.
type RpValue uint8

const (
	RpUSB  RpValue = 0
	Rp1A5  RpValue = 1
	Rp3A0  RpValue = 2
)

func roleCtrlValue(drp bool, rp RpValue, cc1, cc2 Pull) uint8 {
	v := uint8(cc1&0x3) | uint8(cc2&0x3)<<2 | uint8(rp&0x3)<<4
	if drp {
		v |= 1 << 6
	}
	return v
}

func roleCtrlDRP(v uint8) bool { return v&(1<<6) != 0 }
func roleCtrlCC1(v uint8) Pull { return Pull(v & 0x3) }
func roleCtrlCC2(v uint8) Pull { return Pull((v >> 2) & 0x3) }

// CCStatus is the decoded CC_STATUS register: each line's Pull category plus
// whether we are presenting Rd and whether the port is mid dual-role-toggle,
// packed the way tcpci.GetCC returns it (low bits = voltage state, bit 2 =
// presenting-Rd flag, bit 3 = Looking4Connection, mirrored onto both lines
// since it is a port-wide condition rather than a per-CC one).
type CCStatus uint8

// Voltage returns the reported voltage/pull category of the line.
func (c CCStatus) Voltage() Pull { return Pull(c & 0x3) }

// PresentingRd reports whether this line is presenting Rd (sink behavior).
func (c CCStatus) PresentingRd() bool { return c&(1<<2) != 0 }

// LookingForConnection reports whether the chip's autonomous DRP toggle is
// currently cycling through connection attempts (CC_STATUS.Looking4Connection).
func (c CCStatus) LookingForConnection() bool { return c&(1<<3) != 0 }

func ccStatusCC1(v uint8) Pull          { return Pull(v & 0x3) }
func ccStatusCC2(v uint8) Pull          { return Pull((v >> 2) & 0x3) }
func ccStatusTerm(v uint8) bool         { return v&(1<<4) != 0 } // ConnectResult
func ccStatusLooking4Conn(v uint8) bool { return v&(1<<5) != 0 }

// MSG_HDR_INFO register bits.
func msgHdrInfoValue(dataRole, powerRole uint8) uint8 {
	return (dataRole&1)<<3 | (powerRole & 1) | 1<<2 // bit 2: cable plug=0/port=1, always port
}

// RX_DETECT register values.
const (
	rxDetectDisabled          uint8 = 0
	rxDetectSOPHardReset      uint8 = 0b00100001
	rxDetectSOPAllHardReset   uint8 = 0b00111111
)

// TRANSMIT register encoding.
const transmitRetryCount uint8 = 3 << 4

func transmitValue(t TxType, withRetry bool) uint8 {
	v := uint8(t) & 0x7
	if withRetry {
		v |= transmitRetryCount
	}
	return v
}

// TxType is the PD message frame type used for Transmit/Receive framing, per
// the SOP/SOP'/SOP''/hard-reset/etc. address space.
type TxType uint8

const (
	TxSOP       TxType = 0
	TxSOPPrime  TxType = 1
	TxSOPDouble TxType = 2
	TxSOPDebugPrime  TxType = 3
	TxSOPDebugDouble TxType = 4
	TxHardReset TxType = 5
	TxCableReset TxType = 6
	TxBIST      TxType = 7
)

// NumSOPStarTypes is the count of message types addressed over
// SOP/SOP'/SOP'' (including the debug variants) that carry a header and
// payload; types at or beyond this value (hard reset, cable reset, BIST) are
// signaled with the TRANSMIT register alone.
const NumSOPStarTypes = 5

// reg describes one named register for the debug dump, grounded on the
// original driver's console command table.
type reg struct {
	name string
	off  uint16
	size uint8
}

var regTable = []reg{
	{"VENDOR_ID", regVendorID, 2},
	{"PRODUCT_ID", regProductID, 2},
	{"BCD_DEV", regBCDDev, 2},
	{"TC_REV", regTCRev, 2},
	{"PD_REV", regPDRev, 2},
	{"PD_INT_REV", regPDIntRev, 2},
	{"ALERT", regAlert, 2},
	{"ALERT_MASK", regAlertMask, 2},
	{"POWER_STATUS_MASK", regPowerStatusMask, 1},
	{"FAULT_STATUS_MASK", regFaultStatusMask, 1},
	{"EXTENDED_STATUS_MASK", regExtStatusMask, 1},
	{"ALERT_EXTENDED_MASK", regAlertExtMask, 1},
	{"CONFIG_STD_OUTPUT", regConfigStdOutput, 1},
	{"TCPC_CTRL", regTCPCCtrl, 1},
	{"ROLE_CTRL", regRoleCtrl, 1},
	{"FAULT_CTRL", regFaultCtrl, 1},
	{"POWER_CTRL", regPowerCtrl, 1},
	{"CC_STATUS", regCCStatus, 1},
	{"POWER_STATUS", regPowerStatus, 1},
	{"FAULT_STATUS", regFaultStatus, 1},
	{"ALERT_EXT", regAlertExt, 1},
	{"DEV_CAP_1", regDevCap1, 2},
	{"DEV_CAP_2", regDevCap2, 2},
	{"STD_INPUT_CAP", regStdInputCap, 1},
	{"STD_OUTPUT_CAP", regStdOutputCap, 1},
	{"CONFIG_EXT_1", regConfigExt1, 1},
	{"MSG_HDR_INFO", regMsgHdrInfo, 1},
	{"RX_DETECT", regRxDetect, 1},
	{"RX_BYTE_CNT", regRxByteCnt, 1},
	{"RX_BUF_FRAME_TYPE", regRxBufFrameType, 1},
	{"TRANSMIT", regTransmit, 1},
	{"VBUS_VOLTAGE", regVbusVoltage, 2},
	{"VBUS_SINK_DISCONNECT_THRESH", regVbusSinkDisconnectThresh, 2},
	{"VBUS_STOP_DISCHARGE_THRESH", regVbusStopDischargeThresh, 2},
	{"VBUS_VOLTAGE_ALARM_HI_CFG", regVbusVoltageAlarmHiCfg, 2},
	{"VBUS_VOLTAGE_ALARM_LO_CFG", regVbusVoltageAlarmLoCfg, 2},
}
