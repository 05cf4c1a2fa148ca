package tcpci

import (
	"context"
	"encoding/binary"

	"github.com/oxplot/go-tcpci/tcpcbus"
)

// Transmit sends one PD message. txType selects the frame type; for types at
// or beyond NumSOPStarTypes (hard reset, cable reset, BIST) header and data
// are ignored and the TRANSMIT register alone signals the chip, matching
// tcpci_tcpm_transmit's handling of non-SOP* types.
//
// The chip's hardware retry count is requested for every framed type except
// SOP', which must never be retried per the PD cable-plug addressing rules;
// the types signaled by the TRANSMIT register alone are sent without retry.
// tcpci_tcpm_transmit derives this from the type rather than trusting the
// caller.
func (p *Port) Transmit(ctx context.Context, txType TxType, header uint16, data []uint32) error {
	withRetry := txType != TxSOPPrime

	if int(txType) >= NumSOPStarTypes {
		return p.writeByte(ctx, regTransmit, transmitValue(txType, false))
	}

	if p.cfg.V2_0 {
		return p.transmitV2(ctx, txType, header, data, withRetry)
	}
	return p.transmitV1(ctx, txType, header, data, withRetry)
}

func (p *Port) transmitV1(ctx context.Context, txType TxType, header uint16, data []uint32, withRetry bool) error {
	byteCnt := uint8(2 + 4*len(data))
	if err := p.writeByte(ctx, regTxByteCnt, byteCnt); err != nil {
		return err
	}
	if err := p.writeWord(ctx, regTxHdr, header); err != nil {
		return err
	}
	if len(data) > 0 {
		buf := make([]byte, 4*len(data))
		for i, d := range data {
			binary.LittleEndian.PutUint32(buf[i*4:], d)
		}
		if err := p.writeBlock(ctx, regTxData, buf); err != nil {
			return err
		}
	}
	return p.writeByte(ctx, regTransmit, transmitValue(txType, withRetry))
}

// transmitV2 writes byte count, header and payload as one locked
// multi-segment transfer into the shared TX_BUFFER, matching
// tcpci_v2_0_tcpm_transmit's single-transaction framing.
func (p *Port) transmitV2(ctx context.Context, txType TxType, header uint16, data []uint32, withRetry bool) error {
	byteCnt := uint8(2 + 4*len(data))
	buf := make([]byte, 1+2+4*len(data))
	buf[0] = byteCnt
	binary.LittleEndian.PutUint16(buf[1:], header)
	for i, d := range data {
		binary.LittleEndian.PutUint32(buf[3+i*4:], d)
	}

	if err := p.bus.Lock(ctx, true); err != nil {
		return err
	}
	defer p.bus.Lock(ctx, false)

	reg := []byte{regTxBuffer}
	if err := p.xfer(ctx, reg, nil, tcpcbus.XferStart); err != nil {
		return err
	}
	if err := p.xfer(ctx, buf, nil, tcpcbus.XferStop); err != nil {
		return err
	}
	return p.writeByte(ctx, regTransmit, transmitValue(txType, withRetry))
}
