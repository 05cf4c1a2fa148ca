package tcpci

import (
	"context"
	"encoding/binary"

	"github.com/oxplot/go-tcpci/tcpcbus"
)

// getMessageRaw pulls one pending message out of the chip's RX buffer and
// clears RX_STATUS for it, returning the decoded header and payload words.
// It does not touch the ring; callers (the alert handler) own queuing.
func (p *Port) getMessageRaw(ctx context.Context) (cachedMessage, error) {
	if p.cfg.V2_0 {
		return p.getMessageRawV2(ctx)
	}
	return p.getMessageRawV1(ctx)
}

func (p *Port) getMessageRawV1(ctx context.Context) (cachedMessage, error) {
	cnt, err := p.readByte(ctx, regRxByteCnt)
	if err != nil {
		return cachedMessage{}, err
	}
	if cnt < 2 {
		return cachedMessage{}, CodeInval
	}
	hdr, err := p.readWord(ctx, regRxHdr)
	if err != nil {
		return cachedMessage{}, err
	}

	var m cachedMessage
	m.header = hdr
	if p.cfg.DecodeSOP {
		ft, err := p.readByte(ctx, regRxBufFrameType)
		if err != nil {
			return cachedMessage{}, err
		}
		m.frameType = FrameType(ft & 0x7)
	}
	m.count = (cnt - 2) / 4
	if m.count > maxDataObjects {
		m.count = maxDataObjects
	}
	if m.count > 0 {
		buf := make([]byte, int(m.count)*4)
		if err := p.readBlock(ctx, regRxData, buf); err != nil {
			return cachedMessage{}, err
		}
		for i := 0; i < int(m.count); i++ {
			m.payload[i] = binary.LittleEndian.Uint32(buf[i*4:])
		}
	}

	if err := p.writeWord(ctx, regAlert, alertRxStatus); err != nil {
		return cachedMessage{}, err
	}
	return m, nil
}

// getMessageRawV2 reads RX_BUFFER as one locked transfer: byte count, frame
// type, header, and payload share one register window and must be read
// atomically with respect to any other locked access, matching
// tcpci_v2_0_tcpm_get_message_raw's lock/read/unlock bracket. The read
// buffer is sized for the largest possible message; the byte count prefix
// tells us how much of it is real once the transfer completes.
func (p *Port) getMessageRawV2(ctx context.Context) (cachedMessage, error) {
	if err := p.bus.Lock(ctx, true); err != nil {
		return cachedMessage{}, err
	}
	defer p.bus.Lock(ctx, false)

	buf := make([]byte, 1+1+2+maxDataObjects*4)
	reg := []byte{regRxBuffer}
	if err := p.xfer(ctx, reg, nil, tcpcbus.XferStart); err != nil {
		return cachedMessage{}, err
	}
	if err := p.xfer(ctx, nil, buf, tcpcbus.XferStop); err != nil {
		return cachedMessage{}, err
	}

	cnt := buf[0]
	if cnt < 3 {
		return cachedMessage{}, CodeInval
	}
	payloadLen := int(cnt) - 3

	var m cachedMessage
	m.header = binary.LittleEndian.Uint16(buf[2:4])
	if p.cfg.DecodeSOP {
		m.frameType = FrameType(buf[1] & 0x7)
	}
	m.count = uint8(payloadLen / 4)
	if m.count > maxDataObjects {
		m.count = maxDataObjects
	}
	for i := 0; i < int(m.count); i++ {
		m.payload[i] = binary.LittleEndian.Uint32(buf[4+i*4:])
	}

	if err := p.writeWord(ctx, regAlert, alertRxStatus); err != nil {
		return cachedMessage{}, err
	}
	return m, nil
}
