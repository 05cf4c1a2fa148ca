package tcpci

import (
	"context"
	"testing"
)

func TestTransmitV1WritesByteCntHeaderAndData(t *testing.T) {
	bus := newFakeBus()
	p := newTestPort(Config{}, bus, &fakeHooks{})

	data := []uint32{0x11223344, 0xaabbccdd}
	if err := p.Transmit(context.Background(), TxSOP, 0xbeef, data); err != nil {
		t.Fatal(err)
	}
	if bus.bytes[regTxByteCnt] != 2+4*2 {
		t.Fatalf("TX_BYTE_CNT = %d, want 10", bus.bytes[regTxByteCnt])
	}
	if bus.words[regTxHdr] != 0xbeef {
		t.Fatalf("TX_HDR = %#x, want 0xbeef", bus.words[regTxHdr])
	}
	want := transmitValue(TxSOP, true)
	if bus.bytes[regTransmit] != want {
		t.Fatalf("TRANSMIT = %#x, want %#x", bus.bytes[regTransmit], want)
	}
}

func TestTransmitV2UsesLockedSingleTransfer(t *testing.T) {
	bus := newFakeBus()
	p := newTestPort(Config{V2_0: true}, bus, &fakeHooks{})

	if err := p.Transmit(context.Background(), TxSOP, 0x1234, []uint32{0x1}); err != nil {
		t.Fatal(err)
	}
	if bus.locked {
		t.Fatal("bus left locked after transmitV2 returned")
	}
	// One XferStart segment (the register address) and one XferStop segment
	// (byte count + header + payload) should have been captured.
	if len(bus.xferSegments) != 2 {
		t.Fatalf("xfer segments = %d, want 2", len(bus.xferSegments))
	}
}

func TestTransmitSOPPrimeNeverUsesRetry(t *testing.T) {
	bus := newFakeBus()
	p := newTestPort(Config{}, bus, &fakeHooks{})

	if err := p.Transmit(context.Background(), TxSOPPrime, 0x1234, nil); err != nil {
		t.Fatal(err)
	}
	want := transmitValue(TxSOPPrime, false)
	if bus.bytes[regTransmit] != want {
		t.Fatalf("TRANSMIT = %#x, want %#x (SOP' must never request hardware retry)", bus.bytes[regTransmit], want)
	}
}

func TestTransmitHardResetSkipsFraming(t *testing.T) {
	bus := newFakeBus()
	p := newTestPort(Config{}, bus, &fakeHooks{})

	if err := p.Transmit(context.Background(), TxHardReset, 0, nil); err != nil {
		t.Fatal(err)
	}
	if bus.bytes[regTxByteCnt] != 0 {
		t.Fatal("TX_BYTE_CNT written for a hard reset, want untouched")
	}
	want := transmitValue(TxHardReset, false)
	if bus.bytes[regTransmit] != want {
		t.Fatalf("TRANSMIT = %#x, want %#x", bus.bytes[regTransmit], want)
	}
}
