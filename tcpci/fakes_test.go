package tcpci

import (
	"context"
	"sync"

	"github.com/oxplot/go-tcpci/tcpcbus"
)

// fakeBus is an in-memory register file used to exercise Port operations
// without real hardware, in the style of a table-driven chip simulator.
type fakeBus struct {
	mu      sync.Mutex
	bytes   map[uint8]uint8
	words   map[uint8]uint16
	blocks  map[uint8][]byte
	readErr map[uint8]error

	xferSegments [][]byte
	xferReply    []byte
	locked       bool

	readByteCount map[uint8]int
	readWordCount map[uint8]int
	alertWrites   []uint16
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		bytes:         map[uint8]uint8{},
		words:         map[uint8]uint16{},
		blocks:        map[uint8][]byte{},
		readErr:       map[uint8]error{},
		readByteCount: map[uint8]int{},
		readWordCount: map[uint8]int{},
	}
}

func (b *fakeBus) ReadByte(ctx context.Context, reg uint8) (uint8, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readByteCount[reg]++
	if err := b.readErr[reg]; err != nil {
		return 0, err
	}
	return b.bytes[reg], nil
}

func (b *fakeBus) WriteByte(ctx context.Context, reg uint8, val uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bytes[reg] = val
	return nil
}

func (b *fakeBus) ReadWord(ctx context.Context, reg uint8) (uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readWordCount[reg]++
	if err := b.readErr[reg]; err != nil {
		return 0, err
	}
	return b.words[reg], nil
}

// WriteWord models ALERT's write-1-to-clear semantics for regAlert; every
// other register is a plain store, matching how the rest of the register map
// behaves on real TCPCI silicon.
func (b *fakeBus) WriteWord(ctx context.Context, reg uint8, val uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if reg == regAlert {
		b.alertWrites = append(b.alertWrites, val)
		b.words[reg] &^= val
	} else {
		b.words[reg] = val
	}
	return nil
}

func (b *fakeBus) ReadBlock(ctx context.Context, reg uint8, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(data, b.blocks[reg])
	return nil
}

func (b *fakeBus) WriteBlock(ctx context.Context, reg uint8, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := append([]byte(nil), data...)
	b.blocks[reg] = cp
	return nil
}

func (b *fakeBus) Xfer(ctx context.Context, out, in []byte, flags tcpcbus.XferFlag) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if out != nil {
		b.xferSegments = append(b.xferSegments, append([]byte(nil), out...))
	}
	if in != nil {
		copy(in, b.xferReply)
	}
	return nil
}

func (b *fakeBus) UpdateMask(ctx context.Context, reg uint8, mask uint8, action tcpcbus.MaskAction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := b.bytes[reg]
	switch action {
	case tcpcbus.MaskSet:
		v |= mask
	case tcpcbus.MaskClear:
		v &^= mask
	case tcpcbus.MaskWrite:
		v = mask
	case tcpcbus.MaskToggle:
		v ^= mask
	}
	b.bytes[reg] = v
	return nil
}

func (b *fakeBus) Lock(ctx context.Context, locked bool) error {
	b.mu.Lock()
	b.locked = locked
	b.mu.Unlock()
	return nil
}

// fakeHooks records the PDHooks/EventPoster/Charger callbacks a Port makes.
type fakeHooks struct {
	mu sync.Mutex

	events       []Event
	txResults    []bool
	hardResets   int
	suspendCalls []bool
	vbusChanges  []bool
	frsSignals   int
}

func (h *fakeHooks) TransmitComplete(port int, success bool) {
	h.mu.Lock()
	h.txResults = append(h.txResults, success)
	h.mu.Unlock()
}

func (h *fakeHooks) ExecuteHardReset(port int) {
	h.mu.Lock()
	h.hardResets++
	h.mu.Unlock()
}

func (h *fakeHooks) GotFRSSignal(port int) {
	h.mu.Lock()
	h.frsSignals++
	h.mu.Unlock()
}

func (h *fakeHooks) SetSuspend(port int, suspend bool) {
	h.mu.Lock()
	h.suspendCalls = append(h.suspendCalls, suspend)
	h.mu.Unlock()
}

func (h *fakeHooks) DeferredResume(port int) {}

func (h *fakeHooks) GetPolarity(port int) Polarity { return PolarityNone }

func (h *fakeHooks) SetEvent(port int, e Event) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
}

func (h *fakeHooks) VBUSChange(port int, present bool) {
	h.mu.Lock()
	h.vbusChanges = append(h.vbusChanges, present)
	h.mu.Unlock()
}

func newTestPort(cfg Config, bus tcpcbus.Bus, hooks *fakeHooks) *Port {
	return NewPort(0, cfg, bus, nil, hooks, hooks, hooks, NopBoardHooks{})
}
