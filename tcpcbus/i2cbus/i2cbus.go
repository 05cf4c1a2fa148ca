// Package i2cbus implements tcpcbus.Bus over I2C, the narrow single-Tx
// interface shared by periph.io's i2c.Bus and tinygo.org/x/drivers.I2C: both
// already satisfy it structurally without declaring so, which lets the same
// adapter run unmodified on a Linux host or a microcontroller target.
package i2cbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/oxplot/go-tcpci/tcpcbus"
)

// I2C is the minimal transport a TCPC register bus needs: one combined
// write-then-read transfer, safe for concurrent use, with a nil w or r
// skipping that half of the transfer. periph.io's conn/i2c.Bus and
// tinygo.org/x/drivers.I2C both implement this method set already.
type I2C interface {
	Tx(addr uint16, w, r []byte) error
}

// Bus implements tcpcbus.Bus over an I2C transport addressed at a single
// 7-bit address.
type Bus struct {
	i2c  I2C
	addr uint16

	mu      sync.Mutex
	pending []byte
}

// New wraps an I2C transport for the TCPC at addr. i2c may be a periph.io
// i2c.Bus (e.g. from periph.io/x/conn/v3/i2c/i2creg.Open) or a configured
// tinygo.org/x/drivers.I2C/machine.I2C value.
func New(i2c I2C, addr uint16) *Bus {
	return &Bus{i2c: i2c, addr: addr, pending: make([]byte, 0, 32)}
}

func (b *Bus) ReadByte(ctx context.Context, reg uint8) (uint8, error) {
	var r [1]byte
	if err := b.i2c.Tx(b.addr, []byte{reg}, r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

func (b *Bus) WriteByte(ctx context.Context, reg uint8, val uint8) error {
	return b.i2c.Tx(b.addr, []byte{reg, val}, nil)
}

func (b *Bus) ReadWord(ctx context.Context, reg uint8) (uint16, error) {
	var r [2]byte
	if err := b.i2c.Tx(b.addr, []byte{reg}, r[:]); err != nil {
		return 0, err
	}
	return uint16(r[0]) | uint16(r[1])<<8, nil
}

func (b *Bus) WriteWord(ctx context.Context, reg uint8, val uint16) error {
	return b.i2c.Tx(b.addr, []byte{reg, byte(val), byte(val >> 8)}, nil)
}

func (b *Bus) ReadBlock(ctx context.Context, reg uint8, data []byte) error {
	return b.i2c.Tx(b.addr, []byte{reg}, data)
}

func (b *Bus) WriteBlock(ctx context.Context, reg uint8, data []byte) error {
	w := make([]byte, 1+len(data))
	w[0] = reg
	copy(w[1:], data)
	return b.i2c.Tx(b.addr, w, nil)
}

// Xfer buffers segments between XferStart and XferStop and issues a single
// Tx at XferStop, since I2C offers no repeated-start primitive below a
// single Tx call.
func (b *Bus) Xfer(ctx context.Context, out, in []byte, flags tcpcbus.XferFlag) error {
	if flags&tcpcbus.XferStart != 0 {
		b.pending = append(b.pending[:0], out...)
	} else {
		b.pending = append(b.pending, out...)
	}
	if flags&tcpcbus.XferStop != 0 {
		err := b.i2c.Tx(b.addr, b.pending, in)
		b.pending = b.pending[:0]
		return err
	}
	return nil
}

func (b *Bus) UpdateMask(ctx context.Context, reg uint8, mask uint8, action tcpcbus.MaskAction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, err := b.ReadByte(ctx, reg)
	if err != nil {
		return err
	}
	switch action {
	case tcpcbus.MaskSet:
		v |= mask
	case tcpcbus.MaskClear:
		v &^= mask
	case tcpcbus.MaskWrite:
		v = mask
	case tcpcbus.MaskToggle:
		v ^= mask
	default:
		return fmt.Errorf("i2cbus: unknown mask action %d", action)
	}
	return b.WriteByte(ctx, reg, v)
}

// Lock holds the Bus mutex around a multi-segment transfer, excluding other
// Lock holders and UpdateMask; plain byte, word and block accesses do not
// take the mutex.
func (b *Bus) Lock(ctx context.Context, locked bool) error {
	if locked {
		b.mu.Lock()
	} else {
		b.mu.Unlock()
	}
	return nil
}
