package tcpci

import (
	"context"

	"github.com/oxplot/go-tcpci/tcpcbus"
)

// access wraps the wait-exit-low-power / transfer / device-accessed sequence
// every register touch in the original driver performs (tcpc_write,
// tcpc_read, ...). When Config.LowPower is false, NewPort installs
// NopLowPowerCoordinator, so WaitExitLowPower and DeviceAccessed are no-ops.
func (p *Port) access(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.lp.WaitExitLowPower(ctx); err != nil {
		return err
	}
	err := fn(ctx)
	p.lp.DeviceAccessed()
	return err
}

func (p *Port) readByte(ctx context.Context, reg uint8) (v uint8, err error) {
	err = p.access(ctx, func(ctx context.Context) error {
		var e error
		v, e = p.bus.ReadByte(ctx, reg)
		return e
	})
	return
}

func (p *Port) writeByte(ctx context.Context, reg uint8, val uint8) error {
	return p.access(ctx, func(ctx context.Context) error {
		return p.bus.WriteByte(ctx, reg, val)
	})
}

func (p *Port) readWord(ctx context.Context, reg uint8) (v uint16, err error) {
	err = p.access(ctx, func(ctx context.Context) error {
		var e error
		v, e = p.bus.ReadWord(ctx, reg)
		return e
	})
	return
}

func (p *Port) writeWord(ctx context.Context, reg uint8, val uint16) error {
	return p.access(ctx, func(ctx context.Context) error {
		return p.bus.WriteWord(ctx, reg, val)
	})
}

func (p *Port) readBlock(ctx context.Context, reg uint8, data []byte) error {
	return p.access(ctx, func(ctx context.Context) error {
		return p.bus.ReadBlock(ctx, reg, data)
	})
}

func (p *Port) writeBlock(ctx context.Context, reg uint8, data []byte) error {
	return p.access(ctx, func(ctx context.Context) error {
		return p.bus.WriteBlock(ctx, reg, data)
	})
}

func (p *Port) xfer(ctx context.Context, out, in []byte, flags tcpcbus.XferFlag) error {
	return p.access(ctx, func(ctx context.Context) error {
		return p.bus.Xfer(ctx, out, in, flags)
	})
}

func (p *Port) updateMask(ctx context.Context, reg uint8, mask uint8, action tcpcbus.MaskAction) error {
	return p.access(ctx, func(ctx context.Context) error {
		return p.bus.UpdateMask(ctx, reg, mask, action)
	})
}
