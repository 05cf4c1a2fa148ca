// Package periphbus provides the Linux-host half of running the tcpci
// driver against a real chip: a tcpcbus.LowPowerCoordinator that waits for
// the TCPC's ALERT/INT_N line via a sysfs GPIO value file. Register access
// itself goes through tcpcbus/i2cbus, since periph.io's i2c.Bus already
// satisfies the narrow transport interface that package expects.
package periphbus

import (
	"context"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// AttentionWaiter implements tcpcbus.LowPowerCoordinator by polling a sysfs
// GPIO value file for the falling edge of the TCPC's open-drain ALERT/INT_N
// line, the common way to wait for a wake/attention signal from userspace on
// Linux without a dedicated driver.
type AttentionWaiter struct {
	f *os.File
}

// OpenAttentionWaiter opens a GPIO value file already exported via
// /sys/class/gpio with its edge attribute set to "falling".
func OpenAttentionWaiter(valuePath string) (*AttentionWaiter, error) {
	f, err := os.OpenFile(valuePath, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	return &AttentionWaiter{f: f}, nil
}

func (w *AttentionWaiter) WaitExitLowPower(ctx context.Context) error {
	fds := []unix.PollFd{{Fd: int32(w.f.Fd()), Events: unix.POLLPRI | unix.POLLERR}}
	timeoutMS := -1
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			timeoutMS = int(d.Milliseconds())
		} else {
			timeoutMS = 0
		}
	}
	_, err := unix.Poll(fds, timeoutMS)
	return err
}

func (w *AttentionWaiter) DeviceAccessed() {}

func (w *AttentionWaiter) Close() error { return w.f.Close() }
