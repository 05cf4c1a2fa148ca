// Package tcpciadapt bridges the register-level github.com/oxplot/go-tcpci
// driver to the github.com/oxplot/go-tcpci typec.PortController interface, so
// a tcpe.PolicyEngine can drive a real TCPCI-compliant chip instead of the
// chip-specific drivers typec.PortController was originally designed around.
//
// The bridge relies on the chip's own hardware Atomic Message Sequence
// support (auto GoodCRC generation/collection, auto-retry on TRANSMIT) to
// satisfy typec.PortController's requirement that Tx block until the partner
// acknowledges or retries are exhausted; messages never appear in the
// receive ring as GoodCRC, since the chip consumes those itself.
package tcpciadapt

import (
	"context"
	"sync"
	"time"

	typec "github.com/oxplot/go-tcpci"
	"github.com/oxplot/go-tcpci/pdmsg"
	"github.com/oxplot/go-tcpci/tcpcbus"
	"github.com/oxplot/go-tcpci/tcpci"
)

// txTimeout bounds how long Tx waits for the chip's TX_SUCCESS/TX_FAILED
// alert before giving up and reporting typec.ErrTxFailed; the chip's own
// hardware retry/CRC timers are expected to resolve well within this.
const txTimeout = 100 * time.Millisecond

// Adapter wraps a single tcpci.Port as a typec.PortController.
type Adapter struct {
	port *tcpci.Port
	ctx  context.Context

	txResult chan bool

	mu       sync.Mutex
	events   typec.Event
	ccDirty  bool
	attached bool
}

// New constructs an Adapter and the tcpci.Port it wraps. cfg, bus and lp are
// passed straight through to tcpci.NewPort; the returned Adapter supplies
// itself as the Port's PDHooks, EventPoster and Charger.
func New(portNum int, cfg tcpci.Config, bus tcpcbus.Bus, lp tcpcbus.LowPowerCoordinator) *Adapter {
	a := &Adapter{
		ctx:      context.Background(),
		txResult: make(chan bool, 1),
	}
	a.port = tcpci.NewPort(portNum, cfg, bus, lp, a, a, a, tcpci.NopBoardHooks{})
	return a
}

// Port returns the underlying register-level driver, for callers that need
// operations typec.PortController does not expose (chip info, VBUS level).
func (a *Adapter) Port() *tcpci.Port { return a.port }

// Init implements typec.PortController.
func (a *Adapter) Init() error {
	if err := a.port.Init(a.ctx); err != nil {
		return err
	}
	if err := a.port.SetRxEnable(a.ctx, true); err != nil {
		return err
	}
	return a.port.SetCC(a.ctx, tcpci.PullRd, tcpci.RpUSB)
}

// Tx implements typec.PortController.
func (a *Adapter) Tx(m pdmsg.Message) error {
	select {
	case <-a.txResult:
	default:
	}

	n := m.DataObjectCount()
	data := make([]uint32, n)
	copy(data, m.Data[:n])

	if err := a.port.Transmit(a.ctx, tcpci.TxSOP, m.Header, data); err != nil {
		return typec.ErrTxFailed
	}

	select {
	case ok := <-a.txResult:
		if !ok {
			return typec.ErrTxFailed
		}
		return nil
	case <-time.After(txTimeout):
		return typec.ErrTxFailed
	}
}

// Rx implements typec.PortController.
func (a *Adapter) Rx() (pdmsg.Message, error) {
	header, data, _, ok := a.port.PendingMessage()
	if !ok {
		return pdmsg.Message{}, typec.ErrRxEmpty
	}
	var m pdmsg.Message
	m.Header = header
	copy(m.Data[:], data)
	return m, nil
}

// SendReset implements typec.PortController.
func (a *Adapter) SendReset() error {
	return a.port.Transmit(a.ctx, tcpci.TxHardReset, 0, nil)
}

// Alert implements typec.PortController: it polls the chip's ALERT register
// and translates whatever the tcpci alert handler aggregated into the
// typec.Event set the policy engine understands.
func (a *Adapter) Alert() (typec.Event, error) {
	a.port.Poll(a.ctx)

	a.mu.Lock()
	needCC := a.ccDirty
	a.ccDirty = false
	e := a.events
	a.events = 0
	a.mu.Unlock()

	if needCC {
		cc1, cc2, err := a.port.GetCC(a.ctx)
		if err != nil {
			return typec.EventNone, err
		}
		attached := cc1.Voltage() != tcpci.PullOpen || cc2.Voltage() != tcpci.PullOpen
		a.mu.Lock()
		was := a.attached
		a.attached = attached
		a.mu.Unlock()
		if attached && !was {
			e.Add(typec.EventAttached)
		} else if !attached && was {
			e.Add(typec.EventDetached)
		}
	}
	return e, nil
}

// TransmitComplete implements tcpci.PDHooks.
func (a *Adapter) TransmitComplete(port int, success bool) {
	select {
	case a.txResult <- success:
	default:
	}
}

// ExecuteHardReset implements tcpci.PDHooks.
func (a *Adapter) ExecuteHardReset(port int) {
	a.mu.Lock()
	a.events.Add(typec.EventResetReceived)
	a.mu.Unlock()
}

// GotFRSSignal implements tcpci.PDHooks. Fast role swap is not wired into
// the sink-only policy engine, so the signal is observed but not acted on.
func (a *Adapter) GotFRSSignal(port int) {}

// SetSuspend implements tcpci.PDHooks. The adapter has no separate task to
// suspend; the policy engine will simply stop seeing progress until the next
// successful Alert poll.
func (a *Adapter) SetSuspend(port int, suspend bool) {}

// DeferredResume implements tcpci.PDHooks.
func (a *Adapter) DeferredResume(port int) {}

// GetPolarity implements tcpci.PDHooks.
func (a *Adapter) GetPolarity(port int) tcpci.Polarity {
	return tcpci.PolarityNone
}

// SetEvent implements tcpci.EventPoster.
func (a *Adapter) SetEvent(port int, e tcpci.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e.Has(tcpci.EventCC) {
		a.ccDirty = true
	}
	if e.Has(tcpci.EventWake) {
		// A generic wake not already accounted for by CC or hard reset most
		// often means a message arrived; let the policy engine check Rx.
		a.events.Add(typec.EventRx)
	}
}

// VBUSChange implements tcpci.Charger.
func (a *Adapter) VBUSChange(port int, present bool) {
	a.mu.Lock()
	if present {
		a.events.Add(typec.EventAttached)
	} else {
		a.events.Add(typec.EventDetached)
	}
	a.mu.Unlock()
}
