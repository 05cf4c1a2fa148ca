package tcpci

import (
	"context"
	"sync"

	"github.com/oxplot/go-tcpci/tcpcbus"
)

// Port holds one TCPC port's driver state: the chip-cannot-tell-us-this
// shadow fields the original driver keeps because some chips cannot report
// their own commanded pull/Rp/Vconn/RX-enable state, plus the received
// message ring and chip-info cache.
//
// A Port is not safe for concurrent use by more than one caller issuing
// Operations at a time, matching the original driver's one-PD-task-per-port
// model; the alert handler is the one place two contexts (interrupt and
// task) touch the same Port concurrently, and the state it shares with the
// task (the ring and the VBUS shadow) is accessed under p.mu.
type Port struct {
	num int

	cfg  Config
	bus  tcpcbus.Bus
	lp   tcpcbus.LowPowerCoordinator
	pd   PDHooks
	evt  EventPoster
	chg  Charger
	brd  BoardHooks

	mu sync.Mutex

	cachedRp     RpValue
	cachedPull   Pull
	vbusPresent  bool
	vconnEnabled bool
	rxEnabled    bool
	suspended    bool

	failedRxReads int

	chipInfo       ChipInfo
	chipInfoCached bool

	rx *messageRing
}

// NewPort constructs a driver instance for one physical TCPC port. evt and
// pd must not be nil; chg and brd may be nil, in which case VBUS-present
// notifications and board callbacks become no-ops. lp is used only when
// cfg.LowPower is set.
func NewPort(num int, cfg Config, bus tcpcbus.Bus, lp tcpcbus.LowPowerCoordinator, pd PDHooks, evt EventPoster, chg Charger, brd BoardHooks) *Port {
	if lp == nil || !cfg.LowPower {
		lp = tcpcbus.NopLowPowerCoordinator{}
	}
	if chg == nil {
		chg = noopCharger{}
	}
	if brd == nil {
		brd = NopBoardHooks{}
	}
	return &Port{
		num:        num,
		cfg:        cfg,
		bus:        bus,
		lp:         lp,
		pd:         pd,
		evt:        evt,
		chg:        chg,
		brd:        brd,
		cachedPull: PullOpen,
		rx:         newMessageRing(cfg.ringCapacity()),
	}
}

// Poll runs one pass of the interrupt-driven alert algorithm for this port.
// Callers wire this to their interrupt/GPIO edge dispatch, or call it
// periodically for chips without a usable attention line.
func (p *Port) Poll(ctx context.Context) {
	p.handleAlert(ctx)
}

// Manager owns a fixed array of ports, mirroring the original driver's
// tcpc_config_t[CONFIG_USB_PD_PORT_MAX_COUNT] global table.
type Manager struct {
	ports []*Port
}

// NewManager wraps a set of already-constructed ports for lookup by index.
func NewManager(ports ...*Port) *Manager {
	return &Manager{ports: ports}
}

// Port returns the port at the given index, or nil if out of range.
func (m *Manager) Port(num int) *Port {
	if num < 0 || num >= len(m.ports) {
		return nil
	}
	return m.ports[num]
}

// Alert runs the alert handler for the given port; callers wire this to
// their interrupt/GPIO edge dispatch.
func (m *Manager) Alert(ctx context.Context, num int) {
	if p := m.Port(num); p != nil {
		p.handleAlert(ctx)
	}
}
