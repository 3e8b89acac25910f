// Package connectivity tracks network and backend availability as two independent signals
// and triggers a sync when both come back while a session is active.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"
)

type Reachability int

const (
	Unknown Reachability = iota
	Reachable
	Unreachable
)

func (r Reachability) String() string {
	switch r {
	case Reachable:
		return "reachable"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

type Status struct {
	NetworkOnline    bool         `json:"network_online"`
	BackendReachable Reachability `json:"backend_reachable"`
}

// Up reports whether both the network and the backend are available.
func (s Status) Up() bool {
	return s.NetworkOnline && s.BackendReachable == Reachable
}

// Prober checks the backend health endpoint. It must honour ctx cancellation.
type Prober interface {
	Probe(ctx context.Context) bool
}

type ProberFunc func(ctx context.Context) bool

func (f ProberFunc) Probe(ctx context.Context) bool {
	return f(ctx)
}

type MonitorOption func(*Monitor)

func WithProbeTimeout(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.probeTimeout = d }
}

// WithProbeInterval sets the period of background probes while the backend is reachable.
func WithProbeInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.probeInterval = d }
}

// WithDebounce sets how long the network must stay online before a reconnect is acted on.
func WithDebounce(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.debounce = d }
}

// WithSessionCheck sets the predicate gating the reconnect hook.
func WithSessionCheck(active func() bool) MonitorOption {
	return func(m *Monitor) { m.sessionActive = active }
}

// WithReconnectHook sets the function run when network and backend recover with an active session.
func WithReconnectHook(fn func(ctx context.Context)) MonitorOption {
	return func(m *Monitor) { m.onReconnect = fn }
}

// WithBackoff sets the re-probe schedule used while the backend is unreachable.
func WithBackoff(b *backoff.Backoff) MonitorOption {
	return func(m *Monitor) { m.backoff = b }
}

type Monitor struct {
	network       NetworkSignal
	prober        Prober
	probeTimeout  time.Duration
	probeInterval time.Duration
	debounce      time.Duration
	sessionActive func() bool
	onReconnect   func(ctx context.Context)
	backoff       *backoff.Backoff

	lock    sync.Mutex
	backend Reachability
	up      bool // last reconnect decision; the hook fires only on a false->true change
	timer   *time.Timer
	gen     uint64
	subs    map[int]func(Status)
	nextSub int

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	wake        chan struct{}
	wg          sync.WaitGroup
}

func NewMonitor(network NetworkSignal, prober Prober, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		network:       network,
		prober:        prober,
		probeTimeout:  3 * time.Second,
		probeInterval: 30 * time.Second,
		debounce:      1500 * time.Millisecond,
		sessionActive: func() bool { return true },
		subs:          make(map[int]func(Status)),
		wake:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.backoff == nil {
		m.backoff = &backoff.Backoff{Min: time.Second, Max: m.probeInterval, Factor: 2, Jitter: true}
	}
	return m
}

func (m *Monitor) IsNetworkOnline() bool {
	return m.network.Online()
}

// ProbeBackend checks the backend, bounded by the probe timeout. A timeout or any probe
// failure counts as unreachable; it never returns an error.
func (m *Monitor) ProbeBackend(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	result := make(chan bool, 1)
	go func() { result <- m.prober.Probe(ctx) }()

	ok := false
	select {
	case ok = <-result:
	case <-ctx.Done():
	}
	if ctx.Err() != nil {
		ok = false
	}

	if ok {
		m.setBackend(Reachable)
	} else {
		m.setBackend(Unreachable)
	}
	return ok
}

func (m *Monitor) Status() Status {
	m.lock.Lock()
	defer m.lock.Unlock()
	return Status{NetworkOnline: m.network.Online(), BackendReachable: m.backend}
}

// Subscribe registers fn for every status change. The returned function unregisters it.
func (m *Monitor) Subscribe(fn func(Status)) func() {
	m.lock.Lock()
	defer m.lock.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.lock.Lock()
		defer m.lock.Unlock()
		delete(m.subs, id)
	}
}

// Start listens to the network signal, probes the backend once and keeps probing in the background.
func (m *Monitor) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.unsubscribe = m.network.Subscribe(m.onNetworkChange)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if m.network.Online() {
			m.settle(m.currentGen())
		}
		m.loop()
	}()
}

func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.unsubscribe()
	m.cancel()
	m.lock.Lock()
	m.gen++
	m.stopTimerLocked()
	m.lock.Unlock()
	m.wg.Wait()
}

func (m *Monitor) onNetworkChange(online bool) {
	if !online {
		log.Warn().Msg("network offline")
		m.lock.Lock()
		m.gen++
		m.stopTimerLocked()
		m.up = false
		m.lock.Unlock()
		m.setBackend(Unreachable)
		return
	}
	log.Info().Dur("debounce", m.debounce).Msg("network online")
	m.scheduleSettle()
	m.notify()
}

// scheduleSettle (re)starts the debounce window. Only the latest window is acted on.
func (m *Monitor) scheduleSettle() {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.ctx == nil || m.ctx.Err() != nil {
		return
	}
	m.gen++
	gen := m.gen
	m.stopTimerLocked()
	m.wg.Add(1)
	m.timer = time.AfterFunc(m.debounce, func() {
		defer m.wg.Done()
		m.settle(gen)
	})
}

// stopTimerLocked cancels a pending debounce window. A timer stopped before firing never runs
// its function, so its WaitGroup slot is released here.
func (m *Monitor) stopTimerLocked() {
	if m.timer != nil && m.timer.Stop() {
		m.wg.Done()
	}
	m.timer = nil
}

func (m *Monitor) currentGen() uint64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.gen
}

func (m *Monitor) settle(gen uint64) {
	if gen != m.currentGen() || !m.network.Online() {
		return
	}
	if !m.ProbeBackend(m.ctx) {
		m.kick()
		return
	}

	m.lock.Lock()
	fire := gen == m.gen && !m.up
	if fire {
		m.up = true
	}
	m.lock.Unlock()

	if !fire {
		return
	}
	if !m.sessionActive() {
		log.Debug().Msg("connectivity restored without an active session, skipping sync")
		return
	}
	if m.onReconnect != nil {
		log.Info().Msg("connectivity restored, syncing pending writes")
		m.onReconnect(m.ctx)
	}
}

// loop probes periodically, and on a backoff schedule while the backend is unreachable.
func (m *Monitor) loop() {
	for {
		wait := m.probeInterval
		if m.network.Online() && m.Status().BackendReachable != Reachable {
			wait = m.backoff.Duration()
		} else {
			m.backoff.Reset()
		}

		t := time.NewTimer(wait)
		select {
		case <-m.ctx.Done():
			t.Stop()
			return
		case <-m.wake:
			t.Stop()
			continue
		case <-t.C:
		}

		if !m.network.Online() {
			continue
		}
		ok := m.ProbeBackend(m.ctx)
		m.lock.Lock()
		recovered := ok && !m.up
		m.lock.Unlock()
		if recovered {
			m.scheduleSettle()
		}
	}
}

// kick makes the loop recompute its wait, so a failed probe switches it to the backoff schedule.
func (m *Monitor) kick() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Monitor) setBackend(r Reachability) {
	m.lock.Lock()
	changed := m.backend != r
	m.backend = r
	if r != Reachable {
		m.up = false
	}
	m.lock.Unlock()
	if changed {
		log.Info().Stringer("backend", r).Msg("backend reachability changed")
		m.notify()
	}
}

func (m *Monitor) notify() {
	st := m.Status()
	m.lock.Lock()
	subs := make([]func(Status), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.lock.Unlock()
	for _, fn := range subs {
		fn(st)
	}
}
