package connectivity

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// NetworkSignal reports whether the host has network connectivity, the way a browser's
// online/offline events do. It says nothing about the backend.
type NetworkSignal interface {
	Online() bool
	// Subscribe registers fn for every online/offline change. The returned function unregisters it.
	Subscribe(fn func(online bool)) (cancel func())
}

var _ NetworkSignal = (*ManualSignal)(nil)

// ManualSignal is a NetworkSignal driven by explicit Set calls.
type ManualSignal struct {
	lock   sync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int
}

func NewManualSignal(online bool) *ManualSignal {
	return &ManualSignal{online: online, subs: make(map[int]func(bool))}
}

func (s *ManualSignal) Online() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.online
}

// Set changes the state and notifies subscribers when it actually changed.
func (s *ManualSignal) Set(online bool) {
	s.lock.Lock()
	if s.online == online {
		s.lock.Unlock()
		return
	}
	s.online = online
	subs := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.lock.Unlock()

	for _, fn := range subs {
		fn(online)
	}
}

func (s *ManualSignal) Subscribe(fn func(bool)) func() {
	s.lock.Lock()
	defer s.lock.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.lock.Lock()
		defer s.lock.Unlock()
		delete(s.subs, id)
	}
}

// DialSignal derives the online state from periodically opening a TCP connection to addr.
type DialSignal struct {
	*ManualSignal
	addr     string
	interval time.Duration
	dialer   net.Dialer
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewDialSignal starts out online; the first check happens on Start.
func NewDialSignal(addr string, interval, timeout time.Duration) *DialSignal {
	return &DialSignal{
		ManualSignal: NewManualSignal(true),
		addr:         addr,
		interval:     interval,
		dialer:       net.Dialer{Timeout: timeout},
	}
}

// Check dials once and updates the state.
func (d *DialSignal) Check(ctx context.Context) bool {
	conn, err := d.dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		if ctx.Err() != nil {
			return d.Online()
		}
		log.Debug().Err(err).Str("addr", d.addr).Msg("network check failed")
		d.Set(false)
		return false
	}
	_ = conn.Close()
	d.Set(true)
	return true
}

func (d *DialSignal) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			d.Check(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (d *DialSignal) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}
