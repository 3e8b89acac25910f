package memstore

import (
	"sync"

	"github.com/jrsteele09/granjas-console/storage"
)

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Locker = (*Store)(nil)
)

// Shared is the in-memory backing shared by several Store views, each view playing
// the part of one open tab.
type Shared struct {
	lock  sync.RWMutex
	data  map[string]string
	tabs  map[*Store]struct{}
	locks map[string]*sync.Mutex
}

func NewShared() *Shared {
	return &Shared{
		data:  make(map[string]string),
		tabs:  make(map[*Store]struct{}),
		locks: make(map[string]*sync.Mutex),
	}
}

// New returns a single view over a fresh backing.
func New() *Store {
	return NewShared().Tab()
}

// Tab opens a new view. Writes through a view notify the watchers of every other view.
func (s *Shared) Tab() *Store {
	s.lock.Lock()
	defer s.lock.Unlock()

	t := &Store{
		shared:   s,
		watchers: make(map[int]func(storage.Change)),
	}
	s.tabs[t] = struct{}{}
	return t
}

type Store struct {
	shared   *Shared
	lock     sync.Mutex
	watchers map[int]func(storage.Change)
	nextID   int
}

func (t *Store) Get(key string) (string, bool, error) {
	t.shared.lock.RLock()
	defer t.shared.lock.RUnlock()

	v, ok := t.shared.data[key]
	return v, ok, nil
}

func (t *Store) Set(key, value string) error {
	t.shared.lock.Lock()
	t.shared.data[key] = value
	others := t.othersLocked()
	t.shared.lock.Unlock()

	for _, o := range others {
		o.notify(storage.Change{Key: key, Value: value})
	}
	return nil
}

func (t *Store) Delete(key string) error {
	t.shared.lock.Lock()
	_, existed := t.shared.data[key]
	delete(t.shared.data, key)
	others := t.othersLocked()
	t.shared.lock.Unlock()

	if !existed {
		return nil
	}
	for _, o := range others {
		o.notify(storage.Change{Key: key, Deleted: true})
	}
	return nil
}

func (t *Store) Watch(fn func(storage.Change)) func() {
	t.lock.Lock()
	defer t.lock.Unlock()

	id := t.nextID
	t.nextID++
	t.watchers[id] = fn
	return func() {
		t.lock.Lock()
		defer t.lock.Unlock()
		delete(t.watchers, id)
	}
}

// Lock holds the named lock across every view of the shared backing.
func (t *Store) Lock(name string) (func(), error) {
	m := t.shared.mutex(name)
	m.Lock()
	return m.Unlock, nil
}

func (t *Store) TryLock(name string) (func(), bool, error) {
	m := t.shared.mutex(name)
	if !m.TryLock() {
		return nil, false, nil
	}
	return m.Unlock, true, nil
}

func (s *Shared) mutex(name string) *sync.Mutex {
	s.lock.Lock()
	defer s.lock.Unlock()
	m, ok := s.locks[name]
	if !ok {
		m = &sync.Mutex{}
		s.locks[name] = m
	}
	return m
}

// Close detaches the view; it stops receiving changes.
func (t *Store) Close() {
	t.shared.lock.Lock()
	defer t.shared.lock.Unlock()
	delete(t.shared.tabs, t)
}

func (t *Store) othersLocked() []*Store {
	others := make([]*Store, 0, len(t.shared.tabs))
	for o := range t.shared.tabs {
		if o != t {
			others = append(others, o)
		}
	}
	return others
}

func (t *Store) notify(c storage.Change) {
	t.lock.Lock()
	fns := make([]func(storage.Change), 0, len(t.watchers))
	for _, fn := range t.watchers {
		fns = append(fns, fn)
	}
	t.lock.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
