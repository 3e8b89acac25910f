// Package crud implements the load and mutate cycle shared by every management module.
package crud

import (
	"context"
	"sync"

	"github.com/jrsteele09/granjas-console/queue"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Connectivity reports the platform network state.
type Connectivity interface {
	IsNetworkOnline() bool
}

// Enqueuer stores a write for replay once the network returns.
type Enqueuer interface {
	EnqueueWrite(w queue.Write) (queue.PendingWrite, error)
}

type alwaysOnline struct{}

func (alwaysOnline) IsNetworkOnline() bool { return true }

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}

type Deps struct {
	Notifier  Notifier
	Confirmer Confirmer
	Network   Connectivity
	Queue     Enqueuer
}

// RefFunc fetches a reference list needed by forms, e.g. the farms a lot can belong to.
type RefFunc func(ctx context.Context) (any, error)

// RefOf adapts a typed list fetch to a RefFunc.
func RefOf[R any](fetch func(ctx context.Context) ([]R, error)) RefFunc {
	return func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}
}

// Controller holds one module's list and reference data.
type Controller[T any] struct {
	name  string
	list  func(ctx context.Context) ([]T, error)
	refs  map[string]RefFunc
	deps  Deps
	lock  sync.RWMutex
	items []T
	data  map[string]any
	ready bool

	busyLock sync.Mutex
	busy     map[string]struct{}
}

func NewController[T any](name string, list func(ctx context.Context) ([]T, error), deps Deps) *Controller[T] {
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Network == nil {
		deps.Network = alwaysOnline{}
	}
	return &Controller[T]{
		name: name,
		list: list,
		refs: make(map[string]RefFunc),
		deps: deps,
		data: make(map[string]any),
		busy: make(map[string]struct{}),
	}
}

// WithRef registers a reference list fetched alongside the primary list on every Load.
func (c *Controller[T]) WithRef(name string, fetch RefFunc) *Controller[T] {
	c.refs[name] = fetch
	return c
}

func (c *Controller[T]) Name() string {
	return c.name
}

// Load fetches the list and every reference concurrently and publishes them together once all
// have arrived. On any failure the previous state is kept and a single persistent notification
// offering a retry is raised.
func (c *Controller[T]) Load(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	var items []T
	g.Go(func() error {
		list, err := c.list(gctx)
		items = list
		return errors.Wrapf(err, "[%s] list", c.name)
	})

	results := make(map[string]any, len(c.refs))
	var resultsLock sync.Mutex
	for name, fetch := range c.refs {
		name, fetch := name, fetch
		g.Go(func() error {
			v, err := fetch(gctx)
			if err != nil {
				return errors.Wrapf(err, "[%s] load %s", c.name, name)
			}
			resultsLock.Lock()
			results[name] = v
			resultsLock.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Err(err).Str("module", c.name).Msg("load failed")
		c.deps.Notifier.Notify(Notification{
			Level:      LevelError,
			Message:    Message(err),
			Persistent: true,
			Err:        err,
			Retry:      c.Load,
		})
		return err
	}

	if items == nil {
		items = []T{}
	}
	c.lock.Lock()
	c.items = items
	c.data = results
	c.ready = true
	c.lock.Unlock()
	return nil
}

// Items returns a copy of the last successfully loaded list.
func (c *Controller[T]) Items() []T {
	c.lock.RLock()
	defer c.lock.RUnlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Loaded reports whether a Load has completed successfully.
func (c *Controller[T]) Loaded() bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.ready
}

func (c *Controller[T]) ref(name string) (any, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	v, ok := c.data[name]
	return v, ok
}

// Ref returns the named reference list of c as []R.
func Ref[R, T any](c *Controller[T], name string) []R {
	v, ok := c.ref(name)
	if !ok {
		return nil
	}
	list, _ := v.([]R)
	return list
}

// IsBusy reports whether a mutation with key is in flight.
func (c *Controller[T]) IsBusy(key string) bool {
	c.busyLock.Lock()
	defer c.busyLock.Unlock()
	_, ok := c.busy[key]
	return ok
}

func (c *Controller[T]) acquire(key string) bool {
	c.busyLock.Lock()
	defer c.busyLock.Unlock()
	if _, ok := c.busy[key]; ok {
		return false
	}
	c.busy[key] = struct{}{}
	return true
}

func (c *Controller[T]) release(key string) {
	c.busyLock.Lock()
	defer c.busyLock.Unlock()
	delete(c.busy, key)
}
