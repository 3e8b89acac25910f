package crud

import (
	"context"

	ierrors "github.com/jrsteele09/granjas-console/internal/errors"
	"github.com/jrsteele09/granjas-console/queue"
	"github.com/rs/zerolog/log"
)

type Outcome int

const (
	NotApplied Outcome = iota
	Applied
	Queued
)

// Mutation is one create, update, delete or domain action on the backend.
type Mutation[T any] struct {
	// Key identifies the operation and resource, e.g. "delete:labor:42". A second mutation
	// with the same key is refused while the first is in flight.
	Key string
	// Confirm, when set, is shown to the user before anything is sent.
	Confirm string
	// Do performs the network call.
	Do func(ctx context.Context) error
	// Offline, when set, is queued instead of calling Do while the network is offline.
	Offline *queue.Write
	// Apply merges the server's answer into the list after Do succeeds.
	Apply func(items []T) []T
	// Reload refreshes the whole list after Do succeeds.
	Reload bool
	// Success is the message shown when the mutation is applied.
	Success string
}

// Mutate runs m. State only changes after the backend confirmed the write; nothing is applied
// optimistically. Every failure raises exactly one notification. Double submits return ErrBusy
// and cancelled confirmations return ErrCancelled; neither is notified.
func (c *Controller[T]) Mutate(ctx context.Context, m Mutation[T]) (Outcome, error) {
	if m.Key != "" {
		if !c.acquire(m.Key) {
			return NotApplied, ierrors.Wrapf(ierrors.ErrBusy, "%s", m.Key)
		}
		defer c.release(m.Key)
	}

	if m.Confirm != "" {
		ok, err := c.confirm(ctx, m.Confirm)
		if err != nil {
			c.fail(m, err)
			return NotApplied, err
		}
		if !ok {
			return NotApplied, ierrors.ErrCancelled
		}
	}

	if !c.deps.Network.IsNetworkOnline() {
		if m.Offline != nil {
			return c.enqueue(m)
		}
		err := ierrors.Wrapf(ierrors.ErrNetwork, "%s while offline", m.Key)
		c.fail(m, err)
		return NotApplied, err
	}

	if err := m.Do(ctx); err != nil {
		// The network may have dropped while the request was in flight.
		if m.Offline != nil && ierrors.Is(err, ierrors.ErrNetwork) && !c.deps.Network.IsNetworkOnline() {
			return c.enqueue(m)
		}
		c.fail(m, err)
		return NotApplied, err
	}

	if m.Apply != nil {
		c.lock.Lock()
		c.items = m.Apply(c.items)
		c.lock.Unlock()
	}
	if m.Success != "" {
		c.deps.Notifier.Notify(Notification{Level: LevelSuccess, Message: m.Success})
	}
	if m.Reload {
		// A failed reload raises its own persistent load error.
		_ = c.Load(ctx)
	}
	return Applied, nil
}

func (c *Controller[T]) confirm(ctx context.Context, prompt string) (bool, error) {
	if c.deps.Confirmer == nil {
		return false, ierrors.Wrapf(ierrors.ErrInternal, "no confirmer configured for %q", prompt)
	}
	return c.deps.Confirmer.Confirm(ctx, prompt)
}

func (c *Controller[T]) enqueue(m Mutation[T]) (Outcome, error) {
	if c.deps.Queue == nil {
		err := ierrors.Wrapf(ierrors.ErrNetwork, "%s while offline", m.Key)
		c.fail(m, err)
		return NotApplied, err
	}
	if _, err := c.deps.Queue.EnqueueWrite(*m.Offline); err != nil {
		c.fail(m, err)
		return NotApplied, err
	}
	c.deps.Notifier.Notify(Notification{
		Level:   LevelInfo,
		Message: "Sin conexión: el cambio se guardó y se enviará al recuperar la conexión.",
	})
	return Queued, nil
}

func (c *Controller[T]) fail(m Mutation[T], err error) {
	log.Err(err).Str("module", c.name).Str("key", m.Key).Msg("mutation failed")
	c.deps.Notifier.Notify(Notification{Level: LevelError, Message: Message(err), Err: err})
}
