package repofake

import (
	"sync"

	ierrors "github.com/jrsteele09/granjas-console/internal/errors"
	"github.com/jrsteele09/granjas-console/queue"
)

var _ queue.Repo = (*FakeQueueRepo)(nil)

// FakeQueueRepo is an in-memory queue.Repo. AppendErr, when set, fails every Append.
type FakeQueueRepo struct {
	writes    []queue.PendingWrite
	lock      sync.RWMutex
	AppendErr error
}

func NewFakeQueueRepo() *FakeQueueRepo {
	return &FakeQueueRepo{}
}

func (r *FakeQueueRepo) Append(w queue.PendingWrite) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.AppendErr != nil {
		return r.AppendErr
	}
	r.writes = append(r.writes, w)
	return nil
}

func (r *FakeQueueRepo) List() ([]queue.PendingWrite, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make([]queue.PendingWrite, len(r.writes))
	copy(out, r.writes)
	return out, nil
}

func (r *FakeQueueRepo) Remove(id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for i, w := range r.writes {
		if w.ID == id {
			r.writes = append(r.writes[:i], r.writes[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *FakeQueueRepo) Replace(w queue.PendingWrite) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for i := range r.writes {
		if r.writes[i].ID == w.ID {
			r.writes[i] = w
			return nil
		}
	}
	return ierrors.ErrPendingNotFound
}
