package queue

import (
	"encoding/json"
	"sync"

	ierrors "github.com/jrsteele09/granjas-console/internal/errors"
	"github.com/jrsteele09/granjas-console/storage"
	"github.com/pkg/errors"
)

// StorageKey is the storage key holding the queue as a JSON array.
const StorageKey = "pending_writes"

const replayLockName = StorageKey + "_replay"

var (
	_ Repo        = (*StoreRepo)(nil)
	_ ReplayGuard = (*StoreRepo)(nil)
)

// StoreRepo keeps the queue in a storage.Store so it survives restarts.
// Every operation reads the persisted array, so views opened by other processes stay consistent.
// When the store is a storage.Locker, each read-modify-write holds the store's lock so that
// processes sharing the storage never overwrite each other's changes.
type StoreRepo struct {
	store storage.Store
	lock  sync.Mutex
}

func NewStoreRepo(store storage.Store) *StoreRepo {
	return &StoreRepo{store: store}
}

func (r *StoreRepo) Append(w PendingWrite) error {
	unlock, err := r.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	list, err := r.load()
	if err != nil {
		return err
	}
	return r.save(append(list, w))
}

func (r *StoreRepo) List() ([]PendingWrite, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.load()
}

func (r *StoreRepo) Remove(id string) error {
	unlock, err := r.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	list, err := r.load()
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, w := range list {
		if w.ID != id {
			kept = append(kept, w)
		}
	}
	if len(kept) == len(list) {
		return nil
	}
	return r.save(kept)
}

func (r *StoreRepo) Replace(w PendingWrite) error {
	unlock, err := r.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	list, err := r.load()
	if err != nil {
		return err
	}
	for i := range list {
		if list[i].ID == w.ID {
			list[i] = w
			return r.save(list)
		}
	}
	return ierrors.Wrapf(ierrors.ErrPendingNotFound, "pending write %s", w.ID)
}

// TryAcquireReplay claims the right to replay for this process. It always succeeds on
// stores that cannot lock across processes.
func (r *StoreRepo) TryAcquireReplay() (func(), bool, error) {
	l, ok := r.store.(storage.Locker)
	if !ok {
		return func() {}, true, nil
	}
	release, ok, err := l.TryLock(replayLockName)
	if err != nil {
		return nil, false, errors.Wrap(err, "[StoreRepo.TryAcquireReplay] lock")
	}
	return release, ok, nil
}

// acquire takes the local mutex and, when available, the store-wide lock.
func (r *StoreRepo) acquire() (func(), error) {
	r.lock.Lock()
	l, ok := r.store.(storage.Locker)
	if !ok {
		return r.lock.Unlock, nil
	}
	release, err := l.Lock(StorageKey)
	if err != nil {
		r.lock.Unlock()
		return nil, errors.Wrap(err, "[StoreRepo.acquire] lock queue")
	}
	return func() {
		release()
		r.lock.Unlock()
	}, nil
}

func (r *StoreRepo) load() ([]PendingWrite, error) {
	raw, ok, err := r.store.Get(StorageKey)
	if err != nil {
		return nil, errors.Wrap(err, "[StoreRepo.load] read queue")
	}
	if !ok || raw == "" {
		return []PendingWrite{}, nil
	}
	var list []PendingWrite
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, errors.Wrap(err, "[StoreRepo.load] decode queue")
	}
	return list, nil
}

func (r *StoreRepo) save(list []PendingWrite) error {
	if len(list) == 0 {
		return errors.Wrap(r.store.Delete(StorageKey), "[StoreRepo.save] clear queue")
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return errors.Wrap(err, "[StoreRepo.save] encode queue")
	}
	return errors.Wrap(r.store.Set(StorageKey, string(raw)), "[StoreRepo.save] write queue")
}
