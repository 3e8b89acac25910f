package queue

// Repo persists pending writes in insertion order.
type Repo interface {
	Append(w PendingWrite) error
	List() ([]PendingWrite, error)
	// Remove deletes the write with id. Removing a missing id is not an error.
	Remove(id string) error
	// Replace swaps the write with w.ID for w, keeping its position.
	Replace(w PendingWrite) error
}

// ReplayGuard is implemented by repos shared between processes. Only the holder of the
// guard replays, so two processes never send the same write concurrently.
type ReplayGuard interface {
	TryAcquireReplay() (release func(), ok bool, err error)
}
