package storage

// Change describes a modification of one persisted key.
type Change struct {
	Key     string
	Value   string
	Deleted bool
}

// Store is durable client-side key/value storage shared by every process ("tab") of one user.
type Store interface {
	// Get returns the value stored under key and whether it exists
	Get(key string) (string, bool, error)

	// Set stores value under key
	Set(key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Watch registers fn for changes made by other writers sharing the storage.
	// The returned function unregisters it.
	Watch(fn func(Change)) (cancel func())
}

// Locker is implemented by stores that can hold a named lock shared by every process
// using the same storage. Read-modify-write sequences take it to avoid lost updates.
type Locker interface {
	// Lock blocks until the named lock is held and returns the function releasing it.
	Lock(name string) (unlock func(), err error)
	// TryLock takes the named lock only when nobody holds it.
	TryLock(name string) (unlock func(), ok bool, err error)
}
