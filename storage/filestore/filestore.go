package filestore

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/jrsteele09/granjas-console/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Locker = (*Store)(nil)
)

const (
	tmpPrefix  = ".tmp-"
	lockSuffix = ".lock"
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9_.-]*$`)

// Store keeps one file per key in a directory. Every process opening the same
// directory shares the values, and file system events propagate changes between them.
type Store struct {
	dir string

	lock     sync.Mutex
	watchers map[int]func(storage.Change)
	nextID   int
	watcher  *fsnotify.Watcher
	lastSeen map[string]string // key -> value last reported to watchers
	done     chan struct{}
}

// Open creates dir if needed and returns a store over it.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, os.FileMode(0o700)); err != nil {
		return nil, errors.Wrapf(err, "[filestore.Open] create storage folder %s", dir)
	}
	return &Store{
		dir:      dir,
		watchers: make(map[int]func(storage.Change)),
		lastSeen: make(map[string]string),
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", errors.Errorf("[Store.path] invalid storage key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}

func (s *Store) Get(key string) (string, bool, error) {
	p, err := s.path(key)
	if err != nil {
		return "", false, err
	}
	buf, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "[Store.Get] read %s", key)
	}
	return string(buf), true, nil
}

// Set writes the value to a temporary file and renames it over the key so readers
// never observe a partial value.
func (s *Store) Set(key, value string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(s.dir, tmpPrefix+key+"-*")
	if err != nil {
		return errors.Wrapf(err, "[Store.Set] create temp file for %s", key)
	}
	tmp := f.Name()
	renamed := false
	defer func() {
		if !renamed {
			os.Remove(tmp)
		}
	}()

	if _, err := f.WriteString(value); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, os.FileMode(0o600)); err != nil {
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		return errors.Wrapf(err, "[Store.Set] replace %s", key)
	}
	renamed = true
	return nil
}

func (s *Store) Delete(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "[Store.Delete] remove %s", key)
	}
	return nil
}

// Lock takes an advisory file lock named after name inside the directory. It excludes
// every other holder, including other Stores opened on the same directory in this process.
func (s *Store) Lock(name string) (func(), error) {
	fl, err := s.flock(name)
	if err != nil {
		return nil, err
	}
	if err := fl.Lock(); err != nil {
		return nil, errors.Wrapf(err, "[Store.Lock] lock %s", name)
	}
	return release(fl), nil
}

func (s *Store) TryLock(name string) (func(), bool, error) {
	fl, err := s.flock(name)
	if err != nil {
		return nil, false, err
	}
	ok, err := fl.TryLock()
	if err != nil {
		return nil, false, errors.Wrapf(err, "[Store.TryLock] lock %s", name)
	}
	if !ok {
		return nil, false, nil
	}
	return release(fl), true, nil
}

// flock returns a fresh lock handle; each handle opens its own descriptor so that
// concurrent holders in one process exclude each other too.
func (s *Store) flock(name string) (*flock.Flock, error) {
	if !validKey.MatchString(name) {
		return nil, errors.Errorf("[Store.flock] invalid lock name %q", name)
	}
	return flock.New(filepath.Join(s.dir, "."+name+lockSuffix)), nil
}

func release(fl *flock.Flock) func() {
	return func() {
		if err := fl.Unlock(); err != nil {
			log.Err(err).Str("lock", fl.Path()).Msg("unable to release storage lock")
		}
	}
}

// Watch registers fn for changes to any key. Changes are reported for every writer,
// including this Store; a value is reported once even when the OS emits several events.
func (s *Store) Watch(fn func(storage.Change)) func() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.watcher == nil {
		if err := s.startLocked(); err != nil {
			log.Err(err).Str("dir", s.dir).Msg("storage watch unavailable")
		}
	}

	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	return func() {
		s.lock.Lock()
		defer s.lock.Unlock()
		delete(s.watchers, id)
	}
}

// Close stops watching the directory.
func (s *Store) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.watcher == nil {
		return nil
	}
	close(s.done)
	err := s.watcher.Close()
	s.watcher = nil
	return err
}

func (s *Store) startLocked() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return err
	}

	entries, err := os.ReadDir(s.dir)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if v, ok, err := s.Get(e.Name()); err == nil && ok {
				s.lastSeen[e.Name()] = v
			}
		}
	}

	s.watcher = w
	s.done = make(chan struct{})
	go s.loop(w, s.done)
	return nil
}

func (s *Store) loop(w *fsnotify.Watcher, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			s.handle(event)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Err(err).Str("dir", s.dir).Msg("storage watch error")
		}
	}
}

func (s *Store) handle(event fsnotify.Event) {
	key := filepath.Base(event.Name)
	if strings.HasPrefix(key, ".") || !validKey.MatchString(key) {
		return
	}

	value, exists, err := s.Get(key)
	if err != nil {
		log.Err(err).Str("key", key).Msg("storage read after change failed")
		return
	}

	s.lock.Lock()
	previous, seen := s.lastSeen[key]
	var change storage.Change
	switch {
	case !exists && !seen:
		s.lock.Unlock()
		return
	case !exists:
		delete(s.lastSeen, key)
		change = storage.Change{Key: key, Deleted: true}
	case seen && previous == value:
		s.lock.Unlock()
		return
	default:
		s.lastSeen[key] = value
		change = storage.Change{Key: key, Value: value}
	}
	fns := make([]func(storage.Change), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.lock.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}
