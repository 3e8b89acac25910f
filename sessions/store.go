package sessions

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	ierrors "github.com/jrsteele09/granjas-console/internal/errors"
	"github.com/jrsteele09/granjas-console/storage"
	"github.com/jrsteele09/granjas-console/token"
	"github.com/jrsteele09/granjas-console/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Revoker invalidates a token on the server.
type Revoker interface {
	Revoke(ctx context.Context, token string) error
}

// Store holds the current session, persists it and broadcasts every change to subscribers.
// All writes to the persisted token go through Login, Logout and Invalidate.
type Store struct {
	storage storage.Store
	revoker Revoker

	lock        sync.RWMutex
	session     Session
	expiresAt   time.Time
	subscribers map[int]func(Session)
	nextID      int
	cancelWatch func()
}

// StoreOption defines a function type to modify the Store instance.
type StoreOption func(*Store)

// WithRevoker sets the collaborator used for server-side logout.
func WithRevoker(r Revoker) StoreOption {
	return func(s *Store) {
		s.revoker = r
	}
}

// NewStore restores any persisted session from st and starts following changes made
// to st by other clients sharing it.
func NewStore(st storage.Store, options ...StoreOption) (*Store, error) {
	if st == nil {
		return nil, errors.New("[sessions.NewStore] storage is required")
	}

	s := &Store{
		storage:     st,
		subscribers: make(map[int]func(Session)),
	}
	for _, opt := range options {
		opt(s)
	}

	if err := s.restore(); err != nil {
		return nil, errors.Wrap(err, "[sessions.NewStore] restore")
	}
	s.cancelWatch = st.Watch(s.onStorageChange)
	return s, nil
}

// SetRevoker replaces the server-side logout collaborator. It exists because the API
// client usually needs the store before it can be built.
func (s *Store) SetRevoker(r Revoker) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.revoker = r
}

// Close stops following storage changes.
func (s *Store) Close() {
	if s.cancelWatch != nil {
		s.cancelWatch()
	}
}

// Login stores tok and the user's identity. The identity comes from profile when the
// login response carried one, completed from the token's claims when it is a JWT.
// A malformed or expired token leaves the store unauthenticated.
func (s *Store) Login(tok string, profile *users.Identity) error {
	sess, exp, err := resolve(tok, profile)
	if err != nil {
		s.Invalidate()
		return err
	}

	userJSON, err := json.Marshal(sess.User)
	if err != nil {
		return errors.Wrap(err, "[Login] encode identity")
	}
	// Identity first: other clients react to the token key and read the identity then.
	if err := s.storage.Set(UserKey, string(userJSON)); err != nil {
		return errors.Wrap(err, "[Login] persist identity")
	}
	if err := s.storage.Set(TokenKey, tok); err != nil {
		return errors.Wrap(err, "[Login] persist token")
	}

	s.set(sess, exp)
	log.Info().Int("user_id", sess.User.ID).Str("rol", sess.User.DisplayRole()).Msg("session started")
	return nil
}

// Logout invalidates the token on the server when possible and always clears the local session.
func (s *Store) Logout(ctx context.Context) error {
	s.lock.RLock()
	tok := s.session.Token
	revoker := s.revoker
	s.lock.RUnlock()

	if tok != "" && revoker != nil {
		if err := revoker.Revoke(ctx, tok); err != nil {
			log.Warn().Err(err).Msg("server logout failed, clearing local session anyway")
		}
	}
	return s.clear()
}

// Invalidate clears the session without contacting the server, e.g. after the backend
// rejected the token.
func (s *Store) Invalidate() {
	if err := s.clear(); err != nil {
		log.Err(err).Msg("failed to clear persisted session")
	}
}

// Session returns a copy of the current session. An expired session is cleared first.
func (s *Store) Session() Session {
	s.lock.RLock()
	sess := s.session
	exp := s.expiresAt
	s.lock.RUnlock()

	if sess.Active() && !exp.IsZero() && !token.NowTimeFunc().Before(exp) {
		log.Info().Msg("session token expired")
		s.expire(sess.Token)
		return Session{}
	}
	return sess.clone()
}

// CurrentUser returns nil when unauthenticated.
func (s *Store) CurrentUser() *users.Identity {
	return s.Session().User
}

// CurrentToken returns "" when unauthenticated.
func (s *Store) CurrentToken() string {
	return s.Session().Token
}

func (s *Store) IsActive() bool {
	return s.Session().Active()
}

// Subscribe registers fn to be called synchronously after every session change.
func (s *Store) Subscribe(fn func(Session)) (cancel func()) {
	s.lock.Lock()
	defer s.lock.Unlock()

	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	return func() {
		s.lock.Lock()
		defer s.lock.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Store) restore() error {
	tok, ok, err := s.storage.Get(TokenKey)
	if err != nil {
		return err
	}
	if !ok || tok == "" {
		return nil
	}

	sess, exp, err := s.resolvePersisted(tok)
	if err != nil {
		log.Info().Err(err).Msg("discarding persisted session")
		return s.clearPersisted()
	}

	s.lock.Lock()
	s.session = sess
	s.expiresAt = exp
	s.lock.Unlock()
	return nil
}

func (s *Store) resolvePersisted(tok string) (Session, time.Time, error) {
	var profile *users.Identity
	if raw, ok, err := s.storage.Get(UserKey); err == nil && ok && raw != "" {
		u := &users.Identity{}
		if err := json.Unmarshal([]byte(raw), u); err == nil {
			profile = u
		}
	}
	return resolve(tok, profile)
}

func (s *Store) onStorageChange(c storage.Change) {
	if c.Key != TokenKey {
		return
	}

	s.lock.RLock()
	current := s.session.Token
	s.lock.RUnlock()

	if c.Deleted || c.Value == "" {
		if current != "" {
			s.set(Session{}, time.Time{})
		}
		return
	}
	if c.Value == current {
		return
	}

	sess, exp, err := s.resolvePersisted(c.Value)
	if err != nil {
		log.Info().Err(err).Msg("ignoring unusable token written by another client")
		s.set(Session{}, time.Time{})
		return
	}
	s.set(sess, exp)
}

func (s *Store) set(sess Session, exp time.Time) {
	s.lock.Lock()
	s.session = sess
	s.expiresAt = exp
	fns := make([]func(Session), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.lock.Unlock()

	for _, fn := range fns {
		fn(sess.clone())
	}
}

func (s *Store) clear() error {
	err := s.clearPersisted()
	s.set(Session{}, time.Time{})
	return err
}

func (s *Store) expire(tok string) {
	s.lock.RLock()
	same := s.session.Token == tok
	s.lock.RUnlock()
	if !same {
		return
	}
	s.Invalidate()
}

func (s *Store) clearPersisted() error {
	// Token first so that other clients never see a token without its identity.
	if err := s.storage.Delete(TokenKey); err != nil {
		return errors.Wrap(err, "delete token")
	}
	if err := s.storage.Delete(UserKey); err != nil {
		return errors.Wrap(err, "delete identity")
	}
	return nil
}

// resolve builds a session from a token and an optional profile.
func resolve(tok string, profile *users.Identity) (Session, time.Time, error) {
	if tok == "" {
		return Session{}, time.Time{}, ierrors.ErrInvalidToken
	}

	claims, decodeErr := token.Decode(tok)
	if decodeErr == nil && claims.Expired() {
		return Session{}, time.Time{}, ierrors.ErrTokenExpired
	}

	var identity users.Identity
	switch {
	case profile != nil:
		identity = *profile
		if decodeErr == nil {
			fillFromClaims(&identity, claims.Identity)
		}
	case decodeErr == nil && claims.HasIdentity():
		identity = claims.Identity
	case decodeErr != nil:
		return Session{}, time.Time{}, decodeErr
	default:
		return Session{}, time.Time{}, errors.Wrap(ierrors.ErrInvalidToken, "token carries no identity")
	}

	var exp time.Time
	if decodeErr == nil {
		exp = claims.ExpiresAt
	}
	return Session{Token: tok, User: &identity}, exp, nil
}

func fillFromClaims(u *users.Identity, c users.Identity) {
	if u.ID == 0 {
		u.ID = c.ID
	}
	if u.RoleID == users.RoleNone {
		u.RoleID = c.RoleID
	}
	if u.Name == "" {
		u.Name = c.Name
	}
	if u.Email == "" {
		u.Email = c.Email
	}
	if u.Role == "" {
		u.Role = c.Role
	}
}
