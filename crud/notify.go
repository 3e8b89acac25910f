package crud

import (
	"context"
	"sync"

	"github.com/jrsteele09/granjas-console/api"
	ierrors "github.com/jrsteele09/granjas-console/internal/errors"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is one user-visible message. Persistent notifications stay until dismissed
// and, for failed loads, offer Retry.
type Notification struct {
	Level      Level
	Message    string
	Persistent bool
	Err        error
	Retry      func(ctx context.Context) error
}

type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Recorder is a Notifier that keeps every notification, for tests and headless use.
type Recorder struct {
	lock  sync.Mutex
	notes []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.notes = append(r.notes, n)
}

func (r *Recorder) All() []Notification {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]Notification, len(r.notes))
	copy(out, r.notes)
	return out
}

// Message turns any failure into the text shown to the user. Raw transport errors are never shown as-is.
func Message(err error) string {
	var apiErr *api.Error
	switch {
	case err == nil:
		return ""
	case ierrors.As(err, &apiErr) && apiErr.Kind != api.KindNetwork:
		return apiErr.Message
	case ierrors.Is(err, ierrors.ErrNetwork):
		return "No hay conexión con el servidor. Intente de nuevo más tarde."
	case ierrors.Is(err, ierrors.ErrForbidden):
		return "No tiene permisos para realizar esta acción."
	case ierrors.Is(err, ierrors.ErrUnauthenticated), ierrors.Is(err, ierrors.ErrTokenExpired):
		return "Su sesión ha expirado. Inicie sesión nuevamente."
	case ierrors.Is(err, ierrors.ErrValidation):
		return err.Error()
	default:
		return "Ocurrió un error inesperado."
	}
}
