package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/granjas-console/farm"
	ierrors "github.com/jrsteele09/granjas-console/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Sender delivers one pending write to the backend.
type Sender interface {
	Send(ctx context.Context, w PendingWrite) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, w PendingWrite) error

func (f SenderFunc) Send(ctx context.Context, w PendingWrite) error {
	return f(ctx, w)
}

type Option func(*Queue)

// WithRate paces replay to perSecond sends with the given burst. A zero rate disables pacing.
func WithRate(perSecond float64, burst int) Option {
	return func(q *Queue) {
		if perSecond <= 0 {
			q.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		if burst < 1 {
			burst = 1
		}
		q.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// Queue is the durable FIFO of writes made while offline.
type Queue struct {
	repo      Repo
	limiter   *rate.Limiter
	replaying sync.Mutex
}

func New(repo Repo, opts ...Option) *Queue {
	q := &Queue{
		repo:    repo,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue queues a create of resourceType with payload.
func (q *Queue) Enqueue(resourceType farm.Kind, payload any) (PendingWrite, error) {
	return q.EnqueueWrite(Write{ResourceType: resourceType, Op: OpCreate, Payload: payload})
}

func (q *Queue) EnqueueWrite(w Write) (PendingWrite, error) {
	if w.ResourceType.Collection() == "" {
		return PendingWrite{}, ierrors.Wrapf(ierrors.ErrUnsupported, "resource type %q", w.ResourceType)
	}
	if w.Op == "" {
		w.Op = OpCreate
	}
	if w.Op != OpCreate && w.TargetID <= 0 {
		return PendingWrite{}, ierrors.Wrapf(ierrors.ErrValidation, "%s of %s needs a target id", w.Op, w.ResourceType)
	}

	var payload json.RawMessage
	if w.Payload != nil {
		raw, err := json.Marshal(w.Payload)
		if err != nil {
			return PendingWrite{}, errors.Wrap(err, "[Queue.EnqueueWrite] encode payload")
		}
		payload = raw
	}

	pw := PendingWrite{
		ID:           uuid.NewString(),
		ResourceType: w.ResourceType,
		Op:           w.Op,
		TargetID:     w.TargetID,
		Payload:      payload,
		CreatedAt:    NowTimeFunc().UTC(),
	}
	if err := q.repo.Append(pw); err != nil {
		return PendingWrite{}, errors.Wrap(err, "[Queue.EnqueueWrite] append")
	}
	log.Info().Str("id", pw.ID).Str("resource", string(pw.ResourceType)).Str("op", string(pw.Op)).Msg("write queued for replay")
	return pw, nil
}

// ListPending returns the queued writes, oldest first.
func (q *Queue) ListPending() ([]PendingWrite, error) {
	list, err := q.repo.List()
	if err != nil {
		return nil, errors.Wrap(err, "[Queue.ListPending]")
	}
	return list, nil
}

func (q *Queue) Len() (int, error) {
	list, err := q.ListPending()
	return len(list), err
}

// Replay sends queued writes one at a time in FIFO order, removing each one the backend accepts.
// It stops at the first failure, leaving that write and everything after it queued.
// A send failure is reported in the ReplayReport, not as an error; the error return is reserved
// for storage failures, cancellation and concurrent replays (ErrReplayInProgress).
func (q *Queue) Replay(ctx context.Context, s Sender) (ReplayReport, error) {
	if !q.replaying.TryLock() {
		return ReplayReport{}, ierrors.ErrReplayInProgress
	}
	defer q.replaying.Unlock()

	if g, ok := q.repo.(ReplayGuard); ok {
		release, acquired, err := g.TryAcquireReplay()
		if err != nil {
			return ReplayReport{}, errors.Wrap(err, "[Queue.Replay] guard")
		}
		if !acquired {
			return ReplayReport{}, ierrors.ErrReplayInProgress
		}
		defer release()
	}

	report := ReplayReport{Succeeded: []string{}}
	list, err := q.repo.List()
	if err != nil {
		return report, errors.Wrap(err, "[Queue.Replay] list")
	}

	for _, w := range list {
		if err := q.limiter.Wait(ctx); err != nil {
			return q.finish(report), errors.Wrap(err, "[Queue.Replay] wait")
		}
		if err := s.Send(ctx, w); err != nil {
			log.Warn().Err(err).Str("id", w.ID).Str("resource", string(w.ResourceType)).Msg("replay stopped at failed write")
			report.Failed = w.ID
			report.Err = err
			failed := w
			failed.Attempts++
			failed.LastError = err.Error()
			if rerr := q.repo.Replace(failed); rerr != nil {
				log.Err(rerr).Str("id", w.ID).Msg("unable to record replay failure")
			}
			return q.finish(report), nil
		}
		if err := q.repo.Remove(w.ID); err != nil {
			return q.finish(report), errors.Wrap(err, "[Queue.Replay] remove")
		}
		report.Succeeded = append(report.Succeeded, w.ID)
	}
	return q.finish(report), nil
}

func (q *Queue) finish(report ReplayReport) ReplayReport {
	if n, err := q.Len(); err == nil {
		report.Remaining = n
	}
	if len(report.Succeeded) > 0 || report.Failed != "" {
		log.Info().Int("succeeded", len(report.Succeeded)).Str("failed", report.Failed).Int("remaining", report.Remaining).Msg("replay finished")
	}
	return report
}

// Retry resets a failed write so it is replayed as new: the record is replaced by a copy with a
// fresh CreatedAt and no recorded failure. The ID is kept so the idempotency key stays stable.
func (q *Queue) Retry(id string) (PendingWrite, error) {
	w, err := q.find(id)
	if err != nil {
		return PendingWrite{}, err
	}
	fresh := w
	fresh.CreatedAt = NowTimeFunc().UTC()
	fresh.LastError = ""
	if err := q.repo.Replace(fresh); err != nil {
		return PendingWrite{}, errors.Wrap(err, "[Queue.Retry]")
	}
	return fresh, nil
}

// Discard drops a queued write without sending it.
func (q *Queue) Discard(id string) error {
	if _, err := q.find(id); err != nil {
		return err
	}
	return errors.Wrap(q.repo.Remove(id), "[Queue.Discard]")
}

func (q *Queue) find(id string) (PendingWrite, error) {
	list, err := q.ListPending()
	if err != nil {
		return PendingWrite{}, err
	}
	for _, w := range list {
		if w.ID == id {
			return w, nil
		}
	}
	return PendingWrite{}, ierrors.Wrapf(ierrors.ErrPendingNotFound, "pending write %s", id)
}
