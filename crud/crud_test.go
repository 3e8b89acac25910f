package crud_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/granjas-console/api"
	"github.com/jrsteele09/granjas-console/crud"
	"github.com/jrsteele09/granjas-console/farm"
	ierrors "github.com/jrsteele09/granjas-console/internal/errors"
	"github.com/jrsteele09/granjas-console/queue"
	"github.com/jrsteele09/granjas-console/queue/repofake"
	"github.com/stretchr/testify/require"
)

type network struct{ online atomic.Bool }

func (n *network) IsNetworkOnline() bool { return n.online.Load() }

func online() *network {
	n := &network{}
	n.online.Store(true)
	return n
}

func lots(list ...farm.Lot) func(context.Context) ([]farm.Lot, error) {
	return func(context.Context) ([]farm.Lot, error) { return list, nil }
}

func TestLoad_JoinsReferenceFetches(t *testing.T) {
	farmsRelease := make(chan struct{})
	var programsDone atomic.Bool

	c := crud.NewController("lotes", lots(farm.Lot{ID: 1, Name: "Lote 1", FarmID: 1}), crud.Deps{}).
		WithRef("granjas", crud.RefOf(func(ctx context.Context) ([]farm.Farm, error) {
			<-farmsRelease
			return []farm.Farm{{ID: 1, Name: "La Esperanza"}}, nil
		})).
		WithRef("programas", crud.RefOf(func(ctx context.Context) ([]farm.Program, error) {
			programsDone.Store(true)
			return []farm.Program{{ID: 2, Name: "Agronomía"}}, nil
		}))

	done := make(chan error)
	go func() { done <- c.Load(context.Background()) }()

	require.Eventually(t, programsDone.Load, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.False(t, c.Loaded(), "nothing is published before every fetch resolved")
	require.Empty(t, c.Items())
	require.Nil(t, crud.Ref[farm.Program](c, "programas"))

	close(farmsRelease)
	require.NoError(t, <-done)
	require.True(t, c.Loaded())
	require.Len(t, c.Items(), 1)
	require.Equal(t, "La Esperanza", crud.Ref[farm.Farm](c, "granjas")[0].Name)
	require.Equal(t, "Agronomía", crud.Ref[farm.Program](c, "programas")[0].Name)
}

func TestLoad_FailureKeepsPriorState(t *testing.T) {
	rec := &crud.Recorder{}
	fail := atomic.Bool{}
	c := crud.NewController("lotes", func(context.Context) ([]farm.Lot, error) {
		if fail.Load() {
			return []farm.Lot{{ID: 99}}, nil
		}
		return []farm.Lot{{ID: 1}}, nil
	}, crud.Deps{Notifier: rec}).
		WithRef("granjas", func(context.Context) (any, error) {
			if fail.Load() {
				return nil, &api.Error{Kind: api.KindServer, Status: 500, Message: "Error 500: Internal Server Error"}
			}
			return []farm.Farm{{ID: 1}}, nil
		})

	require.NoError(t, c.Load(context.Background()))
	fail.Store(true)
	err := c.Load(context.Background())
	require.ErrorIs(t, err, ierrors.ErrBackend)

	require.Equal(t, 1, c.Items()[0].ID, "no partial overwrite")
	notes := rec.All()
	require.Len(t, notes, 1)
	require.Equal(t, crud.LevelError, notes[0].Level)
	require.True(t, notes[0].Persistent)
	require.Equal(t, "Error 500: Internal Server Error", notes[0].Message)
	require.NotNil(t, notes[0].Retry)

	fail.Store(false)
	require.NoError(t, notes[0].Retry(context.Background()))
	require.Len(t, rec.All(), 1)
}

func TestMutate_NoDoubleSubmit(t *testing.T) {
	c := crud.NewController("labores", func(context.Context) ([]farm.Labor, error) { return nil, nil }, crud.Deps{Network: online()})

	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	m := crud.Mutation[farm.Labor]{
		Key: "complete:labor:42",
		Do: func(context.Context) error {
			calls.Add(1)
			close(entered)
			<-release
			return nil
		},
	}

	done := make(chan crud.Outcome)
	go func() {
		out, _ := c.Mutate(context.Background(), m)
		done <- out
	}()
	<-entered
	require.True(t, c.IsBusy(m.Key))

	_, err := c.Mutate(context.Background(), m)
	require.ErrorIs(t, err, ierrors.ErrBusy)

	close(release)
	require.Equal(t, crud.Applied, <-done)
	require.Equal(t, int32(1), calls.Load())
	require.False(t, c.IsBusy(m.Key))
}

func TestMutate_ConfirmBeforeDestroy(t *testing.T) {
	answer := atomic.Bool{}
	var prompts []string
	rec := &crud.Recorder{}
	c := crud.NewController("lotes", lots(farm.Lot{ID: 1}, farm.Lot{ID: 2}), crud.Deps{
		Notifier: rec,
		Network:  online(),
		Confirmer: crud.ConfirmFunc(func(_ context.Context, prompt string) (bool, error) {
			prompts = append(prompts, prompt)
			return answer.Load(), nil
		}),
	})
	require.NoError(t, c.Load(context.Background()))

	var deleted atomic.Int32
	del := crud.Mutation[farm.Lot]{
		Key:     "delete:lote:2",
		Confirm: "¿Eliminar el lote 2?",
		Do:      func(context.Context) error { deleted.Add(1); return nil },
		Apply: func(items []farm.Lot) []farm.Lot {
			out := items[:0]
			for _, l := range items {
				if l.ID != 2 {
					out = append(out, l)
				}
			}
			return out
		},
		Success: "Lote eliminado",
	}

	_, err := c.Mutate(context.Background(), del)
	require.ErrorIs(t, err, ierrors.ErrCancelled)
	require.Zero(t, deleted.Load())
	require.Len(t, c.Items(), 2)
	require.Empty(t, rec.All())

	answer.Store(true)
	out, err := c.Mutate(context.Background(), del)
	require.NoError(t, err)
	require.Equal(t, crud.Applied, out)
	require.Equal(t, int32(1), deleted.Load())
	require.Len(t, c.Items(), 1)
	require.Equal(t, []string{"¿Eliminar el lote 2?", "¿Eliminar el lote 2?"}, prompts)
	require.Equal(t, "Lote eliminado", rec.All()[0].Message)
}

func TestMutate_FailureNotifiesOnceAndKeepsState(t *testing.T) {
	rec := &crud.Recorder{}
	c := crud.NewController("lotes", lots(farm.Lot{ID: 1, Name: "Viejo"}), crud.Deps{Notifier: rec, Network: online()})
	require.NoError(t, c.Load(context.Background()))

	_, err := c.Mutate(context.Background(), crud.Mutation[farm.Lot]{
		Key: "update:lote:1",
		Do: func(context.Context) error {
			return &api.Error{Kind: api.KindValidation, Status: 422, Message: "nombre: field required"}
		},
		Apply: func(items []farm.Lot) []farm.Lot {
			items[0].Name = "Nuevo"
			return items
		},
		Success: "Lote actualizado",
	})
	require.ErrorIs(t, err, ierrors.ErrValidation)

	notes := rec.All()
	require.Len(t, notes, 1)
	require.Equal(t, crud.LevelError, notes[0].Level)
	require.Equal(t, "nombre: field required", notes[0].Message)
	require.False(t, notes[0].Persistent)
	require.Equal(t, "Viejo", c.Items()[0].Name)
}

func TestMutate_OfflineWritesAreQueued(t *testing.T) {
	net := &network{}
	rec := &crud.Recorder{}
	q := queue.New(repofake.NewFakeQueueRepo())
	c := crud.NewController("recomendaciones", func(context.Context) ([]farm.Recommendation, error) { return nil, nil },
		crud.Deps{Notifier: rec, Network: net, Queue: q})

	rec1 := farm.Recommendation{Title: "Riego", Type: "riego", LotID: 3}
	var sent atomic.Int32
	m := crud.Mutation[farm.Recommendation]{
		Key:     "create:recomendacion",
		Do:      func(context.Context) error { sent.Add(1); return nil },
		Offline: &queue.Write{ResourceType: farm.KindRecommendation, Payload: rec1},
	}

	out, err := c.Mutate(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, crud.Queued, out)
	require.Zero(t, sent.Load())
	n, err := q.Len()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, crud.LevelInfo, rec.All()[0].Level)

	// A write without an offline form fails once with a connectivity message.
	_, err = c.Mutate(context.Background(), crud.Mutation[farm.Recommendation]{Key: "approve:recomendacion:5", Do: m.Do})
	require.ErrorIs(t, err, ierrors.ErrNetwork)
	require.Len(t, rec.All(), 2)
	require.Equal(t, crud.LevelError, rec.All()[1].Level)
}

func TestMutate_NetworkDropsMidRequest(t *testing.T) {
	net := online()
	q := queue.New(repofake.NewFakeQueueRepo())
	c := crud.NewController("labores", func(context.Context) ([]farm.Labor, error) { return nil, nil },
		crud.Deps{Network: net, Queue: q})

	out, err := c.Mutate(context.Background(), crud.Mutation[farm.Labor]{
		Key: "update:labor:4",
		Do: func(context.Context) error {
			net.online.Store(false)
			return &api.Error{Kind: api.KindNetwork, Message: "connection reset", Err: errors.New("reset")}
		},
		Offline: &queue.Write{ResourceType: farm.KindLabor, Op: queue.OpUpdate, TargetID: 4, Payload: map[string]int{"avance_porcentaje": 30}},
	})
	require.NoError(t, err)
	require.Equal(t, crud.Queued, out)

	pending, err := q.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 4, pending[0].TargetID)
}

func TestMessage(t *testing.T) {
	require.Equal(t, "No tiene permisos para realizar esta acción.", crud.Message(ierrors.ErrForbidden))
	require.Equal(t, "Ocurrió un error inesperado.", crud.Message(errors.New("dial tcp: i/o timeout")))
	require.Equal(t, "No hay conexión con el servidor. Intente de nuevo más tarde.",
		crud.Message(&api.Error{Kind: api.KindNetwork, Message: "GET http://x: dial tcp"}))
	require.Empty(t, crud.Message(nil))
}
