package console_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/granjas-console/api"
	"github.com/jrsteele09/granjas-console/connectivity"
	"github.com/jrsteele09/granjas-console/console"
	"github.com/jrsteele09/granjas-console/crud"
	"github.com/jrsteele09/granjas-console/farm"
	"github.com/jrsteele09/granjas-console/internal/config"
	ierrors "github.com/jrsteele09/granjas-console/internal/errors"
	"github.com/jrsteele09/granjas-console/sessions"
	"github.com/jrsteele09/granjas-console/storage"
	"github.com/jrsteele09/granjas-console/storage/memstore"
	"github.com/jrsteele09/granjas-console/users"
	"github.com/stretchr/testify/require"
)

type call struct {
	Method      string
	Path        string
	Idempotency string
	Body        string
}

// backend is a minimal stand-in for the farm REST API.
type backend struct {
	lock            sync.Mutex
	calls           []call
	profile         users.Identity
	labors          []farm.Labor
	recommendations []farm.Recommendation
	unauthorized    bool
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.lock.Lock()
	defer b.lock.Unlock()
	b.calls = append(b.calls, call{r.Method, r.URL.Path, r.Header.Get(api.IdempotencyHeader), string(body)})

	switch {
	case r.URL.Path == "/health":
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case r.URL.Path == "/api/auth/login":
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "tok-" + b.profile.Name, "id": b.profile.ID, "nombre": b.profile.Name, "rol_id": b.profile.RoleID,
		})
	case b.unauthorized:
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token inválido"})
	case r.URL.Path == "/api/labores/" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, b.labors)
	case r.URL.Path == "/api/recomendaciones/" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, b.recommendations)
	case r.URL.Path == "/api/recomendaciones/" && r.Method == http.MethodPost:
		var rec farm.Recommendation
		_ = json.Unmarshal(body, &rec)
		rec.ID = 100 + len(b.recommendations)
		rec.State = farm.StatePending
		b.recommendations = append(b.recommendations, rec)
		writeJSON(w, http.StatusCreated, rec)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/"):
		writeJSON(w, http.StatusOK, []any{})
	case strings.HasSuffix(r.URL.Path, "/aprobar"):
		rec := b.recommendations[0]
		rec.State = farm.StateApproved
		writeJSON(w, http.StatusOK, rec)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "No encontrado"})
	}
}

func (b *backend) callsTo(method, path string) []call {
	b.lock.Lock()
	defer b.lock.Unlock()
	var out []call
	for _, c := range b.calls {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func serve(t *testing.T, b *backend) config.Config {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	t.Setenv("API_URL", srv.URL+"/api")
	t.Setenv("HEALTH_URL", srv.URL+"/health")
	t.Setenv("RECONNECT_DEBOUNCE", "10")
	t.Setenv("PROBE_TIMEOUT", "500")
	t.Setenv("PROBE_INTERVAL", "60000")
	t.Setenv("REPLAY_RATE", "100")
	t.Setenv("HTTP_RETRIES", "0")
	return config.New()
}

func newConsole(t *testing.T, cfg config.Config, st storage.Store, network connectivity.NetworkSignal, deps console.Deps) *console.Console {
	t.Helper()
	deps.Storage, deps.Network = st, network
	c, err := console.New(cfg, deps)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

func errorsIn(notes []crud.Notification) int {
	n := 0
	for _, note := range notes {
		if note.Level == crud.LevelError {
			n++
		}
	}
	return n
}

func TestOfflineCreateReplaysAfterReload(t *testing.T) {
	b := &backend{profile: users.Identity{ID: 7, Name: "Ana", RoleID: users.RoleInstructor}}
	cfg := serve(t, b)
	ctx := context.Background()
	shared := memstore.NewShared()

	network := connectivity.NewManualSignal(true)
	first := newConsole(t, cfg, shared.Tab(), network, console.Deps{})
	_, err := first.LoginWithPassword(ctx, "ana@granja.co", "secreto")
	require.NoError(t, err)

	network.Set(false)
	outcome, err := first.SaveRecommendation(ctx, farm.Recommendation{Title: "Riego", Type: "riego", LotID: 3})
	require.NoError(t, err)
	require.Equal(t, crud.Queued, outcome)
	pending, err := first.Queue.Len()
	require.NoError(t, err)
	require.Equal(t, 1, pending)
	require.Empty(t, b.callsTo(http.MethodPost, "/api/recomendaciones/"))

	// A reload restores both the session and the queued write.
	network = connectivity.NewManualSignal(false)
	second := newConsole(t, cfg, shared.Tab(), network, console.Deps{})
	require.True(t, second.Sessions.IsActive())
	require.Equal(t, 1, second.Status().Pending)
	queued, err := second.Queue.ListPending()
	require.NoError(t, err)

	second.Start(ctx)
	network.Set(true)

	require.Eventually(t, func() bool {
		n, err := second.Queue.Len()
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	posts := b.callsTo(http.MethodPost, "/api/recomendaciones/")
	require.Len(t, posts, 1)
	require.Equal(t, queued[0].ID, posts[0].Idempotency)
	require.Contains(t, posts[0].Body, `"docente_id":7`)
	require.True(t, second.Status().Connectivity.Up())
}

func TestWorkerCannotEditAnotherWorkersLabor(t *testing.T) {
	b := &backend{
		profile: users.Identity{ID: 9, Name: "Luis", RoleID: users.RoleWorker},
		labors:  []farm.Labor{{ID: 1, LaborTypeID: 2, WorkerID: 4, LotID: 3, State: farm.StatePending}},
	}
	cfg := serve(t, b)
	ctx := context.Background()
	notes := &crud.Recorder{}
	c := newConsole(t, cfg, memstore.New(), connectivity.NewManualSignal(true), console.Deps{Notifier: notes})
	_, err := c.LoginWithPassword(ctx, "luis@granja.co", "secreto")
	require.NoError(t, err)
	require.NoError(t, c.Labors.Load(ctx))

	labor := c.Labors.Items()[0]
	actions := c.Decide(labor)
	require.False(t, actions.Edit)
	require.False(t, actions.Delete)
	require.True(t, actions.Complete, "field crew may close any open labor")

	labor.Progress = 50
	outcome, err := c.SaveLabor(ctx, labor)
	require.ErrorIs(t, err, ierrors.ErrForbidden)
	require.Equal(t, crud.NotApplied, outcome)
	require.Equal(t, 1, errorsIn(notes.All()))
	require.Empty(t, b.callsTo(http.MethodPut, "/api/labores/1"))

	_, err = c.RegisterLaborProgress(ctx, 1, 50, "")
	require.ErrorIs(t, err, ierrors.ErrForbidden)
	require.Equal(t, 2, errorsIn(notes.All()))
}

func TestAdminApprovesRecommendation(t *testing.T) {
	b := &backend{
		profile:         users.Identity{ID: 1, Name: "Admin", RoleID: users.RoleAdmin},
		recommendations: []farm.Recommendation{{ID: 3, Title: "Poda", Type: "poda", LotID: 2, InstructorID: 7, State: farm.StatePending}},
	}
	cfg := serve(t, b)
	ctx := context.Background()
	c := newConsole(t, cfg, memstore.New(), connectivity.NewManualSignal(true), console.Deps{})
	_, err := c.LoginWithPassword(ctx, "admin@granja.co", "secreto")
	require.NoError(t, err)
	require.NoError(t, c.Recommendations.Load(ctx))

	outcome, err := c.ApproveRecommendation(ctx, 3, "De acuerdo")
	require.NoError(t, err)
	require.Equal(t, crud.Applied, outcome)
	require.Len(t, b.callsTo(http.MethodPost, "/api/recomendaciones/3/aprobar"), 1)
	require.Equal(t, farm.StateApproved, c.Recommendations.Items()[0].State)

	// Approved is not pending any more.
	_, err = c.RejectRecommendation(ctx, 3, "")
	require.ErrorIs(t, err, ierrors.ErrConflict)
}

func TestInstructorOnlySeesOwnRecommendations(t *testing.T) {
	b := &backend{
		profile: users.Identity{ID: 7, Name: "Ana", RoleID: users.RoleInstructor},
		recommendations: []farm.Recommendation{
			{ID: 3, Title: "Poda", Type: "poda", LotID: 2, InstructorID: 7, State: farm.StatePending},
			{ID: 4, Title: "Riego", Type: "riego", LotID: 2, InstructorID: 8, State: farm.StatePending},
		},
	}
	cfg := serve(t, b)
	ctx := context.Background()
	c := newConsole(t, cfg, memstore.New(), connectivity.NewManualSignal(true), console.Deps{})
	_, err := c.LoginWithPassword(ctx, "ana@granja.co", "secreto")
	require.NoError(t, err)
	require.NoError(t, c.Recommendations.Load(ctx))

	items := c.Recommendations.Items()
	require.Len(t, items, 1)
	require.Equal(t, 3, items[0].ID)
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	b := &backend{
		profile: users.Identity{ID: 1, Name: "Admin", RoleID: users.RoleAdmin},
		labors:  []farm.Labor{{ID: 1, LaborTypeID: 2, WorkerID: 4, LotID: 3, State: farm.StatePending}},
	}
	cfg := serve(t, b)
	ctx := context.Background()
	prompts := 0
	c := newConsole(t, cfg, memstore.New(), connectivity.NewManualSignal(true), console.Deps{
		Confirmer: crud.ConfirmFunc(func(context.Context, string) (bool, error) {
			prompts++
			return false, nil
		}),
	})
	_, err := c.LoginWithPassword(ctx, "admin@granja.co", "secreto")
	require.NoError(t, err)
	require.NoError(t, c.Labors.Load(ctx))

	_, err = c.DeleteLabor(ctx, 1)
	require.ErrorIs(t, err, ierrors.ErrCancelled)
	require.Equal(t, 1, prompts)
	require.Empty(t, b.callsTo(http.MethodDelete, "/api/labores/1"))
}

func TestUnauthorizedResponseEndsSession(t *testing.T) {
	b := &backend{profile: users.Identity{ID: 9, Name: "Luis", RoleID: users.RoleWorker}}
	cfg := serve(t, b)
	ctx := context.Background()
	c := newConsole(t, cfg, memstore.New(), connectivity.NewManualSignal(true), console.Deps{})
	_, err := c.LoginWithPassword(ctx, "luis@granja.co", "secreto")
	require.NoError(t, err)

	b.lock.Lock()
	b.unauthorized = true
	b.lock.Unlock()

	require.Error(t, c.Labors.Load(ctx))
	require.False(t, c.Sessions.IsActive())
	require.Nil(t, c.Status().User)

	_, err = c.ReplayNow(ctx)
	require.ErrorIs(t, err, ierrors.ErrUnauthenticated)
}

func TestDefaultNetworkSignalQueuesWhenHostIsDown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	t.Setenv("API_URL", "http://"+addr+"/api")
	t.Setenv("HEALTH_URL", "http://"+addr+"/health")
	t.Setenv("NETWORK_CHECK_ADDR", "")
	t.Setenv("PROBE_TIMEOUT", "200")
	t.Setenv("HTTP_RETRIES", "0")
	cfg := config.New()

	st := memstore.New()
	previous, err := sessions.NewStore(st)
	require.NoError(t, err)
	require.NoError(t, previous.Login("tok-ana", &users.Identity{ID: 7, Name: "Ana", RoleID: users.RoleInstructor}))
	previous.Close()

	c, err := console.New(cfg, console.Deps{Storage: st})
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	require.True(t, c.Sessions.IsActive())
	require.False(t, c.IsNetworkOnline())
	require.False(t, c.Status().Connectivity.NetworkOnline)

	outcome, err := c.SaveRecommendation(context.Background(), farm.Recommendation{Title: "Riego", Type: "riego", LotID: 3})
	require.NoError(t, err)
	require.Equal(t, crud.Queued, outcome)
	n, err := c.Queue.Len()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
