package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/granjas-console/api"
	"github.com/jrsteele09/granjas-console/farm"
	ierrors "github.com/jrsteele09/granjas-console/internal/errors"
	"github.com/jrsteele09/granjas-console/queue"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, h http.Handler, opts ...api.Option) *api.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := api.Open(srv.URL+"/api", opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestOpen_RejectsRelativeURL(t *testing.T) {
	_, err := api.Open("/api")
	require.Error(t, err)
}

func TestLogin(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/login", r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"))
		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds["password"] != "secreto" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Credenciales incorrectas"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "tok-1", "token_type": "bearer", "id": 7, "nombre": "Ana", "rol_id": 3,
		})
	}), api.WithTokenProvider(api.TokenProviderFunc(func() string { return "stale" })))

	resp, err := c.Login(context.Background(), "ana@granja.co", "secreto")
	require.NoError(t, err)
	require.Equal(t, "tok-1", resp.AccessToken)
	profile := resp.Profile()
	require.NotNil(t, profile)
	require.Equal(t, 7, profile.ID)
	require.EqualValues(t, 3, profile.RoleID)

	_, err = c.Login(context.Background(), "ana@granja.co", "mal")
	require.ErrorIs(t, err, ierrors.ErrInvalidCredentials)
	require.Contains(t, err.Error(), "Credenciales incorrectas")
}

func TestBearerTokenAndUnauthorizedHook(t *testing.T) {
	var token atomic.Value
	token.Store("tok-1")
	var invalidated atomic.Int32

	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token expirado"})
			return
		}
		writeJSON(w, http.StatusOK, []farm.Farm{{ID: 1, Name: "La Esperanza", Location: "Norte"}})
	}),
		api.WithTokenProvider(api.TokenProviderFunc(func() string { return token.Load().(string) })),
		api.WithUnauthorizedHook(func() { invalidated.Add(1) }),
	)

	farms, err := api.List[farm.Farm](context.Background(), c, farm.KindFarm, nil)
	require.NoError(t, err)
	require.Len(t, farms, 1)
	require.Zero(t, invalidated.Load())

	token.Store("tok-2")
	_, err = api.List[farm.Farm](context.Background(), c, farm.KindFarm, nil)
	require.ErrorIs(t, err, ierrors.ErrUnauthenticated)
	require.Equal(t, int32(1), invalidated.Load())
}

func TestErrorNormalisation(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		message  string
		fields   []string
	}{
		{"detail string", 404, `{"detail":"Lote no encontrado"}`, ierrors.ErrNotFound, "Lote no encontrado", nil},
		{"message", 409, `{"message":"Estado inválido"}`, ierrors.ErrConflict, "Estado inválido", nil},
		{"validation list", 422, `{"detail":[{"loc":["body","nombre"],"msg":"field required"},{"loc":["body","granja_id"],"msg":"not a valid integer"}]}`,
			ierrors.ErrValidation, "nombre: field required; granja_id: not a valid integer", []string{"nombre", "granja_id"}},
		{"forbidden", 403, `{"detail":"No autorizado"}`, ierrors.ErrForbidden, "No autorizado", nil},
		{"no body", 500, ``, ierrors.ErrBackend, "Error 500: Internal Server Error", nil},
		{"html body", 502, `<html>bad gateway</html>`, ierrors.ErrBackend, "Error 502: Bad Gateway", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}), api.WithRetries(0))

			_, err := api.Create[farm.Lot](context.Background(), c, farm.KindLot, farm.Lot{})
			require.ErrorIs(t, err, tc.sentinel)
			require.Equal(t, tc.message, err.Error())

			var apiErr *api.Error
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, tc.status, apiErr.Status)
			var got []string
			for _, f := range apiErr.Fields {
				got = append(got, f.Field)
			}
			require.Equal(t, tc.fields, got)
		})
	}
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, farm.Lot{ID: 4, Name: "Lote Norte", FarmID: 1})
	}), api.WithRetries(3))

	lot, err := api.Get[farm.Lot](context.Background(), c, farm.KindLot, 4)
	require.NoError(t, err)
	require.Equal(t, "Lote Norte", lot.Name)
	require.Equal(t, int32(3), calls.Load())
}

func TestWritesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}), api.WithRetries(3))

	_, err := api.Update[farm.Lot](context.Background(), c, farm.KindLot, 4, farm.Lot{Name: "x"})
	require.ErrorIs(t, err, ierrors.ErrBackend)
	require.Equal(t, int32(1), calls.Load())
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c, err := api.Open(srv.URL+"/api", api.WithRetries(1))
	require.NoError(t, err)

	err = c.Delete(context.Background(), farm.KindCrop, 3)
	require.ErrorIs(t, err, ierrors.ErrNetwork)

	require.False(t, api.HealthProber{Client: c}.Probe(context.Background()))
}

func TestListWithParams(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/lotes/", r.URL.Path)
		require.Equal(t, "2", r.URL.Query().Get("granja_id"))
		_, _ = io.WriteString(w, `null`)
	}))
	lots, err := api.List[farm.Lot](context.Background(), c, farm.KindLot, url.Values{"granja_id": {"2"}})
	require.NoError(t, err)
	require.NotNil(t, lots)
	require.Empty(t, lots)
}

func TestRecommendationReview(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch r.URL.Path {
		case "/api/recomendaciones/12/aprobar":
			require.Equal(t, true, body["aprobar"])
			writeJSON(w, 200, farm.Recommendation{ID: 12, State: farm.StateApproved})
		case "/api/recomendaciones/12/rechazar":
			require.Equal(t, false, body["aprobar"])
			require.Equal(t, "sin diagnóstico", body["observaciones"])
			writeJSON(w, 200, farm.Recommendation{ID: 12, State: farm.StateRejected})
		default:
			http.NotFound(w, r)
		}
	}))

	rec, err := c.ApproveRecommendation(context.Background(), 12, "")
	require.NoError(t, err)
	require.Equal(t, farm.StateApproved, rec.State)

	rec, err = c.RejectRecommendation(context.Background(), 12, "sin diagnóstico")
	require.NoError(t, err)
	require.Equal(t, farm.StateRejected, rec.State)
}

func TestSendQueuedWrites(t *testing.T) {
	type seen struct{ method, path, key, body string }
	var got []seen
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = append(got, seen{r.Method, r.URL.Path, r.Header.Get(api.IdempotencyHeader), string(b)})
		w.WriteHeader(http.StatusCreated)
	}))

	writes := []queue.PendingWrite{
		{ID: "a", ResourceType: farm.KindRecommendation, Op: queue.OpCreate, Payload: json.RawMessage(`{"titulo":"Riego"}`)},
		{ID: "b", ResourceType: farm.KindLabor, Op: queue.OpUpdate, TargetID: 42, Payload: json.RawMessage(`{"avance_porcentaje":50}`)},
		{ID: "c", ResourceType: farm.KindInventory, Op: queue.OpDelete, TargetID: 9},
	}
	for _, w := range writes {
		require.NoError(t, c.Send(context.Background(), w))
	}

	require.Equal(t, []seen{
		{http.MethodPost, "/api/recomendaciones/", "a", `{"titulo":"Riego"}`},
		{http.MethodPut, "/api/labores/42", "b", `{"avance_porcentaje":50}`},
		{http.MethodDelete, "/api/insumos/9", "c", ``},
	}, got)

	err := c.Send(context.Background(), queue.PendingWrite{ID: "d", ResourceType: farm.KindLabor, Op: "patch"})
	require.ErrorIs(t, err, ierrors.ErrUnsupported)
}

func TestAttachEvidence(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/files/upload":
			require.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
			f, hdr, err := r.FormFile("file")
			require.NoError(t, err)
			b, _ := io.ReadAll(f)
			require.Equal(t, "jpeg-bytes", string(b))
			require.Equal(t, "foto.jpg", hdr.Filename)
			writeJSON(w, 200, map[string]string{"filename": "/uploads/foto.jpg"})
		case "/api/evidencias/":
			var ev farm.Evidence
			require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
			ev.ID = 99
			writeJSON(w, 201, ev)
		default:
			http.NotFound(w, r)
		}
	}))

	ev, err := c.AttachEvidence(context.Background(), farm.Evidence{
		EntityType: farm.KindLabor, EntityID: 42, UserID: 3,
	}, "/tmp/foto.jpg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	require.Equal(t, 99, ev.ID)
	require.Equal(t, "/uploads/foto.jpg", ev.FileURL)
	require.Equal(t, "imagen", ev.Type)
}

func TestExport(t *testing.T) {
	api.NowTimeFunc = func() time.Time { return time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { api.NowTimeFunc = time.Now })

	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/export/labores/excel", r.URL.Path)
		_, _ = io.WriteString(w, "xlsx")
	}))

	var buf strings.Builder
	name, err := c.Export(context.Background(), "labores", &buf)
	require.NoError(t, err)
	require.Equal(t, "labores_2024-05-02.xlsx", name)
	require.Equal(t, "xlsx", buf.String())
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/", r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"message":"ok"}`)
	}))
	defer srv.Close()

	c, err := api.Open(srv.URL+"/api",
		api.WithHealthURL(srv.URL+"/"),
		api.WithTokenProvider(api.TokenProviderFunc(func() string { return "tok" })),
	)
	require.NoError(t, err)
	require.NoError(t, c.Health(context.Background()))
	require.True(t, api.HealthProber{Client: c}.Probe(context.Background()))
}

func TestLaborProgress_OmitsBlankComment(t *testing.T) {
	var bodies []map[string]any
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		writeJSON(w, http.StatusOK, farm.Labor{ID: 5, State: farm.StateInProgress})
	}))

	_, err := c.RegisterLaborProgress(context.Background(), 5, 40, "")
	require.NoError(t, err)
	_, err = c.CompleteLabor(context.Background(), 5, "cosecha lista")
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	require.NotContains(t, bodies[0], "comentario")
	require.EqualValues(t, 40, bodies[0]["avance_porcentaje"])
	require.Equal(t, "cosecha lista", bodies[1]["comentario"])
}
