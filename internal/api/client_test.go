package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"opsboard/internal/api"
	"opsboard/internal/domain"
	"opsboard/internal/session"
)

// countingStore wraps a session store and counts Clear calls.
type countingStore struct {
	session.Store
	clears atomic.Int64
}

func (c *countingStore) Clear(ctx context.Context) error {
	c.clears.Add(1)
	return c.Store.Clear(ctx)
}

func newClient(t *testing.T, handler http.Handler) (*api.Client, *countingStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	store := &countingStore{Store: session.NewMemory()}
	c := api.New(srv.URL+"/api/v1", store)
	c.FetchRetries = 0
	return c, store
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestLoginStoresToken(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/v1/login", func(w http.ResponseWriter, req *http.Request) {
		var creds map[string]string
		require.NoError(t, json.NewDecoder(req.Body).Decode(&creds))
		require.Equal(t, "ipetrov", creds["username"])
		require.Empty(t, req.Header.Get("X-Auth-Token"))
		_, _ = w.Write([]byte("tok-123"))
	})
	c, store := newClient(t, r)

	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "ipetrov", "secret"))
	tok, err := store.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "tok-123", tok)
}

func TestLoginRejected(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/v1/login", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	c, store := newClient(t, r)

	ctx := context.Background()
	err := c.Login(ctx, "ipetrov", "wrong")
	var authErr *api.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.False(t, session.Active(ctx, store))
	require.EqualValues(t, 0, store.clears.Load())
}

func TestLoginEmptyToken(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/v1/login", func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(`""`))
	})
	c, _ := newClient(t, r)

	err := c.Login(context.Background(), "ipetrov", "secret")
	var authErr *api.AuthenticationError
	require.ErrorAs(t, err, &authErr)
}

func TestTokenAttachedToCalls(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/admin/get/all/system_admins", func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "tok-123", req.Header.Get("X-Auth-Token"))
		require.NotEmpty(t, req.Header.Get("X-Request-Id"))
		writeJSON(w, []domain.Administrator{{ID: "a-1", Username: "ipetrov"}})
	})
	c, store := newClient(t, r)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "tok-123"))
	admins, err := c.ListAdministrators(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	require.Equal(t, "a-1", admins[0].ID)
}

func TestSessionInvalidClearsTokenOnce(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/admin/get/all/incidents", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	r.Patch("/api/v1/admin/update/incident", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	c, store := newClient(t, r)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "stale"))

	_, err := c.ListIncidents(ctx)
	var expired *api.SessionExpiredError
	require.ErrorAs(t, err, &expired)
	require.False(t, session.Active(ctx, store))
	require.EqualValues(t, 1, store.clears.Load())

	// mutations classify the same way
	require.NoError(t, store.Set(ctx, "stale-again"))
	_, err = c.UpdateIncident(ctx, domain.Incident{ID: "i-1", Description: "x"})
	require.ErrorAs(t, err, &expired)
	require.EqualValues(t, 2, store.clears.Load())
}

func TestForbiddenNamesCapabilityAndKeepsSession(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/v1/admin/archive/incident", func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "i-9", req.URL.Query().Get("id"))
		w.WriteHeader(http.StatusForbidden)
	})
	c, store := newClient(t, r)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "tok"))

	err := c.ArchiveIncident(ctx, "i-9")
	var authz *api.AuthorizationError
	require.ErrorAs(t, err, &authz)
	require.Equal(t, "archive incident", authz.Capability)
	require.True(t, session.Active(ctx, store))
	require.EqualValues(t, 0, store.clears.Load())
}

func TestServerFaultSurfacesAsRemoteError(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/v1/admin/create/incident", func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	c, store := newClient(t, r)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "tok"))

	_, err := c.CreateIncident(ctx, domain.Incident{Description: "x"})
	var remote *api.RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, http.StatusInternalServerError, remote.StatusCode)
	require.True(t, session.Active(ctx, store))
}

func TestFetchRetriesTransientFault(t *testing.T) {
	var calls atomic.Int64
	r := chi.NewRouter()
	r.Get("/api/v1/admin/get/all/incidents/zabbix", func(w http.ResponseWriter, req *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, []domain.AlertEntry{{Number: 7, Description: "cpu load"}})
	})
	c, store := newClient(t, r)
	c.FetchRetries = 2
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "tok"))

	entries, err := c.AlertLog(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.EqualValues(t, 2, calls.Load())
}

func TestConcurrentFetchesOnFreshClient(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/admin/get/all/incidents", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, []domain.Incident{{ID: "i-1", Description: "db down", Status: domain.StatusInProcess}})
	})
	r.Get("/api/v1/admin/get/all/system_admins", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, []domain.Administrator{{ID: "a-1", Username: "ipetrov"}})
	})
	c, store := newClient(t, r)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "tok"))

	// The board load fetches both collections in parallel on a client that
	// has issued no request yet.
	g, gctx := errgroup.WithContext(ctx)
	var (
		incidents []domain.Incident
		admins    []domain.Administrator
	)
	g.Go(func() error {
		var err error
		incidents, err = c.ListIncidents(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		admins, err = c.ListAdministrators(gctx)
		return err
	})
	require.NoError(t, g.Wait())
	require.Len(t, incidents, 1)
	require.Len(t, admins, 1)
}

func TestFetchDoesNotRetryClientFault(t *testing.T) {
	var calls atomic.Int64
	r := chi.NewRouter()
	r.Get("/api/v1/admin/get/all/incidents", func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		http.Error(w, "no such collection", http.StatusNotFound)
	})
	c, store := newClient(t, r)
	c.FetchRetries = 5
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "tok"))

	_, err := c.ListIncidents(ctx)
	var remote *api.RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, http.StatusNotFound, remote.StatusCode)
	require.EqualValues(t, 1, calls.Load())
}

func TestMutationsAreNotRetried(t *testing.T) {
	var calls atomic.Int64
	r := chi.NewRouter()
	r.Patch("/api/v1/admin/update/incident", func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	c, store := newClient(t, r)
	c.FetchRetries = 5
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "tok"))

	_, err := c.UpdateIncident(ctx, domain.Incident{ID: "i-1", Description: "x"})
	var remote *api.RemoteError
	require.ErrorAs(t, err, &remote)
	require.EqualValues(t, 1, calls.Load())
}

func TestAdministratorUpdateOmitsUsername(t *testing.T) {
	r := chi.NewRouter()
	r.Patch("/api/v1/admin/update/system_admin", func(w http.ResponseWriter, req *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
		require.NotContains(t, payload, "username")
		require.Equal(t, "a-1", payload["id"])
		writeJSON(w, domain.Administrator{ID: "a-1", FirstName: "Ivan", LastName: "Sidorov"})
	})
	c, store := newClient(t, r)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "tok"))

	updated, err := c.UpdateAdministrator(ctx, domain.Administrator{
		ID: "a-1", Username: "ipetrov", FirstName: "Ivan", LastName: "Sidorov",
	})
	require.NoError(t, err)
	require.Equal(t, "Sidorov", updated.LastName)
}

func TestCreateReturnsAuthoritativeEntity(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/v1/admin/create/incident", func(w http.ResponseWriter, req *http.Request) {
		var inc domain.Incident
		require.NoError(t, json.NewDecoder(req.Body).Decode(&inc))
		inc.ID = "srv-42"
		writeJSON(w, inc)
	})
	c, store := newClient(t, r)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "tok"))

	created, err := c.CreateIncident(ctx, domain.Incident{Description: "disk full", Status: domain.StatusInProcess})
	require.NoError(t, err)
	require.Equal(t, "srv-42", created.ID)
	require.Equal(t, "disk full", created.Description)
}
