package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/zmsession/internal/credstore"
	"github.com/florianilch/zmsession/internal/gateway"
	"github.com/florianilch/zmsession/internal/session"
	"github.com/florianilch/zmsession/internal/zmapi"
)

// fakeZM is a minimal ZoneMinder API: login/refresh plus a configurable handler
// for everything else.
type fakeZM struct {
	server      *httptest.Server
	api         *zmapi.Client
	logins      atomic.Int32
	renews      atomic.Int32
	calls       atomic.Int32
	failRefresh atomic.Bool

	mu      sync.Mutex
	handler http.HandlerFunc
}

func newFakeZM(t *testing.T) *fakeZM {
	t.Helper()
	f := &fakeZM{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /zm/api/host/login.json", func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseForm()) {
			return
		}
		if token := r.PostForm.Get("token"); token != "" {
			f.renews.Add(1)
			if f.failRefresh.Load() || token != "refresh-1" {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			writeJSON(w, map[string]any{"access_token": "access-2", "access_token_expires": 7200})
			return
		}
		f.logins.Add(1)
		writeJSON(w, map[string]any{
			"access_token":          "access-1",
			"access_token_expires":  7200,
			"refresh_token":         "refresh-1",
			"refresh_token_expires": 86400,
		})
	})
	mux.HandleFunc("/zm/api/", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		f.mu.Lock()
		h := f.handler
		f.mu.Unlock()
		h(w, r)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	api, err := zmapi.NewClient(f.server.URL + "/zm/api")
	require.NoError(t, err)
	f.api = api
	return f
}

func (f *fakeZM) handle(h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type fixture struct {
	zm      *fakeZM
	now     time.Time
	slot    *credstore.MemorySlot
	manager *session.Manager
	gateway *gateway.Gateway
}

func newFixture(t *testing.T, loggedIn bool) *fixture {
	t.Helper()
	f := &fixture{
		zm:   newFakeZM(t),
		now:  time.UnixMilli(1_760_000_000_000),
		slot: credstore.NewMemorySlot(),
	}
	clock := func() time.Time { return f.now }

	store, err := credstore.NewStore(f.slot, credstore.WithClock(clock))
	require.NoError(t, err)

	f.manager, err = session.NewManager(context.Background(), f.zm.api, store, session.WithClock(clock))
	require.NoError(t, err)

	f.gateway, err = gateway.New(f.manager, f.zm.api)
	require.NoError(t, err)

	if loggedIn {
		require.NoError(t, f.manager.Login(context.Background(), "admin", "password"))
	}
	return f
}

func (f *fixture) requireLoggedOut(t *testing.T) {
	t.Helper()
	require.False(t, f.manager.State().IsAuthenticated())
	_, err := f.slot.Get(context.Background())
	require.ErrorIs(t, err, credstore.ErrNotFound)
}

type monitorsResponse struct {
	Monitors []struct {
		Monitor struct {
			ID   string `json:"Id"`
			Name string `json:"Name"`
		} `json:"Monitor"`
	} `json:"monitors"`
}

func TestRequest_AttachesToken(t *testing.T) {
	f := newFixture(t, true)
	f.zm.handle(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/zm/api/monitors.json", r.URL.Path)
		assert.Equal(t, "access-1", r.URL.Query().Get("token"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		writeJSON(w, map[string]any{"monitors": []any{
			map[string]any{"Monitor": map[string]any{"Id": "1", "Name": "Front"}},
		}})
	})

	res, err := gateway.Request[monitorsResponse](context.Background(), f.gateway, "/monitors.json")
	require.NoError(t, err)
	require.Len(t, res.Monitors, 1)
	require.Equal(t, "Front", res.Monitors[0].Monitor.Name)
}

func TestRequest_KeepsQueryAndReplacesToken(t *testing.T) {
	f := newFixture(t, true)
	f.zm.handle(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, []string{"access-1"}, q["token"])
		writeJSON(w, map[string]any{})
	})

	_, err := gateway.Request[map[string]any](context.Background(), f.gateway, "/events/index.json?page=2&token=stale")
	require.NoError(t, err)
}

func TestRequest_Form(t *testing.T) {
	f := newFixture(t, true)
	f.zm.handle(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "Modect", r.PostForm.Get("Monitor[Function]"))
		writeJSON(w, map[string]any{"message": "Saved"})
	})

	res, err := gateway.Request[map[string]string](context.Background(), f.gateway, "/monitors/1.json",
		gateway.WithMethod(http.MethodPost),
		gateway.WithForm(url.Values{"Monitor[Function]": {"Modect"}}),
	)
	require.NoError(t, err)
	require.Equal(t, "Saved", res["message"])
}

func TestRequest_UnauthorizedEndsSession(t *testing.T) {
	f := newFixture(t, true)
	f.zm.handle(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})

	_, err := gateway.Request[map[string]any](context.Background(), f.gateway, "/monitors.json")
	require.True(t, zmapi.IsSessionExpired(err))
	require.Equal(t, int32(1), f.zm.calls.Load(), "no retry after authorization failure")
	require.Zero(t, f.zm.renews.Load())
	f.requireLoggedOut(t)

	// A follow-up call fails before reaching the API
	_, err = gateway.Request[map[string]any](context.Background(), f.gateway, "/monitors.json")
	require.True(t, zmapi.IsSessionExpired(err))
	require.Equal(t, int32(1), f.zm.calls.Load())
}

func TestRequest_OtherFailuresKeepSession(t *testing.T) {
	tests := []struct {
		status int
		reason string
	}{
		{status: http.StatusForbidden, reason: "Forbidden"},
		{status: http.StatusNotFound, reason: "Not Found"},
		{status: http.StatusInternalServerError, reason: "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			f := newFixture(t, true)
			f.zm.handle(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := gateway.Request[map[string]any](context.Background(), f.gateway, "/monitors.json")
			var reqErr *zmapi.RequestError
			require.ErrorAs(t, err, &reqErr)
			require.Equal(t, tt.status, reqErr.StatusCode)
			require.Equal(t, tt.reason, reqErr.Status)
			require.False(t, zmapi.IsSessionExpired(err))
			require.True(t, f.manager.State().IsAuthenticated())
		})
	}
}

func TestRequest_TransportFailureKeepsSession(t *testing.T) {
	f := newFixture(t, true)
	f.zm.handle(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !assert.True(t, ok) {
			return
		}
		conn, _, err := hj.Hijack()
		if assert.NoError(t, err) {
			_ = conn.Close()
		}
	})

	_, err := gateway.Request[map[string]any](context.Background(), f.gateway, "/monitors.json")
	require.Error(t, err)
	require.False(t, zmapi.IsSessionExpired(err))
	require.NotContains(t, err.Error(), "access-1", "token must not leak into errors")
	require.True(t, f.manager.State().IsAuthenticated())
}

func TestRequest_NotLoggedIn(t *testing.T) {
	f := newFixture(t, false)
	f.zm.handle(func(w http.ResponseWriter, r *http.Request) {
		t.Error("API must not be called without a token")
	})

	_, err := gateway.Request[map[string]any](context.Background(), f.gateway, "/monitors.json")
	require.True(t, zmapi.IsSessionExpired(err))
	require.Zero(t, f.zm.calls.Load())
}

func TestRequest_RenewsStaleToken(t *testing.T) {
	f := newFixture(t, true)
	f.now = f.now.Add(7150 * time.Second)
	f.zm.handle(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "access-2", r.URL.Query().Get("token"))
		writeJSON(w, map[string]any{})
	})

	_, err := gateway.Request[map[string]any](context.Background(), f.gateway, "/monitors.json")
	require.NoError(t, err)
	require.Equal(t, int32(1), f.zm.renews.Load())
	require.Equal(t, "refresh-1", f.manager.State().Record().RefreshToken)
}

func TestRequest_FailedRenewalEndsSession(t *testing.T) {
	f := newFixture(t, true)
	f.zm.failRefresh.Store(true)
	f.now = f.now.Add(7200 * time.Second)

	_, err := gateway.Request[map[string]any](context.Background(), f.gateway, "/monitors.json")
	require.True(t, zmapi.IsSessionExpired(err))
	require.Equal(t, int32(1), f.zm.renews.Load())
	require.Zero(t, f.zm.calls.Load())
	f.requireLoggedOut(t)
}

func TestTransport_PassesThroughStatuses(t *testing.T) {
	f := newFixture(t, true)
	f.zm.handle(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "access-1", r.URL.Query().Get("token"))
		http.Error(w, "no such monitor", http.StatusNotFound)
	})

	client := &http.Client{Transport: f.gateway.Transport(nil)}
	u, err := f.zm.api.ResolveURL("/monitors/99.json")
	require.NoError(t, err)

	resp, err := client.Get(u.String())
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.True(t, f.manager.State().IsAuthenticated())
}

func TestTransport_UnauthorizedEndsSession(t *testing.T) {
	f := newFixture(t, true)
	f.zm.handle(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	client := &http.Client{Transport: f.gateway.Transport(nil)}
	u, err := f.zm.api.ResolveURL("/monitors.json")
	require.NoError(t, err)

	_, err = client.Get(u.String())
	require.True(t, zmapi.IsSessionExpired(err))
	f.requireLoggedOut(t)
}

func TestNew(t *testing.T) {
	api, err := zmapi.NewClient("http://nvr.local/zm/api")
	require.NoError(t, err)

	_, err = gateway.New(nil, api)
	require.Error(t, err)
}
