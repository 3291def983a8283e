package app

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newFakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /zm/api/host/login.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"acc","access_token_expires":7200,"refresh_token":"ref","refresh_token_expires":86400}`))
	})
	mux.HandleFunc("GET /zm/api/monitors.json", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "acc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"monitors":[{"Monitor":{"Id":"1","Name":"Front"},"Monitor_Status":{"Status":"Connected"}}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func freePort(t *testing.T) uint16 {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return uint16(port)
}

func newTestConfig(t *testing.T, baseURL string) *Config {
	t.Helper()
	cfg := &Config{
		API:    APIConfig{BaseURL: baseURL},
		Auth:   AuthConfig{Storage: StorageTypeMemory},
		Server: ServerConfig{Port: freePort(t)},
	}
	require.NoError(t, cfg.ApplyDefaults())
	return cfg
}

func TestNew_WiresSessionAndMonitors(t *testing.T) {
	srv := newFakeAPI(t)
	ctx := context.Background()

	a, err := New(ctx, newTestConfig(t, srv.URL+"/zm/api"))
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	require.False(t, a.Session().State().IsAuthenticated())
	require.NoError(t, a.Session().Login(ctx, "admin", "password"))

	list, err := a.Monitors().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Front", list[0].Monitor.Name)
	require.NotNil(t, a.Poller())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := &Config{}
	_, err := New(context.Background(), cfg)
	require.ErrorContains(t, err, "invalid configuration")
}

func TestStart_ProxiesUntilCancelled(t *testing.T) {
	srv := newFakeAPI(t)
	cfg := newTestConfig(t, srv.URL+"/zm/api")

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, a.Session().Login(context.Background(), "admin", "password"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Start(ctx) }()

	url := "http://" + net.JoinHostPort(cfg.Server.Host, strconv.Itoa(int(cfg.Server.Port))) + "/monitors.json"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
}
