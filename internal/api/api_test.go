package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oarkflow/processguard/internal/alert"
	"github.com/oarkflow/processguard/internal/facade"
	"github.com/oarkflow/processguard/internal/logs"
	"github.com/oarkflow/processguard/internal/model"
	"github.com/oarkflow/processguard/internal/sampler"
	"github.com/oarkflow/processguard/internal/supervisor"
)

func newTestServer(t *testing.T) (*Server, *supervisor.Manager, *facade.Fake) {
	t.Helper()
	lm, err := logs.New(logs.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	bus := alert.New(alert.Options{})
	fake := facade.NewFake()
	mgr := supervisor.New(fake, lm, bus)
	samp := sampler.New(time.Hour, fake, mgr, bus)
	return New(mgr, bus, samp, fake, 10*time.Second), mgr, fake
}

func doJSON(t *testing.T, srv *Server, method, path string, body []byte) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestCreateAndGetProcess(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body, _ := json.Marshal(model.ProcessDescriptor{Name: "web", Command: "serve", WorkingDir: "."})
	resp, _ := doJSON(t, srv, http.MethodPost, "/api/v1/processes", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, out := doJSON(t, srv, http.MethodGet, "/api/v1/processes/web", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "stopped", out["state"])
}

func TestGetUnknownProcessReturns404(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, out := doJSON(t, srv, http.MethodGet, "/api/v1/processes/ghost", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", out["error"])
}

func TestStartRejectedByDependencyGate(t *testing.T) {
	srv, mgr, _ := newTestServer(t)
	mgr.Register(model.ProcessDescriptor{Name: "db", Command: "db", WorkingDir: "."})
	mgr.Register(model.ProcessDescriptor{Name: "api", Command: "api", WorkingDir: ".", Dependencies: []string{"db"}})

	resp, out := doJSON(t, srv, http.MethodPost, "/api/v1/processes/api/start", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "dependency_not_ready", out["error"])
}

func TestHealthBeforeFirstTick(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
