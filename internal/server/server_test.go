package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngenohkevin/hivedeck-monitor/config"
	"github.com/ngenohkevin/hivedeck-monitor/internal/alerts"
	"github.com/ngenohkevin/hivedeck-monitor/internal/monitor"
	"github.com/ngenohkevin/hivedeck-monitor/internal/process"
	"github.com/ngenohkevin/hivedeck-monitor/internal/system"
)

const testKey = "test-api-key"

type staticSource struct{}

func (staticSource) CPU(context.Context) (*system.CPUReading, error) {
	return &system.CPUReading{Overall: 42, PerCore: []float64{40, 44}}, nil
}

func (staticSource) Memory(context.Context) (*system.MemoryReading, error) {
	return &system.MemoryReading{Total: 100, Used: 50, Percent: 50}, nil
}

func (staticSource) Swap(context.Context) (*system.MemoryReading, error) {
	return &system.MemoryReading{}, nil
}

func (staticSource) DiskUsage(_ context.Context, path string) (*system.DiskUsage, error) {
	return &system.DiskUsage{Path: path, Total: 100, Used: 10, Percent: 10}, nil
}

func (staticSource) DiskIO(context.Context) (*system.IOCounters, error) {
	return &system.IOCounters{}, nil
}

func (staticSource) NetIO(context.Context) (*system.NetCounters, error) {
	return &system.NetCounters{}, nil
}

func (staticSource) Battery(context.Context) (*system.BatteryReading, error) {
	return nil, system.ErrSensorUnavailable
}

func (staticSource) Processes(context.Context, process.SortKey, int) (*process.List, error) {
	return &process.List{Processes: []process.Info{}}, nil
}

type fixture struct {
	server *Server
	store  *config.Store
	mon    *monitor.Monitor
	router http.Handler
	cfg    *config.Config
}

func newFixture(t *testing.T, sample bool) *fixture {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.LogDir = filepath.Join(dir, "logs")
	cfg.ExportDir = filepath.Join(dir, "exports")
	cfg.Server.Enabled = true
	cfg.Server.APIKey = testKey
	cfg.Server.JWTSecret = "test-secret"
	cfg.Server.RateLimitRPS = 10000
	require.NoError(t, cfg.Validate())

	store := config.NewStore("", cfg)
	mon := monitor.New(store, staticSource{}, alerts.NewEngine())
	t.Cleanup(func() { _ = mon.Close(context.Background()) })
	if sample {
		mon.Step(context.Background())
	}

	srv := New(store, mon)
	return &fixture{server: srv, store: store, mon: mon, router: srv.Router(), cfg: cfg}
}

func (f *fixture) do(t *testing.T, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthNeedsNoAuth(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(t, "GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(t, "GET", "/api/snapshot", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, "GET", "/api/snapshot", testKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, 42.0, body["cpu_overall"])
	assert.Nil(t, body["battery"])
}

func TestSnapshotBeforeFirstTick(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(t, "GET", "/api/snapshot", testKey, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHistory(t *testing.T) {
	f := newFixture(t, true)
	f.mon.Step(context.Background())

	w := f.do(t, "GET", "/api/history/cpu_overall?n=1", testKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	points := decode(t, w)["points"].([]any)
	assert.Len(t, points, 1)

	w = f.do(t, "GET", "/api/history/cpu_overall", testKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["points"].([]any), 2)

	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/api/history/gpu", testKey, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/api/history/cpu_overall?n=-1", testKey, "").Code)

	w = f.do(t, "GET", "/api/series", testKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w)["series"], "memory.percent")
}

func TestTokenFlow(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(t, "POST", "/api/token", testKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	token, _ := decode(t, w)["token"].(string)
	require.NotEmpty(t, token)

	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/api/status", token, "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, "POST", "/api/token", token, "").Code)
}

func TestTokenNeedsAPIKey(t *testing.T) {
	f := newFixture(t, true)
	issued, _, err := f.server.auth.IssueToken(time.Hour)
	require.NoError(t, err)

	w := f.do(t, "POST", "/api/token", issued, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotContains(t, w.Body.String(), `"token"`)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, "POST", "/api/token", "", "").Code)
}

func TestInfoIsCached(t *testing.T) {
	f := newFixture(t, true)
	calls := 0
	f.server.handlers.readHost = func(context.Context) (*system.HostInfo, error) {
		calls++
		return &system.HostInfo{Hostname: "box", UptimeHuman: "5m"}, nil
	}

	for i := 0; i < 3; i++ {
		w := f.do(t, "GET", "/api/info", testKey, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "box", decode(t, w)["hostname"])
	}
	assert.Equal(t, 1, calls)
}

func TestInfoErrorNotCached(t *testing.T) {
	f := newFixture(t, true)
	fail := true
	f.server.handlers.readHost = func(context.Context) (*system.HostInfo, error) {
		if fail {
			return nil, system.ErrPermissionDenied
		}
		return &system.HostInfo{Hostname: "box"}, nil
	}

	assert.Equal(t, http.StatusInternalServerError, f.do(t, "GET", "/api/info", testKey, "").Code)
	fail = false
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/api/info", testKey, "").Code)
}

func TestUpdateConfig(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(t, "PUT", "/api/config", testKey, `{"update_interval": 0}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := decode(t, w)["fields"].(map[string]any)
	assert.Contains(t, fields, "update_interval")
	assert.Equal(t, 2, f.store.Get().UpdateInterval)

	w = f.do(t, "PUT", "/api/config", testKey, `{"update_interval": 5, "thresholds": {"cpu": 70}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, f.store.Get().UpdateInterval)
	assert.Equal(t, 70.0, f.store.Get().Thresholds.CPU)

	w = f.do(t, "PUT", "/api/config", testKey, `{"server": {"api_key": "stolen"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, testKey, f.store.Get().Server.APIKey)
}

func TestGetConfigRedactsSecrets(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(t, "GET", "/api/config", testKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), testKey)
	assert.NotContains(t, w.Body.String(), "test-secret")
	assert.Equal(t, testKey, f.store.Get().Server.APIKey)
}

func TestExport(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(t, "POST", "/api/export", testKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	path := decode(t, w)["path"].(string)
	_, err := os.Stat(path)
	assert.NoError(t, err)

	w = f.do(t, "POST", "/api/export?kind=history", testKey, "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/api/export?kind=xml", testKey, "").Code)
}

func TestSetLogging(t *testing.T) {
	f := newFixture(t, true)

	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/api/logging", testKey, `{}`).Code)

	w := f.do(t, "POST", "/api/logging", testKey, `{"enabled": true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.mon.Logging())
	assert.Equal(t, true, decode(t, w)["logging"])
}

func TestResetCooldown(t *testing.T) {
	f := newFixture(t, true)

	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/api/alerts/reset?metric=gpu", testKey, "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, "POST", "/api/alerts/reset?metric=cpu", testKey, "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, "POST", "/api/alerts/reset", testKey, "").Code)

	w := f.do(t, "GET", "/api/alerts", testKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, decode(t, w)["total"])
}

func TestWebSocketStreamsSnapshots(t *testing.T) {
	f := newFixture(t, true)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?token=" + testKey
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first map[string]any
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, 42.0, first["cpu_overall"])

	f.mon.Step(context.Background())
	var second map[string]any
	require.NoError(t, conn.ReadJSON(&second))
	assert.NotEqual(t, first["timestamp"], second["timestamp"])
}

func TestWebSocketRequiresAuth(t *testing.T) {
	f := newFixture(t, true)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
