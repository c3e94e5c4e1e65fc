package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ouraring/internal/sensor"
	"ouraring/internal/sleep"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSensor struct {
	state sensor.State
}

func (s *stubSensor) Snapshot() sensor.State { return s.state }

type stubTrigger struct {
	calls   int
	pending bool
}

func (t *stubTrigger) Trigger() bool {
	t.calls++
	if t.pending {
		return false
	}
	t.pending = true
	return true
}

func newTestServer(state sensor.State) (*Server, *stubTrigger) {
	trigger := &stubTrigger{}
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{Name: "ouraring_test_gauge", Help: "test"}))
	return NewServer(&stubSensor{state: state}, trigger, reg, zap.NewNop(), 8081), trigger
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleGetSleep(t *testing.T) {
	refreshed := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
	server, _ := newTestServer(sensor.State{
		Score: 82,
		Attributes: sleep.Attributes{
			sleep.AttrDate:               "2024-01-02",
			sleep.AttrTotalSleepDuration: 7.39,
		},
		LastRefresh:       refreshed,
		AttributesUpdated: true,
	})

	w := serve(server, http.MethodGet, "/api/sleep")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response SleepResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "Oura Ring Sleep", response.Name)
	assert.Equal(t, "mdi:sleep", response.Icon)
	assert.Equal(t, 82, response.Score)
	assert.True(t, response.AttributesUpdated)
	assert.Equal(t, "2024-01-02", response.Attributes[sleep.AttrDate])
	assert.Equal(t, 7.39, response.Attributes[sleep.AttrTotalSleepDuration])
	require.NotNil(t, response.LastRefresh)
	assert.True(t, refreshed.Equal(*response.LastRefresh))
}

func TestHandleGetSleep_BeforeFirstRefresh(t *testing.T) {
	server, _ := newTestServer(sensor.State{})

	w := serve(server, http.MethodGet, "/api/sleep")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"score":0`)
	assert.Contains(t, w.Body.String(), `"data":null`)
	assert.NotContains(t, w.Body.String(), "last_refresh")
}

func TestHandleRefresh(t *testing.T) {
	server, trigger := newTestServer(sensor.State{})

	w := serve(server, http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"queued"`)

	w = serve(server, http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"already_pending"`)

	w = serve(server, http.MethodGet, "/api/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, 2, trigger.calls)
}

func TestHandleHealth(t *testing.T) {
	server, _ := newTestServer(sensor.State{})

	w := serve(server, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "ok", response["status"])
}

func TestHandleMetrics(t *testing.T) {
	server, _ := newTestServer(sensor.State{})

	w := serve(server, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ouraring_test_gauge")
}

func TestHandleMetrics_Disabled(t *testing.T) {
	server := NewServer(&stubSensor{}, &stubTrigger{}, nil, zap.NewNop(), 8081)

	w := serve(server, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleSitemap(t *testing.T) {
	server, _ := newTestServer(sensor.State{})

	w := serve(server, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	for _, ep := range endpoints {
		assert.True(t, strings.Contains(body, ep.Path), "sitemap should list %s", ep.Path)
	}

	w = serve(server, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_StartStop(t *testing.T) {
	server := NewServer(&stubSensor{}, &stubTrigger{}, nil, zap.NewNop(), 0)
	require.NoError(t, server.Start())
	assert.NoError(t, server.Stop(context.Background()))
}
