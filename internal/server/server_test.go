package server

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

	"codeberg.org/mutker/telemetrylab/internal/events"
	"codeberg.org/mutker/telemetrylab/internal/power"
	"codeberg.org/mutker/telemetrylab/internal/scheduler"
	"codeberg.org/mutker/telemetrylab/internal/telemetry"
	"codeberg.org/mutker/telemetrylab/internal/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu        sync.Mutex
	running   bool
	starts    int
	stops     int
	intensity float64
}

func (f *fakeController) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.running = true
	return nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
}

func (f *fakeController) SetIntensity(v float64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intensity = v
	return int(v)
}

func (f *fakeController) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeController) RunID() string { return "fake" }

type fakePower struct {
	values []bool
}

func (f *fakePower) Update(v bool) { f.values = append(f.values, v) }

func newTestServer(t *testing.T, ctrl Controller, pw PowerUpdater) (*telemetry.Recorder, http.Handler) {
	t.Helper()

	rec, err := telemetry.NewRecorder(telemetry.DefaultConfig())
	require.NoError(t, err)

	var deps Deps
	deps.Scheduler = ctrl
	deps.Telemetry = rec
	if pw != nil {
		deps.Power = pw
	}
	deps.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})

	return rec, New(context.Background(), deps, nil).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	_, h := newTestServer(t, &fakeController{}, nil)

	w := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestControl(t *testing.T) {
	ctrl := &fakeController{}
	_, h := newTestServer(t, ctrl, nil)

	tests := []struct {
		name    string
		body    string
		code    int
		running bool
	}{
		{"empty body starts", "", http.StatusOK, true},
		{"explicit stop", `{"action":"stop"}`, http.StatusOK, false},
		{"explicit start", `{"action":"start"}`, http.StatusOK, true},
		{"unknown action", `{"action":"pause"}`, http.StatusBadRequest, true},
		{"malformed body", `{"action":`, http.StatusBadRequest, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/control", tt.body)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.running, ctrl.IsRunning())
		})
	}

	assert.Equal(t, 2, ctrl.starts)
	assert.Equal(t, 1, ctrl.stops)
}

func TestIntensity(t *testing.T) {
	ctrl := &fakeController{}
	_, h := newTestServer(t, ctrl, nil)

	w := do(t, h, http.MethodPut, "/intensity", `{"value":3.0}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"intensity":3}`, w.Body.String())
	assert.InDelta(t, 3.0, ctrl.intensity, 1e-9)

	w = do(t, h, http.MethodPut, "/intensity", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPower(t *testing.T) {
	pw := &fakePower{}
	_, h := newTestServer(t, &fakeController{}, pw)

	w := do(t, h, http.MethodPut, "/power", `{"power_save":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []bool{true}, pw.values)

	w = do(t, h, http.MethodPut, "/power", `{"mode":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPowerRouteOptional(t *testing.T) {
	_, h := newTestServer(t, &fakeController{}, nil)

	w := do(t, h, http.MethodPut, "/power", `{"power_save":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusAndHistory(t *testing.T) {
	rec, h := newTestServer(t, &fakeController{}, nil)
	rec.Handle(events.CycleCompleted{Cycle: 1, Timestamp: time.Now(), Latency: 20 * time.Millisecond, IsJank: true, Intensity: 2, RateHz: 20})

	w := do(t, h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap telemetry.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, 100.0, snap.JankPercent)
	assert.Equal(t, int64(20), snap.LatencyMs)
	assert.Len(t, snap.History, 1)

	w = do(t, h, http.MethodGet, "/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"index":1,"latency_ns":20000000,"is_jank":true}]`, w.Body.String())

	w = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, "# metrics\n", w.Body.String())
}

func TestControlDrivesScheduler(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(0)
	defer bus.Close()

	sched := scheduler.New(scheduler.DefaultConfig(), &power.State{}, workload.Func(func(int) error { return nil }), bus)
	rec, err := telemetry.NewRecorder(telemetry.DefaultConfig(), telemetry.WithRunStatus(sched))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx, sub.C())

	h := New(ctx, Deps{Scheduler: sched, Telemetry: rec}, nil).Handler()

	w := do(t, h, http.MethodPost, "/control", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, sched.IsRunning())

	assert.Eventually(t, func() bool { return rec.Snapshot().Cycles >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, rec.Snapshot().IsRunning)

	w = do(t, h, http.MethodPost, "/control", `{"action":"stop"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"running":false,"run_id":"`+sched.RunID()+`"}`, w.Body.String())
	assert.Equal(t, scheduler.StateStopped, sched.State())
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	rec, err := telemetry.NewRecorder(telemetry.DefaultConfig())
	require.NoError(t, err)
	s := New(context.Background(), Deps{Scheduler: &fakeController{}, Telemetry: rec}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	assert.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
