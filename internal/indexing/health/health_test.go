package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/logindex/internal/core/cursor"
	"github.com/vietddude/logindex/internal/core/domain"
)

// stubIndex reports a fixed state.
type stubIndex struct {
	name  string
	state domain.State
	rate  float64
}

func (s *stubIndex) Name() string            { return s.name }
func (s *stubIndex) GetState() domain.State  { return s.state }
func (s *stubIndex) Metrics() cursor.Metrics { return cursor.Metrics{EntriesPerSecond: s.rate} }

func state(status domain.Status, total, indexed uint64) domain.State {
	return domain.State{Status: status, Context: domain.Progress{TotalBlocks: total, IndexedBlocks: indexed}}
}

func TestMonitor_Status(t *testing.T) {
	tests := []struct {
		name  string
		state domain.State
		want  SystemStatus
	}{
		{"idle", state(domain.StatusIdle, 10, 10), StatusHealthy},
		{"indexing", state(domain.StatusIndexing, 100, 50), StatusHealthy},
		{"lagging", state(domain.StatusIndexing, 200, 50), StatusDegraded},
		{"paused", state(domain.StatusPaused, 10, 10), StatusDegraded},
		{"error", state(domain.StatusError, 10, 5), StatusCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(&stubIndex{name: "kv", state: tt.state})
			m.LagThreshold = 100
			report := m.CheckHealth(context.Background())
			if report.SystemStatus != tt.want {
				t.Errorf("system status = %s, want %s", report.SystemStatus, tt.want)
			}
			if got := report.Indexes["kv"].Status; got != tt.want {
				t.Errorf("index status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMonitor_ReportsErrorAndLag(t *testing.T) {
	s := state(domain.StatusError, 10, 4)
	s.Context.Error = errors.New("disk full")
	m := NewMonitor(&stubIndex{name: "kv", state: s, rate: 12.5})

	h := m.CheckHealth(context.Background()).Indexes["kv"]
	if h.Error != "disk full" || h.Lag != 6 || h.EntriesPerSecond != 12.5 {
		t.Errorf("unexpected index health %+v", h)
	}
}

func TestMonitor_Components(t *testing.T) {
	m := NewMonitor(&stubIndex{name: "kv", state: state(domain.StatusIdle, 0, 0)})
	m.AddComponent("redis", func(context.Context) error { return errors.New("connection refused") })
	m.AddComponent("sql", func(context.Context) error { return nil })

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusDegraded {
		t.Errorf("status = %s, want degraded", report.SystemStatus)
	}
	if len(report.Components) != 2 || report.Components[0].Name != "redis" {
		t.Fatalf("components = %+v", report.Components)
	}
	if report.Components[0].Error == "" || report.Components[1].Status != StatusHealthy {
		t.Errorf("components = %+v", report.Components)
	}
}

func TestMonitor_Caches(t *testing.T) {
	idx := &stubIndex{name: "kv", state: state(domain.StatusIdle, 0, 0)}
	m := NewMonitor(idx)

	_ = m.CheckHealth(context.Background())
	idx.state = state(domain.StatusError, 0, 0)
	if got := m.CheckHealth(context.Background()).SystemStatus; got != StatusHealthy {
		t.Errorf("cached status = %s, want healthy", got)
	}

	m.CacheFor = 0
	if got := m.CheckHealth(context.Background()).SystemStatus; got != StatusCritical {
		t.Errorf("fresh status = %s, want critical", got)
	}
}

func TestServer_Health(t *testing.T) {
	idx := &stubIndex{name: "kv", state: state(domain.StatusIdle, 3, 3)}
	m := NewMonitor(idx)
	m.CacheFor = 0
	srv := httptest.NewServer(NewServer(m, 0).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status code = %d, want 200", resp.StatusCode)
	}

	idx.state = state(domain.StatusError, 3, 1)
	resp, err = http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want 503", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/health/detailed")
	if err != nil {
		t.Fatalf("GET /health/detailed: %v", err)
	}
	defer resp.Body.Close()
	var report HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Indexes["kv"].EngineStatus != "error" || report.Indexes["kv"].Lag != 2 {
		t.Errorf("detailed report = %+v", report.Indexes["kv"])
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status code = %d", resp.StatusCode)
	}
}

func TestServer_Ready(t *testing.T) {
	idx := &stubIndex{name: "kv", state: state(domain.StatusIndexing, 5, 2)}
	m := NewMonitor(idx)
	m.CacheFor = 0
	srv := httptest.NewServer(NewServer(m, 0).Handler())
	defer srv.Close()

	get := func() (int, map[string]any) {
		t.Helper()
		resp, err := http.Get(srv.URL + "/ready")
		if err != nil {
			t.Fatalf("GET /ready: %v", err)
		}
		defer resp.Body.Close()
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp.StatusCode, body
	}

	code, body := get()
	if code != http.StatusServiceUnavailable || body["ready"] != false {
		t.Errorf("while indexing: code=%d body=%v", code, body)
	}

	idx.state = state(domain.StatusIdle, 5, 5)
	code, body = get()
	if code != http.StatusOK || body["ready"] != true {
		t.Errorf("when caught up: code=%d body=%v", code, body)
	}

	// Entries announced by a replica but not downloaded yet.
	idx.state = state(domain.StatusIdle, 8, 5)
	code, body = get()
	if code != http.StatusOK || body["ready"] != true {
		t.Errorf("idle with remote entries: code=%d body=%v", code, body)
	}
	if lag, _ := body["lag"].(map[string]any); lag["kv"] != float64(3) {
		t.Errorf("lag = %v, want 3", body["lag"])
	}
}

func TestGRPCServer_Refresh(t *testing.T) {
	idx := &stubIndex{name: "kv", state: state(domain.StatusPaused, 0, 0)}
	m := NewMonitor(idx)
	m.CacheFor = 0
	s := NewGRPCServer(m, 0)
	ctx := context.Background()

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q): %v", service, err)
		}
		return resp.GetStatus()
	}

	s.Refresh(ctx)
	if got := check("kv"); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("paused index = %s, want SERVING", got)
	}

	idx.state = state(domain.StatusError, 0, 0)
	s.Refresh(ctx)
	if got := check(""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("system = %s, want NOT_SERVING", got)
	}
	if got := check("kv"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("failed index = %s, want NOT_SERVING", got)
	}
}
