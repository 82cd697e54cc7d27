package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/config"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/logging"
)

type stubCheck struct{ err error }

func (c stubCheck) HealthCheck(context.Context) error { return c.err }

func testServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error"}, "test", "test")
	}
	if deps.Service == "" {
		deps.Service = "controller"
	}
	if deps.Version == "" {
		deps.Version = "0.1-beta"
	}
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresLogger(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger should fail")
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthChecker
		wantCode   int
		wantStatus string
	}{
		{"no components", nil, http.StatusOK, "ok"},
		{"all healthy", map[string]HealthChecker{"mqtt": stubCheck{}, "database": stubCheck{}}, http.StatusOK, "ok"},
		{"one failing", map[string]HealthChecker{"mqtt": stubCheck{errors.New("not connected")}, "database": stubCheck{}}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, Deps{Checks: tt.checks})
			rec := doRequest(t, srv, http.MethodGet, "/api/v1/health")

			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantCode)
			}
			var resp HealthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.Service != "controller" || resp.Version != "0.1-beta" {
				t.Errorf("service/version = %q/%q", resp.Service, resp.Version)
			}
			for name := range tt.checks {
				if _, ok := resp.Components[name]; !ok {
					t.Errorf("component %q missing from response", name)
				}
			}
		})
	}
}

func TestStatus(t *testing.T) {
	t.Run("with provider", func(t *testing.T) {
		srv := testServer(t, Deps{Status: func() any {
			return map[string]any{"switch": "ON", "ticks": 3}
		}})
		rec := doRequest(t, srv, http.MethodGet, "/api/v1/status")
		if rec.Code != http.StatusOK {
			t.Fatalf("status code = %d, want 200", rec.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if body["switch"] != "ON" {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("without provider", func(t *testing.T) {
		srv := testServer(t, Deps{})
		rec := doRequest(t, srv, http.MethodGet, "/api/v1/status")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status code = %d, want 404", rec.Code)
		}
	})
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_events_total", Help: "Test counter."})
	reg.MustRegister(counter)
	counter.Add(2)

	srv := testServer(t, Deps{Gatherer: reg})
	rec := doRequest(t, srv, http.MethodGet, "/metrics")

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_events_total 2") {
		t.Errorf("metrics body missing counter:\n%s", rec.Body.String())
	}
}

func TestRequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := testServer(t, Deps{Gatherer: reg, Registerer: reg})
	router := srv.buildRouter()

	for _, path := range []string{"/api/v1/health", "/api/v1/health", "/api/v1/nope"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(srv.metrics.requests.WithLabelValues("/api/v1/health", "200")); got != 2 {
		t.Errorf("health requests = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(srv.metrics.requests); got != 2 {
		t.Errorf("request series = %d, want 2", got)
	}
}

func TestRequestID(t *testing.T) {
	srv := testServer(t, Deps{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID should be generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec = httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID = %q, want abc123", got)
	}
}

func TestNotFoundAndMethod(t *testing.T) {
	srv := testServer(t, Deps{})

	if rec := doRequest(t, srv, http.MethodGet, "/api/v1/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path code = %d, want 404", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodPost, "/api/v1/health"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /health code = %d, want 405", rec.Code)
	}
}

func TestRecovery(t *testing.T) {
	srv := testServer(t, Deps{Status: func() any { panic("boom") }})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/status")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status code = %d, want 500", rec.Code)
	}
}

func TestStartClose(t *testing.T) {
	srv := testServer(t, Deps{Config: config.APIConfig{
		Host:     "127.0.0.1",
		Port:     0,
		Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
	}})

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close() //nolint:errcheck // test
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status code = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if srv.Addr() != "" {
		t.Error("Addr() should be empty after Close")
	}
}
