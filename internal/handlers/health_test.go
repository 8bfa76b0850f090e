package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type mockHealthChecker struct {
	err   error
	calls int
}

func (m *mockHealthChecker) Health(ctx context.Context) error {
	m.calls++
	return m.err
}

func decodeHealth(t *testing.T, rr *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var response HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return response
}

func TestHealthHandler_Health_AllHealthy(t *testing.T) {
	handler := NewHealthHandler(map[string]HealthChecker{
		"postgres": &mockHealthChecker{},
		"redis":    &mockHealthChecker{},
	})

	rr := httptest.NewRecorder()
	handler.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type: application/json, got %q", ct)
	}
	response := decodeHealth(t, rr)
	if response.Status != "healthy" || response.Checks["postgres"] != "healthy" || response.Checks["redis"] != "healthy" {
		t.Errorf("unexpected response: %+v", response)
	}
	if response.Timestamp == "" {
		t.Error("expected timestamp to be set")
	}
}

func TestHealthHandler_Health_OneUnhealthy(t *testing.T) {
	handler := NewHealthHandler(map[string]HealthChecker{
		"mongo": &mockHealthChecker{err: errors.New("server selection timeout")},
		"redis": &mockHealthChecker{},
	})

	rr := httptest.NewRecorder()
	handler.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rr.Code)
	}
	response := decodeHealth(t, rr)
	if response.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got %q", response.Status)
	}
	if response.Checks["mongo"] != "unhealthy: server selection timeout" {
		t.Errorf("unexpected mongo check: %q", response.Checks["mongo"])
	}
	if response.Checks["redis"] != "healthy" {
		t.Errorf("expected redis 'healthy', got %q", response.Checks["redis"])
	}
}

func TestHealthHandler_SkipsNilCheckers(t *testing.T) {
	handler := NewHealthHandler(map[string]HealthChecker{
		"postgres": &mockHealthChecker{},
		"mongo":    nil,
	})

	rr := httptest.NewRecorder()
	handler.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	response := decodeHealth(t, rr)
	if _, ok := response.Checks["mongo"]; ok {
		t.Error("expected nil checker to be skipped")
	}
	if len(response.Checks) != 1 {
		t.Errorf("expected one check, got %v", response.Checks)
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"healthy", nil, http.StatusOK, "ready"},
		{"unhealthy", errors.New("down"), http.StatusServiceUnavailable, "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(map[string]HealthChecker{
				"postgres": &mockHealthChecker{},
				"redis":    &mockHealthChecker{err: tt.err},
			})

			rr := httptest.NewRecorder()
			handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rr.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, rr.Code)
			}
			if rr.Body.String() != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, rr.Body.String())
			}
		})
	}
}

func TestHealthHandler_Live(t *testing.T) {
	checker := &mockHealthChecker{}
	handler := NewHealthHandler(map[string]HealthChecker{"postgres": checker})

	rr := httptest.NewRecorder()
	handler.Live(rr, httptest.NewRequest(http.MethodGet, "/live", nil))

	if rr.Code != http.StatusOK || rr.Body.String() != "alive" {
		t.Errorf("unexpected live response: %d %q", rr.Code, rr.Body.String())
	}
	if checker.calls != 0 {
		t.Error("live check should not touch dependencies")
	}
}
