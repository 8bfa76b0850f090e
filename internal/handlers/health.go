package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

type HealthChecker interface {
	Health(ctx context.Context) error
}

// namedChecker keeps checks in a stable order in responses and logs.
type namedChecker struct {
	name    string
	checker HealthChecker
}

type HealthHandler struct {
	checks []namedChecker
}

// NewHealthHandler takes the backing stores by name. Nil checkers are
// skipped so only the configured store backend is reported.
func NewHealthHandler(checkers map[string]HealthChecker) *HealthHandler {
	h := &HealthHandler{}
	for name, c := range checkers {
		if c == nil {
			continue
		}
		h.checks = append(h.checks, namedChecker{name: name, checker: c})
	}
	sort.Slice(h.checks, func(i, j int) bool { return h.checks[i].name < h.checks[j].name })
	return h
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Checks:    make(map[string]string, len(h.checks)),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	for _, c := range h.checks {
		if err := c.checker.Health(ctx); err != nil {
			response.Status = "unhealthy"
			response.Checks[c.name] = "unhealthy: " + err.Error()
		} else {
			response.Checks[c.name] = "healthy"
		}
	}

	w.Header().Set("Content-Type", "application/json")

	if response.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(response)
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, c := range h.checks {
		if err := c.checker.Health(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}
