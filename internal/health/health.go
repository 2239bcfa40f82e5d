// Package health serves the liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jensholdgaard/sneakerbid/internal/clock"
)

const checkTimeout = 5 * time.Second

// Status represents a health check result.
type Status struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// Checker is a named dependency check.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Database checks the auction store with its ping function.
func Database(ping func(ctx context.Context) error) Checker {
	return Checker{Name: "database", Check: ping}
}

// Redis pings the broadcast relay's Redis connection.
func Redis(client redis.UniversalClient) Checker {
	return Checker{
		Name: "redis",
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

// Handler provides HTTP health check endpoints.
type Handler struct {
	mu       sync.RWMutex
	ready    bool
	checkers []Checker
	clock    clock.Clock
}

// NewHandler creates a new health handler with the given checkers.
func NewHandler(clk clock.Clock, checkers ...Checker) *Handler {
	return &Handler{checkers: checkers, clock: clk}
}

// AddChecker registers another readiness check.
func (h *Handler) AddChecker(c Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, c)
}

// SetReady marks the service as ready to receive traffic.
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// LivenessHandler returns HTTP 200 if the process is alive.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Status{
			Status:    "ok",
			Timestamp: h.timestamp(),
		})
	}
}

// ReadinessHandler returns HTTP 200 once SetReady(true) was called and every
// checker passes.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		ready := h.ready
		checkers := append([]Checker(nil), h.checkers...)
		h.mu.RUnlock()

		if !ready {
			writeJSON(w, http.StatusServiceUnavailable, Status{
				Status:    "not_ready",
				Timestamp: h.timestamp(),
			})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		checks := make(map[string]string, len(checkers))
		code := http.StatusOK
		status := "ready"
		for _, c := range checkers {
			if err := c.Check(ctx); err != nil {
				checks[c.Name] = err.Error()
				code = http.StatusServiceUnavailable
				status = "not_ready"
				continue
			}
			checks[c.Name] = "ok"
		}

		writeJSON(w, code, Status{
			Status:    status,
			Checks:    checks,
			Timestamp: h.timestamp(),
		})
	}
}

func (h *Handler) timestamp() string {
	return h.clock.Now().UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
