package handler

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/response"
	"golang.org/x/sync/errgroup"
)

const healthTimeout = 2 * time.Second

// Check probes one dependency.
type Check func(ctx context.Context) error

// SystemHandler reports liveness and dependency health.
type SystemHandler struct {
	checks    map[string]Check
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler. checks maps a dependency
// name (e.g. "postgres") to its probe.
func NewSystemHandler(checks map[string]Check, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		checks:    checks,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthReport struct {
	Status       string            `json:"status"`
	Uptime       string            `json:"uptime"`
	Goroutines   int               `json:"goroutines"`
	GoVersion    string            `json:"go_version"`
	Dependencies map[string]string `json:"dependencies"`
}

// Health godoc
// GET /health
// Probes every dependency concurrently; 503 when any is down.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	var mu sync.Mutex
	deps := make(map[string]string, len(h.checks))
	healthy := true

	g, gctx := errgroup.WithContext(ctx)
	for name, check := range h.checks {
		g.Go(func() error {
			status := "ok"
			if err := check(gctx); err != nil {
				h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
				status = "down"
			}
			mu.Lock()
			deps[name] = status
			if status != "ok" {
				healthy = false
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report := healthReport{
		Status:       "ok",
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Goroutines:   runtime.NumGoroutine(),
		GoVersion:    runtime.Version(),
		Dependencies: deps,
	}
	if !healthy {
		report.Status = "degraded"
		response.Success(c, http.StatusServiceUnavailable, report)
		return
	}
	response.Success(c, http.StatusOK, report)
}
