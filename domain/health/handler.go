package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/erlendps/thingbooker/domain/email"
	"github.com/erlendps/thingbooker/domain/scheduler"
	"github.com/erlendps/thingbooker/internal/config"
	"github.com/erlendps/thingbooker/internal/version"
)

const checkTimeout = 5 * time.Second

// Pinger checks database connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueStats reports email queue counts
type QueueStats interface {
	Stats(ctx context.Context) (*email.QueueStats, error)
}

// TaskLister reports scheduled housekeeping tasks
type TaskLister interface {
	GetTaskInfo() []scheduler.TaskInfo
}

// Handler handles health check requests
type Handler struct {
	db      Pinger
	queue   QueueStats
	tasks   TaskLister
	cfg     *config.Config
	startAt time.Time
}

// NewHandler creates a new health handler
func NewHandler(db Pinger, queue QueueStats, tasks TaskLister, cfg *config.Config) *Handler {
	return &Handler{
		db:      db,
		queue:   queue,
		tasks:   tasks,
		cfg:     cfg,
		startAt: time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
}

// Check represents an individual health check result
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health returns the overall service health with a database check
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), checkTimeout)
	defer cancel()

	db := Check{Status: "healthy"}
	if err := h.db.Ping(ctx); err != nil {
		db = Check{Status: "unhealthy", Message: err.Error()}
	}

	status, code := "healthy", http.StatusOK
	if db.Status != "healthy" {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	return c.JSON(code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startAt).String(),
		Version:   version.Version,
		Checks:    map[string]Check{"database": db},
	})
}

// Healthz reports liveness
func (h *Handler) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Ready reports readiness; it fails while the database is unreachable
func (h *Handler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), checkTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":  "not_ready",
			"message": "Database connection failed",
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ready"})
}

// Version returns build information
func (h *Handler) Version(c echo.Context) error {
	return c.JSON(http.StatusOK, version.Info())
}

// Jobs returns email queue counts and scheduled task timings
func (h *Handler) Jobs(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), checkTimeout)
	defer cancel()

	stats, err := h.queue.Stats(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"email":     stats,
		"scheduler": h.tasks.GetTaskInfo(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Debug returns runtime information outside production
func (h *Handler) Debug(c echo.Context) error {
	if h.cfg.IsProduction() {
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return c.JSON(http.StatusOK, map[string]any{
		"environment": h.cfg.Environment,
		"debug":       h.cfg.Debug,
		"goVersion":   runtime.Version(),
		"goroutines":  runtime.NumGoroutine(),
		"memory": map[string]any{
			"allocMb":      mem.Alloc / 1024 / 1024,
			"totalAllocMb": mem.TotalAlloc / 1024 / 1024,
			"sysMb":        mem.Sys / 1024 / 1024,
			"numGc":        mem.NumGC,
		},
	})
}
