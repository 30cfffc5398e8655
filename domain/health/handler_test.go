package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erlendps/thingbooker/domain/email"
	"github.com/erlendps/thingbooker/domain/scheduler"
	"github.com/erlendps/thingbooker/internal/config"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

type fakeQueue struct{}

func (fakeQueue) Stats(ctx context.Context) (*email.QueueStats, error) {
	return &email.QueueStats{Pending: 2, Sent: 7}, nil
}

type fakeTasks struct{}

func (fakeTasks) GetTaskInfo() []scheduler.TaskInfo {
	return []scheduler.TaskInfo{{Name: "email_purge", NextRun: time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)}}
}

func newServer(dbErr error, env string) *echo.Echo {
	e := echo.New()
	RegisterRoutes(e, NewHandler(fakePinger{err: dbErr}, fakeQueue{}, fakeTasks{}, &config.Config{Environment: env}))
	return e
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(newServer(nil, "local"), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = get(newServer(errors.New("connection refused"), "local"), "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestReady(t *testing.T) {
	assert.Equal(t, http.StatusOK, get(newServer(nil, "local"), "/ready").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(newServer(errors.New("down"), "local"), "/ready").Code)
	assert.Equal(t, "OK", get(newServer(errors.New("down"), "local"), "/healthz").Body.String())
}

func TestJobs(t *testing.T) {
	rec := get(newServer(nil, "local"), "/api/metrics/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending":2`)
	assert.Contains(t, rec.Body.String(), `"email_purge"`)
}

func TestDebugHiddenInProduction(t *testing.T) {
	assert.Equal(t, http.StatusOK, get(newServer(nil, "local"), "/debug").Code)
	assert.Equal(t, http.StatusNotFound, get(newServer(nil, "production"), "/debug").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(newServer(nil, "local"), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
