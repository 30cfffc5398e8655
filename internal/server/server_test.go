package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/erlendps/thingbooker/internal/config"
	"github.com/erlendps/thingbooker/pkg/apperror"
)

func newTestEcho(origins string) *echo.Echo {
	cfg := &config.Config{CORSOrigins: origins}
	return NewEcho(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNewEchoRendersAppErrors(t *testing.T) {
	e := newTestEcho("")
	e.GET("/boom", func(c echo.Context) error {
		return apperror.ErrNotFound.WithMessage("Thing not found")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom/", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"not_found"`)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestNewEchoTracesRequestsWhenEnabled(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	cfg := &config.Config{Otel: config.OtelConfig{ExporterEndpoint: "http://collector:4318", ServiceName: "test"}}
	e := NewEcho(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.GET("/things", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things", nil))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1, "health checks are not traced")
	assert.Contains(t, spans[0].Name(), "/things")
}

func TestNewEchoRecoversPanics(t *testing.T) {
	e := newTestEcho("")
	e.GET("/panic", func(c echo.Context) error { panic("kaboom") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		origins string
		origin  string
		allowed bool
	}{
		{"wildcard reflects origin", "", "https://any.example", true},
		{"allow-list match", "https://app.example, https://admin.example", "https://admin.example", true},
		{"allow-list miss", "https://app.example", "https://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEcho(tt.origins)
			e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

			req := httptest.NewRequest(http.MethodOptions, "/x", nil)
			req.Header.Set(echo.HeaderOrigin, tt.origin)
			req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin)
			if tt.allowed {
				require.Equal(t, tt.origin, got)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}
