package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/fx"

	"github.com/erlendps/thingbooker/internal/config"
	"github.com/erlendps/thingbooker/pkg/apperror"
	"github.com/erlendps/thingbooker/pkg/logger"
)

var Module = fx.Module("server",
	fx.Provide(NewEcho),
	fx.Invoke(StartServer),
)

// quietPaths are polled constantly and not worth a log line each.
var quietPaths = []string{"/health", "/healthz", "/ready", "/metrics"}

// NewEcho creates and configures an Echo instance
func NewEcho(cfg *config.Config, log *slog.Logger) *echo.Echo {
	log = log.With(logger.Scope("http"))

	e := echo.New()
	e.Debug = cfg.Debug
	e.HideBanner = true
	e.HidePort = !cfg.Debug
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(log)

	e.Pre(middleware.RemoveTrailingSlash())

	e.Use(
		middleware.CORSWithConfig(corsConfig(cfg.AllowedOrigins())),
		middleware.RequestID(),
		middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			Skipper: func(c echo.Context) bool {
				return slices.Contains(quietPaths, c.Request().URL.Path)
			},
			LogURI:       true,
			LogStatus:    true,
			LogLatency:   true,
			LogError:     true,
			LogMethod:    true,
			LogRequestID: true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				attrs := []any{
					slog.String("method", v.Method),
					slog.String("uri", v.URI),
					slog.Int("status", v.Status),
					slog.Duration("latency", v.Latency),
					slog.String("request_id", v.RequestID),
				}
				if v.Error != nil {
					attrs = append(attrs, logger.Error(v.Error))
					log.Warn("request failed", attrs...)
				} else {
					log.Info("request", attrs...)
				}
				return nil
			},
		}),
		middleware.RecoverWithConfig(middleware.RecoverConfig{
			LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
				log.Error("panic recovered",
					logger.Error(err),
					slog.String("stack", string(stack)),
				)
				return err
			},
		}),
	)

	if cfg.Otel.Enabled() {
		e.Use(otelecho.Middleware(cfg.Otel.ServiceName,
			otelecho.WithSkipper(func(c echo.Context) bool {
				return slices.Contains(quietPaths, c.Request().URL.Path)
			}),
		))
	}

	return e
}

// corsConfig allows the configured origins, or reflects any origin when the
// list is the wildcard.
func corsConfig(origins []string) middleware.CORSConfig {
	cors := middleware.CORSConfig{
		AllowCredentials: true,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderCacheControl},
	}
	if slices.Contains(origins, "*") {
		cors.AllowOriginFunc = func(origin string) (bool, error) { return true, nil }
	} else {
		cors.AllowOrigins = origins
	}
	return cors
}

// StartServer starts the HTTP server with graceful shutdown
func StartServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, log *slog.Logger) {
	log = log.With(logger.Scope("server"))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.ServerAddress, cfg.ServerPort),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("starting HTTP server",
				slog.String("address", server.Addr),
				slog.String("environment", cfg.Environment),
			)

			go func() {
				if err := e.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server error", logger.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down HTTP server")

			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		},
	})
}
