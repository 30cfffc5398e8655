// Package tracing installs the process-wide OTel TracerProvider.
package tracing

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"

	"github.com/erlendps/thingbooker/internal/config"
	"github.com/erlendps/thingbooker/pkg/logger"
)

// Module installs an OTLP or no-op TracerProvider and shuts it down on stop.
// The HTTP middleware is registered by the server.
var Module = fx.Module("tracing",
	fx.Provide(NewTracerProvider),
	fx.Invoke(RegisterTracingLifecycle),
)

// ProviderResult exposes the SDK provider, nil when tracing is disabled.
type ProviderResult struct {
	fx.Out

	SDKProvider *sdktrace.TracerProvider `name:"otelSDKProvider" optional:"true"`
}

// NewTracerProvider creates and globally registers a TracerProvider.
func NewTracerProvider(cfg *config.Config, log *slog.Logger) (ProviderResult, error) {
	log = log.With(logger.Scope("tracing"))
	oc := cfg.Otel

	if !oc.Enabled() {
		log.Info("tracing disabled (OTEL_EXPORTER_OTLP_ENDPOINT not set)")
		otel.SetTracerProvider(noop.NewTracerProvider())
		return ProviderResult{}, nil
	}

	log.Info("tracing enabled",
		slog.String("endpoint", oc.ExporterEndpoint),
		slog.String("service", oc.ServiceName),
		slog.Float64("sampling_rate", oc.SamplingRate),
	)

	exp, err := otlptracehttp.New(
		context.Background(),
		otlptracehttp.WithEndpointURL(oc.ExporterEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return ProviderResult{}, err
	}

	res, err := resource.New(context.Background(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(semconv.ServiceName(oc.ServiceName)),
		resource.WithFromEnv(),
		resource.WithProcess(),
	)
	if err != nil {
		log.Warn("resource detection failed", logger.Error(err))
		res = resource.Empty()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(oc.SamplingRate)),
	)
	otel.SetTracerProvider(tp)

	return ProviderResult{SDKProvider: tp}, nil
}

func sampler(rate float64) sdktrace.Sampler {
	if rate >= 1.0 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.TraceIDRatioBased(rate)
}

type sdkProviderParam struct {
	fx.In
	SDKProvider *sdktrace.TracerProvider `name:"otelSDKProvider" optional:"true"`
}

// RegisterTracingLifecycle flushes and shuts the SDK provider down on stop.
func RegisterTracingLifecycle(lc fx.Lifecycle, p sdkProviderParam, log *slog.Logger) {
	if p.SDKProvider == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down tracer provider")
			return p.SDKProvider.Shutdown(ctx)
		},
	})
}
