// Package obs wires structured logging, Prometheus metrics and OpenTelemetry
// tracing for the comparison engine.
package obs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultService = "drawdiff"

// Shutdown flushes pending spans and stops the exporter.
type Shutdown func(ctx context.Context) error

// Init installs the JSON logger as the slog default and starts OTLP tracing
// when OTEL_EXPORTER_OTLP_ENDPOINT is set. Logs go to stderr so stdout stays
// free for command output and the MCP stream. A collector that cannot be
// reached leaves tracing off; it never stops the process.
func Init(serviceName, level string) (Shutdown, *slog.Logger) {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		serviceName = defaultService
	}

	logger := NewLogger(os.Stderr, serviceName, level)
	slog.SetDefault(logger)
	SetAppInfo(serviceName)

	shutdown := Shutdown(func(context.Context) error { return nil })
	endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		return shutdown, logger
	}
	tp, err := newTracerProvider(serviceName, endpoint)
	if err != nil {
		logger.Error("tracing disabled", "endpoint", endpoint, "error", err)
		return shutdown, logger
	}
	otel.SetTracerProvider(tp)
	logger.Debug("tracing enabled", "endpoint", endpoint)
	return tp.Shutdown, logger
}

// NewLogger returns a JSON logger writing to w with every record tagged by
// service.
func NewLogger(w io.Writer, service, level string) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: false,
	})
	return slog.New(h).With("service", service)
}

// ParseLevel maps debug|info|warn|error onto a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Discard returns a logger that drops everything; used when callers pass nil.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// newTracerProvider batches spans of serviceName to the OTLP/gRPC collector
// at endpoint, without TLS.
func newTracerProvider(serviceName, endpoint string) (*sdktrace.TracerProvider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to describe service: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithResource(res), sdktrace.WithBatcher(exp)), nil
}

// WrapHTTP traces requests to the metrics and health endpoints.
func WrapHTTP(serviceName string, next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, serviceName)
}

// Tracer returns a tracer of the global provider. The pipeline and compare
// packages call it once per Engine or Comparer; before Init it is a no-op.
func Tracer(name string) trace.Tracer {
	if name = strings.TrimSpace(name); name == "" {
		name = defaultService
	}
	return otel.Tracer(name)
}
