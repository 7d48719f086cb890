package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ormasoftchile/rail/pkg/config"
	"github.com/ormasoftchile/rail/pkg/jsonrpc"
)

// ShutdownFunc flushes and stops the exporters.
type ShutdownFunc func(context.Context) error

// Setup installs SDK providers exporting to cfg.Output ("stderr", "stdout"
// or a file path) and returns a hook bound to them. When telemetry is
// disabled it returns a nil hook and a no-op shutdown.
func Setup(cfg config.TelemetryConfig, version string) (jsonrpc.Hook, ShutdownFunc, error) {
	if !cfg.Enabled {
		return nil, func(context.Context) error { return nil }, nil
	}

	w, closeOut, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		closeOut()
		return nil, nil, fmt.Errorf("trace exporter: %w", err)
	}
	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		closeOut()
		return nil, nil, fmt.Errorf("metric exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", "rail"),
		attribute.String("service.version", version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx), closeOut())
	}
	return NewHook(tp, mp), shutdown, nil
}

func openOutput(out string) (io.Writer, func() error, error) {
	switch out {
	case "", "stderr":
		return os.Stderr, func() error { return nil }, nil
	case "stdout":
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open telemetry output: %w", err)
	}
	return f, f.Close, nil
}
