// Package telemetry traces and counts the JSON-RPC traffic sent to the
// child processes.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ormasoftchile/rail/pkg/jsonrpc"
)

const instrumentationName = "github.com/ormasoftchile/rail"

// Hook implements jsonrpc.Hook with a client span per outgoing message, a
// request counter and a duration histogram.
type Hook struct {
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// NewHook builds a hook on the given providers. Nil providers fall back to
// the global ones.
func NewHook(tp trace.TracerProvider, mp metric.MeterProvider) *Hook {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	h := &Hook{tracer: tp.Tracer(instrumentationName)}
	meter := mp.Meter(instrumentationName)
	h.requests, _ = meter.Int64Counter("rpc.client.requests",
		metric.WithUnit("{request}"),
		metric.WithDescription("Number of JSON-RPC messages sent to child processes"),
	)
	h.duration, _ = meter.Float64Histogram("rpc.client.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time until a JSON-RPC call completed"),
	)
	return h
}

type token struct {
	span  trace.Span
	start time.Time
}

func (h *Hook) OnCallStart(ctx context.Context, info jsonrpc.CallInfo) (context.Context, jsonrpc.HookToken) {
	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("rpc.service", info.Peer),
		attribute.String("rpc.method", info.Method),
		attribute.String("rail.message_kind", info.Kind),
	}
	if info.ID != 0 {
		attrs = append(attrs, attribute.Int64("rpc.jsonrpc.request_id", int64(info.ID)))
	}
	ctx, span := h.tracer.Start(ctx, fmt.Sprintf("rail/%s/%s", info.Peer, info.Method),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, &token{span: span, start: time.Now()}
}

func (h *Hook) OnCallEnd(ctx context.Context, tok jsonrpc.HookToken, info jsonrpc.CallInfo, err error) {
	t, ok := tok.(*token)
	if !ok {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("rpc.service", info.Peer),
		attribute.String("rpc.method", info.Method),
		attribute.String("status", status),
	)
	h.requests.Add(ctx, 1, attrs)
	h.duration.Record(ctx, time.Since(t.start).Seconds(), attrs)

	if err != nil {
		t.span.SetStatus(codes.Error, err.Error())
		t.span.RecordError(err)
		var re *jsonrpc.RemoteError
		if errors.As(err, &re) {
			t.span.SetAttributes(attribute.Int64("rpc.jsonrpc.error_code", re.Code))
		}
	} else {
		t.span.SetStatus(codes.Ok, "")
	}
	t.span.End()
}
