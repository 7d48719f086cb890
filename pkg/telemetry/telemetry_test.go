package telemetry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ormasoftchile/rail/pkg/config"
	"github.com/ormasoftchile/rail/pkg/jsonrpc"
)

func newTestHook() (*Hook, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return NewHook(tp, mp), spans, reader
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestHook_Spans(t *testing.T) {
	tests := []struct {
		name   string
		info   jsonrpc.CallInfo
		err    error
		status codes.Code
		code   int64
	}{
		{"request ok", jsonrpc.CallInfo{Peer: "engine", Method: "thread/start", ID: 3, Kind: "request"}, nil, codes.Ok, 0},
		{"remote error", jsonrpc.CallInfo{Peer: "web worker", Method: "provider/run", ID: 9, Kind: "request"},
			&jsonrpc.RemoteError{Code: -32601, Message: "nope"}, codes.Error, -32601},
		{"notify", jsonrpc.CallInfo{Peer: "engine", Method: "initialized", Kind: "notify"}, nil, codes.Ok, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, spans, _ := newTestHook()
			ctx, tok := h.OnCallStart(context.Background(), tt.info)
			h.OnCallEnd(ctx, tok, tt.info, tt.err)

			ended := spans.Ended()
			if len(ended) != 1 {
				t.Fatalf("spans = %d", len(ended))
			}
			s := ended[0]
			if want := "rail/" + tt.info.Peer + "/" + tt.info.Method; s.Name() != want {
				t.Errorf("name = %q, want %q", s.Name(), want)
			}
			if s.Status().Code != tt.status {
				t.Errorf("status = %v", s.Status())
			}
			if v, _ := attr(s.Attributes(), "rpc.system"); v.AsString() != "jsonrpc" {
				t.Errorf("rpc.system = %v", v)
			}
			v, ok := attr(s.Attributes(), "rpc.jsonrpc.request_id")
			if tt.info.ID == 0 && ok {
				t.Error("notification carries a request id")
			}
			if tt.info.ID != 0 && v.AsInt64() != int64(tt.info.ID) {
				t.Errorf("request_id = %v", v)
			}
			if tt.code != 0 {
				if v, _ := attr(s.Attributes(), "rpc.jsonrpc.error_code"); v.AsInt64() != tt.code {
					t.Errorf("error_code = %v", v)
				}
			}
		})
	}
}

func TestHook_Metrics(t *testing.T) {
	h, _, reader := newTestHook()
	info := jsonrpc.CallInfo{Peer: "engine", Method: "account/read", ID: 1, Kind: "request"}
	for _, err := range []error{nil, errors.New("engine request timed out: account/read")} {
		ctx, tok := h.OnCallStart(context.Background(), info)
		h.OnCallEnd(ctx, tok, info, err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	var total int64
	var histograms int
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch d := m.Data.(type) {
			case metricdata.Sum[int64]:
				if m.Name == "rpc.client.requests" {
					for _, p := range d.DataPoints {
						total += p.Value
					}
				}
			case metricdata.Histogram[float64]:
				if m.Name == "rpc.client.duration" {
					histograms = len(d.DataPoints)
				}
			}
		}
	}
	if total != 2 {
		t.Errorf("requests = %d, want 2", total)
	}
	if histograms != 2 {
		t.Errorf("duration series = %d, want one per status", histograms)
	}
}

func TestSetup(t *testing.T) {
	hook, shutdown, err := Setup(config.TelemetryConfig{}, "test")
	if err != nil || hook != nil {
		t.Fatalf("disabled setup = %v, %v", hook, err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Error(err)
	}

	out := filepath.Join(t.TempDir(), "telemetry.jsonl")
	hook, shutdown, err = Setup(config.TelemetryConfig{Enabled: true, Output: out}, "test")
	if err != nil || hook == nil {
		t.Fatalf("enabled setup = %v, %v", hook, err)
	}
	info := jsonrpc.CallInfo{Peer: "engine", Method: "initialize", ID: 1, Kind: "request"}
	ctx, tok := hook.OnCallStart(context.Background(), info)
	hook.OnCallEnd(ctx, tok, info, nil)
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, _, err := Setup(config.TelemetryConfig{Enabled: true, Output: filepath.Join(t.TempDir(), "missing", "x")}, "test"); err == nil {
		t.Error("unwritable output accepted")
	}
}
