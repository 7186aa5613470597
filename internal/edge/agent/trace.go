package agent

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var traceparentPropagator = propagation.TraceContext{}

type headerCarrier map[string]string

func (h headerCarrier) Get(key string) string { return h[key] }
func (h headerCarrier) Set(key, value string) { h[key] = value }
func (h headerCarrier) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

// parseTraceparent decodes a single W3C traceparent header value into a
// trace.SpanContext via the same propagator used to produce it on the
// coordinator side (internal/broker/registry.go).
func parseTraceparent(value string) (trace.SpanContext, error) {
	carrier := headerCarrier{"traceparent": value}
	ctx := traceparentPropagator.Extract(context.Background(), carrier)
	return trace.SpanContextFromContext(ctx), nil
}
