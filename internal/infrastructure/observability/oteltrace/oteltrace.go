package oteltrace

import (
	"context"

	"github.com/Zhima-Mochi/storefront/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type tracer struct {
	t      trace.Tracer
	common []attribute.KeyValue
}

// New returns a tracer bound to the global provider. common attributes are
// stamped on every span. Without an SDK provider installed spans are
// non-recording but context propagation still works.
func New(name string, common ...attribute.KeyValue) observability.Tracer {
	if name == "" {
		name = "storefront"
	}
	return &tracer{t: otel.Tracer(name), common: common}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if len(t.common) > 0 {
		attrs = append(append(make([]attribute.KeyValue, 0, len(t.common)+len(attrs)), t.common...), attrs...)
	}
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}
