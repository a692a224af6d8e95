package workerpresentation

import (
	"context"
	"testing"

	domoutbox "github.com/Zhima-Mochi/storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront/internal/observability"
	"github.com/Zhima-Mochi/storefront/internal/observability/logctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fieldLogger struct {
	fields map[string]any
}

func (l *fieldLogger) With(fs ...observability.Field) observability.Logger {
	next := &fieldLogger{fields: map[string]any{}}
	for k, v := range l.fields {
		next.fields[k] = v
	}
	for _, f := range fs {
		next.fields[f.Key] = f.Value
	}
	return next
}

func (*fieldLogger) Debug(string, ...observability.Field) {}
func (*fieldLogger) Info(string, ...observability.Field)  {}
func (*fieldLogger) Warn(string, ...observability.Field)  {}
func (*fieldLogger) Error(string, ...observability.Field) {}

type fieldTel struct {
	log *fieldLogger
}

func (t fieldTel) Tracer() observability.Tracer   { return observability.NopTracer() }
func (t fieldTel) Logger() observability.Logger   { return t.log }
func (t fieldTel) Metrics() observability.Metrics { return observability.NopMetrics() }

type captureSubscriber struct {
	handlers map[string]domoutbox.Handler
}

func (c *captureSubscriber) Subscribe(name string, h domoutbox.Handler) {
	if c.handlers == nil {
		c.handlers = map[string]domoutbox.Handler{}
	}
	c.handlers[name] = h
}

func TestSubscriberInjectsEventLogger(t *testing.T) {
	inner := &captureSubscriber{}
	sub := NewSubscriber(inner, "inventory", fieldTel{log: &fieldLogger{}})

	var got map[string]any
	sub.Subscribe("order.placed", func(ctx context.Context, _ domoutbox.Event) error {
		l, ok := logctx.From(ctx).(*fieldLogger)
		require.True(t, ok)
		got = l.fields
		return nil
	})

	h, ok := inner.handlers["order.placed"]
	require.True(t, ok)
	require.NoError(t, h(context.Background(), domoutbox.Message{ID: 42, Name: "order.placed"}))

	assert.Equal(t, "42", got["event_id"])
	assert.Equal(t, "inventory", got["worker"])
	assert.Equal(t, "order.placed", got["event"])
	assert.NotContains(t, got, "trace_id")
}

func TestWithEventContextGeneratesEventID(t *testing.T) {
	ctx := WithEventContext(context.Background(), nil, fieldTel{log: &fieldLogger{}}, nil)
	l, ok := logctx.From(ctx).(*fieldLogger)
	require.True(t, ok)
	assert.NotEmpty(t, l.fields["event_id"])
}
