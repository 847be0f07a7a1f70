package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/psantana5/callguard/pkg/guard"
	"github.com/psantana5/callguard/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDisabledProviderIsUsable(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: false}, logging.Discard())
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "noop")
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestGuardSpansAreRecorded(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	p := NewWithProcessor("test", rec)
	defer p.Shutdown(context.Background())

	scope := guard.NewScope(context.Background(), "tracing")
	defer scope.Close()
	g := guard.New(scope,
		guard.WithTracer(p.Tracer()),
		guard.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	)

	guard.Run(context.Background(), g, guard.DefaultPolicy("bookings.list").WithRetries(1, 0),
		func(ctx context.Context) (int, error) { return 0, errors.New("service unavailable") })

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "guard.run", spans[0].Name())

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "bookings.list", attrs["guard.operation"].AsString())
	assert.Equal(t, "exhausted", attrs["guard.outcome"].AsString())
	assert.Equal(t, int64(2), attrs["guard.attempts"].AsInt64())
	failed := 0
	for _, ev := range spans[0].Events() {
		if ev.Name == "attempt failed" {
			failed++
		}
	}
	assert.Equal(t, 2, failed)
}
