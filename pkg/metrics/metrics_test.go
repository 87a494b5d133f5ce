package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoApplication(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, ctx, NewContext(ctx, nil))

	RecordEvent(ctx, "event", map[string]interface{}{"key": "value"})
	RecordCount(ctx, "count", 1)
	RecordDuration(ctx, "duration", time.Second)

	txnCtx, end := StartTransaction(ctx, "transaction")
	assert.Equal(t, ctx, txnCtx)
	end()

	tracer := TraceMethodCall(ctx, "struct", "method")
	assert.Nil(t, tracer)
	tracer.AddAttribute("key", "value")
	tracer.AddAttributes(map[string]interface{}{"key": "value"})
	tracer.OnError(errors.New("error"))
	tracer.End()
}

func TestDisabledApplication(t *testing.T) {
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName("test"),
		newrelic.ConfigEnabled(false),
	)
	require.NoError(t, err)

	ctx := NewContext(context.Background(), app)
	assert.Equal(t, app, ctx.Value(NewRelicContextKey{}))

	RecordEvent(ctx, "event", map[string]interface{}{"key": "value"})
	RecordCount(ctx, "count", 1)
	RecordDuration(ctx, "duration", time.Second)

	txnCtx, end := StartTransaction(ctx, "transaction")
	defer end()

	tracer := TraceMethodCall(txnCtx, "struct", "method")
	tracer.AddAttribute("key", "value")
	tracer.OnError(errors.New("error"))
	tracer.End()
}
