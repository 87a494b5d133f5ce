package metrics

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// NewRelicContextKey is the context key under which the New Relic application
// is stored
type NewRelicContextKey struct{}

// NewContext returns a copy of ctx carrying the New Relic application. Metrics
// and events recorded against contexts without an application are dropped.
func NewContext(ctx context.Context, app *newrelic.Application) context.Context {
	if app == nil {
		return ctx
	}
	return context.WithValue(ctx, NewRelicContextKey{}, app)
}

// StartTransaction starts a New Relic transaction for a background operation
// and returns a context carrying it, so TraceMethodCall segments attach to it.
// The returned function ends the transaction.
func StartTransaction(ctx context.Context, name string) (context.Context, func()) {
	app, ok := ctx.Value(NewRelicContextKey{}).(*newrelic.Application)
	if !ok {
		return ctx, func() {}
	}

	txn := app.StartTransaction(name)
	return newrelic.NewContext(ctx, txn), txn.End
}
