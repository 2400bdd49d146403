// Package metrics reports to New Relic through the application or transaction
// carried by a context. Every function is a no-op when neither is present.
package metrics

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
)

type applicationKey struct{}

// WithNewRelicApplication returns a context carrying the application used by
// background work and custom events.
func WithNewRelicApplication(ctx context.Context, app *newrelic.Application) context.Context {
	if app == nil {
		return ctx
	}
	return context.WithValue(ctx, applicationKey{}, app)
}

func application(ctx context.Context) *newrelic.Application {
	app, _ := ctx.Value(applicationKey{}).(*newrelic.Application)
	return app
}

// StartBackgroundTransaction starts a transaction for a unit of background
// work. The returned func ends it.
func StartBackgroundTransaction(ctx context.Context, name string) (context.Context, func()) {
	app := application(ctx)
	if app == nil {
		return ctx, func() {}
	}

	txn := app.StartTransaction(name)
	return newrelic.NewContext(ctx, txn), txn.End
}

// RecordEvent records a custom event.
func RecordEvent(ctx context.Context, name string, attributes map[string]any) {
	if app := application(ctx); app != nil {
		app.RecordCustomEvent(name, attributes)
	}
}

// RecordCount records a custom metric.
func RecordCount(ctx context.Context, name string, count uint64) {
	if app := application(ctx); app != nil {
		app.RecordCustomMetric(name, float64(count))
	}
}
