package monitoring

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/clarity-dx/bill-review/log"
)

// Timer records timings for batch work outside of HTTP handlers.
//
//	ctx = monitoring.NewContext(ctx, timer)
//	ctx, end := monitoring.NewParent(ctx, "validate")
//	defer end()
//	endFile := monitoring.NewChild(ctx, "claim_1.json")
type Timer interface {
	new(parentCtx context.Context, name string) (ctx context.Context, close func())
	newChild(parentCtx context.Context, name string) (close func())
	Close()
}

type key int

const timerKey key = 0

func NewContext(ctx context.Context, t Timer) context.Context {
	return context.WithValue(ctx, timerKey, t)
}

// NewParent starts a transaction and embeds it into the returned context.
func NewParent(ctx context.Context, name string) (context.Context, func()) {
	return fromContext(ctx).new(ctx, name)
}

// NewChild times a segment of the transaction held by ctx.
func NewChild(ctx context.Context, name string) func() {
	return fromContext(ctx).newChild(ctx, name)
}

var defaultTimer = &noopTimer{}

func fromContext(ctx context.Context) Timer {
	t, ok := ctx.Value(timerKey).(Timer)
	if !ok {
		return defaultTimer
	}
	return t
}

// GetTimer returns a New Relic backed timer, or a no-op timer when the agent is disabled.
func GetTimer() Timer {
	m := GetMonitor()
	if m.App == nil || !m.enabled {
		return &noopTimer{}
	}
	app := m.App

	if err := app.WaitForConnection(30 * time.Second); err != nil {
		log.Validation.Warnf("Failed to connect to New Relic. Default to no-op timer. %s", err)
		return &noopTimer{}
	}
	return &timer{app}
}

var _ Timer = &timer{}

type timer struct {
	nr *newrelic.Application
}

func (t *timer) new(parentCtx context.Context, name string) (context.Context, func()) {
	txn := t.nr.StartTransaction(name)
	return newrelic.NewContext(parentCtx, txn), txn.End
}

func (t *timer) newChild(parentCtx context.Context, name string) func() {
	txn := newrelic.FromContext(parentCtx)
	if txn == nil {
		return noop
	}
	return txn.StartSegment(name).End
}

func (t *timer) Close() {
	t.nr.Shutdown(30 * time.Second)
}

type noopTimer struct{}

func (t *noopTimer) new(parentCtx context.Context, name string) (context.Context, func()) {
	return parentCtx, noop
}

func (t *noopTimer) newChild(parentCtx context.Context, name string) func() {
	return noop
}

func (t *noopTimer) Close() {}

func noop() {}
