/*
Package dynatable – operation observers.
*/
package dynatable

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Event describes one table operation as seen by observers.
type Event struct {
	// Op is the operation name: "save", "load", "delete", "update",
	// "query", "scan", "batchGet", "batchWrite", "transactGet",
	// "transactWrite".
	Op string

	// Model is the model name, empty for multi-model operations.
	Model string

	// Item is the primary item or key of the operation, when single-item.
	Item Item

	// Err is set on After events when the operation failed.
	Err error

	// Duration is set on After events.
	Duration time.Duration
}

// Observer receives synchronous callbacks around table operations. The
// core has no dependency on any notification mechanism beyond this
// interface; observers run in registration order on the calling goroutine.
type Observer interface {
	Before(ctx context.Context, ev *Event)
	After(ctx context.Context, ev *Event)
}

// notify runs the Before callbacks and returns a completion function for
// the After callbacks.
func (t *Table) notify(ctx context.Context, op, model string, item Item) func(error) {
	if len(t.observers) == 0 {
		return func(error) {}
	}
	ev := &Event{Op: op, Model: model, Item: item}
	for _, o := range t.observers {
		o.Before(ctx, ev)
	}
	start := time.Now()
	return func(err error) {
		ev.Err = err
		ev.Duration = time.Since(start)
		for _, o := range t.observers {
			o.After(ctx, ev)
		}
	}
}

// LogObserver logs every operation through a zerolog.Logger.
type LogObserver struct {
	Log zerolog.Logger
}

func (l LogObserver) Before(_ context.Context, ev *Event) {
	l.Log.Trace().Str("op", ev.Op).Str("model", ev.Model).Msg("operation start")
}

func (l LogObserver) After(_ context.Context, ev *Event) {
	e := l.Log.Debug()
	if ev.Err != nil {
		e = l.Log.Error().Err(ev.Err)
	}
	e.Str("op", ev.Op).Str("model", ev.Model).Dur("duration", ev.Duration).Msg("operation done")
}
