// Package telemetry records coarse product analytics events.
package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/louisbranch/wayfarer.quest/internal/coop/storage"
)

// Emitter records telemetry events. A nil store makes every emit a no-op so
// callers never need to branch on whether telemetry is configured.
type Emitter struct {
	store storage.TelemetryStore
	clock func() time.Time
}

// NewEmitter creates a new telemetry emitter.
func NewEmitter(store storage.TelemetryStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// WithClock overrides the emitter clock. Test helper.
func (e *Emitter) WithClock(clock func() time.Time) *Emitter {
	e.clock = clock
	return e
}

// Emit records a telemetry event. Failures are logged, never propagated;
// telemetry must not fail gameplay operations.
func (e *Emitter) Emit(ctx context.Context, evt storage.TelemetryEvent) {
	if e == nil || e.store == nil {
		return
	}
	if evt.At.IsZero() {
		if e.clock == nil {
			evt.At = time.Now().UTC()
		} else {
			evt.At = e.clock().UTC()
		}
	}
	if err := e.store.AppendTelemetryEvent(ctx, evt); err != nil {
		log.Printf("emit telemetry event name=%s err=%v", evt.Name, err)
	}
}
