package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/louisbranch/wayfarer.quest/internal/coop/storage"
	"github.com/louisbranch/wayfarer.quest/internal/coop/storage/memory"
)

func TestEmitRecordsEvent(t *testing.T) {
	store := memory.New()
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	emitter := NewEmitter(store).WithClock(func() time.Time { return at })

	emitter.Emit(context.Background(), storage.TelemetryEvent{
		Name:     "room_created",
		RoomCode: "WXYZ",
	})

	events := store.TelemetryEvents()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Name != "room_created" || !events[0].At.Equal(at) {
		t.Fatalf("event = %+v", events[0])
	}
}

func TestEmitWithNilStoreIsNoOp(t *testing.T) {
	emitter := NewEmitter(nil)
	emitter.Emit(context.Background(), storage.TelemetryEvent{Name: "ignored"})
}
