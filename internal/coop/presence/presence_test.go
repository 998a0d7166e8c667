package presence

import (
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func TestHeartbeatFirstSignalConnects(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(30*time.Second, clock.now)

	ev := tracker.Heartbeat("WXYZ", "p1", "")
	if ev == nil || ev.State != StateConnected {
		t.Fatalf("event = %+v, want connected", ev)
	}
	if got := tracker.StateOf("WXYZ", "p1"); got != StateConnected {
		t.Fatalf("state = %v", got)
	}
}

func TestHeartbeatWhileConnectedIsSilent(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(30*time.Second, clock.now)

	tracker.Heartbeat("WXYZ", "p1", "")
	clock.advance(5 * time.Second)
	if ev := tracker.Heartbeat("WXYZ", "p1", ""); ev != nil {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestSweepEmitsDisconnectOnce(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(30*time.Second, clock.now)

	tracker.Heartbeat("WXYZ", "p1", "")
	tracker.Heartbeat("WXYZ", "p2", "")

	clock.advance(20 * time.Second)
	tracker.Heartbeat("WXYZ", "p2", "")

	clock.advance(15 * time.Second)
	events := tracker.Sweep()
	if len(events) != 1 {
		t.Fatalf("events = %+v, want one disconnect", events)
	}
	if events[0].PlayerID != "p1" || events[0].State != StateDisconnected {
		t.Fatalf("event = %+v", events[0])
	}

	// Edge-triggered: the same disconnect is not reported again.
	clock.advance(time.Minute)
	if events := tracker.Sweep(); len(events) != 1 || events[0].PlayerID != "p2" {
		t.Fatalf("second sweep = %+v, want only p2", events)
	}
}

func TestHeartbeatAfterDisconnectEmitsReconnect(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(30*time.Second, clock.now)

	tracker.Heartbeat("WXYZ", "p1", "")
	clock.advance(time.Minute)
	tracker.Sweep()

	ev := tracker.Heartbeat("WXYZ", "p1", "")
	if ev == nil || ev.State != StateConnected {
		t.Fatalf("event = %+v, want reconnect", ev)
	}
	if len(tracker.Sweep()) != 0 {
		t.Fatal("fresh heartbeat must clear the disconnect")
	}
}

func TestHeartbeatTracksDeclaredIntent(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(30*time.Second, clock.now)

	tracker.Heartbeat("WXYZ", "p1", "wants to parley")
	tracker.Heartbeat("WXYZ", "p2", "")

	intents := tracker.Intents("WXYZ")
	if len(intents) != 1 || intents["p1"] != "wants to parley" {
		t.Fatalf("intents = %v", intents)
	}

	// An empty intent keeps the prior declaration; a new one replaces it.
	tracker.Heartbeat("WXYZ", "p1", "")
	if tracker.Intents("WXYZ")["p1"] != "wants to parley" {
		t.Fatal("empty intent cleared the declaration")
	}
	tracker.Heartbeat("WXYZ", "p1", "ready to fight")
	if tracker.Intents("WXYZ")["p1"] != "ready to fight" {
		t.Fatal("new intent did not replace the declaration")
	}

	// Disconnected players drop out of the intent map.
	clock.advance(time.Minute)
	tracker.Sweep()
	if intents := tracker.Intents("WXYZ"); len(intents) != 0 {
		t.Fatalf("intents after disconnect = %v", intents)
	}
}

func TestMarkReconnecting(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(30*time.Second, clock.now)

	tracker.Heartbeat("WXYZ", "p1", "")
	if tracker.MarkReconnecting("WXYZ", "p1") {
		t.Fatal("connected player must not flip to reconnecting")
	}

	clock.advance(time.Minute)
	tracker.Sweep()
	if !tracker.MarkReconnecting("WXYZ", "p1") {
		t.Fatal("disconnected player must flip to reconnecting")
	}
	if got := tracker.StateOf("WXYZ", "p1"); got != StateReconnecting {
		t.Fatalf("state = %v", got)
	}

	// A confirming heartbeat completes the resume.
	ev := tracker.Heartbeat("WXYZ", "p1", "")
	if ev == nil || ev.State != StateConnected {
		t.Fatalf("event = %+v, want reconnect", ev)
	}
}

func TestStalledReconnectRevertsSilently(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(30*time.Second, clock.now)

	tracker.Heartbeat("WXYZ", "p1", "")
	clock.advance(time.Minute)
	tracker.Sweep()
	tracker.MarkReconnecting("WXYZ", "p1")

	// The disconnect was already reported once; a resume that never
	// confirms does not produce a second event.
	clock.advance(time.Minute)
	if events := tracker.Sweep(); len(events) != 0 {
		t.Fatalf("events = %+v", events)
	}
	if got := tracker.StateOf("WXYZ", "p1"); got != StateDisconnected {
		t.Fatalf("state = %v", got)
	}
}

func TestConnectedListsOnlyLivePlayers(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(30*time.Second, clock.now)

	tracker.Heartbeat("WXYZ", "p1", "")
	clock.advance(time.Minute)
	tracker.Heartbeat("WXYZ", "p2", "")
	tracker.Sweep()

	connected := tracker.Connected("WXYZ")
	if len(connected) != 1 || connected[0] != "p2" {
		t.Fatalf("connected = %v", connected)
	}
}

func TestRemoveAndDropRoom(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(30*time.Second, clock.now)

	tracker.Heartbeat("WXYZ", "p1", "")
	tracker.Heartbeat("ABCD", "p2", "")

	tracker.Remove("WXYZ", "p1")
	if got := tracker.StateOf("WXYZ", "p1"); got != StateUnknown {
		t.Fatalf("state after remove = %v", got)
	}

	tracker.DropRoom("ABCD")
	if got := tracker.StateOf("ABCD", "p2"); got != StateUnknown {
		t.Fatalf("state after drop = %v", got)
	}

	// Removed players never appear in later sweeps.
	clock.advance(time.Minute)
	if events := tracker.Sweep(); len(events) != 0 {
		t.Fatalf("events = %+v", events)
	}
}
