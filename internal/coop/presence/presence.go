// Package presence tracks device liveness per room via heartbeats and emits
// edge-triggered connection changes.
package presence

import (
	"sync"
	"time"

	"github.com/louisbranch/wayfarer.quest/internal/platform/timeouts"
)

// State is the connection state of one player in one room.
type State int

const (
	// StateUnknown means the player has never sent a heartbeat.
	StateUnknown State = iota
	// StateConnected means a heartbeat arrived within the threshold.
	StateConnected
	// StateReconnecting means a disconnected player's device has re-attached
	// and is resuming, but liveness is not confirmed yet.
	StateReconnecting
	// StateDisconnected means the threshold elapsed without a heartbeat.
	StateDisconnected
)

// Event is an edge-triggered connection change. Sweeps that observe no change
// emit nothing.
type Event struct {
	RoomCode string
	PlayerID string
	State    State
	At       time.Time
}

type record struct {
	lastSeen time.Time
	state    State
	intent   string
}

// Tracker records per-player heartbeats and detects transitions. All methods
// are safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	threshold time.Duration
	rooms     map[string]map[string]*record
	now       func() time.Time
}

// NewTracker creates a tracker. A nil clock defaults to time.Now and a
// non-positive threshold defaults to timeouts.DisconnectThreshold.
func NewTracker(threshold time.Duration, now func() time.Time) *Tracker {
	if threshold <= 0 {
		threshold = timeouts.DisconnectThreshold
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		threshold: threshold,
		rooms:     make(map[string]map[string]*record),
		now:       now,
	}
}

// Heartbeat records a liveness signal with an optional social intent. An
// empty intent keeps whatever the player last declared. It returns a
// reconnect event when the player was previously marked disconnected or
// reconnecting, otherwise nil.
func (t *Tracker) Heartbeat(roomCode, playerID, intent string) *Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	players, ok := t.rooms[roomCode]
	if !ok {
		players = make(map[string]*record)
		t.rooms[roomCode] = players
	}
	rec, ok := players[playerID]
	if !ok {
		players[playerID] = &record{lastSeen: now, state: StateConnected, intent: intent}
		return &Event{RoomCode: roomCode, PlayerID: playerID, State: StateConnected, At: now}
	}

	rec.lastSeen = now
	if intent != "" {
		rec.intent = intent
	}
	if rec.state == StateDisconnected || rec.state == StateReconnecting {
		rec.state = StateConnected
		return &Event{RoomCode: roomCode, PlayerID: playerID, State: StateConnected, At: now}
	}
	rec.state = StateConnected
	return nil
}

// MarkReconnecting flips a disconnected player to the reconnecting state
// while their device resumes a session. It reports whether the transition
// happened; players in any other state are left untouched.
func (t *Tracker) MarkReconnecting(roomCode, playerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.rooms[roomCode][playerID]
	if !ok || rec.state != StateDisconnected {
		return false
	}
	rec.state = StateReconnecting
	return true
}

// Sweep scans every tracked player and returns disconnect events for those
// whose last heartbeat is older than the threshold. Each transition is
// reported once; repeated sweeps stay silent until the player reconnects.
func (t *Tracker) Sweep() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var events []Event
	for roomCode, players := range t.rooms {
		for playerID, rec := range players {
			if now.Sub(rec.lastSeen) <= t.threshold {
				continue
			}
			switch rec.state {
			case StateConnected:
				rec.state = StateDisconnected
				events = append(events, Event{
					RoomCode: roomCode,
					PlayerID: playerID,
					State:    StateDisconnected,
					At:       now,
				})
			case StateReconnecting:
				// The disconnect was already reported; a stalled
				// resume reverts silently.
				rec.state = StateDisconnected
			}
		}
	}
	return events
}

// StateOf reports the tracked state of a player in a room.
func (t *Tracker) StateOf(roomCode, playerID string) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.rooms[roomCode][playerID]; ok {
		return rec.state
	}
	return StateUnknown
}

// Connected lists players currently marked connected in a room.
func (t *Tracker) Connected(roomCode string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []string
	for playerID, rec := range t.rooms[roomCode] {
		if rec.state == StateConnected {
			out = append(out, playerID)
		}
	}
	return out
}

// Intents returns the declared social intent of every connected player in a
// room. Players without a declared intent are absent from the map.
func (t *Tracker) Intents(roomCode string) map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out map[string]string
	for playerID, rec := range t.rooms[roomCode] {
		if rec.state != StateConnected || rec.intent == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[playerID] = rec.intent
	}
	return out
}

// Remove forgets a player, typically after an explicit leave.
func (t *Tracker) Remove(roomCode, playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if players, ok := t.rooms[roomCode]; ok {
		delete(players, playerID)
		if len(players) == 0 {
			delete(t.rooms, roomCode)
		}
	}
}

// DropRoom forgets every player of a room, typically after room cleanup.
func (t *Tracker) DropRoom(roomCode string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.rooms, roomCode)
}
