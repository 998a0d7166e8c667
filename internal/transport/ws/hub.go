// Package ws is the WebSocket transport. Each device keeps one socket per
// room; state flows one way, from the service to subscribers, as
// role-filtered snapshots pushed after every room mutation.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/louisbranch/wayfarer.quest/internal/coop/service"
	"github.com/louisbranch/wayfarer.quest/internal/coop/view"
	apperrors "github.com/louisbranch/wayfarer.quest/internal/platform/errors"
)

const writeWait = 10 * time.Second

// subscriber is one live socket. The mutex serializes writes; gorilla
// connections do not support concurrent writers.
type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub tracks sockets per room and player. It implements service.Notifier:
// every committed room mutation fans out fresh per-role snapshots.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[string]*subscriber
	svc   *service.Service
}

// NewHub creates an empty hub. Attach must be called before any subscription.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[string]*subscriber)}
}

// Attach binds the hub to the service it snapshots from. Split from NewHub
// because the service takes the hub as its notifier at construction.
func (h *Hub) Attach(svc *service.Service) {
	h.svc = svc
}

// Subscribe registers a socket for a player. A newer socket for the same
// player replaces the old one, which covers app restarts on the same device.
func (h *Hub) Subscribe(code, playerID string, conn *websocket.Conn) *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[code]
	if !ok {
		room = make(map[string]*subscriber)
		h.rooms[code] = room
	}
	if existing, ok := room[playerID]; ok {
		existing.conn.Close()
	}
	sub := &subscriber{conn: conn}
	room[playerID] = sub
	return sub
}

// Unsubscribe removes a socket. It is a no-op if a newer socket already
// replaced this one.
func (h *Hub) Unsubscribe(code, playerID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[code]
	if !ok {
		return
	}
	if current, ok := room[playerID]; ok && current == sub {
		delete(room, playerID)
	}
	if len(room) == 0 {
		delete(h.rooms, code)
	}
}

// RoomChanged implements service.Notifier. The service calls it while holding
// the room's writer lock, so the push happens on its own goroutine.
func (h *Hub) RoomChanged(code string) {
	go h.pushSnapshots(code)
}

// pushSnapshots sends each subscriber of a room its own role-filtered view.
func (h *Hub) pushSnapshots(code string) {
	if h.svc == nil {
		return
	}
	h.mu.Lock()
	subs := make(map[string]*subscriber, len(h.rooms[code]))
	for playerID, sub := range h.rooms[code] {
		subs[playerID] = sub
	}
	h.mu.Unlock()

	ctx := context.Background()
	for playerID, sub := range subs {
		v, err := h.svc.Snapshot(ctx, code, playerID)
		if apperrors.IsCode(err, apperrors.CodeRoomNotFound) {
			h.close(code, playerID, sub, frame{Type: "room_closed"})
			continue
		}
		if err != nil {
			log.Printf("snapshot room=%s player=%s err=%v", code, playerID, err)
			continue
		}
		if err := h.send(sub, stateFrame(v)); err != nil {
			log.Printf("push room=%s player=%s err=%v", code, playerID, err)
			h.Unsubscribe(code, playerID, sub)
			sub.conn.Close()
		}
	}
}

func (h *Hub) send(sub *subscriber, f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return sub.write(data)
}

func (h *Hub) close(code, playerID string, sub *subscriber, f frame) {
	if err := h.send(sub, f); err != nil {
		log.Printf("close room=%s player=%s err=%v", code, playerID, err)
	}
	h.Unsubscribe(code, playerID, sub)
	sub.conn.Close()
}

// frame is the server-to-client message envelope.
type frame struct {
	Type    string     `json:"type"`
	View    *view.View `json:"view,omitempty"`
	Code    string     `json:"code,omitempty"`
	Message string     `json:"message,omitempty"`
}

func stateFrame(v view.View) frame {
	return frame{Type: "state", View: &v}
}

func errorFrame(err error) frame {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return frame{Type: "error", Code: string(appErr.Code), Message: appErr.Message}
	}
	return frame{Type: "error", Code: string(apperrors.CodeUnknown), Message: err.Error()}
}
