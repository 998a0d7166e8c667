package ws

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	qrcode "github.com/skip2/go-qrcode"
	"google.golang.org/grpc/codes"

	"github.com/louisbranch/wayfarer.quest/internal/coop/domain"
	"github.com/louisbranch/wayfarer.quest/internal/coop/service"
	apperrors "github.com/louisbranch/wayfarer.quest/internal/platform/errors"
)

// qrSize is the pixel edge of generated join QR codes.
const qrSize = 256

// Gateway exposes the session service over HTTP: a small JSON API for room
// setup and one WebSocket per device for everything in-session.
type Gateway struct {
	svc      *service.Service
	hub      *Hub
	upgrader websocket.Upgrader
	// joinBaseURL is the public URL prefix encoded into join QR codes.
	joinBaseURL string
}

// NewGateway wires a gateway around an attached hub.
func NewGateway(svc *service.Service, hub *Hub, joinBaseURL string) *Gateway {
	return &Gateway{
		svc: svc,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Devices join from scanned QR codes on arbitrary local networks.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		joinBaseURL: strings.TrimSuffix(joinBaseURL, "/"),
	}
}

// Routes registers every endpoint on a mux.
func (g *Gateway) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", g.handleHealth)
	mux.HandleFunc("POST /api/rooms", g.handleCreateRoom)
	mux.HandleFunc("POST /api/rooms/{code}/join", g.handleJoinRoom)
	mux.HandleFunc("GET /api/rooms/{code}", g.handleGetRoom)
	mux.HandleFunc("GET /api/rooms/{code}/qr", g.handleJoinQR)
	mux.HandleFunc("POST /api/rooms/{code}/token", g.handleIssueToken)
	mux.HandleFunc("GET /ws", g.handleSocket)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type createRoomRequest struct {
	PlayerID string `json:"player_id"`
}

type roomResponse struct {
	Code         string             `json:"code"`
	HostID       string             `json:"host_id"`
	Status       string             `json:"status"`
	Participants []participantEntry `json:"participants"`
}

type participantEntry struct {
	PlayerID string `json:"player_id"`
	Role     string `json:"role,omitempty"`
	Ready    bool   `json:"ready"`
}

func roomToResponse(room domain.Room) roomResponse {
	resp := roomResponse{
		Code:   room.Code,
		HostID: room.HostID,
		Status: domain.RoomStatusLabel(room.Status),
	}
	for _, p := range room.Participants {
		entry := participantEntry{PlayerID: p.PlayerID, Ready: p.Ready}
		if p.Role != domain.RoleUnspecified {
			entry.Role = domain.RoleLabel(p.Role)
		}
		resp.Participants = append(resp.Participants, entry)
	}
	return resp
}

func (g *Gateway) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CodeInvalidRequest, "invalid request body"))
		return
	}
	room, err := g.svc.CreateRoom(r.Context(), req.PlayerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, roomToResponse(room))
}

func (g *Gateway) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CodeInvalidRequest, "invalid request body"))
		return
	}
	room, err := g.svc.JoinRoom(r.Context(), r.PathValue("code"), req.PlayerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomToResponse(room))
}

func (g *Gateway) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := g.svc.Room(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomToResponse(room))
}

// handleJoinQR renders the room's join link as a PNG QR code for the host to
// show on their screen.
func (g *Gateway) handleJoinQR(w http.ResponseWriter, r *http.Request) {
	room, err := g.svc.Room(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	link := g.joinBaseURL + "/join?code=" + url.QueryEscape(room.Code)
	png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "encode qr", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

type tokenRequest struct {
	PlayerID string `json:"player_id"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (g *Gateway) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CodeInvalidRequest, "invalid request body"))
		return
	}
	signed, err := g.svc.IssueSessionToken(r.Context(), r.PathValue("code"), req.PlayerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: signed})
}

// command is the client-to-server message envelope on the socket.
type command struct {
	Op        string `json:"op"`
	QuestID   string `json:"quest,omitempty"`
	ChoiceID  string `json:"choice,omitempty"`
	Ready     bool   `json:"ready,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Amount    int    `json:"amount,omitempty"`
	Intent    string `json:"intent,omitempty"`
	Token     string `json:"token,omitempty"`
	QueueNext bool   `json:"queue_next,omitempty"`

	Action *actionBody `json:"action,omitempty"`
}

type actionBody struct {
	Kind     string `json:"kind"`
	TargetID string `json:"target,omitempty"`
	CardID   string `json:"card,omitempty"`
	ToRank   int    `json:"to_rank,omitempty"`
}

// handleSocket upgrades the connection and serves the per-device command
// loop. Disconnect detection stays with the presence sweep; a dropped socket
// alone does not mark the player disconnected.
func (g *Gateway) handleSocket(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("code")))
	playerID := strings.TrimSpace(r.URL.Query().Get("player"))
	if code == "" || playerID == "" {
		http.Error(w, "code and player are required", http.StatusBadRequest)
		return
	}
	if _, err := g.svc.Room(r.Context(), code); err != nil {
		writeError(w, err)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade room=%s player=%s err=%v", code, playerID, err)
		return
	}
	sub := g.hub.Subscribe(code, playerID, conn)
	defer func() {
		g.hub.Unsubscribe(code, playerID, sub)
		conn.Close()
	}()

	g.svc.Heartbeat(r.Context(), code, playerID, "")
	if v, err := g.svc.Snapshot(r.Context(), code, playerID); err == nil {
		g.hub.send(sub, stateFrame(v))
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			g.hub.send(sub, errorFrame(apperrors.New(apperrors.CodeInvalidRequest, "invalid command")))
			continue
		}
		if err := g.dispatch(r, code, playerID, cmd); err != nil {
			g.hub.send(sub, errorFrame(err))
		}
	}
}

// dispatch routes one socket command to the service. State updates reach the
// client through the hub's snapshot push, not the command response.
func (g *Gateway) dispatch(r *http.Request, code, playerID string, cmd command) error {
	ctx := r.Context()
	switch cmd.Op {
	case "heartbeat":
		_, err := g.svc.Heartbeat(ctx, code, playerID, cmd.Intent)
		return err
	case "ready":
		_, err := g.svc.SetReady(ctx, code, playerID, cmd.Ready)
		return err
	case "start_quest":
		_, err := g.svc.StartQuest(ctx, code, playerID, cmd.QuestID)
		return err
	case "vote":
		_, err := g.svc.CastVote(ctx, code, playerID, cmd.ChoiceID)
		return err
	case "node_ready":
		_, err := g.svc.NodeReady(ctx, code, playerID)
		return err
	case "contribute":
		_, err := g.svc.Contribute(ctx, code, playerID, cmd.Tag, cmd.Amount)
		return err
	case "commit":
		if cmd.Action == nil {
			return apperrors.New(apperrors.CodeInvalidRequest, "commit requires an action")
		}
		payload := domain.ActionPayload{
			Kind:     domain.ActionKindFromLabel(cmd.Action.Kind),
			TargetID: cmd.Action.TargetID,
			CardID:   cmd.Action.CardID,
			ToRank:   cmd.Action.ToRank,
		}
		if payload.Kind == domain.ActionKindUnspecified {
			return apperrors.WithMetadata(apperrors.CodeInvalidRequest,
				"unknown action kind",
				map[string]string{"Kind": cmd.Action.Kind})
		}
		_, err := g.svc.CommitAction(ctx, code, playerID, payload, cmd.QueueNext)
		return err
	case "cancel":
		_, err := g.svc.CancelAction(ctx, code, playerID)
		return err
	case "reconnect":
		_, _, err := g.svc.Reconnect(ctx, code, playerID, cmd.Token)
		return err
	case "leave":
		return g.svc.LeaveRoom(ctx, code, playerID)
	default:
		return apperrors.WithMetadata(apperrors.CodeInvalidRequest,
			"unknown op",
			map[string]string{"Op": cmd.Op})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response err=%v", err)
	}
}

// writeError maps domain errors onto HTTP statuses via their gRPC codes.
func writeError(w http.ResponseWriter, err error) {
	f := errorFrame(err)
	status := http.StatusInternalServerError
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		status = httpStatus(appErr.Code)
	}
	writeJSON(w, status, f)
}

func httpStatus(code apperrors.Code) int {
	switch code.GRPCCode() {
	case codes.NotFound:
		return http.StatusNotFound
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Aborted, codes.AlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
