package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"github.com/matchpoint/server/internal/auth"
	"github.com/matchpoint/server/internal/logging"
	"github.com/matchpoint/server/internal/room"
	"github.com/matchpoint/server/internal/services"
)

// LobbyHandler upgrades /ws/rooms/{code}. A room exists while a live
// invitation backs its code or while it already has players; anyone holding
// the code may take the free slot.
type LobbyHandler struct {
	verifier *auth.Verifier
	hub      *room.Hub
	invites  *services.InviteService
	log      *logging.Logger
}

func NewLobbyHandler(verifier *auth.Verifier, hub *room.Hub, invites *services.InviteService, log *logging.Logger) *LobbyHandler {
	if log == nil {
		log = logging.Default
	}
	return &LobbyHandler{verifier: verifier, hub: hub, invites: invites, log: log}
}

func (h *LobbyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}

	claims, err := h.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	rm, ok := h.hub.Get(code)
	if !ok {
		// Only invitation-backed codes may create a room.
		if _, err := h.invites.GetByRoomCode(r.Context(), code); err != nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		rm = h.hub.Ensure(code)
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	outbox := make(chan room.Event, rm.OutboxSize())
	if _, err := rm.Join(r.Context(), claims.UserID, claims.Username, outbox); err != nil {
		_ = writeJSON(r.Context(), conn, errorMessage{Type: "error", Error: joinErrorText(err)})
		conn.Close(websocket.StatusPolicyViolation, joinErrorText(err))
		return
	}
	defer rm.Detach(claims.UserID, outbox)

	writeCtx, writeCancel := context.WithCancel(r.Context())
	defer writeCancel()
	go func() {
		for {
			select {
			case <-writeCtx.Done():
				return
			case event, open := <-outbox:
				if !open {
					conn.Close(websocket.StatusNormalClosure, "room closed")
					return
				}
				if event.Type == room.EventReplaced {
					conn.Close(websocket.StatusServiceRestart, "connection replaced")
					return
				}
				if err := writeJSON(writeCtx, conn, event); err != nil {
					return
				}
			}
		}
	}()

	for {
		rctx, cancel := context.WithTimeout(r.Context(), readTimeout)
		_, data, err := conn.Read(rctx)
		cancel()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = writeJSON(r.Context(), conn, errorMessage{Type: "error", Error: "bad json"})
			continue
		}

		switch msg.Type {
		case msgReady:
			rm.Ready(claims.UserID, true)
		case msgUnready:
			rm.Ready(claims.UserID, false)
		case msgLeave:
			return
		case msgPing:
			_ = writeJSON(r.Context(), conn, pong)
		}
	}
}

func joinErrorText(err error) string {
	switch {
	case errors.Is(err, room.ErrRoomFull):
		return "room is full"
	case errors.Is(err, room.ErrRoomStarted):
		return "game already started"
	case errors.Is(err, room.ErrRoomClosed):
		return "room is closed"
	default:
		return "could not join room"
	}
}
