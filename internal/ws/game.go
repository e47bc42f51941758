package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/matchpoint/server/internal/auth"
	"github.com/matchpoint/server/internal/logging"
	"github.com/matchpoint/server/internal/session"
)

// GameHandler upgrades /ws/games/{id}. The attached player must send
// PLAYER_READY before the session will start; the token, not the frame,
// decides which player they are.
type GameHandler struct {
	verifier *auth.Verifier
	sessions *session.Manager
	log      *logging.Logger
}

func NewGameHandler(verifier *auth.Verifier, sessions *session.Manager, log *logging.Logger) *GameHandler {
	if log == nil {
		log = logging.Default
	}
	return &GameHandler{verifier: verifier, sessions: sessions, log: log}
}

func (h *GameHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gameID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid game id", http.StatusBadRequest)
		return
	}

	claims, err := h.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	s, ok := h.sessions.Get(gameID)
	if !ok {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	outbox := make(chan session.Event, s.OutboxSize())
	if _, err := s.Attach(r.Context(), claims.UserID, outbox); err != nil {
		_ = writeJSON(r.Context(), conn, errorMessage{Type: "error", Error: "not a player in this game"})
		conn.Close(websocket.StatusPolicyViolation, "not a player")
		return
	}
	defer s.DetachConn(claims.UserID, outbox)

	writeCtx, writeCancel := context.WithCancel(r.Context())
	defer writeCancel()
	go func() {
		for {
			select {
			case <-writeCtx.Done():
				return
			case event, open := <-outbox:
				if !open {
					conn.Close(websocket.StatusNormalClosure, "session ended")
					return
				}
				if event.Type == session.EventReplaced {
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
		case msgPlayerReady:
			s.Ready(claims.UserID)
		case msgPaddleMove:
			if !validDirection(msg.Direction) {
				_ = writeJSON(r.Context(), conn, errorMessage{Type: "error", Error: "invalid direction"})
				continue
			}
			s.Move(claims.UserID, msg.Direction)
		case msgPing:
			_ = writeJSON(r.Context(), conn, pong)
		}
	}
}

func validDirection(direction string) bool {
	switch direction {
	case session.DirectionUp, session.DirectionDown, session.DirectionStop:
		return true
	}
	return false
}
