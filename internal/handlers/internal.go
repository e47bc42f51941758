package handlers

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/matchpoint/server/internal/room"
	"github.com/matchpoint/server/internal/services"
)

// RoomCloser shuts down a live lobby by code. Satisfied by *room.Hub.
type RoomCloser interface {
	Close(code string, reason string) bool
}

// InternalHandler serves server-to-server endpoints. Callers present a
// shared bearer token; an empty configured token disables the surface.
type InternalHandler struct {
	token         string
	inviteService services.InviteServiceInterface
	rooms         RoomCloser
}

func NewInternalHandler(token string, inviteService services.InviteServiceInterface, rooms RoomCloser) *InternalHandler {
	return &InternalHandler{token: token, inviteService: inviteService, rooms: rooms}
}

type RoomClosedResponse struct {
	RoomCode   string `json:"roomCode"`
	RoomClosed bool   `json:"roomClosed"`
}

// RoomClosed tears down whatever is left of a room another service has shut
// down: the live lobby, if one is still running, and the invitation that
// holds its code.
func (h *InternalHandler) RoomClosed(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}

	code := r.PathValue("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Missing room code")
		return
	}

	closed := h.rooms.Close(code, room.ReasonRemoteClosed)
	if err := h.inviteService.RemoveByRoomCode(r.Context(), code); err != nil {
		log.Printf("Error removing invitation for closed room %s: %v", code, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, RoomClosedResponse{RoomCode: code, RoomClosed: closed})
}

func (h *InternalHandler) authorized(r *http.Request) bool {
	// No token configured means the endpoint is off, not open.
	if h.token == "" {
		return false
	}
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	presented := strings.TrimPrefix(header, prefix)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.token)) == 1
}
