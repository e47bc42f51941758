package handlers

import (
	"net/http"
)

// Counter reports how many live entries a registry currently holds.
type Counter interface {
	Count() int
}

// StatsHandler exposes live room and session counts for operators.
type StatsHandler struct {
	rooms    Counter
	sessions Counter
}

func NewStatsHandler(rooms, sessions Counter) *StatsHandler {
	return &StatsHandler{rooms: rooms, sessions: sessions}
}

type StatsResponse struct {
	OpenRooms    int `json:"open_rooms"`
	LiveSessions int `json:"live_sessions"`
}

func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		OpenRooms:    h.rooms.Count(),
		LiveSessions: h.sessions.Count(),
	})
}
