package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/matchpoint/server/internal/models"
	"github.com/matchpoint/server/internal/services"
)

const defaultMatchHistoryLimit = 20

type MatchHandler struct {
	matchService services.MatchServiceInterface
}

func NewMatchHandler(matchService services.MatchServiceInterface) *MatchHandler {
	return &MatchHandler{matchService: matchService}
}

type MatchListResponse struct {
	Matches []models.RemoteMatch `json:"matches"`
}

type MatchResponse struct {
	Match   *models.RemoteMatch `json:"match,omitempty"`
	Message string              `json:"message,omitempty"`
}

type InterruptRequest struct {
	Reason string `json:"reason"`
}

type LinkTournamentRequest struct {
	MatchID string `json:"match_id"`
}

func (h *MatchHandler) List(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	limit := defaultMatchHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	matches, err := h.matchService.ListForUser(r.Context(), user.ID, limit)
	if err != nil {
		log.Printf("Error listing matches: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, MatchListResponse{Matches: matches})
}

func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	match, ok := h.loadPlayerMatch(w, r, user.ID)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, MatchResponse{Match: match})
}

// Forfeit concedes the match; the opponent is recorded as the winner.
func (h *MatchHandler) Forfeit(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	matchID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid match ID")
		return
	}

	err = h.matchService.Forfeit(r.Context(), matchID, user.ID)
	switch {
	case errors.Is(err, services.ErrMatchNotFound):
		writeError(w, http.StatusNotFound, "Match not found")
		return
	case errors.Is(err, services.ErrNotMatchPlayer):
		writeError(w, http.StatusForbidden, "You are not a player in this match")
		return
	case errors.Is(err, services.ErrMatchFinished):
		writeError(w, http.StatusConflict, "Match already finished")
		return
	case err != nil:
		log.Printf("Error forfeiting match: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, MatchResponse{Message: "Match forfeited"})
}

// Interrupt flags the match as disrupted. If the match belongs to a
// tournament, the bracket is told exactly once.
func (h *MatchHandler) Interrupt(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	match, ok := h.loadPlayerMatch(w, r, user.ID)
	if !ok {
		return
	}

	var req InterruptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.matchService.Interrupt(r.Context(), match.ID, req.Reason); err != nil {
		log.Printf("Error interrupting match: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, MatchResponse{Message: "Match interrupted"})
}

// LinkTournament attaches an existing match to a tournament bracket so
// interruptions during it are reported upstream.
func (h *MatchHandler) LinkTournament(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	tournamentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid tournament ID")
		return
	}

	var req LinkTournamentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	matchID, err := uuid.Parse(req.MatchID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid match ID")
		return
	}

	if err := h.matchService.LinkTournament(r.Context(), tournamentID, matchID); err != nil {
		log.Printf("Error linking tournament match: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, MatchResponse{Message: "Match linked to tournament"})
}

// loadPlayerMatch parses the path ID, loads the match, and enforces that the
// caller is one of its players. Non-players get a 404 rather than a hint
// that the match exists.
func (h *MatchHandler) loadPlayerMatch(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (*models.RemoteMatch, bool) {
	matchID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid match ID")
		return nil, false
	}

	match, err := h.matchService.Get(r.Context(), matchID)
	if errors.Is(err, services.ErrMatchNotFound) {
		writeError(w, http.StatusNotFound, "Match not found")
		return nil, false
	}
	if err != nil {
		log.Printf("Error loading match: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}

	if match.Player1ID != userID && match.Player2ID != userID {
		writeError(w, http.StatusNotFound, "Match not found")
		return nil, false
	}
	return match, true
}
