package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/matchpoint/server/internal/models"
	"github.com/matchpoint/server/internal/services"
)

func TestMatchHandler_List(t *testing.T) {
	user := testUser()

	matchService := &mockMatchService{
		ListForUserFunc: func(ctx context.Context, userID uuid.UUID, limit int) ([]models.RemoteMatch, error) {
			if limit != defaultMatchHistoryLimit {
				t.Errorf("expected default limit %d, got %d", defaultMatchHistoryLimit, limit)
			}
			return []models.RemoteMatch{
				{ID: uuid.New(), Player1ID: userID, Status: models.MatchStatusCompleted},
			}, nil
		},
	}
	handler := NewMatchHandler(matchService)

	rr := httptest.NewRecorder()
	handler.List(rr, authedRequest("GET", "/api/matches", nil, user))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var response MatchListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(response.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(response.Matches))
	}
}

func TestMatchHandler_Get_NonPlayerHidden(t *testing.T) {
	matchID := uuid.New()
	matchService := &mockMatchService{
		GetFunc: func(ctx context.Context, mID uuid.UUID) (*models.RemoteMatch, error) {
			return &models.RemoteMatch{ID: mID, Player1ID: uuid.New(), Player2ID: uuid.New()}, nil
		},
	}
	handler := NewMatchHandler(matchService)

	req := authedRequest("GET", "/api/matches/"+matchID.String(), nil, testUser())
	req.SetPathValue("id", matchID.String())
	rr := httptest.NewRecorder()
	handler.Get(rr, req)

	assertErrorResponse(t, rr, http.StatusNotFound, "Match not found")
}

func TestMatchHandler_Get_Player(t *testing.T) {
	user := testUser()
	matchID := uuid.New()
	matchService := &mockMatchService{
		GetFunc: func(ctx context.Context, mID uuid.UUID) (*models.RemoteMatch, error) {
			return &models.RemoteMatch{ID: mID, Player1ID: user.ID, Player2ID: uuid.New(), Status: models.MatchStatusInProgress}, nil
		},
	}
	handler := NewMatchHandler(matchService)

	req := authedRequest("GET", "/api/matches/"+matchID.String(), nil, user)
	req.SetPathValue("id", matchID.String())
	rr := httptest.NewRecorder()
	handler.Get(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var response MatchResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.Match == nil || response.Match.ID != matchID {
		t.Fatalf("expected match %s, got %+v", matchID, response.Match)
	}
}

func TestMatchHandler_Forfeit_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", services.ErrMatchNotFound, http.StatusNotFound, "Match not found"},
		{"not player", services.ErrNotMatchPlayer, http.StatusForbidden, "You are not a player in this match"},
		{"finished", services.ErrMatchFinished, http.StatusConflict, "Match already finished"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matchService := &mockMatchService{
				ForfeitFunc: func(ctx context.Context, matchID, forfeiterID uuid.UUID) error {
					return tt.err
				},
			}
			handler := NewMatchHandler(matchService)

			req := authedRequest("POST", "/api/matches/"+uuid.NewString()+"/forfeit", nil, testUser())
			req.SetPathValue("id", uuid.NewString())
			rr := httptest.NewRecorder()
			handler.Forfeit(rr, req)

			assertErrorResponse(t, rr, tt.status, tt.message)
		})
	}
}

func TestMatchHandler_Interrupt(t *testing.T) {
	user := testUser()
	matchID := uuid.New()

	var gotReason string
	matchService := &mockMatchService{
		GetFunc: func(ctx context.Context, mID uuid.UUID) (*models.RemoteMatch, error) {
			return &models.RemoteMatch{ID: mID, Player1ID: user.ID, Player2ID: uuid.New()}, nil
		},
		InterruptFunc: func(ctx context.Context, mID uuid.UUID, reason string) error {
			gotReason = reason
			return nil
		},
	}
	handler := NewMatchHandler(matchService)

	body := strings.NewReader(`{"reason":"opponent_disconnected"}`)
	req := authedRequest("POST", "/api/matches/"+matchID.String()+"/interrupt", body, user)
	req.SetPathValue("id", matchID.String())
	rr := httptest.NewRecorder()
	handler.Interrupt(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotReason != "opponent_disconnected" {
		t.Errorf("expected reason opponent_disconnected, got %q", gotReason)
	}
}

func TestMatchHandler_Interrupt_MissingReason(t *testing.T) {
	user := testUser()
	matchID := uuid.New()
	matchService := &mockMatchService{
		GetFunc: func(ctx context.Context, mID uuid.UUID) (*models.RemoteMatch, error) {
			return &models.RemoteMatch{ID: mID, Player1ID: user.ID, Player2ID: uuid.New()}, nil
		},
	}
	handler := NewMatchHandler(matchService)

	req := authedRequest("POST", "/api/matches/"+matchID.String()+"/interrupt", strings.NewReader(`{}`), user)
	req.SetPathValue("id", matchID.String())
	rr := httptest.NewRecorder()
	handler.Interrupt(rr, req)

	assertErrorResponse(t, rr, http.StatusBadRequest, "Invalid request body")
}

func TestMatchHandler_LinkTournament(t *testing.T) {
	tournamentID := uuid.New()
	matchID := uuid.New()

	var gotTournament, gotMatch uuid.UUID
	matchService := &mockMatchService{
		LinkTournamentFunc: func(ctx context.Context, tID, mID uuid.UUID) error {
			gotTournament, gotMatch = tID, mID
			return nil
		},
	}
	handler := NewMatchHandler(matchService)

	body := strings.NewReader(`{"match_id":"` + matchID.String() + `"}`)
	req := authedRequest("POST", "/api/tournaments/"+tournamentID.String()+"/matches", body, testUser())
	req.SetPathValue("id", tournamentID.String())
	rr := httptest.NewRecorder()
	handler.LinkTournament(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if gotTournament != tournamentID || gotMatch != matchID {
		t.Errorf("service called with (%s, %s), want (%s, %s)", gotTournament, gotMatch, tournamentID, matchID)
	}
}

func TestStatsHandler(t *testing.T) {
	handler := NewStatsHandler(staticCounter(3), staticCounter(1))

	rr := httptest.NewRecorder()
	handler.Stats(rr, httptest.NewRequest("GET", "/api/stats", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var response StatsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.OpenRooms != 3 || response.LiveSessions != 1 {
		t.Errorf("expected 3 rooms and 1 session, got %+v", response)
	}
}

type staticCounter int

func (c staticCounter) Count() int { return int(c) }
