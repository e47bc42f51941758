package models

import (
	"time"

	"github.com/google/uuid"
)

type MatchStatus string

const (
	MatchStatusWaiting     MatchStatus = "waiting"
	MatchStatusInProgress  MatchStatus = "in_progress"
	MatchStatusCompleted   MatchStatus = "completed"
	MatchStatusCancelled   MatchStatus = "cancelled"
	MatchStatusInterrupted MatchStatus = "interrupted"
	MatchStatusForfeited   MatchStatus = "forfeited"
)

// Terminal reports whether no further transitions are allowed.
func (s MatchStatus) Terminal() bool {
	switch s {
	case MatchStatusCompleted, MatchStatusCancelled, MatchStatusInterrupted, MatchStatusForfeited:
		return true
	}
	return false
}

// RemoteMatch is the match-history row for a two-player game.
type RemoteMatch struct {
	ID        uuid.UUID   `json:"id"`
	RoomCode  string      `json:"room_code"`
	Player1ID uuid.UUID   `json:"player1_id"`
	Player2ID uuid.UUID   `json:"player2_id"`
	Status    MatchStatus `json:"status"`
	WinnerID  *uuid.UUID  `json:"winner_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
}

// TournamentMatch tracks the tournament-side state of a match, including the
// exactly-once interrupt report.
type TournamentMatch struct {
	ID              uuid.UUID   `json:"id"`
	TournamentID    uuid.UUID   `json:"tournament_id"`
	MatchID         uuid.UUID   `json:"match_id"`
	Status          MatchStatus `json:"status"`
	InterruptReason *string     `json:"interrupt_reason,omitempty"`
	ReportedAt      *time.Time  `json:"reported_at,omitempty"`
}
