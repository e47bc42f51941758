package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/matchpoint/server/internal/models"
)

var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrMatchFinished  = errors.New("match already finished")
	ErrNotMatchPlayer = errors.New("user is not a player in this match")
)

// BracketReporter forwards an interrupted tournament match to whatever owns
// the bracket so it can advance or void the slot.
type BracketReporter interface {
	ReportInterrupt(ctx context.Context, tournamentID, matchID uuid.UUID, reason string) error
}

const matchColumns = "id, room_code, player1_id, player2_id, status, winner_id, created_at, started_at, ended_at"

type MatchService struct {
	db       DB
	reporter BracketReporter
}

func NewMatchService(db DB, reporter BracketReporter) *MatchService {
	return &MatchService{db: db, reporter: reporter}
}

// Create records a match in the waiting state when a room hands off to a
// game session.
func (s *MatchService) Create(ctx context.Context, roomCode string, player1ID, player2ID uuid.UUID) (*models.RemoteMatch, error) {
	match := &models.RemoteMatch{}
	err := s.db.QueryRow(ctx,
		`INSERT INTO remote_matches (room_code, player1_id, player2_id, status)
		 VALUES ($1, $2, $3, 'waiting')
		 RETURNING `+matchColumns,
		roomCode, player1ID, player2ID,
	).Scan(
		&match.ID, &match.RoomCode, &match.Player1ID, &match.Player2ID,
		&match.Status, &match.WinnerID, &match.CreatedAt, &match.StartedAt, &match.EndedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating match: %w", err)
	}
	return match, nil
}

// Start moves a waiting match to in_progress once both players complete the
// session handshake.
func (s *MatchService) Start(ctx context.Context, matchID uuid.UUID) error {
	result, err := s.db.Exec(ctx,
		"UPDATE remote_matches SET status = 'in_progress', started_at = NOW() WHERE id = $1 AND status = 'waiting'",
		matchID,
	)
	if err != nil {
		return fmt.Errorf("starting match: %w", err)
	}
	if result.RowsAffected() == 0 {
		return s.classifyMiss(ctx, matchID)
	}
	return nil
}

// Finish records the winner and completes the match.
func (s *MatchService) Finish(ctx context.Context, matchID, winnerID uuid.UUID) error {
	result, err := s.db.Exec(ctx,
		`UPDATE remote_matches SET status = 'completed', winner_id = $2, ended_at = NOW()
		 WHERE id = $1 AND status = 'in_progress'`,
		matchID, winnerID,
	)
	if err != nil {
		return fmt.Errorf("finishing match: %w", err)
	}
	if result.RowsAffected() == 0 {
		return s.classifyMiss(ctx, matchID)
	}
	return nil
}

// Cancel ends a match that never started, e.g. the handshake timed out.
func (s *MatchService) Cancel(ctx context.Context, matchID uuid.UUID) error {
	result, err := s.db.Exec(ctx,
		"UPDATE remote_matches SET status = 'cancelled', ended_at = NOW() WHERE id = $1 AND status = 'waiting'",
		matchID,
	)
	if err != nil {
		return fmt.Errorf("cancelling match: %w", err)
	}
	if result.RowsAffected() == 0 {
		return s.classifyMiss(ctx, matchID)
	}
	return nil
}

// Interrupt ends a live match because a player disconnected or the room was
// torn down. The match update and the bracket marker commit in one
// transaction, and the conditional updates win at most once per match, so a
// tournament bracket is reported exactly once even when both players'
// disconnects race.
func (s *MatchService) Interrupt(ctx context.Context, matchID uuid.UUID, reason string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning interrupt transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx,
		`UPDATE remote_matches SET status = 'interrupted', ended_at = NOW()
		 WHERE id = $1 AND status IN ('waiting', 'in_progress')`,
		matchID,
	)
	if err != nil {
		return fmt.Errorf("interrupting match: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Someone else already ended it; nothing to report.
		return nil
	}

	tournamentID, linked, err := markBracketReported(ctx, tx, matchID, reason)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing interrupt: %w", err)
	}

	// The outbound call happens only after the reported_at marker is
	// durable, keeping it at-most-once across crashes.
	if linked && s.reporter != nil {
		if err := s.reporter.ReportInterrupt(ctx, tournamentID, matchID, reason); err != nil {
			return fmt.Errorf("reporting tournament interrupt: %w", err)
		}
	}
	return nil
}

// Forfeit ends a live match with the other player as winner.
func (s *MatchService) Forfeit(ctx context.Context, matchID, forfeiterID uuid.UUID) error {
	match, err := s.Get(ctx, matchID)
	if err != nil {
		return err
	}
	var winnerID uuid.UUID
	switch forfeiterID {
	case match.Player1ID:
		winnerID = match.Player2ID
	case match.Player2ID:
		winnerID = match.Player1ID
	default:
		return ErrNotMatchPlayer
	}

	result, err := s.db.Exec(ctx,
		`UPDATE remote_matches SET status = 'forfeited', winner_id = $2, ended_at = NOW()
		 WHERE id = $1 AND status IN ('waiting', 'in_progress')`,
		matchID, winnerID,
	)
	if err != nil {
		return fmt.Errorf("forfeiting match: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrMatchFinished
	}
	return nil
}

// Get loads a match by ID.
func (s *MatchService) Get(ctx context.Context, matchID uuid.UUID) (*models.RemoteMatch, error) {
	match := &models.RemoteMatch{}
	err := s.db.QueryRow(ctx,
		"SELECT "+matchColumns+" FROM remote_matches WHERE id = $1",
		matchID,
	).Scan(
		&match.ID, &match.RoomCode, &match.Player1ID, &match.Player2ID,
		&match.Status, &match.WinnerID, &match.CreatedAt, &match.StartedAt, &match.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading match: %w", err)
	}
	return match, nil
}

// GetByRoomCode loads the most recent match for a room code.
func (s *MatchService) GetByRoomCode(ctx context.Context, roomCode string) (*models.RemoteMatch, error) {
	match := &models.RemoteMatch{}
	err := s.db.QueryRow(ctx,
		"SELECT "+matchColumns+" FROM remote_matches WHERE room_code = $1 ORDER BY created_at DESC LIMIT 1",
		roomCode,
	).Scan(
		&match.ID, &match.RoomCode, &match.Player1ID, &match.Player2ID,
		&match.Status, &match.WinnerID, &match.CreatedAt, &match.StartedAt, &match.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading match by room code: %w", err)
	}
	return match, nil
}

// ListForUser returns a user's match history, newest first.
func (s *MatchService) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.RemoteMatch, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.Query(ctx,
		"SELECT "+matchColumns+" FROM remote_matches WHERE player1_id = $1 OR player2_id = $1 ORDER BY created_at DESC LIMIT $2",
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	matches := []models.RemoteMatch{}
	for rows.Next() {
		var m models.RemoteMatch
		if err := rows.Scan(
			&m.ID, &m.RoomCode, &m.Player1ID, &m.Player2ID,
			&m.Status, &m.WinnerID, &m.CreatedAt, &m.StartedAt, &m.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// LinkTournament ties a match to a tournament bracket slot so interruptions
// get reported back to the bracket.
func (s *MatchService) LinkTournament(ctx context.Context, tournamentID, matchID uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tournament_matches (tournament_id, match_id, status)
		 VALUES ($1, $2, 'waiting')
		 ON CONFLICT (tournament_id, match_id) DO NOTHING`,
		tournamentID, matchID,
	)
	if err != nil {
		return fmt.Errorf("linking tournament match: %w", err)
	}
	return nil
}

// markBracketReported records the interruption against the tournament link,
// if one exists. The reported_at guard claims the report exactly once; a
// miss means the match is unlinked or the report was already claimed.
func markBracketReported(ctx context.Context, db DBConn, matchID uuid.UUID, reason string) (uuid.UUID, bool, error) {
	var tournamentID uuid.UUID
	err := db.QueryRow(ctx,
		`UPDATE tournament_matches
		 SET status = 'interrupted', interrupt_reason = $2, reported_at = NOW()
		 WHERE match_id = $1 AND reported_at IS NULL
		 RETURNING tournament_id`,
		matchID, reason,
	).Scan(&tournamentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("recording tournament interrupt: %w", err)
	}
	return tournamentID, true, nil
}

// classifyMiss turns a zero-row conditional update into the right error.
func (s *MatchService) classifyMiss(ctx context.Context, matchID uuid.UUID) error {
	match, err := s.Get(ctx, matchID)
	if err != nil {
		return err
	}
	if match.Status.Terminal() {
		return ErrMatchFinished
	}
	return fmt.Errorf("match %s in unexpected state %s", matchID, match.Status)
}
