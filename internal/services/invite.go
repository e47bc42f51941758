package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/matchpoint/server/internal/logging"
	"github.com/matchpoint/server/internal/models"
)

var (
	ErrInviteNotFound       = errors.New("invitation not found")
	ErrInviteExpired        = errors.New("invitation has expired")
	ErrInviteConsumed       = errors.New("invitation already used")
	ErrInviteAlreadyPending = errors.New("recipient already has a pending invitation")
	ErrCannotInviteSelf     = errors.New("cannot invite yourself")
	ErrNotInviteRecipient   = errors.New("only the recipient can act on this invitation")
)

// InviteRateLimitError reports that the sender hit the invite creation
// limit. RetryAfter is how long until the window resets.
type InviteRateLimitError struct {
	RetryAfter time.Duration
}

func (e *InviteRateLimitError) Error() string {
	return "invite rate limit exceeded"
}

// roomCodeAlphabet omits visually-ambiguous characters (0/O, 1/I).
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const roomCodeLength = 6

const invitationColumns = "id, sender_id, recipient_id, kind, room_code, payload, consumed, created_at, expires_at"

type InviteService struct {
	db            DBConn
	notifications *NotificationService
	limiter       RateLimiter
	expiry        time.Duration
}

func NewInviteService(db DBConn, notifications *NotificationService, limiter RateLimiter, expiry time.Duration) *InviteService {
	return &InviteService{
		db:            db,
		notifications: notifications,
		limiter:       limiter,
		expiry:        expiry,
	}
}

// Create makes a new invitation from sender to recipient, allocates a room
// code, and notifies the recipient. The returned bool reports whether the
// notification reached the recipient over a live socket. A recipient holds
// at most one live invitation per kind: stale ones are swept first, and if
// an unexpired one remains, from any sender, the create fails with
// ErrInviteAlreadyPending.
func (s *InviteService) Create(ctx context.Context, senderID, recipientID uuid.UUID, kind models.InviteKind) (*models.Invitation, bool, error) {
	if senderID == recipientID {
		return nil, false, ErrCannotInviteSelf
	}

	if s.limiter != nil {
		allowed, retryAfter, err := s.limiter.Allow(ctx, "invite:"+senderID.String())
		if err != nil {
			return nil, false, fmt.Errorf("checking invite rate limit: %w", err)
		}
		if !allowed {
			return nil, false, &InviteRateLimitError{RetryAfter: retryAfter}
		}
	}

	// Expired rows would otherwise trip the live-invite unique index.
	if _, err := s.db.Exec(ctx,
		"DELETE FROM invitations WHERE recipient_id = $1 AND kind = $2 AND NOT consumed AND expires_at <= NOW()",
		recipientID, kind,
	); err != nil {
		return nil, false, fmt.Errorf("sweeping stale invitations: %w", err)
	}

	var pending bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM invitations
		   WHERE recipient_id = $1 AND kind = $2 AND NOT consumed AND expires_at > NOW()
		 )`,
		recipientID, kind,
	).Scan(&pending)
	if err != nil {
		return nil, false, fmt.Errorf("checking pending invitations: %w", err)
	}
	if pending {
		return nil, false, ErrInviteAlreadyPending
	}

	roomCode, err := s.allocateRoomCode(ctx)
	if err != nil {
		return nil, false, err
	}

	invitation := &models.Invitation{}
	err = s.db.QueryRow(ctx,
		`INSERT INTO invitations (sender_id, recipient_id, kind, room_code, payload, expires_at)
		 VALUES ($1, $2, $3, $4, '{}', $5)
		 RETURNING `+invitationColumns,
		senderID, recipientID, kind, roomCode, time.Now().Add(s.expiry),
	).Scan(
		&invitation.ID, &invitation.SenderID, &invitation.RecipientID,
		&invitation.Kind, &invitation.RoomCode, &invitation.Payload,
		&invitation.Consumed, &invitation.CreatedAt, &invitation.ExpiresAt,
	)
	if err != nil {
		// Two creates racing past the pending check: the unique index
		// lets exactly one insert win.
		if isUniqueViolation(err) {
			return nil, false, ErrInviteAlreadyPending
		}
		return nil, false, fmt.Errorf("creating invitation: %w", err)
	}

	delivered := false
	if s.notifications != nil {
		payload := map[string]any{
			"invitationId": invitation.ID,
			"roomCode":     invitation.RoomCode,
			"kind":         invitation.Kind,
		}
		_, delivered, err = s.notifications.Notify(ctx, recipientID, &senderID, models.NotificationTypeGameInvite, payload)
		if err != nil {
			return nil, false, fmt.Errorf("notifying invite recipient: %w", err)
		}
	}

	return invitation, delivered, nil
}

// Accept consumes an invitation on behalf of the recipient. Consumption is
// single-shot: a conditional update wins exactly once, so two accepts racing
// on the same invitation cannot both succeed. The sender is notified so
// their client can move to the room.
func (s *InviteService) Accept(ctx context.Context, recipientID, invitationID uuid.UUID) (*models.Invitation, error) {
	invitation, err := s.consume(ctx, recipientID, invitationID)
	if err != nil {
		return nil, err
	}

	// The consume already committed; a failed sender notification must not
	// turn the recipient's success into an error they would retry into a
	// conflict.
	if s.notifications != nil {
		payload := map[string]any{
			"invitationId": invitation.ID,
			"roomCode":     invitation.RoomCode,
		}
		if _, _, err := s.notifications.Notify(ctx, invitation.SenderID, &recipientID, models.NotificationTypeInvitationAccepted, payload); err != nil {
			logging.Error("Failed to notify sender of accepted invitation", map[string]interface{}{"error": err.Error(), "invitation_id": invitation.ID.String()})
		}
	}
	return invitation, nil
}

// Decline consumes the invitation without joining and tells the sender.
func (s *InviteService) Decline(ctx context.Context, recipientID, invitationID uuid.UUID) error {
	invitation, err := s.consume(ctx, recipientID, invitationID)
	if err != nil {
		return err
	}

	if s.notifications != nil {
		payload := map[string]any{
			"invitationId": invitation.ID,
			"roomCode":     invitation.RoomCode,
		}
		if _, _, err := s.notifications.Notify(ctx, invitation.SenderID, &recipientID, models.NotificationTypeInvitationDeclined, payload); err != nil {
			logging.Error("Failed to notify sender of declined invitation", map[string]interface{}{"error": err.Error(), "invitation_id": invitation.ID.String()})
		}
	}
	return nil
}

// GetByRoomCode returns the live invitation tied to a room code, if any.
func (s *InviteService) GetByRoomCode(ctx context.Context, roomCode string) (*models.Invitation, error) {
	invitation := &models.Invitation{}
	err := s.db.QueryRow(ctx,
		"SELECT "+invitationColumns+" FROM invitations WHERE room_code = $1 AND NOT consumed AND expires_at > NOW()",
		roomCode,
	).Scan(
		&invitation.ID, &invitation.SenderID, &invitation.RecipientID,
		&invitation.Kind, &invitation.RoomCode, &invitation.Payload,
		&invitation.Consumed, &invitation.CreatedAt, &invitation.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading invitation by room code: %w", err)
	}
	return invitation, nil
}

// RemoveByRoomCode deletes invitations referencing a closed room so polling
// clients stop seeing them.
func (s *InviteService) RemoveByRoomCode(ctx context.Context, roomCode string) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM invitations WHERE room_code = $1", roomCode); err != nil {
		return fmt.Errorf("removing invitations for room: %w", err)
	}
	return nil
}

// ExpireSweep deletes invitations past their expiry. Run periodically; the
// read paths already exclude expired rows, so this only reclaims storage.
func (s *InviteService) ExpireSweep(ctx context.Context) (int64, error) {
	result, err := s.db.Exec(ctx, "DELETE FROM invitations WHERE expires_at <= NOW()")
	if err != nil {
		return 0, fmt.Errorf("sweeping expired invitations: %w", err)
	}
	return result.RowsAffected(), nil
}

// consume flips the consumed flag exactly once. Expired and already-used
// invitations are reported distinctly so callers can tell the user why.
func (s *InviteService) consume(ctx context.Context, recipientID, invitationID uuid.UUID) (*models.Invitation, error) {
	invitation := &models.Invitation{}
	err := s.db.QueryRow(ctx,
		`UPDATE invitations SET consumed = TRUE
		 WHERE id = $1 AND recipient_id = $2 AND NOT consumed AND expires_at > NOW()
		 RETURNING `+invitationColumns,
		invitationID, recipientID,
	).Scan(
		&invitation.ID, &invitation.SenderID, &invitation.RecipientID,
		&invitation.Kind, &invitation.RoomCode, &invitation.Payload,
		&invitation.Consumed, &invitation.CreatedAt, &invitation.ExpiresAt,
	)
	if err == nil {
		return invitation, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("consuming invitation: %w", err)
	}

	// The conditional update matched nothing; find out why.
	var (
		recipient uuid.UUID
		consumed  bool
		expiresAt time.Time
	)
	err = s.db.QueryRow(ctx,
		"SELECT recipient_id, consumed, expires_at FROM invitations WHERE id = $1",
		invitationID,
	).Scan(&recipient, &consumed, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading invitation: %w", err)
	}
	if recipient != recipientID {
		return nil, ErrNotInviteRecipient
	}
	if consumed {
		return nil, ErrInviteConsumed
	}
	if !expiresAt.After(time.Now()) {
		return nil, ErrInviteExpired
	}
	return nil, ErrInviteNotFound
}

// allocateRoomCode draws random codes until one is free among live
// invitations. Collisions are vanishingly rare at this alphabet size, so a
// short retry loop is enough.
func (s *InviteService) allocateRoomCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code, err := generateRoomCode()
		if err != nil {
			return "", err
		}
		var taken bool
		err = s.db.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM invitations WHERE room_code = $1 AND NOT consumed AND expires_at > NOW())",
			code,
		).Scan(&taken)
		if err != nil {
			return "", fmt.Errorf("checking room code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a unique room code")
}

func generateRoomCode() (string, error) {
	code := make([]byte, roomCodeLength)
	max := big.NewInt(int64(len(roomCodeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating room code: %w", err)
		}
		code[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
