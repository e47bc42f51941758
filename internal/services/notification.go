package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matchpoint/server/internal/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Pusher delivers an event to a connected user. Push reports whether the
// user had a live connection; callers fall back to the durable row when
// it returns false.
type Pusher interface {
	Push(userID uuid.UUID, event any) bool
}

// LiveNotification is the envelope sent over the notification socket.
type LiveNotification struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	From      string          `json:"from,omitempty"`
	FromID    *uuid.UUID      `json:"fromId,omitempty"`
	RoomCode  string          `json:"roomCode,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type NotificationService struct {
	db     DBConn
	pusher Pusher
}

func NewNotificationService(db DBConn, pusher Pusher) *NotificationService {
	return &NotificationService{db: db, pusher: pusher}
}

// Notify writes a durable notification row, then attempts live delivery.
// The row is written first so a recipient who connects later still sees it
// when polling.
func (s *NotificationService) Notify(ctx context.Context, userID uuid.UUID, actorID *uuid.UUID, notifType models.NotificationType, payload any) (*models.Notification, bool, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("marshaling notification payload: %w", err)
	}

	notification := &models.Notification{}
	err = s.db.QueryRow(ctx,
		`INSERT INTO notifications (user_id, actor_id, type, payload)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, user_id, actor_id, type, payload, read, created_at`,
		userID, actorID, notifType, payloadJSON,
	).Scan(
		&notification.ID, &notification.UserID, &notification.ActorID,
		&notification.Type, &notification.Payload, &notification.Read, &notification.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("creating notification: %w", err)
	}

	delivered := false
	if s.pusher != nil {
		delivered = s.pusher.Push(userID, s.envelope(ctx, notification))
	}
	return notification, delivered, nil
}

// List returns the recipient's notifications, newest first. Game invite
// notifications whose invitation has been consumed or has expired are
// filtered out so polling clients never see a dead invite.
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT n.id, n.user_id, n.actor_id, u.username, n.type, n.payload, n.read, n.created_at
		 FROM notifications n
		 LEFT JOIN users u ON u.id = n.actor_id
		 WHERE n.user_id = $1
		   AND (n.type != 'game_invite' OR EXISTS (
		       SELECT 1 FROM invitations i
		       WHERE i.room_code = n.payload->>'roomCode'
		         AND NOT i.consumed
		         AND i.expires_at > NOW()
		   ))`
	if unreadOnly {
		query += " AND NOT n.read"
	}
	query += " ORDER BY n.created_at DESC LIMIT $2"

	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.ActorID, &n.ActorUsername,
			&n.Type, &n.Payload, &n.Read, &n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkRead marks a single notification read. Only the recipient may do this.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	result, err := s.db.Exec(ctx,
		"UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2",
		notificationID, userID,
	)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification for the user read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.db.Exec(ctx,
		"UPDATE notifications SET read = TRUE WHERE user_id = $1 AND NOT read",
		userID,
	); err != nil {
		return fmt.Errorf("marking notifications read: %w", err)
	}
	return nil
}

// CleanupOld deletes read notifications older than the given age.
func (s *NotificationService) CleanupOld(ctx context.Context, age time.Duration) (int64, error) {
	result, err := s.db.Exec(ctx,
		"DELETE FROM notifications WHERE read AND created_at < NOW() - $1::interval",
		age.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("cleaning up notifications: %w", err)
	}
	return result.RowsAffected(), nil
}

// envelope builds the wire form of a stored notification. The actor's
// username is looked up best-effort; push delivery degrades to an envelope
// without a display name rather than failing.
func (s *NotificationService) envelope(ctx context.Context, n *models.Notification) LiveNotification {
	env := LiveNotification{
		ID:        n.ID,
		Type:      string(n.Type),
		FromID:    n.ActorID,
		Payload:   json.RawMessage(n.Payload),
		Timestamp: n.CreatedAt,
	}
	if n.ActorID != nil {
		var username string
		if err := s.db.QueryRow(ctx, "SELECT username FROM users WHERE id = $1", *n.ActorID).Scan(&username); err == nil {
			env.From = username
		}
	}
	var fields struct {
		RoomCode string `json:"roomCode"`
	}
	if err := json.Unmarshal(n.Payload, &fields); err == nil {
		env.RoomCode = fields.RoomCode
	}
	return env
}
