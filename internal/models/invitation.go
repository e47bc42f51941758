package models

import (
	"time"

	"github.com/google/uuid"
)

type InviteKind string

const (
	InviteKindGame InviteKind = "game_invite"
)

// Invitation is a durable, time-bounded offer to join a specific room.
type Invitation struct {
	ID          uuid.UUID  `json:"id"`
	SenderID    uuid.UUID  `json:"sender_id"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	Kind        InviteKind `json:"kind"`
	RoomCode    string     `json:"room_code"`
	Payload     []byte     `json:"payload,omitempty"`
	Consumed    bool       `json:"consumed"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

func (i *Invitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

type NotificationType string

const (
	NotificationTypeGameInvite         NotificationType = "game_invite"
	NotificationTypeInvitationAccepted NotificationType = "invitation_accepted"
	NotificationTypeInvitationDeclined NotificationType = "invitation_declined"
	NotificationTypePlayerLeftRoom     NotificationType = "player_left_room"
)

// Notification is the durable record behind the poll fallback. Live delivery
// pushes the same data over the recipient's notification socket.
type Notification struct {
	ID            uuid.UUID        `json:"id"`
	UserID        uuid.UUID        `json:"user_id"`
	ActorID       *uuid.UUID       `json:"actor_id,omitempty"`
	ActorUsername *string          `json:"actor_username,omitempty"`
	Type          NotificationType `json:"type"`
	Payload       []byte           `json:"payload,omitempty"`
	Read          bool             `json:"read"`
	CreatedAt     time.Time        `json:"created_at"`
}
