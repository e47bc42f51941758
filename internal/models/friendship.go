package models

import (
	"time"

	"github.com/google/uuid"
)

type FriendshipStatus string

const (
	FriendshipStatusPending  FriendshipStatus = "pending"
	FriendshipStatusAccepted FriendshipStatus = "accepted"
	FriendshipStatusRejected FriendshipStatus = "rejected"
)

// Friendship is stored once per unordered user pair. UserAID is always the
// smaller of the two IDs, so at most one row exists regardless of who asked.
type Friendship struct {
	ID          uuid.UUID        `json:"id"`
	UserAID     uuid.UUID        `json:"user_a_id"`
	UserBID     uuid.UUID        `json:"user_b_id"`
	RequesterID uuid.UUID        `json:"requester_id"`
	Status      FriendshipStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	AcceptedAt  *time.Time       `json:"accepted_at,omitempty"`
}

// Other returns the member of the pair that is not userID.
func (f *Friendship) Other(userID uuid.UUID) uuid.UUID {
	if f.UserAID == userID {
		return f.UserBID
	}
	return f.UserAID
}

type FriendWithUser struct {
	Friendship
	FriendUsername string `json:"friend_username"`
	Online         bool   `json:"online"`
}

type FriendRequest struct {
	Friendship
	RequesterUsername string `json:"requester_username"`
}
