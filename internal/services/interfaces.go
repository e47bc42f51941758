package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/matchpoint/server/internal/models"
)

// FriendServiceInterface defines the contract for friendship operations.
type FriendServiceInterface interface {
	SendRequest(ctx context.Context, userID, friendID uuid.UUID) (*models.Friendship, error)
	AcceptRequest(ctx context.Context, userID, friendshipID uuid.UUID) (*models.Friendship, error)
	RejectRequest(ctx context.Context, userID, friendshipID uuid.UUID) error
	RemoveFriend(ctx context.Context, userID, friendshipID uuid.UUID) error
	ListFriends(ctx context.Context, userID uuid.UUID) ([]models.FriendWithUser, error)
	ListPendingRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error)
	IsFriend(ctx context.Context, userID, otherUserID uuid.UUID) (bool, error)
	SearchUsers(ctx context.Context, currentUserID uuid.UUID, query string) ([]models.UserSearchResult, error)
}

// InviteServiceInterface defines the contract for game invitation operations.
type InviteServiceInterface interface {
	Create(ctx context.Context, senderID, recipientID uuid.UUID, kind models.InviteKind) (*models.Invitation, bool, error)
	Accept(ctx context.Context, recipientID, invitationID uuid.UUID) (*models.Invitation, error)
	Decline(ctx context.Context, recipientID, invitationID uuid.UUID) error
	GetByRoomCode(ctx context.Context, roomCode string) (*models.Invitation, error)
	RemoveByRoomCode(ctx context.Context, roomCode string) error
}

// NotificationServiceInterface defines the contract for notification operations.
type NotificationServiceInterface interface {
	Notify(ctx context.Context, userID uuid.UUID, actorID *uuid.UUID, notifType models.NotificationType, payload any) (*models.Notification, bool, error)
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
	CleanupOld(ctx context.Context, age time.Duration) (int64, error)
}

// MatchServiceInterface defines the contract for match lifecycle operations
// used by handlers.
type MatchServiceInterface interface {
	Interrupt(ctx context.Context, matchID uuid.UUID, reason string) error
	Forfeit(ctx context.Context, matchID, forfeiterID uuid.UUID) error
	Get(ctx context.Context, matchID uuid.UUID) (*models.RemoteMatch, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.RemoteMatch, error)
	LinkTournament(ctx context.Context, tournamentID, matchID uuid.UUID) error
}

var (
	_ FriendServiceInterface       = (*FriendService)(nil)
	_ InviteServiceInterface       = (*InviteService)(nil)
	_ NotificationServiceInterface = (*NotificationService)(nil)
	_ MatchServiceInterface        = (*MatchService)(nil)
)
