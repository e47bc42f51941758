package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/matchpoint/server/internal/models"
)

type mockFriendService struct {
	SendRequestFunc         func(ctx context.Context, userID, friendID uuid.UUID) (*models.Friendship, error)
	AcceptRequestFunc       func(ctx context.Context, userID, friendshipID uuid.UUID) (*models.Friendship, error)
	RejectRequestFunc       func(ctx context.Context, userID, friendshipID uuid.UUID) error
	RemoveFriendFunc        func(ctx context.Context, userID, friendshipID uuid.UUID) error
	ListFriendsFunc         func(ctx context.Context, userID uuid.UUID) ([]models.FriendWithUser, error)
	ListPendingRequestsFunc func(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error)
	IsFriendFunc            func(ctx context.Context, userID, otherUserID uuid.UUID) (bool, error)
	SearchUsersFunc         func(ctx context.Context, currentUserID uuid.UUID, query string) ([]models.UserSearchResult, error)
}

func (m *mockFriendService) SendRequest(ctx context.Context, userID, friendID uuid.UUID) (*models.Friendship, error) {
	if m.SendRequestFunc != nil {
		return m.SendRequestFunc(ctx, userID, friendID)
	}
	return nil, nil
}

func (m *mockFriendService) AcceptRequest(ctx context.Context, userID, friendshipID uuid.UUID) (*models.Friendship, error) {
	if m.AcceptRequestFunc != nil {
		return m.AcceptRequestFunc(ctx, userID, friendshipID)
	}
	return nil, nil
}

func (m *mockFriendService) RejectRequest(ctx context.Context, userID, friendshipID uuid.UUID) error {
	if m.RejectRequestFunc != nil {
		return m.RejectRequestFunc(ctx, userID, friendshipID)
	}
	return nil
}

func (m *mockFriendService) RemoveFriend(ctx context.Context, userID, friendshipID uuid.UUID) error {
	if m.RemoveFriendFunc != nil {
		return m.RemoveFriendFunc(ctx, userID, friendshipID)
	}
	return nil
}

func (m *mockFriendService) ListFriends(ctx context.Context, userID uuid.UUID) ([]models.FriendWithUser, error) {
	if m.ListFriendsFunc != nil {
		return m.ListFriendsFunc(ctx, userID)
	}
	return []models.FriendWithUser{}, nil
}

func (m *mockFriendService) ListPendingRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error) {
	if m.ListPendingRequestsFunc != nil {
		return m.ListPendingRequestsFunc(ctx, userID)
	}
	return []models.FriendRequest{}, nil
}

func (m *mockFriendService) IsFriend(ctx context.Context, userID, otherUserID uuid.UUID) (bool, error) {
	if m.IsFriendFunc != nil {
		return m.IsFriendFunc(ctx, userID, otherUserID)
	}
	return false, nil
}

func (m *mockFriendService) SearchUsers(ctx context.Context, currentUserID uuid.UUID, query string) ([]models.UserSearchResult, error) {
	if m.SearchUsersFunc != nil {
		return m.SearchUsersFunc(ctx, currentUserID, query)
	}
	return []models.UserSearchResult{}, nil
}

type mockInviteService struct {
	CreateFunc           func(ctx context.Context, senderID, recipientID uuid.UUID, kind models.InviteKind) (*models.Invitation, bool, error)
	AcceptFunc           func(ctx context.Context, recipientID, invitationID uuid.UUID) (*models.Invitation, error)
	DeclineFunc          func(ctx context.Context, recipientID, invitationID uuid.UUID) error
	GetByRoomCodeFunc    func(ctx context.Context, roomCode string) (*models.Invitation, error)
	RemoveByRoomCodeFunc func(ctx context.Context, roomCode string) error
}

func (m *mockInviteService) Create(ctx context.Context, senderID, recipientID uuid.UUID, kind models.InviteKind) (*models.Invitation, bool, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, senderID, recipientID, kind)
	}
	return nil, false, nil
}

func (m *mockInviteService) Accept(ctx context.Context, recipientID, invitationID uuid.UUID) (*models.Invitation, error) {
	if m.AcceptFunc != nil {
		return m.AcceptFunc(ctx, recipientID, invitationID)
	}
	return nil, nil
}

func (m *mockInviteService) Decline(ctx context.Context, recipientID, invitationID uuid.UUID) error {
	if m.DeclineFunc != nil {
		return m.DeclineFunc(ctx, recipientID, invitationID)
	}
	return nil
}

func (m *mockInviteService) GetByRoomCode(ctx context.Context, roomCode string) (*models.Invitation, error) {
	if m.GetByRoomCodeFunc != nil {
		return m.GetByRoomCodeFunc(ctx, roomCode)
	}
	return nil, nil
}

func (m *mockInviteService) RemoveByRoomCode(ctx context.Context, roomCode string) error {
	if m.RemoveByRoomCodeFunc != nil {
		return m.RemoveByRoomCodeFunc(ctx, roomCode)
	}
	return nil
}

type mockNotificationService struct {
	NotifyFunc      func(ctx context.Context, userID uuid.UUID, actorID *uuid.UUID, notifType models.NotificationType, payload any) (*models.Notification, bool, error)
	ListFunc        func(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkReadFunc    func(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllReadFunc func(ctx context.Context, userID uuid.UUID) error
	CleanupOldFunc  func(ctx context.Context, age time.Duration) (int64, error)
}

func (m *mockNotificationService) Notify(ctx context.Context, userID uuid.UUID, actorID *uuid.UUID, notifType models.NotificationType, payload any) (*models.Notification, bool, error) {
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, userID, actorID, notifType, payload)
	}
	return nil, false, nil
}

func (m *mockNotificationService) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, userID, unreadOnly, limit)
	}
	return []models.Notification{}, nil
}

func (m *mockNotificationService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if m.MarkReadFunc != nil {
		return m.MarkReadFunc(ctx, userID, notificationID)
	}
	return nil
}

func (m *mockNotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	if m.MarkAllReadFunc != nil {
		return m.MarkAllReadFunc(ctx, userID)
	}
	return nil
}

func (m *mockNotificationService) CleanupOld(ctx context.Context, age time.Duration) (int64, error) {
	if m.CleanupOldFunc != nil {
		return m.CleanupOldFunc(ctx, age)
	}
	return 0, nil
}

type mockMatchService struct {
	InterruptFunc      func(ctx context.Context, matchID uuid.UUID, reason string) error
	ForfeitFunc        func(ctx context.Context, matchID, forfeiterID uuid.UUID) error
	GetFunc            func(ctx context.Context, matchID uuid.UUID) (*models.RemoteMatch, error)
	ListForUserFunc    func(ctx context.Context, userID uuid.UUID, limit int) ([]models.RemoteMatch, error)
	LinkTournamentFunc func(ctx context.Context, tournamentID, matchID uuid.UUID) error
}

func (m *mockMatchService) Interrupt(ctx context.Context, matchID uuid.UUID, reason string) error {
	if m.InterruptFunc != nil {
		return m.InterruptFunc(ctx, matchID, reason)
	}
	return nil
}

func (m *mockMatchService) Forfeit(ctx context.Context, matchID, forfeiterID uuid.UUID) error {
	if m.ForfeitFunc != nil {
		return m.ForfeitFunc(ctx, matchID, forfeiterID)
	}
	return nil
}

func (m *mockMatchService) Get(ctx context.Context, matchID uuid.UUID) (*models.RemoteMatch, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, matchID)
	}
	return nil, nil
}

func (m *mockMatchService) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.RemoteMatch, error) {
	if m.ListForUserFunc != nil {
		return m.ListForUserFunc(ctx, userID, limit)
	}
	return []models.RemoteMatch{}, nil
}

func (m *mockMatchService) LinkTournament(ctx context.Context, tournamentID, matchID uuid.UUID) error {
	if m.LinkTournamentFunc != nil {
		return m.LinkTournamentFunc(ctx, tournamentID, matchID)
	}
	return nil
}

// mockPresence marks a fixed set of users online.
type mockPresence struct {
	online map[uuid.UUID]bool
}

func (m *mockPresence) SetOnline(ctx context.Context, userID uuid.UUID) error  { return nil }
func (m *mockPresence) SetOffline(ctx context.Context, userID uuid.UUID) error { return nil }

func (m *mockPresence) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	return m.online[userID], nil
}

func (m *mockPresence) OnlineAmong(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	result := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		result[id] = m.online[id]
	}
	return result, nil
}
