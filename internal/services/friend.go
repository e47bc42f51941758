package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/matchpoint/server/internal/models"
)

var (
	ErrFriendshipNotFound     = errors.New("friendship not found")
	ErrFriendshipExists       = errors.New("friend request already pending")
	ErrAlreadyFriends         = errors.New("already friends")
	ErrCannotFriendSelf       = errors.New("cannot send friend request to yourself")
	ErrFriendshipNotPending   = errors.New("friendship is not pending")
	ErrNotFriendshipRecipient = errors.New("only the recipient can accept or reject")
)

const friendshipColumns = "id, user_a_id, user_b_id, requester_id, status, created_at, accepted_at"

type FriendService struct {
	db DBConn
}

func NewFriendService(db DBConn) *FriendService {
	return &FriendService{db: db}
}

// orderPair normalizes two user IDs so the smaller one is always first.
// Friendships are stored once per unordered pair.
func orderPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) < 0 {
		return a, b
	}
	return b, a
}

// SendRequest creates a pending edge, or advances an existing one:
// a pending request from the other party becomes accepted (mutual interest),
// a rejected edge reopens as pending with the new requester.
func (s *FriendService) SendRequest(ctx context.Context, userID, friendID uuid.UUID) (*models.Friendship, error) {
	if userID == friendID {
		return nil, ErrCannotFriendSelf
	}

	low, high := orderPair(userID, friendID)

	existing, err := s.getByPair(ctx, low, high)
	if err != nil && !errors.Is(err, ErrFriendshipNotFound) {
		return nil, err
	}

	if existing == nil {
		friendship := &models.Friendship{}
		err = s.db.QueryRow(ctx,
			`INSERT INTO friendships (user_a_id, user_b_id, requester_id, status)
			 VALUES ($1, $2, $3, 'pending')
			 RETURNING `+friendshipColumns,
			low, high, userID,
		).Scan(
			&friendship.ID, &friendship.UserAID, &friendship.UserBID,
			&friendship.RequesterID, &friendship.Status, &friendship.CreatedAt, &friendship.AcceptedAt,
		)
		if isUniqueViolation(err) {
			// Lost a concurrent-create race; the pair edge exists now.
			return s.getByPair(ctx, low, high)
		}
		if err != nil {
			return nil, fmt.Errorf("creating friendship: %w", err)
		}
		return friendship, nil
	}

	switch existing.Status {
	case models.FriendshipStatusAccepted:
		return nil, ErrAlreadyFriends

	case models.FriendshipStatusPending:
		if existing.RequesterID == userID {
			return nil, ErrFriendshipExists
		}
		// The other party already asked; both sides want this edge.
		return s.transition(ctx, existing.ID, models.FriendshipStatusPending, models.FriendshipStatusAccepted)

	case models.FriendshipStatusRejected:
		return s.reopen(ctx, existing.ID, userID)

	default:
		return nil, fmt.Errorf("unexpected friendship status: %s", existing.Status)
	}
}

// AcceptRequest marks a pending edge accepted. Only the non-requester may accept.
func (s *FriendService) AcceptRequest(ctx context.Context, userID, friendshipID uuid.UUID) (*models.Friendship, error) {
	friendship, err := s.getByID(ctx, friendshipID)
	if err != nil {
		return nil, err
	}
	if friendship.UserAID != userID && friendship.UserBID != userID {
		return nil, ErrFriendshipNotFound
	}
	if friendship.RequesterID == userID {
		return nil, ErrNotFriendshipRecipient
	}
	if friendship.Status != models.FriendshipStatusPending {
		return nil, ErrFriendshipNotPending
	}
	return s.transition(ctx, friendshipID, models.FriendshipStatusPending, models.FriendshipStatusAccepted)
}

// RejectRequest marks a pending edge rejected. The edge stays so a later
// request can reopen it.
func (s *FriendService) RejectRequest(ctx context.Context, userID, friendshipID uuid.UUID) error {
	friendship, err := s.getByID(ctx, friendshipID)
	if err != nil {
		return err
	}
	if friendship.UserAID != userID && friendship.UserBID != userID {
		return ErrFriendshipNotFound
	}
	if friendship.RequesterID == userID {
		return ErrNotFriendshipRecipient
	}
	if friendship.Status != models.FriendshipStatusPending {
		return ErrFriendshipNotPending
	}

	result, err := s.db.Exec(ctx,
		"UPDATE friendships SET status = 'rejected' WHERE id = $1 AND status = 'pending'",
		friendshipID,
	)
	if err != nil {
		return fmt.Errorf("rejecting friendship: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrFriendshipNotPending
	}
	return nil
}

// RemoveFriend deletes the edge entirely. Either party may remove it.
func (s *FriendService) RemoveFriend(ctx context.Context, userID, friendshipID uuid.UUID) error {
	friendship, err := s.getByID(ctx, friendshipID)
	if err != nil {
		return err
	}
	if friendship.UserAID != userID && friendship.UserBID != userID {
		return ErrFriendshipNotFound
	}

	if _, err := s.db.Exec(ctx, "DELETE FROM friendships WHERE id = $1", friendshipID); err != nil {
		return fmt.Errorf("removing friendship: %w", err)
	}
	return nil
}

// ListFriends returns accepted edges with the other party's username, for
// roster display.
func (s *FriendService) ListFriends(ctx context.Context, userID uuid.UUID) ([]models.FriendWithUser, error) {
	rows, err := s.db.Query(ctx,
		`SELECT f.id, f.user_a_id, f.user_b_id, f.requester_id, f.status, f.created_at, f.accepted_at, u.username
		 FROM friendships f
		 JOIN users u ON u.id = CASE WHEN f.user_a_id = $1 THEN f.user_b_id ELSE f.user_a_id END
		 WHERE (f.user_a_id = $1 OR f.user_b_id = $1) AND f.status = 'accepted'
		 ORDER BY u.username`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing friends: %w", err)
	}
	defer rows.Close()

	friends := []models.FriendWithUser{}
	for rows.Next() {
		var f models.FriendWithUser
		if err := rows.Scan(
			&f.ID, &f.UserAID, &f.UserBID, &f.RequesterID,
			&f.Status, &f.CreatedAt, &f.AcceptedAt, &f.FriendUsername,
		); err != nil {
			return nil, fmt.Errorf("scanning friend: %w", err)
		}
		friends = append(friends, f)
	}
	return friends, rows.Err()
}

// ListPendingRequests returns pending edges where userID is the recipient.
func (s *FriendService) ListPendingRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error) {
	rows, err := s.db.Query(ctx,
		`SELECT f.id, f.user_a_id, f.user_b_id, f.requester_id, f.status, f.created_at, f.accepted_at, u.username
		 FROM friendships f
		 JOIN users u ON u.id = f.requester_id
		 WHERE (f.user_a_id = $1 OR f.user_b_id = $1)
		   AND f.status = 'pending'
		   AND f.requester_id != $1
		 ORDER BY f.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pending requests: %w", err)
	}
	defer rows.Close()

	requests := []models.FriendRequest{}
	for rows.Next() {
		var r models.FriendRequest
		if err := rows.Scan(
			&r.ID, &r.UserAID, &r.UserBID, &r.RequesterID,
			&r.Status, &r.CreatedAt, &r.AcceptedAt, &r.RequesterUsername,
		); err != nil {
			return nil, fmt.Errorf("scanning request: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// IsFriend reports whether an accepted edge exists between the two users.
func (s *FriendService) IsFriend(ctx context.Context, userID, otherUserID uuid.UUID) (bool, error) {
	low, high := orderPair(userID, otherUserID)
	var isFriend bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM friendships
			WHERE user_a_id = $1 AND user_b_id = $2 AND status = 'accepted'
		)`,
		low, high,
	).Scan(&isFriend)
	if err != nil {
		return false, fmt.Errorf("checking friendship: %w", err)
	}
	return isFriend, nil
}

// SearchUsers finds users by username prefix or fragment.
func (s *FriendService) SearchUsers(ctx context.Context, currentUserID uuid.UUID, query string) ([]models.UserSearchResult, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return []models.UserSearchResult{}, nil
	}

	searchPattern := "%" + strings.ToLower(query) + "%"
	rows, err := s.db.Query(ctx,
		`SELECT id, username FROM users
		 WHERE id != $1 AND LOWER(username) LIKE $2
		 ORDER BY username
		 LIMIT 20`,
		currentUserID, searchPattern,
	)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	defer rows.Close()

	results := []models.UserSearchResult{}
	for rows.Next() {
		var user models.UserSearchResult
		if err := rows.Scan(&user.ID, &user.Username); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		results = append(results, user)
	}
	return results, rows.Err()
}

func (s *FriendService) getByID(ctx context.Context, id uuid.UUID) (*models.Friendship, error) {
	friendship := &models.Friendship{}
	err := s.db.QueryRow(ctx,
		"SELECT "+friendshipColumns+" FROM friendships WHERE id = $1",
		id,
	).Scan(
		&friendship.ID, &friendship.UserAID, &friendship.UserBID,
		&friendship.RequesterID, &friendship.Status, &friendship.CreatedAt, &friendship.AcceptedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFriendshipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading friendship: %w", err)
	}
	return friendship, nil
}

func (s *FriendService) getByPair(ctx context.Context, low, high uuid.UUID) (*models.Friendship, error) {
	friendship := &models.Friendship{}
	err := s.db.QueryRow(ctx,
		"SELECT "+friendshipColumns+" FROM friendships WHERE user_a_id = $1 AND user_b_id = $2",
		low, high,
	).Scan(
		&friendship.ID, &friendship.UserAID, &friendship.UserBID,
		&friendship.RequesterID, &friendship.Status, &friendship.CreatedAt, &friendship.AcceptedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFriendshipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading friendship by pair: %w", err)
	}
	return friendship, nil
}

func (s *FriendService) transition(ctx context.Context, id uuid.UUID, from, to models.FriendshipStatus) (*models.Friendship, error) {
	friendship := &models.Friendship{}
	err := s.db.QueryRow(ctx,
		`UPDATE friendships
		 SET status = $3, accepted_at = CASE WHEN $3 = 'accepted' THEN NOW() ELSE accepted_at END
		 WHERE id = $1 AND status = $2
		 RETURNING `+friendshipColumns,
		id, from, to,
	).Scan(
		&friendship.ID, &friendship.UserAID, &friendship.UserBID,
		&friendship.RequesterID, &friendship.Status, &friendship.CreatedAt, &friendship.AcceptedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFriendshipNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("updating friendship: %w", err)
	}
	return friendship, nil
}

func (s *FriendService) reopen(ctx context.Context, id, requesterID uuid.UUID) (*models.Friendship, error) {
	friendship := &models.Friendship{}
	err := s.db.QueryRow(ctx,
		`UPDATE friendships
		 SET status = 'pending', requester_id = $2, created_at = NOW(), accepted_at = NULL
		 WHERE id = $1 AND status = 'rejected'
		 RETURNING `+friendshipColumns,
		id, requesterID,
	).Scan(
		&friendship.ID, &friendship.UserAID, &friendship.UserBID,
		&friendship.RequesterID, &friendship.Status, &friendship.CreatedAt, &friendship.AcceptedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFriendshipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reopening friendship: %w", err)
	}
	return friendship, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
