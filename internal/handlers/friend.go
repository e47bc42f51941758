package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/matchpoint/server/internal/models"
	"github.com/matchpoint/server/internal/realtime"
	"github.com/matchpoint/server/internal/services"
)

type FriendHandler struct {
	friendService services.FriendServiceInterface
	presence      realtime.Presence
}

func NewFriendHandler(friendService services.FriendServiceInterface, presence realtime.Presence) *FriendHandler {
	return &FriendHandler{
		friendService: friendService,
		presence:      presence,
	}
}

type SendRequestRequest struct {
	FriendID string `json:"friend_id"`
}

type FriendListResponse struct {
	Friends  []models.FriendWithUser `json:"friends,omitempty"`
	Requests []models.FriendRequest  `json:"requests,omitempty"`
	Message  string                  `json:"message,omitempty"`
}

type UserSearchResponse struct {
	Users []models.UserSearchResult `json:"users"`
}

func (h *FriendHandler) Search(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	query := r.URL.Query().Get("q")
	if len(strings.TrimSpace(query)) < 2 {
		writeJSON(w, http.StatusOK, UserSearchResponse{Users: []models.UserSearchResult{}})
		return
	}

	users, err := h.friendService.SearchUsers(r.Context(), user.ID, query)
	if err != nil {
		log.Printf("Error searching users: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if len(users) > 0 && h.presence != nil {
		ids := make([]uuid.UUID, len(users))
		for i, u := range users {
			ids[i] = u.ID
		}
		online, err := h.presence.OnlineAmong(r.Context(), ids)
		if err == nil {
			for i := range users {
				users[i].Online = online[users[i].ID]
			}
		}
	}

	writeJSON(w, http.StatusOK, UserSearchResponse{Users: users})
}

func (h *FriendHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req SendRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	friendID, err := uuid.Parse(req.FriendID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid friend ID")
		return
	}

	_, err = h.friendService.SendRequest(r.Context(), user.ID, friendID)
	if errors.Is(err, services.ErrCannotFriendSelf) {
		writeError(w, http.StatusBadRequest, "Cannot send friend request to yourself")
		return
	}
	if errors.Is(err, services.ErrFriendshipExists) {
		writeError(w, http.StatusConflict, "Friend request already pending")
		return
	}
	if errors.Is(err, services.ErrAlreadyFriends) {
		writeError(w, http.StatusConflict, "Already friends")
		return
	}
	if err != nil {
		log.Printf("Error sending friend request: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, FriendListResponse{Message: "Friend request sent"})
}

func (h *FriendHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	friendshipID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid friendship ID")
		return
	}

	_, err = h.friendService.AcceptRequest(r.Context(), user.ID, friendshipID)
	if err != nil {
		h.writeFriendshipError(w, err, "Error accepting friend request")
		return
	}

	writeJSON(w, http.StatusOK, FriendListResponse{Message: "Friend request accepted"})
}

func (h *FriendHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	friendshipID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid friendship ID")
		return
	}

	if err := h.friendService.RejectRequest(r.Context(), user.ID, friendshipID); err != nil {
		h.writeFriendshipError(w, err, "Error rejecting friend request")
		return
	}

	writeJSON(w, http.StatusOK, FriendListResponse{Message: "Friend request rejected"})
}

func (h *FriendHandler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	friendshipID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid friendship ID")
		return
	}

	if err := h.friendService.RemoveFriend(r.Context(), user.ID, friendshipID); err != nil {
		h.writeFriendshipError(w, err, "Error removing friend")
		return
	}

	writeJSON(w, http.StatusOK, FriendListResponse{Message: "Friend removed"})
}

func (h *FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	friends, err := h.friendService.ListFriends(r.Context(), user.ID)
	if err != nil {
		log.Printf("Error listing friends: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if len(friends) > 0 && h.presence != nil {
		ids := make([]uuid.UUID, len(friends))
		for i := range friends {
			ids[i] = friends[i].Other(user.ID)
		}
		online, err := h.presence.OnlineAmong(r.Context(), ids)
		if err == nil {
			for i := range friends {
				friends[i].Online = online[friends[i].Other(user.ID)]
			}
		}
	}

	writeJSON(w, http.StatusOK, FriendListResponse{Friends: friends})
}

func (h *FriendHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	requests, err := h.friendService.ListPendingRequests(r.Context(), user.ID)
	if err != nil {
		log.Printf("Error listing friend requests: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, FriendListResponse{Requests: requests})
}

func (h *FriendHandler) writeFriendshipError(w http.ResponseWriter, err error, logPrefix string) {
	switch {
	case errors.Is(err, services.ErrFriendshipNotFound):
		writeError(w, http.StatusNotFound, "Friend request not found")
	case errors.Is(err, services.ErrNotFriendshipRecipient):
		writeError(w, http.StatusForbidden, "Only the recipient can do that")
	case errors.Is(err, services.ErrFriendshipNotPending):
		writeError(w, http.StatusConflict, "Friend request is no longer pending")
	default:
		log.Printf("%s: %v", logPrefix, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
