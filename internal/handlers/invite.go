package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/matchpoint/server/internal/models"
	"github.com/matchpoint/server/internal/services"
)

type InviteHandler struct {
	inviteService services.InviteServiceInterface
}

func NewInviteHandler(inviteService services.InviteServiceInterface) *InviteHandler {
	return &InviteHandler{inviteService: inviteService}
}

type InviteResponse struct {
	Invitation *models.Invitation `json:"invitation,omitempty"`
	Message    string             `json:"message,omitempty"`
}

type CreateInviteResponse struct {
	Invitation *models.Invitation `json:"invitation"`
	Delivered  bool               `json:"delivered"`
}

// Create sends a game invitation to the user named in the path. The response
// carries the room code the sender should open a lobby socket for.
func (h *InviteHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	recipientID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	invitation, delivered, err := h.inviteService.Create(r.Context(), user.ID, recipientID, models.InviteKindGame)
	var rateLimited *services.InviteRateLimitError
	if errors.As(err, &rateLimited) {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rateLimited.RetryAfter.Seconds())+1))
		writeError(w, http.StatusTooManyRequests, "Too many invitations. Please try again later.")
		return
	}
	if errors.Is(err, services.ErrCannotInviteSelf) {
		writeError(w, http.StatusBadRequest, "Cannot invite yourself")
		return
	}
	if errors.Is(err, services.ErrInviteAlreadyPending) {
		writeError(w, http.StatusConflict, "That player already has a pending invitation")
		return
	}
	if err != nil {
		log.Printf("Error creating invitation: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, CreateInviteResponse{Invitation: invitation, Delivered: delivered})
}

// Accept consumes the invitation and hands the recipient the room code.
func (h *InviteHandler) Accept(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	invitationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid invitation ID")
		return
	}

	invitation, err := h.inviteService.Accept(r.Context(), user.ID, invitationID)
	if err != nil {
		h.writeInviteError(w, err, "Error accepting invitation")
		return
	}

	writeJSON(w, http.StatusOK, InviteResponse{Invitation: invitation})
}

func (h *InviteHandler) Decline(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	invitationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid invitation ID")
		return
	}

	if err := h.inviteService.Decline(r.Context(), user.ID, invitationID); err != nil {
		h.writeInviteError(w, err, "Error declining invitation")
		return
	}

	writeJSON(w, http.StatusOK, InviteResponse{Message: "Invitation declined"})
}

func (h *InviteHandler) writeInviteError(w http.ResponseWriter, err error, logPrefix string) {
	switch {
	case errors.Is(err, services.ErrInviteNotFound):
		writeError(w, http.StatusNotFound, "Invitation not found")
	case errors.Is(err, services.ErrInviteExpired):
		writeError(w, http.StatusGone, "Invitation has expired")
	case errors.Is(err, services.ErrInviteConsumed):
		writeError(w, http.StatusConflict, "Invitation already used")
	case errors.Is(err, services.ErrNotInviteRecipient):
		writeError(w, http.StatusForbidden, "Only the recipient can do that")
	default:
		log.Printf("%s: %v", logPrefix, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
