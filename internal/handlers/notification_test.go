package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/matchpoint/server/internal/models"
	"github.com/matchpoint/server/internal/services"
)

func TestNotificationHandler_List(t *testing.T) {
	user := testUser()

	var gotUnread bool
	var gotLimit int
	notificationService := &mockNotificationService{
		ListFunc: func(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
			gotUnread, gotLimit = unreadOnly, limit
			return []models.Notification{
				{ID: uuid.New(), UserID: userID, Type: models.NotificationTypeGameInvite},
			}, nil
		},
	}
	handler := NewNotificationHandler(notificationService)

	rr := httptest.NewRecorder()
	handler.List(rr, authedRequest("GET", "/api/notifications?unread=true", nil, user))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !gotUnread {
		t.Error("expected unreadOnly to be true")
	}
	if gotLimit != defaultNotificationLimit {
		t.Errorf("expected default limit %d, got %d", defaultNotificationLimit, gotLimit)
	}

	var response NotificationListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(response.Notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(response.Notifications))
	}
}

func TestNotificationHandler_List_InvalidLimit(t *testing.T) {
	handler := NewNotificationHandler(&mockNotificationService{})

	for _, limit := range []string{"0", "-5", "1000", "abc"} {
		rr := httptest.NewRecorder()
		handler.List(rr, authedRequest("GET", "/api/notifications?limit="+limit, nil, testUser()))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("limit %q: expected status 400, got %d", limit, rr.Code)
		}
	}
}

func TestNotificationHandler_MarkRead(t *testing.T) {
	user := testUser()
	notificationID := uuid.New()

	var gotUser, gotNotification uuid.UUID
	notificationService := &mockNotificationService{
		MarkReadFunc: func(ctx context.Context, userID, nID uuid.UUID) error {
			gotUser, gotNotification = userID, nID
			return nil
		},
	}
	handler := NewNotificationHandler(notificationService)

	req := authedRequest("POST", "/api/notifications/"+notificationID.String()+"/read", nil, user)
	req.SetPathValue("id", notificationID.String())
	rr := httptest.NewRecorder()
	handler.MarkRead(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if gotUser != user.ID || gotNotification != notificationID {
		t.Errorf("service called with (%s, %s), want (%s, %s)", gotUser, gotNotification, user.ID, notificationID)
	}
}

func TestNotificationHandler_MarkRead_NotFound(t *testing.T) {
	notificationService := &mockNotificationService{
		MarkReadFunc: func(ctx context.Context, userID, notificationID uuid.UUID) error {
			return services.ErrNotificationNotFound
		},
	}
	handler := NewNotificationHandler(notificationService)

	req := authedRequest("POST", "/api/notifications/"+uuid.NewString()+"/read", nil, testUser())
	req.SetPathValue("id", uuid.NewString())
	rr := httptest.NewRecorder()
	handler.MarkRead(rr, req)

	assertErrorResponse(t, rr, http.StatusNotFound, "Notification not found")
}

func TestNotificationHandler_MarkAllRead(t *testing.T) {
	called := false
	notificationService := &mockNotificationService{
		MarkAllReadFunc: func(ctx context.Context, userID uuid.UUID) error {
			called = true
			return nil
		},
	}
	handler := NewNotificationHandler(notificationService)

	rr := httptest.NewRecorder()
	handler.MarkAllRead(rr, authedRequest("POST", "/api/notifications/read-all", nil, testUser()))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !called {
		t.Error("expected MarkAllRead to be called")
	}
}

func TestNotificationHandler_Unauthenticated(t *testing.T) {
	handler := NewNotificationHandler(&mockNotificationService{})

	rr := httptest.NewRecorder()
	handler.List(rr, authedRequest("GET", "/api/notifications", nil, nil))

	assertErrorResponse(t, rr, http.StatusUnauthorized, "Authentication required")
}
