package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/matchpoint/server/internal/auth"
	"github.com/matchpoint/server/internal/logging"
	"github.com/matchpoint/server/internal/realtime"
)

const readTimeout = 60 * time.Second

// statusAuthFailure closes sockets that never authenticate, distinct from
// the normal-closure and policy codes so clients can tell why.
const statusAuthFailure = websocket.StatusCode(4401)

// NotificationsHandler upgrades /ws/notifications. One connection per user;
// events pushed through the realtime registry land here. Delivery is
// best-effort: the durable notification row is the source of truth and poll
// catches anything a dead socket missed.
type NotificationsHandler struct {
	verifier *auth.Verifier
	registry *realtime.Registry
	grace    time.Duration
	log      *logging.Logger
}

func NewNotificationsHandler(verifier *auth.Verifier, registry *realtime.Registry, grace time.Duration, log *logging.Logger) *NotificationsHandler {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	if log == nil {
		log = logging.Default
	}
	return &NotificationsHandler{verifier: verifier, registry: registry, grace: grace, log: log}
}

func (h *NotificationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var claims *auth.Claims
	if token := r.URL.Query().Get("token"); token != "" {
		c, err := h.verifier.Verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		claims = c
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	// No query token: the client gets one grace window to send an auth
	// frame before the socket is dropped.
	if claims == nil {
		c, err := h.awaitAuth(r.Context(), conn)
		if err != nil {
			conn.Close(statusAuthFailure, "authentication required")
			return
		}
		claims = c
	}

	lc := newLiveConn(32)
	if evicted := h.registry.Register(r.Context(), claims.UserID, lc); evicted != nil {
		evicted.CloseReplaced()
	}
	defer h.registry.Unregister(context.Background(), claims.UserID, lc)

	h.log.Info("notification socket connected", map[string]interface{}{
		"user_id": claims.UserID.String(),
	})

	writeCtx, writeCancel := context.WithCancel(r.Context())
	defer writeCancel()
	go func() {
		for {
			select {
			case <-writeCtx.Done():
				return
			case <-lc.replaced:
				conn.Close(websocket.StatusServiceRestart, "connection replaced")
				return
			case event := <-lc.events:
				if err := writeJSON(writeCtx, conn, event); err != nil {
					return
				}
			}
		}
	}()

	for {
		rctx, cancel := context.WithTimeout(r.Context(), readTimeout)
		_, data, err := conn.Read(rctx)
		cancel()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == msgPing {
			_ = writeJSON(r.Context(), conn, pong)
		}
	}
}

// awaitAuth reads the first frame from an unauthenticated socket and
// verifies the token it carries.
func (h *NotificationsHandler) awaitAuth(ctx context.Context, conn *websocket.Conn) (*auth.Claims, error) {
	actx, cancel := context.WithTimeout(ctx, h.grace)
	defer cancel()

	_, data, err := conn.Read(actx)
	if err != nil {
		return nil, err
	}
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type != msgAuth {
		return nil, errUnexpectedFrame
	}
	return h.verifier.Verify(msg.Token)
}

var errUnexpectedFrame = errors.New("expected an auth frame")
