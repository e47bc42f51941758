package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/matchpoint/server/internal/logging"
)

// Conn is one live notification socket. Send must not block; a connection
// that cannot keep up reports an error and gets dropped.
type Conn interface {
	Send(event any) error
	CloseReplaced()
}

// Registry tracks at most one notification connection per user. A second
// connection for the same user evicts the first; the evicted socket is told
// it was replaced so the client does not auto-reconnect into a fight.
type Registry struct {
	mu       sync.RWMutex
	conns    map[uuid.UUID]Conn
	presence Presence
	log      *logging.Logger
}

func NewRegistry(presence Presence, log *logging.Logger) *Registry {
	if log == nil {
		log = logging.Default
	}
	return &Registry{
		conns:    make(map[uuid.UUID]Conn),
		presence: presence,
		log:      log,
	}
}

// Register installs conn as the user's connection, returning the evicted
// previous connection if there was one. The caller closes the evicted conn
// outside the lock.
func (r *Registry) Register(ctx context.Context, userID uuid.UUID, conn Conn) Conn {
	r.mu.Lock()
	previous := r.conns[userID]
	r.conns[userID] = conn
	r.mu.Unlock()

	if r.presence != nil {
		if err := r.presence.SetOnline(ctx, userID); err != nil {
			r.log.Warn("failed to record presence", map[string]interface{}{
				"user_id": userID.String(),
				"error":   err.Error(),
			})
		}
	}
	return previous
}

// Unregister removes the user's connection only if it is still this conn.
// A stale goroutine from an evicted connection must not tear down its
// replacement.
func (r *Registry) Unregister(ctx context.Context, userID uuid.UUID, conn Conn) {
	r.mu.Lock()
	current, ok := r.conns[userID]
	if !ok || current != conn {
		r.mu.Unlock()
		return
	}
	delete(r.conns, userID)
	r.mu.Unlock()

	if r.presence != nil {
		if err := r.presence.SetOffline(ctx, userID); err != nil {
			r.log.Warn("failed to clear presence", map[string]interface{}{
				"user_id": userID.String(),
				"error":   err.Error(),
			})
		}
	}
}

// Push delivers an event to the user's live connection. It reports whether
// the user had one and the send succeeded; callers fall back to durable
// storage when it returns false.
func (r *Registry) Push(userID uuid.UUID, event any) bool {
	r.mu.RLock()
	conn := r.conns[userID]
	r.mu.RUnlock()

	if conn == nil {
		return false
	}
	if err := conn.Send(event); err != nil {
		r.log.Debug("push to live connection failed", map[string]interface{}{
			"user_id": userID.String(),
			"error":   err.Error(),
		})
		return false
	}
	return true
}

// Connected reports whether the user has a live connection on this node.
func (r *Registry) Connected(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}
