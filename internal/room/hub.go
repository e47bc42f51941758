package room

import (
	"context"
	"sync"
	"time"

	"github.com/matchpoint/server/internal/logging"
)

// Hub maps room codes to live rooms. Rooms remove themselves through their
// OnClosed hook; the sweeper is a backstop for anything that slipped.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	factory func(code string) *Room
	log     *logging.Logger
}

func NewHub(factory func(code string) *Room, log *logging.Logger) *Hub {
	if log == nil {
		log = logging.Default
	}
	return &Hub{
		rooms:   make(map[string]*Room),
		factory: factory,
		log:     log,
	}
}

// Ensure returns the live room for code, creating one if needed. A room
// that already shut down but was not yet reaped is replaced.
func (h *Hub) Ensure(code string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r := h.rooms[code]; r != nil && !done(r) {
		return r
	}
	r := h.factory(code)
	h.rooms[code] = r
	h.log.Info("room created", map[string]interface{}{"room_code": code})
	return r
}

// Get returns the live room for code, if any.
func (h *Hub) Get(code string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r := h.rooms[code]
	if r == nil || done(r) {
		return nil, false
	}
	return r, true
}

// Remove drops the room for code if it is still the given room. A replaced
// code keeps its newer room.
func (h *Hub) Remove(code string, r *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current := h.rooms[code]; current == r || r == nil {
		delete(h.rooms, code)
	}
}

// Close shuts down the live room for code, if any. Used by the internal
// cleanup endpoint when another service tears a room down.
func (h *Hub) Close(code string, reason string) bool {
	r, ok := h.Get(code)
	if !ok {
		return false
	}
	r.post(Shutdown{Reason: reason})
	return true
}

// Count reports the number of tracked rooms, including any not yet reaped.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Shutdown closes every room and waits for their loops to exit.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.rooms = make(map[string]*Room)
	h.mu.Unlock()

	for _, r := range rooms {
		r.post(Shutdown{Reason: ReasonShutdown})
		<-r.Done()
	}
}

// StartSweeper reaps rooms whose loops have exited. Runs until ctx is done.
func (h *Hub) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.sweep()
			}
		}
	}()
}

func (h *Hub) sweep() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for code, r := range h.rooms {
		if done(r) {
			delete(h.rooms, code)
			h.log.Debug("swept closed room", map[string]interface{}{"room_code": code})
		}
	}
}

func done(r *Room) bool {
	select {
	case <-r.Done():
		return true
	default:
		return false
	}
}
