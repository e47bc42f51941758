package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/matchpoint/server/internal/logging"
)

// Manager owns every live session, indexed by game ID and by origin room
// code. A room hands off at most once, but Create is idempotent on room code
// as a guard against a retried handoff.
type Manager struct {
	mu     sync.RWMutex
	byGame map[uuid.UUID]*Session
	byRoom map[string]*Session

	baseCtx  context.Context
	cfg      Config
	recorder MatchRecorder
	onClosed func(gameID uuid.UUID, roomCode string, reason string)
	log      *logging.Logger
}

func NewManager(ctx context.Context, cfg Config, recorder MatchRecorder, onClosed func(gameID uuid.UUID, roomCode string, reason string), log *logging.Logger) *Manager {
	if log == nil {
		log = logging.Default
	}
	return &Manager{
		byGame:   make(map[uuid.UUID]*Session),
		byRoom:   make(map[string]*Session),
		baseCtx:  ctx,
		cfg:      cfg,
		recorder: recorder,
		onClosed: onClosed,
		log:      log,
	}
}

// Create starts a session for a handed-off room. If a live session already
// exists for the room code, it is returned instead of starting a second one.
func (m *Manager) Create(roomCode string, matchID uuid.UUID, player1, player2 Player) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing := m.byRoom[roomCode]; existing != nil && !sessionDone(existing) {
		return existing
	}

	gameID := uuid.New()
	s := New(m.baseCtx, gameID, roomCode, matchID, player1, player2, m.cfg, m.recorder, Hooks{
		OnClosed: m.remove,
	}, m.log)
	m.byGame[gameID] = s
	m.byRoom[roomCode] = s
	m.log.Info("session created", map[string]interface{}{
		"game_id":   gameID.String(),
		"room_code": roomCode,
	})
	return s
}

// Get returns the live session for a game ID.
func (m *Manager) Get(gameID uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.byGame[gameID]
	if s == nil || sessionDone(s) {
		return nil, false
	}
	return s, true
}

// GetByRoom returns the live session handed off from a room code.
func (m *Manager) GetByRoom(roomCode string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.byRoom[roomCode]
	if s == nil || sessionDone(s) {
		return nil, false
	}
	return s, true
}

// Count reports the number of tracked sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byGame)
}

// Shutdown ends every session and waits for their loops to exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.byGame))
	for _, s := range m.byGame {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.post(Shutdown{Reason: ReasonShutdown})
		<-s.Done()
	}
}

// remove drops the session from both indexes, identity-checked so a stale
// teardown cannot remove a replacement. It then forwards to the configured
// close callback.
func (m *Manager) remove(gameID uuid.UUID, roomCode string, reason string) {
	m.mu.Lock()
	s := m.byGame[gameID]
	delete(m.byGame, gameID)
	if m.byRoom[roomCode] == s {
		delete(m.byRoom, roomCode)
	}
	m.mu.Unlock()

	if m.onClosed != nil {
		m.onClosed(gameID, roomCode, reason)
	}
}

func sessionDone(s *Session) bool {
	select {
	case <-s.Done():
		return true
	default:
		return false
	}
}
