package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/matchpoint/server/internal/logging"
)

var (
	ErrNotInSession  = errors.New("user is not a player in this session")
	ErrSessionClosed = errors.New("session is closed")
)

// MatchRecorder persists session lifecycle transitions. Start is called when
// both players complete the handshake, Cancel when they never do, Interrupt
// when a live game dies.
type MatchRecorder interface {
	Start(ctx context.Context, matchID uuid.UUID) error
	Cancel(ctx context.Context, matchID uuid.UUID) error
	Interrupt(ctx context.Context, matchID uuid.UUID, reason string) error
}

// Config bounds the session handshake.
type Config struct {
	// HandshakeTimeout cancels a session whose players never both ready up
	// on the game channel.
	HandshakeTimeout time.Duration
	// CountdownSeconds is the pre-start countdown on the game channel.
	CountdownSeconds int
	// CountdownInterval is the gap between countdown values.
	CountdownInterval time.Duration
	// OutboxSize is the per-connection event buffer.
	OutboxSize int
}

func (c *Config) withDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 30 * time.Second
	}
	if c.CountdownSeconds <= 0 {
		c.CountdownSeconds = 3
	}
	if c.CountdownInterval <= 0 {
		c.CountdownInterval = time.Second
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = 16
	}
}

// Hooks are callbacks out of the session actor.
type Hooks struct {
	// OnClosed fires exactly once when the session ends for any reason.
	OnClosed func(gameID uuid.UUID, roomCode string, reason string)
}

type seat struct {
	player    Player
	outbox    chan Event
	connected bool
	ready     bool
	direction string
}

// Session is the authoritative handle for one game, run as a single
// goroutine. The lobby's countdown proved intent; this handshake proves both
// game sockets are actually attached before play begins.
type Session struct {
	gameID   uuid.UUID
	roomCode string
	matchID  uuid.UUID
	inbox    chan Msg
	cfg      Config
	recorder MatchRecorder
	hooks    Hooks
	log      *logging.Logger

	seats          map[Slot]*seat
	countdownValue int
	counting       bool
	countdownTimer *time.Timer
	handshakeTimer *time.Timer
	started        bool
	closed         bool

	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, gameID uuid.UUID, roomCode string, matchID uuid.UUID, player1, player2 Player, cfg Config, recorder MatchRecorder, hooks Hooks, log *logging.Logger) *Session {
	cfg.withDefaults()
	if log == nil {
		log = logging.Default
	}
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		gameID:   gameID,
		roomCode: roomCode,
		matchID:  matchID,
		inbox:    make(chan Msg, 64),
		cfg:      cfg,
		recorder: recorder,
		hooks:    hooks,
		log:      log.WithFields(map[string]interface{}{"game_id": gameID.String(), "room_code": roomCode}),
		seats: map[Slot]*seat{
			SlotPlayer1: {player: player1},
			SlotPlayer2: {player: player2},
		},
		ctx:    ctx,
		cancel: cancel,
	}
	s.handshakeTimer = time.AfterFunc(cfg.HandshakeTimeout, func() { s.post(handshakeTimeout{}) })

	go s.loop()
	return s
}

// GameID identifies the session.
func (s *Session) GameID() uuid.UUID { return s.gameID }

// RoomCode is the lobby this session was handed off from.
func (s *Session) RoomCode() string { return s.roomCode }

// Done closes when the session has shut down.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// OutboxSize is the buffer connections should use for their event channel.
func (s *Session) OutboxSize() int { return s.cfg.OutboxSize }

func (s *Session) post(m Msg) {
	select {
	case s.inbox <- m:
	case <-s.ctx.Done():
	}
}

// Attach connects the user's game socket. The outbox receives session
// events until the session closes it.
func (s *Session) Attach(ctx context.Context, userID uuid.UUID, outbox chan Event) (Slot, error) {
	reply := make(chan AttachReply, 1)
	select {
	case s.inbox <- Attach{UserID: userID, Outbox: outbox, Reply: reply}:
	case <-s.ctx.Done():
		return "", ErrSessionClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case ar := <-reply:
		return ar.Slot, ar.Err
	case <-s.ctx.Done():
		select {
		case ar := <-reply:
			return ar.Slot, ar.Err
		default:
			return "", ErrSessionClosed
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// DetachConn reports the connection identified by outbox as gone.
func (s *Session) DetachConn(userID uuid.UUID, outbox chan Event) {
	s.post(Detach{UserID: userID, Outbox: outbox})
}

// Ready records the user's game-channel handshake.
func (s *Session) Ready(userID uuid.UUID) {
	s.post(PlayerReady{UserID: userID})
}

// Move applies a player's paddle input. Ignored until the game has started.
func (s *Session) Move(userID uuid.UUID, direction string) {
	s.post(PaddleMove{UserID: userID, Direction: direction})
}

// Snapshot reads a consistent copy of session state.
func (s *Session) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case s.inbox <- GetView{Reply: reply}:
	case <-s.ctx.Done():
		return View{}, ErrSessionClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-s.ctx.Done():
		return View{}, ErrSessionClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			if !s.closed {
				s.close(ReasonShutdown, true)
			}
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Attach:
				msg.Reply <- s.handleAttach(msg)

			case Detach:
				s.handleDetach(msg)
				if s.closed {
					return
				}

			case PlayerReady:
				s.handlePlayerReady(msg)

			case PaddleMove:
				s.handlePaddleMove(msg)

			case countdownTick:
				s.handleCountdownTick()

			case handshakeTimeout:
				if !s.started && !s.closed {
					s.log.Info("session handshake timed out", nil)
					s.record(func(ctx context.Context) error { return s.recorder.Cancel(ctx, s.matchID) })
					s.close(ReasonHandshakeTimeout, true)
					return
				}

			case Shutdown:
				if !s.closed {
					if s.started {
						s.record(func(ctx context.Context) error { return s.recorder.Interrupt(ctx, s.matchID, msg.Reason) })
					} else {
						s.record(func(ctx context.Context) error { return s.recorder.Cancel(ctx, s.matchID) })
					}
					s.close(msg.Reason, true)
					return
				}

			case GetView:
				msg.Reply <- s.view()
			}
		}
	}
}

func (s *Session) handleAttach(msg Attach) AttachReply {
	if s.closed {
		return AttachReply{Err: ErrSessionClosed}
	}

	for slot, st := range s.seats {
		if st.player.ID != msg.UserID {
			continue
		}
		if st.connected {
			s.sendTo(st, Event{Type: EventReplaced})
			close(st.outbox)
		}
		st.outbox = msg.Outbox
		st.connected = true
		s.sendTo(st, Event{Type: EventReadyUpdate, PlayersReady: s.readyState()})
		s.log.Info("player attached to session", map[string]interface{}{
			"user_id": msg.UserID.String(),
			"slot":    string(slot),
		})
		return AttachReply{Slot: slot}
	}
	return AttachReply{Err: ErrNotInSession}
}

func (s *Session) handleDetach(msg Detach) {
	if s.closed {
		return
	}
	var gone *seat
	var goneSlot Slot
	for slot, st := range s.seats {
		if st.player.ID == msg.UserID && st.outbox == msg.Outbox {
			gone = st
			goneSlot = slot
			break
		}
	}
	if gone == nil || !gone.connected {
		return
	}
	gone.connected = false

	if !s.started {
		// Still inside the handshake window; the player may reconnect.
		gone.ready = false
		s.broadcast(Event{Type: EventReadyUpdate, PlayersReady: s.readyState()})
		return
	}

	// A live game cannot continue one-sided.
	s.log.Info("player disconnected from live session", map[string]interface{}{
		"user_id": msg.UserID.String(),
		"slot":    string(goneSlot),
	})
	s.record(func(ctx context.Context) error { return s.recorder.Interrupt(ctx, s.matchID, ReasonDisconnect) })
	s.broadcast(Event{Type: EventOpponentLeft, Reason: ReasonDisconnect})
	s.close(ReasonDisconnect, false)
}

func (s *Session) handlePlayerReady(msg PlayerReady) {
	if s.closed || s.started || s.counting {
		return
	}
	var st *seat
	for _, candidate := range s.seats {
		if candidate.player.ID == msg.UserID {
			st = candidate
			break
		}
	}
	if st == nil || !st.connected || st.ready {
		return
	}

	st.ready = true
	s.broadcast(Event{Type: EventReadyUpdate, PlayersReady: s.readyState()})

	if s.bothReady() {
		s.handshakeTimer.Stop()
		s.counting = true
		s.countdownValue = s.cfg.CountdownSeconds
		s.broadcast(Event{Type: EventStartCountdown, Value: s.countdownValue})
		s.countdownTimer = time.AfterFunc(s.cfg.CountdownInterval, func() { s.post(countdownTick{}) })
	}
}

// handlePaddleMove keeps the authoritative paddle state and relays the input
// to both peers. Inputs outside a live game are dropped.
func (s *Session) handlePaddleMove(msg PaddleMove) {
	if s.closed || !s.started {
		return
	}
	for slot, st := range s.seats {
		if st.player.ID != msg.UserID {
			continue
		}
		if !st.connected {
			return
		}
		st.direction = msg.Direction
		s.broadcast(Event{Type: EventPaddleUpdate, Player: slot, Direction: msg.Direction})
		return
	}
}

func (s *Session) handleCountdownTick() {
	if s.closed || s.started || !s.counting {
		return
	}

	s.countdownValue--
	if s.countdownValue > 0 {
		s.broadcast(Event{Type: EventStartCountdown, Value: s.countdownValue})
		s.countdownTimer = time.AfterFunc(s.cfg.CountdownInterval, func() { s.post(countdownTick{}) })
		return
	}

	s.counting = false
	s.started = true
	s.record(func(ctx context.Context) error { return s.recorder.Start(ctx, s.matchID) })
	s.broadcast(Event{Type: EventStartGame})
	s.log.Info("game started", nil)
}

func (s *Session) close(reason string, notify bool) {
	s.closed = true
	s.handshakeTimer.Stop()
	if s.countdownTimer != nil {
		s.countdownTimer.Stop()
	}
	s.counting = false

	if notify {
		s.broadcast(Event{Type: EventInterrupted, Reason: reason})
	}
	for _, st := range s.seats {
		if st.connected {
			close(st.outbox)
			st.connected = false
		}
	}
	s.cancel()

	if s.hooks.OnClosed != nil {
		s.hooks.OnClosed(s.gameID, s.roomCode, reason)
	}
}

// record runs a match transition with a bounded context so a slow database
// cannot wedge the loop for long.
func (s *Session) record(fn func(ctx context.Context) error) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.log.Error("failed to record match transition", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Session) bothReady() bool {
	for _, st := range s.seats {
		if !st.connected || !st.ready {
			return false
		}
	}
	return true
}

func (s *Session) readyState() *ReadyState {
	return &ReadyState{
		Player1: s.seats[SlotPlayer1].ready,
		Player2: s.seats[SlotPlayer2].ready,
	}
}

func (s *Session) broadcast(event Event) {
	for _, st := range s.seats {
		if st.connected {
			s.sendTo(st, event)
		}
	}
}

func (s *Session) sendTo(st *seat, event Event) {
	select {
	case st.outbox <- event:
	default:
		s.log.Warn("dropping session event, outbox full", map[string]interface{}{
			"user_id": st.player.ID.String(),
			"type":    event.Type,
		})
	}
}

func (s *Session) view() View {
	v := View{
		GameID:    s.gameID,
		RoomCode:  s.roomCode,
		Ready:     make(map[Slot]bool, 2),
		Connected: make(map[Slot]bool, 2),
		Paddles:   make(map[Slot]string, 2),
		Started:   s.started,
		Closed:    s.closed,
	}
	for slot, st := range s.seats {
		v.Ready[slot] = st.ready
		v.Connected[slot] = st.connected
		v.Paddles[slot] = st.direction
	}
	return v
}
