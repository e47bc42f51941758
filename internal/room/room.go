package room

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/matchpoint/server/internal/logging"
)

var (
	ErrRoomFull    = errors.New("room already has two players")
	ErrRoomStarted = errors.New("game already started")
	ErrRoomClosed  = errors.New("room is closed")
)

// Handoff turns a ready room into a running game session. It is called once
// per room, after the countdown finishes.
type Handoff interface {
	Start(ctx context.Context, code string, player1, player2 Player) (HandoffResult, error)
}

// HandoffResult tells clients where the game session lives.
type HandoffResult struct {
	GameID       uuid.UUID
	WebsocketURL string
}

// HandoffFunc adapts a function to the Handoff interface.
type HandoffFunc func(ctx context.Context, code string, player1, player2 Player) (HandoffResult, error)

func (f HandoffFunc) Start(ctx context.Context, code string, player1, player2 Player) (HandoffResult, error) {
	return f(ctx, code, player1, player2)
}

// Hooks are callbacks out of the room actor. They run on the room goroutine,
// so they must not send back into the same room's inbox.
type Hooks struct {
	// OnPlayerLeft fires when a seated player disconnects before handoff
	// while the other player is still connected.
	OnPlayerLeft func(code string, leaver, remaining Player)
	// OnClosed fires exactly once when the room shuts down for any reason.
	OnClosed func(code string, reason string)
}

// Config bounds the room lifecycle.
type Config struct {
	// ReadyTimeout closes a room that never reaches handoff.
	ReadyTimeout time.Duration
	// AbandonedAge closes a room nobody has joined yet. It is shorter than
	// ReadyTimeout so a declined or forgotten invite does not pin its code.
	AbandonedAge time.Duration
	// CountdownSeconds is the starting countdown value.
	CountdownSeconds int
	// CountdownInterval is the gap between countdown values. Tests shrink it.
	CountdownInterval time.Duration
	// OutboxSize is the per-connection event buffer.
	OutboxSize int
}

func (c *Config) withDefaults() {
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 5 * time.Minute
	}
	if c.AbandonedAge <= 0 {
		c.AbandonedAge = time.Minute
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

type occupant struct {
	player    Player
	outbox    chan Event
	connected bool
	ready     bool
}

// Room is a two-slot lobby run as a single goroutine. All state is owned by
// the loop; callers talk to it through the inbox.
type Room struct {
	code    string
	inbox   chan Msg
	cfg     Config
	handoff Handoff
	hooks   Hooks
	log     *logging.Logger

	occupants      map[Slot]*occupant
	counting       bool
	countdownValue int
	countdownTimer *time.Timer
	expireTimer    *time.Timer
	abandonTimer   *time.Timer
	started        bool
	closed         bool

	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, code string, cfg Config, handoff Handoff, hooks Hooks, log *logging.Logger) *Room {
	cfg.withDefaults()
	if log == nil {
		log = logging.Default
	}
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		code:      code,
		inbox:     make(chan Msg, 64),
		cfg:       cfg,
		handoff:   handoff,
		hooks:     hooks,
		log:       log.WithField("room_code", code),
		occupants: make(map[Slot]*occupant),
		ctx:       ctx,
		cancel:    cancel,
	}
	r.expireTimer = time.AfterFunc(cfg.ReadyTimeout, func() { r.post(readyTimeout{}) })
	r.abandonTimer = time.AfterFunc(cfg.AbandonedAge, func() { r.post(abandonTimeout{}) })

	go r.loop()
	return r
}

// Inbox is where connections and timers send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Code returns the room's join code.
func (r *Room) Code() string { return r.code }

// Done closes when the room has shut down.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// OutboxSize is the buffer connections should use for their event channel.
func (r *Room) OutboxSize() int { return r.cfg.OutboxSize }

// post delivers a message unless the room is already gone.
func (r *Room) post(m Msg) {
	select {
	case r.inbox <- m:
	case <-r.ctx.Done():
	}
}

// Join seats the user, or re-attaches them to their existing slot. The
// outbox receives room events until the room closes it.
func (r *Room) Join(ctx context.Context, userID uuid.UUID, username string, outbox chan Event) (Slot, error) {
	reply := make(chan JoinReply, 1)
	msg := Join{UserID: userID, Username: username, Outbox: outbox, Reply: reply}
	select {
	case r.inbox <- msg:
	case <-r.ctx.Done():
		return "", ErrRoomClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case jr := <-reply:
		return jr.Slot, jr.Err
	case <-r.ctx.Done():
		// The loop may have answered just before shutting down.
		select {
		case jr := <-reply:
			return jr.Slot, jr.Err
		default:
			return "", ErrRoomClosed
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Detach reports that the connection identified by outbox is gone.
func (r *Room) Detach(userID uuid.UUID, outbox chan Event) {
	r.post(Leave{UserID: userID, Outbox: outbox})
}

// Ready flips the player's ready flag.
func (r *Room) Ready(userID uuid.UUID, ready bool) {
	r.post(SetReady{UserID: userID, Ready: ready})
}

// Snapshot reads a consistent copy of room state. It fails once the room
// has shut down.
func (r *Room) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case r.inbox <- GetView{Reply: reply}:
	case <-r.ctx.Done():
		return View{}, ErrRoomClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.ctx.Done():
		return View{}, ErrRoomClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			if !r.closed {
				r.close(ReasonShutdown, true)
			}
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- r.handleJoin(msg)

			case Leave:
				r.handleLeave(msg)
				if r.closed {
					return
				}

			case SetReady:
				r.handleSetReady(msg)

			case countdownTick:
				r.handleCountdownTick()

			case handoffDone:
				r.handleHandoffDone(msg)
				if r.closed {
					return
				}

			case abandonTimeout:
				if len(r.occupants) == 0 && !r.closed {
					r.log.Info("room abandoned before anyone joined", nil)
					r.close(ReasonAbandoned, true)
					return
				}

			case readyTimeout:
				if !r.started && !r.closed {
					r.log.Info("room expired before handoff", nil)
					r.close(ReasonExpired, true)
					return
				}

			case Shutdown:
				if !r.closed {
					r.close(msg.Reason, true)
					return
				}

			case GetView:
				msg.Reply <- r.view()
			}
		}
	}
}

func (r *Room) handleJoin(msg Join) JoinReply {
	if r.closed {
		return JoinReply{Err: ErrRoomClosed}
	}
	if r.started {
		return JoinReply{Err: ErrRoomStarted}
	}

	// Reconnect keeps the original slot and replaces the socket.
	for slot, occ := range r.occupants {
		if occ.player.ID != msg.UserID {
			continue
		}
		if occ.connected {
			r.sendTo(occ, Event{Type: EventReplaced})
			close(occ.outbox)
		}
		occ.outbox = msg.Outbox
		occ.connected = true
		occ.player.Username = msg.Username
		r.sendTo(occ, r.initEvent(slot))
		r.broadcastExcept(slot, Event{Type: EventPlayerJoined, Slot: slot, PlayerID: msg.UserID.String(), Players: r.usernames(), Ready: r.readiness()})
		r.log.Info("player reconnected to room", map[string]interface{}{
			"user_id": msg.UserID.String(),
			"slot":    string(slot),
		})
		return JoinReply{Slot: slot}
	}

	slot := SlotPlayer1
	if _, taken := r.occupants[slot]; taken {
		slot = SlotPlayer2
		if _, taken := r.occupants[slot]; taken {
			return JoinReply{Err: ErrRoomFull}
		}
	}

	r.abandonTimer.Stop()
	r.occupants[slot] = &occupant{
		player:    Player{ID: msg.UserID, Username: msg.Username, Slot: slot},
		outbox:    msg.Outbox,
		connected: true,
	}
	r.sendTo(r.occupants[slot], r.initEvent(slot))
	r.broadcastExcept(slot, Event{Type: EventPlayerJoined, Slot: slot, PlayerID: msg.UserID.String(), Players: r.usernames(), Ready: r.readiness()})
	r.log.Info("player joined room", map[string]interface{}{
		"user_id": msg.UserID.String(),
		"slot":    string(slot),
	})
	return JoinReply{Slot: slot}
}

func (r *Room) handleLeave(msg Leave) {
	if r.closed {
		return
	}

	var leaver *occupant
	var leaverSlot Slot
	for slot, occ := range r.occupants {
		// Outbox identity keeps a replaced socket's teardown from
		// detaching its successor.
		if occ.player.ID == msg.UserID && occ.outbox == msg.Outbox {
			leaver = occ
			leaverSlot = slot
			break
		}
	}
	if leaver == nil || !leaver.connected {
		return
	}

	leaver.connected = false

	if r.started {
		// Handoff already happened; the session layer owns the players.
		return
	}

	// Readiness is mutual consent. A departure resets both sides.
	for _, occ := range r.occupants {
		occ.ready = false
	}
	r.stopCountdown()

	remaining := r.connectedOther(leaverSlot)
	if remaining == nil {
		r.log.Info("room abandoned", nil)
		r.close(ReasonAbandoned, false)
		return
	}

	r.broadcastExcept(leaverSlot, Event{Type: EventPlayerLeft, Slot: leaverSlot, PlayerID: leaver.player.ID.String(), Players: r.usernames(), Ready: r.readiness()})
	if r.hooks.OnPlayerLeft != nil {
		r.hooks.OnPlayerLeft(r.code, leaver.player, remaining.player)
	}
	r.log.Info("player left room", map[string]interface{}{
		"user_id": msg.UserID.String(),
		"slot":    string(leaverSlot),
	})
}

func (r *Room) handleSetReady(msg SetReady) {
	if r.closed || r.started {
		return
	}
	occ := r.occupantByUser(msg.UserID)
	if occ == nil || !occ.connected {
		return
	}

	occ.ready = msg.Ready
	if !msg.Ready {
		r.stopCountdown()
	}
	r.broadcast(Event{Type: EventPlayerReady, Slot: occ.player.Slot, PlayerID: occ.player.ID.String(), Ready: r.readiness()})

	if msg.Ready && r.bothReady() && !r.counting {
		r.startCountdown()
	}
}

func (r *Room) handleCountdownTick() {
	if r.closed || r.started || !r.counting {
		return
	}

	r.countdownValue--
	if r.countdownValue > 0 {
		r.broadcast(Event{Type: EventCountdown, Value: r.countdownValue})
		r.countdownTimer = time.AfterFunc(r.cfg.CountdownInterval, func() { r.post(countdownTick{}) })
		return
	}

	// One shot: once started is set, no join, ready, or countdown message
	// can trigger a second handoff.
	r.counting = false
	r.started = true
	r.expireTimer.Stop()

	p1 := r.occupants[SlotPlayer1].player
	p2 := r.occupants[SlotPlayer2].player
	go func() {
		result, err := r.handoff.Start(r.ctx, r.code, p1, p2)
		r.post(handoffDone{result: result, err: err})
	}()
}

func (r *Room) handleHandoffDone(msg handoffDone) {
	if r.closed {
		return
	}
	if msg.err != nil {
		r.log.Error("handoff failed", map[string]interface{}{"error": msg.err.Error()})
		r.close(ReasonHandoffError, true)
		return
	}

	r.broadcast(Event{
		Type:         EventStartGame,
		GameID:       msg.result.GameID.String(),
		WebsocketURL: msg.result.WebsocketURL,
	})
	r.log.Info("room handed off to game session", map[string]interface{}{
		"game_id": msg.result.GameID.String(),
	})
	// The lobby's job is done; players move to the session socket.
	r.close("started", false)
}

func (r *Room) startCountdown() {
	r.counting = true
	r.countdownValue = r.cfg.CountdownSeconds
	r.broadcast(Event{Type: EventCountdown, Value: r.countdownValue})
	r.countdownTimer = time.AfterFunc(r.cfg.CountdownInterval, func() { r.post(countdownTick{}) })
}

func (r *Room) stopCountdown() {
	if !r.counting {
		return
	}
	r.counting = false
	if r.countdownTimer != nil {
		r.countdownTimer.Stop()
	}
}

func (r *Room) close(reason string, notify bool) {
	r.closed = true
	r.stopCountdown()
	r.expireTimer.Stop()
	r.abandonTimer.Stop()

	if notify {
		r.broadcast(Event{Type: EventRoomClosed, Reason: reason})
	}
	for _, occ := range r.occupants {
		if occ.connected {
			close(occ.outbox)
			occ.connected = false
		}
	}
	r.cancel()

	if r.hooks.OnClosed != nil {
		r.hooks.OnClosed(r.code, reason)
	}
}

func (r *Room) occupantByUser(userID uuid.UUID) *occupant {
	for _, occ := range r.occupants {
		if occ.player.ID == userID {
			return occ
		}
	}
	return nil
}

func (r *Room) connectedOther(slot Slot) *occupant {
	for s, occ := range r.occupants {
		if s != slot && occ.connected {
			return occ
		}
	}
	return nil
}

func (r *Room) bothReady() bool {
	if len(r.occupants) != 2 {
		return false
	}
	for _, occ := range r.occupants {
		if !occ.connected || !occ.ready {
			return false
		}
	}
	return true
}

func (r *Room) initEvent(slot Slot) Event {
	return Event{Type: EventInit, Slot: slot, Players: r.usernames(), Ready: r.readiness()}
}

func (r *Room) usernames() map[Slot]string {
	names := make(map[Slot]string, len(r.occupants))
	for slot, occ := range r.occupants {
		if occ.connected {
			names[slot] = occ.player.Username
		}
	}
	return names
}

func (r *Room) readiness() map[Slot]bool {
	ready := make(map[Slot]bool, len(r.occupants))
	for slot, occ := range r.occupants {
		if occ.connected {
			ready[slot] = occ.ready
		}
	}
	return ready
}

func (r *Room) broadcast(event Event) {
	for _, occ := range r.occupants {
		if occ.connected {
			r.sendTo(occ, event)
		}
	}
}

func (r *Room) broadcastExcept(skip Slot, event Event) {
	for slot, occ := range r.occupants {
		if slot != skip && occ.connected {
			r.sendTo(occ, event)
		}
	}
}

// sendTo never blocks the loop. A full outbox means the client stopped
// draining; the event is dropped and the connection's heartbeat will reap it.
func (r *Room) sendTo(occ *occupant, event Event) {
	select {
	case occ.outbox <- event:
	default:
		r.log.Warn("dropping room event, outbox full", map[string]interface{}{
			"user_id": occ.player.ID.String(),
			"type":    event.Type,
		})
	}
}

func (r *Room) view() View {
	v := View{
		Code:      r.code,
		Players:   make(map[Slot]Player, len(r.occupants)),
		Connected: make(map[Slot]bool, len(r.occupants)),
		Ready:     make(map[Slot]bool, len(r.occupants)),
		Counting:  r.counting,
		Started:   r.started,
		Closed:    r.closed,
	}
	for slot, occ := range r.occupants {
		v.Players[slot] = occ.player
		v.Connected[slot] = occ.connected
		v.Ready[slot] = occ.ready
	}
	return v
}
