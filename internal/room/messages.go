package room

import "github.com/google/uuid"

// Slot is a stable seat in a two-player room. A player keeps their slot for
// the life of the room, across reconnects.
type Slot string

const (
	SlotPlayer1 Slot = "player1"
	SlotPlayer2 Slot = "player2"
)

// Player identifies a seated user.
type Player struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Slot     Slot      `json:"slot"`
}

// Msg is a message into the room actor.
type Msg interface{ isRoomMsg() }

// Join seats a user, or re-attaches a reconnecting one. The reply carries
// the assigned slot or the reason the user cannot sit.
type Join struct {
	UserID   uuid.UUID
	Username string
	Outbox   chan Event
	Reply    chan JoinReply
}

func (Join) isRoomMsg() {}

// JoinReply is the outcome of a Join.
type JoinReply struct {
	Slot Slot
	Err  error
}

// Leave detaches a connection. Outbox identifies which connection is
// leaving so a replaced socket's teardown cannot evict its successor.
type Leave struct {
	UserID uuid.UUID
	Outbox chan Event
}

func (Leave) isRoomMsg() {}

// SetReady flips a player's ready flag.
type SetReady struct {
	UserID uuid.UUID
	Ready  bool
}

func (SetReady) isRoomMsg() {}

// Shutdown closes the room immediately.
type Shutdown struct{ Reason string }

func (Shutdown) isRoomMsg() {}

// GetView reflects room state without data races. Test and stats use only.
type GetView struct {
	Reply chan View
}

func (GetView) isRoomMsg() {}

// View is a point-in-time copy of room state.
type View struct {
	Code      string
	Players   map[Slot]Player
	Connected map[Slot]bool
	Ready     map[Slot]bool
	Counting  bool
	Started   bool
	Closed    bool
}

// internal timer messages

type countdownTick struct{}

func (countdownTick) isRoomMsg() {}

type readyTimeout struct{}

func (readyTimeout) isRoomMsg() {}

type abandonTimeout struct{}

func (abandonTimeout) isRoomMsg() {}

type handoffDone struct {
	result HandoffResult
	err    error
}

func (handoffDone) isRoomMsg() {}

// Event is a message from the room to a seated client.
type Event struct {
	Type         string          `json:"type"`
	Slot         Slot            `json:"slot,omitempty"`
	PlayerID     string          `json:"playerId,omitempty"`
	Players      map[Slot]string `json:"players,omitempty"`
	Ready        map[Slot]bool   `json:"ready,omitempty"`
	Value        int             `json:"value,omitempty"`
	GameID       string          `json:"gameId,omitempty"`
	WebsocketURL string          `json:"websocketUrl,omitempty"`
	Reason       string          `json:"reason,omitempty"`
}

// Event types on the lobby channel.
const (
	EventInit         = "init"
	EventPlayerJoined = "playerJoined"
	EventPlayerReady  = "playerReady"
	EventPlayerLeft   = "playerLeft"
	EventCountdown    = "countdown"
	EventStartGame    = "startGame"
	EventRoomClosed   = "roomClosed"
	EventReplaced     = "connectionReplaced"
)

// Close reasons surfaced to clients.
const (
	ReasonExpired      = "expired"
	ReasonAbandoned    = "abandoned"
	ReasonHandoffError = "handoff_error"
	ReasonShutdown     = "shutdown"
	ReasonRemoteClosed = "remote_closed"
)
