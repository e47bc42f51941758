package session

import "github.com/google/uuid"

// Slot mirrors the room seat the player held; it is fixed at handoff.
type Slot string

const (
	SlotPlayer1 Slot = "player1"
	SlotPlayer2 Slot = "player2"
)

// Player is a participant carried over from the room at handoff.
type Player struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Slot     Slot      `json:"slot"`
}

// Msg is a message into the session actor.
type Msg interface{ isSessionMsg() }

// Attach connects a player's game socket.
type Attach struct {
	UserID uuid.UUID
	Outbox chan Event
	Reply  chan AttachReply
}

func (Attach) isSessionMsg() {}

// AttachReply is the outcome of an Attach.
type AttachReply struct {
	Slot Slot
	Err  error
}

// Detach reports a game socket closing. Outbox identifies which connection
// so a replaced socket cannot tear down its successor.
type Detach struct {
	UserID uuid.UUID
	Outbox chan Event
}

func (Detach) isSessionMsg() {}

// PlayerReady is the game-channel handshake. The session starts only after
// both players have sent it, regardless of what happened on the lobby
// channel.
type PlayerReady struct {
	UserID uuid.UUID
}

func (PlayerReady) isSessionMsg() {}

// PaddleMove is a player input frame. Direction is validated at the socket
// before it reaches the loop.
type PaddleMove struct {
	UserID    uuid.UUID
	Direction string
}

func (PaddleMove) isSessionMsg() {}

// Shutdown ends the session immediately.
type Shutdown struct{ Reason string }

func (Shutdown) isSessionMsg() {}

// GetView reflects session state without data races.
type GetView struct {
	Reply chan View
}

func (GetView) isSessionMsg() {}

// View is a point-in-time copy of session state.
type View struct {
	GameID    uuid.UUID
	RoomCode  string
	Ready     map[Slot]bool
	Connected map[Slot]bool
	Paddles   map[Slot]string
	Started   bool
	Closed    bool
}

// internal timer messages

type handshakeTimeout struct{}

func (handshakeTimeout) isSessionMsg() {}

type countdownTick struct{}

func (countdownTick) isSessionMsg() {}

// ReadyState mirrors both seats' handshake flags on the wire.
type ReadyState struct {
	Player1 bool `json:"player1"`
	Player2 bool `json:"player2"`
}

// Event is a message from the session to a player's game socket.
type Event struct {
	Type         string      `json:"type"`
	PlayersReady *ReadyState `json:"playersReady,omitempty"`
	Player       Slot        `json:"player,omitempty"`
	Direction    string      `json:"direction,omitempty"`
	Value        int         `json:"value,omitempty"`
	Reason       string      `json:"reason,omitempty"`
}

// Event types on the game channel.
const (
	EventReadyUpdate    = "PLAYER_READY_UPDATE"
	EventStartCountdown = "GAME_START_COUNTDOWN"
	EventStartGame      = "START_GAME"
	EventPaddleUpdate   = "PADDLE_UPDATE"
	EventOpponentLeft   = "OPPONENT_DISCONNECTED"
	EventInterrupted    = "GAME_INTERRUPTED"
	EventReplaced       = "CONNECTION_REPLACED"
)

// Paddle directions accepted from clients.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
	DirectionStop = "stop"
)

// Interrupt reasons recorded against the match.
const (
	ReasonHandshakeTimeout = "handshake_timeout"
	ReasonDisconnect       = "player_disconnect"
	ReasonShutdown         = "server_shutdown"
)
