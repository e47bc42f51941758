package ws

// clientMessage is the inbound frame shape shared by all channels. Fields
// beyond Type are channel-specific and ignored where not applicable.
type clientMessage struct {
	Type      string `json:"type"`
	Direction string `json:"direction,omitempty"`
	Token     string `json:"token,omitempty"`
}

// Inbound message types.
const (
	msgAuth        = "auth"
	msgReady       = "ready"
	msgUnready     = "unready"
	msgLeave       = "leave"
	msgPing        = "ping"
	msgPlayerReady = "PLAYER_READY"
	msgPaddleMove  = "paddleMove"
)

type pongMessage struct {
	Type string `json:"type"`
}

var pong = pongMessage{Type: "pong"}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
