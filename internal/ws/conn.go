package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
)

var (
	errOutboxFull   = errors.New("connection outbox full")
	errConnReplaced = errors.New("connection replaced")
)

const writeTimeout = 5 * time.Second

// liveConn adapts a websocket to the realtime.Conn interface: a buffered
// event queue drained by a writer goroutine, and a replacement signal for
// when a newer connection takes over.
type liveConn struct {
	events   chan any
	replaced chan struct{}
	once     sync.Once
}

func newLiveConn(buffer int) *liveConn {
	return &liveConn{
		events:   make(chan any, buffer),
		replaced: make(chan struct{}),
	}
}

// Send enqueues without blocking. A full queue means the client stopped
// draining; the caller treats that as undelivered.
func (c *liveConn) Send(event any) error {
	select {
	case <-c.replaced:
		return errConnReplaced
	default:
	}
	select {
	case c.events <- event:
		return nil
	default:
		return errOutboxFull
	}
}

// CloseReplaced tells the writer a newer connection took over.
func (c *liveConn) CloseReplaced() {
	c.once.Do(func() { close(c.replaced) })
}

// writeJSON marshals and writes one frame with a bounded deadline.
func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}
