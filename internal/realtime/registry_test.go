package realtime

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type fakeConn struct {
	sent     []any
	sendErr  error
	replaced bool
}

func (c *fakeConn) Send(event any) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, event)
	return nil
}

func (c *fakeConn) CloseReplaced() { c.replaced = true }

func TestRegistry_PushToConnectedUser(t *testing.T) {
	reg := NewRegistry(NewMemoryPresence(), nil)
	userID := uuid.New()
	conn := &fakeConn{}

	reg.Register(context.Background(), userID, conn)
	if !reg.Push(userID, "hello") {
		t.Fatal("expected delivery to connected user")
	}
	if len(conn.sent) != 1 || conn.sent[0] != "hello" {
		t.Fatalf("unexpected sends: %v", conn.sent)
	}
}

func TestRegistry_PushToOfflineUser(t *testing.T) {
	reg := NewRegistry(NewMemoryPresence(), nil)
	if reg.Push(uuid.New(), "hello") {
		t.Fatal("expected no delivery for offline user")
	}
}

func TestRegistry_PushSendFailure(t *testing.T) {
	reg := NewRegistry(NewMemoryPresence(), nil)
	userID := uuid.New()
	conn := &fakeConn{sendErr: errors.New("buffer full")}

	reg.Register(context.Background(), userID, conn)
	if reg.Push(userID, "hello") {
		t.Fatal("a failed send must report undelivered")
	}
}

func TestRegistry_SecondConnectionEvictsFirst(t *testing.T) {
	reg := NewRegistry(NewMemoryPresence(), nil)
	userID := uuid.New()
	first := &fakeConn{}
	second := &fakeConn{}

	if evicted := reg.Register(context.Background(), userID, first); evicted != nil {
		t.Fatalf("expected no eviction on first register, got %v", evicted)
	}
	evicted := reg.Register(context.Background(), userID, second)
	if evicted != first {
		t.Fatalf("expected first connection evicted, got %v", evicted)
	}

	reg.Push(userID, "hello")
	if len(first.sent) != 0 {
		t.Fatal("evicted connection must not receive events")
	}
	if len(second.sent) != 1 {
		t.Fatal("replacement connection should receive events")
	}
}

func TestRegistry_UnregisterIsIdentityChecked(t *testing.T) {
	presence := NewMemoryPresence()
	reg := NewRegistry(presence, nil)
	userID := uuid.New()
	first := &fakeConn{}
	second := &fakeConn{}
	ctx := context.Background()

	reg.Register(ctx, userID, first)
	reg.Register(ctx, userID, second)

	// The evicted connection's teardown must not remove its replacement.
	reg.Unregister(ctx, userID, first)
	if !reg.Connected(userID) {
		t.Fatal("stale unregister removed the live connection")
	}
	if online, _ := presence.IsOnline(ctx, userID); !online {
		t.Fatal("stale unregister cleared presence")
	}

	reg.Unregister(ctx, userID, second)
	if reg.Connected(userID) {
		t.Fatal("expected live connection removed")
	}
	if online, _ := presence.IsOnline(ctx, userID); online {
		t.Fatal("expected presence cleared")
	}
}

func TestRegistry_PresenceTracksRegistration(t *testing.T) {
	presence := NewMemoryPresence()
	reg := NewRegistry(presence, nil)
	userID := uuid.New()
	ctx := context.Background()

	reg.Register(ctx, userID, &fakeConn{})
	if online, _ := presence.IsOnline(ctx, userID); !online {
		t.Fatal("expected user marked online after register")
	}
}

func TestMemoryPresence_OnlineAmong(t *testing.T) {
	presence := NewMemoryPresence()
	ctx := context.Background()
	a := uuid.New()
	b := uuid.New()

	presence.SetOnline(ctx, a)
	online, err := presence.OnlineAmong(ctx, []uuid.UUID{a, b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !online[a] || online[b] {
		t.Fatalf("unexpected presence map: %v", online)
	}
}
