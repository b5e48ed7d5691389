package unread

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"jobwire/cmd/internal/identity"
	"jobwire/cmd/internal/store"
	v1 "jobwire/shared/contracts/realtime/v1"
)

const chatRoute = "/chat"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func selfUser() func() identity.Identity {
	return func() identity.Identity { return identity.Identity{Kind: identity.KindUser, ID: "u1"} }
}

func incoming(sender string) v1.MessagePayload {
	return v1.MessagePayload{
		MessageID:      "m-" + sender,
		SenderID:       sender,
		OwnerUserID:    "u1",
		OwnerCompanyID: "c1",
		Content:        "hi",
		Timestamp:      time.Now().UTC(),
	}
}

func TestCounterMonotonicWhileAway(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := store.NewMemory()
	c := NewCounter(ctx, testLogger(), kv, identity.KindUser, chatRoute, "/jobs", selfUser())

	const k = 5
	for i := 0; i < k; i++ {
		c.Apply(incoming("c1"))
	}
	if c.Value() != k {
		t.Fatalf("Value()=%d want=%d", c.Value(), k)
	}

	// Navigating to the chat route resets regardless of k.
	c.OnRouteChange(chatRoute)
	if c.Value() != 0 {
		t.Fatalf("Value()=%d want=0 after entering chat", c.Value())
	}
	if _, ok, _ := kv.Get(ctx, store.UnreadKey(identity.KindUser)); ok {
		t.Fatalf("persisted key must be absent while chat route is active")
	}
}

func TestCounterIncrementAndReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := store.NewMemory()

	// Pre-seeded persisted count of 2, mounted away from chat.
	if err := kv.Set(ctx, store.UnreadKey(identity.KindUser), []byte("2")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	c := NewCounter(ctx, testLogger(), kv, identity.KindUser, chatRoute, "/jobs", selfUser())
	if c.Value() != 2 {
		t.Fatalf("hydrated Value()=%d want=2", c.Value())
	}

	// Qualifying message: sender is the counterpart, addressed to us.
	c.Apply(incoming("c1"))
	if c.Value() != 3 {
		t.Fatalf("Value()=%d want=3", c.Value())
	}

	c.OnRouteChange(chatRoute)
	if c.Value() != 0 {
		t.Fatalf("Value()=%d want=0", c.Value())
	}
}

func TestCounterIgnoresNonQualifyingMessages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewCounter(ctx, testLogger(), store.NewMemory(), identity.KindUser, chatRoute, "/jobs", selfUser())

	// Own echo.
	c.Apply(incoming("u1"))
	// Addressed to a different user.
	other := incoming("c1")
	other.OwnerUserID = "u2"
	c.Apply(other)

	if c.Value() != 0 {
		t.Fatalf("Value()=%d want=0", c.Value())
	}
}

func TestCounterHeldAtZeroOnChatRoute(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := store.NewMemory()

	// Persisted count exists, but mounting on the chat route forces 0 and
	// clears the key.
	if err := kv.Set(ctx, store.UnreadKey(identity.KindUser), []byte("7")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	c := NewCounter(ctx, testLogger(), kv, identity.KindUser, chatRoute, chatRoute, selfUser())
	if c.Value() != 0 {
		t.Fatalf("Value()=%d want=0 on chat route", c.Value())
	}
	if _, ok, _ := kv.Get(ctx, store.UnreadKey(identity.KindUser)); ok {
		t.Fatalf("persisted key must be cleared on chat-route mount")
	}

	// Messages arriving while chat is focused do not accumulate.
	c.Apply(incoming("c1"))
	if c.Value() != 0 {
		t.Fatalf("Value()=%d want=0 while chat focused", c.Value())
	}
}

func TestCounterPersistsOnNavigationAway(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := store.NewMemory()
	c := NewCounter(ctx, testLogger(), kv, identity.KindUser, chatRoute, "/jobs", selfUser())

	c.Apply(incoming("c1"))
	c.Apply(incoming("c1"))

	raw, ok, err := kv.Get(ctx, store.UnreadKey(identity.KindUser))
	if err != nil || !ok || string(raw) != "2" {
		t.Fatalf("persisted=(%q, %v, %v) want (2, true, nil)", raw, ok, err)
	}

	c.OnRouteChange(chatRoute)
	c.OnRouteChange("/jobs")

	raw, ok, _ = kv.Get(ctx, store.UnreadKey(identity.KindUser))
	if !ok || string(raw) != "0" {
		t.Fatalf("persisted after leaving chat=(%q, %v) want (0, true)", raw, ok)
	}
}

func TestCounterCompanySurfaceMatchesCompanyID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	self := func() identity.Identity { return identity.Identity{Kind: identity.KindCompany, ID: "c1"} }
	c := NewCounter(ctx, testLogger(), store.NewMemory(), identity.KindCompany, chatRoute, "/dashboard", self)

	c.Apply(incoming("u1")) // OwnerCompanyID=c1, sender u1: qualifies
	if c.Value() != 1 {
		t.Fatalf("Value()=%d want=1", c.Value())
	}
}
