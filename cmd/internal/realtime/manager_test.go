package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"jobwire/cmd/internal/identity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeHandle is an in-process Handle for manager tests.
type fakeHandle struct {
	hs Handshake

	mu        sync.Mutex
	listeners map[string]func(json.RawMessage)
	emitted   []string

	done      chan struct{}
	closeOnce sync.Once
}

func newFakeHandle(hs Handshake) *fakeHandle {
	return &fakeHandle{
		hs:        hs,
		listeners: make(map[string]func(json.RawMessage)),
		done:      make(chan struct{}),
	}
}

func (f *fakeHandle) On(event string, fn func(json.RawMessage)) {
	f.mu.Lock()
	f.listeners[event] = fn
	f.mu.Unlock()
}

func (f *fakeHandle) Off(event string) {
	f.mu.Lock()
	delete(f.listeners, event)
	f.mu.Unlock()
}

func (f *fakeHandle) Emit(_ context.Context, event string, _ any) error {
	select {
	case <-f.done:
		return ErrNotConnected
	default:
	}
	f.mu.Lock()
	f.emitted = append(f.emitted, event)
	f.mu.Unlock()
	return nil
}

func (f *fakeHandle) Done() <-chan struct{} { return f.done }

func (f *fakeHandle) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *fakeHandle) closed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// fire simulates a server-pushed event.
func (f *fakeHandle) fire(event string, data json.RawMessage) {
	f.mu.Lock()
	fn := f.listeners[event]
	f.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

// fakeDialer tracks every opened handle and can fail a number of attempts.
type fakeDialer struct {
	mu           sync.Mutex
	failuresLeft int
	handles      []*fakeHandle
}

func (d *fakeDialer) Dial(_ context.Context, _ string, hs Handshake) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failuresLeft > 0 {
		d.failuresLeft--
		return nil, errors.New("dial refused")
	}
	h := newFakeHandle(hs)
	d.handles = append(d.handles, h)
	return h, nil
}

func (d *fakeDialer) openHandles() []*fakeHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	var open []*fakeHandle
	for _, h := range d.handles {
		if !h.closed() {
			open = append(open, h)
		}
	}
	return open
}

func (d *fakeDialer) last() *fakeHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.handles) == 0 {
		return nil
	}
	return d.handles[len(d.handles)-1]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not reached within deadline")
}

func fastPolicy() ReconnectPolicy {
	return ReconnectPolicy{Delay: time.Millisecond, MaxAttempts: 3, Multiplier: 1}
}

func TestManagerSingleConnectionInvariant(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	m := NewManager(testLogger(), d, "ws://example/ws", fastPolicy())
	defer m.Close()

	userA := identity.Identity{Kind: identity.KindUser, ID: "u1"}
	companyB := identity.Identity{Kind: identity.KindCompany, ID: "c1"}

	// none -> userA
	m.SetIdentity(userA)
	waitFor(t, func() bool { return m.State() == StateOpen })
	if got := len(d.openHandles()); got != 1 {
		t.Fatalf("open handles=%d want=1", got)
	}
	if hs := d.last().hs; hs.ClientType != "user" || hs.ClientID != "u1" {
		t.Fatalf("handshake=%+v want user/u1", hs)
	}

	// userA -> none
	m.SetIdentity(identity.None)
	waitFor(t, func() bool { return m.State() == StateClosed })
	if got := len(d.openHandles()); got != 0 {
		t.Fatalf("open handles after logout=%d want=0", got)
	}
	if m.Handle() != nil {
		t.Fatalf("handle must be nulled after identity loss")
	}

	// none -> userA (again)
	m.SetIdentity(userA)
	waitFor(t, func() bool { return m.State() == StateOpen })

	// userA -> companyB: old connection closes first, exactly one stays open.
	m.SetIdentity(companyB)
	waitFor(t, func() bool {
		open := d.openHandles()
		return m.State() == StateOpen && len(open) == 1 && open[0].hs.ClientType == "company"
	})
	if hs := d.last().hs; hs.ClientID != "c1" {
		t.Fatalf("handshake=%+v want company/c1", hs)
	}
	if !m.Identity().Equal(companyB) {
		t.Fatalf("identity=%+v want companyB", m.Identity())
	}
}

func TestManagerSameIdentityIsNoop(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	m := NewManager(testLogger(), d, "ws://example/ws", fastPolicy())
	defer m.Close()

	userA := identity.Identity{Kind: identity.KindUser, ID: "u1"}
	m.SetIdentity(userA)
	waitFor(t, func() bool { return m.State() == StateOpen })

	first := m.Handle()
	m.SetIdentity(userA)
	if m.Handle() != first {
		t.Fatalf("same identity must keep the existing connection")
	}
}

func TestManagerReopensOnHandleLoss(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	m := NewManager(testLogger(), d, "ws://example/ws", fastPolicy())
	defer m.Close()

	m.SetIdentity(identity.Identity{Kind: identity.KindUser, ID: "u1"})
	waitFor(t, func() bool { return m.State() == StateOpen })

	lost := d.last()
	lost.Close() // transport drop

	waitFor(t, func() bool { return m.State() == StateOpen && d.last() != lost })
	if got := len(d.openHandles()); got != 1 {
		t.Fatalf("open handles after reconnect=%d want=1", got)
	}
}

func TestManagerRetryExhaustion(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{failuresLeft: 1 << 20}
	m := NewManager(testLogger(), d, "ws://example/ws", ReconnectPolicy{Delay: time.Millisecond, MaxAttempts: 2})
	defer m.Close()

	m.SetIdentity(identity.Identity{Kind: identity.KindUser, ID: "u1"})
	waitFor(t, func() bool { return m.State() == StateFailed })

	// Exhaustion is terminal but silent: consumers just see no handle.
	if m.Handle() != nil {
		t.Fatalf("failed state must expose no handle")
	}
	if err := m.Emit(context.Background(), "sendMessage", nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Emit without connection=%v want ErrNotConnected", err)
	}
}

func TestManagerSubscriptionSurvivesReconnect(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	m := NewManager(testLogger(), d, "ws://example/ws", fastPolicy())
	defer m.Close()

	var mu sync.Mutex
	var got []string
	m.Subscribe("notify:user", "notification:newJob", func(data json.RawMessage) {
		mu.Lock()
		got = append(got, string(data))
		mu.Unlock()
	})

	m.SetIdentity(identity.Identity{Kind: identity.KindUser, ID: "u1"})
	waitFor(t, func() bool { return m.State() == StateOpen })

	d.last().fire("notification:newJob", json.RawMessage(`"a"`))

	// Identity change: registry re-binds onto the new handle.
	m.SetIdentity(identity.Identity{Kind: identity.KindUser, ID: "u2"})
	waitFor(t, func() bool { return m.State() == StateOpen && d.last().hs.ClientID == "u2" })

	d.last().fire("notification:newJob", json.RawMessage(`"b"`))

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != `"a"` || got[1] != `"b"` {
		t.Fatalf("dispatched=%v want [\"a\" \"b\"]", got)
	}
}

func TestManagerUnsubscribeOwnerDetaches(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	m := NewManager(testLogger(), d, "ws://example/ws", fastPolicy())
	defer m.Close()

	calls := 0
	m.Subscribe("chat", "receiveMessage", func(json.RawMessage) { calls++ })
	m.Subscribe("chat", "newMessageArrived", func(json.RawMessage) { calls++ })

	m.SetIdentity(identity.Identity{Kind: identity.KindUser, ID: "u1"})
	waitFor(t, func() bool { return m.State() == StateOpen })

	m.UnsubscribeOwner("chat")

	d.last().fire("receiveMessage", nil)
	d.last().fire("newMessageArrived", nil)
	if calls != 0 {
		t.Fatalf("calls=%d want=0 after UnsubscribeOwner", calls)
	}
}

func TestReconnectPolicyNextDelay(t *testing.T) {
	t.Parallel()

	fixed := ReconnectPolicy{Delay: time.Second, MaxAttempts: 5, Multiplier: 1}.normalized()
	if d := fixed.nextDelay(time.Second); d != time.Second {
		t.Fatalf("fixed policy drifted: %v", d)
	}

	backoff := ReconnectPolicy{Delay: time.Second, MaxAttempts: 5, Multiplier: 2, MaxDelay: 3 * time.Second}.normalized()
	d := backoff.nextDelay(time.Second)
	if d != 2*time.Second {
		t.Fatalf("backoff step=%v want=2s", d)
	}
	if d = backoff.nextDelay(d); d != 3*time.Second {
		t.Fatalf("backoff must cap at MaxDelay, got %v", d)
	}
}
