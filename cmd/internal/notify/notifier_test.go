package notify

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"jobwire/cmd/internal/identity"
	"jobwire/cmd/internal/realtime"
	"jobwire/cmd/internal/store"
)

// stubHandle lets tests push server events through a real Manager.
type stubHandle struct {
	mu        sync.Mutex
	listeners map[string]func(json.RawMessage)
	done      chan struct{}
	closeOnce sync.Once
}

func newStubHandle() *stubHandle {
	return &stubHandle{
		listeners: make(map[string]func(json.RawMessage)),
		done:      make(chan struct{}),
	}
}

func (s *stubHandle) On(event string, fn func(json.RawMessage)) {
	s.mu.Lock()
	s.listeners[event] = fn
	s.mu.Unlock()
}

func (s *stubHandle) Off(event string) {
	s.mu.Lock()
	delete(s.listeners, event)
	s.mu.Unlock()
}

func (s *stubHandle) Emit(context.Context, string, any) error { return nil }
func (s *stubHandle) Done() <-chan struct{}                   { return s.done }
func (s *stubHandle) Close()                                  { s.closeOnce.Do(func() { close(s.done) }) }

func (s *stubHandle) fire(event string, data json.RawMessage) {
	s.mu.Lock()
	fn := s.listeners[event]
	s.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

type stubDialer struct {
	mu   sync.Mutex
	last *stubHandle
}

func (d *stubDialer) Dial(context.Context, string, realtime.Handshake) (realtime.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = newStubHandle()
	return d.last, nil
}

func (d *stubDialer) handle() *stubHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

type recordedToast struct {
	title, message string
}

type toastRecorder struct {
	mu     sync.Mutex
	toasts []recordedToast
}

func (r *toastRecorder) Show(_ context.Context, title, message string) {
	r.mu.Lock()
	r.toasts = append(r.toasts, recordedToast{title: title, message: message})
	r.mu.Unlock()
}

func (r *toastRecorder) all() []recordedToast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedToast(nil), r.toasts...)
}

func openManager(t *testing.T, d *stubDialer, id identity.Identity) *realtime.Manager {
	t.Helper()
	mgr := realtime.NewManager(testLogger(), d, "ws://example/ws", realtime.ReconnectPolicy{Delay: time.Millisecond, MaxAttempts: 2})
	t.Cleanup(mgr.Close)

	mgr.SetIdentity(id)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mgr.State() == realtime.StateOpen {
			return mgr
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("manager never opened")
	return nil
}

func TestNewJobEventProducesRecordAndToast(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	self := identity.Identity{Kind: identity.KindUser, ID: "u1"}

	d := &stubDialer{}
	mgr := openManager(t, d, self)

	kv := store.NewMemory()
	buf := NewBuffer(ctx, testLogger(), kv, identity.KindUser)
	toasts := &toastRecorder{}

	n := NewNotifier(testLogger(), identity.KindUser, buf, toasts, func() identity.Identity { return self }, func() bool { return true })
	n.Bind(mgr)
	defer n.Unbind(mgr)

	d.handle().fire("notification:newJob", json.RawMessage(`{"job_id":"j1","company":"Acme","title":"Engineer","location":"Remote"}`))

	recs := buf.List()
	if len(recs) != 1 {
		t.Fatalf("records=%d want=1", len(recs))
	}
	rec := recs[0]
	if rec.Kind != KindNewJob {
		t.Fatalf("kind=%q want=%q", rec.Kind, KindNewJob)
	}
	if !strings.Contains(rec.Message, "Acme") || !strings.Contains(rec.Message, "Engineer") {
		t.Fatalf("message %q must name company and title", rec.Message)
	}
	if rec.ID == "" || rec.Timestamp.IsZero() {
		t.Fatalf("record missing id/timestamp: %+v", rec)
	}
	if got := toasts.all(); len(got) != 1 || got[0].message != rec.Message {
		t.Fatalf("toasts=%+v want one matching record", got)
	}
}

func TestNewJobEventRedactedWhenUnsubscribed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	self := identity.Identity{Kind: identity.KindUser, ID: "u1"}

	d := &stubDialer{}
	mgr := openManager(t, d, self)

	buf := NewBuffer(ctx, testLogger(), store.NewMemory(), identity.KindUser)
	n := NewNotifier(testLogger(), identity.KindUser, buf, &toastRecorder{}, func() identity.Identity { return self }, func() bool { return false })
	n.Bind(mgr)

	d.handle().fire("notification:newJob", json.RawMessage(`{"job_id":"j1","company":"Acme","title":"Engineer","location":"Remote"}`))

	recs := buf.List()
	if len(recs) != 1 {
		t.Fatalf("records=%d want=1", len(recs))
	}
	if strings.Contains(recs[0].Message, "Acme") || strings.Contains(recs[0].Message, "Engineer") {
		t.Fatalf("unsubscribed message %q must be redacted", recs[0].Message)
	}
}

func TestNewApplicationFiltersByCompanyID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	self := identity.Identity{Kind: identity.KindCompany, ID: "c1"}

	d := &stubDialer{}
	mgr := openManager(t, d, self)

	buf := NewBuffer(ctx, testLogger(), store.NewMemory(), identity.KindCompany)
	n := NewNotifier(testLogger(), identity.KindCompany, buf, &toastRecorder{}, func() identity.Identity { return self }, nil)
	n.Bind(mgr)

	// Addressed to another company: ignored.
	d.handle().fire("notification:newApplication", json.RawMessage(`{"application_id":"a1","job_title":"Engineer","applicant_name":"Kim","company_id":"c2"}`))
	if buf.Len() != 0 {
		t.Fatalf("event for another company must be ignored")
	}

	// Addressed to us: recorded.
	d.handle().fire("notification:newApplication", json.RawMessage(`{"application_id":"a2","job_title":"Engineer","applicant_name":"Kim","company_id":"c1"}`))
	recs := buf.List()
	if len(recs) != 1 || recs[0].Kind != KindNewApplication {
		t.Fatalf("records=%+v want one newApplication", recs)
	}
	if !strings.Contains(recs[0].Message, "Kim") {
		t.Fatalf("message %q must name the applicant", recs[0].Message)
	}
}

func TestMalformedEventIsNoOp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	self := identity.Identity{Kind: identity.KindUser, ID: "u1"}

	d := &stubDialer{}
	mgr := openManager(t, d, self)

	buf := NewBuffer(ctx, testLogger(), store.NewMemory(), identity.KindUser)
	n := NewNotifier(testLogger(), identity.KindUser, buf, &toastRecorder{}, func() identity.Identity { return self }, nil)
	n.Bind(mgr)

	d.handle().fire("notification:newJob", json.RawMessage(`"not an object"`))
	if buf.Len() != 0 {
		t.Fatalf("malformed payload must not produce a record")
	}
}
