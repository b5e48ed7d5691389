package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"jobwire/cmd/internal/identity"
)

// State is the connection lifecycle state.
type State string

const (
	// StateClosed means no connection exists (also the failure signal:
	// consumers observe absence of a handle, never an exception).
	StateClosed State = "closed"
	// StateOpening means a dial/retry loop is running.
	StateOpening State = "opening"
	// StateOpen means the handle is live and visible to consumers.
	StateOpen State = "open"
	// StateFailed is terminal for the current identity: the retry budget is
	// exhausted. A new identity transition leaves this state.
	StateFailed State = "failed"
)

// Manager guarantees exactly one open connection per non-none identity, and
// none otherwise.
//
// It also centralizes subscription lifecycle: listeners are registered
// against the Manager keyed by event+owner, and the Manager re-binds them
// onto every new handle and detaches them from dying ones. This removes the
// bug class where a listener registered against a stale connection or
// identity mutates state after its owner is gone.
type Manager struct {
	log      *slog.Logger
	dial     Dialer
	endpoint string
	policy   ReconnectPolicy
	metrics  *Metrics

	mu     sync.Mutex
	gen    uint64
	state  State
	ident  identity.Identity
	handle Handle
	subs   map[string]map[string]func(json.RawMessage) // event -> owner -> fn
	closed bool
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithMetrics attaches prometheus instrumentation.
func WithMetrics(m *Metrics) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

// NewManager constructs a Manager. The policy is normalized to safe defaults.
func NewManager(log *slog.Logger, dial Dialer, endpoint string, policy ReconnectPolicy, opts ...ManagerOption) *Manager {
	m := &Manager{
		log:      log,
		dial:     dial,
		endpoint: endpoint,
		policy:   policy.normalized(),
		state:    StateClosed,
		ident:    identity.None,
		subs:     make(map[string]map[string]func(json.RawMessage)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Bind wires the manager to a session store: every derived identity change
// drives the connection lifecycle, starting from the store's current value.
func (m *Manager) Bind(st *identity.Store) (cancel func()) {
	unsub := st.Subscribe(m.SetIdentity)
	m.SetIdentity(st.Current())
	return unsub
}

// SetIdentity drives the state machine for a new derived identity.
//
// Transitions:
//   - none -> concrete: open (Closed -> Opening -> Open)
//   - concrete -> different concrete: close old first, then open
//   - concrete -> none: close, null the shared handle
//   - same identity while live: no-op
func (m *Manager) SetIdentity(id identity.Identity) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if id.Equal(m.ident) && (m.state == StateOpen || m.state == StateOpening) {
		m.mu.Unlock()
		return
	}

	m.gen++
	gen := m.gen
	m.teardownLocked()
	m.ident = id

	if id.IsNone() {
		m.mu.Unlock()
		m.log.Info("conn.identity.none")
		return
	}

	m.setStateLocked(StateOpening)
	m.mu.Unlock()

	m.log.Info("conn.identity.set", "client_type", id.Kind, "client_id", id.ID)
	go m.openLoop(gen, id)
}

// Handle returns the live connection handle, or nil when none is open.
// Absence of a handle is the only observable failure signal.
func (m *Manager) Handle() Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateOpen {
		return nil
	}
	return m.handle
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Identity returns the identity the manager currently serves.
func (m *Manager) Identity() identity.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ident
}

// Emit sends a named event over the live handle.
func (m *Manager) Emit(ctx context.Context, event string, payload any) error {
	h := m.Handle()
	if h == nil {
		return ErrNotConnected
	}
	return h.Emit(ctx, event, payload)
}

// Subscribe registers fn for event on behalf of owner. The subscription
// survives reconnects and identity changes until the owner unsubscribes.
func (m *Manager) Subscribe(owner, event string, fn func(json.RawMessage)) {
	if owner == "" || event == "" || fn == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	owners := m.subs[event]
	first := len(owners) == 0
	if owners == nil {
		owners = make(map[string]func(json.RawMessage))
		m.subs[event] = owners
	}
	owners[owner] = fn

	if first && m.handle != nil {
		m.handle.On(event, m.dispatcher(event))
	}
}

// Unsubscribe removes owner's listener for one event.
func (m *Manager) Unsubscribe(owner, event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLocked(owner, event)
}

// UnsubscribeOwner removes every listener registered by owner.
func (m *Manager) UnsubscribeOwner(owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for event := range m.subs {
		m.dropLocked(owner, event)
	}
}

// Close tears down the connection and stops the manager permanently.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.gen++
	m.teardownLocked()
}

// ---- internals ----

func (m *Manager) dropLocked(owner, event string) {
	owners := m.subs[event]
	if owners == nil {
		return
	}
	delete(owners, owner)
	if len(owners) == 0 {
		delete(m.subs, event)
		if m.handle != nil {
			m.handle.Off(event)
		}
	}
}

// teardownLocked closes and nulls the shared handle. Callers hold m.mu.
func (m *Manager) teardownLocked() {
	if m.handle != nil {
		h := m.handle
		m.handle = nil
		h.Close()
	}
	m.setStateLocked(StateClosed)
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	if m.metrics != nil {
		m.metrics.setState(s)
	}
}

func (m *Manager) openLoop(gen uint64, id identity.Identity) {
	hs := Handshake{ClientType: string(id.Kind), ClientID: id.ID}
	delay := m.policy.Delay

	for attempt := 1; attempt <= m.policy.MaxAttempts; attempt++ {
		if m.stale(gen) {
			return
		}

		h, err := m.dial.Dial(context.Background(), m.endpoint, hs)
		if err == nil {
			m.mu.Lock()
			if m.closed || gen != m.gen {
				m.mu.Unlock()
				h.Close()
				return
			}
			m.handle = h
			m.setStateLocked(StateOpen)
			for event := range m.subs {
				h.On(event, m.dispatcher(event))
			}
			m.mu.Unlock()

			if m.metrics != nil {
				m.metrics.Opens.Inc()
			}
			m.log.Info("conn.open", "client_type", hs.ClientType, "attempt", attempt)
			go m.watch(gen, h, id)
			return
		}

		m.log.Info("conn.open.fail", "client_type", hs.ClientType, "attempt", attempt, "err", err)
		if m.metrics != nil {
			m.metrics.Retries.Inc()
		}

		if attempt < m.policy.MaxAttempts {
			time.Sleep(delay)
			delay = m.policy.nextDelay(delay)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.gen {
		return
	}
	m.handle = nil
	m.setStateLocked(StateFailed)
	if m.metrics != nil {
		m.metrics.Failures.Inc()
	}
	m.log.Error("conn.retry.exhausted", "client_type", hs.ClientType, "attempts", m.policy.MaxAttempts)
}

// watch reopens the connection when a live handle dies unexpectedly while
// its identity is still current.
func (m *Manager) watch(gen uint64, h Handle, id identity.Identity) {
	<-h.Done()

	m.mu.Lock()
	if m.closed || gen != m.gen || m.handle != h {
		m.mu.Unlock()
		return
	}
	m.handle = nil
	m.gen++
	next := m.gen
	m.setStateLocked(StateOpening)
	m.mu.Unlock()

	m.log.Info("conn.lost", "client_type", id.Kind)
	go m.openLoop(next, id)
}

// dispatcher fans one event out to the owners registered at dispatch time,
// so listeners removed mid-flight are never invoked.
func (m *Manager) dispatcher(event string) func(json.RawMessage) {
	return func(data json.RawMessage) {
		m.mu.Lock()
		owners := m.subs[event]
		fns := make([]func(json.RawMessage), 0, len(owners))
		for _, fn := range owners {
			fns = append(fns, fn)
		}
		m.mu.Unlock()

		if m.metrics != nil {
			m.metrics.EventsReceived.WithLabelValues(event).Inc()
		}
		for _, fn := range fns {
			fn(data)
		}
	}
}

func (m *Manager) stale(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed || gen != m.gen
}
