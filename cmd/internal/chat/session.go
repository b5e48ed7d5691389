package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobwire/cmd/internal/identity"
	"jobwire/cmd/internal/realtime"
	v1 "jobwire/shared/contracts/realtime/v1"
)

const subscriptionOwner = "chat"

// Session owns one surface's chat state: the thread set, the active
// counterpart, and the reconciliation of history with live events.
//
// Sends are optimistic: the outgoing message is appended immediately with a
// pending flag and a client correlation id, and the authoritative echo
// collapses into it when it arrives through the normal receive path.
type Session struct {
	log       *slog.Logger
	self      func() identity.Identity
	conn      Conn
	history   HistoryClient
	directory DirectoryClient

	mu      sync.Mutex
	loaded  bool
	threads map[string]*Thread
	active  string
}

// NewSession constructs a Session. conn is the borrowed connection surface
// (typically the realtime manager); the session never closes it.
func NewSession(log *slog.Logger, self func() identity.Identity, conn Conn, history HistoryClient, directory DirectoryClient) *Session {
	return &Session{
		log:       log,
		self:      self,
		conn:      conn,
		history:   history,
		directory: directory,
		threads:   make(map[string]*Thread),
	}
}

// Bind subscribes the session to live message delivery.
func (s *Session) Bind(mgr *realtime.Manager) {
	mgr.Subscribe(subscriptionOwner, v1.EventReceiveMessage, func(data json.RawMessage) {
		var p v1.MessagePayload
		if err := json.Unmarshal(data, &p); err != nil {
			s.log.Info("chat.event.malformed", "err", err)
			return
		}
		s.Receive(fromPayload(p))
	})
}

// Unbind detaches the session's listeners.
func (s *Session) Unbind(mgr *realtime.Manager) {
	mgr.UnsubscribeOwner(subscriptionOwner)
}

// LoadHistory fetches the thread set once per session activation.
// A fetch failure is logged and surfaced as an empty set; no retry.
func (s *Session) LoadHistory(ctx context.Context) {
	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		return
	}
	s.loaded = true
	s.mu.Unlock()

	threads, err := s.history.FetchThreads(ctx, s.self())
	if err != nil {
		s.log.Info("chat.history.fail", "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range threads {
		th := threads[i]
		if th.CounterpartID == "" {
			continue
		}
		if th.State == "" {
			th.State = ThreadPersisted
		}
		s.threads[th.CounterpartID] = &th
	}
}

// Threads returns a snapshot sorted by LastMessageTime descending; threads
// with no messages sort last (epoch-zero fallback).
func (s *Session) Threads() []Thread {
	s.mu.Lock()
	out := make([]Thread, 0, len(s.threads))
	for _, th := range s.threads {
		out = append(out, th.clone())
	}
	s.mu.Unlock()

	SortThreads(out)
	return out
}

// Thread returns a snapshot of one thread by counterpart id.
func (s *Session) Thread(counterpartID string) (Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	th, ok := s.threads[counterpartID]
	if !ok {
		return Thread{}, false
	}
	return th.clone(), true
}

// Search queries the counterpart directory. Failures degrade to an empty
// result set.
func (s *Session) Search(ctx context.Context, query string) []Summary {
	out, err := s.directory.Search(ctx, query)
	if err != nil {
		s.log.Info("chat.search.fail", "err", err)
		return nil
	}
	return out
}

// Select activates the thread for a counterpart, creating an ephemeral one
// when no history exists, and joins the connection's logical room for the
// pair. Messages will not route between the parties before the join.
func (s *Session) Select(ctx context.Context, counterpart Summary) Thread {
	self := s.self()

	s.mu.Lock()
	th, ok := s.threads[counterpart.ID]
	if !ok {
		th = &Thread{CounterpartID: counterpart.ID, State: ThreadEphemeral}
		s.threads[counterpart.ID] = th
	}
	s.active = counterpart.ID
	snapshot := th.clone()
	s.mu.Unlock()

	if self.IsNone() {
		return snapshot
	}

	err := s.conn.Emit(ctx, v1.EventJoinChat, v1.JoinChatPayload{
		CounterpartAID: self.ID,
		CounterpartBID: counterpart.ID,
	})
	if err != nil {
		// Expected failure mode (no live connection); observable only as
		// missing message flow.
		s.log.Info("chat.join.fail", "counterpart", counterpart.ID, "err", err)
	}
	return snapshot
}

// ActiveCounterpart reports the currently selected counterpart, if any.
func (s *Session) ActiveCounterpart() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.active != ""
}

// Send emits content to the active counterpart and appends an optimistic
// pending copy. Programmer errors (no active thread, empty content) raise;
// a missing connection is logged and dropped.
func (s *Session) Send(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	self := s.self()
	if self.IsNone() {
		return identity.ErrNoIdentity
	}

	s.mu.Lock()
	active := s.active
	th := s.threads[active]
	s.mu.Unlock()

	if active == "" || th == nil {
		return ErrNoActiveThread
	}

	ownerUser, ownerCompany := self.ID, active
	if self.Kind == identity.KindCompany {
		ownerUser, ownerCompany = active, self.ID
	}

	now := time.Now().UTC()
	corr := uuid.NewString()

	err := s.conn.Emit(ctx, v1.EventSendMessage, v1.SendMessagePayload{
		CorrelationID:  corr,
		SenderID:       self.ID,
		OwnerUserID:    ownerUser,
		OwnerCompanyID: ownerCompany,
		Content:        content,
		Timestamp:      now,
	})
	if err != nil {
		if errors.Is(err, realtime.ErrNotConnected) || errors.Is(err, realtime.ErrBackpressure) {
			s.log.Info("chat.send.dropped", "counterpart", active, "err", err)
			return nil
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if th = s.threads[active]; th == nil {
		return nil
	}
	th.Messages = append(th.Messages, Message{
		SenderID:       self.ID,
		Content:        content,
		Timestamp:      now,
		OwnerUserID:    ownerUser,
		OwnerCompanyID: ownerCompany,
		CorrelationID:  corr,
		Pending:        true,
	})
	th.LastMessage = content
	th.LastMessageTime = now
	return nil
}

// Receive reconciles a live incoming message into its thread.
//
// Rules:
//   - No thread for the counterpart: drop (threads come only from history or
//     explicit selection, never implicitly from a push).
//   - Duplicate message id: drop (exactly one stored copy).
//   - Matching pending correlation id: collapse into the optimistic entry.
func (s *Session) Receive(m Message) {
	self := s.self()
	if self.IsNone() {
		return
	}

	counterpart := m.OwnerCompanyID
	if self.Kind == identity.KindCompany {
		counterpart = m.OwnerUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	th := s.threads[counterpart]
	if th == nil {
		s.log.Debug("chat.receive.no_thread", "counterpart", counterpart)
		return
	}

	if m.ID != "" {
		for i := range th.Messages {
			if th.Messages[i].ID == m.ID {
				return
			}
		}
	}

	if m.CorrelationID != "" {
		for i := range th.Messages {
			if th.Messages[i].Pending && th.Messages[i].CorrelationID == m.CorrelationID {
				th.Messages[i].ID = m.ID
				th.Messages[i].Timestamp = m.Timestamp
				th.Messages[i].Pending = false
				th.LastMessage = m.Content
				th.LastMessageTime = m.Timestamp
				th.State = ThreadPersisted
				return
			}
		}
	}

	th.Messages = append(th.Messages, m)
	th.LastMessage = m.Content
	th.LastMessageTime = m.Timestamp
	th.State = ThreadPersisted
}
