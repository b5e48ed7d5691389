// Package chat reconciles server-fetched thread history with live incoming
// messages, one thread per counterpart.
package chat

import (
	"sort"
	"time"

	v1 "jobwire/shared/contracts/realtime/v1"
)

// ThreadState tracks a thread's lifecycle.
type ThreadState string

const (
	// ThreadEphemeral is a thread materialized from a search result, not yet
	// backed by any message.
	ThreadEphemeral ThreadState = "ephemeral"
	// ThreadPersisted is a thread backed by at least one stored message.
	ThreadPersisted ThreadState = "persisted"
)

// Message is one chat message as displayed in a thread.
// Pending marks an optimistic local copy awaiting its echo; CorrelationID is
// the client-assigned id the echo carries back.
type Message struct {
	ID             string    `json:"id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	OwnerUserID    string    `json:"owner_user_id"`
	OwnerCompanyID string    `json:"owner_company_id"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
	Pending        bool      `json:"pending,omitempty"`
}

// Thread is the per-counterpart message history.
// Invariant: Messages is free of duplicate ids and display-ordered by arrival.
type Thread struct {
	CounterpartID   string      `json:"counterpart_id"`
	Messages        []Message   `json:"messages"`
	LastMessage     string      `json:"last_message"`
	LastMessageTime time.Time   `json:"last_message_time"`
	State           ThreadState `json:"state"`
}

func (t *Thread) clone() Thread {
	cp := *t
	cp.Messages = append([]Message(nil), t.Messages...)
	return cp
}

// SortThreads orders threads by LastMessageTime descending.
// Empty threads carry the epoch-zero fallback and therefore sort last.
func SortThreads(threads []Thread) {
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].LastMessageTime.After(threads[j].LastMessageTime)
	})
}

func fromPayload(p v1.MessagePayload) Message {
	return Message{
		ID:             p.MessageID,
		SenderID:       p.SenderID,
		Content:        p.Content,
		Timestamp:      p.Timestamp,
		OwnerUserID:    p.OwnerUserID,
		OwnerCompanyID: p.OwnerCompanyID,
		CorrelationID:  p.CorrelationID,
	}
}
