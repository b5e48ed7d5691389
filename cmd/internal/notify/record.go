// Package notify maintains the per-surface notification lists fed by the
// realtime connection and persisted to durable local storage.
package notify

import (
	"encoding/json"
	"time"

	"jobwire/cmd/internal/ids"
)

// Record kinds, enumerated by surface.
const (
	KindNewJob                  = "newJob"
	KindApplicationStatusUpdate = "applicationStatusUpdate"
	KindNewApplication          = "newApplication"
)

// Record is one notification as shown in the header UI.
// ID is a locally generated ULID, unique within a surface's list.
// Payload carries the kind-specific fields used for deep-linking.
type Record struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func newRecord(kind, title, message string, payload json.RawMessage) (Record, error) {
	now := time.Now().UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:        id,
		Kind:      kind,
		Title:     title,
		Message:   message,
		Timestamp: now,
		Payload:   payload,
	}, nil
}
