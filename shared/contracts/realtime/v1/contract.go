// Package v1 defines the jobwire realtime event contract.
//
// This package is intentionally stable and dependency-light.
// Event names are a bidirectional contract with the job-board backend and
// must be preserved verbatim for interop.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event names (wire-stable).
const (
	// EventConnected is the transport's handshake acknowledgment (server -> client).
	EventConnected = "connected"

	// EventNewApplication notifies a company that a seeker applied to one of its jobs.
	EventNewApplication = "notification:newApplication"
	// EventNewJob notifies a seeker that a new job was posted.
	EventNewJob = "notification:newJob"
	// EventApplicationStatusUpdate notifies a seeker that an application changed status.
	EventApplicationStatusUpdate = "notification:applicationStatusUpdate"

	// EventNewMessageArrived signals an incoming chat message for badge counting.
	EventNewMessageArrived = "newMessageArrived"
	// EventReceiveMessage delivers a chat message into an open thread,
	// including the echo of the client's own sends.
	EventReceiveMessage = "receiveMessage"
	// EventSendMessage requests delivery of an outgoing chat message (client -> server).
	EventSendMessage = "sendMessage"
	// EventJoinChat joins the logical room for a counterpart pair (client -> server).
	// Both parties must join before messages route between them.
	EventJoinChat = "joinChat"
)

// AllowedEvents is the closed set of recognized event names.
var AllowedEvents = map[string]struct{}{
	EventConnected:               {},
	EventNewApplication:          {},
	EventNewJob:                  {},
	EventApplicationStatusUpdate: {},
	EventNewMessageArrived:       {},
	EventReceiveMessage:          {},
	EventSendMessage:             {},
	EventJoinChat:                {},
}

// Frame is the canonical wire wrapper: one named event plus its payload.
type Frame struct {
	Event string          `json:"event"`
	ID    string          `json:"id"`
	TS    time.Time       `json:"ts"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Validate performs strict structural validation for a Frame.
// A frame failing validation must be treated as a no-op plus a diagnostic
// log by consumers, never a crash.
func (f Frame) Validate() error {
	if strings.TrimSpace(f.Event) == "" {
		return errors.New("missing field: event")
	}
	if _, ok := AllowedEvents[f.Event]; !ok {
		return fmt.Errorf("unknown event: %q", f.Event)
	}
	if strings.TrimSpace(f.ID) == "" {
		return errors.New("missing field: id")
	}
	if f.TS.IsZero() {
		return errors.New("missing field: ts")
	}
	return nil
}
