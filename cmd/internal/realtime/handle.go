// Package realtime contains jobwire's realtime transport (dial-side
// websocket) and the connection manager that owns its lifecycle.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Handle is one live authenticated realtime session.
//
// Ownership model:
//   - The Manager exclusively owns the handle lifecycle.
//   - Consumers hold only a borrowed reference and must not call Close.
type Handle interface {
	// On registers the listener for a named event, replacing any previous one.
	On(event string, fn func(data json.RawMessage))
	// Off removes the listener for a named event.
	Off(event string)
	// Emit sends a named event with a JSON payload. Non-blocking: a full
	// send queue yields ErrBackpressure rather than stalling the caller.
	Emit(ctx context.Context, event string, payload any) error
	// Done is closed when the session is shutting down.
	Done() <-chan struct{}
	// Close tears the session down (idempotent). Manager-only.
	Close()
}

// Handshake carries the identity parameters of the open request.
type Handshake struct {
	ClientType string
	ClientID   string
}

// Dialer opens realtime sessions. The websocket implementation lives in
// transport_ws.go; tests substitute a fake.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, hs Handshake) (Handle, error)
}

// ReconnectPolicy bounds automatic retry at open time.
// The default is a fixed delay with a fixed attempt budget; Multiplier > 1
// opts into exponential backoff capped at MaxDelay.
type ReconnectPolicy struct {
	Delay       time.Duration
	MaxAttempts int
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultReconnectPolicy mirrors the transport defaults: 5 attempts, 2s apart.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Delay:       reconnectDelay,
		MaxAttempts: reconnectMaxAttempts,
		Multiplier:  1,
		MaxDelay:    reconnectMaxDelay,
	}
}

func (p ReconnectPolicy) normalized() ReconnectPolicy {
	def := DefaultReconnectPolicy()
	if p.Delay <= 0 {
		p.Delay = def.Delay
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	return p
}

// nextDelay advances the retry delay according to the policy.
func (p ReconnectPolicy) nextDelay(cur time.Duration) time.Duration {
	if p.Multiplier <= 1 {
		return cur
	}
	next := time.Duration(float64(cur) * p.Multiplier)
	if next > p.MaxDelay {
		return p.MaxDelay
	}
	return next
}

// Sentinel errors (stable for errors.Is).
var (
	// ErrNotConnected is returned when emitting without an open session.
	ErrNotConnected = errors.New("realtime: not connected")
	// ErrBackpressure is returned when the send queue is full.
	ErrBackpressure = errors.New("realtime: send queue full")
)
