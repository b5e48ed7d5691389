// Package store provides the typed key-value abstraction behind jobwire's
// durable client state (notification lists, unread counts).
//
// The persistence mechanism is swappable without touching business logic:
// in-memory for tests, a local SQLite file standing in for browser storage,
// or Postgres when the core runs server-hosted.
package store

import (
	"context"
	"errors"
	"fmt"

	"jobwire/cmd/internal/identity"
)

// KV is a namespaced string-keyed byte store.
//
// Requirements:
//   - Set overwrites atomically per key.
//   - Get reports presence explicitly (absent key is not an error).
//   - Delete of an absent key is a no-op.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// ErrClosed is returned by adapters after Close.
var ErrClosed = errors.New("store: closed")

// Keys are namespaced per surface so seeker and company state never
// cross-contaminate.

// NotificationsKey is the persisted notification list for a surface.
func NotificationsKey(kind identity.Kind) string {
	return fmt.Sprintf("jobwire:notifications:%s", kind)
}

// UnreadKey is the persisted unread-message count for a surface.
func UnreadKey(kind identity.Kind) string {
	return fmt.Sprintf("jobwire:unread:%s", kind)
}
