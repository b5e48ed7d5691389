package chat

import (
	"context"
	"errors"

	"jobwire/cmd/internal/identity"
)

// Summary is a counterpart directory entry.
type Summary struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// HistoryClient fetches the persisted threads for an identity.
type HistoryClient interface {
	FetchThreads(ctx context.Context, self identity.Identity) ([]Thread, error)
}

// DirectoryClient searches the counterpart directory.
type DirectoryClient interface {
	Search(ctx context.Context, query string) ([]Summary, error)
}

// Conn emits named events over the live connection.
// The realtime manager satisfies it; an absent connection yields
// realtime.ErrNotConnected.
type Conn interface {
	Emit(ctx context.Context, event string, payload any) error
}

// Sentinel errors (programmer errors raise; network failures do not).
var (
	// ErrNoActiveThread is returned when sending without a selected thread.
	ErrNoActiveThread = errors.New("chat: no active thread")
	// ErrEmptyContent is returned when sending an empty message.
	ErrEmptyContent = errors.New("chat: empty content")
)
