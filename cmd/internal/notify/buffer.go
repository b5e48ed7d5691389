package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"jobwire/cmd/internal/identity"
	"jobwire/cmd/internal/store"
)

// Buffer is the ordered (newest-first) notification list for one surface.
//
// Every mutation synchronously rewrites the full list to the surface's
// storage key, so the list survives reloads. Duplicate deliveries of the
// same logical server event produce distinct records: ids are generated
// locally, and no cross-delivery dedup is performed.
type Buffer struct {
	log *slog.Logger
	kv  store.KV
	key string

	mu   sync.Mutex
	recs []Record
}

// NewBuffer constructs a Buffer and hydrates it from storage.
// A corrupt or unreadable persisted list degrades to empty with a log line.
func NewBuffer(ctx context.Context, log *slog.Logger, kv store.KV, surface identity.Kind) *Buffer {
	b := &Buffer{
		log: log,
		kv:  kv,
		key: store.NotificationsKey(surface),
	}

	raw, ok, err := kv.Get(ctx, b.key)
	if err != nil {
		log.Info("notify.hydrate.fail", "key", b.key, "err", err)
		return b
	}
	if !ok {
		return b
	}
	if err := json.Unmarshal(raw, &b.recs); err != nil {
		log.Info("notify.hydrate.corrupt", "key", b.key, "err", err)
		b.recs = nil
	}
	return b
}

// Prepend inserts rec at the head of the list (newest first) and persists.
func (b *Buffer) Prepend(ctx context.Context, rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.recs = append([]Record{rec}, b.recs...)
	return b.persistLocked(ctx)
}

// ClearOne removes a single record by id and persists.
func (b *Buffer) ClearOne(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	dst := b.recs[:0]
	for _, r := range b.recs {
		if r.ID != id {
			dst = append(dst, r)
		}
	}
	b.recs = dst
	return b.persistLocked(ctx)
}

// ClearAll empties the list and persists.
func (b *Buffer) ClearAll(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.recs = nil
	return b.persistLocked(ctx)
}

// List returns a snapshot of the records, newest first.
func (b *Buffer) List() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Record(nil), b.recs...)
}

// Len returns the current record count.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.recs)
}

func (b *Buffer) persistLocked(ctx context.Context) error {
	raw, err := json.Marshal(b.recs)
	if err != nil {
		return err
	}
	return b.kv.Set(ctx, b.key, raw)
}
