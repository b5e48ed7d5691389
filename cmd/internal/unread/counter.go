// Package unread tracks the badge count of unseen chat messages for one
// surface, gated by the active route.
package unread

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"

	"jobwire/cmd/internal/identity"
	"jobwire/cmd/internal/realtime"
	"jobwire/cmd/internal/store"
	v1 "jobwire/shared/contracts/realtime/v1"
)

// Counter is one surface's unread-message badge.
//
// Invariants:
//   - Non-negative; no decrement other than full reset.
//   - While the chat route is active the count is force-held at 0 and the
//     persisted key is absent.
//   - Increments only for messages addressed to the active identity, sent by
//     someone else, while the chat route is not focused.
type Counter struct {
	log       *slog.Logger
	kv        store.KV
	key       string
	chatRoute string

	self func() identity.Identity

	mu    sync.Mutex
	route string
	n     int
}

// NewCounter constructs a Counter for one surface.
// If initialRoute is the chat route, the count starts at 0 and the persisted
// key is removed; otherwise the count hydrates from storage.
func NewCounter(ctx context.Context, log *slog.Logger, kv store.KV, surface identity.Kind, chatRoute, initialRoute string, self func() identity.Identity) *Counter {
	c := &Counter{
		log:       log,
		kv:        kv,
		key:       store.UnreadKey(surface),
		chatRoute: chatRoute,
		self:      self,
		route:     initialRoute,
	}

	if initialRoute == chatRoute {
		if err := kv.Delete(ctx, c.key); err != nil {
			log.Info("unread.reset.fail", "err", err)
		}
		return c
	}

	raw, ok, err := kv.Get(ctx, c.key)
	if err != nil {
		log.Info("unread.hydrate.fail", "err", err)
		return c
	}
	if !ok {
		return c
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 0 {
		log.Info("unread.hydrate.corrupt", "raw", string(raw))
		return c
	}
	c.n = n
	return c
}

func ownerFor(surface identity.Kind) string {
	return "unread:" + string(surface)
}

// Bind subscribes the counter to incoming-message events.
func (c *Counter) Bind(mgr *realtime.Manager, surface identity.Kind) {
	mgr.Subscribe(ownerFor(surface), v1.EventNewMessageArrived, func(data json.RawMessage) {
		var p v1.MessagePayload
		if err := json.Unmarshal(data, &p); err != nil {
			c.log.Info("unread.event.malformed", "err", err)
			return
		}
		c.Apply(p)
	})
}

// Unbind detaches the counter's listener.
func (c *Counter) Unbind(mgr *realtime.Manager, surface identity.Kind) {
	mgr.UnsubscribeOwner(ownerFor(surface))
}

// Apply increments the counter for a qualifying incoming message.
func (c *Counter) Apply(p v1.MessagePayload) {
	self := c.self()
	if self.IsNone() {
		return
	}

	recipient := p.OwnerUserID
	if self.Kind == identity.KindCompany {
		recipient = p.OwnerCompanyID
	}
	if recipient != self.ID {
		return
	}
	if p.SenderID == self.ID {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.route == c.chatRoute {
		return
	}
	c.n++
	c.persistLocked()
}

// OnRouteChange updates the active route. Entering the chat route resets the
// count to 0 and removes the persisted key; leaving it persists the value.
func (c *Counter) OnRouteChange(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.route
	c.route = path

	if path == c.chatRoute {
		c.n = 0
		if err := c.kv.Delete(context.Background(), c.key); err != nil {
			c.log.Info("unread.reset.fail", "err", err)
		}
		return
	}
	if prev == c.chatRoute {
		c.persistLocked()
	}
}

// Value returns the current badge count.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func (c *Counter) persistLocked() {
	if err := c.kv.Set(context.Background(), c.key, []byte(strconv.Itoa(c.n))); err != nil {
		c.log.Info("unread.persist.fail", "err", err)
	}
}
