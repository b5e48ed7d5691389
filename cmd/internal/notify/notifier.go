package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"jobwire/cmd/internal/identity"
	"jobwire/cmd/internal/realtime"
	v1 "jobwire/shared/contracts/realtime/v1"
)

// ToastSink surfaces a transient alert for a freshly arrived record.
type ToastSink interface {
	Show(ctx context.Context, title, message string)
}

// LogToasts writes toasts to the structured log (default sink; UIs replace it).
type LogToasts struct {
	Log *slog.Logger
}

// Show logs the toast.
func (t LogToasts) Show(_ context.Context, title, message string) {
	t.Log.Info("toast", "title", title, "message", message)
}

// Notifier binds one surface's notification events to its Buffer.
//
// The user surface gates job details behind a subscription-feature flag and
// substitutes a redacted body when the feature is absent. This is a product
// rule enforced client-side only, not an access-control boundary: the full
// payload still crosses the wire.
type Notifier struct {
	log     *slog.Logger
	surface identity.Kind
	buf     *Buffer
	toasts  ToastSink

	self       func() identity.Identity
	subscribed func() bool
}

// NewNotifier constructs a Notifier for one surface.
// self reports the active identity; subscribed reports the user surface's
// subscription-feature flag (ignored for the company surface, may be nil).
func NewNotifier(log *slog.Logger, surface identity.Kind, buf *Buffer, toasts ToastSink, self func() identity.Identity, subscribed func() bool) *Notifier {
	if toasts == nil {
		toasts = LogToasts{Log: log}
	}
	if subscribed == nil {
		subscribed = func() bool { return true }
	}
	return &Notifier{
		log:        log,
		surface:    surface,
		buf:        buf,
		toasts:     toasts,
		self:       self,
		subscribed: subscribed,
	}
}

func (n *Notifier) owner() string {
	return "notify:" + string(n.surface)
}

// Bind registers one listener per recognized event kind for this surface.
// The manager re-binds the listeners across reconnects; Unbind detaches them.
func (n *Notifier) Bind(mgr *realtime.Manager) {
	switch n.surface {
	case identity.KindUser:
		mgr.Subscribe(n.owner(), v1.EventNewJob, n.onNewJob)
		mgr.Subscribe(n.owner(), v1.EventApplicationStatusUpdate, n.onStatusUpdate)
	case identity.KindCompany:
		mgr.Subscribe(n.owner(), v1.EventNewApplication, n.onNewApplication)
	}
}

// Unbind removes every listener this notifier registered.
func (n *Notifier) Unbind(mgr *realtime.Manager) {
	mgr.UnsubscribeOwner(n.owner())
}

func (n *Notifier) onNewJob(data json.RawMessage) {
	if n.self().Kind != identity.KindUser {
		return
	}

	var p v1.NewJobPayload
	if err := json.Unmarshal(data, &p); err != nil {
		n.log.Info("notify.event.malformed", "event", v1.EventNewJob, "err", err)
		return
	}

	title := "New job posted"
	message := fmt.Sprintf("%s is hiring: %s (%s)", p.Company, p.Title, p.Location)
	if !n.subscribed() {
		message = "Subscribe to see new job details"
	}

	n.apply(KindNewJob, title, message, data)
}

func (n *Notifier) onStatusUpdate(data json.RawMessage) {
	if n.self().Kind != identity.KindUser {
		return
	}

	var p v1.ApplicationStatusUpdatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		n.log.Info("notify.event.malformed", "event", v1.EventApplicationStatusUpdate, "err", err)
		return
	}

	title := "Application update"
	message := fmt.Sprintf("Your application for %s at %s is now %s", p.JobTitle, p.Company, p.Status)
	if !n.subscribed() {
		message = "Subscribe to see application updates"
	}

	n.apply(KindApplicationStatusUpdate, title, message, data)
}

func (n *Notifier) onNewApplication(data json.RawMessage) {
	self := n.self()
	if self.Kind != identity.KindCompany {
		return
	}

	var p v1.NewApplicationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		n.log.Info("notify.event.malformed", "event", v1.EventNewApplication, "err", err)
		return
	}

	// Company events route by the company id carried in the payload.
	if p.CompanyID != self.ID {
		return
	}

	title := "New application"
	message := fmt.Sprintf("%s applied for %s", p.ApplicantName, p.JobTitle)

	n.apply(KindNewApplication, title, message, data)
}

func (n *Notifier) apply(kind, title, message string, payload json.RawMessage) {
	rec, err := newRecord(kind, title, message, payload)
	if err != nil {
		n.log.Error("notify.record.id", "err", err)
		return
	}

	ctx := context.Background()
	if err := n.buf.Prepend(ctx, rec); err != nil {
		n.log.Error("notify.persist.fail", "kind", kind, "err", err)
	}
	n.toasts.Show(ctx, title, message)
}
