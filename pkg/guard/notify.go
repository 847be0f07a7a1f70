package guard

import (
	"context"
	"sync"
	"time"

	"github.com/psantana5/callguard/pkg/logging"
)

// Notification is one short, user-facing message.
type Notification struct {
	Operation string
	Kind      Kind
	Message   string
	Time      time.Time
}

// Notifier displays notifications to the user. Delivery is fire-and-forget:
// the guard ignores whatever happens inside Notify, panics included.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Notifiers fans a notification out to every member.
type Notifiers []Notifier

// Notify calls every member in order.
func (ns Notifiers) Notify(ctx context.Context, n Notification) {
	for _, each := range ns {
		if each != nil {
			each.Notify(ctx, n)
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) {}

// LogNotifier writes notifications to a logger instead of a screen.
type LogNotifier struct {
	Logger *logging.Logger
}

// Notify logs n at INFO.
func (n LogNotifier) Notify(_ context.Context, note Notification) {
	n.Logger.Info(note.Message, logging.Fields{"operation": note.Operation, "kind": note.Kind.String()})
}

// Recorder keeps every notification it receives.
type Recorder struct {
	mu    sync.Mutex
	notes []Notification
}

// Notify records n.
func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

// Notifications returns a copy of the recorded notifications.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.notes))
	copy(out, r.notes)
	return out
}

// Len returns the number of recorded notifications.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

// Last returns the most recent notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notes) == 0 {
		return Notification{}, false
	}
	return r.notes[len(r.notes)-1], true
}
