// Package notifier
package notifier

// Notifier interface for sending notifications (e.g., Telegram). Routine
// messages go through Send; alerts that must not be lost to a transient
// delivery failure go through SendWithRetry.
type Notifier interface {
	Send(msg string) error
	SendWithRetry(msg string) error
}

// Noop drops every message. Used in dry runs and tests.
type Noop struct{}

func (Noop) Send(msg string) error          { return nil }
func (Noop) SendWithRetry(msg string) error { return nil }
