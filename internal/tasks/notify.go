package tasks

import "time"

// Event is a user-facing notice about task progress.
type Event struct {
	At      time.Time
	Level   LogLevel
	TaskID  string
	Message string
}

// Notifier receives task events. Implementations must not block.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

// Notify implements Notifier.
func (f NotifierFunc) Notify(e Event) { f(e) }

type discardNotifier struct{}

func (discardNotifier) Notify(Event) {}
