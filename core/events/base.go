package events

import "time"

// Kind names the type of an event, e.g. "call.prompt"
type Kind string

func (k Kind) String() string { return string(k) }

// Event is anything that flows into or out of a call
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base carries the fields every event shares. Embed it and build it with
// NewBase so the timestamp records when the event was created.
type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}

// Age is how long before now the event was created. Events without a
// timestamp have no age.
func Age(event Event, now time.Time) time.Duration {
	created := event.Timestamp()
	if created.IsZero() || now.Before(created) {
		return 0
	}
	return now.Sub(created)
}
