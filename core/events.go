package orchestration

import "github.com/koscakluka/ema-relay/core/events"

// Sink receives the events a call produces for the caller. Emit is called
// from the call's goroutines and must not block for long.
type Sink interface {
	Emit(event events.Event)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(event events.Event)

func (f SinkFunc) Emit(event events.Event) {
	f(event)
}

type noopSink struct{}

func (noopSink) Emit(events.Event) {}

const (
	kindGenerationStarted  events.Kind = "internal.generation_started"
	kindGenerationFinished events.Kind = "internal.generation_finished"
)

// generationStarted is posted once the generation stopped waiting for the
// caller and starts producing the response.
type generationStarted struct {
	events.Base
	handle *CancellationHandle
}

// generationFinished is posted by the generation goroutine when it exits.
type generationFinished struct {
	events.Base
	handle *CancellationHandle
	err    error
}
