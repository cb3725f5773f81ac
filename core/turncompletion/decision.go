// Package turncompletion decides whether a caller has finished their
// utterance, or is only pausing, before the assistant answers.
package turncompletion

import (
	"context"

	"github.com/koscakluka/ema-relay/core/conversations"
)

// Decision is the outcome of turn-completion classification
type Decision int

const (
	// Done means the assistant should respond now.
	Done Decision = iota
	// NotDone means the caller is probably still speaking and the assistant
	// should wait before responding.
	NotDone
)

func (d Decision) String() string {
	switch d {
	case Done:
		return "done"
	case NotDone:
		return "not_done"
	default:
		return "unknown"
	}
}

// Classifier decides whether the caller is done speaking given the
// aggregated conversation. Implementations never fail, they fall back to
// Done instead.
type Classifier interface {
	IsDone(ctx context.Context, log conversations.Log) Decision
}

// ClassifierFunc adapts a function to the Classifier interface
type ClassifierFunc func(ctx context.Context, log conversations.Log) Decision

func (f ClassifierFunc) IsDone(ctx context.Context, log conversations.Log) Decision {
	return f(ctx, log)
}

// AlwaysDone never makes the assistant wait.
var AlwaysDone Classifier = ClassifierFunc(func(context.Context, conversations.Log) Decision { return Done })
