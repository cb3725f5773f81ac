package orchestration

import "github.com/koscakluka/ema-relay/core/conversations"

// State is the lifecycle state of a call session
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateGenerating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateGenerating:
		return "generating"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CallSession is the conversation state of one call.
type CallSession struct {
	CallID string
	UserID string
	Log    conversations.Log
	State  State

	// generation is the in-flight response generation, at most one per
	// call.
	generation *CancellationHandle
}

// GenerationID returns the id of the in-flight generation, if there is one.
func (s CallSession) GenerationID() (uint64, bool) {
	if s.generation == nil {
		return 0, false
	}
	return s.generation.ID(), true
}
