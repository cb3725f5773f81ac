package events

const (
	// KindTurnFailed identifies a failed turn.
	KindTurnFailed Kind = "turn_state.failed"
	// KindTurnCancelled identifies turn cancellation.
	KindTurnCancelled Kind = "turn_state.cancelled"
)

// TurnFailed reports a failure of the current turn to the caller's transport.
type TurnFailed struct {
	Base
	Message string
}

// NewTurnFailed creates a turn failed event.
func NewTurnFailed(message string) TurnFailed {
	return TurnFailed{Base: NewBase(KindTurnFailed), Message: message}
}

// TurnCancelled marks cancellation of the current turn.
type TurnCancelled struct{ Base }

// NewTurnCancelled creates a turn cancelled event.
func NewTurnCancelled() TurnCancelled {
	return TurnCancelled{Base: NewBase(KindTurnCancelled)}
}
