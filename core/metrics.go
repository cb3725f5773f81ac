package orchestration

import (
	"time"

	"github.com/koscakluka/ema-relay/core/events"
	"github.com/koscakluka/ema-relay/core/turncompletion"
)

// Generation outcomes reported to Metrics.
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// Metrics receives counters from the orchestrator. Implementations must be
// safe for concurrent use.
type Metrics interface {
	CallStarted()
	CallEnded()
	EventReceived(kind events.Kind)
	GenerationFinished(outcome string, duration time.Duration)
	ClassifierDecision(decision turncompletion.Decision)
	StoreFailure(operation string)
	Interruption(matched bool)
}

type noopMetrics struct{}

func (noopMetrics) CallStarted()                               {}
func (noopMetrics) CallEnded()                                 {}
func (noopMetrics) EventReceived(events.Kind)                  {}
func (noopMetrics) GenerationFinished(string, time.Duration)   {}
func (noopMetrics) ClassifierDecision(turncompletion.Decision) {}
func (noopMetrics) StoreFailure(string)                        {}
func (noopMetrics) Interruption(bool)                          {}
