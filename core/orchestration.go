// Package orchestration runs the conversation turn engine of voice calls.
//
// Each call is served by a Call that processes inbound events one at a
// time. Responses are generated on a separate goroutine so that a new
// prompt or an interruption can supersede a generation at any point.
package orchestration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/koscakluka/ema-relay/core/events"
	"github.com/koscakluka/ema-relay/core/prompts"
	"github.com/koscakluka/ema-relay/core/store"
	"github.com/koscakluka/ema-relay/core/turncompletion"
)

const (
	defaultNotDoneWaitSeconds = 10
	defaultWaitTick           = time.Second
)

var (
	ErrLLMNotConfigured      = errors.New("llm is not configured")
	ErrOrchestratorClosed    = errors.New("orchestrator is closed")
	ErrMissingCallID         = errors.New("call id is required")
	ErrGenerationCancelled   = errors.New("generation cancelled")
	errUnsupportedLLMVariant = errors.New("llm supports neither streaming nor general prompts")
)

// Orchestrator keeps the calls in progress and routes inbound events to
// them.
type Orchestrator struct {
	llm           LLM
	responseModel string
	classifier    turncompletion.Classifier
	sessions      store.SessionStore
	users         store.UserDirectory
	prompts       PromptSource
	metrics       Metrics
	summarizer    *Summarizer

	waitSeconds   int
	waitTick      time.Duration
	speakGreeting bool
	now           func() time.Time

	baseContext context.Context

	mu     sync.RWMutex
	calls  map[string]*Call
	closed bool

	// background tracks work that outlives a call, like summaries.
	background sync.WaitGroup
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		classifier:  turncompletion.AlwaysDone,
		metrics:     noopMetrics{},
		waitSeconds: defaultNotDoneWaitSeconds,
		waitTick:    defaultWaitTick,
		now:         time.Now,
		baseContext: context.Background(),
		calls:       map[string]*Call{},
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.sessions == nil || o.users == nil {
		memory := store.NewMemory()
		if o.sessions == nil {
			o.sessions = memory
		}
		if o.users == nil {
			o.users = memory
		}
	}

	if o.prompts == nil {
		source, err := prompts.New()
		if err != nil {
			logger.Error("failed to load built-in prompts", "error", err)
		} else {
			o.prompts = source
		}
	}

	return o
}

// StartCall registers the call described by setup and starts processing
// its events. Events produced for the caller are sent to sink.
//
// connID identifies the transport connection the call arrived on. A repeated
// setup on the same connection returns the running call, a setup for the
// same call on another connection replaces the running call.
func (o *Orchestrator) StartCall(ctx context.Context, connID string, setup events.Setup, sink Sink) (*Call, error) {
	if setup.CallID == "" {
		return nil, ErrMissingCallID
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrOrchestratorClosed
	}

	previous, exists := o.calls[setup.CallID]
	if exists && previous.connID == connID {
		o.mu.Unlock()
		previous.enqueue(setup)
		return previous, nil
	}

	call := newCall(o, setup.CallID, connID, sink)
	o.calls[setup.CallID] = call
	o.mu.Unlock()

	if exists {
		logger.InfoContext(ctx, "call moved to a new connection", "call_id", setup.CallID)
		o.finishCall(previous)
	}

	o.metrics.CallStarted()
	call.start()
	call.enqueue(setup)
	return call, nil
}

// Dispatch hands event to the call with callID. It returns false when the
// call is unknown or already ended, in which case the event is dropped.
func (o *Orchestrator) Dispatch(callID string, event events.Event) bool {
	o.mu.RLock()
	call, ok := o.calls[callID]
	o.mu.RUnlock()

	if !ok {
		logger.Warn("dropping event for unknown call", "call_id", callID, "kind", string(event.Kind()))
		return false
	}

	return call.enqueue(event)
}

// Call returns the running call with callID
func (o *Orchestrator) Call(callID string) (*Call, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	call, ok := o.calls[callID]
	return call, ok
}

func (o *Orchestrator) ActiveCalls() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.calls)
}

// EndCall ends the call with callID if it is still served on connID. Any
// in-flight generation is cancelled and its output discarded.
func (o *Orchestrator) EndCall(callID, connID string) {
	o.mu.Lock()
	call, ok := o.calls[callID]
	if !ok || call.connID != connID {
		o.mu.Unlock()
		return
	}
	delete(o.calls, callID)
	o.mu.Unlock()

	o.finishCall(call)
}

// Close ends every call and waits for background work to finish.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	calls := make([]*Call, 0, len(o.calls))
	for _, call := range o.calls {
		calls = append(calls, call)
	}
	o.calls = map[string]*Call{}
	o.mu.Unlock()

	for _, call := range calls {
		o.finishCall(call)
	}
	o.background.Wait()
}

func (o *Orchestrator) finishCall(call *Call) {
	if !call.close() {
		return
	}
	o.metrics.CallEnded()

	if o.summarizer == nil {
		return
	}

	session := call.Session()
	if len(session.Log.Dialogue()) == 0 {
		return
	}

	o.background.Add(1)
	go func() {
		defer o.background.Done()
		o.summarize(session, call.startedAt)
	}()
}
