package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-relay/core/conversations"
	"github.com/koscakluka/ema-relay/core/events"
	"github.com/koscakluka/ema-relay/core/llms"
	"github.com/koscakluka/ema-relay/core/store"
)

func TestEndCallStopsProcessingEvents(t *testing.T) {
	o := NewOrchestrator(WithPrompts(fixedPrompts{system: "sys"}))
	defer o.Close()

	call, err := o.StartCall(context.Background(), "conn-1", events.NewSetup("CA1", "+15550100"), nil)
	if err != nil {
		t.Fatalf("failed to start call: %v", err)
	}

	o.EndCall("CA1", "conn-1")

	select {
	case <-call.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for call to stop")
	}

	if dispatched := o.Dispatch("CA1", events.NewPrompt("hello?")); dispatched {
		t.Fatalf("expected prompt after end of call to be dropped")
	}
	if state := call.Session().State; state != StateClosed {
		t.Fatalf("expected closed state, got %s", state)
	}
	if active := o.ActiveCalls(); active != 0 {
		t.Fatalf("expected no active calls, got %d", active)
	}
}

func TestEndCallFromStaleConnectionIsIgnored(t *testing.T) {
	o := NewOrchestrator(WithPrompts(fixedPrompts{system: "sys"}))
	defer o.Close()

	if _, err := o.StartCall(context.Background(), "conn-1", events.NewSetup("CA1", ""), nil); err != nil {
		t.Fatalf("failed to start call: %v", err)
	}

	o.EndCall("CA1", "conn-2")

	if _, ok := o.Call("CA1"); !ok {
		t.Fatalf("expected call to keep running")
	}
}

func TestDispatchToUnknownCallIsDropped(t *testing.T) {
	o := NewOrchestrator()
	defer o.Close()

	if o.Dispatch("missing", events.NewPrompt("hi")) {
		t.Fatalf("expected event for unknown call to be dropped")
	}
}

func TestStartCallRequiresCallID(t *testing.T) {
	o := NewOrchestrator()
	defer o.Close()

	if _, err := o.StartCall(context.Background(), "conn-1", events.NewSetup("", ""), nil); !errors.Is(err, ErrMissingCallID) {
		t.Fatalf("expected ErrMissingCallID, got %v", err)
	}
}

func TestStartCallAfterCloseFails(t *testing.T) {
	o := NewOrchestrator()
	o.Close()

	if _, err := o.StartCall(context.Background(), "conn-1", events.NewSetup("CA1", ""), nil); !errors.Is(err, ErrOrchestratorClosed) {
		t.Fatalf("expected ErrOrchestratorClosed, got %v", err)
	}
}

func TestRepeatedSetupOnSameConnectionKeepsCall(t *testing.T) {
	memory := store.NewMemory()
	o := NewOrchestrator(WithSessionStore(memory), WithUserDirectory(memory), WithPrompts(fixedPrompts{system: "sys"}))
	defer o.Close()

	first, err := o.StartCall(context.Background(), "conn-1", events.NewSetup("CA1", ""), nil)
	if err != nil {
		t.Fatalf("failed to start call: %v", err)
	}
	second, err := o.StartCall(context.Background(), "conn-1", events.NewSetup("CA1", ""), nil)
	if err != nil {
		t.Fatalf("failed to repeat setup: %v", err)
	}

	if first != second {
		t.Fatalf("expected repeated setup to return the running call")
	}

	waitForCondition(t, 2*time.Second, "call to become ready", func() bool {
		return first.Session().State == StateReady
	})
	if log := first.Session().Log; len(log) != 1 {
		t.Fatalf("expected only the system turn, got %v", log)
	}
}

func TestSetupOnNewConnectionReplacesCall(t *testing.T) {
	o := NewOrchestrator(WithPrompts(fixedPrompts{system: "sys"}))
	defer o.Close()

	first, err := o.StartCall(context.Background(), "conn-1", events.NewSetup("CA1", ""), nil)
	if err != nil {
		t.Fatalf("failed to start call: %v", err)
	}
	second, err := o.StartCall(context.Background(), "conn-2", events.NewSetup("CA1", ""), nil)
	if err != nil {
		t.Fatalf("failed to start replacement call: %v", err)
	}

	if first == second {
		t.Fatalf("expected a new call for the new connection")
	}
	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for replaced call to stop")
	}
	if current, _ := o.Call("CA1"); current != second {
		t.Fatalf("expected replacement call to be registered")
	}
}

func TestCloseCancelsInFlightGeneration(t *testing.T) {
	sink := &recordingSink{}
	o := NewOrchestrator(
		WithStreamingLLM(repeatingStreamLLMStub{chunk: "chunk", interval: 10 * time.Millisecond}),
		WithPrompts(fixedPrompts{system: "sys"}),
	)

	if _, err := o.StartCall(context.Background(), "conn-1", events.NewSetup("CA1", ""), sink); err != nil {
		t.Fatalf("failed to start call: %v", err)
	}
	o.Dispatch("CA1", events.NewPrompt("talk forever"))

	waitForCondition(t, 2*time.Second, "response to start", func() bool {
		return sink.count(events.KindPartialText) > 0
	})

	o.Close()

	emitted := sink.count(events.KindPartialText)
	time.Sleep(50 * time.Millisecond)
	if after := sink.count(events.KindPartialText); after != emitted {
		t.Fatalf("expected no output after close, got %d more fragments", after-emitted)
	}
	if sink.count(events.KindEndOfTurn) != 0 {
		t.Fatalf("expected no end of turn for a cancelled generation")
	}
}

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (sink *recordingSink) Emit(event events.Event) {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.events = append(sink.events, event)
}

func (sink *recordingSink) snapshot() []events.Event {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	return append([]events.Event(nil), sink.events...)
}

func (sink *recordingSink) count(kind events.Kind) int {
	count := 0
	for _, event := range sink.snapshot() {
		if event.Kind() == kind {
			count++
		}
	}
	return count
}

func (sink *recordingSink) text() string {
	var b strings.Builder
	for _, event := range sink.snapshot() {
		if partial, ok := event.(events.PartialText); ok {
			b.WriteString(partial.Fragment)
		}
	}
	return b.String()
}

type fixedPrompts struct {
	system   string
	greeting string
}

func (p fixedPrompts) WelcomeGreeting() string       { return p.greeting }
func (p fixedPrompts) SystemPrompt(time.Time) string { return p.system }

type promptLLMStub struct {
	response string
	err      error
}

func (stub promptLLMStub) Prompt(context.Context, string, ...llms.GeneralPromptOption) (*llms.Message, error) {
	if stub.err != nil {
		return nil, stub.err
	}
	return &llms.Message{Content: stub.response}, nil
}

// nilMessageLLMStub answers every prompt with neither a message nor an error
type nilMessageLLMStub struct{}

func (nilMessageLLMStub) Prompt(context.Context, string, ...llms.GeneralPromptOption) (*llms.Message, error) {
	return nil, nil
}

// supersededStreamLLM streams first until the request is cancelled, later
// requests stream rest.
type supersededStreamLLM struct {
	first string
	rest  []string

	mu       sync.Mutex
	requests [][]llms.Turn
}

func (stub *supersededStreamLLM) PromptWithStream(_ context.Context, _ *string, opts ...llms.StreamingPromptOption) llms.Stream {
	options := llms.StreamingPromptOptions{}
	for _, opt := range opts {
		opt.ApplyToStreaming(&options)
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	stub.requests = append(stub.requests, options.Turns)
	if len(stub.requests) == 1 {
		return repeatingStreamStub{chunk: stub.first, interval: 10 * time.Millisecond}
	}
	return scriptedStreamStub{chunks: stub.rest}
}

func (stub *supersededStreamLLM) recordedRequests() [][]llms.Turn {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	return append([][]llms.Turn(nil), stub.requests...)
}

// recordingStreamLLM streams chunks and records the turns of every request.
type recordingStreamLLM struct {
	chunks []string
	err    error

	mu       sync.Mutex
	requests [][]llms.Turn
}

func (stub *recordingStreamLLM) PromptWithStream(_ context.Context, _ *string, opts ...llms.StreamingPromptOption) llms.Stream {
	options := llms.StreamingPromptOptions{}
	for _, opt := range opts {
		opt.ApplyToStreaming(&options)
	}

	stub.mu.Lock()
	stub.requests = append(stub.requests, options.Turns)
	stub.mu.Unlock()

	return scriptedStreamStub{chunks: stub.chunks, err: stub.err}
}

func (stub *recordingStreamLLM) recordedRequests() [][]llms.Turn {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	return append([][]llms.Turn(nil), stub.requests...)
}

type scriptedStreamStub struct {
	chunks []string
	err    error
}

func (stub scriptedStreamStub) Chunks(context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for _, chunk := range stub.chunks {
			if !yield(streamContentChunkStub{content: chunk}, nil) {
				return
			}
		}
		if stub.err != nil {
			yield(nil, stub.err)
		}
	}
}

type repeatingStreamLLMStub struct {
	chunk    string
	interval time.Duration
}

func (stub repeatingStreamLLMStub) PromptWithStream(context.Context, *string, ...llms.StreamingPromptOption) llms.Stream {
	return repeatingStreamStub{
		chunk:    stub.chunk,
		interval: stub.interval,
	}
}

type repeatingStreamStub struct {
	chunk    string
	interval time.Duration
}

func (stub repeatingStreamStub) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		ticker := time.NewTicker(stub.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !yield(streamContentChunkStub{content: stub.chunk}, nil) {
					return
				}
			}
		}
	}
}

type streamContentChunkStub struct {
	content string
}

func (chunk streamContentChunkStub) FinishReason() *string {
	return nil
}

func (chunk streamContentChunkStub) Content() string {
	return chunk.content
}

// failingSaveStore is a memory store whose Save always fails
type failingSaveStore struct {
	*store.Memory
}

func (failingSaveStore) Save(context.Context, string, conversations.Log) error {
	return errors.New("database unavailable")
}

type recordingMetrics struct {
	noopMetrics

	mu            sync.Mutex
	interruptions []bool
	outcomes      []string
	storeFailures []string
}

func (m *recordingMetrics) Interruption(matched bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interruptions = append(m.interruptions, matched)
}

func (m *recordingMetrics) GenerationFinished(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) StoreFailure(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeFailures = append(m.storeFailures, operation)
}

func (m *recordingMetrics) snapshot() (interruptions []bool, outcomes []string, storeFailures []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.interruptions...),
		append([]string(nil), m.outcomes...),
		append([]string(nil), m.storeFailures...)
}
