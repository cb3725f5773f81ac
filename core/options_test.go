package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/koscakluka/ema-relay/core/conversations"
	"github.com/koscakluka/ema-relay/core/turncompletion"
)

func TestNewOrchestratorDefaults(t *testing.T) {
	o := NewOrchestrator()
	defer o.Close()

	if o.waitSeconds != defaultNotDoneWaitSeconds {
		t.Fatalf("expected default wait of %d seconds, got %d", defaultNotDoneWaitSeconds, o.waitSeconds)
	}
	if o.waitTick != time.Second {
		t.Fatalf("expected one second ticks, got %s", o.waitTick)
	}
	if o.sessions == nil || o.users == nil {
		t.Fatalf("expected an in-memory store by default")
	}
	if o.prompts == nil {
		t.Fatalf("expected built-in prompts by default")
	}
	if o.speakGreeting {
		t.Fatalf("expected greeting to be off by default")
	}
	if decision := o.classifier.IsDone(context.Background(), nil); decision != turncompletion.Done {
		t.Fatalf("expected default classifier to respond immediately, got %s", decision)
	}
}

func TestWithNotDoneWaitIgnoresNegativeValues(t *testing.T) {
	o := NewOrchestrator(WithNotDoneWait(-1))
	defer o.Close()

	if o.waitSeconds != defaultNotDoneWaitSeconds {
		t.Fatalf("expected negative wait to be ignored, got %d", o.waitSeconds)
	}
}

func TestWithClassifierNilKeepsDefault(t *testing.T) {
	o := NewOrchestrator(WithClassifier(nil))
	defer o.Close()

	if o.classifier == nil {
		t.Fatalf("expected default classifier to be kept")
	}
}

func TestWithLLMPinsWholeMessageMode(t *testing.T) {
	o := NewOrchestrator(WithLLM(streamingAndPromptLLM{}))
	defer o.Close()

	if _, ok := o.llm.(LLMWithStream); ok {
		t.Fatalf("expected whole message mode to hide streaming support")
	}
	if _, ok := o.llm.(LLMWithGeneralPrompt); !ok {
		t.Fatalf("expected whole message mode to keep general prompts")
	}
}

func TestWithClassifierIsUsed(t *testing.T) {
	classifier := turncompletion.ClassifierFunc(func(context.Context, conversations.Log) turncompletion.Decision {
		return turncompletion.NotDone
	})
	o := NewOrchestrator(WithClassifier(classifier))
	defer o.Close()

	if decision := o.classifier.IsDone(context.Background(), nil); decision != turncompletion.NotDone {
		t.Fatalf("expected configured classifier, got %s", decision)
	}
}

type streamingAndPromptLLM struct {
	promptLLMStub
	repeatingStreamLLMStub
}
