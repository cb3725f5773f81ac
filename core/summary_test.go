package orchestration

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/koscakluka/ema-relay/core/conversations"
	"github.com/koscakluka/ema-relay/core/llms"
)

func TestSummarizeFormatsConversation(t *testing.T) {
	llm := &capturingPromptLLM{response: "  - Goal: run  "}
	summarizer := NewSummarizer(llm)

	log := conversations.Log{
		llms.SystemTurn("sys"),
		llms.UserTurn("I want to run"),
		llms.AssistantTurn("How often?"),
	}
	startedAt := time.Date(2025, time.March, 7, 15, 4, 0, 0, time.UTC)

	summary, err := summarizer.Summarize(context.Background(), log, startedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != "- Goal: run" {
		t.Fatalf("expected trimmed summary, got %q", summary)
	}

	wantPrompt := "Please summarize this life coaching conversation that took place on Friday, March 7, 2025 at 3:04 PM:\n\nUser: I want to run\n\nCoach: How often?"
	if llm.prompt != wantPrompt {
		t.Fatalf("unexpected prompt:\n%s", llm.prompt)
	}
	if llm.options.Model != DefaultSummaryModel {
		t.Fatalf("expected model %s, got %s", DefaultSummaryModel, llm.options.Model)
	}
	if llm.options.MaxTokens != 500 {
		t.Fatalf("expected 500 max tokens, got %d", llm.options.MaxTokens)
	}
	if llm.options.Temperature == nil || *llm.options.Temperature != 0.3 {
		t.Fatalf("expected temperature 0.3, got %v", llm.options.Temperature)
	}
	if !strings.HasPrefix(llm.options.Instructions, "You are a factual summarizer") {
		t.Fatalf("unexpected instructions %q", llm.options.Instructions)
	}
}

func TestSummarizeFallsBackOnEmptyAnswer(t *testing.T) {
	summarizer := NewSummarizer(&capturingPromptLLM{response: "   "})

	summary, err := summarizer.Summarize(context.Background(), conversations.Log{llms.UserTurn("hi")}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != NoSummary {
		t.Fatalf("expected %q, got %q", NoSummary, summary)
	}
}

func TestSummarizeReturnsLLMError(t *testing.T) {
	summarizer := NewSummarizer(promptLLMStub{err: errors.New("rate limited")})

	if _, err := summarizer.Summarize(context.Background(), conversations.Log{llms.UserTurn("hi")}, time.Now()); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestSummarizeUsesConfiguredLocation(t *testing.T) {
	location := time.FixedZone("CST", -6*60*60)
	llm := &capturingPromptLLM{response: "ok"}
	summarizer := NewSummarizer(llm, WithSummaryLocation(location), WithSummaryModel("gpt-4o"))

	startedAt := time.Date(2025, time.March, 8, 2, 30, 0, 0, time.UTC)
	if _, err := summarizer.Summarize(context.Background(), conversations.Log{llms.UserTurn("hi")}, startedAt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(llm.prompt, "Friday, March 7, 2025 at 8:30 PM") {
		t.Fatalf("expected local date in prompt, got %q", llm.prompt)
	}
	if llm.options.Model != "gpt-4o" {
		t.Fatalf("expected configured model, got %s", llm.options.Model)
	}
}

type capturingPromptLLM struct {
	response string
	prompt   string
	options  llms.GeneralPromptOptions
}

func (stub *capturingPromptLLM) Prompt(_ context.Context, prompt string, opts ...llms.GeneralPromptOption) (*llms.Message, error) {
	stub.prompt = prompt
	stub.options = llms.GeneralPromptOptions{}
	for _, opt := range opts {
		opt.ApplyToGeneral(&stub.options)
	}
	return &llms.Message{Content: stub.response}, nil
}
