package orchestration

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/koscakluka/ema-relay/core/conversations"
	"github.com/koscakluka/ema-relay/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

//go:embed summaryInstr.txt
var summaryInstructions string

const (
	DefaultSummaryModel = "gpt-4o-mini"
	NoSummary           = "No summary available"

	summaryMaxTokens   = 500
	summaryTemperature = 0.3
	summaryTimeout     = 30 * time.Second
)

// Summarizer writes a short factual summary of a finished call.
type Summarizer struct {
	llm      LLMWithGeneralPrompt
	model    string
	location *time.Location
}

type SummarizerOption func(*Summarizer)

func WithSummaryModel(model string) SummarizerOption {
	return func(s *Summarizer) {
		s.model = model
	}
}

// WithSummaryLocation sets the time zone the call date is rendered in
func WithSummaryLocation(location *time.Location) SummarizerOption {
	return func(s *Summarizer) {
		if location != nil {
			s.location = location
		}
	}
}

func NewSummarizer(llm LLMWithGeneralPrompt, opts ...SummarizerOption) *Summarizer {
	s := &Summarizer{llm: llm, model: DefaultSummaryModel, location: time.UTC}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize summarizes the dialogue of log. startedAt is when the call took
// place. An empty answer from the model yields NoSummary.
func (s *Summarizer) Summarize(ctx context.Context, log conversations.Log, startedAt time.Time) (string, error) {
	local := startedAt.In(s.location)
	prompt := fmt.Sprintf("Please summarize this life coaching conversation that took place on %s at %s:\n\n%s",
		local.Format("Monday, January 2, 2006"),
		local.Format("3:04 PM"),
		log.Transcript("User", "Coach"),
	)

	message, err := s.llm.Prompt(ctx, prompt,
		llms.WithSystemPrompt(strings.TrimSpace(summaryInstructions)),
		llms.WithModel(s.model),
		llms.WithMaxTokens(summaryMaxTokens),
		llms.WithTemperature(summaryTemperature),
	)
	if err != nil {
		return "", fmt.Errorf("failed to summarize conversation: %w", err)
	}

	if message == nil {
		return NoSummary, nil
	}
	if summary := strings.TrimSpace(message.Content); summary != "" {
		return summary, nil
	}
	return NoSummary, nil
}

func (o *Orchestrator) summarize(session CallSession, startedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.baseContext), summaryTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "summarize call", trace.WithAttributes(
		attribute.String("call.id", session.CallID),
	))
	defer span.End()

	summary, err := o.summarizer.Summarize(ctx, session.Log, startedAt)
	if err == nil {
		err = o.sessions.SaveSummary(ctx, session.CallID, summary)
		if err != nil {
			o.metrics.StoreFailure("save_summary")
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("failed to summarize call", "call_id", session.CallID, "error", err)
		return
	}

	logger.Info("call summary saved", "call_id", session.CallID)
}
