package llm

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-relay/core/conversations"
	"github.com/koscakluka/ema-relay/core/llms"
	"github.com/koscakluka/ema-relay/core/turncompletion"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 5
)

type LLM any

type LLMWithGeneralPrompt interface {
	Prompt(ctx context.Context, prompt string, opts ...llms.GeneralPromptOption) (*llms.Message, error)
}

type LLMWithStructuredPrompt interface {
	PromptWithStructure(ctx context.Context, prompt string, outputSchema any, opts ...llms.StructuredPromptOption) error
}

// Classifier asks an LLM whether the caller finished speaking. Every failure
// resolves to turncompletion.Done so that a broken classifier can never keep
// the assistant silent.
type Classifier struct {
	llm   LLM
	model string
}

type ClassifierOption func(*Classifier)

// WithModel overrides the model used for classification
func WithModel(model string) ClassifierOption {
	return func(c *Classifier) {
		c.model = model
	}
}

// NewClassifierWithGeneralPrompt creates a classifier that asks for a single
// digit answer.
func NewClassifierWithGeneralPrompt(classificationLLM LLMWithGeneralPrompt, opts ...ClassifierOption) *Classifier {
	return newClassifier(generalOnly{classificationLLM}, opts...)
}

// NewClassifierWithStructuredPrompt creates a classifier that asks for a
// JSON answer constrained by a schema.
func NewClassifierWithStructuredPrompt(classificationLLM LLMWithStructuredPrompt, opts ...ClassifierOption) *Classifier {
	return newClassifier(structuredOnly{classificationLLM}, opts...)
}

func newClassifier(llm LLM, opts ...ClassifierOption) *Classifier {
	c := &Classifier{llm: llm, model: DefaultModel}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ turncompletion.Classifier = (*Classifier)(nil)

func (c *Classifier) IsDone(ctx context.Context, log conversations.Log) (decision turncompletion.Decision) {
	ctx, span := tracer.Start(ctx, "classify turn completion")
	defer span.End()
	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("turn completion classifier panicked: %v", recovered)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.ErrorContext(ctx, "turn completion classification panicked, assuming done", "panic", recovered)
			decision = turncompletion.Done
		}
	}()

	lastAssistant, ok := log.Last(llms.RoleAssistant)
	if !ok {
		span.SetAttributes(attribute.String("turn_completion.skipped", "no assistant turn"))
		return turncompletion.Done
	}
	lastUser, ok := log.Last(llms.RoleUser)
	if !ok {
		span.SetAttributes(attribute.String("turn_completion.skipped", "no user turn"))
		return turncompletion.Done
	}

	decision, err := classify(ctx, c.llm, lastAssistant.Content, lastUser.Content,
		llms.WithModel(c.model),
		llms.WithTemperature(0),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "turn completion classification failed, assuming done", "error", err)
		decision = turncompletion.Done
	}

	span.SetAttributes(attribute.String("turn_completion.decision", decision.String()))
	return decision
}

// generalOnly and structuredOnly pin the prompting style when a client
// implements both.
type generalOnly struct{ LLMWithGeneralPrompt }

type structuredOnly struct{ LLMWithStructuredPrompt }
