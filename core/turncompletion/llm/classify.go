package llm

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/koscakluka/ema-relay/core/llms"
	"github.com/koscakluka/ema-relay/core/turncompletion"
)

//go:embed classifierInstr.tmpl
var turnCompletionSystemPrompt string

//go:embed classifierStructInstr.tmpl
var turnCompletionStructuredSystemPrompt string

//go:embed decisionPrompt.tmpl
var decisionPromptTemplate string

var errEmptyResponse = errors.New("turn completion classifier returned no message")

var decisionPrompt = template.Must(template.New("decision").Parse(decisionPromptTemplate))

type Classification struct {
	Done bool `json:"done" jsonschema:"title=Done,description=Whether the user has finished speaking"`
}

type decisionPromptData struct {
	Assistant string
	User      string
	Digits    bool
}

func renderDecisionPrompt(lastAssistant, lastUser string, digits bool) (string, error) {
	var b strings.Builder
	if err := decisionPrompt.Execute(&b, decisionPromptData{
		Assistant: lastAssistant,
		User:      lastUser,
		Digits:    digits,
	}); err != nil {
		return "", fmt.Errorf("failed to render decision prompt: %w", err)
	}
	return b.String(), nil
}

func classify(ctx context.Context, llm LLM, lastAssistant, lastUser string, opts ...llms.PromptOption) (turncompletion.Decision, error) {
	switch llm := llm.(type) {
	case LLMWithStructuredPrompt:
		prompt, err := renderDecisionPrompt(lastAssistant, lastUser, false)
		if err != nil {
			return turncompletion.Done, err
		}

		resp := Classification{}
		structuredOpts := []llms.StructuredPromptOption{llms.WithSystemPrompt(turnCompletionStructuredSystemPrompt)}
		for _, opt := range opts {
			structuredOpts = append(structuredOpts, opt)
		}
		if err := llm.PromptWithStructure(ctx, prompt, &resp, structuredOpts...); err != nil {
			return turncompletion.Done, fmt.Errorf("failed to prompt turn completion classifier: %w", err)
		}

		if resp.Done {
			return turncompletion.Done, nil
		}
		return turncompletion.NotDone, nil

	case LLMWithGeneralPrompt:
		prompt, err := renderDecisionPrompt(lastAssistant, lastUser, true)
		if err != nil {
			return turncompletion.Done, err
		}

		generalOpts := []llms.GeneralPromptOption{
			llms.WithSystemPrompt(turnCompletionSystemPrompt),
			llms.WithMaxTokens(defaultMaxTokens),
		}
		for _, opt := range opts {
			generalOpts = append(generalOpts, opt)
		}
		response, err := llm.Prompt(ctx, prompt, generalOpts...)
		if err != nil {
			return turncompletion.Done, fmt.Errorf("failed to prompt turn completion classifier: %w", err)
		}
		if response == nil {
			return turncompletion.Done, errEmptyResponse
		}

		return toDecision(response.Content)
	}

	return turncompletion.Done, fmt.Errorf("unknown llm type %T", llm)
}

func toDecision(answer string) (turncompletion.Decision, error) {
	switch strings.TrimSpace(answer) {
	case "1":
		return turncompletion.Done, nil
	case "0":
		return turncompletion.NotDone, nil
	default:
		return turncompletion.Done, fmt.Errorf("unexpected turn completion answer: %q", answer)
	}
}
