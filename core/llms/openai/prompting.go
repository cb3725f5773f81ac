package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/koscakluka/ema-relay/core/llms"
	"go.opentelemetry.io/otel/attribute"
)

// Prompt requests a single, whole completion. The prompt is sent as the last
// user message; an empty prompt sends only the turns passed in the options.
func (c *Client) Prompt(ctx context.Context, prompt string, opts ...llms.GeneralPromptOption) (response *llms.Message, err error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()

	options := llms.GeneralPromptOptions{}
	for _, opt := range opts {
		opt.ApplyToGeneral(&options)
	}

	messages := toMessages(options.Instructions, options.Turns)
	if prompt != "" {
		messages = append(messages, message{Role: messageRoleUser, Content: prompt})
	}

	model := c.modelOrDefault(options.Model)
	started := time.Now()
	defer func() { recordDuration(ctx, started, model, false, err) }()

	resp, err := c.send(ctx, span, newRequestBody(model, messages, options.SamplingOptions))
	if err != nil {
		return nil, recordError(span, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, recordError(span, fmt.Errorf("error reading response body: %w", err))
	}

	var responseBody generalResponseBody
	if err := json.Unmarshal(bodyBytes, &responseBody); err != nil {
		return nil, recordError(span, fmt.Errorf("error unmarshalling response body: %w", err))
	}
	if len(responseBody.Choices) == 0 {
		return nil, recordError(span, fmt.Errorf("response contained no choices"))
	}

	choice := responseBody.Choices[0]
	response = &llms.Message{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        responseBody.Usage.toUsage(),
	}
	if response.Content == "" && choice.Message.Refusal != "" {
		response.Content = choice.Message.Refusal
	}
	if response.Usage != nil {
		span.SetAttributes(
			attribute.Int("usage.input", response.Usage.InputTokens),
			attribute.Int("usage.output", response.Usage.OutputTokens),
			attribute.Int("usage.total", response.Usage.TotalTokens),
		)
	}

	return response, nil
}
