package orchestration

import (
	"context"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-relay/core/conversations"
	"github.com/koscakluka/ema-relay/core/events"
	"github.com/koscakluka/ema-relay/core/llms"
)

// respond generates the assistant's answer to log and emits it to the
// caller. Output stops as soon as handle is cancelled.
func (c *Call) respond(ctx context.Context, handle *CancellationHandle, log conversations.Log) error {
	opts := []llms.PromptOption{llms.WithTurns(log...)}
	if model := c.orchestrator.responseModel; model != "" {
		opts = append(opts, llms.WithModel(model))
	}

	switch client := c.orchestrator.llm.(type) {
	case LLMWithStream:
		streamingOpts := make([]llms.StreamingPromptOption, len(opts))
		for i, opt := range opts {
			streamingOpts[i] = opt
		}
		return c.streamResponse(ctx, handle, client, streamingOpts)
	case LLMWithGeneralPrompt:
		generalOpts := make([]llms.GeneralPromptOption, len(opts))
		for i, opt := range opts {
			generalOpts[i] = opt
		}
		return c.promptResponse(ctx, handle, client, generalOpts)
	case nil:
		return ErrLLMNotConfigured
	default:
		return errUnsupportedLLMVariant
	}
}

func (c *Call) streamResponse(ctx context.Context, handle *CancellationHandle, client LLMWithStream, opts []llms.StreamingPromptOption) error {
	var response strings.Builder

	stream := client.PromptWithStream(ctx, nil, opts...)
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			if handle.Cancelled() {
				return ErrGenerationCancelled
			}
			return fmt.Errorf("failed to stream response: %w", err)
		}

		fragment, ok := llms.ContentOf(chunk)
		if !ok {
			continue
		}

		if !handle.emit(func() { c.emit(events.NewPartialText(fragment)) }) {
			return ErrGenerationCancelled
		}
		response.WriteString(fragment)
	}

	if !handle.complete(response.String(), func() { c.emit(events.NewEndOfTurn()) }) {
		return ErrGenerationCancelled
	}
	return nil
}

func (c *Call) promptResponse(ctx context.Context, handle *CancellationHandle, client LLMWithGeneralPrompt, opts []llms.GeneralPromptOption) error {
	message, err := client.Prompt(ctx, "", opts...)
	if handle.Cancelled() {
		return ErrGenerationCancelled
	}
	if err != nil {
		return fmt.Errorf("failed to generate response: %w", err)
	}

	text := ""
	if message != nil {
		text = message.Content
	}

	completed := handle.complete(text, func() {
		if text != "" {
			c.emit(events.NewPartialText(text))
		}
		c.emit(events.NewEndOfTurn())
	})
	if !completed {
		return ErrGenerationCancelled
	}
	return nil
}
