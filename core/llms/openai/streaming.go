package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/koscakluka/ema-relay/core/llms"
	"github.com/koscakluka/ema-relay/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	endMessage  = "[DONE]"
	chunkPrefix = "data:"
)

// PromptWithStream prepares a streamed completion. Nothing is sent until the
// returned stream's chunks are iterated.
func (c *Client) PromptWithStream(_ context.Context, prompt *string, opts ...llms.StreamingPromptOption) llms.Stream {
	options := llms.StreamingPromptOptions{}
	for _, opt := range opts {
		opt.ApplyToStreaming(&options)
	}

	messages := toMessages(options.Instructions, options.Turns)
	if prompt != nil {
		messages = append(messages, message{
			Role:    messageRoleUser,
			Content: *prompt,
		})
	}

	body := newRequestBody(c.modelOrDefault(options.Model), messages, options.SamplingOptions)
	body.Stream = true
	body.StreamOptions = utils.Ptr(streamOptions{IncludeUsage: true})

	return &Stream{client: c, body: body}
}

type Stream struct {
	client *Client
	body   requestBody
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	requestToFirstTokenTime := time.Time{}
	setRequestToFirstTokenTime := func(span trace.Span) {
		if requestToFirstTokenTime.IsZero() {
			return
		}
		span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestToFirstTokenTime).Seconds()))
		span.AddEvent("received first chunk")
		requestToFirstTokenTime = time.Time{}
	}

	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()

		var err error
		started := time.Now()
		defer func() { recordDuration(ctx, started, s.body.Model, true, err) }()

		requestToFirstTokenTime = time.Now()
		span.AddEvent("request started")
		resp, err := s.client.send(ctx, span, s.body)
		if err != nil {
			yield(nil, recordError(span, err))
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))
			setRequestToFirstTokenTime(span)

			if len(chunk) == 0 {
				continue
			}

			if chunk == endMessage {
				break
			}

			var responseBody streamingResponseBody
			if unmarshalErr := json.Unmarshal([]byte(chunk), &responseBody); unmarshalErr != nil {
				span.RecordError(fmt.Errorf("error unmarshalling JSON: %w", unmarshalErr))
				logger.WarnContext(ctx, "skipping malformed stream chunk", "error", unmarshalErr)
				continue
			}

			if len(responseBody.Choices) > 0 {
				choice := responseBody.Choices[0]
				if choice.Delta.Role != "" {
					if !yield(StreamRoleChunk{finishReason: choice.FinishReason, role: choice.Delta.Role}, nil) {
						return
					}
				}
				if choice.Delta.Content != "" || choice.FinishReason != nil {
					if !yield(StreamContentChunk{finishReason: choice.FinishReason, content: choice.Delta.Content}, nil) {
						return
					}
				}
			}

			if usage := responseBody.Usage.toUsage(); usage != nil {
				span.SetAttributes(
					attribute.Int("usage.input", usage.InputTokens),
					attribute.Int("usage.output", usage.OutputTokens),
					attribute.Int("usage.total", usage.TotalTokens),
				)
				if !yield(StreamUsageChunk{usage: *usage}, nil) {
					return
				}
			}
		}

		if scanErr := scanner.Err(); scanErr != nil {
			err = fmt.Errorf("error reading streamed response: %w", scanErr)
			yield(nil, recordError(span, err))
			return
		}
	}
}

type StreamRoleChunk struct {
	finishReason *string
	role         string
}

func (s StreamRoleChunk) FinishReason() *string { return s.finishReason }
func (s StreamRoleChunk) Role() string          { return s.role }

type StreamContentChunk struct {
	finishReason *string
	content      string
}

func (s StreamContentChunk) FinishReason() *string { return s.finishReason }
func (s StreamContentChunk) Content() string       { return s.content }

type StreamUsageChunk struct {
	finishReason *string
	usage        llms.Usage
}

func (s StreamUsageChunk) FinishReason() *string { return s.finishReason }
func (s StreamUsageChunk) Usage() llms.Usage     { return s.usage }
