package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/koscakluka/ema-relay/core/llms"
)

// testRequestBody mirrors requestBody with the schema left opaque.
type testRequestBody struct {
	Model          string         `json:"model"`
	Messages       []message      `json:"messages"`
	Stream         bool           `json:"stream"`
	StreamOptions  *streamOptions `json:"stream_options"`
	MaxTokens      int            `json:"max_tokens"`
	Temperature    *float64       `json:"temperature"`
	ResponseFormat *struct {
		Type       string `json:"type"`
		JSONSchema *struct {
			Name   string          `json:"name"`
			Schema json.RawMessage `json:"schema"`
			Strict bool            `json:"strict"`
		} `json:"json_schema"`
	} `json:"response_format"`
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, body testRequestBody)) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != completionsPath {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}

		var body testRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		handler(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestPromptSendsTurnsAndSamplingOptions(t *testing.T) {
	var received testRequestBody
	server := newTestServer(t, func(w http.ResponseWriter, body testRequestBody) {
		received = body
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"1"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":1,"total_tokens":11}}`)
	})

	client := NewClient("test-key", WithBaseURL(server.URL+"/"), WithModel("gpt-4o"))
	response, err := client.Prompt(context.Background(), "Is the user done talking?",
		llms.WithSystemPrompt("classify"),
		llms.WithTurns(llms.UserTurn("hi"), llms.AssistantTurn("hello")),
		llms.WithModel("gpt-4o-mini"),
		llms.WithMaxTokens(5),
		llms.WithTemperature(0),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if response.Content != "1" {
		t.Fatalf("expected content %q, got %q", "1", response.Content)
	}
	if response.Usage == nil || response.Usage.TotalTokens != 11 {
		t.Fatalf("unexpected usage: %+v", response.Usage)
	}

	if received.Model != "gpt-4o-mini" || received.MaxTokens != 5 || received.Stream {
		t.Fatalf("unexpected request: %+v", received)
	}
	if received.Temperature == nil || *received.Temperature != 0 {
		t.Fatalf("expected temperature 0 to be sent, got %v", received.Temperature)
	}

	expected := []message{
		{Role: messageRoleSystem, Content: "classify"},
		{Role: messageRoleUser, Content: "hi"},
		{Role: messageRoleAssistant, Content: "hello"},
		{Role: messageRoleUser, Content: "Is the user done talking?"},
	}
	if len(received.Messages) != len(expected) {
		t.Fatalf("expected %d messages, got %+v", len(expected), received.Messages)
	}
	for i := range expected {
		if received.Messages[i] != expected[i] {
			t.Fatalf("message %d: expected %+v, got %+v", i, expected[i], received.Messages[i])
		}
	}
}

func TestPromptReturnsStatusError(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, _ testRequestBody) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	})

	client := NewClient("test-key", WithBaseURL(server.URL))
	_, err := client.Prompt(context.Background(), "hello")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected status code %d", statusErr.StatusCode)
	}
}

func TestStreamYieldsContentUntilDone(t *testing.T) {
	var received testRequestBody
	server := newTestServer(t, func(w http.ResponseWriter, body testRequestBody) {
		received = body
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, strings.Join([]string{
			`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
			``,
			`data: {"choices":[{"delta":{"content":"Great "}}]}`,
			``,
			`data: {"choices":[{"delta":{"content":"job!"}}]}`,
			``,
			`data: {"choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
			``,
			`data: [DONE]`,
			``,
			`data: {"choices":[{"delta":{"content":"after done"}}]}`,
			``,
		}, "\n"))
	})

	client := NewClient("test-key", WithBaseURL(server.URL))
	stream := client.PromptWithStream(context.Background(), nil, llms.WithTurns(llms.SystemTurn("sys"), llms.UserTurn("I finished the report")))

	var content strings.Builder
	var usage *llms.Usage
	for chunk, err := range stream.Chunks(context.Background()) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		switch chunk := chunk.(type) {
		case llms.StreamContentChunk:
			content.WriteString(chunk.Content())
		case llms.StreamUsageChunk:
			u := chunk.Usage()
			usage = &u
		}
	}

	if content.String() != "Great job!" {
		t.Fatalf("expected streamed content %q, got %q", "Great job!", content.String())
	}
	if usage == nil || usage.TotalTokens != 5 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
	if !received.Stream || received.StreamOptions == nil || !received.StreamOptions.IncludeUsage {
		t.Fatalf("expected streaming request with usage, got %+v", received)
	}
	if len(received.Messages) != 2 || received.Messages[0].Role != messageRoleSystem {
		t.Fatalf("expected system turn to become the system message, got %+v", received.Messages)
	}
}

func TestStreamStopsWhenConsumerStops(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, _ testRequestBody) {
		for i := range 5 {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":\"%d\"}}]}\n\n", i)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	client := NewClient("test-key", WithBaseURL(server.URL))
	stream := client.PromptWithStream(context.Background(), nil)

	count := 0
	for chunk := range stream.Chunks(context.Background()) {
		if _, ok := chunk.(llms.StreamContentChunk); ok {
			count++
		}
		if count == 2 {
			break
		}
	}

	if count != 2 {
		t.Fatalf("expected to stop after 2 chunks, got %d", count)
	}
}

func TestStreamYieldsStatusError(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, _ testRequestBody) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := NewClient("test-key", WithBaseURL(server.URL))
	stream := client.PromptWithStream(context.Background(), nil)

	var streamErr error
	for _, err := range stream.Chunks(context.Background()) {
		if err != nil {
			streamErr = err
		}
	}

	var statusErr *StatusError
	if !errors.As(streamErr, &statusErr) {
		t.Fatalf("expected StatusError, got %v", streamErr)
	}
}

type doneDecision struct {
	Done bool `json:"done"`
}

func TestPromptWithStructureUnmarshalsIntoSchema(t *testing.T) {
	var received testRequestBody
	server := newTestServer(t, func(w http.ResponseWriter, body testRequestBody) {
		received = body
		fmt.Fprint(w, "{\"choices\":[{\"message\":{\"content\":\"```json\\n{\\\"done\\\":true}\\n```\"}}]}")
	})

	client := NewClient("test-key", WithBaseURL(server.URL))
	decision := doneDecision{}
	if err := client.PromptWithStructure(context.Background(), "decide", &decision); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !decision.Done {
		t.Fatalf("expected structured decision to be unmarshalled")
	}
	if received.ResponseFormat == nil || received.ResponseFormat.Type != "json_schema" {
		t.Fatalf("expected json_schema response format, got %+v", received.ResponseFormat)
	}
	if received.ResponseFormat.JSONSchema.Name != "doneDecision" {
		t.Fatalf("unexpected schema name %q", received.ResponseFormat.JSONSchema.Name)
	}
}

func TestPromptWithStructureRequiresPointer(t *testing.T) {
	client := NewClient("test-key", WithBaseURL("http://127.0.0.1:0"))
	if err := client.PromptWithStructure(context.Background(), "decide", doneDecision{}); err == nil {
		t.Fatalf("expected error for non-pointer schema")
	}
}
