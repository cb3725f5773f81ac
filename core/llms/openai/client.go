package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	// GroqBaseURL serves the same chat completions API.
	GroqBaseURL = "https://api.groq.com/openai/v1"

	DefaultModel = "gpt-4o"

	completionsPath = "/chat/completions"
)

// Client talks to an OpenAI compatible chat completions API.
type Client struct {
	apiKey  string
	baseURL string
	model   string

	httpClient *http.Client
}

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithModel sets the model used when a prompt does not select one
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Model() string { return c.model }

func (c *Client) modelOrDefault(model string) string {
	if model != "" {
		return model
	}
	return c.model
}

// send posts a chat completions request and returns the response when it
// has a 200 status. The caller owns the response body.
func (c *Client) send(ctx context.Context, span trace.Span, body requestBody) (*http.Response, error) {
	requestBodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	span.SetAttributes(
		attribute.String("request.url", req.URL.String()),
		attribute.String("request.model", body.Model),
		attribute.Bool("request.stream", body.Stream),
	)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		if errorBody, err := io.ReadAll(resp.Body); err != nil {
			span.RecordError(fmt.Errorf("error reading error body: %w", err))
		} else {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}

		// TODO: Retry on 429 and 5xx once the engine can tell the caller
		// that something is taking longer than usual
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return resp, nil
}

// StatusError is returned when the API answers with a non-OK status
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-OK HTTP status: %s", e.Status)
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func recordDuration(ctx context.Context, started time.Time, model string, stream bool, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	requestDuration.Record(ctx, time.Since(started).Seconds(), metric.WithAttributes(
		attribute.String("model", model),
		attribute.Bool("stream", stream),
		attribute.String("outcome", outcome),
	))
}
