package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-relay/core/llms"
	"go.opentelemetry.io/otel/attribute"
)

// PromptWithStructure requests a completion constrained to the JSON schema of
// outputSchema and unmarshals the answer into it. outputSchema must be a
// pointer.
func (c *Client) PromptWithStructure(ctx context.Context, prompt string, outputSchema any, opts ...llms.StructuredPromptOption) (err error) {
	ctx, span := tracer.Start(ctx, "prompt llm structured")
	defer span.End()

	outputType := reflect.TypeOf(outputSchema)
	if outputType == nil || outputType.Kind() != reflect.Ptr {
		return recordError(span, fmt.Errorf("output schema must be a pointer, got %T", outputSchema))
	}

	options := llms.StructuredPromptOptions{}
	for _, opt := range opts {
		opt.ApplyToStructured(&options)
	}

	messages := toMessages(options.Instructions, options.Turns)
	if prompt != "" {
		messages = append(messages, message{Role: messageRoleUser, Content: prompt})
	}

	reflector := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	schema := reflector.ReflectFromType(outputType.Elem())
	if schemaString, err := schema.MarshalJSON(); err == nil {
		span.SetAttributes(attribute.String("request.schema", string(schemaString)))
	}

	body := newRequestBody(c.modelOrDefault(options.Model), messages, options.SamplingOptions)
	body.ResponseFormat = &chatResponseFormat{
		Type: "json_schema",
		JSONSchema: &jsonSchemaFormat{
			Name:   outputType.Elem().Name(),
			Schema: *schema,
			Strict: true,
		},
	}

	started := time.Now()
	defer func() { recordDuration(ctx, started, body.Model, false, err) }()

	resp, err := c.send(ctx, span, body)
	if err != nil {
		return recordError(span, err)
	}
	defer resp.Body.Close()

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return recordError(span, fmt.Errorf("error reading response body: %w", err))
	}

	var responseBody generalResponseBody
	if err := json.Unmarshal(respBodyBytes, &responseBody); err != nil {
		return recordError(span, fmt.Errorf("error unmarshalling response body: %w", err))
	}
	if len(responseBody.Choices) == 0 {
		return recordError(span, fmt.Errorf("response contained no choices"))
	}

	content := responseBody.Choices[0].Message.Content
	// Some models wrap the JSON in a markdown code fence.
	if split := strings.Split(content, "```"); len(split) > 2 {
		content = strings.TrimPrefix(strings.TrimSpace(split[1]), "json")
	}
	if err := json.Unmarshal([]byte(content), outputSchema); err != nil {
		return recordError(span, fmt.Errorf("error unmarshalling structured response: %w", err))
	}

	return nil
}

type chatResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type jsonSchemaFormat struct {
	// Name identifies the schema in the response.
	Name string `json:"name"`
	// Schema is the JSON schema the response must follow.
	Schema jsonschema.Schema `json:"schema"`
	// Strict determines whether to enforce the schema upon the generated
	// content.
	Strict bool `json:"strict"`
}
