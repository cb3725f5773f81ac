package llms

import "context"

// Stream is a completion delivered incrementally. Chunks ends early when ctx
// is cancelled or the consumer stops iterating.
type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	FinishReason() *string
}

type StreamRoleChunk interface {
	StreamChunk
	Role() string
}

type StreamContentChunk interface {
	StreamChunk
	Content() string
}

type StreamUsageChunk interface {
	StreamChunk
	Usage() Usage
}

// ContentOf returns the text a chunk adds to the response, reporting false
// for chunks that carry none.
func ContentOf(chunk StreamChunk) (string, bool) {
	contentChunk, ok := chunk.(StreamContentChunk)
	if !ok {
		return "", false
	}
	content := contentChunk.Content()
	return content, content != ""
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
