package events

const (
	// KindPartialText identifies streamed assistant response text.
	KindPartialText Kind = "assistant_response.segment"
	// KindEndOfTurn identifies assistant response completion.
	KindEndOfTurn Kind = "assistant_response.final"
)

// PartialText carries a streamed assistant response text segment.
type PartialText struct {
	Base
	Fragment string
}

// NewPartialText creates an assistant response segment event.
func NewPartialText(fragment string) PartialText {
	return PartialText{Base: NewBase(KindPartialText), Fragment: fragment}
}

// EndOfTurn marks assistant response completion.
type EndOfTurn struct{ Base }

// NewEndOfTurn creates an assistant response final event.
func NewEndOfTurn() EndOfTurn {
	return EndOfTurn{Base: NewBase(KindEndOfTurn)}
}
