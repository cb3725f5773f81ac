package events

const (
	// KindSetup identifies the start of a call.
	KindSetup Kind = "call_input.setup"
	// KindPrompt identifies a transcribed caller utterance.
	KindPrompt Kind = "call_input.prompt"
	// KindInterrupt identifies the caller speaking over the assistant.
	KindInterrupt Kind = "call_input.interrupt"
)

// Setup starts a call.
type Setup struct {
	Base
	CallID string
	// From is the caller identity, usually a phone number. Empty when the
	// transport does not provide one.
	From string
}

// NewSetup creates a call setup event.
func NewSetup(callID, from string) Setup {
	return Setup{Base: NewBase(KindSetup), CallID: callID, From: from}
}

// Prompt carries one transcribed caller utterance.
type Prompt struct {
	Base
	Utterance string
}

// NewPrompt creates a prompt event.
func NewPrompt(utterance string) Prompt {
	return Prompt{Base: NewBase(KindPrompt), Utterance: utterance}
}

// Interrupt carries the part of the assistant response that was spoken to
// the caller before they interrupted.
type Interrupt struct {
	Base
	SpokenSoFar string
}

// NewInterrupt creates an interrupt event.
func NewInterrupt(spokenSoFar string) Interrupt {
	return Interrupt{Base: NewBase(KindInterrupt), SpokenSoFar: spokenSoFar}
}
