package events

import (
	"testing"
	"time"
)

func TestConstructorsEmitExpectedKinds(t *testing.T) {
	testCases := []struct {
		name     string
		event    Event
		expected Kind
	}{
		{name: "setup", event: NewSetup("CA1", "+15550100"), expected: KindSetup},
		{name: "prompt", event: NewPrompt("hello"), expected: KindPrompt},
		{name: "interrupt", event: NewInterrupt("The weather"), expected: KindInterrupt},
		{name: "partial text", event: NewPartialText("seg"), expected: KindPartialText},
		{name: "end of turn", event: NewEndOfTurn(), expected: KindEndOfTurn},
		{name: "turn failed", event: NewTurnFailed("boom"), expected: KindTurnFailed},
		{name: "turn cancelled", event: NewTurnCancelled(), expected: KindTurnCancelled},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.event.Kind(); got != testCase.expected {
				t.Fatalf("expected kind %q, got %q", testCase.expected, got)
			}
			if testCase.event.Timestamp().IsZero() {
				t.Fatalf("expected timestamp to be set")
			}
		})
	}
}

func TestInboundAndOutboundKindsAreDistinct(t *testing.T) {
	seen := map[Kind]string{}
	for name, kind := range map[string]Kind{
		"setup":          KindSetup,
		"prompt":         KindPrompt,
		"interrupt":      KindInterrupt,
		"partial text":   KindPartialText,
		"end of turn":    KindEndOfTurn,
		"turn failed":    KindTurnFailed,
		"turn cancelled": KindTurnCancelled,
	} {
		if other, ok := seen[kind]; ok {
			t.Fatalf("%s and %s share kind %q", name, other, kind)
		}
		seen[kind] = name
	}
}

func TestAge(t *testing.T) {
	event := NewPrompt("hello")
	created := event.Timestamp()

	if age := Age(event, created.Add(250*time.Millisecond)); age != 250*time.Millisecond {
		t.Fatalf("expected age of 250ms, got %s", age)
	}
	if age := Age(event, created.Add(-time.Second)); age != 0 {
		t.Fatalf("expected no age before creation, got %s", age)
	}
	if age := Age(Prompt{Utterance: "bare"}, time.Now()); age != 0 {
		t.Fatalf("expected no age without timestamp, got %s", age)
	}
}
