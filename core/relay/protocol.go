package relay

import (
	"encoding/json"
	"fmt"
	"strings"

	orchestration "github.com/koscakluka/ema-relay/core"
	"github.com/koscakluka/ema-relay/core/events"
)

// Inbound message types of the voice gateway.
const (
	TypeSetup     = "setup"
	TypePrompt    = "prompt"
	TypeInterrupt = "interrupt"

	typeText  = "text"
	typeError = "error"
)

// ignoredTypes are sent by the gateway but carry nothing the turn engine
// reacts to.
var ignoredTypes = map[string]bool{
	"dtmf":  true,
	"info":  true,
	"error": true,
}

type DecodeError struct {
	Message string
	Field   string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Field)
}

func badRequest(message, field string) *DecodeError {
	return &DecodeError{Message: message, Field: field}
}

type setupMessage struct {
	CallSID     string `json:"callSid"`
	From        string `json:"from"`
	PhoneNumber string `json:"phoneNumber"`
}

type promptMessage struct {
	VoicePrompt *string `json:"voicePrompt"`
}

type interruptMessage struct {
	UtteranceUntilInterrupt *string `json:"utteranceUntilInterrupt"`
}

// DecodeMessage turns an inbound text frame into an event. Messages the
// engine does not handle decode to a nil event and a nil error.
func DecodeMessage(data []byte) (events.Event, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}

	typ := strings.TrimSpace(envelope.Type)
	switch typ {
	case "":
		return nil, badRequest("missing type", "type")
	case TypeSetup:
		var msg setupMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid setup frame", "")
		}
		if strings.TrimSpace(msg.CallSID) == "" {
			return nil, badRequest("setup.callSid is required", "callSid")
		}
		from := msg.From
		if from == "" {
			from = msg.PhoneNumber
		}
		return events.NewSetup(msg.CallSID, strings.TrimSpace(from)), nil
	case TypePrompt:
		var msg promptMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid prompt frame", "")
		}
		if msg.VoicePrompt == nil || strings.TrimSpace(*msg.VoicePrompt) == "" {
			return nil, badRequest("prompt.voicePrompt is required", "voicePrompt")
		}
		return events.NewPrompt(*msg.VoicePrompt), nil
	case TypeInterrupt:
		var msg interruptMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid interrupt frame", "")
		}
		if msg.UtteranceUntilInterrupt == nil {
			return nil, badRequest("interrupt.utteranceUntilInterrupt is required", "utteranceUntilInterrupt")
		}
		return events.NewInterrupt(*msg.UtteranceUntilInterrupt), nil
	default:
		if ignoredTypes[typ] {
			return nil, nil
		}
		return nil, badRequest(fmt.Sprintf("unsupported type %q", typ), "type")
	}
}

type textMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
	Last  bool   `json:"last"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EncodeEvent renders an outbound event as a text frame. Events the
// gateway has no message for are skipped and reported with false.
func EncodeEvent(event events.Event) ([]byte, bool, error) {
	var msg any
	switch typedEvent := event.(type) {
	case events.PartialText:
		msg = textMessage{Type: typeText, Token: typedEvent.Fragment}
	case events.EndOfTurn:
		msg = textMessage{Type: typeText, Last: true}
	case events.TurnFailed:
		msg = errorMessage{Type: typeError, Message: typedEvent.Message}
	default:
		return nil, false, nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode %s: %w", event.Kind(), err)
	}
	return data, true, nil
}

func encodeError(message string) []byte {
	data, _ := json.Marshal(errorMessage{Type: typeError, Message: message})
	return data
}

var failureFrame = encodeError(orchestration.FailureMessage)
