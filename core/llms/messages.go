package llms

import "fmt"

// Role describes who a turn in the conversation is from
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Turn is a single message attributed to the system, the caller or the
// assistant.
//
// Turns are treated as immutable once they are appended to a conversation,
// the only exception is truncation of an assistant turn after the caller
// interrupted it.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func (t Turn) String() string {
	return fmt.Sprintf("%s: %s", t.Role, t.Content)
}

func SystemTurn(content string) Turn    { return Turn{Role: RoleSystem, Content: content} }
func UserTurn(content string) Turn      { return Turn{Role: RoleUser, Content: content} }
func AssistantTurn(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }

// Message is a complete (non-streamed) response from an LLM
type Message struct {
	Content      string
	FinishReason *string
	Usage        *Usage
}
