package conversations

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/koscakluka/ema-relay/core/llms"
)

var (
	ErrSystemTurnNotFirst  = errors.New("system turn must be the first turn")
	ErrMultipleSystemTurns = errors.New("conversation can hold at most one system turn")
	ErrUnknownTurnRole     = errors.New("unknown turn role")
)

// Log is the ordered sequence of turns for exactly one call.
//
// The first turn, if present, is the system turn. Apart from the system turn
// the log is append-only, with the exception of Reconcile truncating an
// interrupted assistant turn.
type Log []llms.Turn

func (l Log) Validate() error {
	for i, turn := range l {
		if !turn.Role.Valid() {
			return fmt.Errorf("turn %d: %w: %q", i, ErrUnknownTurnRole, turn.Role)
		}
		if turn.Role != llms.RoleSystem {
			continue
		}
		if i != 0 {
			if l[0].Role == llms.RoleSystem {
				return fmt.Errorf("turn %d: %w", i, ErrMultipleSystemTurns)
			}
			return fmt.Errorf("turn %d: %w", i, ErrSystemTurnNotFirst)
		}
	}
	return nil
}

func (l Log) Clone() Log {
	if l == nil {
		return nil
	}
	return slices.Clone(l)
}

func (l Log) Equal(other Log) bool {
	return slices.Equal(l, other)
}

// HasSystemTurn reports whether the log is seeded with instructions
func (l Log) HasSystemTurn() bool {
	return len(l) > 0 && l[0].Role == llms.RoleSystem
}

// WithSystemTurn returns the log with the system turn set to content. An
// existing system turn is replaced.
func (l Log) WithSystemTurn(content string) Log {
	if l.HasSystemTurn() {
		seeded := l.Clone()
		seeded[0].Content = content
		return seeded
	}
	return append(Log{llms.SystemTurn(content)}, l...)
}

// Append returns a copy of the log with turns appended
func (l Log) Append(turns ...llms.Turn) Log {
	return append(l.Clone(), turns...)
}

func (l Log) LastIndex(role llms.Role) int {
	for i := len(l) - 1; i >= 0; i-- {
		if l[i].Role == role {
			return i
		}
	}
	return -1
}

// Last returns the most recent turn with the given role.
func (l Log) Last(role llms.Role) (llms.Turn, bool) {
	if i := l.LastIndex(role); i >= 0 {
		return l[i], true
	}
	return llms.Turn{}, false
}

// Dialogue returns only the caller and assistant turns.
func (l Log) Dialogue() Log {
	dialogue := Log{}
	for _, turn := range l {
		if turn.Role == llms.RoleUser || turn.Role == llms.RoleAssistant {
			dialogue = append(dialogue, turn)
		}
	}
	return dialogue
}

// Transcript renders the caller and assistant turns as readable text, one
// paragraph per turn, using the given speaker labels.
func (l Log) Transcript(userLabel, assistantLabel string) string {
	var b strings.Builder
	for i, turn := range l.Dialogue() {
		if i > 0 {
			b.WriteString("\n\n")
		}
		label := userLabel
		if turn.Role == llms.RoleAssistant {
			label = assistantLabel
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(turn.Content)
	}
	return b.String()
}
