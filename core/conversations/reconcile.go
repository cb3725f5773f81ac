package conversations

import (
	"strings"

	"github.com/koscakluka/ema-relay/core/llms"
)

// Reconcile truncates the assistant turn the caller interrupted so that it
// ends exactly where the spoken text ends, and drops every assistant turn
// after it.
//
// The interrupted turn is the first assistant turn, counting from the start
// of the log, whose content contains spoken. If there is no such turn, or
// spoken is empty, the log is returned unchanged. The boolean result reports
// whether the log changed.
func Reconcile(log Log, spoken string) (Log, bool) {
	if spoken == "" {
		return log, false
	}

	interrupted, cut := -1, 0
	for i, turn := range log {
		if turn.Role != llms.RoleAssistant {
			continue
		}
		if at := strings.Index(turn.Content, spoken); at >= 0 {
			interrupted, cut = i, at+len(spoken)
			break
		}
	}
	if interrupted == -1 {
		return log, false
	}

	reconciled := make(Log, 0, len(log))
	for i, turn := range log {
		switch {
		case i == interrupted:
			turn.Content = turn.Content[:cut]
		case i > interrupted && turn.Role == llms.RoleAssistant:
			continue
		}
		reconciled = append(reconciled, turn)
	}

	return reconciled, !reconciled.Equal(log)
}
