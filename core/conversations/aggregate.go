package conversations

import (
	"strings"

	"github.com/koscakluka/ema-relay/core/llms"
)

const utteranceSeparator = " "

// Aggregate collapses every user turn after the most recent assistant turn
// into a single user turn, joining their contents with a single space.
//
// Without an assistant turn, or without any user turn after it, the log is
// returned unchanged. The boolean result reports whether the log changed.
// Aggregate is idempotent.
func Aggregate(log Log) (Log, bool) {
	lastAssistant := log.LastIndex(llms.RoleAssistant)
	if lastAssistant == -1 {
		return log, false
	}

	return collapseUserTurnsAfter(log, lastAssistant)
}

// CollapseTrailingUserTurns merges the run of user turns at the end of the
// log into one, regardless of whether an assistant has spoken yet.
//
// It covers utterances that arrive back to back before the assistant has
// produced its first response, where Aggregate deliberately does nothing.
func CollapseTrailingUserTurns(log Log) (Log, bool) {
	start := len(log)
	for start > 0 && log[start-1].Role == llms.RoleUser {
		start--
	}
	return collapseUserTurnsAfter(log, start-1)
}

func collapseUserTurnsAfter(log Log, boundary int) (Log, bool) {
	var utterances []string
	for _, turn := range log[boundary+1:] {
		if turn.Role == llms.RoleUser {
			utterances = append(utterances, turn.Content)
		}
	}
	if len(utterances) < 2 {
		return log, false
	}

	collapsed := make(Log, 0, boundary+2)
	collapsed = append(collapsed, log[:boundary+1]...)
	collapsed = append(collapsed, llms.UserTurn(strings.Join(utterances, utteranceSeparator)))
	return collapsed, true
}
