package chat

import (
	"strings"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/session"
)

// dataIndicators mark an assistant message that carries a data result worth
// carrying into a follow-up question. Matching is case-insensitive.
var dataIndicators = []string{
	"数据分析结果", "查询结果", "物料", "ncm", "供应商",
	"defectivepartmaterialnumber", "ncmcount", "次数", "统计",
}

const (
	contextRunes    = 500
	lastUserRunes   = 100
	resumedHint     = "(这是一个恢复的历史对话，我会根据可见的对话记录来理解上下文) "
	followUpPrefix  = "\n基于之前的分析结果，用户现在有进一步的请求。\n\n之前的分析结果概要：\n"
	followUpRequest = "\n\n用户的新请求：\n"
	followUpSuffix  = "\n\n请基于之前的分析结果，针对用户的新请求提供相应的查询和分析。如果用户需要更详细的数据，请提供完整的查询结果。如果用户需要进一步分析，请基于现有数据进行深入分析。\n"
)

// FollowUpTask wraps message with the most recent data result found in the
// last lookback history entries. Without such a result message is returned
// unchanged.
func FollowUpTask(message string, history []session.Entry, lookback int) string {
	recent := history
	if lookback > 0 && len(recent) > lookback {
		recent = recent[len(recent)-lookback:]
	}

	for i := len(recent) - 1; i >= 0; i-- {
		e := recent[i]
		if e.Role != session.RoleAssistant || !hasDataIndicator(e.Content) {
			continue
		}
		return followUpPrefix + truncate(e.Content, contextRunes) + followUpRequest + message + followUpSuffix
	}
	return message
}

// BuildTask turns a user message into the task handed to the team.
//
// A prior data result is folded in by FollowUpTask. When the history has an
// earlier user turn, the task is prefixed with the first 100 runes of it. A
// resumed thread whose history is empty gets a hint instead.
func BuildTask(message string, history []session.Entry, lookback int, resumed bool) string {
	if resumed && len(history) == 0 {
		return resumedHint + message
	}

	task := FollowUpTask(message, history, lookback)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == session.RoleUser {
			return "基于上一轮对话: " + prefix(history[i].Content, lastUserRunes) + "...\n\n当前任务: " + task
		}
	}
	return task
}

func hasDataIndicator(content string) bool {
	lower := strings.ToLower(content)
	for _, ind := range dataIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// truncate cuts s to n runes and marks the cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
