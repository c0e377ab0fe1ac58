package team

import (
	"strings"
	"unicode/utf8"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/sop"
)

// NoAnswer is returned by ExtractFinalAnswer when the transcript holds no
// usable answer.
const NoAnswer = "未能获取到最终答案"

// minFallbackRunes is the length an analyst message must exceed to serve as
// the answer when the Manager never returned one.
const minFallbackRunes = 50

var doneMarkers = []string{
	sop.DataAnalysisDone,
	sop.AnalysisDone,
	sop.ScoringDone,
	sop.ConsultationDone,
}

var fallbackSources = map[string]bool{
	sop.DataAnalyst:        true,
	sop.ReportAnalyst:      true,
	sop.MultiDomainAnalyst: true,
}

// ExtractFinalAnswer pulls the user-facing answer out of a transcript.
func ExtractFinalAnswer(transcript []Message) string {
	chat := sop.ChatMessages(transcript)
	answer := ""

	for i := len(chat) - 1; i >= 0; i-- {
		m := chat[i]
		if m.Source != sop.Manager {
			continue
		}
		_, after, ok := strings.Cut(m.Content, sop.FinalMarker)
		if !ok {
			continue
		}
		after, _, _ = strings.Cut(after, sop.TerminateMarker)
		answer = stripDoneMarkers(after)
		break
	}

	if answer == "" {
		for i := len(chat) - 1; i >= 0; i-- {
			m := chat[i]
			if !fallbackSources[m.Source] {
				continue
			}
			content := stripDoneMarkers(m.Content)
			if utf8.RuneCountInString(content) > minFallbackRunes {
				answer = content
				break
			}
		}
	}

	answer = strings.TrimSpace(strings.ReplaceAll(answer, sop.TerminateMarker, ""))
	answer = strings.NewReplacer(`\n`, "\n", `\'`, "'").Replace(answer)
	if answer == "" {
		return NoAnswer
	}
	return answer
}

func stripDoneMarkers(s string) string {
	for _, m := range doneMarkers {
		s = strings.ReplaceAll(s, m, "")
	}
	return strings.TrimSpace(s)
}
