// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sop

import (
	"regexp"
	"slices"
	"strings"
)

// Markers emitted by the role prompts.
const (
	HandoffMarker      = "转交给"
	FinalMarker        = "FINAL:RETURN"
	TerminateMarker    = "TERMINATE"
	CategoryMarker     = "CATEGORY:"
	NeedsDataSuffix    = "-需数据"
	SQLDoneMarker      = "SQL_DONE"
	AnalysisDone       = "ANALYSIS_DONE"
	ScoringDone        = "SCORING_DONE"
	ConsultationDone   = "CONSULTATION_DONE"
	DataAnalysisDone   = "DATA_ANALYSIS_DONE"
	querySucceeded     = "查询成功"
	queryFailed        = "查询过程中出现错误"
	errorPhrase        = "错误"
	emptyResult        = "结果为空"
	zeroRows           = "返回 0 行"
	needSupplementData = "需要补充数据"
	missingData        = "所需补充数据"
	needSupplement     = "需要补充"
	resultRows         = "行数据:"
	omittedRows        = "... 其余"
)

// Status is the structured outcome of one chat message.
type Status int

const (
	StatusUnmatched Status = iota
	StatusHandoff
	StatusFinal
	StatusClassified
	StatusNeedsData
	StatusSuccess
	StatusRetry
	StatusDone
	StatusNeedsMore
)

var statusNames = [...]string{
	StatusUnmatched:  "unmatched",
	StatusHandoff:    "handoff",
	StatusFinal:      "final",
	StatusClassified: "classified",
	StatusNeedsData:  "needs_data",
	StatusSuccess:    "success",
	StatusRetry:      "retry",
	StatusDone:       "done",
	StatusNeedsMore:  "needs_more",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Signal is what a role said, reduced to a status and, for hand-offs, the
// target role.
type Signal struct {
	Status  Status
	Handoff string
}

// handoffOrder is the precedence when a Manager message names several roles.
var handoffOrder = []string{IntentClassifier, SqlSpecialist, MultiDomainAnalyst, DataAnalyst, ReportAnalyst}

var handoffPatterns = func() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(handoffOrder))
	for _, role := range handoffOrder {
		r := regexp.QuoteMeta(role)
		out[role] = regexp.MustCompile(HandoffMarker + `\s*(?:\*\*` + r + `\*\*|__` + r + `__|\*` + r + `\*|` + "`" + r + "`" + `|` + r + `)`)
	}
	return out
}()

var (
	categoryPattern = regexp.MustCompile(`CATEGORY:\s*(\S+)`)
	tableRowPattern = regexp.MustCompile(`^\s*\d+  `)
)

// Classify turns one chat message into a Signal. members limits hand-off
// targets to roles present in the team.
func Classify(msg Message, members []string) Signal {
	content := msg.Content
	switch msg.Source {
	case Manager:
		if target := handoffTarget(content, members); target != "" {
			return Signal{Status: StatusHandoff, Handoff: target}
		}
		if strings.Contains(content, FinalMarker) {
			return Signal{Status: StatusFinal}
		}
	case IntentClassifier:
		if needsData(content) {
			return Signal{Status: StatusNeedsData}
		}
		return Signal{Status: StatusClassified}
	case SqlSpecialist:
		if sqlSucceeded(content) {
			return Signal{Status: StatusSuccess}
		}
		return Signal{Status: StatusRetry}
	case DataAnalyst:
		switch {
		case strings.Contains(content, AnalysisDone):
			return Signal{Status: StatusDone}
		case strings.Contains(content, needSupplementData), strings.Contains(content, missingData):
			return Signal{Status: StatusNeedsMore}
		}
	case ReportAnalyst:
		switch {
		case strings.Contains(content, ScoringDone):
			return Signal{Status: StatusDone}
		case strings.Contains(content, needSupplement) &&
			(strings.Contains(content, "数据") || strings.Contains(content, "信息")):
			return Signal{Status: StatusNeedsMore}
		}
	case MultiDomainAnalyst:
		if strings.Contains(content, ConsultationDone) {
			return Signal{Status: StatusDone}
		}
	}
	return Signal{Status: StatusUnmatched}
}

func handoffTarget(content string, members []string) string {
	if !strings.Contains(content, HandoffMarker) {
		return ""
	}
	for _, role := range handoffOrder {
		if !slices.Contains(members, role) {
			continue
		}
		if handoffPatterns[role].MatchString(content) {
			return role
		}
	}
	return ""
}

func needsData(content string) bool {
	for _, m := range categoryPattern.FindAllStringSubmatch(content, -1) {
		if strings.HasSuffix(m[1], NeedsDataSuffix) {
			return true
		}
	}
	return false
}

// sqlSucceeded is true only for a success phrase with no error or
// empty-result phrase in the message. Result tables are data, so their
// cells are not searched for phrases.
func sqlSucceeded(content string) bool {
	success := strings.Contains(content, SQLDoneMarker) || strings.Contains(content, querySucceeded)
	prose := withoutResultTables(content)
	failed := strings.Contains(prose, errorPhrase) ||
		strings.Contains(strings.ToLower(prose), "error") ||
		strings.Contains(prose, queryFailed)
	empty := strings.Contains(prose, emptyResult) || strings.Contains(prose, zeroRows)
	return success && !failed && !empty
}

// withoutResultTables drops the table printed under each
// "查询成功，返回 N 行数据:" line: its header line, the indexed rows and the
// omitted-rows note.
func withoutResultTables(content string) string {
	lines := strings.Split(content, "\n")
	kept := lines[:0]
	inTable, header := false, false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), querySucceeded) && strings.HasSuffix(strings.TrimSpace(line), resultRows) {
			kept = append(kept, line)
			inTable, header = true, true
			continue
		}
		if inTable {
			switch {
			case header:
				header = false
				continue
			case tableRowPattern.MatchString(line), strings.HasPrefix(line, omittedRows):
				continue
			}
			inTable = false
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
