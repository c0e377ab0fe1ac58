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

package supplier

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DoneMarker ends every scoring report.
const DoneMarker = "SCORING_DONE"

// DefaultReportTitle is used when the caller gives no title.
const DefaultReportTitle = "供应商打分"

// Input holds the raw figures of one scoring request.
type Input struct {
	Consumption    int     `json:"consumption"`
	DefectCount    int     `json:"defect_count"`
	NCMCount       int     `json:"ncm_count"`
	ActualDowntime float64 `json:"actual_downtime"`
	TargetDowntime float64 `json:"target_downtime"`
}

// Validate checks that counts and downtime are usable.
func (in Input) Validate() error {
	if in.Consumption < 0 || in.DefectCount < 0 || in.NCMCount < 0 {
		return ErrNegativeCount
	}
	if in.TargetDowntime <= 0 {
		return ErrTargetDowntime
	}
	if in.ActualDowntime < 0 {
		return ErrNegativeDowntime
	}
	return nil
}

// ScoreResult is the outcome of Score. It is built once and not modified.
type ScoreResult struct {
	SDQRate       float64  `json:"sdq_rate"`
	SDQScore      int      `json:"sdq_score"`
	DowntimeRatio float64  `json:"downtime_ratio"`
	DowntimeScore int      `json:"downtime_score"`
	TotalScore55  int      `json:"total_score_55"`
	Inputs        Input    `json:"inputs"`
	RulesApplied  []string `json:"rules_applied"`
	Notes         []string `json:"notes"`
}

// Score computes the SDQ and downtime sub-scores and their 55-point total.
func Score(in Input) (ScoreResult, error) {
	if err := in.Validate(); err != nil {
		return ScoreResult{}, err
	}

	notes := []string{}
	var rate float64
	if in.Consumption == 0 {
		if in.NCMCount == 0 {
			rate = 100
		}
		notes = append(notes, "消耗量为0，使用特殊SDQ逻辑")
	} else {
		rate = math.Max(0, SDQRate(in.Consumption, in.DefectCount))
	}

	sdq := SDQScore(in.Consumption, in.DefectCount, in.NCMCount)
	downtime := DowntimeScore(in.ActualDowntime, in.TargetDowntime)

	var rules []string
	switch {
	case in.Consumption == 0:
		rules = append(rules, "消耗量=0 → NCM=0 得30分, 否则10分")
	case in.Consumption < 200:
		rules = append(rules, "消耗<200: SDQ≥97→30; 90~97→20; ≤90→10")
	case in.Consumption <= 500:
		rules = append(rules, "200-500: SDQ≥98→30; 95~98→20; ≤95→10")
	default:
		rules = append(rules, ">500: SDQ≥99→30; 97~99→20; ≤97→10")
	}
	rules = append(rules, "停线时间得分: <0.5x→25; 0.5~1x→20; 1~2x→10; 2~3x→5; ≥3x→0")

	return ScoreResult{
		SDQRate:       round4(rate),
		SDQScore:      sdq,
		DowntimeRatio: round4(in.ActualDowntime / in.TargetDowntime),
		DowntimeScore: downtime,
		TotalScore55:  sdq + downtime,
		Inputs:        in,
		RulesApplied:  rules,
		Notes:         notes,
	}, nil
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// Report scores the input and formats the report in one step. Invalid
// input produces a correction request that still ends in DoneMarker.
func Report(in Input, title, name, code string) string {
	result, err := Score(in)
	if err != nil {
		return fmt.Sprintf("输入数据不合法：%v。请更正后重试。%s", err, DoneMarker)
	}
	return FormatReport(title, name, code, result)
}

// FormatReport renders a scoring result as the standard Chinese report.
func FormatReport(title, name, code string, r ScoreResult) string {
	if title == "" {
		title = DefaultReportTitle
	}
	in := r.Inputs

	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("供应商打分报告 - %s", title)
	line("")
	line("**供应商信息：**")
	line("- 供应商代码：%s", code)
	line("- 供应商名称：%s", name)
	line("")
	line("**核心指标：**")
	line("- 物料消耗数量：%d 件", in.Consumption)
	line("- 出问题物料数量：%d 件", in.DefectCount)
	line("- NCM记录数量：%d 条", in.NCMCount)
	line("- 实际停线时间：%s 小时", formatHours(in.ActualDowntime))
	line("- 目标停线时间：%s 小时", formatHours(in.TargetDowntime))
	line("")
	line("**评分结果：**")
	line("- SDQ值：%.2f%%", r.SDQRate)
	line("- SDQ得分：%d分 (满分30分)", r.SDQScore)
	line("- 停线时间占比：%.2fx 目标", r.DowntimeRatio)
	line("- 停线时间得分：%d分 (满分25分)", r.DowntimeScore)
	line("- **总分：%d分 (满分55分)**", r.TotalScore55)
	line("")
	line("**规则说明：**")
	for _, rule := range r.RulesApplied {
		line("- %s", rule)
	}
	if len(r.Notes) > 0 {
		line("")
		line("**特殊说明：**")
		for _, n := range r.Notes {
			line("- %s", n)
		}
	}
	line("")
	line("**计算过程摘要：**")
	if in.Consumption == 0 {
		line("- 消耗量为0，直接应用特殊SDQ逻辑：无NCM=30分，否则10分。")
	} else {
		line("- SDQ = (1 - 缺陷物料数量/消耗数量) × 100%% = (1 - %d/%d) × 100%% = %.2f%%",
			in.DefectCount, in.Consumption, r.SDQRate)
		line("- 停线时间占比 = 实际/目标 = %s/%s = %.2fx",
			formatHours(in.ActualDowntime), formatHours(in.TargetDowntime), r.DowntimeRatio)
	}
	line("- 总分 = SDQ得分 + 停线时间得分 = %d + %d = %d", r.SDQScore, r.DowntimeScore, r.TotalScore55)
	line("")
	b.WriteString(DoneMarker)
	return b.String()
}

// formatHours prints whole hours with one decimal ("2.0") and keeps the
// shortest form otherwise.
func formatHours(v float64) string {
	if v == math.Trunc(v) && !math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
