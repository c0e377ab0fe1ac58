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

// Package agent defines the team roles and runs one role's turn against the
// completion service.
package agent

import (
	"embed"
	"fmt"
	"slices"
	"strings"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/instruction"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/sop"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/toolset"
)

//go:embed prompts/*.md
var prompts embed.FS

// Role is the constant bundle that defines one team member.
type Role struct {
	Name        string
	Description string
	Instruction string

	// Tools lists the tool names the role may call.
	Tools []string
}

// PromptParams fills the placeholders of the role instructions.
type PromptParams struct {
	WorkbookPath string
	Sheets       []string
	CostTable    string
	RateTable    string
	Members      []string
}

// ParamsFromConfig derives prompt parameters from the workbook settings.
func ParamsFromConfig(cfg config.WorkbookConfig, members []string) PromptParams {
	return PromptParams{
		WorkbookPath: cfg.Path,
		Sheets:       cfg.Sheets,
		CostTable:    cfg.CostTable,
		RateTable:    cfg.RateTable,
		Members:      members,
	}
}

func (p PromptParams) vars() map[string]string {
	return map[string]string{
		"workbook_path": p.WorkbookPath,
		"sheets":        strings.Join(p.Sheets, "、"),
		"cost_table":    p.CostTable,
		"rate_table":    p.RateTable,
		"members":       strings.Join(p.Members, ", "),
	}
}

var descriptions = map[string]string{
	sop.Manager:            "团队经理，负责编排与收尾",
	sop.IntentClassifier:   "意图分类器，判断问题是否需要数据",
	sop.SqlSpecialist:      "Excel-SQL 专家，负责生成并执行查询",
	sop.DataAnalyst:        "数据分析专家，负责费用计算与图表",
	sop.ReportAnalyst:      "供应商评分分析师",
	sop.MultiDomainAnalyst: "多领域分析师，负责咨询与综合洞察",
}

var roleTools = map[string][]string{
	sop.SqlSpecialist: {
		toolset.DBConnect,
		toolset.BusinessContext,
		toolset.GenerateCostRateSQL,
		toolset.SQLQuery,
	},
	sop.DataAnalyst: {
		toolset.MonthlyCostTable,
		toolset.YearlyCost,
		toolset.ChartTool,
	},
	sop.ReportAnalyst: {
		toolset.SDQScore,
		toolset.DowntimeScore,
		toolset.TotalScore,
		toolset.SupplierScoring,
		toolset.ChartTool,
	},
}

// Roles is an immutable set of roles keyed by name.
type Roles struct {
	order  []string
	byName map[string]Role
}

// DefaultRoles renders the built-in instructions for the given members.
// Only members are included in the set.
func DefaultRoles(params PromptParams) (*Roles, error) {
	vars := params.vars()
	rs := &Roles{byName: make(map[string]Role, len(params.Members))}
	for _, name := range params.Members {
		if _, ok := descriptions[name]; !ok {
			return nil, fmt.Errorf("unknown role %q", name)
		}
		raw, err := prompts.ReadFile("prompts/" + name + ".md")
		if err != nil {
			return nil, fmt.Errorf("failed to read instruction for %s: %w", name, err)
		}
		text, err := instruction.Inject(string(raw), vars)
		if err != nil {
			return nil, fmt.Errorf("failed to render instruction for %s: %w", name, err)
		}
		rs.order = append(rs.order, name)
		rs.byName[name] = Role{
			Name:        name,
			Description: descriptions[name],
			Instruction: text,
			Tools:       slices.Clone(roleTools[name]),
		}
	}
	return rs, nil
}

// Get returns a copy of the named role.
func (r *Roles) Get(name string) (Role, bool) {
	role, ok := r.byName[name]
	if !ok {
		return Role{}, false
	}
	role.Tools = slices.Clone(role.Tools)
	return role, true
}

// Names lists the roles in member order.
func (r *Roles) Names() []string {
	return slices.Clone(r.order)
}
