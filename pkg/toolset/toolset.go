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

// Package toolset assembles the tools offered to agent roles.
package toolset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/chart"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/cost"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/costquery"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/supplier"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/tool"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/tool/functiontool"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/workbook"
)

// Tool names. Prompts refer to tools by these names.
const (
	SQLQuery            = "sql_query"
	DBConnect           = "db_connect"
	BusinessContext     = "get_business_context"
	GenerateCostRateSQL = "generate_cost_rate_sql"
	MonthlyCostTable    = "calculate_monthly_cost_table"
	YearlyCost          = "calculate_yearly_cost"
	ChartTool           = "chart_tool"
	SDQScore            = "calculate_sdq_score"
	DowntimeScore       = "calculate_downtime_score"
	TotalScore          = "calculate_total_score"
	SupplierScoring     = "supplier_scoring"
)

// Toolset holds every tool, indexed by name.
type Toolset struct {
	tools  []tool.CallableTool
	byName map[string]tool.CallableTool
}

// Option configures New.
type Option func(*options)

type options struct {
	builderOpts []costquery.Option
	extra       []tool.CallableTool
}

// WithBuilderOptions passes options to the rate-query builder.
func WithBuilderOptions(opts ...costquery.Option) Option {
	return func(o *options) {
		o.builderOpts = append(o.builderOpts, opts...)
	}
}

// WithTools adds tools beyond the built-in set.
func WithTools(tools ...tool.CallableTool) Option {
	return func(o *options) {
		o.extra = append(o.extra, tools...)
	}
}

// New builds the tool set over the configured workbook.
func New(cfg config.WorkbookConfig, opts ...Option) (*Toolset, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	w := &workbookTools{
		path:    cfg.Path,
		engine:  workbook.New(cfg),
		builder: costquery.NewBuilder(cfg, o.builderOpts...),
	}

	builders := []func() (tool.CallableTool, error){
		w.sqlQuery,
		w.dbConnect,
		w.businessContext,
		w.generateCostRateSQL,
		monthlyCostTable,
		yearlyCost,
		chartTool,
		sdqScore,
		downtimeScore,
		totalScore,
		supplierScoring,
	}

	s := &Toolset{byName: make(map[string]tool.CallableTool)}
	for _, build := range builders {
		t, err := build()
		if err != nil {
			return nil, err
		}
		s.add(t)
	}
	for _, t := range o.extra {
		s.add(t)
	}
	return s, nil
}

func (s *Toolset) add(t tool.CallableTool) {
	if _, dup := s.byName[t.Name()]; !dup {
		s.tools = append(s.tools, t)
	}
	s.byName[t.Name()] = t
}

// Get returns the named tool.
func (s *Toolset) Get(name string) (tool.CallableTool, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// All returns every tool in registration order.
func (s *Toolset) All() []tool.CallableTool {
	return s.tools
}

// Names returns the sorted tool names.
func (s *Toolset) Names() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the named tools in the given order. Unknown names are an
// error.
func (s *Toolset) Select(names []string) ([]tool.CallableTool, error) {
	out := make([]tool.CallableTool, 0, len(names))
	for _, name := range names {
		t, ok := s.byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown tool %q", name)
		}
		out = append(out, t)
	}
	return out, nil
}

type workbookTools struct {
	path    string
	engine  *workbook.Engine
	builder *costquery.Builder
}

func (w *workbookTools) resolve(path string) string {
	if path == "" {
		return w.path
	}
	return path
}

type sqlQueryArgs struct {
	FilePath   string   `json:"file_path,omitempty" jsonschema:"description=Excel文件路径，默认使用配置的工作簿"`
	Query      string   `json:"query" jsonschema:"required,description=SQL查询语句，表名与工作表名一致"`
	TableNames []string `json:"sql_table_names,omitempty" jsonschema:"description=SQL查询中涉及的所有表名列表"`
}

func (w *workbookTools) sqlQuery() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: SQLQuery, Description: "执行任意 SELECT SQL，返回结果前 100 行"},
		func(ctx context.Context, args sqlQueryArgs) (string, error) {
			return w.engine.Execute(ctx, w.resolve(args.FilePath), args.Query, args.TableNames), nil
		},
	)
}

type fileArgs struct {
	FilePath string `json:"file_path,omitempty" jsonschema:"description=Excel文件路径，默认使用配置的工作簿"`
}

func (w *workbookTools) dbConnect() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: DBConnect, Description: "验证联通性"},
		func(ctx context.Context, args fileArgs) (string, error) {
			return workbook.Connect(w.resolve(args.FilePath)), nil
		},
	)
}

func (w *workbookTools) businessContext() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: BusinessContext, Description: "获取业务逻辑和问题定义的上下文"},
		func(ctx context.Context, args fileArgs) (string, error) {
			return workbook.BusinessContext(w.resolve(args.FilePath)), nil
		},
	)
}

func (w *workbookTools) generateCostRateSQL() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: GenerateCostRateSQL, Description: "根据用户需求，生成用于获取金额以及分摊比例的SQL查询语句"},
		func(ctx context.Context, args costquery.RateQuery) (string, error) {
			sql, err := w.builder.Build(ctx, args)
			var ve *costquery.ValidationError
			if errors.As(err, &ve) {
				return ve.Error(), nil
			}
			return sql, err
		},
	)
}

type tableArgs struct {
	DF any `json:"df" jsonschema:"required,description=输入数据：记录列表、列字典，或Excel/CSV文件路径"`
}

func (a tableArgs) input() cost.Input {
	var in cost.Input
	data, err := json.Marshal(a.DF)
	if err == nil {
		err = json.Unmarshal(data, &in)
	}
	if err != nil {
		return cost.Input{}
	}
	return in
}

func monthlyCostTable() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: MonthlyCostTable, Description: "计算每月费用"},
		func(ctx context.Context, args tableArgs) (string, error) {
			return cost.MonthlyCost(args.input()).String(), nil
		},
	)
}

func yearlyCost() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{Name: YearlyCost, Description: "计算年度费用总额"},
		func(ctx context.Context, args tableArgs) (string, error) {
			in := args.input()
			f, err := cost.Load(in)
			if err != nil || f.Index(cost.ColMonthlyCost) < 0 {
				f = cost.MonthlyCost(in)
			}
			return strconv.FormatFloat(cost.YearlyCost(f), 'f', 2, 64), nil
		},
	)
}

func chartTool() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name: ChartTool,
			Description: "生成规范图表片段。使用参数: type(图表类型), title, 以及对应所需字段。" +
				"支持: pie, bar, line, stacked_bar, grouped_bar, bar_line, histogram。" +
				"返回带[CHART_START]/[CHART_END]包装的JSON字符串。错误时返回包含error的JSON。务必始终返回一个包装JSON。",
		},
		func(ctx context.Context, args chart.Request) (string, error) {
			block, err := chart.Build(args)
			var be *chart.BuildError
			if errors.As(err, &be) {
				return be.JSON(), nil
			}
			return block, err
		},
	)
}

type sdqArgs struct {
	Consumption int `json:"consumption" jsonschema:"required,description=物料消耗量(整数，单位：件)"`
	DefectCount int `json:"defect_count" jsonschema:"required,description=质量问题数量(整数)"`
	NCMCount    int `json:"ncm_count" jsonschema:"required,description=NCM不合格记录数(整数)"`
}

func sdqScore() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name: SDQScore,
			Description: "计算供应商SDQ质量得分(0-30分)。评分规则：消耗量＜200件：SDQ≥97%得30分，90-97%得20分，≤90%得10分；" +
				"200-500件：SDQ≥98%得30分，95-98%得20分，≤95%得10分；＞500件：SDQ≥99%得30分，97-99%得20分，≤97%得10分。" +
				"消耗量为0时无NCM得30分，否则10分。",
		},
		func(ctx context.Context, args sdqArgs) (string, error) {
			if args.Consumption < 0 || args.DefectCount < 0 || args.NCMCount < 0 {
				return supplier.ErrNegativeCount.Error(), nil
			}
			return strconv.Itoa(supplier.SDQScore(args.Consumption, args.DefectCount, args.NCMCount)), nil
		},
	)
}

type downtimeArgs struct {
	Actual float64 `json:"actual" jsonschema:"required,description=实际停线时间(小时)"`
	Target float64 `json:"target" jsonschema:"required,description=目标停线时间(小时)"`
}

func downtimeScore() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        DowntimeScore,
			Description: "计算停线时间得分(0-25分)。实际/目标＜0.5→25分；0.5-1→20分；1-2→10分；2-3→5分；≥3→0分。",
		},
		func(ctx context.Context, args downtimeArgs) (string, error) {
			return strconv.Itoa(supplier.DowntimeScore(args.Actual, args.Target)), nil
		},
	)
}

type totalArgs struct {
	SDQ      int  `json:"sdq" jsonschema:"required,description=SDQ质量得分（0-30）"`
	Downtime int  `json:"downtime" jsonschema:"required,description=停线时间得分（0-25）"`
	Delivery *int `json:"delivery,omitempty" jsonschema:"description=交付及时率得分（默认25，0-25）"`
	Quality  *int `json:"quality,omitempty" jsonschema:"description=来料合格率得分（默认20，0-25）"`
}

func totalScore() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        TotalScore,
			Description: "计算供应商总分（0-100分）。总分 = SDQ + 停线 + 交付 + 质量，最高100分。",
		},
		func(ctx context.Context, args totalArgs) (string, error) {
			delivery, quality := supplier.DefaultDelivery, supplier.DefaultQuality
			if args.Delivery != nil {
				delivery = *args.Delivery
			}
			if args.Quality != nil {
				quality = *args.Quality
			}
			total, err := supplier.TotalScore(args.SDQ, args.Downtime, delivery, quality)
			if err != nil {
				return err.Error(), nil
			}
			return strconv.Itoa(total), nil
		},
	)
}

type scoringArgs struct {
	Consumption    int     `json:"consumption" jsonschema:"required,description=物料消耗数量"`
	DefectCount    int     `json:"defect_count" jsonschema:"required,description=出问题物料数量"`
	NCMCount       int     `json:"ncm_count" jsonschema:"required,description=NCM记录数量"`
	ActualDowntime float64 `json:"actual_downtime" jsonschema:"required,description=实际停线时间(小时)"`
	TargetDowntime float64 `json:"target_downtime" jsonschema:"required,description=目标停线时间(小时)"`
	SupplierName   string  `json:"supplier_name" jsonschema:"required,description=供应商名称"`
	SupplierCode   string  `json:"supplier_code,omitempty" jsonschema:"description=供应商代码"`
	ReportTitle    string  `json:"report_title,omitempty" jsonschema:"description=报告标题，默认 供应商打分"`
}

func supplierScoring() (tool.CallableTool, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        SupplierScoring,
			Description: "一站式评分报告: 输入消费/缺陷/NCM/实际停线/目标停线/名称(+代码,标题可选)。返回已格式化文本+SCORING_DONE。",
		},
		func(ctx context.Context, args scoringArgs) (string, error) {
			in := supplier.Input{
				Consumption:    args.Consumption,
				DefectCount:    args.DefectCount,
				NCMCount:       args.NCMCount,
				ActualDowntime: args.ActualDowntime,
				TargetDowntime: args.TargetDowntime,
			}
			return supplier.Report(in, args.ReportTitle, args.SupplierName, args.SupplierCode), nil
		},
	)
}
