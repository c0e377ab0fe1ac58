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

// Package costquery builds the cost and allocation-rate query from user
// filters. Filter values that name cost centers, keys or functions are
// checked against the workbook before they are embedded.
package costquery

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/text/width"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/workbook"
)

// RateQuery holds the filters of one rate query. Empty filters are left out
// of the WHERE clause.
type RateQuery struct {
	Year         string `json:"year" jsonschema:"required,description=年份条件（如 'FY25'、'FY26'）"`
	Scenario     string `json:"scenario" jsonschema:"required,description=场景条件（如 'Actual'、'Budget1'）"`
	CostTable    string `json:"cost_db_table,omitempty" jsonschema:"description=主表名，默认 'CostDataBase'"`
	RateTable    string `json:"table7,omitempty" jsonschema:"description=关联表名，默认 'Table7'"`
	Function     string `json:"func,omitempty" jsonschema:"description=Function筛选条件，默认 ''"`
	Key          string `json:"key,omitempty" jsonschema:"description=Key筛选条件，默认 ''"`
	CostCenter   string `json:"cc,omitempty" jsonschema:"description=CC筛选条件，必须是CC Mapping表中的成本中心编码"`
	BusinessLine string `json:"bl,omitempty" jsonschema:"description=BL筛选条件，默认 ''"`
}

// ValidationError reports a filter value missing from its allow-list.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("错误：%s字段值 '%s' 不在允许范围内，请重新解析用户输入生成新的sql语句后再调用本函数", e.Field, e.Value)
}

// ValueLister returns the values a column may take.
type ValueLister func(path, sheet, column string) ([]string, error)

// Builder validates filters and renders the rate query.
type Builder struct {
	path       string
	costTable  string
	rateTable  string
	allowLists map[string]config.AllowListSource
	values     ValueLister
}

// Option configures a Builder.
type Option func(*Builder)

// WithValueLister replaces the workbook lookup used for allow-lists.
func WithValueLister(fn ValueLister) Option {
	return func(b *Builder) {
		b.values = fn
	}
}

// NewBuilder creates a builder over the configured workbook.
func NewBuilder(cfg config.WorkbookConfig, opts ...Option) *Builder {
	b := &Builder{
		path:       cfg.Path,
		costTable:  cfg.CostTable,
		rateTable:  cfg.RateTable,
		allowLists: cfg.AllowLists,
		values:     workbook.ColumnValues,
	}
	if b.costTable == "" {
		b.costTable = "CostDataBase"
	}
	if b.rateTable == "" {
		b.rateTable = "Table7"
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates q and returns the query text. A value outside its
// allow-list yields a *ValidationError; a failed lookup counts as outside.
func (b *Builder) Build(ctx context.Context, q RateQuery) (string, error) {
	q = normalize(q)

	checks := []struct {
		field string
		value string
	}{
		{"cc", q.CostCenter},
		{"key", q.Key},
		{"func", q.Function},
		{"bl", q.BusinessLine},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		src, ok := b.allowLists[c.field]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		allowed, err := b.values(b.path, src.Sheet, src.Column)
		if err != nil {
			slog.Error("Allow-list lookup failed", "field", c.field, "sheet", src.Sheet, "column", src.Column, "error", err)
		}
		if !slices.Contains(allowed, c.value) {
			return "", &ValidationError{Field: c.field, Value: c.value}
		}
	}

	if q.CostTable == "" {
		q.CostTable = b.costTable
	}
	if q.RateTable == "" {
		q.RateTable = b.rateTable
	}
	return Render(q), nil
}

func normalize(q RateQuery) RateQuery {
	clean := func(s string) string {
		return strings.TrimSpace(width.Narrow.String(s))
	}
	q.Year = clean(q.Year)
	q.Scenario = clean(q.Scenario)
	q.CostTable = clean(q.CostTable)
	q.RateTable = clean(q.RateTable)
	q.Function = clean(q.Function)
	q.Key = clean(q.Key)
	q.CostCenter = clean(q.CostCenter)
	q.BusinessLine = clean(q.BusinessLine)
	return q
}

// Render builds the query text without validation. Table names are quoted
// as identifiers and filter values as string literals.
func Render(q RateQuery) string {
	filters := []struct {
		column string
		value  string
	}{
		{`cdb."Year"`, q.Year},
		{`cdb."Scenario"`, q.Scenario},
		{`cdb."Function"`, q.Function},
		{`cdb."Key"`, q.Key},
		{`t7."cc"`, q.CostCenter},
		{`t7."bl"`, q.BusinessLine},
	}
	var conds []string
	for _, f := range filters {
		if f.value != "" {
			conds = append(conds, fmt.Sprintf("%s = %s", f.column, quoteLiteral(f.value)))
		}
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	return fmt.Sprintf(rateQueryTemplate, quoteIdent(q.CostTable), quoteIdent(q.RateTable), where)
}

const rateQueryTemplate = "\nSELECT\n" +
	"    cdb.`Month`,\n" +
	"    SUM(COALESCE(t7.`RateNo`, 0)) AS `rate`,\n" +
	"    cdb.`Amount` AS `amount`\n" +
	"FROM\n" +
	"    %s cdb\n" +
	"LEFT JOIN\n" +
	"    %s t7\n" +
	"ON\n" +
	"    cdb.`Month` = t7.`Month`\n" +
	"    AND cdb.`Year` = t7.`Year`\n" +
	"    AND cdb.`Scenario` = t7.`Scenario`\n" +
	"    AND cdb.`Key` = t7.`Key`\n" +
	"%s\n" +
	"GROUP BY\n" +
	"    cdb.`Month`, cdb.`Amount`\n" +
	"ORDER BY\n" +
	"    cdb.`Month`;\n"

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
