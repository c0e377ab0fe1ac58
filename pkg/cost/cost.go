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

package cost

import (
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

var required = []string{ColMonth, ColAmount, ColRate}

// MonthlyCost adds a monthly_cost column, amount × rate rounded to two
// places, to the input table. Column names are lowercased first.
//
// Missing month, amount or rate columns are added as nulls together with a
// null monthly_cost column. Input that cannot be loaded yields EmptyMonthly.
// Amounts and rates that are not numbers become null, as does their cost.
func MonthlyCost(in Input) Frame {
	f, err := Load(in)
	if err != nil {
		slog.Error("类型转换失败", "error", err)
		return EmptyMonthly()
	}
	for i, c := range f.Columns {
		f.Columns[i] = strings.ToLower(c)
	}

	var missing []string
	for _, col := range required {
		if f.Index(col) < 0 {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		slog.Error("输入数据缺少必要列", "missing", strings.Join(missing, ", "), "required", strings.Join(required, ", "))
		for _, col := range missing {
			f.addColumn(col, func([]any) any { return nil })
		}
		f.addColumn(ColMonthlyCost, func([]any) any { return nil })
		return f
	}

	amountIdx, rateIdx := f.Index(ColAmount), f.Index(ColRate)
	for _, r := range f.Rows {
		r[amountIdx] = numeric(r[amountIdx])
		r[rateIdx] = numeric(r[rateIdx])
	}

	if idx := f.Index(ColMonthlyCost); idx >= 0 {
		f.Columns = append(f.Columns[:idx], f.Columns[idx+1:]...)
		for i, r := range f.Rows {
			f.Rows[i] = append(r[:idx], r[idx+1:]...)
		}
		amountIdx, rateIdx = f.Index(ColAmount), f.Index(ColRate)
	}
	f.addColumn(ColMonthlyCost, func(r []any) any {
		a, okA := r[amountIdx].(float64)
		b, okB := r[rateIdx].(float64)
		if !okA || !okB {
			return nil
		}
		return round2(a * b)
	})
	slog.Debug("Monthly cost computed", "rows", len(f.Rows))
	return f
}

// YearlyCost sums the monthly_cost column. Null cells are skipped. A frame
// without the column, or with a non-numeric cell in it, sums to zero.
func YearlyCost(f Frame) float64 {
	values := f.Column(ColMonthlyCost)
	if values == nil {
		slog.Error("计算年度费用总额时出错", "error", "missing column monthly_cost")
		return 0
	}
	var total float64
	for _, v := range values {
		if v == nil {
			continue
		}
		n := numeric(v)
		if n == nil {
			slog.Error("计算年度费用总额时出错", "error", "non-numeric monthly_cost", "value", v)
			return 0
		}
		total += n.(float64)
	}
	return total
}

// numeric coerces v to float64, or nil when it is not a finite number.
func numeric(v any) any {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return nil
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		f = n
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
