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
	"strings"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/workbook"
)

// Column names used by the calculators.
const (
	ColMonth       = "month"
	ColAmount      = "amount"
	ColRate        = "rate"
	ColMonthlyCost = "monthly_cost"
)

// Frame is a small column-ordered table. Cells hold numbers, strings or nil.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// EmptyMonthly returns the frame produced when input cannot be loaded.
func EmptyMonthly() Frame {
	return Frame{Columns: []string{ColMonth, ColAmount, ColRate, ColMonthlyCost}}
}

// Index returns the position of the named column, or -1. Names compare
// case-insensitively.
func (f Frame) Index(name string) int {
	for i, c := range f.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Column returns the values of the named column, or nil when it is absent.
func (f Frame) Column(name string) []any {
	idx := f.Index(name)
	if idx < 0 {
		return nil
	}
	out := make([]any, len(f.Rows))
	for i, r := range f.Rows {
		if idx < len(r) {
			out[i] = r[idx]
		}
	}
	return out
}

func (f *Frame) addColumn(name string, value func(row []any) any) {
	f.Columns = append(f.Columns, name)
	for i, r := range f.Rows {
		f.Rows[i] = append(r, value(r))
	}
}

// Records returns the rows keyed by column name.
func (f Frame) Records() []map[string]any {
	out := make([]map[string]any, len(f.Rows))
	for i, r := range f.Rows {
		rec := make(map[string]any, len(f.Columns))
		for c, name := range f.Columns {
			if c < len(r) {
				rec[name] = r[c]
			} else {
				rec[name] = nil
			}
		}
		out[i] = rec
	}
	return out
}

// MarshalJSON encodes the frame as a list of records.
func (f Frame) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Records())
}

// String renders the frame as an aligned text table.
func (f Frame) String() string {
	if len(f.Rows) == 0 {
		return "Empty DataFrame\nColumns: [" + strings.Join(f.Columns, ", ") + "]"
	}
	return workbook.FormatTable(f.Columns, f.Rows, 0)
}
