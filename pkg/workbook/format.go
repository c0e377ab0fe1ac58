// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workbook

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// FormatValue renders one cell the way result tables print it. NULL is "NaN".
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NaN"
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(x)
	}
}

// FormatTable renders rows as a right-aligned text table with a leading row
// index. Widths are display widths, so CJK text lines up. When limit is
// positive only the first limit rows are printed, followed by a note.
func FormatTable(columns []string, rows [][]any, limit int) string {
	shown := rows
	if limit > 0 && len(rows) > limit {
		shown = rows[:limit]
	}

	grid := make([][]string, 0, len(shown)+1)
	header := make([]string, 0, len(columns)+1)
	header = append(header, "")
	header = append(header, columns...)
	grid = append(grid, header)
	for i, r := range shown {
		line := make([]string, 0, len(columns)+1)
		line = append(line, strconv.Itoa(i))
		for c := range columns {
			var v any
			if c < len(r) {
				v = r[c]
			}
			line = append(line, FormatValue(v))
		}
		grid = append(grid, line)
	}

	widths := make([]int, len(header))
	for _, line := range grid {
		for c, s := range line {
			widths[c] = max(widths[c], runewidth.StringWidth(s))
		}
	}

	var b strings.Builder
	for i, line := range grid {
		if i > 0 {
			b.WriteByte('\n')
		}
		for c, s := range line {
			if c > 0 {
				b.WriteString("  ")
			}
			b.WriteString(strings.Repeat(" ", widths[c]-runewidth.StringWidth(s)))
			b.WriteString(s)
		}
	}
	if len(shown) < len(rows) {
		fmt.Fprintf(&b, "\n... 其余 %d 行已省略", len(rows)-len(shown))
	}
	return b.String()
}

// Markdown renders a table as a GitHub-style pipe table. NULL cells are blank.
func Markdown(t *Table) string {
	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("|")
		for _, c := range cells {
			b.WriteString(" ")
			b.WriteString(strings.ReplaceAll(c, "|", "\\|"))
			b.WriteString(" |")
		}
		b.WriteByte('\n')
	}

	writeRow(t.ColumnNames())
	sep := make([]string, len(t.Columns))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(sep)
	for _, r := range t.Rows {
		cells := make([]string, len(r))
		for i, v := range r {
			if v != nil {
				cells[i] = strings.ReplaceAll(FormatValue(v), "\n", " ")
			}
		}
		writeRow(cells)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
