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

	"github.com/xuri/excelize/v2"
)

// ColumnType is the SQLite storage class inferred for a column.
type ColumnType string

// Column types.
const (
	Integer ColumnType = "INTEGER"
	Real    ColumnType = "REAL"
	Text    ColumnType = "TEXT"
)

// Column is a named, typed column of a Table.
type Column struct {
	Name string
	Type ColumnType
}

// Table is a sheet loaded into memory. Cells hold int64, float64, string
// or nil for empty cells.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the index of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// SheetNames lists the sheets of a workbook in tab order.
func SheetNames(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

// ReadSheet loads one sheet. The first row is the header; blank headers
// become "Unnamed: <i>" and repeated headers get ".1", ".2" suffixes.
// Fully blank rows are skipped. An empty sheet name selects the first sheet.
func ReadSheet(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, fmt.Errorf("worksheet named '%s' not found", sheet)
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	text, err := textCells(f, sheet, rows)
	if err != nil {
		return nil, err
	}
	return newTable(sheet, rows, text), nil
}

// textCells marks the data cells stored as strings. Their values are kept
// verbatim, so "0413001" stays text instead of becoming 413001.
func textCells(f *excelize.File, sheet string, rows [][]string) ([][]bool, error) {
	text := make([][]bool, len(rows))
	for r := 1; r < len(rows); r++ {
		text[r] = make([]bool, len(rows[r]))
		for c, v := range rows[r] {
			if v == "" {
				continue
			}
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			typ, err := f.GetCellType(sheet, axis)
			if err != nil {
				return nil, err
			}
			switch typ {
			case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
				text[r][c] = true
			}
		}
	}
	return text, nil
}

// sheetRow is one data row with its string-cell mask.
type sheetRow struct {
	values []string
	text   []bool
}

func newTable(name string, rows [][]string, text [][]bool) *Table {
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}

	var header []string
	if len(rows) > 0 {
		header = rows[0]
	}
	names := headerNames(header, width)

	data := make([]sheetRow, 0, len(rows))
	for i := 1; i < len(rows); i++ {
		if isBlank(rows[i]) {
			continue
		}
		row := sheetRow{values: rows[i]}
		if i < len(text) {
			row.text = text[i]
		}
		data = append(data, row)
	}

	t := &Table{Name: name, Columns: make([]Column, width), Rows: make([][]any, len(data))}
	for c := 0; c < width; c++ {
		t.Columns[c] = Column{Name: names[c], Type: inferType(data, c)}
	}
	for i, r := range data {
		row := make([]any, width)
		for c := 0; c < width; c++ {
			row[c] = convertCell(cell(r.values, c), t.Columns[c].Type)
		}
		t.Rows[i] = row
	}
	return t
}

// headerNames names every column. Names compare case-insensitively since
// SQLite identifiers do.
func headerNames(header []string, width int) []string {
	names := make([]string, width)
	used := make(map[string]bool, width)
	suffix := make(map[string]int, width)
	for i := 0; i < width; i++ {
		base := strings.TrimSpace(cell(header, i))
		if base == "" {
			base = fmt.Sprintf("Unnamed: %d", i)
		}
		key := strings.ToLower(base)
		name := base
		for used[strings.ToLower(name)] {
			suffix[key]++
			name = fmt.Sprintf("%s.%d", base, suffix[key])
		}
		used[strings.ToLower(name)] = true
		names[i] = name
	}
	return names
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// inferType picks the narrowest type that fits every non-empty cell. Any
// string cell makes the column TEXT.
func inferType(rows []sheetRow, c int) ColumnType {
	typ := Integer
	filled := false
	for _, r := range rows {
		v := strings.TrimSpace(cell(r.values, c))
		if v == "" {
			continue
		}
		filled = true
		if c < len(r.text) && r.text[c] {
			return Text
		}
		if typ == Integer {
			if _, err := strconv.ParseInt(v, 10, 64); err == nil {
				continue
			}
			typ = Real
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return Text
		}
	}
	if !filled {
		return Text
	}
	return typ
}

func convertCell(raw string, typ ColumnType) any {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	switch typ {
	case Integer:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case Real:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return raw
	}
}

// ColumnValues returns the distinct non-empty values of a column as text,
// in first-seen order.
func ColumnValues(path, sheet, column string) ([]string, error) {
	t, err := ReadSheet(path, sheet)
	if err != nil {
		return nil, err
	}
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found in sheet %q", column, sheet)
	}

	seen := make(map[string]bool)
	var values []string
	for _, r := range t.Rows {
		if r[idx] == nil {
			continue
		}
		v := FormatValue(r[idx])
		if seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	return values, nil
}
