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

// Package cost computes monthly and yearly cost rollups from tabular input.
//
// The calculators are lenient: malformed input degrades to empty or null
// results and is logged, it is never returned as an error.
package cost

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/workbook"
)

// Input is a table given one of three ways. Exactly one field is set.
type Input struct {
	// Records is a list of rows keyed by column name.
	Records []map[string]any

	// Columns maps column names to equally long value lists.
	Columns map[string][]any

	// Path names an .xlsx, .xls or .csv file. Workbooks are read from their
	// first sheet.
	Path string
}

// FromRecords wraps a row list.
func FromRecords(records []map[string]any) Input {
	return Input{Records: records}
}

// FromColumns wraps a column map.
func FromColumns(columns map[string][]any) Input {
	return Input{Columns: columns}
}

// FromPath wraps a file path.
func FromPath(path string) Input {
	return Input{Path: path}
}

// UnmarshalJSON accepts a JSON array of objects, an object of arrays, or a
// file path string.
func (in *Input) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*in = Input{}
		return nil
	}

	dec := func(v any) error {
		d := json.NewDecoder(bytes.NewReader(data))
		d.UseNumber()
		return d.Decode(v)
	}
	switch data[0] {
	case '[':
		var records []map[string]any
		if err := dec(&records); err != nil {
			return fmt.Errorf("records: %w", err)
		}
		*in = Input{Records: records}
	case '{':
		var columns map[string][]any
		if err := dec(&columns); err != nil {
			return fmt.Errorf("columns: %w", err)
		}
		*in = Input{Columns: columns}
	case '"':
		var path string
		if err := json.Unmarshal(data, &path); err != nil {
			return err
		}
		*in = Input{Path: path}
	default:
		return fmt.Errorf("不支持的输入类型：%s，支持类型：记录列表、列字典、Excel/CSV文件路径字符串", string(data[:1]))
	}
	return nil
}

// ErrUnsupportedFile is returned for paths that are not Excel or CSV files.
var ErrUnsupportedFile = errors.New("字符串输入非支持的文件格式（仅支持.xlsx/.xls/.csv）")

// Load converts the input into a Frame.
func Load(in Input) (Frame, error) {
	switch {
	case in.Records != nil:
		return fromRecords(in.Records), nil
	case in.Columns != nil:
		return fromColumns(in.Columns)
	case in.Path != "":
		return fromPath(in.Path)
	default:
		return Frame{}, errors.New("输入为空")
	}
}

func fromRecords(records []map[string]any) Frame {
	seen := make(map[string]bool)
	var names []string
	for _, r := range records {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	names = orderColumns(names)

	f := Frame{Columns: names, Rows: make([][]any, len(records))}
	for i, r := range records {
		row := make([]any, len(names))
		for c, name := range names {
			row[c] = r[name]
		}
		f.Rows[i] = row
	}
	return f
}

func fromColumns(columns map[string][]any) (Frame, error) {
	names := make([]string, 0, len(columns))
	n := -1
	for k, v := range columns {
		names = append(names, k)
		if n >= 0 && len(v) != n {
			return Frame{}, errors.New("All arrays must be of the same length")
		}
		n = len(v)
	}
	names = orderColumns(names)

	f := Frame{Columns: names, Rows: make([][]any, max(n, 0))}
	for i := range f.Rows {
		row := make([]any, len(names))
		for c, name := range names {
			row[c] = columns[name][i]
		}
		f.Rows[i] = row
	}
	return f, nil
}

// orderColumns puts month, amount and rate first and sorts the rest, so that
// map-shaped input yields a stable layout.
func orderColumns(names []string) []string {
	rank := func(name string) int {
		switch strings.ToLower(name) {
		case ColMonth:
			return 0
		case ColAmount:
			return 1
		case ColRate:
			return 2
		default:
			return 3
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		ri, rj := rank(names[i]), rank(names[j])
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
	return names
}

func fromPath(path string) (Frame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xls":
		t, err := workbook.ReadSheet(path, "")
		if err != nil {
			return Frame{}, err
		}
		return Frame{Columns: t.ColumnNames(), Rows: t.Rows}, nil
	case ".csv":
		return readCSV(path)
	default:
		return Frame{}, ErrUnsupportedFile
	}
}

func readCSV(path string) (Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return Frame{}, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return Frame{}, nil
	}

	f := Frame{Columns: records[0], Rows: make([][]any, 0, len(records)-1)}
	for _, rec := range records[1:] {
		row := make([]any, len(f.Columns))
		for i := range row {
			if i < len(rec) && strings.TrimSpace(rec[i]) != "" {
				row[i] = rec[i]
			}
		}
		f.Rows = append(f.Rows, row)
	}
	return f, nil
}
