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

package chart

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Request is a chart request as it arrives from a tool call. Arrays are
// untyped because models send whatever JSON they like; Build converts them
// once and rejects anything that is not numeric.
type Request struct {
	Type     string           `json:"type" jsonschema:"required,description=图表类型: pie/bar/line/stacked_bar/grouped_bar/bar_line/histogram"`
	Title    string           `json:"title" jsonschema:"required,description=图表标题"`
	Labels   []any            `json:"labels,omitempty" jsonschema:"description=类别标签 (pie/bar/line/stacked_bar/grouped_bar/bar_line)"`
	Values   []any            `json:"values,omitempty" jsonschema:"description=数值列表 (pie/bar/line/histogram)"`
	Series   []map[string]any `json:"series,omitempty" jsonschema:"description=系列列表，每项包含name与values (stacked_bar/grouped_bar)"`
	BarData  []any            `json:"bar_data,omitempty" jsonschema:"description=柱状数据 (bar_line)"`
	LineData []any            `json:"line_data,omitempty" jsonschema:"description=折线数据 (bar_line)"`
	BarName  string           `json:"bar_name,omitempty" jsonschema:"description=柱状系列名称 (bar_line)"`
	LineName string           `json:"line_name,omitempty" jsonschema:"description=折线系列名称 (bar_line)"`
	Bins     any              `json:"bins,omitempty" jsonschema:"description=直方图区间数，正整数 (histogram)"`
}

// Build validates a request and returns the encoded chart block.
// Validation failures are returned as *BuildError.
func Build(req Request) (string, error) {
	d, err := Validate(req)
	if err != nil {
		return "", err
	}
	block, encErr := Encode(d)
	if encErr != nil {
		return "", buildErr(string(d.Type), "%v", encErr)
	}
	return block, nil
}

// Validate converts a request into a descriptor, checking the fields
// required by its type.
func Validate(req Request) (Descriptor, *BuildError) {
	t := strings.TrimSpace(req.Type)
	if !Type(t).IsValid() {
		return Descriptor{}, buildErr(t, "不支持的图表类型: %s", t)
	}

	d := Descriptor{Type: Type(t), Title: req.Title}
	switch d.Type {
	case Pie, Bar, Line:
		if len(req.Labels) == 0 || len(req.Values) == 0 {
			return Descriptor{}, buildErr(t, "缺少labels或values")
		}
		if len(req.Labels) != len(req.Values) {
			return Descriptor{}, buildErr(t, "labels与values长度不一致")
		}
		values, err := toFloats(req.Values)
		if err != nil {
			return Descriptor{}, buildErr(t, "values必须为数值列表")
		}
		d.Labels = toLabels(req.Labels)
		d.Values = values

	case StackedBar, GroupedBar:
		if len(req.Series) == 0 {
			return Descriptor{}, buildErr(t, "series需为包含name与values的对象列表")
		}
		if len(req.Labels) == 0 {
			return Descriptor{}, buildErr(t, "缺少labels")
		}
		series := make([]Series, 0, len(req.Series))
		for _, s := range req.Series {
			name, hasName := s["name"]
			raw, hasValues := s["values"]
			list, isList := raw.([]any)
			if !hasName || !hasValues || !isList {
				return Descriptor{}, buildErr(t, "series需为包含name与values的对象列表")
			}
			label := fmt.Sprint(name)
			if len(list) != len(req.Labels) {
				return Descriptor{}, buildErr(t, "系列 %s 的values长度与labels不一致", label)
			}
			values, err := toFloats(list)
			if err != nil {
				return Descriptor{}, buildErr(t, "系列 %s 的values必须为数值列表", label)
			}
			series = append(series, Series{Name: label, Values: values})
		}
		d.Labels = toLabels(req.Labels)
		d.Series = series

	case BarLine:
		if len(req.Labels) == 0 {
			return Descriptor{}, buildErr(t, "bar_line缺少labels")
		}
		if len(req.Labels) != len(req.BarData) || len(req.Labels) != len(req.LineData) {
			return Descriptor{}, buildErr(t, "bar_line的labels, bar_data, line_data长度必须一致")
		}
		if strings.TrimSpace(req.BarName) == "" || strings.TrimSpace(req.LineName) == "" {
			return Descriptor{}, buildErr(t, "bar_line缺少bar_name或line_name")
		}
		bars, err := toFloats(req.BarData)
		if err != nil {
			return Descriptor{}, buildErr(t, "bar_data必须为数值列表")
		}
		lines, err := toFloats(req.LineData)
		if err != nil {
			return Descriptor{}, buildErr(t, "line_data必须为数值列表")
		}
		d.Labels = toLabels(req.Labels)
		d.BarData = bars
		d.LineData = lines
		d.BarName = req.BarName
		d.LineName = req.LineName

	case Histogram:
		bins, ok := toPositiveInt(req.Bins)
		if !ok {
			return Descriptor{}, buildErr(t, "histogram的bins必须为正整数")
		}
		if len(req.Values) == 0 {
			return Descriptor{}, buildErr(t, "histogram缺少values")
		}
		values, err := toFloats(req.Values)
		if err != nil {
			return Descriptor{}, buildErr(t, "histogram的values必须为数值列表")
		}
		d.Values = values
		d.Bins = bins
	}

	return d, nil
}

// toFloats converts untyped JSON numbers. Anything that is not a number is
// rejected, including numeric strings.
func toFloats(in []any) ([]float64, error) {
	out := make([]float64, len(in))
	for i, v := range in {
		f, ok := ToFloat(v)
		if !ok {
			return nil, fmt.Errorf("value %d is not numeric: %v", i, v)
		}
		out[i] = f
	}
	return out, nil
}

// ToFloat converts a decoded JSON number or Go numeric value to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toPositiveInt(v any) (int, bool) {
	f, ok := ToFloat(v)
	if !ok || f <= 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// toLabels renders labels as strings. Numeric labels such as months keep
// their shortest form.
func toLabels(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch l := v.(type) {
		case string:
			out[i] = l
		case float64:
			out[i] = strconv.FormatFloat(l, 'f', -1, 64)
		case nil:
			out[i] = ""
		default:
			out[i] = fmt.Sprint(l)
		}
	}
	return out
}
