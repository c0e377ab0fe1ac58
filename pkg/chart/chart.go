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

// Package chart validates chart requests and encodes them into the fenced
// text block that agents embed in their answers.
//
// The wire format is:
//
//	[CHART_START]
//	{"type": "bar", "title": "...", "labels": [...], "values": [...]}
//	[CHART_END]
//
// Build never panics and never returns a Go error for bad input. Invalid
// requests come back as a *BuildError that serializes to
// {"error": msg, "chart_type": t}.
package chart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Envelope markers.
const (
	StartMarker = "[CHART_START]"
	EndMarker   = "[CHART_END]"
)

// Type is a chart type.
type Type string

// Supported chart types.
const (
	Pie        Type = "pie"
	Bar        Type = "bar"
	Line       Type = "line"
	StackedBar Type = "stacked_bar"
	GroupedBar Type = "grouped_bar"
	BarLine    Type = "bar_line"
	Histogram  Type = "histogram"
)

// Types lists every supported chart type in display order.
var Types = []Type{Pie, Bar, Line, StackedBar, GroupedBar, BarLine, Histogram}

// IsValid reports whether t is a supported chart type.
func (t Type) IsValid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Series is one named value list of a stacked or grouped bar chart.
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Descriptor is a validated chart. Only the fields required by Type are set.
type Descriptor struct {
	Type     Type      `json:"type"`
	Title    string    `json:"title"`
	Labels   []string  `json:"labels,omitempty"`
	Values   []float64 `json:"values,omitempty"`
	Series   []Series  `json:"series,omitempty"`
	BarData  []float64 `json:"bar_data,omitempty"`
	LineData []float64 `json:"line_data,omitempty"`
	BarName  string    `json:"bar_name,omitempty"`
	LineName string    `json:"line_name,omitempty"`
	Bins     int       `json:"bins,omitempty"`
}

// BuildError is a structured validation failure.
type BuildError struct {
	Message   string `json:"error"`
	ChartType string `json:"chart_type"`
}

func (e *BuildError) Error() string {
	return e.Message
}

// JSON returns the error object as it is handed back to the model.
func (e *BuildError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, e.Message)
	}
	return string(data)
}

func buildErr(chartType, format string, args ...any) *BuildError {
	return &BuildError{Message: fmt.Sprintf(format, args...), ChartType: chartType}
}

// Encode wraps a descriptor in the chart envelope. The JSON is indented by
// two spaces and keeps non-ASCII text unescaped.
func Encode(d Descriptor) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return "", fmt.Errorf("failed to encode chart: %w", err)
	}
	body := strings.TrimRight(buf.String(), "\n")
	return StartMarker + "\n" + body + "\n" + EndMarker, nil
}

// Decode parses an envelope produced by Encode back into a descriptor.
// Surrounding text outside the markers is ignored.
func Decode(block string) (Descriptor, error) {
	start := strings.Index(block, StartMarker)
	if start < 0 {
		return Descriptor{}, fmt.Errorf("missing %s", StartMarker)
	}
	rest := block[start+len(StartMarker):]
	end := strings.Index(rest, EndMarker)
	if end < 0 {
		return Descriptor{}, fmt.Errorf("missing %s", EndMarker)
	}

	var d Descriptor
	if err := json.Unmarshal([]byte(strings.TrimSpace(rest[:end])), &d); err != nil {
		return Descriptor{}, fmt.Errorf("failed to decode chart: %w", err)
	}
	return d, nil
}
