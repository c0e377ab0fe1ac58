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

package render

import (
	"log/slog"
	"math"
	"strings"
)

// Figure is a plotly-compatible chart object. It marshals to the JSON a
// plotly.js client accepts as {data, layout}.
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// Trace is one plotly trace.
type Trace struct {
	Type         string  `json:"type"`
	Name         string  `json:"name,omitempty"`
	X            []any   `json:"x,omitempty"`
	Y            []any   `json:"y,omitempty"`
	Labels       []any   `json:"labels,omitempty"`
	Values       []any   `json:"values,omitempty"`
	Text         []any   `json:"text,omitempty"`
	TextInfo     string  `json:"textinfo,omitempty"`
	TextPosition string  `json:"textposition,omitempty"`
	Mode         string  `json:"mode,omitempty"`
	YAxis        string  `json:"yaxis,omitempty"`
	NBinsX       int     `json:"nbinsx,omitempty"`
	Line         *Line   `json:"line,omitempty"`
	Marker       *Marker `json:"marker,omitempty"`
}

// Line styles a trace line or a marker outline.
type Line struct {
	Color string  `json:"color,omitempty"`
	Width float64 `json:"width,omitempty"`
}

// Marker styles trace markers.
type Marker struct {
	Size  float64 `json:"size,omitempty"`
	Color string  `json:"color,omitempty"`
	Line  *Line   `json:"line,omitempty"`
}

// Layout is the subset of plotly layout the renderer sets.
type Layout struct {
	Title   *Title  `json:"title,omitempty"`
	BarMode string  `json:"barmode,omitempty"`
	BarGap  float64 `json:"bargap,omitempty"`
	XAxis   *Axis   `json:"xaxis,omitempty"`
	YAxis   *Axis   `json:"yaxis,omitempty"`
	YAxis2  *Axis   `json:"yaxis2,omitempty"`
	Legend  *Legend `json:"legend,omitempty"`
}

// Title is a centered chart or axis title.
type Title struct {
	Text string  `json:"text"`
	X    float64 `json:"x,omitempty"`
}

// Axis configures one axis.
type Axis struct {
	Title      *Title `json:"title,omitempty"`
	Side       string `json:"side,omitempty"`
	Overlaying string `json:"overlaying,omitempty"`
}

// Legend positions the legend.
type Legend struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Default series names of combined bar and line charts.
const (
	DefaultBarName  = "柱状数据"
	DefaultLineName = "折线数据"
)

// DefaultBins is the histogram bin count when none is given.
const DefaultBins = 10

type figureBuilder func(title string, cfg map[string]any) *Figure

var figureBuilders = map[string]figureBuilder{
	"pie":         pieFigure,
	"bar":         barFigure,
	"line":        lineFigure,
	"stacked_bar": seriesFigure("stack", "inside"),
	"grouped_bar": seriesFigure("group", "outside"),
	"bar_line":    barLineFigure,
	"bar+line":    barLineFigure,
	"line_bar":    barLineFigure,
	"histogram":   histogramFigure,
}

// NewFigure converts a decoded chart object into a figure. It returns nil
// for unsupported types and for charts missing the data their type needs.
func NewFigure(cfg map[string]any) *Figure {
	typ := strings.TrimSpace(stringField(cfg, "type", ""))
	build, ok := figureBuilders[typ]
	if !ok {
		slog.Warn("Unsupported chart type", "type", typ)
		return nil
	}
	return build(stringField(cfg, "title", ""), cfg)
}

func pieFigure(title string, cfg map[string]any) *Figure {
	return &Figure{
		Data: []Trace{{
			Type:         "pie",
			Labels:       listField(cfg, "labels"),
			Values:       listField(cfg, "values"),
			TextInfo:     "label+percent",
			TextPosition: "auto",
		}},
		Layout: Layout{Title: centered(title)},
	}
}

func barFigure(title string, cfg map[string]any) *Figure {
	labels, values := listField(cfg, "labels"), listField(cfg, "values")
	if len(labels) == 0 || len(values) == 0 {
		slog.Warn("Bar chart missing labels or values")
		return nil
	}
	return &Figure{
		Data:   []Trace{{Type: "bar", X: labels, Y: values, Text: values, TextPosition: "auto"}},
		Layout: Layout{Title: centered(title)},
	}
}

func lineFigure(title string, cfg map[string]any) *Figure {
	labels, values := listField(cfg, "labels"), listField(cfg, "values")
	if len(labels) == 0 || len(values) == 0 {
		slog.Warn("Line chart missing x or y data")
		return nil
	}
	return &Figure{
		Data: []Trace{{
			Type:   "scatter",
			X:      labels,
			Y:      values,
			Mode:   "lines+markers",
			Line:   &Line{Width: 2},
			Marker: &Marker{Size: 6},
		}},
		Layout: Layout{Title: centered(title)},
	}
}

func seriesFigure(barMode, textPosition string) figureBuilder {
	return func(title string, cfg map[string]any) *Figure {
		labels, series := listField(cfg, "labels"), listField(cfg, "series")
		if len(labels) == 0 || len(series) == 0 {
			slog.Warn("Series chart missing labels or series", "barmode", barMode)
			return nil
		}

		fig := &Figure{Layout: Layout{
			Title:   &Title{Text: title, X: 0.5},
			BarMode: barMode,
			XAxis:   &Axis{Title: &Title{Text: "类别"}},
			YAxis:   &Axis{Title: &Title{Text: "数值"}},
		}}
		for _, s := range series {
			m, _ := s.(map[string]any)
			values := listField(m, "values")
			if len(values) == 0 {
				values = listField(m, "data")
			}
			fig.Data = append(fig.Data, Trace{
				Type:         "bar",
				Name:         stringField(m, "name", ""),
				X:            labels,
				Y:            values,
				Text:         values,
				TextPosition: textPosition,
			})
		}
		return fig
	}
}

func barLineFigure(title string, cfg map[string]any) *Figure {
	labels := listField(cfg, "labels")
	barData, lineData := listField(cfg, "bar_data"), listField(cfg, "line_data")
	if len(labels) == 0 || len(barData) == 0 || len(lineData) == 0 {
		slog.Warn("Bar+line chart missing required data")
		return nil
	}
	barName := stringField(cfg, "bar_name", DefaultBarName)
	lineName := stringField(cfg, "line_name", DefaultLineName)

	return &Figure{
		Data: []Trace{
			{Type: "bar", Name: barName, X: labels, Y: barData, Text: barData, TextPosition: "outside", YAxis: "y"},
			{
				Type:   "scatter",
				Name:   lineName,
				X:      labels,
				Y:      lineData,
				Mode:   "lines+markers",
				YAxis:  "y2",
				Line:   &Line{Color: "red", Width: 3},
				Marker: &Marker{Size: 8},
			},
		},
		Layout: Layout{
			Title:  &Title{Text: title, X: 0.5},
			XAxis:  &Axis{Title: &Title{Text: "类别"}},
			YAxis:  &Axis{Title: &Title{Text: barName}, Side: "left"},
			YAxis2: &Axis{Title: &Title{Text: lineName}, Side: "right", Overlaying: "y"},
			Legend: &Legend{X: 0.01, Y: 0.99},
		},
	}
}

func histogramFigure(title string, cfg map[string]any) *Figure {
	values := listField(cfg, "values")
	if len(values) == 0 {
		slog.Warn("Histogram missing values")
		return nil
	}
	bins := DefaultBins
	if f, ok := cfg["bins"].(float64); ok && f >= 1 && f == math.Trunc(f) {
		bins = int(f)
	}
	return &Figure{
		Data: []Trace{{
			Type:   "histogram",
			Name:   "频率",
			X:      values,
			NBinsX: bins,
			Marker: &Marker{Color: "skyblue", Line: &Line{Color: "black", Width: 1}},
		}},
		Layout: Layout{
			Title:  &Title{Text: title, X: 0.5},
			XAxis:  &Axis{Title: &Title{Text: "数值区间"}},
			YAxis:  &Axis{Title: &Title{Text: "频率"}},
			BarGap: 0.05,
		},
	}
}

func centered(title string) *Title {
	if title == "" {
		return nil
	}
	return &Title{Text: title, X: 0.5}
}

func listField(m map[string]any, key string) []any {
	v, _ := m[key].([]any)
	return v
}

func stringField(m map[string]any, key, def string) string {
	v, ok := m[key].(string)
	if !ok {
		return def
	}
	return v
}
