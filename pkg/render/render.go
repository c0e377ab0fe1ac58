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

// Package render turns a final answer into display events: text chunks and
// charts. Charts are carried in the answer between chart.StartMarker and
// chart.EndMarker.
package render

import (
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/chart"
)

// Kind tells text events from chart events.
type Kind string

const (
	KindText  Kind = "text"
	KindChart Kind = "chart"
)

// Event is one display event.
type Event struct {
	Kind Kind `json:"kind"`

	// Text is set for text events.
	Text string `json:"text,omitempty"`

	// Chart is the chart object as it appeared in the answer.
	Chart json.RawMessage `json:"chart,omitempty"`

	// Figure is the renderable form of Chart.
	Figure *Figure `json:"figure,omitempty"`
}

// UnsupportedChart is emitted in place of a chart that cannot be drawn.
const UnsupportedChart = "Chart format is not supported\n"

var chartSpan = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(chart.StartMarker) + `(.*?)` + regexp.QuoteMeta(chart.EndMarker))

// Renderer splits answers into events.
type Renderer struct {
	chunkSize int
}

// New creates a renderer that emits text chunkSize runes at a time.
func New(chunkSize int) *Renderer {
	return &Renderer{chunkSize: max(chunkSize, 1)}
}

// Render returns the events of answer. The sequence is lazy and can be
// consumed once; later iterations yield nothing.
//
// Text around chart spans is chunked, and whitespace-only text between spans
// is dropped. A span that is not valid JSON becomes an error text event and
// rendering continues. When the answer has no spans at all, a chart inferred
// from "label: number" pairs is emitted ahead of the text.
func (r *Renderer) Render(answer string) iter.Seq[Event] {
	var used atomic.Bool
	return func(yield func(Event) bool) {
		if used.Swap(true) {
			return
		}

		spans := chartSpan.FindAllStringSubmatchIndex(answer, -1)
		if len(spans) == 0 {
			if ev, ok := autoChart(answer); ok {
				if !yield(ev) {
					return
				}
			}
			r.text(answer, yield)
			return
		}

		pos := 0
		for _, s := range spans {
			if before := answer[pos:s[0]]; strings.TrimSpace(before) != "" {
				if !r.text(before, yield) {
					return
				}
			}
			if !yield(chartEvent(answer[s[2]:s[3]])) {
				return
			}
			pos = s[1]
		}
		if rest := answer[pos:]; strings.TrimSpace(rest) != "" {
			r.text(rest, yield)
		}
	}
}

// Collect drains a sequence into a slice.
func Collect(seq iter.Seq[Event]) []Event {
	var events []Event
	for ev := range seq {
		events = append(events, ev)
	}
	return events
}

func (r *Renderer) text(s string, yield func(Event) bool) bool {
	runes := []rune(s)
	for i := 0; i < len(runes); i += r.chunkSize {
		end := min(i+r.chunkSize, len(runes))
		if !yield(Event{Kind: KindText, Text: string(runes[i:end])}) {
			return false
		}
	}
	return true
}

func chartEvent(body string) Event {
	raw := strings.TrimSpace(body)
	var cfg map[string]any
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		slog.Warn("Chart JSON decode error", "error", err)
		return Event{Kind: KindText, Text: fmt.Sprintf("\nChart JSON decode error: %v\n", err)}
	}
	fig := NewFigure(cfg)
	if fig == nil {
		return Event{Kind: KindText, Text: UnsupportedChart}
	}
	return Event{Kind: KindChart, Chart: json.RawMessage(raw), Figure: fig}
}

func autoChart(text string) (Event, bool) {
	d, ok := chart.Auto(text)
	if !ok {
		return Event{}, false
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return Event{}, false
	}
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Event{}, false
	}
	fig := NewFigure(cfg)
	if fig == nil {
		return Event{}, false
	}
	slog.Debug("Auto-generated chart", "labels", len(d.Labels))
	return Event{Kind: KindChart, Chart: raw, Figure: fig}, true
}
