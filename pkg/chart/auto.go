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
	"regexp"
	"strconv"
	"strings"
)

// Auto-chart limits.
const (
	AutoTitle    = "自动提取的关键指标"
	AutoMinPairs = 3
	AutoMaxPairs = 12
)

// labelNumberPattern matches "label: number" with a Latin or CJK label and
// either colon width.
var labelNumberPattern = regexp.MustCompile(`([\p{L}\p{N}_/（）()-]+)[：:]\s*(\d+(?:\.\d+)?)`)

// Auto scans plain text for "label: number" pairs and synthesizes a bar
// chart from them. Labels are de-duplicated on first occurrence and at most
// AutoMaxPairs are kept. It reports false when fewer than AutoMinPairs
// distinct pairs are found.
func Auto(text string) (Descriptor, bool) {
	matches := labelNumberPattern.FindAllStringSubmatch(text, -1)

	seen := make(map[string]bool, len(matches))
	var labels []string
	var values []float64
	for _, m := range matches {
		label := m[1]
		if seen[label] {
			continue
		}
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		seen[label] = true
		labels = append(labels, strings.TrimSpace(label))
		values = append(values, v)
		if len(labels) >= AutoMaxPairs {
			break
		}
	}

	if len(labels) < AutoMinPairs {
		return Descriptor{}, false
	}
	return Descriptor{
		Type:   Bar,
		Title:  AutoTitle,
		Labels: labels,
		Values: values,
	}, true
}
