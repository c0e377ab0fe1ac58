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

// Package supplier scores supplier quality.
//
// Sub-scores are bounded: SDQ 0-30, downtime 0-25, delivery 0-25 and
// quality 0-25. Unlike the cost calculators, scoring rejects out-of-range
// input instead of degrading.
package supplier

import (
	"errors"
	"fmt"
	"math"
)

// Default sub-scores used when the caller has no delivery or quality data.
const (
	DefaultDelivery = 25
	DefaultQuality  = 20
)

// Input validation errors.
var (
	ErrNegativeCount    = errors.New("输入数量不能为负数")
	ErrTargetDowntime   = errors.New("目标停线时间必须>0")
	ErrNegativeDowntime = errors.New("实际停线时间不能为负数")
)

// RangeError reports a sub-score outside its allowed range.
type RangeError struct {
	Field string
	Value int
	Min   int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s需在%d-%d之间", fieldLabels[e.Field], e.Min, e.Max)
}

var fieldLabels = map[string]string{
	"sdq":      "SDQ得分",
	"downtime": "停线时间得分",
	"delivery": "交付得分",
	"quality":  "质量得分",
}

// SDQRate returns (1 - defects/consumption) * 100. Callers handle zero
// consumption separately.
func SDQRate(consumption, defectCount int) float64 {
	return (1 - float64(defectCount)/float64(consumption)) * 100
}

// SDQScore scores supplier delivered quality on a 0-30 scale.
//
// With zero consumption the score is 30 when there are no NCM records and
// 10 otherwise. Otherwise the SDQ rate is banded by consumption volume; the
// partial band is exclusive at both ends.
func SDQScore(consumption, defectCount, ncmCount int) int {
	if consumption == 0 {
		if ncmCount == 0 {
			return 30
		}
		return 10
	}

	sdq := SDQRate(consumption, defectCount)
	var full, partial float64
	switch {
	case consumption < 200:
		full, partial = 97, 90
	case consumption <= 500:
		full, partial = 98, 95
	default:
		full, partial = 99, 97
	}

	switch {
	case sdq >= full:
		return 30
	case sdq > partial:
		return 20
	default:
		return 10
	}
}

// DowntimeRatio returns actual/target. A non-positive target yields +Inf,
// which scores zero.
func DowntimeRatio(actual, target float64) float64 {
	if target <= 0 {
		return math.Inf(1)
	}
	return actual / target
}

// DowntimeScore scores line-stop time on a 0-25 scale.
func DowntimeScore(actual, target float64) int {
	ratio := DowntimeRatio(actual, target)
	switch {
	case ratio < 0.5:
		return 25
	case ratio < 1:
		return 20
	case ratio < 2:
		return 10
	case ratio < 3:
		return 5
	default:
		return 0
	}
}

// TotalScore sums the four sub-scores, capped at 100.
func TotalScore(sdq, downtime, delivery, quality int) (int, error) {
	checks := []struct {
		field string
		value int
		max   int
	}{
		{"sdq", sdq, 30},
		{"downtime", downtime, 25},
		{"delivery", delivery, 25},
		{"quality", quality, 25},
	}
	for _, c := range checks {
		if c.value < 0 || c.value > c.max {
			return 0, &RangeError{Field: c.field, Value: c.value, Min: 0, Max: c.max}
		}
	}
	return min(sdq+downtime+delivery+quality, 100), nil
}
