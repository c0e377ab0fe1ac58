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
	"errors"
	"fmt"
	"os"
	"strings"
)

// Sheets holding the business rules and the sample questions.
const (
	LogicSheet     = "解释和逻辑"
	QuestionsSheet = "问题"
)

// BusinessContext renders the logic and question sheets of the workbook as
// markdown so they can ground SQL generation. A sheet that cannot be read is
// replaced by a warning line; the other sheet is still returned.
func BusinessContext(path string) string {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Sprintf("Error: File not found at %s", path)
	}

	sections := []struct {
		sheet  string
		header string
	}{
		{LogicSheet, "=== Sheet: 解释和逻辑 (Logic) ===\n"},
		{QuestionsSheet, "\n=== Sheet: 问题 (Questions) ===\n"},
	}

	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		t, err := ReadSheet(path, s.sheet)
		if err != nil {
			parts = append(parts, fmt.Sprintf("Warning: Could not read '%s' sheet: %v", s.sheet, err))
			continue
		}
		parts = append(parts, s.header+Markdown(t))
	}
	return strings.Join(parts, "\n\n")
}
