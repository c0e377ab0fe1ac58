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

// Package instruction renders role instruction templates.
//
// Instructions can contain placeholders that are resolved from a variable
// map:
//
//	{variable}   - required; rendering fails when it is missing
//	{variable?}  - optional (empty string if not found)
//
// Anything in braces that is not an identifier, such as an inline JSON
// example, is left as-is:
//
//	tmpl := instruction.New(`数据文件：{workbook_path}` + "\n" + `{"type": "bar"}`)
//	out, err := tmpl.Render(map[string]string{"workbook_path": "Data/cost.xlsx"})
package instruction

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// placeholderRegex matches {variable}, {variable?} and also brace groups
// that turn out not to be placeholders.
var placeholderRegex = regexp.MustCompile(`{+[^{}]*}+`)

// Template represents an instruction template with placeholders.
type Template struct {
	raw string
}

// New creates a new instruction template.
func New(template string) *Template {
	return &Template{raw: template}
}

// Raw returns the raw template string.
func (t *Template) Raw() string {
	return t.raw
}

// Render resolves all placeholders in the template.
func (t *Template) Render(vars map[string]string) (string, error) {
	return Inject(t.raw, vars)
}

// Inject populates the placeholders of template from vars. A missing
// required placeholder is an error.
func Inject(template string, vars map[string]string) (string, error) {
	if template == "" {
		return "", nil
	}

	var result strings.Builder
	var missing []string
	lastIndex := 0
	for _, m := range placeholderRegex.FindAllStringIndex(template, -1) {
		start, end := m[0], m[1]
		result.WriteString(template[lastIndex:start])

		match := template[start:end]
		replacement, ok := replaceMatch(match, vars)
		if !ok {
			missing = append(missing, strings.Trim(match, "{}"))
		}
		result.WriteString(replacement)
		lastIndex = end
	}
	result.WriteString(template[lastIndex:])

	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("unresolved placeholders: %s", strings.Join(missing, ", "))
	}
	return result.String(), nil
}

// MustInject is like Inject but panics on error. Use only for templates
// compiled into the binary.
func MustInject(template string, vars map[string]string) string {
	out, err := Inject(template, vars)
	if err != nil {
		panic(fmt.Sprintf("instruction.MustInject: %v", err))
	}
	return out
}

// replaceMatch resolves one brace group. ok is false only for a missing
// required variable.
func replaceMatch(match string, vars map[string]string) (string, bool) {
	name := strings.TrimSpace(strings.Trim(match, "{}"))

	optional := false
	if strings.HasSuffix(name, "?") {
		optional = true
		name = strings.TrimSuffix(name, "?")
	}

	if !isIdentifier(name) {
		return match, true
	}

	value, found := vars[name]
	if !found && !optional {
		return match, false
	}
	return value, true
}

// isIdentifier checks if a string is a valid identifier.
// Valid identifiers start with a letter or underscore, followed by letters, digits, or underscores.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
		} else {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
				return false
			}
		}
	}
	return true
}

// ListPlaceholders returns the placeholder names found in the template, in
// order of first appearance.
func ListPlaceholders(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, match := range placeholderRegex.FindAllString(template, -1) {
		name := strings.TrimSpace(strings.Trim(match, "{}"))
		name = strings.TrimSuffix(name, "?")
		if !isIdentifier(name) || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
