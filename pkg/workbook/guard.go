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
	"regexp"
	"strings"
)

// DeniedKeywords are rejected anywhere in a query, case-insensitively.
// The match is on substrings, so identifiers such as "UpdatedAt" are
// rejected too.
var DeniedKeywords = []string{
	"DROP",
	"DELETE",
	"INSERT",
	"UPDATE",
	"ALTER",
	"EXEC",
	"TRUNCATE",
	"MERGE",
	"REPLACE",
}

// CheckQuery returns the first denied keyword found in query, or "" when
// the query may run.
func CheckQuery(query string) string {
	upper := strings.ToUpper(strings.TrimSpace(query))
	for _, kw := range DeniedKeywords {
		if strings.Contains(upper, kw) {
			return kw
		}
	}
	return ""
}

var tableRefPattern = regexp.MustCompile(
	"(?i)\\b(?:FROM|JOIN)\\s+(\"[^\"]+\"|`[^`]+`|\\[[^\\]]+\\]|[\\p{L}\\p{N}_]+)",
)

// ExtractTables lists the tables named after FROM and JOIN, unquoted and in
// first-seen order. It is a fallback for callers that do not say which
// sheets a query needs.
func ExtractTables(query string) []string {
	var tables []string
	seen := make(map[string]bool)
	for _, m := range tableRefPattern.FindAllStringSubmatch(query, -1) {
		name := unquoteIdent(m[1])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		tables = append(tables, name)
	}
	return tables
}

func unquoteIdent(s string) string {
	if len(s) >= 2 {
		switch {
		case s[0] == '"' && s[len(s)-1] == '"',
			s[0] == '`' && s[len(s)-1] == '`',
			s[0] == '[' && s[len(s)-1] == ']':
			return s[1 : len(s)-1]
		}
	}
	return s
}

// quoteIdent quotes an SQLite identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
