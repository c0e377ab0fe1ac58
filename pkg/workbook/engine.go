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

// Package workbook runs read-only SQL over the sheets of an Excel workbook.
//
// Every call re-reads the requested sheets and loads them into a private
// in-memory SQLite database that lives only for that call. Results and
// failures are returned as text so they can be handed to a model verbatim.
package workbook

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
)

const driverName = "sqlite3_workbook"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			conn.SetLimit(sqlite3.SQLITE_LIMIT_ATTACHED, 0)
			return nil
		},
	})
}

// Result prefixes. Callers and prompts match on these.
const (
	EmptyResult   = "查询成功，但结果为空"
	SuccessPrefix = "查询成功"
	ErrorPrefix   = "查询过程中出现错误"
)

// Engine executes queries against workbook sheets.
type Engine struct {
	maxRows int
}

// New creates an engine. cfg.MaxRows caps the rows printed in a result.
func New(cfg config.WorkbookConfig) *Engine {
	return &Engine{maxRows: cfg.MaxRows}
}

// Execute runs query against the named sheets of the workbook at path.
// When tables is empty the sheets are taken from the query's FROM and JOIN
// clauses. The outcome is always text:
//
//   - a denied keyword: "错误：查询中包含不允许的操作: <KW>", before the file is touched
//   - an unreadable sheet: "错误：无法读取Excel中的工作表 <t>，详情：<err>"
//   - no rows: EmptyResult
//   - rows: "查询成功，返回 N 行数据:" followed by the table
//   - any other failure: "查询过程中出现错误: <err>"
func (e *Engine) Execute(ctx context.Context, path, query string, tables []string) string {
	if kw := CheckQuery(query); kw != "" {
		slog.Warn("Rejected workbook query", "keyword", kw)
		return fmt.Sprintf("错误：查询中包含不允许的操作: %s", kw)
	}
	if len(tables) == 0 {
		tables = ExtractTables(query)
	}

	var loaded []*Table
	seen := make(map[string]bool)
	for _, name := range tables {
		name = strings.TrimSpace(name)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true

		t, err := ReadSheet(path, name)
		if err != nil {
			return fmt.Sprintf("错误：无法读取Excel中的工作表 %s，详情：%v", name, err)
		}
		slog.Debug("Loaded sheet", "sheet", name, "rows", len(t.Rows))
		loaded = append(loaded, t)
	}

	columns, rows, err := e.evaluate(ctx, loaded, query)
	if err != nil {
		slog.Error("Workbook query failed", "error", err)
		return fmt.Sprintf("%s: %v", ErrorPrefix, err)
	}
	if len(rows) == 0 {
		return EmptyResult
	}
	return fmt.Sprintf("%s，返回 %d 行数据:\n", SuccessPrefix, len(rows)) + FormatTable(columns, rows, e.maxRows)
}

func (e *Engine) evaluate(ctx context.Context, tables []*Table, query string) ([]string, [][]any, error) {
	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, nil, err
	}
	defer db.Close()
	// Each connection to :memory: is its own database.
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Close()

	for _, t := range tables {
		if err := loadTable(ctx, conn, t); err != nil {
			return nil, nil, err
		}
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return nil, nil, err
	}

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out = append(out, values)
	}
	return columns, out, rows.Err()
}

func loadTable(ctx context.Context, conn *sql.Conn, t *Table) error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("sheet %q has no columns", t.Name)
	}

	defs := make([]string, len(t.Columns))
	names := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = quoteIdent(c.Name)
		defs[i] = names[i] + " " + string(c.Type)
		marks[i] = "?"
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(t.Name), strings.Join(defs, ", "))
	if _, err := conn.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}
	if len(t.Rows) == 0 {
		return nil
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(t.Name), strings.Join(names, ", "), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range t.Rows {
		if _, err := stmt.ExecContext(ctx, r...); err != nil {
			return fmt.Errorf("load table %s: %w", t.Name, err)
		}
	}
	return tx.Commit()
}
