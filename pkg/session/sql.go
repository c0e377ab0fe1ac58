package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore persists threads in SQLite, PostgreSQL or MySQL.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

var _ Store = (*SQLStore)(nil)

const createThreadsTableSQL = `
CREATE TABLE IF NOT EXISTS threads (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    user_id VARCHAR(255) NOT NULL,
    title VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

var createMessagesTableSQL = map[string]string{
	"sqlite": `
CREATE TABLE IF NOT EXISTS thread_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    thread_id VARCHAR(64) NOT NULL,
    role VARCHAR(32) NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
)`,
	"postgres": `
CREATE TABLE IF NOT EXISTS thread_messages (
    id SERIAL PRIMARY KEY,
    thread_id VARCHAR(64) NOT NULL,
    role VARCHAR(32) NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
)`,
	"mysql": `
CREATE TABLE IF NOT EXISTS thread_messages (
    id BIGINT PRIMARY KEY AUTO_INCREMENT,
    thread_id VARCHAR(64) NOT NULL,
    role VARCHAR(32) NOT NULL,
    content LONGTEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    INDEX idx_thread_messages_thread (thread_id, id)
) DEFAULT CHARSET=utf8mb4`,
}

// MySQL has no CREATE INDEX IF NOT EXISTS; its index is declared inline.
var createIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_threads_user ON threads(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_thread_messages_thread ON thread_messages(thread_id, id)`,
}

var insertThreadIgnoreSQL = map[string]string{
	"sqlite":   `INSERT OR IGNORE INTO threads (id, user_id, title, created_at, updated_at) VALUES (?, ?, '', ?, ?)`,
	"postgres": `INSERT INTO threads (id, user_id, title, created_at, updated_at) VALUES (?, ?, '', ?, ?) ON CONFLICT (id) DO NOTHING`,
	"mysql":    `INSERT IGNORE INTO threads (id, user_id, title, created_at, updated_at) VALUES (?, ?, '', ?, ?)`,
}

// Open returns the store selected by cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	if !cfg.IsSQL() {
		return NewMemoryStore(), nil
	}

	db, err := sql.Open(cfg.DriverName(), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.IsSQLite() {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxIdle)
		db.SetConnMaxLifetime(time.Hour)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database %q: %w", cfg.Driver, cfg.Database, err)
	}

	store, err := NewSQLStore(ctx, db, cfg.Dialect())
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open database and creates the schema if needed.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if _, ok := createMessagesTableSQL[dialect]; !ok {
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, createThreadsTableSQL); err != nil {
		return fmt.Errorf("failed to create threads table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createMessagesTableSQL[s.dialect]); err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}
	if s.dialect == "mysql" {
		return nil
	}
	for _, stmt := range createIndexesSQL {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) CreateThread(ctx context.Context, userID, title string) (Thread, error) {
	now := time.Now().UTC()
	t := Thread{ID: uuid.NewString(), UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO threads (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`),
		t.ID, t.UserID, t.Title, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return Thread{}, fmt.Errorf("failed to create thread: %w", err)
	}
	return t, nil
}

func (s *SQLStore) Thread(ctx context.Context, threadID string) (Thread, error) {
	var t Thread
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, user_id, title, created_at, updated_at FROM threads WHERE id = ?`),
		threadID,
	).Scan(&t.ID, &t.UserID, &t.Title, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Thread{}, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	if err != nil {
		return Thread{}, fmt.Errorf("failed to load thread: %w", err)
	}
	return t, nil
}

func (s *SQLStore) Append(ctx context.Context, threadID, userID string, entries ...Entry) (err error) {
	if threadID == "" {
		return fmt.Errorf("thread id cannot be empty")
	}
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, s.rebind(insertThreadIgnoreSQL[s.dialect]), threadID, userID, now, now); err != nil {
		return fmt.Errorf("failed to ensure thread exists: %w", err)
	}

	insert := s.rebind(`INSERT INTO thread_messages (thread_id, role, content, created_at) VALUES (?, ?, ?, ?)`)
	title := ""
	for i, e := range stamp(entries, now) {
		if _, err = tx.ExecContext(ctx, insert, threadID, e.Role, e.Content, e.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert message at index %d: %w", i, err)
		}
		if title == "" && e.Role == RoleUser {
			title = TitleFrom(e.Content)
		}
	}

	if title != "" {
		if _, err = tx.ExecContext(ctx, s.rebind(`UPDATE threads SET title = ? WHERE id = ? AND title = ''`), title, threadID); err != nil {
			return fmt.Errorf("failed to set thread title: %w", err)
		}
	}
	if _, err = tx.ExecContext(ctx, s.rebind(`UPDATE threads SET updated_at = ? WHERE id = ?`), now, threadID); err != nil {
		return fmt.Errorf("failed to update thread timestamp: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) History(ctx context.Context, threadID string, limit int) ([]Entry, error) {
	query := `SELECT role, content, created_at FROM thread_messages WHERE thread_id = ? ORDER BY id ASC`
	args := []any{threadID}
	if limit > 0 {
		query = `
SELECT role, content, created_at FROM (
    SELECT id, role, content, created_at
    FROM thread_messages
    WHERE thread_id = ?
    ORDER BY id DESC
    LIMIT ?
) sub ORDER BY id ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Role, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return entries, nil
}

func (s *SQLStore) Clear(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM thread_messages WHERE thread_id = ?`), threadID); err != nil {
		return fmt.Errorf("failed to clear thread: %w", err)
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`UPDATE threads SET updated_at = ? WHERE id = ?`), time.Now().UTC(), threadID)
	if err != nil {
		return fmt.Errorf("failed to update thread timestamp: %w", err)
	}
	return nil
}

func (s *SQLStore) Threads(ctx context.Context, userID string) ([]Thread, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT id, user_id, title, created_at, updated_at FROM threads WHERE user_id = ? ORDER BY updated_at DESC, id ASC`),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query threads: %w", err)
	}
	defer rows.Close()

	var threads []Thread
	for rows.Next() {
		var t Thread
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
