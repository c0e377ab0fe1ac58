package session

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	store, err := NewSQLStore(context.Background(), db, "sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": newSQLiteStore(t),
	}
}

func TestStore_RoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Append(ctx, "t1", "alice",
				Entry{Role: RoleUser, Content: "2024年IT费用是多少"},
				Entry{Role: RoleAssistant, Content: "总额为 100"},
			))
			require.NoError(t, store.Append(ctx, "t1", "alice", Entry{Role: RoleUser, Content: "按月份拆分"}))

			all, err := store.History(ctx, "t1", 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "2024年IT费用是多少", all[0].Content)
			assert.Equal(t, RoleAssistant, all[1].Role)
			assert.Equal(t, "按月份拆分", all[2].Content)
			assert.False(t, all[0].CreatedAt.IsZero())

			last, err := store.History(ctx, "t1", 2)
			require.NoError(t, err)
			require.Len(t, last, 2)
			assert.Equal(t, "总额为 100", last[0].Content)
			assert.Equal(t, "按月份拆分", last[1].Content)

			thread, err := store.Thread(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, "alice", thread.UserID)
			assert.Equal(t, "2024年IT费用是多少", thread.Title)

			none, err := store.History(ctx, "missing", 10)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestStore_ClearKeepsThread(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Append(ctx, "t1", "bob", Entry{Role: RoleUser, Content: "q"}))
			require.NoError(t, store.Clear(ctx, "t1"))

			h, err := store.History(ctx, "t1", 0)
			require.NoError(t, err)
			assert.Empty(t, h)

			_, err = store.Thread(ctx, "t1")
			assert.NoError(t, err)
		})
	}
}

func TestStore_Threads(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			created, err := store.CreateThread(ctx, "carol", "新对话")
			require.NoError(t, err)
			assert.NotEmpty(t, created.ID)

			time.Sleep(5 * time.Millisecond)
			require.NoError(t, store.Append(ctx, "t2", "carol", Entry{Role: RoleUser, Content: "供应商评分"}))
			require.NoError(t, store.Append(ctx, "t3", "dave", Entry{Role: RoleUser, Content: "x"}))

			threads, err := store.Threads(ctx, "carol")
			require.NoError(t, err)
			require.Len(t, threads, 2)
			assert.Equal(t, "t2", threads[0].ID, "most recently updated first")
			assert.Equal(t, created.ID, threads[1].ID)
			assert.Equal(t, "新对话", threads[1].Title)

			_, err = store.Thread(ctx, "nope")
			assert.ErrorIs(t, err, ErrThreadNotFound)
		})
	}
}

func TestOpen(t *testing.T) {
	store, err := Open(context.Background(), config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	cfg := config.StoreConfig{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "history.db")}
	cfg.SetDefaults()
	store, err = Open(context.Background(), cfg)
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &SQLStore{}, store)
	require.NoError(t, store.Append(context.Background(), "t", "u", Entry{Role: RoleUser, Content: "q"}))

	_, err = NewSQLStore(context.Background(), &sql.DB{}, "oracle")
	assert.ErrorContains(t, err, "unsupported dialect")
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: "postgres"}
	assert.Equal(t, "UPDATE t SET a = $1 WHERE id = $2", pg.rebind("UPDATE t SET a = ? WHERE id = ?"))

	lite := &SQLStore{dialect: "sqlite"}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestTitleFrom(t *testing.T) {
	assert.Equal(t, "短问题", TitleFrom("短问题"))
	long := "这是一个非常非常长的问题，用来检查标题是否会被截断到三十个字符以内并追加省略号"
	got := TitleFrom(long)
	assert.Equal(t, string([]rune(long)[:30])+"...", got)
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	ts := time.Date(2026, 1, 4, 8, 0, 0, 0, time.UTC)
	require.NoError(t, ExportJSON(&buf, "t1", []Entry{{Role: RoleUser, Content: "费用 <IT>", CreatedAt: ts}}))

	out := buf.String()
	assert.Contains(t, out, "费用 <IT>", "non-ASCII and HTML characters are kept")
	assert.Contains(t, out, "\n        {\n            \"role\": \"user\"", "four-space indent")

	var decoded map[string][]Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, ts, decoded["t1"][0].CreatedAt)
}

func TestMergeJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "json", "session_history.json")

	require.NoError(t, MergeJSONFile(path, "a", []Entry{{Role: RoleUser, Content: "1"}}))
	require.NoError(t, MergeJSONFile(path, "b", nil))
	require.NoError(t, MergeJSONFile(path, "a", []Entry{{Role: RoleUser, Content: "2"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string][]Entry
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "2", decoded["a"][0].Content)
	assert.Empty(t, decoded["b"])
}

func TestMergeJSONFile_Concurrent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session_history.json")

	const threads = 50
	var wg sync.WaitGroup
	errs := make([]error, threads)
	for i := range threads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = MergeJSONFile(path, fmt.Sprintf("thread-%d", i), []Entry{{Role: RoleUser, Content: fmt.Sprint(i)}})
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string][]Entry
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded, threads)
	assert.Equal(t, "7", decoded["thread-7"][0].Content)

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}
