package chat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/render"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/session"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/sop"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/team"
)

type fakeRunner struct {
	answer string
	err    error
	tasks  []string
}

func (f *fakeRunner) Run(_ context.Context, task string) (*team.Result, error) {
	f.tasks = append(f.tasks, task)
	if f.err != nil {
		return nil, f.err
	}
	return &team.Result{Answer: f.answer, Reason: sop.ReasonFinal}, nil
}

func chatConfig() config.ChatConfig {
	cfg := config.ChatConfig{}
	cfg.SetDefaults()
	return cfg
}

func user(content string) session.Entry {
	return session.Entry{Role: session.RoleUser, Content: content}
}

func assistant(content string) session.Entry {
	return session.Entry{Role: session.RoleAssistant, Content: content}
}

func TestFollowUpTask(t *testing.T) {
	long := strings.Repeat("统", 600)

	tests := []struct {
		name    string
		history []session.Entry
		want    string
	}{
		{"no history", nil, "再细一点"},
		{"no indicator", []session.Entry{user("你好"), assistant("你好！")}, "再细一点"},
		{"user message ignored", []session.Entry{user("查询结果呢")}, "再细一点"},
		{
			"indicator",
			[]session.Entry{user("q"), assistant("查询结果：共 3 行")},
			"\n基于之前的分析结果，用户现在有进一步的请求。\n\n之前的分析结果概要：\n查询结果：共 3 行\n\n用户的新请求：\n再细一点\n\n请基于之前的分析结果，针对用户的新请求提供相应的查询和分析。如果用户需要更详细的数据，请提供完整的查询结果。如果用户需要进一步分析，请基于现有数据进行深入分析。\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FollowUpTask("再细一点", tt.history, 10))
		})
	}

	t.Run("case insensitive and truncated", func(t *testing.T) {
		got := FollowUpTask("x", []session.Entry{assistant("NCM " + long)}, 10)
		assert.Contains(t, got, "NCM "+strings.Repeat("统", 496)+"...\n")
	})

	t.Run("most recent result wins", func(t *testing.T) {
		got := FollowUpTask("x", []session.Entry{assistant("旧的统计"), assistant("新的统计")}, 10)
		assert.Contains(t, got, "新的统计")
		assert.NotContains(t, got, "旧的统计")
	})

	t.Run("lookback bounds the search", func(t *testing.T) {
		history := []session.Entry{assistant("统计结果")}
		for range 10 {
			history = append(history, user("q"))
		}
		assert.Equal(t, "x", FollowUpTask("x", history, 10))
	})
}

func TestBuildTask(t *testing.T) {
	t.Run("first message", func(t *testing.T) {
		assert.Equal(t, "2024年IT费用", BuildTask("2024年IT费用", nil, 10, false))
	})

	t.Run("resumed without history", func(t *testing.T) {
		assert.Equal(t, "(这是一个恢复的历史对话，我会根据可见的对话记录来理解上下文) 继续", BuildTask("继续", nil, 10, true))
	})

	t.Run("previous user turn", func(t *testing.T) {
		got := BuildTask("按月拆分", []session.Entry{user("2024年IT费用"), assistant("总额 100")}, 10, true)
		assert.Equal(t, "基于上一轮对话: 2024年IT费用...\n\n当前任务: 按月拆分", got)
	})

	t.Run("previous turn is cut to 100 runes", func(t *testing.T) {
		long := strings.Repeat("问", 150)
		got := BuildTask("x", []session.Entry{user(long)}, 10, false)
		assert.Equal(t, "基于上一轮对话: "+strings.Repeat("问", 100)+"...\n\n当前任务: x", got)
	})

	t.Run("prefix wraps follow-up", func(t *testing.T) {
		got := BuildTask("x", []session.Entry{user("q"), assistant("查询结果 1")}, 10, false)
		assert.True(t, strings.HasPrefix(got, "基于上一轮对话: q...\n\n当前任务: \n基于之前的分析结果"))
	})
}

func TestHandle(t *testing.T) {
	store := session.NewMemoryStore()
	runner := &fakeRunner{answer: "查询结果：总额为 100"}
	svc := New(runner, store, chatConfig())
	ctx := context.Background()

	reply, err := svc.Handle(ctx, Request{ThreadID: "t1", UserID: "alice", Message: "2024年IT费用"})
	require.NoError(t, err)
	assert.Equal(t, "查询结果：总额为 100", reply.Answer)
	assert.NotNil(t, reply.Result)

	var text strings.Builder
	for ev := range reply.Events {
		if ev.Kind == render.KindText {
			text.WriteString(ev.Text)
		}
	}
	assert.Equal(t, reply.Answer, text.String())

	_, err = svc.Handle(ctx, Request{ThreadID: "t1", UserID: "alice", Message: "按月拆分"})
	require.NoError(t, err)
	require.Len(t, runner.tasks, 2)
	assert.True(t, strings.HasPrefix(runner.tasks[1], "基于上一轮对话: 2024年IT费用...\n\n当前任务: \n基于之前的分析结果"))

	history, err := store.History(ctx, "t1", 0)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, []string{"2024年IT费用", "查询结果：总额为 100", "按月拆分", "查询结果：总额为 100"},
		[]string{history[0].Content, history[1].Content, history[2].Content, history[3].Content})
}

func TestHandle_RebuildCommand(t *testing.T) {
	store := session.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "t1", "alice", user("q"), assistant("a")))

	runner := &fakeRunner{}
	svc := New(runner, store, chatConfig())

	for _, cmd := range []string{" 重建上下文 ", "Rebuild Context", "/rebuild"} {
		reply, err := svc.Handle(ctx, Request{ThreadID: "t1", UserID: "alice", Message: cmd})
		require.NoError(t, err)
		assert.True(t, reply.Command)
		assert.Equal(t, RebuildReply, reply.Answer)
	}
	assert.Empty(t, runner.tasks)

	history, err := store.History(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHandle_ServiceErrorBecomesApology(t *testing.T) {
	store := session.NewMemoryStore()
	runner := &fakeRunner{err: &team.ServiceError{Role: sop.Manager, Turn: 1, Err: errors.New("connection refused")}}
	svc := New(runner, store, chatConfig())

	reply, err := svc.Handle(context.Background(), Request{ThreadID: "t1", Message: "q"})
	require.NoError(t, err)
	assert.Equal(t, "❌ 工作流执行失败: connection refused\n\n建议：\n1. 检查网络连接\n2. 稍后重试\n3. 简化查询内容", reply.Answer)
	assert.Nil(t, reply.Result)

	history, _ := store.History(context.Background(), "t1", 0)
	assert.Len(t, history, 2, "the apology is persisted like any answer")
}

func TestHandle_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := New(&fakeRunner{err: context.Canceled}, session.NewMemoryStore(), chatConfig())

	_, err := svc.Handle(ctx, Request{ThreadID: "t1", Message: "q"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandle_RequiresThread(t *testing.T) {
	svc := New(&fakeRunner{}, session.NewMemoryStore(), chatConfig())
	_, err := svc.Handle(context.Background(), Request{Message: "q"})
	assert.Error(t, err)
}

func TestHandle_ExportAndSwap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session_history.json")
	svc := New(&fakeRunner{answer: "旧"}, session.NewMemoryStore(), chatConfig(), WithExportFile(path))

	svc.SetRunner(&fakeRunner{answer: "新"})
	reply, err := svc.Handle(context.Background(), Request{ThreadID: "t9", Message: "q"})
	require.NoError(t, err)
	assert.Equal(t, "新", reply.Answer)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"t9"`)
}
