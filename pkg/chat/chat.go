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

// Package chat serves one user message at a time: it loads the thread
// history, builds the contextual task, runs the team, persists the exchange
// and returns the rendered answer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/render"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/session"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/team"
)

// RebuildCommands reset the history of a thread instead of running the team.
var RebuildCommands = []string{"重建上下文", "rebuild context", "/rebuild", "恢复记忆", "restore memory"}

// RebuildReply is the answer to a rebuild command.
const RebuildReply = "✅ **上下文重建完成！**\n\n之前的对话历史已清除，请直接继续我们的对话。"

// Runner runs one team session.
type Runner interface {
	Run(ctx context.Context, task string) (*team.Result, error)
}

// Request is one user message.
type Request struct {
	ThreadID string
	UserID   string
	Message  string

	// Resumed marks a thread reopened from the history list.
	Resumed bool
}

// Reply is the outcome of one message.
type Reply struct {
	ThreadID string
	Task     string
	Answer   string

	// Command is set when the message was a command rather than a question.
	Command bool

	// Result is the team run, nil for commands and failed runs.
	Result *team.Result

	// Events renders Answer. It can be consumed once.
	Events iter.Seq[render.Event]
}

// Service handles chat messages. It is safe for concurrent use.
type Service struct {
	mu     sync.RWMutex
	runner Runner

	store      session.Store
	renderer   *render.Renderer
	cfg        config.ChatConfig
	exportPath string
}

// Option configures a Service.
type Option func(*Service)

// WithExportFile mirrors every thread history into a JSON file.
func WithExportFile(path string) Option {
	return func(s *Service) {
		s.exportPath = path
	}
}

// New creates a chat service.
func New(runner Runner, store session.Store, cfg config.ChatConfig, opts ...Option) *Service {
	s := &Service{
		runner:   runner,
		store:    store,
		renderer: render.New(cfg.ChunkSize),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetRunner swaps the team used for later messages. Runs in flight keep the
// team they started with.
func (s *Service) SetRunner(r Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runner = r
}

func (s *Service) currentRunner() Runner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runner
}

// Store returns the history store.
func (s *Service) Store() session.Store {
	return s.store
}

// Handle answers one message. Team failures become an apology answer; only
// cancellation and storage failures are returned as errors.
func (s *Service) Handle(ctx context.Context, req Request) (*Reply, error) {
	if req.ThreadID == "" {
		return nil, fmt.Errorf("thread id is required")
	}

	if IsRebuildCommand(req.Message) {
		if err := s.store.Clear(ctx, req.ThreadID); err != nil {
			return nil, fmt.Errorf("failed to reset thread history: %w", err)
		}
		slog.Info("Thread history reset", "thread", req.ThreadID, "user", req.UserID)
		return s.reply(&Reply{ThreadID: req.ThreadID, Answer: RebuildReply, Command: true}), nil
	}

	history, err := s.store.History(ctx, req.ThreadID, s.cfg.HistoryWindow)
	if err != nil {
		slog.Warn("Failed to load thread history, using the current message only", "thread", req.ThreadID, "error", err)
		history = nil
	}

	task := BuildTask(req.Message, history, s.cfg.ContextLookback, req.Resumed)
	out := &Reply{ThreadID: req.ThreadID, Task: task}

	res, err := s.currentRunner().Run(ctx, task)
	switch {
	case err == nil:
		out.Result = res
		out.Answer = res.Answer
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		slog.Error("Team run failed", "thread", req.ThreadID, "error", err)
		out.Answer = Apology(err)
	}

	entries := []session.Entry{
		{Role: session.RoleUser, Content: req.Message},
		{Role: session.RoleAssistant, Content: out.Answer},
	}
	if err := s.store.Append(ctx, req.ThreadID, req.UserID, entries...); err != nil {
		return nil, fmt.Errorf("failed to persist exchange: %w", err)
	}
	s.export(ctx, req.ThreadID)

	return s.reply(out), nil
}

func (s *Service) reply(r *Reply) *Reply {
	r.Events = s.renderer.Render(r.Answer)
	return r
}

func (s *Service) export(ctx context.Context, threadID string) {
	if s.exportPath == "" {
		return
	}
	all, err := s.store.History(ctx, threadID, 0)
	if err == nil {
		err = session.MergeJSONFile(s.exportPath, threadID, all)
	}
	if err != nil {
		slog.Warn("Failed to export thread history", "thread", threadID, "path", s.exportPath, "error", err)
	}
}

// IsRebuildCommand reports whether message asks to reset the history.
func IsRebuildCommand(message string) bool {
	return slices.Contains(RebuildCommands, strings.ToLower(strings.TrimSpace(message)))
}

// Apology is the answer shown when a run fails.
func Apology(err error) string {
	cause := err
	var serr *team.ServiceError
	if errors.As(err, &serr) && serr.Err != nil {
		cause = serr.Err
	}
	return fmt.Sprintf("❌ 工作流执行失败: %v\n\n建议：\n1. 检查网络连接\n2. 稍后重试\n3. 简化查询内容", cause)
}
