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

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/llms"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/observability"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/sop"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/tool"
)

// ErrUnknownRole is returned by Turn for a role outside the role set.
var ErrUnknownRole = errors.New("unknown role")

// ToolSelector resolves tool names to callable tools.
type ToolSelector interface {
	Select(names []string) ([]tool.CallableTool, error)
}

// Agent runs role turns. One Agent serves every role of a team; the role
// decides the instruction and the tools offered to the model.
type Agent struct {
	llm               llms.Completer
	roles             *Roles
	tools             ToolSelector
	maxToolIterations int
	reflect           bool
}

// Option configures an Agent.
type Option func(*Agent)

// WithMaxToolIterations sets how many model calls a turn may spend on tools.
func WithMaxToolIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxToolIterations = n
		}
	}
}

// WithReflection makes the model summarize tool results once the tool
// iterations are spent.
func WithReflection(reflect bool) Option {
	return func(a *Agent) {
		a.reflect = reflect
	}
}

// New creates an agent. tools may be nil when no role uses tools.
func New(llm llms.Completer, roles *Roles, tools ToolSelector, opts ...Option) *Agent {
	a := &Agent{
		llm:               llm,
		roles:             roles,
		tools:             tools,
		maxToolIterations: 1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Roles returns the role set the agent serves.
func (a *Agent) Roles() *Roles {
	return a.roles
}

// Turn lets role speak once after transcript. It returns the messages the
// turn produced: tool-call and tool-result messages when the model used
// tools, always followed by exactly one chat message.
func (a *Agent) Turn(ctx context.Context, role string, transcript []sop.Message) ([]sop.Message, error) {
	r, ok := a.roles.Get(role)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	tracer := observability.GetTracer("insightbot.agent")
	ctx, span := tracer.Start(ctx, observability.SpanAgentTurn,
		trace.WithAttributes(attribute.String(observability.AttrAgentRole, role)),
	)
	defer span.End()

	out, err := a.turn(ctx, r, transcript)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "success")
	observability.GetGlobalMetrics().RecordTurn(ctx, role)
	return out, nil
}

func (a *Agent) turn(ctx context.Context, r Role, transcript []sop.Message) ([]sop.Message, error) {
	available, err := a.selectTools(r)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]tool.CallableTool, len(available))
	defs := make([]tool.Definition, 0, len(available))
	for _, t := range available {
		byName[t.Name()] = t
		defs = append(defs, tool.ToDefinition(t))
	}

	req := llms.Request{
		System:   r.Instruction,
		Messages: History(r.Name, transcript),
		Tools:    defs,
	}

	var out []sop.Message
	for iteration := 1; ; iteration++ {
		resp, err := a.llm.Complete(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%s: completion failed: %w", r.Name, err)
		}
		if len(resp.ToolCalls) == 0 {
			return append(out, chatMessage(r.Name, resp.Content)), nil
		}

		results := a.execute(ctx, byName, resp.ToolCalls)
		out = append(out,
			encoded(r.Name, sop.KindToolCall, resp.ToolCalls),
			encoded(r.Name, sop.KindToolResult, results),
		)

		req.Messages = append(req.Messages, llms.Message{
			Role:      llms.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, res := range results {
			req.Messages = append(req.Messages, llms.Message{
				Role:       llms.RoleTool,
				Content:    res.Content,
				ToolCallID: res.ToolCallID,
			})
		}

		if iteration < a.maxToolIterations {
			continue
		}
		if !a.reflect {
			return append(out, chatMessage(r.Name, summarize(results))), nil
		}

		req.Tools = nil
		resp, err = a.llm.Complete(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%s: reflection failed: %w", r.Name, err)
		}
		return append(out, chatMessage(r.Name, resp.Content)), nil
	}
}

func (a *Agent) selectTools(r Role) ([]tool.CallableTool, error) {
	if len(r.Tools) == 0 {
		return nil, nil
	}
	if a.tools == nil {
		return nil, fmt.Errorf("%s: no tools configured", r.Name)
	}
	tools, err := a.tools.Select(r.Tools)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Name, err)
	}
	return tools, nil
}

// execute runs the calls in order. Failures become error results fed back to
// the model.
func (a *Agent) execute(ctx context.Context, byName map[string]tool.CallableTool, calls []tool.ToolCall) []tool.ToolResult {
	tracer := observability.GetTracer("insightbot.agent")
	metrics := observability.GetGlobalMetrics()

	results := make([]tool.ToolResult, 0, len(calls))
	for _, call := range calls {
		res := tool.ToolResult{ToolCallID: call.ID, Name: call.Name}

		t, ok := byName[call.Name]
		if !ok {
			res.Content = fmt.Sprintf("Error: tool %q not found", call.Name)
			res.IsError = true
			results = append(results, res)
			slog.Warn("Model requested an unavailable tool", "tool", call.Name)
			continue
		}

		args, err := call.Args()
		if err != nil {
			res.Content = "Error: " + err.Error()
			res.IsError = true
			results = append(results, res)
			continue
		}

		toolCtx, span := tracer.Start(ctx, observability.SpanToolExecution,
			trace.WithAttributes(attribute.String(observability.AttrToolName, call.Name)),
		)
		start := time.Now()
		content, err := t.Call(toolCtx, args)
		metrics.RecordToolExecution(toolCtx, call.Name, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			res.Content = "Error: " + err.Error()
			res.IsError = true
		} else {
			res.Content = content
		}
		span.End()

		slog.Debug("Tool executed", "tool", call.Name, "duration", time.Since(start), "error", res.IsError)
		results = append(results, res)
	}
	return results
}

// History converts a transcript into the conversation seen by role. Other
// speakers become user messages prefixed with their name. Tool traffic is
// private to the turn that produced it and is left out.
func History(role string, transcript []sop.Message) []llms.Message {
	chat := sop.ChatMessages(transcript)
	out := make([]llms.Message, 0, len(chat))
	for _, m := range chat {
		if m.Source == role {
			out = append(out, llms.Message{Role: llms.RoleAssistant, Content: m.Content})
			continue
		}
		out = append(out, llms.Message{Role: llms.RoleUser, Content: m.Source + ": " + m.Content})
	}
	return out
}

func summarize(results []tool.ToolResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Content)
	}
	return strings.Join(parts, "\n")
}

func chatMessage(source, content string) sop.Message {
	return sop.Message{Source: source, Content: content, Kind: sop.KindText}
}

func encoded(source string, kind sop.Kind, v any) sop.Message {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(fmt.Sprint(v))
	}
	return sop.Message{Source: source, Content: string(data), Kind: kind}
}
