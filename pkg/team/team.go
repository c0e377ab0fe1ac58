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

// Package team runs one orchestration session: the router picks a speaker,
// the agent produces that speaker's turn, and the loop repeats until the
// router terminates.
package team

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/agent"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/llms"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/observability"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/sop"
)

// Message is one transcript entry.
type Message = sop.Message

// Transcript is the ordered message log of a run.
type Transcript []Message

// Chat returns the chat messages of the transcript.
func (t Transcript) Chat() []Message {
	return sop.ChatMessages(t)
}

// Result is the outcome of a completed run.
type Result struct {
	Transcript Transcript
	Answer     string
	Reason     sop.Reason
	Turns      int
	Duration   time.Duration
}

// ServiceError reports a run that failed before the router terminated it.
type ServiceError struct {
	Role string
	Turn int
	Err  error
}

func (e *ServiceError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("team run failed: %v", e.Err)
	}
	return fmt.Sprintf("team run failed at turn %d (%s): %v", e.Turn, e.Role, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// ErrTurnTimeout is wrapped by the ServiceError of a turn that ran out of time.
var ErrTurnTimeout = errors.New("turn timed out")

// Members returns the roles of a team profile.
func Members(profile string) []string {
	if profile == config.ProfileMinimal {
		return sop.MinimalTeam
	}
	return sop.ExtendedTeam
}

// Team couples a router with an agent. A Team holds no per-run state and can
// serve concurrent runs.
type Team struct {
	profile     string
	router      *sop.Router
	agent       *agent.Agent
	turnTimeout time.Duration
}

// New builds a team for cfg.Profile. Prompts are rendered from the workbook
// settings.
func New(cfg config.TeamConfig, wb config.WorkbookConfig, llm llms.Completer, tools agent.ToolSelector) (*Team, error) {
	members := Members(cfg.Profile)
	roles, err := agent.DefaultRoles(agent.ParamsFromConfig(wb, members))
	if err != nil {
		return nil, fmt.Errorf("failed to build roles: %w", err)
	}
	a := agent.New(llm, roles, tools,
		agent.WithMaxToolIterations(cfg.MaxToolIterations),
		agent.WithReflection(cfg.ReflectOnToolUse),
	)
	return NewWithAgent(cfg, a), nil
}

// NewWithAgent builds a team around an existing agent. The router members
// come from the agent's role set.
func NewWithAgent(cfg config.TeamConfig, a *agent.Agent) *Team {
	return &Team{
		profile:     cfg.Profile,
		router:      sop.New(cfg, a.Roles().Names()),
		agent:       a,
		turnTimeout: cfg.TurnTimeout,
	}
}

// Profile returns the team profile name.
func (t *Team) Profile() string {
	return t.profile
}

// Run drives one session for task to termination.
func (t *Team) Run(ctx context.Context, task string) (*Result, error) {
	tracer := observability.GetTracer("insightbot.team")
	ctx, span := tracer.Start(ctx, observability.SpanTeamRun,
		trace.WithAttributes(attribute.String("team.profile", t.profile)),
	)
	defer span.End()

	metrics := observability.GetGlobalMetrics()
	start := time.Now()
	transcript := Transcript{{Source: sop.User, Content: task, Kind: sop.KindText}}

	for turn := 1; ; turn++ {
		d := t.router.Next(transcript)
		if d.Anomaly {
			last := lastSpeaker(transcript)
			slog.Warn("Router anomaly", "speaker", last, "status", d.Signal.Status.String(), "reason", d.Reason, "terminate", d.Terminate)
			metrics.RecordRouterAnomaly(ctx, last)
		}

		if d.Terminate {
			res := &Result{
				Transcript: transcript,
				Answer:     ExtractFinalAnswer(transcript),
				Reason:     d.Reason,
				Turns:      turn - 1,
				Duration:   time.Since(start),
			}
			span.SetAttributes(
				attribute.String(observability.AttrStopReason, string(d.Reason)),
				attribute.Int(observability.AttrTurns, res.Turns),
			)
			span.SetStatus(codes.Ok, "success")
			metrics.RecordRun(ctx, string(d.Reason), res.Duration)
			slog.Info("Team run finished", "reason", d.Reason, "turns", res.Turns, "duration", res.Duration)
			return res, nil
		}

		slog.Debug("Next speaker", "turn", turn, "role", d.Next, "reason", d.Reason)
		msgs, err := t.turn(ctx, d.Next, transcript)
		if err != nil {
			serr := &ServiceError{Role: d.Next, Turn: turn, Err: err}
			span.RecordError(serr)
			span.SetStatus(codes.Error, serr.Error())
			metrics.RecordRun(ctx, "error", time.Since(start))
			slog.Error("Team run failed", "role", d.Next, "turn", turn, "error", err)
			return nil, serr
		}
		transcript = append(transcript, msgs...)
	}
}

func (t *Team) turn(ctx context.Context, role string, transcript Transcript) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.turnTimeout <= 0 {
		return t.agent.Turn(ctx, role, transcript)
	}

	turnCtx, cancel := context.WithTimeout(ctx, t.turnTimeout)
	defer cancel()
	msgs, err := t.agent.Turn(turnCtx, role, transcript)
	if err != nil && errors.Is(turnCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w after %s: %w", ErrTurnTimeout, t.turnTimeout, err)
	}
	return msgs, err
}

func lastSpeaker(transcript Transcript) string {
	chat := transcript.Chat()
	if len(chat) == 0 {
		return ""
	}
	return chat[len(chat)-1].Source
}
