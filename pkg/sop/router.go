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

// Package sop decides which role speaks next in an orchestration run.
//
// Routing is a pure function of the transcript: the last chat message is
// classified into a Signal, the Signal is looked up in a transition Table,
// and a fixed set of guards (message cap, terminate marker, retry bound,
// unmatched policy) is applied around the lookup. The same transcript always
// yields the same Decision.
//
// Tool-call and tool-result messages are ignored: they never count toward
// the cap and are never the routing input.
package sop

import (
	"slices"
	"strings"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
)

// Reason explains a Decision.
type Reason string

const (
	ReasonStart          Reason = "start"
	ReasonUser           Reason = "user"
	ReasonMaxMessages    Reason = "max_messages"
	ReasonTerminate      Reason = "terminate_marker"
	ReasonFinal          Reason = "final"
	ReasonTransition     Reason = "transition"
	ReasonRetry          Reason = "retry"
	ReasonRetryExhausted Reason = "retry_exhausted"
	ReasonUnmatched      Reason = "unmatched"
	ReasonUnresolved     Reason = "unresolved_limit"
)

// Decision is the router's answer for one transcript. Exactly one of Next
// and Terminate is set.
type Decision struct {
	Next      string
	Terminate bool
	Reason    Reason
	Signal    Signal

	// Anomaly marks turns no transition matched.
	Anomaly bool
}

// Router holds the routing configuration. It has no mutable state and is
// safe for concurrent use.
type Router struct {
	members       []string
	table         Table
	maxMessages   int
	retryLimits   map[string]int
	policy        string
	maxUnresolved int
}

// Option configures a Router.
type Option func(*Router)

// WithTable replaces the default transition table.
func WithTable(t Table) Option {
	return func(r *Router) {
		r.table = t
	}
}

// WithRetryLimit bounds in-place retries for a role.
func WithRetryLimit(role string, limit int) Option {
	return func(r *Router) {
		r.retryLimits[role] = limit
	}
}

// New builds a router for the given team members.
func New(cfg config.TeamConfig, members []string, opts ...Option) *Router {
	r := &Router{
		members:       slices.Clone(members),
		table:         DefaultTable(),
		maxMessages:   cfg.MaxMessages,
		retryLimits:   map[string]int{SqlSpecialist: cfg.SQLRetryLimit},
		policy:        cfg.UnmatchedPolicy,
		maxUnresolved: cfg.MaxUnresolvedTurns,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Members returns the roles the router may select.
func (r *Router) Members() []string {
	return slices.Clone(r.members)
}

// Next decides who speaks after the transcript.
func (r *Router) Next(transcript []Message) Decision {
	chat := ChatMessages(transcript)
	if len(chat) == 0 {
		return Decision{Next: Manager, Reason: ReasonStart}
	}
	if r.maxMessages > 0 && len(chat) >= r.maxMessages {
		return Decision{Terminate: true, Reason: ReasonMaxMessages}
	}

	last := chat[len(chat)-1]
	if last.Source != User && strings.Contains(last.Content, TerminateMarker) {
		return Decision{Terminate: true, Reason: ReasonTerminate}
	}
	if last.Source == User {
		return Decision{Next: Manager, Reason: ReasonUser}
	}

	sig := Classify(last, r.members)
	target, ok := r.resolve(last, sig)
	if !ok {
		return r.unmatched(chat, sig)
	}

	switch target.Kind {
	case ToTerminate:
		return Decision{Terminate: true, Reason: ReasonFinal, Signal: sig}
	case ToSelf:
		if r.trailingRetries(chat, last.Source) > r.retryLimits[last.Source] {
			return Decision{Next: Manager, Reason: ReasonRetryExhausted, Signal: sig}
		}
		return Decision{Next: last.Source, Reason: ReasonRetry, Signal: sig}
	default:
		return Decision{Next: target.Role, Reason: ReasonTransition, Signal: sig}
	}
}

// resolve looks the signal up and expands hand-off and self targets to a
// concrete role. Targets outside the team do not resolve.
func (r *Router) resolve(msg Message, sig Signal) (Target, bool) {
	target, ok := r.table[Key{Role: msg.Source, Status: sig.Status}]
	if !ok {
		return Target{}, false
	}
	switch target.Kind {
	case ToTerminate:
		return target, true
	case ToHandoff:
		target.Role = sig.Handoff
	case ToSelf:
		target.Role = msg.Source
	}
	if !slices.Contains(r.members, target.Role) {
		return Target{}, false
	}
	return target, true
}

func (r *Router) unmatched(chat []Message, sig Signal) Decision {
	d := Decision{Reason: ReasonUnmatched, Signal: sig, Anomaly: true}
	if r.policy != config.UnmatchedManager {
		d.Terminate = true
		return d
	}
	if r.trailingUnresolved(chat) > r.maxUnresolved {
		d.Terminate = true
		d.Reason = ReasonUnresolved
		return d
	}
	d.Next = Manager
	return d
}

// trailingRetries counts the consecutive retry signals role produced at the
// end of the transcript.
func (r *Router) trailingRetries(chat []Message, role string) int {
	n := 0
	for i := len(chat) - 1; i >= 0; i-- {
		m := chat[i]
		if m.Source != role || Classify(m, r.members).Status != StatusRetry {
			break
		}
		n++
	}
	return n
}

// trailingUnresolved counts the consecutive agent messages at the end of the
// transcript that no transition matched.
func (r *Router) trailingUnresolved(chat []Message) int {
	n := 0
	for i := len(chat) - 1; i >= 0; i-- {
		m := chat[i]
		if m.Source == User {
			break
		}
		if _, ok := r.resolve(m, Classify(m, r.members)); ok {
			break
		}
		n++
	}
	return n
}
