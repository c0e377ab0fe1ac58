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

// Package tool defines the tools agent roles may invoke during a turn.
//
// Tools return their outcome as text. Expected failures, such as a rejected
// query or an out-of-range filter value, are part of that text so the model
// can read and correct them. A Go error from Call means the tool itself
// could not run.
//
// # Creating Tools
//
//	// Typed function tool with a reflected parameter schema
//	t, err := functiontool.New(functiontool.Config{...}, fn)
package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool describes a tool to the model.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	// Used by LLMs to decide when to use this tool.
	Description() string
}

// CallableTool extends Tool with synchronous execution.
type CallableTool interface {
	Tool

	// Call executes the tool with decoded JSON arguments and returns its
	// textual result.
	Call(ctx context.Context, args map[string]any) (string, error)

	// Schema returns the JSON schema for the tool's parameters.
	Schema() map[string]any
}

// Predicate determines whether a tool should be available to the LLM.
type Predicate func(tool Tool) bool

// StringPredicate creates a Predicate that allows only named tools.
func StringPredicate(allowedTools []string) Predicate {
	allowed := make(map[string]bool, len(allowedTools))
	for _, name := range allowedTools {
		allowed[name] = true
	}

	return func(tool Tool) bool {
		return allowed[tool.Name()]
	}
}

// AllowAll returns a Predicate that allows all tools.
func AllowAll() Predicate {
	return func(Tool) bool {
		return true
	}
}

// Filter returns the tools accepted by p, in order.
func Filter(tools []CallableTool, p Predicate) []CallableTool {
	var out []CallableTool
	for _, t := range tools {
		if p(t) {
			out = append(out, t)
		}
	}
	return out
}

// Definition represents a tool definition for LLM function calling.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToDefinition converts a tool to a Definition.
func ToDefinition(t CallableTool) Definition {
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Schema(),
	}
}

// ToolCall represents an LLM's request to invoke a tool.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Arguments is the raw JSON object produced by the model.
	Arguments string `json:"arguments"`
}

// Args decodes the call arguments. Empty arguments decode to an empty map.
func (c ToolCall) Args() (map[string]any, error) {
	args := map[string]any{}
	if c.Arguments == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(c.Arguments), &args); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", c.Name, err)
	}
	return args, nil
}

// ToolResult is the outcome of one tool call, as fed back to the model.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}
