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

// Package functiontool creates tools from typed Go functions. The parameter
package functiontool_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/tool"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/tool/functiontool"
)

type scoreArgs struct {
	Consumption int     `json:"consumption" jsonschema:"required,description=物料消耗数量"`
	Target      float64 `json:"target,omitempty" jsonschema:"description=目标停线时间"`
	Values      []any   `json:"values,omitempty"`
}

func newScoreTool(t *testing.T) tool.CallableTool {
	t.Helper()
	st, err := functiontool.New(
		functiontool.Config{Name: "score", Description: "Score a supplier"},
		func(ctx context.Context, args scoreArgs) (string, error) {
			return fmt.Sprintf("consumption=%d target=%v values=%v", args.Consumption, args.Target, args.Values), nil
		},
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return st
}

func TestNew_Schema(t *testing.T) {
	st := newScoreTool(t)

	if st.Name() != "score" {
		t.Errorf("Name() = %q, want score", st.Name())
	}

	schema := st.Schema()
	if schema["type"] != "object" {
		t.Fatalf("schema type = %v, want object", schema["type"])
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("properties missing: %v", schema)
	}
	for _, name := range []string{"consumption", "target", "values"} {
		if _, ok := props[name]; !ok {
			t.Errorf("property %q missing", name)
		}
	}
	required, _ := schema["required"].([]any)
	if len(required) != 1 || required[0] != "consumption" {
		t.Errorf("required = %v, want [consumption]", schema["required"])
	}
	desc := props["consumption"].(map[string]any)["description"]
	if desc != "物料消耗数量" {
		t.Errorf("description = %v", desc)
	}
}

func TestCall_DecodesArguments(t *testing.T) {
	st := newScoreTool(t)

	var args map[string]any
	if err := json.Unmarshal([]byte(`{"consumption":150,"target":1.5,"values":[1,2.5],"extra":"ignored"}`), &args); err != nil {
		t.Fatal(err)
	}
	got, err := st.Call(context.Background(), args)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != "consumption=150 target=1.5 values=[1 2.5]" {
		t.Errorf("Call() = %q", got)
	}
}

func TestCall_InvalidArguments(t *testing.T) {
	st := newScoreTool(t)

	_, err := st.Call(context.Background(), map[string]any{"consumption": "many"})
	if err == nil || !strings.Contains(err.Error(), "invalid arguments for score") {
		t.Errorf("expected invalid arguments error, got %v", err)
	}
}

func TestNew_ConfigValidation(t *testing.T) {
	fn := func(context.Context, struct{}) (string, error) { return "", nil }

	if _, err := functiontool.New(functiontool.Config{Description: "x"}, fn); err == nil {
		t.Error("expected error for missing name")
	}
	if _, err := functiontool.New(functiontool.Config{Name: "x"}, fn); err == nil {
		t.Error("expected error for missing description")
	}

	empty := functiontool.Must(functiontool.Config{Name: "ping", Description: "ping"}, fn)
	if props, ok := empty.Schema()["properties"].(map[string]any); !ok || len(props) != 0 {
		t.Errorf("empty args schema = %v", empty.Schema())
	}
}

func TestToolCall_Args(t *testing.T) {
	args, err := tool.ToolCall{Name: "x", Arguments: `{"a":1}`}.Args()
	if err != nil || args["a"] != 1.0 {
		t.Errorf("Args() = %v, %v", args, err)
	}
	if args, err := (tool.ToolCall{Name: "x"}).Args(); err != nil || len(args) != 0 {
		t.Errorf("empty Args() = %v, %v", args, err)
	}
	if _, err := (tool.ToolCall{Name: "x", Arguments: "{"}).Args(); err == nil {
		t.Error("expected decode error")
	}

	st := newScoreTool(t)
	filtered := tool.Filter([]tool.CallableTool{st}, tool.StringPredicate([]string{"other"}))
	if len(filtered) != 0 {
		t.Errorf("Filter kept %d tools", len(filtered))
	}
	if def := tool.ToDefinition(st); def.Name != "score" || def.Parameters == nil {
		t.Errorf("ToDefinition() = %+v", def)
	}
}
