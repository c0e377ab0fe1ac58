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
// schema is reflected from the argument struct's json and jsonschema tags.
//
// # Basic Usage
//
//	type QueryArgs struct {
//	    Query  string   `json:"query" jsonschema:"required,description=SQL query"`
//	    Tables []string `json:"tables,omitempty" jsonschema:"description=Sheets the query reads"`
//	}
//
//	queryTool, err := functiontool.New(
//	    functiontool.Config{
//	        Name:        "sql_query",
//	        Description: "Run a read-only query",
//	    },
//	    func(ctx context.Context, args QueryArgs) (string, error) {
//	        return engine.Execute(ctx, path, args.Query, args.Tables), nil
//	    },
//	)
package functiontool

import (
	"context"
	"fmt"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/tool"
)

// Config defines the configuration for a function tool.
type Config struct {
	// Name is the unique identifier for this tool (required).
	Name string

	// Description explains what the tool does (required).
	// This is shown to the LLM to help it decide when to use the tool.
	Description string
}

// New creates a CallableTool from a typed function.
//
// Args is a struct with json and jsonschema tags defining the parameters.
// Fields tagged jsonschema:"required" are listed as required.
func New[Args any](cfg Config, fn func(context.Context, Args) (string, error)) (tool.CallableTool, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", cfg.Name, err)
	}

	return &functionTool[Args]{
		config: cfg,
		fn:     fn,
		schema: schema,
	}, nil
}

// Must is like New but panics on error. It is meant for package-level tool
// tables whose configuration is static.
func Must[Args any](cfg Config, fn func(context.Context, Args) (string, error)) tool.CallableTool {
	t, err := New(cfg, fn)
	if err != nil {
		panic(err)
	}
	return t
}

// functionTool implements tool.CallableTool by wrapping a typed function.
type functionTool[Args any] struct {
	config Config
	fn     func(context.Context, Args) (string, error)
	schema map[string]any
}

func (t *functionTool[Args]) Name() string {
	return t.config.Name
}

func (t *functionTool[Args]) Description() string {
	return t.config.Description
}

// Schema returns the JSON schema for tool parameters.
func (t *functionTool[Args]) Schema() map[string]any {
	return t.schema
}

// Call executes the function with typed arguments.
func (t *functionTool[Args]) Call(ctx context.Context, args map[string]any) (string, error) {
	var typedArgs Args
	if err := mapToStruct(args, &typedArgs); err != nil {
		return "", fmt.Errorf("invalid arguments for %s: %w", t.config.Name, err)
	}
	return t.fn(ctx, typedArgs)
}

// validateConfig checks that the configuration is valid.
func validateConfig(cfg Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if cfg.Description == "" {
		return fmt.Errorf("tool description is required")
	}
	return nil
}

var _ tool.CallableTool = (*functionTool[struct{}])(nil)
