// Package llms wraps the text-completion service behind a single
// Completer interface. The openai and azure providers talk to any
// OpenAI-compatible chat completions endpoint; the scripted provider
// replays canned replies for tests and offline runs.
package llms

import (
	"context"
	"fmt"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/tool"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of a completion request.
type Message struct {
	Role    string
	Content string

	// ToolCalls is set on assistant messages that requested tools.
	ToolCalls []tool.ToolCall

	// ToolCallID links a tool message to the call it answers.
	ToolCallID string
}

// Request is a single completion request.
type Request struct {
	System   string
	Messages []Message
	Tools    []tool.Definition
}

// Response is the model's reply. Content may be empty when the model only
// requested tools.
type Response struct {
	Content      string
	ToolCalls    []tool.ToolCall
	InputTokens  int
	OutputTokens int
}

// Completer is the text-completion service.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Model() string
}

// New builds the completer selected by cfg.Provider.
func New(cfg config.LLMConfig) (Completer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI, config.ProviderAzure:
		return NewOpenAI(cfg)
	case config.ProviderScripted:
		return NewScripted(cfg.Script...), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: openai, azure, scripted)", cfg.Provider)
	}
}
