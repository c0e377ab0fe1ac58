package config

import (
	"fmt"
	"time"
)

// Team profiles.
const (
	ProfileMinimal  = "minimal"
	ProfileExtended = "extended"
)

// Unmatched routing policies.
const (
	UnmatchedTerminate = "terminate"
	UnmatchedManager   = "manager"
)

// TeamConfig configures the orchestration run and its router.
//
// Example:
//
//	team:
//	  profile: extended
//	  sql_retry_limit: 4
//	  unmatched_policy: terminate
//	  turn_timeout: 60s
type TeamConfig struct {
	// Profile selects the role set: minimal (Manager, intention_analyst,
	// excel_sql_specialist) or extended (all six roles).
	Profile string `yaml:"profile,omitempty"`

	// MaxMessages caps the chat messages of one run. Zero picks the
	// profile default: 20 for minimal, 25 for extended.
	MaxMessages int `yaml:"max_messages,omitempty"`

	// SQLRetryLimit bounds consecutive in-place retries of the SQL specialist.
	SQLRetryLimit int `yaml:"sql_retry_limit,omitempty"`

	// UnmatchedPolicy decides what happens when no routing rule applies.
	UnmatchedPolicy string `yaml:"unmatched_policy,omitempty"`

	// MaxUnresolvedTurns bounds escalations under the manager policy.
	MaxUnresolvedTurns int `yaml:"max_unresolved_turns,omitempty"`

	// TurnTimeout bounds one agent turn, tool calls included.
	TurnTimeout time.Duration `yaml:"turn_timeout,omitempty"`

	// MaxToolIterations is the number of model calls a role may spend on tools
	// within one turn.
	MaxToolIterations int `yaml:"max_tool_iterations,omitempty"`

	// ReflectOnToolUse asks the model to summarize tool results in prose
	// instead of returning them verbatim.
	ReflectOnToolUse bool `yaml:"reflect_on_tool_use,omitempty"`
}

// SetDefaults applies default values.
func (c *TeamConfig) SetDefaults() {
	if c.Profile == "" {
		c.Profile = ProfileExtended
	}
	if c.MaxMessages == 0 {
		if c.Profile == ProfileMinimal {
			c.MaxMessages = 20
		} else {
			c.MaxMessages = 25
		}
	}
	if c.SQLRetryLimit == 0 {
		c.SQLRetryLimit = 4
	}
	if c.UnmatchedPolicy == "" {
		c.UnmatchedPolicy = UnmatchedTerminate
	}
	if c.MaxUnresolvedTurns == 0 {
		c.MaxUnresolvedTurns = 2
	}
	if c.TurnTimeout == 0 {
		c.TurnTimeout = 60 * time.Second
	}
	if c.MaxToolIterations == 0 {
		c.MaxToolIterations = 1
	}
}

// Validate checks the team configuration.
func (c *TeamConfig) Validate() error {
	switch c.Profile {
	case ProfileMinimal, ProfileExtended:
	default:
		return fmt.Errorf("invalid profile %q (valid: minimal, extended)", c.Profile)
	}
	switch c.UnmatchedPolicy {
	case UnmatchedTerminate, UnmatchedManager:
	default:
		return fmt.Errorf("invalid unmatched_policy %q (valid: terminate, manager)", c.UnmatchedPolicy)
	}
	if c.MaxMessages < 2 {
		return fmt.Errorf("max_messages must be at least 2")
	}
	if c.SQLRetryLimit < 0 {
		return fmt.Errorf("sql_retry_limit must be non-negative")
	}
	if c.MaxUnresolvedTurns < 0 {
		return fmt.Errorf("max_unresolved_turns must be non-negative")
	}
	if c.TurnTimeout < 0 {
		return fmt.Errorf("turn_timeout must be non-negative")
	}
	if c.MaxToolIterations < 1 {
		return fmt.Errorf("max_tool_iterations must be at least 1")
	}
	return nil
}

// ChatConfig configures the chat service wrapped around a team run.
type ChatConfig struct {
	// HistoryWindow is the number of persisted messages loaded per request.
	HistoryWindow int `yaml:"history_window,omitempty"`

	// ContextLookback is how many recent messages are scanned for a prior
	// data result to carry into the next task.
	ContextLookback int `yaml:"context_lookback,omitempty"`

	// ChunkSize is the number of runes per streamed text chunk.
	ChunkSize int `yaml:"chunk_size,omitempty"`
}

// SetDefaults applies default values.
func (c *ChatConfig) SetDefaults() {
	if c.HistoryWindow == 0 {
		c.HistoryWindow = 20
	}
	if c.ContextLookback == 0 {
		c.ContextLookback = 10
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 1
	}
}

// Validate checks the chat configuration.
func (c *ChatConfig) Validate() error {
	if c.HistoryWindow < 0 || c.ContextLookback < 0 {
		return fmt.Errorf("history_window and context_lookback must be non-negative")
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be at least 1")
	}
	return nil
}
