package llms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/tool"
)

// ToolDirective starts a scripted line that requests a tool call:
//
//	@tool sql_query {"query": "SELECT 1"}
const ToolDirective = "@tool "

// ErrScriptExhausted is returned once every scripted reply was consumed.
var ErrScriptExhausted = errors.New("scripted completer has no replies left")

// Scripted replays replies in order. It records every request so tests can
// inspect what the agents sent.
type Scripted struct {
	mu       sync.Mutex
	replies  []string
	next     int
	requests []Request
}

func NewScripted(replies ...string) *Scripted {
	return &Scripted{replies: replies}
}

func (s *Scripted) Model() string {
	return "scripted"
}

func (s *Scripted) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.next >= len(s.replies) {
		return nil, ErrScriptExhausted
	}
	reply := s.replies[s.next]
	s.next++
	return parseScripted(reply)
}

// Requests returns a copy of the requests seen so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func parseScripted(reply string) (*Response, error) {
	var content []string
	resp := &Response{}
	for _, line := range strings.Split(reply, "\n") {
		if !strings.HasPrefix(line, ToolDirective) {
			content = append(content, line)
			continue
		}
		name, args, _ := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, ToolDirective)), " ")
		if name == "" {
			return nil, fmt.Errorf("scripted tool directive without a name: %q", line)
		}
		args = strings.TrimSpace(args)
		if args == "" {
			args = "{}"
		}
		resp.ToolCalls = append(resp.ToolCalls, tool.ToolCall{
			ID:        "call_" + uuid.NewString(),
			Name:      name,
			Arguments: args,
		})
	}
	resp.Content = strings.Join(content, "\n")
	return resp, nil
}
