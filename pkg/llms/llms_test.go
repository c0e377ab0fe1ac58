package llms

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/tool"
)

const completionJSON = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "Qwen/Qwen2.5-72B-Instruct",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": "转交给 excel_sql_specialist",
      "tool_calls": [{
        "id": "call_1",
        "type": "function",
        "function": {"name": "sql_query", "arguments": "{\"query\":\"SELECT 1\"}"}
      }]
    }
  }],
  "usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
}`

type captured struct {
	path   string
	query  string
	header http.Header
	body   map[string]any
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.path = r.URL.Path
		c.query = r.URL.RawQuery
		c.header = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &c.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestOpenAIProvider_Complete(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, completionJSON)

	p, err := NewOpenAI(config.LLMConfig{
		Provider:  config.ProviderOpenAI,
		Model:     "Qwen/Qwen2.5-72B-Instruct",
		APIKey:    "sk-test",
		BaseURL:   srv.URL + "/",
		MaxTokens: 4096,
	})
	require.NoError(t, err)
	assert.Equal(t, "Qwen/Qwen2.5-72B-Instruct", p.Model())

	resp, err := p.Complete(context.Background(), Request{
		System: "你是Manager",
		Messages: []Message{
			{Role: RoleUser, Content: "2024年IT费用是多少"},
			{Role: RoleAssistant, ToolCalls: []tool.ToolCall{{ID: "call_0", Name: "db_connect", Arguments: "{}"}}},
			{Role: RoleTool, ToolCallID: "call_0", Content: "Excel文件验证成功"},
		},
		Tools: []tool.Definition{{
			Name:        "sql_query",
			Description: "run SQL",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/chat/completions", got.path)
	assert.Equal(t, "Bearer sk-test", got.header.Get("Authorization"))
	assert.Equal(t, "Qwen/Qwen2.5-72B-Instruct", got.body["model"])
	assert.EqualValues(t, 0, got.body["temperature"])
	assert.EqualValues(t, 4096, got.body["max_tokens"])

	msgs, ok := got.body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 4)
	roles := make([]string, len(msgs))
	for i, m := range msgs {
		roles[i] = m.(map[string]any)["role"].(string)
	}
	assert.Equal(t, []string{"system", "user", "assistant", "tool"}, roles)
	assert.Equal(t, "call_0", msgs[3].(map[string]any)["tool_call_id"])

	tools, ok := got.body["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "sql_query", fn["name"])

	assert.Equal(t, "转交给 excel_sql_specialist", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, tool.ToolCall{ID: "call_1", Name: "sql_query", Arguments: `{"query":"SELECT 1"}`}, resp.ToolCalls[0])
	assert.Equal(t, 12, resp.InputTokens)
	assert.Equal(t, 7, resp.OutputTokens)
}

func TestOpenAIProvider_Azure(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, completionJSON)

	p, err := NewOpenAI(config.LLMConfig{
		Provider:        config.ProviderAzure,
		Model:           "gpt-4o-deploy",
		APIKey:          "azure-key",
		AzureEndpoint:   srv.URL,
		AzureAPIVersion: "2024-06-01",
	})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)

	assert.Equal(t, "/openai/deployments/gpt-4o-deploy/chat/completions", got.path)
	assert.Contains(t, got.query, "api-version=2024-06-01")
	assert.Equal(t, "azure-key", got.header.Get("Api-Key"))
}

func TestOpenAIProvider_Error(t *testing.T) {
	srv, _ := newServer(t, http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)

	p, err := NewOpenAI(config.LLMConfig{Provider: config.ProviderOpenAI, Model: "m", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestNewOpenAI_Validation(t *testing.T) {
	_, err := NewOpenAI(config.LLMConfig{Provider: config.ProviderOpenAI})
	assert.Error(t, err)

	_, err = NewOpenAI(config.LLMConfig{Provider: config.ProviderAzure, Model: "d"})
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	c, err := New(config.LLMConfig{Provider: config.ProviderScripted, Script: []string{"hi"}})
	require.NoError(t, err)
	assert.Equal(t, "scripted", c.Model())

	_, err = New(config.LLMConfig{Provider: "gemini"})
	assert.Error(t, err)
}

func TestScripted(t *testing.T) {
	s := NewScripted(
		"查询中\n@tool sql_query {\"query\": \"SELECT 1\"}\n@tool db_connect",
		"SQL_DONE",
	)
	ctx := context.Background()

	resp, err := s.Complete(ctx, Request{System: "a"})
	require.NoError(t, err)
	assert.Equal(t, "查询中", resp.Content)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "sql_query", resp.ToolCalls[0].Name)
	assert.Equal(t, `{"query": "SELECT 1"}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, "{}", resp.ToolCalls[1].Arguments)
	assert.NotEqual(t, resp.ToolCalls[0].ID, resp.ToolCalls[1].ID)

	resp, err = s.Complete(ctx, Request{System: "b"})
	require.NoError(t, err)
	assert.Equal(t, "SQL_DONE", resp.Content)
	assert.Empty(t, resp.ToolCalls)

	_, err = s.Complete(ctx, Request{})
	assert.ErrorIs(t, err, ErrScriptExhausted)

	reqs := s.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "b", reqs[1].System)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Complete(cancelled, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}
