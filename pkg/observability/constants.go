package observability

const (
	AttrServiceName  = "service.name"
	AttrAgentRole    = "agent.role"
	AttrToolName     = "tool.name"
	AttrLLMModel     = "llm.model"
	AttrLLMTokensIn  = "llm.tokens.input"
	AttrLLMTokensOut = "llm.tokens.output"
	AttrErrorType    = "error.type"
	AttrThreadID     = "chat.thread_id"
	AttrStopReason   = "team.stop_reason"
	AttrTurns        = "team.turns"

	AttrHTTPMethod       = "http.method"
	AttrHTTPPath         = "http.path"
	AttrHTTPStatusCode   = "http.status_code"
	AttrHTTPResponseSize = "http.response_size"

	SpanTeamRun       = "team.run"
	SpanAgentTurn     = "agent.turn"
	SpanLLMRequest    = "agent.llm_request"
	SpanToolExecution = "agent.tool_execution"
	SpanQuery         = "workbook.query"
	SpanHTTPRequest   = "http.request"

	DefaultServiceName = "insightbot"
)
