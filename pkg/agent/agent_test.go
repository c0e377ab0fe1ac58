package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/instruction"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/llms"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/sop"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/tool"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/toolset"
)

func testParams(members []string) PromptParams {
	return PromptParams{
		WorkbookPath: "Data/cost.xlsx",
		Sheets:       []string{"CostDataBase", "Table7"},
		CostTable:    "CostDataBase",
		RateTable:    "Table7",
		Members:      members,
	}
}

func testRoles(t *testing.T) *Roles {
	t.Helper()
	roles, err := DefaultRoles(testParams(sop.ExtendedTeam))
	require.NoError(t, err)
	return roles
}

func TestDefaultRoles_Markers(t *testing.T) {
	roles := testRoles(t)
	assert.Equal(t, sop.ExtendedTeam, roles.Names())

	markers := map[string][]string{
		sop.Manager: {
			sop.HandoffMarker, sop.FinalMarker, sop.TerminateMarker,
			sop.IntentClassifier, sop.SqlSpecialist, sop.DataAnalyst, sop.ReportAnalyst, sop.MultiDomainAnalyst,
		},
		sop.IntentClassifier:   {sop.CategoryMarker, sop.NeedsDataSuffix},
		sop.SqlSpecialist:      {sop.SQLDoneMarker, "Data/cost.xlsx", "CostDataBase、Table7"},
		sop.DataAnalyst:        {sop.AnalysisDone},
		sop.ReportAnalyst:      {sop.ScoringDone},
		sop.MultiDomainAnalyst: {sop.ConsultationDone},
	}
	for name, want := range markers {
		t.Run(name, func(t *testing.T) {
			role, ok := roles.Get(name)
			require.True(t, ok)
			for _, m := range want {
				assert.Contains(t, role.Instruction, m)
			}
			assert.Empty(t, instruction.ListPlaceholders(role.Instruction))
			assert.NotEmpty(t, role.Description)
		})
	}
}

func TestDefaultRoles_Tools(t *testing.T) {
	roles := testRoles(t)

	tests := []struct {
		role string
		want []string
	}{
		{sop.SqlSpecialist, []string{toolset.DBConnect, toolset.BusinessContext, toolset.GenerateCostRateSQL, toolset.SQLQuery}},
		{sop.DataAnalyst, []string{toolset.MonthlyCostTable, toolset.YearlyCost, toolset.ChartTool}},
		{sop.ReportAnalyst, []string{toolset.SDQScore, toolset.DowntimeScore, toolset.TotalScore, toolset.SupplierScoring, toolset.ChartTool}},
		{sop.Manager, nil},
		{sop.IntentClassifier, nil},
		{sop.MultiDomainAnalyst, nil},
	}
	for _, tt := range tests {
		role, ok := roles.Get(tt.role)
		require.True(t, ok)
		assert.Equal(t, tt.want, role.Tools, tt.role)
	}

	// Returned roles are copies.
	role, _ := roles.Get(sop.SqlSpecialist)
	role.Tools[0] = "changed"
	again, _ := roles.Get(sop.SqlSpecialist)
	assert.Equal(t, toolset.DBConnect, again.Tools[0])
}

func TestDefaultRoles_Minimal(t *testing.T) {
	roles, err := DefaultRoles(testParams(sop.MinimalTeam))
	require.NoError(t, err)
	assert.Equal(t, sop.MinimalTeam, roles.Names())

	_, ok := roles.Get(sop.DataAnalyst)
	assert.False(t, ok)

	manager, _ := roles.Get(sop.Manager)
	assert.Contains(t, manager.Instruction, "Manager, intention_analyst, excel_sql_specialist")
}

func TestDefaultRoles_UnknownMember(t *testing.T) {
	_, err := DefaultRoles(testParams([]string{sop.Manager, "auditor"}))
	assert.ErrorContains(t, err, `unknown role "auditor"`)
}

type stubTool struct {
	name   string
	result string
	err    error
	calls  []map[string]any
}

func (s *stubTool) Name() string           { return s.name }
func (s *stubTool) Description() string    { return "stub " + s.name }
func (s *stubTool) Schema() map[string]any { return map[string]any{"type": "object"} }

func (s *stubTool) Call(_ context.Context, args map[string]any) (string, error) {
	s.calls = append(s.calls, args)
	return s.result, s.err
}

type stubSelector map[string]*stubTool

func (s stubSelector) Select(names []string) ([]tool.CallableTool, error) {
	var out []tool.CallableTool
	for _, n := range names {
		if t, ok := s[n]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func transcript() []sop.Message {
	return []sop.Message{
		{Source: sop.User, Content: "2024年IT费用是多少", Kind: sop.KindText},
		{Source: sop.Manager, Content: "转交给 excel_sql_specialist", Kind: sop.KindText},
	}
}

func TestTurn_PlainReply(t *testing.T) {
	llm := llms.NewScripted("CATEGORY:成本分析-需数据")
	a := New(llm, testRoles(t), nil)

	out, err := a.Turn(context.Background(), sop.IntentClassifier, transcript())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, sop.Message{Source: sop.IntentClassifier, Content: "CATEGORY:成本分析-需数据", Kind: sop.KindText}, out[0])

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].System, sop.CategoryMarker)
	assert.Empty(t, reqs[0].Tools)
	assert.Equal(t, []llms.Message{
		{Role: llms.RoleUser, Content: "user: 2024年IT费用是多少"},
		{Role: llms.RoleUser, Content: "Manager: 转交给 excel_sql_specialist"},
	}, reqs[0].Messages)
}

func TestTurn_ToolResultsBecomeSummary(t *testing.T) {
	query := &stubTool{name: toolset.SQLQuery, result: "查询成功，返回 1 行数据:\n100"}
	connect := &stubTool{name: toolset.DBConnect, result: "连接成功"}
	llm := llms.NewScripted("@tool db_connect\n@tool sql_query {\"query\": \"SELECT 1\"}")
	a := New(llm, testRoles(t), stubSelector{toolset.SQLQuery: query, toolset.DBConnect: connect})

	out, err := a.Turn(context.Background(), sop.SqlSpecialist, transcript())
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, sop.KindToolCall, out[0].Kind)
	assert.Contains(t, out[0].Content, `"name":"sql_query"`)
	assert.Equal(t, sop.KindToolResult, out[1].Kind)
	assert.Equal(t, sop.KindText, out[2].Kind)
	assert.Equal(t, "连接成功\n查询成功，返回 1 行数据:\n100", out[2].Content)

	require.Len(t, query.calls, 1)
	assert.Equal(t, "SELECT 1", query.calls[0]["query"])
	assert.Len(t, connect.calls, 1)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].Tools, 2)
}

func TestTurn_ToolFailuresAreResults(t *testing.T) {
	broken := &stubTool{name: toolset.SQLQuery, err: errors.New("disk gone")}
	llm := llms.NewScripted("@tool sql_query {}\n@tool drop_table {}\n@tool sql_query {not json")
	a := New(llm, testRoles(t), stubSelector{toolset.SQLQuery: broken})

	out, err := a.Turn(context.Background(), sop.SqlSpecialist, transcript())
	require.NoError(t, err)
	require.Len(t, out, 3)

	summary := out[2].Content
	assert.Contains(t, summary, "Error: disk gone")
	assert.Contains(t, summary, `Error: tool "drop_table" not found`)
	assert.Contains(t, summary, "invalid arguments for sql_query")
	assert.Len(t, broken.calls, 1)
}

func TestTurn_Reflection(t *testing.T) {
	query := &stubTool{name: toolset.SQLQuery, result: "查询成功，返回 1 行数据"}
	llm := llms.NewScripted("@tool sql_query {}", "SQL_DONE\n总额 100")
	a := New(llm, testRoles(t), stubSelector{toolset.SQLQuery: query}, WithReflection(true))

	out, err := a.Turn(context.Background(), sop.SqlSpecialist, transcript())
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "SQL_DONE\n总额 100", out[2].Content)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[1].Tools)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, llms.RoleTool, last.Role)
	assert.Equal(t, "查询成功，返回 1 行数据", last.Content)
	assert.NotEmpty(t, last.ToolCallID)
}

func TestTurn_MoreToolIterations(t *testing.T) {
	query := &stubTool{name: toolset.SQLQuery, result: "查询成功"}
	llm := llms.NewScripted("@tool sql_query {}", "SQL_DONE\n查询成功")
	a := New(llm, testRoles(t), stubSelector{toolset.SQLQuery: query}, WithMaxToolIterations(2))

	out, err := a.Turn(context.Background(), sop.SqlSpecialist, transcript())
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "SQL_DONE\n查询成功", out[2].Content)
	assert.Len(t, llm.Requests()[1].Tools, 1)
}

func TestTurn_Errors(t *testing.T) {
	a := New(llms.NewScripted(), testRoles(t), nil)

	_, err := a.Turn(context.Background(), "auditor", transcript())
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, err = a.Turn(context.Background(), sop.Manager, transcript())
	assert.ErrorIs(t, err, llms.ErrScriptExhausted)

	_, err = a.Turn(context.Background(), sop.SqlSpecialist, transcript())
	assert.ErrorContains(t, err, "no tools configured")
}

func TestHistory(t *testing.T) {
	msgs := []sop.Message{
		{Source: sop.User, Content: "q"},
		{Source: sop.Manager, Content: "转交给 intention_analyst", Kind: sop.KindText},
		{Source: sop.IntentClassifier, Content: "CATEGORY:不清", Kind: sop.KindText},
		{Source: sop.SqlSpecialist, Content: "[]", Kind: sop.KindToolCall},
	}
	got := History(sop.Manager, msgs)
	assert.Equal(t, []llms.Message{
		{Role: llms.RoleUser, Content: "user: q"},
		{Role: llms.RoleAssistant, Content: "转交给 intention_analyst"},
		{Role: llms.RoleUser, Content: "intention_analyst: CATEGORY:不清"},
	}, got)
}
