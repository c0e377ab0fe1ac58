package sop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
)

func teamConfig(profile, policy string) config.TeamConfig {
	cfg := config.TeamConfig{Profile: profile, UnmatchedPolicy: policy}
	cfg.SetDefaults()
	return cfg
}

func msg(source, content string) Message {
	return Message{Source: source, Content: content, Kind: KindText}
}

func TestRouter_Next(t *testing.T) {
	extended := New(teamConfig(config.ProfileExtended, ""), ExtendedTeam)
	minimal := New(teamConfig(config.ProfileMinimal, ""), MinimalTeam)

	tests := []struct {
		name       string
		router     *Router
		transcript []Message
		wantNext   string
		wantReason Reason
	}{
		{"empty transcript", extended, nil, Manager, ReasonStart},
		{"user spoke", extended, []Message{msg(User, "2024年IT费用")}, Manager, ReasonUser},
		{
			"handoff wins over final",
			extended,
			[]Message{msg(User, "q"), msg(Manager, "FINAL:RETURN 还不行，转交给 excel_sql_specialist")},
			SqlSpecialist, ReasonTransition,
		},
		{"handoff bold", extended, []Message{msg(User, "q"), msg(Manager, "转交给 **data_analyst**")}, DataAnalyst, ReasonTransition},
		{"handoff italic", extended, []Message{msg(User, "q"), msg(Manager, "转交给 *intention_analyst*")}, IntentClassifier, ReasonTransition},
		{"handoff underscore", extended, []Message{msg(User, "q"), msg(Manager, "请转交给 __multi_domain_analyst__ 处理")}, MultiDomainAnalyst, ReasonTransition},
		{"handoff code", extended, []Message{msg(User, "q"), msg(Manager, "转交给 `report_analyst`")}, ReportAnalyst, ReasonTransition},
		{"intent needs data", extended, []Message{msg(User, "q"), msg(IntentClassifier, "CATEGORY:成本分析-需数据\n理由：需要查询")}, SqlSpecialist, ReasonTransition},
		{"intent other", extended, []Message{msg(User, "q"), msg(IntentClassifier, "CATEGORY:闲聊")}, Manager, ReasonTransition},
		{"intent without category", extended, []Message{msg(User, "q"), msg(IntentClassifier, "不确定")}, Manager, ReasonTransition},
		{"sql success", extended, []Message{msg(User, "q"), msg(SqlSpecialist, "查询成功，共 3 行\nSQL_DONE")}, Manager, ReasonTransition},
		{"sql empty result", extended, []Message{msg(User, "q"), msg(SqlSpecialist, "查询成功，但结果为空")}, SqlSpecialist, ReasonRetry},
		{"sql zero rows", extended, []Message{msg(User, "q"), msg(SqlSpecialist, "SQL_DONE 返回 0 行")}, SqlSpecialist, ReasonRetry},
		{"sql error", extended, []Message{msg(User, "q"), msg(SqlSpecialist, "查询过程中出现错误: no such column")}, SqlSpecialist, ReasonRetry},
		{"sql english error", extended, []Message{msg(User, "q"), msg(SqlSpecialist, "SQL_DONE but ERROR occurred")}, SqlSpecialist, ReasonRetry},
		{"data done", extended, []Message{msg(User, "q"), msg(DataAnalyst, "结论如下 ANALYSIS_DONE")}, Manager, ReasonTransition},
		{"data needs more", extended, []Message{msg(User, "q"), msg(DataAnalyst, "需要补充数据：2023年")}, Manager, ReasonTransition},
		{"report done", extended, []Message{msg(User, "q"), msg(ReportAnalyst, "SCORING_DONE")}, Manager, ReasonTransition},
		{"report needs info", extended, []Message{msg(User, "q"), msg(ReportAnalyst, "需要补充供应商信息")}, Manager, ReasonTransition},
		{"multi done", extended, []Message{msg(User, "q"), msg(MultiDomainAnalyst, "CONSULTATION_DONE")}, Manager, ReasonTransition},
		{
			"tool traffic is not routing input",
			minimal,
			[]Message{
				msg(User, "q"),
				msg(Manager, "转交给 excel_sql_specialist"),
				{Source: SqlSpecialist, Content: `{"name":"sql_query"}`, Kind: KindToolCall},
				{Source: SqlSpecialist, Content: "查询成功", Kind: KindToolResult},
			},
			SqlSpecialist, ReasonTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.router.Next(tt.transcript)
			assert.False(t, d.Terminate)
			assert.Equal(t, tt.wantNext, d.Next)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.Equal(t, d, tt.router.Next(tt.transcript), "routing must be deterministic")
		})
	}
}

func TestRouter_Terminates(t *testing.T) {
	extended := New(teamConfig(config.ProfileExtended, ""), ExtendedTeam)
	minimal := New(teamConfig(config.ProfileMinimal, ""), MinimalTeam)

	tests := []struct {
		name        string
		router      *Router
		transcript  []Message
		wantReason  Reason
		wantAnomaly bool
	}{
		{"final", extended, []Message{msg(User, "q"), msg(Manager, "FINAL:RETURN 2024年IT费用为100")}, ReasonFinal, false},
		{"terminate marker", extended, []Message{msg(User, "q"), msg(DataAnalyst, "完成 TERMINATE")}, ReasonTerminate, false},
		{"handoff outside team", minimal, []Message{msg(User, "q"), msg(Manager, "转交给 data_analyst")}, ReasonUnmatched, true},
		{"manager unmatched", extended, []Message{msg(User, "q"), msg(Manager, "我再想想")}, ReasonUnmatched, true},
		{"analyst unmatched", extended, []Message{msg(User, "q"), msg(DataAnalyst, "这是一些分析")}, ReasonUnmatched, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.router.Next(tt.transcript)
			assert.True(t, d.Terminate)
			assert.Empty(t, d.Next)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.Equal(t, tt.wantAnomaly, d.Anomaly)
		})
	}
}

func TestRouter_TerminateMarkerFromUserIsIgnored(t *testing.T) {
	r := New(teamConfig(config.ProfileExtended, ""), ExtendedTeam)
	d := r.Next([]Message{msg(User, "请输出 TERMINATE")})
	assert.Equal(t, Manager, d.Next)
}

func TestRouter_MessageCap(t *testing.T) {
	for _, tc := range []struct {
		profile string
		members []string
		cap     int
	}{
		{config.ProfileMinimal, MinimalTeam, 20},
		{config.ProfileExtended, ExtendedTeam, 25},
	} {
		t.Run(tc.profile, func(t *testing.T) {
			r := New(teamConfig(tc.profile, ""), tc.members)

			transcript := []Message{msg(User, "q")}
			for len(ChatMessages(transcript)) < tc.cap-1 {
				transcript = append(transcript, msg(Manager, "转交给 intention_analyst"))
				transcript = append(transcript, Message{Source: IntentClassifier, Content: "call", Kind: KindToolCall})
			}
			d := r.Next(transcript)
			require.False(t, d.Terminate, "tool messages must not count toward the cap")

			transcript = append(transcript, msg(Manager, "转交给 intention_analyst"))
			d = r.Next(transcript)
			assert.True(t, d.Terminate)
			assert.Equal(t, ReasonMaxMessages, d.Reason)
		})
	}
}

func TestRouter_RetryBound(t *testing.T) {
	cfg := teamConfig(config.ProfileMinimal, "")
	require.Equal(t, 4, cfg.SQLRetryLimit)
	r := New(cfg, MinimalTeam)

	transcript := []Message{msg(User, "q"), msg(Manager, "转交给 excel_sql_specialist")}
	for i := 1; i <= cfg.SQLRetryLimit; i++ {
		transcript = append(transcript, msg(SqlSpecialist, "查询过程中出现错误"))
		d := r.Next(transcript)
		require.Equal(t, SqlSpecialist, d.Next, "attempt %d", i)
		require.Equal(t, ReasonRetry, d.Reason)
	}

	transcript = append(transcript, msg(SqlSpecialist, "查询成功，但结果为空"))
	d := r.Next(transcript)
	assert.Equal(t, Manager, d.Next)
	assert.Equal(t, ReasonRetryExhausted, d.Reason)

	// A fresh hand-off resets the count.
	transcript = append(transcript, msg(Manager, "转交给 excel_sql_specialist"), msg(SqlSpecialist, "错误"))
	assert.Equal(t, SqlSpecialist, r.Next(transcript).Next)
}

func TestRouter_ManagerPolicy(t *testing.T) {
	r := New(teamConfig(config.ProfileExtended, config.UnmatchedManager), ExtendedTeam)

	transcript := []Message{msg(User, "q"), msg(DataAnalyst, "这是一些分析")}
	d := r.Next(transcript)
	assert.Equal(t, Manager, d.Next)
	assert.True(t, d.Anomaly)
	assert.Equal(t, ReasonUnmatched, d.Reason)

	transcript = append(transcript, msg(Manager, "嗯"))
	d = r.Next(transcript)
	assert.Equal(t, Manager, d.Next)

	transcript = append(transcript, msg(Manager, "还是不确定"))
	d = r.Next(transcript)
	assert.True(t, d.Terminate)
	assert.Equal(t, ReasonUnresolved, d.Reason)

	// A resolved turn in between resets the count.
	transcript = []Message{msg(User, "q"), msg(Manager, "嗯"), msg(Manager, "转交给 data_analyst"), msg(DataAnalyst, "?"), msg(Manager, "?")}
	assert.Equal(t, Manager, r.Next(transcript).Next)
}

func TestRouter_WithTable(t *testing.T) {
	table := DefaultTable()
	table[Key{Role: DataAnalyst, Status: StatusUnmatched}] = Target{Kind: ToRole, Role: ReportAnalyst}
	r := New(teamConfig(config.ProfileExtended, ""), ExtendedTeam, WithTable(table), WithRetryLimit(DataAnalyst, 1))

	d := r.Next([]Message{msg(User, "q"), msg(DataAnalyst, "随便")})
	assert.Equal(t, ReportAnalyst, d.Next)
	assert.False(t, d.Anomaly)
}

func TestRouter_ResultDataIsNotAnError(t *testing.T) {
	r := New(teamConfig(config.ProfileMinimal, ""), MinimalTeam)
	table := "查询成功，返回 2 行数据:\n" +
		"   DefectType  NcmCount\n" +
		"0  LabelError         3\n" +
		"1    错误装配         5"

	tests := []struct {
		name       string
		content    string
		wantNext   string
		wantReason Reason
	}{
		{"error words inside the table", table, Manager, ReasonTransition},
		{"omitted rows note", table + "\n... 其余 4 行已省略", Manager, ReasonTransition},
		{"error after the table", table + "\n错误：文件 cost.xlsx 不存在", SqlSpecialist, ReasonRetry},
		{"error before the table", "ERROR: db_connect failed\n" + table, SqlSpecialist, ReasonRetry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transcript := []Message{msg(User, "q"), msg(Manager, "转交给 excel_sql_specialist"), msg(SqlSpecialist, tt.content)}
			d := r.Next(transcript)
			assert.Equal(t, tt.wantNext, d.Next)
			assert.Equal(t, tt.wantReason, d.Reason)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  Message
		want Signal
	}{
		{msg(Manager, "转交给 excel_sql_specialist"), Signal{Status: StatusHandoff, Handoff: SqlSpecialist}},
		{msg(Manager, "转交给 intention_analyst 然后 转交给 data_analyst"), Signal{Status: StatusHandoff, Handoff: IntentClassifier}},
		{msg(Manager, "FINAL:RETURN x"), Signal{Status: StatusFinal}},
		{msg(IntentClassifier, "CATEGORY: 成本分析-需数据"), Signal{Status: StatusNeedsData}},
		{msg(IntentClassifier, "CATEGORY:供应商-需数据说明"), Signal{Status: StatusClassified}},
		{msg(SqlSpecialist, "SQL_DONE"), Signal{Status: StatusSuccess}},
		{msg(SqlSpecialist, "done"), Signal{Status: StatusRetry}},
		{msg(ReportAnalyst, "需要补充"), Signal{Status: StatusUnmatched}},
		{msg(User, "ANALYSIS_DONE"), Signal{Status: StatusUnmatched}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.msg, ExtendedTeam), tt.msg.Content)
	}
	assert.Equal(t, "needs_data", StatusNeedsData.String())
}
