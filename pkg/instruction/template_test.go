package instruction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInject(t *testing.T) {
	vars := map[string]string{"workbook_path": "Data/cost.xlsx", "sheets": "CostDataBase, Table7"}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"plain", "无占位符", "无占位符"},
		{"required", "文件：{workbook_path}", "文件：Data/cost.xlsx"},
		{"spaces", "表：{ sheets }", "表：CostDataBase, Table7"},
		{"optional missing", "附加：{extra?}。", "附加：。"},
		{"optional present", "{sheets?}", "CostDataBase, Table7"},
		{"json left alone", `{"type": "bar", "labels": ["a"]}`, `{"type": "bar", "labels": ["a"]}`},
		{"non identifier", "{1abc} {a-b}", "{1abc} {a-b}"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Inject(tt.template, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInject_Missing(t *testing.T) {
	_, err := Inject("{b} {a} {workbook_path}", map[string]string{"workbook_path": "x"})
	require.Error(t, err)
	assert.Equal(t, "unresolved placeholders: a, b", err.Error())

	assert.Panics(t, func() { MustInject("{missing}", nil) })
}

func TestTemplate(t *testing.T) {
	tmpl := New("你好 {name}")
	assert.Equal(t, "你好 {name}", tmpl.Raw())

	got, err := tmpl.Render(map[string]string{"name": "Manager"})
	require.NoError(t, err)
	assert.Equal(t, "你好 Manager", got)
}

func TestListPlaceholders(t *testing.T) {
	got := ListPlaceholders(`{a} {b?} {a} {"k": 1}`)
	assert.Equal(t, []string{"a", "b"}, got)
}
