package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/chart"
)

func textOf(events []Event) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Kind == KindText {
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}

func TestRender_TextAndCharts(t *testing.T) {
	block, err := chart.Build(chart.Request{Type: "bar", Title: "月度", Labels: []any{"Jan", "Feb"}, Values: []any{1.0, 2.0}})
	require.NoError(t, err)

	answer := "前言" + block + "\n  \n" + chart.StartMarker + "{not json" + chart.EndMarker + "结尾"
	events := Collect(New(1).Render(answer))

	var kinds []Kind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []Kind{KindText, KindText, KindChart, KindText, KindText, KindText}, kinds)
	assert.Equal(t, "前", events[0].Text)

	fig := events[2].Figure
	require.NotNil(t, fig)
	assert.Equal(t, "bar", fig.Data[0].Type)
	assert.Equal(t, []any{"Jan", "Feb"}, fig.Data[0].X)
	assert.Equal(t, "月度", fig.Layout.Title.Text)

	assert.True(t, strings.HasPrefix(events[3].Text, "\nChart JSON decode error: "))
	assert.Equal(t, "结", events[4].Text)
}

func TestRender_ChunkSize(t *testing.T) {
	events := Collect(New(3).Render("abcdefg"))
	require.Len(t, events, 3)
	assert.Equal(t, "abc", events[0].Text)
	assert.Equal(t, "g", events[2].Text)
	assert.Equal(t, "abcdefg", textOf(events))
}

func TestRender_SingleUse(t *testing.T) {
	seq := New(10).Render("hello")
	assert.Len(t, Collect(seq), 1)
	assert.Empty(t, Collect(seq))
}

func TestRender_StopsEarly(t *testing.T) {
	count := 0
	for range New(1).Render("abcdef") {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestRender_UnsupportedChart(t *testing.T) {
	answer := chart.StartMarker + `{"type":"radar","labels":["a"],"values":[1]}` + chart.EndMarker
	events := Collect(New(1).Render(answer))
	require.Len(t, events, 1)
	assert.Equal(t, Event{Kind: KindText, Text: UnsupportedChart}, events[0])
}

func TestRender_AutoChart(t *testing.T) {
	answer := "IT费用: 120\nHR费用: 80\n财务: 30"
	events := Collect(New(100).Render(answer))
	require.Len(t, events, 2)

	assert.Equal(t, KindChart, events[0].Kind)
	require.NotNil(t, events[0].Figure)
	assert.Equal(t, []any{"IT费用", "HR费用", "财务"}, events[0].Figure.Data[0].X)
	assert.Equal(t, chart.AutoTitle, events[0].Figure.Layout.Title.Text)
	assert.Equal(t, answer, events[1].Text)

	events = Collect(New(100).Render("只有一个: 1"))
	require.Len(t, events, 1)
	assert.Equal(t, KindText, events[0].Kind)
}

func TestNewFigure(t *testing.T) {
	decode := func(s string) map[string]any {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(s), &m))
		return m
	}

	t.Run("pie", func(t *testing.T) {
		fig := NewFigure(decode(`{"type":"pie","title":"占比","labels":["a","b"],"values":[1,2]}`))
		require.NotNil(t, fig)
		assert.Equal(t, "label+percent", fig.Data[0].TextInfo)
		assert.Equal(t, 0.5, fig.Layout.Title.X)
	})

	t.Run("line", func(t *testing.T) {
		fig := NewFigure(decode(`{"type":"line","labels":["a"],"values":[1]}`))
		require.NotNil(t, fig)
		assert.Equal(t, "lines+markers", fig.Data[0].Mode)
		assert.Nil(t, fig.Layout.Title)
	})

	t.Run("stacked bar falls back to data", func(t *testing.T) {
		fig := NewFigure(decode(`{"type":"stacked_bar","labels":["a"],"series":[{"name":"x","data":[5]},{"name":"y","values":[6]}]}`))
		require.NotNil(t, fig)
		assert.Equal(t, "stack", fig.Layout.BarMode)
		require.Len(t, fig.Data, 2)
		assert.Equal(t, []any{5.0}, fig.Data[0].Y)
		assert.Equal(t, "inside", fig.Data[0].TextPosition)
	})

	t.Run("grouped bar", func(t *testing.T) {
		fig := NewFigure(decode(`{"type":"grouped_bar","labels":["a"],"series":[{"name":"x","values":[1]}]}`))
		require.NotNil(t, fig)
		assert.Equal(t, "group", fig.Layout.BarMode)
	})

	for _, alias := range []string{"bar_line", "bar+line", "line_bar"} {
		t.Run(alias, func(t *testing.T) {
			fig := NewFigure(decode(`{"type":"` + alias + `","labels":["a"],"bar_data":[1],"line_data":[0.5]}`))
			require.NotNil(t, fig)
			require.Len(t, fig.Data, 2)
			assert.Equal(t, DefaultBarName, fig.Data[0].Name)
			assert.Equal(t, DefaultLineName, fig.Data[1].Name)
			assert.Equal(t, "y2", fig.Data[1].YAxis)
			assert.Equal(t, "y", fig.Layout.YAxis2.Overlaying)
		})
	}

	t.Run("histogram bins", func(t *testing.T) {
		fig := NewFigure(decode(`{"type":"histogram","values":[1,2,3]}`))
		require.NotNil(t, fig)
		assert.Equal(t, DefaultBins, fig.Data[0].NBinsX)

		fig = NewFigure(decode(`{"type":"histogram","values":[1,2,3],"bins":4}`))
		require.NotNil(t, fig)
		assert.Equal(t, 4, fig.Data[0].NBinsX)
	})

	missing := []string{
		`{"type":"bar","labels":["a"]}`,
		`{"type":"line","values":[1]}`,
		`{"type":"stacked_bar","labels":["a"]}`,
		`{"type":"bar_line","labels":["a"],"bar_data":[1]}`,
		`{"type":"histogram"}`,
		`{"labels":["a"],"values":[1]}`,
	}
	for _, raw := range missing {
		assert.Nil(t, NewFigure(decode(raw)), raw)
	}
}
