package tool_test

import (
	"testing"

	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/aigis/pkg/tool"
	"github.com/m-mizutani/gt"
)

func TestParseCalls(t *testing.T) {
	t.Run("single call", func(t *testing.T) {
		text := "let me check\n<｜tool▁calls▁begin｜><｜tool▁call▁begin｜>function<｜tool▁sep｜>calculator\n```json\n{\"expr\": \"2+2\"}\n```<｜tool▁call▁end｜><｜tool▁calls▁end｜>"
		calls := tool.ParseCalls(text)
		gt.A(t, calls).Length(1)
		gt.Equal(t, calls[0].Type, "function")
		gt.Equal(t, calls[0].Name, "calculator")
		gt.Equal(t, calls[0].Args["expr"], any("2+2"))
	})

	t.Run("multiple calls keep order and skip invalid args", func(t *testing.T) {
		text := tool.CallsBegin +
			tool.CallBegin + "function" + tool.CallSep + "ddg_search\n```json\n{\"query\": \"go\"}\n```" + tool.CallEnd +
			tool.CallBegin + "function" + tool.CallSep + "broken\n```json\n{not json}\n```" + tool.CallEnd +
			tool.CallBegin + "function" + tool.CallSep + "website\n```json\n{\n  \"website\": \"https://example.com\",\n  \"opts\": {\"render\": \"md\"}\n}\n```\n" + tool.CallEnd +
			tool.CallsEnd
		calls := tool.ParseCalls(text)
		gt.A(t, calls).Length(2)
		gt.Equal(t, calls[0].Name, "ddg_search")
		gt.Equal(t, calls[1].Name, "website")
		gt.Equal(t, calls[1].Args["opts"], any(map[string]any{"render": "md"}))
	})

	t.Run("plain text has no calls", func(t *testing.T) {
		gt.A(t, tool.ParseCalls("just a reply ```json\n{}\n```")).Length(0)
	})

	t.Run("format round trip", func(t *testing.T) {
		call := model.ToolCall{Type: "function", Name: "calculator", Args: map[string]any{"expr": "1+1"}}
		calls := tool.ParseCalls(tool.FormatCall(call))
		gt.A(t, calls).Length(1)
		gt.True(t, calls[0].Same(call))
	})
}
