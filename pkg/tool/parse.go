package tool

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/m-mizutani/aigis/pkg/model"
)

// Delimiters of the tool-call wire format. The bars are U+FF5C and the
// word separators U+2581.
const (
	CallsBegin = "<｜tool▁calls▁begin｜>"
	CallsEnd   = "<｜tool▁calls▁end｜>"
	CallBegin  = "<｜tool▁call▁begin｜>"
	CallSep    = "<｜tool▁sep｜>"
	CallEnd    = "<｜tool▁call▁end｜>"
)

var callPattern = regexp.MustCompile(
	"(?s)" + regexp.QuoteMeta(CallBegin) +
		`(?P<type>\w+)` + regexp.QuoteMeta(CallSep) +
		`(?P<name>[\w.-]+)\s*` + "```json" + `\s*(?P<args>\{.*?\})\s*` + "```" + `\s*` +
		regexp.QuoteMeta(CallEnd))

// ParseCalls extracts tool-call directives from model output in order of
// appearance. Directives whose arguments are not a JSON object are skipped.
func ParseCalls(text string) []model.ToolCall {
	var calls []model.ToolCall

	typeIdx := callPattern.SubexpIndex("type")
	nameIdx := callPattern.SubexpIndex("name")
	argsIdx := callPattern.SubexpIndex("args")

	for _, m := range callPattern.FindAllStringSubmatch(text, -1) {
		var args map[string]any
		if err := json.Unmarshal([]byte(m[argsIdx]), &args); err != nil {
			continue
		}

		calls = append(calls, model.ToolCall{
			Type: m[typeIdx],
			Name: m[nameIdx],
			Args: args,
		})
	}

	return calls
}

// FormatCall renders a call in the wire format
func FormatCall(call model.ToolCall) string {
	args, err := json.Marshal(call.Args)
	if err != nil || call.Args == nil {
		args = []byte("{}")
	}

	typ := call.Type
	if typ == "" {
		typ = "function"
	}

	var b strings.Builder
	b.WriteString(CallsBegin)
	b.WriteString(CallBegin)
	b.WriteString(typ)
	b.WriteString(CallSep)
	b.WriteString(call.Name)
	b.WriteString("\n```json\n")
	b.Write(args)
	b.WriteString("\n```")
	b.WriteString(CallEnd)
	b.WriteString(CallsEnd)
	return b.String()
}
