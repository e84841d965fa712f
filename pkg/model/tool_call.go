package model

import (
	"encoding/json"
	"reflect"
)

// ToolCall is a tool-call directive parsed from model output
type ToolCall struct {
	Type string
	Name string
	Args map[string]any
}

// Same reports whether both calls target the same tool with equal arguments
func (c ToolCall) Same(other ToolCall) bool {
	return c.Name == other.Name && reflect.DeepEqual(c.Args, other.Args)
}

// ToolResult is the outcome of one executed tool call. Error is set on
// failure, Value otherwise.
type ToolResult struct {
	Name  string
	Value any
	Error string
}

// Content renders the result as fed back to the model
func (r ToolResult) Content() string {
	if r.Error != "" {
		return "Error: " + r.Error
	}

	switch v := r.Value.(type) {
	case string:
		return v
	case nil:
		return "null"
	}

	raw, err := json.Marshal(r.Value)
	if err != nil {
		return "Error: failed to serialize tool result: " + err.Error()
	}
	return string(raw)
}
