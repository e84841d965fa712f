package tool_test

import (
	"context"
	"strings"
	"testing"

	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/aigis/pkg/tool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

type mockTool struct {
	name        string
	description string
	enabled     bool
	execute     func(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error)
}

func (m *mockTool) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{Name: m.name, Description: m.description},
		},
	}
}

func (m *mockTool) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	return m.execute(ctx, fc)
}

func (m *mockTool) Prompt(ctx context.Context) string { return "" }

func (m *mockTool) Flags() []cli.Flag { return nil }

type initTool struct {
	mockTool
}

func (m *initTool) Init(ctx context.Context, client *tool.Client) (bool, error) {
	return m.enabled, nil
}

func TestRegistryRun(t *testing.T) {
	ctx := context.Background()
	echo := &mockTool{
		name:        "echo",
		description: "echoes input",
		execute: func(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
			return &genai.FunctionResponse{Name: fc.Name, Response: map[string]any{"echo": fc.Args["text"]}}, nil
		},
	}
	fail := &mockTool{
		name: "fail",
		execute: func(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
			return nil, goerr.New("upstream down")
		},
	}
	reg := tool.New(echo, fail)

	r := reg.Run(ctx, model.ToolCall{Name: "echo", Args: map[string]any{"text": "hi"}})
	gt.Equal(t, r.Error, "")
	gt.Equal(t, r.Content(), `{"echo":"hi"}`)

	r = reg.Run(ctx, model.ToolCall{Name: "fail"})
	gt.Equal(t, r.Content(), "Error: upstream down")

	r = reg.Run(ctx, model.ToolCall{Name: "missing"})
	gt.Equal(t, r.Content(), "Error: tool not found: missing")
}

func TestRegistrySetupAndCatalog(t *testing.T) {
	ctx := context.Background()
	on := &initTool{mockTool{name: "on", description: "enabled tool", enabled: true}}
	off := &initTool{mockTool{name: "off", description: "disabled tool"}}
	plain := &mockTool{name: "plain", description: "always there"}

	reg, err := tool.Setup(ctx, tool.NewClient(), on, off, plain)
	gt.NoError(t, err)
	gt.Equal(t, reg.Names(), []string{"on", "plain"})

	catalog, err := reg.Catalog(ctx)
	gt.NoError(t, err)
	gt.True(t, strings.HasPrefix(catalog, "You have access to the following tools:\n- on: enabled tool\n- plain: always there\n"))
	gt.S(t, catalog).Contains(tool.CallBegin + "function" + tool.CallSep + "function_name")
	gt.S(t, catalog).NotContains("off")

	empty, err := tool.New().Catalog(ctx)
	gt.NoError(t, err)
	gt.Equal(t, empty, "")
}

type closingTool struct {
	initTool
	closed int
	fail   bool
}

func (m *closingTool) Init(ctx context.Context, client *tool.Client) (bool, error) {
	if m.fail {
		return false, goerr.New("init failed")
	}
	return m.enabled, nil
}

func (m *closingTool) Close() error {
	m.closed++
	return nil
}

func TestRegistryClose(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled tools are closed too", func(t *testing.T) {
		on := &closingTool{initTool: initTool{mockTool{name: "on", enabled: true}}}
		off := &closingTool{initTool: initTool{mockTool{name: "off"}}}

		reg, err := tool.Setup(ctx, tool.NewClient(), on, off)
		gt.NoError(t, err)
		gt.Equal(t, reg.Names(), []string{"on"})

		gt.NoError(t, reg.Close())
		gt.Equal(t, on.closed, 1)
		gt.Equal(t, off.closed, 1)
	})

	t.Run("closed when init fails", func(t *testing.T) {
		ok := &closingTool{initTool: initTool{mockTool{name: "ok", enabled: true}}}
		broken := &closingTool{initTool: initTool{mockTool{name: "broken"}}, fail: true}

		_, err := tool.Setup(ctx, tool.NewClient(), ok, broken)
		gt.Error(t, err)
		gt.Equal(t, ok.closed, 1)
		gt.Equal(t, broken.closed, 1)
	})

	t.Run("registry without closers", func(t *testing.T) {
		gt.NoError(t, tool.New(&mockTool{name: "plain"}).Close())
	})
}
