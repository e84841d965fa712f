package mcp

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/aigis/pkg/tool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

// Provider exposes the tools of connected MCP servers as one tool.Tool
type Provider struct {
	client *Client
	tools  map[string]*remoteTool
	decls  []*genai.FunctionDeclaration
}

type remoteTool struct {
	server string
	name   string
}

var _ tool.Tool = (*Provider)(nil)
var _ tool.Initializer = (*Provider)(nil)
var _ io.Closer = (*Provider)(nil)

func NewProvider(client *Client) *Provider {
	return &Provider{
		client: client,
		tools:  make(map[string]*remoteTool),
	}
}

// Flags returns nil; servers come from the config file
func (p *Provider) Flags() []cli.Flag {
	return nil
}

// Init collects tool declarations of every connected server. A tool name
// already taken by an earlier server is skipped.
func (p *Provider) Init(ctx context.Context, _ *tool.Client) (bool, error) {
	if p.client == nil {
		return false, nil
	}

	for _, serverName := range p.client.Servers() {
		tools, err := p.client.GetTools(serverName)
		if err != nil {
			return false, goerr.Wrap(err, "failed to get tools from server", goerr.V("server", serverName))
		}

		for _, t := range tools {
			if _, dup := p.tools[t.Name]; dup {
				continue
			}

			decl, err := toFunctionDeclaration(t)
			if err != nil {
				return false, goerr.Wrap(err, "failed to convert tool",
					goerr.V("server", serverName),
					goerr.V("tool", t.Name))
			}

			p.tools[t.Name] = &remoteTool{server: serverName, name: t.Name}
			p.decls = append(p.decls, decl)
		}
	}

	return len(p.decls) > 0, nil
}

func toFunctionDeclaration(t *mcp.Tool) (*genai.FunctionDeclaration, error) {
	decl := &genai.FunctionDeclaration{
		Name:        t.Name,
		Description: t.Description,
	}

	if t.InputSchema != nil {
		// InputSchema is untyped; round trip through JSON
		raw, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal input schema")
		}

		var schema jsonschema.Schema
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal input schema")
		}

		params, err := toGenaiSchema(&schema)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert input schema")
		}
		decl.Parameters = params
	}

	return decl, nil
}

// Close closes every server session of the provider
func (p *Provider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

func (p *Provider) Spec() *genai.Tool {
	if len(p.decls) == 0 {
		return nil
	}
	return &genai.Tool{FunctionDeclarations: p.decls}
}

func (p *Provider) Prompt(ctx context.Context) string {
	return ""
}

// Execute calls the remote tool. Text contents of the result are joined
// into the "result" field; a result flagged as error becomes an error.
func (p *Provider) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	target, ok := p.tools[fc.Name]
	if !ok {
		return nil, goerr.Wrap(tool.ErrToolNotFound, "MCP tool not found", goerr.V("name", fc.Name))
	}

	result, err := p.client.CallTool(ctx, target.server, target.name, fc.Args)
	if err != nil {
		return nil, err
	}

	text := resultText(result)
	if result.IsError {
		return nil, goerr.New(text, goerr.V("server", target.server), goerr.V("tool", target.name))
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"result": text},
	}, nil
}

func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if text, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}
