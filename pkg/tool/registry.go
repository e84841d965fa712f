package tool

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"io"
	"strings"
	"text/template"

	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/aigis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

// ErrToolNotFound is returned when a call names an unregistered tool
var ErrToolNotFound = goerr.New("tool not found")

//go:embed prompt/catalog.md
var catalogPrompt string

var catalogTmpl = template.Must(template.New("catalog").Parse(catalogPrompt))

// Registry manages available tools for the LLM
type Registry struct {
	tools    map[string]Tool
	allTools []Tool
	decls    []*genai.FunctionDeclaration
	closers  []io.Closer
}

// New creates a new tool registry with the given tools. Registration order
// is kept for the catalog; a later declaration with the same name wins.
func New(tools ...Tool) *Registry {
	r := &Registry{
		tools:    make(map[string]Tool),
		allTools: tools,
	}

	for _, t := range tools {
		spec := t.Spec()
		if spec == nil {
			continue
		}
		for _, fd := range spec.FunctionDeclarations {
			if _, exists := r.tools[fd.Name]; !exists {
				r.decls = append(r.decls, fd)
			}
			r.tools[fd.Name] = t
		}
	}

	return r
}

// Setup initializes tools implementing Initializer and builds a registry
// from the enabled ones. Tools without Init are always enabled. Tools
// implementing io.Closer are closed by Registry.Close whether enabled or not.
func Setup(ctx context.Context, client *Client, tools ...Tool) (*Registry, error) {
	var closers []io.Closer
	for _, t := range tools {
		if c, ok := t.(io.Closer); ok {
			closers = append(closers, c)
		}
	}

	var enabled []Tool
	for _, t := range tools {
		init, ok := t.(Initializer)
		if !ok {
			enabled = append(enabled, t)
			continue
		}

		active, err := init.Init(ctx, client)
		if err != nil {
			closeAll(closers)
			return nil, goerr.Wrap(err, "failed to initialize tool")
		}
		if active {
			enabled = append(enabled, t)
		}
	}

	r := New(enabled...)
	r.closers = closers
	return r, nil
}

// Close releases connections held by tools, such as MCP sessions
func (r *Registry) Close() error {
	if err := closeAll(r.closers); err != nil {
		return goerr.Wrap(err, "failed to close tools")
	}
	return nil
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Names returns declared tool names in registration order
func (r *Registry) Names() []string {
	names := make([]string, len(r.decls))
	for i, fd := range r.decls {
		names[i] = fd.Name
	}
	return names
}

// Prompts returns all tool prompts concatenated
func (r *Registry) Prompts(ctx context.Context) string {
	var prompts []string
	for _, t := range r.allTools {
		if prompt := t.Prompt(ctx); prompt != "" {
			prompts = append(prompts, prompt)
		}
	}
	return strings.Join(prompts, "\n\n")
}

// Flags returns flags of tools before a registry is built
func Flags(tools ...Tool) []cli.Flag {
	var flags []cli.Flag
	for _, t := range tools {
		if toolFlags := t.Flags(); toolFlags != nil {
			flags = append(flags, toolFlags...)
		}
	}
	return flags
}

type catalogEntry struct {
	Name        string
	Description string
}

// Catalog renders the textual tool catalog placed in the system prompt.
// It is empty when no tool is registered.
func (r *Registry) Catalog(ctx context.Context) (string, error) {
	if len(r.decls) == 0 {
		return "", nil
	}

	entries := make([]catalogEntry, len(r.decls))
	for i, fd := range r.decls {
		entries[i] = catalogEntry{Name: fd.Name, Description: fd.Description}
	}

	var buf bytes.Buffer
	if err := catalogTmpl.Execute(&buf, map[string]any{
		"Tools":   entries,
		"Prompts": r.Prompts(ctx),
	}); err != nil {
		return "", goerr.Wrap(err, "failed to render tool catalog")
	}

	return buf.String(), nil
}

// Run executes a parsed tool call and converts the outcome into a result
// for the model. Failures are reported in the result, never returned.
func (r *Registry) Run(ctx context.Context, call model.ToolCall) model.ToolResult {
	result := model.ToolResult{Name: call.Name}

	tool, ok := r.tools[call.Name]
	if !ok {
		logging.From(ctx).Warn("tool not found", "tool", call.Name)
		result.Error = ErrToolNotFound.Error() + ": " + call.Name
		return result
	}

	resp, err := tool.Execute(ctx, genai.FunctionCall{Name: call.Name, Args: call.Args})
	if err != nil {
		logging.From(ctx).Warn("tool call failed",
			"error", goerr.Wrap(model.Kind(model.ErrToolExecution, err), "tool call failed", goerr.V("name", call.Name)))
		result.Error = err.Error()
		return result
	}

	if resp != nil {
		result.Value = resp.Response
	}
	return result
}
