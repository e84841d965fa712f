package tool

import (
	"context"

	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

// Tool is a named capability the model can call through the tool-call
// wire format
type Tool interface {
	// Spec returns the function declarations of the tool. Name and
	// description of each declaration are advertised in the catalog.
	Spec() *genai.Tool

	// Execute runs the tool with the given function call and returns the response
	Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error)

	// Prompt returns additional information to be added to the system prompt
	// Returns empty string if no additional prompt is needed
	Prompt(ctx context.Context) string

	// Flags returns CLI flags for this tool
	// Returns nil if no flags are needed
	Flags() []cli.Flag
}

// Initializer is implemented by tools that need setup after flags are
// parsed. A tool returning false is left out of the registry.
type Initializer interface {
	Init(ctx context.Context, client *Client) (bool, error)
}
