package main

import (
	"context"
	"log"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type shoutParams struct {
	Text string `json:"text" jsonschema:"Text to shout"`
}

func shout(ctx context.Context, req *mcp.CallToolRequest, params *shoutParams) (*mcp.CallToolResult, any, error) {
	text := params.Text
	if text == "" {
		text = "nothing"
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: strings.ToUpper(text) + "!"},
		},
	}, nil, nil
}

func main() {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "test-stdio-server",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "shout",
		Description: "Repeat text in upper case",
	}, shout)

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
