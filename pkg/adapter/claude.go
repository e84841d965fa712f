package adapter

import (
	"context"
	"iter"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// ClaudeClient is a gateway backed by the Anthropic Messages API
type ClaudeClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

type ClaudeOption func(*claudeConfig)

type claudeConfig struct {
	model     string
	maxTokens int64
	opts      []option.RequestOption
}

func WithClaudeModel(model string) ClaudeOption {
	return func(c *claudeConfig) {
		c.model = model
	}
}

func WithClaudeMaxTokens(n int64) ClaudeOption {
	return func(c *claudeConfig) {
		c.maxTokens = n
	}
}

// WithClaudeBaseURL overrides the API endpoint
func WithClaudeBaseURL(url string) ClaudeOption {
	return func(c *claudeConfig) {
		c.opts = append(c.opts, option.WithBaseURL(url))
	}
}

// NewClaude creates a new Claude API client
func NewClaude(apiKey string, opts ...ClaudeOption) *ClaudeClient {
	cfg := &claudeConfig{
		model:     "claude-sonnet-4-5",
		maxTokens: 1024,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, cfg.opts...)
	client := anthropic.NewClient(reqOpts...)

	return &ClaudeClient{
		client:    &client,
		model:     cfg.model,
		maxTokens: cfg.maxTokens,
	}
}

func (c *ClaudeClient) params(messages []model.Message) anthropic.MessageNewParams {
	var system []string
	var msgs []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			system = append(system, msg.Content)
		case model.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		case model.RoleTool:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(toolResultText(msg))))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{
			{Text: strings.Join(system, "\n\n")},
		}
	}
	return params
}

func (c *ClaudeClient) Generate(ctx context.Context, messages []model.Message) (string, error) {
	resp, err := c.client.Messages.New(ctx, c.params(messages))
	if err != nil {
		return "", goerr.Wrap(err, "failed to call Claude API", goerr.V("model", c.model))
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

func (c *ClaudeClient) GenerateStream(ctx context.Context, messages []model.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream := c.client.Messages.NewStreaming(ctx, c.params(messages))
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			switch evt := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := evt.Delta.AsAny().(anthropic.TextDelta); ok {
					if !yield(delta.Text, nil) {
						return
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			yield("", goerr.Wrap(err, "failed to stream from Claude API", goerr.V("model", c.model)))
		}
	}
}
