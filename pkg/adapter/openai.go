package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

const (
	DefaultOpenAIEndpoint = "https://chatapi.akash.network/api/v1/"
	DefaultOpenAIModel    = "DeepSeek-R1-0528"
)

// OpenAIClient is a gateway for OpenAI-compatible chat completion endpoints
type OpenAIClient struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

type OpenAIOption func(*OpenAIClient)

func WithOpenAIEndpoint(endpoint string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.endpoint = endpoint
	}
}

func WithOpenAIModel(model string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.model = model
	}
}

func WithOpenAIHTTPClient(client *http.Client) OpenAIOption {
	return func(c *OpenAIClient) {
		c.client = client
	}
}

func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	c := &OpenAIClient{
		endpoint: DefaultOpenAIEndpoint,
		apiKey:   apiKey,
		model:    DefaultOpenAIModel,
		client:   &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
		Delta   struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func toChatMessages(messages []model.Message) []chatMessage {
	out := make([]chatMessage, len(messages))
	for i, msg := range messages {
		out[i] = chatMessage{Role: string(msg.Role), Content: msg.Content, Name: msg.Name}
		if msg.Role == model.RoleTool {
			// plain-text tool calls carry no call id, so results go back as user text
			out[i] = chatMessage{Role: string(model.RoleUser), Content: toolResultText(msg)}
		}
	}
	return out
}

func (c *OpenAIClient) post(ctx context.Context, messages []model.Message, stream bool) (*http.Response, error) {
	payload, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: toChatMessages(messages),
		Stream:   stream,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal request")
	}

	url := strings.TrimSuffix(c.endpoint, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to send request", goerr.V("url", url))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, goerr.New("chat completion returned error",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(body)),
			goerr.V("model", c.model))
	}

	return resp, nil
}

func (c *OpenAIClient) Generate(ctx context.Context, messages []model.Message) (string, error) {
	resp, err := c.post(ctx, messages, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", goerr.Wrap(err, "failed to decode chat completion")
	}
	if len(out.Choices) == 0 {
		return "", goerr.New("no content in chat completion", goerr.V("model", c.model))
	}

	return out.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) GenerateStream(ctx context.Context, messages []model.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := c.post(ctx, messages, true)
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var chunk chatResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				yield("", goerr.Wrap(err, "failed to decode stream chunk", goerr.V("data", data)))
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(chunk.Choices[0].Delta.Content, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield("", goerr.Wrap(err, "failed to read stream"))
		}
	}
}
