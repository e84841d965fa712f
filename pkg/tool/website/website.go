package website

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/m-mizutani/aigis/pkg/tool"
	"github.com/m-mizutani/aigis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

const (
	maxBodySize = 2 << 20

	RenderMarkdown = "md"
	RenderHTML     = "html"
)

const description = `Fetches a website.
Parameters:
- ` + "`website`" + `: The URL of the website to fetch.
- ` + "`render`" + `: Which format to render the content in. Options are "html" or "md" (default is "md").
Example usage: { "website": "https://example.com", "render": "md"}`

type fetcher struct {
	maxLength int64
	client    *tool.Client
}

// New creates the website fetch tool
func New() *fetcher {
	return &fetcher{}
}

func (x *fetcher) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "website-max-length",
			Usage:       "Maximum number of characters of fetched content returned to the model (0 = unlimited)",
			Value:       20000,
			Sources:     cli.EnvVars("AIGIS_WEBSITE_MAX_LENGTH"),
			Destination: &x.maxLength,
		},
	}
}

func (x *fetcher) Init(ctx context.Context, client *tool.Client) (bool, error) {
	x.client = client
	return true, nil
}

func (x *fetcher) Prompt(ctx context.Context) string {
	return ""
}

func (x *fetcher) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "website",
				Description: description,
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"website": {
							Type:        genai.TypeString,
							Description: "The URL of the website to fetch",
						},
						"render": {
							Type:        genai.TypeString,
							Description: "Output format",
							Enum:        []string{RenderMarkdown, RenderHTML},
						},
					},
					Required: []string{"website"},
				},
			},
		},
	}
}

func (x *fetcher) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	website, ok := fc.Args["website"].(string)
	if !ok || website == "" {
		return nil, goerr.New("missing 'website' parameter")
	}

	render := RenderMarkdown
	if v, ok := fc.Args["render"].(string); ok && v != "" {
		render = v
	}
	if render != RenderMarkdown && render != RenderHTML {
		return nil, goerr.New("invalid 'render' parameter, must be 'html' or 'md'", goerr.V("render", render))
	}

	body, err := x.fetch(ctx, website)
	if err != nil {
		return nil, err
	}

	content := body
	if render == RenderMarkdown {
		content, err = ToMarkdown(strings.NewReader(body))
		if err != nil {
			return nil, err
		}
	}

	logging.From(ctx).Debug("website fetched", "url", website, "render", render, "length", len(content))

	if x.maxLength > 0 && int64(len(content)) > x.maxLength {
		content = truncate(content, int(x.maxLength)) + "\n\n[...truncated...]"
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"content": content},
	}, nil
}

func (x *fetcher) fetch(ctx context.Context, website string) (string, error) {
	client := x.client
	if client == nil {
		client = tool.NewClient()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, website, nil)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create request", goerr.V("url", website))
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("User-Agent", client.UserAgent)

	resp, err := client.HTTP.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "request error", goerr.V("url", website))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", goerr.New("website returned error", goerr.V("url", website), goerr.V("status", resp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", goerr.Wrap(err, "body error", goerr.V("url", website))
	}
	return string(raw), nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
