package search

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/m-mizutani/aigis/pkg/tool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/net/html"
	"google.golang.org/genai"
)

const (
	defaultEndpoint = "https://html.duckduckgo.com/html/"
	maxBodySize     = 1 << 20
	ddgRedirect     = "//duckduckgo.com/l/?uddg="
)

const description = `Searches the web using DuckDuckGo.
Important search operators:
cats dogs	results about cats or dogs
"cats and dogs"	exact term (avoid unless necessary)
~"cats and dogs"	semantically similar terms
cats -dogs	reduce results about dogs
cats +dogs	increase results about dogs
cats filetype:pdf	search pdfs about cats (supports doc(x), xls(x), ppt(x), html)
dogs site:example.com	search dogs on example.com
cats -site:example.com	exclude example.com from results
intitle:dogs	title contains "dogs"
inurl:cats	URL contains "cats"

Usage: { "query": "rust async traits" }`

// Result is a single search hit
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type ddgSearch struct {
	endpoint   string
	maxResults int64
	client     *tool.Client
}

// New creates the DuckDuckGo search tool
func New() *ddgSearch {
	return &ddgSearch{}
}

func (x *ddgSearch) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "search-endpoint",
			Usage:       "DuckDuckGo HTML search endpoint",
			Value:       defaultEndpoint,
			Sources:     cli.EnvVars("AIGIS_SEARCH_ENDPOINT"),
			Destination: &x.endpoint,
		},
		&cli.IntFlag{
			Name:        "search-max-results",
			Usage:       "Maximum number of search results returned to the model",
			Value:       10,
			Sources:     cli.EnvVars("AIGIS_SEARCH_MAX_RESULTS"),
			Destination: &x.maxResults,
		},
	}
}

// Init enables the tool unless the endpoint is cleared
func (x *ddgSearch) Init(ctx context.Context, client *tool.Client) (bool, error) {
	x.client = client
	return x.endpoint != "", nil
}

func (x *ddgSearch) Prompt(ctx context.Context) string {
	return ""
}

func (x *ddgSearch) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "ddg_search",
				Description: description,
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"query": {
							Type:        genai.TypeString,
							Description: "The search query to send to DuckDuckGo",
						},
					},
					Required: []string{"query"},
				},
			},
		},
	}
}

func (x *ddgSearch) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	query, ok := fc.Args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, goerr.New("missing or invalid 'query' parameter")
	}

	results, err := x.search(ctx, query)
	if err != nil {
		return nil, err
	}

	items := make([]any, len(results))
	for i, r := range results {
		items[i] = map[string]any{"title": r.Title, "link": r.Link, "snippet": r.Snippet}
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"results": items},
	}, nil
}

func (x *ddgSearch) search(ctx context.Context, query string) ([]Result, error) {
	client := x.client
	if client == nil {
		client = tool.NewClient()
	}

	endpoint := x.endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("User-Agent", client.UserAgent)

	resp, err := client.HTTP.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "request error", goerr.V("query", query))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("search returned error", goerr.V("status", resp.StatusCode))
	}

	results, err := Parse(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}

	if x.maxResults > 0 && int64(len(results)) > x.maxResults {
		results = results[:x.maxResults]
	}
	return results, nil
}

// Parse extracts results from a DuckDuckGo HTML result page. Hits without
// a title or link are dropped.
func Parse(r io.Reader) ([]Result, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse HTML")
	}

	var results []Result
	walk(doc, func(n *html.Node) bool {
		if !hasClass(n, "web-result") && !hasClass(n, "results_links") {
			return true
		}

		var res Result
		walk(n, func(c *html.Node) bool {
			switch {
			case hasClass(c, "result__a"):
				res.Title = text(c)
			case hasClass(c, "result__url"):
				res.Link = text(c)
				if res.Link == "" {
					res.Link = attr(c, "href")
				}
			case hasClass(c, "result__snippet"):
				res.Snippet = text(c)
			default:
				return true
			}
			return false
		})
		res.Link = resolveLink(res.Link)

		if res.Title != "" && res.Link != "" {
			results = append(results, res)
		}
		return false
	})

	return results, nil
}

// walk visits nodes depth first. fn returns false to skip children.
func walk(n *html.Node, fn func(*html.Node) bool) {
	stack := []*html.Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(cur) {
			continue
		}
		// push in reverse to keep document order
		var children []*html.Node
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			children = append(children, c)
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		return true
	})
	return strings.Join(strings.Fields(sb.String()), " ")
}

func resolveLink(link string) string {
	if !strings.HasPrefix(link, ddgRedirect) {
		return link
	}
	decoded, err := url.QueryUnescape(strings.TrimPrefix(link, ddgRedirect))
	if err != nil {
		return link
	}
	if idx := strings.Index(decoded, "&"); idx > 0 {
		decoded = decoded[:idx]
	}
	return decoded
}
