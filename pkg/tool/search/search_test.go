package search_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/m-mizutani/aigis/pkg/tool"
	"github.com/m-mizutani/aigis/pkg/tool/search"
	"github.com/m-mizutani/gt"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

const resultPage = `<html><body>
<div class="results">
  <div class="result results_links results_links_deep web-result">
    <h2 class="result__title"><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F&rut=abc">The Go <b>Programming</b> Language</a></h2>
    <a class="result__url" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F&rut=abc"> go.dev </a>
    <a class="result__snippet" href="#">Go is an open source programming language.</a>
  </div>
  <div class="result results_links web-result">
    <a class="result__snippet" href="#">no title here</a>
  </div>
  <div class="result results_links web-result">
    <h2 class="result__title"><a class="result__a" href="https://pkg.go.dev">Go Packages</a></h2>
    <a class="result__url" href="https://pkg.go.dev">pkg.go.dev</a>
  </div>
</div>
</body></html>`

func TestParse(t *testing.T) {
	results, err := search.Parse(strings.NewReader(resultPage))
	gt.NoError(t, err)
	gt.A(t, results).Length(2)
	gt.Equal(t, results[0], search.Result{
		Title:   "The Go Programming Language",
		Link:    "go.dev",
		Snippet: "Go is an open source programming language.",
	})
	gt.Equal(t, results[1].Title, "Go Packages")
	gt.Equal(t, results[1].Snippet, "")
}

func TestExecute(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(resultPage))
	}))
	defer srv.Close()

	ddg := search.New()
	cmd := &cli.Command{
		Flags: ddg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			return nil
		},
	}
	gt.NoError(t, cmd.Run(context.Background(), []string{"test", "--search-endpoint", srv.URL, "--search-max-results", "1"}))

	ctx := context.Background()
	enabled, err := ddg.Init(ctx, tool.NewClient())
	gt.NoError(t, err)
	gt.True(t, enabled)

	resp, err := ddg.Execute(ctx, genai.FunctionCall{Name: "ddg_search", Args: map[string]any{"query": "golang generics"}})
	gt.NoError(t, err)
	gt.Equal(t, gotQuery, "golang generics")

	items := resp.Response["results"].([]any)
	gt.A(t, items).Length(1)

	_, err = ddg.Execute(ctx, genai.FunctionCall{Name: "ddg_search", Args: map[string]any{}})
	gt.Error(t, err)
}
