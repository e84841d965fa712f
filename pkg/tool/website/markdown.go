package website

import (
	"io"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/net/html"
)

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	multiSpace   = regexp.MustCompile(`[ \t]{2,}`)
)

// ToMarkdown converts an HTML document into simplified markdown. Scripts,
// styles and page chrome are dropped.
func ToMarkdown(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", goerr.Wrap(err, "failed to parse HTML")
	}

	var sb strings.Builder
	w := &mdWriter{sb: &sb}
	w.node(doc)

	out := multiSpace.ReplaceAllString(sb.String(), " ")
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	out = multiNewline.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out), nil
}

type mdWriter struct {
	sb  *strings.Builder
	pre int
}

func (w *mdWriter) node(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if w.pre > 0 {
			w.sb.WriteString(n.Data)
			return
		}
		if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
			w.sb.WriteString(text)
			w.sb.WriteString(" ")
		}
		return

	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer", "header", "head":
			if n.Data == "head" {
				w.title(n)
			}
			return
		case "h1", "h2", "h3", "h4", "h5", "h6":
			w.sb.WriteString("\n\n" + strings.Repeat("#", int(n.Data[1]-'0')) + " ")
			w.children(n)
			w.sb.WriteString("\n\n")
			return
		case "p", "div", "section", "article", "table", "blockquote":
			w.sb.WriteString("\n\n")
			w.children(n)
			w.sb.WriteString("\n\n")
			return
		case "br", "tr":
			w.children(n)
			w.sb.WriteString("\n")
			return
		case "li":
			w.sb.WriteString("\n- ")
			w.children(n)
			return
		case "pre":
			w.pre++
			w.sb.WriteString("\n\n```\n")
			w.children(n)
			w.sb.WriteString("\n```\n\n")
			w.pre--
			return
		case "code":
			if w.pre > 0 {
				w.children(n)
				return
			}
			w.wrap(n, "`")
			return
		case "strong", "b":
			w.wrap(n, "**")
			return
		case "em", "i":
			w.wrap(n, "*")
			return
		case "a":
			href := attr(n, "href")
			if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
				w.children(n)
				return
			}
			w.sb.WriteString("[")
			w.inline(n)
			w.sb.WriteString("](" + href + ") ")
			return
		case "img":
			if alt := attr(n, "alt"); alt != "" {
				w.sb.WriteString("![" + alt + "] ")
			}
			return
		}
	}

	w.children(n)
}

func (w *mdWriter) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.node(c)
	}
}

// inline writes the children of n without the trailing separator space
func (w *mdWriter) inline(n *html.Node) {
	var inner strings.Builder
	sub := &mdWriter{sb: &inner, pre: w.pre}
	sub.children(n)
	w.sb.WriteString(strings.TrimSpace(inner.String()))
}

func (w *mdWriter) wrap(n *html.Node, mark string) {
	w.sb.WriteString(mark)
	w.inline(n)
	w.sb.WriteString(mark + " ")
}

func (w *mdWriter) title(head *html.Node) {
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "title" {
			var inner strings.Builder
			(&mdWriter{sb: &inner}).children(c)
			if t := strings.TrimSpace(inner.String()); t != "" {
				w.sb.WriteString("# " + t + "\n\n")
			}
		}
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
