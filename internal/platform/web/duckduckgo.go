package web

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
)

const duckService = "duckduckgo"

// DuckDuckGo scrapes the HTML-only results page.
type DuckDuckGo struct {
	c       *Client
	baseURL string
}

func NewDuckDuckGo(c *Client) *DuckDuckGo {
	return &DuckDuckGo{c: c, baseURL: "https://html.duckduckgo.com/html/"}
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, max int) ([]adapters.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, adapters.Errorf(duckService, adapters.InvalidResponse, "empty query")
	}
	body, _, err := d.c.get(ctx, duckService, d.baseURL+"?q="+url.QueryEscape(query))
	if err != nil {
		return nil, err
	}
	return parseDuckResults(body, max)
}

func parseDuckResults(body []byte, max int) ([]adapters.SearchResult, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, adapters.Wrap(duckService, adapters.InvalidResponse, err)
	}
	out := []adapters.SearchResult{}
	for _, n := range findAll(doc, "result") {
		if max > 0 && len(out) >= max {
			break
		}
		link := findFirst(n, "result__a")
		if link == nil {
			continue
		}
		title := textOf(link)
		href := resolveDuckLink(attr(link, "href"))
		if title == "" || href == "" {
			continue
		}
		out = append(out, adapters.SearchResult{
			Title:   title,
			URL:     href,
			Snippet: textOf(findFirst(n, "result__snippet")),
		})
	}
	return out, nil
}

// resolveDuckLink unwraps //duckduckgo.com/l/?uddg=<target> redirects.
func resolveDuckLink(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return href
}
