package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cloudwego/eino/schema"
)

const (
	// WebSearchDisabledMessage is returned whenever the web search tool is
	// invoked while the feature flag is off.
	WebSearchDisabledMessage = "Web search is disabled. Set WEBSEARCH_ENABLED=true to enable it."

	noWebResultsMessage = "No web results found."
)

// WebSearchConfig controls the DuckDuckGo HTML search tool.
type WebSearchConfig struct {
	Enabled    bool          `envconfig:"WEBSEARCH_ENABLED" default:"false"`
	MaxResults int           `envconfig:"WEBSEARCH_MAX_RESULTS" default:"5"`
	Endpoint   string        `envconfig:"WEBSEARCH_ENDPOINT" default:"https://html.duckduckgo.com/html/"`
	Timeout    time.Duration `envconfig:"WEBSEARCH_TIMEOUT" default:"10s"`
}

type webSearchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type webResult struct {
	Title   string
	Link    string
	Snippet string
}

func newWebSearchTool(cfg WebSearchConfig) *textTool {
	info := &schema.ToolInfo{
		Name: ToolWebSearch,
		Desc: "Search the web for current information and return the top results " +
			"with titles, links and snippets.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "The web search query",
				Required: true,
			},
			"max_results": {
				Type: schema.Integer,
				Desc: "How many results to return",
			},
		}),
	}

	client := &http.Client{Timeout: cfg.Timeout}

	return &textTool{
		info: info,
		run: func(ctx context.Context, argumentsInJSON string) (string, error) {
			if !cfg.Enabled {
				return WebSearchDisabledMessage, nil
			}

			var args webSearchArgs
			if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
				return "", fmt.Errorf("parse arguments: %w", err)
			}
			if strings.TrimSpace(args.Query) == "" {
				return noWebResultsMessage, nil
			}

			limit := args.MaxResults
			if limit <= 0 || limit > cfg.MaxResults {
				limit = cfg.MaxResults
			}

			results, err := searchDuckDuckGo(ctx, client, cfg.Endpoint, args.Query, limit)
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return noWebResultsMessage, nil
			}

			var b strings.Builder
			for i, r := range results {
				if i > 0 {
					b.WriteString("\n\n")
				}
				fmt.Fprintf(&b, "[%d] %s\n%s\n%s", i+1, r.Title, r.Link, r.Snippet)
			}
			return b.String(), nil
		},
	}
}

func searchDuckDuckGo(ctx context.Context, client *http.Client, endpoint, query string, limit int) ([]webResult, error) {
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; pdfchat/1.0)")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}

	var results []webResult
	doc.Find("div.result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		anchor := s.Find("a.result__a").First()
		title := strings.TrimSpace(anchor.Text())
		href, _ := anchor.Attr("href")
		if title == "" || href == "" {
			return true
		}
		results = append(results, webResult{
			Title:   title,
			Link:    resolveRedirect(href),
			Snippet: strings.TrimSpace(s.Find(".result__snippet").First().Text()),
		})
		return len(results) < limit
	})
	return results, nil
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg=... redirect links so the
// model sees the destination URL directly.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" {
		return "https://duckduckgo.com" + href
	}
	return href
}
