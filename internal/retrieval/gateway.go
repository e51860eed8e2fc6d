package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdfchat-core/server/internal/agent/model"
)

const (
	// NoDocumentsMessage is returned when nothing has been indexed yet.
	NoDocumentsMessage = "No documents have been indexed yet. Upload a document first."
	// NoScopeMatchMessage is returned when a document-bound search finds
	// nothing in the current document. It doubles as the final answer for
	// a scoped turn whose retrieval came up empty.
	NoScopeMatchMessage = "No matching passages found in the current document."
	// NoMatchesMessage is returned when an unscoped search finds nothing.
	NoMatchesMessage = "No matching passages found."

	// maxExcerptChars bounds each formatted excerpt.
	maxExcerptChars = 1800

	// partialFetchFactor over-fetches before substring filtering.
	partialFetchFactor = 4
)

// Scope constrains retrieval to a single document, by id and/or source
// filename. Exact requires a full filename match; otherwise Source is
// treated as a substring filter.
type Scope struct {
	DocID  string
	Source string
	Exact  bool
}

// Query is one retrieval request against the gateway. A zero-value
// Scope means the search is unrestricted.
type Query struct {
	Text  string
	K     int
	Scope Scope
}

// Searcher is the index surface the gateway depends on.
type Searcher interface {
	Search(ctx context.Context, query string, k int, where map[string]string) ([]SearchResult, error)
	HasDocuments() bool
}

// Gateway exposes scoped semantic retrieval over the vector index.
type Gateway struct {
	index Searcher
	topK  int
}

func NewGateway(index Searcher, topK int) *Gateway {
	if topK <= 0 {
		topK = 4
	}
	return &Gateway{index: index, topK: topK}
}

// HasDocuments reports whether anything is indexed at all.
func (g *Gateway) HasDocuments() bool {
	return g.index.HasDocuments()
}

// Retrieve runs a nearest-neighbour search and applies the scope filter.
// An empty result is an empty slice, never an error.
func (g *Gateway) Retrieve(ctx context.Context, q Query) ([]model.RetrievedPassage, error) {
	k := q.K
	if k <= 0 {
		k = g.topK
	}

	fetch := k
	var where map[string]string
	switch s := q.Scope; {
	case s.DocID != "":
		where = map[string]string{"doc_id": s.DocID}
	case s.Source != "" && s.Exact:
		where = map[string]string{"source": s.Source}
	case s.Source != "":
		// substring filtering happens after an over-fetch
		fetch = k * partialFetchFactor
	}

	results, err := g.index.Search(ctx, q.Text, fetch, where)
	if err != nil {
		return nil, err
	}

	passages := make([]model.RetrievedPassage, 0, k)
	for _, r := range results {
		if s := q.Scope; where == nil && s.Source != "" {
			if !strings.Contains(strings.ToLower(r.Source), strings.ToLower(s.Source)) {
				continue
			}
		}
		passages = append(passages, model.RetrievedPassage{
			Source: r.Source,
			Rank:   len(passages) + 1,
			Text:   truncate(r.Text, maxExcerptChars),
		})
		if len(passages) == k {
			break
		}
	}
	return passages, nil
}

// FormatPassages renders passages as numbered, source-labelled excerpts.
func FormatPassages(passages []model.RetrievedPassage) string {
	parts := make([]string, 0, len(passages))
	for _, p := range passages {
		src := p.Source
		if src == "" {
			src = "source"
		}
		parts = append(parts, fmt.Sprintf("[%d] (%s)\n%s", p.Rank, src, p.Text))
	}
	return strings.Join(parts, "\n\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
