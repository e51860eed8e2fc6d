package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfchat-core/server/internal/agent/model"
)

type fakeSearcher struct {
	results   []SearchResult
	err       error
	hasDocs   bool
	lastQuery string
	lastK     int
	lastWhere map[string]string
}

func (f *fakeSearcher) Search(ctx context.Context, query string, k int, where map[string]string) ([]SearchResult, error) {
	f.lastQuery = query
	f.lastK = k
	f.lastWhere = where
	return f.results, f.err
}

func (f *fakeSearcher) HasDocuments() bool { return f.hasDocs }

func TestRetrieveUnscoped(t *testing.T) {
	idx := &fakeSearcher{results: []SearchResult{
		{Text: "first", Source: "a.pdf"},
		{Text: "second", Source: "b.pdf"},
	}}
	g := NewGateway(idx, 4)

	got, err := g.Retrieve(context.Background(), Query{Text: "q"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, idx.lastWhere)
	assert.Equal(t, 4, idx.lastK)
	assert.Equal(t, model.RetrievedPassage{Source: "a.pdf", Rank: 1, Text: "first"}, got[0])
	assert.Equal(t, 2, got[1].Rank)
}

func TestRetrieveDocIDScopeUsesWhereFilter(t *testing.T) {
	idx := &fakeSearcher{results: []SearchResult{{Text: "x", Source: "a.pdf", DocID: "d1"}}}
	g := NewGateway(idx, 4)

	_, err := g.Retrieve(context.Background(), Query{
		Text:  "q",
		Scope: Scope{DocID: "d1", Source: "a.pdf", Exact: true},
	})
	require.NoError(t, err)
	// doc id wins over the source filter
	assert.Equal(t, map[string]string{"doc_id": "d1"}, idx.lastWhere)
}

func TestRetrieveExactSourceScope(t *testing.T) {
	idx := &fakeSearcher{}
	g := NewGateway(idx, 4)

	_, err := g.Retrieve(context.Background(), Query{
		Text:  "q",
		Scope: Scope{Source: "a.pdf", Exact: true},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"source": "a.pdf"}, idx.lastWhere)
}

func TestRetrieveSubstringScopeOverfetchesAndFilters(t *testing.T) {
	idx := &fakeSearcher{results: []SearchResult{
		{Text: "keep 1", Source: "Annual-Report.pdf"},
		{Text: "drop", Source: "notes.txt"},
		{Text: "keep 2", Source: "report-2024.pdf"},
	}}
	g := NewGateway(idx, 4)

	got, err := g.Retrieve(context.Background(), Query{
		Text:  "q",
		K:     2,
		Scope: Scope{Source: "report"},
	})
	require.NoError(t, err)
	assert.Nil(t, idx.lastWhere)
	assert.Equal(t, 2*partialFetchFactor, idx.lastK)
	require.Len(t, got, 2)
	assert.Equal(t, "keep 1", got[0].Text)
	assert.Equal(t, "keep 2", got[1].Text)
	assert.Equal(t, []int{1, 2}, []int{got[0].Rank, got[1].Rank})
}

func TestRetrieveTruncatesLongPassages(t *testing.T) {
	idx := &fakeSearcher{results: []SearchResult{
		{Text: strings.Repeat("a", maxExcerptChars+100), Source: "a.pdf"},
	}}
	g := NewGateway(idx, 4)

	got, err := g.Retrieve(context.Background(), Query{Text: "q"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Text, maxExcerptChars)
}

func TestRetrieveEmptyIsNotAnError(t *testing.T) {
	g := NewGateway(&fakeSearcher{}, 4)
	got, err := g.Retrieve(context.Background(), Query{Text: "q"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFormatPassages(t *testing.T) {
	out := FormatPassages([]model.RetrievedPassage{
		{Source: "a.pdf", Rank: 1, Text: "first passage"},
		{Source: "", Rank: 2, Text: "anonymous passage"},
	})
	assert.Equal(t, "[1] (a.pdf)\nfirst passage\n\n[2] (source)\nanonymous passage", out)
}
