package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultsPage = `<html><body>
<div class="result">
  <a class="result__a" href="/l/?uddg=https%3A%2F%2Fexample.com%2Fgo">Go Programming Language</a>
  <div class="result__snippet">Go is an open source programming language.</div>
</div>
<div class="result">
  <a class="result__a" href="https://go.dev/blog">The Go Blog</a>
  <div class="result__snippet">News from the Go project.</div>
</div>
<div class="result">
  <a class="result__a" href="https://example.org/third">Third Result</a>
  <div class="result__snippet">Filler.</div>
</div>
</body></html>`

func enabledSearchSet(endpoint string) *Set {
	return New(Deps{
		Retriever: &fakeRetriever{},
		Docs:      &fakeLister{},
		Web: WebSearchConfig{
			Enabled:    true,
			MaxResults: 2,
			Endpoint:   endpoint,
			Timeout:    5 * time.Second,
		},
	})
}

func TestWebSearchParsesResults(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotQuery = r.FormValue("q")
		_, _ = w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	s := enabledSearchSet(srv.URL)
	out := s.Invoke(context.Background(), ToolWebSearch, `{"query": "golang"}`, nil)

	assert.Equal(t, "golang", gotQuery)
	assert.Contains(t, out, "[1] Go Programming Language")
	assert.Contains(t, out, "https://example.com/go")
	assert.Contains(t, out, "Go is an open source programming language.")
	assert.Contains(t, out, "[2] The Go Blog")
	// MaxResults caps the output
	assert.NotContains(t, out, "Third Result")
}

func TestWebSearchNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body></body></html>"))
	}))
	defer srv.Close()

	s := enabledSearchSet(srv.URL)
	out := s.Invoke(context.Background(), ToolWebSearch, `{"query": "nothing"}`, nil)
	assert.Equal(t, noWebResultsMessage, out)
}

func TestWebSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := enabledSearchSet(srv.URL)
	out := s.Invoke(context.Background(), ToolWebSearch, `{"query": "x"}`, nil)
	assert.Contains(t, out, "tool error:")
}

func TestWebSearchBlankQuery(t *testing.T) {
	s := enabledSearchSet("http://unused.invalid")
	out := s.Invoke(context.Background(), ToolWebSearch, `{"query": "  "}`, nil)
	assert.Equal(t, noWebResultsMessage, out)
}

func TestResolveRedirect(t *testing.T) {
	assert.Equal(t, "https://example.com/page", resolveRedirect("/l/?uddg=https%3A%2F%2Fexample.com%2Fpage"))
	assert.Equal(t, "https://go.dev", resolveRedirect("https://go.dev"))
	assert.Equal(t, "https://duckduckgo.com/l/x", resolveRedirect("/l/x"))
}
