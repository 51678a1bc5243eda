package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSearch_FormatsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "golang concurrency", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"web":{"results":[
			{"title":"Go Blog","url":"https://go.dev/blog","description":"Official blog"},
			{"title":"Effective Go","url":"https://go.dev/doc/effective_go","description":""}
		]}}`))
	}))
	defer srv.Close()

	tool := &WebSearchTool{APIKey: "secret", Endpoint: srv.URL}
	out, err := tool.Execute(context.Background(), map[string]any{"query": "golang concurrency"})
	require.NoError(t, err)
	assert.Contains(t, out, "Results for: golang concurrency")
	assert.Contains(t, out, "1. Go Blog")
	assert.Contains(t, out, "https://go.dev/blog")
	assert.Contains(t, out, "Official blog")
	assert.Contains(t, out, "2. Effective Go")
}

func TestWebSearch_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"web":{"results":[]}}`))
	}))
	defer srv.Close()

	tool := &WebSearchTool{APIKey: "k", Endpoint: srv.URL}
	out, err := tool.Execute(context.Background(), map[string]any{"query": "nothing here"})
	require.NoError(t, err)
	assert.Equal(t, "No results for: nothing here", out)
}

func TestWebSearch_MissingAPIKey(t *testing.T) {
	t.Setenv("BRAVE_API_KEY", "")
	tool := &WebSearchTool{}
	out, err := tool.Execute(context.Background(), map[string]any{"query": "x"})
	require.NoError(t, err)
	assert.Contains(t, out, "BRAVE_API_KEY not configured")
}

func TestWebFetch_ExtractsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><style>p{color:red}</style><script>alert(1)</script></head>` +
			`<body><h1>Release Notes</h1><p>Version   2.1 is out.</p></body></html>`))
	}))
	defer srv.Close()

	tool := &WebFetchTool{}
	out, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)

	var result struct {
		Status    int    `json:"status"`
		Truncated bool   `json:"truncated"`
		Text      string `json:"text"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, http.StatusOK, result.Status)
	assert.False(t, result.Truncated)
	assert.Contains(t, result.Text, "Release Notes")
	assert.Contains(t, result.Text, "Version 2.1 is out.")
	assert.NotContains(t, result.Text, "alert")
	assert.NotContains(t, result.Text, "color:red")
}

func TestWebFetch_RejectsNonHTTP(t *testing.T) {
	tool := &WebFetchTool{}
	out, err := tool.Execute(context.Background(), map[string]any{"url": "ftp://example.com/file"})
	require.NoError(t, err)
	assert.Contains(t, out, "URL validation failed")
	assert.Contains(t, out, "only http/https")
}

func TestWebFetch_TruncatesLongBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 200; i++ {
			w.Write([]byte("All work and no play makes a dull agent. "))
		}
	}))
	defer srv.Close()

	tool := &WebFetchTool{MaxChars: 500}
	out, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)

	var result struct {
		Truncated bool `json:"truncated"`
		Length    int  `json:"length"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Truncated)
	assert.Equal(t, 500, result.Length)
}

func TestHTMLToText(t *testing.T) {
	got := htmlToText("<div>a</div>\n\n\n\n<span>b\t\tc</span>")
	assert.Equal(t, "a\n\nb c", got)
}
