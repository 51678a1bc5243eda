package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	userAgent       = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36"
	braveSearchURL  = "https://api.search.brave.com/res/v1/web/search"
	defaultFetchCap = 50000
)

// WebSearchTool searches the web via the Brave Search API.
type WebSearchTool struct {
	APIKey     string
	MaxResults int
	Endpoint   string // overridable for tests
}

func (t *WebSearchTool) Name() string { return "web_search" }
func (t *WebSearchTool) Description() string {
	return "Search the web. Returns titles, URLs, and snippets."
}
func (t *WebSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "Search query"},
			"count": map[string]any{"type": "integer", "minimum": 1, "maximum": 10, "description": "Number of results"},
		},
		"required": []string{"query"},
	}
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	apiKey := t.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("BRAVE_API_KEY")
	}
	if apiKey == "" {
		return "Error: BRAVE_API_KEY not configured", nil
	}

	query, _ := args["query"].(string)
	count := t.MaxResults
	if count == 0 {
		count = 5
	}
	if c, ok := args["count"].(float64); ok && c >= 1 && c <= 10 {
		count = int(c)
	}

	endpoint := t.Endpoint
	if endpoint == "" {
		endpoint = braveSearchURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	req.URL.RawQuery = url.Values{
		"q":     {query},
		"count": {strconv.Itoa(count)},
	}.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", apiKey)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	defer resp.Body.Close()

	var data braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "Error: " + err.Error(), nil
	}
	if len(data.Web.Results) == 0 {
		return "No results for: " + query, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Results for: %s\n", query)
	for i, item := range data.Web.Results {
		if i >= count {
			break
		}
		fmt.Fprintf(&b, "\n%d. %s\n   %s", i+1, item.Title, item.URL)
		if item.Description != "" {
			fmt.Fprintf(&b, "\n   %s", item.Description)
		}
	}
	return b.String(), nil
}

// WebFetchTool fetches a URL and extracts readable text. Results are
// returned as JSON so the model can see status and truncation alongside
// the content.
type WebFetchTool struct {
	MaxChars int
}

func (t *WebFetchTool) Name() string { return "web_fetch" }
func (t *WebFetchTool) Description() string {
	return "Fetch URL and extract readable content."
}
func (t *WebFetchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":       map[string]any{"type": "string", "description": "URL to fetch"},
			"max_chars": map[string]any{"type": "integer", "minimum": 100},
		},
		"required": []string{"url"},
	}
}

// fetchFailure reports a fetch problem to the model as structured JSON.
func fetchFailure(rawURL, msg string) string {
	out, _ := json.Marshal(map[string]string{"error": msg, "url": rawURL})
	return string(out)
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	rawURL, _ := args["url"].(string)
	if err := checkFetchURL(rawURL); err != nil {
		return fetchFailure(rawURL, "URL validation failed: "+err.Error()), nil
	}

	maxChars := t.MaxChars
	if maxChars == 0 {
		maxChars = defaultFetchCap
	}
	if mc, ok := args["max_chars"].(float64); ok && mc >= 100 {
		maxChars = int(mc)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fetchFailure(rawURL, err.Error()), nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fetchFailure(rawURL, err.Error()), nil
	}
	defer resp.Body.Close()

	// Read twice the cap so tag stripping has headroom before truncation.
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxChars*2)))
	if err != nil {
		return fetchFailure(rawURL, err.Error()), nil
	}

	text := htmlToText(string(body))
	truncated := len(text) > maxChars
	if truncated {
		text = text[:maxChars]
	}

	out, _ := json.Marshal(map[string]any{
		"url":       rawURL,
		"final_url": resp.Request.URL.String(),
		"status":    resp.StatusCode,
		"truncated": truncated,
		"length":    len(text),
		"text":      text,
	})
	return string(out), nil
}

func checkFetchURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("only http/https allowed, got '%s'", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing domain")
	}
	return nil
}

var (
	reScript = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	reStyle  = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	reTag    = regexp.MustCompile(`<[^>]+>`)
	reSpaces = regexp.MustCompile(`[ \t]+`)
	reNL     = regexp.MustCompile(`\n{3,}`)
)

// htmlToText drops scripts, styles, and markup, then collapses whitespace.
func htmlToText(raw string) string {
	for _, re := range []*regexp.Regexp{reScript, reStyle, reTag} {
		raw = re.ReplaceAllString(raw, "")
	}
	raw = reSpaces.ReplaceAllString(raw, " ")
	raw = reNL.ReplaceAllString(raw, "\n\n")
	return strings.TrimSpace(raw)
}
