package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/tidwall/gjson"
)

type SearchInput struct {
	Query string `json:"query" jsonschema_description:"Search query to run against the web."`
}

const defaultSearchBaseURL = "https://google.serper.dev"
const searchResultLimit = 5

// SearchProvider runs web searches through the Serper API. The API key is
// read at call time so the server can start without one configured.
type SearchProvider struct {
	BaseURL string
	Client  *http.Client
	APIKey  func() string
}

func NewSearchProvider() *SearchProvider {
	base := os.Getenv("SERPER_BASE_URL")
	if base == "" {
		base = defaultSearchBaseURL
	}
	return &SearchProvider{
		BaseURL: base,
		Client:  &http.Client{Timeout: 10 * time.Second},
		APIKey:  func() string { return os.Getenv("SERPER_API_KEY") },
	}
}

func NewSearchTool(provider *SearchProvider) ToolDefinition {
	return ToolDefinition{
		Name:        "web_search",
		Description: "Search the web for information.",
		InputSchema: GenerateSchema[SearchInput](),
		Handler: func(ctx context.Context, input json.RawMessage) (map[string]any, error) {
			var in SearchInput
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, fmt.Errorf("invalid web_search input: %w", err)
			}
			return provider.Invoke(ctx, in), nil
		},
	}
}

// Invoke searches the web and returns the top organic results plus the
// knowledge-graph description when present. Failures come back as an
// {"error": ...} mapping.
func (p *SearchProvider) Invoke(ctx context.Context, in SearchInput) map[string]any {
	apiKey := p.APIKey()
	if apiKey == "" {
		return map[string]any{"error": "SERPER_API_KEY not configured"}
	}

	payload, err := json.Marshal(map[string]any{"q": in.Query, "num": searchResultLimit})
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("web search error: %v", err)}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("web search error: %v", err)}
	}
	request.Header.Set("X-API-KEY", apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := p.Client.Do(request)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("web search error: %v", err)}
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return map[string]any{"error": fmt.Sprintf("serper API error: %d", response.StatusCode)}
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("web search error: %v", err)}
	}

	results := make([]map[string]any, 0, searchResultLimit)
	gjson.GetBytes(body, "organic").ForEach(func(_, item gjson.Result) bool {
		results = append(results, map[string]any{
			"title":   item.Get("title").String(),
			"link":    item.Get("link").String(),
			"snippet": item.Get("snippet").String(),
		})
		return len(results) < searchResultLimit
	})

	out := map[string]any{
		"query":   in.Query,
		"results": results,
	}
	if knowledge := gjson.GetBytes(body, "knowledgeGraph.description"); knowledge.Exists() {
		out["knowledge_graph"] = knowledge.String()
	}
	return out
}
