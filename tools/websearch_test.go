package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSearchStub(t *testing.T, handler http.HandlerFunc) *SearchProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &SearchProvider{
		BaseURL: server.URL,
		Client:  server.Client(),
		APIKey:  func() string { return "test-key" },
	}
}

func serperFixture(organicCount int) string {
	results := make([]map[string]any, 0, organicCount)
	for i := 0; i < organicCount; i++ {
		results = append(results, map[string]any{
			"title":   fmt.Sprintf("Result %d", i+1),
			"link":    fmt.Sprintf("https://example.com/%d", i+1),
			"snippet": "something relevant",
		})
	}
	raw, _ := json.Marshal(map[string]any{
		"organic":        results,
		"knowledgeGraph": map[string]any{"description": "A protocol for tool servers."},
	})
	return string(raw)
}

func TestSearchSchema(t *testing.T) {
	schema := GenerateSchema[SearchInput]()
	assert.Contains(t, schema.Required, "query")
	require.Contains(t, schema.Properties, "query")
	assert.Equal(t, "string", schema.Properties["query"]["type"])
}

func TestSearchInvoke(t *testing.T) {
	provider := newSearchStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "model context protocol", body["q"])
		assert.Equal(t, float64(searchResultLimit), body["num"])

		w.Write([]byte(serperFixture(3)))
	})

	result := provider.Invoke(context.Background(), SearchInput{Query: "model context protocol"})
	assert.Equal(t, "model context protocol", result["query"])
	assert.Equal(t, "A protocol for tool servers.", result["knowledge_graph"])

	results := result["results"].([]map[string]any)
	require.Len(t, results, 3)
	assert.Equal(t, "Result 1", results[0]["title"])
}

func TestSearchCapsResultCount(t *testing.T) {
	provider := newSearchStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(serperFixture(9)))
	})

	result := provider.Invoke(context.Background(), SearchInput{Query: "anything"})
	results := result["results"].([]map[string]any)
	assert.Len(t, results, searchResultLimit)
}

func TestSearchMissingAPIKey(t *testing.T) {
	provider := newSearchStub(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected without an API key")
	})
	provider.APIKey = func() string { return "" }

	result := provider.Invoke(context.Background(), SearchInput{Query: "anything"})
	assert.Equal(t, "SERPER_API_KEY not configured", result["error"])
}

func TestSearchUpstreamFailureIsDomainError(t *testing.T) {
	provider := newSearchStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	result := provider.Invoke(context.Background(), SearchInput{Query: "anything"})
	assert.Contains(t, result["error"], "serper API error")
}
