package pipeline_test

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maestro/jsonrpc"
	"maestro/mcp"
	"maestro/mcpserver"
	"maestro/pipeline"
	"maestro/tools"
)

type scriptedLLM struct {
	routeReply  string
	answerReply string
}

func (s scriptedLLM) Complete(_ context.Context, req pipeline.Request) (string, error) {
	if req.JSONOnly {
		return s.routeReply, nil
	}
	return s.answerReply, nil
}

// Exercises a whole turn through the real session, wire framing, and server
// dispatch, with only the model and the weather upstream stubbed out.
func TestTurnAgainstServedRegistry(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"current_condition": [{
				"temp_C": "20", "temp_F": "68",
				"weatherDesc": [{"value": "Sunny"}],
				"humidity": "40", "windspeedKmph": "12", "FeelsLikeC": "19"
			}],
			"nearest_area": [{
				"areaName": [{"value": "Paris"}],
				"country": [{"value": "France"}]
			}]
		}`))
	}))
	t.Cleanup(upstream.Close)

	weather := tools.NewWeatherTool(&tools.WeatherProvider{BaseURL: upstream.URL, Client: upstream.Client()})
	registry, err := mcpserver.NewRegistry(weather)
	require.NoError(t, err)
	server := mcpserver.New(registry, mcp.Implementation{Name: "test-server", Version: "0.0.1"}, nil)

	serverIn, clientOut := io.Pipe()
	clientIn, serverOut := io.Pipe()
	go server.Serve(context.Background(), serverIn, serverOut)
	t.Cleanup(func() { clientOut.Close() })

	session := mcp.NewSession(
		&jsonrpc.Connection{Conn: clientOut, Reader: bufio.NewReader(clientIn)},
		mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	require.NoError(t, session.Initialize(context.Background()))

	llm := scriptedLLM{
		routeReply:  `{"tool":"get_weather","parameters":{"city":"Paris"},"reasoning":"weather question"}`,
		answerReply: "It's 20°C and sunny in Paris.",
	}
	state, err := pipeline.New(llm, session, nil).Run(context.Background(), "What's the weather in Paris?")
	require.NoError(t, err)

	assert.Equal(t, "It's 20°C and sunny in Paris.", state.Result)
	payload, ok := state.ToolResult.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Paris, France", payload["location"])
	assert.Equal(t, "20°C / 68°F", payload["temperature"])
}
