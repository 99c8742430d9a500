package jsonrpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(script string, out *bytes.Buffer) *Transport {
	return NewTransport(&Connection{
		Conn:   out,
		Reader: bufio.NewReader(strings.NewReader(script)),
	})
}

func TestMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name             string
		message          Message
		wantRequest      bool
		wantNotification bool
		wantResponse     bool
	}{
		{"request", Message{JSONRPC: Version, ID: "7", Method: "tools/call", Params: map[string]any{"name": "get_weather"}}, true, false, false},
		{"response", Message{JSONRPC: Version, ID: "7", Result: map[string]any{"ok": true}}, false, false, true},
		{"error response", Message{JSONRPC: Version, ID: "7", Error: &Error{Code: CodeToolNotFound, Message: "tool not found: nope"}}, false, false, true},
		{"notification", Message{JSONRPC: Version, Method: "initialized"}, false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.message)
			require.NoError(t, err)

			var parsed Message
			require.NoError(t, json.Unmarshal(raw, &parsed))
			assert.Equal(t, tt.message.ID, parsed.ID)
			assert.Equal(t, tt.message.Method, parsed.Method)
			assert.Equal(t, tt.wantRequest, parsed.IsRequest())
			assert.Equal(t, tt.wantNotification, parsed.IsNotification())
			assert.Equal(t, tt.wantResponse, parsed.IsResponse())
			if tt.message.Error != nil {
				require.NotNil(t, parsed.Error)
				assert.Equal(t, tt.message.Error.Code, parsed.Error.Code)
			}
		})
	}
}

func TestNotificationOmitsID(t *testing.T) {
	raw, err := json.Marshal(Message{JSONRPC: Version, Method: "initialized"})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.NotContains(t, fields, "id")
	assert.NotContains(t, fields, "result")
	assert.NotContains(t, fields, "error")
}

func TestWriteMessageFramesOneLine(t *testing.T) {
	var out bytes.Buffer
	transport := newTestTransport("", &out)

	require.NoError(t, transport.WriteMessage(Message{JSONRPC: Version, ID: "1", Method: "ping"}))

	written := out.String()
	assert.True(t, strings.HasSuffix(written, "\n"))
	assert.Equal(t, 1, strings.Count(written, "\n"))
}

func TestReadLineSkipsBlankLines(t *testing.T) {
	transport := newTestTransport("\n\n{\"jsonrpc\":\"2.0\"}\n", &bytes.Buffer{})

	line, err := transport.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0"}`, line)
}

func TestReadLineStripsLeadingNoise(t *testing.T) {
	transport := newTestTransport("\x1b[0mbanner{\"jsonrpc\":\"2.0\"}\n", &bytes.Buffer{})

	line, err := transport.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0"}`, line)
}

func TestReadLineSignalsEndOfStream(t *testing.T) {
	transport := newTestTransport("", &bytes.Buffer{})

	_, err := transport.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}
