package jsonrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Connection is a pair of byte streams into and out of the tool server.
// Conn is the server's stdin and Reader its stdout; diagnostics travel on a
// separate channel owned by the launcher and never reach the Reader.
type Connection struct {
	Conn   io.Writer
	Reader *bufio.Reader
}

// Transport frames one JSON value per line over a Connection.
type Transport struct {
	conn   io.Writer
	reader *bufio.Reader
}

func NewTransport(conn *Connection) *Transport {
	return &Transport{conn: conn.Conn, reader: conn.Reader}
}

// WriteMessage serializes message to a single line and hands the bytes to the
// underlying writer before returning. The remote end blocks on a line read,
// so there is no buffering layer here.
func (t *Transport) WriteMessage(message Message) error {
	messageJSON, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	messageJSON = append(messageJSON, '\n')

	if _, err := t.conn.Write(messageJSON); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// ReadLine blocks until one full non-empty line is available, and returns
// io.EOF when the stream closes. A trailing partial line at EOF is discarded:
// the peer never emits a message without its newline unless it is dying.
func (t *Transport) ReadLine() (string, error) {
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) == 0 {
			continue
		}
		return cleanLine(line), nil
	}
}

// Some servers prepend stray bytes to their first stdout line; everything
// before the opening brace is noise.
func cleanLine(line string) string {
	if idx := strings.Index(line, "{"); idx != -1 {
		return line[idx:]
	}
	return line
}
