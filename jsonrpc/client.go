package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	// ErrSessionClosed means the response stream reached EOF: the tool server
	// process is assumed dead and the session is unusable.
	ErrSessionClosed = errors.New("jsonrpc: session closed")

	// ErrCorrelationMismatch means a response line carried an id other than
	// the one outstanding request's. Under the sequential contract this
	// cannot happen unless the server misbehaves.
	ErrCorrelationMismatch = errors.New("jsonrpc: response id does not match request id")
)

// Client is the request/response correlator for one session. It is strictly
// half duplex: Call writes exactly one request and consumes exactly one
// response line before returning, so there is never more than one request
// outstanding and no reordering to defend against.
//
// Client is not safe for concurrent use; one pipeline turn owns it at a time.
type Client struct {
	transport *Transport
	nextID    int
	tracer    trace.Tracer
}

func NewClient(conn *Connection, tp trace.TracerProvider) *Client {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Client{
		transport: NewTransport(conn),
		tracer:    tp.Tracer("maestro/jsonrpc"),
	}
}

// Call sends a request and blocks for its response.
//
// Failures below the protocol are folded into data rather than raised: a
// response line that fails to parse comes back as a Message whose Result is
// the raw line, and a response carrying an error member comes back as that
// Message with a nil Go error. The returned error is non-nil only for a dead
// transport (ErrSessionClosed), a write failure, or a correlation mismatch.
func (c *Client) Call(ctx context.Context, method string, params any) (*Message, error) {
	_, span := c.tracer.Start(ctx, "jsonrpc.Call")
	defer span.End()

	c.nextID++
	id := strconv.Itoa(c.nextID)
	span.SetAttributes(
		attribute.String("rpc.method", method),
		attribute.String("rpc.id", id),
	)

	request := Message{JSONRPC: Version, ID: id, Method: method, Params: params}
	if err := c.transport.WriteMessage(request); err != nil {
		return nil, err
	}

	line, err := c.transport.ReadLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrSessionClosed, err)
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var response Message
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		// Degraded result: hand the raw line back rather than failing the
		// call. The pipeline tolerates malformed server output.
		span.AddEvent("unparsable response line, passing raw text through")
		return &Message{JSONRPC: Version, ID: id, Result: line}, nil
	}

	if response.ID != id {
		return nil, fmt.Errorf("%w: sent %q, received %q", ErrCorrelationMismatch, id, response.ID)
	}
	if response.Error != nil {
		span.AddEvent("response carries error", trace.WithAttributes(
			attribute.Int("rpc.error_code", response.Error.Code)))
	}
	return &response, nil
}

// Notify writes a notification and returns immediately; no response line is
// consumed.
func (c *Client) Notify(method string, params any) error {
	return c.transport.WriteMessage(Message{JSONRPC: Version, Method: method, Params: params})
}
