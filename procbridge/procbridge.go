// Package procbridge launches the tool server as a child process and hands
// back a JSON-RPC connection over its stdio. The server's stderr is a
// diagnostic channel only: it is drained by a background task so it can never
// fill a pipe buffer and stall the server, and it is never parsed as protocol
// traffic.
package procbridge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"maestro/jsonrpc"
	"maestro/mcp"
)

type ServerDefinition struct {
	Command string
	Args    []string
	// Env lists host environment variable names forwarded to the server.
	Env []string
}

// Process owns the child and its diagnostic drain. Close is the only way the
// drain goroutine is abandoned: it is joined, not leaked.
type Process struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	cancel  context.CancelFunc
	ready   chan struct{}
	drained chan struct{}
}

// Setup starts the server process and begins draining its stderr. The caller
// should WaitReady before speaking protocol, then Close when done.
func Setup(ctx context.Context, def ServerDefinition, tp trace.TracerProvider) (*jsonrpc.Connection, *Process, error) {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	tracer := tp.Tracer("maestro/procbridge")
	ctx, span := tracer.Start(ctx, "procbridge.Setup")
	defer span.End()
	span.SetAttributes(attribute.String("server.command", def.Command))

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(ctx, def.Command, def.Args...)
	cmd.Env = append(os.Environ(), forwardedEnv(def.Env)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to open server stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to open server stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to open server stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to start tool server: %w", err)
	}
	span.AddEvent("tool server started", trace.WithAttributes(
		attribute.Int("server.pid", cmd.Process.Pid)))

	process := &Process{
		cmd:     cmd,
		stdin:   stdin,
		cancel:  cancel,
		ready:   make(chan struct{}),
		drained: make(chan struct{}),
	}
	go process.drainDiagnostics(ctx, stderr, tracer)

	return &jsonrpc.Connection{
		Conn:   stdin,
		Reader: bufio.NewReader(stdout),
	}, process, nil
}

// drainDiagnostics forwards the server's stderr lines onto span events until
// the stream closes (killing the process on ctx cancellation closes it too).
// The ready channel closes when the startup marker is observed.
func (p *Process) drainDiagnostics(ctx context.Context, stderr io.Reader, tracer trace.Tracer) {
	defer close(p.drained)

	_, span := tracer.Start(ctx, "procbridge.drainDiagnostics")
	defer span.End()

	signaled := false
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		span.AddEvent("server diagnostic", trace.WithAttributes(
			attribute.String("line", line)))
		if !signaled && strings.Contains(line, mcp.ServerReadyMarker) {
			signaled = true
			close(p.ready)
		}
	}
	if !signaled {
		close(p.ready)
	}
}

// WaitReady blocks until the server has printed its startup marker, the
// timeout lapses, or ctx is done. A timeout is not fatal; the server may
// simply be quiet.
func (p *Process) WaitReady(ctx context.Context, timeout time.Duration) error {
	select {
	case <-p.ready:
		return nil
	case <-time.After(timeout):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func forwardedEnv(variableNames []string) []string {
	out := make([]string, 0, len(variableNames))
	for _, name := range variableNames {
		if value := os.Getenv(name); value != "" {
			out = append(out, fmt.Sprintf("%s=%s", name, value))
		}
	}
	return out
}

// Close shuts the server down: stdin closes so the serve loop sees EOF, the
// process is waited on, and the diagnostic drain is joined.
func (p *Process) Close() error {
	_ = p.stdin.Close()
	err := p.cmd.Wait()
	<-p.drained
	p.cancel()
	return err
}
