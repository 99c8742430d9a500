package main

import (
	"context"
	"fmt"
	"os"

	"maestro/logging"
	"maestro/mcp"
	"maestro/mcpserver"
	"maestro/tools"
)

// maestro-server speaks newline-delimited JSON-RPC on stdin/stdout and keeps
// stderr for diagnostics. The ready marker on stderr is what launchers wait
// for before starting the handshake.
func main() {
	tp, err := logging.InitTracer("maestro-server", os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "maestro-server: tracer init failed: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	defer tp.Shutdown(ctx)

	registry, err := mcpserver.NewRegistry(tools.Registry()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "maestro-server: %v\n", err)
		os.Exit(1)
	}

	server := mcpserver.New(registry, mcp.Implementation{
		Name:    "maestro-server",
		Version: "0.1.0",
	}, tp)

	fmt.Fprintln(os.Stderr, mcp.ServerReadyMarker)
	if err := server.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "maestro-server: %v\n", err)
		os.Exit(1)
	}
}
