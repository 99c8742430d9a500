package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"maestro/anthropicbridge"
	"maestro/dockerbridge"
	"maestro/jsonrpc"
	"maestro/logging"
	"maestro/mcp"
	"maestro/pipeline"
	"maestro/procbridge"
)

// Env var names forwarded to the tool server so its providers can reach
// their upstream APIs.
var serverEnv = []string{"SERPER_API_KEY", "WTTR_BASE_URL", "SERPER_BASE_URL"}

func main() {
	modelPtr := flag.String("m", "", "model to use (empty selects the default)")
	serverPtr := flag.String("server", "maestro-server", "path to the tool server binary")
	imagePtr := flag.String("image", "", "docker image serving tools (overrides -server)")
	flag.Parse()

	if err := run(*modelPtr, *serverPtr, *imagePtr, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "maestro: %v\n", err)
		os.Exit(1)
	}
}

func run(model, serverPath, image string, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := logging.InitTracer("maestro", os.Stderr)
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	defer tp.Shutdown(context.Background())

	llm, err := anthropicbridge.New(model, tp)
	if err != nil {
		return err
	}

	var conn *jsonrpc.Connection
	if image != "" {
		env := serverEnv
		var attachDone <-chan error
		conn, attachDone, err = dockerbridge.Setup(ctx, dockerbridge.ContainerDefinition{
			ImageName: &image,
			Env:       &env,
		}, tp)
		if err != nil {
			return fmt.Errorf("failed to launch tool server container: %w", err)
		}
		go func() {
			if terr := <-attachDone; terr != nil {
				fmt.Fprintf(os.Stderr, "maestro: tool server attachment closed: %v\n", terr)
			}
		}()
	} else {
		var process *procbridge.Process
		conn, process, err = procbridge.Setup(ctx, procbridge.ServerDefinition{
			Command: serverPath,
			Env:     serverEnv,
		}, tp)
		if err != nil {
			return fmt.Errorf("failed to launch tool server: %w", err)
		}
		defer process.Close()
		if err := process.WaitReady(ctx, 5*time.Second); err != nil {
			return err
		}
	}

	session := mcp.NewSession(conn, mcp.Implementation{
		Name:    "maestro",
		Version: "0.1.0",
	}, tp)
	if err := session.Initialize(ctx); err != nil {
		return err
	}
	fmt.Printf("connected to %s, %d tools available\n",
		session.ServerInfo().Name, len(session.Tools()))

	p := pipeline.New(llm, session, tp)

	if len(args) > 0 {
		return runTurn(ctx, p, strings.Join(args, " "))
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		msg := strings.TrimSpace(scanner.Text())
		if msg == "" {
			fmt.Print("> ")
			continue
		}
		if err := runTurn(ctx, p, msg); err != nil {
			return err
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}

func runTurn(ctx context.Context, p *pipeline.Pipeline, msg string) error {
	stop := startSpinner()
	state, err := p.Run(ctx, msg)
	stop()
	if err != nil {
		return err
	}
	fmt.Println(state.Result)
	return nil
}
