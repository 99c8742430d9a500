// Package dockerbridge launches the tool server inside a container and hands
// back a JSON-RPC connection over the container's attached stdio. It is the
// containerized alternative to procbridge for server images published ahead
// of time.
package dockerbridge

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"maestro/jsonrpc"
)

type ContainerDefinition struct {
	// ImageName is used if a container must be created.
	ImageName *string `json:"image_name"`
	// ContainerName selects an existing container; when absent and ImageName
	// is set, a new container is created with a derived name.
	ContainerName *string `json:"container_name"`
	// Env lists host environment variable names forwarded into the container.
	Env *[]string `json:"env"`
}

type launcher struct {
	ContainerDefinition
	tracer trace.Tracer
}

// Setup finds or creates the tool-server container, attaches to its stdio,
// and returns the connection plus a channel that reports when the attachment
// is torn down.
func Setup(ctx context.Context, def ContainerDefinition, tp trace.TracerProvider) (*jsonrpc.Connection, <-chan error, error) {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	tracer := tp.Tracer("maestro/dockerbridge")
	ctx, span := tracer.Start(ctx, "dockerbridge.Setup")
	defer span.End()

	l := launcher{ContainerDefinition: def, tracer: tracer}

	cli, err := client.NewClientWithOpts(client.FromEnv,
		client.WithAPIVersionNegotiation(),
		client.WithTraceProvider(tp))
	if err != nil {
		return nil, nil, err
	}

	id, err := l.getOrCreateContainer(ctx, cli)
	if err != nil {
		cli.Close()
		return nil, nil, err
	}

	waiter, err := cli.ContainerAttach(ctx, *id, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		cli.Close()
		return nil, nil, err
	}

	attachDone := make(chan error)
	go func() {
		<-ctx.Done()
		waiter.Close()
		cli.Close()
		attachDone <- ctx.Err()
	}()

	return &jsonrpc.Connection{
		Conn:   waiter.Conn,
		Reader: waiter.Reader,
	}, attachDone, nil
}

func (l *launcher) getOrCreateContainer(ctx context.Context, cli *client.Client) (id *string, err error) {
	ctx, span := l.tracer.Start(ctx, "dockerbridge.getOrCreateContainer")
	defer span.End()

	var name string
	var isRunning bool
	if serverName := l.ContainerName; serverName != nil {
		id, isRunning, err = getContainerByName(ctx, cli, *serverName, l.tracer)
		name = *serverName
	} else if imgName := l.ImageName; imgName != nil {
		env := []string{}
		if l.Env != nil {
			env = *l.Env
		}
		id, name, isRunning, err = getContainerFromImage(ctx, cli, *imgName, env, l.tracer)
	}

	if isRunning {
		span.AddEvent("running container found", trace.WithAttributes(
			attribute.String("container_id", *id)))
		return id, err
	}
	if id == nil || err != nil {
		return id, err
	}

	if err := cli.ContainerStart(ctx, *id, container.StartOptions{}); err != nil {
		return id, err
	}
	span.AddEvent("container started", trace.WithAttributes(
		attribute.String("container_name", name),
		attribute.String("container_id", *id)))
	return id, err
}

func getContainerByName(ctx context.Context, cli *client.Client, name string, tracer trace.Tracer) (*string, bool, error) {
	return getContainer(ctx, cli, filters.KeyValuePair{Key: "name", Value: name}, tracer)
}

func getContainer(ctx context.Context, cli *client.Client, args filters.KeyValuePair, tracer trace.Tracer) (*string, bool, error) {
	ctx, span := tracer.Start(ctx, "dockerbridge.getContainer")
	defer span.End()

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(args),
	})
	if len(containers) == 0 {
		return nil, false, err
	}
	if len(containers) > 1 {
		span.AddEvent(fmt.Sprintf("multiple containers matched (%d), using first", len(containers)))
	}

	matched := &containers[0]
	span.AddEvent("container located", trace.WithAttributes(
		attribute.String("container_id", matched.ID),
		attribute.String("image", matched.Image)))
	return &matched.ID, matched.State == "running", err
}

func getContainerFromImage(
	ctx context.Context,
	cli *client.Client,
	imageName string,
	env []string,
	tracer trace.Tracer,
) (id *string, name string, isRunning bool, err error) {
	ctx, span := tracer.Start(ctx, "dockerbridge.getContainerFromImage")
	defer span.End()

	name = formatContainerName(imageName)

	// An existing container with the derived name wins over creating one.
	containerID, isRunning, err := getContainerByName(ctx, cli, name, tracer)
	if err != nil || containerID != nil {
		return containerID, name, isRunning, err
	}

	images, err := getImages(ctx, imageName, cli, tracer)
	if err != nil {
		return nil, name, false, err
	}
	if len(images) == 0 {
		return nil, name, false, fmt.Errorf("no images found with the provided name: %s", imageName)
	}
	span.AddEvent(fmt.Sprintf("image %s available locally", imageName),
		trace.WithAttributes(attribute.Int("image_count", len(images))))

	resp, err := cli.ContainerCreate(
		ctx,
		&container.Config{
			Image:        imageName,
			Env:          forwardedEnv(env),
			AttachStdin:  true,
			OpenStdin:    true,
			StdinOnce:    false,
			AttachStdout: true,
			AttachStderr: true,
			Tty:          false,
		},
		&container.HostConfig{
			AutoRemove: true,
		},
		nil,
		nil,
		name,
	)

	id = &resp.ID
	return id, name, false, err
}

// formatContainerName derives a docker-safe container name from an image ref.
func formatContainerName(imageName string) string {
	re := regexp.MustCompile(`[^a-zA-Z0-9_.-]`)
	return re.ReplaceAllString(fmt.Sprintf("maestro-%s", imageName), ".")
}

// getImages resolves the image locally, pulling it on a miss so later runs
// hit the local cache.
func getImages(ctx context.Context, imageName string, cli *client.Client, tracer trace.Tracer) ([]image.Summary, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("reference", imageName)

	images, err := cli.ImageList(ctx, image.ListOptions{Filters: filterArgs})
	if err != nil {
		return nil, fmt.Errorf("could not list docker images: %w", err)
	}
	if len(images) == 0 {
		images, err = tryPullImage(ctx, imageName, cli, filterArgs, tracer)
	}
	return images, err
}

func tryPullImage(ctx context.Context, imageName string, cli *client.Client, filterArgs filters.Args, tracer trace.Tracer) ([]image.Summary, error) {
	ctx, span := tracer.Start(ctx, "dockerbridge.tryPullImage")
	defer span.End()

	span.AddEvent(fmt.Sprintf("image %s not found locally, pulling", imageName))
	reader, err := cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to pull image %q: %w", imageName, err)
	}
	io.Copy(io.Discard, reader)
	reader.Close()

	return cli.ImageList(ctx, image.ListOptions{Filters: filterArgs})
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
