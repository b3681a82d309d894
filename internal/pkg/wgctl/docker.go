package wgctl

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// dockerAPI is the slice of the docker client used here.
type dockerAPI interface {
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerExecCreate(ctx context.Context, containerID string, config types.ExecConfig) (types.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config types.ExecStartCheck) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (types.ContainerExecInspect, error)
}

type DockerController struct {
	cli         dockerAPI
	container   string
	stopTimeout int
}

func NewDockerController(containerName string) (*DockerController, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return newDockerController(cli, containerName), nil
}

func newDockerController(cli dockerAPI, containerName string) *DockerController {
	return &DockerController{cli: cli, container: containerName, stopTimeout: 10}
}

func (d *DockerController) Start(ctx context.Context) (*State, error) {
	if err := d.cli.ContainerStart(ctx, d.container, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start container %s: %w", d.container, err)
	}
	return d.Status(ctx)
}

func (d *DockerController) Stop(ctx context.Context) (*State, error) {
	timeout := d.stopTimeout
	if err := d.cli.ContainerStop(ctx, d.container, container.StopOptions{Timeout: &timeout}); err != nil {
		return nil, fmt.Errorf("stop container %s: %w", d.container, err)
	}
	return d.Status(ctx)
}

func (d *DockerController) Restart(ctx context.Context) (*State, error) {
	timeout := d.stopTimeout
	if err := d.cli.ContainerRestart(ctx, d.container, container.StopOptions{Timeout: &timeout}); err != nil {
		return nil, fmt.Errorf("restart container %s: %w", d.container, err)
	}
	return d.Status(ctx)
}

func (d *DockerController) Status(ctx context.Context) (*State, error) {
	info, err := d.cli.ContainerInspect(ctx, d.container)
	if err != nil {
		return nil, fmt.Errorf("inspect container %s: %w", d.container, err)
	}
	state := &State{Name: d.container}
	if info.ContainerJSONBase == nil {
		return state, nil
	}
	if name := strings.TrimPrefix(info.Name, "/"); name != "" {
		state.Name = name
	}
	if info.State != nil {
		state.Status = info.State.Status
	}
	return state, nil
}

func (d *DockerController) Exec(ctx context.Context, args ...string) (string, error) {
	created, err := d.cli.ContainerExecCreate(ctx, d.container, types.ExecConfig{
		Cmd:          args,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("exec create: %w", err)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return "", fmt.Errorf("exec attach: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return "", fmt.Errorf("read exec output: %w", err)
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return "", fmt.Errorf("exec inspect: %w", err)
	}
	if inspect.ExitCode != 0 {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return "", fmt.Errorf("%s exited %d: %s", strings.Join(args, " "), inspect.ExitCode, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}
