package applier

import (
	"context"
	"fmt"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
)

// ContainerSpawnSpec is the subset of a ContainerSpec the runtime needs to
// start an executor's container.
type ContainerSpawnSpec struct {
	Name      string
	Image     string
	Command   string
	Args      []string
	Envs      map[string]string
	Volumes   []string
	Devices   []string
	Ports     []model.Port
	ResultsHostDir string
	ResultsMountPath string
}

// ContainerRuntime drives a container engine (Docker/Podman) for Executor
// reconciliation. Grounded on the official Docker SDK
// (github.com/docker/docker/client), the same package the teacher carries
// in its go.mod for container-based test fixtures.
type ContainerRuntime interface {
	EnsureStarted(ctx context.Context, spec ContainerSpawnSpec) (containerID string, err error)
	Stop(ctx context.Context, containerID string) error
	Running(ctx context.Context, containerID string) (bool, error)
}

// DockerRuntime implements ContainerRuntime against a local Docker (or
// Podman, which speaks the same API) engine.
type DockerRuntime struct {
	cli *client.Client
}

func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker runtime: %w", err)
	}
	return &DockerRuntime{cli: cli}, nil
}

func (d *DockerRuntime) EnsureStarted(ctx context.Context, spec ContainerSpawnSpec) (string, error) {
	existing, err := d.cli.ContainerInspect(ctx, spec.Name)
	if err == nil {
		if !existing.State.Running {
			if startErr := d.cli.ContainerStart(ctx, existing.ID, container.StartOptions{}); startErr != nil {
				return "", fmt.Errorf("docker: restart %s: %w", spec.Name, startErr)
			}
		}
		return existing.ID, nil
	}
	if !client.IsErrNotFound(err) {
		return "", fmt.Errorf("docker: inspect %s: %w", spec.Name, err)
	}

	if _, pullErr := d.cli.ImagePull(ctx, spec.Image, image.PullOptions{}); pullErr != nil {
		return "", fmt.Errorf("docker: pull %s: %w", spec.Image, pullErr)
	}

	var env []string
	for k, v := range spec.Envs {
		env = append(env, k+"="+v)
	}
	var cmd []string
	if spec.Command != "" {
		cmd = append([]string{spec.Command}, spec.Args...)
	}

	binds := append([]string{}, spec.Volumes...)
	if spec.ResultsHostDir != "" {
		binds = append(binds, spec.ResultsHostDir+":"+spec.ResultsMountPath)
	}

	portBindings := nat.PortMap{}
	for _, p := range spec.Ports {
		port := nat.Port(strconv.Itoa(int(p)) + "/tcp")
		portBindings[port] = []nat.PortBinding{{HostPort: strconv.Itoa(int(p))}}
	}

	created, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image: spec.Image,
		Cmd:   cmd,
		Env:   env,
	}, &container.HostConfig{
		Binds:        binds,
		Devices:      deviceMappings(spec.Devices),
		PortBindings: portBindings,
	}, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("docker: create %s: %w", spec.Name, err)
	}
	if err := d.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("docker: start %s: %w", spec.Name, err)
	}
	return created.ID, nil
}

func (d *DockerRuntime) Stop(ctx context.Context, containerID string) error {
	if err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("docker: stop %s: %w", containerID, err)
	}
	if err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("docker: remove %s: %w", containerID, err)
	}
	return nil
}

func (d *DockerRuntime) Running(ctx context.Context, containerID string) (bool, error) {
	info, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return info.State.Running, nil
}

func deviceMappings(devices []string) []container.DeviceMapping {
	out := make([]container.DeviceMapping, 0, len(devices))
	for _, d := range devices {
		out = append(out, container.DeviceMapping{PathOnHost: d, PathInContainer: d, CgroupPermissions: "rwm"})
	}
	return out
}
