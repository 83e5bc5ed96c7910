package container

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	goruntime "runtime"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/majorcontext/facedeploy/internal/container/output"
	"github.com/majorcontext/facedeploy/internal/log"
)

// DockerRuntime implements Runtime using the Docker Engine API.
type DockerRuntime struct {
	cli *client.Client
}

// NewDockerRuntime connects to the engine named by DOCKER_HOST (or the default socket).
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &DockerRuntime{cli: cli}, nil
}

// Ping verifies the Docker daemon is accessible.
func (r *DockerRuntime) Ping(ctx context.Context) error {
	_, err := r.cli.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker daemon not accessible: %w", err)
	}
	return nil
}

// ImageExists checks if an image exists locally.
func (r *DockerRuntime) ImageExists(ctx context.Context, tag string) (bool, error) {
	_, err := r.cli.ImageInspect(ctx, tag)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspecting image %s: %w", tag, err)
	}
	return true, nil
}

// BuildImage builds the image in contextDir and streams progress to opts.Out.
func (r *DockerRuntime) BuildImage(ctx context.Context, contextDir, tag string, opts BuildOptions) error {
	archive, err := contextArchive(contextDir)
	if err != nil {
		return err
	}

	platform := "linux/amd64"
	if goruntime.GOARCH == "arm64" {
		platform = "linux/arm64"
	}

	output.BuildingImage(tag)
	log.Debug("building image", "tag", tag, "context", contextDir, "no_cache", opts.NoCache, "context_bytes", archive.Len())

	resp, err := r.cli.ImageBuild(ctx, archive, build.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
		Platform:    platform,
		NoCache:     opts.NoCache,
		Labels:      map[string]string{ManagedLabel: "true"},
	})
	if err != nil {
		return fmt.Errorf("building image: %w", err)
	}
	defer resp.Body.Close()

	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	return streamBuildOutput(resp.Body, out)
}

// streamBuildOutput copies the "stream" fields of the daemon's JSON progress
// messages to out and fails on the first "error" field.
func streamBuildOutput(body io.Reader, out io.Writer) error {
	decoder := json.NewDecoder(body)
	for {
		var msg struct {
			Stream string `json:"stream"`
			Error  string `json:"error"`
		}
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading build output: %w", err)
		}
		if msg.Error != "" {
			return fmt.Errorf("build error: %s", strings.TrimSpace(msg.Error))
		}
		if msg.Stream != "" {
			fmt.Fprint(out, msg.Stream)
		}
	}
}

// CreateContainer creates a new Docker container.
func (r *DockerRuntime) CreateContainer(ctx context.Context, cfg Config) (string, error) {
	cc, hc := containerSpec(cfg)
	resp, err := r.cli.ContainerCreate(ctx, cc, hc, nil, nil, cfg.Name)
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}
	for _, w := range resp.Warnings {
		log.Warn("docker warning on container create", "container", cfg.Name, "warning", w)
	}
	return resp.ID, nil
}

// containerSpec translates cfg into the engine's create request.
func containerSpec(cfg Config) (*container.Config, *container.HostConfig) {
	var exposedPorts nat.PortSet
	var portBindings nat.PortMap
	if len(cfg.PortBindings) > 0 {
		exposedPorts = make(nat.PortSet)
		portBindings = make(nat.PortMap)
		for containerPort, hostPort := range cfg.PortBindings {
			port := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
			exposedPorts[port] = struct{}{}
			portBindings[port] = []nat.PortBinding{{HostPort: strconv.Itoa(hostPort)}}
		}
	}

	var memoryBytes int64
	if cfg.MemoryMB > 0 {
		memoryBytes = int64(cfg.MemoryMB) * 1024 * 1024
	}

	labels := map[string]string{ManagedLabel: "true"}
	for k, v := range cfg.Labels {
		labels[k] = v
	}

	restart := container.RestartPolicy{Name: container.RestartPolicyDisabled}
	if cfg.RestartPolicy != "" {
		restart.Name = container.RestartPolicyMode(cfg.RestartPolicy)
	}

	return &container.Config{
			Image:        cfg.Image,
			Env:          cfg.Env,
			ExposedPorts: exposedPorts,
			Labels:       labels,
		}, &container.HostConfig{
			PortBindings:  portBindings,
			RestartPolicy: restart,
			Resources: container.Resources{
				Memory: memoryBytes,
			},
		}
}

// StartContainer starts an existing container.
func (r *DockerRuntime) StartContainer(ctx context.Context, containerID string) error {
	if err := r.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("starting container: %w", err)
	}
	return nil
}

// StopContainer stops a running container.
func (r *DockerRuntime) StopContainer(ctx context.Context, containerID string) error {
	if err := r.cli.ContainerStop(ctx, containerID, container.StopOptions{}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("stopping container: %w", err)
	}
	return nil
}

// RemoveContainer removes a container.
func (r *DockerRuntime) RemoveContainer(ctx context.Context, containerID string) error {
	if err := r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force: true,
	}); err != nil {
		// Ignore "not found" errors - container may have already been removed
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("removing container: %w", err)
	}
	return nil
}

// ContainerState returns the state of a container ("running", "exited", "created", etc).
func (r *DockerRuntime) ContainerState(ctx context.Context, containerID string) (string, error) {
	inspect, err := r.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, containerID)
		}
		return "", fmt.Errorf("inspecting container: %w", err)
	}
	return inspect.State.Status, nil
}

// ContainerLogsTail returns the last n log lines, demultiplexed from Docker's
// stream format.
func (r *DockerRuntime) ContainerLogsTail(ctx context.Context, containerID string, n int) ([]byte, error) {
	tty, err := r.isTTY(ctx, containerID)
	if err != nil {
		return nil, err
	}
	reader, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tailArg(n),
	})
	if err != nil {
		return nil, fmt.Errorf("getting container logs: %w", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if err := copyLogs(&buf, reader, tty); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FollowLogs streams container logs into w.
func (r *DockerRuntime) FollowLogs(ctx context.Context, containerID string, w io.Writer, tail int) error {
	tty, err := r.isTTY(ctx, containerID)
	if err != nil {
		return err
	}
	reader, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Tail:       tailArg(tail),
	})
	if err != nil {
		return fmt.Errorf("following container logs: %w", err)
	}
	defer reader.Close()

	err = copyLogs(w, reader, tty)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (r *DockerRuntime) isTTY(ctx context.Context, containerID string) (bool, error) {
	inspect, err := r.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, fmt.Errorf("%w: %s", ErrNotFound, containerID)
		}
		return false, fmt.Errorf("inspecting container to determine log format: %w", err)
	}
	return inspect.Config != nil && inspect.Config.Tty, nil
}

// copyLogs writes a log stream to w. Non-TTY streams are multiplexed with
// 8-byte frame headers and go through stdcopy; stdout and stderr both land in w.
func copyLogs(w io.Writer, r io.Reader, tty bool) error {
	if tty {
		_, err := io.Copy(w, r)
		return err
	}
	if _, err := stdcopy.StdCopy(w, w, r); err != nil {
		return fmt.Errorf("demuxing logs: %w", err)
	}
	return nil
}

func tailArg(n int) string {
	if n <= 0 {
		return "all"
	}
	return strconv.Itoa(n)
}

// ListContainers returns all facedeploy containers, running or stopped.
func (r *DockerRuntime) ListContainers(ctx context.Context) ([]Info, error) {
	containers, err := r.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", ManagedLabel+"=true")),
	})
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}

	result := make([]Info, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			// Names have leading slash, e.g., "/face-api"
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		id := c.ID
		if len(id) > 12 {
			id = id[:12]
		}
		result = append(result, Info{
			ID:      id,
			Name:    name,
			Image:   c.Image,
			Status:  c.State,
			Created: time.Unix(c.Created, 0),
		})
	}
	return result, nil
}

// Close releases Docker client resources.
func (r *DockerRuntime) Close() error {
	return r.cli.Close()
}

var _ Runtime = (*DockerRuntime)(nil)
