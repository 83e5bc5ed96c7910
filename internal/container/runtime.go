// Package container drives the local Docker engine for the Face API wrapper:
// building its image, replacing its container, and reading its logs.
package container

import (
	"context"
	"errors"
	"io"
	"time"
)

// ManagedLabel marks containers and images created by facedeploy.
const ManagedLabel = "io.facedeploy.managed"

// ErrNotFound is returned by ContainerState when no container has the given name or ID.
var ErrNotFound = errors.New("container not found")

// Runtime is the subset of container engine operations a deployment needs.
type Runtime interface {
	// Ping verifies the engine is accessible.
	Ping(ctx context.Context) error

	// BuildImage builds contextDir (which must hold a Dockerfile) and tags the result.
	BuildImage(ctx context.Context, contextDir, tag string, opts BuildOptions) error

	// ImageExists checks if an image with the given tag exists locally.
	ImageExists(ctx context.Context, tag string) (bool, error)

	// CreateContainer creates a new container without starting it.
	// Returns the container ID.
	CreateContainer(ctx context.Context, cfg Config) (string, error)

	// StartContainer starts an existing container.
	StartContainer(ctx context.Context, id string) error

	// StopContainer stops a running container.
	StopContainer(ctx context.Context, id string) error

	// RemoveContainer force-removes a container. A missing container is not an error.
	RemoveContainer(ctx context.Context, id string) error

	// ContainerState returns "running", "exited", "created", etc.
	// Returns ErrNotFound if the container doesn't exist.
	ContainerState(ctx context.Context, id string) (string, error)

	// ContainerLogsTail returns the last n lines of combined stdout and stderr.
	ContainerLogsTail(ctx context.Context, id string, n int) ([]byte, error)

	// FollowLogs streams logs into w until ctx is canceled or the container stops.
	// tail limits the backlog; zero or less streams everything.
	FollowLogs(ctx context.Context, id string, w io.Writer, tail int) error

	// ListContainers returns containers carrying ManagedLabel.
	ListContainers(ctx context.Context) ([]Info, error)

	// Close releases runtime resources.
	Close() error
}

// Config holds configuration for creating a container.
type Config struct {
	Name  string
	Image string
	Env   []string

	// PortBindings maps container ports to fixed host ports on all addresses.
	PortBindings map[int]int

	MemoryMB      int    // 0 means no limit
	RestartPolicy string // "no", "always", "unless-stopped", "on-failure"
	Labels        map[string]string
}

// BuildOptions configures image builds.
type BuildOptions struct {
	NoCache bool
	// Out receives the builder's progress stream. Nil discards it.
	Out io.Writer
}

// Info contains basic information about a container.
type Info struct {
	ID      string
	Name    string
	Image   string
	Status  string
	Created time.Time
}
