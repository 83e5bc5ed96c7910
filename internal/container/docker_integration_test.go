//go:build integration

package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func dockerRuntime(t *testing.T) *DockerRuntime {
	t.Helper()
	r, err := NewDockerRuntime()
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}
	if err := r.Ping(context.Background()); err != nil {
		r.Close()
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestDockerRuntime_BuildRunLogs(t *testing.T) {
	r := dockerRuntime(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	quietOutput(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte(
		"FROM busybox:1.36\nCMD [\"sh\", \"-c\", \"echo started; echo key=${COMPRE_FACE_URL}; sleep 300\"]\n"), 0644))

	tag := fmt.Sprintf("facedeploy-test:%d", time.Now().UnixNano())
	var progress bytes.Buffer
	require.NoError(t, r.BuildImage(ctx, dir, tag, BuildOptions{Out: &progress}))
	exists, err := r.ImageExists(ctx, tag)
	require.NoError(t, err)
	assert.True(t, exists)

	name := fmt.Sprintf("facedeploy-it-%d", time.Now().UnixNano())
	id, err := r.CreateContainer(ctx, Config{
		Name:         name,
		Image:        tag,
		Env:          []string{"COMPRE_FACE_URL=http://localhost:8000/api/v1/verification/verify"},
		PortBindings: map[int]int{5000: freePort(t)},
		MemoryMB:     64,
	})
	require.NoError(t, err)
	t.Cleanup(func() { r.RemoveContainer(context.Background(), id) })

	require.NoError(t, r.StartContainer(ctx, id))
	state, err := r.ContainerState(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "running", state)

	assert.Eventually(t, func() bool {
		logs, err := r.ContainerLogsTail(ctx, id, 50)
		return err == nil && strings.Contains(string(logs), "key=http://localhost:8000/api/v1/verification/verify")
	}, 30*time.Second, 200*time.Millisecond)

	list, err := r.ListContainers(ctx)
	require.NoError(t, err)
	var found bool
	for _, c := range list {
		found = found || c.Name == name
	}
	assert.True(t, found, "managed container is listed")

	require.NoError(t, r.StopContainer(ctx, id))
	require.NoError(t, r.RemoveContainer(ctx, id))
	require.NoError(t, r.RemoveContainer(ctx, id), "second remove is a no-op")

	_, err = r.ContainerState(ctx, name)
	assert.True(t, errors.Is(err, ErrNotFound))
}

// TestDockerRuntime_CoexistsWithTestcontainers checks that removing a
// facedeploy container leaves unrelated containers on the engine alone.
func TestDockerRuntime_CoexistsWithTestcontainers(t *testing.T) {
	r := dockerRuntime(t)
	ctx := context.Background()

	other, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nginx:1.27-alpine",
			ExposedPorts: []string{"80/tcp"},
			WaitingFor:   wait.ForHTTP("/").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
	}
	t.Cleanup(func() { other.Terminate(ctx) })

	require.NoError(t, r.RemoveContainer(ctx, "facedeploy-never-created"))

	state, err := r.ContainerState(ctx, other.GetContainerID())
	require.NoError(t, err)
	assert.Equal(t, "running", state)

	list, err := r.ListContainers(ctx)
	require.NoError(t, err)
	for _, c := range list {
		assert.NotEqual(t, other.GetContainerID()[:12], c.ID, "unmanaged containers are not listed")
	}
}
