// Package output provides consistent user-facing messages for container operations.
package output

import (
	"fmt"
	"io"
	"os"
)

// Writer receives the messages. Tests may replace it.
var Writer io.Writer = os.Stdout

// BuildingImage displays a message indicating an image is being built.
func BuildingImage(tag string) {
	fmt.Fprintf(Writer, "Building image %s...\n", tag)
}

// ReplacingContainer displays a message indicating an old container is being removed.
func ReplacingContainer(name string) {
	fmt.Fprintf(Writer, "Replacing container %s...\n", name)
}

// StartingContainer displays a message indicating a container is starting.
func StartingContainer(name string, hostPort int) {
	fmt.Fprintf(Writer, "Starting container %s on port %d...\n", name, hostPort)
}

// RunningCompose displays the compose command being run.
func RunningCompose(dir string, args []string) {
	fmt.Fprintf(Writer, "Running docker compose %v in %s...\n", args, dir)
}
