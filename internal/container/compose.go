package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/majorcontext/facedeploy/internal/container/output"
	"github.com/majorcontext/facedeploy/internal/log"
)

// Compose runs the docker compose CLI against a checkout such as CompreFace's.
type Compose struct {
	// Dir holds docker-compose.yml and its .env.
	Dir string
	// Command defaults to ["docker", "compose"].
	Command []string
	Stdout  io.Writer
	Stderr  io.Writer
}

// ComposeError carries the CLI's stderr and a suggested fix.
type ComposeError struct {
	Args   []string
	Reason string
	Fix    string
}

func (e *ComposeError) Error() string {
	msg := fmt.Sprintf("docker compose %s failed: %s", strings.Join(e.Args, " "), e.Reason)
	if e.Fix != "" {
		msg += "\n\n" + e.Fix
	}
	return msg
}

// Up starts the stack detached.
func (c *Compose) Up(ctx context.Context) error {
	return c.run(ctx, "up", "-d")
}

// Down stops and removes the stack's containers.
func (c *Compose) Down(ctx context.Context) error {
	return c.run(ctx, "down")
}

func (c *Compose) run(ctx context.Context, args ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	command := c.Command
	if len(command) == 0 {
		command = []string{"docker", "compose"}
	}
	if _, err := exec.LookPath(command[0]); err != nil {
		return &ComposeError{
			Args:   args,
			Reason: command[0] + " not found in PATH",
			Fix:    "Install Docker with the compose plugin: https://docs.docker.com/compose/install/",
		}
	}

	output.RunningCompose(c.Dir, args)
	full := append(append([]string{}, command[1:]...), args...)
	cmd := exec.CommandContext(ctx, command[0], full...)
	cmd.Dir = c.Dir

	var stderr bytes.Buffer
	cmd.Stdout = c.Stdout
	if c.Stderr != nil {
		cmd.Stderr = io.MultiWriter(c.Stderr, &stderr)
	} else {
		cmd.Stderr = &stderr
	}

	log.Debug("running compose", "dir", c.Dir, "command", command, "args", args)
	if err := cmd.Run(); err != nil {
		reason := strings.TrimSpace(stderr.String())
		if reason == "" {
			reason = err.Error()
		}
		ce := &ComposeError{Args: args, Reason: reason}
		if strings.Contains(reason, "no configuration file provided") {
			ce.Fix = "Run `facedeploy` once to clone CompreFace into " + c.Dir
		}
		return ce
	}
	return nil
}
