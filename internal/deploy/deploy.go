// Package deploy runs a Face API deployment from start to finish.
//
// The flow only moves forward: collect and validate the credential and URL,
// prepare the CompreFace workspace, probe the verification endpoint, write the
// configuration record, build the image, replace the container, and poll it
// until it answers. The only loop is the bounded health poll.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/majorcontext/facedeploy/internal/bootstrap"
	"github.com/majorcontext/facedeploy/internal/config"
	"github.com/majorcontext/facedeploy/internal/container"
	"github.com/majorcontext/facedeploy/internal/container/output"
	"github.com/majorcontext/facedeploy/internal/envfile"
	"github.com/majorcontext/facedeploy/internal/health"
	"github.com/majorcontext/facedeploy/internal/log"
	"github.com/majorcontext/facedeploy/internal/preflight"
	"github.com/majorcontext/facedeploy/internal/prompt"
	"github.com/majorcontext/facedeploy/internal/ui"
)

// ContainerPort is where gunicorn listens inside the wrapper image.
const ContainerPort = 5000

// LogTailLines is how much container output is shown when startup fails.
const LogTailLines = 50

// Record keys, in the order they are written.
const (
	KeyAPIKey   = preflight.KeyAPIKey
	KeyURL      = preflight.KeyBaseURL
	KeyVersion  = "COMPRE_FACE_VERSION"
	KeyMemoryMB = "FACE_API_MEMORY_MB"
	KeyWorkers  = "FACE_API_WORKERS"
)

// ErrProcessStart is returned when the image cannot be built or the
// container cannot be started, or when it exits before becoming healthy.
var ErrProcessStart = errors.New("face api failed to start")

const totalSteps = 7

// Bootstrapper prepares the CompreFace workspace.
type Bootstrapper interface {
	Ensure(ctx context.Context) (bootstrap.Result, error)
}

// Poller waits for a URL to become healthy.
type Poller func(ctx context.Context, url string, opts health.Options) (health.Result, error)

// Deployer holds everything a deployment touches. Settings, Bootstrap,
// Source, Prober and Runtime are required.
type Deployer struct {
	Settings  *config.Settings
	Bootstrap Bootstrapper
	Source    prompt.Source
	Prober    preflight.Prober
	Runtime   container.Runtime
	Poll      Poller    // defaults to health.Poll
	BuildOut  io.Writer // image build progress; nil discards
	NoCache   bool      // rebuild every image layer
	Out       io.Writer // log dumps and instructions; defaults to ui.Stdout()
}

// Result describes a successful deployment.
type Result struct {
	ContainerID string
	URL         string
	Reachable   bool
	Health      health.Result
}

// Run performs the deployment.
func (d *Deployer) Run(ctx context.Context) (*Result, error) {
	cfg := d.Settings
	out := d.Out
	if out == nil {
		out = ui.Stdout()
	}
	poll := d.Poll
	if poll == nil {
		poll = health.Poll
	}

	ui.Step(1, totalSteps, "Validating CompreFace credentials")
	target, state, err := preflight.Collect(d.Source)
	if err != nil {
		log.Debug("credential collection failed", "state", state, "error", err)
		return nil, err
	}
	verifyURL := target.VerificationURL()
	log.Info("target validated", "verification_url", verifyURL)

	ui.Step(2, totalSteps, "Preparing CompreFace workspace in "+cfg.Home)
	boot, err := d.Bootstrap.Ensure(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping workspace: %w", err)
	}
	if !boot.EnvWritten {
		ui.Info(boot.EnvPath + " already exists, leaving it untouched")
	}

	ui.Step(3, totalSteps, "Checking "+verifyURL)
	reachable, err := preflight.Gate(ctx, d.Prober, d.Source, verifyURL, func(perr error) {
		ui.Warnf("CompreFace did not answer at %s: %v", verifyURL, perr)
		ui.Info("Start it with `facedeploy compreface up`, or continue if it will be up later.")
	})
	if err != nil {
		return nil, err
	}

	ui.Step(4, totalSteps, "Writing configuration record "+cfg.RecordPath())
	rec, err := d.writeRecord(target)
	if err != nil {
		return nil, err
	}

	ui.Step(5, totalSteps, "Building image "+cfg.API.Image)
	if err := d.Runtime.BuildImage(ctx, cfg.API.ContextDir, cfg.API.Image, container.BuildOptions{Out: d.BuildOut, NoCache: d.NoCache}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessStart, err)
	}

	ui.Step(6, totalSteps, "Starting container "+cfg.API.ContainerName)
	id, err := d.replaceContainer(ctx, rec)
	if err != nil {
		return nil, err
	}

	ui.Step(7, totalSteps, "Waiting for "+cfg.LocalURL())
	hres, err := d.waitHealthy(ctx, poll, id)
	if err != nil {
		d.dumpLogs(ctx, out, id)
		return nil, err
	}

	res := &Result{ContainerID: id, URL: cfg.LocalURL(), Reachable: reachable, Health: hres}
	log.Info("deployment healthy", "container", id, "url", res.URL, "attempts", hres.Attempts, "elapsed", hres.Elapsed)
	PrintInstructions(out, res.URL)
	return res, nil
}

// writeRecord merges the new credential and URL into any existing record.
func (d *Deployer) writeRecord(target preflight.Target) (*envfile.Record, error) {
	path := d.Settings.RecordPath()
	existing, err := envfile.Read(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading existing record: %w", err)
	}

	rec := BuildRecord(existing, target, d.Settings)
	if err := envfile.Write(path, rec, 0600); err != nil {
		return nil, fmt.Errorf("writing configuration record: %w", err)
	}
	log.Debug("configuration record written", "path", path, "keys", rec.Keys())
	return rec, nil
}

// managedKeys are rendered from target and settings on every run.
var managedKeys = map[string]bool{
	KeyAPIKey:   true,
	KeyURL:      true,
	KeyVersion:  true,
	KeyMemoryMB: true,
	KeyWorkers:  true,
}

// BuildRecord renders the wrapper's configuration. The credential and URL
// come from target and the version and resource keys from cfg, so the record
// always matches the container being created. Any other key an operator put
// into existing is kept.
func BuildRecord(existing *envfile.Record, target preflight.Target, cfg *config.Settings) *envfile.Record {
	workers := cfg.API.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()*2 + 1
	}
	rec := envfile.New(
		envfile.Entry{Key: KeyAPIKey, Value: target.APIKey},
		envfile.Entry{Key: KeyURL, Value: target.VerificationURL()},
		envfile.Entry{Key: KeyVersion, Value: cfg.CompreFace.Version},
		envfile.Entry{Key: KeyMemoryMB, Value: strconv.Itoa(cfg.API.MemoryMB)},
		envfile.Entry{Key: KeyWorkers, Value: strconv.Itoa(workers)},
	)
	if existing == nil {
		return rec
	}
	for _, e := range existing.Entries() {
		if managedKeys[e.Key] {
			continue
		}
		rec.Set(e.Key, e.Value)
	}
	return rec
}

func (d *Deployer) replaceContainer(ctx context.Context, rec *envfile.Record) (string, error) {
	cfg := d.Settings
	name := cfg.API.ContainerName
	clog := log.With("container", name, "image", cfg.API.Image)

	state, err := d.Runtime.ContainerState(ctx, name)
	switch {
	case err == nil:
		output.ReplacingContainer(name)
		clog.Debug("removing previous container", "state", state)
		if err := d.Runtime.RemoveContainer(ctx, name); err != nil {
			return "", fmt.Errorf("%w: %w", ErrProcessStart, err)
		}
	case !errors.Is(err, container.ErrNotFound):
		return "", fmt.Errorf("%w: %w", ErrProcessStart, err)
	}

	id, err := d.Runtime.CreateContainer(ctx, container.Config{
		Name:          name,
		Image:         cfg.API.Image,
		Env:           rec.Environ(),
		PortBindings:  map[int]int{ContainerPort: cfg.API.Port},
		MemoryMB:      cfg.API.MemoryMB,
		RestartPolicy: "unless-stopped",
		Labels:        map[string]string{"io.facedeploy.compreface-version": cfg.CompreFace.Version},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProcessStart, err)
	}
	output.StartingContainer(name, cfg.API.Port)
	if err := d.Runtime.StartContainer(ctx, id); err != nil {
		d.dumpLogs(ctx, d.Out, id)
		return "", fmt.Errorf("%w: %w", ErrProcessStart, err)
	}
	clog.Info("container started", "id", id, "port", cfg.API.Port)
	return id, nil
}

// waitHealthy polls the wrapper and stops early if the container exits.
func (d *Deployer) waitHealthy(ctx context.Context, poll Poller, id string) (health.Result, error) {
	cfg := d.Settings
	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu     sync.Mutex
		exited string
	)
	opts := health.Options{
		InitialInterval: cfg.Health.InitialInterval,
		MaxInterval:     cfg.Health.MaxInterval,
		Budget:          cfg.Health.Budget,
		RequestTimeout:  cfg.Probe.Timeout,
		OnRetry: func(_ error, next time.Duration) {
			state, err := d.Runtime.ContainerState(pollCtx, id)
			if err != nil || state == "running" || state == "created" || state == "restarting" {
				return
			}
			mu.Lock()
			exited = state
			mu.Unlock()
			cancel()
		},
	}

	res, err := poll(pollCtx, cfg.LocalURL()+"/", opts)
	mu.Lock()
	defer mu.Unlock()
	if exited != "" && ctx.Err() == nil {
		return res, fmt.Errorf("%w: container %s is %s", ErrProcessStart, cfg.API.ContainerName, exited)
	}
	return res, err
}

func (d *Deployer) dumpLogs(ctx context.Context, w io.Writer, id string) {
	if w == nil {
		w = ui.Stdout()
	}
	// The deploy context may already be canceled; the logs are still wanted.
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	logs, err := d.Runtime.ContainerLogsTail(logCtx, id, LogTailLines)
	if err != nil {
		log.Warn("could not read container logs", "container", id, "error", err)
		return
	}
	fmt.Fprintf(w, "\n%s\n", ui.Bold(fmt.Sprintf("Last %d lines of %s:", LogTailLines, d.Settings.API.ContainerName)))
	w.Write(logs)
	if len(logs) > 0 && logs[len(logs)-1] != '\n' {
		fmt.Fprintln(w)
	}
}

// PrintInstructions tells the operator how to use and manage the deployment.
func PrintInstructions(w io.Writer, url string) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s Face API is running at %s\n\n", ui.OKTag(), ui.Bold(url))
	fmt.Fprintln(w, "Compare two faces:")
	fmt.Fprintf(w, "  curl -X POST %s/compare-faces \\\n", url)
	fmt.Fprintln(w, "    -H 'Content-Type: application/json' \\")
	fmt.Fprintln(w, `    -d "{\"image1\": \"$(base64 -w0 face1.jpg)\", \"image2\": \"$(base64 -w0 face2.jpg)\"}"`)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n\n", ui.Dim("or: facedeploy compare face1.jpg face2.jpg"))
	fmt.Fprintf(w, "Follow logs:  %s\n", ui.Cyan("facedeploy logs -f"))
	fmt.Fprintf(w, "Stop:         %s\n", ui.Cyan("facedeploy down"))
}
