package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/majorcontext/facedeploy/internal/config"
	"github.com/majorcontext/facedeploy/internal/container"
	"github.com/majorcontext/facedeploy/internal/deploy"
	"github.com/majorcontext/facedeploy/internal/doctor"
	"github.com/majorcontext/facedeploy/internal/endpoint"
	"github.com/majorcontext/facedeploy/internal/envfile"
	"github.com/majorcontext/facedeploy/internal/faceapi"
	"github.com/majorcontext/facedeploy/internal/preflight"
	"github.com/majorcontext/facedeploy/internal/ui"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnostic information about the facedeploy environment",
	Long: `Displays diagnostic information for debugging a deployment:

- facedeploy version and settings
- Container engine status and managed containers
- Workspace files (the API key in the record is masked)
- Whether CompreFace and the Face API answer`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Println(ui.Bold("facedeploy doctor"))
	fmt.Println()

	reg := doctor.NewRegistry()
	reg.Register(&versionSection{cfg: settings})
	reg.Register(&runtimeSection{cfg: settings})
	reg.Register(&workspaceSection{cfg: settings})
	reg.Register(&endpointSection{cfg: settings})

	if failed := reg.Report(os.Stdout); failed > 0 {
		return fmt.Errorf("%d doctor section(s) reported problems", failed)
	}
	return nil
}

type versionSection struct{ cfg *config.Settings }

func (s *versionSection) Name() string { return "Version" }

func (s *versionSection) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "facedeploy:\t%s\n", version)
	fmt.Fprintf(tw, "Platform:\t%s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(tw, "Home:\t%s\n", s.cfg.Home)
	fmt.Fprintf(tw, "CompreFace:\t%s\n", s.cfg.CompreFace.Version)
	fmt.Fprintf(tw, "Image:\t%s\n", s.cfg.API.Image)
	return tw.Flush()
}

type runtimeSection struct{ cfg *config.Settings }

func (s *runtimeSection) Name() string { return "Container Runtime" }

func (s *runtimeSection) Print(w io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rt, err := container.NewDockerRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	checks := []doctor.Check{{Label: "Docker", OK: true, Detail: "daemon reachable"}}
	if err := rt.Ping(ctx); err != nil {
		checks[0] = doctor.Check{Label: "Docker", Detail: err.Error()}
	}
	if _, err := exec.LookPath("docker"); err != nil {
		checks = append(checks, doctor.Check{Label: "docker CLI", Detail: "not found in PATH (needed for compose)"})
	} else {
		checks = append(checks, doctor.Check{Label: "docker CLI", OK: true, Detail: "found"})
	}
	failed, err := doctor.PrintChecks(w, checks)
	if err != nil {
		return err
	}
	if failed > 0 {
		return errors.New("container engine not ready")
	}
	if _, err := doctor.PrintChecks(w, []doctor.Check{imageCheck(ctx, rt, s.cfg.API.Image)}); err != nil {
		return err
	}

	list, err := rt.ListContainers(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(w, ui.Dim("No facedeploy containers"))
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID\tIMAGE\tSTATUS")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Name, c.ID, c.Image, c.Status)
	}
	return tw.Flush()
}

type imageLookup interface {
	ImageExists(ctx context.Context, tag string) (bool, error)
}

// imageCheck reports whether the Face API image has been built.
func imageCheck(ctx context.Context, images imageLookup, tag string) doctor.Check {
	ok, err := images.ImageExists(ctx, tag)
	switch {
	case err != nil:
		return doctor.Check{Label: "Image", Detail: err.Error()}
	case !ok:
		return doctor.Check{Label: "Image", Detail: tag + " (not built; run facedeploy)"}
	}
	return doctor.Check{Label: "Image", OK: true, Detail: tag}
}

type workspaceSection struct{ cfg *config.Settings }

func (s *workspaceSection) Name() string { return "Workspace" }

func (s *workspaceSection) Print(w io.Writer) error {
	if _, err := doctor.PrintChecks(w, workspaceChecks(s.cfg)); err != nil {
		return err
	}

	rec, err := envfile.Read(s.cfg.RecordPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("configuration record unreadable: %w", err)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, ui.Dim(s.cfg.RecordPath()+":"))
	out, err := rec.Redacted(deploy.KeyAPIKey).Marshal()
	if err != nil {
		return err
	}
	w.Write(out)
	return nil
}

// workspaceChecks reports which bootstrap and deploy artifacts exist.
// Missing files are informational; a first deploy creates them.
func workspaceChecks(cfg *config.Settings) []doctor.Check {
	exists := func(label, path string) doctor.Check {
		if _, err := os.Stat(path); err != nil {
			return doctor.Check{Label: label, Detail: path + " (missing)"}
		}
		return doctor.Check{Label: label, OK: true, Detail: path}
	}
	return []doctor.Check{
		exists("Home", cfg.Home),
		exists("CompreFace checkout", filepath.Join(cfg.ComprefaceDir(), "docker-compose.yml")),
		exists("CompreFace env", cfg.ComprefaceEnvPath()),
		exists("Face API context", filepath.Join(cfg.API.ContextDir, "Dockerfile")),
		exists("Configuration record", cfg.RecordPath()),
	}
}

type endpointSection struct{ cfg *config.Settings }

func (s *endpointSection) Name() string { return "Endpoints" }

func (s *endpointSection) Print(w io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*s.cfg.Probe.Timeout)
	defer cancel()

	var checks []doctor.Check
	verifyURL := recordedVerificationURL(s.cfg)
	if verifyURL == "" {
		checks = append(checks, doctor.Check{Label: "CompreFace", Detail: "no record yet; run facedeploy"})
	} else if err := preflight.NewHTTPProber(s.cfg.Probe.Timeout).Probe(ctx, verifyURL); err != nil {
		checks = append(checks, doctor.Check{Label: "CompreFace", Detail: err.Error()})
	} else {
		checks = append(checks, doctor.Check{Label: "CompreFace", OK: true, Detail: verifyURL})
	}

	ping, err := faceapi.NewClient(s.cfg.LocalURL(), s.cfg.Probe.Timeout).Ping(ctx)
	if err != nil {
		checks = append(checks, doctor.Check{Label: "Face API", Detail: err.Error()})
	} else {
		checks = append(checks, doctor.Check{Label: "Face API", OK: true, Detail: s.cfg.LocalURL() + " " + ui.Dim(ping.Message)})
	}

	_, err = doctor.PrintChecks(w, checks)
	return err
}

// recordedVerificationURL returns the verification URL from the record,
// falling back to COMPRE_FACE_URL from settings.
func recordedVerificationURL(cfg *config.Settings) string {
	if rec, err := envfile.Read(cfg.RecordPath()); err == nil {
		if v, ok := rec.Get(deploy.KeyURL); ok && v != "" {
			return v
		}
	}
	if cfg.BaseURL == "" {
		return ""
	}
	ep, err := endpoint.Parse(cfg.BaseURL)
	if err != nil {
		return ""
	}
	return ep.VerificationURL()
}
