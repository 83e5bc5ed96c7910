// Package bootstrap prepares the facedeploy home: the CompreFace checkout and
// its compose .env. Each step is skipped when its artifact already exists, so
// running it again changes nothing.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/majorcontext/facedeploy/internal/config"
	"github.com/majorcontext/facedeploy/internal/envfile"
	"github.com/majorcontext/facedeploy/internal/log"
)

// Cloner fetches ref of url into dir.
type Cloner interface {
	Clone(ctx context.Context, url, ref, dir string) error
}

// GitCloner clones with go-git; no git binary is needed.
type GitCloner struct {
	// Depth limits history. Zero fetches everything.
	Depth    int
	Progress io.Writer
}

// Clone checks out tag ref of url into dir.
func (g GitCloner) Clone(ctx context.Context, url, ref, dir string) error {
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           url,
		ReferenceName: plumbing.NewTagReferenceName(ref),
		SingleBranch:  true,
		Depth:         g.Depth,
		Tags:          git.NoTags,
		Progress:      g.Progress,
	})
	if err != nil {
		return fmt.Errorf("cloning %s at %s: %w", url, ref, err)
	}
	return nil
}

// Bootstrapper lays out Home.
type Bootstrapper struct {
	Home    string
	Repo    string // empty skips the clone and just creates the directory
	Version string
	Cloner  Cloner
}

// Result reports which steps did work.
type Result struct {
	ComprefaceDir string
	EnvPath       string
	HomeCreated   bool
	Cloned        bool
	EnvWritten    bool
}

// New returns a Bootstrapper for cfg that shallow-clones with go-git.
func New(cfg *config.Settings, progress io.Writer) *Bootstrapper {
	return &Bootstrapper{
		Home:    cfg.Home,
		Repo:    cfg.CompreFace.Repo,
		Version: cfg.CompreFace.Version,
		Cloner:  GitCloner{Depth: 1, Progress: progress},
	}
}

// Ensure creates whatever is missing under Home.
func (b *Bootstrapper) Ensure(ctx context.Context) (Result, error) {
	res := Result{
		ComprefaceDir: filepath.Join(b.Home, "compreface"),
	}
	res.EnvPath = filepath.Join(res.ComprefaceDir, ".env")

	created, err := ensureDir(b.Home)
	if err != nil {
		return res, fmt.Errorf("creating home %s: %w", b.Home, err)
	}
	res.HomeCreated = created

	if _, err := os.Stat(res.ComprefaceDir); err == nil {
		log.Debug("compreface checkout exists", "dir", res.ComprefaceDir)
	} else if !errors.Is(err, os.ErrNotExist) {
		return res, fmt.Errorf("checking %s: %w", res.ComprefaceDir, err)
	} else if b.Repo == "" {
		if err := os.MkdirAll(res.ComprefaceDir, 0755); err != nil {
			return res, fmt.Errorf("creating %s: %w", res.ComprefaceDir, err)
		}
	} else {
		if err := b.clone(ctx, res.ComprefaceDir); err != nil {
			return res, err
		}
		res.Cloned = true
	}

	written, err := envfile.WriteIfAbsent(res.EnvPath, DefaultComprefaceEnv(b.Version), 0644)
	if err != nil {
		return res, fmt.Errorf("writing CompreFace env: %w", err)
	}
	res.EnvWritten = written
	if written {
		log.Info("wrote CompreFace env", "path", res.EnvPath, "version", b.Version)
	} else {
		log.Debug("CompreFace env already exists", "path", res.EnvPath)
	}
	return res, nil
}

// clone fetches into a sibling temp directory and renames it into place so
// an interrupted clone is never mistaken for a finished one on the next run.
func (b *Bootstrapper) clone(ctx context.Context, dest string) error {
	if b.Cloner == nil {
		return errors.New("bootstrap: no cloner configured")
	}
	tmp, err := os.MkdirTemp(b.Home, ".compreface-clone-*")
	if err != nil {
		return fmt.Errorf("creating clone directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	ref := "v" + b.Version
	log.Info("cloning CompreFace", "repo", b.Repo, "ref", ref, "dest", dest)
	if err := b.Cloner.Clone(ctx, b.Repo, ref, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("moving clone into place: %w", err)
	}
	return nil
}

func ensureDir(dir string) (bool, error) {
	if _, err := os.Stat(dir); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	return true, os.MkdirAll(dir, 0755)
}

// DefaultComprefaceEnv is the compose .env CompreFace ships with, pinned to version.
func DefaultComprefaceEnv(version string) *envfile.Record {
	return envfile.New(
		envfile.Entry{Key: "registry", Value: "exadel/"},
		envfile.Entry{Key: "postgres_username", Value: "postgres"},
		envfile.Entry{Key: "postgres_password", Value: "postgres"},
		envfile.Entry{Key: "postgres_db", Value: "frs"},
		envfile.Entry{Key: "postgres_domain", Value: "compreface-postgres-db"},
		envfile.Entry{Key: "postgres_port", Value: "5432"},
		envfile.Entry{Key: "email_host", Value: "smtp.gmail.com"},
		envfile.Entry{Key: "email_username", Value: ""},
		envfile.Entry{Key: "email_from", Value: ""},
		envfile.Entry{Key: "email_password", Value: ""},
		envfile.Entry{Key: "enable_email_server", Value: "false"},
		envfile.Entry{Key: "save_images_to_db", Value: "true"},
		envfile.Entry{Key: "compreface_api_java_options", Value: "-Xmx4g"},
		envfile.Entry{Key: "compreface_admin_java_options", Value: "-Xmx1g"},
		envfile.Entry{Key: "max_file_size", Value: "5MB"},
		envfile.Entry{Key: "max_request_size", Value: "10M"},
		envfile.Entry{Key: "max_detect_size", Value: "640"},
		envfile.Entry{Key: "uwsgi_processes", Value: "2"},
		envfile.Entry{Key: "uwsgi_threads", Value: "1"},
		envfile.Entry{Key: "connection_timeout", Value: "10000"},
		envfile.Entry{Key: "read_timeout", Value: "60000"},
		envfile.Entry{Key: "ADMIN_VERSION", Value: version},
		envfile.Entry{Key: "API_VERSION", Value: version},
		envfile.Entry{Key: "FE_VERSION", Value: version},
		envfile.Entry{Key: "CORE_VERSION", Value: version},
		envfile.Entry{Key: "POSTGRES_VERSION", Value: version},
	)
}
