// Package config loads facedeploy settings once at startup.
//
// Settings come from built-in defaults, ~/.facedeploy/config.yaml, an optional
// .env file in the working directory, and environment variables, in increasing
// order of precedence. Nothing outside this package reads the environment; the
// resulting Settings value is passed explicitly to each deployment step.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvAPIKey            = "COMPRE_FACE_API_KEY"
	EnvBaseURL           = "COMPRE_FACE_URL"
	EnvHome              = "FACEDEPLOY_HOME"
	EnvComprefaceRepo    = "FACEDEPLOY_COMPREFACE_REPO"
	EnvComprefaceVersion = "FACEDEPLOY_COMPREFACE_VERSION"
	EnvAPIDir            = "FACEDEPLOY_API_DIR"
	EnvImage             = "FACEDEPLOY_IMAGE"
	EnvContainer         = "FACEDEPLOY_CONTAINER"
	EnvPort              = "FACEDEPLOY_PORT"
	EnvMemoryMB          = "FACEDEPLOY_MEMORY_MB"
	EnvWorkers           = "FACEDEPLOY_WORKERS"
	EnvProbeTimeout      = "FACEDEPLOY_PROBE_TIMEOUT"
	EnvHealthInterval    = "FACEDEPLOY_HEALTH_INTERVAL"
	EnvHealthTimeout     = "FACEDEPLOY_HEALTH_TIMEOUT"
)

// DefaultComprefaceRepo is the upstream CompreFace repository.
const DefaultComprefaceRepo = "https://github.com/exadel-inc/CompreFace.git"

// Settings holds everything a deployment needs.
type Settings struct {
	// APIKey and BaseURL are captured from the environment only. They may be
	// empty here; the operator is prompted for missing values later.
	APIKey  string `yaml:"-"`
	BaseURL string `yaml:"-"`

	Home       string           `yaml:"home" validate:"required"`
	CompreFace ComprefaceConfig `yaml:"compreface"`
	API        APIConfig        `yaml:"api"`
	Probe      ProbeConfig      `yaml:"probe"`
	Health     HealthConfig     `yaml:"health"`
	Debug      DebugConfig      `yaml:"debug"`
}

// ComprefaceConfig locates the CompreFace checkout.
type ComprefaceConfig struct {
	Repo    string `yaml:"repo" validate:"omitempty,url"`
	Version string `yaml:"version" validate:"required"`
}

// APIConfig describes the Face API wrapper container.
type APIConfig struct {
	ContextDir    string `yaml:"context_dir" validate:"required"`
	Image         string `yaml:"image" validate:"required"`
	ContainerName string `yaml:"container_name" validate:"required"`
	Port          int    `yaml:"port" validate:"min=1,max=65535"`
	MemoryMB      int    `yaml:"memory_mb" validate:"min=0"`
	Workers       int    `yaml:"workers" validate:"min=0"`
}

// ProbeConfig bounds the reachability probe.
type ProbeConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// HealthConfig controls the post-start health poll.
type HealthConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration `yaml:"max_interval" validate:"gtefield=InitialInterval"`
	Budget          time.Duration `yaml:"budget" validate:"gt=0"`
}

// DebugConfig holds debug log settings.
type DebugConfig struct {
	RetentionDays int `yaml:"retention_days" validate:"min=0"`
}

// Default returns the built-in defaults rooted at home.
func Default(home string) *Settings {
	return &Settings{
		Home: home,
		CompreFace: ComprefaceConfig{
			Repo:    DefaultComprefaceRepo,
			Version: "1.2.0",
		},
		API: APIConfig{
			ContextDir:    "api",
			Image:         "face-api:latest",
			ContainerName: "face-api",
			Port:          5000,
			MemoryMB:      512,
		},
		Probe: ProbeConfig{Timeout: 5 * time.Second},
		Health: HealthConfig{
			InitialInterval: time.Second,
			MaxInterval:     8 * time.Second,
			Budget:          60 * time.Second,
		},
		Debug: DebugConfig{RetentionDays: 14},
	}
}

// GlobalConfigDir returns the path to ~/.facedeploy.
func GlobalConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".facedeploy")
	}
	return filepath.Join(homeDir, ".facedeploy")
}

// Load reads settings from all sources. A .env file in the working directory
// is applied first without overriding variables that are already set.
func Load() (*Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return LoadFrom(GlobalConfigDir(), os.Getenv)
}

// LoadFrom builds settings using dir as the default home and getenv for
// environment lookups.
func LoadFrom(dir string, getenv func(string) string) (*Settings, error) {
	home := dir
	if v := getenv(EnvHome); v != "" {
		home = v
	}

	cfg := Default(home)

	configPath := filepath.Join(home, "config.yaml")
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", configPath, err)
		}
		// The file cannot relocate the directory it was read from.
		cfg.Home = home
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", configPath, err)
	}

	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Settings, getenv func(string) string) error {
	cfg.APIKey = getenv(EnvAPIKey)
	cfg.BaseURL = getenv(EnvBaseURL)

	setString(&cfg.CompreFace.Repo, getenv(EnvComprefaceRepo))
	setString(&cfg.CompreFace.Version, getenv(EnvComprefaceVersion))
	setString(&cfg.API.ContextDir, getenv(EnvAPIDir))
	setString(&cfg.API.Image, getenv(EnvImage))
	setString(&cfg.API.ContainerName, getenv(EnvContainer))

	ints := []struct {
		env string
		dst *int
	}{
		{EnvPort, &cfg.API.Port},
		{EnvMemoryMB, &cfg.API.MemoryMB},
		{EnvWorkers, &cfg.API.Workers},
	}
	for _, i := range ints {
		s := getenv(i.env)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", i.env, s)
		}
		*i.dst = n
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{EnvProbeTimeout, &cfg.Probe.Timeout},
		{EnvHealthInterval, &cfg.Health.InitialInterval},
		{EnvHealthTimeout, &cfg.Health.Budget},
	}
	for _, d := range durations {
		s := getenv(d.env)
		if s == "" {
			continue
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%s: %w", d.env, err)
		}
		*d.dst = v
	}
	if cfg.Health.MaxInterval < cfg.Health.InitialInterval {
		cfg.Health.MaxInterval = cfg.Health.InitialInterval
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

var validate = validator.New()

// Validate checks field constraints.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid setting %s: failed %q check (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// ComprefaceDir is the CompreFace checkout inside Home.
func (s *Settings) ComprefaceDir() string {
	return filepath.Join(s.Home, "compreface")
}

// ComprefaceEnvPath is the CompreFace environment file.
func (s *Settings) ComprefaceEnvPath() string {
	return filepath.Join(s.ComprefaceDir(), ".env")
}

// RecordPath is the generated Face API configuration record.
func (s *Settings) RecordPath() string {
	return filepath.Join(s.Home, "face-api.env")
}

// DebugDir is where debug logs are written.
func (s *Settings) DebugDir() string {
	return filepath.Join(s.Home, "debug")
}

// LocalURL is the wrapper's address on this host.
func (s *Settings) LocalURL() string {
	return fmt.Sprintf("http://localhost:%d", s.API.Port)
}
