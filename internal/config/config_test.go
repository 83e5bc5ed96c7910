package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadFromDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadFrom(dir, envMap(nil))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Home != dir {
		t.Errorf("Home = %q, want %q", cfg.Home, dir)
	}
	if cfg.APIKey != "" || cfg.BaseURL != "" {
		t.Errorf("credentials should be empty without env, got key=%q url=%q", cfg.APIKey, cfg.BaseURL)
	}
	if cfg.API.Port != 5000 {
		t.Errorf("API.Port = %d, want 5000", cfg.API.Port)
	}
	if cfg.API.ContainerName != "face-api" {
		t.Errorf("API.ContainerName = %q, want face-api", cfg.API.ContainerName)
	}
	if cfg.Health.Budget != 60*time.Second {
		t.Errorf("Health.Budget = %v, want 60s", cfg.Health.Budget)
	}
	if cfg.CompreFace.Repo != DefaultComprefaceRepo {
		t.Errorf("CompreFace.Repo = %q", cfg.CompreFace.Repo)
	}
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	env := map[string]string{
		EnvAPIKey:         "00000000-1111-2222-3333-444444444444",
		EnvBaseURL:        "http://localhost:8000",
		EnvPort:           "5050",
		EnvWorkers:        "3",
		EnvProbeTimeout:   "2s",
		EnvHealthInterval: "500ms",
		EnvHealthTimeout:  "90s",
		EnvImage:          "registry.local/face-api:1.0",
	}

	cfg, err := LoadFrom(dir, envMap(env))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.APIKey != env[EnvAPIKey] {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.BaseURL != "http://localhost:8000" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.API.Port != 5050 {
		t.Errorf("API.Port = %d, want 5050", cfg.API.Port)
	}
	if cfg.API.Workers != 3 {
		t.Errorf("API.Workers = %d, want 3", cfg.API.Workers)
	}
	if cfg.Probe.Timeout != 2*time.Second {
		t.Errorf("Probe.Timeout = %v", cfg.Probe.Timeout)
	}
	if cfg.Health.InitialInterval != 500*time.Millisecond {
		t.Errorf("Health.InitialInterval = %v", cfg.Health.InitialInterval)
	}
	if cfg.Health.Budget != 90*time.Second {
		t.Errorf("Health.Budget = %v", cfg.Health.Budget)
	}
	if cfg.API.Image != "registry.local/face-api:1.0" {
		t.Errorf("API.Image = %q", cfg.API.Image)
	}
	if got := cfg.LocalURL(); got != "http://localhost:5050" {
		t.Errorf("LocalURL() = %q", got)
	}
}

func TestLoadFromHomeOverride(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()

	cfg, err := LoadFrom(dir, envMap(map[string]string{EnvHome: other}))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Home != other {
		t.Errorf("Home = %q, want %q", cfg.Home, other)
	}
	if want := filepath.Join(other, "face-api.env"); cfg.RecordPath() != want {
		t.Errorf("RecordPath() = %q, want %q", cfg.RecordPath(), want)
	}
	if want := filepath.Join(other, "compreface", ".env"); cfg.ComprefaceEnvPath() != want {
		t.Errorf("ComprefaceEnvPath() = %q, want %q", cfg.ComprefaceEnvPath(), want)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	content := `
home: /somewhere/else
compreface:
  version: 1.1.0
api:
  port: 6000
  memory_mb: 1024
health:
  initial_interval: 2s
  max_interval: 10s
  budget: 2m
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(dir, envMap(map[string]string{EnvPort: "7000"}))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Home != dir {
		t.Errorf("Home = %q, config file must not relocate home", cfg.Home)
	}
	if cfg.CompreFace.Version != "1.1.0" {
		t.Errorf("CompreFace.Version = %q", cfg.CompreFace.Version)
	}
	if cfg.API.Port != 7000 {
		t.Errorf("API.Port = %d, env should win over file", cfg.API.Port)
	}
	if cfg.API.MemoryMB != 1024 {
		t.Errorf("API.MemoryMB = %d", cfg.API.MemoryMB)
	}
	if cfg.Health.Budget != 2*time.Minute {
		t.Errorf("Health.Budget = %v", cfg.Health.Budget)
	}
	if cfg.API.Image != "face-api:latest" {
		t.Errorf("API.Image = %q, defaults should survive partial files", cfg.API.Image)
	}
}

func TestLoadFromInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"port not integer", map[string]string{EnvPort: "http"}, EnvPort},
		{"port out of range", map[string]string{EnvPort: "70000"}, "Port"},
		{"negative workers", map[string]string{EnvWorkers: "-1"}, "Workers"},
		{"bad duration", map[string]string{EnvProbeTimeout: "soon"}, EnvProbeTimeout},
		{"zero budget", map[string]string{EnvHealthTimeout: "0s"}, "Budget"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(t.TempDir(), envMap(tt.env))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadFromMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("api: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(dir, envMap(nil)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestHealthMaxIntervalFollowsInitial(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir(), envMap(map[string]string{EnvHealthInterval: "30s"}))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Health.MaxInterval != 30*time.Second {
		t.Errorf("MaxInterval = %v, want raised to 30s", cfg.Health.MaxInterval)
	}
}
