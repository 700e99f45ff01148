package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// searchPaths returns the ordered list of config file locations to try.
func searchPaths() []string {
	paths := []string{
		"/etc/oibench/oibench.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "oibench", "oibench.yaml"))
	}

	paths = append(paths, "oibench.yaml")

	if envPath := os.Getenv("OIBENCH_CONFIG"); envPath != "" {
		paths = append(paths, envPath)
	}

	return paths
}

// Load reads configuration from YAML files and environment variables.
// Files are loaded in order (each overrides the previous):
// /etc/oibench/oibench.yaml < ~/.config/oibench/oibench.yaml < ./oibench.yaml < $OIBENCH_CONFIG
func Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range searchPaths() {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	return finish(cfg)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	cfg := Defaults()

	if err := loadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables have higher priority than YAML config values.
func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv("OIBENCH_NGROK_AUTHTOKEN"); token != "" {
		cfg.Tunnel.AuthToken = token
	}
	if hash := os.Getenv("OIBENCH_TOKEN_HASH"); hash != "" {
		cfg.Server.TokenHash = hash
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config search paths
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	slog.Debug("loading config file", "path", path)

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if cfg.Server.Host == "0.0.0.0" {
		return errors.New("server.host must not be 0.0.0.0, oibench listens on localhost only (enable tunnel for remote observers)")
	}

	switch cfg.Execution.Runner {
	case RunnerFake:
	case RunnerCommand:
		if cfg.Execution.Program == "" {
			return errors.New("execution.program is required for the command runner")
		}
	default:
		return fmt.Errorf("execution.runner must be %q or %q, got %q", RunnerFake, RunnerCommand, cfg.Execution.Runner)
	}

	if cfg.Execution.Workers < 0 {
		return fmt.Errorf("execution.workers must not be negative, got %d", cfg.Execution.Workers)
	}
	if cfg.Execution.Workers == 0 {
		cfg.Execution.Workers = runtime.NumCPU()
	}

	if cfg.Execution.TaskTimeout < 0 {
		return errors.New("execution.task_timeout must not be negative")
	}

	if cfg.Tasks.Limit < 0 {
		return fmt.Errorf("tasks.limit must not be negative, got %d", cfg.Tasks.Limit)
	}

	cfg.Database.Path = ExpandHome(cfg.Database.Path)
	cfg.Execution.WorkDir = ExpandHome(cfg.Execution.WorkDir)
	cfg.Server.SecretDir = ExpandHome(cfg.Server.SecretDir)
	cfg.Server.LogFile = ExpandHome(cfg.Server.LogFile)

	return nil
}
