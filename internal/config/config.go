package config

import (
	"net"
	"strconv"
	"time"

	"github.com/btouchard/oibench/internal/task"
)

// Config is the root configuration for oibench.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Execution ExecutionConfig `yaml:"execution"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Command   task.Command    `yaml:"command"`
	Tunnel    TunnelConfig    `yaml:"tunnel"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	LogLevel        string        `yaml:"log_level"`
	LogFile         string        `yaml:"log_file"`
	KeepAlive       bool          `yaml:"keep_alive"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TokenHash       string        `yaml:"token_hash"`
	SecretDir       string        `yaml:"secret_dir"`
	OriginPatterns  []string      `yaml:"origin_patterns"`
	Metrics         bool          `yaml:"metrics"`
}

type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type ExecutionConfig struct {
	Runner      string            `yaml:"runner"`
	Program     string            `yaml:"program"`
	Args        []string          `yaml:"args"`
	WorkDir     string            `yaml:"work_dir"`
	Workers     int               `yaml:"workers"`
	TaskTimeout time.Duration     `yaml:"task_timeout"`
	FakeDelay   time.Duration     `yaml:"fake_delay"`
	Env         map[string]string `yaml:"env"`
}

type TasksConfig struct {
	File  string   `yaml:"file"`
	IDs   []string `yaml:"ids"`
	Limit int      `yaml:"limit"`
}

type TunnelConfig struct {
	Enabled   bool   `yaml:"enabled"`
	AuthToken string `yaml:"authtoken"`
	Domain    string `yaml:"domain"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// Runner kinds accepted in execution.runner.
const (
	RunnerFake    = "fake"
	RunnerCommand = "command"
)

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled:         false,
			Host:            "127.0.0.1",
			Port:            8421,
			LogLevel:        "info",
			ShutdownTimeout: 10 * time.Second,
			SecretDir:       "~/.config/oibench",
			Metrics:         true,
		},
		Database: DatabaseConfig{
			Enabled: true,
			Path:    "~/.config/oibench/oibench.db",
		},
		Execution: ExecutionConfig{
			Runner:      RunnerFake,
			WorkDir:     "~/.config/oibench/work",
			Workers:     0, // one per CPU
			TaskTimeout: 30 * time.Minute,
		},
		Tasks: TasksConfig{
			File: "tasks.yaml",
		},
		Command: task.Command{
			AutoRun: true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 200,
			Burst:             100,
		},
	}
}

// Addr returns the host:port the local observer server binds to.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
