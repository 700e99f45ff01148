package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/btouchard/oibench/internal/config"
	"github.com/btouchard/oibench/internal/task"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "results":
		cmdResults(os.Args[2:])
	case "check":
		cmdCheck(os.Args[2:])
	case "version":
		fmt.Printf("oibench %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: oibench <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run       Run a benchmark batch\n")
	fmt.Fprintf(os.Stderr, "  results   List stored batches or the results of one batch\n")
	fmt.Fprintf(os.Stderr, "  check     Validate configuration and task selection\n")
	fmt.Fprintf(os.Stderr, "  version   Print version\n")
}

type runFlags struct {
	configPath string
	tasksFile  string
	workers    int
	serve      bool
	ids        string
	limit      int
	out        string
}

func cmdRun(args []string) {
	var f runFlags
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.StringVar(&f.configPath, "config", "", "path to config file")
	fs.StringVar(&f.tasksFile, "tasks", "", "task file (overrides tasks.file)")
	fs.IntVar(&f.workers, "workers", 0, "worker count (overrides execution.workers)")
	fs.BoolVar(&f.serve, "serve", false, "start the observer server")
	fs.StringVar(&f.ids, "ids", "", "comma-separated task ids to run")
	fs.IntVar(&f.limit, "limit", 0, "run at most N tasks")
	fs.StringVar(&f.out, "out", "results.json", `results file, "-" for stdout`)
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	applyRunFlags(cfg, f)

	setupLogging(cfg, logOutput(f.out))

	slog.Info("starting oibench",
		"version", version,
		"runner", cfg.Execution.Runner,
		"workers", cfg.Execution.Workers,
		"serve", cfg.Server.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// A second signal kills the process.
	go func() {
		<-ctx.Done()
		stop()
		slog.Warn("interrupt received, waiting for running tasks (interrupt again to abort)")
	}()

	if err := run(ctx, cfg, f.out); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func applyRunFlags(cfg *config.Config, f runFlags) {
	if f.tasksFile != "" {
		cfg.Tasks.File = f.tasksFile
	}
	if f.workers > 0 {
		cfg.Execution.Workers = f.workers
	}
	if f.serve {
		cfg.Server.Enabled = true
	}
	if f.ids != "" {
		cfg.Tasks.IDs = splitIDs(f.ids)
	}
	if f.limit > 0 {
		cfg.Tasks.Limit = f.limit
	}
}

func splitIDs(s string) []string {
	var ids []string
	for id := range strings.SplitSeq(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	tasks, _, err := loadTasks(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "task error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("configuration is valid (%d tasks selected from %s)\n", len(tasks), cfg.Tasks.File)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// loadTasks reads the configured task file and applies the id filter and limit.
func loadTasks(cfg *config.Config) ([]task.Task, string, error) {
	if cfg.Tasks.File == "" {
		return nil, "", errors.New("no task file configured (tasks.file or -tasks)")
	}
	src, err := task.LoadFile(cfg.Tasks.File)
	if err != nil {
		return nil, "", err
	}
	tasks, err := task.LoadAll(src, task.Chain{
		task.IDFilter(cfg.Tasks.IDs),
		task.Limit(cfg.Tasks.Limit),
	})
	if err != nil {
		return nil, "", err
	}
	return tasks, src.CustomInstructions(), nil
}

// logOutput keeps stdout free for the results when they are written there.
func logOutput(out string) *os.File {
	if out == "-" {
		return os.Stderr
	}
	return os.Stdout
}

func setupLogging(cfg *config.Config, console io.Writer) {
	var level slog.Level
	switch cfg.Server.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlers := []slog.Handler{
		slog.NewJSONHandler(console, &slog.HandlerOptions{Level: level}),
	}

	if cfg.Server.LogFile != "" {
		f, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			slog.Warn("failed to open log file, using console only", "path", cfg.Server.LogFile, "error", err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		}
	}

	logger := slog.New(slog.NewMultiHandler(handlers...))
	slog.SetDefault(logger)
}
