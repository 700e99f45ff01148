package main

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/mark3labs/mcp-go/server"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/btouchard/oibench/internal/auth"
	"github.com/btouchard/oibench/internal/batch"
	"github.com/btouchard/oibench/internal/config"
	"github.com/btouchard/oibench/internal/executor"
	"github.com/btouchard/oibench/internal/metrics"
	oimcp "github.com/btouchard/oibench/internal/mcp"
	"github.com/btouchard/oibench/internal/notify"
	"github.com/btouchard/oibench/internal/pool"
	observer "github.com/btouchard/oibench/internal/server"
	"github.com/btouchard/oibench/internal/store"
	"github.com/btouchard/oibench/internal/task"
	"github.com/btouchard/oibench/internal/tunnel"
)

func run(ctx context.Context, cfg *config.Config, out string) error {
	tasks, instructions, err := loadTasks(cfg)
	if err != nil {
		return fmt.Errorf("loading tasks: %w", err)
	}

	b, err := batch.New("", tasks, cfg.Command.WithCustomInstructions(instructions))
	if err != nil {
		return fmt.Errorf("creating batch: %w", err)
	}
	slog.Info("batch created", "batch_id", b.ID(), "tasks", b.Len())

	// --- SQLite Store ---
	var db *store.SQLiteStore
	if cfg.Database.Enabled {
		db, err = store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() { _ = db.Close() }()
		slog.Info("database opened", "path", cfg.Database.Path)

		if err := db.CreateBatch(ctx, &store.BatchRecord{
			ID:        b.ID(),
			Command:   b.Command(),
			TaskCount: b.Len(),
			CreatedAt: b.CreatedAt(),
		}); err != nil {
			return fmt.Errorf("recording batch: %w", err)
		}
	}

	// --- Coordinator ---
	opts := []pool.Option{pool.WithTaskTimeout(cfg.Execution.TaskTimeout)}
	if db != nil {
		opts = append(opts, pool.WithResultSink(db))
	}

	var reg *prom.Registry
	if cfg.Server.Enabled && cfg.Server.Metrics {
		reg = prom.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		collector, err := metrics.New("oibench", reg)
		if err != nil {
			return fmt.Errorf("creating metrics: %w", err)
		}
		collector.Track(b)
		opts = append(opts, pool.WithHooks(collector.Hook))
	}
	coord := pool.NewCoordinator(newExecutor(cfg), cfg.Execution.Workers, opts...)

	// --- Notifications ---
	var notifiers []notify.Notifier
	var mcpServer *server.MCPServer
	if cfg.Server.Enabled {
		mcpServer = oimcp.NewServer(&oimcp.Deps{Batch: b, Version: version})
		notifiers = append(notifiers, notify.NewMCPNotifier(mcpServer, 3*time.Second))
	}
	if db != nil {
		notifiers = append(notifiers, notify.NewEventRecorder(db))
	}

	followDone := make(chan error, 1)
	if hub := notify.NewHub(notifiers...); hub.Len() > 0 {
		follower, err := notify.NewFollower(b.Updates(), b.ID(), hub)
		if err != nil {
			return fmt.Errorf("following updates: %w", err)
		}
		go func() { followDone <- follower.Run(context.WithoutCancel(ctx)) }()
	} else {
		followDone <- nil
	}

	// --- Observer Server ---
	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	serverDone := make(chan error, 1)
	if cfg.Server.Enabled {
		if err := startObserver(serverCtx, cfg, b, mcpServer, reg, serverDone); err != nil {
			return err
		}
	} else {
		serverDone <- nil
	}

	results := coord.Run(ctx, b)

	if err := <-followDone; err != nil {
		slog.Warn("update follower stopped early", "error", err)
	}

	if db != nil {
		if err := db.FinishBatch(context.WithoutCancel(ctx), b.ID(), time.Now()); err != nil {
			slog.Warn("recording batch completion failed", "batch_id", b.ID(), "error", err)
		}
	}

	logSummary(b.ID(), results)

	if err := writeResults(out, results); err != nil {
		return err
	}

	if cfg.Server.Enabled && cfg.Server.KeepAlive && ctx.Err() == nil {
		slog.Info("batch finished, observer server kept alive until interrupted")
		<-ctx.Done()
	}

	stopServer()
	if err := <-serverDone; err != nil {
		return fmt.Errorf("observer server: %w", err)
	}
	return nil
}

func newExecutor(cfg *config.Config) executor.Executor {
	if cfg.Execution.Runner == config.RunnerCommand {
		return &executor.CommandExecutor{
			Program: cfg.Execution.Program,
			Args:    cfg.Execution.Args,
			WorkDir: cfg.Execution.WorkDir,
			Env:     cfg.Execution.Env,
		}
	}
	return &executor.FakeExecutor{Delay: cfg.Execution.FakeDelay}
}

// startObserver opens the endpoint and serves b on it until ctx ends. The
// serve error is delivered on done.
func startObserver(ctx context.Context, cfg *config.Config, b *batch.Batch, mcpServer *server.MCPServer, reg *prom.Registry, done chan<- error) error {
	validator, err := controlValidator(cfg)
	if err != nil {
		return err
	}

	var ep tunnel.Endpoint = tunnel.NewLocal(cfg.Addr())
	if cfg.Tunnel.Enabled {
		ep = tunnel.NewNgrok(cfg.Tunnel.AuthToken, cfg.Tunnel.Domain)
	}

	ln, err := ep.Listen(ctx)
	if err != nil {
		return fmt.Errorf("opening observer endpoint: %w", err)
	}

	var metricsHandler http.Handler
	if reg != nil {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	srv := observer.New(b, observer.Options{
		Validator:         validator,
		MCP:               server.NewStreamableHTTPServer(mcpServer),
		Metrics:           metricsHandler,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
		OriginPatterns:    cfg.Server.OriginPatterns,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
	})

	slog.Info("observer server is ready", "url", ep.URL(), "batch_id", b.ID())

	go func() {
		err := srv.Run(ctx, ln)
		if cerr := ep.Close(); cerr != nil {
			slog.Debug("closing observer endpoint", "error", cerr)
		}
		done <- err
	}()
	return nil
}

func controlValidator(cfg *config.Config) (*auth.TokenValidator, error) {
	if cfg.Server.TokenHash != "" {
		v, err := auth.NewTokenValidator(cfg.Server.TokenHash)
		if err != nil {
			return nil, fmt.Errorf("server.token_hash: %w", err)
		}
		return v, nil
	}

	token, err := auth.LoadOrCreateToken(cfg.Server.SecretDir)
	if err != nil {
		return nil, fmt.Errorf("loading control token: %w", err)
	}
	slog.Info("control token loaded", "dir", cfg.Server.SecretDir)
	return auth.NewTokenValidatorForToken(token), nil
}

func logSummary(batchID string, results []task.Result) {
	counts := make(map[task.Status]int)
	for _, r := range results {
		counts[r.Status]++
	}
	slog.Info("batch summary",
		"batch_id", batchID,
		"total", len(results),
		"correct", counts[task.StatusCorrect],
		"incorrect", counts[task.StatusIncorrect],
		"unknown", counts[task.StatusUnknown],
		"error", counts[task.StatusError])
}

// writeResults writes results sorted by task id as indented JSON.
func writeResults(path string, results []task.Result) error {
	sorted := slices.Clone(results)
	slices.SortFunc(sorted, func(a, b task.Result) int {
		return cmp.Compare(a.TaskID, b.TaskID)
	})

	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	slog.Info("results written", "path", path, "count", len(sorted))
	return nil
}
