package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Abdullah0297445/clickup-exporter/internal/cache"
	"github.com/Abdullah0297445/clickup-exporter/internal/clickup"
	"github.com/Abdullah0297445/clickup-exporter/internal/export"
	"github.com/Abdullah0297445/clickup-exporter/internal/httpserver"
	"github.com/Abdullah0297445/clickup-exporter/internal/logging"
	"github.com/Abdullah0297445/clickup-exporter/internal/scheduler"
	"github.com/Abdullah0297445/clickup-exporter/internal/snapshot"
)

// runServer wires the cache, export scheduler, snapshot manager and
// HTTP API together and blocks until shutdown.
func runServer(cfg appConfig) error {
	logger := logging.New(os.Stdout, parseLogLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid redis-url: %w", err)
	}
	store := cache.NewStore(redis.NewClient(opts), logger)
	defer store.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := store.Ping(pingCtx); err != nil {
		return fmt.Errorf("redis unreachable at %s: %w", cfg.RedisURL, err)
	}

	client := clickup.New(clickup.Config{
		Token:          cfg.ClickupToken,
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})

	exporter := export.New(client, export.Config{
		Concurrency:      cfg.Concurrency,
		TimeEntriesStart: cfg.TimeEntriesStart,
		Logger:           logger,
	})

	sched, err := scheduler.New(exporter, store, scheduler.Config{
		TeamID:   cfg.ClickupTeamID,
		Interval: cfg.ExportInterval,
		LockTTL:  cfg.RedisLockTTL,
		KeepLast: cfg.KeepLastNExports,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	snapshotManager, err := snapshot.NewManager(store, snapshot.Config{
		Enabled:        cfg.SnapshotEnabled,
		Interval:       cfg.SnapshotInterval,
		LocalDir:       cfg.SnapshotDir,
		KeepLast:       cfg.SnapshotKeepLast,
		TeamID:         cfg.ClickupTeamID,
		BucketURL:      cfg.SnapshotBucket,
		S3Endpoint:     cfg.S3Endpoint,
		S3Region:       cfg.S3Region,
		S3AccessKey:    cfg.S3AccessKey,
		S3SecretKey:    cfg.S3SecretKey,
		S3SessionToken: cfg.S3SessionToken,
		S3UseSSL:       cfg.S3UseSSL,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize snapshots: %w", err)
	}
	if snapshotManager != nil {
		defer snapshotManager.Stop()
	}

	apiServer := httpserver.NewServer(store, httpserver.Config{
		Addr:      cfg.APIAddr,
		TeamID:    cfg.ClickupTeamID,
		AuthToken: cfg.APIAuthToken,
		Logger:    logger,
	})
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	defer apiServer.Stop()

	sched.Start()
	defer sched.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	printStartupBanner(cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if err := g.Wait(); err != nil {
		logging.Error(logger, "server exited with error", err)
	}

	signal.Stop(sigCh)
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printStartupBanner(cfg appConfig) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	title := cyan.Bold(true).Render("  ClickUp Data Exporter")
	ver := dim.Render("v" + version)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, title+" "+ver)
	lines = append(lines, "")

	separator := dim.Render("  ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	lines = append(lines, bold.Render("  Service"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("  %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	lines = append(lines, fmt.Sprintf("  %s  Team           %s", check, cyan.Render(cfg.ClickupTeamID)))
	lines = append(lines, fmt.Sprintf("  %s  Interval       %s", check, dim.Render(cfg.ExportInterval.String())))
	lines = append(lines, "")

	lines = append(lines, bold.Render("  Storage"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("  %s  Redis          %s", check, dim.Render(cfg.RedisURL)))
	if cfg.SnapshotEnabled {
		lines = append(lines, fmt.Sprintf("  %s  Snapshots      %s", check, dim.Render(cfg.SnapshotDir)))
	} else {
		lines = append(lines, fmt.Sprintf("  %s  Snapshots      %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("  Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("  %s  Config File    %s", check, dim.Render(cfg.ConfigPath)))
	} else {
		lines = append(lines, fmt.Sprintf("  %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "  "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}
