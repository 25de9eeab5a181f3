// Package scheduler drives periodic export runs: lock acquisition,
// envelope persistence, job-level retry and version pruning.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/Abdullah0297445/clickup-exporter/internal/cache"
	"github.com/Abdullah0297445/clickup-exporter/internal/clickup"
	"github.com/Abdullah0297445/clickup-exporter/internal/logging"
)

const (
	defaultInterval   = 5 * time.Hour
	defaultLockTTL    = 30 * time.Minute
	defaultKeepLast   = 7
	defaultJobRetries = 5
	defaultJobBackoff = 5 * time.Second
)

// Pipeline produces one full export for a team.
type Pipeline interface {
	Run(ctx context.Context, teamID string) ([]clickup.Task, error)
}

// Store is the cache surface the scheduler needs.
type Store interface {
	Get(ctx context.Context, teamID, version string) (*cache.Envelope, error)
	Set(ctx context.Context, teamID, version string, env cache.Envelope) error
	Prune(ctx context.Context, teamID string, keepLast int) (int, error)
	AcquireLock(ctx context.Context, teamID string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, teamID string) error
}

// Config holds scheduler parameters.
type Config struct {
	TeamID     string
	Interval   time.Duration
	LockTTL    time.Duration
	KeepLast   int
	JobRetries int
	JobBackoff time.Duration
	Logger     *slog.Logger
}

// Scheduler owns the periodic export loop.
type Scheduler struct {
	pipeline Pipeline
	store    Store
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a scheduler. Start must be called to begin the loop.
func New(pipeline Pipeline, store Store, cfg Config) (*Scheduler, error) {
	if pipeline == nil || store == nil {
		return nil, fmt.Errorf("scheduler: nil pipeline or store")
	}
	if cfg.TeamID == "" {
		return nil, fmt.Errorf("scheduler: team id is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if cfg.JobRetries <= 0 {
		cfg.JobRetries = defaultJobRetries
	}
	if cfg.JobBackoff <= 0 {
		cfg.JobBackoff = defaultJobBackoff
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		pipeline: pipeline,
		store:    store,
		cfg:      cfg,
		logger:   logging.Component(cfg.Logger, "scheduler"),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// Start launches the loop: a catch-up run first, then ticks at the
// configured interval.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	if err := s.RunOnce(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error(s.logger, "startup export failed", err)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.RunOnce(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error(s.logger, "scheduled export failed", err)
			}
		case <-s.done:
			return
		}
	}
}

// Stop terminates the loop and waits for an in-flight run.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.cancel()
		s.wg.Wait()
	})
}

// RunOnce performs a single guarded export run. A run held by another
// process (lock busy) or an already-successful current version is a
// no-op.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	teamID := s.cfg.TeamID
	version := cache.VersionFor(s.now())

	got, err := s.store.AcquireLock(ctx, teamID, s.cfg.LockTTL)
	if err != nil {
		return err
	}
	if !got {
		logging.Operation(s.logger, "export_already_in_progress", slog.String("team_id", teamID))
		return nil
	}
	defer func() {
		// Release with a fresh context so shutdown cannot strand the lock.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.ReleaseLock(releaseCtx, teamID); err != nil {
			logging.Error(s.logger, "release export lock", err)
		}
	}()

	if env, err := s.store.Get(ctx, teamID, version); err != nil {
		return err
	} else if env != nil && env.Status == cache.StatusSuccess {
		logging.Operation(s.logger, "export_version_current", slog.String("version", version))
		return nil
	}

	started := s.now().UTC()
	if err := s.store.Set(ctx, teamID, version, cache.Envelope{
		Status:    cache.StatusInProgress,
		StartedAt: started.Format(time.RFC3339),
	}); err != nil {
		return err
	}

	logging.Operation(s.logger, "export_started",
		slog.String("team_id", teamID),
		slog.String("version", version))

	tasks, runErr := s.runWithRetry(ctx, teamID)
	if runErr != nil {
		env := cache.Envelope{
			Status:    cache.StatusError,
			Error:     runErr.Error(),
			UpdatedAt: s.now().UTC().Format(time.RFC3339),
		}
		var apiErr *clickup.APIError
		if errors.As(runErr, &apiErr) {
			env.StatusCode = apiErr.Status
		}
		if setErr := s.store.Set(ctx, teamID, version, env); setErr != nil {
			logging.Error(s.logger, "persist error envelope", setErr)
		}
		return runErr
	}

	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("scheduler: marshal export: %w", err)
	}
	if err := s.store.Set(ctx, teamID, version, cache.Envelope{
		Status:    cache.StatusSuccess,
		Data:      data,
		UpdatedAt: s.now().UTC().Format(time.RFC3339),
	}); err != nil {
		return err
	}

	logging.Operation(s.logger, "export_stored",
		slog.String("version", version),
		slog.Int("tasks", len(tasks)),
		slog.Duration("elapsed", s.now().UTC().Sub(started)))

	if _, err := s.store.Prune(ctx, teamID, s.cfg.KeepLast); err != nil {
		logging.Error(s.logger, "prune old exports", err)
	}
	return nil
}

// runWithRetry retries the full pipeline with doubling backoff and
// jitter. Request-level retries live in the ClickUp client; this
// guards against whole-run failures.
func (s *Scheduler) runWithRetry(ctx context.Context, teamID string) ([]clickup.Task, error) {
	backoff := s.cfg.JobBackoff
	var lastErr error

	for attempt := 1; attempt <= s.cfg.JobRetries; attempt++ {
		tasks, err := s.pipeline.Run(ctx, teamID)
		if err == nil {
			return tasks, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}
		// 4xx from the API (bad token, rate limit already retried at
		// request level) will not improve on a rerun.
		var apiErr *clickup.APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			return nil, err
		}
		if attempt == s.cfg.JobRetries {
			break
		}

		wait := backoff/2 + time.Duration(rand.Int63n(int64(backoff/2)+1))
		logging.Error(s.logger, "export attempt failed", err,
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", wait))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("scheduler: export failed after %d attempts: %w", s.cfg.JobRetries, lastErr)
}
