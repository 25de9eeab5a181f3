// Package export implements the ClickUp export pipeline: workspace
// traversal, bounded-concurrency per-list fetching, and time-entry
// aggregation.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Abdullah0297445/clickup-exporter/internal/clickup"
	"github.com/Abdullah0297445/clickup-exporter/internal/logging"
)

const defaultConcurrency = 5

// DefaultTimeEntriesStartMS is the fixed lower bound of the
// time-entry window: 2025-01-01 (epoch milliseconds).
const DefaultTimeEntriesStartMS int64 = 1735671600000

// API is the ClickUp surface the pipeline consumes.
type API interface {
	Spaces(ctx context.Context, teamID string) ([]clickup.Space, error)
	ListsForSpace(ctx context.Context, spaceID string) ([]clickup.List, error)
	FolderLists(ctx context.Context, spaceID string) ([]clickup.List, error)
	ListTasks(ctx context.Context, listID string) ([]clickup.Task, error)
	TimeEntries(ctx context.Context, teamID, listID string, assigneeIDs []string, startMS, endMS int64) ([]clickup.TimeEntry, error)
}

// Config holds pipeline tuning knobs.
type Config struct {
	Concurrency      int   // max lists in flight
	TimeEntriesStart int64 // window lower bound, epoch ms
	Logger           *slog.Logger
}

// Exporter runs one full workspace export per Run call.
type Exporter struct {
	api              API
	concurrency      int
	timeEntriesStart int64
	logger           *slog.Logger
	now              func() time.Time
}

// New creates an exporter over the given API.
func New(api API, cfg Config) *Exporter {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.TimeEntriesStart <= 0 {
		cfg.TimeEntriesStart = DefaultTimeEntriesStartMS
	}
	return &Exporter{
		api:              api,
		concurrency:      cfg.Concurrency,
		timeEntriesStart: cfg.TimeEntriesStart,
		logger:           logging.Component(cfg.Logger, "export_pipeline"),
		now:              time.Now,
	}
}

// Run exports every task of the team, annotated with a time_summary
// rollup. Lists are processed concurrently up to the configured
// limit; pagination inside a list stays sequential.
func (e *Exporter) Run(ctx context.Context, teamID string) ([]clickup.Task, error) {
	if teamID == "" {
		return nil, fmt.Errorf("export: team id is empty")
	}
	ctx = logging.WithLogger(ctx, e.logger)

	spaces, err := e.api.Spaces(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("export: fetch spaces: %w", err)
	}

	var memberIDs []string
	for _, space := range spaces {
		for _, member := range space.Members {
			memberIDs = append(memberIDs, member.User.ID.String())
		}
	}

	lists, err := e.collectLists(ctx, spaces)
	if err != nil {
		return nil, err
	}

	logging.Operation(e.logger, "export_lists_resolved",
		slog.Int("spaces", len(spaces)),
		slog.Int("lists", len(lists)),
		slog.Int("members", len(memberIDs)))

	endMS := e.now().UnixMilli()

	var (
		mu         sync.Mutex
		allTasks   []clickup.Task
		allEntries []clickup.TimeEntry
	)

	sem := semaphore.NewWeighted(int64(e.concurrency))
	g, gctx := errgroup.WithContext(ctx)
	for _, list := range lists {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			tasks, entries, err := e.processList(gctx, teamID, list, memberIDs, endMS)
			if err != nil {
				return err
			}

			mu.Lock()
			allTasks = append(allTasks, tasks...)
			allEntries = append(allEntries, entries...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := aggregateTimeEntries(allEntries)
	for _, task := range allTasks {
		ts, ok := summary[task.ID()]
		if !ok {
			ts = []AssigneeTime{}
		}
		task["time_summary"] = ts
	}

	logging.Operation(e.logger, "export_complete",
		slog.Int("tasks", len(allTasks)),
		slog.Int("time_entries", len(allEntries)))

	return allTasks, nil
}

// collectLists gathers folderless and folder-nested lists of every
// space concurrently and dedupes them by ID, keeping first wins.
func (e *Exporter) collectLists(ctx context.Context, spaces []clickup.Space) ([]clickup.List, error) {
	var (
		mu          sync.Mutex
		spaceLists  []clickup.List
		folderLists []clickup.List
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, space := range spaces {
		spaceID := space.ID.String()
		g.Go(func() error {
			lists, err := e.api.ListsForSpace(gctx, spaceID)
			if err != nil {
				return fmt.Errorf("export: lists for space %s: %w", spaceID, err)
			}
			mu.Lock()
			spaceLists = append(spaceLists, lists...)
			mu.Unlock()
			return nil
		})
		g.Go(func() error {
			lists, err := e.api.FolderLists(gctx, spaceID)
			if err != nil {
				return fmt.Errorf("export: folder lists for space %s: %w", spaceID, err)
			}
			mu.Lock()
			folderLists = append(folderLists, lists...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	deduped := make([]clickup.List, 0, len(spaceLists)+len(folderLists))
	for _, list := range append(spaceLists, folderLists...) {
		id := list.ID.String()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		deduped = append(deduped, list)
	}
	return deduped, nil
}

// processList fetches a list's tasks and time entries. Tasks get the
// list's space name stamped over their own space reference, matching
// what downstream consumers expect.
func (e *Exporter) processList(ctx context.Context, teamID string, list clickup.List, memberIDs []string, endMS int64) ([]clickup.Task, []clickup.TimeEntry, error) {
	listID := list.ID.String()

	tasks, err := e.api.ListTasks(ctx, listID)
	if err != nil {
		return nil, nil, fmt.Errorf("export: tasks for list %s: %w", listID, err)
	}

	if list.Space != nil && list.Space.Name != "" {
		for _, task := range tasks {
			if spaceRef, ok := task["space"].(map[string]any); ok {
				spaceRef["name"] = list.Space.Name
			}
		}
	}

	entries, err := e.api.TimeEntries(ctx, teamID, listID, memberIDs, e.timeEntriesStart, endMS)
	if err != nil {
		return nil, nil, fmt.Errorf("export: time entries for list %s: %w", listID, err)
	}

	logging.FromContext(ctx).Debug("list processed",
		slog.String("list_id", listID),
		slog.Int("tasks", len(tasks)),
		slog.Int("time_entries", len(entries)))
	return tasks, entries, nil
}
