package export

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abdullah0297445/clickup-exporter/internal/clickup"
)

type fakeAPI struct {
	mu sync.Mutex

	spaces      []clickup.Space
	spaceLists  map[string][]clickup.List
	folderLists map[string][]clickup.List
	tasks       map[string][]clickup.Task
	timeEntries map[string][]clickup.TimeEntry

	tasksErr error

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	timeEntryCalls []string
}

func (f *fakeAPI) Spaces(ctx context.Context, teamID string) ([]clickup.Space, error) {
	return f.spaces, nil
}

func (f *fakeAPI) ListsForSpace(ctx context.Context, spaceID string) ([]clickup.List, error) {
	return f.spaceLists[spaceID], nil
}

func (f *fakeAPI) FolderLists(ctx context.Context, spaceID string) ([]clickup.List, error) {
	return f.folderLists[spaceID], nil
}

func (f *fakeAPI) ListTasks(ctx context.Context, listID string) ([]clickup.Task, error) {
	if f.tasksErr != nil {
		return nil, f.tasksErr
	}
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxInFlight.Load()
		if n <= max || f.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}
	return f.tasks[listID], nil
}

func (f *fakeAPI) TimeEntries(ctx context.Context, teamID, listID string, assigneeIDs []string, startMS, endMS int64) ([]clickup.TimeEntry, error) {
	f.mu.Lock()
	f.timeEntryCalls = append(f.timeEntryCalls, listID)
	f.mu.Unlock()
	return f.timeEntries[listID], nil
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		spaces: []clickup.Space{
			{
				ID:   "s1",
				Name: "Dev",
				Members: []clickup.Member{
					{User: clickup.User{ID: "1", Username: "ann"}},
					{User: clickup.User{ID: "2", Username: "bob"}},
				},
			},
		},
		spaceLists: map[string][]clickup.List{
			"s1": {
				{ID: "l1", Name: "Backlog", Space: &clickup.ListSpace{ID: "s1", Name: "Dev"}},
			},
		},
		folderLists: map[string][]clickup.List{
			"s1": {
				{ID: "l2", Name: "Sprint", Space: &clickup.ListSpace{ID: "s1", Name: "Dev"}},
				// duplicate of the folderless list, must be dropped
				{ID: "l1", Name: "Backlog", Space: &clickup.ListSpace{ID: "s1", Name: "Dev"}},
			},
		},
		tasks: map[string][]clickup.Task{
			"l1": {
				{"id": "t1", "name": "fix login", "space": map[string]any{"id": "s1"}},
			},
			"l2": {
				{"id": "t2", "name": "ship export", "space": map[string]any{"id": "s1"}},
			},
		},
		timeEntries: map[string][]clickup.TimeEntry{
			"l1": {entry("t1", "1", "ann", 3600000, true)},
		},
	}
}

func TestRunAttachesTimeSummaries(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	exporter := New(api, Config{Concurrency: 2})

	tasks, err := exporter.Run(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	byID := map[string]clickup.Task{}
	for _, task := range tasks {
		byID[task.ID()] = task
	}

	summary, ok := byID["t1"]["time_summary"].([]AssigneeTime)
	require.True(t, ok, "t1 time_summary type")
	require.Len(t, summary, 1)
	assert.Equal(t, "ann", summary[0].AssigneeName)
	assert.Equal(t, int64(3600000), summary[0].BillableMS)

	empty, ok := byID["t2"]["time_summary"].([]AssigneeTime)
	require.True(t, ok, "t2 time_summary type")
	assert.Empty(t, empty, "tasks without entries get an empty summary")
}

func TestRunDedupesLists(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	exporter := New(api, Config{})

	_, err := exporter.Run(context.Background(), "42")
	require.NoError(t, err)

	// l1 appears both folderless and inside a folder; one fetch each.
	assert.ElementsMatch(t, []string{"l1", "l2"}, api.timeEntryCalls)
}

func TestRunStampsSpaceName(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	exporter := New(api, Config{})

	tasks, err := exporter.Run(context.Background(), "42")
	require.NoError(t, err)

	for _, task := range tasks {
		spaceRef, ok := task["space"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Dev", spaceRef["name"])
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	// Many lists, limit of 1: never more than one in flight.
	lists := make([]clickup.List, 0, 8)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		lists = append(lists, clickup.List{ID: clickup.ID(id)})
	}
	api.spaceLists["s1"] = lists
	api.folderLists["s1"] = nil

	exporter := New(api, Config{Concurrency: 1})
	_, err := exporter.Run(context.Background(), "42")
	require.NoError(t, err)
	assert.LessOrEqual(t, api.maxInFlight.Load(), int32(1))
}

func TestRunPropagatesListError(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.tasksErr = errors.New("boom")

	exporter := New(api, Config{})
	_, err := exporter.Run(context.Background(), "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRunRejectsEmptyTeam(t *testing.T) {
	t.Parallel()

	exporter := New(newFakeAPI(), Config{})
	_, err := exporter.Run(context.Background(), "")
	require.Error(t, err)
}
