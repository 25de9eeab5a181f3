package export

import (
	"math"

	"github.com/Abdullah0297445/clickup-exporter/internal/clickup"
)

// AssigneeTime is the per-assignee time rollup attached to tasks.
type AssigneeTime struct {
	AssigneeID       string  `json:"assignee_id"`
	AssigneeName     string  `json:"assignee_name"`
	BillableMS       int64   `json:"billable_ms"`
	NonBillableMS    int64   `json:"non_billable_ms"`
	BillableHours    float64 `json:"billable_hours"`
	NonBillableHours float64 `json:"non_billable_hours"`
}

func msToHours(ms int64) float64 {
	hours := (float64(ms) / 1000.0) / 3600.0
	return math.Round(hours*10000) / 10000
}

type assigneeBucket struct {
	name          string
	billableMS    int64
	nonBillableMS int64
}

type taskBucket struct {
	order      []string
	byAssignee map[string]*assigneeBucket
}

// aggregateTimeEntries rolls up tracked time per task and assignee
// with a billable / non-billable split. Entries without a task
// reference are skipped. Assignee order follows first appearance.
func aggregateTimeEntries(entries []clickup.TimeEntry) map[string][]AssigneeTime {
	buckets := make(map[string]*taskBucket)
	taskOrder := make([]string, 0)

	for _, entry := range entries {
		if entry.Task == nil || entry.Task.ID == "" {
			continue
		}
		taskID := entry.Task.ID.String()
		tb, ok := buckets[taskID]
		if !ok {
			tb = &taskBucket{byAssignee: make(map[string]*assigneeBucket)}
			buckets[taskID] = tb
			taskOrder = append(taskOrder, taskID)
		}

		assigneeID := entry.User.ID.String()
		ab, ok := tb.byAssignee[assigneeID]
		if !ok {
			ab = &assigneeBucket{name: entry.User.Username}
			tb.byAssignee[assigneeID] = ab
			tb.order = append(tb.order, assigneeID)
		}
		if entry.Billable {
			ab.billableMS += int64(entry.Duration)
		} else {
			ab.nonBillableMS += int64(entry.Duration)
		}
	}

	result := make(map[string][]AssigneeTime, len(buckets))
	for _, taskID := range taskOrder {
		tb := buckets[taskID]
		summary := make([]AssigneeTime, 0, len(tb.order))
		for _, assigneeID := range tb.order {
			ab := tb.byAssignee[assigneeID]
			summary = append(summary, AssigneeTime{
				AssigneeID:       assigneeID,
				AssigneeName:     ab.name,
				BillableMS:       ab.billableMS,
				NonBillableMS:    ab.nonBillableMS,
				BillableHours:    msToHours(ab.billableMS),
				NonBillableHours: msToHours(ab.nonBillableMS),
			})
		}
		result[taskID] = summary
	}
	return result
}
