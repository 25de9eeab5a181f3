package clickup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a ClickUp object identifier. The API is inconsistent about
// whether IDs arrive as JSON strings or numbers, so both decode.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("clickup: invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Millis is a duration in milliseconds. Time entry durations arrive
// as quoted strings on some endpoints and bare numbers on others.
type Millis int64

func (m *Millis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*m = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("clickup: invalid duration %q: %w", s, err)
		}
		*m = Millis(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("clickup: invalid duration %s: %w", data, err)
	}
	*m = Millis(v)
	return nil
}

// User identifies a workspace member.
type User struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Member wraps the user object inside a space membership record.
type Member struct {
	User User `json:"user"`
}

// Space is a ClickUp space within a team (workspace).
type Space struct {
	ID      ID       `json:"id"`
	Name    string   `json:"name"`
	Members []Member `json:"members"`
}

// ListSpace is the space reference embedded in a list object.
type ListSpace struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// List is a ClickUp list, folderless or nested inside a folder.
type List struct {
	ID    ID         `json:"id"`
	Name  string     `json:"name"`
	Space *ListSpace `json:"space,omitempty"`
}

// Folder groups lists inside a space.
type Folder struct {
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Lists []List `json:"lists"`
}

// Task is a raw ClickUp task object. Tasks are passed through
// untyped so the export carries every field the API returns.
type Task map[string]any

// ID returns the task identifier, or "" when absent.
func (t Task) ID() string {
	if id, ok := t["id"].(string); ok {
		return id
	}
	return ""
}

// TaskRef is the task reference embedded in a time entry.
type TaskRef struct {
	ID ID `json:"id"`
}

// TimeEntry is one tracked interval from the team time_entries API.
type TimeEntry struct {
	Task     *TaskRef `json:"task"`
	User     User     `json:"user"`
	Duration Millis   `json:"duration"`
	Billable bool     `json:"billable"`
}
