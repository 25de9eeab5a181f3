package clickup

import (
	"encoding/json"
	"testing"
)

func TestIDUnmarshal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want ID
	}{
		{"string", `"abc123"`, "abc123"},
		{"number", `901100123`, "901100123"},
		{"null", `null`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			if err := json.Unmarshal([]byte(tt.in), &id); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.in, err)
			}
			if id != tt.want {
				t.Errorf("id = %q, want %q", id, tt.want)
			}
		})
	}
}

func TestMillisUnmarshal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    Millis
		wantErr bool
	}{
		{"quoted", `"120000"`, 120000, false},
		{"bare", `120000`, 120000, false},
		{"null", `null`, 0, false},
		{"empty string", `""`, 0, false},
		{"garbage", `"12h"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Millis
			err := json.Unmarshal([]byte(tt.in), &m)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("unmarshal %s: expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal %s: %v", tt.in, err)
			}
			if m != tt.want {
				t.Errorf("millis = %d, want %d", m, tt.want)
			}
		})
	}
}

func TestTaskID(t *testing.T) {
	t.Parallel()

	if got := (Task{"id": "t1"}).ID(); got != "t1" {
		t.Errorf("ID() = %q, want t1", got)
	}
	if got := (Task{}).ID(); got != "" {
		t.Errorf("ID() on empty task = %q, want empty", got)
	}
}
