package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PolymathAlchemist/WCBT/internal/clock"
)

func TestAppend_WritesOneLinePerEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restore", "journal.jsonl")
	j, err := Open(path, clock.NewFixed(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := j.Append("stage_started", map[string]any{"run_id": "20260801_000000Z"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := j.Append("stage_completed", map[string]any{"files": 3}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	var events []string
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		var rec struct {
			Event string `json:"event"`
			TS    string `json:"ts"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("Unmarshal() error = %v, line = %q", err, scanner.Text())
		}
		if rec.TS == "" {
			t.Error("expected a non-empty timestamp on every record")
		}
		events = append(events, rec.Event)
	}
	if len(events) != 2 || events[0] != "stage_started" || events[1] != "stage_completed" {
		t.Errorf("events = %v, want [stage_started stage_completed]", events)
	}
}

func TestOpen_DoesNotTruncateExistingJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	c := clock.NewFixed(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	first, err := Open(path, c)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := first.Append("a", nil); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	second, err := Open(path, c)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	if err := second.Append("b", nil); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	lines := bytes.Count(raw, []byte("\n"))
	if lines != 2 {
		t.Errorf("expected 2 lines across both opens, got %d", lines)
	}
}

func TestPath_ReturnsBoundPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := Open(path, clock.System{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if j.Path() != path {
		t.Errorf("Path() = %q, want %q", j.Path(), path)
	}
}
