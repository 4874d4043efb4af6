// Package journal implements the append-only JSONL execution journal a
// restore run writes alongside its stage and promotion work. It is an
// inspectable side artifact, never a source of truth for restore state.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/PolymathAlchemist/WCBT/internal/clock"
)

// Journal appends one JSON object per line to a fixed path. It is not
// safe for concurrent use by multiple goroutines.
type Journal struct {
	path  string
	clock clock.Clock
}

// Open ensures path's parent directory exists and returns a Journal bound
// to it. Open never truncates an existing journal.
func Open(path string, c clock.Clock) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: creating parent of %s: %w", path, err)
	}
	return &Journal{path: path, clock: c}, nil
}

// Path returns the on-disk journal path.
func (j *Journal) Path() string {
	return j.path
}

type record struct {
	Timestamp string `json:"ts"`
	Event     string `json:"event"`
	Data      any    `json:"data"`
}

// Append writes one event record. Never called after promotion completes:
// the journal documents the work leading up to promotion, not the
// now-promoted destination tree.
func (j *Journal) Append(event string, data any) error {
	rec := record{
		Timestamp: j.clock.Now().Format("2006-01-02T15:04:05.000000Z07:00"),
		Event:     event,
		Data:      data,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("journal: encoding %s event: %w", event, err)
	}

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: opening %s: %w", j.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("journal: writing %s event: %w", event, err)
	}
	return f.Sync()
}
