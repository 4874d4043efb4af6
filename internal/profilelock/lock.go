// Package profilelock serializes backup and verify runs against a single
// profile using a file that is created exclusively (O_CREATE|O_EXCL) and
// removed only by the process that owns it, with stale-lock recovery for
// crashed owners.
package profilelock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PolymathAlchemist/WCBT/internal/clock"
	"github.com/PolymathAlchemist/WCBT/internal/jsonstore"
)

// ErrLockHeld is returned when another, non-stale process holds the lock
// and neither Force nor BreakLock applies.
var ErrLockHeld = errors.New("profile lock is held by another process")

const schemaVersion = "wcbt_profile_lock_v1"

// Info is the JSON body of a profile lock file.
type Info struct {
	SchemaVersion string `json:"schema_version"`
	// LockID is a fresh opaque token minted per acquisition, independent of
	// RunID, so a diagnostic reading two lock files left behind by the same
	// run (one broken as stale, one current) can tell the acquisitions apart.
	LockID        string `json:"lock_id"`
	ProfileName   string `json:"profile_name"`
	CreatedAtUTC  string `json:"created_at_utc"`
	Hostname      string `json:"hostname"`
	PID           int    `json:"pid"`
	Command       string `json:"command"`
	RunID         string `json:"run_id"`
}

// BuildPath returns the canonical lock file path under a profile's work root.
func BuildPath(workRoot string) string {
	return filepath.Join(workRoot, "locks", "backup.lock")
}

// Options controls how Acquire handles a pre-existing lock file.
type Options struct {
	// Force breaks the existing lock only if it is provably stale (held by
	// a dead process on this host).
	Force bool
	// BreakLock breaks the existing lock unconditionally, whether it is
	// held by a live process, indeterminate, or provably stale.
	BreakLock bool
}

// Handle represents a held lock; call Release when the run completes.
type Handle struct {
	path string
	info Info
}

// Acquire creates the lock file at path, breaking an existing one per opts
// when policy allows. It returns ErrLockHeld when a readable existing lock
// may not be broken; an unreadable existing lock without BreakLock yields
// the read error instead.
func Acquire(path, profileName, command, runID string, opts Options, c clock.Clock) (*Handle, error) {
	info := Info{
		SchemaVersion: schemaVersion,
		LockID:        uuid.New().String(),
		ProfileName:   profileName,
		CreatedAtUTC:  c.Now().Format(time.RFC3339),
		Hostname:      hostname(),
		PID:           os.Getpid(),
		Command:       command,
		RunID:         runID,
	}

	if err := tryCreate(path, info); err == nil {
		return &Handle{path: path, info: info}, nil
	} else if !os.IsExist(err) {
		return nil, fmt.Errorf("profilelock: creating %s: %w", path, err)
	}

	existing, readErr := readExisting(path)
	if readErr != nil {
		if !opts.BreakLock {
			return nil, fmt.Errorf("profilelock: reading existing lock %s: %w", path, readErr)
		}
		// Unreadable metadata means liveness can never be proven, so only
		// --break-lock (which breaks indeterminate locks unconditionally)
		// may proceed here; --force alone cannot.
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("profilelock: removing lock %s: %w", path, err)
		}
		if err := tryCreate(path, info); err != nil {
			return nil, fmt.Errorf("profilelock: creating %s after breaking unreadable lock: %w", path, err)
		}
		return &Handle{path: path, info: info}, nil
	}

	allow, reason := evaluateExisting(existing, opts)
	if !allow {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, reason)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("profilelock: removing stale lock %s: %w", path, err)
	}
	if err := tryCreate(path, info); err != nil {
		return nil, fmt.Errorf("profilelock: creating %s after breaking stale lock: %w", path, err)
	}
	return &Handle{path: path, info: info}, nil
}

// Release removes the lock file, but only if it still matches the pid and
// hostname that acquired it — never clobber a lock another process took
// over after a stale break.
func (h *Handle) Release() error {
	existing, err := readExisting(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("profilelock: reading lock before release: %w", err)
	}
	if existing.PID != h.info.PID || !strings.EqualFold(existing.Hostname, h.info.Hostname) {
		return nil
	}
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("profilelock: removing lock %s: %w", h.path, err)
	}
	return nil
}

func tryCreate(path string, info Info) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

func readExisting(path string) (Info, error) {
	var info Info
	err := jsonstore.ReadJSON(path, &info)
	return info, err
}

// evaluateExisting decides whether a pre-existing lock may be broken,
// mirroring the original break-decision state table: --force only wins
// against a provably stale lock; --break-lock wins against a held-not-stale
// or indeterminate lock unconditionally; otherwise refuse.
func evaluateExisting(existing Info, opts Options) (allow bool, reason string) {
	stale := isProvablyStale(existing)
	if opts.Force && stale {
		return true, fmt.Sprintf("breaking provably stale lock due to --force (dead pid %d on %s)", existing.PID, existing.Hostname)
	}
	if opts.BreakLock {
		return true, fmt.Sprintf("breaking lock due to --break-lock (pid %d on %s)", existing.PID, existing.Hostname)
	}
	if opts.Force {
		return false, fmt.Sprintf("lock held by pid %d on %s is not provably stale; --force only breaks a provably stale lock (use --break-lock to override)", existing.PID, existing.Hostname)
	}
	return false, fmt.Sprintf("lock held by pid %d on %s (run %s)", existing.PID, existing.Hostname, existing.RunID)
}

// isProvablyStale requires the lock to name this host (case-insensitive)
// and its pid to be definitively not running. A platform that cannot
// determine liveness (isPIDRunning returns unknown) is never stale.
func isProvablyStale(existing Info) bool {
	if !strings.EqualFold(existing.Hostname, hostname()) {
		return false
	}
	running, known := isPIDRunning(existing.PID)
	return known && !running
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown-host"
	}
	return h
}
