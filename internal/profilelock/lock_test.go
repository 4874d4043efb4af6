package profilelock

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/PolymathAlchemist/WCBT/internal/clock"
)

func fixedClock() clock.Fixed {
	return clock.NewFixed(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
}

func TestAcquireRelease_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "backup.lock")

	handle, err := Acquire(path, "photos", "backup", "20260801_120000Z", Options{}, fixedClock())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected lock file to exist: %v", err)
	}
	if handle.info.LockID == "" {
		t.Error("expected Acquire to stamp a non-empty LockID")
	}

	if err := handle.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected lock file to be removed after Release, stat err = %v", err)
	}
}

func TestAcquire_DistinctLockIDsAcrossAcquisitions(t *testing.T) {
	first, err := Acquire(filepath.Join(t.TempDir(), "backup.lock"), "photos", "backup", "run-1", Options{}, fixedClock())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	second, err := Acquire(filepath.Join(t.TempDir(), "backup.lock"), "photos", "backup", "run-2", Options{}, fixedClock())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if first.info.LockID == second.info.LockID {
		t.Error("expected distinct LockID values across separate acquisitions")
	}
}

func TestAcquire_HeldByLiveProcessRefuses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.lock")

	first, err := Acquire(path, "photos", "backup", "run-1", Options{}, fixedClock())
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer first.Release()

	_, err = Acquire(path, "photos", "backup", "run-2", Options{}, fixedClock())
	if !errors.Is(err, ErrLockHeld) {
		t.Errorf("second Acquire() error = %v, want ErrLockHeld", err)
	}
}

func TestAcquire_StaleDetectionBreaksDeadProcessLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.lock")
	pid := deadPID(t)

	host, err := os.Hostname()
	if err != nil {
		t.Fatalf("Hostname() error = %v", err)
	}

	stale, err := Acquire(path, "photos", "backup", "run-1", Options{}, fixedClock())
	if err != nil {
		t.Fatalf("seeding Acquire() error = %v", err)
	}
	stale.info.PID = pid
	stale.info.Hostname = host
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := tryCreate(path, stale.info); err != nil {
		t.Fatalf("seeding stale lock file error = %v", err)
	}

	handle, err := Acquire(path, "photos", "backup", "run-2", Options{BreakLock: true}, fixedClock())
	if err != nil {
		t.Fatalf("Acquire() with BreakLock on a stale dead-pid lock error = %v", err)
	}
	defer handle.Release()
}

// deadPID starts and waits out a short-lived helper process, returning a pid
// guaranteed to no longer be running.
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=NoSuchTest")
	if err := cmd.Start(); err != nil {
		t.Skipf("could not start helper process: %v", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			t.Fatalf("helper process wait error = %v", err)
		}
	}
	return pid
}

func TestAcquire_ForceBreaksStaleDeadProcessLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.lock")
	pid := deadPID(t)

	host, err := os.Hostname()
	if err != nil {
		t.Fatalf("Hostname() error = %v", err)
	}

	seed, err := Acquire(path, "photos", "backup", "run-1", Options{}, fixedClock())
	if err != nil {
		t.Fatalf("seeding Acquire() error = %v", err)
	}
	seed.info.PID = pid
	seed.info.Hostname = host
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := tryCreate(path, seed.info); err != nil {
		t.Fatalf("seeding stale lock file error = %v", err)
	}

	handle, err := Acquire(path, "photos", "backup", "run-2", Options{Force: true}, fixedClock())
	if err != nil {
		t.Fatalf("Acquire() with Force on a stale dead-pid lock error = %v", err)
	}
	defer handle.Release()
}

func TestAcquire_ForceRefusesLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.lock")

	first, err := Acquire(path, "photos", "backup", "run-1", Options{}, fixedClock())
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer first.Release()

	_, err = Acquire(path, "photos", "backup", "run-2", Options{Force: true}, fixedClock())
	if !errors.Is(err, ErrLockHeld) {
		t.Errorf("Acquire() with Force against a live process error = %v, want ErrLockHeld", err)
	}
}

func TestAcquire_BreakLockAlwaysBreaksLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.lock")

	first, err := Acquire(path, "photos", "backup", "run-1", Options{}, fixedClock())
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}

	second, err := Acquire(path, "photos", "backup", "run-2", Options{BreakLock: true}, fixedClock())
	if err != nil {
		t.Fatalf("Acquire() with BreakLock error = %v", err)
	}
	defer second.Release()
	_ = first
}

func TestAcquire_ForceRefusesUnreadableLockMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.lock")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("not valid json"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := Acquire(path, "photos", "backup", "run-1", Options{Force: true}, fixedClock())
	if err == nil {
		t.Error("expected Force to refuse a lock whose metadata cannot prove staleness")
	}
}

func TestAcquire_BreakLockBreaksUnreadableLockMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.lock")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("not valid json"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	handle, err := Acquire(path, "photos", "backup", "run-1", Options{BreakLock: true}, fixedClock())
	if err != nil {
		t.Fatalf("Acquire() with BreakLock against unreadable metadata error = %v", err)
	}
	defer handle.Release()
}

func TestRelease_DoesNotClobberTakenOverLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.lock")

	first, err := Acquire(path, "photos", "backup", "run-1", Options{}, fixedClock())
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	second, err := Acquire(path, "photos", "backup", "run-2", Options{BreakLock: true}, fixedClock())
	if err != nil {
		t.Fatalf("Acquire() with BreakLock error = %v", err)
	}
	defer second.Release()

	if err := first.Release(); err != nil {
		t.Fatalf("first.Release() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected the second holder's lock file to survive the first holder's Release, stat err = %v", err)
	}
}
