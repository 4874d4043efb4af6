// Package restorestage copies restore candidates into a private staging
// tree before anything touches the real destination, so promotion only
// ever has to rename already-verified content into place.
package restorestage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/PolymathAlchemist/WCBT/internal/journal"
	"github.com/PolymathAlchemist/WCBT/internal/model"
)

// ErrStageFailed wraps every staging rejection.
var ErrStageFailed = errors.New("restore stage failed")

const copyChunkSize = 1 << 20 // 1 MiB

// Result summarizes one staging pass.
type Result struct {
	StagedFiles  int
	PlannedFiles int
	StageRoot    string
}

// Build copies every candidate's source file into stageRoot at its
// relative path, using a temp-file-then-rename write so a crash mid-copy
// never leaves a half-written file at the final staged path. Candidates
// whose OperationType is skip_existing are counted but not copied.
func Build(candidates []model.RestoreCandidate, stageRoot string, dryRun bool, j *journal.Journal) (Result, error) {
	planned := len(candidates)

	if j != nil {
		_ = j.Append("stage_build_planned", map[string]any{
			"stage_root":       stageRoot,
			"candidates_count": planned,
			"dry_run":          dryRun,
		})
	}

	if dryRun {
		if j != nil {
			_ = j.Append("stage_build_dry_run", map[string]any{"result": "no_changes"})
		}
		return Result{PlannedFiles: planned, StageRoot: stageRoot}, nil
	}

	if err := os.MkdirAll(stageRoot, 0o755); err != nil {
		return Result{}, fmt.Errorf("%w: creating stage root %s: %v", ErrStageFailed, stageRoot, err)
	}
	if j != nil {
		_ = j.Append("stage_build_started", map[string]any{"stage_root": stageRoot})
	}

	staged := 0
	for i, c := range candidates {
		if c.OperationType == model.RestoreOpSkipExisting {
			continue
		}

		destPath := filepath.Join(stageRoot, filepath.FromSlash(c.RelativePath))
		if err := copyFileAtomic(c.SourcePath, destPath); err != nil {
			return Result{}, fmt.Errorf("%w: staging %s: %v", ErrStageFailed, c.RelativePath, err)
		}
		staged++

		if j != nil && (i == 0 || (i+1)%250 == 0 || i+1 == planned) {
			_ = j.Append("stage_build_progress", map[string]any{
				"staged_files":  staged,
				"planned_files": planned,
			})
		}
	}

	if j != nil {
		_ = j.Append("stage_build_completed", map[string]any{
			"staged_files":  staged,
			"planned_files": planned,
		})
	}

	return Result{StagedFiles: staged, PlannedFiles: planned, StageRoot: stageRoot}, nil
}

func copyFileAtomic(sourcePath, destPath string) error {
	info, err := os.Stat(sourcePath)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("source file missing or not a regular file: %s", sourcePath)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	tempPath := destPath + ".wcbt_tmp"
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing stale temp file: %w", err)
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	buf := make([]byte, copyChunkSize)
	if _, err := io.CopyBuffer(dst, src, buf); err != nil {
		dst.Close()
		os.Remove(tempPath)
		return fmt.Errorf("copying file contents: %w", err)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(tempPath)
		return fmt.Errorf("flushing temp file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, destPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming temp file into place: %w", err)
	}
	return nil
}
