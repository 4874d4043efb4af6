// Package execute runs a materialized backup plan's copy operations
// sequentially, failing fast on the first invariant or I/O error so a
// partially-copied run is always left in an explainable state.
package execute

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/PolymathAlchemist/WCBT/internal/model"
)

// ReservedPaths names destination paths the executor must never overwrite,
// typically the run's own plan.txt and manifest.json.
type ReservedPaths map[string]struct{}

// NewReservedPaths builds a ReservedPaths set from absolute paths.
func NewReservedPaths(paths ...string) ReservedPaths {
	set := make(ReservedPaths, len(paths))
	for _, p := range paths {
		set[filepath.Clean(p)] = struct{}{}
	}
	return set
}

func (r ReservedPaths) contains(path string) bool {
	_, ok := r[filepath.Clean(path)]
	return ok
}

// Run executes plan.Operations in order against a materialized run
// directory, stopping at the first failed_invariant or failed_io outcome.
func Run(runRoot string, plan model.BackupPlan, reserved ReservedPaths) (model.ExecutionSummary, error) {
	if err := assertMaterializedInvariants(runRoot); err != nil {
		return model.ExecutionSummary{}, err
	}

	summary := model.ExecutionSummary{Status: "success"}

	for i, op := range plan.Operations {
		result := executeOne(i, op, runRoot, reserved)
		summary.Results = append(summary.Results, result)

		if result.Outcome == model.OutcomeFailedInvariant || result.Outcome == model.OutcomeFailedIO {
			summary.Status = "failed"
			break
		}
	}

	return summary, nil
}

func assertMaterializedInvariants(runRoot string) error {
	info, err := os.Stat(runRoot)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("execute: run root is not a directory: %s", runRoot)
	}
	for _, name := range []string{"plan.txt", "manifest.json"} {
		p := filepath.Join(runRoot, name)
		fi, err := os.Stat(p)
		if err != nil || fi.IsDir() {
			return fmt.Errorf("execute: materialized run is missing %s", p)
		}
	}
	return nil
}

func executeOne(index int, op model.PlannedOperation, runRoot string, reserved ReservedPaths) model.OperationResult {
	result := model.OperationResult{
		OperationIndex:  index,
		OperationType:   op.OperationType,
		RelativePath:    op.RelativePath,
		SourcePath:      op.SourcePath,
		DestinationPath: op.DestinationPath,
	}

	if op.OperationType != model.OpCopyFileToArchive {
		result.Outcome = model.OutcomeSkippedNonCopyOperation
		result.Message = "operation type is not copyable"
		return result
	}

	if err := assertDestinationSafe(op.DestinationPath, runRoot, reserved); err != nil {
		result.Outcome = model.OutcomeFailedInvariant
		result.Message = err.Error()
		return result
	}

	if err := copyFileStrict(op.SourcePath, op.DestinationPath); err != nil {
		result.Outcome = model.OutcomeFailedIO
		result.Message = err.Error()
		return result
	}

	result.Outcome = model.OutcomeCopied
	return result
}

func assertDestinationSafe(dest, runRoot string, reserved ReservedPaths) error {
	cleanRoot := filepath.Clean(runRoot)
	cleanDest := filepath.Clean(dest)
	rel, err := filepath.Rel(cleanRoot, cleanDest)
	if err != nil || rel == ".." || hasDotDotPrefix(rel) {
		return fmt.Errorf("destination %s is not within run root", dest)
	}
	if reserved.contains(dest) {
		return fmt.Errorf("destination %s collides with a reserved artifact path", dest)
	}
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("destination %s already exists", dest)
	}
	return nil
}

func hasDotDotPrefix(rel string) bool {
	prefix := ".." + string(filepath.Separator)
	return rel == ".." || (len(rel) >= len(prefix) && rel[:len(prefix)] == prefix)
}

func copyFileStrict(source, dest string) error {
	info, err := os.Lstat(source)
	if err != nil {
		return fmt.Errorf("source does not exist: %s", source)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("source is a symlink, refusing to copy: %s", source)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("source is not a regular file: %s", source)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	src, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copying file contents: %w", err)
	}
	if err := dst.Sync(); err != nil {
		return fmt.Errorf("flushing destination: %w", err)
	}

	modTime := info.ModTime()
	if err := os.Chtimes(dest, modTime, modTime); err != nil {
		return fmt.Errorf("preserving modification time: %w", err)
	}
	return nil
}
