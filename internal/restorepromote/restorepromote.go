// Package restorepromote performs the final atomic handoff of a restore
// run: a staged tree becomes the real destination via two renames, with
// any prior destination preserved as a sibling rather than deleted.
package restorepromote

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/PolymathAlchemist/WCBT/internal/journal"
)

// ErrPromotionFailed wraps every rejection this package makes.
var ErrPromotionFailed = errors.New("promotion failed")

// Plan is the validated, not-yet-executed set of renames that promote a
// stage into its destination.
type Plan struct {
	StageRoot    string
	TargetRoot   string
	PreviousRoot string // empty when the target does not yet exist
	Operations   []string
}

// Outcome reports what actually happened.
type Outcome struct {
	Promoted     bool
	PreviousRoot string
}

// DerivePreviousRoot names the sibling directory an existing target is
// moved to during promotion, scoped by run ID so repeated restores to the
// same destination never collide.
func DerivePreviousRoot(targetRoot, runID string) string {
	dir := filepath.Dir(targetRoot)
	name := filepath.Base(targetRoot)
	return filepath.Join(dir, fmt.Sprintf(".wcbt_restore_previous_%s_%s", name, runID))
}

// Build validates and describes the promotion without touching the
// filesystem.
func Build(stageRoot, targetRoot, runID string) (Plan, error) {
	info, err := os.Stat(stageRoot)
	if err != nil || !info.IsDir() {
		return Plan{}, fmt.Errorf("%w: stage root does not exist or is not a directory: %s", ErrPromotionFailed, stageRoot)
	}

	var previousRoot string
	var ops []string

	if targetInfo, err := os.Stat(targetRoot); err == nil {
		if !targetInfo.IsDir() {
			return Plan{}, fmt.Errorf("%w: target exists but is not a directory: %s", ErrPromotionFailed, targetRoot)
		}
		previousRoot = DerivePreviousRoot(targetRoot, runID)
		if _, err := os.Stat(previousRoot); err == nil {
			return Plan{}, fmt.Errorf("%w: previous root already exists: %s", ErrPromotionFailed, previousRoot)
		}
		ops = append(ops, fmt.Sprintf("rename %s -> %s", targetRoot, previousRoot))
	}

	ops = append(ops, fmt.Sprintf("rename %s -> %s", stageRoot, targetRoot))

	return Plan{
		StageRoot:    stageRoot,
		TargetRoot:   targetRoot,
		PreviousRoot: previousRoot,
		Operations:   ops,
	}, nil
}

// Execute runs plan's renames in order: target -> previous (if any), then
// stage -> target. A failure partway through is recorded to the journal
// with the actual filesystem state so a human can reconcile manually.
func Execute(plan Plan, dryRun bool, j *journal.Journal) (Outcome, error) {
	if j != nil {
		var prev any
		if plan.PreviousRoot != "" {
			prev = plan.PreviousRoot
		}
		_ = j.Append("promotion_planned", map[string]any{
			"stage_root":    plan.StageRoot,
			"target_root":   plan.TargetRoot,
			"previous_root": prev,
			"operations":    plan.Operations,
			"dry_run":       dryRun,
		})
	}

	if dryRun {
		if j != nil {
			_ = j.Append("promotion_dry_run", map[string]any{"result": "no_changes"})
		}
		return Outcome{Promoted: false, PreviousRoot: plan.PreviousRoot}, nil
	}

	if j != nil {
		_ = j.Append("promotion_started", map[string]any{})
	}

	if plan.PreviousRoot != "" {
		if err := os.Rename(plan.TargetRoot, plan.PreviousRoot); err != nil {
			recordFailure(j, plan, err)
			return Outcome{}, fmt.Errorf("%w: %v", ErrPromotionFailed, err)
		}
	}

	if err := os.Rename(plan.StageRoot, plan.TargetRoot); err != nil {
		recordFailure(j, plan, err)
		return Outcome{}, fmt.Errorf("%w: %v", ErrPromotionFailed, err)
	}

	if j != nil {
		var prev any
		if plan.PreviousRoot != "" {
			prev = plan.PreviousRoot
		}
		_ = j.Append("promotion_completed", map[string]any{
			"promoted":      true,
			"previous_root": prev,
		})
	}

	return Outcome{Promoted: true, PreviousRoot: plan.PreviousRoot}, nil
}

func recordFailure(j *journal.Journal, plan Plan, err error) {
	if j == nil {
		return
	}
	_, stageErr := os.Stat(plan.StageRoot)
	_, targetErr := os.Stat(plan.TargetRoot)
	previousExists := false
	if plan.PreviousRoot != "" {
		_, prevErr := os.Stat(plan.PreviousRoot)
		previousExists = prevErr == nil
	}
	_ = j.Append("promotion_failed", map[string]any{
		"error":            err.Error(),
		"stage_exists":     stageErr == nil,
		"target_exists":    targetErr == nil,
		"previous_exists":  previousExists,
	})
}
