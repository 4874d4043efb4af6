// Package restorerun composes restore planning, staging, verification,
// and promotion into the single orchestrated flow the CLI drives.
package restorerun

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/PolymathAlchemist/WCBT/internal/clock"
	"github.com/PolymathAlchemist/WCBT/internal/journal"
	"github.com/PolymathAlchemist/WCBT/internal/jsonstore"
	"github.com/PolymathAlchemist/WCBT/internal/metrics"
	"github.com/PolymathAlchemist/WCBT/internal/model"
	"github.com/PolymathAlchemist/WCBT/internal/restoreplan"
	"github.com/PolymathAlchemist/WCBT/internal/restorepromote"
	"github.com/PolymathAlchemist/WCBT/internal/restorestage"
	"github.com/PolymathAlchemist/WCBT/internal/restoreverify"
	"github.com/PolymathAlchemist/WCBT/internal/wlog"
)

// ErrConflict is returned when an add-only restore finds files already
// present at the destination; no stage is built in that case.
var ErrConflict = errors.New("restore conflict")

// Request is the caller-facing restore request, equivalent to the CLI's
// `restore` flags.
type Request struct {
	ManifestPath    string
	DestinationRoot string
	Mode            model.RestoreMode
	Verification    model.RestoreVerification
	DryRun          bool
}

// Summary is written to restore_summary.json and also returned to the
// caller for exit-code decisions.
type Summary struct {
	Result        string `json:"result"` // ok, conflict, error
	RunID         string `json:"run_id"`
	PlannedFiles  int    `json:"planned_files"`
	StagedFiles   int    `json:"staged_files"`
	VerifiedFiles int    `json:"verified_files"`
	Promoted      bool   `json:"promoted"`
	Error         string `json:"error,omitempty"`
}

// Run executes one restore end to end.
func Run(req Request, runID string, c clock.Clock) (Summary, error) {
	logger := wlog.WithComponent("restore").With().Str("run_id", runID).Logger()
	timer := metrics.NewTimer()

	summary := Summary{Result: "error", RunID: runID}
	finish := func(result string) {
		summary.Result = result
		metrics.RestoreRunsTotal.WithLabelValues(result).Inc()
		timer.ObserveDuration(metrics.RestoreDuration)
	}

	logger.Info().Str("manifest_path", req.ManifestPath).Str("destination_root", req.DestinationRoot).
		Str("mode", string(req.Mode)).Bool("dry_run", req.DryRun).Msg("restore run starting")

	plan, operations, err := restoreplan.Build(restoreplan.Intent{
		ManifestPath:    req.ManifestPath,
		DestinationRoot: req.DestinationRoot,
		Mode:            req.Mode,
		Verification:    req.Verification,
	}, runID, c.Now().UTC().Format("2006-01-02T15:04:05Z"))
	if err != nil {
		summary.Error = err.Error()
		finish("error")
		logger.Error().Err(err).Msg("restore plan build failed")
		return summary, err
	}

	candidates, err := restoreplan.Materialize(plan, operations)
	if err != nil {
		summary.Error = err.Error()
		finish("error")
		logger.Error().Err(err).Msg("restore candidate materialization failed")
		return summary, err
	}
	summary.PlannedFiles = len(candidates)

	stageRoot := filepath.Join(plan.DestinationRoot+".wcbt_stage", runID, "stage_root")

	var artifactsRoot string
	if req.DryRun {
		artifactsRoot = filepath.Join(plan.DestinationRoot, ".wcbt_restore", runID)
	} else {
		artifactsRoot = filepath.Join(stageRoot, ".wcbt_restore", runID)
	}
	if err := os.MkdirAll(artifactsRoot, 0o755); err != nil {
		summary.Error = err.Error()
		finish("error")
		return summary, err
	}
	if err := os.MkdirAll(stageRoot, 0o755); err != nil {
		summary.Error = err.Error()
		finish("error")
		return summary, err
	}

	j, err := journal.Open(filepath.Join(artifactsRoot, "execution_journal.jsonl"), c)
	if err != nil {
		summary.Error = err.Error()
		finish("error")
		return summary, err
	}

	_ = j.Append("restore_run_started", map[string]any{
		"manifest_path":     req.ManifestPath,
		"destination_root":  req.DestinationRoot,
		"mode":              req.Mode,
		"verify":            req.Verification,
		"operations_count":  len(operations),
		"dry_run":           req.DryRun,
	})

	if err := jsonstore.WriteAtomic(filepath.Join(artifactsRoot, "restore_plan.json"), plan, jsonstore.DefaultWriteOptions); err != nil {
		summary.Error = err.Error()
		finish("error")
		return summary, err
	}
	candidatesPath := filepath.Join(artifactsRoot, "restore_candidates.jsonl")
	if err := os.Remove(candidatesPath); err != nil && !os.IsNotExist(err) {
		summary.Error = err.Error()
		finish("error")
		return summary, err
	}
	for _, cand := range candidates {
		if err := jsonstore.AppendJSONLAtomic(candidatesPath, cand); err != nil {
			summary.Error = err.Error()
			finish("error")
			return summary, err
		}
	}
	_ = j.Append("restore_candidates_materialized", map[string]any{"candidates_count": len(candidates)})

	if req.Mode == model.RestoreModeAddOnly {
		if conflicts := conflictCandidates(candidates); len(conflicts) > 0 {
			conflictsPath := filepath.Join(plan.DestinationRoot, ".wcbt_restore", runID, "restore_conflicts.jsonl")
			if err := os.MkdirAll(filepath.Dir(conflictsPath), 0o755); err == nil {
				_ = os.Remove(conflictsPath)
				for _, cand := range conflicts {
					_ = jsonstore.AppendJSONLAtomic(conflictsPath, cand)
				}
			}
			metrics.RestoreConflictsTotal.Add(float64(len(conflicts)))
			summary.Error = fmt.Sprintf("%d file(s) already present at destination under add-only mode", len(conflicts))
			_ = j.Append("restore_conflict_detected", map[string]any{"conflicts_count": len(conflicts)})
			finish("conflict")
			writeSummary(artifactsRoot, summary)
			logger.Warn().Int("conflicts", len(conflicts)).Msg("restore conflict detected, aborting before staging")
			return summary, fmt.Errorf("%w: %s", ErrConflict, summary.Error)
		}
	}

	stageResult, err := restorestage.Build(candidates, stageRoot, req.DryRun, j)
	if err != nil {
		summary.Error = err.Error()
		finish("error")
		writeSummary(artifactsRoot, summary)
		logger.Error().Err(err).Msg("restore stage build failed")
		return summary, err
	}
	summary.StagedFiles = stageResult.StagedFiles
	metrics.RestoreFilesStaged.Add(float64(stageResult.StagedFiles))

	verifyResult, err := restoreverify.Run(candidates, stageRoot, req.Verification, req.DryRun, j, artifactsRoot)
	if err != nil {
		summary.Error = err.Error()
		finish("error")
		writeSummary(artifactsRoot, summary)
		logger.Error().Err(err).Msg("restore stage verification failed")
		return summary, err
	}
	summary.VerifiedFiles = verifyResult.VerifiedFiles

	_ = j.Append("restore_stage_verified", map[string]any{
		"verification_mode": req.Verification,
		"planned_files":     verifyResult.PlannedFiles,
		"verified_files":    verifyResult.VerifiedFiles,
		"staged_files":      stageResult.StagedFiles,
	})

	if req.DryRun {
		_ = j.Append("restore_promotion_skipped", map[string]any{
			"reason":            "dry_run",
			"destination_root":  req.DestinationRoot,
			"stage_root":        stageRoot,
		})
		finish("ok")
		writeSummary(artifactsRoot, summary)
		logger.Info().Int("planned", summary.PlannedFiles).Int("verified", summary.VerifiedFiles).Msg("restore dry run complete")
		return summary, nil
	}

	promotionPlan, err := restorepromote.Build(stageRoot, req.DestinationRoot, runID)
	if err != nil {
		summary.Error = err.Error()
		finish("error")
		writeSummary(artifactsRoot, summary)
		logger.Error().Err(err).Msg("restore promotion planning failed")
		return summary, err
	}

	// Promotion renames the stage root, which the journal and artifacts
	// currently live under, into destination_root; no journal writes happen
	// after this, and restore_summary.json is written at the artifacts'
	// promoted location.
	_ = j.Append("restore_promotion_started", map[string]any{
		"destination_root": req.DestinationRoot,
		"stage_root":       stageRoot,
		"run_id":           runID,
	})

	outcome, err := restorepromote.Execute(promotionPlan, false, nil)
	if err != nil {
		summary.Error = err.Error()
		finish("error")
		writeSummary(artifactsRoot, summary)
		logger.Error().Err(err).Msg("restore promotion failed")
		return summary, err
	}

	summary.Promoted = outcome.Promoted
	finish("ok")
	writeSummary(filepath.Join(plan.DestinationRoot, ".wcbt_restore", runID), summary)
	logger.Info().Int("planned", summary.PlannedFiles).Int("staged", summary.StagedFiles).
		Int("verified", summary.VerifiedFiles).Msg("restore run complete")
	return summary, nil
}

func conflictCandidates(candidates []model.RestoreCandidate) []model.RestoreCandidate {
	var out []model.RestoreCandidate
	for _, c := range candidates {
		if c.OperationType == model.RestoreOpSkipExisting {
			out = append(out, c)
		}
	}
	return out
}

func writeSummary(artifactsRoot string, summary Summary) {
	_ = jsonstore.WriteAtomic(filepath.Join(artifactsRoot, "restore_summary.json"), summary, jsonstore.DefaultWriteOptions)
}
