// Package restoreverify checks staged restore content against its archive
// sources before promotion is allowed to proceed.
package restoreverify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/PolymathAlchemist/WCBT/internal/journal"
	"github.com/PolymathAlchemist/WCBT/internal/jsonstore"
	"github.com/PolymathAlchemist/WCBT/internal/model"
)

// ErrVerificationFailed wraps every rejection this package makes.
var ErrVerificationFailed = errors.New("restore stage verification failed")

// Result summarizes one verification pass.
type Result struct {
	VerifiedFiles int
	PlannedFiles  int
	Mode          model.RestoreVerification
}

type recordOutcome string

const (
	outcomeSkipped  recordOutcome = "skipped"
	outcomeVerified recordOutcome = "verified"
	outcomeFailed   recordOutcome = "failed"
)

type verifyRecord struct {
	CandidateIndex int           `json:"candidate_index"`
	RelativePath   string        `json:"relative_path"`
	StagedPath     string        `json:"staged_path"`
	Outcome        recordOutcome `json:"outcome"`
	Message        string        `json:"message,omitempty"`
}

type verifySummary struct {
	Status          string                    `json:"status"`
	VerificationMode model.RestoreVerification `json:"verification_mode"`
	PlannedFiles    int                       `json:"planned_files"`
	VerifiedFiles   int                       `json:"verified_files"`
	FailedFiles     int                       `json:"failed_files"`
}

// Run verifies candidates staged under stageRoot according to mode. When
// artifactsRoot is non-empty it writes stage_verify_results.jsonl and
// stage_verify_summary.json there.
func Run(candidates []model.RestoreCandidate, stageRoot string, mode model.RestoreVerification, dryRun bool, j *journal.Journal, artifactsRoot string) (Result, error) {
	planned := len(candidates)

	var resultsPath, summaryPath string
	if artifactsRoot != "" {
		resultsPath = filepath.Join(artifactsRoot, "stage_verify_results.jsonl")
		summaryPath = filepath.Join(artifactsRoot, "stage_verify_summary.json")
		if err := os.Remove(resultsPath); err != nil && !os.IsNotExist(err) {
			return Result{}, fmt.Errorf("%w: clearing previous results: %v", ErrVerificationFailed, err)
		}
	}

	if j != nil {
		_ = j.Append("verify_stage_planned", map[string]any{
			"stage_root":        stageRoot,
			"candidates_count":  planned,
			"verification_mode": mode,
		})
	}

	if dryRun {
		for i, c := range candidates {
			writeRecord(resultsPath, verifyRecord{
				CandidateIndex: i,
				RelativePath:   c.RelativePath,
				StagedPath:     filepath.Join(stageRoot, filepath.FromSlash(c.RelativePath)),
				Outcome:        outcomeSkipped,
				Message:        "dry_run=true",
			})
		}
		writeSummary(summaryPath, verifySummary{
			Status: "skipped", VerificationMode: mode, PlannedFiles: planned, VerifiedFiles: 0, FailedFiles: 0,
		})
		if j != nil {
			_ = j.Append("verify_stage_dry_run", map[string]any{"result": "skipped", "verification_mode": mode, "planned_files": planned})
		}
		return Result{VerifiedFiles: planned, PlannedFiles: planned, Mode: mode}, nil
	}

	if mode == model.RestoreVerificationNone {
		for i, c := range candidates {
			writeRecord(resultsPath, verifyRecord{
				CandidateIndex: i,
				RelativePath:   c.RelativePath,
				StagedPath:     filepath.Join(stageRoot, filepath.FromSlash(c.RelativePath)),
				Outcome:        outcomeSkipped,
				Message:        "verification_mode_none",
			})
		}
		writeSummary(summaryPath, verifySummary{
			Status: "skipped", VerificationMode: mode, PlannedFiles: planned, VerifiedFiles: planned, FailedFiles: 0,
		})
		if j != nil {
			_ = j.Append("verify_stage_skipped", map[string]any{"reason": "verification_mode_none"})
		}
		return Result{VerifiedFiles: planned, PlannedFiles: planned, Mode: mode}, nil
	}

	info, err := os.Stat(stageRoot)
	if err != nil || !info.IsDir() {
		return Result{}, fmt.Errorf("%w: stage root missing or not a directory: %s", ErrVerificationFailed, stageRoot)
	}
	if j != nil {
		_ = j.Append("verify_stage_started", map[string]any{"stage_root": stageRoot, "mode": mode})
	}

	verified := 0
	for i, c := range candidates {
		if c.OperationType == model.RestoreOpSkipExisting {
			continue
		}

		stagedPath := filepath.Join(stageRoot, filepath.FromSlash(c.RelativePath))
		stagedInfo, err := os.Stat(stagedPath)
		if err != nil || !stagedInfo.Mode().IsRegular() {
			return Result{}, fmt.Errorf("%w: missing staged file: %s", ErrVerificationFailed, stagedPath)
		}

		sourceInfo, err := os.Stat(c.SourcePath)
		if err != nil || !sourceInfo.Mode().IsRegular() {
			return Result{}, fmt.Errorf("%w: source file missing or not a file: %s", ErrVerificationFailed, c.SourcePath)
		}

		if stagedInfo.Size() != sourceInfo.Size() {
			writeRecord(resultsPath, verifyRecord{
				CandidateIndex: i, RelativePath: c.RelativePath, StagedPath: stagedPath,
				Outcome: outcomeFailed,
				Message: fmt.Sprintf("expected %d, got %d", sourceInfo.Size(), stagedInfo.Size()),
			})
			writeSummary(summaryPath, verifySummary{
				Status: "failed", VerificationMode: mode, PlannedFiles: planned, VerifiedFiles: verified, FailedFiles: 1,
			})
			return Result{}, fmt.Errorf("%w: size mismatch for %s: expected %d, got %d",
				ErrVerificationFailed, stagedPath, sourceInfo.Size(), stagedInfo.Size())
		}

		verified++
		writeRecord(resultsPath, verifyRecord{
			CandidateIndex: i, RelativePath: c.RelativePath, StagedPath: stagedPath, Outcome: outcomeVerified,
		})

		if j != nil && (i == 0 || (i+1)%500 == 0 || i+1 == planned) {
			_ = j.Append("verify_stage_progress", map[string]any{"verified_files": verified, "planned_files": planned})
		}
	}

	if j != nil {
		_ = j.Append("verify_stage_completed", map[string]any{"verified_files": verified, "planned_files": planned, "mode": mode})
	}

	writeSummary(summaryPath, verifySummary{
		Status: "success", VerificationMode: mode, PlannedFiles: planned, VerifiedFiles: verified, FailedFiles: 0,
	})

	return Result{VerifiedFiles: verified, PlannedFiles: planned, Mode: mode}, nil
}

func writeRecord(path string, rec verifyRecord) {
	if path == "" {
		return
	}
	_ = jsonstore.AppendJSONLAtomic(path, rec)
}

func writeSummary(path string, s verifySummary) {
	if path == "" {
		return
	}
	_ = jsonstore.WriteAtomic(path, s, jsonstore.DefaultWriteOptions)
}
