// Package backup composes path resolution, scanning, planning,
// materialization, execution, and verification into the single
// profile-lock-guarded flow the CLI's backup command drives.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/PolymathAlchemist/WCBT/internal/clock"
	"github.com/PolymathAlchemist/WCBT/internal/compress"
	"github.com/PolymathAlchemist/WCBT/internal/execute"
	"github.com/PolymathAlchemist/WCBT/internal/jsonstore"
	"github.com/PolymathAlchemist/WCBT/internal/materialize"
	"github.com/PolymathAlchemist/WCBT/internal/metrics"
	"github.com/PolymathAlchemist/WCBT/internal/model"
	"github.com/PolymathAlchemist/WCBT/internal/pathsafety"
	"github.com/PolymathAlchemist/WCBT/internal/planner"
	"github.com/PolymathAlchemist/WCBT/internal/profilelock"
	"github.com/PolymathAlchemist/WCBT/internal/rules"
	"github.com/PolymathAlchemist/WCBT/internal/scan"
	"github.com/PolymathAlchemist/WCBT/internal/verify"
	"github.com/PolymathAlchemist/WCBT/internal/wlog"
)

// ErrExecutionFailed is returned when copy execution's status is "failed"
// after the manifest has already been rewritten with the results.
var ErrExecutionFailed = errors.New("backup execution failed")

// Mode selects how far a run proceeds.
type Mode int

const (
	// ModeDryRun scans and plans only; nothing is written except the profile
	// directory layout and, optionally, a plan text artifact.
	ModeDryRun Mode = iota
	// ModeMaterialize creates the run directory and writes plan.txt/manifest.json.
	ModeMaterialize
	// ModeExecute materializes, then copies every planned file.
	ModeExecute
)

// Request is the caller-facing backup request, equivalent to the CLI's
// `backup` flags.
type Request struct {
	ProfileName           string
	Source                string
	DataRoot              string
	ExcludedDirectoryNames []string
	ExcludedFileNames      []string
	UseDefaultExcludes     bool
	MaxItems               int
	Mode                   Mode
	WritePlan              bool
	PlanPath               string
	OverwritePlan          bool
	Force                  bool
	BreakLock              bool
	RuleSet                rules.RuleSet
	Compress               compress.Format // empty means no compression
}

// Result reports what a run produced, for the CLI to print and decide an
// exit code from.
type Result struct {
	RunID        string
	ArchiveRoot  string
	PlanText     string
	PlanTextPath string
	ManifestPath string
	Execution    *model.ExecutionSummary
	VerifyCounts *model.VerifyCounts
	ArchivePath  string
}

// Run executes one backup attempt end to end.
func Run(req Request, c clock.Clock) (Result, error) {
	logger := wlog.WithComponent("backup").With().Str("profile", req.ProfileName).Logger()
	timer := metrics.NewTimer()

	if req.MaxItems < 0 {
		return Result{}, fmt.Errorf("backup: max_items must be non-negative")
	}

	paths, err := pathsafety.ResolveProfilePaths(req.ProfileName, req.DataRoot)
	if err != nil {
		return Result{}, err
	}
	if err := pathsafety.EnsureProfileDirectories(paths); err != nil {
		return Result{}, err
	}

	sourceRoot, err := pathsafety.ValidateSourcePath(req.Source)
	if err != nil {
		return Result{}, err
	}

	now := c.Now()
	runID := clock.RunID(now)
	archiveRoot := paths.ArchivesRoot.Join(runID)
	logger = logger.With().Str("run_id", runID).Logger()
	logger.Info().Str("source", sourceRoot.String()).Msg("backup run starting")

	scanTimer := metrics.NewTimer()
	scanRules := buildScanRules(req)
	scanResult := scan.Tree(sourceRoot.String(), scanRules)
	scanTimer.ObserveDurationVec(metrics.ScanDuration, req.ProfileName)
	logger.Debug().Int("entries", len(scanResult.Entries)).Int("issues", len(scanResult.Issues)).Msg("scan complete")

	plan, err := planner.Build(scanResult.Entries, archiveRoot, req.RuleSet)
	if err != nil {
		return Result{}, err
	}
	plan = planner.AttachScanIssues(plan, scanResult.Issues)

	planText := renderReport(req.ProfileName, sourceRoot.String(), archiveRoot.String(), plan)

	result := Result{RunID: runID, ArchiveRoot: archiveRoot.String(), PlanText: planText}

	if req.Mode == ModeDryRun {
		if req.WritePlan || req.PlanPath != "" {
			outputPath := req.PlanPath
			if outputPath == "" {
				outputPath = filepath.Join(archiveRoot.String(), "plan.txt")
			}
			if err := writePlanArtifact(outputPath, planText, req.OverwritePlan); err != nil {
				return Result{}, err
			}
			result.PlanTextPath = outputPath
		}
		return result, nil
	}

	lockPath := profilelock.BuildPath(paths.WorkRoot.String())
	handle, err := profilelock.Acquire(lockPath, req.ProfileName, "backup", runID, profilelock.Options{
		Force:     req.Force,
		BreakLock: req.BreakLock,
	}, c)
	if err != nil {
		metrics.LockAcquireFailuresTotal.WithLabelValues(req.ProfileName).Inc()
		logger.Warn().Err(err).Msg("failed to acquire profile lock")
		return Result{}, err
	}
	defer func() {
		if err := handle.Release(); err != nil {
			logger.Warn().Err(err).Msg("failed to release profile lock")
		}
	}()

	manifest := model.NewRunManifestV2(runID, now.Format("2006-01-02T15:04:05Z"), archiveRoot.String(), "", req.ProfileName, sourceRoot.String(), plan)

	materialized, err := materialize.Run(archiveRoot.String(), manifest, planText)
	if err != nil {
		return Result{}, err
	}
	result.PlanTextPath = materialized.PlanTextPath
	result.ManifestPath = materialized.ManifestPath

	if req.Mode == ModeMaterialize {
		return result, nil
	}

	reserved := execute.NewReservedPaths(materialized.PlanTextPath, materialized.ManifestPath)
	summary, err := execute.Run(archiveRoot.String(), plan, reserved)
	if err != nil {
		return Result{}, err
	}
	result.Execution = &summary

	manifest.Execution = &summary
	if err := jsonstore.WriteAtomic(materialized.ManifestPath, manifest, jsonstore.DefaultWriteOptions); err != nil {
		return Result{}, fmt.Errorf("backup: rewriting manifest with execution results: %w", err)
	}

	copied, failed := countOutcomes(summary.Results)
	metrics.BackupFilesCopied.WithLabelValues(req.ProfileName).Add(float64(copied))
	metrics.BackupFilesFailed.WithLabelValues(req.ProfileName).Add(float64(failed))

	if summary.Status != "success" {
		metrics.BackupRunsTotal.WithLabelValues(req.ProfileName, "failed").Inc()
		timer.ObserveDurationVec(metrics.BackupDuration, req.ProfileName)
		logger.Error().Int("copied", copied).Int("failed", failed).Msg("backup execution failed")
		return result, fmt.Errorf("%w: see %s for per-operation results", ErrExecutionFailed, materialized.ManifestPath)
	}

	if req.Compress != "" {
		archivePath, err := compress.NewFilesystemCompressor().Compress(context.Background(), archiveRoot, req.Compress, summary.Results)
		if err != nil {
			return result, fmt.Errorf("backup: compressing run directory: %w", err)
		}
		result.ArchivePath = archivePath.String()
		logger.Info().Str("archive_path", archivePath.String()).Str("format", string(req.Compress)).Msg("run directory compressed")
	}

	counts, records, err := verify.Run(&manifest)
	if err != nil {
		return result, err
	}
	result.VerifyCounts = &counts
	metrics.VerifyFilesVerified.WithLabelValues(req.ProfileName).Add(float64(counts.Verified))
	metrics.VerifyFilesFailed.WithLabelValues(req.ProfileName).Add(float64(counts.Failed))
	if err := verify.WriteReport(archiveRoot.String(), runID, counts, records); err != nil {
		return result, err
	}
	if err := jsonstore.WriteAtomic(materialized.ManifestPath, manifest, jsonstore.DefaultWriteOptions); err != nil {
		return result, fmt.Errorf("backup: rewriting manifest with verification results: %w", err)
	}

	metrics.BackupRunsTotal.WithLabelValues(req.ProfileName, "success").Inc()
	timer.ObserveDurationVec(metrics.BackupDuration, req.ProfileName)
	logger.Info().Int("copied", copied).Int("verified", counts.Verified).Msg("backup run complete")

	return result, nil
}

func countOutcomes(results []model.OperationResult) (copied, failed int) {
	for _, r := range results {
		switch r.Outcome {
		case model.OutcomeCopied:
			copied++
		case model.OutcomeFailedInvariant, model.OutcomeFailedIO:
			failed++
		}
	}
	return copied, failed
}

func buildScanRules(req Request) scan.Rules {
	base := scan.DefaultRules()
	if !req.UseDefaultExcludes {
		base = scan.Rules{
			ExcludedDirectoryNames: map[string]struct{}{},
			ExcludedFileNames:      map[string]struct{}{},
		}
	}
	for _, name := range req.ExcludedDirectoryNames {
		base.ExcludedDirectoryNames[name] = struct{}{}
	}
	for _, name := range req.ExcludedFileNames {
		base.ExcludedFileNames[name] = struct{}{}
	}
	return base
}

func renderReport(profileName, sourceRoot, archiveRoot string, plan model.BackupPlan) string {
	header := fmt.Sprintf("Profile     : %s\nSource root : %s\nArchive root: %s\n\n", profileName, sourceRoot, archiveRoot)
	return header + planner.RenderText(plan, 100)
}

func writePlanArtifact(outputPath, content string, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("backup: creating plan artifact parent: %w", err)
	}
	if overwrite {
		return jsonstore.WriteTextAtomic(outputPath, content)
	}
	f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("backup: plan file already exists (use --overwrite-plan to replace): %s", outputPath)
		}
		return fmt.Errorf("backup: writing plan file: %w", err)
	}
	defer f.Close()
	_, err = f.WriteString(content)
	return err
}
