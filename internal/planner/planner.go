// Package planner turns a scan result into a deterministic, ordered
// backup plan: every file becomes a copy-to-archive operation unless its
// relative path is unsafe or a rule-store exclude pattern drops it.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PolymathAlchemist/WCBT/internal/model"
	"github.com/PolymathAlchemist/WCBT/internal/rules"
	"github.com/PolymathAlchemist/WCBT/internal/safepath"
)

// Build constructs a BackupPlan from scan entries. archiveRoot is the
// resolved run archive directory every destination path must land inside.
// ruleSet may be the zero value, in which case no additional filtering
// is applied beyond the scanner's own exclusions.
func Build(entries []model.SourceFileEntry, archiveRoot safepath.Path, ruleSet rules.RuleSet) (model.BackupPlan, error) {
	sorted := make([]model.SourceFileEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].RelativePath) < strings.ToLower(sorted[j].RelativePath)
	})

	plan := model.BackupPlan{ArchiveRoot: archiveRoot.String()}

	for _, entry := range sorted {
		if !ruleSet.Matches(entry.RelativePath) {
			continue
		}

		if isUnsafeRelativePath(entry.RelativePath) {
			plan.Operations = append(plan.Operations, model.PlannedOperation{
				OperationType: model.OpSkipUnsafePath,
				SourcePath:    entry.AbsolutePath,
				RelativePath:  entry.RelativePath,
				Reason:        "unsafe relative path",
			})
			continue
		}

		dest := archiveRoot.Join(strings.Split(entry.RelativePath, "/")...)
		if err := safepath.AssertWithin(dest, archiveRoot); err != nil {
			return model.BackupPlan{}, fmt.Errorf("planner: destination for %q escapes archive root: %w", entry.RelativePath, err)
		}

		plan.Operations = append(plan.Operations, model.PlannedOperation{
			OperationType:   model.OpCopyFileToArchive,
			SourcePath:      entry.AbsolutePath,
			DestinationPath: dest.String(),
			RelativePath:    entry.RelativePath,
		})
	}

	return plan, nil
}

// AttachScanIssues appends scan-time issues to a plan's reporting surface.
func AttachScanIssues(plan model.BackupPlan, issues []model.ScanIssue) model.BackupPlan {
	plan.ScanIssues = append(plan.ScanIssues, issues...)
	return plan
}

func isUnsafeRelativePath(rel string) bool {
	if rel == "" || strings.HasPrefix(rel, "/") {
		return true
	}
	for _, part := range strings.Split(rel, "/") {
		if part == "." || part == ".." {
			return true
		}
	}
	return false
}
