package planner

import (
	"fmt"
	"strings"

	"github.com/PolymathAlchemist/WCBT/internal/model"
)

var operationOrder = []model.OperationType{model.OpCopyFileToArchive, model.OpSkipUnsafePath}

// RenderText produces the deterministic human-readable plan.txt body:
// a header, per-type counts, a scan-issue count, then up to maxItems
// operation lines, followed by the truncation note and issue detail.
func RenderText(plan model.BackupPlan, maxItems int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Archive root: %s\n", plan.ArchiveRoot)

	counts := map[model.OperationType]int{}
	for _, op := range plan.Operations {
		counts[op.OperationType]++
	}
	for _, t := range operationOrder {
		fmt.Fprintf(&b, "%s: %d\n", t, counts[t])
	}
	fmt.Fprintf(&b, "scan_issues: %d\n\n", len(plan.ScanIssues))

	shown := plan.Operations
	truncated := false
	if maxItems >= 0 && len(shown) > maxItems {
		shown = shown[:maxItems]
		truncated = true
	}
	for _, op := range shown {
		fmt.Fprintf(&b, "%s: %s\n", op.OperationType, op.RelativePath)
	}
	if truncated {
		fmt.Fprintf(&b, "... (%d more not shown)\n", len(plan.Operations)-maxItems)
	}

	if len(plan.ScanIssues) > 0 {
		b.WriteString("\nScan issues:\n")
		for _, issue := range plan.ScanIssues {
			fmt.Fprintf(&b, "%s: %s\n", issue.Path, issue.Message)
		}
	}

	return b.String()
}
