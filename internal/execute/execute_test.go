package execute

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/PolymathAlchemist/WCBT/internal/model"
)

func setupRunRoot(t *testing.T) string {
	t.Helper()
	runRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(runRoot, "plan.txt"), []byte("plan\n"), 0o644); err != nil {
		t.Fatalf("WriteFile(plan.txt) error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(runRoot, "manifest.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("WriteFile(manifest.json) error = %v", err)
	}
	return runRoot
}

func TestRun_CopiesFileSuccessfully(t *testing.T) {
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "a.txt")
	if err := os.WriteFile(srcPath, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	runRoot := setupRunRoot(t)
	destPath := filepath.Join(runRoot, "a.txt")
	plan := model.BackupPlan{Operations: []model.PlannedOperation{
		{OperationType: model.OpCopyFileToArchive, SourcePath: srcPath, DestinationPath: destPath, RelativePath: "a.txt"},
	}}

	summary, err := Run(runRoot, plan, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Status != "success" {
		t.Errorf("Status = %q, want success", summary.Status)
	}
	if len(summary.Results) != 1 || summary.Results[0].Outcome != model.OutcomeCopied {
		t.Fatalf("unexpected results: %+v", summary.Results)
	}

	data, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("ReadFile(dest) error = %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("copied content = %q, want %q", data, "hello")
	}
}

func TestRun_SkipsNonCopyOperation(t *testing.T) {
	runRoot := setupRunRoot(t)
	plan := model.BackupPlan{Operations: []model.PlannedOperation{
		{OperationType: model.OpSkipUnsafePath, RelativePath: "../escape.txt"},
	}}

	summary, err := Run(runRoot, plan, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Status != "success" {
		t.Errorf("Status = %q, want success", summary.Status)
	}
	if summary.Results[0].Outcome != model.OutcomeSkippedNonCopyOperation {
		t.Errorf("Outcome = %v, want OutcomeSkippedNonCopyOperation", summary.Results[0].Outcome)
	}
}

func TestRun_ReservedDestinationFailsInvariant(t *testing.T) {
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "manifest.json")
	if err := os.WriteFile(srcPath, []byte("{}"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	runRoot := setupRunRoot(t)
	destPath := filepath.Join(runRoot, "manifest.json")
	reserved := NewReservedPaths(destPath)

	plan := model.BackupPlan{Operations: []model.PlannedOperation{
		{OperationType: model.OpCopyFileToArchive, SourcePath: srcPath, DestinationPath: destPath, RelativePath: "manifest.json"},
	}}

	summary, err := Run(runRoot, plan, reserved)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Status != "failed" {
		t.Errorf("Status = %q, want failed", summary.Status)
	}
	if len(summary.Results) != 1 || summary.Results[0].Outcome != model.OutcomeFailedInvariant {
		t.Fatalf("unexpected results: %+v", summary.Results)
	}
}

func TestRun_StopsAfterFirstFailure(t *testing.T) {
	runRoot := setupRunRoot(t)
	plan := model.BackupPlan{Operations: []model.PlannedOperation{
		{OperationType: model.OpCopyFileToArchive, SourcePath: filepath.Join(runRoot, "missing.txt"), DestinationPath: filepath.Join(runRoot, "out1.txt"), RelativePath: "out1.txt"},
		{OperationType: model.OpCopyFileToArchive, SourcePath: filepath.Join(runRoot, "missing.txt"), DestinationPath: filepath.Join(runRoot, "out2.txt"), RelativePath: "out2.txt"},
	}}

	summary, err := Run(runRoot, plan, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(summary.Results) != 1 {
		t.Fatalf("expected execution to stop after the first failure, got %d results", len(summary.Results))
	}
	if summary.Results[0].Outcome != model.OutcomeFailedIO {
		t.Errorf("Outcome = %v, want OutcomeFailedIO", summary.Results[0].Outcome)
	}
}

func TestRun_RefusesSymlinkSource(t *testing.T) {
	srcDir := t.TempDir()
	realPath := filepath.Join(srcDir, "real.txt")
	if err := os.WriteFile(realPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	linkPath := filepath.Join(srcDir, "link.txt")
	if err := os.Symlink(realPath, linkPath); err != nil {
		t.Skipf("symlink creation unsupported: %v", err)
	}

	runRoot := setupRunRoot(t)
	plan := model.BackupPlan{Operations: []model.PlannedOperation{
		{OperationType: model.OpCopyFileToArchive, SourcePath: linkPath, DestinationPath: filepath.Join(runRoot, "link.txt"), RelativePath: "link.txt"},
	}}

	summary, err := Run(runRoot, plan, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Results[0].Outcome != model.OutcomeFailedIO {
		t.Errorf("Outcome = %v, want OutcomeFailedIO", summary.Results[0].Outcome)
	}
}

func TestRun_RequiresMaterializedRunRoot(t *testing.T) {
	_, err := Run(t.TempDir(), model.BackupPlan{}, nil)
	if err == nil {
		t.Error("expected an error for a run root missing plan.txt/manifest.json")
	}
}
