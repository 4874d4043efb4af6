package restorestage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/PolymathAlchemist/WCBT/internal/model"
)

func writeSourceFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestBuild_CopiesCopyableCandidates(t *testing.T) {
	root := t.TempDir()
	srcA := filepath.Join(root, "archive", "a.txt")
	srcB := filepath.Join(root, "archive", "sub", "b.txt")
	writeSourceFile(t, srcA, "a-contents")
	writeSourceFile(t, srcB, "b-contents")

	stageRoot := filepath.Join(root, "stage")
	candidates := []model.RestoreCandidate{
		{RelativePath: "a.txt", SourcePath: srcA, OperationType: model.RestoreOpCopyNew},
		{RelativePath: "sub/b.txt", SourcePath: srcB, OperationType: model.RestoreOpOverwriteExisting},
	}

	result, err := Build(candidates, stageRoot, false, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if result.StagedFiles != 2 || result.PlannedFiles != 2 {
		t.Errorf("result = %+v, want StagedFiles=2 PlannedFiles=2", result)
	}

	data, err := os.ReadFile(filepath.Join(stageRoot, "a.txt"))
	if err != nil {
		t.Fatalf("ReadFile(a.txt) error = %v", err)
	}
	if string(data) != "a-contents" {
		t.Errorf("a.txt contents = %q, want %q", data, "a-contents")
	}
	if _, err := os.ReadFile(filepath.Join(stageRoot, "sub", "b.txt")); err != nil {
		t.Errorf("expected sub/b.txt to be staged: %v", err)
	}
}

func TestBuild_SkipsSkipExistingCandidates(t *testing.T) {
	root := t.TempDir()
	stageRoot := filepath.Join(root, "stage")
	candidates := []model.RestoreCandidate{
		{RelativePath: "skip.txt", SourcePath: filepath.Join(root, "archive", "skip.txt"), OperationType: model.RestoreOpSkipExisting},
	}

	result, err := Build(candidates, stageRoot, false, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if result.StagedFiles != 0 {
		t.Errorf("StagedFiles = %d, want 0", result.StagedFiles)
	}
	if _, err := os.Stat(filepath.Join(stageRoot, "skip.txt")); !os.IsNotExist(err) {
		t.Error("expected skip.txt to not be staged")
	}
}

func TestBuild_DryRunCreatesNoStageDirectory(t *testing.T) {
	root := t.TempDir()
	srcA := filepath.Join(root, "archive", "a.txt")
	writeSourceFile(t, srcA, "x")
	stageRoot := filepath.Join(root, "stage")

	candidates := []model.RestoreCandidate{
		{RelativePath: "a.txt", SourcePath: srcA, OperationType: model.RestoreOpCopyNew},
	}

	result, err := Build(candidates, stageRoot, true, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if result.StagedFiles != 0 || result.PlannedFiles != 1 {
		t.Errorf("result = %+v, want StagedFiles=0 PlannedFiles=1", result)
	}
	if _, err := os.Stat(stageRoot); !os.IsNotExist(err) {
		t.Error("expected no stage directory to be created in dry-run mode")
	}
}

func TestBuild_MissingSourceFails(t *testing.T) {
	root := t.TempDir()
	candidates := []model.RestoreCandidate{
		{RelativePath: "missing.txt", SourcePath: filepath.Join(root, "archive", "missing.txt"), OperationType: model.RestoreOpCopyNew},
	}

	_, err := Build(candidates, filepath.Join(root, "stage"), false, nil)
	if err == nil {
		t.Error("expected an error for a missing source file")
	}
}
