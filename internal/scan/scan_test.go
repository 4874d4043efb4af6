package scan

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/PolymathAlchemist/WCBT/internal/model"
)

func writeFile(t *testing.T, path string, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll(%s) error = %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}

func TestTree_SortedDeterministicOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "zeta.txt"), "z")
	writeFile(t, filepath.Join(root, "Alpha.txt"), "a")
	writeFile(t, filepath.Join(root, "sub", "beta.txt"), "b")

	result := Tree(root, DefaultRules())

	if len(result.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(result.Entries), result.Entries)
	}
	got := []string{result.Entries[0].RelativePath, result.Entries[1].RelativePath, result.Entries[2].RelativePath}
	want := []string{"Alpha.txt", "sub/beta.txt", "zeta.txt"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Entries[%d] = %q, want %q (full order: %v)", i, got[i], want[i], got)
		}
	}
}

func TestTree_ExcludesDefaultDirectoryNames(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.txt"), "k")
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref")

	result := Tree(root, DefaultRules())

	for _, e := range result.Entries {
		if e.RelativePath == ".git/HEAD" {
			t.Errorf("expected .git to be excluded, found entry %q", e.RelativePath)
		}
	}
	if len(result.Entries) != 1 || result.Entries[0].RelativePath != "keep.txt" {
		t.Errorf("unexpected entries: %+v", result.Entries)
	}
}

func TestTree_ExcludesCustomNames(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.txt"), "k")
	writeFile(t, filepath.Join(root, "skip.log"), "l")
	writeFile(t, filepath.Join(root, "cache", "x.bin"), "x")

	rules := model.ScanRules{
		ExcludedDirectoryNames: map[string]struct{}{"cache": {}},
		ExcludedFileNames:      map[string]struct{}{"skip.log": {}},
	}
	result := Tree(root, rules)

	if len(result.Entries) != 1 || result.Entries[0].RelativePath != "keep.txt" {
		t.Errorf("expected only keep.txt, got %+v", result.Entries)
	}
}

func TestTree_SymlinkReportedAsIssue(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires elevated privileges on Windows")
	}
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "real.txt"), "r")
	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Fatalf("Symlink() error = %v", err)
	}

	result := Tree(root, DefaultRules())

	if len(result.Entries) != 1 || result.Entries[0].RelativePath != "real.txt" {
		t.Errorf("expected only real.txt as an entry, got %+v", result.Entries)
	}
	foundIssue := false
	for _, issue := range result.Issues {
		if issue.Path == "link.txt" {
			foundIssue = true
		}
	}
	if !foundIssue {
		t.Errorf("expected an issue for link.txt, got %+v", result.Issues)
	}
}

func TestTree_DoubleDotSubstringInNameIsSafe(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a..b.txt"), "x")

	result := Tree(root, DefaultRules())

	if len(result.Issues) != 0 {
		t.Errorf("expected no issues for a name containing '..' as a substring, got %+v", result.Issues)
	}
	if len(result.Entries) != 1 || result.Entries[0].RelativePath != "a..b.txt" {
		t.Errorf("expected a..b.txt to be scanned as a normal entry, got %+v", result.Entries)
	}
}

func TestTree_EmptyDirectoryProducesNoEntries(t *testing.T) {
	root := t.TempDir()
	result := Tree(root, DefaultRules())

	if len(result.Entries) != 0 || len(result.Issues) != 0 {
		t.Errorf("expected no entries or issues for an empty tree, got entries=%+v issues=%+v", result.Entries, result.Issues)
	}
}
