package pathsafety

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateProfileName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"photos", false},
		{"", true},
		{".", true},
		{"..", true},
		{"a/b", true},
		{"a:b", true},
	}
	for _, tc := range cases {
		err := ValidateProfileName(tc.name)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateProfileName(%q) error = %v, wantErr %v", tc.name, err, tc.wantErr)
		}
		if err != nil && !errors.Is(err, ErrSafetyViolation) {
			t.Errorf("ValidateProfileName(%q) error = %v, want wrapped ErrSafetyViolation", tc.name, err)
		}
	}
}

func TestResolveProfilePaths_LayoutUnderDataRoot(t *testing.T) {
	dataRoot := t.TempDir()
	paths, err := ResolveProfilePaths("photos", dataRoot)
	if err != nil {
		t.Fatalf("ResolveProfilePaths() error = %v", err)
	}

	wantProfileRoot := filepath.Join(dataRoot, "WCBT", "profiles", "photos")
	if paths.ProfileRoot.String() != wantProfileRoot {
		t.Errorf("ProfileRoot = %q, want %q", paths.ProfileRoot.String(), wantProfileRoot)
	}
	if !paths.ArchivesRoot.Within(paths.ProfileRoot) {
		t.Error("ArchivesRoot should be nested under ProfileRoot")
	}
	if !paths.IndexRoot.Within(paths.ProfileRoot) {
		t.Error("IndexRoot should be nested under ProfileRoot")
	}
}

func TestResolveProfilePaths_RejectsInvalidName(t *testing.T) {
	_, err := ResolveProfilePaths("a/b", t.TempDir())
	if !errors.Is(err, ErrSafetyViolation) {
		t.Errorf("ResolveProfilePaths() error = %v, want ErrSafetyViolation", err)
	}
}

func TestEnsureProfileDirectories_CreatesAllRoots(t *testing.T) {
	dataRoot := t.TempDir()
	paths, err := ResolveProfilePaths("photos", dataRoot)
	if err != nil {
		t.Fatalf("ResolveProfilePaths() error = %v", err)
	}

	if err := EnsureProfileDirectories(paths); err != nil {
		t.Fatalf("EnsureProfileDirectories() error = %v", err)
	}

	for _, dir := range []string{
		paths.ProfileRoot.String(), paths.WorkRoot.String(), paths.ManifestsRoot.String(),
		paths.ArchivesRoot.String(), paths.IndexRoot.String(), paths.LogsRoot.String(),
		paths.LiveSnapshotsRoot.String(),
	} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory to exist: %s (err=%v)", dir, err)
		}
	}
}

func TestValidateSourcePath(t *testing.T) {
	dir := t.TempDir()

	sp, err := ValidateSourcePath(dir)
	if err != nil {
		t.Fatalf("ValidateSourcePath() error = %v", err)
	}
	if sp.String() == "" {
		t.Error("expected a resolved path")
	}

	if _, err := ValidateSourcePath(filepath.Join(dir, "missing")); !errors.Is(err, ErrSafetyViolation) {
		t.Errorf("expected ErrSafetyViolation for a missing source, got %v", err)
	}

	file := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := ValidateSourcePath(file); !errors.Is(err, ErrSafetyViolation) {
		t.Errorf("expected ErrSafetyViolation for a non-directory source, got %v", err)
	}
}

func TestValidateSourcePath_RejectsFilesystemRoot(t *testing.T) {
	if _, err := ValidateSourcePath("/"); !errors.Is(err, ErrSafetyViolation) {
		t.Errorf("expected ErrSafetyViolation for the filesystem root, got %v", err)
	}
}

func TestValidateRestoreTarget_RejectsShallowPath(t *testing.T) {
	if _, err := ValidateRestoreTarget("/tmp"); !errors.Is(err, ErrSafetyViolation) {
		t.Errorf("expected ErrSafetyViolation for a shallow restore target, got %v", err)
	}
}

func TestValidateRestoreTarget_AcceptsDeepPath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "restore", "target")
	if _, err := ValidateRestoreTarget(dir); err != nil {
		t.Errorf("ValidateRestoreTarget() error = %v, want nil for a sufficiently deep path", err)
	}
}

func TestAsText_ListsAllRoots(t *testing.T) {
	paths, err := ResolveProfilePaths("photos", t.TempDir())
	if err != nil {
		t.Fatalf("ResolveProfilePaths() error = %v", err)
	}
	text := paths.AsText()
	for _, want := range []string{"data_root:", "profile_root:", "archives_root:", "index_root:"} {
		if !strings.Contains(text, want) {
			t.Errorf("AsText() = %q, missing %q", text, want)
		}
	}
}
