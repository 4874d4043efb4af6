package materialize

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/PolymathAlchemist/WCBT/internal/jsonstore"
	"github.com/PolymathAlchemist/WCBT/internal/model"
)

func TestRun_WritesPlanThenManifest(t *testing.T) {
	runRoot := filepath.Join(t.TempDir(), "20260801_000000Z")
	manifest := model.NewRunManifestV2("20260801_000000Z", "2026-08-01T00:00:00Z", runRoot, "", "photos", "/src", model.BackupPlan{})

	paths, err := Run(runRoot, manifest, "plan: 0 operations\n")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, err := os.Stat(paths.PlanTextPath); err != nil {
		t.Errorf("plan.txt missing: %v", err)
	}
	if _, err := os.Stat(paths.ManifestPath); err != nil {
		t.Errorf("manifest.json missing: %v", err)
	}

	var written model.RunManifestV2
	if err := jsonstore.ReadJSON(paths.ManifestPath, &written); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if written.PlanTextPath != paths.PlanTextPath {
		t.Errorf("manifest.PlanTextPath = %q, want %q", written.PlanTextPath, paths.PlanTextPath)
	}
}

func TestRun_AlreadyMaterializedFails(t *testing.T) {
	runRoot := filepath.Join(t.TempDir(), "run")
	manifest := model.NewRunManifestV2("run", "2026-08-01T00:00:00Z", runRoot, "", "photos", "/src", model.BackupPlan{})

	if _, err := Run(runRoot, manifest, "plan\n"); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	_, err := Run(runRoot, manifest, "plan\n")
	if !errors.Is(err, ErrAlreadyMaterialized) {
		t.Errorf("second Run() error = %v, want ErrAlreadyMaterialized", err)
	}
}
