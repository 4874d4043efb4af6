// Package materialize creates a run directory on disk and writes its plan
// text and manifest, in that fixed order (plan.txt before manifest.json),
// so a manifest never references a plan that failed to land.
package materialize

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/PolymathAlchemist/WCBT/internal/jsonstore"
	"github.com/PolymathAlchemist/WCBT/internal/model"
)

// ErrAlreadyMaterialized is returned when runRoot already exists.
var ErrAlreadyMaterialized = errors.New("run directory already exists")

// Paths names the artifacts a materialized run always has.
type Paths struct {
	RunRoot      string
	PlanTextPath string
	ManifestPath string
}

// Run creates runRoot exclusively, writes planText to plan.txt, then
// writes manifest to manifest.json, and finally confirms both landed.
func Run(runRoot string, manifest model.RunManifestV2, planText string) (Paths, error) {
	if err := os.Mkdir(runRoot, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return Paths{}, fmt.Errorf("materialize: %s: %w", runRoot, ErrAlreadyMaterialized)
		}
		return Paths{}, fmt.Errorf("materialize: creating %s: %w", runRoot, err)
	}

	paths := Paths{
		RunRoot:      runRoot,
		PlanTextPath: filepath.Join(runRoot, "plan.txt"),
		ManifestPath: filepath.Join(runRoot, "manifest.json"),
	}

	if err := jsonstore.WriteTextAtomic(paths.PlanTextPath, planText); err != nil {
		return Paths{}, fmt.Errorf("materialize: writing plan text: %w", err)
	}

	manifest.PlanTextPath = paths.PlanTextPath
	if err := jsonstore.WriteAtomic(paths.ManifestPath, manifest, jsonstore.DefaultWriteOptions); err != nil {
		return Paths{}, fmt.Errorf("materialize: writing manifest: %w", err)
	}

	if err := assertExists(paths.PlanTextPath); err != nil {
		return Paths{}, err
	}
	if err := assertExists(paths.ManifestPath); err != nil {
		return Paths{}, err
	}

	return paths, nil
}

func assertExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("materialize: expected artifact missing: %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("materialize: expected file, found directory: %s", path)
	}
	return nil
}
