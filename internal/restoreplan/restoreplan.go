// Package restoreplan reads a backup run manifest and turns it into a
// restore plan plus the concrete per-file candidates a stager will copy.
package restoreplan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PolymathAlchemist/WCBT/internal/model"
	"github.com/PolymathAlchemist/WCBT/internal/pathsafety"
	"github.com/PolymathAlchemist/WCBT/internal/safepath"
)

// ErrManifestError wraps every rejection this package makes while reading
// or validating a manifest.
var ErrManifestError = errors.New("restore manifest error")

// ErrConflict wraps rejections about how the two roots relate to each other.
var ErrConflict = errors.New("restore conflict")

// Intent is the caller-supplied restore request, before it has been
// resolved against the actual manifest on disk.
type Intent struct {
	ManifestPath    string
	DestinationRoot string
	Mode            model.RestoreMode
	Verification    model.RestoreVerification
}

// Build reads the manifest at intent.ManifestPath, validates it, and
// returns the resolved RestorePlanV1 plus the full list of planned
// operations (needed by Materialize, since the plan itself only carries a
// minimal manifest summary).
func Build(intent Intent, runID, createdAtUTC string) (model.RestorePlanV1, []model.PlannedOperation, error) {
	raw, err := os.ReadFile(intent.ManifestPath)
	if err != nil {
		return model.RestorePlanV1{}, nil, fmt.Errorf("%w: reading %s: %v", ErrManifestError, intent.ManifestPath, err)
	}

	var manifest model.RunManifestV2
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return model.RestorePlanV1{}, nil, fmt.Errorf("%w: parsing %s: %v", ErrManifestError, intent.ManifestPath, err)
	}
	if manifest.SchemaVersion != model.RunManifestSchemaVersion {
		return model.RestorePlanV1{}, nil, fmt.Errorf("%w: unexpected schema_version %q", ErrManifestError, manifest.SchemaVersion)
	}
	if manifest.RunID == "" || manifest.CreatedAtUTC == "" || manifest.ArchiveRoot == "" {
		return model.RestorePlanV1{}, nil, fmt.Errorf("%w: manifest is missing required fields", ErrManifestError)
	}

	archiveRoot, err := resolveExistingDir(manifest.ArchiveRoot)
	if err != nil {
		return model.RestorePlanV1{}, nil, fmt.Errorf("%w: archive root: %v", ErrManifestError, err)
	}

	destRoot, err := pathsafety.ValidateRestoreTarget(intent.DestinationRoot)
	if err != nil {
		return model.RestorePlanV1{}, nil, err
	}

	if destRoot.Within(archiveRoot) || archiveRoot.Within(destRoot) {
		return model.RestorePlanV1{}, nil, fmt.Errorf("%w: destination root and archive root must not contain each other", ErrConflict)
	}

	sum := sha256.Sum256(raw)

	plan := model.RestorePlanV1{
		SchemaVersion:     model.RestorePlanSchemaVersion,
		ExecutionStrategy: model.RestoreExecutionStrategy,
		RunID:             runID,
		CreatedAtUTC:      createdAtUTC,
		ManifestPath:      intent.ManifestPath,
		ManifestSHA256:    hex.EncodeToString(sum[:]),
		ArchiveRoot:       archiveRoot.String(),
		DestinationRoot:   destRoot.String(),
		ProfileName:       manifest.ProfileName,
		Mode:              intent.Mode,
		Verification:      intent.Verification,
		SourceManifestMin: model.SourceManifestMin{
			RunID:           manifest.RunID,
			CreatedAtUTC:    manifest.CreatedAtUTC,
			ProfileName:     manifest.ProfileName,
			OperationsCount: len(manifest.Operations),
		},
	}

	return plan, manifest.Operations, nil
}

func resolveExistingDir(path string) (safepath.Path, error) {
	sp, err := safepath.New(path)
	if err != nil {
		return safepath.Path{}, err
	}
	info, err := os.Stat(sp.String())
	if err != nil || !info.IsDir() {
		return safepath.Path{}, fmt.Errorf("archive root does not exist or is not a directory: %s", sp.String())
	}
	return sp, nil
}

// Materialize turns the full operations list from the source manifest into
// concrete restore candidates under plan's archive/destination roots,
// deciding each candidate's action from destination existence and mode.
func Materialize(plan model.RestorePlanV1, operations []model.PlannedOperation) ([]model.RestoreCandidate, error) {
	candidates := make([]model.RestoreCandidate, 0, len(operations))

	for i, op := range operations {
		if op.OperationType != model.OpCopyFileToArchive {
			continue
		}

		parts, err := relativePathParts(op.RelativePath)
		if err != nil {
			return nil, fmt.Errorf("restoreplan: operation %d: %w", i, err)
		}

		sourcePath := filepath.Join(append([]string{plan.ArchiveRoot}, parts...)...)
		destPath := filepath.Join(append([]string{plan.DestinationRoot}, parts...)...)

		opType := decideOperationType(plan.Mode, destPath)

		candidates = append(candidates, model.RestoreCandidate{
			OperationIndex:  i,
			RelativePath:    op.RelativePath,
			SourcePath:      sourcePath,
			DestinationPath: destPath,
			OperationType:   opType,
		})
	}

	return candidates, nil
}

func decideOperationType(mode model.RestoreMode, destPath string) model.RestoreOperationType {
	_, err := os.Stat(destPath)
	exists := err == nil

	if !exists {
		return model.RestoreOpCopyNew
	}
	if mode == model.RestoreModeOverwrite {
		return model.RestoreOpOverwriteExisting
	}
	return model.RestoreOpSkipExisting
}

func relativePathParts(relativePath string) ([]string, error) {
	normalized := strings.ReplaceAll(relativePath, `\`, "/")
	parts := strings.Split(normalized, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." || part == ".." || strings.Contains(part, ":") {
			return nil, fmt.Errorf("unsafe relative path segment %q in %q", part, relativePath)
		}
		out = append(out, part)
	}
	return out, nil
}
