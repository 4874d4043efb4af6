package model

// RestoreMode controls whether restore overwrites files already present at
// the destination.
type RestoreMode string

const (
	RestoreModeAddOnly  RestoreMode = "add-only"
	RestoreModeOverwrite RestoreMode = "overwrite"
)

// ParseRestoreMode validates a CLI-provided mode string.
func ParseRestoreMode(s string) (RestoreMode, bool) {
	switch RestoreMode(s) {
	case RestoreModeAddOnly, RestoreModeOverwrite:
		return RestoreMode(s), true
	default:
		return "", false
	}
}

// RestoreVerification controls how staged files are checked against their
// archive sources before promotion.
type RestoreVerification string

const (
	RestoreVerificationNone RestoreVerification = "none"
	RestoreVerificationSize RestoreVerification = "size"
)

// ParseRestoreVerification validates a CLI-provided verification mode.
func ParseRestoreVerification(s string) (RestoreVerification, bool) {
	switch RestoreVerification(s) {
	case RestoreVerificationNone, RestoreVerificationSize:
		return RestoreVerification(s), true
	default:
		return "", false
	}
}

// RestoreOperationType is the closed set of per-candidate restore actions.
type RestoreOperationType string

const (
	RestoreOpCopyNew         RestoreOperationType = "copy_new"
	RestoreOpOverwriteExisting RestoreOperationType = "overwrite_existing"
	RestoreOpSkipExisting    RestoreOperationType = "skip_existing"
)

const RestorePlanSchemaVersion = "wcbt_restore_plan_v1"
const RestoreExecutionStrategy = "staged_atomic_replace"

// SourceManifestMin is the minimal, derived summary of the manifest a
// restore plan was built from; it never replaces the manifest as the
// source of truth.
type SourceManifestMin struct {
	RunID          string `json:"run_id"`
	CreatedAtUTC   string `json:"created_at_utc"`
	ProfileName    string `json:"profile_name"`
	OperationsCount int    `json:"operations_count"`
}

// RestorePlanV1 is the canonical, on-disk plan for one restore run.
type RestorePlanV1 struct {
	SchemaVersion      string               `json:"schema_version"`
	ExecutionStrategy  string               `json:"execution_strategy"`
	RunID              string               `json:"run_id"`
	CreatedAtUTC       string               `json:"created_at_utc"`
	ManifestPath       string               `json:"manifest_path"`
	ManifestSHA256     string               `json:"manifest_sha256"`
	ArchiveRoot        string               `json:"archive_root"`
	DestinationRoot    string               `json:"destination_root"`
	ProfileName        string               `json:"profile_name"`
	Mode               RestoreMode          `json:"mode"`
	Verification       RestoreVerification  `json:"verification"`
	SourceManifestMin  SourceManifestMin    `json:"source_manifest"`
}

// RestoreCandidate is one file staged by a restore run.
type RestoreCandidate struct {
	OperationIndex  int                  `json:"operation_index"`
	RelativePath    string               `json:"relative_path"`
	SourcePath      string               `json:"source_path"`
	DestinationPath string               `json:"destination_path"`
	OperationType   RestoreOperationType `json:"operation_type"`
	Reason          string               `json:"reason,omitempty"`
}
