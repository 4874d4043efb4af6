package model

// RunManifestSchemaVersion is the canonical schema tag for a backup run
// manifest. Any other value fails restore planning's schema check.
const RunManifestSchemaVersion = "wcbt_run_manifest_v2"

// RunManifestV2 is the canonical, on-disk record of a single backup run.
// It is written once at materialization time (Execution nil) and rewritten
// atomically after execution to add results.
type RunManifestV2 struct {
	SchemaVersion string            `json:"schema_version"`
	RunID         string            `json:"run_id"`
	CreatedAtUTC  string            `json:"created_at_utc"`
	ArchiveRoot   string            `json:"archive_root"`
	PlanTextPath  string            `json:"plan_text_path"`
	ProfileName   string            `json:"profile_name"`
	SourceRoot    string            `json:"source_root"`
	Operations    []PlannedOperation `json:"operations"`
	ScanIssues    []ScanIssue        `json:"scan_issues"`
	Execution     *ExecutionSummary  `json:"execution,omitempty"`
	Verification  *ManifestVerificationSummary `json:"verification,omitempty"`
}

// ManifestVerificationSummary is the top-level `verification` block a verify
// pass adds to manifest.json, separate from the per-operation verification
// fields already recorded on each OperationResult.
type ManifestVerificationSummary struct {
	Status               string `json:"status"` // "success" or "failed"
	HashAlgorithm        string `json:"hash_algorithm"`
	VerifiedCount        int    `json:"verified_count"`
	FailedCount          int    `json:"failed_count"`
	NotApplicableCount   int    `json:"not_applicable_count"`
	TotalVerifiableCount int    `json:"total_verifiable_count"`
}

// NewRunManifestV2 builds a manifest ready for materialization.
func NewRunManifestV2(runID, createdAtUTC, archiveRoot, planTextPath, profileName, sourceRoot string, plan BackupPlan) RunManifestV2 {
	ops := plan.Operations
	if ops == nil {
		ops = []PlannedOperation{}
	}
	issues := plan.ScanIssues
	if issues == nil {
		issues = []ScanIssue{}
	}
	return RunManifestV2{
		SchemaVersion: RunManifestSchemaVersion,
		RunID:         runID,
		CreatedAtUTC:  createdAtUTC,
		ArchiveRoot:   archiveRoot,
		PlanTextPath:  planTextPath,
		ProfileName:   profileName,
		SourceRoot:    sourceRoot,
		Operations:    ops,
		ScanIssues:    issues,
	}
}
