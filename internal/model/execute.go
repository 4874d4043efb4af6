package model

// Outcome is the closed set of per-operation execution results.
type Outcome string

const (
	OutcomeCopied                  Outcome = "copied"
	OutcomeSkippedNonCopyOperation Outcome = "skipped_non_copy_operation"
	OutcomeFailedInvariant         Outcome = "failed_invariant"
	OutcomeFailedIO                Outcome = "failed_io"
)

// OperationResult is the recorded outcome of executing one planned
// operation, in plan order.
type OperationResult struct {
	OperationIndex  int           `json:"operation_index"`
	OperationType   OperationType `json:"operation_type"`
	RelativePath    string        `json:"relative_path"`
	SourcePath      string        `json:"source_path"`
	DestinationPath string        `json:"destination_path"`
	Outcome         Outcome       `json:"outcome"`
	Message         string        `json:"message,omitempty"`

	// VerificationOutcome and Verification are additive fields written
	// only by the Verifier, never by the Executor.
	VerificationOutcome VerificationOutcome `json:"verification_outcome,omitempty"`
	Verification        *VerificationDetail `json:"verification,omitempty"`
}

// ExecutionSummary is the whole-run result of an Executor pass.
type ExecutionSummary struct {
	Status  string            `json:"status"` // "success" or "failed"
	Results []OperationResult `json:"results"`
}
