// Package verify streams SHA-256 over every copied archive file and
// records the result, both back into the run manifest and into a
// dedicated verify_report artifact set.
package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/PolymathAlchemist/WCBT/internal/jsonstore"
	"github.com/PolymathAlchemist/WCBT/internal/model"
)

const chunkSize = 1 << 20 // 1 MiB, matching the streaming hash loop this was ported from.

// ComputeDigest streams path through SHA-256 in 1 MiB chunks.
func ComputeDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("verify: opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("verify: hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Run verifies every copied operation in manifest, mutating its Execution
// results in place with additive verification fields, and returns the
// tally plus per-file records for the report artifacts.
func Run(manifest *model.RunManifestV2) (model.VerifyCounts, []model.VerifyRecordV1, error) {
	var counts model.VerifyCounts
	var records []model.VerifyRecordV1

	if manifest.Execution == nil {
		return counts, records, fmt.Errorf("verify: manifest %s has no execution results", manifest.RunID)
	}

	resultsByIndex := make(map[int]*model.OperationResult, len(manifest.Execution.Results))
	for i := range manifest.Execution.Results {
		r := &manifest.Execution.Results[i]
		resultsByIndex[r.OperationIndex] = r
	}

	for i, op := range manifest.Operations {
		result, ok := resultsByIndex[i]
		if !ok || op.OperationType != model.OpCopyFileToArchive || result.Outcome != model.OutcomeCopied {
			if ok {
				markNotApplicable(result)
				counts.NotApplicable++
			}
			continue
		}

		dest := destinationPath(result, op)
		var expected *string
		if result.Verification != nil {
			expected = result.Verification.ExpectedDigestHex
		}
		digest, err := ComputeDigest(dest)
		if err != nil {
			status := verifyFailureStatus(err)
			markFailed(result, status, err.Error())
			counts.Failed++
			records = append(records, model.VerifyRecordV1{
				Schema: model.VerifyRecordSchemaVersion,
				RunID:  manifest.RunID,
				Status: status,
				Path:   op.RelativePath,
			})
			continue
		}
		if expected != nil && *expected != digest {
			markFailed(result, "hash_mismatch", fmt.Sprintf("expected %s, got %s", *expected, digest))
			result.Verification.ExpectedDigestHex = expected
			counts.Failed++
			records = append(records, model.VerifyRecordV1{
				Schema: model.VerifyRecordSchemaVersion,
				RunID:  manifest.RunID,
				Status: "hash_mismatch",
				Path:   op.RelativePath,
			})
			continue
		}

		markVerified(result, digest, dest)
		result.Verification.ExpectedDigestHex = expected
		counts.Verified++
		records = append(records, model.VerifyRecordV1{
			Schema: model.VerifyRecordSchemaVersion,
			RunID:  manifest.RunID,
			Status: "ok",
			Path:   op.RelativePath,
		})
	}

	manifest.Verification = &model.ManifestVerificationSummary{
		Status:               verificationRunStatus(counts),
		HashAlgorithm:        "sha256",
		VerifiedCount:        counts.Verified,
		FailedCount:          counts.Failed,
		NotApplicableCount:   counts.NotApplicable,
		TotalVerifiableCount: counts.TotalVerifiable(),
	}

	return counts, records, nil
}

// verifyFailureStatus maps a digest-read failure to the spec's jsonl status
// vocabulary; the original collapses every read failure to "missing".
func verifyFailureStatus(err error) string {
	if errors.Is(err, fs.ErrNotExist) {
		return "missing"
	}
	return "unreadable"
}

func verificationRunStatus(counts model.VerifyCounts) string {
	if counts.Failed == 0 {
		return "success"
	}
	return "failed"
}

func destinationPath(result *model.OperationResult, op model.PlannedOperation) string {
	if result.DestinationPath != "" {
		return result.DestinationPath
	}
	return op.DestinationPath
}

func markNotApplicable(r *model.OperationResult) {
	r.VerificationOutcome = model.VerificationNotApplicable
}

func markFailed(r *model.OperationResult, status, errMsg string) {
	r.VerificationOutcome = model.VerificationFailed
	r.Verification = &model.VerificationDetail{
		HashAlgorithm: "sha256",
		Error:         fmt.Sprintf("%s: %s", status, errMsg),
	}
}

func markVerified(r *model.OperationResult, digestHex, path string) {
	size := int64(0)
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	r.VerificationOutcome = model.VerificationVerified
	r.Verification = &model.VerificationDetail{
		HashAlgorithm: "sha256",
		DigestHex:     digestHex,
		SizeBytes:     size,
	}
}

// WriteReport writes verify_report.json, verify_report.jsonl, and
// verify_summary.txt under runRoot.
func WriteReport(runRoot, runID string, counts model.VerifyCounts, records []model.VerifyRecordV1) error {
	report := model.VerifyReportV1{
		Schema:        model.VerifyReportSchemaVersion,
		RunID:         runID,
		Algorithm:     "sha256",
		Verified:      counts.Verified,
		Failed:        counts.Failed,
		NotApplicable: counts.NotApplicable,
	}
	if err := jsonstore.WriteAtomic(filepath.Join(runRoot, "verify_report.json"), report, jsonstore.DefaultWriteOptions); err != nil {
		return fmt.Errorf("verify: writing verify_report.json: %w", err)
	}

	jsonlPath := filepath.Join(runRoot, "verify_report.jsonl")
	if err := os.Remove(jsonlPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("verify: clearing previous verify_report.jsonl: %w", err)
	}
	for _, rec := range records {
		if err := jsonstore.AppendJSONLAtomic(jsonlPath, rec); err != nil {
			return fmt.Errorf("verify: writing verify_report.jsonl: %w", err)
		}
	}

	summary := fmt.Sprintf("run_id: %s\nverified: %d\nfailed: %d\nnot_applicable: %d\n",
		runID, counts.Verified, counts.Failed, counts.NotApplicable)
	if err := jsonstore.WriteTextAtomic(filepath.Join(runRoot, "verify_summary.txt"), summary); err != nil {
		return fmt.Errorf("verify: writing verify_summary.txt: %w", err)
	}

	return nil
}
