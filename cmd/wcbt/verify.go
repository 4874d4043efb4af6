package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PolymathAlchemist/WCBT/internal/clock"
	"github.com/PolymathAlchemist/WCBT/internal/jsonstore"
	"github.com/PolymathAlchemist/WCBT/internal/model"
	"github.com/PolymathAlchemist/WCBT/internal/pathsafety"
	"github.com/PolymathAlchemist/WCBT/internal/profilelock"
	"github.com/PolymathAlchemist/WCBT/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-hash a materialized run's copied files, record their digests, and check any expected digest the manifest carries",
	RunE: func(cmd *cobra.Command, args []string) error {
		profileName, _ := cmd.Flags().GetString("profile")
		runID, _ := cmd.Flags().GetString("run-id")
		dataRoot, _ := cmd.Flags().GetString("data-root")
		force, _ := cmd.Flags().GetBool("force")
		breakLock, _ := cmd.Flags().GetBool("break-lock")

		paths, err := pathsafety.ResolveProfilePaths(profileName, dataRoot)
		if err != nil {
			return err
		}
		if err := pathsafety.EnsureProfileDirectories(paths); err != nil {
			return err
		}

		c := clock.System{}
		lockPath := profilelock.BuildPath(paths.WorkRoot.String())
		handle, err := profilelock.Acquire(lockPath, profileName, "verify", clock.RunID(c.Now()), profilelock.Options{
			Force:     force,
			BreakLock: breakLock,
		}, c)
		if err != nil {
			return err
		}
		defer handle.Release()

		archiveRoot := paths.ArchivesRoot.Join(runID)
		manifestPath := archiveRoot.Join("manifest.json").String()

		var manifest model.RunManifestV2
		if err := jsonstore.ReadJSON(manifestPath, &manifest); err != nil {
			return fmt.Errorf("verify: reading manifest %s: %w", manifestPath, err)
		}

		counts, records, err := verify.Run(&manifest)
		if err != nil {
			return err
		}
		if err := verify.WriteReport(archiveRoot.String(), runID, counts, records); err != nil {
			return err
		}
		if err := jsonstore.WriteAtomic(manifestPath, manifest, jsonstore.DefaultWriteOptions); err != nil {
			return fmt.Errorf("verify: rewriting manifest with verification results: %w", err)
		}

		fmt.Printf("Verified: %d, Failed: %d, Not applicable: %d\n", counts.Verified, counts.Failed, counts.NotApplicable)
		if counts.Failed > 0 {
			return fmt.Errorf("verify: %d file(s) failed digest verification", counts.Failed)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().String("profile", "", "Profile name (required)")
	verifyCmd.Flags().String("run-id", "", "Run ID to re-verify (required)")
	verifyCmd.Flags().String("data-root", "", "WCBT data root (defaults to the platform data directory)")
	verifyCmd.Flags().Bool("force", false, "Break the profile lock only if it is provably stale")
	verifyCmd.Flags().Bool("break-lock", false, "Break any existing profile lock unconditionally")
	verifyCmd.MarkFlagRequired("profile")
	verifyCmd.MarkFlagRequired("run-id")
}
