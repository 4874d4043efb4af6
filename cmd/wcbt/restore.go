package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PolymathAlchemist/WCBT/internal/clock"
	"github.com/PolymathAlchemist/WCBT/internal/model"
	"github.com/PolymathAlchemist/WCBT/internal/restorerun"
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Stage and promote a prior run's manifest into a destination directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		manifestPath, _ := cmd.Flags().GetString("manifest")
		dest, _ := cmd.Flags().GetString("dest")
		modeFlag, _ := cmd.Flags().GetString("mode")
		verifyFlag, _ := cmd.Flags().GetString("verify")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		mode, ok := model.ParseRestoreMode(modeFlag)
		if !ok {
			return fmt.Errorf("restore: unknown --mode %q", modeFlag)
		}
		verification, ok := model.ParseRestoreVerification(verifyFlag)
		if !ok {
			return fmt.Errorf("restore: unknown --verify %q", verifyFlag)
		}

		c := clock.System{}
		runID := clock.RunID(c.Now())

		summary, err := restorerun.Run(restorerun.Request{
			ManifestPath:    manifestPath,
			DestinationRoot: dest,
			Mode:            mode,
			Verification:    verification,
			DryRun:          dryRun,
		}, runID, c)

		fmt.Printf("Result: %s\n", summary.Result)
		fmt.Printf("Planned: %d, Staged: %d, Verified: %d\n", summary.PlannedFiles, summary.StagedFiles, summary.VerifiedFiles)
		if summary.Promoted {
			fmt.Println("Promoted: yes")
		}
		if summary.Error != "" {
			fmt.Printf("Error: %s\n", summary.Error)
		}
		if err != nil && !errors.Is(err, restorerun.ErrConflict) {
			return fmt.Errorf("%w: %v", errRestoreNonConflictFailure, err)
		}
		return err
	},
}

// errRestoreNonConflictFailure marks a restore command failure that is not
// an add-only conflict, so the CLI's exit-code mapping can tell it apart
// from every other command's failures (which share exit code 2 with
// restore conflicts).
var errRestoreNonConflictFailure = errors.New("restore failed")

func isRestoreNonConflictFailure(err error) bool {
	return errors.Is(err, errRestoreNonConflictFailure)
}

func init() {
	restoreCmd.Flags().String("manifest", "", "Path to the run manifest to restore from (required)")
	restoreCmd.Flags().String("dest", "", "Destination directory to restore into (required)")
	restoreCmd.Flags().String("mode", "add-only", "Conflict policy: add-only or overwrite")
	restoreCmd.Flags().String("verify", "none", "Post-stage verification: none or size")
	restoreCmd.Flags().Bool("dry-run", false, "Plan and write restore artifacts only; nothing is staged or promoted")
	restoreCmd.MarkFlagRequired("manifest")
	restoreCmd.MarkFlagRequired("dest")
}
