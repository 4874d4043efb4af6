package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PolymathAlchemist/WCBT/internal/backup"
	"github.com/PolymathAlchemist/WCBT/internal/clock"
	"github.com/PolymathAlchemist/WCBT/internal/compress"
	"github.com/PolymathAlchemist/WCBT/internal/pathsafety"
	"github.com/PolymathAlchemist/WCBT/internal/rules"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Scan, plan, and optionally execute a backup run",
	RunE: func(cmd *cobra.Command, args []string) error {
		profileName, _ := cmd.Flags().GetString("profile")
		source, _ := cmd.Flags().GetString("source")
		dataRoot, _ := cmd.Flags().GetString("data-root")
		excludeDirs, _ := cmd.Flags().GetStringArray("exclude-dir")
		excludeFiles, _ := cmd.Flags().GetStringArray("exclude-file")
		noDefaultExcludes, _ := cmd.Flags().GetBool("no-default-excludes")
		maxItems, _ := cmd.Flags().GetInt("max-items")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		materialize, _ := cmd.Flags().GetBool("materialize")
		execute, _ := cmd.Flags().GetBool("execute")
		writePlan, _ := cmd.Flags().GetBool("write-plan")
		planPath, _ := cmd.Flags().GetString("plan-path")
		overwritePlan, _ := cmd.Flags().GetBool("overwrite-plan")
		force, _ := cmd.Flags().GetBool("force")
		breakLock, _ := cmd.Flags().GetBool("break-lock")
		compressFlag, _ := cmd.Flags().GetString("compress")

		modeCount := 0
		for _, b := range []bool{dryRun, materialize, execute} {
			if b {
				modeCount++
			}
		}
		if modeCount != 1 {
			return fmt.Errorf("backup: exactly one of --dry-run, --materialize, --execute is required")
		}

		mode := backup.ModeDryRun
		switch {
		case materialize:
			mode = backup.ModeMaterialize
		case execute:
			mode = backup.ModeExecute
		}

		var compressFormat compress.Format
		if compressFlag != "" {
			if mode != backup.ModeExecute {
				return fmt.Errorf("backup: --compress requires --execute")
			}
			format, err := compress.ParseFormat(compressFlag)
			if err != nil {
				return err
			}
			compressFormat = format
		}

		var ruleSet rules.RuleSet
		if profileName != "" {
			loaded, err := loadProfileRules(profileName, dataRoot)
			if err != nil {
				return err
			}
			ruleSet = loaded
		}

		req := backup.Request{
			ProfileName:            profileName,
			Source:                 source,
			DataRoot:               dataRoot,
			ExcludedDirectoryNames: excludeDirs,
			ExcludedFileNames:      excludeFiles,
			UseDefaultExcludes:     !noDefaultExcludes,
			MaxItems:               maxItems,
			Mode:                   mode,
			WritePlan:              writePlan,
			PlanPath:               planPath,
			OverwritePlan:          overwritePlan,
			Force:                  force,
			BreakLock:              breakLock,
			RuleSet:                ruleSet,
			Compress:               compressFormat,
		}

		result, err := backup.Run(req, clock.System{})
		if err != nil {
			return err
		}

		fmt.Print(result.PlanText)
		if result.PlanTextPath != "" {
			fmt.Printf("\nPlan written to: %s\n", result.PlanTextPath)
		}
		if result.ManifestPath != "" {
			fmt.Printf("Manifest: %s\n", result.ManifestPath)
		}
		if result.Execution != nil {
			fmt.Printf("Execution status: %s\n", result.Execution.Status)
		}
		if result.VerifyCounts != nil {
			fmt.Printf("Verified: %d, Failed: %d\n", result.VerifyCounts.Verified, result.VerifyCounts.Failed)
		}
		if result.ArchivePath != "" {
			fmt.Printf("Archive: %s\n", result.ArchivePath)
		}
		return nil
	},
}

// loadProfileRules reads the rule set saved under the profile's own job ID
// (the profile name doubles as its job ID for the CLI's single-job-per-
// profile surface), returning an empty RuleSet if none has been saved yet.
func loadProfileRules(profileName, dataRoot string) (rules.RuleSet, error) {
	paths, err := pathsafety.ResolveProfilePaths(profileName, dataRoot)
	if err != nil {
		return rules.RuleSet{}, err
	}
	if err := pathsafety.EnsureProfileDirectories(paths); err != nil {
		return rules.RuleSet{}, err
	}
	store, err := rules.NewBoltStore(paths.IndexRoot.String())
	if err != nil {
		return rules.RuleSet{}, err
	}
	defer store.Close()

	return store.LoadRules(profileName)
}

func init() {
	backupCmd.Flags().String("profile", "", "Profile name (required)")
	backupCmd.Flags().String("source", "", "Source directory to back up (required)")
	backupCmd.Flags().String("data-root", "", "WCBT data root (defaults to the platform data directory)")
	backupCmd.Flags().StringArray("exclude-dir", nil, "Directory name to exclude (repeatable)")
	backupCmd.Flags().StringArray("exclude-file", nil, "File name to exclude (repeatable)")
	backupCmd.Flags().Bool("no-default-excludes", false, "Disable the built-in default exclusion set")
	backupCmd.Flags().Int("max-items", 0, "Maximum item count; must be non-negative, and the scan and plan are not limited by it")
	backupCmd.Flags().Bool("dry-run", false, "Scan and plan only; writes the profile directories and an optional plan artifact, no run directory")
	backupCmd.Flags().Bool("materialize", false, "Scan, plan, and write the run directory, but copy nothing")
	backupCmd.Flags().Bool("execute", false, "Scan, plan, materialize, and copy every planned file")
	backupCmd.Flags().Bool("write-plan", false, "Write the rendered plan to a text artifact")
	backupCmd.Flags().String("plan-path", "", "Path for the plan artifact (defaults under the archive root)")
	backupCmd.Flags().Bool("overwrite-plan", false, "Overwrite an existing plan artifact instead of failing")
	backupCmd.Flags().Bool("force", false, "Break the profile lock only if it is provably stale")
	backupCmd.Flags().Bool("break-lock", false, "Break any existing profile lock unconditionally")
	backupCmd.Flags().String("compress", "", "Compress the run directory after execution: zip or tar-zstd")
	backupCmd.MarkFlagRequired("profile")
	backupCmd.MarkFlagRequired("source")
}
