package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PolymathAlchemist/WCBT/internal/pathsafety"
	"github.com/PolymathAlchemist/WCBT/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and update a profile's include/exclude rule set",
}

var rulesGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the rule set saved for a profile's job",
	RunE: func(cmd *cobra.Command, args []string) error {
		profileName, _ := cmd.Flags().GetString("profile")
		job, _ := cmd.Flags().GetString("job")
		dataRoot, _ := cmd.Flags().GetString("data-root")

		store, err := openRuleStore(profileName, dataRoot)
		if err != nil {
			return err
		}
		defer store.Close()

		rs, err := store.LoadRules(job)
		if err != nil {
			return err
		}

		fmt.Println("Include:")
		for _, p := range rs.Include {
			fmt.Printf("  %s\n", p)
		}
		fmt.Println("Exclude:")
		for _, p := range rs.Exclude {
			fmt.Printf("  %s\n", p)
		}
		return nil
	},
}

var rulesSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace the rule set saved for a profile's job",
	RunE: func(cmd *cobra.Command, args []string) error {
		profileName, _ := cmd.Flags().GetString("profile")
		job, _ := cmd.Flags().GetString("job")
		dataRoot, _ := cmd.Flags().GetString("data-root")
		include, _ := cmd.Flags().GetStringArray("include")
		exclude, _ := cmd.Flags().GetStringArray("exclude")

		store, err := openRuleStore(profileName, dataRoot)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.SaveRules(job, profileName, rules.RuleSet{Include: include, Exclude: exclude}); err != nil {
			return err
		}

		fmt.Printf("Rule set saved for job %q\n", job)
		return nil
	},
}

func openRuleStore(profileName, dataRoot string) (*rules.BoltStore, error) {
	paths, err := pathsafety.ResolveProfilePaths(profileName, dataRoot)
	if err != nil {
		return nil, err
	}
	if err := pathsafety.EnsureProfileDirectories(paths); err != nil {
		return nil, err
	}
	return rules.NewBoltStore(paths.IndexRoot.String())
}

func init() {
	rulesCmd.AddCommand(rulesGetCmd)
	rulesCmd.AddCommand(rulesSetCmd)

	for _, c := range []*cobra.Command{rulesGetCmd, rulesSetCmd} {
		c.Flags().String("profile", "", "Profile name (required)")
		c.Flags().String("job", "", "Job ID the rule set is keyed by (required)")
		c.Flags().String("data-root", "", "WCBT data root (defaults to the platform data directory)")
		c.MarkFlagRequired("profile")
		c.MarkFlagRequired("job")
	}

	rulesSetCmd.Flags().StringArray("include", nil, "Include glob pattern, root-relative (repeatable)")
	rulesSetCmd.Flags().StringArray("exclude", nil, "Exclude glob pattern, root-relative (repeatable)")
}
