package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PolymathAlchemist/WCBT/internal/pathsafety"
)

var initProfileCmd = &cobra.Command{
	Use:   "init-profile",
	Short: "Create the on-disk directory layout for a profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		profileName, _ := cmd.Flags().GetString("profile")
		dataRoot, _ := cmd.Flags().GetString("data-root")
		printPaths, _ := cmd.Flags().GetBool("print-paths")

		paths, err := pathsafety.ResolveProfilePaths(profileName, dataRoot)
		if err != nil {
			return err
		}
		if err := pathsafety.EnsureProfileDirectories(paths); err != nil {
			return err
		}

		fmt.Printf("Profile %q initialized\n", profileName)
		if printPaths {
			fmt.Println(paths.AsText())
		}
		return nil
	},
}

func init() {
	initProfileCmd.Flags().String("profile", "", "Profile name (required)")
	initProfileCmd.Flags().String("data-root", "", "WCBT data root (defaults to the platform data directory)")
	initProfileCmd.Flags().Bool("print-paths", false, "Print the resolved directory layout")
	initProfileCmd.MarkFlagRequired("profile")
}
