package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/PolymathAlchemist/WCBT/internal/metrics"
	"github.com/PolymathAlchemist/WCBT/internal/wlog"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "wcbt",
	Short: "WCBT - a single-host, content-addressable file-tree backup engine",
	Long: `WCBT materializes a source directory tree into a versioned,
digest-verified run directory and can restore any prior run back into a
fresh or pre-existing destination.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"wcbt version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("metrics-addr", "", "If set, serve Prometheus metrics on this address (e.g. 127.0.0.1:9090) for the duration of the command")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(initProfileCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(rulesCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	wlog.Init(wlog.Config{
		Level:      wlog.Level(logLevel),
		JSONOutput: logJSON,
	})

	if addr, _ := rootCmd.PersistentFlags().GetString("metrics-addr"); addr != "" {
		go func() {
			if err := http.ListenAndServe(addr, metrics.Handler()); err != nil {
				wlog.Logger.Warn().Err(err).Str("addr", addr).Msg("metrics server stopped")
			}
		}()
		wlog.Logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
	}
}

// exitCodeFor maps a command error to the process exit code documented for
// the CLI: 0 success, 1 restore non-conflict failure, 2 everything else.
func exitCodeFor(err error) int {
	if isRestoreNonConflictFailure(err) {
		return 1
	}
	return 2
}
