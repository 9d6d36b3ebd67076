package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X github.com/rpggio/runledger/internal/cli.Version=...".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "runledger",
	Short: "Experiment tracking and training job server",
	Long: `runledger records machine learning experiments, their runs and per-step
metrics, and trains built-in classifiers on uploaded CSV datasets in the
background.

Configuration is read from the YAML file named by RUNLEDGER_CONFIG_PATH and
from RUNLEDGER_* environment variables.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}
