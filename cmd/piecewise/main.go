// Package main provides the CLI entry point for piecewise-go.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackms/piecewise-go/cmd/piecewise/commands"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "piecewise",
	Short: "Online piecewise linear model learner",
	Long: `piecewise learns continuous functions over structured scenes as a
mixture of linear models.

It provides:
  - Online training from JSONL observation streams
  - EM-based mode discovery, unification and removal
  - Symbolic mode classification with learned Horn clauses
  - Model snapshots with a SQLite or PostgreSQL checkpoint store`,
	Version: version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&commands.Verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(
		commands.TrainCmd,
		commands.PredictCmd,
		commands.InspectCmd,
		commands.CheckpointCmd,
	)
}
