package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var inspectModel string

// InspectCmd prints a model's internal state.
var InspectCmd = &cobra.Command{
	Use:   "inspect [subquery...]",
	Short: "Inspect a trained model",
	Long: `Print a human-readable view of a model snapshot.

Subqueries: modes, mode N, ptable, train, relations, classifiers, stats.
With no subquery a summary is printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := NewLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		learner, err := loadLearnerFile(inspectModel, logger)
		if err != nil {
			return fmt.Errorf("failed to load model: %w", err)
		}
		return learner.Inspect(cmd.OutOrStdout(), args...)
	},
}

func init() {
	InspectCmd.Flags().StringVarP(&inspectModel, "model", "m", "model.json", "Model snapshot path")
}
