package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	predictModel string
	predictInput string
)

// predictResult is one output line of the predict command.
type predictResult struct {
	Mode int     `json:"mode"`
	Y    float64 `json:"y"`
	OK   bool    `json:"ok"`
}

// PredictCmd evaluates a trained model on query points.
var PredictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict outputs for JSONL query points",
	Long: `Load a model snapshot and classify each query line, printing the
chosen mode and predicted output as JSON. Query lines use the training
format; the "y" field is ignored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := NewLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		learner, err := loadLearnerFile(predictModel, logger)
		if err != nil {
			return fmt.Errorf("failed to load model: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		return readObservations(predictInput, func(obs *sceneObservation) error {
			sig, rels, err := obs.decode()
			if err != nil {
				return err
			}
			mode, y, ok := learner.Predict(obs.Target, sig, rels, obs.X)
			return enc.Encode(predictResult{Mode: mode, Y: y, OK: ok})
		})
	},
}

func init() {
	PredictCmd.Flags().StringVarP(&predictModel, "model", "m", "model.json", "Model snapshot path")
	PredictCmd.Flags().StringVarP(&predictInput, "input", "i", "-", "JSONL query file (- for stdin)")
}
