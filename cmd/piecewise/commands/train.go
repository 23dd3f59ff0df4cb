package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	piecewise "github.com/blackms/piecewise-go/pkg/piecewise"
)

var (
	trainInput    string
	trainOutput   string
	trainMaxIters int
	trainSeed     int64
	trainNoFOIL   bool
	trainNoLDA    bool
	trainJSON     bool
)

// TrainCmd learns a model from a stream of observations.
var TrainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a model from JSONL observations",
	Long: `Read observations as JSON lines, run the mixture learner to
quiescence, and write the resulting model snapshot.

Each line holds one observation:
  {"target":0,"signature":[{"id":1,"type":"ball","name":"b1","props":["x","vx"]}],
   "relations":{"touching":[[0,1,2]]},"x":[0.5,1.0],"y":1.5}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := NewLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		cfg := piecewise.DefaultConfig()
		cfg.Seed = trainSeed
		learner := piecewise.NewLearner(cfg, logger)
		learner.EnableFOIL(!trainNoFOIL)
		learner.EnableLDA(!trainNoLDA)

		err = readObservations(trainInput, func(obs *sceneObservation) error {
			sig, rels, err := obs.decode()
			if err != nil {
				return err
			}
			return learner.Learn(obs.Target, sig, rels, obs.X, obs.Y)
		})
		if err != nil {
			return fmt.Errorf("failed to read observations: %w", err)
		}

		converged := learner.Run(trainMaxIters)

		out, err := os.Create(trainOutput)
		if err != nil {
			return err
		}
		defer out.Close()
		if err := learner.Save(out); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}

		stats := learner.Stats()
		if trainJSON {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "trained on %d observations, %d modes, converged=%t\n",
			stats.Observations, stats.Modes, converged)
		return nil
	},
}

func init() {
	TrainCmd.Flags().StringVarP(&trainInput, "input", "i", "-", "JSONL observations file (- for stdin)")
	TrainCmd.Flags().StringVarP(&trainOutput, "output", "o", "model.json", "Snapshot output path")
	TrainCmd.Flags().IntVar(&trainMaxIters, "max-iters", 50, "Maximum EM iterations")
	TrainCmd.Flags().Int64Var(&trainSeed, "seed", 1, "Random seed")
	TrainCmd.Flags().BoolVar(&trainNoFOIL, "no-foil", false, "Disable clause induction")
	TrainCmd.Flags().BoolVar(&trainNoLDA, "no-lda", false, "Disable numeric discriminants")
	TrainCmd.Flags().BoolVar(&trainJSON, "json", false, "Print stats as JSON")
}
