package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	piecewise "github.com/blackms/piecewise-go/pkg/piecewise"
)

var (
	checkpointDB       string
	checkpointPostgres bool

	checkpointSaveModel string
	checkpointSaveName  string

	checkpointRestoreID  string
	checkpointRestoreOut string

	checkpointListLimit int

	checkpointPruneKeep int
)

// CheckpointCmd is the parent command for checkpoint store operations.
var CheckpointCmd = &cobra.Command{
	Use:     "checkpoint",
	Aliases: []string{"cp"},
	Short:   "Manage stored model checkpoints",
	Long: `Commands for the checkpoint store.

Checkpoints are full model snapshots stored in SQLite (default) or
PostgreSQL (--postgres, configured via PG* environment variables).`,
}

func openStore(cmd *cobra.Command) (piecewise.CheckpointStore, error) {
	if checkpointPostgres {
		return piecewise.NewPostgresStore(cmd.Context(), piecewise.DefaultPostgresConfig())
	}
	cfg := piecewise.DefaultSQLiteConfig()
	cfg.DBPath = checkpointDB
	return piecewise.NewSQLiteStore(cfg)
}

var checkpointSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save a model snapshot as a checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := NewLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		learner, err := loadLearnerFile(checkpointSaveModel, logger)
		if err != nil {
			return fmt.Errorf("failed to load model: %w", err)
		}
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := piecewise.SaveCheckpoint(cmd.Context(), store, checkpointSaveName, learner)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a checkpoint to a model snapshot file",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := NewLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		learner, err := piecewise.LoadCheckpoint(cmd.Context(), store, checkpointRestoreID, logger)
		if err != nil {
			return err
		}
		out, err := os.Create(checkpointRestoreOut)
		if err != nil {
			return err
		}
		defer out.Close()
		return learner.Save(out)
	},
}

var checkpointListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		cps, err := store.List(cmd.Context(), checkpointListLimit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tOBSERVATIONS\tMODES\tCREATED")
		for _, cp := range cps {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
				cp.ID, cp.Name, cp.Observations, cp.Modes, cp.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	},
}

var checkpointPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		pruned, err := store.Prune(cmd.Context(), checkpointPruneKeep)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pruned %d checkpoints\n", pruned)
		return nil
	},
}

var checkpointStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show checkpoint store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "checkpoints: %d\nbytes: %d\npruned: %d\n",
			stats.TotalCheckpoints, stats.TotalBytes, stats.PrunedCount)
		return nil
	},
}

func init() {
	CheckpointCmd.PersistentFlags().StringVar(&checkpointDB, "db", "checkpoints.db", "SQLite database path")
	CheckpointCmd.PersistentFlags().BoolVar(&checkpointPostgres, "postgres", false, "Use PostgreSQL instead of SQLite")

	checkpointSaveCmd.Flags().StringVarP(&checkpointSaveModel, "model", "m", "model.json", "Model snapshot path")
	checkpointSaveCmd.Flags().StringVarP(&checkpointSaveName, "name", "n", "", "Checkpoint name")
	checkpointSaveCmd.MarkFlagRequired("name")

	checkpointRestoreCmd.Flags().StringVar(&checkpointRestoreID, "id", "", "Checkpoint id")
	checkpointRestoreCmd.Flags().StringVarP(&checkpointRestoreOut, "output", "o", "model.json", "Snapshot output path")
	checkpointRestoreCmd.MarkFlagRequired("id")

	checkpointListCmd.Flags().IntVar(&checkpointListLimit, "limit", 50, "Maximum checkpoints to list")

	checkpointPruneCmd.Flags().IntVar(&checkpointPruneKeep, "keep", 10, "Checkpoints to keep")

	CheckpointCmd.AddCommand(checkpointSaveCmd, checkpointRestoreCmd, checkpointListCmd, checkpointPruneCmd, checkpointStatsCmd)
}
