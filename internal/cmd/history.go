package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pyforge/pyforge/internal/core"
	"github.com/pyforge/pyforge/internal/core/store"
	errwrap "github.com/pyforge/pyforge/internal/errors"
	"github.com/pyforge/pyforge/internal/observability"
	"github.com/pyforge/pyforge/internal/output"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded install attempts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		q, err := historyQueryFromFlags(cmd)
		if err != nil {
			return err
		}

		db, err := openStore(ctx)
		if err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "install history is unavailable")
		}
		defer db.Close() //nolint:errcheck

		events, err := db.ListInstallEvents(ctx, q)
		if err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "failed to read install history")
		}
		return render(cmd, output.HistoryView(events))
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old install events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if olderThan <= 0 {
			return errwrap.NewInvalidInputError("--older-than must be positive")
		}

		db, err := openStore(ctx)
		if err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "install history is unavailable")
		}
		defer db.Close() //nolint:errcheck

		removed, err := db.PruneInstallEvents(ctx, store.HistoryQuery{Before: time.Now().Add(-olderThan)})
		if err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "failed to prune install history")
		}
		observability.CLILogger.Info("History pruned", zap.Int64("removed", removed))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyPruneCmd)

	historyCmd.Flags().String("version", "", "Only events for this version")
	historyCmd.Flags().String("outcome", "", "Only events with this outcome: installed, reused, failed")
	historyCmd.Flags().Duration("since", 0, "Only events newer than this duration")
	historyCmd.Flags().Int("limit", 20, "Maximum number of events")

	historyPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "Delete events older than this duration")
}

func historyQueryFromFlags(cmd *cobra.Command) (store.HistoryQuery, error) {
	v, _ := cmd.Flags().GetString("version")
	outcome, _ := cmd.Flags().GetString("outcome")
	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")

	switch outcome {
	case "", core.OutcomeInstalled, core.OutcomeReused, core.OutcomeFailed:
	default:
		return store.HistoryQuery{}, errwrap.NewInvalidInputError("unknown outcome " + outcome)
	}

	q := store.HistoryQuery{Version: v, Outcome: outcome, Limit: limit}
	if since > 0 {
		q.Since = time.Now().Add(-since)
	}
	return q, nil
}
