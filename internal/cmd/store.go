package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pyforge/pyforge/internal/config"
	"github.com/pyforge/pyforge/internal/core/store"
	"github.com/pyforge/pyforge/internal/observability"
)

func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := currentConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return openStoreWith(ctx, cfg.Store)
}

func openStoreWith(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the install history database",
}

var storeMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the history schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		observability.CLILogger.Info("Store migrated", zap.String("driver", db.Driver()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeMigrateCmd)
}
