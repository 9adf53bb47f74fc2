package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/perclft/qcircuit/config"
	"github.com/perclft/qcircuit/jobs/sqlstore"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the results table of a SQL store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if cfg.Store.Driver != config.DriverPostgres && cfg.Store.Driver != config.DriverSQLite {
				return errors.Errorf("store driver %q has no schema to migrate", cfg.Store.Driver)
			}
			st, err := sqlstore.Open(cfg.Store.Driver, cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("schema migrated", zap.String("driver", cfg.Store.Driver))
			return nil
		},
	}
}
