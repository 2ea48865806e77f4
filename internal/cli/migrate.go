package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"expensecal/internal/config"
	applog "expensecal/internal/log"
	"expensecal/internal/storage/sqlstore"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQL schema of the sqlite and postgres backends",
	}
	cmd.AddCommand(newMigrateUpCommand(), newMigrateDownCommand(), newMigrateVersionCommand())
	return cmd
}

func newMigrateUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, dsn, err := migrationTarget()
			if err != nil {
				return err
			}
			if err := sqlstore.RunMigrations(d, dsn); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", d)
			return nil
		},
	}
}

func newMigrateDownCommand() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Revert migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, dsn, err := migrationTarget()
			if err != nil {
				return err
			}
			if err := sqlstore.RollbackMigrations(d, dsn, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema rolled back\n", d)
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert (0 reverts all)")
	return cmd
}

func newMigrateVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, dsn, err := migrationTarget()
			if err != nil {
				return err
			}
			version, dirty, err := sqlstore.MigrationVersion(d, dsn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema version %d (dirty: %t)\n", d, version, dirty)
			return nil
		},
	}
}

// migrationTarget resolves the dialect and DSN from DATA_BACKEND.
func migrationTarget() (sqlstore.Dialect, string, error) {
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		return "", "", err
	}
	d, dsn, err := dialectFor(cfg)
	if err != nil {
		return "", "", err
	}
	SetupLogger(cfg).WithComponent(applog.ComponentStorage).Debug("Migration target resolved",
		applog.FieldOperation, applog.OpMigrate,
		"dialect", string(d))
	return d, dsn, nil
}

func dialectFor(cfg *config.Config) (sqlstore.Dialect, string, error) {
	switch cfg.DataBackend {
	case "sqlite":
		dsn, err := sqlstore.SQLiteDSN(cfg.SQLiteDBPath)
		return sqlstore.SQLite, dsn, err
	case "postgres":
		return sqlstore.Postgres, cfg.PostgresURL, nil
	}
	return "", "", fmt.Errorf("backend %q has no SQL schema to migrate", cfg.DataBackend)
}
