package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-finance/internal/app"
	"github.com/odyssey-erp/odyssey-finance/internal/platform/db"
	"github.com/odyssey-erp/odyssey-finance/migrations"
)

func newMigrateCommand(loadConfig func() (*app.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return db.Migrate(cfg.PGDSN, migrations.FS, app.NewLogger(cfg))
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		Args:  cobra.NoArgs,
	}
	steps := down.Flags().Int("steps", 1, "number of migrations to roll back")
	down.RunE = func(cmd *cobra.Command, _ []string) error {
		if *steps <= 0 {
			return fmt.Errorf("--steps must be positive, got %d", *steps)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := db.MigrateDown(cfg.PGDSN, migrations.FS, *steps); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", *steps)
		return nil
	}

	cmd.AddCommand(up, down)
	return cmd
}
