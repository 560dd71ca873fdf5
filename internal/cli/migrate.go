package cli

import (
	"github.com/spf13/cobra"

	"github.com/yieldvault/yield_service/internal/infrastructure/database"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)

	migrateCmd.PersistentFlags().Int("steps", 0, "Number of migrations to apply (0 means all for up, one for down)")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd, database.Up)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd, database.Down)
	},
}

func runMigrate(cmd *cobra.Command, direction database.Direction) error {
	steps, _ := cmd.Flags().GetInt("steps")
	if direction == database.Down && steps == 0 {
		steps = 1
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	if err := database.Migrate(cfg.Database.URL, cfg.Database.MigrationsPath, direction, steps); err != nil {
		return err
	}
	log.Info("Migrations applied", "direction", string(direction), "steps", steps)
	return nil
}
