// Package cli implements ledgerctl, the operator command line for the ledger.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yieldvault/yield_service/internal/infrastructure/config"
	"github.com/yieldvault/yield_service/internal/infrastructure/di"
	"github.com/yieldvault/yield_service/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "ledgerctl",
	Short:         "Operate the yield ledger",
	Long:          `Run accruals and reconciliation passes, apply migrations and mint operator tokens against the configured database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logger.New(cfg.LogLevel, cfg.Environment), nil
}

// withContainer builds the full dependency graph without starting workers
func withContainer(fn func(*di.Container) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	container, err := di.NewContainer(cfg, log)
	if err != nil {
		return err
	}
	defer container.Close()

	return fn(container)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
