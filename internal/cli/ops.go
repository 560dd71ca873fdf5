package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yieldvault/yield_service/internal/infrastructure/di"
)

func init() {
	rootCmd.AddCommand(accrueCmd)
	rootCmd.AddCommand(reconcileCmd)

	accrueCmd.Flags().String("date", "", "Accrual day as YYYY-MM-DD (default: today, UTC)")
	accrueCmd.Flags().Duration("timeout", 10*time.Minute, "Abort the run after this long")
	reconcileCmd.Flags().Duration("timeout", 5*time.Minute, "Abort the pass after this long")
}

var accrueCmd = &cobra.Command{
	Use:   "accrue",
	Short: "Run the daily interest accrual",
	Long:  `Credit one day of interest to every eligible account. Repeating a run for the same date skips accounts already credited.`,
	Args:  cobra.NoArgs,
	RunE:  runAccrue,
}

func runAccrue(cmd *cobra.Command, args []string) error {
	dateFlag, _ := cmd.Flags().GetString("date")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	asOf := time.Now().UTC()
	if dateFlag != "" {
		parsed, err := time.Parse("2006-01-02", dateFlag)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", dateFlag, err)
		}
		asOf = parsed
	}

	return withContainer(func(c *di.Container) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		report, err := c.AccrualWorker.RunFor(ctx, asOf)
		if err != nil {
			return err
		}
		return printJSON(report)
	})
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one payment reconciliation pass",
	Long:  `Poll the gateway and the chain verifier for stale pending investments and settle those that completed.`,
	Args:  cobra.NoArgs,
	RunE:  runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")

	return withContainer(func(c *di.Container) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		result, err := c.Reconciler.RunOnce(ctx)
		if result != nil {
			if perr := printJSON(result); perr != nil {
				return perr
			}
		}
		return err
	})
}
