package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewStockCommand creates the stock command with subcommands
func NewStockCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Stock push-back operations",
		Long: `Push local stock levels back to the marketplace.

Examples:
  emagsync stock push --account main
  emagsync stock push --account both`,
	}

	cmd.AddCommand(newStockPushCommand())

	return cmd
}

// newStockPushCommand creates the stock push subcommand
func newStockPushCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push local stock to the marketplace",
		Long: `PATCH the local stock level of every saleable product to the
marketplace, in bulk slices, against the account's configured
warehouse.

Products without a remote id have never been published and are
reported but not pushed. A slice that fails is counted and skipped;
the push continues with the rest.

Examples:
  emagsync stock push --account main
  emagsync stock push --account both`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStockPush()
		},
	}

	return cmd
}

// runStockPush executes the stock push command
func runStockPush() error {
	accounts, err := resolveAccounts()
	if err != nil {
		return err
	}

	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	client, err := rt.newClient()
	if err != nil {
		return err
	}
	for _, acct := range accounts {
		if err := rt.requireConfigured(acct); err != nil {
			return err
		}
	}

	engine := rt.newSyncEngine(client)
	ctx := context.Background()

	for _, acct := range accounts {
		report, err := engine.PushStock(ctx, acct)
		if err != nil {
			return fmt.Errorf("stock push failed for %s: %w", acct, err)
		}
		fmt.Printf("✓ %s: %d pushed, %d failed, %d unpublished\n",
			acct, report.Pushed, report.Failed, report.Unpublished)
	}
	return nil
}
