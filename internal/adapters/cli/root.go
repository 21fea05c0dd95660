package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

var (
	// Global flags
	configPath string
	account    string
	verbose    bool
)

// NewRootCommand creates the root command for the CLI
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "emagsync",
		Short: "eMAG Marketplace sync CLI - operator batch jobs",
		Long: `emagsync runs operator batch jobs against the local catalog and the
eMAG Marketplace API: sync submissions, supplier matching, purchase
order drafting and stock/offer push-back.

Long-running scheduled syncs belong to the emagsyncd daemon; this CLI
submits one-off runs and reads the same durable sync log, so a run the
daemon already holds is reported busy here rather than started twice.

Examples:
  emagsync sync --account main --resource products --mode full
  emagsync sync --account both --resource orders --mode incremental --async
  emagsync status --account main --resource products
  emagsync history --limit 20
  emagsync match run --supplier 3
  emagsync po low-stock
  emagsync po draft --selections picks.json
  emagsync stock push --account main
  emagsync offer publish --account main --sku BK-1001 --ean 5941234567899`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config file (default: ./config.yaml, ./configs, /etc/emag-sync)")
	rootCmd.PersistentFlags().StringVar(&account, "account", "",
		"Marketplace account: main, fbe or both")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable verbose output")

	// Add command groups
	rootCmd.AddCommand(NewSyncCommand())
	rootCmd.AddCommand(NewStatusCommand())
	rootCmd.AddCommand(NewHistoryCommand())
	rootCmd.AddCommand(NewCancelCommand())
	rootCmd.AddCommand(NewMatchCommand())
	rootCmd.AddCommand(NewPOCommand())
	rootCmd.AddCommand(NewStockCommand())
	rootCmd.AddCommand(NewOfferCommand())
	rootCmd.AddCommand(NewConfigCommand())

	return rootCmd
}

// Execute runs the root command. Exit codes: 0 on success, 2 when the
// requested scope is already held by another run, 1 for everything
// else including validation errors.
func Execute() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, shared.ErrBusy) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
