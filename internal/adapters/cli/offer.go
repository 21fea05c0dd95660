package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modula-erp/emag-sync-go/internal/application/syncengine"
)

// NewOfferCommand creates the offer command with subcommands
func NewOfferCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offer",
		Short: "Offer publishing operations",
		Long: `Publish local products as marketplace offers.

Examples:
  emagsync offer publish --account main --sku BK-1001 --pnk D5DD9BBBM
  emagsync offer publish --account main --sku BK-1002 --ean 5941234567899`,
	}

	cmd.AddCommand(newOfferPublishCommand())

	return cmd
}

// newOfferPublishCommand creates the offer publish subcommand
func newOfferPublishCommand() *cobra.Command {
	var (
		sku          string
		pnk          string
		ean          string
		vatID        int64
		handlingDays int
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Attach a local product to the marketplace catalog",
		Long: `Publish one local product as an offer, attaching it to an existing
catalog entry by part number key or by EAN. Exactly one of --pnk and
--ean must be given; the marketplace treats them as rival attachment
routes and rejects requests carrying both.

Without --vat-id the account's default VAT rate is used; without
--handling-days the account's shortest configured handling time.

Examples:
  emagsync offer publish --account main --sku BK-1001 --pnk D5DD9BBBM
  emagsync offer publish --account main --sku BK-1002 --ean 5941234567899 --handling-days 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOfferPublish(sku, pnk, ean, vatID, handlingDays)
		},
	}

	cmd.Flags().StringVar(&sku, "sku", "", "Local product SKU [required]")
	cmd.Flags().StringVar(&pnk, "pnk", "", "Part number key of the catalog entry to attach to")
	cmd.Flags().StringVar(&ean, "ean", "", "EAN of the catalog entry to attach to")
	cmd.Flags().Int64Var(&vatID, "vat-id", 0, "VAT rate id (0 = account default)")
	cmd.Flags().IntVar(&handlingDays, "handling-days", 0, "Handling time in days (0 = account default)")
	cmd.MarkFlagRequired("sku")

	return cmd
}

// runOfferPublish executes the offer publish command
func runOfferPublish(sku, pnk, ean string, vatID int64, handlingDays int) error {
	acct, err := resolveOneAccount()
	if err != nil {
		return err
	}

	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.requireConfigured(acct); err != nil {
		return err
	}
	client, err := rt.newClient()
	if err != nil {
		return err
	}

	engine := rt.newSyncEngine(client)
	err = engine.PublishOffer(context.Background(), acct, sku, syncengine.PublishOptions{
		PartNumberKey: pnk,
		EAN:           ean,
		VatID:         vatID,
		HandlingDays:  handlingDays,
	})
	if err != nil {
		return err
	}

	fmt.Printf("✓ Offer published for %s on %s\n", sku, acct)
	return nil
}
