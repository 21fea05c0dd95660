package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/modula-erp/emag-sync-go/internal/adapters/persistence"
	"github.com/modula-erp/emag-sync-go/internal/application/reorder"
	"github.com/modula-erp/emag-sync-go/internal/domain/ordering"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// NewPOCommand creates the po command with subcommands
func NewPOCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "po",
		Short: "Purchase order and replenishment operations",
		Long: `Compute replenishment suggestions and walk purchase orders through
their lifecycle.

Suggestions net the quantities already inbound on open orders, so the
same shortage is never ordered twice. Drafts are grouped per supplier,
priced sheet > supplier feed > catalog base, and numbered
PO-YYYYMMDD-NNNN. Drafting the same selection inside one minute
resolves to the existing draft instead of creating a twin.

Lifecycle: draft → sent → confirmed → (partially_received) → received,
with cancel available until a terminal state.

Examples:
  emagsync po low-stock
  emagsync po draft --selections picks.json --by anna
  emagsync po draft --supplier 3 --product 17 --by anna
  emagsync po send PO-20250614-0001 --by anna
  emagsync po receive PO-20250614-0001 --line 2 --qty 10 --by anna
  emagsync po show PO-20250614-0001
  emagsync po list --status sent`,
	}

	cmd.AddCommand(newPOLowStockCommand())
	cmd.AddCommand(newPODraftCommand())
	cmd.AddCommand(newPOActionCommand("send", "Mark a draft as sent to its supplier"))
	cmd.AddCommand(newPOActionCommand("confirm", "Record the supplier's confirmation"))
	cmd.AddCommand(newPOActionCommand("cancel", "Cancel an open purchase order"))
	cmd.AddCommand(newPOReceiveCommand())
	cmd.AddCommand(newPOShowCommand())
	cmd.AddCommand(newPOListCommand())

	return cmd
}

// newPOLowStockCommand creates the po low-stock subcommand
func newPOLowStockCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "low-stock",
		Short: "List inventory positions under their minimum",
		Long: `List every inventory position whose available quantity (on hand
minus reserved) is under its minimum, with the suggested reorder.

The suggested quantity uses, in order: the manual override, refill to
maximum stock, twice the reorder point, three times the minimum. The
adjusted column nets quantities already inbound on open orders.

Example:
  emagsync po low-stock`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPOLowStock()
		},
	}

	return cmd
}

// newPODraftCommand creates the po draft subcommand
func newPODraftCommand() *cobra.Command {
	var (
		selections string
		supplierID int64
		productID  int64
		quantity   int
		by         string
	)

	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Assemble draft purchase orders",
		Long: `Assemble draft purchase orders from a selections file, grouped by
supplier.

The file holds an array of selections:
  [{"product_id": 17, "supplier_id": 3, "quantity": 0},
   {"product_id": 21, "supplier_id": 3, "quantity": 50}]

Quantity 0 lets the engine compute the adjusted reorder quantity.
Selections fully covered by inbound stock are skipped. One failing
supplier never blocks the others.

For a single product, --supplier and --product replace the file.

Examples:
  emagsync po draft --selections picks.json --by anna
  emagsync po draft --supplier 3 --product 17 --quantity 25 --by anna`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPODraft(selections, supplierID, productID, quantity, by)
		},
	}

	cmd.Flags().StringVar(&selections, "selections", "", "Path to the JSON selections file")
	cmd.Flags().Int64Var(&supplierID, "supplier", 0, "Supplier id for a single-product draft")
	cmd.Flags().Int64Var(&productID, "product", 0, "Product id for a single-product draft")
	cmd.Flags().IntVar(&quantity, "quantity", 0, "Quantity for a single-product draft (0 = computed)")
	cmd.Flags().StringVar(&by, "by", "cli", "Operator recorded on the drafts")

	return cmd
}

// newPOActionCommand builds send, confirm and cancel, which share a
// shape: one order number in, the updated order out.
func newPOActionCommand(action, short string) *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:   action + " <order-number>",
		Short: short,
		Long: fmt.Sprintf(`%s.

Example:
  emagsync po %s PO-20250614-0001 --by anna`, short, action),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPOAction(action, args[0], by)
		},
	}

	cmd.Flags().StringVar(&by, "by", "cli", "Operator recorded in the order history")

	return cmd
}

// newPOReceiveCommand creates the po receive subcommand
func newPOReceiveCommand() *cobra.Command {
	var (
		lineID int64
		qty    int
		by     string
	)

	cmd := &cobra.Command{
		Use:   "receive <order-number>",
		Short: "Record received goods on one order line",
		Long: `Record a received quantity against one line of a sent or confirmed
order. Receiving more than the line ordered is rejected. The order
becomes partially_received until every line is complete, then
received.

Example:
  emagsync po receive PO-20250614-0001 --line 2 --qty 10 --by anna`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPOReceive(args[0], lineID, qty, by)
		},
	}

	cmd.Flags().Int64Var(&lineID, "line", 0, "Order line id [required]")
	cmd.Flags().IntVar(&qty, "qty", 0, "Quantity received [required]")
	cmd.Flags().StringVar(&by, "by", "cli", "Operator recorded in the order history")
	cmd.MarkFlagRequired("line")
	cmd.MarkFlagRequired("qty")

	return cmd
}

// newPOShowCommand creates the po show subcommand
func newPOShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <order-number>",
		Short: "Show one purchase order with lines and history",
		Long: `Show a purchase order's header, lines and append-only history.

Example:
  emagsync po show PO-20250614-0001`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPOShow(args[0])
		},
	}

	return cmd
}

// newPOListCommand creates the po list subcommand
func newPOListCommand() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List purchase orders",
		Long: `List purchase orders, open ones by default (draft, sent, confirmed,
partially_received).

Examples:
  emagsync po list
  emagsync po list --status received`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPOList(status)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status: draft, sent, confirmed, partially_received, received or cancelled")

	return cmd
}

// selectionFileRow mirrors one entry of the JSON selections file.
type selectionFileRow struct {
	ProductID  int64 `json:"product_id"`
	SupplierID int64 `json:"supplier_id"`
	Quantity   int   `json:"quantity"`
}

// runPOLowStock executes the po low-stock command
func runPOLowStock() error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	engine := newReorderEngine(rt)
	suggestions, err := engine.LowStock(context.Background())
	if err != nil {
		return fmt.Errorf("failed to compute low stock: %w", err)
	}

	displaySuggestions(suggestions)
	return nil
}

// runPODraft executes the po draft command
func runPODraft(selectionsFile string, supplierID, productID int64, quantity int, by string) error {
	var selections []reorder.Selection
	switch {
	case selectionsFile != "":
		data, err := os.ReadFile(selectionsFile)
		if err != nil {
			return fmt.Errorf("failed to read selections file: %w", err)
		}
		var fileRows []selectionFileRow
		if err := json.Unmarshal(data, &fileRows); err != nil {
			return fmt.Errorf("failed to parse selections file: %w", err)
		}
		for _, r := range fileRows {
			selections = append(selections, reorder.Selection{
				ProductID:  r.ProductID,
				SupplierID: r.SupplierID,
				Quantity:   r.Quantity,
			})
		}
	case supplierID > 0 && productID > 0:
		selections = []reorder.Selection{{
			ProductID:  productID,
			SupplierID: supplierID,
			Quantity:   quantity,
		}}
	default:
		return fmt.Errorf("either --selections or both --supplier and --product are required")
	}

	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	engine := newReorderEngine(rt)
	report, err := engine.AssembleDrafts(context.Background(), selections, by)
	if err != nil {
		return err
	}

	displayDraftReport(report)
	return nil
}

// runPOAction executes send, confirm and cancel
func runPOAction(action, orderNumber, by string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	engine := newReorderEngine(rt)
	ctx := context.Background()

	var po *ordering.PurchaseOrder
	switch action {
	case "send":
		po, err = engine.Send(ctx, orderNumber, by)
	case "confirm":
		po, err = engine.Confirm(ctx, orderNumber, by)
	case "cancel":
		po, err = engine.CancelOrder(ctx, orderNumber, by)
	}
	if err != nil {
		return err
	}

	fmt.Printf("✓ %s is now %s\n", po.OrderNumber, po.Status)
	return nil
}

// runPOReceive executes the po receive command
func runPOReceive(orderNumber string, lineID int64, qty int, by string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	engine := newReorderEngine(rt)
	po, err := engine.Receive(context.Background(), orderNumber, lineID, qty, by)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Recorded %d received on line %d; %s is now %s\n",
		qty, lineID, po.OrderNumber, po.Status)
	return nil
}

// runPOShow executes the po show command
func runPOShow(orderNumber string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	engine := newReorderEngine(rt)
	ctx := context.Background()

	po, err := engine.Get(ctx, orderNumber)
	if err != nil {
		return err
	}
	history, err := engine.History(ctx, orderNumber)
	if err != nil {
		return err
	}

	displayPurchaseOrder(po, history)
	return nil
}

// runPOList executes the po list command
func runPOList(status string) error {
	var statuses []ordering.POStatus
	if status != "" {
		switch ordering.POStatus(status) {
		case ordering.PODraft, ordering.POSent, ordering.POConfirmed,
			ordering.POPartiallyReceived, ordering.POReceived, ordering.POCancelled:
			statuses = []ordering.POStatus{ordering.POStatus(status)}
		default:
			return shared.NewValidationError("status", fmt.Sprintf("unknown purchase order status %q", status))
		}
	}

	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	engine := newReorderEngine(rt)
	orders, err := engine.ListByStatus(context.Background(), statuses...)
	if err != nil {
		return fmt.Errorf("failed to list purchase orders: %w", err)
	}

	displayPurchaseOrders(orders)
	return nil
}

// newReorderEngine wires the reorder engine from a runtime.
func newReorderEngine(rt *runtime) *reorder.Engine {
	return reorder.NewEngine(
		persistence.NewGormInventoryRepository(rt.db),
		persistence.NewGormPurchaseOrderRepository(rt.db),
		persistence.NewGormSupplierRepository(rt.db),
		persistence.NewGormSupplierProductRepository(rt.db),
		persistence.NewGormProductRepository(rt.db),
		shared.NewRealClock(),
		rt.logger,
		reorder.Config{
			CNYRate:      decimal.NewFromFloat(rt.cfg.Reorder.CNYRate),
			LeadTimeDays: rt.cfg.Reorder.LeadTimeDays,
		},
	)
}

// displaySuggestions formats the low-stock table
func displaySuggestions(suggestions []reorder.Suggestion) {
	if len(suggestions) == 0 {
		fmt.Println("No inventory positions under their minimum")
		return
	}

	fmt.Printf("\nLOW STOCK (%d positions)\n", len(suggestions))
	fmt.Println("─────────────────────────────────────────────────────────────────────────────")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Product\tSKU\tWarehouse\tAvailable\tMin\tSuggested\tInbound\tTo Order")
	fmt.Fprintln(w, "───────\t───\t─────────\t─────────\t───\t─────────\t───────\t────────")

	for _, s := range suggestions {
		sku, name := "-", "-"
		if s.Product != nil {
			sku = s.Product.SKU
			name = truncate(s.Product.Name, 30)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			name,
			sku,
			s.Item.WarehouseID,
			s.Item.Available(),
			s.Item.MinimumStock,
			s.Reorder,
			s.PendingIn,
			s.Adjusted,
		)
	}

	w.Flush()
	fmt.Println("─────────────────────────────────────────────────────────────────────────────")
	fmt.Println("Draft orders with 'emagsync po draft --selections picks.json'.")
}

// displayDraftReport formats the draft assembly outcome
func displayDraftReport(report *reorder.DraftReport) {
	for _, number := range report.Created {
		fmt.Printf("✓ Drafted %s\n", number)
	}
	for _, number := range report.Duplicates {
		fmt.Printf("= Reused %s (same selection drafted moments ago)\n", number)
	}
	for _, failure := range report.Failed {
		fmt.Printf("✗ Supplier %d: %s\n", failure.SupplierID, failure.Reason)
	}
	fmt.Printf("\n%d drafted, %d reused, %d suppliers failed\n",
		len(report.Created), len(report.Duplicates), len(report.Failed))
}

// displayPurchaseOrder formats one order with lines and history
func displayPurchaseOrder(po *ordering.PurchaseOrder, history []*ordering.HistoryEntry) {
	fmt.Printf("\nPURCHASE ORDER %s\n", po.OrderNumber)
	fmt.Println("─────────────────────────────────────────────────────────────")
	fmt.Printf("  Status:      %s\n", po.Status)
	fmt.Printf("  Supplier:    %d\n", po.SupplierID)
	fmt.Printf("  Total:       %s %s (rate %s)\n",
		po.TotalValue.StringFixed(2), po.Currency, po.ExchangeRate.String())
	fmt.Printf("  Ordered:     %s\n", po.OrderDate.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Expected:    %s\n", formatTimePtr(po.ExpectedAt))
	fmt.Printf("  Created by:  %s\n", po.CreatedBy)

	fmt.Println("\nLINES")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Line\tProduct\tOrdered\tReceived\tUnit Cost\tLine Total")
	fmt.Fprintln(w, "────\t───────\t───────\t────────\t─────────\t──────────")
	for _, line := range po.Lines {
		lineTotal := line.UnitCost.Mul(decimal.NewFromInt(int64(line.OrderedQty)))
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s\t%s\n",
			line.ID,
			line.ProductID,
			line.OrderedQty,
			line.ReceivedQty,
			line.UnitCost.StringFixed(2),
			lineTotal.StringFixed(2),
		)
	}
	w.Flush()

	if len(history) > 0 {
		fmt.Println("\nHISTORY")
		hw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(hw, "When\tAction\tActor\tDetails")
		fmt.Fprintln(hw, "────\t──────\t─────\t───────")
		for _, entry := range history {
			fmt.Fprintf(hw, "%s\t%s\t%s\t%s\n",
				entry.CreatedAt.Format("2006-01-02 15:04:05"),
				entry.Action,
				entry.Actor,
				entry.Details,
			)
		}
		hw.Flush()
	}
	fmt.Println("─────────────────────────────────────────────────────────────")
}

// displayPurchaseOrders formats the order list
func displayPurchaseOrders(orders []*ordering.PurchaseOrder) {
	if len(orders) == 0 {
		fmt.Println("No purchase orders found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Order\tStatus\tSupplier\tLines\tTotal\tOrdered\tExpected")
	fmt.Fprintln(w, "─────\t──────\t────────\t─────\t─────\t───────\t────────")

	for _, po := range orders {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s %s\t%s\t%s\n",
			po.OrderNumber,
			po.Status,
			po.SupplierID,
			len(po.Lines),
			po.TotalValue.StringFixed(2),
			po.Currency,
			po.OrderDate.Format("2006-01-02"),
			formatTimePtr(po.ExpectedAt),
		)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d orders\n", len(orders))
}
