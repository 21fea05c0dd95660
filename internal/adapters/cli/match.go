package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/modula-erp/emag-sync-go/internal/adapters/persistence"
	"github.com/modula-erp/emag-sync-go/internal/application/matcher"
	"github.com/modula-erp/emag-sync-go/internal/domain/matching"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// NewMatchCommand creates the match command with subcommands
func NewMatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Supplier product matching operations",
		Long: `Link supplier feed rows to local catalog products.

Auto-matching tries exact EAN, then exact part number key, then
Chinese-name similarity. Automatic hits stay pending until an operator
confirms them; confirmed links survive later re-matches and are only
released by an explicit unmatch.

Examples:
  emagsync match ingest --supplier 3 --file feed.json
  emagsync match run --supplier 3
  emagsync match list --supplier 3 --state pending
  emagsync match confirm 42 --by anna
  emagsync match reject 42
  emagsync match unmatch 42
  emagsync match rematch 42`,
	}

	cmd.AddCommand(newMatchIngestCommand())
	cmd.AddCommand(newMatchRunCommand())
	cmd.AddCommand(newMatchListCommand())
	cmd.AddCommand(newMatchConfirmCommand())
	cmd.AddCommand(newMatchRejectCommand())
	cmd.AddCommand(newMatchUnmatchCommand())
	cmd.AddCommand(newMatchRematchCommand())

	return cmd
}

// newMatchIngestCommand creates the match ingest subcommand
func newMatchIngestCommand() *cobra.Command {
	var (
		supplierID int64
		file       string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Import a supplier feed file",
		Long: `Bulk-import supplier products from a JSON feed file.

The file holds an array of rows:
  [{"name": "华为手环 8 NFC", "ean": "6941487291234",
    "price": "89.90", "currency": "CNY",
    "url": "https://detail.1688.com/..."}]

Names are normalized on ingest (lowercased, symbols stripped, CJK
preserved). Rows with neither a usable name nor an EAN are skipped.

Example:
  emagsync match ingest --supplier 3 --file feed.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatchIngest(supplierID, file)
		},
	}

	cmd.Flags().Int64Var(&supplierID, "supplier", 0, "Supplier id [required]")
	cmd.Flags().StringVar(&file, "file", "", "Path to the JSON feed file [required]")
	cmd.MarkFlagRequired("supplier")
	cmd.MarkFlagRequired("file")

	return cmd
}

// newMatchRunCommand creates the match run subcommand
func newMatchRunCommand() *cobra.Command {
	var supplierID int64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Auto-match a supplier's products",
		Long: `Re-run auto-matching over one supplier's products.

Pending links are cleared and recomputed; confirmed links are left
untouched. Rows that still find no candidate stay unmatched.

Example:
  emagsync match run --supplier 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatchRun(supplierID)
		},
	}

	cmd.Flags().Int64Var(&supplierID, "supplier", 0, "Supplier id [required]")
	cmd.MarkFlagRequired("supplier")

	return cmd
}

// newMatchListCommand creates the match list subcommand
func newMatchListCommand() *cobra.Command {
	var (
		supplierID int64
		state      string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a supplier's products and their match state",
		Long: `List one supplier's feed rows with link state and score.

States:
  unmatched  - no candidate found yet
  pending    - automatic candidate awaiting operator review
  confirmed  - operator-approved link

Examples:
  emagsync match list --supplier 3
  emagsync match list --supplier 3 --state pending`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatchList(supplierID, state)
		},
	}

	cmd.Flags().Int64Var(&supplierID, "supplier", 0, "Supplier id [required]")
	cmd.Flags().StringVar(&state, "state", "", "Filter by state: unmatched, pending or confirmed")
	cmd.MarkFlagRequired("supplier")

	return cmd
}

// newMatchConfirmCommand creates the match confirm subcommand
func newMatchConfirmCommand() *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:   "confirm <supplier-product-id>",
		Short: "Confirm a pending match",
		Long: `Promote a pending link to confirmed.

At most one confirmed supplier product may point at a given local
product per supplier; a second confirmation is rejected.

Example:
  emagsync match confirm 42 --by anna`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "supplier-product id")
			if err != nil {
				return err
			}
			return runMatchAction(id, "confirm", by)
		},
	}

	cmd.Flags().StringVar(&by, "by", "cli", "Operator recorded on the confirmation")

	return cmd
}

// newMatchRejectCommand creates the match reject subcommand
func newMatchRejectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <supplier-product-id>",
		Short: "Reject a pending match",
		Long: `Drop a pending link back to unmatched.

Example:
  emagsync match reject 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "supplier-product id")
			if err != nil {
				return err
			}
			return runMatchAction(id, "reject", "")
		},
	}

	return cmd
}

// newMatchUnmatchCommand creates the match unmatch subcommand
func newMatchUnmatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unmatch <supplier-product-id>",
		Short: "Clear a link, pending or confirmed",
		Long: `Clear whatever link the row holds. This is the only way to release
a confirmed link.

Example:
  emagsync match unmatch 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "supplier-product id")
			if err != nil {
				return err
			}
			return runMatchAction(id, "unmatch", "")
		},
	}

	return cmd
}

// newMatchRematchCommand creates the match rematch subcommand
func newMatchRematchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rematch <supplier-product-id>",
		Short: "Recompute one row's automatic match",
		Long: `Clear a row's pending link and auto-match it again.

Confirmed rows are refused; unmatch them first if the link really is
wrong.

Example:
  emagsync match rematch 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "supplier-product id")
			if err != nil {
				return err
			}
			return runMatchRematch(id)
		},
	}

	return cmd
}

// feedFileRow mirrors one entry of the JSON feed file.
type feedFileRow struct {
	Name          string          `json:"name"`
	EAN           string          `json:"ean"`
	PartNumberKey string          `json:"part_number_key"`
	ImageURL      string          `json:"image_url"`
	URL           string          `json:"url"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
}

// runMatchIngest executes the match ingest command
func runMatchIngest(supplierID int64, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read feed file: %w", err)
	}
	var fileRows []feedFileRow
	if err := json.Unmarshal(data, &fileRows); err != nil {
		return fmt.Errorf("failed to parse feed file: %w", err)
	}
	rows := make([]matcher.FeedRow, 0, len(fileRows))
	for _, r := range fileRows {
		rows = append(rows, matcher.FeedRow{
			Name:          r.Name,
			EAN:           r.EAN,
			PartNumberKey: r.PartNumberKey,
			ImageURL:      r.ImageURL,
			URL:           r.URL,
			Price:         r.Price,
			Currency:      r.Currency,
		})
	}

	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	engine := newMatcherEngine(rt)
	report, err := engine.Ingest(context.Background(), supplierID, rows)
	if err != nil {
		return fmt.Errorf("failed to ingest feed: %w", err)
	}

	fmt.Printf("✓ Ingested %d rows for supplier %d (%d skipped)\n",
		report.Ingested, supplierID, report.Skipped)
	if report.Ingested > 0 {
		fmt.Printf("\nRun 'emagsync match run --supplier %d' to auto-match them.\n", supplierID)
	}
	return nil
}

// runMatchRun executes the match run command
func runMatchRun(supplierID int64) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	engine := newMatcherEngine(rt)
	report, err := engine.RematchAll(context.Background(), supplierID)
	if err != nil {
		return fmt.Errorf("failed to match supplier %d: %w", supplierID, err)
	}

	displayMatchReport(supplierID, report)
	return nil
}

// runMatchList executes the match list command
func runMatchList(supplierID int64, state string) error {
	var filter *matching.State
	if state != "" {
		switch matching.State(state) {
		case matching.StateUnmatched, matching.StatePending, matching.StateConfirmed:
			parsed := matching.State(state)
			filter = &parsed
		default:
			return shared.NewValidationError("state", fmt.Sprintf("unknown match state %q", state))
		}
	}

	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	engine := newMatcherEngine(rt)
	rows, err := engine.List(context.Background(), supplierID, filter)
	if err != nil {
		return fmt.Errorf("failed to list supplier products: %w", err)
	}

	displayMatches(rows)
	return nil
}

// runMatchAction executes confirm, reject and unmatch
func runMatchAction(id int64, action, actor string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	engine := newMatcherEngine(rt)
	ctx := context.Background()

	switch action {
	case "confirm":
		err = engine.Confirm(ctx, id, actor)
	case "reject":
		err = engine.Reject(ctx, id)
	case "unmatch":
		err = engine.Unmatch(ctx, id)
	}
	if err != nil {
		return err
	}

	fmt.Printf("✓ Supplier product %d %sed\n", id, action)
	return nil
}

// runMatchRematch executes the match rematch command
func runMatchRematch(id int64) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	repo := persistence.NewGormSupplierProductRepository(rt.db)
	engine := newMatcherEngine(rt)
	ctx := context.Background()

	sp, err := repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	switch sp.State() {
	case matching.StateConfirmed:
		return fmt.Errorf("supplier product %d is confirmed; unmatch it first", id)
	case matching.StatePending:
		if err := engine.Unmatch(ctx, id); err != nil {
			return err
		}
	}

	out, err := engine.MatchOne(ctx, id)
	if err != nil {
		return err
	}
	if !out.Matched {
		fmt.Printf("No candidate found for supplier product %d; it stays unmatched\n", id)
		return nil
	}
	fmt.Printf("✓ Supplier product %d matched to product %d (%s, score %.2f), pending review\n",
		id, out.ProductID, out.Method, out.Score)
	return nil
}

// newMatcherEngine wires the matcher from a runtime.
func newMatcherEngine(rt *runtime) *matcher.Engine {
	return matcher.NewEngine(
		persistence.NewGormSupplierProductRepository(rt.db),
		persistence.NewGormSupplierRepository(rt.db),
		persistence.NewGormProductRepository(rt.db),
		shared.NewRealClock(),
		rt.logger,
		matcher.Config{
			MinSimilarity: rt.cfg.Matching.MinSimilarity,
			Workers:       rt.cfg.Matching.Workers,
		},
	)
}

// parseID parses a positional numeric id argument.
func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, arg)
	}
	return id, nil
}

// displayMatchReport formats a batch match summary
func displayMatchReport(supplierID int64, report *matcher.Report) {
	fmt.Printf("\nMATCH RUN (supplier %d)\n", supplierID)
	fmt.Println("─────────────────────────────────────────────")
	fmt.Printf("  Rows considered:   %d\n", report.Total)
	fmt.Printf("  Pending cleared:   %d\n", report.Unlinked)
	fmt.Printf("  Confirmed kept:    %d\n", report.Confirmed)
	fmt.Printf("  Matched (pending): %d\n", report.Matched)
	fmt.Printf("  Still unmatched:   %d\n", report.Unmatched)
	if report.Failed > 0 {
		fmt.Printf("  Failed:            %d\n", report.Failed)
	}
	fmt.Println("─────────────────────────────────────────────")
	if report.Matched > 0 {
		fmt.Println("Review pending links with 'emagsync match list --state pending'.")
	}
}

// displayMatches formats a supplier product table
func displayMatches(rows []*matching.SupplierProduct) {
	if len(rows) == 0 {
		fmt.Println("No supplier products found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tState\tProduct\tScore\tEAN\tPrice\tName")
	fmt.Fprintln(w, "──\t─────\t───────\t─────\t───\t─────\t────")

	for _, sp := range rows {
		product := "-"
		if sp.LinkedProductID != nil {
			product = strconv.FormatInt(*sp.LinkedProductID, 10)
		}
		score := "-"
		if sp.SimilarityScore != nil {
			score = fmt.Sprintf("%.2f", *sp.SimilarityScore)
		}
		price := "-"
		if !sp.Price.IsZero() {
			price = sp.Price.StringFixed(2) + " " + sp.Currency
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			sp.ID,
			sp.State(),
			product,
			score,
			sp.EAN,
			price,
			truncate(sp.RawName, 40),
		)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d rows\n", len(rows))
}
