package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/modula-erp/emag-sync-go/internal/adapters/persistence"
	"github.com/modula-erp/emag-sync-go/internal/application/controller"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
	"github.com/modula-erp/emag-sync-go/internal/domain/syncrun"
)

// awaitPoll is how often submitted runs are re-checked for a terminal
// status.
const awaitPoll = 250 * time.Millisecond

// NewSyncCommand creates the sync command
func NewSyncCommand() *cobra.Command {
	var (
		resource           string
		mode               string
		conflict           string
		maxPages           int
		async              bool
		categoryIDs        []int64
		validationStatuses []int
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a marketplace sync",
		Long: `Submit one sync run per selected account and print its sync-log id.

Each (account, resource) pair runs at most one sync at a time, across
every process sharing the database: a scope the daemon currently holds
is rejected here as busy (exit code 2).

Without --async the selected accounts run one after another and each
prints a result summary. With --async both submissions start
immediately and run in parallel; the command still waits for them to
finish but prints only the sync-log ids.

Modes:
  full         - read every remote page
  incremental  - only records modified since the last successful run
  selective    - only records matching --category / --validation-status

Examples:
  emagsync sync --account main --resource products --mode full
  emagsync sync --account both --resource orders --mode incremental --async
  emagsync sync --account fbe --resource offers --mode selective --category 506
  emagsync sync --account main --resource products --mode full --conflict manual`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(resource, mode, conflict, maxPages, async, categoryIDs, validationStatuses)
		},
	}

	cmd.Flags().StringVar(&resource, "resource", "", "Resource to sync: products, offers or orders [required]")
	cmd.Flags().StringVar(&mode, "mode", "incremental", "Sync mode: full, incremental or selective")
	cmd.Flags().StringVar(&conflict, "conflict", "", "Conflict strategy: emag_priority, local_priority, newest_wins or manual")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "Cap on pages for this run (0 = config default)")
	cmd.Flags().BoolVar(&async, "async", false, "Submit all accounts in parallel and print only sync-log ids")
	cmd.Flags().Int64SliceVar(&categoryIDs, "category", nil, "Category ids for selective mode")
	cmd.Flags().IntSliceVar(&validationStatuses, "validation-status", nil, "Validation statuses for selective mode")
	cmd.MarkFlagRequired("resource")

	return cmd
}

// NewStatusCommand creates the status command
func NewStatusCommand() *cobra.Command {
	var resource string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the latest sync per account and resource",
		Long: `Show the latest sync-log row per (account, resource) scope.

The latest row is the public status of its scope. A running row with a
recent heartbeat belongs to a live process, usually the daemon; a
running row with a stale heartbeat is an orphan the next sweep will
fail.

Examples:
  emagsync status
  emagsync status --account main
  emagsync status --account fbe --resource orders`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSyncStatus(resource)
		},
	}

	cmd.Flags().StringVar(&resource, "resource", "", "Limit to one resource: products, offers or orders")

	return cmd
}

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	var (
		resource string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sync runs",
		Long: `List recent sync-log rows, newest first.

Rows are never deleted, so this is the full audit of every submission:
who asked for it, what it covered and how it ended.

Examples:
  emagsync history
  emagsync history --account main --resource products --limit 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSyncHistory(resource, limit)
		},
	}

	cmd.Flags().StringVar(&resource, "resource", "", "Limit to one resource: products, offers or orders")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of rows to return")

	return cmd
}

// NewCancelCommand creates the cancel command
func NewCancelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <sync-log-id>",
		Short: "Request cancellation of a live sync run",
		Long: `Flag a live sync run for cooperative cancellation.

The owning process observes the flag at its next page boundary,
finishes the page it is on and ends the run as cancelled. Terminal
runs cannot be cancelled.

Example:
  emagsync cancel 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid sync-log id %q", args[0])
			}
			return runSyncCancel(id)
		},
	}

	return cmd
}

// runSync executes the sync command
func runSync(resource, mode, conflict string, maxPages int, async bool, categoryIDs []int64, validationStatuses []int) error {
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

	logs := persistence.NewGormSyncLogRepository(rt.db)
	engine := rt.newSyncEngine(client)
	ctrl := controller.NewController(engine, logs, shared.NewRealClock(), rt.logger, controller.Config{
		OrphanTTL: rt.cfg.Sync.OrphanTTL,
	})

	ctx := context.Background()
	var submissions []*controller.Submission
	for _, acct := range accounts {
		req := syncrun.Request{
			Account:  acct,
			Resource: syncrun.Resource(resource),
			Mode:     syncrun.Mode(mode),
			Strategy: syncrun.ConflictStrategy(conflict),
			MaxPages: maxPages,
			Filters: syncrun.Filters{
				CategoryIDs:        categoryIDs,
				ValidationStatuses: validationStatuses,
			},
			Actor: "cli",
			Async: async,
		}

		sub, err := ctrl.Submit(ctx, req)
		if err != nil {
			return err
		}
		submissions = append(submissions, sub)
		fmt.Printf("sync-log id %d submitted (%s/%s, run %s)\n", sub.SyncLogID, acct, resource, sub.RunID)
	}

	// Async submissions run on controller goroutines inside this
	// process, so leaving before they finish would orphan them.
	for _, sub := range submissions {
		if _, err := ctrl.Await(ctx, sub.SyncLogID, awaitPoll); err != nil {
			return fmt.Errorf("failed to await run %d: %w", sub.SyncLogID, err)
		}
	}

	if !async {
		for _, sub := range submissions {
			row, err := logs.FindByID(ctx, sub.SyncLogID)
			if err != nil {
				return err
			}
			displaySyncResult(row)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.Daemon.ShutdownTimeout)
	defer cancel()
	return ctrl.Shutdown(shutdownCtx)
}

// runSyncStatus executes the status command
func runSyncStatus(resource string) error {
	accounts := shared.AllAccounts()
	if account != "" {
		resolved, err := resolveAccounts()
		if err != nil {
			return err
		}
		accounts = resolved
	}

	resources := []syncrun.Resource{syncrun.ResourceProducts, syncrun.ResourceOffers, syncrun.ResourceOrders}
	if resource != "" {
		parsed, err := syncrun.ParseResource(resource)
		if err != nil {
			return err
		}
		resources = []syncrun.Resource{parsed}
	}

	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	logs := persistence.NewGormSyncLogRepository(rt.db)
	ctx := context.Background()

	var rows []*syncrun.Log
	for _, acct := range accounts {
		for _, res := range resources {
			row, err := logs.Latest(ctx, acct, res)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					continue
				}
				return err
			}
			rows = append(rows, row)
		}
	}

	displaySyncStatus(rows)
	return nil
}

// runSyncHistory executes the history command
func runSyncHistory(resource string, limit int) error {
	filter := syncrun.HistoryFilter{Limit: limit}
	if account != "" {
		acct, err := shared.ParseAccount(account)
		if err != nil {
			return err
		}
		filter.Account = acct
	}
	if resource != "" {
		parsed, err := syncrun.ParseResource(resource)
		if err != nil {
			return err
		}
		filter.Resource = parsed
	}

	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	logs := persistence.NewGormSyncLogRepository(rt.db)
	rows, err := logs.History(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("failed to query sync history: %w", err)
	}

	displaySyncHistory(rows)
	return nil
}

// runSyncCancel executes the cancel command
func runSyncCancel(id int64) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	logs := persistence.NewGormSyncLogRepository(rt.db)
	ctx := context.Background()

	row, err := logs.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if row.Status.Terminal() {
		return fmt.Errorf("sync log %d is already %s", id, row.Status)
	}
	if err := logs.RequestCancel(ctx, id); err != nil {
		return fmt.Errorf("failed to request cancel: %w", err)
	}

	fmt.Printf("✓ Cancellation requested for sync log %d (%s/%s)\n", id, row.Account, row.Resource)
	fmt.Println("The owning process stops at its next page boundary.")
	return nil
}

// displaySyncResult formats one finished run
func displaySyncResult(row *syncrun.Log) {
	fmt.Printf("\nSYNC RESULT #%d (%s/%s)\n", row.ID, row.Account, row.Resource)
	fmt.Println("─────────────────────────────────────────────────────────────")
	fmt.Printf("  Status:      %s\n", row.Status)
	fmt.Printf("  Mode:        %s\n", row.Mode)
	fmt.Printf("  Strategy:    %s\n", row.Strategy)
	fmt.Printf("  Items:       %d/%d processed\n", row.ProcessedItems, row.TotalItems)
	fmt.Printf("  Created:     %d\n", row.CreatedCount)
	fmt.Printf("  Updated:     %d\n", row.UpdatedCount)
	fmt.Printf("  Skipped:     %d\n", row.SkippedCount)
	fmt.Printf("  Failed:      %d\n", row.FailedCount)
	fmt.Printf("  Started:     %s\n", formatTimePtr(row.StartedAt))
	fmt.Printf("  Finished:    %s\n", formatTimePtr(row.FinishedAt))
	if row.ErrorMessage != "" {
		fmt.Printf("  Error:       %s\n", row.ErrorMessage)
	}
	if row.Status == syncrun.StatusSucceeded && row.FailedCount > 0 {
		fmt.Printf("  Note:        succeeded with %d item failures\n", row.FailedCount)
	}
}

// displaySyncStatus formats the latest run per scope
func displaySyncStatus(rows []*syncrun.Log) {
	if len(rows) == 0 {
		fmt.Println("No sync runs recorded yet")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAccount\tResource\tStatus\tProgress\tStarted\tHeartbeat")
	fmt.Fprintln(w, "──\t───────\t────────\t──────\t────────\t───────\t─────────")

	for _, row := range rows {
		progress := "-"
		if row.TotalItems > 0 {
			progress = fmt.Sprintf("%d/%d", row.ProcessedItems, row.TotalItems)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.ID,
			row.Account,
			row.Resource,
			row.Status,
			progress,
			formatTimePtr(row.StartedAt),
			formatTimePtr(row.HeartbeatAt),
		)
	}

	w.Flush()
}

// displaySyncHistory formats the run audit trail
func displaySyncHistory(rows []*syncrun.Log) {
	if len(rows) == 0 {
		fmt.Println("No sync runs found")
		return
	}

	fmt.Printf("\nSYNC HISTORY (%d runs)\n", len(rows))
	fmt.Println("─────────────────────────────────────────────────────────────────────────────")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAccount\tResource\tMode\tStatus\tC/U/S/F\tActor\tStarted\tDuration")
	fmt.Fprintln(w, "──\t───────\t────────\t────\t──────\t───────\t─────\t───────\t────────")

	for _, row := range rows {
		counters := fmt.Sprintf("%d/%d/%d/%d",
			row.CreatedCount, row.UpdatedCount, row.SkippedCount, row.FailedCount)
		duration := "-"
		if row.StartedAt != nil && row.FinishedAt != nil {
			duration = row.FinishedAt.Sub(*row.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.ID,
			row.Account,
			row.Resource,
			row.Mode,
			row.Status,
			counters,
			row.Actor,
			formatTimePtr(row.StartedAt),
			duration,
		)
	}

	w.Flush()
	fmt.Println("─────────────────────────────────────────────────────────────────────────────")
}
