package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/modula-erp/emag-sync-go/internal/adapters/api"
	"github.com/modula-erp/emag-sync-go/internal/domain/catalog"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
	"github.com/modula-erp/emag-sync-go/internal/domain/syncrun"
	"github.com/modula-erp/emag-sync-go/internal/infrastructure/ports"
)

const (
	defaultPageSize     = api.DefaultPageSize
	defaultMaxPages     = 100
	defaultRunTimeout   = 10 * time.Minute
	defaultPushBulkSize = api.MaxBulkEntities
	defaultWarehouseID  = 1
)

// Config holds the engine's tuning knobs. Zero values pick the
// defaults above.
type Config struct {
	// Items requested per page read
	PageSize int

	// Hard cap on pages per run; requests may lower it further
	MaxPages int

	// Wall-clock cap for one run, enforced at page boundaries
	RunTimeout time.Duration

	// Rows per slice when pushing stock back to the marketplace
	PushBulkSize int

	// Warehouse used for stock writes, per account
	Warehouses map[shared.Account]int
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = defaultMaxPages
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaultRunTimeout
	}
	if c.PushBulkSize <= 0 {
		c.PushBulkSize = defaultPushBulkSize
	}
	return c
}

func (c Config) warehouseFor(account shared.Account) int {
	if id, ok := c.Warehouses[account]; ok && id > 0 {
		return id
	}
	return defaultWarehouseID
}

// MetricsRecorder receives run-level measurements. The prometheus
// adapter implements it; NopMetrics keeps tests quiet.
type MetricsRecorder interface {
	RecordRun(account, resource, status string, duration time.Duration)
	RecordPage(account, resource string)
	RecordItems(account, resource, action string, n int)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) RecordRun(string, string, string, time.Duration) {}
func (NopMetrics) RecordPage(string, string)                      {}
func (NopMetrics) RecordItems(string, string, string, int)        {}

// ReferenceSource supplies the slow-moving registries offer publishing
// needs. The api.ReferenceCache satisfies it.
type ReferenceSource interface {
	VatRates(ctx context.Context, account shared.Account) ([]api.VatRate, error)
	HandlingTimes(ctx context.Context, account shared.Account) ([]api.HandlingTime, error)
}

// Engine drives one sync run at a time from a queued log row to a
// terminal state. It owns no scheduling: the controller decides what
// runs and when, the engine only executes.
type Engine struct {
	client   ports.MarketplaceClient
	products catalog.ProductRepository
	orders   catalog.OrderRepository
	logs     syncrun.LogRepository
	refs     ReferenceSource
	clock    shared.Clock
	logger   *zap.Logger
	metrics  MetricsRecorder
	cfg      Config

	mu   sync.Mutex
	live map[int64]*syncrun.Tracker
}

// NewEngine wires an engine. Nil clock, logger and metrics fall back
// to real time, a no-op logger and discarded metrics.
func NewEngine(
	client ports.MarketplaceClient,
	products catalog.ProductRepository,
	orders catalog.OrderRepository,
	logs syncrun.LogRepository,
	refs ReferenceSource,
	clock shared.Clock,
	logger *zap.Logger,
	metrics MetricsRecorder,
	cfg Config,
) *Engine {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Engine{
		client:   client,
		products: products,
		orders:   orders,
		logs:     logs,
		refs:     refs,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
		live:     make(map[int64]*syncrun.Tracker),
	}
}

// Run drives one queued log row to a terminal state. The run's outcome
// lands on the row itself; the returned error reports only failures
// recording that outcome.
func (e *Engine) Run(ctx context.Context, log *syncrun.Log, req syncrun.Request) error {
	if err := log.Start(e.clock.Now()); err != nil {
		return err
	}
	if err := e.logs.Update(ctx, log); err != nil {
		return fmt.Errorf("failed to persist running state: %w", err)
	}

	logger := e.logger.With(
		zap.String("run_id", log.RunID),
		zap.String("account", string(log.Account)),
		zap.String("resource", string(log.Resource)),
		zap.String("mode", string(log.Mode)),
	)
	logger.Info("sync run started")

	tracker := syncrun.NewTracker(e.clock, log.ID)
	e.mu.Lock()
	e.live[log.ID] = tracker
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.live, log.ID)
		e.mu.Unlock()
	}()

	var runErr error
	switch log.Resource {
	case syncrun.ResourceProducts, syncrun.ResourceOffers:
		runErr = e.pullProducts(ctx, log, req, tracker, logger)
	case syncrun.ResourceOrders:
		runErr = e.pullOrders(ctx, log, req, tracker, logger)
	default:
		runErr = shared.NewValidationError("resource", fmt.Sprintf("engine cannot sync %q", log.Resource))
	}

	return e.finish(log, runErr, logger)
}

// finish commits the terminal transition. It deliberately ignores the
// run context: a shutdown that cancelled the run must not also stop
// the terminal write.
func (e *Engine) finish(log *syncrun.Log, runErr error, logger *zap.Logger) error {
	now := e.clock.Now()
	var transition error
	switch {
	case runErr == nil:
		transition = log.Succeed(now)
	case errors.Is(runErr, shared.ErrCancelled) || errors.Is(runErr, context.Canceled):
		transition = log.Cancel(now)
	default:
		transition = log.Fail(now, runErr.Error())
	}
	if transition != nil {
		return transition
	}
	if err := e.logs.Update(context.Background(), log); err != nil {
		return fmt.Errorf("failed to commit terminal state: %w", err)
	}

	duration := log.Duration(now)
	e.metrics.RecordRun(string(log.Account), string(log.Resource), string(log.Status), duration)

	fields := []zap.Field{
		zap.String("status", string(log.Status)),
		zap.Duration("duration", duration),
		zap.Int("processed", log.ProcessedItems),
		zap.Int("created", log.CreatedCount),
		zap.Int("updated", log.UpdatedCount),
		zap.Int("skipped", log.SkippedCount),
		zap.Int("failed", log.FailedCount),
	}
	if log.ErrorMessage != "" {
		fields = append(fields, zap.String("error", log.ErrorMessage))
	}
	logger.Info("sync run finished", fields...)
	return nil
}

// Progress returns the live snapshot for a running log id.
func (e *Engine) Progress(logID int64) (syncrun.Progress, bool) {
	e.mu.Lock()
	tracker, ok := e.live[logID]
	e.mu.Unlock()
	if !ok {
		return syncrun.Progress{}, false
	}
	return tracker.Snapshot(), true
}

// pageBarrier is the cooperative checkpoint between pages. Shutdown
// and user cancel outrank the wall-clock cap.
func (e *Engine) pageBarrier(ctx context.Context, log *syncrun.Log) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrCancelled, err)
	}
	cancelled, err := e.logs.CancelRequested(ctx, log.ID)
	if err != nil {
		return fmt.Errorf("failed to read cancel flag: %w", err)
	}
	if cancelled {
		return shared.ErrCancelled
	}
	if log.StartedAt != nil && e.clock.Now().Sub(*log.StartedAt) > e.cfg.RunTimeout {
		return fmt.Errorf("%w: exceeded %s", shared.ErrSyncTimedOut, e.cfg.RunTimeout)
	}
	return nil
}

// watermark computes the modified-after filter for incremental runs.
// The note is non-empty when the resource forced a full read instead.
func (e *Engine) watermark(ctx context.Context, log *syncrun.Log) (time.Time, string, error) {
	if log.Mode != syncrun.ModeIncremental {
		return time.Time{}, "", nil
	}
	if !log.Resource.SupportsIncremental() {
		return time.Time{}, "offer reads do not accept a modified filter; ran full instead", nil
	}
	last, err := e.logs.LatestSuccess(ctx, log.Account, log.Resource)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return syncrun.ModifiedSince(nil, e.clock.Now()), "", nil
		}
		return time.Time{}, "", fmt.Errorf("failed to load last successful run: %w", err)
	}
	return syncrun.ModifiedSince(last.StartedAt, e.clock.Now()), "", nil
}

// pageResult is what one fetch-and-apply cycle reports back to the
// shared page loop.
type pageResult struct {
	pulled int         // rows the remote sent, good and bad
	total  int         // announced total, read on page 1
	counts pageOutcome // what applying the page did locally
}

// pageOutcome is one page's contribution to the run counters. Review
// rows fold into the skipped counter on the log row; the distinction
// survives in the audit items and the metrics.
type pageOutcome struct {
	created int
	updated int
	skipped int
	failed  int
	review  int
}

func (o pageOutcome) processed() int {
	return o.created + o.updated + o.skipped + o.failed + o.review
}

// runPages drives the shared paged-pull loop: barrier, fetch, counter
// commit, progress publish, termination. It reports whether the run
// saw the complete remote set; a page cap leaves it partial.
func (e *Engine) runPages(
	ctx context.Context,
	log *syncrun.Log,
	req syncrun.Request,
	tracker *syncrun.Tracker,
	logger *zap.Logger,
	fetch func(ctx context.Context, page, perPage int) (pageResult, error),
) (bool, error) {
	perPage := e.cfg.PageSize
	pageCap := e.cfg.MaxPages
	if req.MaxPages > 0 && req.MaxPages < pageCap {
		pageCap = req.MaxPages
	}

	for page := 1; ; page++ {
		if err := e.pageBarrier(ctx, log); err != nil {
			return false, err
		}
		if page > pageCap {
			logger.Warn("page cap reached before the remote ran out",
				zap.Int("page_cap", pageCap))
			return false, nil
		}

		res, err := fetch(ctx, page, perPage)
		if err != nil {
			return false, fmt.Errorf("page %d: %w", page, err)
		}
		if page == 1 {
			if err := log.SetTotal(res.total); err != nil {
				return false, err
			}
			tracker.SetTotal(res.total, totalPages(res.total, perPage))
		}
		if res.pulled == 0 {
			return true, nil
		}

		now := e.clock.Now()
		c := res.counts
		if err := log.RecordPage(c.created, c.updated, c.skipped+c.review, c.failed, now); err != nil {
			return false, err
		}
		if err := e.logs.Update(ctx, log); err != nil {
			return false, fmt.Errorf("failed to persist page counters: %w", err)
		}
		tracker.Advance(page, c.processed())
		e.recordPageMetrics(log, c)
		logger.Debug("page applied",
			zap.Int("page", page),
			zap.Int("pulled", res.pulled),
			zap.Int("created", c.created),
			zap.Int("updated", c.updated),
			zap.Int("skipped", c.skipped),
			zap.Int("failed", c.failed))

		if log.TotalItems > 0 && log.ProcessedItems >= log.TotalItems {
			return true, nil
		}
		if res.pulled < perPage {
			return true, nil
		}
	}
}

func (e *Engine) recordPageMetrics(log *syncrun.Log, c pageOutcome) {
	account, resource := string(log.Account), string(log.Resource)
	e.metrics.RecordPage(account, resource)
	e.metrics.RecordItems(account, resource, string(syncrun.ItemCreated), c.created)
	e.metrics.RecordItems(account, resource, string(syncrun.ItemUpdated), c.updated)
	e.metrics.RecordItems(account, resource, string(syncrun.ItemSkipped), c.skipped)
	e.metrics.RecordItems(account, resource, string(syncrun.ItemFailed), c.failed)
	e.metrics.RecordItems(account, resource, string(syncrun.ItemReview), c.review)
}

func totalPages(total, perPage int) int {
	if total <= 0 || perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
