package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
	"github.com/modula-erp/emag-sync-go/internal/domain/syncrun"
)

// ErrShuttingDown rejects submissions that arrive after Shutdown has
// started.
var ErrShuttingDown = errors.New("controller is shutting down")

// Runner executes one sync run against a previously persisted log row
// and exposes live progress for running rows.
type Runner interface {
	Run(ctx context.Context, log *syncrun.Log, req syncrun.Request) error
	Progress(logID int64) (syncrun.Progress, bool)
}

// Config tunes the controller.
type Config struct {
	// OrphanTTL is the heartbeat age past which a running row is
	// considered abandoned by a dead process.
	OrphanTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.OrphanTTL <= 0 {
		c.OrphanTTL = 15 * time.Minute
	}
	return c
}

// Submission is what a caller gets back for an accepted request. Async
// submissions return with the row still queued; awaited ones carry the
// terminal status.
type Submission struct {
	SyncLogID int64
	RunID     string
	Async     bool
	Status    syncrun.Status
}

// RunStatus is the polling view: the most recent log row for a scope
// plus a live progress snapshot when that row is running in this
// process.
type RunStatus struct {
	Log      *syncrun.Log
	Progress *syncrun.Progress
	Live     bool
}

type slot struct {
	logID  int64
	cancel context.CancelFunc
	done   chan struct{}
}

// Controller serialises sync runs per (account, resource) and owns
// their goroutines. One slot per key: a second submission while the
// slot is held fails with shared.ErrBusy instead of queueing. The slot
// map guards only this process; across processes the latest log row is
// the advisory lock, held while its status is live and released when
// the orphan sweep fails a row whose heartbeat went stale.
type Controller struct {
	runner Runner
	logs   syncrun.LogRepository
	clock  shared.Clock
	logger *zap.Logger
	cfg    Config

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool
	wg     sync.WaitGroup
}

// NewController creates a controller. logger may be nil.
func NewController(runner Runner, logs syncrun.LogRepository, clock shared.Clock, logger *zap.Logger, cfg Config) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		runner: runner,
		logs:   logs,
		clock:  clock,
		logger: logger,
		cfg:    cfg.withDefaults(),
		slots:  make(map[string]*slot),
	}
}

// Submit validates the request, persists a queued log row and starts
// the run on its own goroutine. The run context is detached from ctx
// so an async run outlives its submitter; cancellation goes through
// Cancel or Shutdown. When req.Async is false, Submit blocks until the
// run reaches a terminal status and reports it.
func (c *Controller) Submit(ctx context.Context, req syncrun.Request) (*Submission, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := req.Key()
	s := &slot{done: make(chan struct{})}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if _, held := c.slots[key]; held {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", shared.ErrBusy, key)
	}
	c.slots[key] = s
	c.mu.Unlock()

	if err := c.ensureScopeFree(ctx, req); err != nil {
		c.release(key)
		return nil, err
	}

	log := syncrun.NewLog(uuid.NewString(), req, c.clock.Now())
	if err := c.logs.Create(ctx, log); err != nil {
		c.release(key)
		return nil, fmt.Errorf("failed to persist sync submission: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.closed {
		// Shutdown began while the row was being written. Close the
		// row out instead of starting work the shutdown would only
		// cancel again.
		delete(c.slots, key)
		c.mu.Unlock()
		cancel()
		if cErr := log.Cancel(c.clock.Now()); cErr == nil {
			if uErr := c.logs.Update(ctx, log); uErr != nil {
				c.logger.Error("failed to cancel queued row during shutdown",
					zap.Int64("sync_log_id", log.ID), zap.Error(uErr))
			}
		}
		return nil, ErrShuttingDown
	}
	s.logID = log.ID
	s.cancel = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Info("sync submitted",
		zap.Int64("sync_log_id", log.ID),
		zap.String("run_id", log.RunID),
		zap.String("account", string(req.Account)),
		zap.String("resource", string(req.Resource)),
		zap.String("mode", string(req.Mode)),
		zap.Bool("async", req.Async))

	sub := &Submission{SyncLogID: log.ID, RunID: log.RunID, Async: req.Async, Status: log.Status}

	go func() {
		defer c.wg.Done()
		defer close(s.done)
		defer cancel()
		defer c.release(key)
		if err := c.runner.Run(runCtx, log, req); err != nil {
			c.logger.Error("sync run could not record its outcome",
				zap.Int64("sync_log_id", log.ID),
				zap.Error(err))
		}
	}()

	if req.Async {
		return sub, nil
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		// The submitter gave up waiting; the run itself keeps going.
		return sub, fmt.Errorf("wait for sync %d: %w", log.ID, ctx.Err())
	}
	sub.Status = log.Status
	return sub, nil
}

// ensureScopeFree enforces the advisory cross-process lock: a live log
// row for the scope means another process owns it, unless its
// heartbeat already went stale, in which case the row is swept and the
// scope reclaimed.
func (c *Controller) ensureScopeFree(ctx context.Context, req syncrun.Request) error {
	latest, err := c.logs.Latest(ctx, req.Account, req.Resource)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to check scope %s: %w", req.Key(), err)
	}
	if latest.Status.Terminal() {
		return nil
	}

	anchor := latest.CreatedAt
	if latest.HeartbeatAt != nil {
		anchor = *latest.HeartbeatAt
	}
	now := c.clock.Now()
	cutoff := now.Add(-c.cfg.OrphanTTL)
	if anchor.After(cutoff) {
		return fmt.Errorf("%w: %s held by run %d", shared.ErrBusy, req.Key(), latest.ID)
	}

	swept, err := c.logs.MarkOrphans(ctx, cutoff, now)
	if err != nil {
		return fmt.Errorf("failed to sweep orphaned runs: %w", err)
	}
	c.logger.Warn("reclaimed scope from orphaned run",
		zap.String("scope", req.Key()),
		zap.Int64("stale_sync_log_id", latest.ID),
		zap.Int64("swept", swept))
	return nil
}

// Await blocks until the given run leaves the running state and
// returns the final row. It works across processes by polling, so the
// CLI can attach to a run the daemon started.
func (c *Controller) Await(ctx context.Context, logID int64, poll time.Duration) (*syncrun.Log, error) {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	for {
		log, err := c.logs.FindByID(ctx, logID)
		if err != nil {
			return nil, err
		}
		if log.Status.Terminal() {
			return log, nil
		}
		select {
		case <-ctx.Done():
			return log, ctx.Err()
		case <-time.After(poll):
		}
	}
}

// Cancel flags the row for cooperative cancellation. The engine
// observes the flag at its next page boundary; in-flight HTTP calls
// run to completion.
func (c *Controller) Cancel(ctx context.Context, logID int64) error {
	if err := c.logs.RequestCancel(ctx, logID); err != nil {
		return err
	}
	c.logger.Info("sync cancellation requested", zap.Int64("sync_log_id", logID))
	return nil
}

// IsRunning reports whether this process holds the slot for the scope.
func (c *Controller) IsRunning(account shared.Account, resource syncrun.Resource) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, held := c.slots[slotKey(account, resource)]
	return held
}

// Status returns the most recent log row for the scope together with
// a live progress snapshot when the run is active in this process.
func (c *Controller) Status(ctx context.Context, account shared.Account, resource syncrun.Resource) (*RunStatus, error) {
	log, err := c.logs.Latest(ctx, account, resource)
	if err != nil {
		return nil, err
	}
	status := &RunStatus{Log: log}
	if snap, ok := c.runner.Progress(log.ID); ok {
		status.Progress = &snap
		status.Live = true
	}
	return status, nil
}

// History lists past runs, newest first.
func (c *Controller) History(ctx context.Context, filter syncrun.HistoryFilter) ([]*syncrun.Log, error) {
	return c.logs.History(ctx, filter)
}

// Items returns the per-item audit rows recorded for a run.
func (c *Controller) Items(ctx context.Context, logID int64) ([]syncrun.Item, error) {
	return c.logs.Items(ctx, logID)
}

// SweepOrphans fails running rows whose heartbeat is older than the
// orphan TTL. Rows owned by live slots in this process keep fresh
// heartbeats and are never swept.
func (c *Controller) SweepOrphans(ctx context.Context) (int64, error) {
	now := c.clock.Now()
	swept, err := c.logs.MarkOrphans(ctx, now.Add(-c.cfg.OrphanTTL), now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep orphaned runs: %w", err)
	}
	if swept > 0 {
		c.logger.Warn("swept orphaned sync runs", zap.Int64("count", swept))
	}
	return swept, nil
}

// Shutdown stops accepting submissions, cancels every active run and
// waits for their goroutines to finish recording terminal state. The
// wait is bounded by ctx.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	for _, s := range c.slots {
		if s.cancel != nil {
			s.cancel()
		}
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for active syncs: %w", ctx.Err())
	}
}

func (c *Controller) release(key string) {
	c.mu.Lock()
	delete(c.slots, key)
	c.mu.Unlock()
}

func slotKey(account shared.Account, resource syncrun.Resource) string {
	return string(account) + "/" + string(resource)
}
