package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
	"github.com/modula-erp/emag-sync-go/internal/domain/syncrun"
)

// sweepTimeout bounds one orphan-sweep pass.
const sweepTimeout = 30 * time.Second

// Schedule describes one recurring sync. Mode defaults to incremental.
type Schedule struct {
	Account  shared.Account
	Resource syncrun.Resource
	Mode     syncrun.Mode
	Every    time.Duration
}

// Scheduler drives the daemon's recurring syncs and the orphan
// sweeper. A busy slot means the previous run is still paging and the
// tick is skipped, not retried.
type Scheduler struct {
	controller *Controller
	schedules  []Schedule
	sweepEvery time.Duration
	logger     *zap.Logger
}

// NewScheduler creates a scheduler. logger may be nil. A sweepEvery
// of zero disables the orphan sweeper.
func NewScheduler(controller *Controller, schedules []Schedule, sweepEvery time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		controller: controller,
		schedules:  schedules,
		sweepEvery: sweepEvery,
		logger:     logger,
	}
}

// Run ticks each schedule on its own cadence until ctx is done. It
// blocks; the daemon calls it on a goroutine and cancels ctx to stop.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, sched := range s.schedules {
		if sched.Every <= 0 {
			continue
		}
		wg.Add(1)
		go func(sc Schedule) {
			defer wg.Done()
			ticker := time.NewTicker(sc.Every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.trigger(ctx, sc)
				}
			}
		}(sched)
	}

	if s.sweepEvery > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(s.sweepEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					sweepCtx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
					if _, err := s.controller.SweepOrphans(sweepCtx); err != nil {
						s.logger.Error("orphan sweep failed", zap.Error(err))
					}
					cancel()
				}
			}
		}()
	}

	wg.Wait()
}

// Kickoff submits every schedule once, so a freshly started daemon
// pulls immediately instead of waiting out the first interval.
func (s *Scheduler) Kickoff(ctx context.Context) {
	for _, sched := range s.schedules {
		s.trigger(ctx, sched)
	}
}

func (s *Scheduler) trigger(ctx context.Context, sc Schedule) {
	mode := sc.Mode
	if mode == "" {
		mode = syncrun.ModeIncremental
	}
	req := syncrun.Request{
		Account:  sc.Account,
		Resource: sc.Resource,
		Mode:     mode,
		Actor:    "scheduler",
		Async:    true,
	}

	sub, err := s.controller.Submit(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrBusy):
			s.logger.Debug("scheduled sync skipped, previous run still active",
				zap.String("account", string(sc.Account)),
				zap.String("resource", string(sc.Resource)))
		case errors.Is(err, ErrShuttingDown):
		default:
			s.logger.Warn("scheduled sync submission failed",
				zap.String("account", string(sc.Account)),
				zap.String("resource", string(sc.Resource)),
				zap.Error(err))
		}
		return
	}

	s.logger.Info("scheduled sync started",
		zap.Int64("sync_log_id", sub.SyncLogID),
		zap.String("account", string(sc.Account)),
		zap.String("resource", string(sc.Resource)),
		zap.String("mode", string(mode)))
}
