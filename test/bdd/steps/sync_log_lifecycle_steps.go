package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
	"github.com/modula-erp/emag-sync-go/internal/domain/syncrun"
)

type syncLogLifecycleContext struct {
	clock           *shared.MockClock
	log             *syncrun.Log
	transitionError error
}

func (lc *syncLogLifecycleContext) reset() {
	lc.clock = shared.NewMockClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	lc.log = nil
	lc.transitionError = nil
}

// Given steps

func (lc *syncLogLifecycleContext) aQueuedSyncLog(account, resource string) error {
	acct, err := shared.ParseAccount(account)
	if err != nil {
		return err
	}
	res, err := syncrun.ParseResource(resource)
	if err != nil {
		return err
	}

	lc.log = syncrun.NewLog("run-1", syncrun.Request{
		Account:  acct,
		Resource: res,
		Mode:     syncrun.ModeIncremental,
		Actor:    "bdd",
	}, lc.clock.Now())
	lc.log.ID = 1
	return nil
}

func (lc *syncLogLifecycleContext) aRunningSyncLog(account, resource string) error {
	if err := lc.aQueuedSyncLog(account, resource); err != nil {
		return err
	}
	return lc.log.Start(lc.clock.Now())
}

func (lc *syncLogLifecycleContext) aRunningSyncLogExpectingItems(account, resource string, total int) error {
	if err := lc.aRunningSyncLog(account, resource); err != nil {
		return err
	}
	return lc.log.SetTotal(total)
}

func (lc *syncLogLifecycleContext) aSucceededSyncLog(account, resource string) error {
	if err := lc.aRunningSyncLog(account, resource); err != nil {
		return err
	}
	return lc.log.Succeed(lc.clock.Now())
}

// When steps

func (lc *syncLogLifecycleContext) theRunStarts() error {
	if lc.log == nil {
		return fmt.Errorf("no sync log available")
	}
	lc.transitionError = lc.log.Start(lc.clock.Now())
	return nil
}

func (lc *syncLogLifecycleContext) theRunSucceeds() error {
	if lc.log == nil {
		return fmt.Errorf("no sync log available")
	}
	lc.transitionError = lc.log.Succeed(lc.clock.Now())
	return nil
}

func (lc *syncLogLifecycleContext) theRunFailsWith(message string) error {
	if lc.log == nil {
		return fmt.Errorf("no sync log available")
	}
	lc.transitionError = lc.log.Fail(lc.clock.Now(), message)
	return nil
}

func (lc *syncLogLifecycleContext) theRunIsCancelled() error {
	if lc.log == nil {
		return fmt.Errorf("no sync log available")
	}
	lc.transitionError = lc.log.Cancel(lc.clock.Now())
	return nil
}

func (lc *syncLogLifecycleContext) theRunRecordsAPage(created, updated, skipped, failed int) error {
	if lc.log == nil {
		return fmt.Errorf("no sync log available")
	}
	lc.transitionError = lc.log.RecordPage(created, updated, skipped, failed, lc.clock.Now())
	return nil
}

func (lc *syncLogLifecycleContext) minutesPass(minutes int) error {
	lc.clock.Advance(time.Duration(minutes) * time.Minute)
	return nil
}

func (lc *syncLogLifecycleContext) theRunHeartbeats() error {
	if lc.log == nil {
		return fmt.Errorf("no sync log available")
	}
	lc.log.Heartbeat(lc.clock.Now())
	return nil
}

// Then steps

func (lc *syncLogLifecycleContext) theSyncLogStatusShouldBe(expected string) error {
	if lc.log == nil {
		return fmt.Errorf("no sync log available")
	}
	if lc.transitionError != nil {
		return fmt.Errorf("unexpected transition error: %v", lc.transitionError)
	}
	if string(lc.log.Status) != expected {
		return fmt.Errorf("expected status %s, got %s", expected, lc.log.Status)
	}
	return nil
}

func (lc *syncLogLifecycleContext) theSyncLogShouldHaveNoStartedTimestamp() error {
	if lc.log.StartedAt != nil {
		return fmt.Errorf("started timestamp should be nil but was %v", *lc.log.StartedAt)
	}
	return nil
}

func (lc *syncLogLifecycleContext) theSyncLogShouldHaveAStartedTimestamp() error {
	if lc.log.StartedAt == nil {
		return fmt.Errorf("started timestamp should be set but was nil")
	}
	return nil
}

func (lc *syncLogLifecycleContext) theSyncLogShouldHaveAFinishedTimestamp() error {
	if lc.log.FinishedAt == nil {
		return fmt.Errorf("finished timestamp should be set but was nil")
	}
	return nil
}

func (lc *syncLogLifecycleContext) theSyncLogShouldHaveAFreshHeartbeat() error {
	if lc.log.HeartbeatAt == nil {
		return fmt.Errorf("heartbeat should be set but was nil")
	}
	if !lc.log.HeartbeatAt.Equal(lc.clock.Now()) {
		return fmt.Errorf("heartbeat %v is stale at %v", *lc.log.HeartbeatAt, lc.clock.Now())
	}
	return nil
}

func (lc *syncLogLifecycleContext) theSyncLogErrorMessageShouldBe(expected string) error {
	if lc.log.ErrorMessage != expected {
		return fmt.Errorf("expected error message %q, got %q", expected, lc.log.ErrorMessage)
	}
	return nil
}

func (lc *syncLogLifecycleContext) theFailedItemCountShouldBe(expected int) error {
	if lc.log.FailedCount != expected {
		return fmt.Errorf("expected %d failed items, got %d", expected, lc.log.FailedCount)
	}
	return nil
}

func (lc *syncLogLifecycleContext) theTransitionShouldFailWith(expected string) error {
	if lc.transitionError == nil {
		return fmt.Errorf("expected transition to fail with %q, but it succeeded", expected)
	}
	if lc.transitionError.Error() != expected {
		return fmt.Errorf("expected error %q, got %q", expected, lc.transitionError.Error())
	}
	return nil
}

func (lc *syncLogLifecycleContext) shouldBeOrphanedWithTTL(minutes int) error {
	ttl := time.Duration(minutes) * time.Minute
	if !lc.log.Orphaned(lc.clock.Now(), ttl) {
		return fmt.Errorf("expected sync log to be orphaned after %v of silence", ttl)
	}
	return nil
}

func (lc *syncLogLifecycleContext) shouldNotBeOrphanedWithTTL(minutes int) error {
	ttl := time.Duration(minutes) * time.Minute
	if lc.log.Orphaned(lc.clock.Now(), ttl) {
		return fmt.Errorf("expected sync log to stay live within %v", ttl)
	}
	return nil
}

// InitializeSyncLogLifecycleScenario registers the sync log lifecycle steps
func InitializeSyncLogLifecycleScenario(ctx *godog.ScenarioContext) {
	lc := &syncLogLifecycleContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		lc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a queued sync log for "([^"]*)" "([^"]*)"$`, lc.aQueuedSyncLog)
	ctx.Step(`^a running sync log for "([^"]*)" "([^"]*)"$`, lc.aRunningSyncLog)
	ctx.Step(`^a running sync log for "([^"]*)" "([^"]*)" expecting (\d+) items$`, lc.aRunningSyncLogExpectingItems)
	ctx.Step(`^a succeeded sync log for "([^"]*)" "([^"]*)"$`, lc.aSucceededSyncLog)

	// When steps
	ctx.Step(`^the run starts$`, lc.theRunStarts)
	ctx.Step(`^the run succeeds$`, lc.theRunSucceeds)
	ctx.Step(`^the run fails with "([^"]*)"$`, lc.theRunFailsWith)
	ctx.Step(`^the run is cancelled$`, lc.theRunIsCancelled)
	ctx.Step(`^the run records a page of (\d+) created, (\d+) updated, (\d+) skipped and (\d+) failed items$`, lc.theRunRecordsAPage)
	ctx.Step(`^(\d+) minutes pass$`, lc.minutesPass)
	ctx.Step(`^the run heartbeats$`, lc.theRunHeartbeats)

	// Then steps
	ctx.Step(`^the sync log status should be "([^"]*)"$`, lc.theSyncLogStatusShouldBe)
	ctx.Step(`^the sync log should have no started timestamp$`, lc.theSyncLogShouldHaveNoStartedTimestamp)
	ctx.Step(`^the sync log should have a started timestamp$`, lc.theSyncLogShouldHaveAStartedTimestamp)
	ctx.Step(`^the sync log should have a finished timestamp$`, lc.theSyncLogShouldHaveAFinishedTimestamp)
	ctx.Step(`^the sync log should have a fresh heartbeat$`, lc.theSyncLogShouldHaveAFreshHeartbeat)
	ctx.Step(`^the sync log error message should be "([^"]*)"$`, lc.theSyncLogErrorMessageShouldBe)
	ctx.Step(`^the failed item count should be (\d+)$`, lc.theFailedItemCountShouldBe)
	ctx.Step(`^the transition should fail with "([^"]*)"$`, lc.theTransitionShouldFailWith)
	ctx.Step(`^the sync log should be orphaned with a (\d+) minute TTL$`, lc.shouldBeOrphanedWithTTL)
	ctx.Step(`^the sync log should not be orphaned with a (\d+) minute TTL$`, lc.shouldNotBeOrphanedWithTTL)
}
