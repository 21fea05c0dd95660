package controller_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modula-erp/emag-sync-go/internal/adapters/persistence"
	"github.com/modula-erp/emag-sync-go/internal/application/controller"
	"github.com/modula-erp/emag-sync-go/internal/application/syncengine"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
	"github.com/modula-erp/emag-sync-go/internal/domain/syncrun"
	"github.com/modula-erp/emag-sync-go/test/helpers"
)

var t0 = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

// stubRunner stands in for the engine so tests control exactly when a
// run finishes. It follows the engine's contract: it owns the row's
// running and terminal transitions, checks the cooperative cancel flag
// at its boundary and persists terminal state on a fresh context.
type stubRunner struct {
	logs  syncrun.LogRepository
	clock shared.Clock

	mu    sync.Mutex
	gate  chan struct{}
	snaps map[int64]syncrun.Progress

	started  chan string
	finished chan int64
}

func newStubRunner(logs syncrun.LogRepository, clock shared.Clock) *stubRunner {
	return &stubRunner{
		logs:     logs,
		clock:    clock,
		snaps:    make(map[int64]syncrun.Progress),
		started:  make(chan string, 64),
		finished: make(chan int64, 64),
	}
}

// hold makes subsequent runs block until release is called.
func (r *stubRunner) hold() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = make(chan struct{})
}

func (r *stubRunner) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gate != nil {
		close(r.gate)
		r.gate = nil
	}
}

func (r *stubRunner) setProgress(logID int64, snap syncrun.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps[logID] = snap
}

func (r *stubRunner) Run(ctx context.Context, log *syncrun.Log, req syncrun.Request) error {
	r.mu.Lock()
	gate := r.gate
	r.mu.Unlock()

	if err := log.Start(r.clock.Now()); err != nil {
		return err
	}
	if err := r.logs.Update(ctx, log); err != nil {
		return err
	}
	select {
	case r.started <- req.Key():
	default:
	}

	cancelled := false
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			cancelled = true
		}
	}
	if !cancelled {
		if flagged, err := r.logs.CancelRequested(context.Background(), log.ID); err == nil && flagged {
			cancelled = true
		}
	}

	now := r.clock.Now()
	var trErr error
	if cancelled {
		trErr = log.Cancel(now)
	} else {
		trErr = log.Succeed(now)
	}
	if trErr != nil {
		return trErr
	}
	if err := r.logs.Update(context.Background(), log); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.snaps, log.ID)
	r.mu.Unlock()
	select {
	case r.finished <- log.ID:
	default:
	}
	return nil
}

func (r *stubRunner) Progress(logID int64) (syncrun.Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.snaps[logID]
	return snap, ok
}

type controllerFixture struct {
	clock  *shared.MockClock
	logs   *persistence.GormSyncLogRepository
	runner *stubRunner
	ctrl   *controller.Controller
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	db := helpers.NewTestDB(t)
	clock := shared.NewMockClock(t0)
	logs := persistence.NewGormSyncLogRepository(db)
	runner := newStubRunner(logs, clock)
	ctrl := controller.NewController(runner, logs, clock, nil, controller.Config{OrphanTTL: 15 * time.Minute})
	t.Cleanup(func() {
		runner.release()
		shutdown(t, ctrl)
	})
	return &controllerFixture{clock: clock, logs: logs, runner: runner, ctrl: ctrl}
}

func shutdown(t *testing.T, ctrl *controller.Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ctrl.Shutdown(ctx))
}

func request(account shared.Account, resource syncrun.Resource, async bool) syncrun.Request {
	return syncrun.Request{
		Account:  account,
		Resource: resource,
		Mode:     syncrun.ModeFull,
		Actor:    "test",
		Async:    async,
	}
}

func waitStarted(t *testing.T, r *stubRunner) string {
	t.Helper()
	select {
	case key := <-r.started:
		return key
	case <-time.After(2 * time.Second):
		t.Fatal("run did not start in time")
		return ""
	}
}

func waitFinished(t *testing.T, r *stubRunner) int64 {
	t.Helper()
	select {
	case id := <-r.finished:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish in time")
		return 0
	}
}

func TestController_AwaitedSubmitRunsToTerminal(t *testing.T) {
	db := helpers.NewTestDB(t)
	client := helpers.NewMockMarketplaceClient()
	clock := shared.NewMockClock(t0)
	products := persistence.NewGormProductRepository(db)
	orders := persistence.NewGormOrderRepository(db)
	logs := persistence.NewGormSyncLogRepository(db)
	engine := syncengine.NewEngine(client, products, orders, logs, nil, clock, nil, nil, syncengine.Config{})
	ctrl := controller.NewController(engine, logs, clock, nil, controller.Config{})
	t.Cleanup(func() { shutdown(t, ctrl) })

	sub, err := ctrl.Submit(context.Background(), request(shared.AccountMain, syncrun.ResourceProducts, false))
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.False(t, sub.Async)
	assert.NotEmpty(t, sub.RunID)
	assert.Equal(t, syncrun.StatusSucceeded, sub.Status)

	final, err := logs.FindByID(context.Background(), sub.SyncLogID)
	require.NoError(t, err)
	assert.Equal(t, syncrun.StatusSucceeded, final.Status)
	assert.Equal(t, 0, final.TotalItems)
	assert.False(t, ctrl.IsRunning(shared.AccountMain, syncrun.ResourceProducts))
}

func TestController_BusySlotRejectsDuplicateScope(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	f.runner.hold()
	first, err := f.ctrl.Submit(ctx, request(shared.AccountMain, syncrun.ResourceProducts, true))
	require.NoError(t, err)
	assert.True(t, first.Async)
	assert.Equal(t, syncrun.StatusQueued, first.Status)
	assert.Equal(t, "main/products", waitStarted(t, f.runner))
	assert.True(t, f.ctrl.IsRunning(shared.AccountMain, syncrun.ResourceProducts))

	_, err = f.ctrl.Submit(ctx, request(shared.AccountMain, syncrun.ResourceProducts, true))
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrBusy))

	// The other account and the other resource are separate slots.
	second, err := f.ctrl.Submit(ctx, request(shared.AccountFBE, syncrun.ResourceProducts, true))
	require.NoError(t, err)
	assert.Equal(t, "fbe/products", waitStarted(t, f.runner))

	third, err := f.ctrl.Submit(ctx, request(shared.AccountMain, syncrun.ResourceOrders, true))
	require.NoError(t, err)
	assert.Equal(t, "main/orders", waitStarted(t, f.runner))

	f.runner.release()
	for i := 0; i < 3; i++ {
		waitFinished(t, f.runner)
	}

	for _, id := range []int64{first.SyncLogID, second.SyncLogID, third.SyncLogID} {
		final, ferr := f.logs.FindByID(ctx, id)
		require.NoError(t, ferr)
		assert.Equal(t, syncrun.StatusSucceeded, final.Status)
	}
}

func TestController_SlotFreesAfterRunCompletes(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	f.runner.hold()
	_, err := f.ctrl.Submit(ctx, request(shared.AccountMain, syncrun.ResourceProducts, true))
	require.NoError(t, err)
	waitStarted(t, f.runner)

	f.runner.release()
	waitFinished(t, f.runner)
	require.Eventually(t, func() bool {
		return !f.ctrl.IsRunning(shared.AccountMain, syncrun.ResourceProducts)
	}, time.Second, 5*time.Millisecond)

	again, err := f.ctrl.Submit(ctx, request(shared.AccountMain, syncrun.ResourceProducts, true))
	require.NoError(t, err)
	waitStarted(t, f.runner)
	waitFinished(t, f.runner)

	final, err := f.logs.FindByID(ctx, again.SyncLogID)
	require.NoError(t, err)
	assert.Equal(t, syncrun.StatusSucceeded, final.Status)
}

func TestController_CancelFlagsRowCooperatively(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	f.runner.hold()
	sub, err := f.ctrl.Submit(ctx, request(shared.AccountMain, syncrun.ResourceProducts, true))
	require.NoError(t, err)
	waitStarted(t, f.runner)

	require.NoError(t, f.ctrl.Cancel(ctx, sub.SyncLogID))

	flagged, err := f.logs.CancelRequested(ctx, sub.SyncLogID)
	require.NoError(t, err)
	assert.True(t, flagged)

	// The flag alone does not kill the run; it finishes its current
	// work and observes the flag at the next boundary.
	assert.True(t, f.ctrl.IsRunning(shared.AccountMain, syncrun.ResourceProducts))

	f.runner.release()
	waitFinished(t, f.runner)

	final, err := f.logs.FindByID(ctx, sub.SyncLogID)
	require.NoError(t, err)
	assert.Equal(t, syncrun.StatusCancelled, final.Status)
}

func TestController_ShutdownCancelsActiveRunsAndRejectsNew(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	f.runner.hold()
	sub, err := f.ctrl.Submit(ctx, request(shared.AccountMain, syncrun.ResourceProducts, true))
	require.NoError(t, err)
	waitStarted(t, f.runner)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.ctrl.Shutdown(shutdownCtx))

	final, err := f.logs.FindByID(ctx, sub.SyncLogID)
	require.NoError(t, err)
	assert.Equal(t, syncrun.StatusCancelled, final.Status)

	_, err = f.ctrl.Submit(ctx, request(shared.AccountFBE, syncrun.ResourceProducts, true))
	require.Error(t, err)
	assert.True(t, errors.Is(err, controller.ErrShuttingDown))
}

func TestController_StatusCombinesRowAndLiveProgress(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.Status(ctx, shared.AccountMain, syncrun.ResourceProducts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	f.runner.hold()
	sub, err := f.ctrl.Submit(ctx, request(shared.AccountMain, syncrun.ResourceProducts, true))
	require.NoError(t, err)
	waitStarted(t, f.runner)

	f.runner.setProgress(sub.SyncLogID, syncrun.Progress{
		SyncLogID:  sub.SyncLogID,
		Page:       2,
		TotalPages: 5,
		Processed:  200,
		Total:      480,
		Throughput: 40,
		ETASeconds: 7,
	})

	live, err := f.ctrl.Status(ctx, shared.AccountMain, syncrun.ResourceProducts)
	require.NoError(t, err)
	assert.True(t, live.Live)
	assert.Equal(t, syncrun.StatusRunning, live.Log.Status)
	require.NotNil(t, live.Progress)
	assert.Equal(t, 2, live.Progress.Page)
	assert.Equal(t, 200, live.Progress.Processed)
	assert.Equal(t, 480, live.Progress.Total)

	f.runner.release()
	waitFinished(t, f.runner)

	after, err := f.ctrl.Status(ctx, shared.AccountMain, syncrun.ResourceProducts)
	require.NoError(t, err)
	assert.False(t, after.Live)
	assert.Nil(t, after.Progress)
	assert.Equal(t, syncrun.StatusSucceeded, after.Log.Status)
}

func TestController_SweepOrphansFailsStaleRows(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	staleReq := request(shared.AccountMain, syncrun.ResourceProducts, true)
	stale := syncrun.NewLog(uuid.NewString(), staleReq, f.clock.Now())
	require.NoError(t, f.logs.Create(ctx, stale))
	require.NoError(t, stale.Start(f.clock.Now()))
	require.NoError(t, f.logs.Update(ctx, stale))

	// Abandoned before it ever started: queued, no heartbeat.
	abandonedReq := request(shared.AccountMain, syncrun.ResourceOrders, true)
	abandoned := syncrun.NewLog(uuid.NewString(), abandonedReq, f.clock.Now())
	require.NoError(t, f.logs.Create(ctx, abandoned))

	f.clock.Advance(16 * time.Minute)

	freshReq := request(shared.AccountFBE, syncrun.ResourceProducts, true)
	fresh := syncrun.NewLog(uuid.NewString(), freshReq, f.clock.Now())
	require.NoError(t, f.logs.Create(ctx, fresh))
	require.NoError(t, fresh.Start(f.clock.Now()))
	require.NoError(t, f.logs.Update(ctx, fresh))

	waitingReq := request(shared.AccountFBE, syncrun.ResourceOrders, true)
	waiting := syncrun.NewLog(uuid.NewString(), waitingReq, f.clock.Now())
	require.NoError(t, f.logs.Create(ctx, waiting))

	swept, err := f.ctrl.SweepOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), swept)

	for _, id := range []int64{stale.ID, abandoned.ID} {
		deadRow, ferr := f.logs.FindByID(ctx, id)
		require.NoError(t, ferr)
		assert.Equal(t, syncrun.StatusFailed, deadRow.Status)
		assert.Contains(t, deadRow.ErrorMessage, "orphaned")
	}

	liveRow, err := f.logs.FindByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, syncrun.StatusRunning, liveRow.Status)

	waitingRow, err := f.logs.FindByID(ctx, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, syncrun.StatusQueued, waitingRow.Status)
}

func TestController_ScopeLockHoldsAcrossControllers(t *testing.T) {
	// Two controllers over one database model the daemon and a CLI
	// invocation running side by side.
	db := helpers.NewTestDB(t)
	clock := shared.NewMockClock(t0)
	logs := persistence.NewGormSyncLogRepository(db)

	runnerA := newStubRunner(logs, clock)
	ctrlA := controller.NewController(runnerA, logs, clock, nil, controller.Config{OrphanTTL: 15 * time.Minute})
	runnerB := newStubRunner(logs, clock)
	ctrlB := controller.NewController(runnerB, logs, clock, nil, controller.Config{OrphanTTL: 15 * time.Minute})
	t.Cleanup(func() {
		runnerA.release()
		runnerB.release()
		shutdown(t, ctrlA)
		shutdown(t, ctrlB)
	})
	ctx := context.Background()

	runnerA.hold()
	first, err := ctrlA.Submit(ctx, request(shared.AccountMain, syncrun.ResourceProducts, true))
	require.NoError(t, err)
	waitStarted(t, runnerA)

	// B's own slot map is empty; the shared row is what stops it.
	assert.False(t, ctrlB.IsRunning(shared.AccountMain, syncrun.ResourceProducts))
	_, err = ctrlB.Submit(ctx, request(shared.AccountMain, syncrun.ResourceProducts, true))
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrBusy))

	runnerA.release()
	waitFinished(t, runnerA)

	second, err := ctrlB.Submit(ctx, request(shared.AccountMain, syncrun.ResourceProducts, true))
	require.NoError(t, err)
	waitStarted(t, runnerB)
	waitFinished(t, runnerB)

	for _, id := range []int64{first.SyncLogID, second.SyncLogID} {
		row, ferr := logs.FindByID(ctx, id)
		require.NoError(t, ferr)
		assert.Equal(t, syncrun.StatusSucceeded, row.Status)
	}
}

func TestController_SubmitReclaimsOrphanedScope(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	// A run owned by a process that died: running row, heartbeat stuck.
	req := request(shared.AccountMain, syncrun.ResourceProducts, true)
	dead := syncrun.NewLog(uuid.NewString(), req, f.clock.Now())
	require.NoError(t, f.logs.Create(ctx, dead))
	require.NoError(t, dead.Start(f.clock.Now()))
	require.NoError(t, f.logs.Update(ctx, dead))

	// While the heartbeat is fresh the scope stays taken even though
	// this controller never started anything.
	_, err := f.ctrl.Submit(ctx, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrBusy))

	f.clock.Advance(16 * time.Minute)

	sub, err := f.ctrl.Submit(ctx, req)
	require.NoError(t, err)
	waitStarted(t, f.runner)
	waitFinished(t, f.runner)

	deadRow, err := f.logs.FindByID(ctx, dead.ID)
	require.NoError(t, err)
	assert.Equal(t, syncrun.StatusFailed, deadRow.Status)
	assert.Contains(t, deadRow.ErrorMessage, "orphaned")

	final, err := f.logs.FindByID(ctx, sub.SyncLogID)
	require.NoError(t, err)
	assert.Equal(t, syncrun.StatusSucceeded, final.Status)
}

func TestController_SubmitRejectsInvalidRequest(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.Submit(ctx, syncrun.Request{
		Account:  "warehouse-7",
		Resource: syncrun.ResourceProducts,
		Mode:     syncrun.ModeFull,
		Actor:    "test",
	})
	require.Error(t, err)

	history, err := f.logs.History(ctx, syncrun.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestController_AwaitPollsToTerminal(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	sub, err := f.ctrl.Submit(ctx, request(shared.AccountMain, syncrun.ResourceProducts, true))
	require.NoError(t, err)
	assert.True(t, sub.Async)
	assert.Equal(t, syncrun.StatusQueued, sub.Status)

	final, err := f.ctrl.Await(ctx, sub.SyncLogID, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, syncrun.StatusSucceeded, final.Status)
}

func TestScheduler_KickoffSubmitsEachSchedule(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	sched := controller.NewScheduler(f.ctrl, []controller.Schedule{
		{Account: shared.AccountMain, Resource: syncrun.ResourceProducts, Every: time.Hour},
		{Account: shared.AccountFBE, Resource: syncrun.ResourceOrders, Mode: syncrun.ModeFull, Every: time.Hour},
	}, 0, nil)

	sched.Kickoff(ctx)
	waitFinished(t, f.runner)
	waitFinished(t, f.runner)

	history, err := f.logs.History(ctx, syncrun.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, row := range history {
		assert.Equal(t, "scheduler", row.Actor)
	}

	mainRow, err := f.logs.Latest(ctx, shared.AccountMain, syncrun.ResourceProducts)
	require.NoError(t, err)
	assert.Equal(t, syncrun.ModeIncremental, mainRow.Mode)

	fbeRow, err := f.logs.Latest(ctx, shared.AccountFBE, syncrun.ResourceOrders)
	require.NoError(t, err)
	assert.Equal(t, syncrun.ModeFull, fbeRow.Mode)
}

func TestScheduler_BusyTickIsSkippedQuietly(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	f.runner.hold()
	_, err := f.ctrl.Submit(ctx, request(shared.AccountMain, syncrun.ResourceProducts, true))
	require.NoError(t, err)
	waitStarted(t, f.runner)

	sched := controller.NewScheduler(f.ctrl, []controller.Schedule{
		{Account: shared.AccountMain, Resource: syncrun.ResourceProducts, Every: time.Hour},
	}, 0, nil)
	sched.Kickoff(ctx)

	history, err := f.logs.History(ctx, syncrun.HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, history, 1)

	f.runner.release()
	waitFinished(t, f.runner)
}

func TestScheduler_RunTicksUntilStopped(t *testing.T) {
	f := newControllerFixture(t)

	runCtx, cancel := context.WithCancel(context.Background())
	sched := controller.NewScheduler(f.ctrl, []controller.Schedule{
		{Account: shared.AccountMain, Resource: syncrun.ResourceProducts, Every: 10 * time.Millisecond},
	}, 0, nil)

	done := make(chan struct{})
	go func() {
		sched.Run(runCtx)
		close(done)
	}()

	waitFinished(t, f.runner)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}
