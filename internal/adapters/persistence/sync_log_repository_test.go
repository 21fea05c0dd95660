package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modula-erp/emag-sync-go/internal/adapters/persistence"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
	"github.com/modula-erp/emag-sync-go/internal/domain/syncrun"
	"github.com/modula-erp/emag-sync-go/test/helpers"
)

func testRequest() syncrun.Request {
	return syncrun.Request{
		Account:  shared.AccountMain,
		Resource: syncrun.ResourceProducts,
		Mode:     syncrun.ModeFull,
		Strategy: syncrun.StrategyEmagPriority,
		Actor:    "tester",
	}
}

func TestSyncLogRepository_CreateAssignsID(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewGormSyncLogRepository(db)
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	log := syncrun.NewLog("run-1", testRequest(), now)
	require.NoError(t, repo.Create(context.Background(), log))
	assert.NotZero(t, log.ID)

	found, err := repo.FindByRunID(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, syncrun.StatusQueued, found.Status)
	assert.Equal(t, shared.AccountMain, found.Account)
}

func TestSyncLogRepository_LatestPicksNewestRow(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewGormSyncLogRepository(db)
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	first := syncrun.NewLog("run-a", testRequest(), now)
	require.NoError(t, repo.Create(context.Background(), first))
	second := syncrun.NewLog("run-b", testRequest(), now.Add(time.Minute))
	require.NoError(t, repo.Create(context.Background(), second))

	latest, err := repo.Latest(context.Background(), shared.AccountMain, syncrun.ResourceProducts)
	require.NoError(t, err)
	assert.Equal(t, "run-b", latest.RunID)
}

func TestSyncLogRepository_LatestSuccessSkipsFailures(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewGormSyncLogRepository(db)
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	ok := syncrun.NewLog("run-ok", testRequest(), now)
	require.NoError(t, repo.Create(context.Background(), ok))
	require.NoError(t, ok.Start(now))
	require.NoError(t, ok.Succeed(now.Add(time.Minute)))
	require.NoError(t, repo.Update(context.Background(), ok))

	bad := syncrun.NewLog("run-bad", testRequest(), now.Add(2*time.Minute))
	require.NoError(t, repo.Create(context.Background(), bad))
	require.NoError(t, bad.Start(now.Add(2*time.Minute)))
	require.NoError(t, bad.Fail(now.Add(3*time.Minute), "remote exploded"))
	require.NoError(t, repo.Update(context.Background(), bad))

	latest, err := repo.LatestSuccess(context.Background(), shared.AccountMain, syncrun.ResourceProducts)
	require.NoError(t, err)
	assert.Equal(t, "run-ok", latest.RunID)
	require.NotNil(t, latest.StartedAt)
	assert.Equal(t, now, latest.StartedAt.UTC())
}

func TestSyncLogRepository_UpdatePreservesCancelFlag(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewGormSyncLogRepository(db)
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	log := syncrun.NewLog("run-c", testRequest(), now)
	require.NoError(t, repo.Create(context.Background(), log))
	require.NoError(t, log.Start(now))
	require.NoError(t, repo.Update(context.Background(), log))

	// Another process asks for cancellation while the engine holds a
	// stale in-memory copy.
	require.NoError(t, repo.RequestCancel(context.Background(), log.ID))

	require.NoError(t, log.RecordPage(10, 5, 85, 0, now.Add(time.Second)))
	require.NoError(t, repo.Update(context.Background(), log))

	cancelled, err := repo.CancelRequested(context.Background(), log.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	found, err := repo.FindByID(context.Background(), log.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, found.ProcessedItems)
}

func TestSyncLogRepository_RequestCancelNeedsLiveRow(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewGormSyncLogRepository(db)
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	log := syncrun.NewLog("run-d", testRequest(), now)
	require.NoError(t, repo.Create(context.Background(), log))
	require.NoError(t, log.Start(now))
	require.NoError(t, log.Succeed(now.Add(time.Minute)))
	require.NoError(t, repo.Update(context.Background(), log))

	err := repo.RequestCancel(context.Background(), log.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSyncLogRepository_MarkOrphansSweepsStaleRunners(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewGormSyncLogRepository(db)
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	stale := syncrun.NewLog("run-stale", testRequest(), now.Add(-time.Hour))
	require.NoError(t, repo.Create(context.Background(), stale))
	require.NoError(t, stale.Start(now.Add(-time.Hour)))
	require.NoError(t, repo.Update(context.Background(), stale))

	fresh := syncrun.NewLog("run-fresh", syncrun.Request{
		Account:  shared.AccountFBE,
		Resource: syncrun.ResourceProducts,
		Mode:     syncrun.ModeFull,
		Strategy: syncrun.StrategyEmagPriority,
	}, now)
	require.NoError(t, repo.Create(context.Background(), fresh))
	require.NoError(t, fresh.Start(now.Add(-time.Minute)))
	require.NoError(t, repo.Update(context.Background(), fresh))

	cutoff := now.Add(-15 * time.Minute)
	swept, err := repo.MarkOrphans(context.Background(), cutoff, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)

	s, err := repo.FindByRunID(context.Background(), "run-stale")
	require.NoError(t, err)
	assert.Equal(t, syncrun.StatusFailed, s.Status)
	assert.Contains(t, s.ErrorMessage, "orphaned")

	f, err := repo.FindByRunID(context.Background(), "run-fresh")
	require.NoError(t, err)
	assert.Equal(t, syncrun.StatusRunning, f.Status)
}

func TestSyncLogRepository_ItemsRoundTrip(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewGormSyncLogRepository(db)
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	log := syncrun.NewLog("run-items", testRequest(), now)
	require.NoError(t, repo.Create(context.Background(), log))

	items := []syncrun.Item{
		{SKU: "SKU-1", Action: syncrun.ItemCreated, CreatedAt: now},
		{SKU: "SKU-2", Action: syncrun.ItemFailed, Message: "bad payload", CreatedAt: now},
	}
	require.NoError(t, repo.AppendItems(context.Background(), log.ID, items))

	got, err := repo.Items(context.Background(), log.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, syncrun.ItemCreated, got[0].Action)
	assert.Equal(t, "SKU-2", got[1].SKU)
	assert.Equal(t, "bad payload", got[1].Message)
}

func TestSyncLogRepository_HistoryFilters(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewGormSyncLogRepository(db)
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(context.Background(), syncrun.NewLog("h-1", testRequest(), now)))
	fbeReq := testRequest()
	fbeReq.Account = shared.AccountFBE
	require.NoError(t, repo.Create(context.Background(), syncrun.NewLog("h-2", fbeReq, now)))

	all, err := repo.History(context.Background(), syncrun.HistoryFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	// Newest first
	assert.Equal(t, "h-2", all[0].RunID)

	mainOnly, err := repo.History(context.Background(), syncrun.HistoryFilter{Account: shared.AccountMain, Limit: 10})
	require.NoError(t, err)
	require.Len(t, mainOnly, 1)
	assert.Equal(t, "h-1", mainOnly[0].RunID)
}
