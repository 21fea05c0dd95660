package syncengine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modula-erp/emag-sync-go/internal/application/syncengine"
	"github.com/modula-erp/emag-sync-go/internal/domain/catalog"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
	"github.com/modula-erp/emag-sync-go/internal/domain/syncrun"
)

func ordersRequest(mode syncrun.Mode) syncrun.Request {
	return syncrun.Request{
		Account:  shared.AccountMain,
		Resource: syncrun.ResourceOrders,
		Mode:     mode,
		Actor:    "test",
	}
}

func remoteOrder(remoteID int64, status catalog.OrderStatus, total string, modified time.Time) *catalog.Order {
	return &catalog.Order{
		Account:      shared.AccountMain,
		RemoteID:     remoteID,
		Status:       status,
		CustomerName: "Ion Popescu",
		TotalAmount:  decimal.RequireFromString(total),
		Currency:     "RON",
		PaymentMode:  "COD",
		DeliveryMode: "courier",
		Lines: []catalog.OrderLine{
			{ProductRemoteID: remoteID * 10, Quantity: 1, SalePrice: decimal.RequireFromString(total)},
		},
		RemoteDate:     modified.Add(-2 * time.Hour),
		RemoteModified: modified,
	}
}

func (f *engineFixture) order(t *testing.T, remoteID int64) *catalog.Order {
	t.Helper()
	o, err := f.orders.FindByRemoteID(context.Background(), shared.AccountMain, remoteID)
	require.NoError(t, err)
	return o
}

func TestEngine_OrderPullCreatesAndAcknowledges(t *testing.T) {
	f := newEngineFixture(t, syncengine.Config{})
	f.client.SetOrders(shared.AccountMain,
		remoteOrder(101, catalog.OrderNew, "150.00", t0.Add(-time.Hour)),
		remoteOrder(102, catalog.OrderNew, "89.90", t0.Add(-time.Hour)),
		remoteOrder(103, catalog.OrderInProgress, "42.00", t0.Add(-time.Hour)),
	)
	f.client.SetAckError(102, errors.New("gateway busy"))

	log := f.run(t, ordersRequest(syncrun.ModeFull))

	assert.Equal(t, syncrun.StatusSucceeded, log.Status)
	assert.Equal(t, 3, log.TotalItems)
	assert.Equal(t, 3, log.ProcessedItems)
	assert.Equal(t, 2, log.CreatedCount)
	assert.Equal(t, 1, log.FailedCount)
	assert.Equal(t, []int64{101}, f.client.AckedOrders())

	acked := f.order(t, 101)
	assert.True(t, acked.Acknowledged())
	require.NotNil(t, acked.AcknowledgedAt)
	assert.Equal(t, t0, acked.AcknowledgedAt.UTC())

	// The row landed even though the acknowledgement bounced.
	stuck := f.order(t, 102)
	assert.False(t, stuck.Acknowledged())
	assert.Equal(t, catalog.OrderNew, stuck.Status)

	// Non-new orders need no acknowledgement at all.
	assert.Nil(t, f.order(t, 103).AcknowledgedAt)

	item, ok := findItem(f.items(t, log.ID), "order:102")
	require.True(t, ok)
	assert.Equal(t, syncrun.ItemFailed, item.Action)
	assert.Contains(t, item.Message, "acknowledge:")
	assert.Contains(t, item.Message, "gateway busy")
}

func TestEngine_FailedAckRetriedOnNextRun(t *testing.T) {
	f := newEngineFixture(t, syncengine.Config{})
	f.client.SetOrders(shared.AccountMain,
		remoteOrder(101, catalog.OrderNew, "150.00", t0.Add(-time.Hour)),
		remoteOrder(102, catalog.OrderNew, "89.90", t0.Add(-time.Hour)),
	)
	f.client.SetAckError(102, errors.New("gateway busy"))
	f.run(t, ordersRequest(syncrun.ModeFull))

	// The remote did not change, but the stuck acknowledgement must be
	// retried on the next pass.
	f.client.ClearAckError(102)
	f.clock.Advance(time.Hour)
	log := f.run(t, ordersRequest(syncrun.ModeFull))

	assert.Equal(t, syncrun.StatusSucceeded, log.Status)
	assert.Equal(t, 0, log.CreatedCount)
	assert.Equal(t, 1, log.UpdatedCount)
	assert.Equal(t, 1, log.SkippedCount)
	assert.Equal(t, 0, log.FailedCount)
	assert.Equal(t, []int64{101, 102}, f.client.AckedOrders())

	retried := f.order(t, 102)
	assert.True(t, retried.Acknowledged())

	item, ok := findItem(f.items(t, log.ID), "order:102")
	require.True(t, ok)
	assert.Equal(t, syncrun.ItemUpdated, item.Action)
	assert.Equal(t, "acknowledged", item.Message)
}

func TestEngine_OrderStatusChangeUpdatesRow(t *testing.T) {
	f := newEngineFixture(t, syncengine.Config{})
	f.client.SetOrders(shared.AccountMain,
		remoteOrder(201, catalog.OrderNew, "99.00", t0.Add(-time.Hour)))
	f.run(t, ordersRequest(syncrun.ModeFull))
	require.True(t, f.order(t, 201).Acknowledged())

	f.clock.Advance(time.Hour)
	f.client.SetOrders(shared.AccountMain,
		remoteOrder(201, catalog.OrderInProgress, "99.00", t0.Add(30*time.Minute)))

	log := f.run(t, ordersRequest(syncrun.ModeFull))

	assert.Equal(t, 1, log.UpdatedCount)
	assert.Equal(t, 0, log.CreatedCount)

	o := f.order(t, 201)
	assert.Equal(t, catalog.OrderInProgress, o.Status)
	// The acknowledgement stamp is local state the remote never
	// carries; updates must not wipe it.
	assert.True(t, o.Acknowledged())
}

func TestEngine_OrderWriteFailureIsolated(t *testing.T) {
	f := newEngineFixture(t, syncengine.Config{})
	bad := remoteOrder(302, catalog.OrderNew, "10.00", t0.Add(-time.Hour))
	bad.Lines[0].Quantity = 0
	f.client.SetOrders(shared.AccountMain,
		remoteOrder(301, catalog.OrderNew, "55.00", t0.Add(-time.Hour)),
		bad,
	)

	log := f.run(t, ordersRequest(syncrun.ModeFull))

	assert.Equal(t, syncrun.StatusSucceeded, log.Status)
	assert.Equal(t, 1, log.CreatedCount)
	assert.Equal(t, 1, log.FailedCount)

	good := f.order(t, 301)
	assert.True(t, good.Acknowledged())
	_, err := f.orders.FindByRemoteID(context.Background(), shared.AccountMain, 302)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	item, ok := findItem(f.items(t, log.ID), "order:302")
	require.True(t, ok)
	assert.Equal(t, syncrun.ItemFailed, item.Action)
	assert.Contains(t, item.Message, "quantity")
}

func TestEngine_SelectiveOrderFilters(t *testing.T) {
	t.Run("single status rides on the remote read", func(t *testing.T) {
		f := newEngineFixture(t, syncengine.Config{})
		f.client.SetOrders(shared.AccountMain,
			remoteOrder(401, catalog.OrderNew, "20.00", t0.Add(-time.Hour)),
			remoteOrder(402, catalog.OrderInProgress, "30.00", t0.Add(-time.Hour)),
		)

		req := ordersRequest(syncrun.ModeSelective)
		req.Filters = syncrun.Filters{ValidationStatuses: []int{int(catalog.OrderNew)}}
		log := f.run(t, req)

		// The remote never sent the other order, so it is not even a
		// skip.
		assert.Equal(t, 1, log.TotalItems)
		assert.Equal(t, 1, log.CreatedCount)
		assert.Equal(t, 0, log.SkippedCount)
	})

	t.Run("multiple statuses filter after the pull", func(t *testing.T) {
		f := newEngineFixture(t, syncengine.Config{})
		f.client.SetOrders(shared.AccountMain,
			remoteOrder(401, catalog.OrderNew, "20.00", t0.Add(-time.Hour)),
			remoteOrder(402, catalog.OrderInProgress, "30.00", t0.Add(-time.Hour)),
		)

		req := ordersRequest(syncrun.ModeSelective)
		req.Filters = syncrun.Filters{ValidationStatuses: []int{
			int(catalog.OrderNew), int(catalog.OrderPrepared),
		}}
		log := f.run(t, req)

		assert.Equal(t, 2, log.TotalItems)
		assert.Equal(t, 1, log.CreatedCount)
		assert.Equal(t, 1, log.SkippedCount)

		item, ok := findItem(f.items(t, log.ID), "order:402")
		require.True(t, ok)
		assert.Equal(t, "outside selective filters", item.Message)
	})
}
