package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashupal86/GraminStore/internal/models"
)

func TestAggregateSnapshotSplitsPaidAndPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AppendTransaction(ctx, AppendTransactionInput{
		MerchantID:   7,
		CustomerName: "Asha",
		Amount:       100,
		PaymentKind:  models.PaymentInstant,
	})
	require.NoError(t, err)
	payLater, err := s.AppendTransaction(ctx, AppendTransactionInput{
		MerchantID:   7,
		CustomerName: "Asha",
		Amount:       40,
		PaymentKind:  models.PaymentPayLater,
	})
	require.NoError(t, err)

	snap, err := s.AggregateSnapshot(ctx, 7, "Asha")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.TotalTransactions)
	assert.Equal(t, 140.0, snap.TotalAmount)
	assert.Equal(t, 100.0, snap.PaidAmount)
	assert.Equal(t, 40.0, snap.PendingAmount)

	// Settling the tab moves the outstanding amount to paid; the stored
	// totals are untouched because they count all transactions by design.
	require.NoError(t, s.SetTransactionStatus(ctx, payLater, models.StatusCompleted))

	snap, err = s.AggregateSnapshot(ctx, 7, "Asha")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.TotalTransactions)
	assert.Equal(t, 140.0, snap.TotalAmount)
	assert.Equal(t, 140.0, snap.PaidAmount)
	assert.Equal(t, 0.0, snap.PendingAmount)
}

func TestAggregatePhoneBackfill(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AppendTransaction(ctx, AppendTransactionInput{
		MerchantID:   7,
		CustomerName: "Asha",
		Amount:       100,
		PaymentKind:  models.PaymentInstant,
	})
	require.NoError(t, err)
	_, err = s.AppendTransaction(ctx, AppendTransactionInput{
		MerchantID:    7,
		CustomerName:  "Asha",
		CustomerPhone: "9876500001",
		Amount:        50,
		PaymentKind:   models.PaymentInstant,
	})
	require.NoError(t, err)

	agg, err := s.GetAggregate(ctx, 7, "Asha")
	require.NoError(t, err)
	assert.Equal(t, "9876500001", agg.CustomerPhone)

	// A later append without a phone must not erase it.
	_, err = s.AppendTransaction(ctx, AppendTransactionInput{
		MerchantID:   7,
		CustomerName: "Asha",
		Amount:       25,
		PaymentKind:  models.PaymentInstant,
	})
	require.NoError(t, err)

	agg, err = s.GetAggregate(ctx, 7, "Asha")
	require.NoError(t, err)
	assert.Equal(t, "9876500001", agg.CustomerPhone)
}

func TestListAggregatesMostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AppendTransaction(ctx, AppendTransactionInput{
		MerchantID:   7,
		CustomerName: "Asha",
		Amount:       100,
		PaymentKind:  models.PaymentInstant,
	})
	require.NoError(t, err)
	_, err = s.AppendTransaction(ctx, AppendTransactionInput{
		MerchantID:   7,
		CustomerName: "Ravi",
		Amount:       200,
		PaymentKind:  models.PaymentInstant,
	})
	require.NoError(t, err)

	aggs, err := s.ListAggregates(ctx, 7)
	require.NoError(t, err)
	require.Len(t, aggs, 2)
	assert.Equal(t, "Ravi", aggs[0].CustomerName)
}

func TestRepairAggregate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AppendTransaction(ctx, AppendTransactionInput{
		MerchantID:   7,
		CustomerName: "Asha",
		Amount:       100,
		PaymentKind:  models.PaymentInstant,
	})
	require.NoError(t, err)
	_, err = s.AppendTransaction(ctx, AppendTransactionInput{
		MerchantID:   7,
		CustomerName: "Asha",
		Amount:       50,
		PaymentKind:  models.PaymentInstant,
	})
	require.NoError(t, err)

	// Corrupt the running totals out of band.
	_, err = s.db.Exec(`
		UPDATE customer_aggregates
		SET total_transactions = 99, total_amount = 9999
		WHERE merchant_id = 7 AND customer_name = 'Asha'`)
	require.NoError(t, err)

	require.NoError(t, s.RepairAggregate(ctx, 7, "Asha"))

	agg, err := s.GetAggregate(ctx, 7, "Asha")
	require.NoError(t, err)
	assert.Equal(t, int64(2), agg.TotalTransactions)
	assert.Equal(t, 150.0, agg.TotalAmount)
	assert.Equal(t, models.SyncPending, agg.SyncState)
}

func TestRepairAggregateNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.RepairAggregate(context.Background(), 7, "Nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
