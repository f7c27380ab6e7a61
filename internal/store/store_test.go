package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashupal86/GraminStore/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewStoreMigratesFreshDatabase(t *testing.T) {
	s := newTestStore(t)

	ver, err := currentSchemaVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, ver)
}

func TestMigrationPreservesV1Data(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	// Build a v1 database by hand: no reference_number column yet.
	db, err := sqlx.Connect("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaV1)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO schema_meta (version) VALUES (1)")
	require.NoError(t, err)
	_, err = db.Exec(`
		INSERT INTO transactions
			(merchant_id, customer_name, amount, payment_kind, status, created_at, updated_at, sync_state)
		VALUES (7, 'Asha', 120, 'instant', 'completed', 1000, 1000, 'synced')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := NewStore(path)
	require.NoError(t, err)
	defer s.Close()

	ver, err := currentSchemaVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, ver)

	txn, err := s.GetTransaction(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Asha", txn.CustomerName)
	assert.Equal(t, 120.0, txn.Amount)
	assert.Equal(t, models.SyncSynced, txn.SyncState)
	assert.Empty(t, txn.ReferenceNumber)
}

func TestUpsertSettingsNeverMultiplies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertSettings(ctx, models.Settings{
		MerchantID: 7,
		Language:   "hi",
		AutoSync:   true,
		Theme:      "dark",
	}))
	require.NoError(t, s.UpsertSettings(ctx, models.Settings{
		MerchantID:    7,
		Language:      "en",
		AutoSync:      false,
		Theme:         "light",
		Notifications: true,
	}))

	settings, err := s.GetSettings(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "en", settings.Language)
	assert.False(t, settings.AutoSync)
	assert.True(t, settings.Notifications)

	var count int
	require.NoError(t, s.db.Get(&count, "SELECT COUNT(*) FROM settings WHERE merchant_id = 7"))
	assert.Equal(t, 1, count)
}

func TestGetSettingsNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSettings(context.Background(), 99)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCalculationHistoryCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.NoError(t, s.AppendCalculation(ctx, 7, "2+2", "4"))
	}

	entries, err := s.QueryCalculations(ctx, 7, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 50)

	entries, err = s.QueryCalculations(ctx, 7, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 10)
}

func TestCalculationHistoryNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendCalculation(ctx, 7, "1+1", "2"))
	require.NoError(t, s.AppendCalculation(ctx, 7, "3*3", "9"))

	entries, err := s.QueryCalculations(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "3*3", entries[0].Expression)
	assert.Equal(t, "1+1", entries[1].Expression)
}

func TestPurgeMerchantData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AppendTransaction(ctx, AppendTransactionInput{
		MerchantID:   7,
		CustomerName: "Asha",
		Amount:       120,
		PaymentKind:  models.PaymentInstant,
	})
	require.NoError(t, err)
	require.NoError(t, s.UpsertSettings(ctx, models.Settings{MerchantID: 7, Language: "en"}))
	require.NoError(t, s.AppendCalculation(ctx, 7, "2+2", "4"))

	// Another merchant's data must survive the purge.
	_, err = s.AppendTransaction(ctx, AppendTransactionInput{
		MerchantID:   8,
		CustomerName: "Ravi",
		Amount:       80,
		PaymentKind:  models.PaymentInstant,
	})
	require.NoError(t, err)

	require.NoError(t, s.PurgeMerchantData(ctx, 7))

	txns, err := s.QueryTransactions(ctx, 7, TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txns)

	_, err = s.GetSettings(ctx, 7)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = s.GetAggregate(ctx, 7, "Asha")
	assert.ErrorIs(t, err, models.ErrNotFound)

	entries, err := s.QueryCalculations(ctx, 7, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	other, err := s.QueryTransactions(ctx, 8, TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, other, 1)
}
