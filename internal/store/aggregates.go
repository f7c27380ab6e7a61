package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ashupal86/GraminStore/internal/models"
)

// applyAggregate keeps the customer's running totals consistent with the
// transaction stream. It must run inside the same transaction as the insert
// it accounts for. Totals count every transaction regardless of status, so
// status changes never touch this table.
func applyAggregate(ctx context.Context, tx *sqlx.Tx, merchantID int64, customerName, customerPhone string, amount float64, at time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE customer_aggregates
		SET total_transactions = total_transactions + 1,
		    total_amount = total_amount + ?,
		    last_transaction_at = ?,
		    customer_phone = CASE WHEN ? != '' THEN ? ELSE customer_phone END,
		    sync_state = ?
		WHERE merchant_id = ? AND customer_name = ?`,
		amount, toMillis(at), customerPhone, customerPhone,
		string(models.SyncPending), merchantID, customerName)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	// First transaction for this customer: create the aggregate lazily.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO customer_aggregates
			(merchant_id, customer_name, customer_phone, total_transactions,
			 total_amount, last_transaction_at, sync_state)
		VALUES (?, ?, ?, 1, ?, ?, ?)`,
		merchantID, customerName, customerPhone, amount, toMillis(at),
		string(models.SyncPending))
	return err
}

// GetAggregate retrieves the running totals for one customer
func (s *Store) GetAggregate(ctx context.Context, merchantID int64, customerName string) (*models.CustomerAggregate, error) {
	var row aggregateRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM customer_aggregates
		WHERE merchant_id = ? AND customer_name = ?`,
		merchantID, customerName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a := row.toModel()
	return &a, nil
}

// ListAggregates returns all customer aggregates for a merchant, most
// recently active first.
func (s *Store) ListAggregates(ctx context.Context, merchantID int64) ([]models.CustomerAggregate, error) {
	var rows []aggregateRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM customer_aggregates
		WHERE merchant_id = ?
		ORDER BY last_transaction_at DESC, id DESC`,
		merchantID)
	if err != nil {
		return nil, err
	}

	out := make([]models.CustomerAggregate, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// UnsyncedAggregates returns aggregates awaiting a push, oldest activity first
func (s *Store) UnsyncedAggregates(ctx context.Context, merchantID int64) ([]models.CustomerAggregate, error) {
	var rows []aggregateRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM customer_aggregates
		WHERE merchant_id = ? AND sync_state IN (?, ?)
		ORDER BY last_transaction_at ASC, id ASC`,
		merchantID, string(models.SyncPending), string(models.SyncFailed))
	if err != nil {
		return nil, err
	}

	out := make([]models.CustomerAggregate, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// SetAggregateSyncState records the outcome of a push attempt
func (s *Store) SetAggregateSyncState(ctx context.Context, id int64, state models.SyncState) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE customer_aggregates SET sync_state = ? WHERE id = ?", string(state), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// AggregateSnapshot returns the stored totals plus a paid/outstanding split
// computed from the transaction stream.
func (s *Store) AggregateSnapshot(ctx context.Context, merchantID int64, customerName string) (*models.AggregateSnapshot, error) {
	agg, err := s.GetAggregate(ctx, merchantID, customerName)
	if err != nil {
		return nil, err
	}

	snap := models.AggregateSnapshot{CustomerAggregate: *agg}

	err = s.db.GetContext(ctx, &snap.PaidAmount, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE merchant_id = ? AND customer_name = ? AND status = ?`,
		merchantID, customerName, string(models.StatusCompleted))
	if err != nil {
		return nil, err
	}

	err = s.db.GetContext(ctx, &snap.PendingAmount, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE merchant_id = ? AND customer_name = ? AND status = ?`,
		merchantID, customerName, string(models.StatusPending))
	if err != nil {
		return nil, err
	}

	return &snap, nil
}

// RepairAggregate recomputes a customer's totals from the transaction stream.
// Normal operation only updates aggregates incrementally; this is the explicit
// repair path for a store that was modified out of band.
func (s *Store) RepairAggregate(ctx context.Context, merchantID int64, customerName string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var agg struct {
		Count  int64   `db:"cnt"`
		Total  float64 `db:"total"`
		LastAt int64   `db:"last_at"`
	}
	err = tx.GetContext(ctx, &agg, `
		SELECT COUNT(*) AS cnt,
		       COALESCE(SUM(amount), 0) AS total,
		       COALESCE(MAX(created_at), 0) AS last_at
		FROM transactions
		WHERE merchant_id = ? AND customer_name = ?`,
		merchantID, customerName)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE customer_aggregates
		SET total_transactions = ?, total_amount = ?, last_transaction_at = ?, sync_state = ?
		WHERE merchant_id = ? AND customer_name = ?`,
		agg.Count, agg.Total, agg.LastAt, string(models.SyncPending),
		merchantID, customerName)
	if err != nil {
		return fmt.Errorf("failed to repair aggregate: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrNotFound
	}

	return tx.Commit()
}
