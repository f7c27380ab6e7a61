package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashupal86/GraminStore/internal/models"
	"github.com/ashupal86/GraminStore/internal/util"
)

// AppendTransactionInput carries the caller-supplied fields of a new transaction
type AppendTransactionInput struct {
	MerchantID    int64              `json:"merchant_id"`
	CustomerName  string             `json:"customer_name"`
	CustomerPhone string             `json:"customer_phone,omitempty"`
	Amount        float64            `json:"amount"`
	Description   string             `json:"description,omitempty"`
	PaymentKind   models.PaymentKind `json:"payment_kind"`
}

// AppendTransaction validates and persists a new transaction and updates the
// customer's aggregate in the same database transaction. Returns the assigned id.
func (s *Store) AppendTransaction(ctx context.Context, input AppendTransactionInput) (int64, error) {
	ctx, span := util.StartSpan(ctx, "Store.AppendTransaction")
	defer span.End()

	if input.Amount <= 0 {
		util.TransactionsRejectedTotal.WithLabelValues("invalid_amount").Inc()
		return 0, models.ErrInvalidAmount
	}
	if !input.PaymentKind.Valid() {
		util.TransactionsRejectedTotal.WithLabelValues("invalid_kind").Inc()
		return 0, fmt.Errorf("unknown payment kind %q", input.PaymentKind)
	}
	customerName := strings.TrimSpace(input.CustomerName)
	if customerName == "" {
		util.TransactionsRejectedTotal.WithLabelValues("missing_customer").Inc()
		return 0, fmt.Errorf("customer name is required")
	}

	now := time.Now()
	refNumber := newReferenceNumber(input.MerchantID)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO transactions
			(merchant_id, customer_name, customer_phone, amount, description,
			 payment_kind, status, reference_number, created_at, updated_at, sync_state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		input.MerchantID, customerName, strings.TrimSpace(input.CustomerPhone),
		input.Amount, input.Description, string(input.PaymentKind),
		string(input.PaymentKind.InitialStatus()), refNumber,
		toMillis(now), toMillis(now), string(models.SyncPending))
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	// The aggregate update rides the same transaction: a reader never sees
	// a transaction without its aggregate effect, or vice versa.
	if err := applyAggregate(ctx, tx, input.MerchantID, customerName,
		strings.TrimSpace(input.CustomerPhone), input.Amount, now); err != nil {
		return 0, fmt.Errorf("failed to update customer aggregate: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	util.TransactionsAppendedTotal.WithLabelValues(string(input.PaymentKind)).Inc()
	return id, nil
}

// SetTransactionStatus applies a legal status transition and marks the record
// for re-sync. Only Pending -> Completed and Pending -> Cancelled are allowed.
func (s *Store) SetTransactionStatus(ctx context.Context, id int64, status models.TransactionStatus) error {
	ctx, span := util.StartSpan(ctx, "Store.SetTransactionStatus")
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.GetContext(ctx, &current, "SELECT status FROM transactions WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return err
	}

	if !models.TransactionStatus(current).CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current, status)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, updated_at = ?, sync_state = ?
		WHERE id = ?`,
		string(status), toMillis(time.Now()), string(models.SyncPending), id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	util.StatusTransitionsTotal.WithLabelValues(string(status)).Inc()
	return nil
}

// GetTransaction retrieves a transaction by id
func (s *Store) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	var row transactionRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM transactions WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t := row.toModel()
	return &t, nil
}

// TransactionFilter narrows a QueryTransactions call. Zero values mean
// "no restriction"; Limit defaults to 50.
type TransactionFilter struct {
	CustomerPhone string
	Days          int
	Limit         int
	Offset        int
}

// QueryTransactions returns a merchant's transactions newest-first. The query
// is restartable: the same filter always re-selects from the top.
func (s *Store) QueryTransactions(ctx context.Context, merchantID int64, filter TransactionFilter) ([]models.Transaction, error) {
	query := "SELECT * FROM transactions WHERE merchant_id = ?"
	args := []interface{}{merchantID}

	if filter.CustomerPhone != "" {
		query += " AND customer_phone = ?"
		args = append(args, filter.CustomerPhone)
	}
	if filter.Days > 0 {
		cutoff := time.Now().AddDate(0, 0, -filter.Days)
		query += " AND created_at >= ?"
		args = append(args, toMillis(cutoff))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	var rows []transactionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	out := make([]models.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// UnsyncedTransactions returns the merchant's transactions awaiting a push,
// oldest-first. Failed records are re-selected so the next run retries them.
func (s *Store) UnsyncedTransactions(ctx context.Context, merchantID int64) ([]models.Transaction, error) {
	var rows []transactionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM transactions
		WHERE merchant_id = ? AND sync_state IN (?, ?)
		ORDER BY created_at ASC, id ASC`,
		merchantID, string(models.SyncPending), string(models.SyncFailed))
	if err != nil {
		return nil, err
	}

	out := make([]models.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// SetTransactionSyncState records the outcome of a push attempt
func (s *Store) SetTransactionSyncState(ctx context.Context, id int64, state models.SyncState) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET sync_state = ? WHERE id = ?", string(state), id)
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

// UnsyncedCount returns how many of the merchant's records still await a push
func (s *Store) UnsyncedCount(ctx context.Context, merchantID int64) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `
		SELECT
			(SELECT COUNT(*) FROM transactions
			 WHERE merchant_id = ? AND sync_state IN (?, ?)) +
			(SELECT COUNT(*) FROM customer_aggregates
			 WHERE merchant_id = ? AND sync_state IN (?, ?))`,
		merchantID, string(models.SyncPending), string(models.SyncFailed),
		merchantID, string(models.SyncPending), string(models.SyncFailed))
	return count, err
}

// Analytics summarizes the merchant's transactions over the trailing day window
func (s *Store) Analytics(ctx context.Context, merchantID int64, days int) (*models.MerchantAnalytics, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := toMillis(time.Now().AddDate(0, 0, -days))

	var out models.MerchantAnalytics
	err := s.db.GetContext(ctx, &out.TotalSales, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE merchant_id = ? AND status = ? AND created_at >= ?`,
		merchantID, string(models.StatusCompleted), cutoff)
	if err != nil {
		return nil, err
	}
	err = s.db.GetContext(ctx, &out.TotalPending, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE merchant_id = ? AND status = ? AND created_at >= ?`,
		merchantID, string(models.StatusPending), cutoff)
	if err != nil {
		return nil, err
	}
	err = s.db.GetContext(ctx, &out.TotalTransactions, `
		SELECT COUNT(*) FROM transactions
		WHERE merchant_id = ? AND created_at >= ?`,
		merchantID, cutoff)
	if err != nil {
		return nil, err
	}
	if out.TotalTransactions > 0 {
		err = s.db.GetContext(ctx, &out.AvgTransaction, `
			SELECT COALESCE(AVG(amount), 0) FROM transactions
			WHERE merchant_id = ? AND created_at >= ?`,
			merchantID, cutoff)
		if err != nil {
			return nil, err
		}
	}
	return &out, nil
}

// newReferenceNumber builds a device-generated reference so that a re-pushed
// record is recognizable upstream across retries.
func newReferenceNumber(merchantID int64) string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("TXN_%d_%s", merchantID, strings.ToUpper(hex[:8]))
}
