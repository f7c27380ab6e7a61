package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ashupal86/GraminStore/internal/models"
)

// calculationHistoryCap bounds how many calculator entries a query returns.
const calculationHistoryCap = 50

// UpsertSettings writes the merchant's settings record, creating it on first use
func (s *Store) UpsertSettings(ctx context.Context, settings models.Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (merchant_id, language, auto_sync, theme, notifications)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (merchant_id) DO UPDATE SET
			language = excluded.language,
			auto_sync = excluded.auto_sync,
			theme = excluded.theme,
			notifications = excluded.notifications`,
		settings.MerchantID, settings.Language, settings.AutoSync,
		settings.Theme, settings.Notifications)
	if err != nil {
		return fmt.Errorf("failed to upsert settings: %w", err)
	}
	return nil
}

// GetSettings retrieves the merchant's settings record
func (s *Store) GetSettings(ctx context.Context, merchantID int64) (*models.Settings, error) {
	var row struct {
		ID            int64  `db:"id"`
		MerchantID    int64  `db:"merchant_id"`
		Language      string `db:"language"`
		AutoSync      bool   `db:"auto_sync"`
		Theme         string `db:"theme"`
		Notifications bool   `db:"notifications"`
	}
	err := s.db.GetContext(ctx, &row, "SELECT * FROM settings WHERE merchant_id = ?", merchantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &models.Settings{
		ID:            row.ID,
		MerchantID:    row.MerchantID,
		Language:      row.Language,
		AutoSync:      row.AutoSync,
		Theme:         row.Theme,
		Notifications: row.Notifications,
	}, nil
}

// AppendCalculation records one calculator evaluation. History is local-only
// and never synced.
func (s *Store) AppendCalculation(ctx context.Context, merchantID int64, expression, result string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calculation_history (merchant_id, expression, result, created_at)
		VALUES (?, ?, ?, ?)`,
		merchantID, expression, result, toMillis(time.Now()))
	return err
}

// QueryCalculations returns the merchant's most recent calculator entries,
// newest-first, capped at 50.
func (s *Store) QueryCalculations(ctx context.Context, merchantID int64, limit int) ([]models.CalculationEntry, error) {
	if limit <= 0 || limit > calculationHistoryCap {
		limit = calculationHistoryCap
	}

	var rows []struct {
		ID         int64  `db:"id"`
		MerchantID int64  `db:"merchant_id"`
		Expression string `db:"expression"`
		Result     string `db:"result"`
		CreatedAt  int64  `db:"created_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM calculation_history
		WHERE merchant_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		merchantID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]models.CalculationEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.CalculationEntry{
			ID:         r.ID,
			MerchantID: r.MerchantID,
			Expression: r.Expression,
			Result:     r.Result,
			CreatedAt:  fromMillis(r.CreatedAt),
		})
	}
	return out, nil
}

// PurgeMerchantData irreversibly deletes every record kind for the merchant
func (s *Store) PurgeMerchantData(ctx context.Context, merchantID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"transactions", "customer_aggregates", "settings", "calculation_history"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE merchant_id = ?", table), merchantID); err != nil {
			return fmt.Errorf("failed to purge %s: %w", table, err)
		}
	}

	return tx.Commit()
}
