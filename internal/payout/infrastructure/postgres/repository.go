package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	payout "watergrid-cloud/internal/payout/domain"
	wells "watergrid-cloud/internal/wells/domain"
)

// Repository is the Postgres payout store.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs the repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateBatch persists a payout set in one transaction.
func (r *Repository) CreateBatch(ctx context.Context, payouts []payout.Payout) error {
	if r == nil || r.db == nil {
		return errors.New("payout repository: nil db")
	}
	if len(payouts) == 0 {
		return payout.ErrEmptyBatch
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range payouts {
		result, err := tx.ExecContext(ctx, `
INSERT INTO payouts (
	settlement_id, recipient_account, user_id, role, amount_minor,
	status, external_tx_id, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (settlement_id, recipient_account) DO NOTHING`,
			p.SettlementID, p.RecipientAccount, p.UserID, string(p.Role), p.AmountMinor,
			string(p.Status), p.ExternalTxID, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			// A concurrent materialization already claimed the settlement;
			// the rollback discards our half of the race.
			return payout.ErrBatchExists
		}
	}
	return tx.Commit()
}

// ListBySettlement returns the payout set for one settlement.
func (r *Repository) ListBySettlement(ctx context.Context, settlementID string) ([]payout.Payout, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("payout repository: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT settlement_id, recipient_account, user_id, role, amount_minor,
	status, external_tx_id, created_at, updated_at
FROM payouts
WHERE settlement_id = $1
ORDER BY created_at ASC, recipient_account ASC`, settlementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPayouts(rows)
}

// ListByStatus returns payouts with the given status across settlements.
func (r *Repository) ListByStatus(ctx context.Context, status payout.Status) ([]payout.Payout, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("payout repository: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT settlement_id, recipient_account, user_id, role, amount_minor,
	status, external_tx_id, created_at, updated_at
FROM payouts
WHERE status = $1
ORDER BY created_at ASC, recipient_account ASC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPayouts(rows)
}

// UpdateStatus records one transfer attempt's terminal status.
func (r *Repository) UpdateStatus(ctx context.Context, settlementID, recipientAccount string, status payout.Status, externalTxID string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("payout repository: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE payouts
SET status = $3, external_tx_id = $4, updated_at = $5
WHERE settlement_id = $1 AND recipient_account = $2`,
		settlementID, recipientAccount, string(status), externalTxID, at)
	return err
}

func scanPayouts(rows *sql.Rows) ([]payout.Payout, error) {
	var result []payout.Payout
	for rows.Next() {
		var p payout.Payout
		var role, status string
		if err := rows.Scan(&p.SettlementID, &p.RecipientAccount, &p.UserID, &role, &p.AmountMinor, &status, &p.ExternalTxID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Role = wells.Role(role)
		p.Status = payout.Status(status)
		result = append(result, p)
	}
	return result, rows.Err()
}
