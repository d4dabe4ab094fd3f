package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	settlement "watergrid-cloud/internal/settlement/domain"
)

// Repository is the Postgres settlement store. Create takes a per-well
// advisory lock for the duration of the overlap check and insert; the partial
// unique index on (well_id, period_start, period_end) for non-terminal rows
// backs it up at the constraint level.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs the repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new settlement, rejecting overlapping non-terminal periods.
func (r *Repository) Create(ctx context.Context, aggregate *settlement.Settlement) error {
	if r == nil || r.db == nil {
		return errors.New("settlement repository: nil db")
	}
	if aggregate == nil {
		return settlement.ErrNilAggregate
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, aggregate.WellID()); err != nil {
		return err
	}

	var conflicts int
	err = tx.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM settlements
WHERE well_id = $1
  AND status IN ('REQUESTED', 'APPROVED')
  AND period_start < $3
  AND $2 < period_end`,
		aggregate.WellID(), aggregate.Period().Start, aggregate.Period().End).Scan(&conflicts)
	if err != nil {
		return err
	}
	if conflicts > 0 {
		return settlement.ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO settlements (
	id, well_id, period_start, period_end, usage_total, gross_revenue_minor,
	status, reject_reason, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		aggregate.ID(), aggregate.WellID(), aggregate.Period().Start, aggregate.Period().End,
		aggregate.UsageTotal(), aggregate.GrossRevenueMinor(), string(aggregate.Status()),
		aggregate.RejectReason(), aggregate.CreatedAt(), aggregate.UpdatedAt())
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	aggregate.MarkPersisted()
	return nil
}

// Get loads one settlement by id.
func (r *Repository) Get(ctx context.Context, id string) (*settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repository: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, well_id, period_start, period_end, usage_total, gross_revenue_minor,
	status, reject_reason, created_at, updated_at
FROM settlements
WHERE id = $1`, id)
	aggregate, err := scanSettlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, settlement.ErrSettlementNotFound
	}
	return aggregate, err
}

// Update persists a state transition when the stored status still matches
// expected; the status predicate makes the read-modify-write a compare-and-
// swap so a concurrent transition that committed first is never overwritten.
func (r *Repository) Update(ctx context.Context, aggregate *settlement.Settlement, expected settlement.Status) error {
	if r == nil || r.db == nil {
		return errors.New("settlement repository: nil db")
	}
	if aggregate == nil {
		return settlement.ErrNilAggregate
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE settlements
SET status = $2, reject_reason = $3, updated_at = $4
WHERE id = $1 AND status = $5`,
		aggregate.ID(), string(aggregate.Status()), aggregate.RejectReason(), aggregate.UpdatedAt(),
		string(expected))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM settlements WHERE id = $1)`, aggregate.ID()).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return settlement.ErrSettlementNotFound
	}
	return settlement.ErrInvalidState
}

// ListByWell returns settlements ordered by creation time.
func (r *Repository) ListByWell(ctx context.Context, wellID string) ([]*settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repository: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, well_id, period_start, period_end, usage_total, gross_revenue_minor,
	status, reject_reason, created_at, updated_at
FROM settlements
WHERE ($1 = '' OR well_id = $1)
ORDER BY created_at ASC, id ASC`, wellID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*settlement.Settlement
	for rows.Next() {
		aggregate, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, aggregate)
	}
	return result, rows.Err()
}

// Count returns the number of settlements, optionally filtered by well.
func (r *Repository) Count(ctx context.Context, wellID string) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("settlement repository: nil db")
	}
	var count int64
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM settlements WHERE ($1 = '' OR well_id = $1)`, wellID).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettlement(row rowScanner) (*settlement.Settlement, error) {
	var (
		id, wellID, status, rejectReason string
		periodStart, periodEnd           time.Time
		usageTotal, grossRevenueMinor    int64
		createdAt, updatedAt             time.Time
	)
	if err := row.Scan(&id, &wellID, &periodStart, &periodEnd, &usageTotal, &grossRevenueMinor, &status, &rejectReason, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	period := settlement.Period{Start: periodStart.UTC(), End: periodEnd.UTC()}
	return settlement.Rehydrate(id, wellID, period, usageTotal, grossRevenueMinor,
		settlement.Status(status), rejectReason, createdAt.UTC(), updatedAt.UTC()), nil
}
