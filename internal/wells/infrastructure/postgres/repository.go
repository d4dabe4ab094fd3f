package postgres

import (
	"context"
	"database/sql"
	"errors"

	wells "watergrid-cloud/internal/wells/domain"
)

// Repository is the Postgres wells store.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs the repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateWell registers a well.
func (r *Repository) CreateWell(ctx context.Context, well wells.Well) error {
	if r == nil || r.db == nil {
		return errors.New("wells repository: nil db")
	}
	if well.ID == "" {
		return wells.ErrEmptyWellID
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO wells (id, name, location, topic_id, token_id, treasury_account, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING`,
		well.ID, well.Name, well.Location, well.TopicID, well.TokenID, well.TreasuryAcct, well.CreatedAt)
	return err
}

// GetWell loads one well.
func (r *Repository) GetWell(ctx context.Context, wellID string) (*wells.Well, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("wells repository: nil db")
	}
	var well wells.Well
	err := r.db.QueryRowContext(ctx, `
SELECT id, name, location, topic_id, token_id, treasury_account, created_at
FROM wells WHERE id = $1`, wellID).Scan(
		&well.ID, &well.Name, &well.Location, &well.TopicID, &well.TokenID, &well.TreasuryAcct, &well.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wells.ErrWellNotFound
	}
	if err != nil {
		return nil, err
	}
	return &well, nil
}

// ListWells returns all wells ordered by id.
func (r *Repository) ListWells(ctx context.Context) ([]wells.Well, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("wells repository: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, location, topic_id, token_id, treasury_account, created_at
FROM wells ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []wells.Well
	for rows.Next() {
		var well wells.Well
		if err := rows.Scan(&well.ID, &well.Name, &well.Location, &well.TopicID, &well.TokenID, &well.TreasuryAcct, &well.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, well)
	}
	return result, rows.Err()
}

// AddMembership appends a membership; the investor share cap is checked inside
// one transaction so concurrent additions cannot oversubscribe a well.
func (r *Repository) AddMembership(ctx context.Context, membership wells.Membership) error {
	if r == nil || r.db == nil {
		return errors.New("wells repository: nil db")
	}
	if err := wells.ValidateMembership(membership); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if membership.Role == wells.RoleInvestor {
		var total int
		err := tx.QueryRowContext(ctx, `
SELECT COALESCE(SUM(share_bps), 0) FROM (
	SELECT share_bps
	FROM well_memberships
	WHERE well_id = $1 AND role = $2
	FOR UPDATE
) locked`, membership.WellID, string(wells.RoleInvestor)).Scan(&total)
		if err != nil {
			return err
		}
		if total+membership.ShareBasisPoints > wells.MaxBasisPoints {
			return wells.ErrInvestorSharesExceeded
		}
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO well_memberships (well_id, user_id, account, role, share_bps, position, created_at)
VALUES ($1, $2, $3, $4, $5,
	(SELECT COALESCE(MAX(position), -1) + 1 FROM well_memberships WHERE well_id = $1),
	$6)`,
		membership.WellID, membership.UserID, membership.Account, string(membership.Role),
		membership.ShareBasisPoints, membership.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ListMemberships returns memberships in insertion order.
func (r *Repository) ListMemberships(ctx context.Context, wellID string) ([]wells.Membership, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("wells repository: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT well_id, user_id, account, role, share_bps, position, created_at
FROM well_memberships
WHERE well_id = $1
ORDER BY position ASC`, wellID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []wells.Membership
	for rows.Next() {
		var membership wells.Membership
		var role string
		if err := rows.Scan(&membership.WellID, &membership.UserID, &membership.Account, &role, &membership.ShareBasisPoints, &membership.Position, &membership.CreatedAt); err != nil {
			return nil, err
		}
		membership.Role = wells.Role(role)
		result = append(result, membership)
	}
	return result, rows.Err()
}
