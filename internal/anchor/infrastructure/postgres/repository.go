package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	anchor "watergrid-cloud/internal/anchor/domain"
)

// Repository is the Postgres anchor store. Leaf manifests are stored as JSON;
// the claim itself lives on the event rows (anchor_id column), so disjointness
// is enforced where the events are.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs the repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create persists an anchor record.
func (r *Repository) Create(ctx context.Context, record anchor.AnchorRecord) error {
	if r == nil || r.db == nil {
		return errors.New("anchor repository: nil db")
	}
	manifest, err := json.Marshal(record.LeafEventIDs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO anchor_records (
	id, well_id, merkle_root, leaf_count, leaf_event_ids, anchored_at, anchor_tx_id
) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ID, record.WellID, record.MerkleRoot, record.LeafCount, manifest,
		record.AnchoredAt, record.AnchorTxID)
	return err
}

// Get loads one record.
func (r *Repository) Get(ctx context.Context, id string) (*anchor.AnchorRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("anchor repository: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, well_id, merkle_root, leaf_count, leaf_event_ids, anchored_at, anchor_tx_id
FROM anchor_records
WHERE id = $1`, id)
	record, err := scanAnchor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, anchor.ErrAnchorNotFound
	}
	return record, err
}

// ListByWell returns records ordered by anchor time.
func (r *Repository) ListByWell(ctx context.Context, wellID string) ([]anchor.AnchorRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("anchor repository: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, well_id, merkle_root, leaf_count, leaf_event_ids, anchored_at, anchor_tx_id
FROM anchor_records
WHERE ($1 = '' OR well_id = $1)
ORDER BY anchored_at ASC, id ASC`, wellID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAnchors(rows)
}

// Latest returns the most recent record, or nil when none exist.
func (r *Repository) Latest(ctx context.Context, wellID string) (*anchor.AnchorRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("anchor repository: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, well_id, merkle_root, leaf_count, leaf_event_ids, anchored_at, anchor_tx_id
FROM anchor_records
WHERE ($1 = '' OR well_id = $1)
ORDER BY anchored_at DESC, id DESC
LIMIT 1`, wellID)
	record, err := scanAnchor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

// ListUnsubmitted returns records whose root has not reached the ledger.
func (r *Repository) ListUnsubmitted(ctx context.Context) ([]anchor.AnchorRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("anchor repository: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, well_id, merkle_root, leaf_count, leaf_event_ids, anchored_at, anchor_tx_id
FROM anchor_records
WHERE anchor_tx_id = ''
ORDER BY anchored_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAnchors(rows)
}

// SetAnchorTx records the ledger transaction id for a record.
func (r *Repository) SetAnchorTx(ctx context.Context, id, txID string) error {
	if r == nil || r.db == nil {
		return errors.New("anchor repository: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE anchor_records SET anchor_tx_id = $2 WHERE id = $1`, id, txID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return anchor.ErrAnchorNotFound
	}
	return nil
}

// Count returns the number of records, optionally filtered by well.
func (r *Repository) Count(ctx context.Context, wellID string) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("anchor repository: nil db")
	}
	var count int64
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM anchor_records WHERE ($1 = '' OR well_id = $1)`, wellID).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnchor(row rowScanner) (*anchor.AnchorRecord, error) {
	var record anchor.AnchorRecord
	var manifest []byte
	if err := row.Scan(&record.ID, &record.WellID, &record.MerkleRoot, &record.LeafCount, &manifest, &record.AnchoredAt, &record.AnchorTxID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(manifest, &record.LeafEventIDs); err != nil {
		return nil, err
	}
	record.AnchoredAt = record.AnchoredAt.UTC()
	return &record, nil
}

func scanAnchors(rows *sql.Rows) ([]anchor.AnchorRecord, error) {
	var result []anchor.AnchorRecord
	for rows.Next() {
		record, err := scanAnchor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *record)
	}
	return result, rows.Err()
}
