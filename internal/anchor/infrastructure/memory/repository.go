package memory

import (
	"context"
	"sort"
	"sync"

	anchor "watergrid-cloud/internal/anchor/domain"
)

// Repository is an in-memory anchor store used by tests and demo mode.
type Repository struct {
	mu   sync.RWMutex
	data map[string]anchor.AnchorRecord
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]anchor.AnchorRecord)}
}

// Create persists an anchor record.
func (r *Repository) Create(ctx context.Context, record anchor.AnchorRecord) error {
	_ = ctx
	r.mu.Lock()
	r.data[record.ID] = record
	r.mu.Unlock()
	return nil
}

// Get loads one record.
func (r *Repository) Get(ctx context.Context, id string) (*anchor.AnchorRecord, error) {
	_ = ctx
	r.mu.RLock()
	record, ok := r.data[id]
	r.mu.RUnlock()
	if !ok {
		return nil, anchor.ErrAnchorNotFound
	}
	return &record, nil
}

// ListByWell returns records ordered by anchor time then id.
func (r *Repository) ListByWell(ctx context.Context, wellID string) ([]anchor.AnchorRecord, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []anchor.AnchorRecord
	for _, record := range r.data {
		if wellID != "" && record.WellID != wellID {
			continue
		}
		result = append(result, record)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].AnchoredAt.Equal(result[j].AnchoredAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].AnchoredAt.Before(result[j].AnchoredAt)
	})
	return result, nil
}

// Latest returns the most recent record, or nil when none exist.
func (r *Repository) Latest(ctx context.Context, wellID string) (*anchor.AnchorRecord, error) {
	records, err := r.ListByWell(ctx, wellID)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	latest := records[len(records)-1]
	return &latest, nil
}

// ListUnsubmitted returns records whose root has not reached the ledger.
func (r *Repository) ListUnsubmitted(ctx context.Context) ([]anchor.AnchorRecord, error) {
	records, err := r.ListByWell(ctx, "")
	if err != nil {
		return nil, err
	}
	var result []anchor.AnchorRecord
	for _, record := range records {
		if !record.Submitted() {
			result = append(result, record)
		}
	}
	return result, nil
}

// SetAnchorTx records the ledger transaction id for a record.
func (r *Repository) SetAnchorTx(ctx context.Context, id, txID string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.data[id]
	if !ok {
		return anchor.ErrAnchorNotFound
	}
	record.AnchorTxID = txID
	r.data[id] = record
	return nil
}

// Count returns the number of records, optionally filtered by well.
func (r *Repository) Count(ctx context.Context, wellID string) (int64, error) {
	records, err := r.ListByWell(ctx, wellID)
	if err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}
