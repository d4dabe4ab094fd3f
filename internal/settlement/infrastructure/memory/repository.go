package memory

import (
	"context"
	"sort"
	"sync"

	settlement "watergrid-cloud/internal/settlement/domain"
)

// Repository is an in-memory settlement store. The single mutex serializes
// the overlap check with the insert, standing in for the per-well advisory
// lock the Postgres repository takes.
type Repository struct {
	mu   sync.RWMutex
	data map[string]*settlement.Settlement
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]*settlement.Settlement)}
}

// Create persists a new settlement, rejecting overlapping non-terminal periods.
func (r *Repository) Create(ctx context.Context, aggregate *settlement.Settlement) error {
	_ = ctx
	if aggregate == nil {
		return settlement.ErrNilAggregate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.data {
		if existing.WellID() != aggregate.WellID() || existing.Status().Terminal() {
			continue
		}
		if existing.Period().Overlaps(aggregate.Period()) {
			return settlement.ErrConflict
		}
	}
	r.data[aggregate.ID()] = aggregate.Clone()
	aggregate.MarkPersisted()
	return nil
}

// Get loads one settlement.
func (r *Repository) Get(ctx context.Context, id string) (*settlement.Settlement, error) {
	_ = ctx
	r.mu.RLock()
	aggregate := r.data[id]
	r.mu.RUnlock()
	if aggregate == nil {
		return nil, settlement.ErrSettlementNotFound
	}
	return aggregate.Clone(), nil
}

// Update persists a state transition when the stored status still matches
// expected. A concurrent transition that committed first stays in place.
func (r *Repository) Update(ctx context.Context, aggregate *settlement.Settlement, expected settlement.Status) error {
	_ = ctx
	if aggregate == nil {
		return settlement.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.data[aggregate.ID()]
	if !ok {
		return settlement.ErrSettlementNotFound
	}
	if stored.Status() != expected {
		return settlement.ErrInvalidState
	}
	r.data[aggregate.ID()] = aggregate.Clone()
	return nil
}

// ListByWell returns settlements ordered by creation time then id.
func (r *Repository) ListByWell(ctx context.Context, wellID string) ([]*settlement.Settlement, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*settlement.Settlement
	for _, aggregate := range r.data {
		if wellID != "" && aggregate.WellID() != wellID {
			continue
		}
		result = append(result, aggregate.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt().Equal(result[j].CreatedAt()) {
			return result[i].ID() < result[j].ID()
		}
		return result[i].CreatedAt().Before(result[j].CreatedAt())
	})
	return result, nil
}

// Count returns the number of settlements, optionally filtered by well.
func (r *Repository) Count(ctx context.Context, wellID string) (int64, error) {
	settlements, err := r.ListByWell(ctx, wellID)
	if err != nil {
		return 0, err
	}
	return int64(len(settlements)), nil
}
