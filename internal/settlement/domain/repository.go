package settlement

import "context"

// Repository persists settlement aggregates. Create must serialize the
// overlap check with the insert (per-well advisory lock or equivalent) so two
// workers cannot both open a settlement for overlapping periods.
type Repository interface {
	// Create persists a new settlement; fails with ErrConflict when a
	// non-terminal settlement overlaps the period for the well.
	Create(ctx context.Context, aggregate *Settlement) error
	Get(ctx context.Context, id string) (*Settlement, error)
	// Update persists a state transition. The stored status must still equal
	// expected or the call fails with ErrInvalidState; a concurrent transition
	// that committed first wins and is never overwritten.
	Update(ctx context.Context, aggregate *Settlement, expected Status) error
	// ListByWell returns settlements ordered by creation time; an empty well
	// id returns all settlements.
	ListByWell(ctx context.Context, wellID string) ([]*Settlement, error)
	Count(ctx context.Context, wellID string) (int64, error)
}
