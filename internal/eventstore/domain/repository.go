package eventstore

import (
	"context"
	"time"
)

// Query filters the event log. A zero From/To leaves that bound open; the
// window is half-open, [From, To).
type Query struct {
	WellID string
	Type   EventType
	From   time.Time
	To     time.Time
}

// Repository persists ledger events. MessageID uniqueness is enforced at the
// persistence layer; Insert must be atomic (all of the event or none of it).
type Repository interface {
	// Insert persists a new event. Returns false when an event with the same
	// message id already exists (idempotent redelivery).
	Insert(ctx context.Context, event LedgerEvent) (bool, error)
	Get(ctx context.Context, messageID string) (*LedgerEvent, error)
	// List returns events matching the query ordered by consensus timestamp
	// then message id.
	List(ctx context.Context, q Query) ([]LedgerEvent, error)
	// SumMeterVolume totals meter reading volume for a well over [from, to).
	SumMeterVolume(ctx context.Context, wellID string, from, to time.Time) (int64, error)
	// ListUnanchored returns the oldest confirmed events for the well not yet
	// claimed by any anchor, up to limit.
	ListUnanchored(ctx context.Context, wellID string, limit int) ([]LedgerEvent, error)
	// ClaimForAnchor marks the events as belonging to the given anchor. Fails
	// with ErrLeavesClaimed unless every event is still unclaimed.
	ClaimForAnchor(ctx context.Context, anchorID string, messageIDs []string) error
	// ReleaseClaim undoes a claim after a failed anchor persist.
	ReleaseClaim(ctx context.Context, anchorID string) error
	Count(ctx context.Context, wellID string) (int64, error)
}
