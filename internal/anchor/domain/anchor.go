package anchor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// AnchorRecord is a Merkle-anchored snapshot of a contiguous batch of events.
// Leaf sets are disjoint across records for the same well.
type AnchorRecord struct {
	ID           string
	WellID       string
	MerkleRoot   string
	LeafCount    int
	LeafEventIDs []string
	AnchoredAt   time.Time
	AnchorTxID   string
}

// Submitted reports whether the root has been broadcast to the ledger.
func (r AnchorRecord) Submitted() bool { return r.AnchorTxID != "" }

// Manifest is the result of a preview build: the root and its leaf set,
// without any persistence.
type Manifest struct {
	MerkleRoot   string
	LeafCount    int
	LeafEventIDs []string
}

var (
	// ErrNoLeaves is returned when a well has no unanchored confirmed events.
	ErrNoLeaves = errors.New("anchor: no unanchored events")
	// ErrAnchorNotFound is returned when an anchor id is unknown.
	ErrAnchorNotFound = errors.New("anchor: not found")
)

// Repository persists anchor records.
type Repository interface {
	Create(ctx context.Context, record AnchorRecord) error
	Get(ctx context.Context, id string) (*AnchorRecord, error)
	// ListByWell returns records ordered by anchor time; empty well id
	// returns all records.
	ListByWell(ctx context.Context, wellID string) ([]AnchorRecord, error)
	// Latest returns the most recent record, or nil when none exist.
	Latest(ctx context.Context, wellID string) (*AnchorRecord, error)
	// ListUnsubmitted returns records whose root has not reached the ledger.
	ListUnsubmitted(ctx context.Context) ([]AnchorRecord, error)
	SetAnchorTx(ctx context.Context, id, txID string) error
	Count(ctx context.Context, wellID string) (int64, error)
}

// NewAnchorID generates a random anchor identifier.
func NewAnchorID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "anc-" + hex.EncodeToString(buf)
}
