package payout

import "errors"

var (
	// ErrNoOperator is returned when a well has no operator membership.
	ErrNoOperator = errors.New("payout: well has no operator membership")
	// ErrNoRecipients is returned when nothing can be distributed.
	ErrNoRecipients = errors.New("payout: no recipients")
	// ErrInvalidPolicy is returned when the share constants do not sum to
	// 10000 basis points.
	ErrInvalidPolicy = errors.New("payout: share policy must sum to 10000 bps")
	// ErrRoundingInvariant is returned when computed payouts do not sum
	// exactly to the distributable revenue. It indicates a bug, never a
	// recoverable condition.
	ErrRoundingInvariant = errors.New("payout: payouts do not sum to distributable revenue")
	// ErrEmptyBatch is returned when persisting an empty payout set.
	ErrEmptyBatch = errors.New("payout: empty batch")
	// ErrBatchExists is returned when a payout set for the settlement is
	// already persisted; the materialization race has a single winner.
	ErrBatchExists = errors.New("payout: batch already exists for settlement")
)
