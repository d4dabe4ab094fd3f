package settlement

import "errors"

var (
	// ErrEmptyWellID is returned when a well id is empty.
	ErrEmptyWellID = errors.New("settlement: empty well id")
	// ErrInvalidPeriod is returned when a period is zero or inverted.
	ErrInvalidPeriod = errors.New("settlement: invalid period")
	// ErrConflict is returned when a non-terminal settlement already covers an
	// overlapping period for the well.
	ErrConflict = errors.New("settlement: period conflict")
	// ErrInvalidState is returned when an operation is attempted from a state
	// that does not permit it.
	ErrInvalidState = errors.New("settlement: invalid state transition")
	// ErrSettlementNotFound is returned when a settlement id is unknown.
	ErrSettlementNotFound = errors.New("settlement: not found")
	// ErrNilAggregate is returned when saving a nil aggregate.
	ErrNilAggregate = errors.New("settlement: nil aggregate")
	// ErrNegativeValue is returned when a negative usage or revenue is provided.
	ErrNegativeValue = errors.New("settlement: negative value")
)
