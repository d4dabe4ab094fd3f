package eventstore

import "errors"

var (
	// ErrEmptyMessageID is returned when an event lacks its dedup key.
	ErrEmptyMessageID = errors.New("eventstore: empty message id")
	// ErrEmptyWellID is returned when an event lacks a well id.
	ErrEmptyWellID = errors.New("eventstore: empty well id")
	// ErrEventNotFound is returned when a message id is unknown.
	ErrEventNotFound = errors.New("eventstore: event not found")
	// ErrLeavesClaimed is returned when an anchor claim races a concurrent
	// claim on the same events.
	ErrLeavesClaimed = errors.New("eventstore: leaves already claimed")
)
