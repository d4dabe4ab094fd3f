package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	eventstore "watergrid-cloud/internal/eventstore/domain"
)

// EventRepository is the Postgres event store. The unique constraint on
// message_id is the correctness mechanism against double-processing; two
// workers racing on the same redelivered message both route through
// ON CONFLICT DO NOTHING.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Insert persists a new event; returns false on redelivery.
func (r *EventRepository) Insert(ctx context.Context, event eventstore.LedgerEvent) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("event repository: nil db")
	}
	if event.MessageID == "" {
		return false, eventstore.ErrEmptyMessageID
	}
	if event.WellID == "" {
		return false, eventstore.ErrEmptyWellID
	}

	result, err := r.db.ExecContext(ctx, `
INSERT INTO ledger_events (
	message_id, well_id, event_type, payload, consensus_ts, sequence_number, received_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)
ON CONFLICT (message_id)
DO NOTHING`,
		event.MessageID, event.WellID, string(event.Type), []byte(event.RawPayload),
		event.ConsensusTimestamp, event.SequenceNumber, event.ReceivedAt)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// Get loads one event by message id.
func (r *EventRepository) Get(ctx context.Context, messageID string) (*eventstore.LedgerEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("event repository: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT message_id, well_id, event_type, payload, consensus_ts, sequence_number, received_at
FROM ledger_events
WHERE message_id = $1`, messageID)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eventstore.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

// List returns matching events ordered by consensus time then message id.
func (r *EventRepository) List(ctx context.Context, q eventstore.Query) ([]eventstore.LedgerEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("event repository: nil db")
	}
	query := `
SELECT message_id, well_id, event_type, payload, consensus_ts, sequence_number, received_at
FROM ledger_events
WHERE ($1 = '' OR well_id = $1)
  AND ($2 = '' OR event_type = $2)
  AND ($3::timestamptz IS NULL OR COALESCE(consensus_ts, received_at) >= $3)
  AND ($4::timestamptz IS NULL OR COALESCE(consensus_ts, received_at) < $4)
ORDER BY COALESCE(consensus_ts, received_at) ASC, message_id ASC`

	rows, err := r.db.QueryContext(ctx, query, q.WellID, string(q.Type), nullableTime(q.From), nullableTime(q.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// SumMeterVolume totals meter reading volume over [from, to).
func (r *EventRepository) SumMeterVolume(ctx context.Context, wellID string, from, to time.Time) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("event repository: nil db")
	}
	var total int64
	err := r.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM((payload->>'volumeUnits')::bigint), 0)
FROM ledger_events
WHERE well_id = $1
  AND event_type = $2
  AND COALESCE(consensus_ts, received_at) >= $3
  AND COALESCE(consensus_ts, received_at) < $4`,
		wellID, string(eventstore.TypeMeterReading), from, to).Scan(&total)
	return total, err
}

// ListUnanchored returns the oldest confirmed unclaimed events for a well.
func (r *EventRepository) ListUnanchored(ctx context.Context, wellID string, limit int) ([]eventstore.LedgerEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("event repository: nil db")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT message_id, well_id, event_type, payload, consensus_ts, sequence_number, received_at
FROM ledger_events
WHERE well_id = $1
  AND anchor_id IS NULL
  AND consensus_ts IS NOT NULL
  AND sequence_number IS NOT NULL
ORDER BY consensus_ts ASC, message_id ASC
LIMIT $2`, wellID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ClaimForAnchor claims the events for the anchor inside one transaction; a
// concurrent claim on any of them rolls the whole claim back.
func (r *EventRepository) ClaimForAnchor(ctx context.Context, anchorID string, messageIDs []string) error {
	if r == nil || r.db == nil {
		return errors.New("event repository: nil db")
	}
	if anchorID == "" || len(messageIDs) == 0 {
		return errors.New("event repository: invalid claim arguments")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, messageID := range messageIDs {
		result, err := tx.ExecContext(ctx, `
UPDATE ledger_events
SET anchor_id = $1
WHERE message_id = $2 AND anchor_id IS NULL`, anchorID, messageID)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected != 1 {
			return eventstore.ErrLeavesClaimed
		}
	}
	return tx.Commit()
}

// ReleaseClaim undoes a claim by anchor id.
func (r *EventRepository) ReleaseClaim(ctx context.Context, anchorID string) error {
	if r == nil || r.db == nil {
		return errors.New("event repository: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE ledger_events
SET anchor_id = NULL
WHERE anchor_id = $1`, anchorID)
	return err
}

// Count returns the number of events, optionally filtered by well.
func (r *EventRepository) Count(ctx context.Context, wellID string) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("event repository: nil db")
	}
	var count int64
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM ledger_events WHERE ($1 = '' OR well_id = $1)`, wellID).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*eventstore.LedgerEvent, error) {
	var event eventstore.LedgerEvent
	var eventType string
	var payload []byte
	var consensusTS sql.NullTime
	var sequence sql.NullInt64

	if err := row.Scan(&event.MessageID, &event.WellID, &eventType, &payload, &consensusTS, &sequence, &event.ReceivedAt); err != nil {
		return nil, err
	}
	event.Type = eventstore.EventType(eventType)
	event.RawPayload = payload
	if consensusTS.Valid {
		ts := consensusTS.Time.UTC()
		event.ConsensusTimestamp = &ts
	}
	if sequence.Valid {
		seq := sequence.Int64
		event.SequenceNumber = &seq
	}
	decoded, err := eventstore.DecodePayload(event.Type, payload)
	if err != nil {
		return nil, err
	}
	event.Payload = decoded
	return &event, nil
}

func scanEvents(rows *sql.Rows) ([]eventstore.LedgerEvent, error) {
	var result []eventstore.LedgerEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
