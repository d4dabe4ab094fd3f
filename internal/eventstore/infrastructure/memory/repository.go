package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	eventstore "watergrid-cloud/internal/eventstore/domain"
)

// EventRepository is an in-memory event store used by tests and demo mode.
type EventRepository struct {
	mu     sync.RWMutex
	events map[string]eventstore.LedgerEvent
	order  []string
	claims map[string]string
}

// NewEventRepository constructs an empty repository.
func NewEventRepository() *EventRepository {
	return &EventRepository{
		events: make(map[string]eventstore.LedgerEvent),
		claims: make(map[string]string),
	}
}

// Insert persists a new event; redelivery of a known message id is a no-op.
func (r *EventRepository) Insert(ctx context.Context, event eventstore.LedgerEvent) (bool, error) {
	_ = ctx
	if event.MessageID == "" {
		return false, eventstore.ErrEmptyMessageID
	}
	if event.WellID == "" {
		return false, eventstore.ErrEmptyWellID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.events[event.MessageID]; exists {
		return false, nil
	}
	r.events[event.MessageID] = event
	r.order = append(r.order, event.MessageID)
	return true, nil
}

// Get loads one event by message id.
func (r *EventRepository) Get(ctx context.Context, messageID string) (*eventstore.LedgerEvent, error) {
	_ = ctx
	r.mu.RLock()
	event, ok := r.events[messageID]
	r.mu.RUnlock()
	if !ok {
		return nil, eventstore.ErrEventNotFound
	}
	return &event, nil
}

// List returns matching events in time order.
func (r *EventRepository) List(ctx context.Context, q eventstore.Query) ([]eventstore.LedgerEvent, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []eventstore.LedgerEvent
	for _, id := range r.order {
		event := r.events[id]
		if !matches(event, q) {
			continue
		}
		result = append(result, event)
	}
	sortEvents(result)
	return result, nil
}

// SumMeterVolume totals meter reading volume for a well over [from, to).
func (r *EventRepository) SumMeterVolume(ctx context.Context, wellID string, from, to time.Time) (int64, error) {
	events, err := r.List(ctx, eventstore.Query{WellID: wellID, Type: eventstore.TypeMeterReading, From: from, To: to})
	if err != nil {
		return 0, err
	}
	var total int64
	for _, event := range events {
		total += event.MeterVolume()
	}
	return total, nil
}

// ListUnanchored returns the oldest confirmed, unclaimed events for the well.
func (r *EventRepository) ListUnanchored(ctx context.Context, wellID string, limit int) ([]eventstore.LedgerEvent, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []eventstore.LedgerEvent
	for _, id := range r.order {
		event := r.events[id]
		if event.WellID != wellID || !event.Confirmed() {
			continue
		}
		if _, claimed := r.claims[id]; claimed {
			continue
		}
		result = append(result, event)
	}
	sortEvents(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ClaimForAnchor marks events as claimed by the anchor, all or nothing.
func (r *EventRepository) ClaimForAnchor(ctx context.Context, anchorID string, messageIDs []string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range messageIDs {
		if _, ok := r.events[id]; !ok {
			return eventstore.ErrEventNotFound
		}
		if _, claimed := r.claims[id]; claimed {
			return eventstore.ErrLeavesClaimed
		}
	}
	for _, id := range messageIDs {
		r.claims[id] = anchorID
	}
	return nil
}

// ReleaseClaim undoes a claim by anchor id.
func (r *EventRepository) ReleaseClaim(ctx context.Context, anchorID string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, claim := range r.claims {
		if claim == anchorID {
			delete(r.claims, id)
		}
	}
	return nil
}

// Count returns the number of events, optionally filtered by well.
func (r *EventRepository) Count(ctx context.Context, wellID string) (int64, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if wellID == "" {
		return int64(len(r.events)), nil
	}
	var count int64
	for _, event := range r.events {
		if event.WellID == wellID {
			count++
		}
	}
	return count, nil
}

func matches(event eventstore.LedgerEvent, q eventstore.Query) bool {
	if q.WellID != "" && event.WellID != q.WellID {
		return false
	}
	if q.Type != "" && event.Type != q.Type {
		return false
	}
	at := effectiveTime(event)
	if !q.From.IsZero() && at.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !at.Before(q.To) {
		return false
	}
	return true
}

func effectiveTime(event eventstore.LedgerEvent) time.Time {
	if event.ConsensusTimestamp != nil {
		return *event.ConsensusTimestamp
	}
	return event.ReceivedAt
}

func sortEvents(events []eventstore.LedgerEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		ti, tj := effectiveTime(events[i]), effectiveTime(events[j])
		if ti.Equal(tj) {
			return events[i].MessageID < events[j].MessageID
		}
		return ti.Before(tj)
	})
}
