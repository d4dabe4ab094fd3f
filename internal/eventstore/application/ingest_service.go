package application

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	eventstore "watergrid-cloud/internal/eventstore/domain"
	"watergrid-cloud/internal/observability/metrics"
)

// InboundMessage is the wire shape of a consensus topic message.
type InboundMessage struct {
	MessageID string          `json:"messageId"`
	WellID    string          `json:"wellId"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IngestService deduplicates and persists ledger events. Safe under concurrent
// invocation: the repository's unique message id constraint decides races.
type IngestService struct {
	repo   eventstore.Repository
	clock  Clock
	logger *log.Logger
}

// NewIngestService constructs the service.
func NewIngestService(repo eventstore.Repository, clock Clock, logger *log.Logger) (*IngestService, error) {
	if repo == nil {
		return nil, errors.New("ingest service: nil repository")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestService{repo: repo, clock: clock, logger: logger}, nil
}

// Ingest persists a confirmed topic message. Returns false when the message id
// was already stored; redelivery is absorbed, never surfaced as failure.
func (s *IngestService) Ingest(ctx context.Context, msg InboundMessage, consensusTS time.Time, sequenceNumber int64) (bool, error) {
	event, err := s.buildEvent(msg)
	if err != nil {
		return false, err
	}
	if !consensusTS.IsZero() {
		ts := consensusTS.UTC()
		event.ConsensusTimestamp = &ts
		event.SequenceNumber = &sequenceNumber
	}
	return s.insert(ctx, event)
}

// IngestLocal persists a locally produced event before the ledger has
// confirmed it. Consensus metadata stays null until confirmation.
func (s *IngestService) IngestLocal(ctx context.Context, msg InboundMessage) (bool, error) {
	event, err := s.buildEvent(msg)
	if err != nil {
		return false, err
	}
	return s.insert(ctx, event)
}

func (s *IngestService) buildEvent(msg InboundMessage) (eventstore.LedgerEvent, error) {
	if msg.MessageID == "" {
		return eventstore.LedgerEvent{}, eventstore.ErrEmptyMessageID
	}
	if msg.WellID == "" {
		return eventstore.LedgerEvent{}, eventstore.ErrEmptyWellID
	}
	eventType := eventstore.EventType(msg.Type)
	if !eventstore.KnownType(eventType) {
		eventType = eventstore.TypeOther
	}
	payload, err := eventstore.DecodePayload(eventType, msg.Payload)
	if err != nil {
		return eventstore.LedgerEvent{}, err
	}
	raw := make(json.RawMessage, len(msg.Payload))
	copy(raw, msg.Payload)
	return eventstore.LedgerEvent{
		MessageID:  msg.MessageID,
		WellID:     msg.WellID,
		Type:       eventType,
		Payload:    payload,
		RawPayload: raw,
		ReceivedAt: s.clock.Now(),
	}, nil
}

func (s *IngestService) insert(ctx context.Context, event eventstore.LedgerEvent) (bool, error) {
	accepted, err := s.repo.Insert(ctx, event)
	if err != nil {
		metrics.ObserveIngest(metrics.ResultError)
		return false, err
	}
	if !accepted {
		metrics.ObserveIngest(metrics.ResultDuplicate)
		s.logger.Printf("ingest: duplicate message absorbed: message_id=%s well=%s", event.MessageID, event.WellID)
		return false, nil
	}
	metrics.ObserveIngest(metrics.ResultSuccess)
	return true, nil
}
