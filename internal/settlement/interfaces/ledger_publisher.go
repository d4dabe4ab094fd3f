package interfaces

import (
	"context"
	"encoding/json"
	"errors"

	ingest "watergrid-cloud/internal/eventstore/application"
	eventstore "watergrid-cloud/internal/eventstore/domain"
	"watergrid-cloud/internal/ledger"
	"watergrid-cloud/internal/settlement/application"
	wells "watergrid-cloud/internal/wells/domain"
)

// LedgerPublisher broadcasts settlement lifecycle events to the well's
// consensus topic and records them locally through the event store, so the
// calculator is both producer and consumer of these event types.
type LedgerPublisher struct {
	gateway      ledger.Gateway
	ingest       *ingest.IngestService
	wells        wells.Repository
	defaultTopic string
}

// NewLedgerPublisher constructs the publisher.
func NewLedgerPublisher(gateway ledger.Gateway, ingestService *ingest.IngestService, wellsRepo wells.Repository, defaultTopic string) (*LedgerPublisher, error) {
	if gateway == nil {
		return nil, errors.New("ledger publisher: nil gateway")
	}
	if ingestService == nil {
		return nil, errors.New("ledger publisher: nil ingest service")
	}
	return &LedgerPublisher{
		gateway:      gateway,
		ingest:       ingestService,
		wells:        wellsRepo,
		defaultTopic: defaultTopic,
	}, nil
}

// PublishLifecycle submits the event to the ledger, then self-ingests it with
// consensus metadata still unconfirmed. The shared message id keeps the later
// topic redelivery a no-op.
func (p *LedgerPublisher) PublishLifecycle(ctx context.Context, event application.LifecycleEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	inbound := ingest.InboundMessage{
		MessageID: eventstore.NewMessageID(),
		WellID:    event.WellID,
		Type:      string(event.Type),
		Payload:   payload,
	}
	contents, err := json.Marshal(inbound)
	if err != nil {
		return err
	}

	if _, err := p.gateway.Submit(ctx, p.topicFor(ctx, event.WellID), contents); err != nil {
		return err
	}
	_, err = p.ingest.IngestLocal(ctx, inbound)
	return err
}

func (p *LedgerPublisher) topicFor(ctx context.Context, wellID string) string {
	if p.wells != nil {
		if well, err := p.wells.GetWell(ctx, wellID); err == nil && well.TopicID != "" {
			return well.TopicID
		}
	}
	return p.defaultTopic
}
