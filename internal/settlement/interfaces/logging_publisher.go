package interfaces

import (
	"context"
	"errors"
	"log"

	"watergrid-cloud/internal/settlement/application"
)

// LoggingPublisher logs lifecycle events instead of broadcasting them. Used
// when no gateway is configured.
type LoggingPublisher struct {
	logger *log.Logger
}

// NewLoggingPublisher constructs a logging publisher.
func NewLoggingPublisher(logger *log.Logger) *LoggingPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingPublisher{logger: logger}
}

// PublishLifecycle logs the event.
func (p *LoggingPublisher) PublishLifecycle(ctx context.Context, event application.LifecycleEvent) error {
	_ = ctx
	if p == nil {
		return errors.New("settlement publisher: nil publisher")
	}
	p.logger.Printf("settlement lifecycle: well=%s type=%s settlement=%s gross=%d",
		event.WellID, event.Type, event.Payload.SettlementID, event.Payload.GrossRevenueMinor)
	return nil
}
