package application

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"

	eventstore "watergrid-cloud/internal/eventstore/domain"
	"watergrid-cloud/internal/observability/metrics"
	settlement "watergrid-cloud/internal/settlement/domain"
)

// UsageReader sums metered volume from the event store.
type UsageReader interface {
	SumMeterVolume(ctx context.Context, wellID string, from, to time.Time) (int64, error)
}

// DistributionRequest asks the payout distributor to materialize payouts.
type DistributionRequest struct {
	SettlementID       string
	WellID             string
	DistributableMinor int64
}

// DistributionResult summarizes one distribution run. Every payout has reached
// a terminal per-payout status by the time this returns.
type DistributionResult struct {
	TotalMinor int64
	Sent       int
	Failed     int
}

// PayoutDistributor expands an approved settlement into payouts.
type PayoutDistributor interface {
	Distribute(ctx context.Context, req DistributionRequest) (DistributionResult, error)
}

// LifecycleEvent is a settlement state transition published to the ledger.
type LifecycleEvent struct {
	WellID  string
	Type    eventstore.EventType
	Payload eventstore.SettlementLifecyclePayload
}

// LifecyclePublisher broadcasts lifecycle events and records them in the
// event store (the calculator consumes its own event type).
type LifecyclePublisher interface {
	PublishLifecycle(ctx context.Context, event LifecycleEvent) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Service drives the settlement state machine.
type Service struct {
	repo        settlement.Repository
	usage       UsageReader
	distributor PayoutDistributor
	publisher   LifecyclePublisher
	tariffRate  decimal.Decimal
	clock       Clock
	logger      *log.Logger
}

// NewService constructs the settlement service. tariffRate is the price per
// volume unit in minor currency units.
func NewService(
	repo settlement.Repository,
	usage UsageReader,
	distributor PayoutDistributor,
	publisher LifecyclePublisher,
	tariffRate decimal.Decimal,
	clock Clock,
	logger *log.Logger,
) (*Service, error) {
	if repo == nil {
		return nil, errors.New("settlement service: nil repository")
	}
	if usage == nil {
		return nil, errors.New("settlement service: nil usage reader")
	}
	if distributor == nil {
		return nil, errors.New("settlement service: nil distributor")
	}
	if tariffRate.IsNegative() {
		return nil, errors.New("settlement service: negative tariff rate")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		repo:        repo,
		usage:       usage,
		distributor: distributor,
		publisher:   publisher,
		tariffRate:  tariffRate,
		clock:       clock,
		logger:      logger,
	}, nil
}

// RequestSettlement opens a REQUESTED settlement for the well and period.
// Fails with ErrConflict when a non-terminal settlement overlaps the period.
func (s *Service) RequestSettlement(ctx context.Context, wellID string, periodStart, periodEnd time.Time) (*settlement.Settlement, error) {
	period, err := settlement.NewPeriod(periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	usageTotal, err := s.usage.SumMeterVolume(ctx, wellID, period.Start, period.End)
	if err != nil {
		metrics.ObserveSettlementOp("request", metrics.ResultError)
		return nil, err
	}
	grossMinor := decimal.NewFromInt(usageTotal).Mul(s.tariffRate).Floor().IntPart()

	aggregate, err := settlement.NewSettlement(wellID, period, usageTotal, grossMinor, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, aggregate); err != nil {
		metrics.ObserveSettlementOp("request", metrics.ResultError)
		return nil, err
	}
	metrics.ObserveSettlementOp("request", metrics.ResultSuccess)

	s.publish(ctx, aggregate, eventstore.TypeSettlementRequest, "")
	return aggregate, nil
}

// Approve transitions REQUESTED -> APPROVED.
func (s *Service) Approve(ctx context.Context, settlementID string) (*settlement.Settlement, error) {
	aggregate, err := s.repo.Get(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	prior := aggregate.Status()
	if err := aggregate.Approve(s.clock.Now()); err != nil {
		metrics.ObserveSettlementOp("approve", metrics.ResultError)
		return nil, err
	}
	if err := s.repo.Update(ctx, aggregate, prior); err != nil {
		metrics.ObserveSettlementOp("approve", metrics.ResultError)
		return nil, err
	}
	metrics.ObserveSettlementOp("approve", metrics.ResultSuccess)

	s.publish(ctx, aggregate, eventstore.TypeSettlementApproval, "")
	return aggregate, nil
}

// Reject transitions REQUESTED or APPROVED -> REJECTED. No payouts are created.
func (s *Service) Reject(ctx context.Context, settlementID, reason string) (*settlement.Settlement, error) {
	aggregate, err := s.repo.Get(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	prior := aggregate.Status()
	if err := aggregate.Reject(reason, s.clock.Now()); err != nil {
		metrics.ObserveSettlementOp("reject", metrics.ResultError)
		return nil, err
	}
	if err := s.repo.Update(ctx, aggregate, prior); err != nil {
		metrics.ObserveSettlementOp("reject", metrics.ResultError)
		return nil, err
	}
	metrics.ObserveSettlementOp("reject", metrics.ResultSuccess)
	return aggregate, nil
}

// Execute materializes payouts for an APPROVED settlement, waits for every
// payout attempt to reach a terminal per-payout status, then marks the
// settlement EXECUTED. If payout materialization fails the settlement stays
// APPROVED and the call is safe to retry.
func (s *Service) Execute(ctx context.Context, settlementID string) (*settlement.Settlement, error) {
	aggregate, err := s.repo.Get(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if err := aggregate.EnsureExecutable(); err != nil {
		metrics.ObserveSettlementOp("execute", metrics.ResultError)
		return nil, err
	}

	result, err := s.distributor.Distribute(ctx, DistributionRequest{
		SettlementID:       aggregate.ID(),
		WellID:             aggregate.WellID(),
		DistributableMinor: aggregate.GrossRevenueMinor(),
	})
	if err != nil {
		metrics.ObserveSettlementOp("execute", metrics.ResultError)
		return nil, err
	}

	if err := aggregate.MarkExecuted(s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, aggregate, settlement.StatusApproved); err != nil {
		metrics.ObserveSettlementOp("execute", metrics.ResultError)
		if errors.Is(err, settlement.ErrInvalidState) {
			s.logger.Printf("settlement execute lost to concurrent transition: id=%s", aggregate.ID())
		}
		return nil, err
	}
	metrics.ObserveSettlementOp("execute", metrics.ResultSuccess)
	s.logger.Printf("settlement executed: id=%s well=%s distributed=%d sent=%d failed=%d",
		aggregate.ID(), aggregate.WellID(), result.TotalMinor, result.Sent, result.Failed)

	s.publish(ctx, aggregate, eventstore.TypeSettlementExecution, "")
	return aggregate, nil
}

// Get loads one settlement.
func (s *Service) Get(ctx context.Context, settlementID string) (*settlement.Settlement, error) {
	return s.repo.Get(ctx, settlementID)
}

// ListByWell lists settlements for a well.
func (s *Service) ListByWell(ctx context.Context, wellID string) ([]*settlement.Settlement, error) {
	return s.repo.ListByWell(ctx, wellID)
}

// publish emits a lifecycle event. The settlement state is already durable;
// a failed broadcast is logged and left to redelivery rather than unwinding
// the transition.
func (s *Service) publish(ctx context.Context, aggregate *settlement.Settlement, eventType eventstore.EventType, reason string) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishLifecycle(ctx, LifecycleEvent{
		WellID: aggregate.WellID(),
		Type:   eventType,
		Payload: eventstore.SettlementLifecyclePayload{
			SettlementID:      aggregate.ID(),
			PeriodStart:       aggregate.Period().Start,
			PeriodEnd:         aggregate.Period().End,
			GrossRevenueMinor: aggregate.GrossRevenueMinor(),
			Reason:            reason,
		},
	})
	if err != nil {
		s.logger.Printf("settlement publish error: id=%s type=%s err=%v", aggregate.ID(), eventType, err)
	}
}
