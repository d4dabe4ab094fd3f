package worker

import (
	"context"
	"errors"
	"log"
	"time"

	anchorapp "watergrid-cloud/internal/anchor/application"
	anchor "watergrid-cloud/internal/anchor/domain"
	payoutapp "watergrid-cloud/internal/payout/application"
	settlementapp "watergrid-cloud/internal/settlement/application"
	settlement "watergrid-cloud/internal/settlement/domain"
)

// Scheduler drives the settlement and anchoring cadence and retries
// deferred ledger work. All state it acts on is durable; a crashed run
// resumes from the stores on the next tick.
type Scheduler struct {
	settlements *settlementapp.Service
	anchors     *anchorapp.Builder
	distributor *payoutapp.Distributor
	repo        settlement.Repository
	cfg         Config
	logger      *log.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(settlements *settlementapp.Service, anchors *anchorapp.Builder, distributor *payoutapp.Distributor, repo settlement.Repository, cfg Config, logger *log.Logger) *Scheduler {
	return &Scheduler{
		settlements: settlements,
		anchors:     anchors,
		distributor: distributor,
		repo:        repo,
		cfg:         cfg,
		logger:      logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.settlements == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	retry := time.NewTicker(s.cfg.RetryEvery)
	defer retry.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.shouldRun(now.UTC()) {
				continue
			}
			s.runOnce(ctx, now.UTC())
		case <-retry.C:
			s.retryOnce(ctx)
		}
	}
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	hour, minute, err := parseDailyAt(s.cfg.Schedule.DailyAt)
	if err != nil {
		return false
	}
	return now.Hour() == hour && now.Minute() == minute
}

func (s *Scheduler) runOnce(ctx context.Context, now time.Time) {
	if len(s.cfg.Schedule.Wells) == 0 {
		return
	}
	periodEnd := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	periodStart := periodEnd.AddDate(0, 0, -s.cfg.Schedule.PeriodDays)
	for _, wellID := range s.cfg.Schedule.Wells {
		if wellID == "" {
			continue
		}
		s.settleWell(ctx, wellID, periodStart, periodEnd)
		s.anchorWell(ctx, wellID)
	}
}

func (s *Scheduler) settleWell(ctx context.Context, wellID string, periodStart, periodEnd time.Time) {
	created, err := s.settlements.RequestSettlement(ctx, wellID, periodStart, periodEnd)
	if err != nil {
		// An overlapping settlement means this window was already handled.
		if errors.Is(err, settlement.ErrConflict) {
			return
		}
		if s.logger != nil {
			s.logger.Printf("worker settlement request error: well=%s err=%v", wellID, err)
		}
		return
	}
	if !s.cfg.AutoApprove {
		return
	}
	if _, err := s.settlements.Approve(ctx, created.ID()); err != nil {
		if s.logger != nil {
			s.logger.Printf("worker settlement approve error: settlement=%s err=%v", created.ID(), err)
		}
		return
	}
	if _, err := s.settlements.Execute(ctx, created.ID()); err != nil && s.logger != nil {
		s.logger.Printf("worker settlement execute error: settlement=%s err=%v", created.ID(), err)
	}
}

func (s *Scheduler) anchorWell(ctx context.Context, wellID string) {
	if s.anchors == nil {
		return
	}
	if _, err := s.anchors.Execute(ctx, wellID, s.cfg.AnchorBatch); err != nil {
		if errors.Is(err, anchor.ErrNoLeaves) {
			return
		}
		if s.logger != nil {
			s.logger.Printf("worker anchor error: well=%s err=%v", wellID, err)
		}
	}
}

func (s *Scheduler) retryOnce(ctx context.Context) {
	if s.anchors != nil {
		if err := s.anchors.RetryUnsubmitted(ctx); err != nil && s.logger != nil {
			s.logger.Printf("worker anchor retry error: %v", err)
		}
	}
	if s.distributor != nil && s.repo != nil {
		wellFor := func(settlementID string) (string, error) {
			aggregate, err := s.repo.Get(ctx, settlementID)
			if err != nil {
				return "", err
			}
			return aggregate.WellID(), nil
		}
		if err := s.distributor.RetryFailed(ctx, wellFor); err != nil && s.logger != nil {
			s.logger.Printf("worker payout retry error: %v", err)
		}
	}
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
