package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"watergrid-cloud/internal/ledger"
	"watergrid-cloud/internal/observability/metrics"
	payout "watergrid-cloud/internal/payout/domain"
	"watergrid-cloud/internal/settlement/application"
	wells "watergrid-cloud/internal/wells/domain"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Distributor expands approved settlements into payouts and executes the
// transfers. Transfers for one settlement run concurrently since recipients
// are independent; the distribution only returns once every attempt has a
// terminal per-payout status.
type Distributor struct {
	payouts         payout.Repository
	wells           wells.Repository
	gateway         ledger.Gateway
	policy          payout.Policy
	platformAccount string
	clock           Clock
	logger          *log.Logger
}

// NewDistributor constructs the distributor.
func NewDistributor(
	payouts payout.Repository,
	wellsRepo wells.Repository,
	gateway ledger.Gateway,
	policy payout.Policy,
	platformAccount string,
	clock Clock,
	logger *log.Logger,
) (*Distributor, error) {
	if payouts == nil {
		return nil, errors.New("distributor: nil payout repository")
	}
	if wellsRepo == nil {
		return nil, errors.New("distributor: nil wells repository")
	}
	if gateway == nil {
		return nil, errors.New("distributor: nil gateway")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Distributor{
		payouts:         payouts,
		wells:           wellsRepo,
		gateway:         gateway,
		policy:          policy,
		platformAccount: platformAccount,
		clock:           clock,
		logger:          logger,
	}, nil
}

// Distribute materializes and executes payouts for one settlement. Retry-safe:
// a repeated call for the same settlement reuses the durable payout set and
// only re-attempts transfers that are still PENDING. CreateBatch is the claim
// under concurrent invocation: a racing distribution that loses it fails with
// payout.ErrBatchExists before any transfer is issued.
func (d *Distributor) Distribute(ctx context.Context, req application.DistributionRequest) (application.DistributionResult, error) {
	existing, err := d.payouts.ListBySettlement(ctx, req.SettlementID)
	if err != nil {
		return application.DistributionResult{}, err
	}

	if len(existing) == 0 {
		existing, err = d.materialize(ctx, req)
		if err != nil {
			return application.DistributionResult{}, err
		}
	}

	well, err := d.wells.GetWell(ctx, req.WellID)
	if err != nil {
		return application.DistributionResult{}, err
	}

	d.executeTransfers(ctx, well, existing)

	final, err := d.payouts.ListBySettlement(ctx, req.SettlementID)
	if err != nil {
		return application.DistributionResult{}, err
	}
	result := application.DistributionResult{}
	for _, p := range final {
		result.TotalMinor += p.AmountMinor
		switch p.Status {
		case payout.StatusSent:
			result.Sent++
		case payout.StatusFailed:
			result.Failed++
		}
	}
	return result, nil
}

// RetryFailed re-attempts every FAILED payout. Invoked by the worker; the
// settlement itself is already EXECUTED and unaffected.
func (d *Distributor) RetryFailed(ctx context.Context, wellFor func(settlementID string) (string, error)) error {
	failed, err := d.payouts.ListByStatus(ctx, payout.StatusFailed)
	if err != nil {
		return err
	}
	for _, p := range failed {
		wellID, err := wellFor(p.SettlementID)
		if err != nil {
			d.logger.Printf("payout retry: unresolvable settlement=%s err=%v", p.SettlementID, err)
			continue
		}
		well, err := d.wells.GetWell(ctx, wellID)
		if err != nil {
			d.logger.Printf("payout retry: unresolvable well=%s err=%v", wellID, err)
			continue
		}
		d.attempt(ctx, well, p)
	}
	return nil
}

func (d *Distributor) materialize(ctx context.Context, req application.DistributionRequest) ([]payout.Payout, error) {
	memberships, err := d.wells.ListMemberships(ctx, req.WellID)
	if err != nil {
		return nil, err
	}
	shares, err := payout.ComputeShares(d.policy, req.DistributableMinor, memberships, d.platformAccount)
	if err != nil {
		return nil, err
	}

	now := d.clock.Now()
	payouts := make([]payout.Payout, 0, len(shares))
	for _, share := range shares {
		if share.AmountMinor == 0 {
			continue
		}
		payouts = append(payouts, payout.Payout{
			SettlementID:     req.SettlementID,
			RecipientAccount: share.Account,
			UserID:           share.UserID,
			Role:             share.Role,
			AmountMinor:      share.AmountMinor,
			Status:           payout.StatusPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	if len(payouts) == 0 {
		return nil, nil
	}
	if err := d.payouts.CreateBatch(ctx, payouts); err != nil {
		return nil, err
	}
	return payouts, nil
}

func (d *Distributor) executeTransfers(ctx context.Context, well *wells.Well, payouts []payout.Payout) {
	var wg sync.WaitGroup
	for _, p := range payouts {
		if p.Status != payout.StatusPending {
			continue
		}
		wg.Add(1)
		go func(p payout.Payout) {
			defer wg.Done()
			d.attempt(ctx, well, p)
		}(p)
	}
	wg.Wait()
}

func (d *Distributor) attempt(ctx context.Context, well *wells.Well, p payout.Payout) {
	start := d.clock.Now()
	result, err := d.gateway.Transfer(ctx, well.TokenID, well.TreasuryAcct, p.RecipientAccount, p.AmountMinor)
	elapsed := d.clock.Now().Sub(start)
	if err != nil {
		metrics.ObservePayoutTransfer(metrics.PayoutFailed, elapsed)
		d.logger.Printf("payout transfer failed: settlement=%s account=%s amount=%d err=%v",
			p.SettlementID, p.RecipientAccount, p.AmountMinor, err)
		if updateErr := d.payouts.UpdateStatus(ctx, p.SettlementID, p.RecipientAccount, payout.StatusFailed, "", d.clock.Now()); updateErr != nil {
			d.logger.Printf("payout status update error: settlement=%s account=%s err=%v", p.SettlementID, p.RecipientAccount, updateErr)
		}
		return
	}
	metrics.ObservePayoutTransfer(metrics.PayoutSent, elapsed)
	if updateErr := d.payouts.UpdateStatus(ctx, p.SettlementID, p.RecipientAccount, payout.StatusSent, result.TxID, d.clock.Now()); updateErr != nil {
		d.logger.Printf("payout status update error: settlement=%s account=%s err=%v", p.SettlementID, p.RecipientAccount, updateErr)
	}
}
