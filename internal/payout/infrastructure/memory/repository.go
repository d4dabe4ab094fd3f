package memory

import (
	"context"
	"sync"
	"time"

	payout "watergrid-cloud/internal/payout/domain"
)

// Repository is an in-memory payout store used by tests and demo mode.
type Repository struct {
	mu   sync.RWMutex
	data map[string][]payout.Payout
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string][]payout.Payout)}
}

// CreateBatch persists a payout set atomically. The settlement id is the
// claim: a second batch for the same settlement fails with ErrBatchExists.
func (r *Repository) CreateBatch(ctx context.Context, payouts []payout.Payout) error {
	_ = ctx
	if len(payouts) == 0 {
		return payout.ErrEmptyBatch
	}
	settlementID := payouts[0].SettlementID

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[settlementID]; ok {
		return payout.ErrBatchExists
	}
	batch := make([]payout.Payout, len(payouts))
	copy(batch, payouts)
	r.data[settlementID] = batch
	return nil
}

// ListBySettlement returns the payout set for one settlement.
func (r *Repository) ListBySettlement(ctx context.Context, settlementID string) ([]payout.Payout, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	source := r.data[settlementID]
	result := make([]payout.Payout, len(source))
	copy(result, source)
	return result, nil
}

// ListByStatus returns payouts with the given status across settlements.
func (r *Repository) ListByStatus(ctx context.Context, status payout.Status) ([]payout.Payout, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []payout.Payout
	for _, batch := range r.data {
		for _, p := range batch {
			if p.Status == status {
				result = append(result, p)
			}
		}
	}
	return result, nil
}

// UpdateStatus records one transfer attempt's terminal status.
func (r *Repository) UpdateStatus(ctx context.Context, settlementID, recipientAccount string, status payout.Status, externalTxID string, at time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	batch := r.data[settlementID]
	for i := range batch {
		if batch[i].RecipientAccount == recipientAccount {
			batch[i].Status = status
			batch[i].ExternalTxID = externalTxID
			batch[i].UpdatedAt = at
			return nil
		}
	}
	return payout.ErrEmptyBatch
}
