package payout

import (
	"context"
	"time"

	wells "watergrid-cloud/internal/wells/domain"
)

// Status is the per-payout delivery state. Payouts transition independently;
// one recipient's failure never blocks siblings.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// Payout is one instruction to move value to one recipient for one settlement.
type Payout struct {
	SettlementID     string
	RecipientAccount string
	UserID           string
	Role             wells.Role
	AmountMinor      int64
	Status           Status
	ExternalTxID     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Repository persists payouts. CreateBatch must be atomic: either the whole
// payout set for a settlement is durable or none of it. It also acts as the
// per-settlement claim, failing with ErrBatchExists when a set is already
// persisted, so concurrent distributions have a single winner.
type Repository interface {
	CreateBatch(ctx context.Context, payouts []Payout) error
	ListBySettlement(ctx context.Context, settlementID string) ([]Payout, error)
	ListByStatus(ctx context.Context, status Status) ([]Payout, error)
	// UpdateStatus records the terminal status of one transfer attempt.
	UpdateStatus(ctx context.Context, settlementID, recipientAccount string, status Status, externalTxID string, at time.Time) error
}
