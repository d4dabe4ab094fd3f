package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	payout "watergrid-cloud/internal/payout/domain"
	wells "watergrid-cloud/internal/wells/domain"
)

func pendingBatch(settlementID string) []payout.Payout {
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	return []payout.Payout{
		{SettlementID: settlementID, RecipientAccount: "0.0.100", Role: wells.RoleOperator, AmountMinor: 500, Status: payout.StatusPending, CreatedAt: now, UpdatedAt: now},
		{SettlementID: settlementID, RecipientAccount: "0.0.201", Role: wells.RoleInvestor, AmountMinor: 500, Status: payout.StatusPending, CreatedAt: now, UpdatedAt: now},
	}
}

func TestCreateBatchClaimsSettlement(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	if err := repo.CreateBatch(ctx, pendingBatch("stl-1")); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	// A racing materialization for the same settlement loses the claim and
	// must not replace the durable set.
	if err := repo.CreateBatch(ctx, pendingBatch("stl-1")); !errors.Is(err, payout.ErrBatchExists) {
		t.Fatalf("second batch err = %v, want ErrBatchExists", err)
	}
	// Other settlements are unaffected.
	if err := repo.CreateBatch(ctx, pendingBatch("stl-2")); err != nil {
		t.Fatalf("other settlement: %v", err)
	}

	stored, err := repo.ListBySettlement(ctx, "stl-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("len = %d, want 2", len(stored))
	}
}

func TestCreateBatchRejectsEmptySet(t *testing.T) {
	repo := NewRepository()
	if err := repo.CreateBatch(context.Background(), nil); !errors.Is(err, payout.ErrEmptyBatch) {
		t.Fatalf("err = %v, want ErrEmptyBatch", err)
	}
}
