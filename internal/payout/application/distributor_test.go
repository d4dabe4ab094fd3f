package application

import (
	"context"
	"testing"
	"time"

	ledgermemory "watergrid-cloud/internal/ledger/memory"
	payout "watergrid-cloud/internal/payout/domain"
	payoutmemory "watergrid-cloud/internal/payout/infrastructure/memory"
	settlementapp "watergrid-cloud/internal/settlement/application"
	wells "watergrid-cloud/internal/wells/domain"
	wellsmemory "watergrid-cloud/internal/wells/infrastructure/memory"
)

func seedWell(t *testing.T, repo *wellsmemory.Repository) {
	t.Helper()
	ctx := context.Background()
	err := repo.CreateWell(ctx, wells.Well{
		ID:           "well-1",
		Name:         "North Basin 7",
		TopicID:      "0.0.9001",
		TokenID:      "0.0.7001",
		TreasuryAcct: "0.0.800",
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create well: %v", err)
	}
	add := func(m wells.Membership) {
		if err := repo.AddMembership(ctx, m); err != nil {
			t.Fatalf("add membership %s: %v", m.Account, err)
		}
	}
	add(wells.Membership{WellID: "well-1", UserID: "op", Account: "0.0.100", Role: wells.RoleOperator})
	add(wells.Membership{WellID: "well-1", UserID: "inv-a", Account: "0.0.201", Role: wells.RoleInvestor, ShareBasisPoints: 6000})
	add(wells.Membership{WellID: "well-1", UserID: "inv-b", Account: "0.0.202", Role: wells.RoleInvestor, ShareBasisPoints: 4000})
}

func statusOf(t *testing.T, payouts []payout.Payout, account string) payout.Payout {
	t.Helper()
	for _, p := range payouts {
		if p.RecipientAccount == account {
			return p
		}
	}
	t.Fatalf("no payout for account %s", account)
	return payout.Payout{}
}

func TestDistributeSendsAllPayouts(t *testing.T) {
	wellRepo := wellsmemory.NewRepository()
	seedWell(t, wellRepo)
	payoutRepo := payoutmemory.NewRepository()
	gateway := ledgermemory.NewGateway()

	distributor, err := NewDistributor(payoutRepo, wellRepo, gateway, payout.DefaultPolicy(), "0.0.900", nil, nil)
	if err != nil {
		t.Fatalf("new distributor: %v", err)
	}

	result, err := distributor.Distribute(context.Background(), settlementapp.DistributionRequest{
		SettlementID:       "stl-1",
		WellID:             "well-1",
		DistributableMinor: 1000,
	})
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if result.TotalMinor != 1000 {
		t.Fatalf("expected total 1000, got %d", result.TotalMinor)
	}
	if result.Sent != 4 || result.Failed != 0 {
		t.Fatalf("expected 4 sent / 0 failed, got %d / %d", result.Sent, result.Failed)
	}

	payouts, err := payoutRepo.ListBySettlement(context.Background(), "stl-1")
	if err != nil {
		t.Fatalf("list payouts: %v", err)
	}
	if got := statusOf(t, payouts, "0.0.100").AmountMinor; got != 500 {
		t.Fatalf("operator amount: expected 500, got %d", got)
	}
	if got := statusOf(t, payouts, "0.0.201").AmountMinor; got != 240 {
		t.Fatalf("investor a amount: expected 240, got %d", got)
	}
	if got := statusOf(t, payouts, "0.0.202").AmountMinor; got != 160 {
		t.Fatalf("investor b amount: expected 160, got %d", got)
	}
	if got := statusOf(t, payouts, "0.0.900").AmountMinor; got != 100 {
		t.Fatalf("platform amount: expected 100, got %d", got)
	}
	for _, p := range payouts {
		if p.Status != payout.StatusSent || p.ExternalTxID == "" {
			t.Fatalf("expected SENT with tx id, got %+v", p)
		}
	}
}

func TestDistributeToleratesPartialFailure(t *testing.T) {
	wellRepo := wellsmemory.NewRepository()
	seedWell(t, wellRepo)
	payoutRepo := payoutmemory.NewRepository()
	gateway := ledgermemory.NewGateway()
	gateway.FailTransfersTo("0.0.201")

	distributor, err := NewDistributor(payoutRepo, wellRepo, gateway, payout.DefaultPolicy(), "0.0.900", nil, nil)
	if err != nil {
		t.Fatalf("new distributor: %v", err)
	}

	result, err := distributor.Distribute(context.Background(), settlementapp.DistributionRequest{
		SettlementID:       "stl-1",
		WellID:             "well-1",
		DistributableMinor: 1000,
	})
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if result.Sent != 3 || result.Failed != 1 {
		t.Fatalf("expected 3 sent / 1 failed, got %d / %d", result.Sent, result.Failed)
	}

	payouts, err := payoutRepo.ListBySettlement(context.Background(), "stl-1")
	if err != nil {
		t.Fatalf("list payouts: %v", err)
	}
	failed := statusOf(t, payouts, "0.0.201")
	if failed.Status != payout.StatusFailed || failed.ExternalTxID != "" {
		t.Fatalf("expected FAILED without tx id, got %+v", failed)
	}

	// Retrying from durable state re-attempts only the failed payout.
	if err := distributor.RetryFailed(context.Background(), func(string) (string, error) { return "well-1", nil }); err != nil {
		t.Fatalf("retry failed payouts: %v", err)
	}
	payouts, _ = payoutRepo.ListBySettlement(context.Background(), "stl-1")
	still := statusOf(t, payouts, "0.0.201")
	if still.Status != payout.StatusFailed {
		t.Fatalf("expected FAILED while gateway still refuses, got %s", still.Status)
	}
}

func TestDistributeIsIdempotentPerSettlement(t *testing.T) {
	wellRepo := wellsmemory.NewRepository()
	seedWell(t, wellRepo)
	payoutRepo := payoutmemory.NewRepository()
	gateway := ledgermemory.NewGateway()

	distributor, err := NewDistributor(payoutRepo, wellRepo, gateway, payout.DefaultPolicy(), "0.0.900", nil, nil)
	if err != nil {
		t.Fatalf("new distributor: %v", err)
	}

	req := settlementapp.DistributionRequest{SettlementID: "stl-1", WellID: "well-1", DistributableMinor: 1000}
	if _, err := distributor.Distribute(context.Background(), req); err != nil {
		t.Fatalf("first distribute: %v", err)
	}
	first, _ := payoutRepo.ListBySettlement(context.Background(), "stl-1")

	if _, err := distributor.Distribute(context.Background(), req); err != nil {
		t.Fatalf("second distribute: %v", err)
	}
	second, _ := payoutRepo.ListBySettlement(context.Background(), "stl-1")

	if len(first) != len(second) {
		t.Fatalf("payout set grew on retry: %d then %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ExternalTxID != second[i].ExternalTxID {
			t.Fatalf("sent payout re-attempted: %+v vs %+v", first[i], second[i])
		}
	}
}
