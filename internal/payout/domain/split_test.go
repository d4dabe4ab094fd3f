package payout

import (
	"errors"
	"testing"

	wells "watergrid-cloud/internal/wells/domain"
)

func membership(role wells.Role, account, userID string, bps, position int) wells.Membership {
	return wells.Membership{
		WellID:           "well-1",
		UserID:           userID,
		Account:          account,
		Role:             role,
		ShareBasisPoints: bps,
		Position:         position,
	}
}

func amountFor(t *testing.T, shares []Share, account string) int64 {
	t.Helper()
	for _, s := range shares {
		if s.Account == account {
			return s.AmountMinor
		}
	}
	t.Fatalf("no share for account %s", account)
	return 0
}

func TestComputeSharesEvenSplit(t *testing.T) {
	memberships := []wells.Membership{
		membership(wells.RoleOperator, "0.0.100", "op", 0, 0),
		membership(wells.RoleInvestor, "0.0.201", "inv-a", 5000, 1),
		membership(wells.RoleInvestor, "0.0.202", "inv-b", 5000, 2),
	}
	shares, err := ComputeShares(DefaultPolicy(), 1000, memberships, "0.0.900")
	if err != nil {
		t.Fatalf("compute shares: %v", err)
	}
	if got := amountFor(t, shares, "0.0.100"); got != 500 {
		t.Fatalf("operator: expected 500, got %d", got)
	}
	if got := amountFor(t, shares, "0.0.201"); got != 200 {
		t.Fatalf("investor a: expected 200, got %d", got)
	}
	if got := amountFor(t, shares, "0.0.202"); got != 200 {
		t.Fatalf("investor b: expected 200, got %d", got)
	}
	if got := amountFor(t, shares, "0.0.900"); got != 100 {
		t.Fatalf("platform: expected 100, got %d", got)
	}
}

func TestComputeSharesRemainderByLargestFraction(t *testing.T) {
	// The investor pool is the entire amount: 99 split 4000/3500/2500
	// floors to 39/34/24 and the two leftover units go to the largest
	// fractional remainders (.75 then .65).
	memberships := []wells.Membership{
		membership(wells.RoleOperator, "0.0.100", "op", 0, 0),
		membership(wells.RoleInvestor, "0.0.201", "inv-a", 4000, 1),
		membership(wells.RoleInvestor, "0.0.202", "inv-b", 3500, 2),
		membership(wells.RoleInvestor, "0.0.203", "inv-c", 2500, 3),
	}
	policy := Policy{OperatorBps: 0, InvestorPoolBps: 10000, PlatformBps: 0}
	shares, err := ComputeShares(policy, 99, memberships, "0.0.900")
	if err != nil {
		t.Fatalf("compute shares: %v", err)
	}
	if got := amountFor(t, shares, "0.0.201"); got != 39 {
		t.Fatalf("investor a: expected 39, got %d", got)
	}
	if got := amountFor(t, shares, "0.0.202"); got != 35 {
		t.Fatalf("investor b: expected 35, got %d", got)
	}
	if got := amountFor(t, shares, "0.0.203"); got != 25 {
		t.Fatalf("investor c: expected 25, got %d", got)
	}
}

func TestComputeSharesNormalizesPartialInvestorShares(t *testing.T) {
	// One investor holding 3000 of 10000 bps still takes the whole pool;
	// shares normalize to the investors' own total.
	memberships := []wells.Membership{
		membership(wells.RoleOperator, "0.0.100", "op", 0, 0),
		membership(wells.RoleInvestor, "0.0.201", "inv-a", 3000, 1),
	}
	shares, err := ComputeShares(DefaultPolicy(), 1000, memberships, "0.0.900")
	if err != nil {
		t.Fatalf("compute shares: %v", err)
	}
	if got := amountFor(t, shares, "0.0.201"); got != 400 {
		t.Fatalf("investor: expected 400, got %d", got)
	}
}

func TestComputeSharesNoInvestorsPoolsToPlatform(t *testing.T) {
	memberships := []wells.Membership{
		membership(wells.RoleOperator, "0.0.100", "op", 0, 0),
	}
	shares, err := ComputeShares(DefaultPolicy(), 1000, memberships, "0.0.900")
	if err != nil {
		t.Fatalf("compute shares: %v", err)
	}
	if len(shares) != 2 {
		t.Fatalf("expected 2 shares, got %d", len(shares))
	}
	if got := amountFor(t, shares, "0.0.100"); got != 500 {
		t.Fatalf("operator: expected 500, got %d", got)
	}
	if got := amountFor(t, shares, "0.0.900"); got != 500 {
		t.Fatalf("platform: expected 500, got %d", got)
	}
}

func TestComputeSharesSumsExactly(t *testing.T) {
	memberships := []wells.Membership{
		membership(wells.RoleOperator, "0.0.100", "op", 0, 0),
		membership(wells.RoleInvestor, "0.0.201", "inv-a", 3333, 1),
		membership(wells.RoleInvestor, "0.0.202", "inv-b", 3333, 2),
		membership(wells.RoleInvestor, "0.0.203", "inv-c", 3334, 3),
	}
	for _, amount := range []int64{0, 1, 7, 99, 101, 12345, 999999999} {
		shares, err := ComputeShares(DefaultPolicy(), amount, memberships, "0.0.900")
		if err != nil {
			t.Fatalf("compute shares for %d: %v", amount, err)
		}
		var sum int64
		for _, s := range shares {
			if s.AmountMinor < 0 {
				t.Fatalf("negative share for %d: %+v", amount, s)
			}
			sum += s.AmountMinor
		}
		if sum != amount {
			t.Fatalf("shares for %d sum to %d", amount, sum)
		}
	}
}

func TestComputeSharesRequiresOperator(t *testing.T) {
	memberships := []wells.Membership{
		membership(wells.RoleInvestor, "0.0.201", "inv-a", 10000, 0),
	}
	_, err := ComputeShares(DefaultPolicy(), 1000, memberships, "0.0.900")
	if !errors.Is(err, ErrNoOperator) {
		t.Fatalf("expected ErrNoOperator, got %v", err)
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy: %v", err)
	}
	bad := Policy{OperatorBps: 5000, InvestorPoolBps: 4000, PlatformBps: 999}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
}
