package memory

import (
	"context"
	"errors"
	"testing"

	wells "watergrid-cloud/internal/wells/domain"
)

func registerWell(t *testing.T, repo *Repository, wellID string) {
	t.Helper()
	if err := repo.CreateWell(context.Background(), wells.Well{ID: wellID, Name: wellID}); err != nil {
		t.Fatalf("create well %s: %v", wellID, err)
	}
}

func investor(wellID, account string, bps int) wells.Membership {
	return wells.Membership{
		WellID:           wellID,
		UserID:           "usr-" + account,
		Account:          account,
		Role:             wells.RoleInvestor,
		ShareBasisPoints: bps,
	}
}

func TestAddMembershipEnforcesInvestorCap(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	registerWell(t, repo, "well-1")
	registerWell(t, repo, "well-2")

	if err := repo.AddMembership(ctx, investor("well-1", "0.0.201", 6000)); err != nil {
		t.Fatalf("first investor: %v", err)
	}
	if err := repo.AddMembership(ctx, investor("well-1", "0.0.202", 4000)); err != nil {
		t.Fatalf("second investor: %v", err)
	}
	err := repo.AddMembership(ctx, investor("well-1", "0.0.203", 1))
	if !errors.Is(err, wells.ErrInvestorSharesExceeded) {
		t.Fatalf("overflow err = %v, want ErrInvestorSharesExceeded", err)
	}

	// The cap is per well and applies to investors only.
	if err := repo.AddMembership(ctx, investor("well-2", "0.0.203", 10000)); err != nil {
		t.Fatalf("other well investor: %v", err)
	}
	operator := wells.Membership{WellID: "well-1", UserID: "usr-op", Account: "0.0.100", Role: wells.RoleOperator, ShareBasisPoints: 5000}
	if err := repo.AddMembership(ctx, operator); err != nil {
		t.Fatalf("operator after full investor pool: %v", err)
	}
}

func TestAddMembershipRequiresRegisteredWell(t *testing.T) {
	repo := NewRepository()
	err := repo.AddMembership(context.Background(), investor("well-ghost", "0.0.201", 1000))
	if !errors.Is(err, wells.ErrWellNotFound) {
		t.Fatalf("err = %v, want ErrWellNotFound", err)
	}
}

func TestAddMembershipValidates(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	registerWell(t, repo, "well-1")

	err := repo.AddMembership(ctx, wells.Membership{WellID: "", Account: "0.0.1", Role: wells.RoleInvestor, ShareBasisPoints: 100})
	if !errors.Is(err, wells.ErrEmptyWellID) {
		t.Fatalf("empty well err = %v", err)
	}
	err = repo.AddMembership(ctx, wells.Membership{WellID: "well-1", Account: "0.0.1", Role: "GUEST", ShareBasisPoints: 100})
	if !errors.Is(err, wells.ErrInvalidRole) {
		t.Fatalf("bad role err = %v", err)
	}
	err = repo.AddMembership(ctx, wells.Membership{WellID: "well-1", Account: "0.0.1", Role: wells.RoleInvestor, ShareBasisPoints: 10001})
	if !errors.Is(err, wells.ErrInvalidShare) {
		t.Fatalf("bad share err = %v", err)
	}
}

func TestListMembershipsPreservesInsertionOrder(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	registerWell(t, repo, "well-1")

	accounts := []string{"0.0.203", "0.0.201", "0.0.202"}
	for _, account := range accounts {
		if err := repo.AddMembership(ctx, investor("well-1", account, 3000)); err != nil {
			t.Fatalf("add %s: %v", account, err)
		}
	}
	memberships, err := repo.ListMemberships(ctx, "well-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(memberships) != 3 {
		t.Fatalf("len = %d, want 3", len(memberships))
	}
	for i, membership := range memberships {
		if membership.Account != accounts[i] {
			t.Fatalf("memberships[%d] = %s, want %s", i, membership.Account, accounts[i])
		}
		if membership.Position != i {
			t.Fatalf("position[%d] = %d", i, membership.Position)
		}
	}
}

func TestGetWellUnknownID(t *testing.T) {
	repo := NewRepository()
	_, err := repo.GetWell(context.Background(), "missing")
	if !errors.Is(err, wells.ErrWellNotFound) {
		t.Fatalf("err = %v, want ErrWellNotFound", err)
	}
}
