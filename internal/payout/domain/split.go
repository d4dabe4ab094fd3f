package payout

import (
	"sort"

	"github.com/shopspring/decimal"

	wells "watergrid-cloud/internal/wells/domain"
)

// Policy is the fixed revenue split in basis points. The three constants must
// sum to 10000.
type Policy struct {
	OperatorBps     int
	InvestorPoolBps int
	PlatformBps     int
}

// DefaultPolicy is the documented 50/40/10 operator/investor/platform split.
func DefaultPolicy() Policy {
	return Policy{OperatorBps: 5000, InvestorPoolBps: 4000, PlatformBps: 1000}
}

// Validate checks the policy covers exactly one hundred percent.
func (p Policy) Validate() error {
	if p.OperatorBps < 0 || p.InvestorPoolBps < 0 || p.PlatformBps < 0 {
		return ErrInvalidPolicy
	}
	if p.OperatorBps+p.InvestorPoolBps+p.PlatformBps != wells.MaxBasisPoints {
		return ErrInvalidPolicy
	}
	return nil
}

// Share is one recipient's computed amount in integer minor units.
type Share struct {
	Account     string
	UserID      string
	Role        wells.Role
	AmountMinor int64
}

// ComputeShares expands a distributable amount into per-recipient shares.
//
// Each recipient's exact fractional share is floored to integer minor units;
// the leftover units are then assigned one at a time in descending order of
// fractional remainder, ties broken by stable recipient order (operator,
// investors in membership-insertion order, platform). The result sums to
// distributableMinor exactly.
//
// Investor shares below 10000 bps are normalized to the investors' own total.
// A well with no investor memberships routes the investor pool to the
// platform recipient.
func ComputeShares(policy Policy, distributableMinor int64, memberships []wells.Membership, platformAccount string) ([]Share, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if distributableMinor < 0 {
		return nil, ErrRoundingInvariant
	}

	var operator *wells.Membership
	var platform *wells.Membership
	var investors []wells.Membership
	for i := range memberships {
		m := memberships[i]
		switch m.Role {
		case wells.RoleOperator:
			if operator == nil {
				operator = &m
			}
		case wells.RoleInvestor:
			investors = append(investors, m)
		case wells.RolePlatform:
			if platform == nil {
				platform = &m
			}
		}
	}
	if operator == nil {
		return nil, ErrNoOperator
	}
	platformAcct := platformAccount
	platformUser := ""
	if platform != nil {
		platformAcct = platform.Account
		platformUser = platform.UserID
	}
	if platformAcct == "" {
		return nil, ErrNoRecipients
	}

	total := decimal.NewFromInt(distributableMinor)
	bps := decimal.NewFromInt(int64(wells.MaxBasisPoints))
	operatorExact := total.Mul(decimal.NewFromInt(int64(policy.OperatorBps))).Div(bps)
	investorPool := total.Mul(decimal.NewFromInt(int64(policy.InvestorPoolBps))).Div(bps)
	platformExact := total.Mul(decimal.NewFromInt(int64(policy.PlatformBps))).Div(bps)

	var investorTotalBps int64
	for _, investor := range investors {
		investorTotalBps += int64(investor.ShareBasisPoints)
	}
	if len(investors) == 0 || investorTotalBps == 0 {
		platformExact = platformExact.Add(investorPool)
		investors = nil
	}

	type exactShare struct {
		share Share
		exact decimal.Decimal
	}
	exacts := make([]exactShare, 0, len(investors)+2)
	exacts = append(exacts, exactShare{
		share: Share{Account: operator.Account, UserID: operator.UserID, Role: wells.RoleOperator},
		exact: operatorExact,
	})
	for _, investor := range investors {
		exact := investorPool.
			Mul(decimal.NewFromInt(int64(investor.ShareBasisPoints))).
			Div(decimal.NewFromInt(investorTotalBps))
		exacts = append(exacts, exactShare{
			share: Share{Account: investor.Account, UserID: investor.UserID, Role: wells.RoleInvestor},
			exact: exact,
		})
	}
	exacts = append(exacts, exactShare{
		share: Share{Account: platformAcct, UserID: platformUser, Role: wells.RolePlatform},
		exact: platformExact,
	})

	var floored int64
	fractions := make([]decimal.Decimal, len(exacts))
	for i := range exacts {
		floor := exacts[i].exact.Floor()
		exacts[i].share.AmountMinor = floor.IntPart()
		fractions[i] = exacts[i].exact.Sub(floor)
		floored += exacts[i].share.AmountMinor
	}

	remainder := distributableMinor - floored
	if remainder < 0 {
		return nil, ErrRoundingInvariant
	}
	if remainder > 0 {
		order := make([]int, len(exacts))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return fractions[order[a]].GreaterThan(fractions[order[b]])
		})
		for i := int64(0); i < remainder; i++ {
			exacts[order[i%int64(len(order))]].share.AmountMinor++
		}
	}

	shares := make([]Share, 0, len(exacts))
	var sum int64
	for _, e := range exacts {
		sum += e.share.AmountMinor
		shares = append(shares, e.share)
	}
	if sum != distributableMinor {
		return nil, ErrRoundingInvariant
	}
	return shares, nil
}
