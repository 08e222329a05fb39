package trove

import (
	"github.com/ethereum/go-ethereum/common"

	"trovekit/core/decimal"
	coreerrors "trovekit/core/errors"
)

// UserTrove is a trove with every pending redistribution applied.
type UserTrove struct {
	Trove
	Owner  common.Address `json:"owner"`
	Status Status         `json:"status"`
}

// PendingTrove is a trove as stored on-chain: its collateral and debt as of
// the owner's last touch together with the redistribution totals observed at
// that moment. It must be brought current with ApplyRewards before any ratio
// is taken.
type PendingTrove struct {
	Owner    common.Address  `json:"owner"`
	Status   Status          `json:"status"`
	Raw      Trove           `json:"raw"`
	Stake    decimal.Decimal `json:"stake"`
	Snapshot Trove           `json:"snapshot"`
}

// PendingRewards returns stake * (total - snapshot). A zero stake yields an
// exact zero regardless of the totals.
func (p PendingTrove) PendingRewards(total Trove) Trove {
	if p.Stake.IsZero() {
		return Trove{}
	}
	return total.Subtract(p.Snapshot).Multiply(p.Stake)
}

// ApplyRewards reproduces the amount the contract adds to the trove on its
// next touch.
func (p PendingTrove) ApplyRewards(total Trove) UserTrove {
	return UserTrove{
		Trove:  p.Raw.Add(p.PendingRewards(total)),
		Owner:  p.Owner,
		Status: p.Status,
	}
}

func (p PendingTrove) CollateralRatio(decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, &coreerrors.UnappliedRewardsError{Op: "CollateralRatio"}
}

func (p PendingTrove) CollateralRatioIsBelowMinimum(decimal.Decimal) (bool, error) {
	return false, &coreerrors.UnappliedRewardsError{Op: "CollateralRatioIsBelowMinimum"}
}

func (p PendingTrove) Compare(Trove, decimal.Decimal) (int, error) {
	return 0, &coreerrors.UnappliedRewardsError{Op: "Compare"}
}
