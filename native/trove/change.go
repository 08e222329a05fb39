package trove

import (
	"errors"
	"fmt"

	"trovekit/core/decimal"
	coreerrors "trovekit/core/errors"
)

var (
	errNoCollateral        = errors.New("trove: creation requires a collateral deposit")
	errNetDebtTooLow       = errors.New("trove: net debt below minimum")
	errRatioTooLow         = errors.New("trove: collateral ratio below minimum")
	errDepositAndWithdraw  = errors.New("trove: cannot deposit and withdraw collateral at once")
	errBorrowAndRepay      = errors.New("trove: cannot borrow and repay at once")
	errClosedTarget        = errors.New("trove: target is empty, use closure")
	errEmptyOrigin         = errors.New("trove: origin is empty, use creation")
	errWithdrawExceedsColl = errors.New("trove: withdrawal exceeds collateral")
	errRepayExceedsDebt    = errors.New("trove: repayment exceeds net debt")
	errNegativeAmount      = errors.New("trove: amounts must not be negative")
)

// CreationParams describes opening a trove.
type CreationParams struct {
	DepositCollateral decimal.Decimal `json:"depositCollateral"`
	BorrowDebt        decimal.Decimal `json:"borrowDebt"`
}

// AdjustmentParams describes a change to an open trove. At most one of each
// deposit/withdraw and borrow/repay pair may be non-zero.
type AdjustmentParams struct {
	DepositCollateral  decimal.Decimal `json:"depositCollateral"`
	WithdrawCollateral decimal.Decimal `json:"withdrawCollateral"`
	BorrowDebt         decimal.Decimal `json:"borrowDebt"`
	RepayDebt          decimal.Decimal `json:"repayDebt"`
}

// ClosureParams describes closing a trove: every unit of collateral is
// withdrawn and the net debt repaid.
type ClosureParams struct {
	WithdrawCollateral decimal.Decimal `json:"withdrawCollateral"`
	RepayDebt          decimal.Decimal `json:"repayDebt"`
}

// Create returns the trove the contract records for params: the reserve plus
// the borrowed amount grossed up by the borrowing fee.
func Create(params CreationParams, borrowingRate decimal.Decimal) Trove {
	return Trove{
		Collateral: params.DepositCollateral,
		Debt:       LiquidationReserve.Add(applyFee(borrowingRate, params.BorrowDebt)),
	}
}

// Validate checks params against the minimum net debt and, when price is
// non-zero, the minimum collateral ratio.
func (p CreationParams) Validate(borrowingRate, price decimal.Decimal) error {
	if p.DepositCollateral.IsNegative() || p.BorrowDebt.IsNegative() {
		return errNegativeAmount
	}
	if p.DepositCollateral.IsZero() {
		return errNoCollateral
	}
	created := Create(p, borrowingRate)
	if created.NetDebt().Lt(MinimumNetDebt) {
		return fmt.Errorf("%w: %s < %s", errNetDebtTooLow, created.NetDebt(), MinimumNetDebt)
	}
	if !price.IsZero() && created.CollateralRatioIsBelowMinimum(price) {
		return fmt.Errorf("%w: %s", errRatioTooLow, created.CollateralRatio(price))
	}
	return nil
}

// CreationFor returns the params that open a trove equal to target.
func CreationFor(target Trove, borrowingRate decimal.Decimal) (CreationParams, error) {
	if target.IsEmpty() {
		return CreationParams{}, coreerrors.ErrNoChange
	}
	return CreationParams{
		DepositCollateral: target.Collateral,
		BorrowDebt:        unapplyFee(borrowingRate, target.NetDebt()),
	}, nil
}

// IsZero reports whether the adjustment changes nothing.
func (p AdjustmentParams) IsZero() bool {
	return p.DepositCollateral.IsZero() && p.WithdrawCollateral.IsZero() &&
		p.BorrowDebt.IsZero() && p.RepayDebt.IsZero()
}

// CollateralChange is the signed collateral movement.
func (p AdjustmentParams) CollateralChange() decimal.Difference {
	return decimal.Between(p.DepositCollateral, p.WithdrawCollateral)
}

// Validate checks the mutually exclusive pairs.
func (p AdjustmentParams) Validate() error {
	for _, amount := range []decimal.Decimal{p.DepositCollateral, p.WithdrawCollateral, p.BorrowDebt, p.RepayDebt} {
		if amount.IsNegative() {
			return errNegativeAmount
		}
	}
	if p.IsZero() {
		return coreerrors.ErrNoChange
	}
	if !p.DepositCollateral.IsZero() && !p.WithdrawCollateral.IsZero() {
		return errDepositAndWithdraw
	}
	if !p.BorrowDebt.IsZero() && !p.RepayDebt.IsZero() {
		return errBorrowAndRepay
	}
	return nil
}

// Adjust returns the trove after params are applied, charging the borrowing
// fee on any debt increase.
func (t Trove) Adjust(params AdjustmentParams, borrowingRate decimal.Decimal) Trove {
	return t.
		AddCollateral(params.DepositCollateral).
		SubtractCollateral(params.WithdrawCollateral).
		AddDebt(applyFee(borrowingRate, params.BorrowDebt)).
		SubtractDebt(params.RepayDebt)
}

// ValidateAdjustment checks params against t: withdrawals are bounded by the
// collateral, repayments by the net debt, and the result must keep the
// minimum net debt and, when price is non-zero, the minimum ratio.
func (t Trove) ValidateAdjustment(params AdjustmentParams, borrowingRate, price decimal.Decimal) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if params.WithdrawCollateral.Gt(t.Collateral) {
		return errWithdrawExceedsColl
	}
	if params.RepayDebt.Gt(t.NetDebt()) {
		return errRepayExceedsDebt
	}
	adjusted := t.Adjust(params, borrowingRate)
	if adjusted.NetDebt().Lt(MinimumNetDebt) {
		return fmt.Errorf("%w: %s < %s", errNetDebtTooLow, adjusted.NetDebt(), MinimumNetDebt)
	}
	if !price.IsZero() && adjusted.CollateralRatioIsBelowMinimum(price) {
		return fmt.Errorf("%w: %s", errRatioTooLow, adjusted.CollateralRatio(price))
	}
	return nil
}

// AdjustTo returns the params that turn t into target. A debt increase is
// expressed net of the fee, rounded up so the resulting debt reaches target.
func (t Trove) AdjustTo(target Trove, borrowingRate decimal.Decimal) (AdjustmentParams, error) {
	if t.IsEmpty() {
		return AdjustmentParams{}, errEmptyOrigin
	}
	if target.IsEmpty() {
		return AdjustmentParams{}, errClosedTarget
	}
	delta := t.WhatChanged(target)
	if delta.IsZero() {
		return AdjustmentParams{}, coreerrors.ErrNoChange
	}
	var params AdjustmentParams
	if increase, ok := delta.Collateral.Positive(); ok {
		params.DepositCollateral = increase.Absolute()
	} else if decrease, ok := delta.Collateral.Negative(); ok {
		params.WithdrawCollateral = decrease.Absolute()
	}
	if increase, ok := delta.Debt.Positive(); ok {
		params.BorrowDebt = unapplyFee(borrowingRate, increase.Absolute())
	} else if decrease, ok := delta.Debt.Negative(); ok {
		params.RepayDebt = decrease.Absolute()
	}
	return params, nil
}

// Close returns the closure params for t.
func (t Trove) Close() ClosureParams {
	return ClosureParams{WithdrawCollateral: t.Collateral, RepayDebt: t.NetDebt()}
}
