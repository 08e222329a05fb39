// Package trove models collateralized debt positions exactly as the trove
// manager contract accounts for them, including the redistribution rewards a
// trove accrues between on-chain touches.
package trove

import (
	"fmt"

	"trovekit/core/decimal"
)

// Trove is an immutable collateral/debt pair. Every mutator returns a new
// value.
type Trove struct {
	Collateral decimal.Decimal `json:"collateral"`
	Debt       decimal.Decimal `json:"debt"`
}

// New builds a Trove.
func New(collateral, debt decimal.Decimal) Trove {
	return Trove{Collateral: collateral, Debt: debt}
}

// CollateralRatio returns Collateral * price / Debt using a single truncation.
// The ratio is infinite exactly when Debt is zero.
func (t Trove) CollateralRatio(price decimal.Decimal) decimal.Decimal {
	return t.Collateral.MulDiv(price, t.Debt)
}

// CollateralRatioIsBelowMinimum reports whether the trove is liquidatable in
// normal mode at price.
func (t Trove) CollateralRatioIsBelowMinimum(price decimal.Decimal) bool {
	return t.CollateralRatio(price).Lt(MinimumCollateralRatio)
}

// CollateralRatioIsBelowCritical reports whether the ratio is under the
// recovery mode threshold.
func (t Trove) CollateralRatioIsBelowCritical(price decimal.Decimal) bool {
	return t.CollateralRatio(price).Lt(CriticalCollateralRatio)
}

// Compare orders two troves by collateral ratio at price, the order the
// sorted list keeps.
func (t Trove) Compare(o Trove, price decimal.Decimal) int {
	return t.CollateralRatio(price).Cmp(o.CollateralRatio(price))
}

// NetDebt is the debt excluding the liquidation reserve.
func (t Trove) NetDebt() decimal.Decimal {
	return decimal.Max(t.Debt.Sub(LiquidationReserve), decimal.Zero)
}

func (t Trove) IsEmpty() bool {
	return t.Collateral.IsZero() && t.Debt.IsZero()
}

func (t Trove) Add(o Trove) Trove {
	return Trove{Collateral: t.Collateral.Add(o.Collateral), Debt: t.Debt.Add(o.Debt)}
}

func (t Trove) AddCollateral(amount decimal.Decimal) Trove {
	return Trove{Collateral: t.Collateral.Add(amount), Debt: t.Debt}
}

func (t Trove) AddDebt(amount decimal.Decimal) Trove {
	return Trove{Collateral: t.Collateral, Debt: t.Debt.Add(amount)}
}

// Subtract removes o component-wise, clamping each component at zero.
func (t Trove) Subtract(o Trove) Trove {
	return Trove{Collateral: subClamped(t.Collateral, o.Collateral), Debt: subClamped(t.Debt, o.Debt)}
}

func (t Trove) SubtractCollateral(amount decimal.Decimal) Trove {
	return Trove{Collateral: subClamped(t.Collateral, amount), Debt: t.Debt}
}

func (t Trove) SubtractDebt(amount decimal.Decimal) Trove {
	return Trove{Collateral: t.Collateral, Debt: subClamped(t.Debt, amount)}
}

// Multiply scales both components.
func (t Trove) Multiply(factor decimal.Decimal) Trove {
	return Trove{Collateral: t.Collateral.Mul(factor), Debt: t.Debt.Mul(factor)}
}

func (t Trove) SetCollateral(collateral decimal.Decimal) Trove {
	return Trove{Collateral: collateral, Debt: t.Debt}
}

func (t Trove) SetDebt(debt decimal.Decimal) Trove {
	return Trove{Collateral: t.Collateral, Debt: debt}
}

func (t Trove) Equals(o Trove) bool {
	return t.Collateral.Eq(o.Collateral) && t.Debt.Eq(o.Debt)
}

func (t Trove) String() string {
	return fmt.Sprintf("{ collateral: %s, debt: %s }", t.Collateral, t.Debt)
}

func subClamped(a, b decimal.Decimal) decimal.Decimal {
	if a.Lte(b) {
		return decimal.Zero
	}
	return a.Sub(b)
}

// Delta is the component-wise Difference between two troves.
type Delta struct {
	Collateral decimal.Difference `json:"collateral"`
	Debt       decimal.Difference `json:"debt"`
}

// IsZero reports whether neither component changed.
func (d Delta) IsZero() bool {
	return d.Collateral.IsZero() && d.Debt.IsZero()
}

// WhatChanged returns target minus t.
func (t Trove) WhatChanged(target Trove) Delta {
	return Delta{
		Collateral: decimal.Between(target.Collateral, t.Collateral),
		Debt:       decimal.Between(target.Debt, t.Debt),
	}
}

// Apply replays delta onto t. A zero Delta returns an equal Trove.
func (t Trove) Apply(delta Delta) Trove {
	return Trove{
		Collateral: delta.Collateral.ApplyTo(t.Collateral),
		Debt:       delta.Debt.ApplyTo(t.Debt),
	}
}
