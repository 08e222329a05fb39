// Package stability models a stability pool deposit and the proportional
// gain and loss it accrues as the pool absorbs liquidations.
package stability

import (
	"fmt"

	"trovekit/core/decimal"
)

// Accumulators are the pool-wide running sums of collateral gain and deposit
// loss per unit deposited. Both only grow.
type Accumulators struct {
	GainPerUnit decimal.Decimal `json:"gainPerUnit"`
	LossPerUnit decimal.Decimal `json:"lossPerUnit"`
}

// Deposit is a depositor's position in the pool. PendingDepositLoss never
// exceeds Deposit.
type Deposit struct {
	Deposit               decimal.Decimal `json:"deposit"`
	PendingCollateralGain decimal.Decimal `json:"pendingCollateralGain"`
	PendingDepositLoss    decimal.Decimal `json:"pendingDepositLoss"`
}

// Compute derives the pending gain and loss of deposit since snapshot. Loss is
// clamped to the deposit itself.
func Compute(deposit decimal.Decimal, snapshot, current Accumulators) Deposit {
	if deposit.IsZero() {
		return Deposit{}
	}
	gain := deposit.Mul(delta(current.GainPerUnit, snapshot.GainPerUnit))
	loss := decimal.Min(deposit.Mul(delta(current.LossPerUnit, snapshot.LossPerUnit)), deposit)
	return Deposit{Deposit: deposit, PendingCollateralGain: gain, PendingDepositLoss: loss}
}

func delta(current, snapshot decimal.Decimal) decimal.Decimal {
	if current.Lte(snapshot) {
		return decimal.Zero
	}
	return current.Sub(snapshot)
}

// DepositAfterLoss is the depositor's economically meaningful balance.
func (d Deposit) DepositAfterLoss() decimal.Decimal {
	return d.Deposit.Sub(d.PendingDepositLoss)
}

func (d Deposit) IsEmpty() bool {
	return d.Deposit.IsZero() && d.PendingCollateralGain.IsZero() && d.PendingDepositLoss.IsZero()
}

func (d Deposit) Equals(o Deposit) bool {
	return d.Deposit.Eq(o.Deposit) &&
		d.PendingCollateralGain.Eq(o.PendingCollateralGain) &&
		d.PendingDepositLoss.Eq(o.PendingDepositLoss)
}

// WhatChanged returns target minus the balance after loss.
func (d Deposit) WhatChanged(target decimal.Decimal) decimal.Difference {
	return decimal.Between(target, d.DepositAfterLoss())
}

// Apply replays diff onto the balance after loss. Any non-zero change realises
// the pending gain and loss, as the pool does on every deposit change. A zero
// diff returns d unchanged.
func (d Deposit) Apply(diff decimal.Difference) Deposit {
	if diff.IsZero() {
		return d
	}
	return Deposit{Deposit: diff.ApplyTo(d.DepositAfterLoss())}
}

func (d Deposit) String() string {
	return fmt.Sprintf("{ deposit: %s, collateralGain: %s, depositLoss: %s }",
		d.Deposit, d.PendingCollateralGain, d.PendingDepositLoss)
}
