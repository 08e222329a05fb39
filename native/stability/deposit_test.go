package stability

import (
	"testing"

	"trovekit/core/decimal"
)

func d(s string) decimal.Decimal { return decimal.MustParse(s) }

func TestComputeLossClamp(t *testing.T) {
	snapshot := Accumulators{LossPerUnit: d("0")}
	current := Accumulators{LossPerUnit: d("1.5")}
	deposit := Compute(d("100"), snapshot, current)

	if !deposit.PendingDepositLoss.Eq(d("100")) {
		t.Fatalf("expected loss clamped to 100, got %s", deposit.PendingDepositLoss)
	}
	if !deposit.DepositAfterLoss().IsZero() {
		t.Fatalf("expected nothing left after loss, got %s", deposit.DepositAfterLoss())
	}
}

func TestComputeProportionalGainAndLoss(t *testing.T) {
	snapshot := Accumulators{GainPerUnit: d("0.001"), LossPerUnit: d("0.1")}
	current := Accumulators{GainPerUnit: d("0.003"), LossPerUnit: d("0.25")}
	deposit := Compute(d("2000"), snapshot, current)

	if !deposit.PendingCollateralGain.Eq(d("4")) {
		t.Fatalf("expected gain 4, got %s", deposit.PendingCollateralGain)
	}
	if !deposit.PendingDepositLoss.Eq(d("300")) {
		t.Fatalf("expected loss 300, got %s", deposit.PendingDepositLoss)
	}
	if !deposit.DepositAfterLoss().Eq(d("1700")) {
		t.Fatalf("expected 1700 after loss, got %s", deposit.DepositAfterLoss())
	}
}

func TestComputeNeverNegative(t *testing.T) {
	cases := []struct{ deposit, loss string }{
		{"1", "1"},
		{"1", "2"},
		{"0.000000000000000001", "1000000"},
		{"5000", "0.999999999999999999"},
	}
	for _, tc := range cases {
		deposit := Compute(d(tc.deposit), Accumulators{}, Accumulators{LossPerUnit: d(tc.loss)})
		if deposit.PendingDepositLoss.Gt(deposit.Deposit) || deposit.DepositAfterLoss().IsNegative() {
			t.Fatalf("deposit %s loss %s: loss exceeds deposit in %s", tc.deposit, tc.loss, deposit)
		}
	}
}

func TestZeroDepositHasNoPending(t *testing.T) {
	deposit := Compute(decimal.Zero, Accumulators{}, Accumulators{GainPerUnit: d("5"), LossPerUnit: d("5")})
	if !deposit.IsEmpty() {
		t.Fatalf("expected empty deposit, got %s", deposit)
	}
}

func TestApplyZeroDifferenceIsIdentity(t *testing.T) {
	deposit := Deposit{Deposit: d("100"), PendingCollateralGain: d("2"), PendingDepositLoss: d("30")}
	if got := deposit.Apply(deposit.WhatChanged(d("70"))); !got.Equals(deposit) {
		t.Fatalf("expected %s, got %s", deposit, got)
	}
}

func TestApplyRealisesPendingAndClamps(t *testing.T) {
	deposit := Deposit{Deposit: d("100"), PendingCollateralGain: d("2"), PendingDepositLoss: d("30")}

	topUp := deposit.Apply(deposit.WhatChanged(d("150")))
	if !topUp.Equals(Deposit{Deposit: d("150")}) {
		t.Fatalf("unexpected top up %s", topUp)
	}

	withdrawAll := deposit.Apply(decimal.Decrease(d("1000")))
	if !withdrawAll.Equals(Deposit{}) {
		t.Fatalf("expected clamp at zero, got %s", withdrawAll)
	}
}
