package trove

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"trovekit/core/decimal"
	coreerrors "trovekit/core/errors"
)

func d(s string) decimal.Decimal { return decimal.MustParse(s) }

func TestCollateralRatioInfiniteIffDebtZero(t *testing.T) {
	price := d("200")
	cases := []struct {
		trove    Trove
		infinite bool
	}{
		{New(d("10"), d("0")), true},
		{New(d("0"), d("0")), true},
		{New(d("0"), d("100")), false},
		{New(d("10"), d("1000")), false},
	}
	for _, tc := range cases {
		ratio := tc.trove.CollateralRatio(price)
		if ratio.IsInfinite() != tc.infinite {
			t.Fatalf("%s: expected infinite=%v, got ratio %s", tc.trove, tc.infinite, ratio)
		}
	}
	if got := New(d("10"), d("1000")).CollateralRatio(price); !got.Eq(d("2")) {
		t.Fatalf("expected ratio 2, got %s", got)
	}
}

func TestRatioThresholds(t *testing.T) {
	price := d("100")
	healthy := New(d("20"), d("1000"))
	if healthy.CollateralRatioIsBelowMinimum(price) || healthy.CollateralRatioIsBelowCritical(price) {
		t.Fatalf("expected healthy trove at ratio 2")
	}
	recovery := New(d("12"), d("1000"))
	if recovery.CollateralRatioIsBelowMinimum(price) || !recovery.CollateralRatioIsBelowCritical(price) {
		t.Fatalf("expected ratio 1.2 to be below critical only")
	}
	if !New(d("10"), d("1000")).CollateralRatioIsBelowMinimum(price) {
		t.Fatalf("expected ratio 1.0 to be below minimum")
	}
	if healthy.Compare(recovery, price) <= 0 {
		t.Fatalf("expected healthier trove to order first")
	}
}

func TestSubtractClampsAtZero(t *testing.T) {
	got := New(d("5"), d("100")).Subtract(New(d("7"), d("40")))
	if !got.Equals(New(d("0"), d("60"))) {
		t.Fatalf("unexpected %s", got)
	}
	if got := New(d("1"), d("1")).SubtractDebt(d("3")); !got.Debt.IsZero() {
		t.Fatalf("expected debt clamp, got %s", got)
	}
}

func TestNetDebt(t *testing.T) {
	if got := New(d("1"), d("2000")).NetDebt(); !got.Eq(d("1800")) {
		t.Fatalf("expected 1800, got %s", got)
	}
	if got := New(d("1"), d("150")).NetDebt(); !got.IsZero() {
		t.Fatalf("expected 0, got %s", got)
	}
}

func TestZeroDeltaIsIdentity(t *testing.T) {
	for _, tr := range []Trove{{}, New(d("1.5"), d("2000")), New(d("3"), d("0"))} {
		delta := tr.WhatChanged(tr)
		if !delta.IsZero() {
			t.Fatalf("expected zero delta for %s", tr)
		}
		if got := tr.Apply(delta); !got.Equals(tr) {
			t.Fatalf("expected %s, got %s", tr, got)
		}
	}
}

func TestWhatChangedReplaysOntoOtherTrove(t *testing.T) {
	before := New(d("10"), d("2000"))
	after := New(d("8"), d("2500"))
	delta := before.WhatChanged(after)
	if got := before.Apply(delta); !got.Equals(after) {
		t.Fatalf("expected %s, got %s", after, got)
	}
	other := New(d("1"), d("100"))
	if got := other.Apply(delta); !got.Equals(New(d("0"), d("600"))) {
		t.Fatalf("unexpected replay %s", got)
	}
}

func TestDeltaJSONUsesCamelCase(t *testing.T) {
	delta := New(d("10"), d("2000")).WhatChanged(New(d("8"), d("2500")))
	raw, err := json.Marshal(delta)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got, want := string(raw), `{"collateral":"-2","debt":"+500"}`; got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestApplyRewardsScenario(t *testing.T) {
	pending := PendingTrove{
		Owner:    common.HexToAddress("0x01"),
		Status:   StatusOpen,
		Raw:      New(d("100"), d("2000")),
		Stake:    d("2"),
		Snapshot: New(d("10"), d("5")),
	}
	total := New(d("14"), d("7"))

	if got := pending.PendingRewards(total); !got.Equals(New(d("8"), d("4"))) {
		t.Fatalf("expected reward (8, 4), got %s", got)
	}
	current := pending.ApplyRewards(total)
	if !current.Trove.Equals(New(d("108"), d("2004"))) {
		t.Fatalf("expected (108, 2004), got %s", current.Trove)
	}
	if current.Owner != pending.Owner || current.Status != StatusOpen {
		t.Fatalf("owner and status must carry over")
	}
}

func TestApplyRewardsExactForFractionalStake(t *testing.T) {
	pending := PendingTrove{
		Raw:      New(d("1"), d("2000")),
		Stake:    d("0.333333333333333333"),
		Snapshot: New(d("0.1"), d("3")),
	}
	total := New(d("0.4"), d("9"))
	got := pending.ApplyRewards(total).Trove
	wantColl := d("1").Add(d("0.3").Mul(pending.Stake))
	wantDebt := d("2000").Add(d("6").Mul(pending.Stake))
	if !got.Collateral.Eq(wantColl) || !got.Debt.Eq(wantDebt) {
		t.Fatalf("expected (%s, %s), got %s", wantColl, wantDebt, got)
	}
}

func TestZeroStakeShortCircuits(t *testing.T) {
	pending := PendingTrove{
		Raw:      New(d("3"), d("2100")),
		Snapshot: New(d("0"), d("0")),
	}
	got := pending.ApplyRewards(New(d("1000000"), d("5000000")))
	if !got.Trove.Equals(pending.Raw) {
		t.Fatalf("expected raw trove unchanged, got %s", got.Trove)
	}
}

func TestPendingTroveRatioRequiresRewards(t *testing.T) {
	pending := PendingTrove{Raw: New(d("10"), d("2000")), Stake: d("1")}
	var unapplied *coreerrors.UnappliedRewardsError

	if _, err := pending.CollateralRatio(d("200")); !errors.As(err, &unapplied) {
		t.Fatalf("expected UnappliedRewardsError, got %v", err)
	}
	if _, err := pending.CollateralRatioIsBelowMinimum(d("200")); !errors.As(err, &unapplied) {
		t.Fatalf("expected UnappliedRewardsError, got %v", err)
	}
	if _, err := pending.Compare(Trove{}, d("200")); !errors.As(err, &unapplied) {
		t.Fatalf("expected UnappliedRewardsError, got %v", err)
	}
}

func TestStatusFromWire(t *testing.T) {
	status, err := StatusFromWire(1)
	if err != nil || status != StatusOpen || status.String() != "open" {
		t.Fatalf("unexpected %v %v", status, err)
	}
	if _, err := StatusFromWire(9); err == nil {
		t.Fatalf("expected unknown status to fail")
	}
}
