package trove

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	coreerrors "trovekit/core/errors"
)

func TestCreateAddsReserveAndFee(t *testing.T) {
	created := Create(CreationParams{DepositCollateral: d("10"), BorrowDebt: d("2000")}, d("0.005"))
	require.True(t, created.Collateral.Eq(d("10")))
	require.True(t, created.Debt.Eq(d("2210")), created.Debt.String())
	require.True(t, BorrowingFee(d("2000"), d("0.005")).Eq(d("10")))
}

func TestCreationValidate(t *testing.T) {
	rate := d("0.005")
	price := d("200")

	ok := CreationParams{DepositCollateral: d("20"), BorrowDebt: d("1800")}
	require.NoError(t, ok.Validate(rate, price))

	small := CreationParams{DepositCollateral: d("10"), BorrowDebt: d("1000")}
	require.ErrorIs(t, small.Validate(rate, price), errNetDebtTooLow)

	undercollateralised := CreationParams{DepositCollateral: d("1"), BorrowDebt: d("1800")}
	require.ErrorIs(t, undercollateralised.Validate(rate, price), errRatioTooLow)
	require.NoError(t, undercollateralised.Validate(rate, d("0")))

	require.ErrorIs(t, CreationParams{BorrowDebt: d("2000")}.Validate(rate, price), errNoCollateral)
}

func TestCreationForInvertsCreate(t *testing.T) {
	rate := d("0.005")
	target := New(d("10"), d("3000"))
	params, err := CreationFor(target, rate)
	require.NoError(t, err)
	require.True(t, Create(params, rate).Equals(target), Create(params, rate).String())

	_, err = CreationFor(Trove{}, rate)
	require.ErrorIs(t, err, coreerrors.ErrNoChange)
}

func TestAdjustmentValidate(t *testing.T) {
	require.ErrorIs(t, AdjustmentParams{}.Validate(), coreerrors.ErrNoChange)
	require.ErrorIs(t, AdjustmentParams{DepositCollateral: d("1"), WithdrawCollateral: d("1")}.Validate(), errDepositAndWithdraw)
	require.ErrorIs(t, AdjustmentParams{BorrowDebt: d("1"), RepayDebt: d("1")}.Validate(), errBorrowAndRepay)
	require.NoError(t, AdjustmentParams{DepositCollateral: d("1"), RepayDebt: d("1")}.Validate())
}

func TestAdjustChargesFeeOnBorrow(t *testing.T) {
	current := New(d("10"), d("2200"))
	adjusted := current.Adjust(AdjustmentParams{WithdrawCollateral: d("2"), BorrowDebt: d("1000")}, d("0.01"))
	require.True(t, adjusted.Equals(New(d("8"), d("3210"))), adjusted.String())
}

func TestValidateAdjustment(t *testing.T) {
	current := New(d("10"), d("2200"))
	rate := d("0.005")
	price := d("400")

	require.ErrorIs(t, current.ValidateAdjustment(AdjustmentParams{WithdrawCollateral: d("11")}, rate, price), errWithdrawExceedsColl)
	require.ErrorIs(t, current.ValidateAdjustment(AdjustmentParams{RepayDebt: d("2100")}, rate, price), errRepayExceedsDebt)
	require.ErrorIs(t, current.ValidateAdjustment(AdjustmentParams{RepayDebt: d("500")}, rate, price), errNetDebtTooLow)
	require.ErrorIs(t, current.ValidateAdjustment(AdjustmentParams{WithdrawCollateral: d("9")}, rate, price), errRatioTooLow)
	require.NoError(t, current.ValidateAdjustment(AdjustmentParams{DepositCollateral: d("1")}, rate, price))
}

func TestAdjustToRoundTrips(t *testing.T) {
	rate := d("0.005")
	current := New(d("10"), d("2200"))
	target := New(d("12"), d("3000"))

	params, err := current.AdjustTo(target, rate)
	require.NoError(t, err)
	require.True(t, params.DepositCollateral.Eq(d("2")))
	require.True(t, params.BorrowDebt.Eq(d("796.019900497512437811")), params.BorrowDebt.String())
	require.True(t, current.Adjust(params, rate).Equals(target))

	down := New(d("9"), d("2100"))
	params, err = current.AdjustTo(down, rate)
	require.NoError(t, err)
	require.True(t, params.WithdrawCollateral.Eq(d("1")))
	require.True(t, params.RepayDebt.Eq(d("100")))
	require.True(t, current.Adjust(params, rate).Equals(down))
}

func TestAdjustToRejectsDegenerateTargets(t *testing.T) {
	rate := d("0.005")
	current := New(d("10"), d("2200"))

	_, err := current.AdjustTo(current, rate)
	require.True(t, errors.Is(err, coreerrors.ErrNoChange))
	_, err = current.AdjustTo(Trove{}, rate)
	require.ErrorIs(t, err, errClosedTarget)
	_, err = Trove{}.AdjustTo(current, rate)
	require.ErrorIs(t, err, errEmptyOrigin)
}

func TestClose(t *testing.T) {
	closure := New(d("10"), d("2200")).Close()
	require.True(t, closure.WithdrawCollateral.Eq(d("10")))
	require.True(t, closure.RepayDebt.Eq(d("2000")))
}

func TestClampBorrowingRate(t *testing.T) {
	require.True(t, ClampBorrowingRate(d("0.001")).Eq(MinimumBorrowingRate))
	require.True(t, ClampBorrowingRate(d("0.2")).Eq(MaximumBorrowingRate))
	require.True(t, ClampBorrowingRate(d("0.01")).Eq(d("0.01")))
}
