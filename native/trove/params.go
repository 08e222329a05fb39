package trove

import "trovekit/core/decimal"

// Protocol parameters mirrored from the deployed contracts. They are fixed at
// deployment, so they live here as package values rather than configuration.
var (
	// MinimumCollateralRatio is the ratio below which a trove can be
	// liquidated in normal mode.
	MinimumCollateralRatio = decimal.MustParse("1.1")
	// CriticalCollateralRatio is the total system ratio below which the
	// system enters recovery mode.
	CriticalCollateralRatio = decimal.MustParse("1.5")
	// LiquidationReserve is the debt minted on creation and returned on
	// closure as gas compensation.
	LiquidationReserve = decimal.New(200)
	// MinimumNetDebt is the smallest debt, excluding the reserve, an open
	// trove may carry.
	MinimumNetDebt = decimal.New(1800)
	// MinimumDebt is MinimumNetDebt plus the reserve.
	MinimumDebt = LiquidationReserve.Add(MinimumNetDebt)
	// MinimumBorrowingRate and MaximumBorrowingRate bound the decaying fee.
	MinimumBorrowingRate = decimal.MustParse("0.005")
	MaximumBorrowingRate = decimal.MustParse("0.05")
)

// BorrowingFee is the one-off fee charged on a debt increase.
func BorrowingFee(debtIncrease, borrowingRate decimal.Decimal) decimal.Decimal {
	return debtIncrease.Mul(borrowingRate)
}

func applyFee(borrowingRate, debtIncrease decimal.Decimal) decimal.Decimal {
	return debtIncrease.Mul(decimal.One.Add(borrowingRate))
}

func unapplyFee(borrowingRate, debtIncrease decimal.Decimal) decimal.Decimal {
	return debtIncrease.DivCeil(decimal.One.Add(borrowingRate))
}

// ClampBorrowingRate bounds a rate to the protocol's fee range.
func ClampBorrowingRate(rate decimal.Decimal) decimal.Decimal {
	return decimal.Min(decimal.Max(rate, MinimumBorrowingRate), MaximumBorrowingRate)
}
