package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"trovekit/core/decimal"
)

// Call is an unsigned contract invocation ready to be signed and broadcast.
type Call struct {
	To    common.Address `json:"to"`
	Data  []byte         `json:"data"`
	Value *big.Int       `json:"value"`
}

func (b *Binding) packCall(to common.Address, parsed func() ([]byte, error), value decimal.Decimal) (Call, error) {
	data, err := parsed()
	if err != nil {
		return Call{}, err
	}
	wireValue, err := wire(value)
	if err != nil {
		return Call{}, fmt.Errorf("contracts: call value: %w", err)
	}
	return Call{To: to, Data: data, Value: wireValue}, nil
}

// OpenTrove encodes BorrowerOperations.openTrove with the collateral as the
// call value.
func (b *Binding) OpenTrove(maxFee, collateral, debt decimal.Decimal, upper, lower common.Address) (Call, error) {
	if b == nil {
		return Call{}, errNotInitialised
	}
	return b.packCall(b.addrs.BorrowerOperations, func() ([]byte, error) {
		wireFee, err := wire(maxFee)
		if err != nil {
			return nil, fmt.Errorf("contracts: max fee: %w", err)
		}
		wireDebt, err := wire(debt)
		if err != nil {
			return nil, fmt.Errorf("contracts: debt: %w", err)
		}
		return b.abis.BorrowerOperations.Pack("openTrove", wireFee, wireDebt, upper, lower)
	}, collateral)
}

// AdjustTrove encodes BorrowerOperations.adjustTrove. A deposit travels as
// the call value; a withdrawal as an argument.
func (b *Binding) AdjustTrove(maxFee, deposit, withdrawal, debtChange decimal.Decimal, isDebtIncrease bool, upper, lower common.Address) (Call, error) {
	if b == nil {
		return Call{}, errNotInitialised
	}
	return b.packCall(b.addrs.BorrowerOperations, func() ([]byte, error) {
		args := make([]*big.Int, 0, 3)
		for _, amount := range []decimal.Decimal{maxFee, withdrawal, debtChange} {
			value, err := wire(amount)
			if err != nil {
				return nil, fmt.Errorf("contracts: adjust amount: %w", err)
			}
			args = append(args, value)
		}
		return b.abis.BorrowerOperations.Pack("adjustTrove", args[0], args[1], args[2], isDebtIncrease, upper, lower)
	}, deposit)
}

// CloseTrove encodes BorrowerOperations.closeTrove.
func (b *Binding) CloseTrove() (Call, error) {
	if b == nil {
		return Call{}, errNotInitialised
	}
	return b.packCall(b.addrs.BorrowerOperations, func() ([]byte, error) {
		return b.abis.BorrowerOperations.Pack("closeTrove")
	}, decimal.Zero)
}

// ProvideToStabilityPool and WithdrawFromStabilityPool encode deposit changes.
func (b *Binding) ProvideToStabilityPool(amount decimal.Decimal) (Call, error) {
	return b.stabilityCall("provideToSP", amount)
}

func (b *Binding) WithdrawFromStabilityPool(amount decimal.Decimal) (Call, error) {
	return b.stabilityCall("withdrawFromSP", amount)
}

func (b *Binding) stabilityCall(method string, amount decimal.Decimal) (Call, error) {
	if b == nil {
		return Call{}, errNotInitialised
	}
	return b.packCall(b.addrs.StabilityPool, func() ([]byte, error) {
		value, err := wire(amount)
		if err != nil {
			return nil, fmt.Errorf("contracts: %s amount: %w", method, err)
		}
		return b.abis.StabilityPool.Pack(method, value)
	}, decimal.Zero)
}
