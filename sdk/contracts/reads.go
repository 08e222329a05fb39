package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"trovekit/core/decimal"
)

// TroveRecord is the raw Troves(owner) storage struct.
type TroveRecord struct {
	Debt       decimal.Decimal
	Collateral decimal.Decimal
	Stake      decimal.Decimal
	Status     uint8
	ArrayIndex *big.Int
}

// SnapshotPair is a two-component snapshot read.
type SnapshotPair struct {
	First  decimal.Decimal
	Second decimal.Decimal
}

// ApproxHint is the raw getApproxHint result.
type ApproxHint struct {
	Hint       common.Address
	Diff       decimal.Decimal
	LatestSeed *big.Int
}

func (b *Binding) troveManager(ctx context.Context, block *big.Int, method string, args ...any) (decimal.Decimal, error) {
	return b.callDecimal(ctx, "TroveManager", b.addrs.TroveManager, b.abis.TroveManager, block, method, args...)
}

func (b *Binding) stabilityPool(ctx context.Context, block *big.Int, method string, args ...any) (decimal.Decimal, error) {
	return b.callDecimal(ctx, "StabilityPool", b.addrs.StabilityPool, b.abis.StabilityPool, block, method, args...)
}

// LastGoodPrice reads the price feed.
func (b *Binding) LastGoodPrice(ctx context.Context, block *big.Int) (decimal.Decimal, error) {
	if b == nil {
		return decimal.Zero, errNotInitialised
	}
	return b.callDecimal(ctx, "PriceFeed", b.addrs.PriceFeed, b.abis.PriceFeed, block, "lastGoodPrice")
}

// TroveOwnersCount returns the number of open troves.
func (b *Binding) TroveOwnersCount(ctx context.Context, block *big.Int) (uint64, error) {
	if b == nil {
		return 0, errNotInitialised
	}
	values, err := b.call(ctx, "TroveManager", b.addrs.TroveManager, b.abis.TroveManager, block, "getTroveOwnersCount")
	if err != nil {
		return 0, err
	}
	return decodeUint64("TroveManager.getTroveOwnersCount", values, 0)
}

// EntireSystemCollateral and EntireSystemDebt read the system totals.
func (b *Binding) EntireSystemCollateral(ctx context.Context, block *big.Int) (decimal.Decimal, error) {
	if b == nil {
		return decimal.Zero, errNotInitialised
	}
	return b.troveManager(ctx, block, "getEntireSystemColl")
}

func (b *Binding) EntireSystemDebt(ctx context.Context, block *big.Int) (decimal.Decimal, error) {
	if b == nil {
		return decimal.Zero, errNotInitialised
	}
	return b.troveManager(ctx, block, "getEntireSystemDebt")
}

// RedistributedCollateral and RedistributedDebt read the L terms.
func (b *Binding) RedistributedCollateral(ctx context.Context, block *big.Int) (decimal.Decimal, error) {
	if b == nil {
		return decimal.Zero, errNotInitialised
	}
	return b.troveManager(ctx, block, "L_Collateral")
}

func (b *Binding) RedistributedDebt(ctx context.Context, block *big.Int) (decimal.Decimal, error) {
	if b == nil {
		return decimal.Zero, errNotInitialised
	}
	return b.troveManager(ctx, block, "L_Debt")
}

// BorrowingRate reads the decayed borrowing rate.
func (b *Binding) BorrowingRate(ctx context.Context, block *big.Int) (decimal.Decimal, error) {
	if b == nil {
		return decimal.Zero, errNotInitialised
	}
	return b.troveManager(ctx, block, "getBorrowingRateWithDecay")
}

// CurrentICR returns the contract's view of owner's ratio with pending
// rewards applied.
func (b *Binding) CurrentICR(ctx context.Context, owner common.Address, price decimal.Decimal, block *big.Int) (decimal.Decimal, error) {
	if b == nil {
		return decimal.Zero, errNotInitialised
	}
	wirePrice, err := wire(price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("contracts: price: %w", err)
	}
	return b.troveManager(ctx, block, "getCurrentICR", owner, wirePrice)
}

// Trove reads the Troves(owner) record.
func (b *Binding) Trove(ctx context.Context, owner common.Address, block *big.Int) (TroveRecord, error) {
	if b == nil {
		return TroveRecord{}, errNotInitialised
	}
	const op = "TroveManager.Troves"
	values, err := b.call(ctx, "TroveManager", b.addrs.TroveManager, b.abis.TroveManager, block, "Troves", owner)
	if err != nil {
		return TroveRecord{}, err
	}
	var record TroveRecord
	if record.Debt, err = decodeDecimal(op, values, 0); err != nil {
		return TroveRecord{}, err
	}
	if record.Collateral, err = decodeDecimal(op, values, 1); err != nil {
		return TroveRecord{}, err
	}
	if record.Stake, err = decodeDecimal(op, values, 2); err != nil {
		return TroveRecord{}, err
	}
	if len(values) < 5 {
		return TroveRecord{}, malformed(op, fmt.Sprintf("got %d outputs, want 5", len(values)))
	}
	status, ok := values[3].(uint8)
	if !ok {
		return TroveRecord{}, malformed(op, fmt.Sprintf("status is %T", values[3]))
	}
	record.Status = status
	if record.ArrayIndex, err = decodeBig(op, values, 4); err != nil {
		return TroveRecord{}, err
	}
	return record, nil
}

// RewardSnapshots reads the L terms recorded at owner's last touch.
func (b *Binding) RewardSnapshots(ctx context.Context, owner common.Address, block *big.Int) (SnapshotPair, error) {
	if b == nil {
		return SnapshotPair{}, errNotInitialised
	}
	values, err := b.call(ctx, "TroveManager", b.addrs.TroveManager, b.abis.TroveManager, block, "rewardSnapshots", owner)
	if err != nil {
		return SnapshotPair{}, err
	}
	return decodePair("TroveManager.rewardSnapshots", values)
}

// SortedTrovesSize returns the list length.
func (b *Binding) SortedTrovesSize(ctx context.Context, block *big.Int) (uint64, error) {
	if b == nil {
		return 0, errNotInitialised
	}
	values, err := b.call(ctx, "SortedTroves", b.addrs.SortedTroves, b.abis.SortedTroves, block, "getSize")
	if err != nil {
		return 0, err
	}
	return decodeUint64("SortedTroves.getSize", values, 0)
}

func (b *Binding) First(ctx context.Context, block *big.Int) (common.Address, error) {
	if b == nil {
		return common.Address{}, errNotInitialised
	}
	return b.callAddress(ctx, block, "getFirst")
}

func (b *Binding) Last(ctx context.Context, block *big.Int) (common.Address, error) {
	if b == nil {
		return common.Address{}, errNotInitialised
	}
	return b.callAddress(ctx, block, "getLast")
}

// Next returns the successor of id; the zero address marks the tail.
func (b *Binding) Next(ctx context.Context, id common.Address, block *big.Int) (common.Address, error) {
	if b == nil {
		return common.Address{}, errNotInitialised
	}
	return b.callAddress(ctx, block, "getNext", id)
}

func (b *Binding) Prev(ctx context.Context, id common.Address, block *big.Int) (common.Address, error) {
	if b == nil {
		return common.Address{}, errNotInitialised
	}
	return b.callAddress(ctx, block, "getPrev", id)
}

// FindInsertPosition asks the list for the exact neighbours of icr starting
// from prev and next.
func (b *Binding) FindInsertPosition(ctx context.Context, icr, price decimal.Decimal, prev, next common.Address) (common.Address, common.Address, error) {
	if b == nil {
		return common.Address{}, common.Address{}, errNotInitialised
	}
	const op = "SortedTroves.findInsertPosition"
	wireICR, err := wire(icr)
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("contracts: ratio: %w", err)
	}
	wirePrice, err := wire(price)
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("contracts: price: %w", err)
	}
	values, err := b.call(ctx, "SortedTroves", b.addrs.SortedTroves, b.abis.SortedTroves, nil, "findInsertPosition", wireICR, wirePrice, prev, next)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	upper, err := decodeAddress(op, values, 0)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	lower, err := decodeAddress(op, values, 1)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return upper, lower, nil
}

// GetApproxHint samples trials random troves and returns the one whose
// ratio is closest to cr.
func (b *Binding) GetApproxHint(ctx context.Context, cr, price decimal.Decimal, trials uint64, seed *big.Int) (ApproxHint, error) {
	if b == nil {
		return ApproxHint{}, errNotInitialised
	}
	const op = "HintHelpers.getApproxHint"
	wireCR, err := wire(cr)
	if err != nil {
		return ApproxHint{}, fmt.Errorf("contracts: ratio: %w", err)
	}
	wirePrice, err := wire(price)
	if err != nil {
		return ApproxHint{}, fmt.Errorf("contracts: price: %w", err)
	}
	if seed == nil {
		seed = new(big.Int)
	}
	values, err := b.call(ctx, "HintHelpers", b.addrs.HintHelpers, b.abis.HintHelpers, nil, "getApproxHint",
		wireCR, new(big.Int).SetUint64(trials), wirePrice, seed)
	if err != nil {
		return ApproxHint{}, err
	}
	var out ApproxHint
	if out.Hint, err = decodeAddress(op, values, 0); err != nil {
		return ApproxHint{}, err
	}
	if out.Diff, err = decodeDecimal(op, values, 1); err != nil {
		return ApproxHint{}, err
	}
	if out.LatestSeed, err = decodeBig(op, values, 2); err != nil {
		return ApproxHint{}, err
	}
	return out, nil
}

// StabilityDeposit reads the depositor's recorded deposit.
func (b *Binding) StabilityDeposit(ctx context.Context, owner common.Address, block *big.Int) (decimal.Decimal, error) {
	if b == nil {
		return decimal.Zero, errNotInitialised
	}
	return b.stabilityPool(ctx, block, "deposits", owner)
}

// DepositSnapshots reads the accumulators recorded at the depositor's last
// change: gain per unit first, loss per unit second.
func (b *Binding) DepositSnapshots(ctx context.Context, owner common.Address, block *big.Int) (SnapshotPair, error) {
	if b == nil {
		return SnapshotPair{}, errNotInitialised
	}
	values, err := b.call(ctx, "StabilityPool", b.addrs.StabilityPool, b.abis.StabilityPool, block, "depositSnapshots", owner)
	if err != nil {
		return SnapshotPair{}, err
	}
	return decodePair("StabilityPool.depositSnapshots", values)
}

func (b *Binding) CumulativeGainPerUnit(ctx context.Context, block *big.Int) (decimal.Decimal, error) {
	if b == nil {
		return decimal.Zero, errNotInitialised
	}
	return b.stabilityPool(ctx, block, "cumulativeGainPerUnit")
}

func (b *Binding) CumulativeLossPerUnit(ctx context.Context, block *big.Int) (decimal.Decimal, error) {
	if b == nil {
		return decimal.Zero, errNotInitialised
	}
	return b.stabilityPool(ctx, block, "cumulativeLossPerUnit")
}

func (b *Binding) TotalDeposits(ctx context.Context, block *big.Int) (decimal.Decimal, error) {
	if b == nil {
		return decimal.Zero, errNotInitialised
	}
	return b.stabilityPool(ctx, block, "getTotalDeposits")
}

func decodePair(op string, values []any) (SnapshotPair, error) {
	first, err := decodeDecimal(op, values, 0)
	if err != nil {
		return SnapshotPair{}, err
	}
	second, err := decodeDecimal(op, values, 1)
	if err != nil {
		return SnapshotPair{}, err
	}
	return SnapshotPair{First: first, Second: second}, nil
}
