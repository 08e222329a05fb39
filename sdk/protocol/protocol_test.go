package protocol

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"trovekit/core/decimal"
	coreerrors "trovekit/core/errors"
	"trovekit/native/trove"
	"trovekit/sdk/contracts"
	"trovekit/sdk/contracts/contractstest"
	"trovekit/sdk/hints"
	"trovekit/sdk/watch"
)

var (
	owner    = common.HexToAddress("0xb0b")
	stranger = common.HexToAddress("0xca7")
)

func wireOf(s string) *big.Int { return decimal.MustParse(s).Scaled() }

type fixture struct {
	client  *Client
	binding *contracts.Binding
	backend *contractstest.Backend
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	addrs := contractstest.DefaultAddresses()
	backend := contractstest.New(addrs)
	binding, err := contracts.New(backend, addrs)
	require.NoError(t, err)
	hintCfg := hints.DefaultConfig()
	hintCfg.Seed = func() (*big.Int, error) { return big.NewInt(42), nil }
	client, err := New(binding, Config{
		Hints: hintCfg,
		Watch: watch.Config{Window: 20 * time.Millisecond},
	})
	require.NoError(t, err)
	return &fixture{client: client, binding: binding, backend: backend}
}

// market installs the price, the rate and empty redistribution state.
func (f *fixture) market(price, rate string) {
	f.backend.Returns("PriceFeed.lastGoodPrice", wireOf(price))
	f.backend.Returns("TroveManager.getBorrowingRateWithDecay", wireOf(rate))
	f.backend.Returns("TroveManager.L_Collateral", big.NewInt(0))
	f.backend.Returns("TroveManager.L_Debt", big.NewInt(0))
	f.backend.Returns("TroveManager.rewardSnapshots", big.NewInt(0), big.NewInt(0))
	f.backend.Returns("SortedTroves.getSize", big.NewInt(0))
}

func (f *fixture) trove(coll, debt string, status trove.Status) {
	f.backend.Returns("TroveManager.Troves", wireOf(debt), wireOf(coll), wireOf(coll), uint8(status), big.NewInt(0))
}

func TestGetTroveAppliesRewardsAtOneBlock(t *testing.T) {
	f := newFixture(t)
	f.backend.SetBlock(500)
	f.backend.Returns("TroveManager.Troves", wireOf("50"), wireOf("100"), wireOf("2"), uint8(1), big.NewInt(0))
	f.backend.Returns("TroveManager.rewardSnapshots", wireOf("10"), wireOf("5"))
	f.backend.Returns("TroveManager.L_Collateral", wireOf("14"))
	f.backend.Returns("TroveManager.L_Debt", wireOf("7"))

	got, err := f.client.GetTrove(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, owner, got.Owner)
	require.Equal(t, trove.StatusOpen, got.Status)
	require.Equal(t, "108", got.Collateral.String())
	require.Equal(t, "54", got.Debt.String())

	blocks := f.backend.Blocks()
	require.Len(t, blocks, 4)
	for _, block := range blocks {
		require.NotNil(t, block)
		require.Equal(t, int64(500), block.Int64())
	}
}

func TestGetTroveBeforeRedistributionSkipsTotals(t *testing.T) {
	f := newFixture(t)
	f.backend.Returns("TroveManager.Troves", wireOf("50"), wireOf("100"), wireOf("2"), uint8(1), big.NewInt(0))
	f.backend.Returns("TroveManager.rewardSnapshots", wireOf("10"), wireOf("5"))

	pending, err := f.client.GetTroveBeforeRedistribution(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, "100", pending.Raw.Collateral.String())
	require.Equal(t, "10", pending.Snapshot.Collateral.String())
	require.Equal(t, 0, f.backend.Calls("TroveManager.L_Collateral"))

	_, err = pending.CollateralRatio(decimal.New(200))
	var unapplied *coreerrors.UnappliedRewardsError
	require.ErrorAs(t, err, &unapplied)
}

func TestUnknownStatusIsRejected(t *testing.T) {
	f := newFixture(t)
	f.market("200", "0.005")
	f.backend.Returns("TroveManager.Troves", wireOf("50"), wireOf("100"), wireOf("2"), uint8(9), big.NewInt(0))
	_, err := f.client.GetTrove(context.Background(), owner)
	require.Error(t, err)
	require.True(t, coreerrors.IsRemoteRead(err), "got %v", err)
	require.Contains(t, err.Error(), "TroveManager.Troves")
}

func TestGetStabilityDeposit(t *testing.T) {
	f := newFixture(t)
	f.backend.Returns("StabilityPool.deposits", wireOf("100"))
	f.backend.Returns("StabilityPool.depositSnapshots", wireOf("0.1"), wireOf("0.2"))
	f.backend.Returns("StabilityPool.cumulativeGainPerUnit", wireOf("0.3"))
	f.backend.Returns("StabilityPool.cumulativeLossPerUnit", wireOf("1.7"))

	deposit, err := f.client.GetStabilityDeposit(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, "20", deposit.PendingCollateralGain.String())
	require.Equal(t, "100", deposit.PendingDepositLoss.String())
	require.True(t, deposit.DepositAfterLoss().IsZero())
}

func TestScalarGetters(t *testing.T) {
	f := newFixture(t)
	f.market("1850.25", "0.2")
	f.backend.Returns("TroveManager.getTroveOwnersCount", big.NewInt(12))
	f.backend.Returns("TroveManager.getEntireSystemColl", wireOf("300"))
	f.backend.Returns("TroveManager.getEntireSystemDebt", wireOf("150000"))
	f.backend.Returns("StabilityPool.getTotalDeposits", wireOf("90000"))
	ctx := context.Background()

	price, err := f.client.GetPrice(ctx)
	require.NoError(t, err)
	require.Equal(t, "1850.25", price.String())

	count, err := f.client.GetNumberOfTroves(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(12), count)

	total, err := f.client.GetTotal(ctx)
	require.NoError(t, err)
	require.Equal(t, "300", total.Collateral.String())
	require.Equal(t, "150000", total.Debt.String())

	deposits, err := f.client.GetTotalDeposits(ctx)
	require.NoError(t, err)
	require.Equal(t, "90000", deposits.String())

	rate, err := f.client.GetBorrowingRate(ctx)
	require.NoError(t, err)
	require.True(t, rate.Eq(trove.MaximumBorrowingRate), "rate %s should clamp to the maximum", rate)
}

func TestGetterFailures(t *testing.T) {
	f := newFixture(t)
	f.backend.FailBlockNumber(errors.New("dial tcp: refused"))
	_, err := f.client.GetPrice(context.Background())
	require.True(t, coreerrors.IsRemoteRead(err), "got %v", err)

	f.backend.FailBlockNumber(nil)
	f.backend.Fails("TroveManager.getEntireSystemDebt", errors.New("execution reverted"))
	f.backend.Returns("TroveManager.getEntireSystemColl", wireOf("1"))
	_, err = f.client.GetTotal(context.Background())
	require.True(t, coreerrors.IsRemoteRead(err), "got %v", err)

	var nilClient *Client
	_, err = nilClient.GetTrove(context.Background(), owner)
	require.ErrorIs(t, err, errClientClosed)
}

func TestResolveHintUsesAdjacentSample(t *testing.T) {
	f := newFixture(t)
	upper := common.HexToAddress("0xa1")
	sampled := common.HexToAddress("0xa2")
	lower := common.HexToAddress("0xa3")
	ratios := map[common.Address]string{upper: "2", sampled: "1.6", lower: "1.4"}

	f.backend.Returns("PriceFeed.lastGoodPrice", wireOf("200"))
	f.backend.Returns("SortedTroves.getSize", big.NewInt(100))
	f.backend.Returns("HintHelpers.getApproxHint", sampled, wireOf("0.1"), big.NewInt(43))
	f.backend.Returns("SortedTroves.getPrev", upper)
	f.backend.Returns("SortedTroves.getNext", lower)
	f.backend.Handle("TroveManager.getCurrentICR", func(args []any, _ *big.Int) ([]any, error) {
		return []any{wireOf(ratios[args[0].(common.Address)])}, nil
	})

	// 15 collateral against 2000 debt at price 200 is a ratio of 1.5.
	hint, err := f.client.ResolveHint(context.Background(), trove.New(decimal.New(15), decimal.New(2000)), owner)
	require.NoError(t, err)
	require.Equal(t, hints.PathAdjacent, hint.Path)
	require.Equal(t, sampled, hint.Upper)
	require.Equal(t, lower, hint.Lower)
	require.Equal(t, 0, f.backend.Calls("SortedTroves.findInsertPosition"))
}

func TestResolveHintRefinesWhenSampleMisses(t *testing.T) {
	f := newFixture(t)
	sampled := common.HexToAddress("0xa2")
	f.backend.Returns("PriceFeed.lastGoodPrice", wireOf("200"))
	f.backend.Returns("SortedTroves.getSize", big.NewInt(9))
	f.backend.Returns("HintHelpers.getApproxHint", sampled, wireOf("0.4"), big.NewInt(43))
	f.backend.Returns("SortedTroves.getPrev", common.Address{})
	f.backend.Returns("SortedTroves.getNext", common.Address{})
	f.backend.Returns("TroveManager.getCurrentICR", wireOf("1.9"))
	f.backend.Returns("SortedTroves.findInsertPosition", common.HexToAddress("0xb1"), common.HexToAddress("0xb2"))

	hint, err := f.client.ResolveHint(context.Background(), trove.New(decimal.New(15), decimal.New(2000)), owner)
	require.NoError(t, err)
	require.Equal(t, hints.PathRefined, hint.Path)
	require.Equal(t, common.HexToAddress("0xb1"), hint.Upper)
	require.Equal(t, 1, f.backend.Calls("SortedTroves.findInsertPosition"))
	require.Equal(t, 1, f.backend.Calls("TroveManager.getCurrentICR"))
}

func TestPrepareOpenTrove(t *testing.T) {
	f := newFixture(t)
	f.backend.SetBlock(77)
	f.market("200", "0.005")
	f.trove("0", "0", trove.StatusNonExistent)

	params := trove.CreationParams{DepositCollateral: decimal.New(20), BorrowDebt: decimal.New(1800)}
	op, err := f.client.PrepareOpenTrove(context.Background(), owner, params, decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, StagePrepared, op.Stage())

	change := op.Change()
	require.Equal(t, KindOpenTrove, change.Kind)
	require.Equal(t, uint64(77), change.Block)
	require.Equal(t, "2009", change.Trove.After.Debt.String())
	require.Equal(t, "9", change.Trove.Fee.String())
	require.Equal(t, hints.PathFallback, change.Hint.Path)

	call := op.Call()
	require.Equal(t, contractstest.DefaultAddresses().BorrowerOperations, call.To)
	require.Equal(t, 0, call.Value.Cmp(wireOf("20")))
	method := f.binding.ABIs().BorrowerOperations.Methods["openTrove"]
	args, err := method.Inputs.Unpack(call.Data[4:])
	require.NoError(t, err)
	require.Equal(t, 0, args[0].(*big.Int).Cmp(wireOf("0.01")))
	require.Equal(t, 0, args[1].(*big.Int).Cmp(wireOf("1800")))
	require.Equal(t, owner, args[2].(common.Address))
	require.Equal(t, owner, args[3].(common.Address))
}

func TestPrepareOpenTroveRejects(t *testing.T) {
	f := newFixture(t)
	f.market("200", "0.005")
	f.trove("10", "2000", trove.StatusOpen)
	params := trove.CreationParams{DepositCollateral: decimal.New(20), BorrowDebt: decimal.New(1800)}
	_, err := f.client.PrepareOpenTrove(context.Background(), owner, params, decimal.Zero)
	require.ErrorIs(t, err, errTroveExists)

	f.trove("0", "0", trove.StatusClosedByOwner)
	params.BorrowDebt = decimal.New(100)
	_, err = f.client.PrepareOpenTrove(context.Background(), owner, params, decimal.Zero)
	require.Error(t, err)
}

func TestPrepareAdjustAndCloseTrove(t *testing.T) {
	f := newFixture(t)
	f.market("400", "0.005")
	f.trove("10", "2200", trove.StatusOpen)
	ctx := context.Background()

	op, err := f.client.PrepareAdjustTrove(ctx, owner, trove.AdjustmentParams{RepayDebt: decimal.New(100)}, decimal.MustParse("0.02"))
	require.NoError(t, err)
	change := op.Change()
	require.Equal(t, "2100", change.Trove.After.Debt.String())
	require.True(t, change.Trove.Fee.IsZero())
	args, err := f.binding.ABIs().BorrowerOperations.Methods["adjustTrove"].Inputs.Unpack(op.Call().Data[4:])
	require.NoError(t, err)
	require.Equal(t, 0, args[0].(*big.Int).Cmp(wireOf("0.02")))
	require.Equal(t, 0, args[2].(*big.Int).Cmp(wireOf("100")))
	require.False(t, args[3].(bool))

	_, err = f.client.PrepareAdjustTrove(ctx, owner, trove.AdjustmentParams{}, decimal.Zero)
	require.ErrorIs(t, err, coreerrors.ErrNoChange)

	closing, err := f.client.PrepareCloseTrove(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, KindCloseTrove, closing.Change().Kind)
	require.Equal(t, "2000", closing.Change().Closure.RepayDebt.String())
	require.True(t, closing.Change().Trove.After.IsEmpty())

	f.trove("0", "0", trove.StatusClosedByLiquidation)
	_, err = f.client.PrepareCloseTrove(ctx, owner)
	require.ErrorIs(t, err, errNoOpenTrove)
}

func TestPrepareStabilityDepositChange(t *testing.T) {
	f := newFixture(t)
	f.backend.Returns("StabilityPool.deposits", wireOf("100"))
	f.backend.Returns("StabilityPool.depositSnapshots", wireOf("0"), wireOf("0"))
	f.backend.Returns("StabilityPool.cumulativeGainPerUnit", wireOf("0"))
	f.backend.Returns("StabilityPool.cumulativeLossPerUnit", wireOf("0"))
	ctx := context.Background()
	pool := f.binding.ABIs().StabilityPool

	provide, err := f.client.PrepareStabilityDepositChange(ctx, owner, decimal.New(150))
	require.NoError(t, err)
	require.Equal(t, KindProvideDeposit, provide.Change().Kind)
	args, err := pool.Methods["provideToSP"].Inputs.Unpack(provide.Call().Data[4:])
	require.NoError(t, err)
	require.Equal(t, 0, args[0].(*big.Int).Cmp(wireOf("50")))
	require.Equal(t, "150", provide.Change().Deposit.After.Deposit.String())

	withdraw, err := f.client.PrepareStabilityDepositChange(ctx, owner, decimal.New(40))
	require.NoError(t, err)
	require.Equal(t, KindWithdrawDeposit, withdraw.Change().Kind)
	args, err = pool.Methods["withdrawFromSP"].Inputs.Unpack(withdraw.Call().Data[4:])
	require.NoError(t, err)
	require.Equal(t, 0, args[0].(*big.Int).Cmp(wireOf("60")))

	_, err = f.client.PrepareStabilityDepositChange(ctx, owner, decimal.New(100))
	require.ErrorIs(t, err, coreerrors.ErrNoChange)
	_, err = f.client.PrepareStabilityDepositChange(ctx, owner, decimal.New(-1))
	require.ErrorIs(t, err, errNegativeTarget)
}

func TestWatchTroveCoalescesOwnerEvents(t *testing.T) {
	f := newFixture(t)
	f.market("200", "0.005")
	f.trove("10", "2000", trove.StatusOpen)
	addrs := contractstest.DefaultAddresses()

	updates := make(chan trove.UserTrove, 4)
	sub, err := f.client.WatchTrove(context.Background(), owner, func(u trove.UserTrove) { updates <- u })
	require.NoError(t, err)
	require.Equal(t, 2, f.backend.ActiveSubscriptions())

	require.Equal(t, 0, f.backend.Emit(f.backend.EventLog(addrs.TroveManager, "TroveUpdated", 6, &stranger)))
	for _, block := range []uint64{7, 9, 8} {
		require.Equal(t, 1, f.backend.Emit(f.backend.EventLog(addrs.TroveManager, "TroveUpdated", block, &owner)))
	}

	select {
	case got := <-updates:
		require.Equal(t, "10", got.Collateral.String())
	case <-time.After(2 * time.Second):
		t.Fatal("watch never fired")
	}
	require.Equal(t, 1, f.backend.Calls("TroveManager.Troves"))
	var pinnedAt []int64
	for _, block := range f.backend.Blocks() {
		if block != nil {
			pinnedAt = append(pinnedAt, block.Int64())
		}
	}
	require.Contains(t, pinnedAt, int64(9))
	require.NotContains(t, pinnedAt, int64(7))

	sub.Unsubscribe()
	require.Equal(t, 0, f.backend.ActiveSubscriptions())
}

func TestWatchPriceStopsAfterUnsubscribe(t *testing.T) {
	f := newFixture(t)
	f.market("200", "0.005")
	addrs := contractstest.DefaultAddresses()

	prices := make(chan decimal.Decimal, 4)
	sub, err := f.client.WatchPrice(context.Background(), func(p decimal.Decimal) { prices <- p })
	require.NoError(t, err)
	sub.Unsubscribe()

	require.Equal(t, 0, f.backend.Emit(f.backend.EventLog(addrs.PriceFeed, "LastGoodPriceUpdated", 3, nil)))
	time.Sleep(60 * time.Millisecond)
	require.Empty(t, prices)
	require.Equal(t, 0, f.backend.Calls("PriceFeed.lastGoodPrice"))
}

type stubSender struct {
	hash  common.Hash
	err   error
	calls int
}

func (s *stubSender) Send(context.Context, contracts.Call) (common.Hash, error) {
	s.calls++
	return s.hash, s.err
}

type stubReceipts struct {
	misses  int
	receipt *gethtypes.Receipt
}

func (s *stubReceipts) TransactionReceipt(context.Context, common.Hash) (*gethtypes.Receipt, error) {
	if s.misses > 0 {
		s.misses--
		return nil, ethereum.NotFound
	}
	return s.receipt, nil
}

func TestOperationStages(t *testing.T) {
	op := newOperation(Change{Kind: KindCloseTrove, Owner: owner}, contracts.Call{})
	ctx := context.Background()
	waiter := ReceiptWaiter{
		Client:   &stubReceipts{misses: 2, receipt: &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(88), GasUsed: 21000}},
		Interval: time.Millisecond,
	}

	_, err := op.Resolve(ctx, waiter)
	require.ErrorIs(t, err, coreerrors.ErrInvalidStage)

	failing := &stubSender{err: errors.New("nonce too low")}
	_, err = op.Submit(ctx, failing)
	require.Error(t, err)
	require.Equal(t, StagePrepared, op.Stage())

	sender := &stubSender{hash: common.HexToHash("0xfeed")}
	hash, err := op.Submit(ctx, sender)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0xfeed"), hash)
	require.Equal(t, StageSubmitted, op.Stage())

	_, err = op.Submit(ctx, sender)
	require.ErrorIs(t, err, coreerrors.ErrInvalidStage)
	require.Equal(t, 1, sender.calls)

	receipt, err := op.Resolve(ctx, waiter)
	require.NoError(t, err)
	require.True(t, receipt.Succeeded)
	require.Equal(t, uint64(88), receipt.BlockNumber)
	require.Equal(t, StageResolved, op.Stage())

	_, err = op.Resolve(ctx, waiter)
	require.ErrorIs(t, err, coreerrors.ErrInvalidStage)
	stored, ok := op.Receipt()
	require.True(t, ok)
	require.Equal(t, receipt, stored)
}

func TestReceiptWaiterHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	waiter := ReceiptWaiter{Client: &stubReceipts{misses: 1 << 30}, Interval: 5 * time.Millisecond}
	_, err := waiter.WaitMined(ctx, common.HexToHash("0x01"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type blockingWaiter struct {
	entered chan struct{}
	release chan struct{}
}

func (w *blockingWaiter) WaitMined(ctx context.Context, _ common.Hash) (*gethtypes.Receipt, error) {
	close(w.entered)
	select {
	case <-w.release:
		return &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(9)}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestOperationStaysReadableWhileResolving(t *testing.T) {
	op := newOperation(Change{Kind: KindCloseTrove, Owner: owner}, contracts.Call{})
	ctx := context.Background()
	_, err := op.Submit(ctx, &stubSender{hash: common.HexToHash("0xbeef")})
	require.NoError(t, err)

	waiter := &blockingWaiter{entered: make(chan struct{}), release: make(chan struct{})}
	done := make(chan error, 1)
	go func() {
		_, err := op.Resolve(ctx, waiter)
		done <- err
	}()
	<-waiter.entered

	read := make(chan Stage, 1)
	go func() { read <- op.Stage() }()
	select {
	case stage := <-read:
		require.Equal(t, StageSubmitted, stage)
	case <-time.After(time.Second):
		t.Fatalf("Stage blocked while Resolve was waiting")
	}
	require.Equal(t, common.HexToHash("0xbeef"), op.TxHash())
	_, ok := op.Receipt()
	require.False(t, ok)

	_, err = op.Resolve(ctx, waiter)
	require.ErrorIs(t, err, coreerrors.ErrInvalidStage)

	close(waiter.release)
	require.NoError(t, <-done)
	require.Equal(t, StageResolved, op.Stage())
}
