package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"trovekit/core/decimal"
	coreerrors "trovekit/core/errors"
	"trovekit/native/stability"
	"trovekit/native/trove"
	"trovekit/sdk/contracts"
	"trovekit/sdk/hints"
)

// DefaultFeeSlippage is added to the current borrowing rate when no maximum
// fee is given.
var DefaultFeeSlippage = decimal.MustParse("0.005")

var (
	errTroveExists    = errors.New("protocol: owner already has an open trove")
	errNoOpenTrove    = errors.New("protocol: owner has no open trove")
	errNegativeTarget = errors.New("protocol: target deposit must not be negative")
)

// Kind names the state-changing call an Operation makes.
type Kind string

const (
	KindOpenTrove       Kind = "openTrove"
	KindAdjustTrove     Kind = "adjustTrove"
	KindCloseTrove      Kind = "closeTrove"
	KindProvideDeposit  Kind = "provideToStabilityPool"
	KindWithdrawDeposit Kind = "withdrawFromStabilityPool"
)

// TroveChange is the before and after of a trove operation.
type TroveChange struct {
	Before trove.Trove     `json:"before"`
	After  trove.Trove     `json:"after"`
	Delta  trove.Delta     `json:"delta"`
	Fee    decimal.Decimal `json:"fee"`
}

// DepositChange is the before and after of a stability deposit operation.
type DepositChange struct {
	Before stability.Deposit  `json:"before"`
	After  stability.Deposit  `json:"after"`
	Change decimal.Difference `json:"change"`
}

// Change describes what an Operation will do, as computed at Block.
type Change struct {
	Kind    Kind                 `json:"kind"`
	Owner   common.Address       `json:"owner"`
	Block   uint64               `json:"block"`
	Price   decimal.Decimal      `json:"price"`
	Trove   *TroveChange         `json:"trove,omitempty"`
	Closure *trove.ClosureParams `json:"closure,omitempty"`
	Deposit *DepositChange       `json:"deposit,omitempty"`
	Hint    *hints.Hint          `json:"hint,omitempty"`
}

type troveState struct {
	block   *big.Int
	price   decimal.Decimal
	rate    decimal.Decimal
	current trove.UserTrove
}

func (c *Client) troveState(ctx context.Context, owner common.Address) (troveState, error) {
	block, err := c.pin(ctx)
	if err != nil {
		return troveState{}, err
	}
	state := troveState{block: block}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		state.price, err = c.priceAt(gctx, block)
		return err
	})
	g.Go(func() (err error) {
		state.rate, err = c.borrowingRateAt(gctx, block)
		return err
	})
	g.Go(func() (err error) {
		state.current, err = c.troveAt(gctx, owner, block)
		return err
	})
	if err := g.Wait(); err != nil {
		return troveState{}, err
	}
	return state, nil
}

func maxFeeOrDefault(maxFee, rate decimal.Decimal) decimal.Decimal {
	if !maxFee.IsZero() {
		return maxFee
	}
	return decimal.Min(rate.Add(DefaultFeeSlippage), decimal.One)
}

func (c *Client) hintFor(ctx context.Context, after trove.Trove, price decimal.Decimal, owner common.Address) (hints.Hint, error) {
	return c.resolver.Resolve(ctx, hints.Target{Ratio: after.CollateralRatio(price), Price: price}, owner)
}

// PrepareOpenTrove validates params against the current price and borrowing
// rate and returns the openTrove call with its insertion hint.
func (c *Client) PrepareOpenTrove(ctx context.Context, owner common.Address, params trove.CreationParams, maxFee decimal.Decimal) (op *Operation, err error) {
	if c == nil {
		return nil, errClientClosed
	}
	ctx, span := c.startSpan(ctx, "protocol.PrepareOpenTrove", attribute.String("owner", owner.Hex()))
	defer func() { endSpan(span, err) }()

	state, err := c.troveState(ctx, owner)
	if err != nil {
		return nil, err
	}
	if state.current.Status.IsOpen() {
		return nil, errTroveExists
	}
	if err := params.Validate(state.rate, state.price); err != nil {
		return nil, err
	}
	after := trove.Create(params, state.rate)
	hint, err := c.hintFor(ctx, after, state.price, owner)
	if err != nil {
		return nil, err
	}
	call, err := c.binding.OpenTrove(maxFeeOrDefault(maxFee, state.rate), params.DepositCollateral, params.BorrowDebt, hint.Upper, hint.Lower)
	if err != nil {
		return nil, err
	}
	return c.prepared(Change{
		Kind:  KindOpenTrove,
		Owner: owner,
		Block: state.block.Uint64(),
		Price: state.price,
		Trove: &TroveChange{
			After: after,
			Delta: trove.Trove{}.WhatChanged(after),
			Fee:   trove.BorrowingFee(params.BorrowDebt, state.rate),
		},
		Hint: &hint,
	}, call), nil
}

// PrepareAdjustTrove validates params against owner's current trove and
// returns the adjustTrove call with an insertion hint for the new ratio.
func (c *Client) PrepareAdjustTrove(ctx context.Context, owner common.Address, params trove.AdjustmentParams, maxFee decimal.Decimal) (op *Operation, err error) {
	if c == nil {
		return nil, errClientClosed
	}
	ctx, span := c.startSpan(ctx, "protocol.PrepareAdjustTrove", attribute.String("owner", owner.Hex()))
	defer func() { endSpan(span, err) }()

	state, err := c.troveState(ctx, owner)
	if err != nil {
		return nil, err
	}
	if !state.current.Status.IsOpen() {
		return nil, errNoOpenTrove
	}
	before := state.current.Trove
	if err := before.ValidateAdjustment(params, state.rate, state.price); err != nil {
		return nil, err
	}
	after := before.Adjust(params, state.rate)
	hint, err := c.hintFor(ctx, after, state.price, owner)
	if err != nil {
		return nil, err
	}
	debtChange, increase := params.RepayDebt, false
	if !params.BorrowDebt.IsZero() {
		debtChange, increase = params.BorrowDebt, true
	}
	call, err := c.binding.AdjustTrove(maxFeeOrDefault(maxFee, state.rate), params.DepositCollateral, params.WithdrawCollateral,
		debtChange, increase, hint.Upper, hint.Lower)
	if err != nil {
		return nil, err
	}
	return c.prepared(Change{
		Kind:  KindAdjustTrove,
		Owner: owner,
		Block: state.block.Uint64(),
		Price: state.price,
		Trove: &TroveChange{
			Before: before,
			After:  after,
			Delta:  before.WhatChanged(after),
			Fee:    trove.BorrowingFee(params.BorrowDebt, state.rate),
		},
		Hint: &hint,
	}, call), nil
}

// PrepareCloseTrove returns the closeTrove call for owner's open trove.
func (c *Client) PrepareCloseTrove(ctx context.Context, owner common.Address) (op *Operation, err error) {
	if c == nil {
		return nil, errClientClosed
	}
	ctx, span := c.startSpan(ctx, "protocol.PrepareCloseTrove", attribute.String("owner", owner.Hex()))
	defer func() { endSpan(span, err) }()

	state, err := c.troveState(ctx, owner)
	if err != nil {
		return nil, err
	}
	if !state.current.Status.IsOpen() {
		return nil, errNoOpenTrove
	}
	before := state.current.Trove
	closure := before.Close()
	// Repaying the net debt releases the reserve, leaving nothing behind.
	after := trove.Trove{}
	call, err := c.binding.CloseTrove()
	if err != nil {
		return nil, err
	}
	return c.prepared(Change{
		Kind:    KindCloseTrove,
		Owner:   owner,
		Block:   state.block.Uint64(),
		Price:   state.price,
		Trove:   &TroveChange{Before: before, After: after, Delta: before.WhatChanged(after)},
		Closure: &closure,
	}, call), nil
}

// PrepareStabilityDepositChange returns the call that moves owner's deposit,
// after pending loss, to target.
func (c *Client) PrepareStabilityDepositChange(ctx context.Context, owner common.Address, target decimal.Decimal) (op *Operation, err error) {
	if c == nil {
		return nil, errClientClosed
	}
	ctx, span := c.startSpan(ctx, "protocol.PrepareStabilityDepositChange", attribute.String("owner", owner.Hex()))
	defer func() { endSpan(span, err) }()

	if target.IsNegative() {
		return nil, errNegativeTarget
	}
	block, err := c.pin(ctx)
	if err != nil {
		return nil, err
	}
	before, err := c.stabilityDepositAt(ctx, owner, block)
	if err != nil {
		return nil, err
	}
	diff, ok := before.WhatChanged(target).NonZero()
	if !ok {
		return nil, coreerrors.ErrNoChange
	}
	kind := KindProvideDeposit
	var call contracts.Call
	if diff.IsPositive() {
		call, err = c.binding.ProvideToStabilityPool(diff.Absolute())
	} else {
		kind = KindWithdrawDeposit
		call, err = c.binding.WithdrawFromStabilityPool(diff.Absolute())
	}
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", kind, err)
	}
	return c.prepared(Change{
		Kind:    kind,
		Owner:   owner,
		Block:   block.Uint64(),
		Deposit: &DepositChange{Before: before, After: before.Apply(diff), Change: diff},
	}, call), nil
}

func (c *Client) prepared(change Change, call contracts.Call) *Operation {
	op := newOperation(change, call)
	c.logger.Debug("operation prepared",
		slog.String("operation", op.ID()),
		slog.String("kind", string(change.Kind)),
		slog.String("owner", change.Owner.Hex()),
		slog.Uint64("block", change.Block))
	return op
}
