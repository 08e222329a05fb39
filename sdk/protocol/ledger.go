package protocol

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"trovekit/core/decimal"
	coreerrors "trovekit/core/errors"
	"trovekit/native/stability"
	"trovekit/native/trove"
)

// GetPrice returns the last good price.
func (c *Client) GetPrice(ctx context.Context) (decimal.Decimal, error) {
	if c == nil {
		return decimal.Zero, errClientClosed
	}
	return pinned(ctx, c, "protocol.GetPrice", c.priceAt)
}

// GetNumberOfTroves returns how many troves are open.
func (c *Client) GetNumberOfTroves(ctx context.Context) (uint64, error) {
	if c == nil {
		return 0, errClientClosed
	}
	return pinned(ctx, c, "protocol.GetNumberOfTroves", c.numberOfTrovesAt)
}

// GetTotal returns the system-wide collateral and debt.
func (c *Client) GetTotal(ctx context.Context) (trove.Trove, error) {
	if c == nil {
		return trove.Trove{}, errClientClosed
	}
	return pinned(ctx, c, "protocol.GetTotal", c.totalAt)
}

// GetTotalRedistributed returns the cumulative per-stake redistribution
// totals.
func (c *Client) GetTotalRedistributed(ctx context.Context) (trove.Trove, error) {
	if c == nil {
		return trove.Trove{}, errClientClosed
	}
	return pinned(ctx, c, "protocol.GetTotalRedistributed", c.totalRedistributedAt)
}

// GetTroveBeforeRedistribution returns owner's trove as stored, without
// pending rewards.
func (c *Client) GetTroveBeforeRedistribution(ctx context.Context, owner common.Address) (trove.PendingTrove, error) {
	if c == nil {
		return trove.PendingTrove{}, errClientClosed
	}
	return pinned(ctx, c, "protocol.GetTroveBeforeRedistribution", func(ctx context.Context, block *big.Int) (trove.PendingTrove, error) {
		return c.pendingTroveAt(ctx, owner, block)
	}, attribute.String("owner", owner.Hex()))
}

// GetTrove returns owner's trove with pending redistribution rewards applied.
// The stored trove, its snapshots and the current totals are all read at the
// same block.
func (c *Client) GetTrove(ctx context.Context, owner common.Address) (trove.UserTrove, error) {
	if c == nil {
		return trove.UserTrove{}, errClientClosed
	}
	return pinned(ctx, c, "protocol.GetTrove", func(ctx context.Context, block *big.Int) (trove.UserTrove, error) {
		return c.troveAt(ctx, owner, block)
	}, attribute.String("owner", owner.Hex()))
}

// GetStabilityDeposit returns owner's deposit with its pending gain and loss.
func (c *Client) GetStabilityDeposit(ctx context.Context, owner common.Address) (stability.Deposit, error) {
	if c == nil {
		return stability.Deposit{}, errClientClosed
	}
	return pinned(ctx, c, "protocol.GetStabilityDeposit", func(ctx context.Context, block *big.Int) (stability.Deposit, error) {
		return c.stabilityDepositAt(ctx, owner, block)
	}, attribute.String("owner", owner.Hex()))
}

// GetPoolAccumulators returns the pool's running gain and loss per unit.
func (c *Client) GetPoolAccumulators(ctx context.Context) (stability.Accumulators, error) {
	if c == nil {
		return stability.Accumulators{}, errClientClosed
	}
	return pinned(ctx, c, "protocol.GetPoolAccumulators", c.accumulatorsAt)
}

func (c *Client) GetTotalDeposits(ctx context.Context) (decimal.Decimal, error) {
	if c == nil {
		return decimal.Zero, errClientClosed
	}
	return pinned(ctx, c, "protocol.GetTotalDeposits", c.binding.TotalDeposits)
}

// GetBorrowingRate returns the current borrowing rate clamped to the
// protocol's bounds.
func (c *Client) GetBorrowingRate(ctx context.Context) (decimal.Decimal, error) {
	if c == nil {
		return decimal.Zero, errClientClosed
	}
	return pinned(ctx, c, "protocol.GetBorrowingRate", c.borrowingRateAt)
}

func pinned[T any](ctx context.Context, c *Client, name string, read func(context.Context, *big.Int) (T, error), attrs ...attribute.KeyValue) (value T, err error) {
	ctx, span := c.startSpan(ctx, name, attrs...)
	defer func() { endSpan(span, err) }()
	block, err := c.pin(ctx)
	if err != nil {
		return value, err
	}
	span.SetAttributes(attribute.Int64("block", block.Int64()))
	return read(ctx, block)
}

func (c *Client) priceAt(ctx context.Context, block *big.Int) (decimal.Decimal, error) {
	return c.binding.LastGoodPrice(ctx, block)
}

func (c *Client) numberOfTrovesAt(ctx context.Context, block *big.Int) (uint64, error) {
	return c.binding.TroveOwnersCount(ctx, block)
}

func (c *Client) borrowingRateAt(ctx context.Context, block *big.Int) (decimal.Decimal, error) {
	rate, err := c.binding.BorrowingRate(ctx, block)
	if err != nil {
		return decimal.Zero, err
	}
	return trove.ClampBorrowingRate(rate), nil
}

func (c *Client) totalAt(ctx context.Context, block *big.Int) (trove.Trove, error) {
	var total trove.Trove
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		total.Collateral, err = c.binding.EntireSystemCollateral(gctx, block)
		return err
	})
	g.Go(func() (err error) {
		total.Debt, err = c.binding.EntireSystemDebt(gctx, block)
		return err
	})
	if err := g.Wait(); err != nil {
		return trove.Trove{}, err
	}
	return total, nil
}

func (c *Client) totalRedistributedAt(ctx context.Context, block *big.Int) (trove.Trove, error) {
	var total trove.Trove
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		total.Collateral, err = c.binding.RedistributedCollateral(gctx, block)
		return err
	})
	g.Go(func() (err error) {
		total.Debt, err = c.binding.RedistributedDebt(gctx, block)
		return err
	})
	if err := g.Wait(); err != nil {
		return trove.Trove{}, err
	}
	return total, nil
}

func (c *Client) pendingTroveAt(ctx context.Context, owner common.Address, block *big.Int) (trove.PendingTrove, error) {
	pending, _, err := c.readTrove(ctx, owner, block, false)
	return pending, err
}

func (c *Client) troveAt(ctx context.Context, owner common.Address, block *big.Int) (trove.UserTrove, error) {
	pending, totals, err := c.readTrove(ctx, owner, block, true)
	if err != nil {
		return trove.UserTrove{}, err
	}
	return pending.ApplyRewards(totals), nil
}

// readTrove fans out the stored record, its reward snapshots and, when asked,
// the current redistribution totals.
func (c *Client) readTrove(ctx context.Context, owner common.Address, block *big.Int, withTotals bool) (trove.PendingTrove, trove.Trove, error) {
	var (
		record    struct{ debt, coll, stake decimal.Decimal }
		rawStatus uint8
		snapshot  trove.Trove
		totals    trove.Trove
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := c.binding.Trove(gctx, owner, block)
		if err != nil {
			return err
		}
		record.debt, record.coll, record.stake = rec.Debt, rec.Collateral, rec.Stake
		rawStatus = rec.Status
		return nil
	})
	g.Go(func() error {
		pair, err := c.binding.RewardSnapshots(gctx, owner, block)
		if err != nil {
			return err
		}
		snapshot = trove.New(pair.First, pair.Second)
		return nil
	})
	if withTotals {
		g.Go(func() (err error) {
			totals, err = c.totalRedistributedAt(gctx, block)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return trove.PendingTrove{}, trove.Trove{}, err
	}
	status, err := trove.StatusFromWire(rawStatus)
	if err != nil {
		return trove.PendingTrove{}, trove.Trove{}, coreerrors.NewRemoteReadError("TroveManager.Troves", err)
	}
	return trove.PendingTrove{
		Owner:    owner,
		Status:   status,
		Raw:      trove.New(record.coll, record.debt),
		Stake:    record.stake,
		Snapshot: snapshot,
	}, totals, nil
}

func (c *Client) accumulatorsAt(ctx context.Context, block *big.Int) (stability.Accumulators, error) {
	var acc stability.Accumulators
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		acc.GainPerUnit, err = c.binding.CumulativeGainPerUnit(gctx, block)
		return err
	})
	g.Go(func() (err error) {
		acc.LossPerUnit, err = c.binding.CumulativeLossPerUnit(gctx, block)
		return err
	})
	if err := g.Wait(); err != nil {
		return stability.Accumulators{}, err
	}
	return acc, nil
}

func (c *Client) stabilityDepositAt(ctx context.Context, owner common.Address, block *big.Int) (stability.Deposit, error) {
	var (
		deposit  decimal.Decimal
		snapshot stability.Accumulators
		current  stability.Accumulators
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		deposit, err = c.binding.StabilityDeposit(gctx, owner, block)
		return err
	})
	g.Go(func() error {
		pair, err := c.binding.DepositSnapshots(gctx, owner, block)
		if err != nil {
			return err
		}
		snapshot = stability.Accumulators{GainPerUnit: pair.First, LossPerUnit: pair.Second}
		return nil
	})
	g.Go(func() (err error) {
		current, err = c.accumulatorsAt(gctx, block)
		return err
	})
	if err := g.Wait(); err != nil {
		return stability.Deposit{}, err
	}
	return stability.Compute(deposit, snapshot, current), nil
}
