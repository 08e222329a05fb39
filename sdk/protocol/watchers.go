package protocol

import (
	"context"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"trovekit/core/decimal"
	"trovekit/native/stability"
	"trovekit/native/trove"
	"trovekit/sdk/watch"
)

const logBuffer = 16

// logSource turns a log subscription into watch notifications carrying the
// block each log was emitted in.
func (c *Client) logSource(query func() (ethereum.FilterQuery, error)) watch.Source {
	return watch.SourceFunc(func(ctx context.Context, sink chan<- watch.Notification) (func(), error) {
		q, err := query()
		if err != nil {
			return nil, err
		}
		logs := make(chan gethtypes.Log, logBuffer)
		sub, err := c.binding.SubscribeLogs(ctx, q, logs)
		if err != nil {
			return nil, err
		}
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case err, ok := <-sub.Err():
					if ok && err != nil {
						c.logger.Warn("log subscription dropped", slog.Any("error", err))
					}
					return
				case entry := <-logs:
					if !watch.Notify(ctx, sink, watch.Notification{Block: entry.BlockNumber}) {
						return
					}
				}
			}
		}()
		return func() {
			sub.Unsubscribe()
			wg.Wait()
		}, nil
	})
}

func (c *Client) watchConfig(entity string) watch.Config {
	cfg := c.watchCfg
	cfg.Entity = entity
	return cfg
}

// WatchPrice calls callback with the price after each burst of price feed
// updates.
func (c *Client) WatchPrice(ctx context.Context, callback func(decimal.Decimal)) (*watch.Subscription, error) {
	if c == nil {
		return nil, errClientClosed
	}
	return watch.Start(ctx, c.watchConfig("price"),
		[]watch.Source{c.logSource(c.binding.PriceEvents)},
		atBlock(c.priceAt), callback)
}

// WatchNumberOfTroves follows the open trove count.
func (c *Client) WatchNumberOfTroves(ctx context.Context, callback func(uint64)) (*watch.Subscription, error) {
	if c == nil {
		return nil, errClientClosed
	}
	return watch.Start(ctx, c.watchConfig("trove_count"),
		[]watch.Source{c.logSource(c.allTroveEvents)},
		atBlock(c.numberOfTrovesAt), callback)
}

// WatchTotal follows the system-wide totals.
func (c *Client) WatchTotal(ctx context.Context, callback func(trove.Trove)) (*watch.Subscription, error) {
	if c == nil {
		return nil, errClientClosed
	}
	return watch.Start(ctx, c.watchConfig("total"),
		[]watch.Source{c.logSource(c.allTroveEvents)},
		atBlock(c.totalAt), callback)
}

// WatchTotalRedistributed follows the redistribution totals.
func (c *Client) WatchTotalRedistributed(ctx context.Context, callback func(trove.Trove)) (*watch.Subscription, error) {
	if c == nil {
		return nil, errClientClosed
	}
	return watch.Start(ctx, c.watchConfig("redistribution"),
		[]watch.Source{c.logSource(c.binding.RedistributionEvents)},
		atBlock(c.totalRedistributedAt), callback)
}

// WatchTrove re-reads owner's trove whenever it is touched or a
// redistribution changes its pending rewards.
func (c *Client) WatchTrove(ctx context.Context, owner common.Address, callback func(trove.UserTrove)) (*watch.Subscription, error) {
	if c == nil {
		return nil, errClientClosed
	}
	ownerEvents := func() (ethereum.FilterQuery, error) { return c.binding.TroveEvents(&owner) }
	return watch.Start(ctx, c.watchConfig("trove"),
		[]watch.Source{c.logSource(ownerEvents), c.logSource(c.binding.RedistributionEvents)},
		atBlock(func(ctx context.Context, block *big.Int) (trove.UserTrove, error) {
			return c.troveAt(ctx, owner, block)
		}), callback)
}

// WatchStabilityDeposit re-reads owner's deposit whenever it changes or the
// pool absorbs a liquidation.
func (c *Client) WatchStabilityDeposit(ctx context.Context, owner common.Address, callback func(stability.Deposit)) (*watch.Subscription, error) {
	if c == nil {
		return nil, errClientClosed
	}
	ownerEvents := func() (ethereum.FilterQuery, error) { return c.binding.DepositEvents(&owner) }
	return watch.Start(ctx, c.watchConfig("stability_deposit"),
		[]watch.Source{c.logSource(ownerEvents), c.logSource(c.binding.AccumulatorEvents)},
		atBlock(func(ctx context.Context, block *big.Int) (stability.Deposit, error) {
			return c.stabilityDepositAt(ctx, owner, block)
		}), callback)
}

func (c *Client) allTroveEvents() (ethereum.FilterQuery, error) {
	return c.binding.TroveEvents(nil)
}

func atBlock[T any](read func(context.Context, *big.Int) (T, error)) func(context.Context, uint64) (T, error) {
	return func(ctx context.Context, block uint64) (T, error) {
		return read(ctx, blockArg(block))
	}
}
