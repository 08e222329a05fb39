package contracts

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	coreerrors "trovekit/core/errors"
)

func eventQuery(address common.Address, parsed abi.ABI, owner *common.Address, names ...string) (ethereum.FilterQuery, error) {
	ids := make([]common.Hash, 0, len(names))
	for _, name := range names {
		event, ok := parsed.Events[name]
		if !ok {
			return ethereum.FilterQuery{}, fmt.Errorf("contracts: unknown event %s", name)
		}
		ids = append(ids, event.ID)
	}
	topics := [][]common.Hash{ids}
	if owner != nil {
		topics = append(topics, []common.Hash{common.BytesToHash(owner.Bytes())})
	}
	return ethereum.FilterQuery{Addresses: []common.Address{address}, Topics: topics}, nil
}

// PriceEvents matches price feed updates.
func (b *Binding) PriceEvents() (ethereum.FilterQuery, error) {
	if b == nil {
		return ethereum.FilterQuery{}, errNotInitialised
	}
	return eventQuery(b.addrs.PriceFeed, b.abis.PriceFeed, nil, "LastGoodPriceUpdated")
}

// TroveEvents matches every trove update, or only owner's when non-nil.
func (b *Binding) TroveEvents(owner *common.Address) (ethereum.FilterQuery, error) {
	if b == nil {
		return ethereum.FilterQuery{}, errNotInitialised
	}
	return eventQuery(b.addrs.TroveManager, b.abis.TroveManager, owner, "TroveUpdated", "TroveLiquidated")
}

// RedistributionEvents matches L term updates.
func (b *Binding) RedistributionEvents() (ethereum.FilterQuery, error) {
	if b == nil {
		return ethereum.FilterQuery{}, errNotInitialised
	}
	return eventQuery(b.addrs.TroveManager, b.abis.TroveManager, nil, "LTermsUpdated")
}

// DepositEvents matches owner's deposit changes.
func (b *Binding) DepositEvents(owner *common.Address) (ethereum.FilterQuery, error) {
	if b == nil {
		return ethereum.FilterQuery{}, errNotInitialised
	}
	return eventQuery(b.addrs.StabilityPool, b.abis.StabilityPool, owner, "UserDepositChanged")
}

// AccumulatorEvents matches pool accumulator updates.
func (b *Binding) AccumulatorEvents() (ethereum.FilterQuery, error) {
	if b == nil {
		return ethereum.FilterQuery{}, errNotInitialised
	}
	return eventQuery(b.addrs.StabilityPool, b.abis.StabilityPool, nil, "AccumulatorsUpdated")
}

// SubscribeLogs streams logs matching q into ch until the subscription is
// unsubscribed.
func (b *Binding) SubscribeLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- gethtypes.Log) (ethereum.Subscription, error) {
	if b == nil || b.backend == nil {
		return nil, errNotInitialised
	}
	const op = "eth.subscribeLogs"
	start := time.Now()
	sub, err := b.backend.SubscribeFilterLogs(ctx, q, ch)
	b.metrics.ObserveRemoteRead(op, time.Since(start), err)
	if err != nil {
		return nil, coreerrors.NewRemoteReadError(op, err)
	}
	return sub, nil
}
