package protocol

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"trovekit/core/decimal"
	"trovekit/native/trove"
	"trovekit/sdk/contracts"
	"trovekit/sdk/hints"
)

// sortedList presents the on-chain sorted list to the hint resolver. Each
// sample is expanded to the sampled trove and its two neighbours with their
// current ratios, which lets the resolver skip the refinement call when the
// target already falls between two of them.
type sortedList struct {
	binding *contracts.Binding
}

var _ hints.ListReader = (*sortedList)(nil)

func (l *sortedList) Size(ctx context.Context) (uint64, error) {
	return l.binding.SortedTrovesSize(ctx, nil)
}

func (l *sortedList) First(ctx context.Context) (common.Address, error) {
	return l.binding.First(ctx, nil)
}

func (l *sortedList) FindInsertPosition(ctx context.Context, ratio, price decimal.Decimal, prev, next common.Address) (common.Address, common.Address, error) {
	return l.binding.FindInsertPosition(ctx, ratio, price, prev, next)
}

func (l *sortedList) ApproxHint(ctx context.Context, ratio, price decimal.Decimal, trials uint64, seed *big.Int) ([]hints.Candidate, *big.Int, error) {
	approx, err := l.binding.GetApproxHint(ctx, ratio, price, trials, seed)
	if err != nil {
		return nil, nil, err
	}
	if (approx.Hint == common.Address{}) {
		return nil, approx.LatestSeed, nil
	}

	var prev, next common.Address
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		prev, err = l.binding.Prev(gctx, approx.Hint, nil)
		return err
	})
	g.Go(func() (err error) {
		next, err = l.binding.Next(gctx, approx.Hint, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	neighbours := []common.Address{prev, approx.Hint, next}
	candidates := make([]hints.Candidate, len(neighbours))
	g, gctx = errgroup.WithContext(ctx)
	for i, id := range neighbours {
		if (id == common.Address{}) {
			continue
		}
		g.Go(func() error {
			icr, err := l.binding.CurrentICR(gctx, id, price, nil)
			if err != nil {
				return err
			}
			candidates[i] = hints.Candidate{Address: id, Ratio: icr}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	candidates[0].Next = approx.Hint
	candidates[1].Next = next

	out := candidates[:0]
	for _, candidate := range candidates {
		if (candidate.Address != common.Address{}) {
			out = append(out, candidate)
		}
	}
	return out, approx.LatestSeed, nil
}

// ResolveHint returns the insertion position for target, falling back to
// owner when hinting is disabled or the list is empty.
func (c *Client) ResolveHint(ctx context.Context, target trove.Trove, owner common.Address) (hints.Hint, error) {
	if c == nil {
		return hints.Hint{}, errClientClosed
	}
	price, err := c.GetPrice(ctx)
	if err != nil {
		return hints.Hint{}, err
	}
	return c.resolver.Resolve(ctx, hints.Target{Ratio: target.CollateralRatio(price), Price: price}, owner)
}
