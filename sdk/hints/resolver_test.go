package hints

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"trovekit/core/decimal"
	coreerrors "trovekit/core/errors"
)

type fakeList struct {
	size       uint64
	first      common.Address
	candidates []Candidate
	insert     [2]common.Address

	sizeErr   error
	approxErr error
	insertErr error

	approxCalls int
	insertCalls int
	lastTrials  uint64
	lastSeed    *big.Int
	lastPrev    common.Address
}

func (f *fakeList) Size(context.Context) (uint64, error) { return f.size, f.sizeErr }

func (f *fakeList) First(context.Context) (common.Address, error) { return f.first, nil }

func (f *fakeList) ApproxHint(_ context.Context, _, _ decimal.Decimal, trials uint64, seed *big.Int) ([]Candidate, *big.Int, error) {
	f.approxCalls++
	f.lastTrials = trials
	f.lastSeed = seed
	if f.approxErr != nil {
		return nil, nil, f.approxErr
	}
	return f.candidates, seed, nil
}

func (f *fakeList) FindInsertPosition(_ context.Context, _, _ decimal.Decimal, prev, _ common.Address) (common.Address, common.Address, error) {
	f.insertCalls++
	f.lastPrev = prev
	if f.insertErr != nil {
		return common.Address{}, common.Address{}, f.insertErr
	}
	return f.insert[0], f.insert[1], nil
}

func addr(n int64) common.Address { return common.BigToAddress(big.NewInt(n)) }

func target(ratio string) Target {
	return Target{Ratio: decimal.MustParse(ratio), Price: decimal.New(200)}
}

func newResolver(t *testing.T, list ListReader, mutate func(*Config)) *Resolver {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Seed = func() (*big.Int, error) { return big.NewInt(7), nil }
	if mutate != nil {
		mutate(&cfg)
	}
	r, err := New(list, cfg)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return r
}

func TestEmptyListReturnsFallbackWithoutSampling(t *testing.T) {
	list := &fakeList{}
	hint, err := newResolver(t, list, nil).Resolve(context.Background(), target("1.5"), addr(9))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if hint.Upper != addr(9) || hint.Lower != addr(9) || hint.Path != PathFallback {
		t.Fatalf("unexpected hint %+v", hint)
	}
	if list.approxCalls != 0 || list.insertCalls != 0 {
		t.Fatalf("expected no sampling")
	}
}

func TestDisabledReturnsFallback(t *testing.T) {
	list := &fakeList{size: 100}
	r := newResolver(t, list, func(cfg *Config) { cfg.Enabled = false })
	hint, err := r.Resolve(context.Background(), target("1.5"), addr(3))
	if err != nil || hint.Path != PathFallback || hint.Upper != addr(3) {
		t.Fatalf("unexpected %+v %v", hint, err)
	}
	if list.approxCalls != 0 {
		t.Fatalf("expected no sampling")
	}
}

func TestInfiniteRatioInsertsAtHead(t *testing.T) {
	list := &fakeList{size: 100, first: addr(1)}
	hint, err := newResolver(t, list, nil).Resolve(context.Background(), Target{Ratio: decimal.Infinity, Price: decimal.New(200)}, addr(9))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if (hint.Upper != common.Address{}) || hint.Lower != addr(1) || hint.Path != PathHead {
		t.Fatalf("unexpected hint %+v", hint)
	}
	if list.approxCalls != 0 {
		t.Fatalf("expected no sampling")
	}
}

func TestAdjacentSampleNeedsNoRefinement(t *testing.T) {
	list := &fakeList{
		size: 100,
		candidates: []Candidate{
			{Address: addr(10), Next: addr(11), Ratio: decimal.MustParse("1.6")},
			{Address: addr(11), Next: addr(12), Ratio: decimal.MustParse("1.4")},
		},
	}
	hint, err := newResolver(t, list, nil).Resolve(context.Background(), target("1.5"), addr(9))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if list.lastTrials != 10 {
		t.Fatalf("expected 10 trials, got %d", list.lastTrials)
	}
	if list.lastSeed.Int64() != 7 {
		t.Fatalf("expected injected seed")
	}
	if hint.Upper != addr(10) || hint.Lower != addr(11) || hint.Path != PathAdjacent {
		t.Fatalf("unexpected hint %+v", hint)
	}
	if list.insertCalls != 0 {
		t.Fatalf("expected no refinement call, got %d", list.insertCalls)
	}
}

func TestClosestCandidateIsRefined(t *testing.T) {
	list := &fakeList{
		size: 100,
		candidates: []Candidate{
			{Address: addr(20), Next: addr(21), Ratio: decimal.MustParse("3")},
			{Address: addr(30), Next: addr(31), Ratio: decimal.MustParse("1.55")},
			{Address: addr(40), Next: addr(41), Ratio: decimal.MustParse("1.2")},
		},
		insert: [2]common.Address{addr(32), addr(33)},
	}
	hint, err := newResolver(t, list, nil).Resolve(context.Background(), target("1.5"), addr(9))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if list.insertCalls != 1 || list.lastPrev != addr(30) {
		t.Fatalf("expected refinement from closest candidate, got %d calls from %s", list.insertCalls, list.lastPrev.Hex())
	}
	if hint.Upper != addr(32) || hint.Lower != addr(33) || hint.Path != PathRefined {
		t.Fatalf("unexpected hint %+v", hint)
	}
}

func TestTrials(t *testing.T) {
	cases := []struct {
		n          uint64
		multiplier float64
		min, max   uint64
		want       uint64
	}{
		{100, 1, 1, 5000, 10},
		{101, 1, 1, 5000, 11},
		{100, 2.5, 1, 5000, 25},
		{1, 1, 15, 5000, 15},
		{100_000_000, 1, 1, 5000, 5000},
	}
	for _, tc := range cases {
		r := newResolver(t, &fakeList{}, func(cfg *Config) {
			cfg.TrialMultiplier = tc.multiplier
			cfg.MinTrials = tc.min
			cfg.MaxTrials = tc.max
		})
		if got := r.Trials(tc.n); got != tc.want {
			t.Fatalf("trials(%d, x%v): expected %d, got %d", tc.n, tc.multiplier, tc.want, got)
		}
	}
}

func TestFailuresSurfaceWithStep(t *testing.T) {
	cause := errors.New("rpc timeout")
	cases := []struct {
		step string
		list *fakeList
	}{
		{"size", &fakeList{sizeErr: cause}},
		{"approx", &fakeList{size: 4, approxErr: cause}},
		{"approx", &fakeList{size: 4}},
		{"refine", &fakeList{size: 4, insertErr: cause, candidates: []Candidate{{Address: addr(1), Ratio: decimal.New(2)}}}},
	}
	for _, tc := range cases {
		_, err := newResolver(t, tc.list, nil).Resolve(context.Background(), target("1.5"), addr(9))
		var resolution *coreerrors.HintResolutionError
		if !errors.As(err, &resolution) {
			t.Fatalf("expected HintResolutionError, got %v", err)
		}
		if resolution.Step != tc.step {
			t.Fatalf("expected step %q, got %q", tc.step, resolution.Step)
		}
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Fatalf("expected nil list to fail")
	}
	cfg := DefaultConfig()
	cfg.MinTrials, cfg.MaxTrials = 10, 5
	if _, err := New(&fakeList{}, cfg); !errors.Is(err, errBadTrials) {
		t.Fatalf("expected errBadTrials, got %v", err)
	}
	cfg = DefaultConfig()
	cfg.TrialMultiplier = -1
	if _, err := New(&fakeList{}, cfg); !errors.Is(err, errBadMultiplier) {
		t.Fatalf("expected errBadMultiplier, got %v", err)
	}
}
