// Package hints resolves insertion hints into the remotely maintained list of
// troves sorted by descending collateral ratio.
//
// Resolution samples ceil(sqrt(N) * TrialMultiplier) random troves through
// the remote sampler, keeps the candidate closest to the target ratio and asks
// the list for the exact neighbours near it. When the sample already contains
// two neighbours that bracket the target no further call is made.
package hints

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"trovekit/core/decimal"
	coreerrors "trovekit/core/errors"
	"trovekit/observability/metrics"
)

const (
	DefaultTrialMultiplier = 1.0
	DefaultMinTrials       = 1
	DefaultMaxTrials       = 5000
)

var (
	errNilList       = errors.New("hints: list reader required")
	errNoCandidates  = errors.New("hints: sampler returned no candidates")
	errBadTrials     = errors.New("hints: minTrials exceeds maxTrials")
	errBadMultiplier = errors.New("hints: trial multiplier must be positive")
	seedBound        = new(big.Int).Lsh(big.NewInt(1), 256)
)

// Path records how a hint was obtained.
type Path string

const (
	PathFallback Path = "fallback"
	PathHead     Path = "head"
	PathAdjacent Path = "adjacent"
	PathRefined  Path = "refined"
)

// Hint is an insertion position: the trove expected immediately above the
// target and the one immediately below.
type Hint struct {
	Upper common.Address `json:"upper"`
	Lower common.Address `json:"lower"`
	Path  Path           `json:"path"`
}

// Target is the ratio to insert at, with the price it was computed at.
type Target struct {
	Ratio decimal.Decimal
	Price decimal.Decimal
}

// Candidate is one sampled trove with its current ratio and list successor.
type Candidate struct {
	Address common.Address
	Next    common.Address
	Ratio   decimal.Decimal
}

// ListReader is the remote sorted list.
type ListReader interface {
	Size(ctx context.Context) (uint64, error)
	First(ctx context.Context) (common.Address, error)
	ApproxHint(ctx context.Context, ratio, price decimal.Decimal, trials uint64, seed *big.Int) ([]Candidate, *big.Int, error)
	FindInsertPosition(ctx context.Context, ratio, price decimal.Decimal, prev, next common.Address) (common.Address, common.Address, error)
}

// Config tunes the resolver. Start from DefaultConfig.
type Config struct {
	// Enabled turns sampling on. When off every resolution returns the
	// fallback hint.
	Enabled bool
	// TrialMultiplier scales ceil(sqrt(N)).
	TrialMultiplier float64
	MinTrials       uint64
	MaxTrials       uint64
	// Seed supplies the sampler seed; crypto/rand when nil.
	Seed    func() (*big.Int, error)
	Logger  *slog.Logger
	Metrics *metrics.MirrorMetrics
}

// DefaultConfig enables hinting with the default trial bounds.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		TrialMultiplier: DefaultTrialMultiplier,
		MinTrials:       DefaultMinTrials,
		MaxTrials:       DefaultMaxTrials,
	}
}

func (c Config) normalize() Config {
	if c.TrialMultiplier == 0 {
		c.TrialMultiplier = DefaultTrialMultiplier
	}
	if c.MinTrials == 0 {
		c.MinTrials = DefaultMinTrials
	}
	if c.MaxTrials == 0 {
		c.MaxTrials = DefaultMaxTrials
	}
	if c.Seed == nil {
		c.Seed = randomSeed
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Mirror()
	}
	return c
}

func (c Config) validate() error {
	if c.TrialMultiplier < 0 || math.IsNaN(c.TrialMultiplier) || math.IsInf(c.TrialMultiplier, 0) {
		return errBadMultiplier
	}
	if c.MinTrials > c.MaxTrials {
		return fmt.Errorf("%w: %d > %d", errBadTrials, c.MinTrials, c.MaxTrials)
	}
	return nil
}

func randomSeed() (*big.Int, error) {
	return rand.Int(rand.Reader, seedBound)
}

// Resolver computes insertion hints.
type Resolver struct {
	list ListReader
	cfg  Config
}

// New validates cfg and returns a Resolver over list.
func New(list ListReader, cfg Config) (*Resolver, error) {
	if list == nil {
		return nil, errNilList
	}
	cfg = cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Resolver{list: list, cfg: cfg}, nil
}

// Trials returns the sample size for a list of size n.
func (r *Resolver) Trials(n uint64) uint64 {
	if r == nil {
		return 0
	}
	raw := math.Ceil(math.Sqrt(float64(n)) * r.cfg.TrialMultiplier)
	trials := r.cfg.MaxTrials
	if raw < float64(r.cfg.MaxTrials) {
		trials = uint64(raw)
	}
	if trials < r.cfg.MinTrials {
		trials = r.cfg.MinTrials
	}
	return trials
}

// Resolve finds the insertion position for target. fallback is returned as
// both neighbours when hinting is disabled or the list is empty.
func (r *Resolver) Resolve(ctx context.Context, target Target, fallback common.Address) (hint Hint, err error) {
	if r == nil || r.list == nil {
		return Hint{}, errNilList
	}
	ctx, span := otel.Tracer("trovekit/sdk/hints").Start(ctx, "hints.Resolve")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("hint.path", string(hint.Path)))
			r.cfg.Metrics.ObserveHint(string(hint.Path))
		}
		span.End()
	}()

	fallbackHint := Hint{Upper: fallback, Lower: fallback, Path: PathFallback}
	if !r.cfg.Enabled {
		return fallbackHint, nil
	}
	size, err := r.list.Size(ctx)
	if err != nil {
		return Hint{}, &coreerrors.HintResolutionError{Step: "size", Err: err}
	}
	if size == 0 {
		return fallbackHint, nil
	}
	if target.Ratio.IsInfinite() {
		first, err := r.list.First(ctx)
		if err != nil {
			return Hint{}, &coreerrors.HintResolutionError{Step: "first", Err: err}
		}
		return Hint{Lower: first, Path: PathHead}, nil
	}

	trials := r.Trials(size)
	span.SetAttributes(attribute.Int64("hint.list_size", int64(size)), attribute.Int64("hint.trials", int64(trials)))
	r.cfg.Metrics.ObserveTrials(trials)
	seed, err := r.cfg.Seed()
	if err != nil {
		return Hint{}, &coreerrors.HintResolutionError{Step: "seed", Err: err}
	}
	candidates, _, err := r.list.ApproxHint(ctx, target.Ratio, target.Price, trials, seed)
	if err != nil {
		return Hint{}, &coreerrors.HintResolutionError{Step: "approx", Err: err}
	}
	if len(candidates) == 0 {
		return Hint{}, &coreerrors.HintResolutionError{Step: "approx", Err: errNoCandidates}
	}

	if upper, lower, ok := bracketing(candidates, target.Ratio); ok {
		return Hint{Upper: upper, Lower: lower, Path: PathAdjacent}, nil
	}

	closest := closestCandidate(candidates, target.Ratio)
	upper, lower, err := r.list.FindInsertPosition(ctx, target.Ratio, target.Price, closest.Address, closest.Address)
	if err != nil {
		return Hint{}, &coreerrors.HintResolutionError{Step: "refine", Err: err}
	}
	r.cfg.Logger.Debug("refined insertion hint",
		slog.String("ratio", target.Ratio.String()),
		slog.Uint64("trials", trials),
		slog.String("approx", closest.Address.Hex()),
		slog.String("upper", upper.Hex()),
		slog.String("lower", lower.Hex()))
	return Hint{Upper: upper, Lower: lower, Path: PathRefined}, nil
}

// bracketing looks for list neighbours a -> b with a.Ratio >= ratio >= b.Ratio.
func bracketing(candidates []Candidate, ratio decimal.Decimal) (common.Address, common.Address, bool) {
	for _, a := range candidates {
		if a.Ratio.Lt(ratio) || (a.Next == common.Address{}) {
			continue
		}
		for _, b := range candidates {
			if b.Address == a.Next && b.Ratio.Lte(ratio) {
				return a.Address, b.Address, true
			}
		}
	}
	return common.Address{}, common.Address{}, false
}

func closestCandidate(candidates []Candidate, ratio decimal.Decimal) Candidate {
	best := candidates[0]
	bestDistance := decimal.Between(best.Ratio, ratio).Absolute()
	for _, c := range candidates[1:] {
		distance := decimal.Between(c.Ratio, ratio).Absolute()
		if distance.Lt(bestDistance) {
			best, bestDistance = c, distance
		}
	}
	return best
}
