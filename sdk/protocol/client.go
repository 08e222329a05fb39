// Package protocol reads and watches the protocol's ledger state and prepares
// state-changing calls with insertion hints attached.
//
// Every getter pins the block it reads at: it asks for the block number once
// and issues the independent contract reads for that block in parallel, so a
// ratio is never computed from collateral, debt and price observed at
// different heights.
package protocol

import (
	"context"
	"errors"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"trovekit/core/decimal"
	"trovekit/native/stability"
	"trovekit/native/trove"
	"trovekit/observability/metrics"
	"trovekit/sdk/contracts"
	"trovekit/sdk/hints"
	"trovekit/sdk/watch"
)

var errClientClosed = errors.New("protocol: client not initialised")

// Ledger is the read and watch surface of the protocol.
type Ledger interface {
	GetPrice(ctx context.Context) (decimal.Decimal, error)
	GetNumberOfTroves(ctx context.Context) (uint64, error)
	GetTotal(ctx context.Context) (trove.Trove, error)
	GetTotalRedistributed(ctx context.Context) (trove.Trove, error)
	GetTroveBeforeRedistribution(ctx context.Context, owner common.Address) (trove.PendingTrove, error)
	GetTrove(ctx context.Context, owner common.Address) (trove.UserTrove, error)
	GetStabilityDeposit(ctx context.Context, owner common.Address) (stability.Deposit, error)
	GetPoolAccumulators(ctx context.Context) (stability.Accumulators, error)
	GetTotalDeposits(ctx context.Context) (decimal.Decimal, error)
	GetBorrowingRate(ctx context.Context) (decimal.Decimal, error)
	ResolveHint(ctx context.Context, target trove.Trove, owner common.Address) (hints.Hint, error)
	WatchTrove(ctx context.Context, owner common.Address, callback func(trove.UserTrove)) (*watch.Subscription, error)
}

// Config assembles the client. Zero values take the documented defaults of
// each component.
type Config struct {
	Hints   hints.Config
	Watch   watch.Config
	Logger  *slog.Logger
	Metrics *metrics.MirrorMetrics
}

// Client implements Ledger over a contract binding.
type Client struct {
	binding  *contracts.Binding
	resolver *hints.Resolver
	watchCfg watch.Config
	logger   *slog.Logger
	tracer   trace.Tracer
}

var _ Ledger = (*Client)(nil)

// New wires a Client. cfg.Hints should start from hints.DefaultConfig.
func New(binding *contracts.Binding, cfg Config) (*Client, error) {
	if binding == nil {
		return nil, errClientClosed
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Mirror()
	}
	if cfg.Hints.Logger == nil {
		cfg.Hints.Logger = cfg.Logger
	}
	if cfg.Hints.Metrics == nil {
		cfg.Hints.Metrics = cfg.Metrics
	}
	if cfg.Watch.Logger == nil {
		cfg.Watch.Logger = cfg.Logger
	}
	if cfg.Watch.Metrics == nil {
		cfg.Watch.Metrics = cfg.Metrics
	}
	resolver, err := hints.New(&sortedList{binding: binding}, cfg.Hints)
	if err != nil {
		return nil, err
	}
	return &Client{
		binding:  binding,
		resolver: resolver,
		watchCfg: cfg.Watch,
		logger:   cfg.Logger,
		tracer:   otel.Tracer("trovekit/sdk/protocol"),
	}, nil
}

// Binding exposes the underlying contract binding.
func (c *Client) Binding() *contracts.Binding {
	if c == nil {
		return nil
	}
	return c.binding
}

func (c *Client) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// pin reads the current block number once for a getter.
func (c *Client) pin(ctx context.Context) (*big.Int, error) {
	number, err := c.binding.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(number), nil
}

func blockArg(block uint64) *big.Int {
	if block == 0 {
		return nil
	}
	return new(big.Int).SetUint64(block)
}
