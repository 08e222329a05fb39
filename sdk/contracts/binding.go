// Package contracts binds the protocol contracts over a go-ethereum client.
// Every read may be pinned to a block, is gated by a rate limiter and is
// reported as a RemoteReadError on failure.
package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"trovekit/core/decimal"
	coreerrors "trovekit/core/errors"
	"trovekit/observability/logging"
	"trovekit/observability/metrics"
)

var (
	errNotInitialised   = errors.New("contracts: binding not initialised")
	errMalformedOutputs = errors.New("contracts: malformed call result")
)

// Backend is the subset of the Ethereum RPC used by the binding.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- gethtypes.Log) (ethereum.Subscription, error)
}

// Addresses is the deployment address book.
type Addresses struct {
	TroveManager       common.Address
	SortedTroves       common.Address
	HintHelpers        common.Address
	StabilityPool      common.Address
	PriceFeed          common.Address
	BorrowerOperations common.Address
}

// Validate reports the first missing address.
func (a Addresses) Validate() error {
	named := []struct {
		name string
		addr common.Address
	}{
		{"troveManager", a.TroveManager},
		{"sortedTroves", a.SortedTroves},
		{"hintHelpers", a.HintHelpers},
		{"stabilityPool", a.StabilityPool},
		{"priceFeed", a.PriceFeed},
		{"borrowerOperations", a.BorrowerOperations},
	}
	for _, entry := range named {
		if (entry.addr == common.Address{}) {
			return fmt.Errorf("contracts: %s address required", entry.name)
		}
	}
	return nil
}

// Dial initialises an EVM RPC client for the provided endpoint. HTTP
// endpoints carry trace context to the node.
func Dial(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("contracts: rpc endpoint required")
	}
	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	client, err := rpc.DialOptions(ctx, trimmed, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("contracts: dial %s: %w", logging.MaskURL(trimmed), err)
	}
	return ethclient.NewClient(client), nil
}

// Option customises a Binding.
type Option func(*Binding)

// WithRateLimit gates every remote call behind a token bucket.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(b *Binding) {
		if requestsPerSecond <= 0 {
			b.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *metrics.MirrorMetrics) Option {
	return func(b *Binding) { b.metrics = m }
}

// Binding issues typed contract calls.
type Binding struct {
	backend Backend
	addrs   Addresses
	abis    ABIs
	limiter *rate.Limiter
	metrics *metrics.MirrorMetrics
}

// New wraps backend with typed helpers for the deployment at addrs.
func New(backend Backend, addrs Addresses, opts ...Option) (*Binding, error) {
	if backend == nil {
		return nil, fmt.Errorf("contracts: backend required")
	}
	if err := addrs.Validate(); err != nil {
		return nil, err
	}
	abis, err := ParseABIs()
	if err != nil {
		return nil, err
	}
	b := &Binding{backend: backend, addrs: addrs, abis: abis, metrics: metrics.Mirror()}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

// Addresses returns the address book.
func (b *Binding) Addresses() Addresses {
	if b == nil {
		return Addresses{}
	}
	return b.addrs
}

// ABIs exposes the parsed contract interfaces.
func (b *Binding) ABIs() ABIs {
	if b == nil {
		return ABIs{}
	}
	return b.abis
}

func (b *Binding) wait(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	start := time.Now()
	err := b.limiter.Wait(ctx)
	b.metrics.ObserveThrottle(time.Since(start))
	return err
}

// BlockNumber returns the latest block the backend has seen.
func (b *Binding) BlockNumber(ctx context.Context) (uint64, error) {
	if b == nil || b.backend == nil {
		return 0, errNotInitialised
	}
	const op = "eth.blockNumber"
	if err := b.wait(ctx); err != nil {
		return 0, coreerrors.NewRemoteReadError(op, err)
	}
	start := time.Now()
	number, err := b.backend.BlockNumber(ctx)
	b.metrics.ObserveRemoteRead(op, time.Since(start), err)
	if err != nil {
		return 0, coreerrors.NewRemoteReadError(op, err)
	}
	return number, nil
}

func (b *Binding) call(ctx context.Context, contract string, to common.Address, parsed abi.ABI, block *big.Int, method string, args ...any) ([]any, error) {
	if b == nil || b.backend == nil {
		return nil, errNotInitialised
	}
	op := contract + "." + method
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("contracts: pack %s: %w", op, err)
	}
	if err := b.wait(ctx); err != nil {
		return nil, coreerrors.NewRemoteReadError(op, err)
	}
	start := time.Now()
	raw, err := b.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, block)
	if err == nil {
		var values []any
		values, err = parsed.Unpack(method, raw)
		if err == nil {
			b.metrics.ObserveRemoteRead(op, time.Since(start), nil)
			return values, nil
		}
		err = fmt.Errorf("%w: %v", errMalformedOutputs, err)
	}
	b.metrics.ObserveRemoteRead(op, time.Since(start), err)
	return nil, coreerrors.NewRemoteReadError(op, err)
}

func (b *Binding) callDecimal(ctx context.Context, contract string, to common.Address, parsed abi.ABI, block *big.Int, method string, args ...any) (decimal.Decimal, error) {
	values, err := b.call(ctx, contract, to, parsed, block, method, args...)
	if err != nil {
		return decimal.Zero, err
	}
	return decodeDecimal(contract+"."+method, values, 0)
}

func (b *Binding) callAddress(ctx context.Context, block *big.Int, method string, args ...any) (common.Address, error) {
	values, err := b.call(ctx, "SortedTroves", b.addrs.SortedTroves, b.abis.SortedTroves, block, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	return decodeAddress("SortedTroves."+method, values, 0)
}

func wrapABIError(name string, err error) error {
	return fmt.Errorf("contracts: parse %s abi: %w", name, err)
}

func malformed(op, detail string) error {
	return coreerrors.NewRemoteReadError(op, fmt.Errorf("%w: %s", errMalformedOutputs, detail))
}

func decodeBig(op string, values []any, index int) (*big.Int, error) {
	if index >= len(values) {
		return nil, malformed(op, fmt.Sprintf("missing output %d", index))
	}
	value, ok := values[index].(*big.Int)
	if !ok || value == nil {
		return nil, malformed(op, fmt.Sprintf("output %d is %T, want uint", index, values[index]))
	}
	return value, nil
}

func decodeDecimal(op string, values []any, index int) (decimal.Decimal, error) {
	value, err := decodeBig(op, values, index)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.FromBigWire(value)
	if err != nil {
		return decimal.Zero, coreerrors.NewRemoteReadError(op, err)
	}
	return d, nil
}

func decodeAddress(op string, values []any, index int) (common.Address, error) {
	if index >= len(values) {
		return common.Address{}, malformed(op, fmt.Sprintf("missing output %d", index))
	}
	value, ok := values[index].(common.Address)
	if !ok {
		return common.Address{}, malformed(op, fmt.Sprintf("output %d is %T, want address", index, values[index]))
	}
	return value, nil
}

func decodeUint64(op string, values []any, index int) (uint64, error) {
	value, err := decodeBig(op, values, index)
	if err != nil {
		return 0, err
	}
	if !value.IsUint64() {
		return 0, malformed(op, "count exceeds uint64")
	}
	return value.Uint64(), nil
}

func wire(d decimal.Decimal) (*big.Int, error) {
	value, err := d.Wire()
	if err != nil {
		return nil, err
	}
	return value.ToBig(), nil
}
