// Package contractstest provides an in-memory Backend that answers contract
// calls by ABI-decoding the calldata and ABI-encoding canned results.
package contractstest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"trovekit/sdk/contracts"
)

// Handler answers one method call. block is nil for latest.
type Handler func(args []any, block *big.Int) ([]any, error)

// DefaultAddresses is a deterministic address book for tests.
func DefaultAddresses() contracts.Addresses {
	return contracts.Addresses{
		TroveManager:       common.HexToAddress("0x1001"),
		SortedTroves:       common.HexToAddress("0x1002"),
		HintHelpers:        common.HexToAddress("0x1003"),
		StabilityPool:      common.HexToAddress("0x1004"),
		PriceFeed:          common.HexToAddress("0x1005"),
		BorrowerOperations: common.HexToAddress("0x1006"),
	}
}

// Backend implements contracts.Backend.
type Backend struct {
	mu       sync.Mutex
	addrs    contracts.Addresses
	parsed   map[common.Address]abi.ABI
	names    map[common.Address]string
	handlers map[string]Handler
	calls    map[string]int
	blocks   []*big.Int
	block    uint64
	subs     []*subscription
	blockErr error
}

// New returns a Backend serving the contracts at addrs.
func New(addrs contracts.Addresses) *Backend {
	abis, err := contracts.ParseABIs()
	if err != nil {
		panic(err)
	}
	b := &Backend{
		addrs:    addrs,
		parsed:   make(map[common.Address]abi.ABI),
		names:    make(map[common.Address]string),
		handlers: make(map[string]Handler),
		calls:    make(map[string]int),
	}
	register := func(addr common.Address, name string, parsed abi.ABI) {
		b.parsed[addr] = parsed
		b.names[addr] = name
	}
	register(addrs.TroveManager, "TroveManager", abis.TroveManager)
	register(addrs.SortedTroves, "SortedTroves", abis.SortedTroves)
	register(addrs.HintHelpers, "HintHelpers", abis.HintHelpers)
	register(addrs.StabilityPool, "StabilityPool", abis.StabilityPool)
	register(addrs.PriceFeed, "PriceFeed", abis.PriceFeed)
	register(addrs.BorrowerOperations, "BorrowerOperations", abis.BorrowerOperations)
	return b
}

// Handle installs h for "Contract.method".
func (b *Backend) Handle(op string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[op] = h
}

// Returns installs a handler that always answers values.
func (b *Backend) Returns(op string, values ...any) {
	b.Handle(op, func([]any, *big.Int) ([]any, error) { return values, nil })
}

// Fails installs a handler that always fails with err.
func (b *Backend) Fails(op string, err error) {
	b.Handle(op, func([]any, *big.Int) ([]any, error) { return nil, err })
}

// SetBlock sets the value BlockNumber reports.
func (b *Backend) SetBlock(block uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.block = block
}

// FailBlockNumber makes BlockNumber fail with err until reset with nil.
func (b *Backend) FailBlockNumber(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blockErr = err
}

// Calls returns how often op was invoked.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Blocks returns the block argument of every call so far.
func (b *Backend) Blocks() []*big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*big.Int(nil), b.blocks...)
}

func (b *Backend) BlockNumber(context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.blockErr != nil {
		return 0, b.blockErr
	}
	return b.block, nil
}

func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("contractstest: malformed call")
	}
	b.mu.Lock()
	parsed, ok := b.parsed[*msg.To]
	name := b.names[*msg.To]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("contractstest: no contract at %s", msg.To.Hex())
	}
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	op := name + "." + method.Name

	b.mu.Lock()
	b.calls[op]++
	b.blocks = append(b.blocks, block)
	handler, ok := b.handlers[op]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("contractstest: no handler for %s", op)
	}
	values, err := handler(args, block)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(values...)
}

func (b *Backend) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- gethtypes.Log) (ethereum.Subscription, error) {
	sub := &subscription{query: q, ch: ch, quit: make(chan struct{}), errc: make(chan error)}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub, nil
}

// ActiveSubscriptions counts subscriptions not yet unsubscribed.
func (b *Backend) ActiveSubscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	active := 0
	for _, sub := range b.subs {
		if !sub.closed() {
			active++
		}
	}
	return active
}

// EventLog builds a log for the named event emitted by contract at block.
func (b *Backend) EventLog(contract common.Address, event string, block uint64, owner *common.Address) gethtypes.Log {
	b.mu.Lock()
	parsed := b.parsed[contract]
	b.mu.Unlock()
	topics := []common.Hash{parsed.Events[event].ID}
	if owner != nil {
		topics = append(topics, common.BytesToHash(owner.Bytes()))
	}
	return gethtypes.Log{Address: contract, Topics: topics, BlockNumber: block}
}

// Emit delivers log to every live matching subscription and reports how
// many received it.
func (b *Backend) Emit(log gethtypes.Log) int {
	b.mu.Lock()
	subs := append([]*subscription(nil), b.subs...)
	b.mu.Unlock()
	delivered := 0
	for _, sub := range subs {
		if sub.closed() || !matches(sub.query, log) {
			continue
		}
		select {
		case sub.ch <- log:
			delivered++
		case <-sub.quit:
		}
	}
	return delivered
}

func matches(q ethereum.FilterQuery, log gethtypes.Log) bool {
	if len(q.Addresses) > 0 && !containsAddress(q.Addresses, log.Address) {
		return false
	}
	for i, wanted := range q.Topics {
		if len(wanted) == 0 {
			continue
		}
		if i >= len(log.Topics) || !containsHash(wanted, log.Topics[i]) {
			return false
		}
	}
	return true
}

func containsAddress(list []common.Address, addr common.Address) bool {
	for _, candidate := range list {
		if candidate == addr {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, hash common.Hash) bool {
	for _, candidate := range list {
		if candidate == hash {
			return true
		}
	}
	return false
}

type subscription struct {
	query ethereum.FilterQuery
	ch    chan<- gethtypes.Log
	once  sync.Once
	quit  chan struct{}
	errc  chan error
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.quit)
		close(s.errc)
	})
}

func (s *subscription) Err() <-chan error { return s.errc }

func (s *subscription) closed() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}
