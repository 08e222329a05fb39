package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	coreerrors "trovekit/core/errors"
	"trovekit/sdk/contracts"
)

// Stage is the lifecycle position of an Operation.
type Stage uint8

const (
	StagePrepared Stage = iota
	StageSubmitted
	StageResolved
)

func (s Stage) String() string {
	switch s {
	case StagePrepared:
		return "prepared"
	case StageSubmitted:
		return "submitted"
	case StageResolved:
		return "resolved"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

func (s Stage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Sender signs and broadcasts a call, returning its transaction hash.
type Sender interface {
	Send(ctx context.Context, call contracts.Call) (common.Hash, error)
}

// Waiter blocks until the transaction is mined.
type Waiter interface {
	WaitMined(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error)
}

// Receipt is the outcome of a resolved operation.
type Receipt struct {
	TxHash      common.Hash `json:"txHash"`
	BlockNumber uint64      `json:"blockNumber"`
	GasUsed     uint64      `json:"gasUsed"`
	Succeeded   bool        `json:"succeeded"`
}

// Operation carries a prepared call through submission to its mined receipt.
// Each transition is allowed from exactly one stage; a failed Send leaves the
// operation prepared so it may be retried. The lock is never held across a
// Send or WaitMined, so Stage, TxHash and Receipt stay responsive.
type Operation struct {
	mu       sync.Mutex
	id       string
	stage    Stage
	inFlight bool
	change  Change
	call    contracts.Call
	hash    common.Hash
	receipt Receipt
}

func newOperation(change Change, call contracts.Call) *Operation {
	return &Operation{id: uuid.NewString(), stage: StagePrepared, change: change, call: call}
}

func (o *Operation) ID() string { return o.id }

func (o *Operation) Stage() Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stage
}

// Change describes the state transition the call will make.
func (o *Operation) Change() Change { return o.change }

// Call is the unsigned contract invocation.
func (o *Operation) Call() contracts.Call { return o.call }

func (o *Operation) TxHash() common.Hash {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hash
}

// Submit broadcasts the call.
func (o *Operation) Submit(ctx context.Context, sender Sender) (common.Hash, error) {
	if sender == nil {
		return common.Hash{}, errors.New("protocol: sender required")
	}
	if err := o.begin(StagePrepared, "submit"); err != nil {
		return common.Hash{}, err
	}
	hash, err := sender.Send(ctx, o.call)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.inFlight = false
	if err != nil {
		return common.Hash{}, fmt.Errorf("protocol: send %s: %w", o.change.Kind, err)
	}
	o.hash = hash
	o.stage = StageSubmitted
	return hash, nil
}

// Resolve waits for the submitted transaction and records its outcome. A
// reverted transaction resolves with Succeeded false.
func (o *Operation) Resolve(ctx context.Context, waiter Waiter) (Receipt, error) {
	if waiter == nil {
		return Receipt{}, errors.New("protocol: waiter required")
	}
	if err := o.begin(StageSubmitted, "resolve"); err != nil {
		return Receipt{}, err
	}
	hash := o.TxHash()
	mined, err := waiter.WaitMined(ctx, hash)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.inFlight = false
	if err != nil {
		return Receipt{}, fmt.Errorf("protocol: wait %s: %w", hash.Hex(), err)
	}
	if mined == nil {
		return Receipt{}, errors.New("protocol: transaction receipt missing")
	}
	o.receipt = Receipt{
		TxHash:    hash,
		GasUsed:   mined.GasUsed,
		Succeeded: mined.Status == gethtypes.ReceiptStatusSuccessful,
	}
	if mined.BlockNumber != nil {
		o.receipt.BlockNumber = mined.BlockNumber.Uint64()
	}
	o.stage = StageResolved
	return o.receipt, nil
}

// begin claims the operation for one transition out of from.
func (o *Operation) begin(from Stage, action string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stage != from {
		return fmt.Errorf("%w: %s from %s", coreerrors.ErrInvalidStage, action, o.stage)
	}
	if o.inFlight {
		return fmt.Errorf("%w: %s while another transition is in flight", coreerrors.ErrInvalidStage, action)
	}
	o.inFlight = true
	return nil
}

// Receipt returns the outcome once resolved.
func (o *Operation) Receipt() (Receipt, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.receipt, o.stage == StageResolved
}

// ReceiptReader is the subset of the node API a ReceiptWaiter polls.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// ReceiptWaiter polls for a receipt until it appears or ctx ends.
type ReceiptWaiter struct {
	Client   ReceiptReader
	Interval time.Duration
}

func (w ReceiptWaiter) WaitMined(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	if w.Client == nil {
		return nil, errors.New("protocol: receipt client required")
	}
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		receipt, err := w.Client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("fetch receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
