// Package processor implements the state processor (C6, §4.5): the
// ordered per-transaction pipeline that re-validates, debits gas,
// dispatches to a contract handler, and commits or discards the result.
package processor

import (
	"errors"
	"fmt"

	"opschain/core/state"
	"opschain/core/types"
	"opschain/crypto"
	"opschain/native/governance"
	"opschain/native/opssop"
	"opschain/native/token"
)

var (
	// ErrNonceMismatch is returned when tx.Nonce does not equal the
	// sender's current nonce.
	ErrNonceMismatch = errors.New("processor: nonce mismatch")
	// ErrGasLimitTooLow is returned when tx.GasLimit is below the
	// type's configured minimum.
	ErrGasLimitTooLow = errors.New("processor: gas limit below minimum")
	// ErrInsufficientBalance is returned when the sender cannot cover
	// gas_price * gas_limit.
	ErrInsufficientBalance = errors.New("processor: insufficient balance for gas")
	// ErrUnknownTxType is returned for a tx_type with no registered handler.
	ErrUnknownTxType = errors.New("processor: unknown transaction type")
)

// DefaultGasMinimums are the design-time per-type minimums (§4.5).
// Slash has no minimum named in the spec text; it is treated like stake
// since both manipulate the stake balance (documented in DESIGN.md).
var DefaultGasMinimums = map[types.TxType]uint64{
	types.TxTransfer:         5000,
	types.TxStake:            5000,
	types.TxSlash:            5000,
	types.TxVote:             200,
	types.TxReward:           200,
	types.TxPenalty:          200,
	types.TxProposeRootCause: 30000,
	types.TxSubmitAnalysis:   10000,
}

// handlerFunc is the uniform shape every contract dispatch target is
// adapted to, regardless of how many collaborators its package needs.
type handlerFunc func(tx *types.Transaction, batch *state.Batch) error

// Processor owns everything needed to apply one transaction at a time:
// the world state, the public-key registry used to re-verify signatures,
// and the governance/SOP collaborators token transfers don't need but
// vote and propose_root_cause do.
type Processor struct {
	state       *state.Manager
	registry    *crypto.Registry
	govIndex    *governance.Index
	sop         *opssop.Machine
	gasMinimums map[types.TxType]uint64
}

// New builds a processor wired to its collaborators.
func New(mgr *state.Manager, registry *crypto.Registry, govIndex *governance.Index, sop *opssop.Machine) *Processor {
	return &Processor{
		state:       mgr,
		registry:    registry,
		govIndex:    govIndex,
		sop:         sop,
		gasMinimums: DefaultGasMinimums,
	}
}

// GasMinimum returns the minimum gas_limit for t, and whether t is known.
func (p *Processor) GasMinimum(t types.TxType) (uint64, bool) {
	min, ok := p.gasMinimums[t]
	return min, ok
}

func (p *Processor) dispatch(t types.TxType) (handlerFunc, bool) {
	switch t {
	case types.TxTransfer:
		return token.Transfer, true
	case types.TxStake:
		return token.Stake, true
	case types.TxSlash:
		return token.Slash, true
	case types.TxReward:
		return token.Reward, true
	case types.TxPenalty:
		return token.Penalty, true
	case types.TxVote:
		return func(tx *types.Transaction, batch *state.Batch) error {
			return governance.Vote(tx, batch, p.govIndex, p.sop)
		}, true
	case types.TxProposeRootCause:
		return func(tx *types.Transaction, batch *state.Batch) error {
			return governance.ProposeRootCause(tx, batch, p.govIndex, p.sop)
		}, true
	case types.TxSubmitAnalysis:
		return func(tx *types.Transaction, batch *state.Batch) error {
			findings, _ := tx.Data["findings"].(map[string]interface{})
			return p.sop.SubmitAnalysis(tx.Sender.String(), findings, tx.Timestamp)
		}, true
	default:
		return nil, false
	}
}

// Apply runs the full pipeline for one transaction (§4.5). It returns nil
// on success, having committed the sender's gas debit, the contract
// effect and the nonce bump as a single atomic batch. Any returned error
// means no state changed at all: the transaction is dropped from the
// block under construction.
func (p *Processor) Apply(tx *types.Transaction) error {
	if !tx.Type.Valid() {
		return ErrUnknownTxType
	}
	handler, ok := p.dispatch(tx.Type)
	if !ok {
		return ErrUnknownTxType
	}
	minGas, ok := p.GasMinimum(tx.Type)
	if !ok {
		return ErrUnknownTxType
	}

	pub, err := p.registry.Lookup(tx.Sender)
	if err != nil {
		return err
	}
	if err := tx.Verify(pub); err != nil {
		return err
	}

	batch := p.state.NewBatch()
	sender, err := batch.Get(tx.Sender)
	if err != nil {
		return fmt.Errorf("processor: load sender: %w", err)
	}

	if tx.Nonce != sender.Nonce {
		return ErrNonceMismatch
	}
	if tx.GasLimit < minGas {
		return ErrGasLimitTooLow
	}
	gasFee := tx.GasPrice * tx.GasLimit
	if sender.Balance < gasFee {
		return ErrInsufficientBalance
	}

	sender.Balance -= gasFee
	batch.Put(sender)

	if err := handler(tx, batch); err != nil {
		// Nothing was committed, so the gas debit above is discarded
		// along with everything else the handler touched: this is the
		// "refund the gas fee" behavior in §4.5 point 4.
		return err
	}

	sender, err = batch.Get(tx.Sender)
	if err != nil {
		return fmt.Errorf("processor: reload sender: %w", err)
	}
	sender.Nonce++
	batch.Put(sender)

	return batch.Commit()
}
