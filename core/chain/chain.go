// Package chain implements the blockchain (C7, §4.6): genesis bootstrap,
// mempool admission, block assembly and chain validation. It is the Node
// aggregate root the spec's singleton redesign calls for: one Chain owns
// its world state, registry, mempool and block list, rather than any
// piece being a package-level global.
package chain

import (
	"errors"
	"fmt"
	"sync"

	"opschain/core/processor"
	"opschain/core/state"
	"opschain/core/types"
	"opschain/crypto"
	"opschain/native/governance"
	"opschain/native/opssop"
	"opschain/native/reward"
	"opschain/storage"
)

var (
	// ErrChainCorruption is returned by Validate when header linkage or a
	// Merkle root fails to recompute (§4.6).
	ErrChainCorruption = errors.New("chain: corruption detected")
	// ErrEmptyBlockNotRequested is returned by Mine when the mempool is
	// empty and the caller did not explicitly ask for an empty block.
	ErrEmptyBlockNotRequested = errors.New("chain: no transactions to mine")
)

// Chain is the Node aggregate: world state, signer registry, governance
// index, OpsSOP machine, mempool and the block list, all owned together.
type Chain struct {
	mu sync.Mutex

	state     *state.Manager
	registry  *crypto.Registry
	govIndex  *governance.Index
	sop       *opssop.Machine
	processor *processor.Processor

	blocks  []*types.Block
	mempool []*types.Transaction

	treasury    crypto.Address
	treasuryKey *crypto.PrivateKey
}

// Treasury returns the genesis-materialised Treasury address.
func (c *Chain) Treasury() crypto.Address {
	return c.treasury
}

// State returns the chain's world state manager.
func (c *Chain) State() *state.Manager {
	return c.state
}

// Registry returns the chain's signer registry.
func (c *Chain) Registry() *crypto.Registry {
	return c.registry
}

// RegisterSigner records pub in the chain's registry and returns its
// derived address, so a producer's key is known before it ever submits a
// transaction (§4.2).
func (c *Chain) RegisterSigner(pub *crypto.PublicKey) crypto.Address {
	return c.registry.Register(pub)
}

// Governance returns the chain's governance proposal index.
func (c *Chain) Governance() *governance.Index {
	return c.govIndex
}

// SOP returns the chain's OpsSOP state machine.
func (c *Chain) SOP() *opssop.Machine {
	return c.sop
}

// Processor returns the chain's state processor, used by the chain
// client to look up per-type gas minimums when composing a transaction.
func (c *Chain) Processor() *processor.Processor {
	return c.processor
}

// New bootstraps a chain: genesis block 0, a materialised Treasury
// account registered under treasuryKey, now timestamped by the caller's
// clock (Chain never calls time.Now() itself, so it stays deterministic
// under replay).
func New(db storage.Database, events opssop.EventStore, treasuryKey *crypto.PrivateKey, treasuryBalance uint64, genesisTimestamp int64) (*Chain, error) {
	mgr := state.NewManager(db)
	registry := crypto.NewRegistry()
	govIndex := governance.NewIndex()
	sop := opssop.NewMachine(events)

	treasuryAddr := registry.Register(treasuryKey.PubKey())

	batch := mgr.NewBatch()
	treasuryAcc, err := batch.GetOrCreate(treasuryAddr)
	if err != nil {
		return nil, fmt.Errorf("chain: materialise treasury: %w", err)
	}
	treasuryAcc.Balance = treasuryBalance
	batch.Put(treasuryAcc)
	if err := batch.Commit(); err != nil {
		return nil, fmt.Errorf("chain: commit genesis treasury: %w", err)
	}

	genesisRoot, err := types.MerkleRoot(nil)
	if err != nil {
		return nil, err
	}
	genesisHeader := types.BlockHeader{
		Index:        0,
		Timestamp:    genesisTimestamp,
		PreviousHash: crypto.ZeroHash,
		MerkleRoot:   genesisRoot,
	}
	genesis, err := types.NewBlock(genesisHeader, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: build genesis block: %w", err)
	}

	proc := processor.New(mgr, registry, govIndex, sop)

	return &Chain{
		state:       mgr,
		registry:    registry,
		govIndex:    govIndex,
		sop:         sop,
		processor:   proc,
		blocks:      []*types.Block{genesis},
		treasury:    treasuryAddr,
		treasuryKey: treasuryKey,
	}, nil
}

// LatestBlock returns the chain's tip.
func (c *Chain) LatestBlock() *types.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks[len(c.blocks)-1]
}

// Block returns the block at index, or nil if out of range.
func (c *Chain) Block(index uint64) *types.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index >= uint64(len(c.blocks)) {
		return nil
	}
	return c.blocks[index]
}

// Height returns the number of blocks in the chain, including genesis.
func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(len(c.blocks))
}

// PendingTransactions returns a snapshot of the current mempool, in FIFO
// admission order.
func (c *Chain) PendingTransactions() []*types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*types.Transaction, len(c.mempool))
	copy(out, c.mempool)
	return out
}

// AddTransaction validates and admits tx to the mempool (§4.6). This is
// the only path by which a transaction can ever be mined: it runs the
// same re-validation the processor will run again at mining time, so a
// rejected transaction is never queued in the first place.
func (c *Chain) AddTransaction(tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pub, err := c.registry.Lookup(tx.Sender)
	if err != nil {
		return err
	}
	if err := tx.Verify(pub); err != nil {
		return err
	}

	sender, err := c.state.GetOrCreate(tx.Sender)
	if err != nil {
		return err
	}
	if tx.Nonce != sender.Nonce {
		return processor.ErrNonceMismatch
	}
	minGas, ok := c.processor.GasMinimum(tx.Type)
	if !ok {
		return processor.ErrUnknownTxType
	}
	if tx.GasLimit < minGas {
		return processor.ErrGasLimitTooLow
	}
	gasFee := tx.GasPrice * tx.GasLimit
	if sender.Balance < gasFee {
		return processor.ErrInsufficientBalance
	}

	c.mempool = append(c.mempool, tx)
	return nil
}

// Mine drains the mempool and assembles a new block (§4.6). If the
// mempool is empty, it returns ErrEmptyBlockNotRequested unless
// allowEmpty is set. now is the caller-supplied wall-clock timestamp for
// the new block header. If processing the mempool causes a proposal to
// reach ConsensusReached, Mine automatically builds, signs and mines the
// Treasury-funded reward/penalty disbursements as one or more follow-up
// blocks before returning (§4.9) — the caller sees them by querying
// LatestBlock/Block, not in Mine's own return value.
func (c *Chain) Mine(allowEmpty bool, now int64) (*types.Block, error) {
	c.mu.Lock()
	pending := c.mempool
	c.mempool = nil
	c.mu.Unlock()

	if len(pending) == 0 && !allowEmpty {
		c.mu.Lock()
		c.mempool = pending
		c.mu.Unlock()
		return nil, ErrEmptyBlockNotRequested
	}

	block, events, err := c.mineFrom(pending, now)
	if err != nil {
		return nil, err
	}

	if err := c.processConsensusEvents(events, now); err != nil {
		return nil, err
	}
	return block, nil
}

// mineFrom assembles and appends one block from txs, returning it along
// with any ConsensusReached events its processing produced.
func (c *Chain) mineFrom(txs []*types.Transaction, now int64) (*types.Block, []types.Event, error) {
	before, err := c.sop.Events(types.EventConsensusReached, 0)
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	tip := c.blocks[len(c.blocks)-1]
	nextIndex := uint64(len(c.blocks))
	c.mu.Unlock()

	var accepted []*types.Transaction
	for _, tx := range txs {
		if err := c.processor.Apply(tx); err != nil {
			continue
		}
		accepted = append(accepted, tx)
	}

	root, err := types.MerkleRoot(accepted)
	if err != nil {
		return nil, nil, err
	}
	header := types.BlockHeader{
		Index:        nextIndex,
		Timestamp:    now,
		PreviousHash: tip.Hash(),
		MerkleRoot:   root,
	}
	block, err := types.NewBlock(header, accepted)
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	c.blocks = append(c.blocks, block)
	c.mu.Unlock()

	after, err := c.sop.Events(types.EventConsensusReached, 0)
	if err != nil {
		return nil, nil, err
	}
	return block, after[len(before):], nil
}

// processConsensusEvents turns every new ConsensusReached event into its
// reward-engine disbursements and mines them as a follow-up block (§4.9).
func (c *Chain) processConsensusEvents(events []types.Event, now int64) error {
	for _, ev := range events {
		proposalID, _ := ev.Payload["proposal_id"].(string)
		passed, _ := ev.Payload["passed"].(bool)
		if proposalID == "" {
			continue
		}
		proposal := c.govIndex.Get(proposalID)
		if proposal == nil {
			continue
		}
		voters := c.govIndex.Voters(proposalID)

		var disbursements []reward.Disbursement
		if passed {
			disbursements = reward.Passed(proposalID, proposal.Proposer, voters)
		} else {
			disbursements = reward.Rejected(proposalID, proposal.Proposer, voters)
		}
		if len(disbursements) == 0 {
			continue
		}

		txs, err := c.buildDisbursementTxs(disbursements, now)
		if err != nil {
			return err
		}
		if _, _, err := c.mineFrom(txs, now); err != nil {
			return err
		}
	}
	return nil
}

// buildDisbursementTxs turns reward-engine disbursements into signed
// Treasury transactions with sequentially assigned nonces.
func (c *Chain) buildDisbursementTxs(disbursements []reward.Disbursement, now int64) ([]*types.Transaction, error) {
	treasuryAcc, err := c.state.GetOrCreate(c.treasury)
	if err != nil {
		return nil, err
	}
	nonce := treasuryAcc.Nonce

	txs := make([]*types.Transaction, 0, len(disbursements))
	for _, d := range disbursements {
		tx := &types.Transaction{
			Type:      d.Type,
			Sender:    c.treasury,
			Nonce:     nonce,
			GasPrice:  1,
			GasLimit:  200,
			Timestamp: now,
			Data: map[string]interface{}{
				"target":     d.Target.String(),
				"amount":     float64(d.Amount),
				"reputation": float64(d.Reputation),
				"memo":       d.Memo,
			},
		}
		if err := tx.Sign(c.treasuryKey); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
		nonce++
	}
	return txs, nil
}

// Validate re-hashes every header above genesis and checks previous-hash
// linkage and Merkle root recomputation (§4.6 is_valid_chain).
func (c *Chain) Validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 1; i < len(c.blocks); i++ {
		prev := c.blocks[i-1]
		cur := c.blocks[i]

		if cur.Header.PreviousHash != prev.Hash() {
			return fmt.Errorf("%w: block %d previous_hash mismatch", ErrChainCorruption, cur.Header.Index)
		}
		recomputed, err := cur.RecomputeHash()
		if err != nil {
			return err
		}
		if recomputed != cur.Hash() {
			return fmt.Errorf("%w: block %d header hash mismatch", ErrChainCorruption, cur.Header.Index)
		}
		root, err := types.MerkleRoot(cur.Transactions)
		if err != nil {
			return err
		}
		if root != cur.Header.MerkleRoot {
			return fmt.Errorf("%w: block %d merkle root mismatch", ErrChainCorruption, cur.Header.Index)
		}
	}
	return nil
}
