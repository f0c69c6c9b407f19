// Package client implements the chain client (C8, §4.7): the
// producer-facing façade that reads state, composes correctly-formed
// transactions and submits them. It performs no business validation of
// its own — Chain's admission and processor pipeline are the only
// authorities on whether a transaction is accepted.
package client

import (
	"errors"
	"fmt"

	"opschain/core/chain"
	"opschain/core/types"
	"opschain/crypto"
)

// ErrUnknownContract is returned by GetEvents for a contract name this
// chain has no event source for.
var ErrUnknownContract = errors.New("client: unknown contract")

// ErrUnknownProposal is returned by CheckConsensus when the proposal id
// is not in the governance index.
var ErrUnknownProposal = errors.New("client: unknown proposal")

// Client is a thin façade over a Chain for a single producer.
type Client struct {
	chain *chain.Chain
}

// New wraps c as a producer-facing client.
func New(c *chain.Chain) *Client {
	return &Client{chain: c}
}

// GetAccount returns addr's account, materialising a fresh one if absent
// so read-after-submit reflects the latest nonce even before a first
// transaction is mined.
func (cl *Client) GetAccount(addr crypto.Address) (*types.Account, error) {
	return cl.chain.State().GetOrCreate(addr)
}

// GetBalance returns addr's token balance.
func (cl *Client) GetBalance(addr crypto.Address) (uint64, error) {
	acc, err := cl.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// GetStake returns addr's staked balance.
func (cl *Client) GetStake(addr crypto.Address) (uint64, error) {
	acc, err := cl.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return acc.Stake, nil
}

// GetBlock returns the block at index, or nil if out of range.
func (cl *Client) GetBlock(index uint64) *types.Block {
	return cl.chain.Block(index)
}

// GetLatestBlock returns the chain tip.
func (cl *Client) GetLatestBlock() *types.Block {
	return cl.chain.LatestBlock()
}

// GetPendingTransactions returns a snapshot of the mempool.
func (cl *Client) GetPendingTransactions() []*types.Transaction {
	return cl.chain.PendingTransactions()
}

// CreateTransaction reads the sender's current nonce, applies gas
// defaults when gasPrice/gasLimit are nil, and signs the result (§4.7).
func (cl *Client) CreateTransaction(txType types.TxType, sender crypto.Address, data map[string]interface{}, key *crypto.PrivateKey, gasPrice, gasLimit *uint64, timestamp int64) (*types.Transaction, error) {
	if !txType.Valid() {
		return nil, fmt.Errorf("client: invalid transaction type %q", txType)
	}
	acc, err := cl.chain.State().GetOrCreate(sender)
	if err != nil {
		return nil, err
	}

	price := uint64(1)
	if gasPrice != nil {
		price = *gasPrice
	}
	limit, ok := cl.chain.Processor().GasMinimum(txType)
	if !ok {
		return nil, fmt.Errorf("client: no gas minimum registered for %q", txType)
	}
	if gasLimit != nil {
		limit = *gasLimit
	}

	tx := &types.Transaction{
		Type:      txType,
		Sender:    sender,
		Nonce:     acc.Nonce,
		GasPrice:  price,
		GasLimit:  limit,
		Data:      data,
		Timestamp: timestamp,
	}
	if err := tx.Sign(key); err != nil {
		return nil, fmt.Errorf("client: sign transaction: %w", err)
	}
	return tx, nil
}

// SendTransaction submits tx to the mempool.
func (cl *Client) SendTransaction(tx *types.Transaction) error {
	return cl.chain.AddTransaction(tx)
}

// SendAndMine submits tx and immediately mines a block containing it (and
// any other pending transactions).
func (cl *Client) SendAndMine(tx *types.Transaction, now int64) (*types.Block, error) {
	if err := cl.SendTransaction(tx); err != nil {
		return nil, err
	}
	return cl.chain.Mine(false, now)
}

// Mine drains the mempool into a new block, per the operator-only
// POST /v1/mine route (§5.10).
func (cl *Client) Mine(allowEmpty bool, now int64) (*types.Block, error) {
	return cl.chain.Mine(allowEmpty, now)
}

// Treasury returns the genesis-materialised Treasury address.
func (cl *Client) Treasury() crypto.Address {
	return cl.chain.Treasury()
}

// SOPState returns the OpsSOP machine's current lifecycle state.
func (cl *Client) SOPState() types.SOPState {
	return cl.chain.SOP().State()
}

// SOPCurrentProposalID returns the id of the proposal currently gating
// the OpsSOP machine's Root_Cause_Proposed/Consensus phase, or "".
func (cl *Client) SOPCurrentProposalID() string {
	return cl.chain.SOP().CurrentProposalID()
}

// SOPIncidentData returns the accumulated incident data map.
func (cl *Client) SOPIncidentData() map[string]interface{} {
	return cl.chain.SOP().IncidentData()
}

// GetEvents returns up to limit OpsSOP events, optionally filtered by
// name. contract must be "opssop" (the only event-emitting contract);
// any other value returns ErrUnknownContract.
func (cl *Client) GetEvents(contract, name string, limit int) ([]types.Event, error) {
	if contract != "" && contract != "opssop" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownContract, contract)
	}
	return cl.chain.SOP().Events(name, limit)
}

// CheckConsensus returns the current tally and status of proposalID.
func (cl *Client) CheckConsensus(proposalID string) (*types.Proposal, error) {
	proposal := cl.chain.Governance().Get(proposalID)
	if proposal == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProposal, proposalID)
	}
	return proposal.Clone(), nil
}
