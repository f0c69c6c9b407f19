// Package token implements the token contract (§4.4): transfer, stake,
// slash, reward and penalty. Every handler mutates accounts through a
// state.Batch and never touches the backing store directly — the
// processor commits (or discards) the batch as a unit.
package token

import (
	"errors"

	"opschain/core/state"
	"opschain/core/types"
	"opschain/crypto"
)

// ErrPrecondition is returned by a handler when its tx.Data fails a
// contract-level precondition (bad amount, unknown sender, insufficient
// funds). The processor maps this to ContractPreconditionFailed (§7).
var ErrPrecondition = errors.New("token: precondition failed")

// Transfer moves amount from the sender to tx.Data["to"], creating the
// recipient on demand (§4.4).
func Transfer(tx *types.Transaction, batch *state.Batch) error {
	to := tx.DataString("to")
	amount, ok := tx.DataUint64("amount")
	if to == "" || !ok {
		return ErrPrecondition
	}
	toAddr, err := crypto.ParseAddress(to)
	if err != nil {
		return ErrPrecondition
	}

	from, err := batch.Get(tx.Sender)
	if err != nil {
		return ErrPrecondition
	}
	if from.Balance < amount {
		return ErrPrecondition
	}

	recipient, err := batch.GetOrCreate(toAddr)
	if err != nil {
		return err
	}

	from.Balance -= amount
	recipient.Balance += amount

	batch.Put(from)
	batch.Put(recipient)
	return nil
}

// Stake moves amount from the sender's balance into its stake (§4.4).
func Stake(tx *types.Transaction, batch *state.Batch) error {
	amount, ok := tx.DataUint64("amount")
	if !ok {
		return ErrPrecondition
	}

	acc, err := batch.Get(tx.Sender)
	if err != nil {
		return ErrPrecondition
	}
	if acc.Balance < amount {
		return ErrPrecondition
	}

	acc.Balance -= amount
	acc.Stake += amount
	batch.Put(acc)
	return nil
}

// Slash burns up to amount of tx.Data["target"]'s stake (§4.4). Slashed
// value is destroyed, not moved to Treasury.
func Slash(tx *types.Transaction, batch *state.Batch) error {
	target := tx.DataString("target")
	amount, ok := tx.DataUint64("amount")
	if target == "" || !ok {
		return ErrPrecondition
	}
	targetAddr, err := crypto.ParseAddress(target)
	if err != nil {
		return ErrPrecondition
	}

	acc, err := batch.Get(targetAddr)
	if err != nil {
		return ErrPrecondition
	}

	if amount > acc.Stake {
		amount = acc.Stake
	}
	acc.Stake -= amount
	batch.Put(acc)
	return nil
}

// Reward debits the sender (expected to be Treasury) and credits target,
// adjusting its reputation (clamped 0..100) (§4.4, §4.9).
func Reward(tx *types.Transaction, batch *state.Batch) error {
	target := tx.DataString("target")
	amount, ok := tx.DataUint64("amount")
	reputationDelta, repOK := tx.DataInt("reputation")
	if target == "" || !ok || !repOK {
		return ErrPrecondition
	}
	targetAddr, err := crypto.ParseAddress(target)
	if err != nil {
		return ErrPrecondition
	}

	treasury, err := batch.Get(tx.Sender)
	if err != nil {
		return ErrPrecondition
	}
	if treasury.Balance < amount {
		return ErrPrecondition
	}

	recipient, err := batch.GetOrCreate(targetAddr)
	if err != nil {
		return err
	}

	treasury.Balance -= amount
	recipient.Balance += amount
	recipient.Reputation += reputationDelta
	recipient.ClampReputation()

	batch.Put(treasury)
	batch.Put(recipient)
	return nil
}

// Penalty clamps amount to target's balance, debits target, credits the
// sender (Treasury), and adjusts target's reputation (§4.4, §4.9).
func Penalty(tx *types.Transaction, batch *state.Batch) error {
	target := tx.DataString("target")
	amount, ok := tx.DataUint64("amount")
	reputationDelta, repOK := tx.DataInt("reputation")
	if target == "" || !ok || !repOK {
		return ErrPrecondition
	}
	targetAddr, err := crypto.ParseAddress(target)
	if err != nil {
		return ErrPrecondition
	}

	acc, err := batch.Get(targetAddr)
	if err != nil {
		return ErrPrecondition
	}
	if amount > acc.Balance {
		amount = acc.Balance
	}

	treasury, err := batch.GetOrCreate(tx.Sender)
	if err != nil {
		return err
	}

	acc.Balance -= amount
	treasury.Balance += amount
	acc.Reputation += reputationDelta
	acc.ClampReputation()

	batch.Put(acc)
	batch.Put(treasury)
	return nil
}
