package state

import (
	"opschain/core/types"
	"opschain/crypto"
)

// Batch is a read-through, write-deferred view over a Manager: contract
// handlers read and mutate accounts entirely in memory, and nothing
// reaches the backing store until Commit is called. This is what gives a
// transaction's gas-debit/contract-effect/nonce-bump triple its
// all-or-nothing property — a handler that returns an error simply never
// gets Committed, so the batch (and any gas already debited into it) is
// thrown away (§4.3, §4.5).
type Batch struct {
	mgr   *Manager
	dirty map[crypto.Address]*types.Account
}

// NewBatch opens a batch over m.
func (m *Manager) NewBatch() *Batch {
	return &Batch{mgr: m, dirty: make(map[crypto.Address]*types.Account)}
}

// Get returns addr's account, preferring an already-dirtied copy so that
// multiple reads/writes within one batch observe each other.
func (b *Batch) Get(addr crypto.Address) (*types.Account, error) {
	if acc, ok := b.dirty[addr]; ok {
		return acc, nil
	}
	acc, err := b.mgr.Get(addr)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// GetOrCreate is Get, materialising a fresh account on ErrAccountNotFound
// instead of returning the error. The new account is not marked dirty
// until the caller calls Put, so a lookup alone never forces a write.
func (b *Batch) GetOrCreate(addr crypto.Address) (*types.Account, error) {
	acc, err := b.Get(addr)
	if err == nil {
		return acc, nil
	}
	if err != ErrAccountNotFound {
		return nil, err
	}
	return types.NewAccount(addr), nil
}

// Put stages acc to be written on Commit.
func (b *Batch) Put(acc *types.Account) {
	b.dirty[acc.Address] = acc
}

// Commit persists every staged account atomically via the manager's
// write-batch backend.
func (b *Batch) Commit() error {
	return b.mgr.Apply(b.dirty)
}

// Discard drops every staged mutation without touching the backing store.
func (b *Batch) Discard() {
	b.dirty = make(map[crypto.Address]*types.Account)
}
