// Package state implements the world state: the address-keyed account
// store every contract and the processor read and mutate (§4.3).
package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"opschain/core/types"
	"opschain/crypto"
	"opschain/storage"
)

const accountKeyPrefix = "account:"

// ErrAccountNotFound is returned by Get when the address has never been
// materialised.
var ErrAccountNotFound = errors.New("state: account not found")

func accountKey(addr crypto.Address) []byte {
	return []byte(accountKeyPrefix + addr.String())
}

// Manager owns the account store backing a chain. It writes only through
// Apply and GetOrCreate (which persists a freshly materialised account).
type Manager struct {
	db storage.Database
}

// NewManager wraps db as a world state.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Get loads the account at addr. It returns ErrAccountNotFound if the
// address has never been materialised.
func (m *Manager) Get(addr crypto.Address) (*types.Account, error) {
	raw, err := m.db.Get(accountKey(addr))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	acc := types.NewAccount(addr)
	if err := json.Unmarshal(raw, acc); err != nil {
		return nil, fmt.Errorf("state: decode account %s: %w", addr, err)
	}
	return acc, nil
}

// GetOrCreate loads the account at addr, materialising a fresh one with
// default reputation and persisting it if it does not yet exist.
func (m *Manager) GetOrCreate(addr crypto.Address) (*types.Account, error) {
	acc, err := m.Get(addr)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}
	acc = types.NewAccount(addr)
	if err := m.put(acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// Has reports whether addr has been materialised.
func (m *Manager) Has(addr crypto.Address) (bool, error) {
	return m.db.Has(accountKey(addr))
}

func (m *Manager) put(acc *types.Account) error {
	raw, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("state: encode account %s: %w", acc.Address, err)
	}
	return m.db.Put(accountKey(acc.Address), raw)
}

// Apply commits a batch of account mutations. When the backend implements
// storage.BatchWriter (LevelDB), every account is written from one write
// batch, so either all of them are persisted or none are. Other backends
// (MemDB) get one Put per account, so a backend error part-way through can
// leave the earlier accounts written. Callers
// build the batch entirely in memory (see core/processor), so a contract
// handler that errors out never calls Apply at all and nothing is
// persisted (§4.3, §4.6 "atomic per-transaction application").
func (m *Manager) Apply(batch map[crypto.Address]*types.Account) error {
	if len(batch) == 0 {
		return nil
	}
	writer, ok := m.db.(storage.BatchWriter)
	if !ok {
		for _, acc := range batch {
			if err := m.put(acc); err != nil {
				return err
			}
		}
		return nil
	}
	wb := writer.NewBatch()
	for _, acc := range batch {
		raw, err := json.Marshal(acc)
		if err != nil {
			return fmt.Errorf("state: encode account %s: %w", acc.Address, err)
		}
		wb.Put(accountKey(acc.Address), raw)
	}
	return wb.Write()
}

// Accounts iterates every materialised account in address order, invoking
// fn for each. Used by the chain client and RPC layer for read-only scans
// (e.g. treasury lookups); fn receives a snapshot safe to retain.
func (m *Manager) Accounts(fn func(*types.Account) error) error {
	return m.db.Iterate([]byte(accountKeyPrefix), func(_ []byte, value []byte) error {
		var acc types.Account
		if err := json.Unmarshal(value, &acc); err != nil {
			return fmt.Errorf("state: decode account: %w", err)
		}
		return fn(&acc)
	})
}
