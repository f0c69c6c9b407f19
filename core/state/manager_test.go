package state

import (
	"errors"
	"testing"

	"opschain/core/types"
	"opschain/crypto"
	"opschain/storage"
)

func testAddress(t *testing.T, seed byte) crypto.Address {
	t.Helper()
	var addr crypto.Address
	for i := range addr {
		addr[i] = seed
	}
	return addr
}

func TestGetMissingAccount(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	addr := testAddress(t, 1)

	if _, err := m.Get(addr); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestGetOrCreatePersists(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	addr := testAddress(t, 2)

	acc, err := m.GetOrCreate(addr)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if acc.Reputation != types.DefaultReputation {
		t.Fatalf("expected default reputation, got %d", acc.Reputation)
	}

	has, err := m.Has(addr)
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if !has {
		t.Fatal("expected account to be persisted after GetOrCreate")
	}

	again, err := m.GetOrCreate(addr)
	if err != nil {
		t.Fatalf("GetOrCreate (second): %v", err)
	}
	if again.Address != acc.Address {
		t.Fatal("expected same account back")
	}
}

func TestApplyBatchPersistsAccounts(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	a, b := testAddress(t, 3), testAddress(t, 4)

	accA := types.NewAccount(a)
	accA.Balance = 100
	accB := types.NewAccount(b)
	accB.Balance = 0

	if err := m.Apply(map[crypto.Address]*types.Account{a: accA, b: accB}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	gotA, err := m.Get(a)
	if err != nil {
		t.Fatalf("Get a: %v", err)
	}
	if gotA.Balance != 100 {
		t.Fatalf("expected balance 100, got %d", gotA.Balance)
	}
}

func TestApplyEmptyBatchIsNoop(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	if err := m.Apply(nil); err != nil {
		t.Fatalf("Apply(nil): %v", err)
	}
}

func TestAccountsIteratesAll(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	addrs := []crypto.Address{testAddress(t, 5), testAddress(t, 6), testAddress(t, 7)}
	for _, addr := range addrs {
		if _, err := m.GetOrCreate(addr); err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
	}

	seen := make(map[crypto.Address]bool)
	if err := m.Accounts(func(acc *types.Account) error {
		seen[acc.Address] = true
		return nil
	}); err != nil {
		t.Fatalf("Accounts: %v", err)
	}
	if len(seen) != len(addrs) {
		t.Fatalf("expected %d accounts, saw %d", len(addrs), len(seen))
	}
}
