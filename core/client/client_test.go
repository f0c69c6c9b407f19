package client

import (
	"errors"
	"testing"

	"opschain/core/chain"
	"opschain/core/types"
	"opschain/crypto"
	"opschain/native/opssop"
	"opschain/storage"
)

func newTestClient(t *testing.T) (*Client, *chain.Chain) {
	t.Helper()
	treasuryKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	c, err := chain.New(storage.NewMemDB(), opssop.NewMemStore(), treasuryKey, 1_000_000, 1000)
	if err != nil {
		t.Fatalf("chain.New: %v", err)
	}
	return New(c), c
}

func TestCreateTransactionAppliesDefaults(t *testing.T) {
	cl, c := newTestClient(t)
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	sender := c.RegisterSigner(key.PubKey())

	tx, err := cl.CreateTransaction(types.TxTransfer, sender, map[string]interface{}{
		"to": sender.String(), "amount": float64(1),
	}, key, nil, nil, 1234)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if tx.GasPrice != 1 {
		t.Fatalf("expected default gas price 1, got %d", tx.GasPrice)
	}
	if tx.GasLimit != 5000 {
		t.Fatalf("expected default transfer gas limit 5000, got %d", tx.GasLimit)
	}
	if tx.Nonce != 0 {
		t.Fatalf("expected nonce 0 for a fresh account, got %d", tx.Nonce)
	}
	if len(tx.Signature) == 0 {
		t.Fatal("expected transaction to be signed")
	}
}

func TestSendAndMineMinesSubmittedTransaction(t *testing.T) {
	cl, c := newTestClient(t)
	aliceKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	alice := c.RegisterSigner(aliceKey.PubKey())
	bobKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	bob := c.RegisterSigner(bobKey.PubKey())

	batch := c.State().NewBatch()
	acc, err := batch.GetOrCreate(alice)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	acc.Balance = 10000
	batch.Put(acc)
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx, err := cl.CreateTransaction(types.TxTransfer, alice, map[string]interface{}{
		"to": bob.String(), "amount": float64(250),
	}, aliceKey, nil, nil, 2000)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	block, err := cl.SendAndMine(tx, 2001)
	if err != nil {
		t.Fatalf("SendAndMine: %v", err)
	}
	if len(block.Transactions) != 1 {
		t.Fatalf("expected 1 transaction mined, got %d", len(block.Transactions))
	}

	balance, err := cl.GetBalance(bob)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance != 250 {
		t.Fatalf("expected bob balance 250, got %d", balance)
	}
}

func TestGetEventsRejectsUnknownContract(t *testing.T) {
	cl, _ := newTestClient(t)
	if _, err := cl.GetEvents("unknown", "", 10); err == nil {
		t.Fatal("expected error for unknown contract")
	}
}

func TestCheckConsensusUnknownProposal(t *testing.T) {
	cl, _ := newTestClient(t)
	if _, err := cl.CheckConsensus("does-not-exist"); !errors.Is(err, ErrUnknownProposal) {
		t.Fatalf("expected ErrUnknownProposal, got %v", err)
	}
}
