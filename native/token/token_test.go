package token

import (
	"testing"

	"opschain/core/state"
	"opschain/core/types"
	"opschain/crypto"
	"opschain/storage"
)

func addr(seed byte) crypto.Address {
	var a crypto.Address
	for i := range a {
		a[i] = seed
	}
	return a
}

func newBatch(t *testing.T) (*state.Manager, *state.Batch) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	return mgr, mgr.NewBatch()
}

func TestTransferMovesBalance(t *testing.T) {
	mgr, batch := newBatch(t)
	alice := addr(1)
	bob := addr(2)

	aliceAcc := types.NewAccount(alice)
	aliceAcc.Balance = 1000
	batch.Put(aliceAcc)

	tx := &types.Transaction{
		Sender: alice,
		Data:   map[string]interface{}{"to": bob.String(), "amount": float64(300)},
	}
	if err := Transfer(tx, batch); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := mgr.Get(alice)
	if err != nil {
		t.Fatalf("Get alice: %v", err)
	}
	if got.Balance != 700 {
		t.Fatalf("expected alice balance 700, got %d", got.Balance)
	}
	gotBob, err := mgr.Get(bob)
	if err != nil {
		t.Fatalf("Get bob: %v", err)
	}
	if gotBob.Balance != 300 {
		t.Fatalf("expected bob balance 300, got %d", gotBob.Balance)
	}
}

func TestTransferInsufficientBalanceFails(t *testing.T) {
	_, batch := newBatch(t)
	alice := addr(1)
	aliceAcc := types.NewAccount(alice)
	aliceAcc.Balance = 100
	batch.Put(aliceAcc)

	tx := &types.Transaction{
		Sender: alice,
		Data:   map[string]interface{}{"to": addr(2).String(), "amount": float64(300)},
	}
	if err := Transfer(tx, batch); err != ErrPrecondition {
		t.Fatalf("expected ErrPrecondition, got %v", err)
	}
}

func TestStakeMovesBalanceToStake(t *testing.T) {
	mgr, batch := newBatch(t)
	alice := addr(1)
	aliceAcc := types.NewAccount(alice)
	aliceAcc.Balance = 500
	batch.Put(aliceAcc)

	tx := &types.Transaction{Sender: alice, Data: map[string]interface{}{"amount": float64(200)}}
	if err := Stake(tx, batch); err != nil {
		t.Fatalf("Stake: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, _ := mgr.Get(alice)
	if got.Balance != 300 || got.Stake != 200 {
		t.Fatalf("expected balance 300 stake 200, got balance %d stake %d", got.Balance, got.Stake)
	}
}

func TestSlashClampsToStake(t *testing.T) {
	mgr, batch := newBatch(t)
	target := addr(3)
	acc := types.NewAccount(target)
	acc.Stake = 50
	batch.Put(acc)

	tx := &types.Transaction{
		Sender: addr(9),
		Data:   map[string]interface{}{"target": target.String(), "amount": float64(500)},
	}
	if err := Slash(tx, batch); err != nil {
		t.Fatalf("Slash: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, _ := mgr.Get(target)
	if got.Stake != 0 {
		t.Fatalf("expected stake clamped to 0, got %d", got.Stake)
	}
}

func TestRewardCreditsTargetAndAdjustsReputation(t *testing.T) {
	mgr, batch := newBatch(t)
	treasury := addr(0xff)
	target := addr(4)

	treasuryAcc := types.NewAccount(treasury)
	treasuryAcc.Balance = 10000
	batch.Put(treasuryAcc)

	tx := &types.Transaction{
		Sender: treasury,
		Data: map[string]interface{}{
			"target":     target.String(),
			"amount":     float64(800),
			"reputation": float64(5),
		},
	}
	if err := Reward(tx, batch); err != nil {
		t.Fatalf("Reward: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, _ := mgr.Get(target)
	if got.Balance != 800 {
		t.Fatalf("expected balance 800, got %d", got.Balance)
	}
	// Default reputation 100 + 5 is clamped back to the 100 ceiling.
	if got.Reputation != 100 {
		t.Fatalf("expected reputation clamped to 100, got %d", got.Reputation)
	}
}

func TestPenaltyClampsToBalanceAndCreditsTreasury(t *testing.T) {
	mgr, batch := newBatch(t)
	treasury := addr(0xff)
	target := addr(5)

	targetAcc := types.NewAccount(target)
	targetAcc.Balance = 40
	batch.Put(targetAcc)

	tx := &types.Transaction{
		Sender: treasury,
		Data: map[string]interface{}{
			"target":     target.String(),
			"amount":     float64(300),
			"reputation": float64(-5),
		},
	}
	if err := Penalty(tx, batch); err != nil {
		t.Fatalf("Penalty: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	gotTarget, _ := mgr.Get(target)
	if gotTarget.Balance != 0 {
		t.Fatalf("expected target balance clamped to 0, got %d", gotTarget.Balance)
	}
	if gotTarget.Reputation != types.DefaultReputation-5 {
		t.Fatalf("expected reputation %d, got %d", types.DefaultReputation-5, gotTarget.Reputation)
	}

	gotTreasury, _ := mgr.Get(treasury)
	if gotTreasury.Balance != 40 {
		t.Fatalf("expected treasury credited 40, got %d", gotTreasury.Balance)
	}
}
