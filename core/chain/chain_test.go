package chain

import (
	"testing"

	"opschain/core/processor"
	"opschain/core/types"
	"opschain/crypto"
	"opschain/native/opssop"
	"opschain/storage"
)

func newTestChain(t *testing.T) *Chain {
	t.Helper()
	treasuryKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	c, err := New(storage.NewMemDB(), opssop.NewMemStore(), treasuryKey, 1_000_000, 1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func registerFunded(t *testing.T, c *Chain, balance uint64) (crypto.Address, *crypto.PrivateKey) {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	addr := c.RegisterSigner(key.PubKey())
	batch := c.State().NewBatch()
	acc, err := batch.GetOrCreate(addr)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	acc.Balance = balance
	batch.Put(acc)
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return addr, key
}

func signedTransfer(t *testing.T, key *crypto.PrivateKey, sender, to crypto.Address, amount, nonce, gasLimit uint64) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{
		Type: types.TxTransfer, Sender: sender, Nonce: nonce, GasPrice: 1, GasLimit: gasLimit,
		Data: map[string]interface{}{"to": to.String(), "amount": float64(amount)},
	}
	if err := tx.Sign(key); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return tx
}

func TestGenesisBlock(t *testing.T) {
	c := newTestChain(t)

	genesis := c.Block(0)
	if genesis == nil {
		t.Fatal("expected genesis block")
	}
	if genesis.Header.Index != 0 {
		t.Fatalf("expected genesis index 0, got %d", genesis.Header.Index)
	}
	if genesis.Header.PreviousHash != crypto.ZeroHash {
		t.Fatalf("expected zero previous hash, got %s", genesis.Header.PreviousHash)
	}
	wantRoot, err := types.MerkleRoot(nil)
	if err != nil {
		t.Fatalf("MerkleRoot: %v", err)
	}
	if genesis.Header.MerkleRoot != wantRoot {
		t.Fatalf("expected empty merkle root, got %s", genesis.Header.MerkleRoot)
	}
	if c.Height() != 1 {
		t.Fatalf("expected height 1, got %d", c.Height())
	}

	treasuryAcc, err := c.State().Get(c.Treasury())
	if err != nil {
		t.Fatalf("Get treasury: %v", err)
	}
	if treasuryAcc.Balance != 1_000_000 {
		t.Fatalf("expected treasury balance 1000000, got %d", treasuryAcc.Balance)
	}
}

func TestTransferRoundTrip(t *testing.T) {
	c := newTestChain(t)
	alice, aliceKey := registerFunded(t, c, 10000)
	bob, _ := registerFunded(t, c, 0)

	tx := signedTransfer(t, aliceKey, alice, bob, 300, 0, 5000)
	if err := c.AddTransaction(tx); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}

	block, err := c.Mine(false, 2000)
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	if block.Header.Index != 1 {
		t.Fatalf("expected block index 1, got %d", block.Header.Index)
	}
	if len(block.Transactions) != 1 {
		t.Fatalf("expected 1 transaction in block, got %d", len(block.Transactions))
	}

	aliceAcc, _ := c.State().Get(alice)
	if aliceAcc.Balance != 10000-300-5000 {
		t.Fatalf("expected alice balance %d, got %d", 10000-300-5000, aliceAcc.Balance)
	}
	if aliceAcc.Nonce != 1 {
		t.Fatalf("expected alice nonce 1, got %d", aliceAcc.Nonce)
	}
	bobAcc, _ := c.State().Get(bob)
	if bobAcc.Balance != 300 {
		t.Fatalf("expected bob balance 300, got %d", bobAcc.Balance)
	}

	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestAdmissionRejectsInsufficientBalanceForGas(t *testing.T) {
	c := newTestChain(t)
	alice, aliceKey := registerFunded(t, c, 1000)
	bob, _ := registerFunded(t, c, 0)

	// balance 1000 < gas 5000 (admission checks only the gas fee)
	tx := signedTransfer(t, aliceKey, alice, bob, 300, 0, 5000)
	if err := c.AddTransaction(tx); err != processor.ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestNonceReplayRejected(t *testing.T) {
	c := newTestChain(t)
	alice, aliceKey := registerFunded(t, c, 20000)
	bob, _ := registerFunded(t, c, 0)

	tx1 := signedTransfer(t, aliceKey, alice, bob, 100, 0, 5000)
	if err := c.AddTransaction(tx1); err != nil {
		t.Fatalf("AddTransaction tx1: %v", err)
	}
	if _, err := c.Mine(false, 2000); err != nil {
		t.Fatalf("Mine: %v", err)
	}

	// Replaying nonce 0 again should be rejected at admission.
	replay := signedTransfer(t, aliceKey, alice, bob, 100, 0, 5000)
	if err := c.AddTransaction(replay); err != processor.ErrNonceMismatch {
		t.Fatalf("expected ErrNonceMismatch on replay, got %v", err)
	}
}

func TestVoteWeightAndConsensusReachesSolution(t *testing.T) {
	c := newTestChain(t)
	// 10000 left after paying submit_analysis (10000) and propose (30000) gas.
	proposer, proposerKey := registerFunded(t, c, 50000)
	voter, voterKey := registerFunded(t, c, 10000)

	submitTx := &types.Transaction{
		Type: types.TxSubmitAnalysis, Sender: proposer, Nonce: 0, GasPrice: 1, GasLimit: 10000,
		Data: map[string]interface{}{"findings": map[string]interface{}{"cpu": "high"}},
	}
	if err := submitTx.Sign(proposerKey); err != nil {
		t.Fatalf("sign submit: %v", err)
	}
	if err := c.AddTransaction(submitTx); err != nil {
		t.Fatalf("AddTransaction submit: %v", err)
	}
	if _, err := c.Mine(false, 1100); err != nil {
		t.Fatalf("Mine: %v", err)
	}

	if err := c.SOP().SubmitDataCollection(proposer.String(), "summary", nil, 1100); err != nil {
		t.Fatalf("SubmitDataCollection: %v", err)
	}

	proposeTx := &types.Transaction{
		Type: types.TxProposeRootCause, Sender: proposer, Nonce: 1, GasPrice: 1, GasLimit: 30000,
		Data: map[string]interface{}{"content": "disk full"},
	}
	if err := proposeTx.Sign(proposerKey); err != nil {
		t.Fatalf("sign propose: %v", err)
	}
	if err := c.AddTransaction(proposeTx); err != nil {
		t.Fatalf("AddTransaction propose: %v", err)
	}
	if _, err := c.Mine(false, 1200); err != nil {
		t.Fatalf("Mine: %v", err)
	}
	if c.SOP().State() != types.SOPRootCauseProposed {
		t.Fatalf("expected Root_Cause_Proposed, got %s", c.SOP().State())
	}

	proposalID := c.SOP().CurrentProposalID()

	voteTx := &types.Transaction{
		Type: types.TxVote, Sender: voter, Nonce: 0, GasPrice: 1, GasLimit: 200,
		Data: map[string]interface{}{"proposal_id": proposalID, "option": "for"},
	}
	if err := voteTx.Sign(voterKey); err != nil {
		t.Fatalf("sign vote: %v", err)
	}
	if err := c.AddTransaction(voteTx); err != nil {
		t.Fatalf("AddTransaction vote: %v", err)
	}
	if _, err := c.Mine(false, 1300); err != nil {
		t.Fatalf("Mine: %v", err)
	}

	if c.SOP().State() != types.SOPSolution {
		t.Fatalf("expected Solution after single voter crosses threshold, got %s", c.SOP().State())
	}

	// The reward engine should have auto-mined a follow-up disbursement
	// block crediting the proposer and the for-voter from Treasury.
	proposerAcc, err := c.State().Get(proposer)
	if err != nil {
		t.Fatalf("Get proposer: %v", err)
	}
	if proposerAcc.Balance <= 10000 {
		t.Fatalf("expected proposer balance credited by reward disbursement, got %d", proposerAcc.Balance)
	}

	voterAcc, err := c.State().Get(voter)
	if err != nil {
		t.Fatalf("Get voter: %v", err)
	}
	if voterAcc.Balance <= 10000-200 {
		t.Fatalf("expected voter balance credited by reward disbursement, got %d", voterAcc.Balance)
	}

	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestProposalRejectedRevertsToDataCollected(t *testing.T) {
	c := newTestChain(t)
	proposer, proposerKey := registerFunded(t, c, 40000)
	voter, voterKey := registerFunded(t, c, 10000)

	if err := c.SOP().SubmitDataCollection(proposer.String(), "summary", nil, 1000); err != nil {
		t.Fatalf("SubmitDataCollection: %v", err)
	}

	proposeTx := &types.Transaction{
		Type: types.TxProposeRootCause, Sender: proposer, Nonce: 0, GasPrice: 1, GasLimit: 30000,
		Data: map[string]interface{}{"content": "bad theory"},
	}
	if err := proposeTx.Sign(proposerKey); err != nil {
		t.Fatalf("sign propose: %v", err)
	}
	if err := c.AddTransaction(proposeTx); err != nil {
		t.Fatalf("AddTransaction propose: %v", err)
	}
	if _, err := c.Mine(false, 1100); err != nil {
		t.Fatalf("Mine: %v", err)
	}
	proposalID := c.SOP().CurrentProposalID()

	voteTx := &types.Transaction{
		Type: types.TxVote, Sender: voter, Nonce: 0, GasPrice: 1, GasLimit: 200,
		Data: map[string]interface{}{"proposal_id": proposalID, "option": "against"},
	}
	if err := voteTx.Sign(voterKey); err != nil {
		t.Fatalf("sign vote: %v", err)
	}
	if err := c.AddTransaction(voteTx); err != nil {
		t.Fatalf("AddTransaction vote: %v", err)
	}
	if _, err := c.Mine(false, 1200); err != nil {
		t.Fatalf("Mine: %v", err)
	}

	if c.SOP().State() != types.SOPDataCollected {
		t.Fatalf("expected reverted to Data_Collected after rejection, got %s", c.SOP().State())
	}
	if c.SOP().CurrentProposalID() != "" {
		t.Fatalf("expected current proposal cleared, got %s", c.SOP().CurrentProposalID())
	}
}
