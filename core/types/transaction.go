package types

import (
	"encoding/json"
	"fmt"

	"opschain/crypto"
)

// TxType enumerates the transaction kinds the processor understands (§3).
type TxType string

const (
	TxTransfer         TxType = "transfer"
	TxStake            TxType = "stake"
	TxSlash            TxType = "slash"
	TxVote             TxType = "vote"
	TxProposeRootCause TxType = "propose_root_cause"
	TxReward           TxType = "reward"
	TxPenalty          TxType = "penalty"
	TxSubmitAnalysis   TxType = "submit_analysis"
)

// Valid reports whether t is one of the enumerated transaction kinds.
func (t TxType) Valid() bool {
	switch t {
	case TxTransfer, TxStake, TxSlash, TxVote, TxProposeRootCause, TxReward, TxPenalty, TxSubmitAnalysis:
		return true
	default:
		return false
	}
}

// Transaction is the canonical unit of state change. Its digest (the
// SHA-256 of its canonical form, excluding Signature) both identifies it
// and is the message signed by the sender.
type Transaction struct {
	Type      TxType                 `json:"tx_type"`
	Sender    crypto.Address         `json:"sender"`
	Nonce     uint64                 `json:"nonce"`
	GasPrice  uint64                 `json:"gas_price"`
	GasLimit  uint64                 `json:"gas_limit"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
	Signature []byte                 `json:"signature,omitempty"`
}

// canonicalForm is the struct actually hashed/signed: everything but the
// signature, per spec §3's invariant that the canonical form excludes it.
type canonicalForm struct {
	Type      TxType                 `json:"tx_type"`
	Sender    crypto.Address         `json:"sender"`
	Nonce     uint64                 `json:"nonce"`
	GasPrice  uint64                 `json:"gas_price"`
	GasLimit  uint64                 `json:"gas_limit"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// Digest computes the SHA-256 of the transaction's canonical encoding. It
// both identifies the transaction (its "tx-id") and is the value signed.
func (tx *Transaction) Digest() (crypto.Hash, error) {
	encoded, err := Canonicalize(canonicalForm{
		Type:      tx.Type,
		Sender:    tx.Sender,
		Nonce:     tx.Nonce,
		GasPrice:  tx.GasPrice,
		GasLimit:  tx.GasLimit,
		Data:      tx.Data,
		Timestamp: tx.Timestamp,
	})
	if err != nil {
		return crypto.Hash{}, fmt.Errorf("canonicalize transaction: %w", err)
	}
	return crypto.HashBytes(encoded), nil
}

// Sign computes the digest and signs it with key, storing a DER signature.
func (tx *Transaction) Sign(key *crypto.PrivateKey) error {
	digest, err := tx.Digest()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}

// Verify checks the transaction's signature against pub.
func (tx *Transaction) Verify(pub *crypto.PublicKey) error {
	digest, err := tx.Digest()
	if err != nil {
		return err
	}
	return crypto.Verify(digest, tx.Signature, pub)
}

// DataString returns a string field from Data, or "" if absent/wrong type.
func (tx *Transaction) DataString(key string) string {
	if tx.Data == nil {
		return ""
	}
	v, ok := tx.Data[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// DataUint64 returns a numeric field from Data as a uint64, tolerating the
// float64 that decoding arbitrary JSON into map[string]interface{} produces.
func (tx *Transaction) DataUint64(key string) (uint64, bool) {
	if tx.Data == nil {
		return 0, false
	}
	v, ok := tx.Data[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case json.Number:
		u, err := n.Int64()
		if err != nil || u < 0 {
			return 0, false
		}
		return uint64(u), true
	default:
		return 0, false
	}
}

// DataInt returns a numeric field from Data as an int.
func (tx *Transaction) DataInt(key string) (int, bool) {
	u, ok := tx.DataUint64(key)
	if !ok {
		// allow negative ints: DataUint64 rejects them, but penalty
		// reputation deltas are negative float64 values
		if tx.Data == nil {
			return 0, false
		}
		if v, present := tx.Data[key]; present {
			if f, isFloat := v.(float64); isFloat {
				return int(f), true
			}
		}
		return 0, false
	}
	return int(u), true
}
