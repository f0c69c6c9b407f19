package types

import (
	"encoding/json"
	"fmt"

	"opschain/crypto"
)

// BlockHeader carries the metadata committing a block to its parent and to
// its transaction list (§3).
type BlockHeader struct {
	Index        uint64      `json:"index"`
	Timestamp    int64       `json:"timestamp"`
	PreviousHash crypto.Hash `json:"previous_hash"`
	MerkleRoot   crypto.Hash `json:"merkle_root"`
	Nonce        uint64      `json:"nonce"`
}

// Hash returns the SHA-256 of the header's canonical encoding.
func (h BlockHeader) Hash() (crypto.Hash, error) {
	encoded, err := Canonicalize(h)
	if err != nil {
		return crypto.Hash{}, fmt.Errorf("canonicalize header: %w", err)
	}
	return crypto.HashBytes(encoded), nil
}

// Block is a header plus its ordered transaction list, with a cached hash.
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	hash         crypto.Hash
}

// NewBlock constructs a block and caches its header hash.
func NewBlock(header BlockHeader, txs []*Transaction) (*Block, error) {
	h, err := header.Hash()
	if err != nil {
		return nil, err
	}
	return &Block{Header: header, Transactions: txs, hash: h}, nil
}

// Hash returns the block's cached header hash.
func (b *Block) Hash() crypto.Hash {
	return b.hash
}

// RecomputeHash re-derives the header hash, used by chain validation to
// detect a corrupted stored header (§4.6 is_valid_chain).
func (b *Block) RecomputeHash() (crypto.Hash, error) {
	return b.Header.Hash()
}

// wireBlock is the on-disk/wire shape: header + ordered transactions +
// precomputed hash (§6).
type wireBlock struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	HashField    crypto.Hash    `json:"hash"`
}

// MarshalJSON emits the block with its precomputed hash alongside the
// header and transactions, per the §6 wire format.
func (b *Block) MarshalJSON() ([]byte, error) {
	return Canonicalize(wireBlock{Header: b.Header, Transactions: b.Transactions, HashField: b.hash})
}

// UnmarshalJSON restores a block from its wire form, trusting the stored
// hash (chain validation re-derives and compares it separately).
func (b *Block) UnmarshalJSON(data []byte) error {
	var w wireBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	b.Header = w.Header
	b.Transactions = w.Transactions
	b.hash = w.HashField
	return nil
}
