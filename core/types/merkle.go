package types

import (
	"errors"

	"opschain/crypto"
)

// ErrLeafOutOfRange is returned by BuildMerkleProof when the requested
// transaction index does not exist in the block.
var ErrLeafOutOfRange = errors.New("merkle: leaf index out of range")

// MerkleRoot computes the commitment to an ordered transaction list per
// spec §3: leaves are SHA-256 of each canonicalised transaction; at each
// level an odd leaf out is duplicated; pairs are concatenated as hex
// strings and re-hashed. The root of an empty list is SHA-256 of the empty
// string.
func MerkleRoot(txs []*Transaction) (crypto.Hash, error) {
	if len(txs) == 0 {
		return crypto.HashBytes(nil), nil
	}
	level := make([]crypto.Hash, len(txs))
	for i, tx := range txs {
		digest, err := tx.Digest()
		if err != nil {
			return crypto.Hash{}, err
		}
		level[i] = digest
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]crypto.Hash, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			concat := level[i].String() + level[i+1].String()
			next = append(next, crypto.HashBytes([]byte(concat)))
		}
		level = next
	}
	return level[0], nil
}

// MerkleProof is an inclusion proof for one leaf of a Merkle tree: the
// sibling hash at each level, bottom-up, plus whether the sibling sits to
// the left of the leaf being proved.
type MerkleProof struct {
	LeafIndex int       `json:"leaf_index"`
	Siblings  []Sibling `json:"siblings"`
}

// Sibling is one step of a Merkle inclusion proof.
type Sibling struct {
	Hash   crypto.Hash `json:"hash"`
	IsLeft bool        `json:"is_left"`
}

// BuildMerkleProof constructs an inclusion proof for the transaction at
// leafIndex within txs, for the read API's proof endpoint (§6).
func BuildMerkleProof(txs []*Transaction, leafIndex int) (*MerkleProof, error) {
	if leafIndex < 0 || leafIndex >= len(txs) {
		return nil, ErrLeafOutOfRange
	}
	level := make([]crypto.Hash, len(txs))
	for i, tx := range txs {
		digest, err := tx.Digest()
		if err != nil {
			return nil, err
		}
		level[i] = digest
	}
	proof := &MerkleProof{LeafIndex: leafIndex}
	idx := leafIndex
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		var siblingIdx int
		var isLeft bool
		if idx%2 == 0 {
			siblingIdx = idx + 1
			isLeft = false
		} else {
			siblingIdx = idx - 1
			isLeft = true
		}
		proof.Siblings = append(proof.Siblings, Sibling{Hash: level[siblingIdx], IsLeft: isLeft})

		next := make([]crypto.Hash, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			concat := level[i].String() + level[i+1].String()
			next = append(next, crypto.HashBytes([]byte(concat)))
		}
		level = next
		idx /= 2
	}
	return proof, nil
}

// VerifyMerkleProof recomputes the root implied by leaf and proof and
// reports whether it matches root.
func VerifyMerkleProof(leaf crypto.Hash, proof *MerkleProof, root crypto.Hash) bool {
	current := leaf
	for _, sib := range proof.Siblings {
		var concat string
		if sib.IsLeft {
			concat = sib.Hash.String() + current.String()
		} else {
			concat = current.String() + sib.Hash.String()
		}
		current = crypto.HashBytes([]byte(concat))
	}
	return current == root
}
