// Package crypto implements the signing and hashing discipline shared by
// every signed transaction and hash commitment in the chain: SHA-256
// digests, 20-byte addresses derived from public-key material, and
// secp256k1 ECDSA signatures encoded as DER.
package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// AddressLength is the canonical address size in bytes.
const AddressLength = 20

// Address is a 20-byte account identifier. The zero value is the all-zero
// address; it is never a valid signer.
type Address [AddressLength]byte

// ErrInvalidAddress is returned when decoding a malformed hex address.
var ErrInvalidAddress = errors.New("crypto: invalid address")

// ParseAddress decodes a lowercase hex address (with or without a 0x
// prefix) into its fixed-size form.
func ParseAddress(s string) (Address, error) {
	var addr Address
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != AddressLength {
		return addr, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	copy(addr[:], b)
	return addr, nil
}

// String renders the address as lowercase hex, without a 0x prefix, per
// the wire format used throughout canonical serialization.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Bytes returns a defensive copy of the address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

// IsZero reports whether the address is the all-zero sentinel.
func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Hash is a 32-byte SHA-256 digest, rendered as lowercase hex at the
// boundary and carried as a fixed-size array internally.
type Hash [sha256.Size]byte

// HashBytes returns the SHA-256 digest of b.
func HashBytes(b []byte) Hash {
	return Hash(sha256.Sum256(b))
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) Bytes() []byte {
	out := make([]byte, len(h))
	copy(out, h[:])
	return out
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil || len(b) != len(h) {
		return fmt.Errorf("crypto: invalid hash %q", text)
	}
	copy(h[:], b)
	return nil
}

// ZeroHash is 32 zero bytes, used as the genesis block's previous hash.
var ZeroHash Hash

// PrivateKey wraps a secp256k1 private key.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

// PublicKey wraps a secp256k1 public key.
type PublicKey struct {
	*ecdsa.PublicKey
}

// GeneratePrivateKey creates a new secp256k1 key pair.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromBytes restores a private key from its raw scalar bytes.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the raw scalar encoding of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

// PubKey derives the public key half of the pair.
func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// pubKeyMaterial returns the uncompressed public-key bytes that feed address
// derivation, matching "public_key_bytes" in spec §4.1.
func pubKeyMaterial(pub *ecdsa.PublicKey) []byte {
	return crypto.FromECDSAPub(pub)
}

// Address derives the account address as the first AddressLength bytes of
// SHA-256(public key material), per spec §4.1 — deliberately not the
// Keccak-based derivation go-ethereum uses for its own addresses.
func (k *PublicKey) Address() Address {
	digest := sha256.Sum256(pubKeyMaterial(k.PublicKey))
	var addr Address
	copy(addr[:], digest[:AddressLength])
	return addr
}

// Sign produces a DER-encoded ECDSA signature over digest.
func Sign(digest Hash, key *PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, errors.New("crypto: nil private key")
	}
	sig, err := ecdsa.SignASN1(rand.Reader, key.PrivateKey, digest[:])
	if err != nil {
		return nil, err
	}
	return sig, nil
}

// ErrInvalidSignature is returned when a signature fails verification.
var ErrInvalidSignature = errors.New("crypto: invalid signature")

// Verify checks a DER-encoded ECDSA signature over digest against pub.
func Verify(digest Hash, sig []byte, pub *PublicKey) error {
	if pub == nil {
		return ErrInvalidSignature
	}
	if !ecdsa.VerifyASN1(pub.PublicKey, digest[:], sig) {
		return ErrInvalidSignature
	}
	return nil
}

// PublicKeyFromBytes parses an uncompressed secp256k1 public key.
func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	pub, err := crypto.UnmarshalPubkey(b)
	if err != nil {
		return nil, err
	}
	return &PublicKey{pub}, nil
}

// Bytes returns the uncompressed public-key encoding used both for the
// registry and for address derivation.
func (k *PublicKey) Bytes() []byte {
	return pubKeyMaterial(k.PublicKey)
}
