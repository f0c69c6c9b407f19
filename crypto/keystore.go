package crypto

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// SaveToKeystore encrypts key into an Ethereum v3 keystore file at path,
// scrypt-wrapped under passphrase, and installs it atomically. The parent
// directory is created with 0700 permissions if it does not yet exist.
// This is used to guard the chain's Treasury key; opschain never stores
// raw key material on disk.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("crypto: create keystore directory: %w", err)
	}

	tmpDir, err := os.MkdirTemp(dir, "keystore-")
	if err != nil {
		return fmt.Errorf("crypto: stage keystore: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	ks := keystore.NewKeyStore(tmpDir, keystore.StandardScryptN, keystore.StandardScryptP)
	if _, err := ks.ImportECDSA(key.PrivateKey, passphrase); err != nil {
		return fmt.Errorf("crypto: encrypt key: %w", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return fmt.Errorf("crypto: stage keystore: %w", err)
	}
	if len(entries) == 0 {
		return errors.New("crypto: keystore encryption produced no file")
	}

	src := filepath.Join(tmpDir, entries[0].Name())
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("crypto: replace keystore file: %w", err)
	}
	if err := os.Rename(src, path); err != nil {
		return fmt.Errorf("crypto: install keystore file: %w", err)
	}
	return os.Chmod(path, 0o600)
}

// LoadFromKeystore decrypts the Ethereum v3 keystore file at path using
// passphrase and returns the account it guards.
//
// The Address this package derives (PublicKey.Address, SHA-256 of the
// public key material) is not the address go-ethereum's keystore format
// embeds alongside the ciphertext — that field is Keccak-derived for
// Ethereum's own address scheme and is never read here. Callers that need
// the opschain Address for a keystore file should derive it themselves by
// calling PubKey().Address() on the returned key, never by trusting the
// file's embedded "address" field.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}

	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crypto: read keystore: %w", err)
	}

	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt keystore: %w", err)
	}

	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}
