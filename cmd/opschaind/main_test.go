package main

import (
	"path/filepath"
	"testing"
)

func TestLoadOrCreateTreasuryKeyMintsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treasury.keystore")
	t.Setenv(treasuryPassphraseEnv, "correct-horse-battery-staple")

	key, err := loadOrCreateTreasuryKey(path)
	if err != nil {
		t.Fatalf("loadOrCreateTreasuryKey: %v", err)
	}
	if key == nil {
		t.Fatal("expected a minted key")
	}
}

func TestLoadOrCreateTreasuryKeyReloadsExistingKeystore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treasury.keystore")
	t.Setenv(treasuryPassphraseEnv, "correct-horse-battery-staple")

	first, err := loadOrCreateTreasuryKey(path)
	if err != nil {
		t.Fatalf("loadOrCreateTreasuryKey (mint): %v", err)
	}

	second, err := loadOrCreateTreasuryKey(path)
	if err != nil {
		t.Fatalf("loadOrCreateTreasuryKey (reload): %v", err)
	}

	if first.PubKey().Address() != second.PubKey().Address() {
		t.Fatal("expected the same Treasury address across restarts")
	}
}

func TestLoadOrCreateTreasuryKeyRejectsWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treasury.keystore")
	t.Setenv(treasuryPassphraseEnv, "correct-horse-battery-staple")
	if _, err := loadOrCreateTreasuryKey(path); err != nil {
		t.Fatalf("loadOrCreateTreasuryKey (mint): %v", err)
	}

	t.Setenv(treasuryPassphraseEnv, "wrong-passphrase")
	if _, err := loadOrCreateTreasuryKey(path); err == nil {
		t.Fatal("expected an error decrypting with the wrong passphrase")
	}
}
