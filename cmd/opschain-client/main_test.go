package main

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"opschain/core/types"
	"opschain/crypto"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	fn()
	w.Close()
	os.Stdout = old
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read captured stdout: %v", err)
	}
	return string(out)
}

func TestGenerateKeyPrintsAddressAndKey(t *testing.T) {
	out := captureStdout(t, generateKey)
	if !strings.Contains(out, "address:") || !strings.Contains(out, "private key:") {
		t.Fatalf("expected address and private key lines, got:\n%s", out)
	}
}

func writeKeyFile(t *testing.T, key *crypto.PrivateKey) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "key.hex")
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key.Bytes())), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	return path
}

func TestLoadKeyRoundTrips(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	path := writeKeyFile(t, key)

	loaded, err := loadKey(path)
	if err != nil {
		t.Fatalf("loadKey: %v", err)
	}
	if loaded.PubKey().Address() != key.PubKey().Address() {
		t.Fatal("expected loaded key to match the address of the key that was written")
	}
}

func TestGetAccountPrintsResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"nonce":3}`))
	}))
	defer server.Close()

	out := captureStdout(t, func() { getAccount(server.URL, "opschain1deadbeef") })
	if !strings.Contains(out, `"nonce":3`) {
		t.Fatalf("expected nonce in printed output, got:\n%s", out)
	}
}

func TestSubmitSignsAndPostsTransferTransaction(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	keyPath := writeKeyFile(t, key)
	sender := key.PubKey().Address()

	var posted map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/accounts/"):
			json.NewEncoder(w).Encode(map[string]uint64{"nonce": 5})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/transactions":
			if err := json.NewDecoder(r.Body).Decode(&posted); err != nil {
				t.Errorf("decode submitted transaction: %v", err)
			}
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{"tx_hash": "deadbeef"})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	out := captureStdout(t, func() {
		submit(server.URL, keyPath, types.TxTransfer, map[string]interface{}{
			"to": sender.String(), "amount": float64(10),
		})
	})

	if !strings.Contains(out, "tx_hash") {
		t.Fatalf("expected tx_hash in printed output, got:\n%s", out)
	}
	if posted == nil {
		t.Fatal("expected the server to receive a posted transaction")
	}
	if posted["sender"] != sender.String() {
		t.Fatalf("expected sender %s, got %v", sender.String(), posted["sender"])
	}
	if posted["nonce"].(float64) != 5 {
		t.Fatalf("expected nonce fetched from the account endpoint, got %v", posted["nonce"])
	}
	if posted["signature"] == "" {
		t.Fatal("expected a non-empty hex signature")
	}
}

func TestMinePostsToMineEndpoint(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/mine" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		called = true
		w.Write([]byte(`{"header":{"index":1}}`))
	}))
	defer server.Close()

	out := captureStdout(t, func() { mine(server.URL) })
	if !called {
		t.Fatal("expected the mine endpoint to be called")
	}
	if !strings.Contains(out, "index") {
		t.Fatalf("expected block body in printed output, got:\n%s", out)
	}
}
