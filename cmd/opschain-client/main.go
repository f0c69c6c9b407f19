// Command opschain-client is a thin CLI producer: it signs transactions
// locally and submits them to a running opschaind's HTTP adapter.
package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"opschain/core/types"
	"opschain/crypto"
)

const defaultEndpoint = "http://localhost:8080"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	endpoint := os.Getenv("OPSCHAIN_RPC")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	switch os.Args[1] {
	case "generate-key":
		generateKey()
	case "balance":
		if len(os.Args) < 3 {
			fmt.Println("usage: opschain-client balance <address>")
			return
		}
		getAccount(endpoint, os.Args[2])
	case "transfer":
		if len(os.Args) < 5 {
			fmt.Println("usage: opschain-client transfer <key-file> <to> <amount>")
			return
		}
		amount, err := strconv.ParseUint(os.Args[4], 10, 64)
		if err != nil {
			fmt.Println("invalid amount:", err)
			return
		}
		submit(endpoint, os.Args[2], types.TxTransfer, map[string]interface{}{
			"to": os.Args[3], "amount": float64(amount),
		})
	case "propose-root-cause":
		if len(os.Args) < 4 {
			fmt.Println("usage: opschain-client propose-root-cause <key-file> <content>")
			return
		}
		submit(endpoint, os.Args[2], types.TxProposeRootCause, map[string]interface{}{
			"content": os.Args[3],
		})
	case "vote":
		if len(os.Args) < 5 {
			fmt.Println("usage: opschain-client vote <key-file> <proposal-id> <for|against|abstain>")
			return
		}
		submit(endpoint, os.Args[2], types.TxVote, map[string]interface{}{
			"proposal_id": os.Args[3], "option": os.Args[4],
		})
	case "mine":
		mine(endpoint)
	default:
		printUsage()
	}
}

func printUsage() {
	fmt.Println(`usage: opschain-client <command> [args]

commands:
  generate-key
  balance <address>
  transfer <key-file> <to> <amount>
  propose-root-cause <key-file> <content>
  vote <key-file> <proposal-id> <for|against|abstain>
  mine`)
}

func generateKey() {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Println("generate key:", err)
		return
	}
	addr := key.PubKey().Address()
	fmt.Println("address:", addr.String())
	fmt.Println("private key:", hex.EncodeToString(key.Bytes()))
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decoded, err := hex.DecodeString(string(bytes.TrimSpace(raw)))
	if err != nil {
		return nil, err
	}
	return crypto.PrivateKeyFromBytes(decoded)
}

func getAccount(endpoint, address string) {
	resp, err := http.Get(endpoint + "/v1/accounts/" + address)
	if err != nil {
		fmt.Println("request failed:", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(os.Stdout, resp.Body)
	fmt.Println()
}

type accountView struct {
	Nonce uint64 `json:"nonce"`
}

func submit(endpoint, keyFile string, txType types.TxType, data map[string]interface{}) {
	key, err := loadKey(keyFile)
	if err != nil {
		fmt.Println("load key:", err)
		return
	}
	sender := key.PubKey().Address()

	resp, err := http.Get(endpoint + "/v1/accounts/" + sender.String())
	if err != nil {
		fmt.Println("fetch account:", err)
		return
	}
	var acc accountView
	err = json.NewDecoder(resp.Body).Decode(&acc)
	resp.Body.Close()
	if err != nil {
		fmt.Println("decode account:", err)
		return
	}

	tx := &types.Transaction{
		Type:     txType,
		Sender:   sender,
		Nonce:    acc.Nonce,
		GasPrice: 1,
		GasLimit: 30000,
		Data:     data,
	}
	if err := tx.Sign(key); err != nil {
		fmt.Println("sign transaction:", err)
		return
	}

	body, err := json.Marshal(map[string]interface{}{
		"tx_type":   tx.Type,
		"sender":    tx.Sender.String(),
		"nonce":     tx.Nonce,
		"gas_price": tx.GasPrice,
		"gas_limit": tx.GasLimit,
		"data":      tx.Data,
		"timestamp": tx.Timestamp,
		"signature": hex.EncodeToString(tx.Signature),
	})
	if err != nil {
		fmt.Println("encode transaction:", err)
		return
	}

	resp, err = http.Post(endpoint+"/v1/transactions", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Println("submit transaction:", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(os.Stdout, resp.Body)
	fmt.Println()
}

func mine(endpoint string) {
	resp, err := http.Post(endpoint+"/v1/mine", "application/json", nil)
	if err != nil {
		fmt.Println("mine:", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(os.Stdout, resp.Body)
	fmt.Println()
}
