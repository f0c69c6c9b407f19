package rpc

import (
	"encoding/hex"
	"errors"
)

var errNotFound = errors.New("rpc: not found")

// decodeSignature accepts a hex-encoded signature string, tolerating an
// empty string for unsigned request bodies that will simply fail
// Client.SendTransaction's signature check downstream.
func decodeSignature(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
