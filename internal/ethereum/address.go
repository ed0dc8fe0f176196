// Package ethereum normalises trader identifiers. Competition venues mix EVM
// hex addresses with base58 account keys; only the former are rewritten.
package ethereum

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeTrader returns the EIP-55 checksummed form of an EVM address and
// any other identifier trimmed but otherwise untouched.
func NormalizeTrader(id string) string {
	id = strings.TrimSpace(id)
	if IsEVM(id) {
		return common.HexToAddress(id).Hex()
	}
	return id
}

func IsEVM(id string) bool {
	return strings.HasPrefix(id, "0x") && common.IsHexAddress(id)
}

// ShortTrader abbreviates an id for tables and notifications: first six and
// last four characters.
func ShortTrader(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:6] + "..." + id[len(id)-4:]
}
