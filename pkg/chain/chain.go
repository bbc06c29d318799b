// Package chain models the settlement blockchains the negotiator supports.
// Each arm owns its address and transaction-hash formats and its explorer.
package chain

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/sha3"
)

// Chain is a tagged variant over the supported settlement chains.
type Chain uint8

const (
	Unknown Chain = iota
	Solana
	EVM
)

var (
	evmAddressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	evmTxHashRe  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// Parse maps a chain name to its variant. Accepts "solana", "evm", "ethereum".
func Parse(s string) (Chain, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "solana", "sol":
		return Solana, nil
	case "evm", "ethereum", "eth":
		return EVM, nil
	}
	return Unknown, fmt.Errorf("unsupported chain %q", s)
}

func (c Chain) String() string {
	switch c {
	case Solana:
		return "solana"
	case EVM:
		return "evm"
	}
	return "unknown"
}

// Valid reports whether c is one of the supported arms.
func (c Chain) Valid() bool { return c == Solana || c == EVM }

func (c Chain) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Chain) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// FormatAddress renders a secp256k1 public key as an address on c.
// EVM: last 20 bytes of keccak256 over the uncompressed X||Y.
// Solana: base58 of the 32-byte x-coordinate.
func (c Chain) FormatAddress(pub *btcec.PublicKey) string {
	switch c {
	case EVM:
		h := sha3.NewLegacyKeccak256()
		h.Write(pub.SerializeUncompressed()[1:])
		return "0x" + hex.EncodeToString(h.Sum(nil)[12:])
	case Solana:
		return base58.Encode(pub.SerializeCompressed()[1:])
	}
	return ""
}

// ValidateAddress checks addr is well formed for c.
func (c Chain) ValidateAddress(addr string) error {
	switch c {
	case EVM:
		if !evmAddressRe.MatchString(addr) {
			return fmt.Errorf("invalid evm address %q", addr)
		}
		return nil
	case Solana:
		if n := len(base58.Decode(addr)); n != 32 {
			return fmt.Errorf("invalid solana address %q", addr)
		}
		return nil
	}
	return fmt.Errorf("unsupported chain %s", c)
}

// ValidateTxHash checks a settlement transaction reference for c:
// a 0x-prefixed 32-byte hash on EVM, a base58 64-byte signature on Solana.
func (c Chain) ValidateTxHash(txHash string) error {
	switch c {
	case EVM:
		if !evmTxHashRe.MatchString(txHash) {
			return fmt.Errorf("invalid evm tx hash %q", txHash)
		}
		return nil
	case Solana:
		if n := len(base58.Decode(txHash)); n != 64 {
			return fmt.Errorf("invalid solana signature %q", txHash)
		}
		return nil
	}
	return fmt.Errorf("unsupported chain %s", c)
}

// ExplorerTxURL links a transaction on the public explorer for network.
// Empty network or "mainnet"/"mainnet-beta" point at mainnet.
func (c Chain) ExplorerTxURL(txHash, network string) string {
	if txHash == "" {
		return ""
	}
	mainnet := network == "" || network == "mainnet" || network == "mainnet-beta"
	switch c {
	case Solana:
		if mainnet {
			return "https://explorer.solana.com/tx/" + txHash
		}
		return "https://explorer.solana.com/tx/" + txHash + "?cluster=" + network
	case EVM:
		if mainnet {
			return "https://etherscan.io/tx/" + txHash
		}
		return "https://" + network + ".etherscan.io/tx/" + txHash
	}
	return ""
}
