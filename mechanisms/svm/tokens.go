package svm

import (
	"fmt"
	"sort"
	"strings"

	solana "github.com/gagliardetto/solana-go"

	x402 "github.com/x402-foundation/paypanel"
)

// TokenInfo describes a well-known SPL token on one network
type TokenInfo struct {
	Symbol    string           `json:"symbol"`
	Address   string           `json:"address"`
	Decimals  uint8            `json:"decimals"`
	Network   string           `json:"network"` // CAIP-2
	ProgramID solana.PublicKey `json:"programId"`
}

// Mint returns the token mint as a public key
func (t TokenInfo) Mint() (solana.PublicKey, error) {
	return solana.PublicKeyFromBase58(t.Address)
}

// knownTokens is keyed by CAIP-2 network, then upper-case symbol
var knownTokens = map[string]map[string]TokenInfo{
	SolanaMainnetCAIP2: {
		"USDC": {
			Symbol:    "USDC",
			Address:   "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			Decimals:  6,
			Network:   SolanaMainnetCAIP2,
			ProgramID: solana.TokenProgramID,
		},
		"USDT": {
			Symbol:    "USDT",
			Address:   "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
			Decimals:  6,
			Network:   SolanaMainnetCAIP2,
			ProgramID: solana.TokenProgramID,
		},
	},
	SolanaDevnetCAIP2: {
		"USDC": {
			Symbol:    "USDC",
			Address:   "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
			Decimals:  6,
			Network:   SolanaDevnetCAIP2,
			ProgramID: solana.TokenProgramID,
		},
	},
}

// LookupKnownSPLToken resolves symbol on network from the static token table.
// network may be a cluster name, a v1 name or a CAIP-2 id; symbol is
// case-insensitive. Unknown pairs return an error matching x402.ErrUnknownToken.
func LookupKnownSPLToken(network, symbol string) (*TokenInfo, error) {
	unknown := x402.NewPaymentError(
		x402.ErrCodeUnknownToken,
		fmt.Sprintf("Couldn't look up %s on %s", symbol, network),
		map[string]interface{}{"network": network, "symbol": symbol},
	)

	caip2, err := NormalizeNetwork(network)
	if err != nil {
		return nil, unknown
	}

	info, ok := knownTokens[caip2][strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return nil, unknown
	}
	return &info, nil
}

// LookupTokenByMint finds the table entry for a mint address on network
func LookupTokenByMint(network, mint string) (*TokenInfo, error) {
	caip2, err := NormalizeNetwork(network)
	if err != nil {
		return nil, err
	}
	for _, info := range knownTokens[caip2] {
		if info.Address == mint {
			info := info
			return &info, nil
		}
	}
	return nil, x402.NewPaymentError(
		x402.ErrCodeUnknownToken,
		fmt.Sprintf("unknown mint %s on %s", mint, network),
		nil,
	)
}

// KnownTokens lists every token in the table for network
func KnownTokens(network string) ([]TokenInfo, error) {
	caip2, err := NormalizeNetwork(network)
	if err != nil {
		return nil, err
	}
	var tokens []TokenInfo
	for _, info := range knownTokens[caip2] {
		tokens = append(tokens, info)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Symbol < tokens[j].Symbol })
	return tokens, nil
}
