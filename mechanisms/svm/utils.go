package svm

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// NetworkConfig holds the naming and defaults of one Solana cluster
type NetworkConfig struct {
	Cluster      string
	CAIP2        string
	V1Name       string
	RPCURL       string
	DefaultAsset TokenInfo
}

var networkConfigs = map[string]NetworkConfig{
	SolanaMainnetCAIP2: {
		Cluster: ClusterMainnet,
		CAIP2:   SolanaMainnetCAIP2,
		V1Name:  SolanaMainnetV1,
		RPCURL:  rpc.MainNetBeta_RPC,
	},
	SolanaDevnetCAIP2: {
		Cluster: ClusterDevnet,
		CAIP2:   SolanaDevnetCAIP2,
		V1Name:  SolanaDevnetV1,
		RPCURL:  rpc.DevNet_RPC,
	},
	SolanaTestnetCAIP2: {
		Cluster: ClusterTestnet,
		CAIP2:   SolanaTestnetCAIP2,
		V1Name:  SolanaTestnetV1,
		RPCURL:  rpc.TestNet_RPC,
	},
}

// networkAliases maps every accepted spelling to its CAIP-2 id
var networkAliases = map[string]string{
	SolanaMainnetCAIP2: SolanaMainnetCAIP2,
	SolanaDevnetCAIP2:  SolanaDevnetCAIP2,
	SolanaTestnetCAIP2: SolanaTestnetCAIP2,
	SolanaMainnetV1:    SolanaMainnetCAIP2,
	SolanaDevnetV1:     SolanaDevnetCAIP2,
	SolanaTestnetV1:    SolanaTestnetCAIP2,
	ClusterMainnet:     SolanaMainnetCAIP2,
	"mainnet":          SolanaMainnetCAIP2,
	ClusterDevnet:      SolanaDevnetCAIP2,
	ClusterTestnet:     SolanaTestnetCAIP2,
}

// NormalizeNetwork converts a cluster name, v1 name or CAIP-2 id to CAIP-2
func NormalizeNetwork(network string) (string, error) {
	if caip2, ok := networkAliases[strings.ToLower(strings.TrimSpace(network))]; ok {
		return caip2, nil
	}
	// CAIP-2 references are case sensitive
	if caip2, ok := networkAliases[strings.TrimSpace(network)]; ok {
		return caip2, nil
	}
	return "", fmt.Errorf("unsupported Solana network: %s", network)
}

// IsValidNetwork reports whether network names a supported Solana cluster
func IsValidNetwork(network string) bool {
	_, err := NormalizeNetwork(network)
	return err == nil
}

// GetNetworkConfig returns the configuration for network
func GetNetworkConfig(network string) (*NetworkConfig, error) {
	caip2, err := NormalizeNetwork(network)
	if err != nil {
		return nil, err
	}
	config := networkConfigs[caip2]
	if usdc, ok := knownTokens[caip2]["USDC"]; ok {
		config.DefaultAsset = usdc
	}
	return &config, nil
}

// ClusterForRPCURL guesses the cluster an RPC endpoint serves from its URL.
// It returns "" when the URL gives no hint.
func ClusterForRPCURL(rpcURL string) string {
	u, err := url.Parse(rpcURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	switch {
	case strings.Contains(host, "devnet"):
		return ClusterDevnet
	case strings.Contains(host, "testnet"):
		return ClusterTestnet
	case strings.Contains(host, "mainnet"):
		return ClusterMainnet
	}
	return ""
}

// ValidateSolanaAddress checks that address is a base58 public key
func ValidateSolanaAddress(address string) error {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("invalid Solana address %q: %w", address, err)
	}
	return nil
}

// ParseAmount converts a decimal string ("0.01") to smallest units
func ParseAmount(amount string, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("invalid amount %q: must not be negative", amount)
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("invalid amount %q: more than %d decimal places", amount, decimals)
	}

	units := scaled.BigInt()
	if !units.IsUint64() {
		return 0, fmt.Errorf("invalid amount %q: out of range", amount)
	}
	return units.Uint64(), nil
}

// FormatAmount converts smallest units to a decimal string
func FormatAmount(amount uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals)).String()
}

// EncodeTransaction serializes tx to base64 wire format
func EncodeTransaction(tx *solana.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTransaction parses a base64 wire-format transaction
func DecodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return tx, nil
}

// PartialSign adds key's signature to tx, leaving other signature slots as
// they are. key must be one of the message's required signers.
func PartialSign(tx *solana.Transaction, key solana.PrivateKey) error {
	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	index, err := tx.GetAccountIndex(key.PublicKey())
	if err != nil {
		return fmt.Errorf("failed to get account index: %w", err)
	}
	if int(index) >= int(tx.Message.Header.NumRequiredSignatures) {
		return fmt.Errorf("%s is not a required signer", key.PublicKey())
	}

	signature, err := key.Sign(message)
	if err != nil {
		return fmt.Errorf("failed to sign: %w", err)
	}

	if len(tx.Signatures) < int(tx.Message.Header.NumRequiredSignatures) {
		signatures := make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
		copy(signatures, tx.Signatures)
		tx.Signatures = signatures
	}
	tx.Signatures[index] = signature

	return nil
}

// HasValidSignature reports whether signer's slot in tx holds a valid signature
func HasValidSignature(tx *solana.Transaction, signer solana.PublicKey) bool {
	index, err := tx.GetAccountIndex(signer)
	if err != nil || int(index) >= len(tx.Signatures) {
		return false
	}
	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return false
	}
	return tx.Signatures[index].Verify(signer, message)
}
