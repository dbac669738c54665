package svm

import (
	"errors"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402-foundation/paypanel"
)

func TestLookupKnownSPLToken(t *testing.T) {
	tests := []struct {
		network string
		symbol  string
		address string
	}{
		{"mainnet-beta", "USDC", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
		{"solana", "usdc", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
		{SolanaMainnetCAIP2, "USDT", "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"},
		{"devnet", "USDC", "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"},
		{"solana-devnet", "USDC", "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"},
	}

	for _, tt := range tests {
		t.Run(tt.network+"/"+tt.symbol, func(t *testing.T) {
			info, err := LookupKnownSPLToken(tt.network, tt.symbol)
			require.NoError(t, err)
			assert.Equal(t, tt.address, info.Address)
			assert.Equal(t, uint8(6), info.Decimals)
			assert.Equal(t, solana.TokenProgramID, info.ProgramID)
		})
	}
}

func TestLookupKnownSPLTokenUnknown(t *testing.T) {
	for _, tt := range []struct{ network, symbol string }{
		{"testnet", "USDC"},
		{"devnet", "USDT"},
		{"mainnet-beta", "BONK"},
		{"base-sepolia", "USDC"},
	} {
		_, err := LookupKnownSPLToken(tt.network, tt.symbol)
		require.Error(t, err)
		assert.True(t, errors.Is(err, x402.ErrUnknownToken), "%s/%s", tt.network, tt.symbol)
	}

	_, err := LookupKnownSPLToken("testnet", "USDC")
	assert.Equal(t, "Couldn't look up USDC on testnet", x402.DisplayMessage(err))
}

func TestLookupTokenByMint(t *testing.T) {
	info, err := LookupTokenByMint("devnet", "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")
	require.NoError(t, err)
	assert.Equal(t, "USDC", info.Symbol)

	_, err = LookupTokenByMint("devnet", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	assert.Error(t, err)
}

func TestKnownTokensSorted(t *testing.T) {
	tokens, err := KnownTokens("mainnet-beta")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "USDC", tokens[0].Symbol)
	assert.Equal(t, "USDT", tokens[1].Symbol)

	tokens, err = KnownTokens("testnet")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestNormalizeNetwork(t *testing.T) {
	cases := map[string]string{
		"mainnet-beta":    SolanaMainnetCAIP2,
		"Mainnet-Beta":    SolanaMainnetCAIP2,
		"solana":          SolanaMainnetCAIP2,
		"devnet":          SolanaDevnetCAIP2,
		"solana-testnet":  SolanaTestnetCAIP2,
		SolanaDevnetCAIP2: SolanaDevnetCAIP2,
		" devnet ":        SolanaDevnetCAIP2,
	}
	for in, want := range cases {
		got, err := NormalizeNetwork(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := NormalizeNetwork("eip155:8453")
	assert.Error(t, err)
	assert.False(t, IsValidNetwork("solana:unknown"))
	assert.True(t, IsValidNetwork("testnet"))
}

func TestGetNetworkConfig(t *testing.T) {
	config, err := GetNetworkConfig("devnet")
	require.NoError(t, err)
	assert.Equal(t, SolanaDevnetV1, config.V1Name)
	assert.Equal(t, "https://api.devnet.solana.com", config.RPCURL)
	assert.Equal(t, "USDC", config.DefaultAsset.Symbol)

	config, err = GetNetworkConfig("testnet")
	require.NoError(t, err)
	assert.Empty(t, config.DefaultAsset.Address)
}

func TestClusterForRPCURL(t *testing.T) {
	assert.Equal(t, ClusterDevnet, ClusterForRPCURL("https://api.devnet.solana.com"))
	assert.Equal(t, ClusterMainnet, ClusterForRPCURL("https://api.mainnet-beta.solana.com"))
	assert.Equal(t, ClusterTestnet, ClusterForRPCURL("https://api.testnet.solana.com"))
	assert.Equal(t, "", ClusterForRPCURL("http://localhost:8899"))
	assert.Equal(t, "", ClusterForRPCURL("://bad"))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"0.01", 10000, false},
		{"1", 1000000, false},
		{"1.5", 1500000, false},
		{"0.000001", 1, false},
		{"0.0000001", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
		{"18446744073709.551615", 18446744073709551615, false},
		{"18446744073709.551616", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in, 6)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.01", FormatAmount(10000, 6))
	assert.Equal(t, "1.5", FormatAmount(1500000, 6))
	assert.Equal(t, "0", FormatAmount(0, 6))
	assert.Equal(t, "42", FormatAmount(42, 0))
}

func TestValidateSolanaAddress(t *testing.T) {
	assert.NoError(t, ValidateSolanaAddress("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"))
	assert.Error(t, ValidateSolanaAddress("0x1234"))
}

func TestPayloadFromMap(t *testing.T) {
	p, err := PayloadFromMap(map[string]interface{}{"transaction": "AQID"})
	require.NoError(t, err)
	assert.Equal(t, "AQID", p.Transaction)
	assert.Equal(t, map[string]interface{}{"transaction": "AQID"}, p.ToMap())

	_, err = PayloadFromMap(map[string]interface{}{"signature": "x"})
	assert.Error(t, err)
}

func TestFeePayerFromExtra(t *testing.T) {
	key := solana.NewWallet().PublicKey()
	got, err := FeePayerFromExtra(map[string]interface{}{"feePayer": key.String()})
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = FeePayerFromExtra(nil)
	assert.Error(t, err)
	_, err = FeePayerFromExtra(map[string]interface{}{"feePayer": "nope!"})
	assert.Error(t, err)
}
