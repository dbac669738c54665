package server

import (
	"context"
	"errors"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402-foundation/paypanel"
	"github.com/x402-foundation/paypanel/internal/svmtest"
	svm "github.com/x402-foundation/paypanel/mechanisms/svm"
	exactclient "github.com/x402-foundation/paypanel/mechanisms/svm/exact/client"
	signers "github.com/x402-foundation/paypanel/signers/svm"
)

type harness struct {
	server   *ExactSvmServer
	rpc      *svmtest.FakeRPC
	owner    solana.PrivateKey
	usdc     svm.TokenInfo
	payTo    solana.PublicKey
	required x402.PaymentRequirements
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	usdc, err := svm.LookupKnownSPLToken("devnet", "USDC")
	require.NoError(t, err)
	mint, _ := usdc.Mint()

	h := &harness{
		rpc:   svmtest.NewFakeRPC(),
		owner: solana.NewWallet().PrivateKey,
		usdc:  *usdc,
		payTo: solana.NewWallet().PublicKey(),
	}
	h.server = NewExactSvmServer(solana.NewWallet().PrivateKey, h.rpc)
	h.rpc.Fund(mint, h.owner.PublicKey(), h.payTo)

	h.required = h.server.EnhancePaymentRequirements(x402.PaymentRequirements{
		Scheme:            svm.SchemeExact,
		Network:           svm.SolanaDevnetCAIP2,
		Asset:             usdc.Address,
		Amount:            "10000",
		PayTo:             h.payTo.String(),
		MaxTimeoutSeconds: 60,
	})
	return h
}

func (h *harness) pay(t *testing.T, req x402.PaymentRequirements) x402.PaymentPayload {
	t.Helper()
	signer, err := signers.NewClientSignerFromPrivateKey(h.owner.String())
	require.NoError(t, err)

	partial, err := exactclient.NewExactSvmScheme(signer, h.usdc, h.rpc).
		CreatePaymentPayload(context.Background(), x402.ProtocolVersion, req)
	require.NoError(t, err)

	return x402.PaymentPayload{
		X402Version: partial.X402Version,
		Payload:     partial.Payload,
		Accepted:    req,
	}
}

// payWith signs a hand built transaction for negative cases
func (h *harness) payWith(t *testing.T, instructions ...solana.Instruction) x402.PaymentPayload {
	t.Helper()
	tx, err := solana.NewTransaction(instructions, h.rpc.Blockhash, solana.TransactionPayer(h.server.FeePayer()))
	require.NoError(t, err)
	require.NoError(t, svm.PartialSign(tx, h.owner))
	encoded, err := svm.EncodeTransaction(tx)
	require.NoError(t, err)
	return x402.PaymentPayload{
		X402Version: x402.ProtocolVersion,
		Payload:     map[string]interface{}{"transaction": encoded},
		Accepted:    h.required,
	}
}

func (h *harness) computeBudget(t *testing.T, price uint64) []solana.Instruction {
	t.Helper()
	limit := computebudget.NewSetComputeUnitLimitInstructionBuilder().SetUnits(svm.DefaultComputeUnitLimit).Build()
	cuPrice := computebudget.NewSetComputeUnitPriceInstructionBuilder().SetMicroLamports(price).Build()
	return []solana.Instruction{limit, cuPrice}
}

func (h *harness) transfer(t *testing.T, amount uint64, to solana.PublicKey) solana.Instruction {
	t.Helper()
	mint, _ := h.usdc.Mint()
	source, _, _ := solana.FindAssociatedTokenAddress(h.owner.PublicKey(), mint)
	dest, _, _ := solana.FindAssociatedTokenAddress(to, mint)
	return token.NewTransferCheckedInstructionBuilder().
		SetAmount(amount).
		SetDecimals(6).
		SetSourceAccount(source).
		SetMintAccount(mint).
		SetDestinationAccount(dest).
		SetOwnerAccount(h.owner.PublicKey()).
		Build()
}

func TestEnhancePaymentRequirements(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, h.server.FeePayer().String(), h.required.Extra["feePayer"])

	original := x402.PaymentRequirements{Extra: map[string]interface{}{"name": "USDC"}}
	enhanced := h.server.EnhancePaymentRequirements(original)
	assert.Equal(t, "USDC", enhanced.Extra["name"])
	assert.NotContains(t, original.Extra, "feePayer", "input not mutated")
}

func TestVerifyValidPayment(t *testing.T) {
	h := newHarness(t)

	resp, err := h.server.Verify(context.Background(), h.pay(t, h.required), h.required)
	require.NoError(t, err)
	assert.True(t, resp.IsValid, resp.InvalidReason)
	assert.Equal(t, h.owner.PublicKey().String(), resp.Payer)
}

func TestVerifyRejections(t *testing.T) {
	h := newHarness(t)
	payload := h.pay(t, h.required)

	t.Run("amount mismatch", func(t *testing.T) {
		req := h.required
		req.Amount = "20000"
		resp, err := h.server.Verify(context.Background(), payload, req)
		require.NoError(t, err)
		assert.False(t, resp.IsValid)
		assert.Equal(t, svm.ErrAmountMismatch, resp.InvalidReason)
	})

	t.Run("recipient mismatch", func(t *testing.T) {
		req := h.required
		req.PayTo = solana.NewWallet().PublicKey().String()
		resp, _ := h.server.Verify(context.Background(), payload, req)
		assert.Equal(t, svm.ErrRecipientMismatch, resp.InvalidReason)
	})

	t.Run("mint mismatch", func(t *testing.T) {
		req := h.required
		req.Asset = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
		resp, _ := h.server.Verify(context.Background(), payload, req)
		assert.Equal(t, svm.ErrMintMismatch, resp.InvalidReason)
	})

	t.Run("network mismatch", func(t *testing.T) {
		req := h.required
		req.Network = svm.SolanaMainnetCAIP2
		resp, _ := h.server.Verify(context.Background(), payload, req)
		assert.Equal(t, x402.ErrCodeNetworkMismatch, resp.InvalidReason)
	})

	t.Run("undecodable transaction", func(t *testing.T) {
		bad := payload
		bad.Payload = map[string]interface{}{"transaction": "!!!"}
		resp, _ := h.server.Verify(context.Background(), bad, h.required)
		assert.Equal(t, svm.ErrTransactionDecode, resp.InvalidReason)
	})

	t.Run("foreign fee payer", func(t *testing.T) {
		other := NewExactSvmServer(solana.NewWallet().PrivateKey, nil)
		resp, _ := other.Verify(context.Background(), payload, h.required)
		assert.Equal(t, svm.ErrFeePayerMismatch, resp.InvalidReason)
	})
}

func TestVerifyInstructionLayout(t *testing.T) {
	h := newHarness(t)
	budget := h.computeBudget(t, 1)

	t.Run("too few instructions", func(t *testing.T) {
		payload := h.payWith(t, budget[0], h.transfer(t, 10000, h.payTo))
		resp, _ := h.server.Verify(context.Background(), payload, h.required)
		assert.Equal(t, svm.ErrTransactionInstructionsLength, resp.InvalidReason)
	})

	t.Run("compute price too high", func(t *testing.T) {
		expensive := h.computeBudget(t, svm.MaxComputeUnitPrice+1)
		payload := h.payWith(t, expensive[0], expensive[1], h.transfer(t, 10000, h.payTo))
		resp, _ := h.server.Verify(context.Background(), payload, h.required)
		assert.Equal(t, svm.ErrComputePriceTooHigh, resp.InvalidReason)
	})

	t.Run("swapped compute budget", func(t *testing.T) {
		payload := h.payWith(t, budget[1], budget[0], h.transfer(t, 10000, h.payTo))
		resp, _ := h.server.Verify(context.Background(), payload, h.required)
		assert.Equal(t, svm.ErrComputeLimitInstruction, resp.InvalidReason)
	})

	t.Run("valid hand built", func(t *testing.T) {
		payload := h.payWith(t, budget[0], budget[1], h.transfer(t, 10000, h.payTo))
		resp, _ := h.server.Verify(context.Background(), payload, h.required)
		assert.True(t, resp.IsValid, resp.InvalidReason)
	})
}

func TestVerifyRequiresOwnerSignature(t *testing.T) {
	h := newHarness(t)
	payload := h.pay(t, h.required)

	tx, err := svm.DecodeTransaction(payload.Payload["transaction"].(string))
	require.NoError(t, err)
	for i := range tx.Signatures {
		tx.Signatures[i] = solana.Signature{}
	}
	encoded, err := svm.EncodeTransaction(tx)
	require.NoError(t, err)
	payload.Payload = map[string]interface{}{"transaction": encoded}

	resp, _ := h.server.Verify(context.Background(), payload, h.required)
	assert.Equal(t, svm.ErrMissingSignature, resp.InvalidReason)
}

func TestSettle(t *testing.T) {
	h := newHarness(t)

	resp, err := h.server.Settle(context.Background(), h.pay(t, h.required), h.required)
	require.NoError(t, err)
	assert.True(t, resp.Success, resp.ErrorReason)
	assert.Equal(t, h.owner.PublicKey().String(), resp.Payer)
	assert.Equal(t, x402.Network(svm.SolanaDevnetCAIP2), resp.Network)

	require.Len(t, h.rpc.Submitted, 1)
	submitted := h.rpc.Submitted[0]
	assert.True(t, svm.HasValidSignature(submitted, h.server.FeePayer()))
	assert.True(t, svm.HasValidSignature(submitted, h.owner.PublicKey()))
	assert.Equal(t, submitted.Signatures[0].String(), resp.Transaction)
}

func TestSettleWithoutSubmitter(t *testing.T) {
	h := newHarness(t)
	h.server = NewExactSvmServer(h.server.feePayer, nil)

	resp, err := h.server.Settle(context.Background(), h.pay(t, h.required), h.required)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Transaction)
	assert.Empty(t, h.rpc.Submitted)
}

func TestSettleFailures(t *testing.T) {
	h := newHarness(t)
	payload := h.pay(t, h.required)

	req := h.required
	req.Amount = "1"
	resp, err := h.server.Settle(context.Background(), payload, req)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, svm.ErrAmountMismatch, resp.ErrorReason)

	h.rpc.Err = errors.New("blockhash not found")
	resp, err = h.server.Settle(context.Background(), payload, h.required)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "blockhash not found", resp.ErrorReason)
}

func TestParsePrice(t *testing.T) {
	s := NewExactSvmServer(solana.NewWallet().PrivateKey, nil)
	devnet := x402.Network(svm.SolanaDevnetCAIP2)
	devUSDC := "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"

	tests := []struct {
		name    string
		price   x402.Price
		network x402.Network
		amount  string
		asset   string
		wantErr bool
	}{
		{"dollar string", "$0.01", devnet, "10000", devUSDC, false},
		{"plain string", "0.5", devnet, "500000", devUSDC, false},
		{"usd symbol", "1 USD", devnet, "1000000", devUSDC, false},
		{"usdt mainnet", "2 USDT", "mainnet-beta", "2000000", "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", false},
		{"float", 0.25, devnet, "250000", devUSDC, false},
		{"int", 3, devnet, "3000000", devUSDC, false},
		{"int64", int64(1), devnet, "1000000", devUSDC, false},
		{"map", map[string]interface{}{"amount": "77", "asset": "So11111111111111111111111111111111111111112"}, devnet, "77", "So11111111111111111111111111111111111111112", false},
		{"unknown symbol", "1 BONK", devnet, "", "", true},
		{"usdt on devnet", "1 USDT", devnet, "", "", true},
		{"testnet has no default asset", "1", "testnet", "", "", true},
		{"bad network", "1", "eip155:1", "", "", true},
		{"bad type", []int{1}, devnet, "", "", true},
		{"too many words", "1 US DC", devnet, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ParsePrice(tt.price, tt.network)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.amount, got.Amount)
			assert.Equal(t, tt.asset, got.Asset)
		})
	}
}

func TestInstructionConstraints(t *testing.T) {
	assert.Equal(t, "invalid_exact_solana_payload_transaction_instructions_length", svm.ErrTransactionInstructionsLength)
	assert.NotEqual(t, solana.MustPublicKeyFromBase58(svm.MemoProgramAddress), solana.ComputeBudget)

	t.Run("transfer with missing accounts", func(t *testing.T) {
		h := newHarness(t)
		budget := h.computeBudget(t, 1)
		data, err := h.transfer(t, 10000, h.payTo).Data()
		require.NoError(t, err)
		mint, _ := h.usdc.Mint()
		truncated := solana.NewInstruction(solana.TokenProgramID, solana.AccountMetaSlice{
			solana.Meta(mint),
			solana.Meta(h.owner.PublicKey()).SIGNER(),
		}, data)

		payload := h.payWith(t, budget[0], budget[1], truncated)
		resp, err := h.server.Verify(context.Background(), payload, h.required)
		require.NoError(t, err)
		assert.False(t, resp.IsValid)
		assert.Equal(t, svm.ErrNoTransferInstruction, resp.InvalidReason)

		settled, err := h.server.Settle(context.Background(), payload, h.required)
		require.NoError(t, err)
		assert.False(t, settled.Success)
		assert.Empty(t, h.rpc.Submitted)
	})
}
