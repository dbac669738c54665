// Package server implements the resource-server side of the exact Solana
// scheme: pricing, verification of client transactions, and settlement by
// co-signing as fee payer.
package server

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	x402 "github.com/x402-foundation/paypanel"
	svm "github.com/x402-foundation/paypanel/mechanisms/svm"
)

const (
	setComputeUnitLimitDiscriminator = 2
	setComputeUnitPriceDiscriminator = 3
)

// Submitter sends a fully signed transaction to the cluster
type Submitter interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// ExactSvmServer implements x402.SchemeNetworkServer for exact SPL payments
type ExactSvmServer struct {
	feePayer  solana.PrivateKey
	submitter Submitter
}

var _ x402.SchemeNetworkServer = (*ExactSvmServer)(nil)

// NewExactSvmServer creates a server paying network fees with feePayer.
// With a nil submitter, settlement co-signs but does not broadcast.
func NewExactSvmServer(feePayer solana.PrivateKey, submitter Submitter) *ExactSvmServer {
	return &ExactSvmServer{
		feePayer:  feePayer,
		submitter: submitter,
	}
}

// Scheme returns the scheme identifier
func (s *ExactSvmServer) Scheme() string {
	return svm.SchemeExact
}

// FeePayer returns the address advertised in requirements.extra.feePayer
func (s *ExactSvmServer) FeePayer() solana.PublicKey {
	return s.feePayer.PublicKey()
}

// ParsePrice converts a price to an amount of the network's default asset.
// Accepted forms: "$0.01", "0.01", "0.01 USDC", "1 USDT", float64, int,
// int64, and a pre-parsed {"amount", "asset", "extra"} map.
func (s *ExactSvmServer) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	config, err := svm.GetNetworkConfig(string(network))
	if err != nil {
		return x402.AssetAmount{}, err
	}

	if priceMap, ok := price.(map[string]interface{}); ok {
		return parsePriceMap(priceMap, config)
	}

	var amount string
	switch v := price.(type) {
	case string:
		return parseStringPrice(v, config)
	case float64:
		amount = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		amount = strconv.Itoa(v)
	case int64:
		amount = strconv.FormatInt(v, 10)
	default:
		return x402.AssetAmount{}, fmt.Errorf("invalid price format: %v", price)
	}

	return toAssetAmount(amount, config.DefaultAsset, config)
}

func parsePriceMap(priceMap map[string]interface{}, config *svm.NetworkConfig) (x402.AssetAmount, error) {
	amount, ok := priceMap["amount"].(string)
	if !ok {
		return x402.AssetAmount{}, fmt.Errorf("amount must be a string")
	}

	asset := config.DefaultAsset.Address
	if a, ok := priceMap["asset"].(string); ok && a != "" {
		asset = a
	}
	if asset == "" {
		return x402.AssetAmount{}, fmt.Errorf("no default asset on %s", config.Cluster)
	}

	extra := map[string]interface{}{}
	if e, ok := priceMap["extra"].(map[string]interface{}); ok {
		extra = e
	}

	return x402.AssetAmount{Amount: amount, Asset: asset, Extra: extra}, nil
}

func parseStringPrice(priceStr string, config *svm.NetworkConfig) (x402.AssetAmount, error) {
	parts := strings.Fields(strings.TrimPrefix(strings.TrimSpace(priceStr), "$"))

	switch len(parts) {
	case 1:
		return toAssetAmount(parts[0], config.DefaultAsset, config)
	case 2:
		symbol := strings.ToUpper(parts[1])
		if symbol == "USD" {
			symbol = "USDC"
		}
		info, err := svm.LookupKnownSPLToken(config.CAIP2, symbol)
		if err != nil {
			return x402.AssetAmount{}, fmt.Errorf("unsupported asset: %s on network %s", parts[1], config.Cluster)
		}
		return toAssetAmount(parts[0], *info, config)
	}

	return x402.AssetAmount{}, fmt.Errorf(
		"invalid price format: %s. Must specify currency (e.g., \"0.10 USDC\") or use simple number format",
		priceStr,
	)
}

func toAssetAmount(amount string, asset svm.TokenInfo, config *svm.NetworkConfig) (x402.AssetAmount, error) {
	if asset.Address == "" {
		return x402.AssetAmount{}, fmt.Errorf("no default asset on %s", config.Cluster)
	}
	units, err := svm.ParseAmount(amount, asset.Decimals)
	if err != nil {
		return x402.AssetAmount{}, err
	}
	return x402.AssetAmount{
		Amount: strconv.FormatUint(units, 10),
		Asset:  asset.Address,
		Extra:  map[string]interface{}{},
	}, nil
}

// EnhancePaymentRequirements adds the fee payer the client must build against
func (s *ExactSvmServer) EnhancePaymentRequirements(requirements x402.PaymentRequirements) x402.PaymentRequirements {
	extra := make(map[string]interface{}, len(requirements.Extra)+1)
	for k, v := range requirements.Extra {
		extra[k] = v
	}
	extra["feePayer"] = s.FeePayer().String()
	requirements.Extra = extra
	return requirements
}

// Verify checks that the payload carries a transaction paying exactly what
// requirements ask for, signed by the token owner.
func (s *ExactSvmServer) Verify(_ context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	_, owner, reason := s.inspect(payload, requirements)
	if reason != "" {
		resp := &x402.VerifyResponse{IsValid: false, InvalidReason: reason}
		if !owner.IsZero() {
			resp.Payer = owner.String()
		}
		return resp, nil
	}
	return &x402.VerifyResponse{IsValid: true, Payer: owner.String()}, nil
}

// Settle verifies the payment, co-signs it as fee payer and submits it.
// The returned transaction id is the fee payer signature.
func (s *ExactSvmServer) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error) {
	tx, owner, reason := s.inspect(payload, requirements)
	if reason != "" {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: reason,
			Network:     requirements.Network,
		}, nil
	}

	if err := svm.PartialSign(tx, s.feePayer); err != nil {
		return nil, fmt.Errorf("failed to co-sign transaction: %w", err)
	}

	signature := tx.Signatures[0]
	if s.submitter != nil {
		sent, err := s.submitter.SendTransaction(ctx, tx)
		if err != nil {
			return &x402.SettleResponse{
				Success:     false,
				ErrorReason: err.Error(),
				Payer:       owner.String(),
				Network:     requirements.Network,
			}, nil
		}
		if !sent.IsZero() {
			signature = sent
		}
	}

	return &x402.SettleResponse{
		Success:     true,
		Payer:       owner.String(),
		Transaction: signature.String(),
		Network:     requirements.Network,
	}, nil
}

// inspect decodes and checks the payment transaction. It returns a failure
// reason, or "" when the transaction is acceptable.
func (s *ExactSvmServer) inspect(payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*solana.Transaction, solana.PublicKey, string) {
	var none solana.PublicKey

	scheme, network := payload.SchemeAndNetwork()
	if scheme != svm.SchemeExact || requirements.Scheme != svm.SchemeExact {
		return nil, none, x402.ErrCodeSchemeMismatch
	}
	payNet, err := svm.NormalizeNetwork(string(network))
	if err != nil {
		return nil, none, x402.ErrCodeUnsupportedNetwork
	}
	reqNet, err := svm.NormalizeNetwork(string(requirements.Network))
	if err != nil || payNet != reqNet {
		return nil, none, x402.ErrCodeNetworkMismatch
	}

	exact, err := svm.PayloadFromMap(payload.Payload)
	if err != nil {
		return nil, none, svm.ErrTransactionDecode
	}
	tx, err := svm.DecodeTransaction(exact.Transaction)
	if err != nil {
		return nil, none, svm.ErrTransactionDecode
	}

	instructions := tx.Message.Instructions
	if len(instructions) < 3 || len(instructions) > 4 {
		return nil, none, svm.ErrTransactionInstructionsLength
	}

	if reason := checkComputeLimit(tx, instructions[0]); reason != "" {
		return nil, none, reason
	}
	if reason := checkComputePrice(tx, instructions[1]); reason != "" {
		return nil, none, reason
	}
	if len(instructions) == 4 {
		program, err := tx.Message.Program(instructions[3].ProgramIDIndex)
		if err != nil || program != solana.MustPublicKeyFromBase58(svm.MemoProgramAddress) {
			return nil, none, svm.ErrTransactionInstructionsLength
		}
	}

	transfer, reason := decodeTransfer(tx, instructions[2])
	if reason != "" {
		return nil, none, reason
	}
	owner := transfer.GetOwnerAccount().PublicKey

	if tx.Message.AccountKeys[0] != s.FeePayer() {
		return nil, owner, svm.ErrFeePayerMismatch
	}
	if owner == s.FeePayer() {
		return nil, owner, svm.ErrFeePayerTransferring
	}

	mint, err := solana.PublicKeyFromBase58(requirements.Asset)
	if err != nil || transfer.GetMintAccount().PublicKey != mint {
		return nil, owner, svm.ErrMintMismatch
	}

	payTo, err := solana.PublicKeyFromBase58(requirements.PayTo)
	if err != nil {
		return nil, owner, svm.ErrRecipientMismatch
	}
	destination, _, err := solana.FindAssociatedTokenAddress(payTo, mint)
	if err != nil || transfer.GetDestinationAccount().PublicKey != destination {
		return nil, owner, svm.ErrRecipientMismatch
	}

	if strconv.FormatUint(*transfer.Amount, 10) != requirements.RequiredAmount() {
		return nil, owner, svm.ErrAmountMismatch
	}

	if !svm.HasValidSignature(tx, owner) {
		return nil, owner, svm.ErrMissingSignature
	}

	return tx, owner, ""
}

func checkComputeLimit(tx *solana.Transaction, ix solana.CompiledInstruction) string {
	program, err := tx.Message.Program(ix.ProgramIDIndex)
	if err != nil || program != solana.ComputeBudget {
		return svm.ErrComputeLimitInstruction
	}
	dec := bin.NewBinDecoder(ix.Data)
	discriminator, err := dec.ReadUint8()
	if err != nil || discriminator != setComputeUnitLimitDiscriminator {
		return svm.ErrComputeLimitInstruction
	}
	if _, err := dec.ReadUint32(binary.LittleEndian); err != nil {
		return svm.ErrComputeLimitInstruction
	}
	return ""
}

func checkComputePrice(tx *solana.Transaction, ix solana.CompiledInstruction) string {
	program, err := tx.Message.Program(ix.ProgramIDIndex)
	if err != nil || program != solana.ComputeBudget {
		return svm.ErrComputePriceInstruction
	}
	dec := bin.NewBinDecoder(ix.Data)
	discriminator, err := dec.ReadUint8()
	if err != nil || discriminator != setComputeUnitPriceDiscriminator {
		return svm.ErrComputePriceInstruction
	}
	price, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return svm.ErrComputePriceInstruction
	}
	if price > svm.MaxComputeUnitPrice {
		return svm.ErrComputePriceTooHigh
	}
	return ""
}

func decodeTransfer(tx *solana.Transaction, ix solana.CompiledInstruction) (*token.TransferChecked, string) {
	program, err := tx.Message.Program(ix.ProgramIDIndex)
	if err != nil || program != solana.TokenProgramID {
		return nil, svm.ErrNoTransferInstruction
	}
	accounts, err := ix.ResolveInstructionAccounts(&tx.Message)
	if err != nil {
		return nil, svm.ErrNoTransferInstruction
	}
	decoded, err := token.DecodeInstruction(accounts, ix.Data)
	if err != nil {
		return nil, svm.ErrNoTransferInstruction
	}
	transfer, ok := decoded.Impl.(*token.TransferChecked)
	if !ok || transfer.Amount == nil || len(transfer.Accounts) < 4 {
		return nil, svm.ErrNoTransferInstruction
	}
	return transfer, ""
}
