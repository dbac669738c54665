package svm

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	x402 "github.com/x402-foundation/paypanel"
)

// TransferRequest describes the exact payment to build
type TransferRequest struct {
	Owner    solana.PublicKey
	Token    TokenInfo
	PayTo    string
	Amount   string
	FeePayer solana.PublicKey
}

// TransferRequestFor derives a TransferRequest from payment requirements.
// The requirements must name token's mint as their asset.
func TransferRequestFor(owner solana.PublicKey, tokenInfo TokenInfo, requirements x402.PaymentRequirements) (TransferRequest, error) {
	if requirements.Asset != tokenInfo.Address {
		return TransferRequest{}, fmt.Errorf("requirements ask for asset %s, handler pays in %s (%s)", requirements.Asset, tokenInfo.Address, tokenInfo.Symbol)
	}
	feePayer, err := FeePayerFromExtra(requirements.Extra)
	if err != nil {
		return TransferRequest{}, err
	}
	return TransferRequest{
		Owner:    owner,
		Token:    tokenInfo,
		PayTo:    requirements.PayTo,
		Amount:   requirements.RequiredAmount(),
		FeePayer: feePayer,
	}, nil
}

// BuildTransferTransaction assembles the unsigned exact-payment transaction:
// SetComputeUnitLimit, SetComputeUnitPrice, TransferChecked from the owner's
// associated token account to the recipient's. Both token accounts must exist.
func BuildTransferTransaction(ctx context.Context, client RPC, req TransferRequest) (*solana.Transaction, error) {
	mint, err := req.Token.Mint()
	if err != nil {
		return nil, fmt.Errorf("invalid asset address: %w", err)
	}

	payTo, err := solana.PublicKeyFromBase58(req.PayTo)
	if err != nil {
		return nil, fmt.Errorf("invalid payTo address: %w", err)
	}

	amount, err := strconv.ParseUint(req.Amount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	mintAccount, err := client.GetAccountInfo(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to get mint account: %w", err)
	}
	if mintAccount == nil || mintAccount.Value == nil {
		return nil, fmt.Errorf("mint account %s not found", mint)
	}
	if mintAccount.Value.Owner != solana.TokenProgramID {
		return nil, fmt.Errorf("asset %s is not owned by the SPL token program", mint)
	}
	if err := checkMintDecimals(mintAccount.Value, req.Token.Decimals); err != nil {
		return nil, err
	}

	sourceATA, _, err := solana.FindAssociatedTokenAddress(req.Owner, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive source ATA: %w", err)
	}
	destinationATA, _, err := solana.FindAssociatedTokenAddress(payTo, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive destination ATA: %w", err)
	}

	exists, err := accountExists(ctx, client, sourceATA)
	if err != nil {
		return nil, fmt.Errorf("failed to get source token account: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%s: source token account does not exist for %s", ErrATANotFound, req.Owner)
	}
	exists, err = accountExists(ctx, client, destinationATA)
	if err != nil {
		return nil, fmt.Errorf("failed to get destination token account: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%s: destination token account does not exist for %s", ErrATANotFound, req.PayTo)
	}

	latest, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	cuLimit, err := computebudget.NewSetComputeUnitLimitInstructionBuilder().
		SetUnits(DefaultComputeUnitLimit).
		ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build compute limit instruction: %w", err)
	}

	cuPrice, err := computebudget.NewSetComputeUnitPriceInstructionBuilder().
		SetMicroLamports(DefaultComputeUnitPrice).
		ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build compute price instruction: %w", err)
	}

	transfer, err := token.NewTransferCheckedInstructionBuilder().
		SetAmount(amount).
		SetDecimals(req.Token.Decimals).
		SetSourceAccount(sourceATA).
		SetMintAccount(mint).
		SetDestinationAccount(destinationATA).
		SetOwnerAccount(req.Owner).
		ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer instruction: %w", err)
	}

	tx, err := solana.NewTransactionBuilder().
		AddInstruction(cuLimit).
		AddInstruction(cuPrice).
		AddInstruction(transfer).
		SetRecentBlockHash(latest.Value.Blockhash).
		SetFeePayer(req.FeePayer).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return tx, nil
}

// checkMintDecimals compares the on-chain mint decimals with the table entry
// when the rpc returned account data
func checkMintDecimals(account *rpc.Account, want uint8) error {
	if account.Data == nil {
		return nil
	}
	raw := account.Data.GetBinary()
	if len(raw) == 0 {
		return nil
	}

	var mint token.Mint
	if err := bin.NewBinDecoder(raw).Decode(&mint); err != nil {
		return fmt.Errorf("failed to decode mint data: %w", err)
	}
	if mint.Decimals != want {
		return fmt.Errorf("mint has %d decimals, token table says %d", mint.Decimals, want)
	}
	return nil
}

// accountExists separates a missing account from a failed lookup
func accountExists(ctx context.Context, client RPC, address solana.PublicKey) (bool, error) {
	account, err := client.GetAccountInfo(ctx, address)
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return account != nil && account.Value != nil, nil
}
