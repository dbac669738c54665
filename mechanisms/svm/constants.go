// Package svm provides Solana (SVM) support for the x402 payment protocol:
// network naming, the well-known token table, amount math, transaction
// encoding and the exact-scheme transfer builder shared by the v1 and v2
// mechanisms.
package svm

const (
	// SchemeExact is the scheme identifier for exact payments
	SchemeExact = "exact"

	// CAIP-2 network identifiers (genesis hash prefixes)
	SolanaMainnetCAIP2 = "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
	SolanaDevnetCAIP2  = "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"
	SolanaTestnetCAIP2 = "solana:4uhcVJyU9pJkvQyS88uRDiswHXSCkY3z"

	// V1 network names
	SolanaMainnetV1 = "solana"
	SolanaDevnetV1  = "solana-devnet"
	SolanaTestnetV1 = "solana-testnet"

	// Cluster names as used by wallets and RPC providers
	ClusterMainnet = "mainnet-beta"
	ClusterDevnet  = "devnet"
	ClusterTestnet = "testnet"

	// DefaultComputeUnitLimit covers ComputeLimit + ComputePrice + TransferChecked
	DefaultComputeUnitLimit uint32 = 6500

	// DefaultComputeUnitPrice in microlamports
	DefaultComputeUnitPrice uint64 = 1

	// MaxComputeUnitPrice a server accepts before rejecting the payment
	MaxComputeUnitPrice uint64 = 5_000_000

	// MemoProgramAddress may appear as an optional trailing instruction
	MemoProgramAddress = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"
)

// Verification failure reasons
const (
	ErrTransactionDecode             = "invalid_exact_solana_payload_transaction_could_not_be_decoded"
	ErrTransactionInstructionsLength = "invalid_exact_solana_payload_transaction_instructions_length"
	ErrComputeLimitInstruction       = "invalid_exact_solana_payload_transaction_instructions_compute_limit_instruction"
	ErrComputePriceInstruction       = "invalid_exact_solana_payload_transaction_instructions_compute_price_instruction"
	ErrComputePriceTooHigh           = "invalid_exact_solana_payload_transaction_instructions_compute_price_instruction_too_high"
	ErrNoTransferInstruction         = "invalid_exact_solana_payload_no_transfer_instruction"
	ErrMintMismatch                  = "invalid_exact_solana_payload_mint_mismatch"
	ErrRecipientMismatch             = "invalid_exact_solana_payload_recipient_mismatch"
	ErrAmountMismatch                = "invalid_exact_solana_payload_amount_mismatch"
	ErrFeePayerMismatch              = "invalid_exact_solana_payload_fee_payer_mismatch"
	ErrFeePayerTransferring          = "invalid_exact_solana_payload_transaction_fee_payer_transferring_funds"
	ErrMissingSignature              = "invalid_exact_solana_payload_missing_signature"
	ErrATANotFound                   = "invalid_exact_solana_payload_ata_not_found"
)
