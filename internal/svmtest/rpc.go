// Package svmtest provides an in-memory Solana rpc for tests.
package svmtest

import (
	"context"
	"sync"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// FakeRPC serves account lookups and blockhashes from memory and records
// submitted transactions.
type FakeRPC struct {
	mu        sync.Mutex
	accounts  map[solana.PublicKey]*rpc.Account
	failures  map[solana.PublicKey]error
	Blockhash solana.Hash
	Slot      uint64
	Health    string
	Err       error

	Submitted    []*solana.Transaction
	AccountCalls int
}

// NewFakeRPC creates an empty rpc
func NewFakeRPC() *FakeRPC {
	return &FakeRPC{
		accounts:  make(map[solana.PublicKey]*rpc.Account),
		failures:  make(map[solana.PublicKey]error),
		Blockhash: solana.Hash{7, 7, 7},
		Slot:      4242,
		Health:    "ok",
	}
}

// AddAccount registers an account owned by owner
func (f *FakeRPC) AddAccount(address, owner solana.PublicKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[address] = &rpc.Account{Owner: owner, Lamports: 2039280}
}

// FailAccount makes lookups of address return err
func (f *FakeRPC) FailAccount(address solana.PublicKey, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[address] = err
}

// Fund registers mint and the associated token accounts of every holder
func (f *FakeRPC) Fund(mint solana.PublicKey, holders ...solana.PublicKey) {
	f.AddAccount(mint, solana.TokenProgramID)
	for _, holder := range holders {
		ata, _, err := solana.FindAssociatedTokenAddress(holder, mint)
		if err != nil {
			panic(err)
		}
		f.AddAccount(ata, solana.TokenProgramID)
	}
}

func (f *FakeRPC) GetAccountInfo(_ context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AccountCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	if err := f.failures[account]; err != nil {
		return nil, err
	}
	acc, ok := f.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: acc}, nil
}

func (f *FakeRPC) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash:            f.Blockhash,
			LastValidBlockHeight: 100,
		},
	}, nil
}

func (f *FakeRPC) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return solana.Signature{}, f.Err
	}
	f.Submitted = append(f.Submitted, tx)
	if len(tx.Signatures) == 0 {
		return solana.Signature{}, nil
	}
	return tx.Signatures[0], nil
}

func (f *FakeRPC) GetSlot(context.Context, rpc.CommitmentType) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Slot, f.Err
}

func (f *FakeRPC) GetHealth(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Health, f.Err
}

// Calls reports the number of account lookups served
func (f *FakeRPC) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.AccountCalls
}
