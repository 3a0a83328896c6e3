package solana

import "context"

// AccountReader is the subset of the Solana JSON-RPC API used to mirror on-chain mints.
type AccountReader interface {
	// GetAccountInfo retrieves account info by address. Returns nil if the account does not exist.
	GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error)

	// GetMint retrieves and decodes an SPL token mint. Returns nil if the account does not exist.
	GetMint(ctx context.Context, address string) (*MintInfo, error)
}
