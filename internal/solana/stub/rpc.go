package stub

import (
	"context"

	"presale-vesting/internal/solana"
)

// RPCClient implements solana.AccountReader for testing.
type RPCClient struct {
	Accounts map[string]*solana.AccountInfo
	Mints    map[string]*solana.MintInfo
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Accounts: make(map[string]*solana.AccountInfo),
		Mints:    make(map[string]*solana.MintInfo),
	}
}

// GetAccountInfo returns a stored account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, address string) (*solana.AccountInfo, error) {
	return c.Accounts[address], nil
}

// GetMint returns a stored mint or nil.
func (c *RPCClient) GetMint(_ context.Context, address string) (*solana.MintInfo, error) {
	return c.Mints[address], nil
}

// AddMint adds a mint to the stub store.
func (c *RPCClient) AddMint(mint *solana.MintInfo) {
	c.Mints[mint.Address.String()] = mint
}

var _ solana.AccountReader = (*RPCClient)(nil)
