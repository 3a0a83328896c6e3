package domain

import "presale-vesting/internal/solana"

// Mint is a fungible asset definition.
// Corresponds to mints table in PostgreSQL.
type Mint struct {
	Address       solana.PublicKey `json:"address"`
	Decimals      uint8            `json:"decimals"`
	MintAuthority solana.PublicKey `json:"mint_authority"`
	Supply        uint64           `json:"supply"` // base units
	CreatedAt     int64            `json:"created_at"`
}

// TokenAccount is a balance of one mint held under one owner.
// Corresponds to token_accounts table in PostgreSQL.
type TokenAccount struct {
	Address   solana.PublicKey `json:"address"`
	Mint      solana.PublicKey `json:"mint"`
	Owner     solana.PublicKey `json:"owner"`  // identity or program-derived authority
	Amount    uint64           `json:"amount"` // base units
	CreatedAt int64            `json:"created_at"`
}
