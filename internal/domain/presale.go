package domain

import (
	"presale-vesting/internal/pda"
	"presale-vesting/internal/solana"
)

// PoolBumps holds the canonical bumps of the presale record and its custody accounts.
type PoolBumps struct {
	Presale     uint8 `json:"presale"`
	PoolPayment uint8 `json:"pool_payment"`
	PoolSale    uint8 `json:"pool_sale"`
}

// Presale is the pool record of one presale, keyed by its trimmed title.
// Corresponds to presales table in PostgreSQL.
type Presale struct {
	Address     solana.PublicKey `json:"address"`      // derived from [title]
	Title       pda.Title        `json:"title"`        // space-padded, 10 bytes
	Bumps       PoolBumps        `json:"bumps"`        // canonical bumps
	Owner       solana.PublicKey `json:"owner"`        // initializing identity
	PaymentMint solana.PublicKey `json:"payment_mint"` // 6-decimal payment asset
	SaleMint    solana.PublicKey `json:"sale_mint"`    // asset being sold
	PoolPayment solana.PublicKey `json:"pool_payment"` // payment custody account
	PoolSale    solana.PublicKey `json:"pool_sale"`    // sale custody account
	CreatedAt   int64            `json:"created_at"`   // Unix seconds
}

// Key returns the canonical title used as the store key.
func (p *Presale) Key() string {
	return p.Title.String()
}
