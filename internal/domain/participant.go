package domain

import "presale-vesting/internal/solana"

// Participant is one identity's vesting ledger entry within a presale.
// Corresponds to participants table in PostgreSQL.
type Participant struct {
	Address       solana.PublicKey `json:"address"`         // derived from [title, idA, idB]
	Presale       string           `json:"presale"`         // canonical presale title
	Owner         solana.PublicKey `json:"owner"`           // participant identity
	Bump          uint8            `json:"bump"`            // canonical bump
	DepositAmount uint64           `json:"deposit_amount"`  // cumulative payment, base units
	LockedAmount  uint64           `json:"locked_amount"`   // unclaimed locked sale asset
	LastDepositTS int64            `json:"last_deposit_ts"` // Unix seconds, maturity anchor
	CreatedAt     int64            `json:"created_at"`      // Unix seconds
}

// MaturesAt returns the Unix second at which the locked balance becomes claimable.
func (p *Participant) MaturesAt(lockSeconds int64) int64 {
	return p.LastDepositTS + lockSeconds
}
