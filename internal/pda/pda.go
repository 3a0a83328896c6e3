// Package pda derives the program-owned addresses of a presale: the presale
// record, its two custody pools and the per-participant ledger entries.
//
// Seeds:
//
//	presale       [title]
//	pool payment  [title, "pool_usdc"]
//	pool sale     [title, "pool_wen"]
//	participant   [title, identityA, identityB]   identityA+identityB == base58(owner)
//
// The title seed is always the trimmed title. Seeds are hashed without
// separators, so a title ending in a role tag is rejected: the presale record
// of "Apool_wen" would otherwise be the sale pool of "A".
package pda

import (
	"errors"
	"fmt"

	"presale-vesting/internal/solana"
)

// Role tags. The values match the deployed program's seeds.
const (
	TagPoolPayment = "pool_usdc"
	TagPoolSale    = "pool_wen"
)

// ErrBumpMismatch is returned when a caller-supplied bump is not the canonical bump.
var ErrBumpMismatch = errors.New("bump does not match canonical derivation")

// Deriver derives addresses under one program namespace.
type Deriver struct {
	programID solana.PublicKey
}

// New creates a Deriver for programID.
func New(programID solana.PublicKey) *Deriver {
	return &Deriver{programID: programID}
}

// ProgramID returns the namespace used for derivation.
func (d *Deriver) ProgramID() solana.PublicKey {
	return d.programID
}

// PresaleAddresses holds every address owned by one presale with its canonical bump.
type PresaleAddresses struct {
	Presale         solana.PublicKey `json:"presale"`
	PresaleBump     uint8            `json:"presale_bump"`
	PoolPayment     solana.PublicKey `json:"pool_payment"`
	PoolPaymentBump uint8            `json:"pool_payment_bump"`
	PoolSale        solana.PublicKey `json:"pool_sale"`
	PoolSaleBump    uint8            `json:"pool_sale_bump"`
}

// PresaleSeeds returns the seeds of the presale record.
func PresaleSeeds(title Title) [][]byte {
	return [][]byte{title.Seed()}
}

// PoolPaymentSeeds returns the seeds of the payment-asset custody account.
func PoolPaymentSeeds(title Title) [][]byte {
	return [][]byte{title.Seed(), []byte(TagPoolPayment)}
}

// PoolSaleSeeds returns the seeds of the sale-asset custody account.
func PoolSaleSeeds(title Title) [][]byte {
	return [][]byte{title.Seed(), []byte(TagPoolSale)}
}

// ParticipantSeeds returns the seeds of a participant ledger entry.
func ParticipantSeeds(title Title, identityA, identityB string) [][]byte {
	return [][]byte{title.Seed(), []byte(identityA), []byte(identityB)}
}

// SplitIdentity splits an owner's base58 identity into the two seed fragments
// used for participant derivation. Each fragment fits within a single seed.
func SplitIdentity(owner solana.PublicKey) (string, string) {
	s := owner.String()
	mid := len(s) / 2
	return s[:mid], s[mid:]
}

// Presale derives the presale record address.
func (d *Deriver) Presale(title Title) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(PresaleSeeds(title), d.programID)
}

// PresaleAddresses derives the presale record and both custody accounts.
func (d *Deriver) PresaleAddresses(title Title) (*PresaleAddresses, error) {
	presale, presaleBump, err := d.Presale(title)
	if err != nil {
		return nil, fmt.Errorf("derive presale: %w", err)
	}
	payment, paymentBump, err := solana.FindProgramAddress(PoolPaymentSeeds(title), d.programID)
	if err != nil {
		return nil, fmt.Errorf("derive payment pool: %w", err)
	}
	sale, saleBump, err := solana.FindProgramAddress(PoolSaleSeeds(title), d.programID)
	if err != nil {
		return nil, fmt.Errorf("derive sale pool: %w", err)
	}

	return &PresaleAddresses{
		Presale:         presale,
		PresaleBump:     presaleBump,
		PoolPayment:     payment,
		PoolPaymentBump: paymentBump,
		PoolSale:        sale,
		PoolSaleBump:    saleBump,
	}, nil
}

// Participant derives a participant entry from explicit identity fragments.
func (d *Deriver) Participant(title Title, identityA, identityB string) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(ParticipantSeeds(title, identityA, identityB), d.programID)
}

// ParticipantFor derives the participant entry of owner using the canonical split.
func (d *Deriver) ParticipantFor(title Title, owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	a, b := SplitIdentity(owner)
	return d.Participant(title, a, b)
}

// VerifyBump checks that bump is the canonical bump for seeds and returns the address.
func (d *Deriver) VerifyBump(seeds [][]byte, bump uint8) (solana.PublicKey, error) {
	addr, canonical, err := solana.FindProgramAddress(seeds, d.programID)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if bump != canonical {
		return solana.PublicKey{}, fmt.Errorf("%w: got %d, want %d", ErrBumpMismatch, bump, canonical)
	}
	return addr, nil
}
