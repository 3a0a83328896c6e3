package pda

import (
	"errors"

	"presale-vesting/internal/solana"
)

// ErrInvalidSigner is returned when a Signer does not re-derive to its address.
var ErrInvalidSigner = errors.New("invalid program signer")

// Signer is the authority proof of a program-owned address. It carries the
// seeds and bump instead of a key; Verify re-derives the address from them.
// The zero value never verifies.
type Signer struct {
	programID solana.PublicKey
	seeds     [][]byte
	bump      uint8
	address   solana.PublicKey
}

// Signer builds the authority proof for seeds+bump under this namespace.
func (d *Deriver) Signer(seeds [][]byte, bump uint8) (Signer, error) {
	withBump := make([][]byte, 0, len(seeds)+1)
	for _, seed := range seeds {
		withBump = append(withBump, append([]byte(nil), seed...))
	}
	withBump = append(withBump, []byte{bump})

	addr, err := solana.CreateProgramAddress(withBump, d.programID)
	if err != nil {
		return Signer{}, err
	}

	return Signer{
		programID: d.programID,
		seeds:     withBump,
		bump:      bump,
		address:   addr,
	}, nil
}

// PresaleSigner builds the authority proof of a presale record, which owns
// both custody accounts.
func (d *Deriver) PresaleSigner(title Title, bump uint8) (Signer, error) {
	return d.Signer(PresaleSeeds(title), bump)
}

// Address returns the program-owned address this signer speaks for.
func (s Signer) Address() solana.PublicKey {
	return s.address
}

// Verify re-derives the address from the stored seeds.
func (s Signer) Verify() error {
	if len(s.seeds) == 0 {
		return ErrInvalidSigner
	}
	addr, err := solana.CreateProgramAddress(s.seeds, s.programID)
	if err != nil || addr != s.address {
		return ErrInvalidSigner
	}
	return nil
}
