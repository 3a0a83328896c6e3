package vesting

import (
	"context"

	"presale-vesting/internal/domain"
	"presale-vesting/internal/pda"
	"presale-vesting/internal/solana"
	"presale-vesting/internal/storage"
)

// Solvency compares the custody balances of a presale with its outstanding
// locked liability.
type Solvency struct {
	Presale           string `json:"presale"`
	PaymentBalance    uint64 `json:"payment_balance"`
	SaleBalance       uint64 `json:"sale_balance"`
	OutstandingLocked uint64 `json:"outstanding_locked"`
	Covered           bool   `json:"covered"`   // SaleBalance >= OutstandingLocked
	Shortfall         uint64 `json:"shortfall"` // OutstandingLocked - SaleBalance when not covered
}

// Presale returns the presale record of title.
func (e *Engine) Presale(ctx context.Context, title string) (*domain.Presale, error) {
	t, err := parseTitle(title)
	if err != nil {
		return nil, err
	}

	var p *domain.Presale
	err = e.store.View(ctx, func(tx storage.Tx) error {
		var err error
		p, err = loadPresale(ctx, tx, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Participant returns the ledger entry of owner in the presale of title.
func (e *Engine) Participant(ctx context.Context, title string, owner solana.PublicKey) (*domain.Participant, error) {
	t, err := parseTitle(title)
	if err != nil {
		return nil, err
	}

	var entry *domain.Participant
	err = e.store.View(ctx, func(tx storage.Tx) error {
		p, err := loadPresale(ctx, tx, t)
		if err != nil {
			return err
		}
		entry, err = e.loadParticipant(ctx, tx, p, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Solvency reports the custody balances and outstanding locked amount of title.
func (e *Engine) Solvency(ctx context.Context, title string) (*Solvency, error) {
	t, err := parseTitle(title)
	if err != nil {
		return nil, err
	}

	s := &Solvency{Presale: t.String()}
	err = e.store.View(ctx, func(tx storage.Tx) error {
		p, err := loadPresale(ctx, tx, t)
		if err != nil {
			return err
		}
		if s.PaymentBalance, err = balanceOf(ctx, tx, p.PoolPayment); err != nil {
			return err
		}
		if s.SaleBalance, err = balanceOf(ctx, tx, p.PoolSale); err != nil {
			return err
		}
		s.OutstandingLocked, err = tx.SumLocked(ctx, p.Key())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Covered = s.SaleBalance >= s.OutstandingLocked
	if !s.Covered {
		s.Shortfall = s.OutstandingLocked - s.SaleBalance
	}
	return s, nil
}

// Addresses derives every address of the presale of title with canonical bumps.
func (e *Engine) Addresses(title string) (*pda.PresaleAddresses, error) {
	t, err := parseTitle(title)
	if err != nil {
		return nil, err
	}
	return e.deriver.PresaleAddresses(t)
}

// ParticipantAddress derives the ledger entry address and canonical bump of
// owner in the presale of title.
func (e *Engine) ParticipantAddress(title string, owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	t, err := parseTitle(title)
	if err != nil {
		return solana.PublicKey{}, 0, err
	}
	return e.deriver.ParticipantFor(t, owner)
}
