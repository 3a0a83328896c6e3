package vesting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"presale-vesting/internal/auth"
	"presale-vesting/internal/domain"
	"presale-vesting/internal/observability"
	"presale-vesting/internal/pda"
	"presale-vesting/internal/solana"
	"presale-vesting/internal/storage"
	"presale-vesting/internal/token"
)

// PurchaseResult describes a committed purchase.
type PurchaseResult struct {
	Participant *domain.Participant `json:"participant"`
	Immediate   uint64              `json:"immediate"`
	Locked      uint64              `json:"locked"`
}

// ClaimResult describes a committed claim.
type ClaimResult struct {
	Participant *domain.Participant `json:"participant"`
	Amount      uint64              `json:"amount"`
}

// WithdrawResult describes a committed owner sweep.
type WithdrawResult struct {
	Amount      uint64           `json:"amount"`
	Destination solana.PublicKey `json:"destination"`
}

// Initialize creates the presale record of title and its two custody
// accounts, both owned by the presale address.
func (e *Engine) Initialize(ctx context.Context, owner auth.Signer, title string, bumps domain.PoolBumps, paymentMint, saleMint solana.PublicKey) (p *domain.Presale, err error) {
	start := time.Now()
	defer func() { e.record("initialize", start, err) }()

	if !owner.Valid() {
		return nil, ErrUnauthorized
	}
	t, err := parseTitle(title)
	if err != nil {
		return nil, err
	}
	if paymentMint == saleMint {
		return nil, ErrInvalidMint
	}

	presaleAddr, err := e.verifyBump(pda.PresaleSeeds(t), bumps.Presale, "presale")
	if err != nil {
		return nil, err
	}
	paymentPool, err := e.verifyBump(pda.PoolPaymentSeeds(t), bumps.PoolPayment, "payment pool")
	if err != nil {
		return nil, err
	}
	salePool, err := e.verifyBump(pda.PoolSaleSeeds(t), bumps.PoolSale, "sale pool")
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(presaleKey(t))
	defer unlock()

	now := e.now()
	p = &domain.Presale{
		Address:     presaleAddr,
		Title:       t,
		Bumps:       bumps,
		Owner:       owner.Key(),
		PaymentMint: paymentMint,
		SaleMint:    saleMint,
		PoolPayment: paymentPool,
		PoolSale:    salePool,
		CreatedAt:   now,
	}

	err = e.store.Update(ctx, func(tx storage.Tx) error {
		pm, err := token.GetMint(ctx, tx, paymentMint)
		if err != nil {
			return mapMintErr(err)
		}
		if pm.Decimals != PaymentDecimals {
			return fmt.Errorf("%w: %s has %d", ErrInvalidDecimals, paymentMint, pm.Decimals)
		}
		if _, err := token.GetMint(ctx, tx, saleMint); err != nil {
			return mapMintErr(err)
		}

		if err := tx.InsertPresale(ctx, p); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return fmt.Errorf("%w: presale %s", ErrAlreadyInitialized, t)
			}
			return fmt.Errorf("insert presale: %w", err)
		}
		if _, err := token.InitializeAccount(ctx, tx, paymentPool, paymentMint, presaleAddr, now); err != nil {
			return mapAccountErr(err)
		}
		if _, err := token.InitializeAccount(ctx, tx, salePool, saleMint, presaleAddr, now); err != nil {
			return mapAccountErr(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Printf("initialized presale %s owner=%s payment=%s sale=%s", t, p.Owner, paymentMint, saleMint)
	e.publish(ctx, domain.NewLedgerEvent(domain.EventInitialize, p.Key(), p.Owner, now))
	e.observe(ctx, p.Key())
	return p, nil
}

// InitParticipant creates the caller's ledger entry in a presale. The two
// identity fragments must join to the caller's base58 identity; any split
// whose fragments fit in a seed is accepted. A caller has at most one entry
// per presale.
func (e *Engine) InitParticipant(ctx context.Context, caller auth.Signer, title string, bump uint8, identityA, identityB string) (entry *domain.Participant, err error) {
	start := time.Now()
	defer func() { e.record("init_participant", start, err) }()

	if !caller.Valid() {
		return nil, ErrUnauthorized
	}
	t, err := parseTitle(title)
	if err != nil {
		return nil, err
	}
	if identityA+identityB != caller.Key().String() {
		return nil, fmt.Errorf("%w: %q+%q", ErrInitializationMismatch, identityA, identityB)
	}
	if len(identityA) > solana.MaxSeedLength || len(identityB) > solana.MaxSeedLength {
		return nil, fmt.Errorf("%w: fragments of %d and %d bytes exceed the %d byte seed limit",
			ErrInitializationMismatch, len(identityA), len(identityB), solana.MaxSeedLength)
	}
	addr, err := e.verifyBump(pda.ParticipantSeeds(t, identityA, identityB), bump, "participant")
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(participantKey(t, caller.Key()))
	defer unlock()

	now := e.now()
	entry = &domain.Participant{
		Address:   addr,
		Presale:   t.String(),
		Owner:     caller.Key(),
		Bump:      bump,
		CreatedAt: now,
	}

	err = e.store.Update(ctx, func(tx storage.Tx) error {
		if _, err := loadPresale(ctx, tx, t); err != nil {
			return err
		}
		if err := tx.InsertParticipant(ctx, entry); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return fmt.Errorf("%w: %s already has an entry in %s", ErrAlreadyInitialized, caller.Key(), t)
			}
			return fmt.Errorf("insert participant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := domain.NewLedgerEvent(domain.EventInitParticipant, entry.Presale, entry.Owner, now)
	ev.Participant = addr
	e.publish(ctx, ev)
	return entry, nil
}

// Purchase pays amount of the payment asset into the pool, releases the
// immediate share of the sale asset to the caller and locks the rest. Every
// purchase restarts the maturity clock of the whole locked balance.
func (e *Engine) Purchase(ctx context.Context, caller auth.Signer, title string, amount uint64) (res *PurchaseResult, err error) {
	start := time.Now()
	defer func() { e.record("purchase", start, err) }()

	if amount < 1 {
		return nil, ErrInvalidAmount
	}
	buyer, err := token.SignedBy(caller)
	if err != nil {
		return nil, ErrUnauthorized
	}
	t, err := parseTitle(title)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(participantKey(t, caller.Key()))
	defer unlock()

	immediate, locked := Split(amount)
	now := e.now()

	err = e.store.Update(ctx, func(tx storage.Tx) error {
		p, err := loadPresale(ctx, tx, t)
		if err != nil {
			return err
		}
		entry, err := e.loadParticipant(ctx, tx, p, caller.Key())
		if err != nil {
			return err
		}

		payFrom, err := token.AssociatedAddress(caller.Key(), p.PaymentMint)
		if err != nil {
			return fmt.Errorf("derive payment account: %w", err)
		}
		paid, err := balanceOf(ctx, tx, payFrom)
		if err != nil {
			return err
		}
		if paid < amount {
			return fmt.Errorf("%w: balance %d, need %d", ErrInsufficientPaymentAsset, paid, amount)
		}
		pool, err := balanceOf(ctx, tx, p.PoolSale)
		if err != nil {
			return err
		}
		if pool < immediate {
			return fmt.Errorf("%w: pool holds %d, need %d", ErrInsufficientSaleAsset, pool, immediate)
		}
		if entry.LockedAmount > math.MaxUint64-locked || entry.DepositAmount > math.MaxUint64-amount {
			return ErrOverflow
		}

		authority, err := e.poolAuthority(p)
		if err != nil {
			return err
		}
		if err := token.Transfer(ctx, tx, payFrom, p.PoolPayment, amount, buyer); err != nil {
			return fmt.Errorf("pay into pool: %w", err)
		}
		dest, err := token.EnsureAssociated(ctx, tx, caller.Key(), p.SaleMint, now)
		if err != nil {
			return err
		}
		if err := token.Transfer(ctx, tx, p.PoolSale, dest.Address, immediate, authority); err != nil {
			return fmt.Errorf("release immediate share: %w", err)
		}

		entry.DepositAmount += amount
		entry.LockedAmount += locked
		entry.LastDepositTS = now
		if err := tx.UpdateParticipant(ctx, entry); err != nil {
			return fmt.Errorf("update participant: %w", err)
		}
		res = &PurchaseResult{Participant: entry, Immediate: immediate, Locked: locked}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.RecordTokenVolume("purchase", amount)
	ev := domain.NewLedgerEvent(domain.EventPurchase, t.String(), caller.Key(), now)
	ev.Participant = res.Participant.Address
	ev.Amount, ev.Immediate, ev.Locked = amount, immediate, locked
	e.publish(ctx, ev)
	e.observe(ctx, t.String())
	return res, nil
}

// Claim releases the caller's whole locked balance once it has matured.
func (e *Engine) Claim(ctx context.Context, caller auth.Signer, title string) (res *ClaimResult, err error) {
	start := time.Now()
	defer func() { e.record("claim", start, err) }()

	if !caller.Valid() {
		return nil, ErrUnauthorized
	}
	t, err := parseTitle(title)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(participantKey(t, caller.Key()))
	defer unlock()

	now := e.now()

	err = e.store.Update(ctx, func(tx storage.Tx) error {
		p, err := loadPresale(ctx, tx, t)
		if err != nil {
			return err
		}
		entry, err := e.loadParticipant(ctx, tx, p, caller.Key())
		if err != nil {
			return err
		}

		amount := entry.LockedAmount
		if amount < 1 {
			return ErrNothingToClaim
		}
		if !Matured(entry.LastDepositTS, now) {
			return fmt.Errorf("%w: matures at %d", ErrNotMatured, entry.MaturesAt(int64(LockDuration/time.Second)))
		}
		pool, err := balanceOf(ctx, tx, p.PoolSale)
		if err != nil {
			return err
		}
		if pool < amount {
			return fmt.Errorf("%w: pool holds %d, claim is %d", ErrPoolUndercollateralized, pool, amount)
		}
		if !e.lenient {
			outstanding, err := tx.SumLocked(ctx, p.Key())
			if err != nil {
				return fmt.Errorf("sum locked: %w", err)
			}
			if outstanding > pool {
				return fmt.Errorf("%w: pool holds %d, outstanding locked %d", ErrPoolUndercollateralized, pool, outstanding)
			}
		}

		authority, err := e.poolAuthority(p)
		if err != nil {
			return err
		}
		dest, err := token.EnsureAssociated(ctx, tx, caller.Key(), p.SaleMint, now)
		if err != nil {
			return err
		}
		if err := token.Transfer(ctx, tx, p.PoolSale, dest.Address, amount, authority); err != nil {
			return fmt.Errorf("release locked balance: %w", err)
		}

		entry.LockedAmount = 0
		entry.LastDepositTS = now
		if err := tx.UpdateParticipant(ctx, entry); err != nil {
			return fmt.Errorf("update participant: %w", err)
		}
		res = &ClaimResult{Participant: entry, Amount: amount}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.RecordTokenVolume("claim", res.Amount)
	ev := domain.NewLedgerEvent(domain.EventClaim, t.String(), caller.Key(), now)
	ev.Participant = res.Participant.Address
	ev.Amount = res.Amount
	e.publish(ctx, ev)
	e.observe(ctx, t.String())
	return res, nil
}

// WithdrawPaymentAsset sweeps the payment pool to the presale owner.
func (e *Engine) WithdrawPaymentAsset(ctx context.Context, caller auth.Signer, title string) (*WithdrawResult, error) {
	return e.withdraw(ctx, caller, title, domain.EventWithdrawPayment)
}

// WithdrawSaleAsset sweeps the sale pool to the presale owner.
func (e *Engine) WithdrawSaleAsset(ctx context.Context, caller auth.Signer, title string) (*WithdrawResult, error) {
	return e.withdraw(ctx, caller, title, domain.EventWithdrawSale)
}

func (e *Engine) withdraw(ctx context.Context, caller auth.Signer, title string, kind domain.EventKind) (res *WithdrawResult, err error) {
	start := time.Now()
	defer func() { e.record(string(kind), start, err) }()

	if !caller.Valid() {
		return nil, ErrUnauthorized
	}
	t, err := parseTitle(title)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(presaleKey(t))
	defer unlock()

	now := e.now()

	err = e.store.Update(ctx, func(tx storage.Tx) error {
		p, err := loadPresale(ctx, tx, t)
		if err != nil {
			return err
		}
		if !caller.Is(p.Owner) {
			return fmt.Errorf("%w: %s is not the presale owner", ErrUnauthorized, caller.Key())
		}

		pool, mint := p.PoolPayment, p.PaymentMint
		if kind == domain.EventWithdrawSale {
			pool, mint = p.PoolSale, p.SaleMint
		}
		amount, err := balanceOf(ctx, tx, pool)
		if err != nil {
			return err
		}
		if amount < 1 {
			return ErrEmptyPool
		}

		authority, err := e.poolAuthority(p)
		if err != nil {
			return err
		}
		dest, err := token.EnsureAssociated(ctx, tx, p.Owner, mint, now)
		if err != nil {
			return err
		}
		if err := token.Transfer(ctx, tx, pool, dest.Address, amount, authority); err != nil {
			return fmt.Errorf("sweep pool: %w", err)
		}
		res = &WithdrawResult{Amount: amount, Destination: dest.Address}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Printf("%s: swept %d from %s to %s", kind, res.Amount, t, res.Destination)
	observability.RecordTokenVolume(string(kind), res.Amount)
	ev := domain.NewLedgerEvent(kind, t.String(), caller.Key(), now)
	ev.Amount = res.Amount
	e.publish(ctx, ev)
	e.observe(ctx, t.String())
	return res, nil
}

// SetParticipantLock overwrites the locked balance of participantOwner's
// entry and restarts its maturity clock. No assets move; collateral is
// checked when the balance is claimed.
func (e *Engine) SetParticipantLock(ctx context.Context, caller auth.Signer, title string, participantOwner solana.PublicKey, amount uint64) (entry *domain.Participant, err error) {
	start := time.Now()
	defer func() { e.record("set_lock", start, err) }()

	if !caller.Valid() {
		return nil, ErrUnauthorized
	}
	t, err := parseTitle(title)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(participantKey(t, participantOwner))
	defer unlock()

	now := e.now()

	err = e.store.Update(ctx, func(tx storage.Tx) error {
		p, err := loadPresale(ctx, tx, t)
		if err != nil {
			return err
		}
		if !caller.Is(p.Owner) {
			return fmt.Errorf("%w: %s is not the presale owner", ErrUnauthorized, caller.Key())
		}
		entry, err = e.loadParticipant(ctx, tx, p, participantOwner)
		if err != nil {
			return err
		}

		entry.LockedAmount = amount
		entry.LastDepositTS = now
		if err := tx.UpdateParticipant(ctx, entry); err != nil {
			return fmt.Errorf("update participant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Printf("set lock of %s in %s to %d", participantOwner, t, amount)
	ev := domain.NewLedgerEvent(domain.EventSetLock, t.String(), caller.Key(), now)
	ev.Participant = entry.Address
	ev.Locked = amount
	e.publish(ctx, ev)
	e.observe(ctx, t.String())
	return entry, nil
}

// verifyBump checks a caller-supplied bump against the canonical derivation.
func (e *Engine) verifyBump(seeds [][]byte, bump uint8, what string) (solana.PublicKey, error) {
	addr, err := e.deriver.VerifyBump(seeds, bump)
	if errors.Is(err, pda.ErrBumpMismatch) {
		return solana.PublicKey{}, fmt.Errorf("%w: %s: %v", ErrBumpMismatch, what, err)
	}
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive %s: %w", what, err)
	}
	return addr, nil
}

func mapMintErr(err error) error {
	if errors.Is(err, token.ErrMintNotFound) {
		return fmt.Errorf("%w: %v", ErrMintNotFound, err)
	}
	return err
}

func mapAccountErr(err error) error {
	if errors.Is(err, token.ErrAccountExists) {
		return fmt.Errorf("%w: %v", ErrAlreadyInitialized, err)
	}
	return err
}
