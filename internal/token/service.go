package token

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"presale-vesting/internal/auth"
	"presale-vesting/internal/domain"
	"presale-vesting/internal/observability"
	"presale-vesting/internal/solana"
	"presale-vesting/internal/storage"
)

// MaxSymbolLength bounds the symbol seed of a locally created mint.
const MaxSymbolLength = solana.MaxSeedLength

// ErrInvalidSymbol is returned for an empty or oversized mint symbol.
var ErrInvalidSymbol = errors.New("invalid mint symbol")

// ServiceOptions configures Service.
type ServiceOptions struct {
	Store  storage.Store
	Reader solana.AccountReader // optional, enables ImportMint
	Now    func() time.Time
	Logger *log.Logger
}

// Service exposes the token ledger to callers outside a presale operation.
type Service struct {
	store  storage.Store
	reader solana.AccountReader
	now    func() time.Time
	logger *log.Logger
}

// NewService creates a token Service.
func NewService(opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:  opts.Store,
		reader: opts.Reader,
		now:    now,
		logger: logger,
	}
}

func (s *Service) record(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordOperation(op, status, time.Since(start).Seconds())
}

// CreateMint creates a mint whose authority is the caller.
func (s *Service) CreateMint(ctx context.Context, caller auth.Signer, symbol string, decimals uint8) (m *domain.Mint, err error) {
	start := time.Now()
	defer func() { s.record("create_mint", start, err) }()

	if !caller.Valid() {
		return nil, ErrInvalidAuthority
	}
	if symbol == "" || len(symbol) > MaxSymbolLength {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	addr, err := MintAddress(caller.Key(), symbol)
	if err != nil {
		return nil, fmt.Errorf("derive mint address: %w", err)
	}

	err = s.store.Update(ctx, func(tx storage.Tx) error {
		var err error
		m, err = CreateMint(ctx, tx, addr, caller.Key(), decimals, s.now().Unix())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Printf("created mint %s (%s, %d decimals) for %s", m.Address, symbol, decimals, caller.Key())
	return m, nil
}

// MintTo issues amount units of mint into the associated account of owner.
func (s *Service) MintTo(ctx context.Context, caller auth.Signer, mint, owner solana.PublicKey, amount uint64) (a *domain.TokenAccount, err error) {
	start := time.Now()
	defer func() { s.record("mint_to", start, err) }()

	authority, err := SignedBy(caller)
	if err != nil {
		return nil, err
	}

	err = s.store.Update(ctx, func(tx storage.Tx) error {
		dest, err := EnsureAssociated(ctx, tx, owner, mint, s.now().Unix())
		if err != nil {
			return err
		}
		if err := MintTo(ctx, tx, mint, dest.Address, amount, authority); err != nil {
			return err
		}
		a, err = GetAccount(ctx, tx, dest.Address)
		return err
	})
	if err != nil {
		return nil, err
	}
	observability.RecordTokenVolume("mint_to", amount)
	return a, nil
}

// Transfer moves amount of mint from the caller's associated account to the
// associated account of recipient, creating it when missing.
func (s *Service) Transfer(ctx context.Context, caller auth.Signer, mint, recipient solana.PublicKey, amount uint64) (err error) {
	start := time.Now()
	defer func() { s.record("transfer", start, err) }()

	authority, err := SignedBy(caller)
	if err != nil {
		return err
	}
	from, err := AssociatedAddress(caller.Key(), mint)
	if err != nil {
		return fmt.Errorf("derive source account: %w", err)
	}

	err = s.store.Update(ctx, func(tx storage.Tx) error {
		dest, err := EnsureAssociated(ctx, tx, recipient, mint, s.now().Unix())
		if err != nil {
			return err
		}
		return Transfer(ctx, tx, from, dest.Address, amount, authority)
	})
	if err != nil {
		return err
	}
	observability.RecordTokenVolume("transfer", amount)
	return nil
}

// TransferToAccount moves amount of mint from the caller's associated account
// to an existing token account, such as a presale custody pool.
func (s *Service) TransferToAccount(ctx context.Context, caller auth.Signer, mint, account solana.PublicKey, amount uint64) (err error) {
	start := time.Now()
	defer func() { s.record("transfer", start, err) }()

	authority, err := SignedBy(caller)
	if err != nil {
		return err
	}
	from, err := AssociatedAddress(caller.Key(), mint)
	if err != nil {
		return fmt.Errorf("derive source account: %w", err)
	}

	err = s.store.Update(ctx, func(tx storage.Tx) error {
		return Transfer(ctx, tx, from, account, amount, authority)
	})
	if err != nil {
		return err
	}
	observability.RecordTokenVolume("transfer", amount)
	return nil
}

// Account returns the associated account of owner for mint.
func (s *Service) Account(ctx context.Context, owner, mint solana.PublicKey) (*domain.TokenAccount, error) {
	addr, err := AssociatedAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("derive associated account: %w", err)
	}

	var a *domain.TokenAccount
	err = s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		a, err = GetAccount(ctx, tx, addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Mint returns a mint by address.
func (s *Service) Mint(ctx context.Context, address solana.PublicKey) (*domain.Mint, error) {
	var m *domain.Mint
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		m, err = GetMint(ctx, tx, address)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ErrNoReader is returned by ImportMint when no AccountReader is configured.
var ErrNoReader = errors.New("no account reader configured")

// ImportMint copies an on-chain mint definition into the local ledger so a
// presale can reference it. Only decimals and the mint authority are copied;
// local supply starts at zero.
func (s *Service) ImportMint(ctx context.Context, address solana.PublicKey) (m *domain.Mint, err error) {
	start := time.Now()
	defer func() { s.record("import_mint", start, err) }()

	if s.reader == nil {
		return nil, ErrNoReader
	}
	info, err := s.reader.GetMint(ctx, address.String())
	if err != nil {
		return nil, fmt.Errorf("fetch mint: %w", err)
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s not found on chain", ErrMintNotFound, address)
	}

	var authority solana.PublicKey
	if info.MintAuthority != nil {
		authority = *info.MintAuthority
	}

	err = s.store.Update(ctx, func(tx storage.Tx) error {
		var err error
		m, err = CreateMint(ctx, tx, address, authority, info.Decimals, s.now().Unix())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Printf("imported mint %s (%d decimals, on-chain supply %d)", address, info.Decimals, info.Supply)
	return m, nil
}
