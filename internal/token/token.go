// Package token is the fungible asset ledger used by presales: mints, token
// accounts and authority-checked transfers. Every function runs inside a
// caller-provided storage transaction so asset movement commits atomically
// with the ledger change that caused it.
package token

import (
	"context"
	"errors"
	"fmt"
	"math"

	"presale-vesting/internal/auth"
	"presale-vesting/internal/domain"
	"presale-vesting/internal/pda"
	"presale-vesting/internal/solana"
	"presale-vesting/internal/storage"
)

var (
	// ErrInsufficientFunds is returned when a source account balance is below the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrOwnerMismatch is returned when the authority does not own the account.
	ErrOwnerMismatch = errors.New("authority does not own account")

	// ErrMintMismatch is returned when accounts of different mints are combined.
	ErrMintMismatch = errors.New("mint mismatch")

	// ErrOverflow is returned when a balance or supply would exceed math.MaxUint64.
	ErrOverflow = errors.New("amount overflow")

	// ErrInvalidAuthority is returned for an authority that failed verification.
	ErrInvalidAuthority = errors.New("invalid authority")

	// ErrAccountNotFound is returned when a token account does not exist.
	ErrAccountNotFound = errors.New("token account not found")

	// ErrMintNotFound is returned when a mint does not exist.
	ErrMintNotFound = errors.New("mint not found")

	// ErrAccountExists is returned when initializing an address that is already in use.
	ErrAccountExists = errors.New("account already exists")
)

// Authority is a verified right to act for one address: either an identity
// that signed the request, or a program-derived address proven by its seeds.
// The zero value authorizes nothing.
type Authority struct {
	key   solana.PublicKey
	valid bool
}

// SignedBy returns the authority of a verified caller.
func SignedBy(s auth.Signer) (Authority, error) {
	if !s.Valid() {
		return Authority{}, ErrInvalidAuthority
	}
	return Authority{key: s.Key(), valid: true}, nil
}

// DerivedBy returns the authority of a program-derived address.
func DerivedBy(s pda.Signer) (Authority, error) {
	if err := s.Verify(); err != nil {
		return Authority{}, fmt.Errorf("%w: %v", ErrInvalidAuthority, err)
	}
	return Authority{key: s.Address(), valid: true}, nil
}

// Key returns the address this authority acts for.
func (a Authority) Key() solana.PublicKey {
	return a.key
}

func (a Authority) owns(owner solana.PublicKey) bool {
	return a.valid && a.key == owner
}

// AssociatedAddress derives the canonical token account of owner for mint.
func AssociatedAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner[:], solana.TokenProgramID[:], mint[:]},
		solana.AssociatedTokenProgramID,
	)
	return addr, err
}

// MintAddress derives the mint created by authority under symbol.
func MintAddress(authority solana.PublicKey, symbol string) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("mint"), authority[:], []byte(symbol)},
		solana.TokenProgramID,
	)
	return addr, err
}

// CreateMint registers a new mint.
func CreateMint(ctx context.Context, tx storage.TokenStore, address, authority solana.PublicKey, decimals uint8, now int64) (*domain.Mint, error) {
	m := &domain.Mint{
		Address:       address,
		Decimals:      decimals,
		MintAuthority: authority,
		CreatedAt:     now,
	}
	if err := tx.InsertMint(ctx, m); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: mint %s", ErrAccountExists, address)
		}
		return nil, fmt.Errorf("insert mint: %w", err)
	}
	return m, nil
}

// GetMint loads a mint.
func GetMint(ctx context.Context, tx storage.TokenStore, address solana.PublicKey) (*domain.Mint, error) {
	m, err := tx.GetMint(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMintNotFound, address)
	}
	if err != nil {
		return nil, fmt.Errorf("get mint: %w", err)
	}
	return m, nil
}

// InitializeAccount creates an empty token account at address.
func InitializeAccount(ctx context.Context, tx storage.TokenStore, address, mint, owner solana.PublicKey, now int64) (*domain.TokenAccount, error) {
	if _, err := GetMint(ctx, tx, mint); err != nil {
		return nil, err
	}

	a := &domain.TokenAccount{
		Address:   address,
		Mint:      mint,
		Owner:     owner,
		CreatedAt: now,
	}
	if err := tx.InsertTokenAccount(ctx, a); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s", ErrAccountExists, address)
		}
		return nil, fmt.Errorf("insert token account: %w", err)
	}
	return a, nil
}

// EnsureAssociated returns the associated account of owner for mint,
// creating it if it does not exist.
func EnsureAssociated(ctx context.Context, tx storage.TokenStore, owner, mint solana.PublicKey, now int64) (*domain.TokenAccount, error) {
	addr, err := AssociatedAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("derive associated account: %w", err)
	}

	a, err := tx.GetTokenAccount(ctx, addr)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get token account: %w", err)
	}
	return InitializeAccount(ctx, tx, addr, mint, owner, now)
}

// GetAccount loads a token account.
func GetAccount(ctx context.Context, tx storage.TokenStore, address solana.PublicKey) (*domain.TokenAccount, error) {
	a, err := tx.GetTokenAccount(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	if err != nil {
		return nil, fmt.Errorf("get token account: %w", err)
	}
	return a, nil
}

// Balance returns the balance of a token account.
func Balance(ctx context.Context, tx storage.TokenStore, address solana.PublicKey) (uint64, error) {
	a, err := GetAccount(ctx, tx, address)
	if err != nil {
		return 0, err
	}
	return a.Amount, nil
}

// MintTo issues amount new units into dest. authority must be the mint authority.
func MintTo(ctx context.Context, tx storage.TokenStore, mint, dest solana.PublicKey, amount uint64, authority Authority) error {
	m, err := GetMint(ctx, tx, mint)
	if err != nil {
		return err
	}
	if !authority.owns(m.MintAuthority) {
		return fmt.Errorf("%w: %s is not the mint authority", ErrOwnerMismatch, authority.Key())
	}

	a, err := GetAccount(ctx, tx, dest)
	if err != nil {
		return err
	}
	if a.Mint != mint {
		return fmt.Errorf("%w: account %s holds %s", ErrMintMismatch, dest, a.Mint)
	}
	if m.Supply > math.MaxUint64-amount || a.Amount > math.MaxUint64-amount {
		return ErrOverflow
	}

	m.Supply += amount
	a.Amount += amount
	if err := tx.UpdateMint(ctx, m); err != nil {
		return fmt.Errorf("update mint: %w", err)
	}
	if err := tx.UpdateTokenAccount(ctx, a); err != nil {
		return fmt.Errorf("update token account: %w", err)
	}
	return nil
}

// Debit removes amount from account. authority must own the account.
func Debit(ctx context.Context, tx storage.TokenStore, account solana.PublicKey, amount uint64, authority Authority) (*domain.TokenAccount, error) {
	a, err := GetAccount(ctx, tx, account)
	if err != nil {
		return nil, err
	}
	if !authority.owns(a.Owner) {
		return nil, fmt.Errorf("%w: %s", ErrOwnerMismatch, account)
	}
	if a.Amount < amount {
		return nil, fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientFunds, account, a.Amount, amount)
	}

	a.Amount -= amount
	if err := tx.UpdateTokenAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("update token account: %w", err)
	}
	return a, nil
}

// Credit adds amount to account.
func Credit(ctx context.Context, tx storage.TokenStore, account solana.PublicKey, amount uint64) (*domain.TokenAccount, error) {
	a, err := GetAccount(ctx, tx, account)
	if err != nil {
		return nil, err
	}
	if a.Amount > math.MaxUint64-amount {
		return nil, ErrOverflow
	}

	a.Amount += amount
	if err := tx.UpdateTokenAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("update token account: %w", err)
	}
	return a, nil
}

// Transfer moves amount from one account to another of the same mint.
func Transfer(ctx context.Context, tx storage.TokenStore, from, to solana.PublicKey, amount uint64, authority Authority) error {
	src, err := GetAccount(ctx, tx, from)
	if err != nil {
		return err
	}
	dst, err := GetAccount(ctx, tx, to)
	if err != nil {
		return err
	}
	if src.Mint != dst.Mint {
		return fmt.Errorf("%w: %s -> %s", ErrMintMismatch, src.Mint, dst.Mint)
	}
	if from != to && dst.Amount > math.MaxUint64-amount {
		return ErrOverflow
	}

	if _, err := Debit(ctx, tx, from, amount, authority); err != nil {
		return err
	}
	if _, err := Credit(ctx, tx, to, amount); err != nil {
		return err
	}
	return nil
}
