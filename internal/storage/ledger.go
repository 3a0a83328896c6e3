package storage

import (
	"context"

	"presale-vesting/internal/domain"
	"presale-vesting/internal/solana"
)

// PresaleStore provides access to presale records.
type PresaleStore interface {
	// InsertPresale adds a presale. Returns ErrDuplicateKey if the title exists.
	InsertPresale(ctx context.Context, p *domain.Presale) error

	// GetPresale retrieves a presale by canonical title. Returns ErrNotFound if not exists.
	GetPresale(ctx context.Context, title string) (*domain.Presale, error)
}

// ParticipantStore provides access to participant ledger entries.
type ParticipantStore interface {
	// InsertParticipant adds an entry. Returns ErrDuplicateKey if the address
	// exists or the owner already has an entry in the presale.
	InsertParticipant(ctx context.Context, p *domain.Participant) error

	// GetParticipant retrieves an entry by address. Returns ErrNotFound if not exists.
	GetParticipant(ctx context.Context, address solana.PublicKey) (*domain.Participant, error)

	// GetParticipantByOwner retrieves the entry of owner in a presale, whatever
	// identity split it was derived from. Returns ErrNotFound if not exists.
	GetParticipantByOwner(ctx context.Context, presale string, owner solana.PublicKey) (*domain.Participant, error)

	// UpdateParticipant overwrites the mutable balances of an entry.
	// Returns ErrNotFound if not exists.
	UpdateParticipant(ctx context.Context, p *domain.Participant) error

	// SumLocked returns the outstanding locked amount across all entries of a
	// presale, saturating at math.MaxUint64.
	SumLocked(ctx context.Context, presale string) (uint64, error)
}

// TokenStore provides access to mints and token accounts.
type TokenStore interface {
	// InsertMint adds a mint. Returns ErrDuplicateKey if the address exists.
	InsertMint(ctx context.Context, m *domain.Mint) error

	// GetMint retrieves a mint. Returns ErrNotFound if not exists.
	GetMint(ctx context.Context, address solana.PublicKey) (*domain.Mint, error)

	// UpdateMint overwrites the supply of a mint. Returns ErrNotFound if not exists.
	UpdateMint(ctx context.Context, m *domain.Mint) error

	// InsertTokenAccount adds an account. Returns ErrDuplicateKey if the address exists.
	InsertTokenAccount(ctx context.Context, a *domain.TokenAccount) error

	// GetTokenAccount retrieves an account. Returns ErrNotFound if not exists.
	GetTokenAccount(ctx context.Context, address solana.PublicKey) (*domain.TokenAccount, error)

	// UpdateTokenAccount overwrites the balance of an account. Returns ErrNotFound if not exists.
	UpdateTokenAccount(ctx context.Context, a *domain.TokenAccount) error
}

// Tx is a unit of work over the ledger. Writes become visible to other
// transactions only when the enclosing Update returns nil.
type Tx interface {
	PresaleStore
	ParticipantStore
	TokenStore
}

// Store runs ledger transactions.
type Store interface {
	// Update runs fn in a read-write transaction. If fn returns an error every
	// write made through the Tx is discarded.
	Update(ctx context.Context, fn func(Tx) error) error

	// View runs fn in a read-only transaction. Writes return ErrReadOnly.
	View(ctx context.Context, fn func(Tx) error) error

	// Close releases the underlying resources.
	Close() error
}

// EventStore provides access to the append-only ledger event log.
type EventStore interface {
	// Insert adds an event. Returns ErrDuplicateKey if the event ID exists.
	Insert(ctx context.Context, e *domain.LedgerEvent) error

	// GetByPresale retrieves the newest events of a presale, ordered by timestamp DESC.
	// limit <= 0 means no limit.
	GetByPresale(ctx context.Context, presale string, limit int) ([]*domain.LedgerEvent, error)

	// GetByActor retrieves the newest events signed by actor, ordered by timestamp DESC.
	GetByActor(ctx context.Context, actor solana.PublicKey, limit int) ([]*domain.LedgerEvent, error)
}
