package memory

import (
	"context"
	"math"
	"sync"

	"presale-vesting/internal/domain"
	"presale-vesting/internal/solana"
	"presale-vesting/internal/storage"
)

// LedgerStore is an in-memory implementation of storage.Store.
// Update transactions are serialized; writes are staged and applied on success.
type LedgerStore struct {
	mu           sync.RWMutex
	presales     map[string]*domain.Presale // keyed by canonical title
	participants map[solana.PublicKey]*domain.Participant
	mints        map[solana.PublicKey]*domain.Mint
	accounts     map[solana.PublicKey]*domain.TokenAccount
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		presales:     make(map[string]*domain.Presale),
		participants: make(map[solana.PublicKey]*domain.Participant),
		mints:        make(map[solana.PublicKey]*domain.Mint),
		accounts:     make(map[solana.PublicKey]*domain.TokenAccount),
	}
}

// Compile-time interface check.
var _ storage.Store = (*LedgerStore)(nil)

// Update runs fn in a read-write transaction.
func (s *LedgerStore) Update(ctx context.Context, fn func(storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newLedgerTx(s, true)
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// View runs fn in a read-only transaction.
func (s *LedgerStore) View(ctx context.Context, fn func(storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(newLedgerTx(s, false))
}

// Close is a no-op.
func (s *LedgerStore) Close() error {
	return nil
}

// ledgerTx overlays staged writes on the committed maps.
type ledgerTx struct {
	store        *LedgerStore
	writable     bool
	presales     map[string]*domain.Presale
	participants map[solana.PublicKey]*domain.Participant
	mints        map[solana.PublicKey]*domain.Mint
	accounts     map[solana.PublicKey]*domain.TokenAccount
}

func newLedgerTx(s *LedgerStore, writable bool) *ledgerTx {
	return &ledgerTx{
		store:        s,
		writable:     writable,
		presales:     make(map[string]*domain.Presale),
		participants: make(map[solana.PublicKey]*domain.Participant),
		mints:        make(map[solana.PublicKey]*domain.Mint),
		accounts:     make(map[solana.PublicKey]*domain.TokenAccount),
	}
}

func (tx *ledgerTx) commit() {
	for k, v := range tx.presales {
		tx.store.presales[k] = v
	}
	for k, v := range tx.participants {
		tx.store.participants[k] = v
	}
	for k, v := range tx.mints {
		tx.store.mints[k] = v
	}
	for k, v := range tx.accounts {
		tx.store.accounts[k] = v
	}
}

func (tx *ledgerTx) InsertPresale(_ context.Context, p *domain.Presale) error {
	if !tx.writable {
		return storage.ErrReadOnly
	}
	if p == nil || p.Key() == "" {
		return storage.ErrInvalidInput
	}
	if _, ok := tx.presale(p.Key()); ok {
		return storage.ErrDuplicateKey
	}

	presaleCopy := *p
	tx.presales[p.Key()] = &presaleCopy
	return nil
}

func (tx *ledgerTx) GetPresale(_ context.Context, title string) (*domain.Presale, error) {
	p, ok := tx.presale(title)
	if !ok {
		return nil, storage.ErrNotFound
	}
	presaleCopy := *p
	return &presaleCopy, nil
}

func (tx *ledgerTx) presale(title string) (*domain.Presale, bool) {
	if p, ok := tx.presales[title]; ok {
		return p, true
	}
	p, ok := tx.store.presales[title]
	return p, ok
}

func (tx *ledgerTx) InsertParticipant(_ context.Context, p *domain.Participant) error {
	if !tx.writable {
		return storage.ErrReadOnly
	}
	if p == nil || p.Presale == "" {
		return storage.ErrInvalidInput
	}
	if _, ok := tx.participant(p.Address); ok {
		return storage.ErrDuplicateKey
	}
	if _, ok := tx.participantByOwner(p.Presale, p.Owner); ok {
		return storage.ErrDuplicateKey
	}

	participantCopy := *p
	tx.participants[p.Address] = &participantCopy
	return nil
}

func (tx *ledgerTx) GetParticipant(_ context.Context, address solana.PublicKey) (*domain.Participant, error) {
	p, ok := tx.participant(address)
	if !ok {
		return nil, storage.ErrNotFound
	}
	participantCopy := *p
	return &participantCopy, nil
}

func (tx *ledgerTx) GetParticipantByOwner(_ context.Context, presale string, owner solana.PublicKey) (*domain.Participant, error) {
	p, ok := tx.participantByOwner(presale, owner)
	if !ok {
		return nil, storage.ErrNotFound
	}
	participantCopy := *p
	return &participantCopy, nil
}

func (tx *ledgerTx) UpdateParticipant(_ context.Context, p *domain.Participant) error {
	if !tx.writable {
		return storage.ErrReadOnly
	}
	if p == nil {
		return storage.ErrInvalidInput
	}
	existing, ok := tx.participant(p.Address)
	if !ok {
		return storage.ErrNotFound
	}

	updated := *existing
	updated.DepositAmount = p.DepositAmount
	updated.LockedAmount = p.LockedAmount
	updated.LastDepositTS = p.LastDepositTS
	tx.participants[p.Address] = &updated
	return nil
}

func (tx *ledgerTx) SumLocked(_ context.Context, presale string) (uint64, error) {
	var total uint64
	add := func(p *domain.Participant) {
		if p.Presale != presale {
			return
		}
		if total > math.MaxUint64-p.LockedAmount {
			total = math.MaxUint64
			return
		}
		total += p.LockedAmount
	}

	for addr, p := range tx.store.participants {
		if staged, ok := tx.participants[addr]; ok {
			p = staged
		}
		add(p)
	}
	for addr, p := range tx.participants {
		if _, ok := tx.store.participants[addr]; !ok {
			add(p)
		}
	}
	return total, nil
}

// participantByOwner scans staged entries first, then committed ones. Owner
// and presale never change after insert.
func (tx *ledgerTx) participantByOwner(presale string, owner solana.PublicKey) (*domain.Participant, bool) {
	for _, p := range tx.participants {
		if p.Presale == presale && p.Owner == owner {
			return p, true
		}
	}
	for addr, p := range tx.store.participants {
		if p.Presale == presale && p.Owner == owner {
			if staged, ok := tx.participants[addr]; ok {
				return staged, true
			}
			return p, true
		}
	}
	return nil, false
}

func (tx *ledgerTx) participant(address solana.PublicKey) (*domain.Participant, bool) {
	if p, ok := tx.participants[address]; ok {
		return p, true
	}
	p, ok := tx.store.participants[address]
	return p, ok
}

func (tx *ledgerTx) InsertMint(_ context.Context, m *domain.Mint) error {
	if !tx.writable {
		return storage.ErrReadOnly
	}
	if m == nil || m.Address.IsZero() {
		return storage.ErrInvalidInput
	}
	if _, ok := tx.mint(m.Address); ok {
		return storage.ErrDuplicateKey
	}

	mintCopy := *m
	tx.mints[m.Address] = &mintCopy
	return nil
}

func (tx *ledgerTx) GetMint(_ context.Context, address solana.PublicKey) (*domain.Mint, error) {
	m, ok := tx.mint(address)
	if !ok {
		return nil, storage.ErrNotFound
	}
	mintCopy := *m
	return &mintCopy, nil
}

func (tx *ledgerTx) UpdateMint(_ context.Context, m *domain.Mint) error {
	if !tx.writable {
		return storage.ErrReadOnly
	}
	if m == nil {
		return storage.ErrInvalidInput
	}
	existing, ok := tx.mint(m.Address)
	if !ok {
		return storage.ErrNotFound
	}

	updated := *existing
	updated.Supply = m.Supply
	tx.mints[m.Address] = &updated
	return nil
}

func (tx *ledgerTx) mint(address solana.PublicKey) (*domain.Mint, bool) {
	if m, ok := tx.mints[address]; ok {
		return m, true
	}
	m, ok := tx.store.mints[address]
	return m, ok
}

func (tx *ledgerTx) InsertTokenAccount(_ context.Context, a *domain.TokenAccount) error {
	if !tx.writable {
		return storage.ErrReadOnly
	}
	if a == nil || a.Address.IsZero() {
		return storage.ErrInvalidInput
	}
	if _, ok := tx.account(a.Address); ok {
		return storage.ErrDuplicateKey
	}

	accountCopy := *a
	tx.accounts[a.Address] = &accountCopy
	return nil
}

func (tx *ledgerTx) GetTokenAccount(_ context.Context, address solana.PublicKey) (*domain.TokenAccount, error) {
	a, ok := tx.account(address)
	if !ok {
		return nil, storage.ErrNotFound
	}
	accountCopy := *a
	return &accountCopy, nil
}

func (tx *ledgerTx) UpdateTokenAccount(_ context.Context, a *domain.TokenAccount) error {
	if !tx.writable {
		return storage.ErrReadOnly
	}
	if a == nil {
		return storage.ErrInvalidInput
	}
	existing, ok := tx.account(a.Address)
	if !ok {
		return storage.ErrNotFound
	}

	updated := *existing
	updated.Amount = a.Amount
	tx.accounts[a.Address] = &updated
	return nil
}

func (tx *ledgerTx) account(address solana.PublicKey) (*domain.TokenAccount, bool) {
	if a, ok := tx.accounts[address]; ok {
		return a, true
	}
	a, ok := tx.store.accounts[address]
	return a, ok
}
