package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"presale-vesting/internal/domain"
	"presale-vesting/internal/observability"
	"presale-vesting/internal/pda"
	"presale-vesting/internal/solana"
	"presale-vesting/internal/storage"
)

// LedgerStore implements storage.Store using PostgreSQL transactions.
// Rows read inside Update are locked with SELECT ... FOR UPDATE.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.Store = (*LedgerStore)(nil)

// Update runs fn in a read-write transaction and commits on success.
func (s *LedgerStore) Update(ctx context.Context, fn func(storage.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, true, fn)
}

// View runs fn in a read-only transaction.
func (s *LedgerStore) View(ctx context.Context, fn func(storage.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly}, false, fn)
}

func (s *LedgerStore) run(ctx context.Context, opts pgx.TxOptions, writable bool, fn func(storage.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&ledgerTx{tx: tx, writable: writable}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *LedgerStore) Close() error {
	s.pool.Close()
	return nil
}

type ledgerTx struct {
	tx       pgx.Tx
	writable bool
}

// lockClause returns the row lock suffix for reads inside Update.
func (t *ledgerTx) lockClause() string {
	if t.writable {
		return " FOR UPDATE"
	}
	return ""
}

func (t *ledgerTx) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	if !t.writable {
		return 0, storage.ErrReadOnly
	}
	start := time.Now()
	tag, err := t.tx.Exec(ctx, query, args...)
	observability.RecordDBQuery("postgres", op, time.Since(start).Seconds(), err)
	if err != nil {
		return 0, mapError(op, err)
	}
	return tag.RowsAffected(), nil
}

func (t *ledgerTx) queryRow(ctx context.Context, op, query string, args []any, dest ...any) error {
	start := time.Now()
	err := mapError(op, t.tx.QueryRow(ctx, query, args...).Scan(dest...))
	if errors.Is(err, storage.ErrNotFound) {
		observability.RecordDBQuery("postgres", op, time.Since(start).Seconds(), nil)
		return err
	}
	observability.RecordDBQuery("postgres", op, time.Since(start).Seconds(), err)
	return err
}

// formatUint renders a u64 for a $n::text::numeric parameter.
func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// parseUint parses a numeric::text column, saturating at math.MaxUint64.
func parseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return math.MaxUint64, nil
	}
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

func parseKey(s string) (solana.PublicKey, error) {
	k, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return k, fmt.Errorf("parse address %q: %w", s, err)
	}
	return k, nil
}

func (t *ledgerTx) InsertPresale(ctx context.Context, p *domain.Presale) error {
	if p == nil || p.Key() == "" {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO presales (
			title, address, bump_presale, bump_pool_payment, bump_pool_sale,
			owner, payment_mint, sale_mint, pool_payment, pool_sale, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := t.exec(ctx, "insert_presale", query,
		p.Key(),
		p.Address.String(),
		int16(p.Bumps.Presale),
		int16(p.Bumps.PoolPayment),
		int16(p.Bumps.PoolSale),
		p.Owner.String(),
		p.PaymentMint.String(),
		p.SaleMint.String(),
		p.PoolPayment.String(),
		p.PoolSale.String(),
		p.CreatedAt,
	)
	return err
}

func (t *ledgerTx) GetPresale(ctx context.Context, title string) (*domain.Presale, error) {
	query := `
		SELECT title, address, bump_presale, bump_pool_payment, bump_pool_sale,
			owner, payment_mint, sale_mint, pool_payment, pool_sale, created_at
		FROM presales
		WHERE title = $1
	`

	var (
		p                                               domain.Presale
		titleStr, address, owner, paymentMint, saleMint string
		poolPayment, poolSale                           string
		bumpPresale, bumpPoolPayment, bumpPoolSale      int16
	)
	err := t.queryRow(ctx, "get_presale", query, []any{title},
		&titleStr, &address, &bumpPresale, &bumpPoolPayment, &bumpPoolSale,
		&owner, &paymentMint, &saleMint, &poolPayment, &poolSale, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if p.Title, err = pda.PadTitle(titleStr); err != nil {
		return nil, fmt.Errorf("stored title %q: %w", titleStr, err)
	}
	p.Bumps = domain.PoolBumps{
		Presale:     uint8(bumpPresale),
		PoolPayment: uint8(bumpPoolPayment),
		PoolSale:    uint8(bumpPoolSale),
	}
	for _, f := range []struct {
		dst *solana.PublicKey
		src string
	}{
		{&p.Address, address},
		{&p.Owner, owner},
		{&p.PaymentMint, paymentMint},
		{&p.SaleMint, saleMint},
		{&p.PoolPayment, poolPayment},
		{&p.PoolSale, poolSale},
	} {
		if *f.dst, err = parseKey(f.src); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (t *ledgerTx) InsertParticipant(ctx context.Context, p *domain.Participant) error {
	if p == nil || p.Presale == "" {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO participants (
			address, presale, owner, bump, deposit_amount, locked_amount, last_deposit_ts, created_at
		) VALUES ($1, $2, $3, $4, $5::text::numeric, $6::text::numeric, $7, $8)
	`
	_, err := t.exec(ctx, "insert_participant", query,
		p.Address.String(),
		p.Presale,
		p.Owner.String(),
		int16(p.Bump),
		formatUint(p.DepositAmount),
		formatUint(p.LockedAmount),
		p.LastDepositTS,
		p.CreatedAt,
	)
	return err
}

func (t *ledgerTx) GetParticipant(ctx context.Context, address solana.PublicKey) (*domain.Participant, error) {
	return t.participantWhere(ctx, "get_participant", "address = $1", address.String())
}

func (t *ledgerTx) GetParticipantByOwner(ctx context.Context, presale string, owner solana.PublicKey) (*domain.Participant, error) {
	return t.participantWhere(ctx, "get_participant_by_owner", "presale = $1 AND owner = $2", presale, owner.String())
}

func (t *ledgerTx) participantWhere(ctx context.Context, op, where string, args ...any) (*domain.Participant, error) {
	query := `
		SELECT address, presale, owner, bump, deposit_amount::text, locked_amount::text,
			last_deposit_ts, created_at
		FROM participants
		WHERE ` + where + t.lockClause()

	var (
		p               domain.Participant
		addr, owner     string
		deposit, locked string
		bump            int16
	)
	err := t.queryRow(ctx, op, query, args,
		&addr, &p.Presale, &owner, &bump, &deposit, &locked, &p.LastDepositTS, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Bump = uint8(bump)
	if p.Address, err = parseKey(addr); err != nil {
		return nil, err
	}
	if p.Owner, err = parseKey(owner); err != nil {
		return nil, err
	}
	if p.DepositAmount, err = parseUint(deposit); err != nil {
		return nil, err
	}
	if p.LockedAmount, err = parseUint(locked); err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *ledgerTx) UpdateParticipant(ctx context.Context, p *domain.Participant) error {
	if p == nil {
		return storage.ErrInvalidInput
	}
	query := `
		UPDATE participants
		SET deposit_amount = $2::text::numeric, locked_amount = $3::text::numeric, last_deposit_ts = $4
		WHERE address = $1
	`
	n, err := t.exec(ctx, "update_participant", query,
		p.Address.String(),
		formatUint(p.DepositAmount),
		formatUint(p.LockedAmount),
		p.LastDepositTS,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *ledgerTx) SumLocked(ctx context.Context, presale string) (uint64, error) {
	query := `
		SELECT COALESCE(SUM(locked_amount), 0)::text
		FROM participants
		WHERE presale = $1
	`
	var sum string
	if err := t.queryRow(ctx, "sum_locked", query, []any{presale}, &sum); err != nil {
		return 0, err
	}
	return parseUint(sum)
}

func (t *ledgerTx) InsertMint(ctx context.Context, m *domain.Mint) error {
	if m == nil || m.Address.IsZero() {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO mints (address, decimals, mint_authority, supply, created_at)
		VALUES ($1, $2, $3, $4::text::numeric, $5)
	`
	_, err := t.exec(ctx, "insert_mint", query,
		m.Address.String(),
		int16(m.Decimals),
		m.MintAuthority.String(),
		formatUint(m.Supply),
		m.CreatedAt,
	)
	return err
}

func (t *ledgerTx) GetMint(ctx context.Context, address solana.PublicKey) (*domain.Mint, error) {
	query := `
		SELECT address, decimals, mint_authority, supply::text, created_at
		FROM mints
		WHERE address = $1` + t.lockClause()

	var (
		m               domain.Mint
		addr, authority string
		supply          string
		decimals        int16
	)
	err := t.queryRow(ctx, "get_mint", query, []any{address.String()},
		&addr, &decimals, &authority, &supply, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Decimals = uint8(decimals)
	if m.Address, err = parseKey(addr); err != nil {
		return nil, err
	}
	if m.MintAuthority, err = parseKey(authority); err != nil {
		return nil, err
	}
	if m.Supply, err = parseUint(supply); err != nil {
		return nil, err
	}
	return &m, nil
}

func (t *ledgerTx) UpdateMint(ctx context.Context, m *domain.Mint) error {
	if m == nil {
		return storage.ErrInvalidInput
	}
	n, err := t.exec(ctx, "update_mint",
		`UPDATE mints SET supply = $2::text::numeric WHERE address = $1`,
		m.Address.String(), formatUint(m.Supply),
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *ledgerTx) InsertTokenAccount(ctx context.Context, a *domain.TokenAccount) error {
	if a == nil || a.Address.IsZero() {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO token_accounts (address, mint, owner, amount, created_at)
		VALUES ($1, $2, $3, $4::text::numeric, $5)
	`
	_, err := t.exec(ctx, "insert_token_account", query,
		a.Address.String(),
		a.Mint.String(),
		a.Owner.String(),
		formatUint(a.Amount),
		a.CreatedAt,
	)
	return err
}

func (t *ledgerTx) GetTokenAccount(ctx context.Context, address solana.PublicKey) (*domain.TokenAccount, error) {
	query := `
		SELECT address, mint, owner, amount::text, created_at
		FROM token_accounts
		WHERE address = $1` + t.lockClause()

	var (
		a                 domain.TokenAccount
		addr, mint, owner string
		amount            string
	)
	err := t.queryRow(ctx, "get_token_account", query, []any{address.String()},
		&addr, &mint, &owner, &amount, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if a.Address, err = parseKey(addr); err != nil {
		return nil, err
	}
	if a.Mint, err = parseKey(mint); err != nil {
		return nil, err
	}
	if a.Owner, err = parseKey(owner); err != nil {
		return nil, err
	}
	if a.Amount, err = parseUint(amount); err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *ledgerTx) UpdateTokenAccount(ctx context.Context, a *domain.TokenAccount) error {
	if a == nil {
		return storage.ErrInvalidInput
	}
	n, err := t.exec(ctx, "update_token_account",
		`UPDATE token_accounts SET amount = $2::text::numeric WHERE address = $1`,
		a.Address.String(), formatUint(a.Amount),
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
