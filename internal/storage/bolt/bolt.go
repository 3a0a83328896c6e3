// Package bolt implements the ledger stores on an embedded bbolt database.
package bolt

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"presale-vesting/internal/domain"
	"presale-vesting/internal/solana"
	"presale-vesting/internal/storage"
)

var (
	bucketPresales              = []byte("presales")
	bucketParticipants          = []byte("participants")
	bucketParticipantsByPresale = []byte("participants_by_presale")
	bucketParticipantsByOwner   = []byte("participants_by_owner")
	bucketMints                 = []byte("mints")
	bucketTokenAccounts         = []byte("token_accounts")
	bucketEvents                = []byte("events")
)

// DB wraps a bbolt database holding the ledger.
type DB struct {
	db *bbolt.DB
}

// Open opens or creates the bbolt database at path.
// The parent directory is created if it does not exist.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketPresales, bucketParticipants, bucketParticipantsByPresale, bucketParticipantsByOwner,
			bucketMints, bucketTokenAccounts, bucketEvents,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error { return d.db.Close() }

// Compile-time interface check.
var _ storage.Store = (*DB)(nil)

// Update runs fn in a bbolt read-write transaction.
func (d *DB) Update(ctx context.Context, fn func(storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(func(btx *bbolt.Tx) error {
		if err := fn(&ledgerTx{tx: btx}); err != nil {
			return err
		}
		return ctx.Err()
	})
}

// View runs fn in a bbolt read-only transaction.
func (d *DB) View(ctx context.Context, fn func(storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.View(func(btx *bbolt.Tx) error {
		return fn(&ledgerTx{tx: btx})
	})
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// participantIndexKey is presale || 0x00 || key. The by-presale index keys on
// the entry address, the by-owner index on the owner.
func participantIndexKey(presale string, key solana.PublicKey) []byte {
	k := make([]byte, 0, len(presale)+1+solana.PublicKeySize)
	k = append(k, presale...)
	k = append(k, 0)
	return append(k, key[:]...)
}

type ledgerTx struct {
	tx *bbolt.Tx
}

func (t *ledgerTx) writable() error {
	if !t.tx.Writable() {
		return storage.ErrReadOnly
	}
	return nil
}

func (t *ledgerTx) get(bucket, key []byte, v interface{}) error {
	data := t.tx.Bucket(bucket).Get(key)
	if data == nil {
		return storage.ErrNotFound
	}
	if err := decodeGob(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

func (t *ledgerTx) put(bucket, key []byte, v interface{}) error {
	data, err := encodeGob(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", bucket, err)
	}
	if err := t.tx.Bucket(bucket).Put(key, data); err != nil {
		return fmt.Errorf("put %s: %w", bucket, err)
	}
	return nil
}

func (t *ledgerTx) insert(bucket, key []byte, v interface{}) error {
	if err := t.writable(); err != nil {
		return err
	}
	if t.tx.Bucket(bucket).Get(key) != nil {
		return storage.ErrDuplicateKey
	}
	return t.put(bucket, key, v)
}

func (t *ledgerTx) InsertPresale(_ context.Context, p *domain.Presale) error {
	if p == nil || p.Key() == "" {
		return storage.ErrInvalidInput
	}
	return t.insert(bucketPresales, []byte(p.Key()), p)
}

func (t *ledgerTx) GetPresale(_ context.Context, title string) (*domain.Presale, error) {
	var p domain.Presale
	if err := t.get(bucketPresales, []byte(title), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *ledgerTx) InsertParticipant(_ context.Context, p *domain.Participant) error {
	if p == nil || p.Presale == "" {
		return storage.ErrInvalidInput
	}
	ownerKey := participantIndexKey(p.Presale, p.Owner)
	if t.tx.Bucket(bucketParticipantsByOwner).Get(ownerKey) != nil {
		return storage.ErrDuplicateKey
	}
	if err := t.insert(bucketParticipants, p.Address[:], p); err != nil {
		return err
	}
	if err := t.tx.Bucket(bucketParticipantsByPresale).Put(participantIndexKey(p.Presale, p.Address), []byte{1}); err != nil {
		return fmt.Errorf("put participant index: %w", err)
	}
	if err := t.tx.Bucket(bucketParticipantsByOwner).Put(ownerKey, p.Address[:]); err != nil {
		return fmt.Errorf("put participant owner index: %w", err)
	}
	return nil
}

func (t *ledgerTx) GetParticipantByOwner(ctx context.Context, presale string, owner solana.PublicKey) (*domain.Participant, error) {
	addr := t.tx.Bucket(bucketParticipantsByOwner).Get(participantIndexKey(presale, owner))
	if addr == nil {
		return nil, storage.ErrNotFound
	}
	key, err := solana.PublicKeyFromBytes(addr)
	if err != nil {
		return nil, fmt.Errorf("participant owner index: %w", err)
	}
	return t.GetParticipant(ctx, key)
}

func (t *ledgerTx) GetParticipant(_ context.Context, address solana.PublicKey) (*domain.Participant, error) {
	var p domain.Participant
	if err := t.get(bucketParticipants, address[:], &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *ledgerTx) UpdateParticipant(ctx context.Context, p *domain.Participant) error {
	if err := t.writable(); err != nil {
		return err
	}
	if p == nil {
		return storage.ErrInvalidInput
	}
	existing, err := t.GetParticipant(ctx, p.Address)
	if err != nil {
		return err
	}
	existing.DepositAmount = p.DepositAmount
	existing.LockedAmount = p.LockedAmount
	existing.LastDepositTS = p.LastDepositTS
	return t.put(bucketParticipants, p.Address[:], existing)
}

func (t *ledgerTx) SumLocked(ctx context.Context, presale string) (uint64, error) {
	prefix := append([]byte(presale), 0)
	c := t.tx.Bucket(bucketParticipantsByPresale).Cursor()

	var total uint64
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		// Titles may contain 0x00, so longer keys belong to another presale.
		if len(k) != len(prefix)+solana.PublicKeySize {
			continue
		}
		addr, err := solana.PublicKeyFromBytes(k[len(prefix):])
		if err != nil {
			return 0, fmt.Errorf("participant index key: %w", err)
		}
		p, err := t.GetParticipant(ctx, addr)
		if err != nil {
			return 0, err
		}
		if total > math.MaxUint64-p.LockedAmount {
			return math.MaxUint64, nil
		}
		total += p.LockedAmount
	}
	return total, nil
}

func (t *ledgerTx) InsertMint(_ context.Context, m *domain.Mint) error {
	if m == nil || m.Address.IsZero() {
		return storage.ErrInvalidInput
	}
	return t.insert(bucketMints, m.Address[:], m)
}

func (t *ledgerTx) GetMint(_ context.Context, address solana.PublicKey) (*domain.Mint, error) {
	var m domain.Mint
	if err := t.get(bucketMints, address[:], &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (t *ledgerTx) UpdateMint(ctx context.Context, m *domain.Mint) error {
	if err := t.writable(); err != nil {
		return err
	}
	if m == nil {
		return storage.ErrInvalidInput
	}
	existing, err := t.GetMint(ctx, m.Address)
	if err != nil {
		return err
	}
	existing.Supply = m.Supply
	return t.put(bucketMints, m.Address[:], existing)
}

func (t *ledgerTx) InsertTokenAccount(_ context.Context, a *domain.TokenAccount) error {
	if a == nil || a.Address.IsZero() {
		return storage.ErrInvalidInput
	}
	return t.insert(bucketTokenAccounts, a.Address[:], a)
}

func (t *ledgerTx) GetTokenAccount(_ context.Context, address solana.PublicKey) (*domain.TokenAccount, error) {
	var a domain.TokenAccount
	if err := t.get(bucketTokenAccounts, address[:], &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *ledgerTx) UpdateTokenAccount(ctx context.Context, a *domain.TokenAccount) error {
	if err := t.writable(); err != nil {
		return err
	}
	if a == nil {
		return storage.ErrInvalidInput
	}
	existing, err := t.GetTokenAccount(ctx, a.Address)
	if err != nil {
		return err
	}
	existing.Amount = a.Amount
	return t.put(bucketTokenAccounts, a.Address[:], existing)
}
