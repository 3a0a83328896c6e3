// Package storagetest holds behavioural tests shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presale-vesting/internal/domain"
	"presale-vesting/internal/pda"
	"presale-vesting/internal/solana"
	"presale-vesting/internal/storage"
)

var errRollback = errors.New("rollback")

// Key returns a deterministic non-zero key for tests.
func Key(seed byte) solana.PublicKey {
	var k solana.PublicKey
	for i := range k {
		k[i] = seed + byte(i)
	}
	return k
}

// Presale returns a populated presale record for title.
func Presale(t *testing.T, title string) *domain.Presale {
	t.Helper()
	padded, err := pda.PadTitle(title)
	require.NoError(t, err)
	return &domain.Presale{
		Address:     Key(1),
		Title:       padded,
		Bumps:       domain.PoolBumps{Presale: 255, PoolPayment: 254, PoolSale: 253},
		Owner:       Key(2),
		PaymentMint: Key(3),
		SaleMint:    Key(4),
		PoolPayment: Key(5),
		PoolSale:    Key(6),
		CreatedAt:   1_700_000_000,
	}
}

// Participant returns a participant entry of presale with the given locked amount.
func Participant(presale string, seed byte, locked uint64) *domain.Participant {
	return &domain.Participant{
		Address:       Key(seed),
		Presale:       presale,
		Owner:         Key(seed + 100),
		Bump:          254,
		DepositAmount: locked * 2,
		LockedAmount:  locked,
		LastDepositTS: 1_700_000_000,
		CreatedAt:     1_700_000_000,
	}
}

// RunLedgerStoreTests exercises a storage.Store implementation. newStore must
// return an empty store.
func RunLedgerStoreTests(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("PresaleInsertAndGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		p := Presale(t, "SALE")

		require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
			return tx.InsertPresale(ctx, p)
		}))

		var got *domain.Presale
		require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
			var err error
			got, err = tx.GetPresale(ctx, "SALE")
			return err
		}))
		assert.Equal(t, p, got)
	})

	t.Run("PresaleDuplicate", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		p := Presale(t, "SALE")

		require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
			return tx.InsertPresale(ctx, p)
		}))
		err := store.Update(ctx, func(tx storage.Tx) error {
			return tx.InsertPresale(ctx, p)
		})
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})

	t.Run("NotFound", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		err := store.View(ctx, func(tx storage.Tx) error {
			if _, err := tx.GetPresale(ctx, "NOPE"); !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			if _, err := tx.GetParticipant(ctx, Key(9)); !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			if _, err := tx.GetMint(ctx, Key(9)); !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			if _, err := tx.GetTokenAccount(ctx, Key(9)); !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			return nil
		})
		require.NoError(t, err)

		err = store.Update(ctx, func(tx storage.Tx) error {
			return tx.UpdateParticipant(ctx, Participant("SALE", 9, 1))
		})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ParticipantByOwner", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		entry := Participant("SALE", 40, 5)

		require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
			if err := tx.InsertParticipant(ctx, entry); err != nil {
				return err
			}
			staged, err := tx.GetParticipantByOwner(ctx, "SALE", entry.Owner)
			if err != nil {
				return err
			}
			assert.Equal(t, entry.Address, staged.Address)
			return nil
		}))

		require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
			got, err := tx.GetParticipantByOwner(ctx, "SALE", entry.Owner)
			if err != nil {
				return err
			}
			assert.Equal(t, entry, got)
			_, err = tx.GetParticipantByOwner(ctx, "OTHER", entry.Owner)
			assert.ErrorIs(t, err, storage.ErrNotFound)
			return nil
		}))

		// A second entry for the same owner under another address.
		second := Participant("SALE", 41, 0)
		second.Owner = entry.Owner
		err := store.Update(ctx, func(tx storage.Tx) error {
			return tx.InsertParticipant(ctx, second)
		})
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)

		second.Presale = "OTHER"
		require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
			return tx.InsertParticipant(ctx, second)
		}))
	})

	t.Run("ParticipantUpdateAndSum", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
			for _, p := range []*domain.Participant{
				Participant("SALE", 10, 100),
				Participant("SALE", 11, 50),
				Participant("OTHER", 12, 7),
			} {
				if err := tx.InsertParticipant(ctx, p); err != nil {
					return err
				}
			}
			return nil
		}))

		updated := Participant("SALE", 10, 0)
		updated.DepositAmount = 300
		updated.LastDepositTS = 1_700_000_500
		require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
			return tx.UpdateParticipant(ctx, updated)
		}))

		require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
			got, err := tx.GetParticipant(ctx, Key(10))
			if err != nil {
				return err
			}
			assert.Equal(t, uint64(300), got.DepositAmount)
			assert.Equal(t, uint64(0), got.LockedAmount)
			assert.Equal(t, int64(1_700_000_500), got.LastDepositTS)
			assert.Equal(t, Key(110), got.Owner)

			sum, err := tx.SumLocked(ctx, "SALE")
			if err != nil {
				return err
			}
			assert.Equal(t, uint64(50), sum)

			sum, err = tx.SumLocked(ctx, "EMPTY")
			if err != nil {
				return err
			}
			assert.Equal(t, uint64(0), sum)
			return nil
		}))
	})

	t.Run("SumLockedSaturates", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
			if err := tx.InsertParticipant(ctx, Participant("BIG", 20, math.MaxUint64)); err != nil {
				return err
			}
			return tx.InsertParticipant(ctx, Participant("BIG", 21, 5))
		}))

		require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
			sum, err := tx.SumLocked(ctx, "BIG")
			if err != nil {
				return err
			}
			assert.Equal(t, uint64(math.MaxUint64), sum)
			return nil
		}))
	})

	t.Run("SumLockedSeesStagedWrites", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
			if err := tx.InsertParticipant(ctx, Participant("SALE", 30, 40)); err != nil {
				return err
			}
			p := Participant("SALE", 30, 10)
			if err := tx.UpdateParticipant(ctx, p); err != nil {
				return err
			}
			sum, err := tx.SumLocked(ctx, "SALE")
			if err != nil {
				return err
			}
			assert.Equal(t, uint64(10), sum)
			return nil
		}))
	})

	t.Run("RollbackDiscardsWrites", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		mint := &domain.Mint{Address: Key(40), Decimals: 6, MintAuthority: Key(41), Supply: 10, CreatedAt: 1}
		acct := &domain.TokenAccount{Address: Key(42), Mint: Key(40), Owner: Key(43), Amount: 10, CreatedAt: 1}
		require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
			if err := tx.InsertMint(ctx, mint); err != nil {
				return err
			}
			return tx.InsertTokenAccount(ctx, acct)
		}))

		err := store.Update(ctx, func(tx storage.Tx) error {
			m := *mint
			m.Supply = 99
			if err := tx.UpdateMint(ctx, &m); err != nil {
				return err
			}
			a := *acct
			a.Amount = 99
			if err := tx.UpdateTokenAccount(ctx, &a); err != nil {
				return err
			}
			if err := tx.InsertPresale(ctx, Presale(t, "GHOST")); err != nil {
				return err
			}
			return errRollback
		})
		require.ErrorIs(t, err, errRollback)

		require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
			m, err := tx.GetMint(ctx, Key(40))
			if err != nil {
				return err
			}
			assert.Equal(t, uint64(10), m.Supply)
			assert.Equal(t, uint8(6), m.Decimals)
			assert.Equal(t, Key(41), m.MintAuthority)

			a, err := tx.GetTokenAccount(ctx, Key(42))
			if err != nil {
				return err
			}
			assert.Equal(t, uint64(10), a.Amount)
			assert.Equal(t, Key(43), a.Owner)

			_, err = tx.GetPresale(ctx, "GHOST")
			assert.ErrorIs(t, err, storage.ErrNotFound)
			return nil
		}))
	})

	t.Run("ViewIsReadOnly", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		err := store.View(ctx, func(tx storage.Tx) error {
			return tx.InsertPresale(ctx, Presale(t, "SALE"))
		})
		assert.ErrorIs(t, err, storage.ErrReadOnly)
	})

	t.Run("ConcurrentUpdatesSerialize", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		acct := &domain.TokenAccount{Address: Key(50), Mint: Key(51), Owner: Key(52), Amount: 0, CreatedAt: 1}
		require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
			return tx.InsertTokenAccount(ctx, acct)
		}))

		const workers = 10
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			go func() {
				errs <- store.Update(ctx, func(tx storage.Tx) error {
					a, err := tx.GetTokenAccount(ctx, Key(50))
					if err != nil {
						return err
					}
					a.Amount++
					return tx.UpdateTokenAccount(ctx, a)
				})
			}()
		}
		for i := 0; i < workers; i++ {
			require.NoError(t, <-errs)
		}

		require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
			a, err := tx.GetTokenAccount(ctx, Key(50))
			if err != nil {
				return err
			}
			assert.Equal(t, uint64(workers), a.Amount)
			return nil
		}))
	})
}

// Event returns a ledger event for presale signed by actor at ts.
func Event(kind domain.EventKind, presale string, actor solana.PublicKey, ts int64) *domain.LedgerEvent {
	e := domain.NewLedgerEvent(kind, presale, actor, ts)
	e.Amount = 200
	return e
}

// RunEventStoreTests exercises a storage.EventStore implementation.
func RunEventStoreTests(t *testing.T, newStore func(t *testing.T) storage.EventStore) {
	t.Run("InsertAndQuery", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		base := time.Unix(1_700_000_000, 0).Unix()

		alice, bob := Key(60), Key(61)
		events := []*domain.LedgerEvent{
			Event(domain.EventInitialize, "SALE", alice, base),
			Event(domain.EventPurchase, "SALE", bob, base+10),
			Event(domain.EventClaim, "SALE", bob, base+20),
			Event(domain.EventPurchase, "OTHER", bob, base+30),
		}
		for _, e := range events {
			require.NoError(t, store.Insert(ctx, e))
		}

		got, err := store.GetByPresale(ctx, "SALE", 0)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, domain.EventClaim, got[0].Kind)
		assert.Equal(t, domain.EventInitialize, got[2].Kind)
		assert.Equal(t, events[2].ID, got[0].ID)

		got, err = store.GetByPresale(ctx, "SALE", 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = store.GetByActor(ctx, bob, 0)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "OTHER", got[0].Presale)
		assert.Equal(t, uint64(200), got[0].Amount)
	})

	t.Run("Duplicate", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		e := Event(domain.EventPurchase, "SALE", Key(62), 1)
		require.NoError(t, store.Insert(ctx, e))
		assert.ErrorIs(t, store.Insert(ctx, e), storage.ErrDuplicateKey)
	})

	t.Run("InvalidInput", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		e := Event(domain.EventPurchase, "SALE", Key(63), 1)
		e.ID = uuid.Nil
		assert.ErrorIs(t, store.Insert(ctx, e), storage.ErrInvalidInput)
	})
}
