package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presale-vesting/internal/storage"
	"presale-vesting/internal/storage/storagetest"
)

// truncate empties every ledger table so subtests share one container.
func truncate(t *testing.T, pool *Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`TRUNCATE presales, participants, mints, token_accounts`)
	require.NoError(t, err)
}

func TestLedgerStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewLedgerStore(pool)
	storagetest.RunLedgerStoreTests(t, func(t *testing.T) storage.Store {
		truncate(t, pool)
		return store
	})
}

func TestLedgerStore_NumericRoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewLedgerStore(pool)
	ctx := context.Background()

	p := storagetest.Participant("SALE", 1, 1<<63+7)
	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		return tx.InsertParticipant(ctx, p)
	}))

	require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
		got, err := tx.GetParticipant(ctx, p.Address)
		if err != nil {
			return err
		}
		assert.Equal(t, p.LockedAmount, got.LockedAmount)
		assert.Equal(t, p.DepositAmount, got.DepositAmount)
		assert.Equal(t, p.Owner, got.Owner)
		return nil
	}))
}
