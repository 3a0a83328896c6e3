package bolt

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"presale-vesting/internal/domain"
	"presale-vesting/internal/solana"
	"presale-vesting/internal/storage"
)

// EventStore persists ledger events in the events bucket, keyed by
// big-endian timestamp followed by the event ID so cursor order is time order.
type EventStore struct {
	db *bbolt.DB
}

// Events returns an EventStore backed by this database.
func (d *DB) Events() *EventStore { return &EventStore{db: d.db} }

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

func eventKey(e *domain.LedgerEvent) []byte {
	k := make([]byte, 8, 8+len(e.ID))
	binary.BigEndian.PutUint64(k, uint64(e.Timestamp))
	return append(k, e.ID[:]...)
}

// Insert adds an event. Returns ErrDuplicateKey if the ID exists.
func (s *EventStore) Insert(_ context.Context, e *domain.LedgerEvent) error {
	if e == nil || e.ID == uuid.Nil || !e.Kind.IsValid() {
		return storage.ErrInvalidInput
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if len(k) == 8+len(e.ID) && uuid.UUID(k[8:]) == e.ID {
				return storage.ErrDuplicateKey
			}
		}

		data, err := encodeGob(e)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		if err := b.Put(eventKey(e), data); err != nil {
			return fmt.Errorf("put event: %w", err)
		}
		return nil
	})
}

// GetByPresale retrieves the newest events of a presale.
func (s *EventStore) GetByPresale(_ context.Context, presale string, limit int) ([]*domain.LedgerEvent, error) {
	return s.scan(func(e *domain.LedgerEvent) bool { return e.Presale == presale }, limit)
}

// GetByActor retrieves the newest events signed by actor.
func (s *EventStore) GetByActor(_ context.Context, actor solana.PublicKey, limit int) ([]*domain.LedgerEvent, error) {
	return s.scan(func(e *domain.LedgerEvent) bool { return e.Actor == actor }, limit)
}

func (s *EventStore) scan(match func(*domain.LedgerEvent) bool, limit int) ([]*domain.LedgerEvent, error) {
	var result []*domain.LedgerEvent
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var e domain.LedgerEvent
			if err := decodeGob(v, &e); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			if !match(&e) {
				continue
			}
			result = append(result, &e)
			if limit > 0 && len(result) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
