// Package events delivers committed ledger events to sinks: the event store
// and live websocket subscribers.
package events

import (
	"context"
	"errors"
	"fmt"

	"presale-vesting/internal/domain"
	"presale-vesting/internal/observability"
	"presale-vesting/internal/storage"
)

// Publisher receives committed ledger events.
type Publisher interface {
	Publish(ctx context.Context, e *domain.LedgerEvent) error
}

// Multi fans an event out to every publisher. All publishers are attempted;
// their errors are joined.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, e *domain.LedgerEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StorePublisher appends events to an EventStore.
type StorePublisher struct {
	store storage.EventStore
}

// NewStorePublisher creates a StorePublisher.
func NewStorePublisher(store storage.EventStore) *StorePublisher {
	return &StorePublisher{store: store}
}

// Publish implements Publisher.
func (p *StorePublisher) Publish(ctx context.Context, e *domain.LedgerEvent) error {
	err := p.store.Insert(ctx, e)
	observability.RecordEventPublished("store", err)
	if err != nil {
		return fmt.Errorf("store event %s: %w", e.ID, err)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ Publisher = Multi(nil)
	_ Publisher = (*StorePublisher)(nil)
	_ Publisher = (*Hub)(nil)
)
