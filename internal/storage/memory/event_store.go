package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"presale-vesting/internal/domain"
	"presale-vesting/internal/solana"
	"presale-vesting/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu     sync.RWMutex
	data   []*domain.LedgerEvent
	exists map[uuid.UUID]struct{}
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		exists: make(map[uuid.UUID]struct{}),
	}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Insert adds an event. Returns ErrDuplicateKey if the ID exists.
func (s *EventStore) Insert(_ context.Context, e *domain.LedgerEvent) error {
	if e == nil || e.ID == uuid.Nil || !e.Kind.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.exists[e.ID]; ok {
		return storage.ErrDuplicateKey
	}

	eventCopy := *e
	s.data = append(s.data, &eventCopy)
	s.exists[e.ID] = struct{}{}
	return nil
}

// GetByPresale retrieves the newest events of a presale.
func (s *EventStore) GetByPresale(_ context.Context, presale string, limit int) ([]*domain.LedgerEvent, error) {
	return s.filter(func(e *domain.LedgerEvent) bool { return e.Presale == presale }, limit), nil
}

// GetByActor retrieves the newest events signed by actor.
func (s *EventStore) GetByActor(_ context.Context, actor solana.PublicKey, limit int) ([]*domain.LedgerEvent, error) {
	return s.filter(func(e *domain.LedgerEvent) bool { return e.Actor == actor }, limit), nil
}

func (s *EventStore) filter(match func(*domain.LedgerEvent) bool, limit int) []*domain.LedgerEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LedgerEvent
	for i := len(s.data) - 1; i >= 0; i-- {
		if match(s.data[i]) {
			eventCopy := *s.data[i]
			result = append(result, &eventCopy)
		}
	}

	// Newest first; insertion order breaks ties.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp > result[j].Timestamp
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
