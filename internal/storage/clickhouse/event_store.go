package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"presale-vesting/internal/domain"
	"presale-vesting/internal/observability"
	"presale-vesting/internal/solana"
	"presale-vesting/internal/storage"
)

// EventStore implements storage.EventStore using the ledger_events table.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Insert adds an event. MergeTree does not enforce uniqueness, so the ID is
// checked explicitly before the insert.
func (s *EventStore) Insert(ctx context.Context, e *domain.LedgerEvent) (err error) {
	if e == nil || e.ID == uuid.Nil || !e.Kind.IsValid() {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "insert_event", time.Since(start).Seconds(), err)
	}()

	exists, err := s.exists(ctx, e.Presale, e.ID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ledger_events (
			event_id, kind, presale, actor, participant, amount, immediate, locked, ts
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	participant := ""
	if !e.Participant.IsZero() {
		participant = e.Participant.String()
	}
	err = batch.Append(
		e.ID, string(e.Kind), e.Presale, e.Actor.String(), participant,
		e.Amount, e.Immediate, e.Locked, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByPresale retrieves the newest events of a presale.
func (s *EventStore) GetByPresale(ctx context.Context, presale string, limit int) ([]*domain.LedgerEvent, error) {
	query := `
		SELECT event_id, kind, presale, actor, participant, amount, immediate, locked, ts
		FROM ledger_events
		WHERE presale = ?
		ORDER BY ts DESC, event_id DESC
	` + limitClause(limit)

	rows, err := s.conn.Query(ctx, query, presale)
	if err != nil {
		return nil, fmt.Errorf("query by presale: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByActor retrieves the newest events signed by actor.
func (s *EventStore) GetByActor(ctx context.Context, actor solana.PublicKey, limit int) ([]*domain.LedgerEvent, error) {
	query := `
		SELECT event_id, kind, presale, actor, participant, amount, immediate, locked, ts
		FROM ledger_events
		WHERE actor = ?
		ORDER BY ts DESC, event_id DESC
	` + limitClause(limit)

	rows, err := s.conn.Query(ctx, query, actor.String())
	if err != nil {
		return nil, fmt.Errorf("query by actor: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf("LIMIT %d", limit)
}

// exists checks if an event with the given ID exists.
func (s *EventStore) exists(ctx context.Context, presale string, id uuid.UUID) (bool, error) {
	query := `
		SELECT count(*) FROM ledger_events
		WHERE presale = ? AND event_id = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, presale, id).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanEvents scans multiple rows.
func scanEvents(rows chRows) ([]*domain.LedgerEvent, error) {
	var events []*domain.LedgerEvent

	for rows.Next() {
		var e domain.LedgerEvent
		var kind, actor, participant string

		err := rows.Scan(
			&e.ID, &kind, &e.Presale, &actor, &participant,
			&e.Amount, &e.Immediate, &e.Locked, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger event row: %w", err)
		}

		e.Kind = domain.EventKind(kind)
		if e.Actor, err = solana.PublicKeyFromBase58(actor); err != nil {
			return nil, fmt.Errorf("ledger event actor: %w", err)
		}
		if participant != "" {
			if e.Participant, err = solana.PublicKeyFromBase58(participant); err != nil {
				return nil, fmt.Errorf("ledger event participant: %w", err)
			}
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger event rows: %w", err)
	}

	return events, nil
}
