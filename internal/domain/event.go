package domain

import (
	"github.com/google/uuid"

	"presale-vesting/internal/solana"
)

// EventKind names the operation that produced a ledger event.
type EventKind string

// Event kinds.
const (
	EventInitialize      EventKind = "initialize"
	EventInitParticipant EventKind = "init_participant"
	EventPurchase        EventKind = "purchase"
	EventClaim           EventKind = "claim"
	EventWithdrawPayment EventKind = "withdraw_payment"
	EventWithdrawSale    EventKind = "withdraw_sale"
	EventSetLock         EventKind = "set_lock"
)

// IsValid checks if the kind is a known value.
func (k EventKind) IsValid() bool {
	switch k {
	case EventInitialize, EventInitParticipant, EventPurchase, EventClaim,
		EventWithdrawPayment, EventWithdrawSale, EventSetLock:
		return true
	}
	return false
}

// LedgerEvent records a committed operation.
// Corresponds to ledger_events table in ClickHouse.
type LedgerEvent struct {
	ID          uuid.UUID        `json:"id"`
	Kind        EventKind        `json:"kind"`
	Presale     string           `json:"presale"` // canonical title
	Actor       solana.PublicKey `json:"actor"`
	Participant solana.PublicKey `json:"participant"` // zero for pool-level events
	Amount      uint64           `json:"amount"`      // moved or recorded amount
	Immediate   uint64           `json:"immediate"`   // purchase only
	Locked      uint64           `json:"locked"`      // purchase and set_lock
	Timestamp   int64            `json:"timestamp"`   // Unix seconds
}

// NewLedgerEvent creates an event with a fresh random ID.
func NewLedgerEvent(kind EventKind, presale string, actor solana.PublicKey, ts int64) *LedgerEvent {
	return &LedgerEvent{
		ID:        uuid.New(),
		Kind:      kind,
		Presale:   presale,
		Actor:     actor,
		Timestamp: ts,
	}
}
