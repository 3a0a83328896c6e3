// Package vesting implements the presale escrow: custody pool initialization,
// participant ledger entries, purchases with a 50% time lock, matured claims
// and the owner's sweep and override paths.
//
// Every operation runs in one storage transaction together with the token
// movements it causes, so a failed operation leaves no trace.
package vesting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"presale-vesting/internal/domain"
	"presale-vesting/internal/observability"
	"presale-vesting/internal/pda"
	"presale-vesting/internal/solana"
	"presale-vesting/internal/storage"
	"presale-vesting/internal/token"
)

// Publisher receives ledger events after their operation has committed.
type Publisher interface {
	Publish(ctx context.Context, e *domain.LedgerEvent) error
}

// Options configures Engine.
type Options struct {
	Store     storage.Store
	ProgramID solana.PublicKey
	Clock     Clock     // defaults to SystemClock
	Publisher Publisher // optional
	Logger    *log.Logger

	// LenientSolvency disables the aggregate check at claim time, leaving
	// only the per-claim pool balance check.
	LenientSolvency bool
}

// Engine runs vesting operations against a ledger store.
type Engine struct {
	store     storage.Store
	deriver   *pda.Deriver
	clock     Clock
	publisher Publisher
	logger    *log.Logger
	lenient   bool
	locks     *lockSet
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{
		store:     opts.Store,
		deriver:   pda.New(opts.ProgramID),
		clock:     clock,
		publisher: opts.Publisher,
		logger:    logger,
		lenient:   opts.LenientSolvency,
		locks:     newLockSet(),
	}
}

// ProgramID returns the derivation namespace of this engine.
func (e *Engine) ProgramID() solana.PublicKey {
	return e.deriver.ProgramID()
}

func (e *Engine) now() int64 {
	return e.clock.Now().Unix()
}

func parseTitle(title string) (pda.Title, error) {
	t, err := pda.PadTitle(title)
	if err != nil {
		return t, fmt.Errorf("%w: %w", ErrInvalidTitle, err)
	}
	return t, nil
}

// record reports an operation outcome to metrics.
func (e *Engine) record(op string, start time.Time, err error) {
	observability.RecordOperation(op, Code(err), time.Since(start).Seconds())
	if err == nil {
		observability.MarkOperationSuccess(e.now())
	}
}

// publish hands ev to the publisher. Failures are logged only; the
// operation has already committed.
func (e *Engine) publish(ctx context.Context, ev *domain.LedgerEvent) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Printf("publish %s event for %s: %v", ev.Kind, ev.Presale, err)
	}
}

// observe refreshes the solvency gauges of a presale.
func (e *Engine) observe(ctx context.Context, title string) {
	s, err := e.Solvency(ctx, title)
	if err != nil {
		e.logger.Printf("solvency of %s: %v", title, err)
		return
	}
	observability.UpdateSolvency(s.Presale, s.PaymentBalance, s.SaleBalance, s.OutstandingLocked)
}

// loadPresale reads the presale record of title inside tx.
func loadPresale(ctx context.Context, tx storage.Tx, title pda.Title) (*domain.Presale, error) {
	p, err := tx.GetPresale(ctx, title.String())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPresaleNotFound, title)
	}
	if err != nil {
		return nil, fmt.Errorf("get presale: %w", err)
	}
	return p, nil
}

// loadParticipant reads the entry of owner in presale p inside tx.
func (e *Engine) loadParticipant(ctx context.Context, tx storage.Tx, p *domain.Presale, owner solana.PublicKey) (*domain.Participant, error) {
	entry, err := tx.GetParticipantByOwner(ctx, p.Key(), owner)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s in %s", ErrParticipantNotFound, owner, p.Key())
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return entry, nil
}

// poolAuthority returns the derived authority over both custody accounts of p.
func (e *Engine) poolAuthority(p *domain.Presale) (token.Authority, error) {
	signer, err := e.deriver.PresaleSigner(p.Title, p.Bumps.Presale)
	if err != nil {
		return token.Authority{}, fmt.Errorf("presale signer: %w", err)
	}
	return token.DerivedBy(signer)
}

// balanceOf returns the balance of account, treating a missing account as empty.
func balanceOf(ctx context.Context, tx storage.Tx, account solana.PublicKey) (uint64, error) {
	amount, err := token.Balance(ctx, tx, account)
	if errors.Is(err, token.ErrAccountNotFound) {
		return 0, nil
	}
	return amount, err
}

func presaleKey(title pda.Title) string {
	return "presale:" + title.String()
}

func participantKey(title pda.Title, owner solana.PublicKey) string {
	return "participant:" + title.String() + ":" + owner.String()
}
