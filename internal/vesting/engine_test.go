package vesting

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presale-vesting/internal/auth"
	"presale-vesting/internal/domain"
	"presale-vesting/internal/pda"
	"presale-vesting/internal/solana"
	"presale-vesting/internal/storage"
	"presale-vesting/internal/storage/memory"
	"presale-vesting/internal/token"
)

var testProgramID = solana.MustPublicKey("Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")

const day = 24 * time.Hour

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.LedgerEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e *domain.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) kinds() []domain.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]domain.EventKind, len(p.events))
	for i, e := range p.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func newSigner(t *testing.T) auth.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	s, err := auth.FromPrivateKey(priv)
	require.NoError(t, err)
	return s
}

type fixture struct {
	t           *testing.T
	ctx         context.Context
	store       storage.Store
	clock       *fakeClock
	pub         *recordingPublisher
	engine      *Engine
	owner       auth.Signer
	buyer       auth.Signer
	paymentMint solana.PublicKey
	saleMint    solana.PublicKey
	presale     *domain.Presale
}

const testTitle = "SALE"

// newFixture creates mints, initializes testTitle, funds the sale pool with
// 1000 and the buyer with 1000 payment units, and registers the buyer.
func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: memory.NewLedgerStore(),
		clock: &fakeClock{now: time.Unix(1_700_000_000, 0)},
		pub:   &recordingPublisher{},
		owner: newSigner(t),
		buyer: newSigner(t),
	}
	o := Options{
		Store:     f.store,
		ProgramID: testProgramID,
		Clock:     f.clock,
		Publisher: f.pub,
	}
	for _, fn := range opts {
		fn(&o)
	}
	f.engine = NewEngine(o)

	f.paymentMint = f.createMint("USDC", PaymentDecimals)
	f.saleMint = f.createMint("SALE", 9)

	var err error
	f.presale, err = f.engine.Initialize(f.ctx, f.owner, testTitle, f.bumps(testTitle), f.paymentMint, f.saleMint)
	require.NoError(t, err)

	f.fund(f.saleMint, f.presale.PoolSale, 1000)
	f.fundOwner(f.buyer, f.paymentMint, 1000)
	f.register(f.buyer)
	return f
}

func (f *fixture) createMint(symbol string, decimals uint8) solana.PublicKey {
	f.t.Helper()
	addr, err := token.MintAddress(f.owner.Key(), symbol)
	require.NoError(f.t, err)
	err = f.store.Update(f.ctx, func(tx storage.Tx) error {
		_, err := token.CreateMint(f.ctx, tx, addr, f.owner.Key(), decimals, 1)
		return err
	})
	require.NoError(f.t, err)
	return addr
}

func (f *fixture) bumps(title string) domain.PoolBumps {
	f.t.Helper()
	addrs, err := f.engine.Addresses(title)
	require.NoError(f.t, err)
	return domain.PoolBumps{
		Presale:     addrs.PresaleBump,
		PoolPayment: addrs.PoolPaymentBump,
		PoolSale:    addrs.PoolSaleBump,
	}
}

func (f *fixture) fund(mint, account solana.PublicKey, amount uint64) {
	f.t.Helper()
	authority, err := token.SignedBy(f.owner)
	require.NoError(f.t, err)
	err = f.store.Update(f.ctx, func(tx storage.Tx) error {
		return token.MintTo(f.ctx, tx, mint, account, amount, authority)
	})
	require.NoError(f.t, err)
}

func (f *fixture) fundOwner(holder auth.Signer, mint solana.PublicKey, amount uint64) {
	f.t.Helper()
	var addr solana.PublicKey
	err := f.store.Update(f.ctx, func(tx storage.Tx) error {
		a, err := token.EnsureAssociated(f.ctx, tx, holder.Key(), mint, 1)
		if err != nil {
			return err
		}
		addr = a.Address
		return nil
	})
	require.NoError(f.t, err)
	f.fund(mint, addr, amount)
}

func (f *fixture) register(s auth.Signer) *domain.Participant {
	f.t.Helper()
	_, bump, err := f.engine.ParticipantAddress(testTitle, s.Key())
	require.NoError(f.t, err)
	a, b := pda.SplitIdentity(s.Key())
	entry, err := f.engine.InitParticipant(f.ctx, s, testTitle, bump, a, b)
	require.NoError(f.t, err)
	return entry
}

func (f *fixture) balance(owner, mint solana.PublicKey) uint64 {
	f.t.Helper()
	addr, err := token.AssociatedAddress(owner, mint)
	require.NoError(f.t, err)
	return f.accountBalance(addr)
}

func (f *fixture) accountBalance(addr solana.PublicKey) uint64 {
	f.t.Helper()
	var amount uint64
	err := f.store.View(f.ctx, func(tx storage.Tx) error {
		var err error
		amount, err = token.Balance(f.ctx, tx, addr)
		if errors.Is(err, token.ErrAccountNotFound) {
			return nil
		}
		return err
	})
	require.NoError(f.t, err)
	return amount
}

func TestPurchaseAndClaim(t *testing.T) {
	f := newFixture(t)
	purchasedAt := f.clock.Now().Unix()

	res, err := f.engine.Purchase(f.ctx, f.buyer, testTitle, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), res.Immediate)
	assert.Equal(t, uint64(100), res.Locked)
	assert.Equal(t, uint64(200), res.Participant.DepositAmount)
	assert.Equal(t, uint64(100), res.Participant.LockedAmount)
	assert.Equal(t, purchasedAt, res.Participant.LastDepositTS)

	assert.Equal(t, uint64(800), f.balance(f.buyer.Key(), f.paymentMint))
	assert.Equal(t, uint64(100), f.balance(f.buyer.Key(), f.saleMint))
	assert.Equal(t, uint64(200), f.accountBalance(f.presale.PoolPayment))
	assert.Equal(t, uint64(900), f.accountBalance(f.presale.PoolSale))

	_, err = f.engine.Claim(f.ctx, f.buyer, testTitle)
	assert.ErrorIs(t, err, ErrNotMatured)

	f.clock.Advance(LockDuration - time.Second)
	_, err = f.engine.Claim(f.ctx, f.buyer, testTitle)
	assert.ErrorIs(t, err, ErrNotMatured)

	f.clock.Advance(time.Second)
	claim, err := f.engine.Claim(f.ctx, f.buyer, testTitle)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), claim.Amount)
	assert.Zero(t, claim.Participant.LockedAmount)
	assert.Equal(t, f.clock.Now().Unix(), claim.Participant.LastDepositTS)
	assert.Equal(t, uint64(200), claim.Participant.DepositAmount)
	assert.Equal(t, uint64(200), f.balance(f.buyer.Key(), f.saleMint))
	assert.Equal(t, uint64(800), f.accountBalance(f.presale.PoolSale))

	_, err = f.engine.Claim(f.ctx, f.buyer, testTitle)
	assert.ErrorIs(t, err, ErrNothingToClaim)

	assert.Equal(t, []domain.EventKind{
		domain.EventInitialize, domain.EventInitParticipant, domain.EventPurchase, domain.EventClaim,
	}, f.pub.kinds())
	assert.Zero(t, f.engine.locks.size())
}

func TestPurchase_OddAmountKeepsRemainderImmediate(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Purchase(f.ctx, f.buyer, testTitle, 101)
	require.NoError(t, err)
	assert.Equal(t, uint64(51), res.Immediate)
	assert.Equal(t, uint64(50), res.Locked)

	res, err = f.engine.Purchase(f.ctx, f.buyer, testTitle, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Immediate)
	assert.Zero(t, res.Locked)
}

func TestPurchase_RestartsMaturityClock(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Purchase(f.ctx, f.buyer, testTitle, 100)
	require.NoError(t, err)

	f.clock.Advance(20 * day)
	res, err := f.engine.Purchase(f.ctx, f.buyer, testTitle, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), res.Participant.DepositAmount)
	assert.Equal(t, uint64(75), res.Participant.LockedAmount)

	// 30 days after the first purchase, but only 10 after the second.
	f.clock.Advance(10 * day)
	_, err = f.engine.Claim(f.ctx, f.buyer, testTitle)
	assert.ErrorIs(t, err, ErrNotMatured)

	f.clock.Advance(20 * day)
	claim, err := f.engine.Claim(f.ctx, f.buyer, testTitle)
	require.NoError(t, err)
	assert.Equal(t, uint64(75), claim.Amount)
}

func TestPurchase_Rejections(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Purchase(f.ctx, f.buyer, testTitle, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.engine.Purchase(f.ctx, f.buyer, testTitle, 1001)
	assert.ErrorIs(t, err, ErrInsufficientPaymentAsset)

	stranger := newSigner(t)
	f.fundOwner(stranger, f.paymentMint, 100)
	_, err = f.engine.Purchase(f.ctx, stranger, testTitle, 10)
	assert.ErrorIs(t, err, ErrParticipantNotFound)

	_, err = f.engine.Purchase(f.ctx, f.buyer, "NOPE", 10)
	assert.ErrorIs(t, err, ErrPresaleNotFound)

	_, err = f.engine.Purchase(f.ctx, auth.Signer{}, testTitle, 10)
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.Equal(t, uint64(1000), f.balance(f.buyer.Key(), f.paymentMint))
	entry, err := f.engine.Participant(f.ctx, testTitle, f.buyer.Key())
	require.NoError(t, err)
	assert.Zero(t, entry.DepositAmount)
}

func TestPurchase_InsufficientSaleAssetIsAtomic(t *testing.T) {
	f := newFixture(t)

	// Drain the sale pool to 10: the immediate share of 100 is 50.
	_, err := f.engine.WithdrawSaleAsset(f.ctx, f.owner, testTitle)
	require.NoError(t, err)
	f.fund(f.saleMint, f.presale.PoolSale, 10)

	_, err = f.engine.Purchase(f.ctx, f.buyer, testTitle, 100)
	assert.ErrorIs(t, err, ErrInsufficientSaleAsset)

	assert.Equal(t, uint64(1000), f.balance(f.buyer.Key(), f.paymentMint))
	assert.Zero(t, f.accountBalance(f.presale.PoolPayment))
	assert.Equal(t, uint64(10), f.accountBalance(f.presale.PoolSale))
	entry, err := f.engine.Participant(f.ctx, testTitle, f.buyer.Key())
	require.NoError(t, err)
	assert.Zero(t, entry.LockedAmount)
	assert.Zero(t, entry.DepositAmount)
}

func TestConcurrentPurchases(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.engine.Purchase(f.ctx, f.buyer, testTitle, 10); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("purchase: %v", err)
	}

	entry, err := f.engine.Participant(f.ctx, testTitle, f.buyer.Key())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), entry.DepositAmount)
	assert.Equal(t, uint64(50), entry.LockedAmount)
	assert.Equal(t, uint64(900), f.balance(f.buyer.Key(), f.paymentMint))
	assert.Zero(t, f.engine.locks.size())
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Purchase(f.ctx, f.buyer, testTitle, 200)
	require.NoError(t, err)

	_, err = f.engine.WithdrawPaymentAsset(f.ctx, f.buyer, testTitle)
	assert.ErrorIs(t, err, ErrUnauthorized)

	res, err := f.engine.WithdrawPaymentAsset(f.ctx, f.owner, testTitle)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), res.Amount)
	assert.Equal(t, uint64(200), f.balance(f.owner.Key(), f.paymentMint))

	_, err = f.engine.WithdrawPaymentAsset(f.ctx, f.owner, testTitle)
	assert.ErrorIs(t, err, ErrEmptyPool)

	assert.Zero(t, f.accountBalance(f.presale.PoolPayment))

	_, err = f.engine.WithdrawSaleAsset(f.ctx, f.buyer, testTitle)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, uint64(900), f.accountBalance(f.presale.PoolSale))

	res, err = f.engine.WithdrawSaleAsset(f.ctx, f.owner, testTitle)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), res.Amount)
	assert.Equal(t, uint64(900), f.balance(f.owner.Key(), f.saleMint))
	assert.Zero(t, f.accountBalance(f.presale.PoolSale))

	_, err = f.engine.WithdrawSaleAsset(f.ctx, f.owner, testTitle)
	assert.ErrorIs(t, err, ErrEmptyPool)

	// The sweep leaves the buyer's locked 100 unbacked.
	f.clock.Advance(LockDuration)
	_, err = f.engine.Claim(f.ctx, f.buyer, testTitle)
	assert.ErrorIs(t, err, ErrPoolUndercollateralized)
}

func TestSetParticipantLock(t *testing.T) {
	f := newFixture(t)
	holder := newSigner(t)
	f.register(holder)

	_, err := f.engine.SetParticipantLock(f.ctx, f.buyer, testTitle, holder.Key(), 500)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.engine.SetParticipantLock(f.ctx, f.owner, testTitle, newSigner(t).Key(), 500)
	assert.ErrorIs(t, err, ErrParticipantNotFound)

	entry, err := f.engine.SetParticipantLock(f.ctx, f.owner, testTitle, holder.Key(), 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), entry.LockedAmount)
	assert.Zero(t, entry.DepositAmount)
	assert.Equal(t, f.clock.Now().Unix(), entry.LastDepositTS)

	// No assets moved.
	assert.Equal(t, uint64(1000), f.accountBalance(f.presale.PoolSale))

	f.clock.Advance(LockDuration)
	claim, err := f.engine.Claim(f.ctx, holder, testTitle)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), claim.Amount)
	assert.Equal(t, uint64(500), f.balance(holder.Key(), f.saleMint))
}

func TestClaim_AggregateSolvency(t *testing.T) {
	run := func(t *testing.T, lenient bool) error {
		f := newFixture(t, func(o *Options) { o.LenientSolvency = lenient })
		holder := newSigner(t)
		f.register(holder)

		_, err := f.engine.SetParticipantLock(f.ctx, f.owner, testTitle, f.buyer.Key(), 400)
		require.NoError(t, err)
		_, err = f.engine.SetParticipantLock(f.ctx, f.owner, testTitle, holder.Key(), 700)
		require.NoError(t, err)

		s, err := f.engine.Solvency(f.ctx, testTitle)
		require.NoError(t, err)
		assert.Equal(t, uint64(1100), s.OutstandingLocked)
		assert.False(t, s.Covered)
		assert.Equal(t, uint64(100), s.Shortfall)

		f.clock.Advance(LockDuration)
		_, err = f.engine.Claim(f.ctx, f.buyer, testTitle)
		return err
	}

	t.Run("Strict", func(t *testing.T) {
		assert.ErrorIs(t, run(t, false), ErrPoolUndercollateralized)
	})
	t.Run("Lenient", func(t *testing.T) {
		assert.NoError(t, run(t, true))
	})
}

func TestInitialize_Rejections(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Initialize(f.ctx, f.owner, " SALE  ", f.bumps(testTitle), f.paymentMint, f.saleMint)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	_, err = f.engine.Initialize(f.ctx, f.owner, "ELEVENBYTES", f.bumps(testTitle), f.paymentMint, f.saleMint)
	assert.ErrorIs(t, err, ErrInvalidTitle)

	_, err = f.engine.Initialize(f.ctx, f.owner, "   ", f.bumps(testTitle), f.paymentMint, f.saleMint)
	assert.ErrorIs(t, err, ErrInvalidTitle)

	// Its presale record would be the sale pool of "S".
	_, err = f.engine.Initialize(f.ctx, f.owner, "Spool_wen", f.bumps(testTitle), f.paymentMint, f.saleMint)
	assert.ErrorIs(t, err, ErrInvalidTitle)
	assert.ErrorIs(t, err, pda.ErrReservedTitle)

	bumps := f.bumps("OTHER")
	bad := bumps
	bad.PoolSale++
	_, err = f.engine.Initialize(f.ctx, f.owner, "OTHER", bad, f.paymentMint, f.saleMint)
	assert.ErrorIs(t, err, ErrBumpMismatch)

	_, err = f.engine.Initialize(f.ctx, f.owner, "OTHER", bumps, f.saleMint, f.paymentMint)
	assert.ErrorIs(t, err, ErrInvalidDecimals)

	_, err = f.engine.Initialize(f.ctx, f.owner, "OTHER", bumps, f.paymentMint, f.paymentMint)
	assert.ErrorIs(t, err, ErrInvalidMint)

	_, err = f.engine.Initialize(f.ctx, f.owner, "OTHER", bumps, f.paymentMint, newSigner(t).Key())
	assert.ErrorIs(t, err, ErrMintNotFound)

	// Failed attempts left nothing behind.
	_, err = f.engine.Presale(f.ctx, "OTHER")
	assert.ErrorIs(t, err, ErrPresaleNotFound)

	p, err := f.engine.Initialize(f.ctx, f.owner, "OTHER", bumps, f.paymentMint, f.saleMint)
	require.NoError(t, err)
	assert.Equal(t, "OTHER", p.Key())
	assert.NotEqual(t, f.presale.PoolSale, p.PoolSale)
}

func TestInitialize_CustodyOwnedByPresale(t *testing.T) {
	f := newFixture(t)

	addrs, err := f.engine.Addresses(testTitle)
	require.NoError(t, err)
	assert.Equal(t, addrs.Presale, f.presale.Address)
	assert.Equal(t, addrs.PoolPayment, f.presale.PoolPayment)
	assert.Equal(t, addrs.PoolSale, f.presale.PoolSale)

	err = f.store.View(f.ctx, func(tx storage.Tx) error {
		for _, addr := range []solana.PublicKey{f.presale.PoolPayment, f.presale.PoolSale} {
			a, err := token.GetAccount(f.ctx, tx, addr)
			if err != nil {
				return err
			}
			assert.Equal(t, f.presale.Address, a.Owner)
		}
		return nil
	})
	require.NoError(t, err)

	// The owner's own signature cannot move custody funds.
	authority, err := token.SignedBy(f.owner)
	require.NoError(t, err)
	err = f.store.Update(f.ctx, func(tx storage.Tx) error {
		dest, err := token.EnsureAssociated(f.ctx, tx, f.owner.Key(), f.saleMint, 1)
		if err != nil {
			return err
		}
		return token.Transfer(f.ctx, tx, f.presale.PoolSale, dest.Address, 1, authority)
	})
	assert.ErrorIs(t, err, token.ErrOwnerMismatch)
}

func TestInitParticipant_Rejections(t *testing.T) {
	f := newFixture(t)
	alice := newSigner(t)
	_, bump, err := f.engine.ParticipantAddress(testTitle, alice.Key())
	require.NoError(t, err)
	a, b := pda.SplitIdentity(alice.Key())

	_, err = f.engine.InitParticipant(f.ctx, alice, testTitle, bump, b, a)
	assert.ErrorIs(t, err, ErrInitializationMismatch)

	// Joins to the identity, but the second fragment does not fit in a seed.
	full := alice.Key().String()
	_, err = f.engine.InitParticipant(f.ctx, alice, testTitle, bump, full[:3], full[3:])
	assert.ErrorIs(t, err, ErrInitializationMismatch)
	assert.ErrorContains(t, err, "seed limit")

	_, err = f.engine.InitParticipant(f.ctx, f.buyer, testTitle, bump, a, b)
	assert.ErrorIs(t, err, ErrInitializationMismatch)

	_, err = f.engine.InitParticipant(f.ctx, alice, testTitle, bump+1, a, b)
	assert.ErrorIs(t, err, ErrBumpMismatch)

	_, bumpOther, err := f.engine.ParticipantAddress("NOPE", alice.Key())
	require.NoError(t, err)
	_, err = f.engine.InitParticipant(f.ctx, alice, "NOPE", bumpOther, a, b)
	assert.ErrorIs(t, err, ErrPresaleNotFound)

	entry, err := f.engine.InitParticipant(f.ctx, alice, testTitle, bump, a, b)
	require.NoError(t, err)
	assert.Equal(t, alice.Key(), entry.Owner)
	assert.Equal(t, testTitle, entry.Presale)

	_, err = f.engine.InitParticipant(f.ctx, alice, testTitle, bump, a, b)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestInitParticipant_AnySplit(t *testing.T) {
	f := newFixture(t)
	alice := newSigner(t)
	f.fundOwner(alice, f.paymentMint, 100)

	full := alice.Key().String()
	a, b := full[:20], full[20:]
	title, err := pda.PadTitle(testTitle)
	require.NoError(t, err)
	addr, bump, err := pda.New(testProgramID).Participant(title, a, b)
	require.NoError(t, err)
	canonical, canonicalBump, err := f.engine.ParticipantAddress(testTitle, alice.Key())
	require.NoError(t, err)
	require.NotEqual(t, canonical, addr)

	entry, err := f.engine.InitParticipant(f.ctx, alice, testTitle, bump, a, b)
	require.NoError(t, err)
	assert.Equal(t, addr, entry.Address)

	// One entry per caller, whichever split is offered.
	ca, cb := pda.SplitIdentity(alice.Key())
	_, err = f.engine.InitParticipant(f.ctx, alice, testTitle, canonicalBump, ca, cb)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	res, err := f.engine.Purchase(f.ctx, alice, testTitle, 100)
	require.NoError(t, err)
	assert.Equal(t, addr, res.Participant.Address)

	got, err := f.engine.Participant(f.ctx, testTitle, alice.Key())
	require.NoError(t, err)
	assert.Equal(t, addr, got.Address)
	assert.Equal(t, uint64(50), got.LockedAmount)

	f.clock.Advance(LockDuration)
	claim, err := f.engine.Claim(f.ctx, alice, testTitle)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), claim.Amount)
}

func TestPublishFailureDoesNotUndo(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("sink down")

	_, err := f.engine.Purchase(f.ctx, f.buyer, testTitle, 20)
	require.NoError(t, err)

	entry, err := f.engine.Participant(f.ctx, testTitle, f.buyer.Key())
	require.NoError(t, err)
	assert.Equal(t, uint64(20), entry.DepositAmount)
}

func TestPurchaseEventFields(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Purchase(f.ctx, f.buyer, testTitle, 7)
	require.NoError(t, err)

	f.pub.mu.Lock()
	ev := f.pub.events[len(f.pub.events)-1]
	f.pub.mu.Unlock()
	assert.Equal(t, domain.EventPurchase, ev.Kind)
	assert.Equal(t, testTitle, ev.Presale)
	assert.Equal(t, f.buyer.Key(), ev.Actor)
	assert.Equal(t, res.Participant.Address, ev.Participant)
	assert.Equal(t, uint64(7), ev.Amount)
	assert.Equal(t, uint64(4), ev.Immediate)
	assert.Equal(t, uint64(3), ev.Locked)
}
