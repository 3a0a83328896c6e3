package vesting

import (
	"errors"

	"presale-vesting/internal/pda"
	"presale-vesting/internal/token"
)

var (
	// ErrInvalidAmount is returned for a zero purchase amount.
	ErrInvalidAmount = errors.New("amount must be at least 1")

	// ErrInsufficientPaymentAsset is returned when the buyer cannot cover the payment.
	ErrInsufficientPaymentAsset = errors.New("insufficient payment asset")

	// ErrInsufficientSaleAsset is returned when the sale pool cannot pay the immediate share.
	ErrInsufficientSaleAsset = errors.New("insufficient sale asset")

	// ErrInitializationMismatch is returned when identity fragments do not match the caller.
	ErrInitializationMismatch = errors.New("identity fragments do not match caller")

	// ErrNothingToClaim is returned when the locked balance is zero.
	ErrNothingToClaim = errors.New("nothing to claim")

	// ErrNotMatured is returned when the lock period has not elapsed.
	ErrNotMatured = errors.New("locked balance has not matured")

	// ErrPoolUndercollateralized is returned when the sale pool cannot back a claim.
	ErrPoolUndercollateralized = errors.New("sale pool is undercollateralized")

	// ErrUnauthorized is returned when the caller may not perform the operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrEmptyPool is returned when a withdrawal finds no balance to sweep.
	ErrEmptyPool = errors.New("pool is empty")

	// ErrInvalidTitle is returned for an empty or oversized presale title.
	ErrInvalidTitle = errors.New("invalid presale title")

	// ErrInvalidDecimals is returned when the payment mint does not use PaymentDecimals.
	ErrInvalidDecimals = errors.New("payment mint must use 6 decimals")

	// ErrAlreadyInitialized is returned when a presale or participant entry already exists.
	ErrAlreadyInitialized = errors.New("already initialized")

	// ErrBumpMismatch is returned when a supplied bump is not canonical.
	ErrBumpMismatch = errors.New("bump mismatch")

	// ErrPresaleNotFound is returned when no presale exists for a title.
	ErrPresaleNotFound = errors.New("presale not found")

	// ErrParticipantNotFound is returned when no participant entry exists.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrMintNotFound is returned when a referenced mint does not exist.
	ErrMintNotFound = errors.New("mint not found")

	// ErrInvalidMint is returned when the payment and sale mints are the same.
	ErrInvalidMint = errors.New("payment and sale mints must differ")

	// ErrOverflow is returned when a ledger balance would exceed math.MaxUint64.
	ErrOverflow = errors.New("balance overflow")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInsufficientPaymentAsset, "insufficient_payment_asset"},
	{ErrInsufficientSaleAsset, "insufficient_sale_asset"},
	{ErrInitializationMismatch, "initialization_mismatch"},
	{ErrNothingToClaim, "nothing_to_claim"},
	{ErrNotMatured, "not_matured"},
	{ErrPoolUndercollateralized, "pool_undercollateralized"},
	{ErrUnauthorized, "unauthorized"},
	{ErrEmptyPool, "empty_pool"},
	{ErrInvalidTitle, "invalid_title"},
	{ErrInvalidDecimals, "invalid_decimals"},
	{ErrAlreadyInitialized, "already_initialized"},
	{ErrBumpMismatch, "bump_mismatch"},
	{pda.ErrBumpMismatch, "bump_mismatch"},
	{ErrPresaleNotFound, "presale_not_found"},
	{ErrParticipantNotFound, "participant_not_found"},
	{ErrMintNotFound, "mint_not_found"},
	{ErrInvalidMint, "invalid_mint"},
	{ErrOverflow, "overflow"},

	// Token service errors surface through the same wire codes.
	{token.ErrMintNotFound, "mint_not_found"},
	{token.ErrAccountNotFound, "account_not_found"},
	{token.ErrInsufficientFunds, "insufficient_funds"},
	{token.ErrOwnerMismatch, "unauthorized"},
	{token.ErrInvalidAuthority, "unauthorized"},
	{token.ErrMintMismatch, "mint_mismatch"},
	{token.ErrOverflow, "overflow"},
	{token.ErrAccountExists, "already_initialized"},
	{token.ErrInvalidSymbol, "invalid_symbol"},
	{token.ErrNoReader, "unavailable"},
}

// Code maps err to a stable string code. Unknown errors map to "internal";
// a nil error maps to "ok".
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
