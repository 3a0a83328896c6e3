package vesting

import "time"

const (
	// PaymentDecimals is the required precision of the payment mint.
	PaymentDecimals = 6

	// LockRate is the share of each purchase withheld, out of RateDenominator.
	LockRate = 50

	// RateDenominator is the denominator of LockRate.
	RateDenominator = 100

	// LockDuration is the maturity period of a locked balance.
	LockDuration = 30 * 24 * time.Hour
)

// Split divides a purchase into the locked share, floor(amount*50/100), and
// the immediate share, which keeps any remainder.
func Split(amount uint64) (immediate, locked uint64) {
	// amount*LockRate may overflow; split the multiplication over quotient
	// and remainder instead.
	q, r := amount/RateDenominator, amount%RateDenominator
	locked = q*LockRate + r*LockRate/RateDenominator
	return amount - locked, locked
}

// Matured reports whether a balance last touched at lastTS is claimable at now.
func Matured(lastTS, now int64) bool {
	return now-lastTS >= int64(LockDuration/time.Second)
}
