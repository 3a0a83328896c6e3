package auth

import (
	"errors"
	"time"

	"github.com/mr-tron/base58"
	"github.com/patrickmn/go-cache"
)

// ErrReplayed is returned when a verified request has already been accepted.
var ErrReplayed = errors.New("request already used")

// ReplayGuard remembers the signatures of accepted requests for as long as
// Verify would still accept them. A request stamped up to window in the future
// stays valid until window past that stamp, so entries live for twice the window.
type ReplayGuard struct {
	seen *cache.Cache
	ttl  time.Duration
}

// NewReplayGuard creates a guard for requests verified with window.
func NewReplayGuard(window time.Duration) *ReplayGuard {
	if window <= 0 {
		window = DefaultWindow
	}
	ttl := 2 * window
	return &ReplayGuard{
		seen: cache.New(ttl, window),
		ttl:  ttl,
	}
}

// Use marks req as consumed. It returns ErrReplayed if the same signature was
// used before. Call it only after Verify succeeded, so forged requests cannot
// occupy entries.
func (g *ReplayGuard) Use(req *Request) error {
	sig, err := base58.Decode(req.Signature)
	if err != nil {
		return ErrInvalidSignature
	}
	// Add fails when an unexpired entry exists; the check and insert are atomic.
	if err := g.seen.Add(string(sig), struct{}{}, g.ttl); err != nil {
		return ErrReplayed
	}
	return nil
}

// Len returns the number of remembered signatures.
func (g *ReplayGuard) Len() int {
	return g.seen.ItemCount()
}
