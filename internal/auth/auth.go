// Package auth authenticates callers. A Signer is proof that the holder of an
// identity's private key authorized the current request.
package auth

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	"presale-vesting/internal/solana"
)

// DefaultWindow is the maximum age of a signed request.
const DefaultWindow = 5 * time.Minute

var (
	// ErrInvalidSignature is returned when a request signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrExpired is returned when a request timestamp is outside the accepted window.
	ErrExpired = errors.New("request timestamp outside accepted window")

	// ErrOperationMismatch is returned when a request was signed for another operation.
	ErrOperationMismatch = errors.New("request signed for a different operation")
)

// Signer is a verified caller identity. It can only be obtained from a private
// key or from a request whose signature verified. The zero value is invalid.
type Signer struct {
	key   solana.PublicKey
	valid bool
}

// FromPrivateKey returns the signer for a locally held key.
func FromPrivateKey(priv ed25519.PrivateKey) (Signer, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return Signer{}, fmt.Errorf("private key has %d bytes", len(priv))
	}
	pub, err := solana.PublicKeyFromBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return Signer{}, err
	}
	return Signer{key: pub, valid: true}, nil
}

// Key returns the caller identity.
func (s Signer) Key() solana.PublicKey {
	return s.key
}

// Valid reports whether s was produced by this package.
func (s Signer) Valid() bool {
	return s.valid
}

// Is reports whether s is a valid signer for key.
func (s Signer) Is(key solana.PublicKey) bool {
	return s.valid && s.key == key
}

// Request is the signed envelope sent to the server.
type Request struct {
	Op        string           `json:"op"`
	Signer    solana.PublicKey `json:"signer"`
	Timestamp int64            `json:"timestamp"`
	Nonce     string           `json:"nonce"`
	Payload   json.RawMessage  `json:"payload"`
	Signature string           `json:"signature"`
}

// Message returns the bytes covered by the signature.
func (r *Request) Message() []byte {
	msg := make([]byte, 0, len(r.Op)+len(r.Nonce)+len(r.Payload)+24)
	msg = append(msg, r.Op...)
	msg = append(msg, '\n')
	msg = strconv.AppendInt(msg, r.Timestamp, 10)
	msg = append(msg, '\n')
	msg = append(msg, r.Nonce...)
	msg = append(msg, '\n')
	msg = append(msg, r.Payload...)
	return msg
}

// Sign builds a signed request for op with payload marshalled as JSON. Each
// request gets a fresh nonce, so identical payloads signed in the same second
// still produce distinct signatures.
func Sign(priv ed25519.PrivateKey, op string, payload any, now time.Time) (*Request, error) {
	signer, err := FromPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req := &Request{
		Op:        op,
		Signer:    signer.Key(),
		Timestamp: now.Unix(),
		Nonce:     uuid.NewString(),
		Payload:   body,
	}
	req.Signature = base58.Encode(ed25519.Sign(priv, req.Message()))
	return req, nil
}

// Verify checks the request signature, the operation name and the timestamp
// window, and returns the authenticated signer.
func Verify(req *Request, op string, now time.Time, window time.Duration) (Signer, error) {
	if req.Op != op {
		return Signer{}, fmt.Errorf("%w: got %q, want %q", ErrOperationMismatch, req.Op, op)
	}
	if window <= 0 {
		window = DefaultWindow
	}
	age := now.Sub(time.Unix(req.Timestamp, 0))
	if age > window || age < -window {
		return Signer{}, fmt.Errorf("%w: age %s", ErrExpired, age)
	}

	sig, err := base58.Decode(req.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return Signer{}, ErrInvalidSignature
	}
	if !ed25519.Verify(ed25519.PublicKey(req.Signer[:]), req.Message(), sig) {
		return Signer{}, ErrInvalidSignature
	}
	return Signer{key: req.Signer, valid: true}, nil
}
