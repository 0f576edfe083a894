package challenge

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Purpose scopes a challenge to its intended use. The key tags differ per
// purpose, so a registration code can never be replayed against a password
// reset for the same address.
type Purpose uint8

const (
	PurposeRegistration Purpose = iota
	PurposePasswordReset
)

func (p Purpose) tag() string {
	switch p {
	case PurposeRegistration:
		return "otpReg"
	case PurposePasswordReset:
		return "otpResetPw"
	default:
		return "otp"
	}
}

// Key returns the store key for a (purpose, email) pair. At most one live
// challenge exists per key; issuing again overwrites.
func (p Purpose) Key(email string) string {
	return p.tag() + ":" + email
}

// Engine issues and verifies one-time codes. It owns the pending-challenge
// records in the Store; delivery of issued codes is the caller's problem.
type Engine struct {
	store  Store
	ttl    time.Duration
	digits int
	now    func() time.Time
}

// NewEngine creates an engine issuing ttl-bound codes of the given digit
// length. Zero values fall back to 180s and 6 digits.
func NewEngine(store Store, ttl time.Duration, digits int) *Engine {
	if ttl <= 0 {
		ttl = 180 * time.Second
	}
	if digits <= 0 {
		digits = 6
	}
	return &Engine{store: store, ttl: ttl, digits: digits, now: time.Now}
}

// Issue generates a fresh numeric code for (purpose, email), stores it with
// the engine TTL, replacing any pending code for the same pair, and returns
// it for delivery.
func (e *Engine) Issue(ctx context.Context, purpose Purpose, email string) (string, error) {
	code, err := randomDigits(e.digits)
	if err != nil {
		return "", err
	}

	rec := Record{Code: code, IssuedAt: e.now().Unix()}
	if err := e.store.Put(ctx, purpose.Key(email), rec, e.ttl); err != nil {
		return "", err
	}
	return code, nil
}

// Verify checks code against the pending challenge for (purpose, email).
// On success the challenge is consumed and nil is returned; a replay of the
// same code afterwards yields ErrNotFound. ErrMismatch leaves the challenge
// in place for retry. Expired or absent challenges yield ErrNotFound.
func (e *Engine) Verify(ctx context.Context, purpose Purpose, email, code string) error {
	return e.store.Consume(ctx, purpose.Key(email), code)
}

// TTL reports the lifetime applied to issued codes, for message rendering.
func (e *Engine) TTL() time.Duration {
	return e.ttl
}

// randomDigits draws a uniform value in [0, 10^n) and left-pads with zeros.
func randomDigits(n int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v), nil
}
