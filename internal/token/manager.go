// Package token mints and validates the signed session tokens issued at
// login. Access and refresh tokens are signed with disjoint HS256 secrets
// and additionally carry an explicit kind claim; verification checks both,
// so the separation fails closed even if the secrets are ever rotated to the
// same value.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind distinguishes the two token families.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// ErrInvalid is the single verification failure. Malformed input, a bad or
// wrong-family signature, a kind mismatch, and expiry all collapse into it;
// callers must not be able to learn which check failed.
var ErrInvalid = errors.New("invalid token")

// Claims is the payload carried by both token kinds.
type Claims struct {
	UserID     string `json:"id"`
	Role       string `json:"role"`
	IsActive   bool   `json:"isActive"`
	IsVerified bool   `json:"isVerified"`
	Kind       Kind   `json:"tkn"`
	jwt.RegisteredClaims
}

// Config holds the signing material and issuer metadata.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Leeway        time.Duration
}

// Manager issues and verifies tokens. Safe for concurrent use; verification
// is pure.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates the signing material. The secrets must be non-empty
// and distinct.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token: both signing secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("token: invalid leeway")
	}
	return &Manager{config: cfg, now: time.Now}, nil
}

// Issue signs claims as a token of the given kind. A non-positive ttl falls
// back to one hour.
func (m *Manager) Issue(claims Claims, kind Kind, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := m.now()
	claims.Kind = kind
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    m.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(m.secretFor(kind))
}

// Verify parses tokenStr against the secret bound to kind and checks
// signature, expiry, issuer, and the embedded kind claim. Every failure is
// ErrInvalid.
func (m *Manager) Verify(tokenStr string, kind Kind) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return m.secretFor(kind), nil
	})
	if err != nil {
		return nil, ErrInvalid
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalid
	}
	if claims.Kind != kind {
		return nil, ErrInvalid
	}
	return claims, nil
}

func (m *Manager) secretFor(kind Kind) []byte {
	if kind == KindRefresh {
		return m.config.RefreshSecret
	}
	return m.config.AccessSecret
}
