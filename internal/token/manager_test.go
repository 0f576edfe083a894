package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(Config{
		AccessSecret:  []byte("access-secret-for-tests-0123456789"),
		RefreshSecret: []byte("refresh-secret-for-tests-987654321"),
		Issuer:        "accountd-test",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func testClaims() Claims {
	return Claims{
		UserID:     "u1",
		Role:       "customer",
		IsActive:   true,
		IsVerified: true,
	}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	m := newTestManager(t)

	tok, err := m.Issue(testClaims(), KindAccess, 15*time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := m.Verify(tok, KindAccess)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.UserID != "u1" || claims.Role != "customer" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.IsActive || !claims.IsVerified {
		t.Fatalf("expected active verified claims, got %+v", claims)
	}
	if claims.Kind != KindAccess {
		t.Fatalf("expected access kind, got %q", claims.Kind)
	}
}

func TestVerifyRejectsWrongKind(t *testing.T) {
	m := newTestManager(t)

	refresh, err := m.Issue(testClaims(), KindRefresh, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// Well-formed, well-signed, wrong family.
	if _, err := m.Verify(refresh, KindAccess); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for refresh-as-access, got %v", err)
	}

	access, err := m.Issue(testClaims(), KindAccess, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := m.Verify(access, KindRefresh); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for access-as-refresh, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := newTestManager(t)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	tok, err := m.Issue(testClaims(), KindAccess, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	m.now = time.Now
	if _, err := m.Verify(tok, KindAccess); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for expired token, got %v", err)
	}
}

func TestVerifyRejectsTampered(t *testing.T) {
	m := newTestManager(t)

	tok, err := m.Issue(testClaims(), KindAccess, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape %q", tok)
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	if _, err := m.Verify(tampered, KindAccess); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for tampered token, got %v", err)
	}
	if _, err := m.Verify("not-a-token", KindAccess); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for garbage, got %v", err)
	}
	if _, err := m.Verify("", KindAccess); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for empty input, got %v", err)
	}
}

func TestIssueDefaultLifetime(t *testing.T) {
	m := newTestManager(t)

	tok, err := m.Issue(testClaims(), KindAccess, 0)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	claims, err := m.Verify(tok, KindAccess)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining < 55*time.Minute || remaining > 65*time.Minute {
		t.Fatalf("expected ~1h default lifetime, got %v", remaining)
	}
}

func TestNewManagerRejectsSharedSecret(t *testing.T) {
	_, err := NewManager(Config{
		AccessSecret:  []byte("same-secret"),
		RefreshSecret: []byte("same-secret"),
	})
	if err == nil {
		t.Fatal("expected error for identical secrets")
	}
}
