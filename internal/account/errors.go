package account

import (
	"errors"

	"github.com/davitran/accountd/internal/challenge"
	"github.com/davitran/accountd/internal/token"
)

var (
	// ErrUserNotFound is returned when no account exists for the identity.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned on a password mismatch at login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken is returned when an email is already registered.
	ErrEmailTaken = errors.New("email already used")
	// ErrAccountDisabled rejects authenticated requests from deactivated
	// accounts.
	ErrAccountDisabled = errors.New("account is inactive")
	// ErrAccountUnverified rejects authenticated requests from accounts
	// that never completed verification.
	ErrAccountUnverified = errors.New("account is unverified")
	// ErrForbidden rejects role-gated operations.
	ErrForbidden = errors.New("insufficient role")
)

// Challenge and token failures pass through from their packages; re-exported
// here so callers depend on one error surface.
var (
	ErrChallengeNotFound = challenge.ErrNotFound
	ErrChallengeMismatch = challenge.ErrMismatch
	ErrStoreUnavailable  = challenge.ErrUnavailable
	ErrTokenInvalid      = token.ErrInvalid
)

// IsChallengeRejection reports whether err is one of the two expected
// client-facing OTP failures, as opposed to an infrastructure error.
func IsChallengeRejection(err error) bool {
	return errors.Is(err, ErrChallengeNotFound) || errors.Is(err, ErrChallengeMismatch)
}
