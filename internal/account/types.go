// Package account orchestrates the credential lifecycle: OTP-gated
// registration and password reset, login with access/refresh token issuance,
// the per-request account gating check, and user administration. Persistence
// and delivery are injected behind the UserStore and Mailer interfaces.
package account

import (
	"context"
	"time"
)

// Roles, strongest first. RoleWeight gives the listing order.
const (
	RoleRoot     = "root"
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleDeliver  = "deliver"
	RoleCustomer = "customer"
)

// RoleWeight orders roles for listings: root, admin, manager, deliver, then
// everything else.
func RoleWeight(role string) int {
	switch role {
	case RoleRoot:
		return 1
	case RoleAdmin:
		return 2
	case RoleManager:
		return 3
	case RoleDeliver:
		return 4
	default:
		return 5
	}
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleRoot, RoleAdmin, RoleManager, RoleDeliver, RoleCustomer:
		return true
	default:
		return false
	}
}

// User is the persistent account record. PasswordHash is an argon2id PHC
// string and must never leave the service in responses or logs.
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	Role         string
	Avatar       string
	PasswordHash string
	IsActive     bool
	IsVerified   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserStore is the persistent user collaborator. Implementations must
// enforce email uniqueness (Create and CreateBatch return ErrEmailTaken on
// conflict) and return ErrUserNotFound for absent records. List returns
// users role-weighted (RoleWeight ascending), then by ID.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Create(ctx context.Context, u *User) error
	CreateBatch(ctx context.Context, users []User) error
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id string) error
}

// Mailer delivers one-time codes. A delivery failure aborts the protocol
// that requested it: the stored code is single-use and the caller must
// re-request, which overwrites it with a fresh TTL.
type Mailer interface {
	SendRegistrationCode(ctx context.Context, to, code string, validFor time.Duration) error
	SendPasswordResetCode(ctx context.Context, to, code string, validFor time.Duration) error
}

// RegisterInput completes a registration against a previously issued code.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
	Code      string
}

// LoginResult carries both tokens issued at login. ExpiresOn is the absolute
// expiry of the access token in unix milliseconds.
type LoginResult struct {
	User         *User
	AccessToken  string
	RefreshToken string
	ExpiresOn    int64
}

// ProfileUpdate is a partial self-service update; nil fields are untouched.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Avatar    *string
}

// CreateUserInput is the admin create operation input.
type CreateUserInput struct {
	Email      string
	Password   string
	FirstName  string
	LastName   string
	Role       string
	IsActive   bool
	IsVerified bool
}

// UserUpdate is a partial admin update applied to the user matched by email.
type UserUpdate struct {
	FirstName  *string
	LastName   *string
	Role       *string
	Avatar     *string
	IsActive   *bool
	IsVerified *bool
}

// ImportRow is one spreadsheet row in a bulk import.
type ImportRow struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
}

// ImportReport summarizes a bulk import: rows created versus rows skipped
// because the email was already registered or the row was unusable.
type ImportReport struct {
	Imported int
	Skipped  int
}
