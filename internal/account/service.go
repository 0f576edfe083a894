package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davitran/accountd/internal/challenge"
	"github.com/davitran/accountd/internal/observability/logger"
	"github.com/davitran/accountd/internal/password"
	"github.com/davitran/accountd/internal/token"
)

// Config carries the token lifetimes the service applies at login.
type Config struct {
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	DefaultRole string
}

// Service is the account gate. All dependencies are injected at
// construction; the service holds no ambient state and is safe for
// concurrent use.
type Service struct {
	users  UserStore
	codes  *challenge.Engine
	hasher *password.Hasher
	tokens *token.Manager
	mailer Mailer
	cfg    Config
	log    *zap.Logger
}

// NewService wires the account gate. Zero lifetimes fall back to 15m access
// and 7d refresh; an empty default role falls back to customer.
func NewService(users UserStore, codes *challenge.Engine, hasher *password.Hasher, tokens *token.Manager, mailer Mailer, cfg Config) *Service {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = RoleCustomer
	}
	return &Service{
		users:  users,
		codes:  codes,
		hasher: hasher,
		tokens: tokens,
		mailer: mailer,
		cfg:    cfg,
		log:    logger.Named("account"),
	}
}

// RequestRegistrationCode issues a registration code for an unregistered
// email and mails it. A mail failure is fatal: the stored code was never
// delivered and the caller must re-request, which reissues with a fresh TTL.
func (s *Service) RequestRegistrationCode(ctx context.Context, email string) error {
	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return ErrEmailTaken
	case !errors.Is(err, ErrUserNotFound):
		return fmt.Errorf("lookup %s: %w", email, err)
	}

	code, err := s.codes.Issue(ctx, challenge.PurposeRegistration, email)
	if err != nil {
		return err
	}

	if err := s.mailer.SendRegistrationCode(ctx, email, code, s.codes.TTL()); err != nil {
		s.log.Error("registration code delivery failed", zap.String("email", email), zap.Error(err))
		return fmt.Errorf("send registration code: %w", err)
	}

	s.log.Info("registration code issued", zap.String("email", email))
	return nil
}

// Register redeems a registration code and creates the account. The account
// is active and verified immediately on OTP success; there is no separate
// approval step.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if err := s.codes.Verify(ctx, challenge.PurposeRegistration, in.Email, in.Code); err != nil {
		return nil, err
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = s.cfg.DefaultRole
	}

	now := time.Now()
	u := &User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         role,
		PasswordHash: digest,
		IsActive:     true,
		IsVerified:   true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	s.log.Info("account registered", zap.String("user_id", u.ID), zap.String("role", u.Role))
	return u, nil
}

// Login checks the credentials and issues one access and one refresh token,
// each signed with its own secret and carrying the account's id, role, and
// active/verified flags.
func (s *Service) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(plaintext, u.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	s.maybeRehash(ctx, u, plaintext)

	claims := token.Claims{
		UserID:     u.ID,
		Role:       u.Role,
		IsActive:   u.IsActive,
		IsVerified: u.IsVerified,
	}
	access, err := s.tokens.Issue(claims, token.KindAccess, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Issue(claims, token.KindRefresh, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		User:         u,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresOn:    time.Now().Add(s.cfg.AccessTTL).UnixMilli(),
	}, nil
}

// maybeRehash upgrades a digest produced with weaker parameters. Best
// effort: a failure only logs, the login already succeeded.
func (s *Service) maybeRehash(ctx context.Context, u *User, plaintext string) {
	upgrade, err := s.hasher.NeedsRehash(u.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	digest, err := s.hasher.Hash(plaintext)
	if err != nil {
		return
	}
	u.PasswordHash = digest
	if err := s.users.Update(ctx, u); err != nil {
		s.log.Warn("password rehash not persisted", zap.String("user_id", u.ID), zap.Error(err))
	}
}

// ForgotPassword issues a password-reset code for an existing account and
// mails it.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	if _, err := s.users.GetByEmail(ctx, email); err != nil {
		return err
	}

	code, err := s.codes.Issue(ctx, challenge.PurposePasswordReset, email)
	if err != nil {
		return err
	}

	if err := s.mailer.SendPasswordResetCode(ctx, email, code, s.codes.TTL()); err != nil {
		s.log.Error("reset code delivery failed", zap.String("email", email), zap.Error(err))
		return fmt.Errorf("send reset code: %w", err)
	}

	s.log.Info("password reset code issued", zap.String("email", email))
	return nil
}

// ResetPassword redeems a password-reset code and replaces the stored
// digest. Possession of the code is the sole authorization; the old password
// is not required.
func (s *Service) ResetPassword(ctx context.Context, email, plaintext, code string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	if err := s.codes.Verify(ctx, challenge.PurposePasswordReset, email, code); err != nil {
		return err
	}

	digest, err := s.hasher.Hash(plaintext)
	if err != nil {
		return err
	}
	u.PasswordHash = digest
	u.UpdatedAt = time.Now()
	if err := s.users.Update(ctx, u); err != nil {
		return err
	}

	s.log.Info("password reset", zap.String("user_id", u.ID))
	return nil
}

// Authenticate is the gating check applied to every protected request:
// verify the access token, then reject disabled and unverified accounts
// before any business logic runs.
func (s *Service) Authenticate(tokenStr string) (*token.Claims, error) {
	claims, err := s.tokens.Verify(tokenStr, token.KindAccess)
	if err != nil {
		return nil, err
	}
	if !claims.IsActive {
		return nil, ErrAccountDisabled
	}
	if !claims.IsVerified {
		return nil, ErrAccountUnverified
	}
	return claims, nil
}

// Profile returns the caller's own account.
func (s *Service) Profile(ctx context.Context, id string) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// UpdateProfile applies a partial self-service update and returns the
// refreshed record.
func (s *Service) UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.FirstName != nil {
		u.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		u.LastName = *in.LastName
	}
	if in.Avatar != nil {
		u.Avatar = *in.Avatar
	}
	u.UpdatedAt = time.Now()

	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ListUsers returns all accounts, role-weighted then by id.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.users.List(ctx)
}

// GetUser returns one account by id.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// CreateUser is the admin create: no OTP gate, flags set by the caller.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = s.cfg.DefaultRole
	}

	now := time.Now()
	u := &User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         role,
		PasswordHash: digest,
		IsActive:     in.IsActive,
		IsVerified:   in.IsVerified,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateUserByEmail applies a partial admin update to the account matched by
// email.
func (s *Service) UpdateUserByEmail(ctx context.Context, email string, in UserUpdate) (*User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if in.FirstName != nil {
		u.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		u.LastName = *in.LastName
	}
	if in.Role != nil {
		u.Role = *in.Role
	}
	if in.Avatar != nil {
		u.Avatar = *in.Avatar
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	if in.IsVerified != nil {
		u.IsVerified = *in.IsVerified
	}
	u.UpdatedAt = time.Now()

	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteUser removes an account by id.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.users.GetByID(ctx, id); err != nil {
		return err
	}
	return s.users.Delete(ctx, id)
}

// ImportUsers bulk-creates accounts from spreadsheet rows, skipping rows
// whose email is already registered and rows without an email or password.
// Imported accounts are active and verified; the admin vouches for them.
func (s *Service) ImportUsers(ctx context.Context, rows []ImportRow) (ImportReport, error) {
	existing, err := s.users.List(ctx)
	if err != nil {
		return ImportReport{}, err
	}
	taken := make(map[string]struct{}, len(existing))
	for _, u := range existing {
		taken[u.Email] = struct{}{}
	}

	var (
		report ImportReport
		batch  []User
		now    = time.Now()
	)
	for _, row := range rows {
		if row.Email == "" || row.Password == "" {
			report.Skipped++
			continue
		}
		if _, ok := taken[row.Email]; ok {
			report.Skipped++
			continue
		}

		digest, err := s.hasher.Hash(row.Password)
		if err != nil {
			return ImportReport{}, err
		}
		role := row.Role
		if !ValidRole(role) {
			role = s.cfg.DefaultRole
		}
		batch = append(batch, User{
			ID:           uuid.NewString(),
			Email:        row.Email,
			FirstName:    row.FirstName,
			LastName:     row.LastName,
			Role:         role,
			PasswordHash: digest,
			IsActive:     true,
			IsVerified:   true,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		taken[row.Email] = struct{}{}
		report.Imported++
	}

	if len(batch) > 0 {
		if err := s.users.CreateBatch(ctx, batch); err != nil {
			return ImportReport{}, err
		}
	}

	s.log.Info("bulk import finished", zap.Int("imported", report.Imported), zap.Int("skipped", report.Skipped))
	return report, nil
}
