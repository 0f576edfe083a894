package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/davitran/accountd/internal/account"
)

var _ account.UserStore = (*Store)(nil)

const userColumns = `id, email, first_name, last_name, role, avatar, password_hash, is_active, is_verified, created_at, updated_at`

func scanUser(row pgx.Row) (*account.User, error) {
	var u account.User
	err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.Avatar,
		&u.PasswordHash, &u.IsActive, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, account.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*account.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (s *Store) GetByID(ctx context.Context, id string) (*account.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// List returns every account, strongest role first, then by id for a stable
// order within a role.
func (s *Store) List(ctx context.Context) ([]account.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY CASE role
			WHEN 'root' THEN 1
			WHEN 'admin' THEN 2
			WHEN 'manager' THEN 3
			WHEN 'deliver' THEN 4
			ELSE 5
		END, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []account.User
	for rows.Next() {
		var u account.User
		if err := rows.Scan(
			&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.Avatar,
			&u.PasswordHash, &u.IsActive, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const insertUser = `
	INSERT INTO users (` + userColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func (s *Store) Create(ctx context.Context, u *account.User) error {
	_, err := s.pool.Exec(ctx, insertUser,
		u.ID, u.Email, u.FirstName, u.LastName, u.Role, u.Avatar,
		u.PasswordHash, u.IsActive, u.IsVerified, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return account.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// CreateBatch inserts all users in one transaction; any conflict rolls the
// whole batch back. Callers are expected to have filtered duplicates.
func (s *Store) CreateBatch(ctx context.Context, users []account.User) error {
	if len(users) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, u := range users {
		batch.Queue(insertUser,
			u.ID, u.Email, u.FirstName, u.LastName, u.Role, u.Avatar,
			u.PasswordHash, u.IsActive, u.IsVerified, u.CreatedAt, u.UpdatedAt)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for range users {
		if _, err := br.Exec(); err != nil {
			br.Close()
			if isUniqueViolation(err) {
				return account.ErrEmailTaken
			}
			return fmt.Errorf("batch insert: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) Update(ctx context.Context, u *account.User) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET email = $2, first_name = $3, last_name = $4, role = $5, avatar = $6,
		    password_hash = $7, is_active = $8, is_verified = $9, updated_at = $10
		WHERE id = $1`,
		u.ID, u.Email, u.FirstName, u.LastName, u.Role, u.Avatar,
		u.PasswordHash, u.IsActive, u.IsVerified, u.UpdatedAt)
	if isUniqueViolation(err) {
		return account.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrUserNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrUserNotFound
	}
	return nil
}
