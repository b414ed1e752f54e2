package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Roles an administrator account can hold. Both may read messages; only
// RoleAdmin may delete them.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// ProviderLocal marks accounts that sign in with a password.
const ProviderLocal = "local"

// Admin is an account that may sign in to the inbox.
type Admin struct {
	ID           string    `db:"id"`
	Provider     string    `db:"provider"`
	Subject      string    `db:"subject"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (a *Admin) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type AdminStore struct {
	rebinder
	db *sqlx.DB
}

func NewAdminStore(db *sqlx.DB) *AdminStore {
	return &AdminStore{rebinder: rebinder{db}, db: db}
}

// CreateLocal inserts a password account with the admin role.
func (s *AdminStore) CreateLocal(ctx context.Context, username, passwordHash string) (*Admin, error) {
	if _, err := s.GetByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	a := &Admin{
		ID:           uuid.New().String(),
		Provider:     ProviderLocal,
		Subject:      username,
		Username:     username,
		PasswordHash: passwordHash,
		Role:         RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO admins (id, provider, subject, username, email, password_hash, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), a.ID, a.Provider, a.Subject, a.Username, a.Email, a.PasswordHash, a.Role, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SetPassword replaces the hash of a local account.
func (s *AdminStore) SetPassword(ctx context.Context, username, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE admins SET password_hash = ?, updated_at = ? WHERE username = ? AND provider = ?
	`), passwordHash, time.Now().UTC(), username, ProviderLocal)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertOIDC creates or refreshes a single sign-on account. New accounts get
// RoleAdmin only when email equals adminEmail; existing roles are kept.
func (s *AdminStore) UpsertOIDC(ctx context.Context, provider, subject, email, adminEmail string) (*Admin, error) {
	existing, err := s.getBy(ctx, `provider = ? AND subject = ?`, provider, subject)
	now := time.Now().UTC()
	switch {
	case err == nil:
		_, err = s.db.ExecContext(ctx, s.q(`UPDATE admins SET email = ?, updated_at = ? WHERE id = ?`),
			email, now, existing.ID)
		if err != nil {
			return nil, err
		}
		existing.Email = email
		existing.UpdatedAt = now
		return existing, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	role := RoleViewer
	if adminEmail != "" && strings.EqualFold(email, adminEmail) {
		role = RoleAdmin
	}
	a := &Admin{
		ID:        uuid.New().String(),
		Provider:  provider,
		Subject:   subject,
		Username:  provider + ":" + subject,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO admins (id, provider, subject, username, email, password_hash, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, '', ?, ?, ?)
	`), a.ID, a.Provider, a.Subject, a.Username, a.Email, a.Role, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID returns the admin with the given id, or ErrNotFound.
func (s *AdminStore) GetByID(ctx context.Context, id string) (*Admin, error) {
	return s.getBy(ctx, `id = ?`, id)
}

// GetByUsername returns the admin with the given username, or ErrNotFound.
func (s *AdminStore) GetByUsername(ctx context.Context, username string) (*Admin, error) {
	return s.getBy(ctx, `username = ?`, username)
}

// Count returns the number of accounts.
func (s *AdminStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM admins`)
	return n, err
}

func (s *AdminStore) getBy(ctx context.Context, where string, args ...any) (*Admin, error) {
	var a Admin
	err := s.db.GetContext(ctx, &a, s.q(`SELECT * FROM admins WHERE `+where), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
