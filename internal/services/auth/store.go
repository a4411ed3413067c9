// internal/services/auth/store.go
package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"platform-services/internal/models"
)

var ErrUserNotFound = errors.New("user not found")
var ErrDuplicateEmail = errors.New("duplicate email")

// Store persists users. Implemented over database/sql so tests can use
// sqlmock.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	SetTOTP(ctx context.Context, userID, secret string, enabled bool) error
}

type sqlStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return &sqlStore{db: db}
}

func (s *sqlStore) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, email, display_name, password_hash, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $5)`
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, query, user.ID, user.Email, user.DisplayName, user.PasswordHash, now)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

const userColumns = `id, email, display_name, password_hash, COALESCE(totp_secret, ''), totp_enabled, created_at, updated_at`

func (s *sqlStore) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash,
		&user.TOTPSecret, &user.TOTPEnabled, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *sqlStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND deleted_at IS NULL`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *sqlStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *sqlStore) SetTOTP(ctx context.Context, userID, secret string, enabled bool) error {
	query := `UPDATE users SET totp_secret = $2, totp_enabled = $3, updated_at = $4 WHERE id = $1 AND deleted_at IS NULL`
	res, err := s.db.ExecContext(ctx, query, userID, secret, enabled, time.Now().UTC())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}
