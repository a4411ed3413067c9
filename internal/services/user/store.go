// internal/services/user/store.go
package user

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"platform-services/internal/models"
)

var ErrNotFound = errors.New("user not found")

type Store interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id, displayName string) (*models.User, error)
	SoftDelete(ctx context.Context, id string) error
}

type sqlStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return &sqlStore{db: db}
}

const userColumns = `id, email, display_name, COALESCE(totp_secret, ''), totp_enabled, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Email, &user.DisplayName,
		&user.TOTPSecret, &user.TOTPEnabled, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *sqlStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// UpdateProfile changes mutable profile fields. Email is immutable after
// registration.
func (s *sqlStore) UpdateProfile(ctx context.Context, id, displayName string) (*models.User, error) {
	query := `UPDATE users SET display_name = $2, updated_at = $3
	          WHERE id = $1 AND deleted_at IS NULL
	          RETURNING ` + userColumns
	return scanUser(s.db.QueryRowContext(ctx, query, id, displayName, time.Now().UTC()))
}

func (s *sqlStore) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE users SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	res, err := s.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
