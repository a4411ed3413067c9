// internal/services/permission/store.go
package permission

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"platform-services/internal/models"
)

var (
	ErrRoleNotFound  = errors.New("role not found")
	ErrDuplicateRole = errors.New("role already exists")
)

type Store interface {
	PermissionsForUser(ctx context.Context, userID string) ([]string, error)
	ListRoles(ctx context.Context) ([]*models.Role, error)
	GetRole(ctx context.Context, name string) (*models.Role, error)
	CreateRole(ctx context.Context, name string, permissions []string) (*models.Role, error)
	DeleteRole(ctx context.Context, name string) error
	GrantRole(ctx context.Context, userID, roleName string) error
	RevokeRole(ctx context.Context, userID, roleName string) error
	UsersWithRole(ctx context.Context, roleName string) ([]string, error)
	Seed(ctx context.Context) error
}

type sqlStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return &sqlStore{db: db}
}

// PermissionsForUser resolves the flattened permission set across all of the
// user's roles.
func (s *sqlStore) PermissionsForUser(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT DISTINCT p.name
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	return perms, rows.Err()
}

func (s *sqlStore) ListRoles(ctx context.Context) ([]*models.Role, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]*models.Role, 0)
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		roles = append(roles, &role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, role := range roles {
		perms, err := s.permissionsForRole(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		role.Permissions = perms
	}
	return roles, nil
}

func (s *sqlStore) permissionsForRole(ctx context.Context, roleID int64) ([]string, error) {
	query := `SELECT p.name FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1 ORDER BY p.name`
	rows, err := s.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	return perms, rows.Err()
}

func (s *sqlStore) GetRole(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM roles WHERE name = $1`, name).
		Scan(&role.ID, &role.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	perms, err := s.permissionsForRole(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return &role, nil
}

// CreateRole inserts the role and binds it to the named permissions inside a
// single transaction. Unknown permission names are created on the fly.
func (s *sqlStore) CreateRole(ctx context.Context, name string, permissions []string) (*models.Role, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var roleID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO roles (name) VALUES ($1) RETURNING id`, name).Scan(&roleID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrDuplicateRole
		}
		return nil, err
	}

	for _, perm := range permissions {
		var permID int64
		err = tx.QueryRowContext(ctx,
			`INSERT INTO permissions (name) VALUES ($1)
			 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`, perm).Scan(&permID)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, roleID, permID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &models.Role{ID: roleID, Name: name, Permissions: permissions}, nil
}

func (s *sqlStore) DeleteRole(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func (s *sqlStore) GrantRole(ctx context.Context, userID, roleName string) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id)
		 SELECT $1, id FROM roles WHERE name = $2
		 ON CONFLICT DO NOTHING`, userID, roleName)
	if err != nil {
		return err
	}
	// Zero rows means either the role does not exist or the grant already
	// existed; distinguish by checking the role.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM roles WHERE name = $1)`, roleName).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrRoleNotFound
		}
	}
	return nil
}

func (s *sqlStore) RevokeRole(ctx context.Context, userID, roleName string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_roles
		 WHERE user_id = $1 AND role_id = (SELECT id FROM roles WHERE name = $2)`,
		userID, roleName)
	return err
}

// UsersWithRole lists the users whose cached permission sets are affected by
// a change to the role.
func (s *sqlStore) UsersWithRole(ctx context.Context, roleName string) ([]string, error) {
	query := `SELECT ur.user_id FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE r.name = $1`
	rows, err := s.db.QueryContext(ctx, query, roleName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// Seed installs the built-in roles and their permission bindings. Idempotent;
// runs at startup.
func (s *sqlStore) Seed(ctx context.Context) error {
	seed := map[string][]string{
		models.RoleAdmin: {
			models.PermDocumentReview,
			models.PermDocumentListAll,
			models.PermUserReadAny,
			models.PermRoleManage,
		},
		models.RoleReviewer: {
			models.PermDocumentReview,
			models.PermDocumentListAll,
		},
		models.RoleMember: {},
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for roleName, perms := range seed {
		var roleID int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO roles (name) VALUES ($1)
			 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`, roleName).Scan(&roleID)
		if err != nil {
			return err
		}
		for _, perm := range perms {
			var permID int64
			err := tx.QueryRowContext(ctx,
				`INSERT INTO permissions (name) VALUES ($1)
				 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
				 RETURNING id`, perm).Scan(&permID)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
				 ON CONFLICT DO NOTHING`, roleID, permID); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}
