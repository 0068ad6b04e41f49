package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"coursebase.org/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store implements auth.Store using PostgreSQL. Expected tables: users,
// roles, permissions, user_roles, user_permissions, role_permissions,
// oauth_connections, refresh_tokens. Uniqueness invariants (role name,
// permission name, membership pairs, provider identity) are enforced by
// unique constraints and surface as auth.ErrAlreadyExists.
type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Users() auth.UserStore                       { return &userStore{db: s.db} }
func (s *Store) Roles() auth.RoleStore                       { return &roleStore{db: s.db} }
func (s *Store) Permissions() auth.PermissionStore           { return &permissionStore{db: s.db} }
func (s *Store) OAuthConnections() auth.OAuthConnectionStore { return &connectionStore{db: s.db} }
func (s *Store) RefreshTokens() auth.RefreshTokenStore       { return &refreshStore{db: s.db} }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func mapWriteError(err error) error {
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return auth.ErrAlreadyExists
		case pgErrForeignKeyViolation:
			return auth.ErrNotFound
		}
	}
	return err
}

// Users -----------------------------------------------------------------

type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, email, password_hash, active, created_at, updated_at)
		values ($1, lower($2), $3, $4, $5, $6)
	`, u.ID, u.Email, u.PasswordHash, u.Active, u.CreatedAt, u.UpdatedAt)
	return mapWriteError(err)
}

func (s *userStore) scanUser(row *sql.Row) (*auth.User, error) {
	var u auth.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, wrapNotFound(err)
	}
	return &u, nil
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, active, created_at, updated_at
		from users where id = $1
	`, id)
	return s.scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, active, created_at, updated_at
		from users where email = lower($1)
	`, email)
	return s.scanUser(row)
}

func (s *userStore) SetPassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set password_hash = $2, updated_at = now() where id = $1
	`, userID, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id) values ($1, $2)
	`, userID, roleID)
	return mapWriteError(err)
}

func (s *userStore) RemoveRole(ctx context.Context, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from user_roles where user_id = $1 and role_id = $2
	`, userID, roleID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) RoleIDs(ctx context.Context, userID string) ([]string, error) {
	if _, err := s.Find(ctx, userID); err != nil {
		return nil, err
	}
	return queryIDs(ctx, s.db, `
		select role_id from user_roles where user_id = $1 order by created_at
	`, userID)
}

func (s *userStore) GrantPermission(ctx context.Context, userID, permissionID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_permissions (user_id, permission_id) values ($1, $2)
	`, userID, permissionID)
	return mapWriteError(err)
}

func (s *userStore) RevokePermission(ctx context.Context, userID, permissionID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from user_permissions where user_id = $1 and permission_id = $2
	`, userID, permissionID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) PermissionIDs(ctx context.Context, userID string) ([]string, error) {
	return queryIDs(ctx, s.db, `
		select permission_id from user_permissions where user_id = $1
	`, userID)
}

// Roles -----------------------------------------------------------------

type roleStore struct{ db *sql.DB }

func (s *roleStore) Create(ctx context.Context, role *auth.Role) error {
	_, err := s.db.ExecContext(ctx, `
		insert into roles (id, name, description, is_system, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, role.ID, role.Name, role.Description, role.System, role.CreatedAt, role.UpdatedAt)
	return mapWriteError(err)
}

func scanRole(row *sql.Row) (*auth.Role, error) {
	var r auth.Role
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.System, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, wrapNotFound(err)
	}
	return &r, nil
}

func (s *roleStore) Find(ctx context.Context, id string) (*auth.Role, error) {
	return scanRole(s.db.QueryRowContext(ctx, `
		select id, name, description, is_system, created_at, updated_at
		from roles where id = $1
	`, id))
}

func (s *roleStore) FindByName(ctx context.Context, name string) (*auth.Role, error) {
	return scanRole(s.db.QueryRowContext(ctx, `
		select id, name, description, is_system, created_at, updated_at
		from roles where lower(name) = lower($1)
	`, name))
}

func (s *roleStore) List(ctx context.Context) ([]*auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, is_system, created_at, updated_at
		from roles order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Role
	for rows.Next() {
		var r auth.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.System, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

func (s *roleStore) Update(ctx context.Context, role *auth.Role) error {
	res, err := s.db.ExecContext(ctx, `
		update roles set name = $2, description = $3, updated_at = $4 where id = $1
	`, role.ID, role.Name, role.Description, role.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return requireRow(res)
}

func (s *roleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *roleStore) AddPermission(ctx context.Context, roleID, permissionID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into role_permissions (role_id, permission_id) values ($1, $2)
	`, roleID, permissionID)
	return mapWriteError(err)
}

func (s *roleStore) RemovePermission(ctx context.Context, roleID, permissionID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from role_permissions where role_id = $1 and permission_id = $2
	`, roleID, permissionID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *roleStore) PermissionIDs(ctx context.Context, roleID string) ([]string, error) {
	return queryIDs(ctx, s.db, `
		select permission_id from role_permissions where role_id = $1
	`, roleID)
}

// Permissions -----------------------------------------------------------

type permissionStore struct{ db *sql.DB }

func (s *permissionStore) Create(ctx context.Context, perm *auth.Permission) error {
	_, err := s.db.ExecContext(ctx, `
		insert into permissions (id, name, resource, action, description, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, perm.ID, perm.Name, perm.Resource, perm.Action, perm.Description, perm.CreatedAt)
	return mapWriteError(err)
}

func scanPermission(row *sql.Row) (*auth.Permission, error) {
	var p auth.Permission
	if err := row.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description, &p.CreatedAt); err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

func (s *permissionStore) Find(ctx context.Context, id string) (*auth.Permission, error) {
	return scanPermission(s.db.QueryRowContext(ctx, `
		select id, name, resource, action, description, created_at
		from permissions where id = $1
	`, id))
}

func (s *permissionStore) FindByName(ctx context.Context, name string) (*auth.Permission, error) {
	return scanPermission(s.db.QueryRowContext(ctx, `
		select id, name, resource, action, description, created_at
		from permissions where name = $1
	`, name))
}

func (s *permissionStore) FindByIDs(ctx context.Context, ids []string) ([]*auth.Permission, error) {
	result := make([]*auth.Permission, 0, len(ids))
	for _, id := range ids {
		perm, err := s.Find(ctx, id)
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				continue
			}
			return nil, err
		}
		result = append(result, perm)
	}
	return result, nil
}

func (s *permissionStore) List(ctx context.Context) ([]*auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, resource, action, description, created_at
		from permissions order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

func (s *permissionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from permissions where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// helpers ---------------------------------------------------------------

func queryIDs(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func wrapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrNotFound
	}
	return err
}
