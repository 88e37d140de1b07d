package repository

import (
	"context"
	"database/sql"

	"basekit/internal/domain"
)

var _ domain.UserRepository = (*UserRepo)(nil)

// UserRepo implements domain.UserRepository on the platform users table.
// Admin mutations use the service's connection directly, not an RLS
// transaction: the users table is platform-owned and gated by the admin
// role check at the API boundary.
type UserRepo struct {
	pool *sql.DB
}

// NewUserRepo creates a new UserRepo.
func NewUserRepo(pool *sql.DB) *UserRepo {
	return &UserRepo{pool: pool}
}

// GetByID returns one user, or a NotFoundError.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, email, name, role, banned, password_hash, created_at, updated_at
		FROM users WHERE id = $1`
	var u domain.User
	err := r.pool.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Email, &u.Name, &u.Role, &u.Banned, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &u, nil
}

// SetBanned flips the banned flag. Unknown IDs are a no-op: ban and unban
// are idempotent administrative actions.
func (r *UserRepo) SetBanned(ctx context.Context, id string, banned bool) error {
	const query = `UPDATE users SET banned = $2, updated_at = now() WHERE id = $1`
	_, err := r.pool.ExecContext(ctx, query, id, banned)
	return mapDBError(err)
}

// SetRole assigns a new role. Unknown IDs are a no-op.
func (r *UserRepo) SetRole(ctx context.Context, id, role string) error {
	const query = `UPDATE users SET role = $2, updated_at = now() WHERE id = $1`
	_, err := r.pool.ExecContext(ctx, query, id, role)
	return mapDBError(err)
}

// SetPasswordHash replaces the stored credential hash. Unknown IDs are a
// no-op.
func (r *UserRepo) SetPasswordHash(ctx context.Context, id, hash string) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`
	_, err := r.pool.ExecContext(ctx, query, id, hash)
	return mapDBError(err)
}
