package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
	Create(ctx context.Context, account Account) (Account, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const accountColumns = `id, email, name, password_hash, is_active, created_at, updated_at`

// FindByEmail fetches an account by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email)
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

// Create inserts a new account.
func (r *PGRepository) Create(ctx context.Context, account Account) (Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, is_active)
		VALUES ($1, lower($2), $3, $4, TRUE)
		RETURNING `+accountColumns,
		account.ID, account.Email, account.Name, account.PasswordHash)
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, shared.ErrConflict
		}
		return Account{}, err
	}
	return a, nil
}

// ListAccountIDs returns every active account id. Background jobs fan out
// over this list.
func (r *PGRepository) ListAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM accounts WHERE is_active ORDER BY created_at ASC`)
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

var _ Repository = (*PGRepository)(nil)
