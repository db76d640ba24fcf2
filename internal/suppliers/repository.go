package suppliers

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// Repository persists suppliers in PostgreSQL.
type Repository interface {
	Get(ctx context.Context, id int64, ownerID string) (Supplier, error)
	FindByName(ctx context.Context, name, ownerID string) (Supplier, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]Supplier, int, error)
	Create(ctx context.Context, supplier Supplier) (Supplier, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, id int64, ownerID string) (Supplier, error) {
	var s Supplier
	err := r.db.QueryRow(ctx, `SELECT id, owner_id, name, contact, phone, address, created_at, updated_at
FROM suppliers WHERE id=$1 AND owner_id=$2`, id, ownerID).
		Scan(&s.ID, &s.OwnerID, &s.Name, &s.Contact, &s.Phone, &s.Address, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, shared.ErrNotFound
	}
	return s, err
}

func (r *repository) FindByName(ctx context.Context, name, ownerID string) (Supplier, error) {
	var s Supplier
	err := r.db.QueryRow(ctx, `SELECT id, owner_id, name, contact, phone, address, created_at, updated_at
FROM suppliers WHERE lower(name)=lower($1) AND owner_id=$2 LIMIT 1`, name, ownerID).
		Scan(&s.ID, &s.OwnerID, &s.Name, &s.Contact, &s.Phone, &s.Address, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, shared.ErrNotFound
	}
	return s, err
}

func (r *repository) List(ctx context.Context, ownerID string, limit, offset int) ([]Supplier, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers WHERE owner_id=$1`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, owner_id, name, contact, phone, address, created_at, updated_at
FROM suppliers WHERE owner_id=$1 ORDER BY name ASC LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Name, &s.Contact, &s.Phone, &s.Address, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `INSERT INTO suppliers (owner_id, name, contact, phone, address, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING id`,
		supplier.OwnerID, supplier.Name, supplier.Contact, supplier.Phone, supplier.Address, now).Scan(&supplier.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Supplier{}, shared.ErrConflict
		}
		return Supplier{}, err
	}
	supplier.CreatedAt = now
	supplier.UpdatedAt = now
	return supplier, nil
}
