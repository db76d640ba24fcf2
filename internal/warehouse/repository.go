package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumbung-erp/lumbung-erp/internal/platform/db"
	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// ErrMaterialNotFound indicates a missing material row.
var ErrMaterialNotFound = fmt.Errorf("warehouse: material: %w", shared.ErrNotFound)

// TxRepository exposes transactional operations used by Service.
type TxRepository interface {
	GetMaterialForUpdate(ctx context.Context, id, ownerID string) (Material, error)
	FindByNameUnitForUpdate(ctx context.Context, name, unit, ownerID string) (Material, error)
	InsertMaterial(ctx context.Context, m Material) error
	UpdateMaterialStock(ctx context.Context, m Material) error
}

// Repository persists warehouse materials in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("warehouse repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const materialColumns = `id, owner_id, name, category, unit, stock, minimum, unit_price, avg_cost, supplier, created_at, updated_at`

// ListMaterials returns every material for an owner, name-ordered.
func (r *Repository) ListMaterials(ctx context.Context, ownerID string) ([]Material, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+materialColumns+` FROM materials WHERE owner_id=$1 ORDER BY name ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// GetMaterial returns one material without locking.
func (r *Repository) GetMaterial(ctx context.Context, id, ownerID string) (Material, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id=$1 AND owner_id=$2`, id, ownerID)
	m, err := scanMaterial(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Material{}, ErrMaterialNotFound
	}
	return m, err
}

func (r *txRepository) GetMaterialForUpdate(ctx context.Context, id, ownerID string) (Material, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id=$1 AND owner_id=$2 FOR UPDATE`, id, ownerID)
	m, err := scanMaterial(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Material{}, ErrMaterialNotFound
	}
	return m, err
}

func (r *txRepository) FindByNameUnitForUpdate(ctx context.Context, name, unit, ownerID string) (Material, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials
WHERE lower(name)=lower($1) AND unit=$2 AND owner_id=$3 ORDER BY name ASC LIMIT 1 FOR UPDATE`, name, unit, ownerID)
	m, err := scanMaterial(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Material{}, ErrMaterialNotFound
	}
	return m, err
}

func (r *txRepository) InsertMaterial(ctx context.Context, m Material) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO materials (id, owner_id, name, category, unit, stock, minimum, unit_price, avg_cost, supplier, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())`,
		m.ID, m.OwnerID, m.Name, m.Category, m.Unit, m.Stock, m.Minimum, m.UnitPrice, m.AvgCost, m.Supplier)
	return err
}

func (r *txRepository) UpdateMaterialStock(ctx context.Context, m Material) error {
	tag, err := r.tx.Exec(ctx, `UPDATE materials SET stock=$3, avg_cost=$4, unit_price=$5, supplier=$6, updated_at=NOW()
WHERE id=$1 AND owner_id=$2`, m.ID, m.OwnerID, m.Stock, m.AvgCost, m.UnitPrice, m.Supplier)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMaterialNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMaterial(row rowScanner) (Material, error) {
	var m Material
	var createdAt, updatedAt time.Time
	err := row.Scan(&m.ID, &m.OwnerID, &m.Name, &m.Category, &m.Unit, &m.Stock, &m.Minimum, &m.UnitPrice, &m.AvgCost, &m.Supplier, &createdAt, &updatedAt)
	if err != nil {
		return Material{}, err
	}
	m.CreatedAt = createdAt
	m.UpdatedAt = updatedAt
	return m, nil
}
