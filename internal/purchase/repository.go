package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
	"github.com/lumbung-erp/lumbung-erp/internal/warehouse"
)

// Repository persists purchases in postgres. Line items live in a jsonb
// column; the status column is paired with a version counter so concurrent
// transitions are detected instead of silently overwritten.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a postgres-backed Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const purchaseColumns = `id, owner_id, supplier, purchase_date, items, total_value, status, note, version, created_at, updated_at`

func scanPurchase(row pgx.Row) (Purchase, error) {
	var (
		p        Purchase
		itemsRaw []byte
		status   string
	)
	err := row.Scan(&p.ID, &p.OwnerID, &p.SupplierRef, &p.Date, &itemsRaw, &p.TotalValue, &status, &p.Note, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, shared.ErrNotFound
		}
		return Purchase{}, err
	}
	p.Status = Status(status)
	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &p.LineItems); err != nil {
			return Purchase{}, fmt.Errorf("decode purchase %s items: %w", p.ID, err)
		}
	}
	return p, nil
}

// Get fetches one purchase scoped to the owner.
func (r *Repository) Get(ctx context.Context, id, ownerID string) (Purchase, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1 AND owner_id = $2`, id, ownerID)
	return scanPurchase(row)
}

// Create inserts a new purchase and returns it with generated fields set.
func (r *Repository) Create(ctx context.Context, p Purchase) (Purchase, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Date.IsZero() {
		p.Date = time.Now()
	}
	items, err := json.Marshal(p.LineItems)
	if err != nil {
		return Purchase{}, err
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO purchases (id, owner_id, supplier, purchase_date, items, total_value, status, note, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
		RETURNING `+purchaseColumns,
		p.ID, p.OwnerID, p.SupplierRef, p.Date, items, p.TotalValue, string(p.Status), p.Note)
	return scanPurchase(row)
}

// List returns purchases for the owner, newest first, with a total count for
// pagination.
func (r *Repository) List(ctx context.Context, ownerID string, filter ListFilter) ([]Purchase, int, error) {
	conds := []string{"owner_id = $1"}
	args := []any{ownerID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchases WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM purchases WHERE %s ORDER BY purchase_date DESC, created_at DESC LIMIT $%d OFFSET $%d`,
		purchaseColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var purchases []Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, 0, err
		}
		purchases = append(purchases, p)
	}
	return purchases, total, rows.Err()
}

// UpdateStatus persists a status change guarded by the version the caller
// read. It returns the new version, shared.ErrConflict when another writer
// got there first, or shared.ErrNotFound when the purchase is gone.
func (r *Repository) UpdateStatus(ctx context.Context, id, ownerID string, status Status, expectedVersion int64) (int64, error) {
	var newVersion int64
	err := r.pool.QueryRow(ctx, `
		UPDATE purchases SET status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND owner_id = $3 AND version = $4
		RETURNING version`,
		string(status), id, ownerID, expectedVersion).Scan(&newVersion)
	if err == nil {
		return newVersion, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	var exists bool
	if checkErr := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM purchases WHERE id = $1 AND owner_id = $2)`, id, ownerID).Scan(&exists); checkErr != nil {
		return 0, checkErr
	}
	if exists {
		return 0, fmt.Errorf("purchase %s: %w", id, shared.ErrConflict)
	}
	return 0, shared.ErrNotFound
}

// Delete removes the purchase row.
func (r *Repository) Delete(ctx context.Context, id, ownerID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM purchases WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CompletedLines flattens line items of every completed purchase for the
// owner. It feeds weighted average cost recalculation in the warehouse.
func (r *Repository) CompletedLines(ctx context.Context, ownerID string) ([]warehouse.SyncLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT items FROM purchases WHERE owner_id = $1 AND status = $2 ORDER BY purchase_date ASC`, ownerID, string(StatusCompleted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []warehouse.SyncLine
	for rows.Next() {
		var itemsRaw []byte
		if err := rows.Scan(&itemsRaw); err != nil {
			return nil, err
		}
		if len(itemsRaw) == 0 {
			continue
		}
		var items []LineItem
		if err := json.Unmarshal(itemsRaw, &items); err != nil {
			return nil, err
		}
		for _, item := range items {
			lines = append(lines, warehouse.SyncLine{
				MaterialID: item.MaterialID,
				Name:       item.Name,
				Category:   item.Category,
				Unit:       item.Unit,
				Qty:        item.Qty,
				UnitPrice:  item.EffectiveUnitPrice(),
			})
		}
	}
	return lines, rows.Err()
}
