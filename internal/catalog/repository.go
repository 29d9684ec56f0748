package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopflow/internal/database"
	"github.com/joao-fontenele/shopflow/internal/domain"
)

var ErrInsufficientStock = errors.New("insufficient stock")

const productColumns = `id, owner_id, name, description, sku, price, discount_price, stock, is_active, created_at, updated_at`

type ProductRepository struct {
	db database.DBTX
}

func NewProductRepository(db database.DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *ProductRepository) WithTx(tx *sql.Tx) *ProductRepository {
	return &ProductRepository{db: tx}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p        domain.Product
		discount decimal.NullDecimal
	)
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.SKU, &p.Price, &discount,
		&p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	if discount.Valid {
		d := discount.Decimal
		p.DiscountPrice = &d
	}
	return p, nil
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// LockForUpdate row-locks the given products in id order so concurrent
// checkouts touching overlapping products always acquire locks in the same
// sequence.
func (r *ProductRepository) LockForUpdate(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (r *ProductRepository) DecrementStock(ctx context.Context, id string, quantity int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
	`, id, quantity)
	if err != nil {
		if database.IsCheckViolation(err, "products_stock_non_negative") {
			return ErrInsufficientStock
		}
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrInsufficientStock
	}

	return nil
}

func (r *ProductRepository) IncrementStock(ctx context.Context, id string, quantity int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
	`, id, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("restore stock for product %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	now := time.Now().UTC()
	p.ID = uuid.New().String()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, owner_id, name, description, sku, price, discount_price, stock, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, p.ID, p.OwnerID, p.Name, p.Description, p.SKU, p.Price, nullDecimal(p.DiscountPrice), p.Stock, p.IsActive, now)
	return err
}

// Update overwrites the mutable fields of an existing product, stock
// included, so callers must hold the row lock taken by LockForUpdate. It
// reports false when no product with that id exists.
func (r *ProductRepository) Update(ctx context.Context, p *domain.Product) (bool, error) {
	p.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, price = $4, discount_price = $5, stock = $6, is_active = $7, updated_at = $8
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.Price, nullDecimal(p.DiscountPrice), p.Stock, p.IsActive, p.UpdatedAt)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// StockAlerts lists an owner's active products that are out of stock or at
// or below threshold.
func (r *ProductRepository) StockAlerts(ctx context.Context, ownerID string, threshold int) (low, out []domain.Product, err error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE owner_id = $1 AND is_active AND stock <= $2
		ORDER BY stock ASC, id
	`, ownerID, threshold)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	low, out = []domain.Product{}, []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, nil, err
		}
		if p.Stock == 0 {
			out = append(out, p)
		} else {
			low = append(low, p)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return low, out, nil
}

// ProductStore is the catalog backed by a connection pool. Modify is the
// only way the HTTP layer changes a product.
type ProductStore struct {
	*ProductRepository
	db *sql.DB
}

func NewProductStore(db *sql.DB) *ProductStore {
	return &ProductStore{ProductRepository: NewProductRepository(db), db: db}
}

// Modify locks the product row, hands the committed values to fn and writes
// the result back in the same transaction. A checkout that decremented
// stock before the lock was taken is visible to fn and kept. Returns
// domain.ErrNotFound for an unknown id and fn's error unchanged.
func (s *ProductStore) Modify(ctx context.Context, id string, fn func(p *domain.Product) error) (*domain.Product, error) {
	var modified *domain.Product
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.WithTx(tx)

		locked, err := repo.LockForUpdate(ctx, []string{id})
		if err != nil {
			return fmt.Errorf("lock product: %w", err)
		}
		p, ok := locked[id]
		if !ok {
			return domain.ErrNotFound
		}

		if err := fn(&p); err != nil {
			return err
		}

		if _, err := repo.Update(ctx, &p); err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		modified = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return modified, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
