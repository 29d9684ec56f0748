package cart

import (
	"context"
	"fmt"

	"github.com/joao-fontenele/shopflow/internal/database"
	"github.com/joao-fontenele/shopflow/internal/domain"
)

type CartRepository struct {
	db database.DBTX
}

func NewCartRepository(db database.DBTX) *CartRepository {
	return &CartRepository{db: db}
}

func (r *CartRepository) Lines(ctx context.Context, customerID string) ([]domain.CartLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT customer_id, product_id, quantity, created_at, updated_at
		FROM cart_items
		WHERE customer_id = $1
		ORDER BY created_at, product_id
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	lines := []domain.CartLine{}
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.CustomerID, &line.ProductID, &line.Quantity, &line.CreatedAt, &line.UpdatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

func (r *CartRepository) Line(ctx context.Context, customerID, productID string) (*domain.CartLine, error) {
	line := &domain.CartLine{}
	err := r.db.QueryRowContext(ctx, `
		SELECT customer_id, product_id, quantity, created_at, updated_at
		FROM cart_items
		WHERE customer_id = $1 AND product_id = $2
	`, customerID, productID).Scan(&line.CustomerID, &line.ProductID, &line.Quantity, &line.CreatedAt, &line.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return line, nil
}

// Add creates the line or increments its quantity by delta. Returns
// domain.ErrNotFound when the product was deleted concurrently.
func (r *CartRepository) Add(ctx context.Context, customerID, productID string, delta int) (domain.CartLine, error) {
	var line domain.CartLine
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO cart_items (customer_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (customer_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
		RETURNING customer_id, product_id, quantity, created_at, updated_at
	`, customerID, productID, delta).Scan(&line.CustomerID, &line.ProductID, &line.Quantity, &line.CreatedAt, &line.UpdatedAt)
	if database.IsForeignKeyViolation(err, "cart_items_product_id_fkey") {
		return domain.CartLine{}, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	return line, err
}

func (r *CartRepository) SetQuantity(ctx context.Context, customerID, productID string, quantity int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE cart_items SET quantity = $3, updated_at = NOW()
		WHERE customer_id = $1 AND product_id = $2
	`, customerID, productID, quantity)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *CartRepository) Remove(ctx context.Context, customerID, productID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items WHERE customer_id = $1 AND product_id = $2
	`, customerID, productID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *CartRepository) Clear(ctx context.Context, customerID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE customer_id = $1`, customerID)
	return err
}
