package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/joao-fontenele/shopflow/internal/cart"
	"github.com/joao-fontenele/shopflow/internal/catalog"
	"github.com/joao-fontenele/shopflow/internal/database"
	"github.com/joao-fontenele/shopflow/internal/domain"
)

const orderNumberConstraint = "orders_order_number_key"

const orderColumns = `id, order_number, customer_id, subtotal, tax, shipping_fee, total_amount,
	shipping_address, billing_address, payment_method, notes, status, payment_status,
	transaction_id, shipped_at, delivered_at, paid_at, created_at, updated_at`

const itemColumns = `id, order_id, product_id, product_name, seller_id, quantity, price, subtotal,
	fulfillment_status, created_at, updated_at`

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&pgTx{
			tx:       tx,
			products: catalog.NewProductRepository(tx),
			cart:     cart.NewCartRepository(tx),
		})
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.Subtotal, &o.Tax, &o.ShippingFee, &o.TotalAmount,
		&o.ShippingAddress, &o.BillingAddress, &o.PaymentMethod, &o.Notes, &o.Status, &o.PaymentStatus,
		&o.TransactionID, &o.ShippedAt, &o.DeliveredAt, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func scanItem(row rowScanner) (domain.OrderItem, error) {
	var i domain.OrderItem
	err := row.Scan(&i.ID, &i.OrderID, &i.ProductID, &i.ProductName, &i.SellerID, &i.Quantity, &i.Price, &i.Subtotal,
		&i.FulfillmentStatus, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

func getOrder(ctx context.Context, db database.DBTX, id string, lock bool) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	order, err := scanOrder(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}

	order.Items, err = loadItems(ctx, db, id)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func loadItems(ctx context.Context, db database.DBTX, orderID string) ([]domain.OrderItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []domain.OrderItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return getOrder(ctx, r.db, id, false)
}

// List returns one page of orders, newest first, together with the total
// number of orders matching filter.
func (r *OrderRepository) List(ctx context.Context, filter ListFilter) ([]domain.Order, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.CustomerID != "" {
		add("customer_id = $%d", filter.CustomerID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.PaymentStatus != "" {
		add("payment_status = $%d", filter.PaymentStatus)
	}
	if filter.Search != "" {
		add("order_number ILIKE '%%' || $%d || '%%'", escapeLike(filter.Search))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := filter.Page.normalize()
	args = append(args, page.Limit, page.Offset)
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM orders
		%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d
	`, orderColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, total, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY created_at, id
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		item, err := scanItem(itemRows)
		if err != nil {
			return nil, 0, err
		}
		order := orderMap[item.OrderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, 0, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, total, nil
}

func (r *OrderRepository) SellerItems(ctx context.Context, sellerID string, filter SellerItemFilter) ([]domain.SellerOrderItem, error) {
	args := []any{sellerID}
	query := `
		SELECT oi.id, oi.order_id, oi.product_id, oi.product_name, oi.seller_id, oi.quantity, oi.price, oi.subtotal,
			oi.fulfillment_status, oi.created_at, oi.updated_at,
			o.order_number, o.status, o.customer_id, o.shipping_address
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.seller_id = $1`
	if filter.FulfillmentStatus != "" {
		args = append(args, filter.FulfillmentStatus)
		query += fmt.Sprintf(" AND oi.fulfillment_status = $%d", len(args))
	}
	if filter.OrderStatus != "" {
		args = append(args, filter.OrderStatus)
		query += fmt.Sprintf(" AND o.status = $%d", len(args))
	}
	page := filter.Page.normalize()
	args = append(args, page.Limit, page.Offset)
	query += fmt.Sprintf(" ORDER BY oi.created_at DESC, oi.id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []domain.SellerOrderItem{}
	for rows.Next() {
		var i domain.SellerOrderItem
		err := rows.Scan(&i.ID, &i.OrderID, &i.ProductID, &i.ProductName, &i.SellerID, &i.Quantity, &i.Price, &i.Subtotal,
			&i.FulfillmentStatus, &i.CreatedAt, &i.UpdatedAt,
			&i.OrderNumber, &i.OrderStatus, &i.CustomerID, &i.ShippingAddress)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

type pgTx struct {
	tx       *sql.Tx
	products *catalog.ProductRepository
	cart     *cart.CartRepository
}

func (t *pgTx) CartLines(ctx context.Context, customerID string) ([]domain.CartLine, error) {
	return t.cart.Lines(ctx, customerID)
}

func (t *pgTx) LockProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	return t.products.LockForUpdate(ctx, ids)
}

func (t *pgTx) DecrementStock(ctx context.Context, productID string, quantity int) error {
	err := t.products.DecrementStock(ctx, productID, quantity)
	if errors.Is(err, catalog.ErrInsufficientStock) {
		return ErrInsufficientStock
	}
	return err
}

func (t *pgTx) IncrementStock(ctx context.Context, productID string, quantity int) error {
	return t.products.IncrementStock(ctx, productID, quantity)
}

func (t *pgTx) ClearCart(ctx context.Context, customerID string) error {
	return t.cart.Clear(ctx, customerID)
}

func (t *pgTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, order.ID, order.OrderNumber, order.CustomerID, order.Subtotal, order.Tax, order.ShippingFee, order.TotalAmount,
		order.ShippingAddress, order.BillingAddress, order.PaymentMethod, order.Notes, order.Status, order.PaymentStatus,
		order.TransactionID, order.ShippedAt, order.DeliveredAt, order.PaidAt, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, orderNumberConstraint) {
			return ErrDuplicateOrderNumber
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO order_items (`+itemColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, item.ID, item.OrderID, item.ProductID, item.ProductName, item.SellerID, item.Quantity, item.Price, item.Subtotal,
			item.FulfillmentStatus, item.CreatedAt, item.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (*domain.Order, error) {
	return getOrder(ctx, t.tx, id, true)
}

func (t *pgTx) UpdateOrder(ctx context.Context, order *domain.Order) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, transaction_id = $4,
			shipped_at = $5, delivered_at = $6, paid_at = $7, updated_at = $8
		WHERE id = $1
	`, order.ID, order.Status, order.PaymentStatus, order.TransactionID,
		order.ShippedAt, order.DeliveredAt, order.PaidAt, order.UpdatedAt)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (t *pgTx) SetFulfillment(ctx context.Context, orderID, sellerID string, status domain.FulfillmentStatus, now time.Time) ([]domain.OrderItem, error) {
	rows, err := t.tx.QueryContext(ctx, `
		UPDATE order_items
		SET fulfillment_status = $3, updated_at = $4
		WHERE order_id = $1 AND ($2 = '' OR seller_id = $2)
		RETURNING `+itemColumns, orderID, sellerID, status, now)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []domain.OrderItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (t *pgTx) Items(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	return loadItems(ctx, t.tx, orderID)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern using the
// default backslash escape.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
