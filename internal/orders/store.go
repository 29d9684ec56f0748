package orders

import (
	"context"
	"errors"
	"time"

	"github.com/joao-fontenele/shopflow/internal/domain"
)

var (
	// ErrDuplicateOrderNumber is returned by Tx.InsertOrder when the
	// generated number is already taken. The transaction must be rerun.
	ErrDuplicateOrderNumber = errors.New("order number already taken")
	// ErrInsufficientStock is returned by Tx.DecrementStock when the guarded
	// update matched no row.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Store is the persistence boundary of the order workflow. InTx runs fn in a
// single database transaction that is committed only if fn returns nil.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, int, error)
	SellerItems(ctx context.Context, sellerID string, filter SellerItemFilter) ([]domain.SellerOrderItem, error)
}

type Tx interface {
	CartLines(ctx context.Context, customerID string) ([]domain.CartLine, error)
	LockProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
	DecrementStock(ctx context.Context, productID string, quantity int) error
	IncrementStock(ctx context.Context, productID string, quantity int) error
	ClearCart(ctx context.Context, customerID string) error

	InsertOrder(ctx context.Context, order *domain.Order) error
	// LockOrder loads an order with its items and holds its row lock until
	// the transaction ends. It returns nil when the order does not exist.
	LockOrder(ctx context.Context, id string) (*domain.Order, error)
	UpdateOrder(ctx context.Context, order *domain.Order) error
	// SetFulfillment updates the items of orderID sold by sellerID, or every
	// item when sellerID is empty, and returns the updated items.
	SetFulfillment(ctx context.Context, orderID, sellerID string, status domain.FulfillmentStatus, now time.Time) ([]domain.OrderItem, error)
	Items(ctx context.Context, orderID string) ([]domain.OrderItem, error)
}

type Page struct {
	Limit  int
	Offset int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type ListFilter struct {
	CustomerID    string
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	Search        string
	Page          Page
}

type SellerItemFilter struct {
	FulfillmentStatus domain.FulfillmentStatus
	OrderStatus       domain.OrderStatus
	Page              Page
}
