package orders

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/joao-fontenele/shopflow/internal/domain"
)

// memStore is an in-memory Store. InTx holds a single mutex for the whole
// transaction and restores a snapshot when fn fails, which gives the engine
// the same all-or-nothing behavior as a Postgres transaction.
type memStore struct {
	mu sync.Mutex

	products map[string]domain.Product
	carts    map[string][]domain.CartLine
	orders   map[string]domain.Order
	numbers  map[string]bool

	// txErrors are returned by successive InTx calls before fn runs.
	txErrors []error
	// failDecrement makes DecrementStock fail for that product.
	failDecrement string
	txCount       int
}

func newMemStore(products ...domain.Product) *memStore {
	s := &memStore{
		products: make(map[string]domain.Product),
		carts:    make(map[string][]domain.CartLine),
		orders:   make(map[string]domain.Order),
		numbers:  make(map[string]bool),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *memStore) addToCart(customerID, productID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[customerID] = append(s.carts[customerID], domain.CartLine{CustomerID: customerID, ProductID: productID, Quantity: quantity})
}

func (s *memStore) stock(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID].Stock
}

func (s *memStore) setProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *memStore) cartSize(customerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts[customerID])
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type memSnapshot struct {
	products map[string]domain.Product
	carts    map[string][]domain.CartLine
	orders   map[string]domain.Order
	numbers  map[string]bool
}

func (s *memStore) snapshot() memSnapshot {
	carts := make(map[string][]domain.CartLine, len(s.carts))
	for k, v := range s.carts {
		carts[k] = slices.Clone(v)
	}
	orders := make(map[string]domain.Order, len(s.orders))
	for k, v := range s.orders {
		orders[k] = cloneOrder(v)
	}
	return memSnapshot{
		products: maps.Clone(s.products),
		carts:    carts,
		orders:   orders,
		numbers:  maps.Clone(s.numbers),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.products = snap.products
	s.carts = snap.carts
	s.orders = snap.orders
	s.numbers = snap.numbers
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

func (s *memStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.txCount++
	if len(s.txErrors) > 0 {
		err := s.txErrors[0]
		s.txErrors = s.txErrors[1:]
		return err
	}

	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	o = cloneOrder(o)
	return &o, nil
}

func (s *memStore) List(_ context.Context, filter ListFilter) ([]domain.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.Order
	for _, o := range s.orders {
		if filter.CustomerID != "" && o.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.PaymentStatus != "" && o.PaymentStatus != filter.PaymentStatus {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(o.OrderNumber), strings.ToLower(filter.Search)) {
			continue
		}
		matched = append(matched, cloneOrder(o))
	}
	slices.SortFunc(matched, func(a, b domain.Order) int { return b.CreatedAt.Compare(a.CreatedAt) })

	page := filter.Page.normalize()
	total := len(matched)
	start := min(page.Offset, total)
	end := min(start+page.Limit, total)
	return matched[start:end], total, nil
}

func (s *memStore) SellerItems(_ context.Context, sellerID string, filter SellerItemFilter) ([]domain.SellerOrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := []domain.SellerOrderItem{}
	for _, o := range s.orders {
		if filter.OrderStatus != "" && o.Status != filter.OrderStatus {
			continue
		}
		for _, item := range o.Items {
			if item.SellerID != sellerID {
				continue
			}
			if filter.FulfillmentStatus != "" && item.FulfillmentStatus != filter.FulfillmentStatus {
				continue
			}
			items = append(items, domain.SellerOrderItem{
				OrderItem:       item,
				OrderNumber:     o.OrderNumber,
				OrderStatus:     o.Status,
				CustomerID:      o.CustomerID,
				ShippingAddress: o.ShippingAddress,
			})
		}
	}
	return items, nil
}

type memTx struct {
	s *memStore
}

func (t *memTx) CartLines(_ context.Context, customerID string) ([]domain.CartLine, error) {
	return slices.Clone(t.s.carts[customerID]), nil
}

func (t *memTx) LockProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memTx) DecrementStock(_ context.Context, productID string, quantity int) error {
	if productID == t.s.failDecrement {
		return errors.New("disk full")
	}
	p, ok := t.s.products[productID]
	if !ok || p.Stock < quantity {
		return ErrInsufficientStock
	}
	p.Stock -= quantity
	t.s.products[productID] = p
	return nil
}

func (t *memTx) IncrementStock(_ context.Context, productID string, quantity int) error {
	p, ok := t.s.products[productID]
	if !ok {
		return domain.ErrNotFound
	}
	p.Stock += quantity
	t.s.products[productID] = p
	return nil
}

func (t *memTx) ClearCart(_ context.Context, customerID string) error {
	delete(t.s.carts, customerID)
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, order *domain.Order) error {
	if t.s.numbers[order.OrderNumber] {
		return ErrDuplicateOrderNumber
	}
	t.s.numbers[order.OrderNumber] = true
	t.s.orders[order.ID] = cloneOrder(*order)
	return nil
}

func (t *memTx) LockOrder(_ context.Context, id string) (*domain.Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return nil, nil
	}
	o = cloneOrder(o)
	return &o, nil
}

func (t *memTx) UpdateOrder(_ context.Context, order *domain.Order) error {
	stored, ok := t.s.orders[order.ID]
	if !ok {
		return domain.ErrNotFound
	}
	stored.Status = order.Status
	stored.PaymentStatus = order.PaymentStatus
	stored.TransactionID = order.TransactionID
	stored.ShippedAt = order.ShippedAt
	stored.DeliveredAt = order.DeliveredAt
	stored.PaidAt = order.PaidAt
	stored.UpdatedAt = order.UpdatedAt
	t.s.orders[order.ID] = stored
	return nil
}

func (t *memTx) SetFulfillment(_ context.Context, orderID, sellerID string, status domain.FulfillmentStatus, now time.Time) ([]domain.OrderItem, error) {
	o, ok := t.s.orders[orderID]
	if !ok {
		return nil, nil
	}
	o = cloneOrder(o)
	updated := []domain.OrderItem{}
	for i := range o.Items {
		if sellerID != "" && o.Items[i].SellerID != sellerID {
			continue
		}
		o.Items[i].FulfillmentStatus = status
		o.Items[i].UpdatedAt = now
		updated = append(updated, o.Items[i])
	}
	t.s.orders[orderID] = o
	return updated, nil
}

func (t *memTx) Items(_ context.Context, orderID string) ([]domain.OrderItem, error) {
	return slices.Clone(t.s.orders[orderID].Items), nil
}
