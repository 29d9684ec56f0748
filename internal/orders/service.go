package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/shopflow/internal/auth"
	"github.com/joao-fontenele/shopflow/internal/database"
	"github.com/joao-fontenele/shopflow/internal/domain"
)

const maxAttempts = 3

var tracer = otel.Tracer("orders")

// Publisher delivers order lifecycle events. messaging.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Service struct {
	store     Store
	publisher Publisher
	pricing   Pricing
	numbers   NumberGenerator
	strict    bool
	now       func() time.Time
	logger    *slog.Logger

	placed    metric.Int64Counter
	cancelled metric.Int64Counter
	conflicts metric.Int64Counter
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithPricing(p Pricing) Option {
	return func(s *Service) { s.pricing = p }
}

func WithNumberGenerator(g NumberGenerator) Option {
	return func(s *Service) { s.numbers = g }
}

// WithStrictTransitions makes SetStatus reject moves outside the
// pending, processing, shipped, delivered lifecycle.
func WithStrictTransitions(strict bool) Option {
	return func(s *Service) { s.strict = strict }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		pricing: DefaultPricing(),
		numbers: RandomNumbers,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	meter := otel.Meter("orders")
	s.placed, _ = meter.Int64Counter("orders.placed", metric.WithDescription("Orders placed"))
	s.cancelled, _ = meter.Int64Counter("orders.cancelled", metric.WithDescription("Orders cancelled by customers"))
	s.conflicts, _ = meter.Int64Counter("orders.tx_conflicts", metric.WithDescription("Order transactions retried after a concurrency conflict"))

	return s
}

type PlaceOrderInput struct {
	ShippingAddress string `json:"shipping_address"`
	BillingAddress  string `json:"billing_address"`
	PaymentMethod   string `json:"payment_method"`
	Notes           string `json:"notes"`
}

func (in PlaceOrderInput) validate() error {
	if strings.TrimSpace(in.ShippingAddress) == "" {
		return domain.NewValidationError("shipping_address", "is required")
	}
	if strings.TrimSpace(in.PaymentMethod) == "" {
		return domain.NewValidationError("payment_method", "is required")
	}
	return nil
}

// PlaceOrder converts the caller's cart into an order. Prices are snapshotted,
// stock is decremented and the cart is emptied in one transaction.
func (s *Service) PlaceOrder(ctx context.Context, caller auth.Caller, in PlaceOrderInput) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.PlaceOrder", trace.WithAttributes(attribute.String("customer.id", caller.ID)))
	defer span.End()

	if !auth.Authorize(caller, auth.ActionPlaceOrder, auth.Resource{OwnerID: caller.ID}) {
		return nil, domain.ErrForbidden
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.BillingAddress == "" {
		in.BillingAddress = in.ShippingAddress
	}

	var order *domain.Order
	err := s.run(ctx, "place", func(tx Tx) error {
		var err error
		order, err = s.placeOrder(ctx, tx, caller.ID, in)
		return err
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID), attribute.String("order.number", order.OrderNumber))
	s.placed.Add(ctx, 1)
	s.logger.Info("order placed", "order_id", order.ID, "order_number", order.OrderNumber,
		"customer_id", order.CustomerID, "total_amount", order.TotalAmount.StringFixed(2), "items", len(order.Items))
	s.publish(ctx, domain.EventOrderPlaced, order, "")
	return order, nil
}

func (s *Service) placeOrder(ctx context.Context, tx Tx, customerID string, in PlaceOrderInput) (*domain.Order, error) {
	lines, err := tx.CartLines(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	slices.Sort(ids)

	products, err := tx.LockProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}

	for _, line := range lines {
		p, ok := products[line.ProductID]
		if !ok || !p.IsActive {
			return nil, &domain.ProductUnavailableError{ProductID: line.ProductID, Name: p.Name}
		}
		if p.Stock < line.Quantity {
			return nil, &domain.InsufficientStockError{ProductID: p.ID, Name: p.Name, Available: p.Stock, Requested: line.Quantity}
		}
	}

	now := s.now()
	order := &domain.Order{
		ID:              uuid.New().String(),
		OrderNumber:     s.numbers.Next(now),
		CustomerID:      customerID,
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.BillingAddress,
		PaymentMethod:   in.PaymentMethod,
		Notes:           in.Notes,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		Items:           make([]domain.OrderItem, 0, len(lines)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	subtotal := decimal.Zero
	for _, line := range lines {
		p := products[line.ProductID]
		price := p.EffectivePrice()
		item := domain.OrderItem{
			ID:                uuid.New().String(),
			OrderID:           order.ID,
			ProductID:         p.ID,
			ProductName:       p.Name,
			SellerID:          p.OwnerID,
			Quantity:          line.Quantity,
			Price:             price,
			Subtotal:          price.Mul(decimal.NewFromInt(int64(line.Quantity))),
			FulfillmentStatus: domain.FulfillmentPending,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		subtotal = subtotal.Add(item.Subtotal)
		order.Items = append(order.Items, item)
	}

	totals := s.pricing.Compute(subtotal)
	order.Subtotal = totals.Subtotal
	order.Tax = totals.Tax
	order.ShippingFee = totals.ShippingFee
	order.TotalAmount = totals.Total

	if err := tx.InsertOrder(ctx, order); err != nil {
		return nil, err
	}

	for _, item := range order.Items {
		if err := tx.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			if errors.Is(err, ErrInsufficientStock) {
				p := products[item.ProductID]
				return nil, &domain.InsufficientStockError{ProductID: p.ID, Name: p.Name, Available: p.Stock, Requested: item.Quantity}
			}
			return nil, fmt.Errorf("decrement stock for product %s: %w", item.ProductID, err)
		}
	}

	if err := tx.ClearCart(ctx, customerID); err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}

	return order, nil
}

// Cancel restores the stock of every item and marks the order cancelled.
// Payment status is left untouched.
func (s *Service) Cancel(ctx context.Context, caller auth.Caller, orderID string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.Cancel", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	var order *domain.Order
	err := s.run(ctx, "cancel", func(tx Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if order == nil {
			return domain.ErrNotFound
		}
		if !auth.Authorize(caller, auth.ActionCancelOrder, auth.Resource{OwnerID: order.CustomerID}) {
			return domain.ErrForbidden
		}
		if !order.Status.Cancellable() {
			return &domain.InvalidStateError{Status: order.Status, Action: "cancelled"}
		}

		for _, item := range order.Items {
			if err := tx.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return fmt.Errorf("restore stock for product %s: %w", item.ProductID, err)
			}
		}

		applyStatus(order, domain.OrderStatusCancelled, s.now())
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	s.cancelled.Add(ctx, 1)
	s.logger.Info("order cancelled", "order_id", order.ID, "customer_id", order.CustomerID)
	s.publish(ctx, domain.EventOrderCancelled, order, "")
	return order, nil
}

// SetStatus is the administrative override of an order's status.
func (s *Service) SetStatus(ctx context.Context, caller auth.Caller, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.SetStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status", string(status)),
	))
	defer span.End()

	if !auth.Authorize(caller, auth.ActionSetOrderStatus, auth.Resource{}) {
		return nil, domain.ErrForbidden
	}
	if !status.Valid() {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unknown order status %q", status))
	}

	var (
		order    *domain.Order
		previous domain.OrderStatus
	)
	err := s.run(ctx, "set_status", func(tx Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if order == nil {
			return domain.ErrNotFound
		}
		previous = order.Status
		if s.strict && !CanTransition(order.Status, status) {
			return &domain.InvalidStateError{Status: order.Status, Action: "moved to " + string(status)}
		}

		applyStatus(order, status, s.now())
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	s.logger.Info("order status updated", "order_id", order.ID, "from", previous, "to", order.Status)
	s.publish(ctx, domain.EventOrderStatusChanged, order, "")
	return order, nil
}

// SetPaymentStatus records the payment outcome reported by the gateway.
// A non-empty transactionID always overwrites the stored one.
func (s *Service) SetPaymentStatus(ctx context.Context, caller auth.Caller, orderID string, status domain.PaymentStatus, transactionID string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.SetPaymentStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.payment_status", string(status)),
	))
	defer span.End()

	if !auth.Authorize(caller, auth.ActionSetPaymentStatus, auth.Resource{}) {
		return nil, domain.ErrForbidden
	}
	if !status.Valid() {
		return nil, domain.NewValidationError("payment_status", fmt.Sprintf("unknown payment status %q", status))
	}

	var order *domain.Order
	err := s.run(ctx, "set_payment_status", func(tx Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if order == nil {
			return domain.ErrNotFound
		}

		applyPaymentStatus(order, status, transactionID, s.now())
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	s.logger.Info("order payment status updated", "order_id", order.ID, "payment_status", order.PaymentStatus)
	s.publish(ctx, domain.EventOrderPaymentStatusChanged, order, "")
	return order, nil
}

type FulfillmentResult struct {
	UpdatedItems int                `json:"updated_items"`
	Items        []domain.OrderItem `json:"items"`
	Order        *domain.Order      `json:"order"`
}

// SetFulfillmentStatus moves the caller's items in an order to status and
// then re-derives the order status from all of its items. Sellers always act
// on their own items; an admin may name a seller or leave sellerID empty to
// update every item.
func (s *Service) SetFulfillmentStatus(ctx context.Context, caller auth.Caller, orderID, sellerID string, status domain.FulfillmentStatus) (*FulfillmentResult, error) {
	ctx, span := tracer.Start(ctx, "orders.SetFulfillmentStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("item.fulfillment_status", string(status)),
	))
	defer span.End()

	if sellerID == "" && !caller.IsAdmin() {
		sellerID = caller.ID
	}
	if !auth.Authorize(caller, auth.ActionSetFulfillment, auth.Resource{OwnerID: sellerID}) {
		return nil, domain.ErrForbidden
	}
	if !status.Valid() {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unknown fulfillment status %q", status))
	}

	var result *FulfillmentResult
	err := s.run(ctx, "set_fulfillment", func(tx Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if order == nil {
			return domain.ErrNotFound
		}
		if order.Status == domain.OrderStatusCancelled {
			return &domain.InvalidStateError{Status: order.Status, Action: "fulfilled"}
		}

		now := s.now()
		updated, err := tx.SetFulfillment(ctx, orderID, sellerID, status, now)
		if err != nil {
			return fmt.Errorf("update items: %w", err)
		}
		if len(updated) == 0 {
			return domain.ErrNotFound
		}

		items, err := tx.Items(ctx, orderID)
		if err != nil {
			return fmt.Errorf("load items: %w", err)
		}
		order.Items = items

		statuses := make([]domain.FulfillmentStatus, 0, len(items))
		for _, item := range items {
			statuses = append(statuses, item.FulfillmentStatus)
		}
		if next := AggregateStatus(order.Status, statuses); next != order.Status {
			applyStatus(order, next, now)
			if err := tx.UpdateOrder(ctx, order); err != nil {
				return err
			}
		}

		result = &FulfillmentResult{UpdatedItems: len(updated), Items: updated, Order: order}
		return nil
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	s.logger.Info("fulfillment status updated", "order_id", orderID, "seller_id", sellerID,
		"status", status, "items", result.UpdatedItems, "order_status", result.Order.Status)
	s.publish(ctx, domain.EventOrderFulfillmentUpdated, result.Order, sellerID)
	return result, nil
}

// Get returns an order visible to the caller. Orders of other customers are
// reported as not found.
func (s *Service) Get(ctx context.Context, caller auth.Caller, orderID string) (*domain.Order, error) {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil || !auth.Authorize(caller, auth.ActionViewOrder, auth.Resource{OwnerID: order.CustomerID}) {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

func (s *Service) ListForCustomer(ctx context.Context, caller auth.Caller, page Page) ([]domain.Order, int, error) {
	if !auth.Authorize(caller, auth.ActionViewOrder, auth.Resource{OwnerID: caller.ID}) {
		return nil, 0, domain.ErrForbidden
	}
	return s.store.List(ctx, ListFilter{CustomerID: caller.ID, Page: page.normalize()})
}

func (s *Service) ListAll(ctx context.Context, caller auth.Caller, filter ListFilter) ([]domain.Order, int, error) {
	if !auth.Authorize(caller, auth.ActionListAllOrders, auth.Resource{}) {
		return nil, 0, domain.ErrForbidden
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, domain.NewValidationError("status", fmt.Sprintf("unknown order status %q", filter.Status))
	}
	if filter.PaymentStatus != "" && !filter.PaymentStatus.Valid() {
		return nil, 0, domain.NewValidationError("payment_status", fmt.Sprintf("unknown payment status %q", filter.PaymentStatus))
	}
	filter.Page = filter.Page.normalize()
	return s.store.List(ctx, filter)
}

// SellerItems lists the order items sold by the calling seller.
func (s *Service) SellerItems(ctx context.Context, caller auth.Caller, filter SellerItemFilter) ([]domain.SellerOrderItem, error) {
	if caller.Role != auth.RoleSeller {
		return nil, domain.ErrForbidden
	}
	if filter.FulfillmentStatus != "" && !filter.FulfillmentStatus.Valid() {
		return nil, domain.NewValidationError("fulfillment_status", fmt.Sprintf("unknown fulfillment status %q", filter.FulfillmentStatus))
	}
	if filter.OrderStatus != "" && !filter.OrderStatus.Valid() {
		return nil, domain.NewValidationError("order_status", fmt.Sprintf("unknown order status %q", filter.OrderStatus))
	}
	filter.Page = filter.Page.normalize()
	return s.store.SellerItems(ctx, caller.ID, filter)
}

// run executes fn in a transaction, rerunning it when it lost a race to a
// concurrent transaction or drew an order number that was already taken.
func (s *Service) run(ctx context.Context, op string, fn func(tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.store.InTx(ctx, fn)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrDuplicateOrderNumber):
			s.logger.Warn("order number collision, retrying", "op", op, "attempt", attempt)
		case database.IsRetryable(err):
			s.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
			s.logger.Warn("transaction conflict, retrying", "op", op, "attempt", attempt, "error", err)
		default:
			return err
		}
	}

	if database.IsRetryable(err) {
		return fmt.Errorf("%s after %d attempts: %w", op, maxAttempts, domain.ErrConflict)
	}
	return fmt.Errorf("%s after %d attempts: %w", op, maxAttempts, err)
}

func (s *Service) publish(ctx context.Context, t domain.OrderEventType, order *domain.Order, sellerID string) {
	if s.publisher == nil {
		return
	}
	event := domain.NewOrderEvent(t, order, s.now())
	event.SellerID = sellerID
	if err := s.publisher.Publish(ctx, order.ID, event); err != nil {
		s.logger.Error("failed to publish order event", "error", err, "type", t, "order_id", order.ID)
	}
}

func recordError(span trace.Span, err error) {
	if domain.IsBusinessRule(err) || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrForbidden) {
		span.SetAttributes(attribute.String("order.rejected", err.Error()))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
