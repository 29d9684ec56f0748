package orders

import (
	"time"

	"github.com/joao-fontenele/shopflow/internal/domain"
)

// AggregateStatus derives an order's status from the fulfillment status of
// every item in it. When all items agree on processing, shipped or delivered
// the order takes that status; otherwise a single shipped item moves the
// order to processing. Anything else leaves current as it is.
func AggregateStatus(current domain.OrderStatus, items []domain.FulfillmentStatus) domain.OrderStatus {
	if len(items) == 0 {
		return current
	}

	first := items[0]
	uniform := true
	anyShipped := false
	for _, s := range items {
		if s != first {
			uniform = false
		}
		if s == domain.FulfillmentShipped {
			anyShipped = true
		}
	}

	if uniform {
		switch first {
		case domain.FulfillmentProcessing:
			return domain.OrderStatusProcessing
		case domain.FulfillmentShipped:
			return domain.OrderStatusShipped
		case domain.FulfillmentDelivered:
			return domain.OrderStatusDelivered
		}
	}
	if anyShipped {
		return domain.OrderStatusProcessing
	}
	return current
}

var transitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
}

// CanTransition reports whether the forward-only lifecycle allows moving
// from one status to another. Staying in the same status is always allowed.
func CanTransition(from, to domain.OrderStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// applyStatus sets the order status and stamps shipped_at and delivered_at
// the first time the order enters those states.
func applyStatus(order *domain.Order, status domain.OrderStatus, now time.Time) {
	order.Status = status
	switch status {
	case domain.OrderStatusShipped:
		if order.ShippedAt == nil {
			order.ShippedAt = &now
		}
	case domain.OrderStatusDelivered:
		if order.DeliveredAt == nil {
			order.DeliveredAt = &now
		}
	}
	order.UpdatedAt = now
}

func applyPaymentStatus(order *domain.Order, status domain.PaymentStatus, transactionID string, now time.Time) {
	order.PaymentStatus = status
	if status == domain.PaymentStatusPaid && order.PaidAt == nil {
		order.PaidAt = &now
	}
	if transactionID != "" {
		order.TransactionID = transactionID
	}
	order.UpdatedAt = now
}
