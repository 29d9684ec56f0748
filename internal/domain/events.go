package domain

import "time"

type OrderEventType string

const (
	EventOrderPlaced               OrderEventType = "order.placed"
	EventOrderCancelled            OrderEventType = "order.cancelled"
	EventOrderStatusChanged        OrderEventType = "order.status_changed"
	EventOrderPaymentStatusChanged OrderEventType = "order.payment_status_changed"
	EventOrderFulfillmentUpdated   OrderEventType = "order.fulfillment_updated"
)

type OrderEvent struct {
	Type          OrderEventType `json:"type"`
	OrderID       string         `json:"order_id"`
	OrderNumber   string         `json:"order_number"`
	CustomerID    string         `json:"customer_id"`
	Status        OrderStatus    `json:"status"`
	PaymentStatus PaymentStatus  `json:"payment_status"`
	TotalAmount   string         `json:"total_amount"`
	SellerID      string         `json:"seller_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

func NewOrderEvent(t OrderEventType, order *Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:          t,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerID:    order.CustomerID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalAmount:   order.TotalAmount.StringFixed(2),
		Timestamp:     at,
	}
}
