package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/shopflow/internal/cache"
	"github.com/joao-fontenele/shopflow/internal/domain"
	"github.com/joao-fontenele/shopflow/internal/stats"
)

// NotificationHandler turns order lifecycle events into customer
// notifications delivered to a webhook. When a cache is configured it also
// drops cached admin statistics, which every order event makes stale.
type NotificationHandler struct {
	webhookURL string
	httpClient *http.Client
	cache      cache.Cache
	logger     *slog.Logger
}

func NewNotificationHandler(webhookURL string, client *http.Client, c cache.Cache, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		webhookURL: webhookURL,
		httpClient: client,
		cache:      c,
		logger:     logger,
	}
}

type Notification struct {
	To          string                `json:"to"`
	Subject     string                `json:"subject"`
	Body        string                `json:"body"`
	EventType   domain.OrderEventType `json:"event_type"`
	OrderID     string                `json:"order_id"`
	OrderNumber string                `json:"order_number"`
}

func (h *NotificationHandler) Handle(ctx context.Context, eventType string, payload []byte) error {
	var event domain.OrderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Error("skipping undecodable order event", "error", err, "event_type", eventType)
		return nil
	}

	h.logger.Info("processing order event", "type", event.Type, "order_id", event.OrderID, "customer_id", event.CustomerID)

	if h.cache != nil {
		if err := stats.InvalidateCache(ctx, h.cache); err != nil {
			h.logger.Warn("failed to invalidate statistics cache", "error", err, "order_id", event.OrderID)
		}
	}

	n, ok := notificationFor(event)
	if !ok {
		h.logger.Debug("no notification for event", "type", event.Type, "order_id", event.OrderID)
		return nil
	}

	if h.webhookURL == "" {
		h.logger.Info("notification webhook not configured, dropping", "type", event.Type, "order_id", event.OrderID)
		return nil
	}

	if err := h.send(ctx, n); err != nil {
		h.logger.Error("failed to send notification", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send %s notification: %w", event.Type, err)
	}

	h.logger.Info("notification sent", "type", event.Type, "order_id", event.OrderID)
	return nil
}

func notificationFor(e domain.OrderEvent) (Notification, bool) {
	n := Notification{
		To:          e.CustomerID,
		EventType:   e.Type,
		OrderID:     e.OrderID,
		OrderNumber: e.OrderNumber,
	}

	switch e.Type {
	case domain.EventOrderPlaced:
		n.Subject = "Order Confirmation: " + e.OrderNumber
		n.Body = fmt.Sprintf("Your order %s has been placed. Total: %s.", e.OrderNumber, e.TotalAmount)
	case domain.EventOrderCancelled:
		n.Subject = "Order Cancelled: " + e.OrderNumber
		n.Body = fmt.Sprintf("Your order %s has been cancelled.", e.OrderNumber)
	case domain.EventOrderStatusChanged, domain.EventOrderFulfillmentUpdated:
		n.Subject = "Order Update: " + e.OrderNumber
		n.Body = fmt.Sprintf("Your order %s is now %s.", e.OrderNumber, e.Status)
	case domain.EventOrderPaymentStatusChanged:
		if e.PaymentStatus != domain.PaymentStatusPaid && e.PaymentStatus != domain.PaymentStatusRefunded {
			return Notification{}, false
		}
		n.Subject = "Payment Update: " + e.OrderNumber
		n.Body = fmt.Sprintf("Payment for order %s is %s.", e.OrderNumber, e.PaymentStatus)
	default:
		return Notification{}, false
	}

	return n, true
}

func (h *NotificationHandler) send(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.webhookURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}

	return nil
}
