package messaging

import (
	"slices"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestMessageCarrier(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{{Key: EventTypeHeader, Value: []byte("order.placed")}}}
	c := NewMessageCarrier(&msg)

	c.Set("traceparent", "00-abc-def-01")
	c.Set(EventTypeHeader, "order.cancelled")

	if got := c.Get(EventTypeHeader); got != "order.cancelled" {
		t.Errorf("expected overwritten header, got %q", got)
	}
	if got := c.Get("traceparent"); got != "00-abc-def-01" {
		t.Errorf("expected traceparent, got %q", got)
	}
	if got := c.Get("missing"); got != "" {
		t.Errorf("expected empty value, got %q", got)
	}
	if len(msg.Headers) != 2 {
		t.Errorf("expected 2 headers on the message, got %d", len(msg.Headers))
	}
	if keys := c.Keys(); !slices.Equal(keys, []string{EventTypeHeader, "traceparent"}) {
		t.Errorf("unexpected keys %v", keys)
	}
}
