package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pq.Error{Code: ErrCodeSerializationFailure}, true},
		{"deadlock", &pq.Error{Code: ErrCodeDeadlockDetected}, true},
		{"wrapped deadlock", fmt.Errorf("lock products: %w", &pq.Error{Code: ErrCodeDeadlockDetected}), true},
		{"unique violation", &pq.Error{Code: ErrCodeUniqueViolation}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert order: %w", &pq.Error{Code: ErrCodeUniqueViolation, Constraint: "orders_order_number_key"})

	if !IsUniqueViolation(err, "orders_order_number_key") {
		t.Error("expected unique violation on orders_order_number_key")
	}
	if !IsUniqueViolation(err, "") {
		t.Error("expected unique violation with any constraint")
	}
	if IsUniqueViolation(err, "cart_items_pkey") {
		t.Error("did not expect match on a different constraint")
	}
	if IsUniqueViolation(&pq.Error{Code: ErrCodeCheckViolation}, "") {
		t.Error("did not expect check violation to match")
	}
}

func TestConstraintViolations(t *testing.T) {
	check := fmt.Errorf("decrement: %w", &pq.Error{Code: ErrCodeCheckViolation, Constraint: "products_stock_non_negative"})
	fk := &pq.Error{Code: ErrCodeForeignKeyViolation, Constraint: "cart_items_product_id_fkey"}

	if !IsCheckViolation(check, "products_stock_non_negative") {
		t.Error("expected check violation on products_stock_non_negative")
	}
	if IsCheckViolation(check, "orders_status_check") {
		t.Error("did not expect match on a different constraint")
	}
	if IsCheckViolation(fk, "") {
		t.Error("did not expect foreign key violation to match a check")
	}
	if !IsForeignKeyViolation(fk, "cart_items_product_id_fkey") {
		t.Error("expected foreign key violation on cart_items_product_id_fkey")
	}
	if IsForeignKeyViolation(check, "") {
		t.Error("did not expect check violation to match a foreign key")
	}
	if IsForeignKeyViolation(errors.New("boom"), "") {
		t.Error("did not expect plain error to match")
	}
}
