package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrEmptyCart = errors.New("your cart is empty")
	// ErrConflict means a concurrent transaction won a race on the same rows
	// and the operation could not be completed after retrying.
	ErrConflict = errors.New("concurrent update conflict")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

type ProductUnavailableError struct {
	ProductID string
	Name      string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %q is no longer available", e.Name)
}

type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: only %d available", e.Name, e.Available)
}

type InvalidStateError struct {
	Status OrderStatus
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("order cannot be %s while %s", e.Action, e.Status)
}

// IsBusinessRule reports whether err is an expected, caller-correctable rule violation.
func IsBusinessRule(err error) bool {
	var (
		unavailable *ProductUnavailableError
		stock       *InsufficientStockError
		state       *InvalidStateError
	)
	return errors.Is(err, ErrEmptyCart) ||
		errors.As(err, &unavailable) ||
		errors.As(err, &stock) ||
		errors.As(err, &state)
}
