// Package apperror holds the business error taxonomy shared by the ledgers,
// the checkout and the HTTP layer. Detail types match their sentinel through
// errors.Is, so callers branch on the sentinel and render the detail.
package apperror

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrValidation              = errors.New("validation failed")
	ErrInvalidAmount           = errors.New("amount must be greater than zero")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrInsufficientPayment     = errors.New("amount paid is less than the total")
	ErrExceedsBalance          = errors.New("payment amount exceeds credit balance")
	ErrNoCustomerForCredit     = errors.New("credit sales require a customer")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrConflict                = errors.New("conflicting update")
	ErrInUse                   = errors.New("record is referenced by sales")
)

// NotFoundError names the entity and the key that did not resolve.
type NotFoundError struct {
	Entity string
	Key    any
	Line   int // 1-based cart line, 0 when not tied to a line
}

func NotFound(entity string, key any) *NotFoundError {
	return &NotFoundError{Entity: entity, Key: key}
}

func (e *NotFoundError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s not found: %v", e.Line, e.Entity, e.Key)
	}
	return fmt.Sprintf("%s not found: %v", e.Entity, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// FieldError is one failed rule on one request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every failed rule of a request.
type ValidationError struct {
	Fields []FieldError
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Err returns nil when nothing was collected.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	f := e.Fields[0]
	if len(e.Fields) == 1 {
		return fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return fmt.Sprintf("%s: %s (and %d more)", f.Field, f.Message, len(e.Fields)-1)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InsufficientStockError names the product and the shortfall in base units.
type InsufficientStockError struct {
	ProductID   uint
	ProductName string
	Requested   decimal.Decimal
	Available   decimal.Decimal
}

func (e *InsufficientStockError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %s, available %s",
		e.ProductName, e.Requested.String(), e.Available.String())
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InsufficientPaymentError carries the recomputed total and what was tendered.
type InsufficientPaymentError struct {
	Total decimal.Decimal
	Paid  decimal.Decimal
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("amount paid %s is less than the total %s", e.Paid.StringFixed(2), e.Total.StringFixed(2))
}

func (e *InsufficientPaymentError) Is(target error) bool { return target == ErrInsufficientPayment }

// ExceedsBalanceError reports the unchanged balance a payment was refused against.
type ExceedsBalanceError struct {
	CustomerID uint
	Amount     decimal.Decimal
	Balance    decimal.Decimal
}

func (e *ExceedsBalanceError) Error() string {
	return fmt.Sprintf("payment %s exceeds credit balance %s", e.Amount.StringFixed(2), e.Balance.StringFixed(2))
}

func (e *ExceedsBalanceError) Is(target error) bool { return target == ErrExceedsBalance }

// IsBusiness reports whether err belongs to the taxonomy above, as opposed to
// an infrastructure failure.
func IsBusiness(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrValidation, ErrInvalidAmount, ErrInsufficientStock,
		ErrInsufficientPayment, ErrExceedsBalance, ErrNoCustomerForCredit,
		ErrCollaboratorUnavailable, ErrConflict, ErrInUse,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
