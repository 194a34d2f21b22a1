package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDetailErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"not found", NotFound("unit", "123"), ErrNotFound},
		{"validation", Invalid("lines", "at least one line is required"), ErrValidation},
		{"stock", &InsufficientStockError{ProductName: "Cola"}, ErrInsufficientStock},
		{"payment", &InsufficientPaymentError{}, ErrInsufficientPayment},
		{"balance", &ExceedsBalanceError{}, ErrExceedsBalance},
		{"wrapped", fmt.Errorf("commit: %w", NotFound("customer", 9)), ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Fatalf("errors.Is(%v, %v) = false", tt.err, tt.target)
			}
			if !IsBusiness(tt.err) {
				t.Fatalf("IsBusiness(%v) = false", tt.err)
			}
		})
	}
}

func TestInfrastructureErrorIsNotBusiness(t *testing.T) {
	if IsBusiness(errors.New("dial tcp: connection refused")) {
		t.Fatal("plain error classified as business error")
	}
}

func TestShortfall(t *testing.T) {
	err := &InsufficientStockError{
		ProductName: "Cola",
		Requested:   decimal.NewFromInt(24),
		Available:   decimal.NewFromInt(20),
	}
	if !err.Shortfall().Equal(decimal.NewFromInt(4)) {
		t.Fatalf("shortfall = %s, want 4", err.Shortfall())
	}
}

func TestValidationErrorCollects(t *testing.T) {
	var v ValidationError
	if v.Err() != nil {
		t.Fatal("empty ValidationError should be nil")
	}
	v.Add("lines[0].quantity", "must be at least 1")
	v.Add("payment_method", "must be one of cash, gcash, credit")
	err := v.Err()
	if err == nil || !errors.Is(err, ErrValidation) {
		t.Fatalf("Err() = %v", err)
	}
	if got := err.Error(); got != "lines[0].quantity: must be at least 1 (and 1 more)" {
		t.Fatalf("message = %q", got)
	}
}
