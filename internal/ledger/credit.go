package ledger

import (
	"context"
	"errors"
	"fmt"

	"go-pos-ledger/internal/apperror"
	"go-pos-ledger/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CreditLedger moves customer balances (utang).
type CreditLedger struct {
	db *gorm.DB
}

func NewCreditLedger(db *gorm.DB) *CreditLedger {
	return &CreditLedger{db: db}
}

// WithTx binds the ledger to an open transaction.
func (l *CreditLedger) WithTx(tx *gorm.DB) *CreditLedger {
	return &CreditLedger{db: tx}
}

// Balance returns the last committed balance.
func (l *CreditLedger) Balance(ctx context.Context, customerID uint) (decimal.Decimal, error) {
	var c models.Customer
	err := l.db.WithContext(ctx).Select("id", "credit_balance").First(&c, customerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, apperror.NotFound("customer", customerID)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("load balance of customer %d: %w", customerID, err)
	}
	return c.CreditBalance, nil
}

// Increase posts new debt.
func (l *CreditLedger) Increase(ctx context.Context, customerID uint, amount decimal.Decimal, ref Ref) (models.CreditEntry, error) {
	if !amount.IsPositive() {
		return models.CreditEntry{}, fmt.Errorf("credit increase of %s: %w", amount, apperror.ErrInvalidAmount)
	}
	if ref.Kind == "" {
		ref.Kind = models.CreditCharge
	}
	return l.apply(ctx, customerID, amount, ref)
}

// Decrease records a payment. Paying more than is owed fails with
// *apperror.ExceedsBalanceError and the balance stays as it was.
func (l *CreditLedger) Decrease(ctx context.Context, customerID uint, amount decimal.Decimal, ref Ref) (models.CreditEntry, error) {
	if !amount.IsPositive() {
		return models.CreditEntry{}, fmt.Errorf("credit payment of %s: %w", amount, apperror.ErrInvalidAmount)
	}
	if ref.Kind == "" {
		ref.Kind = models.CreditPayment
	}
	return l.apply(ctx, customerID, amount.Neg(), ref)
}

// Entries lists a customer's history, newest first.
func (l *CreditLedger) Entries(ctx context.Context, customerID uint, limit int) ([]models.CreditEntry, error) {
	var rows []models.CreditEntry
	err := l.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("id desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list credit entries of customer %d: %w", customerID, err)
	}
	return rows, nil
}

func (l *CreditLedger) apply(ctx context.Context, customerID uint, delta decimal.Decimal, ref Ref) (models.CreditEntry, error) {
	var entry models.CreditEntry

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for attempt := 0; attempt < maxCASAttempts; attempt++ {
			var c models.Customer
			err := tx.Clauses(forUpdate()).
				Select("id", "credit_balance", "version").
				First(&c, customerID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("customer", customerID)
			}
			if err != nil {
				return fmt.Errorf("lock customer %d: %w", customerID, err)
			}

			after := c.CreditBalance.Add(delta)
			if after.IsNegative() {
				return &apperror.ExceedsBalanceError{
					CustomerID: c.ID,
					Amount:     delta.Neg(),
					Balance:    c.CreditBalance,
				}
			}
			if after.GreaterThan(models.MaxAmount) {
				return apperror.Invalid("amount", "balance would exceed "+models.MaxAmount.String())
			}

			res := tx.Model(&models.Customer{}).
				Where("id = ? AND version = ?", c.ID, c.Version).
				Updates(map[string]interface{}{
					"credit_balance": after,
					"version":        gorm.Expr("version + 1"),
				})
			if res.Error != nil {
				return fmt.Errorf("update balance of customer %d: %w", c.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				continue
			}

			entry = models.CreditEntry{
				CustomerID:   c.ID,
				Kind:         ref.Kind,
				Amount:       delta.Abs(),
				BalanceAfter: after,
				Method:       ref.Method,
				SaleID:       ref.SaleID,
				Note:         ref.Note,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return fmt.Errorf("record credit entry: %w", err)
			}
			return nil
		}
		return fmt.Errorf("balance of customer %d kept changing: %w", customerID, apperror.ErrConflict)
	})

	return entry, err
}
