// Package customers manages credit customers and their repayments.
package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go-pos-ledger/internal/apperror"
	"go-pos-ledger/internal/ledger"
	"go-pos-ledger/internal/metrics"
	"go-pos-ledger/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Input creates or edits a customer. CreditBalance is the opening balance
// and is only read on create.
type Input struct {
	Name          string          `json:"name" binding:"required,max=150"`
	PhoneNumber   string          `json:"phone_number" binding:"max=20"`
	Address       string          `json:"address" binding:"max=255"`
	CreditBalance decimal.Decimal `json:"credit_balance"`
}

func (in *Input) Validate() error {
	v := &apperror.ValidationError{}
	in.Name = strings.TrimSpace(in.Name)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	if in.Name == "" {
		v.Add("name", "is required")
	}
	if in.CreditBalance.IsNegative() {
		v.Add("credit_balance", "must not be negative")
	}
	return v.Err()
}

// PaymentRequest repays part or all of a customer's balance.
type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" binding:"required,oneof=cash gcash"`
}

func (r *PaymentRequest) Validate() error {
	if r.Method != models.PaymentCash && r.Method != models.PaymentGCash {
		return apperror.Invalid("method", "must be cash or gcash")
	}
	if !r.Amount.Equal(r.Amount.Round(2)) {
		return apperror.Invalid("amount", "must have at most two decimal places")
	}
	return nil
}

type Service struct {
	db      *gorm.DB
	credit  *ledger.CreditLedger
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewService(db *gorm.DB, credit *ledger.CreditLedger, m *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{db: db, credit: credit, metrics: m, log: log}
}

// Create inserts a customer. An opening balance is posted as a charge so the
// ledger history explains it.
func (s *Service) Create(ctx context.Context, in Input) (models.Customer, error) {
	if err := in.Validate(); err != nil {
		return models.Customer{}, err
	}

	c := models.Customer{
		Name:          in.Name,
		PhoneNumber:   in.PhoneNumber,
		Address:       in.Address,
		CreditBalance: decimal.Zero,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&c).Error; err != nil {
			return fmt.Errorf("create customer: %w", err)
		}
		if in.CreditBalance.IsPositive() {
			entry, err := s.credit.WithTx(tx).Increase(ctx, c.ID, in.CreditBalance, ledger.Ref{Note: "opening balance"})
			if err != nil {
				return err
			}
			c.CreditBalance = entry.BalanceAfter
		}
		return nil
	})
	if err != nil {
		return models.Customer{}, err
	}

	s.log.Info("customer created", zap.Uint("customer_id", c.ID), zap.String("name", c.Name))
	return c, nil
}

// Update edits contact details. The balance only moves through sales and payments.
func (s *Service) Update(ctx context.Context, id uint, in Input) (models.Customer, error) {
	if err := in.Validate(); err != nil {
		return models.Customer{}, err
	}

	res := s.db.WithContext(ctx).Model(&models.Customer{}).Where("id = ?", id).Updates(map[string]interface{}{
		"name":         in.Name,
		"phone_number": in.PhoneNumber,
		"address":      in.Address,
	})
	if res.Error != nil {
		return models.Customer{}, fmt.Errorf("update customer %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.Customer{}, apperror.NotFound("customer", id)
	}
	return s.Get(ctx, id)
}

// Delete removes a customer who owes nothing. Their past sales stay, as
// walk-in sales.
func (s *Service) Delete(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Customer
		if err := tx.Select("id", "credit_balance").First(&c, id).Error; err != nil {
			return notFoundOr(err, id)
		}
		if !c.CreditBalance.IsZero() {
			return fmt.Errorf("customer %d still owes %s: %w", id, c.CreditBalance.StringFixed(2), apperror.ErrInUse)
		}
		if err := tx.Model(&models.Sale{}).Where("customer_id = ?", id).Update("customer_id", nil).Error; err != nil {
			return fmt.Errorf("detach sales of customer %d: %w", id, err)
		}
		if err := tx.Delete(&models.Customer{}, id).Error; err != nil {
			return fmt.Errorf("delete customer %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("customer deleted", zap.Uint("customer_id", id))
	return nil
}

func (s *Service) Get(ctx context.Context, id uint) (models.Customer, error) {
	var c models.Customer
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return models.Customer{}, notFoundOr(err, id)
	}
	return c, nil
}

// List returns customers by name. query matches name or phone.
func (s *Service) List(ctx context.Context, query string) ([]models.Customer, error) {
	q := s.db.WithContext(ctx).Order("name")
	if query = strings.TrimSpace(query); query != "" {
		like := "%" + strings.ToLower(query) + "%"
		q = q.Where("LOWER(name) LIKE ? OR phone_number LIKE ?", like, like)
	}

	var out []models.Customer
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return out, nil
}

// Pay applies a repayment. Paying more than is owed fails with
// *apperror.ExceedsBalanceError and nothing changes.
func (s *Service) Pay(ctx context.Context, id uint, req PaymentRequest) (models.CreditEntry, error) {
	if err := req.Validate(); err != nil {
		return models.CreditEntry{}, err
	}

	entry, err := s.credit.Decrease(ctx, id, req.Amount, ledger.Ref{
		Kind:   models.CreditPayment,
		Method: req.Method,
	})
	if err != nil {
		if apperror.IsBusiness(err) {
			s.log.Warn("payment refused", zap.Uint("customer_id", id), zap.Error(err))
		}
		return models.CreditEntry{}, err
	}

	s.metrics.CreditPaymentAccepted()
	s.log.Info("payment received",
		zap.Uint("customer_id", id),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("method", req.Method),
		zap.String("balance", entry.BalanceAfter.StringFixed(2)))
	return entry, nil
}

// Ledger lists a customer's charges and payments, newest first.
func (s *Service) Ledger(ctx context.Context, id uint, limit int) ([]models.CreditEntry, error) {
	if _, err := s.credit.Balance(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.credit.Entries(ctx, id, limit)
}

func notFoundOr(err error, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound("customer", id)
	}
	return fmt.Errorf("load customer %d: %w", id, err)
}
