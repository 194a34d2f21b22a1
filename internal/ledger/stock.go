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

// StockLedger moves product quantities. It only knows base units; converting
// a sold unit into base units is the caller's job.
type StockLedger struct {
	db *gorm.DB
}

func NewStockLedger(db *gorm.DB) *StockLedger {
	return &StockLedger{db: db}
}

// WithTx binds the ledger to an open transaction so its writes commit or roll
// back with the caller's unit of work.
func (l *StockLedger) WithTx(tx *gorm.DB) *StockLedger {
	return &StockLedger{db: tx}
}

// Available returns the last committed quantity. Advisory only: the
// authoritative check happens inside TryDeduct.
func (l *StockLedger) Available(ctx context.Context, productID uint) (decimal.Decimal, error) {
	var p models.Product
	err := l.db.WithContext(ctx).Select("id", "stock_quantity").First(&p, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, apperror.NotFound("product", productID)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("load stock of product %d: %w", productID, err)
	}
	return p.StockQuantity, nil
}

// TryDeduct removes baseUnits from the product, or fails with
// *apperror.InsufficientStockError and leaves the quantity untouched.
func (l *StockLedger) TryDeduct(ctx context.Context, productID uint, baseUnits decimal.Decimal, ref Ref) (models.StockMovement, error) {
	if !baseUnits.IsPositive() {
		return models.StockMovement{}, apperror.Invalid("base_units", "must be greater than zero")
	}
	if ref.Kind == "" {
		ref.Kind = models.MovementSale
	}
	return l.apply(ctx, productID, baseUnits.Neg(), ref)
}

// Add puts baseUnits back on the shelf (restock).
func (l *StockLedger) Add(ctx context.Context, productID uint, baseUnits decimal.Decimal, ref Ref) (models.StockMovement, error) {
	if !baseUnits.IsPositive() {
		return models.StockMovement{}, apperror.Invalid("base_units", "must be greater than zero")
	}
	if ref.Kind == "" {
		ref.Kind = models.MovementRestock
	}
	return l.apply(ctx, productID, baseUnits, ref)
}

// Movements lists a product's history, newest first.
func (l *StockLedger) Movements(ctx context.Context, productID uint, limit int) ([]models.StockMovement, error) {
	var rows []models.StockMovement
	err := l.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("id desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list stock movements of product %d: %w", productID, err)
	}
	return rows, nil
}

func (l *StockLedger) apply(ctx context.Context, productID uint, delta decimal.Decimal, ref Ref) (models.StockMovement, error) {
	var mv models.StockMovement

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for attempt := 0; attempt < maxCASAttempts; attempt++ {
			var p models.Product
			err := tx.Clauses(forUpdate()).
				Select("id", "name", "stock_quantity", "version").
				First(&p, productID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("product", productID)
			}
			if err != nil {
				return fmt.Errorf("lock product %d: %w", productID, err)
			}

			after := p.StockQuantity.Add(delta)
			if after.IsNegative() {
				return &apperror.InsufficientStockError{
					ProductID:   p.ID,
					ProductName: p.Name,
					Requested:   delta.Neg(),
					Available:   p.StockQuantity,
				}
			}
			if after.GreaterThan(models.MaxAmount) {
				return apperror.Invalid("quantity", "stock would exceed "+models.MaxAmount.String())
			}

			res := tx.Model(&models.Product{}).
				Where("id = ? AND version = ?", p.ID, p.Version).
				Updates(map[string]interface{}{
					"stock_quantity": after,
					"version":        gorm.Expr("version + 1"),
				})
			if res.Error != nil {
				return fmt.Errorf("update stock of product %d: %w", p.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				continue
			}

			mv = models.StockMovement{
				ProductID: p.ID,
				Kind:      ref.Kind,
				Quantity:  delta,
				Before:    p.StockQuantity,
				After:     after,
				SaleID:    ref.SaleID,
				Note:      ref.Note,
			}
			if err := tx.Create(&mv).Error; err != nil {
				return fmt.Errorf("record stock movement: %w", err)
			}
			return nil
		}
		return fmt.Errorf("stock of product %d kept changing: %w", productID, apperror.ErrConflict)
	})

	return mv, err
}
