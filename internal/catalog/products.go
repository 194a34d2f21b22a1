package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go-pos-ledger/internal/apperror"
	"go-pos-ledger/internal/ledger"
	"go-pos-ledger/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UnitInput is one sellable unit in a product form. ID is set when editing
// an existing unit.
type UnitInput struct {
	ID               uint            `json:"id"`
	UnitName         string          `json:"unit_name" binding:"required,max=50"`
	Barcode          string          `json:"barcode" binding:"required,max=100"`
	Price            decimal.Decimal `json:"price"`
	PriceType        string          `json:"price_type" binding:"required,oneof=retail wholesale"`
	ConversionFactor int             `json:"conversion_factor" binding:"required,min=1"`
}

// ProductInput creates or edits a product with its units. StockQuantity is
// only read on create; afterwards stock moves through restocks and sales.
type ProductInput struct {
	Name              string           `json:"name" binding:"required,max=255"`
	Description       string           `json:"description"`
	Category          string           `json:"category" binding:"max=100"`
	ImageURL          string           `json:"image_url" binding:"max=255"`
	StockQuantity     decimal.Decimal  `json:"stock_quantity"`
	LowStockThreshold *decimal.Decimal `json:"low_stock_threshold"`
	Units             []UnitInput      `json:"units" binding:"required,min=1,dive"`
}

// Validate checks the rules binding tags cannot express.
func (in *ProductInput) Validate() error {
	v := &apperror.ValidationError{}

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		v.Add("name", "is required")
	}
	if in.StockQuantity.IsNegative() {
		v.Add("stock_quantity", "must not be negative")
	}
	if in.LowStockThreshold != nil && in.LowStockThreshold.IsNegative() {
		v.Add("low_stock_threshold", "must not be negative")
	}
	if len(in.Units) == 0 {
		v.Add("units", "at least one unit is required")
	}

	seen := make(map[string]bool, len(in.Units))
	for i := range in.Units {
		u := &in.Units[i]
		field := fmt.Sprintf("units[%d]", i)
		u.UnitName = strings.TrimSpace(u.UnitName)
		u.Barcode = strings.TrimSpace(u.Barcode)

		if u.UnitName == "" {
			v.Add(field+".unit_name", "is required")
		}
		if u.Barcode == "" {
			v.Add(field+".barcode", "is required")
		} else if seen[u.Barcode] {
			v.Add(field+".barcode", "is repeated in this product")
		}
		seen[u.Barcode] = true
		if u.Price.IsNegative() {
			v.Add(field+".price", "must not be negative")
		}
		if u.PriceType != models.PriceRetail && u.PriceType != models.PriceWholesale {
			v.Add(field+".price_type", "must be retail or wholesale")
		}
		if u.ConversionFactor < 1 {
			v.Add(field+".conversion_factor", "must be at least 1")
		}
	}
	return v.Err()
}

func (in *ProductInput) barcodes() []string {
	out := make([]string, 0, len(in.Units))
	for _, u := range in.Units {
		out = append(out, u.Barcode)
	}
	return out
}

// ProductFilter narrows ListProducts.
type ProductFilter struct {
	Category     string
	LowStockOnly bool
}

// CreateProduct inserts a product and its units. Opening stock is posted as a
// restock movement so the history starts at zero.
func (c *Catalog) CreateProduct(ctx context.Context, in ProductInput) (models.Product, error) {
	if err := in.Validate(); err != nil {
		return models.Product{}, err
	}

	threshold := decimal.NewFromInt(10)
	if in.LowStockThreshold != nil {
		threshold = *in.LowStockThreshold
	}

	product := models.Product{
		Name:              in.Name,
		Description:       in.Description,
		Category:          in.Category,
		ImageURL:          in.ImageURL,
		BaseUnit:          "piece",
		StockQuantity:     decimal.Zero,
		LowStockThreshold: threshold,
	}
	for _, u := range in.Units {
		product.Units = append(product.Units, models.Unit{
			UnitName:         u.UnitName,
			Barcode:          u.Barcode,
			Price:            u.Price,
			PriceType:        u.PriceType,
			ConversionFactor: u.ConversionFactor,
		})
	}

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := barcodesFree(tx, in.barcodes(), nil); err != nil {
			return err
		}
		if err := tx.Create(&product).Error; err != nil {
			return translateWrite("create product", err)
		}
		if in.StockQuantity.IsPositive() {
			mv, err := c.stock.WithTx(tx).Add(ctx, product.ID, in.StockQuantity, ledger.Ref{Note: "opening stock"})
			if err != nil {
				return err
			}
			product.StockQuantity = mv.After
		}
		return nil
	})
	if err != nil {
		return models.Product{}, err
	}

	c.log.Info("product created", zap.Uint("product_id", product.ID), zap.String("name", product.Name), zap.Int("units", len(product.Units)))
	return product, nil
}

// UpdateProduct edits descriptive fields and reconciles units: inputs with an
// ID are updated, inputs without one are created, and units left out are
// removed unless a sale line references them.
func (c *Catalog) UpdateProduct(ctx context.Context, productID uint, in ProductInput) (models.Product, error) {
	if err := in.Validate(); err != nil {
		return models.Product{}, err
	}

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, productID).Error; err != nil {
			return notFoundOr(err, "product", productID)
		}

		var existing []models.Unit
		if err := tx.Where("product_id = ?", productID).Find(&existing).Error; err != nil {
			return fmt.Errorf("load units of product %d: %w", productID, err)
		}
		current := make(map[uint]bool, len(existing))
		for _, u := range existing {
			current[u.ID] = true
		}

		kept := make(map[uint]bool)
		keptIDs := []uint{0}
		for i, u := range in.Units {
			if u.ID == 0 {
				continue
			}
			if !current[u.ID] {
				return apperror.Invalid(fmt.Sprintf("units[%d].id", i), "does not belong to this product")
			}
			kept[u.ID] = true
			keptIDs = append(keptIDs, u.ID)
		}

		var removed []uint
		for _, u := range existing {
			if !kept[u.ID] {
				removed = append(removed, u.ID)
			}
		}
		if len(removed) > 0 {
			var refs int64
			if err := tx.Model(&models.SaleLine{}).Where("unit_id IN ?", removed).Count(&refs).Error; err != nil {
				return fmt.Errorf("check sale lines of removed units: %w", err)
			}
			if refs > 0 {
				return fmt.Errorf("remove units of product %d: %w", productID, apperror.ErrInUse)
			}
			if err := tx.Where("id IN ?", removed).Delete(&models.Unit{}).Error; err != nil {
				return fmt.Errorf("remove units of product %d: %w", productID, err)
			}
		}

		if err := barcodesFree(tx, in.barcodes(), keptIDs); err != nil {
			return err
		}

		fields := map[string]interface{}{
			"name":        in.Name,
			"description": in.Description,
			"category":    in.Category,
			"image_url":   in.ImageURL,
		}
		if in.LowStockThreshold != nil {
			fields["low_stock_threshold"] = *in.LowStockThreshold
		}
		if err := tx.Model(&models.Product{}).Where("id = ?", productID).Updates(fields).Error; err != nil {
			return fmt.Errorf("update product %d: %w", productID, err)
		}

		for _, u := range in.Units {
			unit := models.Unit{
				ID:               u.ID,
				ProductID:        productID,
				UnitName:         u.UnitName,
				Barcode:          u.Barcode,
				Price:            u.Price,
				PriceType:        u.PriceType,
				ConversionFactor: u.ConversionFactor,
			}
			if u.ID == 0 {
				if err := tx.Create(&unit).Error; err != nil {
					return translateWrite("create unit", err)
				}
				continue
			}
			err := tx.Model(&models.Unit{}).Where("id = ?", u.ID).Updates(map[string]interface{}{
				"unit_name":         unit.UnitName,
				"barcode":           unit.Barcode,
				"price":             unit.Price,
				"price_type":        unit.PriceType,
				"conversion_factor": unit.ConversionFactor,
			}).Error
			if err != nil {
				return translateWrite("update unit", err)
			}
		}
		return nil
	})
	if err != nil {
		return models.Product{}, err
	}

	c.log.Info("product updated", zap.Uint("product_id", productID))
	return c.GetProduct(ctx, productID)
}

// DeleteProduct removes a product and its units. A product whose units appear
// on any sale line is kept and ErrInUse is returned.
func (c *Catalog) DeleteProduct(ctx context.Context, productID uint) error {
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.Select("id").First(&product, productID).Error; err != nil {
			return notFoundOr(err, "product", productID)
		}

		var refs int64
		err := tx.Model(&models.SaleLine{}).
			Joins("JOIN units ON units.id = sale_lines.unit_id").
			Where("units.product_id = ?", productID).
			Count(&refs).Error
		if err != nil {
			return fmt.Errorf("check sale lines of product %d: %w", productID, err)
		}
		if refs > 0 {
			return fmt.Errorf("delete product %d: %w", productID, apperror.ErrInUse)
		}

		if err := tx.Where("product_id = ?", productID).Delete(&models.Unit{}).Error; err != nil {
			return fmt.Errorf("delete units of product %d: %w", productID, err)
		}
		if err := tx.Delete(&models.Product{}, productID).Error; err != nil {
			return fmt.Errorf("delete product %d: %w", productID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.log.Info("product deleted", zap.Uint("product_id", productID))
	return nil
}

// GetProduct loads a product and its units.
func (c *Catalog) GetProduct(ctx context.Context, productID uint) (models.Product, error) {
	var product models.Product
	if err := c.db.WithContext(ctx).First(&product, productID).Error; err != nil {
		return models.Product{}, notFoundOr(err, "product", productID)
	}
	if err := c.db.WithContext(ctx).Where("product_id = ?", productID).Order("id").Find(&product.Units).Error; err != nil {
		return models.Product{}, fmt.Errorf("load units of product %d: %w", productID, err)
	}
	return product, nil
}

// ListProducts returns products ordered by name, each with its units.
func (c *Catalog) ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	q := c.db.WithContext(ctx).Order("name")
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.LowStockOnly {
		q = q.Where("stock_quantity <= low_stock_threshold")
	}

	var products []models.Product
	if err := q.Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if len(products) == 0 {
		return products, nil
	}

	ids := make([]uint, len(products))
	index := make(map[uint]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
		index[p.ID] = i
	}
	var units []models.Unit
	if err := c.db.WithContext(ctx).Where("product_id IN ?", ids).Order("id").Find(&units).Error; err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	for _, u := range units {
		i := index[u.ProductID]
		products[i].Units = append(products[i].Units, u)
	}
	return products, nil
}

// Movements lists the stock history of a product, newest first.
func (c *Catalog) Movements(ctx context.Context, productID uint, limit int) ([]models.StockMovement, error) {
	if _, err := c.stock.Available(ctx, productID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return c.stock.Movements(ctx, productID, limit)
}

// UpdateUnitPrice changes the shelf price of one unit. Past sale lines keep
// the price they were sold at.
func (c *Catalog) UpdateUnitPrice(ctx context.Context, unitID uint, price decimal.Decimal) (models.Unit, error) {
	if price.IsNegative() {
		return models.Unit{}, apperror.Invalid("price", "must not be negative")
	}

	res := c.db.WithContext(ctx).Model(&models.Unit{}).Where("id = ?", unitID).Update("price", price)
	if res.Error != nil {
		return models.Unit{}, fmt.Errorf("update price of unit %d: %w", unitID, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.Unit{}, apperror.NotFound("unit", unitID)
	}

	var unit models.Unit
	if err := c.db.WithContext(ctx).First(&unit, unitID).Error; err != nil {
		return models.Unit{}, notFoundOr(err, "unit", unitID)
	}
	c.log.Info("unit price updated", zap.Uint("unit_id", unitID), zap.String("price", price.StringFixed(2)))
	return unit, nil
}

// Restock adds quantity of a unit (or of the base unit when unitID is nil)
// to the product's stock.
func (c *Catalog) Restock(ctx context.Context, productID uint, quantity int, unitID *uint, note string) (models.StockMovement, error) {
	if quantity <= 0 {
		return models.StockMovement{}, apperror.Invalid("quantity", "must be greater than zero")
	}
	if quantity > models.MaxQuantity {
		return models.StockMovement{}, apperror.Invalid("quantity", fmt.Sprintf("must be at most %d", models.MaxQuantity))
	}

	base := decimal.NewFromInt(int64(quantity))
	if unitID != nil {
		r, err := c.ResolveID(ctx, *unitID)
		if err != nil {
			return models.StockMovement{}, err
		}
		if r.Unit.ProductID != productID {
			return models.StockMovement{}, apperror.Invalid("unit_id", "does not belong to this product")
		}
		base = r.Unit.BaseUnits(quantity)
	}

	mv, err := c.stock.Add(ctx, productID, base, ledger.Ref{Note: note})
	if err != nil {
		return models.StockMovement{}, err
	}
	c.log.Info("product restocked",
		zap.Uint("product_id", productID),
		zap.String("base_units", base.String()),
		zap.String("stock", mv.After.String()))
	return mv, nil
}

// barcodesFree fails with ErrConflict when any barcode already belongs to a
// unit outside except.
func barcodesFree(tx *gorm.DB, barcodes []string, except []uint) error {
	q := tx.Model(&models.Unit{}).Where("barcode IN ?", barcodes)
	if len(except) > 0 {
		q = q.Where("id NOT IN ?", except)
	}
	var taken []string
	if err := q.Pluck("barcode", &taken).Error; err != nil {
		return fmt.Errorf("check barcodes: %w", err)
	}
	if len(taken) > 0 {
		sort.Strings(taken)
		return fmt.Errorf("barcode %s is already assigned: %w", strings.Join(taken, ", "), apperror.ErrConflict)
	}
	return nil
}

func translateWrite(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: barcode is already assigned: %w", op, apperror.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func notFoundOr(err error, entity string, key any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(entity, key)
	}
	return fmt.Errorf("load %s %v: %w", entity, key, err)
}
