// Package catalog maps scanned identifiers to sellable units and owns product
// and unit management. Reads assemble unit and product with an explicit join.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"go-pos-ledger/internal/apperror"
	"go-pos-ledger/internal/config"
	"go-pos-ledger/internal/ledger"
	"go-pos-ledger/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MinSearchLength is the shortest query Search accepts.
const MinSearchLength = 2

// Resolved is a unit together with the product it packages.
type Resolved struct {
	Unit    models.Unit    `json:"unit"`
	Product models.Product `json:"product"`
}

// Catalog reads and manages products and their units.
type Catalog struct {
	db     *gorm.DB
	stock  *ledger.StockLedger
	limits config.CatalogConfig
	log    *zap.Logger
}

func New(db *gorm.DB, stock *ledger.StockLedger, limits config.CatalogConfig, log *zap.Logger) *Catalog {
	if limits.SearchDefaultLimit <= 0 {
		limits.SearchDefaultLimit = 10
	}
	if limits.SearchMaxLimit < limits.SearchDefaultLimit {
		limits.SearchMaxLimit = limits.SearchDefaultLimit
	}
	return &Catalog{db: db, stock: stock, limits: limits, log: log}
}

// WithTx returns a catalog whose reads run inside tx.
func (c *Catalog) WithTx(tx *gorm.DB) *Catalog {
	cp := *c
	cp.db = tx
	cp.stock = c.stock.WithTx(tx)
	return &cp
}

// unitRow is the flat shape of the units/products join.
type unitRow struct {
	UnitID            uint
	ProductID         uint
	UnitName          string
	Barcode           string
	Price             decimal.Decimal
	PriceType         string
	ConversionFactor  int
	ProductName       string
	Description       string
	Category          string
	ImageURL          string
	BaseUnit          string
	StockQuantity     decimal.Decimal
	LowStockThreshold decimal.Decimal
}

const unitColumns = "units.id AS unit_id, units.product_id, units.unit_name, units.barcode, units.price, " +
	"units.price_type, units.conversion_factor, products.name AS product_name, products.description, " +
	"products.category, products.image_url, products.base_unit, products.stock_quantity, products.low_stock_threshold"

func (r unitRow) resolved() Resolved {
	return Resolved{
		Unit: models.Unit{
			ID:               r.UnitID,
			ProductID:        r.ProductID,
			UnitName:         r.UnitName,
			Barcode:          r.Barcode,
			Price:            r.Price,
			PriceType:        r.PriceType,
			ConversionFactor: r.ConversionFactor,
		},
		Product: models.Product{
			ID:                r.ProductID,
			Name:              r.ProductName,
			Description:       r.Description,
			Category:          r.Category,
			ImageURL:          r.ImageURL,
			BaseUnit:          r.BaseUnit,
			StockQuantity:     r.StockQuantity,
			LowStockThreshold: r.LowStockThreshold,
		},
	}
}

func (c *Catalog) joined(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx).
		Table("units").
		Select(unitColumns).
		Joins("JOIN products ON products.id = units.product_id")
}

func (c *Catalog) first(q *gorm.DB, key any) (Resolved, error) {
	var rows []unitRow
	if err := q.Limit(1).Scan(&rows).Error; err != nil {
		return Resolved{}, fmt.Errorf("resolve unit %v: %w", key, err)
	}
	if len(rows) == 0 {
		return Resolved{}, apperror.NotFound("unit", key)
	}
	return rows[0].resolved(), nil
}

// Resolve finds the unit carrying barcode. An unknown barcode is
// *apperror.NotFoundError, an outcome callers are expected to branch on.
func (c *Catalog) Resolve(ctx context.Context, barcode string) (Resolved, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return Resolved{}, apperror.Invalid("barcode", "is required")
	}
	return c.first(c.joined(ctx).Where("units.barcode = ?", barcode), barcode)
}

// ResolveID finds a unit by primary key.
func (c *Catalog) ResolveID(ctx context.Context, unitID uint) (Resolved, error) {
	return c.first(c.joined(ctx).Where("units.id = ?", unitID), unitID)
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// Search matches text against barcodes and product names, case-insensitive,
// in insertion order. limit <= 0 means the configured default.
func (c *Catalog) Search(ctx context.Context, text string, limit int) ([]Resolved, error) {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < MinSearchLength {
		return nil, apperror.Invalid("query", fmt.Sprintf("must be at least %d characters", MinSearchLength))
	}
	limit = c.clampLimit(limit)

	pattern := "%" + strings.ToLower(likeEscaper.Replace(text)) + "%"
	var rows []unitRow
	err := c.joined(ctx).
		Where("LOWER(units.barcode) LIKE ? ESCAPE '!' OR LOWER(products.name) LIKE ? ESCAPE '!'", pattern, pattern).
		Order("units.id").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("search units for %q: %w", text, err)
	}

	out := make([]Resolved, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.resolved())
	}
	return out, nil
}

// InStockUnits lists units that can sell at least one of themselves right now.
func (c *Catalog) InStockUnits(ctx context.Context, limit int) ([]Resolved, error) {
	var rows []unitRow
	err := c.joined(ctx).
		Where("products.stock_quantity >= units.conversion_factor").
		Order("units.id").
		Limit(c.clampLimit(limit)).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list in-stock units: %w", err)
	}

	out := make([]Resolved, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.resolved())
	}
	return out, nil
}

func (c *Catalog) clampLimit(limit int) int {
	if limit <= 0 {
		return c.limits.SearchDefaultLimit
	}
	if limit > c.limits.SearchMaxLimit {
		return c.limits.SearchMaxLimit
	}
	return limit
}
