// Package seed loads a demo sari-sari store into an empty database. The
// barcodes match the classes the vision sidecar is trained on.
package seed

import (
	"context"
	"fmt"

	"go-pos-ledger/internal/catalog"
	"go-pos-ledger/internal/customers"
	"go-pos-ledger/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func unit(name, barcode, price string, factor int) catalog.UnitInput {
	priceType := models.PriceRetail
	if factor > 1 {
		priceType = models.PriceWholesale
	}
	return catalog.UnitInput{
		UnitName:         name,
		Barcode:          barcode,
		Price:            decimal.RequireFromString(price),
		PriceType:        priceType,
		ConversionFactor: factor,
	}
}

var products = []catalog.ProductInput{
	{Name: "CDO Afritada 150g", Category: "Canned Goods", StockQuantity: decimal.NewFromInt(48), Units: []catalog.UnitInput{
		unit("Can", "4800016644443", "45", 1),
		unit("Case", "4800016644450", "1030", 24),
	}},
	{Name: "Argentina Corned Beef 150g", Category: "Canned Goods", StockQuantity: decimal.NewFromInt(36), Units: []catalog.UnitInput{
		unit("Can", "4800092450031", "55", 1),
	}},
	{Name: "Tomi Hotdog 1kg", Category: "Frozen", StockQuantity: decimal.NewFromInt(12), Units: []catalog.UnitInput{
		unit("Pack", "4800092450024", "165", 1),
	}},
	{Name: "Datu Puti Patis 150ml", Category: "Condiments", StockQuantity: decimal.NewFromInt(60), Units: []catalog.UnitInput{
		unit("Bottle", "4800024608289", "15", 1),
	}},
	{Name: "Datu Puti Soy Sauce 200ml", Category: "Condiments", StockQuantity: decimal.NewFromInt(60), Units: []catalog.UnitInput{
		unit("Bottle", "4800024608296", "18", 1),
	}},
	{Name: "Datu Puti Vinegar 200ml", Category: "Condiments", StockQuantity: decimal.NewFromInt(60), Units: []catalog.UnitInput{
		unit("Bottle", "4800024608272", "12", 1),
	}},
	{Name: "Moby Caramel Puffs", Category: "Snacks", StockQuantity: decimal.NewFromInt(240), Units: []catalog.UnitInput{
		unit("Pack", "4800194118859", "8", 1),
		unit("Box", "4800194118866", "88", 12),
	}},
}

var customerSeeds = []customers.Input{
	{Name: "Aling Nena", PhoneNumber: "09171234567", Address: "Purok 3", CreditBalance: decimal.NewFromInt(250)},
	{Name: "Mang Tonyo", PhoneNumber: "09181234567", Address: "Purok 1"},
}

// Run creates the demo catalog and customers unless products already exist.
// Everything goes through the services so opening stock and balances land in
// the ledgers.
func Run(ctx context.Context, db *gorm.DB, cat *catalog.Catalog, cust *customers.Service, log *zap.Logger) error {
	var count int64
	if err := db.WithContext(ctx).Model(&models.Product{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count products: %w", err)
	}
	if count > 0 {
		log.Info("seed skipped, catalog is not empty", zap.Int64("products", count))
		return nil
	}

	for _, p := range products {
		if _, err := cat.CreateProduct(ctx, p); err != nil {
			return fmt.Errorf("seed product %q: %w", p.Name, err)
		}
	}
	for _, c := range customerSeeds {
		if _, err := cust.Create(ctx, c); err != nil {
			return fmt.Errorf("seed customer %q: %w", c.Name, err)
		}
	}

	log.Info("demo data seeded", zap.Int("products", len(products)), zap.Int("customers", len(customerSeeds)))
	return nil
}
