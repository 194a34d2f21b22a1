// Package dbtest opens throwaway SQLite databases for package tests.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"go-pos-ledger/internal/database"
	"go-pos-ledger/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// New returns a migrated in-memory database private to t.
//
// The pool is capped at one connection: every transaction then runs alone,
// which stands in for the row locks MySQL and Postgres take.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:pos_test_%d?mode=memory&cache=shared", seq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// UnitSpec describes one unit for CreateProduct.
type UnitSpec struct {
	Name    string
	Barcode string
	Price   string
	Factor  int
}

// CreateProduct inserts a product with the given base-unit stock and units.
func CreateProduct(t testing.TB, db *gorm.DB, name string, stock int64, units ...UnitSpec) models.Product {
	t.Helper()

	p := models.Product{
		Name:              name,
		Category:          "Beverages",
		BaseUnit:          "piece",
		StockQuantity:     decimal.NewFromInt(stock),
		LowStockThreshold: decimal.NewFromInt(10),
	}
	for _, u := range units {
		kind := models.PriceRetail
		if u.Factor > 1 {
			kind = models.PriceWholesale
		}
		p.Units = append(p.Units, models.Unit{
			UnitName:         u.Name,
			Barcode:          u.Barcode,
			Price:            decimal.RequireFromString(u.Price),
			PriceType:        kind,
			ConversionFactor: u.Factor,
		})
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("create product %s: %v", name, err)
	}
	return p
}

// CreateCustomer inserts a customer with an opening balance.
func CreateCustomer(t testing.TB, db *gorm.DB, name, balance string) models.Customer {
	t.Helper()

	c := models.Customer{Name: name, CreditBalance: decimal.RequireFromString(balance)}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("create customer %s: %v", name, err)
	}
	return c
}

// Stock reads a product's quantity straight from the table.
func Stock(t testing.TB, db *gorm.DB, productID uint) decimal.Decimal {
	t.Helper()

	var p models.Product
	if err := db.Select("id", "stock_quantity").First(&p, productID).Error; err != nil {
		t.Fatalf("load product %d: %v", productID, err)
	}
	return p.StockQuantity
}

// Balance reads a customer's credit balance straight from the table.
func Balance(t testing.TB, db *gorm.DB, customerID uint) decimal.Decimal {
	t.Helper()

	var c models.Customer
	if err := db.Select("id", "credit_balance").First(&c, customerID).Error; err != nil {
		t.Fatalf("load customer %d: %v", customerID, err)
	}
	return c.CreditBalance
}

// Count returns the row count of model's table.
func Count(t testing.TB, db *gorm.DB, model any) int64 {
	t.Helper()

	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
