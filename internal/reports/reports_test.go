package reports

import (
	"bytes"
	"context"
	"testing"
	"time"

	"go-pos-ledger/internal/catalog"
	"go-pos-ledger/internal/config"
	"go-pos-ledger/internal/database/dbtest"
	"go-pos-ledger/internal/ledger"
	"go-pos-ledger/internal/models"
	"go-pos-ledger/internal/sales"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func seedSales(t *testing.T) *gorm.DB {
	t.Helper()
	db := dbtest.New(t)
	stock := ledger.NewStockLedger(db)
	cat := catalog.New(db, stock, config.CatalogConfig{}, zap.NewNop())
	svc := sales.NewService(db, cat, stock, ledger.NewCreditLedger(db), nil, zap.NewNop())

	dbtest.CreateProduct(t, db, "Cola", 480,
		dbtest.UnitSpec{Name: "Piece", Barcode: "COLA-1", Price: "55", Factor: 1},
		dbtest.UnitSpec{Name: "Case", Barcode: "COLA-24", Price: "1200", Factor: 24})
	chips := dbtest.CreateProduct(t, db, "Chips", 8,
		dbtest.UnitSpec{Name: "Pack", Barcode: "CHIPS-1", Price: "20", Factor: 1})
	db.Model(&models.Product{}).Where("id = ?", chips.ID).Update("category", "Snacks")
	c := dbtest.CreateCustomer(t, db, "Aling Nena", "0")

	reqs := []sales.CheckoutRequest{
		{PaymentMethod: models.PaymentCash, AmountPaid: decimal.NewFromInt(200), Lines: []sales.LineRequest{{Barcode: "COLA-1", Quantity: 3}}},
		{PaymentMethod: models.PaymentCash, AmountPaid: decimal.NewFromInt(100), Lines: []sales.LineRequest{{Barcode: "COLA-1", Quantity: 1}, {Barcode: "CHIPS-1", Quantity: 2}}},
		{CustomerID: &c.ID, PaymentMethod: models.PaymentCredit, Lines: []sales.LineRequest{{Barcode: "COLA-24", Quantity: 1}}},
	}
	for _, r := range reqs {
		if _, err := svc.Commit(context.Background(), r); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}
	return db
}

func TestSalesReport(t *testing.T) {
	db := seedSales(t)
	svc := NewService(db, zap.NewNop())

	got, err := svc.Sales(context.Background(), Range{})
	if err != nil {
		t.Fatalf("Sales: %v", err)
	}
	if got.TotalOrders != 3 || !got.TotalRevenue.Equal(decimal.NewFromInt(1460)) || !got.CreditIssued.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("totals = %d / %s / %s", got.TotalOrders, got.TotalRevenue, got.CreditIssued)
	}
	if len(got.TopSelling) != 3 || got.TopSelling[0].UnitName != "Piece" || got.TopSelling[0].Sold != 4 {
		t.Fatalf("top selling = %+v", got.TopSelling)
	}
	if len(got.RecentSales) != 3 || got.RecentSales[0].CustomerName == nil || *got.RecentSales[0].CustomerName != "Aling Nena" {
		t.Fatalf("recent = %+v", got.RecentSales)
	}

	future := time.Now().Add(24 * time.Hour)
	empty, err := svc.Sales(context.Background(), Range{Start: future})
	if err != nil || empty.TotalOrders != 0 || !empty.TotalRevenue.IsZero() {
		t.Fatalf("empty range = %+v, %v", empty, err)
	}
}

func TestInventoryReport(t *testing.T) {
	db := seedSales(t)

	got, err := NewService(db, zap.NewNop()).Inventory(context.Background())
	if err != nil {
		t.Fatalf("Inventory: %v", err)
	}
	if len(got.Categories) != 2 || got.Categories[0].CategoryName != "Beverages" || got.Categories[1].CategoryName != "Snacks" {
		t.Fatalf("categories = %+v", got.Categories)
	}

	cola := got.Categories[0].Items[0]
	// 480 - 3 - 1 - 24 pieces left at 55 each
	if !cola.StockQuantity.Equal(decimal.NewFromInt(452)) || !cola.RetailValue.Equal(decimal.NewFromInt(452*55)) {
		t.Fatalf("cola = %+v", cola)
	}
	chips := got.Categories[1].Items[0]
	if !chips.LowStock || got.LowStockCount != 1 {
		t.Fatalf("chips = %+v, low stock count %d", chips, got.LowStockCount)
	}
	if !got.GrandTotal.Equal(decimal.NewFromInt(452*55 + 6*20)) {
		t.Fatalf("grand total = %s", got.GrandTotal)
	}
}

func TestExportSales(t *testing.T) {
	db := seedSales(t)

	var buf bytes.Buffer
	n, err := NewService(db, zap.NewNop()).ExportSales(context.Background(), Range{}, time.UTC, &buf)
	if err != nil {
		t.Fatalf("ExportSales: %v", err)
	}
	if n != 4 {
		t.Fatalf("lines = %d, want 4", n)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 6 {
		t.Fatalf("rows = %d, want header + 4 lines + total", len(rows))
	}
	if rows[0][0] != "Sale ID" || rows[1][3] != "Walk-in" || rows[4][3] != "Aling Nena" {
		t.Fatalf("rows = %v", rows)
	}
	if rows[5][9] != "Total" {
		t.Fatalf("total row = %v", rows[5])
	}
}
