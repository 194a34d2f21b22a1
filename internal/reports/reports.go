// Package reports reads the append-only sale history and the current stock.
// Committed sales are never mutated, so nothing here coordinates with checkout.
package reports

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go-pos-ledger/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Range bounds a report. A zero Start or End leaves that side open.
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) apply(q *gorm.DB, column string) *gorm.DB {
	if !r.Start.IsZero() {
		q = q.Where(column+" >= ?", r.Start.UTC())
	}
	if !r.End.IsZero() {
		q = q.Where(column+" < ?", r.End.UTC())
	}
	return q
}

// TopSeller is one unit ranked by quantity sold.
type TopSeller struct {
	ProductName string          `json:"product_name"`
	UnitName    string          `json:"unit_name"`
	Sold        int64           `json:"sold"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// RecentSale is a sale header for the dashboard list.
type RecentSale struct {
	ID            uint            `json:"id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	SaleDate      time.Time       `json:"sale_date"`
	CustomerName  *string         `json:"customer_name"`
}

// SalesReport is the dashboard summary of a range.
type SalesReport struct {
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalOrders  int64           `json:"total_orders"`
	CreditIssued decimal.Decimal `json:"credit_issued"`
	TopSelling   []TopSeller     `json:"top_selling"`
	RecentSales  []RecentSale    `json:"recent_sales"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log}
}

// Sales calculates revenue, order count, the five best sellers and the ten
// most recent sales of r.
func (s *Service) Sales(ctx context.Context, r Range) (SalesReport, error) {
	db := s.db.WithContext(ctx)
	report := SalesReport{TopSelling: []TopSeller{}, RecentSales: []RecentSale{}}

	// COALESCE gives 0 instead of NULL when the range is empty
	var totals struct {
		Revenue decimal.Decimal
		Orders  int64
		Credit  decimal.Decimal
	}
	err := r.apply(db.Model(&models.Sale{}), "sale_date").
		Select("COALESCE(SUM(total_amount), 0) AS revenue, COUNT(*) AS orders, " +
			"COALESCE(SUM(CASE WHEN payment_method = 'credit' THEN total_amount ELSE 0 END), 0) AS credit").
		Scan(&totals).Error
	if err != nil {
		return SalesReport{}, fmt.Errorf("calculate revenue: %w", err)
	}
	report.TotalRevenue = totals.Revenue
	report.TotalOrders = totals.Orders
	report.CreditIssued = totals.Credit

	err = r.apply(db.Table("sale_lines"), "sales.sale_date").
		Select("products.name AS product_name, units.unit_name, SUM(sale_lines.quantity) AS sold, SUM(sale_lines.subtotal) AS revenue").
		Joins("JOIN sales ON sales.id = sale_lines.sale_id").
		Joins("JOIN units ON units.id = sale_lines.unit_id").
		Joins("JOIN products ON products.id = units.product_id").
		Group("units.id, products.name, units.unit_name").
		Order("sold DESC, revenue DESC").
		Limit(5).
		Scan(&report.TopSelling).Error
	if err != nil {
		return SalesReport{}, fmt.Errorf("fetch top selling units: %w", err)
	}

	err = r.apply(db.Table("sales"), "sales.sale_date").
		Select("sales.id, sales.total_amount, sales.payment_method, sales.sale_date, customers.name AS customer_name").
		Joins("LEFT JOIN customers ON customers.id = sales.customer_id").
		Order("sales.sale_date DESC, sales.id DESC").
		Limit(10).
		Scan(&report.RecentSales).Error
	if err != nil {
		return SalesReport{}, fmt.Errorf("fetch recent sales: %w", err)
	}

	return report, nil
}

// InventoryItem is one product row of the inventory report.
type InventoryItem struct {
	ProductID     uint            `json:"product_id"`
	Name          string          `json:"name"`
	BaseUnit      string          `json:"base_unit"`
	StockQuantity decimal.Decimal `json:"stock_quantity"`
	RetailPrice   decimal.Decimal `json:"retail_price"`
	RetailValue   decimal.Decimal `json:"retail_value"`
	LowStock      bool            `json:"low_stock"`
}

// CategoryGroup is one category of the inventory report.
type CategoryGroup struct {
	CategoryName string          `json:"category_name"`
	Items        []InventoryItem `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// InventoryReport values stock at the base-unit retail price. There is no
// cost basis, so this is not a profit or cost valuation.
type InventoryReport struct {
	Categories    []CategoryGroup `json:"categories"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	LowStockCount int             `json:"low_stock_count"`
}

// Inventory groups every product by category.
func (s *Service) Inventory(ctx context.Context) (InventoryReport, error) {
	db := s.db.WithContext(ctx)

	var products []models.Product
	if err := db.Order("name").Find(&products).Error; err != nil {
		return InventoryReport{}, fmt.Errorf("fetch inventory: %w", err)
	}

	// base-unit price per product: the first unit with factor 1
	var pieces []models.Unit
	if err := db.Where("conversion_factor = ?", 1).Order("id").Find(&pieces).Error; err != nil {
		return InventoryReport{}, fmt.Errorf("fetch base units: %w", err)
	}
	price := make(map[uint]decimal.Decimal, len(pieces))
	for _, u := range pieces {
		if _, ok := price[u.ProductID]; !ok {
			price[u.ProductID] = u.Price
		}
	}

	report := InventoryReport{Categories: []CategoryGroup{}, GrandTotal: decimal.Zero}
	grouped := make(map[string]*CategoryGroup)
	for _, p := range products {
		name := p.Category
		if name == "" {
			name = "Uncategorized"
		}
		group, ok := grouped[name]
		if !ok {
			group = &CategoryGroup{CategoryName: name, Items: []InventoryItem{}, Subtotal: decimal.Zero}
			grouped[name] = group
		}

		retail := price[p.ID]
		item := InventoryItem{
			ProductID:     p.ID,
			Name:          p.Name,
			BaseUnit:      p.BaseUnit,
			StockQuantity: p.StockQuantity,
			RetailPrice:   retail,
			RetailValue:   p.StockQuantity.Mul(retail),
			LowStock:      p.IsLowStock(),
		}
		if item.LowStock {
			report.LowStockCount++
		}

		group.Items = append(group.Items, item)
		group.Subtotal = group.Subtotal.Add(item.RetailValue)
		report.GrandTotal = report.GrandTotal.Add(item.RetailValue)
	}

	for _, g := range grouped {
		report.Categories = append(report.Categories, *g)
	}
	sort.Slice(report.Categories, func(i, j int) bool {
		return report.Categories[i].CategoryName < report.Categories[j].CategoryName
	})
	return report, nil
}
