package sales

import (
	"context"
	"fmt"
	"time"

	"go-pos-ledger/internal/apperror"
	"go-pos-ledger/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Detail is a committed sale with its lines and the unit and product they
// refer to, ready for a receipt.
type Detail struct {
	ID            uint            `json:"id"`
	CustomerID    *uint           `json:"customer_id"`
	CustomerName  string          `json:"customer_name,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	ChangeDue     decimal.Decimal `json:"change_due"`
	PaymentMethod string          `json:"payment_method"`
	SaleDate      time.Time       `json:"sale_date"`
	Lines         []LineDetail    `json:"lines"`
}

type LineDetail struct {
	ID               uint            `json:"id"`
	UnitID           uint            `json:"unit_id"`
	ProductID        uint            `json:"product_id"`
	ProductName      string          `json:"product_name"`
	UnitName         string          `json:"unit_name"`
	Barcode          string          `json:"barcode"`
	ConversionFactor int             `json:"conversion_factor"`
	Quantity         int             `json:"quantity"`
	BaseUnits        decimal.Decimal `json:"base_units"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Subtotal         decimal.Decimal `json:"subtotal"`
}

// Filter narrows List. Zero values mean no bound.
type Filter struct {
	Start      time.Time
	End        time.Time
	CustomerID *uint
	Page       int
	PerPage    int
}

// Page is one page of sale history, newest first.
type Page struct {
	Sales   []Detail `json:"sales"`
	Total   int64    `json:"total"`
	Page    int      `json:"page"`
	PerPage int      `json:"per_page"`
}

const maxPerPage = 100

type headerRow struct {
	ID            uint
	CustomerID    *uint
	CustomerName  *string
	TotalAmount   decimal.Decimal
	AmountPaid    decimal.Decimal
	ChangeDue     decimal.Decimal
	PaymentMethod string
	SaleDate      time.Time
}

type lineRow struct {
	ID               uint
	SaleID           uint
	UnitID           uint
	ProductID        uint
	ProductName      string
	UnitName         string
	Barcode          string
	ConversionFactor int
	Quantity         int
	BaseUnits        decimal.Decimal
	UnitPrice        decimal.Decimal
	Subtotal         decimal.Decimal
}

func (s *Service) headers(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("sales").
		Select("sales.id, sales.customer_id, customers.name AS customer_name, sales.total_amount, " +
			"sales.amount_paid, sales.change_due, sales.payment_method, sales.sale_date").
		Joins("LEFT JOIN customers ON customers.id = sales.customer_id")
}

func (s *Service) lines(ctx context.Context, saleIDs []uint) (map[uint][]LineDetail, error) {
	var rows []lineRow
	err := s.db.WithContext(ctx).
		Table("sale_lines").
		Select("sale_lines.id, sale_lines.sale_id, sale_lines.unit_id, units.product_id, products.name AS product_name, " +
			"units.unit_name, units.barcode, units.conversion_factor, sale_lines.quantity, sale_lines.base_units, " +
			"sale_lines.unit_price, sale_lines.subtotal").
		Joins("JOIN units ON units.id = sale_lines.unit_id").
		Joins("JOIN products ON products.id = units.product_id").
		Where("sale_lines.sale_id IN ?", saleIDs).
		Order("sale_lines.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load sale lines: %w", err)
	}

	out := make(map[uint][]LineDetail, len(saleIDs))
	for _, r := range rows {
		out[r.SaleID] = append(out[r.SaleID], LineDetail{
			ID:               r.ID,
			UnitID:           r.UnitID,
			ProductID:        r.ProductID,
			ProductName:      r.ProductName,
			UnitName:         r.UnitName,
			Barcode:          r.Barcode,
			ConversionFactor: r.ConversionFactor,
			Quantity:         r.Quantity,
			BaseUnits:        r.BaseUnits,
			UnitPrice:        r.UnitPrice,
			Subtotal:         r.Subtotal,
		})
	}
	return out, nil
}

func (s *Service) attach(ctx context.Context, rows []headerRow) ([]Detail, error) {
	if len(rows) == 0 {
		return []Detail{}, nil
	}
	ids := make([]uint, len(rows))
	for i, h := range rows {
		ids[i] = h.ID
	}
	byID, err := s.lines(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Detail, 0, len(rows))
	for _, h := range rows {
		d := Detail{
			ID:            h.ID,
			CustomerID:    h.CustomerID,
			TotalAmount:   h.TotalAmount,
			AmountPaid:    h.AmountPaid,
			ChangeDue:     h.ChangeDue,
			PaymentMethod: h.PaymentMethod,
			SaleDate:      h.SaleDate,
			Lines:         byID[h.ID],
		}
		if h.CustomerName != nil {
			d.CustomerName = *h.CustomerName
		}
		if d.Lines == nil {
			d.Lines = []LineDetail{}
		}
		out = append(out, d)
	}
	return out, nil
}

// Get loads one committed sale.
func (s *Service) Get(ctx context.Context, saleID uint) (Detail, error) {
	var rows []headerRow
	if err := s.headers(ctx).Where("sales.id = ?", saleID).Limit(1).Scan(&rows).Error; err != nil {
		return Detail{}, fmt.Errorf("load sale %d: %w", saleID, err)
	}
	if len(rows) == 0 {
		return Detail{}, apperror.NotFound("sale", saleID)
	}
	out, err := s.attach(ctx, rows)
	if err != nil {
		return Detail{}, err
	}
	return out[0], nil
}

// List pages through sale history, newest first.
func (s *Service) List(ctx context.Context, f Filter) (Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = 20
	}
	if f.PerPage > maxPerPage {
		f.PerPage = maxPerPage
	}

	scope := func(q *gorm.DB) *gorm.DB {
		if !f.Start.IsZero() {
			q = q.Where("sales.sale_date >= ?", f.Start.UTC())
		}
		if !f.End.IsZero() {
			q = q.Where("sales.sale_date < ?", f.End.UTC())
		}
		if f.CustomerID != nil {
			q = q.Where("sales.customer_id = ?", *f.CustomerID)
		}
		return q
	}

	page := Page{Page: f.Page, PerPage: f.PerPage}
	if err := scope(s.db.WithContext(ctx).Model(&models.Sale{})).Count(&page.Total).Error; err != nil {
		return Page{}, fmt.Errorf("count sales: %w", err)
	}

	var rows []headerRow
	err := scope(s.headers(ctx)).
		Order("sales.sale_date DESC, sales.id DESC").
		Offset((f.Page - 1) * f.PerPage).
		Limit(f.PerPage).
		Scan(&rows).Error
	if err != nil {
		return Page{}, fmt.Errorf("list sales: %w", err)
	}

	page.Sales, err = s.attach(ctx, rows)
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

// MethodTotal is the takings of one payment method.
type MethodTotal struct {
	Count int64           `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// DailySummary is the till summary for one calendar day.
type DailySummary struct {
	Date     string                 `json:"date"`
	Count    int64                  `json:"count"`
	Total    decimal.Decimal        `json:"total"`
	ByMethod map[string]MethodTotal `json:"by_method"`
}

// DailySummary totals the sales of day, taken in day's location.
func (s *Service) DailySummary(ctx context.Context, day time.Time) (DailySummary, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	var rows []struct {
		PaymentMethod string
		Count         int64
		Total         decimal.Decimal
	}
	err := s.db.WithContext(ctx).
		Model(&models.Sale{}).
		Select("payment_method, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS total").
		Where("sale_date >= ? AND sale_date < ?", start.UTC(), end.UTC()).
		Group("payment_method").
		Scan(&rows).Error
	if err != nil {
		return DailySummary{}, fmt.Errorf("summarise sales of %s: %w", start.Format("2006-01-02"), err)
	}

	out := DailySummary{
		Date:     start.Format("2006-01-02"),
		Total:    decimal.Zero,
		ByMethod: make(map[string]MethodTotal, 3),
	}
	for _, m := range []string{models.PaymentCash, models.PaymentGCash, models.PaymentCredit} {
		out.ByMethod[m] = MethodTotal{Total: decimal.Zero}
	}
	for _, r := range rows {
		out.Count += r.Count
		out.Total = out.Total.Add(r.Total)
		out.ByMethod[r.PaymentMethod] = MethodTotal{Count: r.Count, Total: r.Total}
	}
	return out, nil
}
