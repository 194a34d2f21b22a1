package reports

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const exportSheet = "Sales"

var exportHeader = []interface{}{
	"Sale ID", "Date", "Payment", "Customer", "Product", "Unit", "Barcode",
	"Quantity", "Base Units", "Unit Price", "Subtotal",
}

type exportRow struct {
	SaleID        uint
	SaleDate      time.Time
	PaymentMethod string
	CustomerName  *string
	ProductName   string
	UnitName      string
	Barcode       string
	Quantity      int
	BaseUnits     decimal.Decimal
	UnitPrice     decimal.Decimal
	Subtotal      decimal.Decimal
}

// ExportSales writes every sale line of r as an XLSX workbook to w and
// returns the number of lines written.
func (s *Service) ExportSales(ctx context.Context, r Range, loc *time.Location, w io.Writer) (int, error) {
	if loc == nil {
		loc = time.Local
	}

	var rows []exportRow
	err := r.apply(s.db.WithContext(ctx).Table("sale_lines"), "sales.sale_date").
		Select("sales.id AS sale_id, sales.sale_date, sales.payment_method, customers.name AS customer_name, " +
			"products.name AS product_name, units.unit_name, units.barcode, sale_lines.quantity, " +
			"sale_lines.base_units, sale_lines.unit_price, sale_lines.subtotal").
		Joins("JOIN sales ON sales.id = sale_lines.sale_id").
		Joins("JOIN units ON units.id = sale_lines.unit_id").
		Joins("JOIN products ON products.id = units.product_id").
		Joins("LEFT JOIN customers ON customers.id = sales.customer_id").
		Order("sales.sale_date, sales.id, sale_lines.id").
		Scan(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("load sale lines for export: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return 0, fmt.Errorf("name sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return 0, fmt.Errorf("create header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return 0, fmt.Errorf("create money style: %w", err)
	}

	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	if err := f.SetRowStyle(exportSheet, 1, 1, bold); err != nil {
		return 0, fmt.Errorf("style header: %w", err)
	}

	total := decimal.Zero
	for i, row := range rows {
		customer := "Walk-in"
		if row.CustomerName != nil {
			customer = *row.CustomerName
		}
		values := []interface{}{
			row.SaleID,
			row.SaleDate.In(loc).Format("2006-01-02 15:04"),
			row.PaymentMethod,
			customer,
			row.ProductName,
			row.UnitName,
			row.Barcode,
			row.Quantity,
			row.BaseUnits.InexactFloat64(),
			row.UnitPrice.InexactFloat64(),
			row.Subtotal.InexactFloat64(),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return 0, fmt.Errorf("write row %d: %w", i+2, err)
		}
		total = total.Add(row.Subtotal)
	}

	last := len(rows) + 2
	if err := f.SetCellValue(exportSheet, fmt.Sprintf("J%d", last), "Total"); err != nil {
		return 0, err
	}
	if err := f.SetCellValue(exportSheet, fmt.Sprintf("K%d", last), total.InexactFloat64()); err != nil {
		return 0, err
	}
	if err := f.SetCellStyle(exportSheet, "J2", fmt.Sprintf("K%d", last), money); err != nil {
		return 0, fmt.Errorf("style amounts: %w", err)
	}
	if err := f.SetColWidth(exportSheet, "B", "E", 18); err != nil {
		return 0, err
	}

	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	s.log.Info("sales exported", zap.Int("lines", len(rows)))
	return len(rows), nil
}
