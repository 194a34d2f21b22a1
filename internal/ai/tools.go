package ai

import (
	"context"
	"fmt"
	"time"

	"go-pos-ledger/internal/catalog"
	"go-pos-ledger/internal/customers"
	"go-pos-ledger/internal/reports"

	"github.com/google/generative-ai-go/genai"
	"github.com/shopspring/decimal"
)

// Tools executes the function calls the model is allowed to make.
type Tools struct {
	Catalog   *catalog.Catalog
	Reports   *reports.Service
	Customers *customers.Service
	Location  *time.Location
}

// Declarations describes the tools to the model.
func (t *Tools) Declarations() []*genai.Tool {
	return []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "check_inventory",
				Description: "Get the full inventory: every product with its stock in base units and every sellable unit (barcode, unit name, price, conversion factor, unit id). Use this to find ANY product or unit detail.",
			},
			{
				Name:        "update_unit_price",
				Description: "Update the shelf price of one sellable unit using its unit id",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"unit_id":   {Type: genai.TypeInteger, Description: "ID of the unit (from check_inventory)"},
						"new_price": {Type: genai.TypeNumber, Description: "New price"},
					},
					Required: []string{"unit_id", "new_price"},
				},
			},
			{
				Name:        "get_sales_report",
				Description: "Get revenue, order count, credit issued and best sellers for a date range.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"start_date": {Type: genai.TypeString, Description: "Start date (YYYY-MM-DD)"},
						"end_date":   {Type: genai.TypeString, Description: "End date (YYYY-MM-DD), inclusive"},
					},
					Required: []string{"start_date", "end_date"},
				},
			},
			{
				Name:        "get_customer_balance",
				Description: "Find customers by name or phone and return their outstanding credit (utang) balance.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"query": {Type: genai.TypeString, Description: "Part of the customer's name or phone number"},
					},
					Required: []string{"query"},
				},
			},
		},
	}}
}

// Call runs one tool. Errors are returned to the model as a status, not
// raised, so it can explain them to the user.
func (t *Tools) Call(ctx context.Context, name string, args map[string]any) map[string]any {
	var (
		out map[string]any
		err error
	)
	switch name {
	case "check_inventory":
		out, err = t.checkInventory(ctx)
	case "update_unit_price":
		out, err = t.updateUnitPrice(ctx, args)
	case "get_sales_report":
		out, err = t.salesReport(ctx, args)
	case "get_customer_balance":
		out, err = t.customerBalance(ctx, args)
	default:
		err = fmt.Errorf("unknown tool %q", name)
	}
	if err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	out["status"] = "ok"
	return out
}

type inventoryUnit struct {
	UnitID           uint    `json:"unit_id"`
	UnitName         string  `json:"unit_name"`
	Barcode          string  `json:"barcode"`
	Price            float64 `json:"price"`
	PriceType        string  `json:"price_type"`
	ConversionFactor int     `json:"conversion_factor"`
}

type inventoryProduct struct {
	ID       uint            `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Stock    float64         `json:"stock_base_units"`
	LowStock bool            `json:"low_stock"`
	Units    []inventoryUnit `json:"units"`
}

func (t *Tools) checkInventory(ctx context.Context) (map[string]any, error) {
	products, err := t.Catalog.ListProducts(ctx, catalog.ProductFilter{})
	if err != nil {
		return nil, err
	}
	list := make([]inventoryProduct, 0, len(products))
	for _, p := range products {
		ip := inventoryProduct{
			ID:       p.ID,
			Name:     p.Name,
			Category: p.Category,
			Stock:    p.StockQuantity.InexactFloat64(),
			LowStock: p.IsLowStock(),
		}
		for _, u := range p.Units {
			ip.Units = append(ip.Units, inventoryUnit{
				UnitID:           u.ID,
				UnitName:         u.UnitName,
				Barcode:          u.Barcode,
				Price:            u.Price.InexactFloat64(),
				PriceType:        u.PriceType,
				ConversionFactor: u.ConversionFactor,
			})
		}
		list = append(list, ip)
	}
	return map[string]any{"inventory": list}, nil
}

func (t *Tools) updateUnitPrice(ctx context.Context, args map[string]any) (map[string]any, error) {
	unitID, ok := args["unit_id"].(float64)
	if !ok || unitID <= 0 {
		return nil, fmt.Errorf("unit_id is required")
	}
	newPrice, ok := args["new_price"].(float64)
	if !ok {
		return nil, fmt.Errorf("new_price is required")
	}

	unit, err := t.Catalog.UpdateUnitPrice(ctx, uint(unitID), decimal.NewFromFloat(newPrice).Round(2))
	if err != nil {
		return nil, err
	}
	return map[string]any{"unit_id": unit.ID, "unit_name": unit.UnitName, "new_price": unit.Price.InexactFloat64()}, nil
}

func (t *Tools) salesReport(ctx context.Context, args map[string]any) (map[string]any, error) {
	startStr, _ := args["start_date"].(string)
	endStr, _ := args["end_date"].(string)

	loc := t.Location
	if loc == nil {
		loc = time.Local
	}
	start, err1 := time.ParseInLocation("2006-01-02", startStr, loc)
	end, err2 := time.ParseInLocation("2006-01-02", endStr, loc)
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("dates must be in YYYY-MM-DD format")
	}

	report, err := t.Reports.Sales(ctx, reports.Range{Start: start, End: end.AddDate(0, 0, 1)})
	if err != nil {
		return nil, err
	}

	top := make([]map[string]any, 0, len(report.TopSelling))
	for _, s := range report.TopSelling {
		top = append(top, map[string]any{
			"product": s.ProductName,
			"unit":    s.UnitName,
			"sold":    s.Sold,
			"revenue": s.Revenue.InexactFloat64(),
		})
	}
	return map[string]any{
		"revenue":       report.TotalRevenue.InexactFloat64(),
		"sales_count":   report.TotalOrders,
		"credit_issued": report.CreditIssued.InexactFloat64(),
		"top_selling":   top,
	}, nil
}

func (t *Tools) customerBalance(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	found, err := t.Customers.List(ctx, query)
	if err != nil {
		return nil, err
	}

	list := make([]map[string]any, 0, len(found))
	for _, c := range found {
		list = append(list, map[string]any{
			"id":             c.ID,
			"name":           c.Name,
			"phone_number":   c.PhoneNumber,
			"credit_balance": c.CreditBalance.InexactFloat64(),
		})
	}
	return map[string]any{"customers": list}, nil
}
