package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Price kinds a Unit can be sold under.
const (
	PriceRetail    = "retail"
	PriceWholesale = "wholesale"
)

// Payment methods accepted at checkout. Credit posts the total to the customer's balance.
const (
	PaymentCash   = "cash"
	PaymentGCash  = "gcash"
	PaymentCredit = "credit"
)

// Stock movement kinds.
const (
	MovementSale    = "sale"
	MovementRestock = "restock"
)

// Credit entry kinds.
const (
	CreditCharge  = "charge"
	CreditPayment = "payment"
)

// MaxQuantity bounds a single cart line or restock, counted in the unit given.
const MaxQuantity = 100000

// MaxAmount is the largest value the decimal(12,2) columns hold.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// Product - The Inventory, counted in base units (e.g. pieces)
type Product struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Name              string          `gorm:"size:255;not null" json:"name"`
	Description       string          `gorm:"type:text" json:"description"`
	Category          string          `gorm:"size:100;index" json:"category"`
	ImageURL          string          `gorm:"size:255" json:"image_url"`
	BaseUnit          string          `gorm:"size:20;not null;default:piece" json:"base_unit"`
	StockQuantity     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"stock_quantity"`
	LowStockThreshold decimal.Decimal `gorm:"type:decimal(12,2);not null;default:10" json:"low_stock_threshold"`
	Version           uint            `gorm:"not null;default:0" json:"-"` // bumped on every stock write
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Units             []Unit          `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"units,omitempty"`
}

// IsLowStock reports whether the product is at or below its threshold.
func (p Product) IsLowStock() bool {
	return p.StockQuantity.LessThanOrEqual(p.LowStockThreshold)
}

// Unit - A sellable packaging of a Product with its own barcode and price
type Unit struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	ProductID        uint            `gorm:"index;not null" json:"product_id"`
	UnitName         string          `gorm:"size:50;not null" json:"unit_name"`
	Barcode          string          `gorm:"size:100;uniqueIndex;not null" json:"barcode"`
	Price            decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	PriceType        string          `gorm:"size:20;not null;index" json:"price_type"`
	ConversionFactor int             `gorm:"not null" json:"conversion_factor"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// BaseUnits converts a quantity of this unit into base units.
func (u Unit) BaseUnits(quantity int) decimal.Decimal {
	return decimal.NewFromInt(int64(quantity)).Mul(decimal.NewFromInt(int64(u.ConversionFactor)))
}

// Customer - Someone who may buy on credit (utang)
type Customer struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Name          string          `gorm:"size:150;not null;index" json:"name"`
	PhoneNumber   string          `gorm:"size:20;index" json:"phone_number"`
	Address       string          `gorm:"size:255" json:"address"`
	CreditBalance decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"credit_balance"`
	Version       uint            `gorm:"not null;default:0" json:"-"` // bumped on every balance write
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Sale - The Transaction Header. Append-only once committed.
type Sale struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	CustomerID    *uint           `gorm:"index" json:"customer_id"` // nil = walk-in
	TotalAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	AmountPaid    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount_paid"`
	ChangeDue     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"change_due"`
	PaymentMethod string          `gorm:"size:20;not null;index" json:"payment_method"`
	SaleDate      time.Time       `gorm:"not null;index" json:"sale_date"`
	CreatedAt     time.Time       `json:"created_at"`
	Lines         []SaleLine      `gorm:"foreignKey:SaleID" json:"lines"`
	Customer      *Customer       `gorm:"constraint:OnDelete:SET NULL" json:"-"`
}

// SaleLine - One cart row, priced at the moment of sale
type SaleLine struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	SaleID    uint            `gorm:"index;not null" json:"sale_id"`
	UnitID    uint            `gorm:"index;not null" json:"unit_id"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	BaseUnits decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"base_units"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"` // Snapshot of price at time of sale
	Subtotal  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	CreatedAt time.Time       `json:"created_at"`
	Unit      *Unit           `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
}

// StockMovement - Append-only history of every stock write
type StockMovement struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	ProductID uint            `gorm:"index;not null" json:"product_id"`
	Kind      string          `gorm:"size:20;not null" json:"kind"`
	Quantity  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"quantity"` // signed, base units
	Before    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"before"`
	After     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"after"`
	SaleID    *uint           `gorm:"index" json:"sale_id,omitempty"`
	Note      string          `gorm:"size:255" json:"note,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreditEntry - Append-only history of every credit balance write
type CreditEntry struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	CustomerID   uint            `gorm:"index;not null" json:"customer_id"`
	Kind         string          `gorm:"size:20;not null" json:"kind"`
	Amount       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	BalanceAfter decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"balance_after"`
	Method       string          `gorm:"size:20" json:"method,omitempty"`
	SaleID       *uint           `gorm:"index" json:"sale_id,omitempty"`
	Note         string          `gorm:"size:255" json:"note,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// All lists every model for AutoMigrate, parents first.
func All() []interface{} {
	return []interface{}{
		&Product{},
		&Unit{},
		&Customer{},
		&Sale{},
		&SaleLine{},
		&StockMovement{},
		&CreditEntry{},
	}
}
