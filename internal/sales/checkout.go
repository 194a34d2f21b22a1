// Package sales commits checkouts and reads the append-only sale history.
package sales

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go-pos-ledger/internal/apperror"
	"go-pos-ledger/internal/catalog"
	"go-pos-ledger/internal/ledger"
	"go-pos-ledger/internal/metrics"
	"go-pos-ledger/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LineRequest is one cart row. Exactly one of UnitID and Barcode identifies
// the unit.
type LineRequest struct {
	UnitID   uint   `json:"unit_id"`
	Barcode  string `json:"barcode"`
	Quantity int    `json:"quantity" binding:"required,min=1,max=100000"`
}

// CheckoutRequest is the cart submitted at the till. The total is always
// recomputed from current unit prices; a client-side total is not accepted.
type CheckoutRequest struct {
	CustomerID    *uint           `json:"customer_id"`
	PaymentMethod string          `json:"payment_method" binding:"required,oneof=cash gcash credit"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Lines         []LineRequest   `json:"lines" binding:"required,min=1,dive"`
}

// Validate checks the request shape before anything is read from storage.
func (r *CheckoutRequest) Validate() error {
	v := &apperror.ValidationError{}

	switch r.PaymentMethod {
	case models.PaymentCash, models.PaymentGCash, models.PaymentCredit:
	default:
		v.Add("payment_method", "must be cash, gcash or credit")
	}
	if r.AmountPaid.IsNegative() {
		v.Add("amount_paid", "must not be negative")
	}
	if len(r.Lines) == 0 {
		v.Add("lines", "cart is empty")
	}
	for i := range r.Lines {
		l := &r.Lines[i]
		field := fmt.Sprintf("lines[%d]", i)
		l.Barcode = strings.TrimSpace(l.Barcode)
		switch {
		case l.Quantity <= 0:
			v.Add(field+".quantity", "must be greater than zero")
		case l.Quantity > models.MaxQuantity:
			v.Add(field+".quantity", fmt.Sprintf("must be at most %d", models.MaxQuantity))
		}
		switch {
		case l.UnitID == 0 && l.Barcode == "":
			v.Add(field, "unit_id or barcode is required")
		case l.UnitID != 0 && l.Barcode != "":
			v.Add(field, "give unit_id or barcode, not both")
		}
	}
	return v.Err()
}

// Service commits sales against the stock and credit ledgers.
type Service struct {
	db      *gorm.DB
	catalog *catalog.Catalog
	stock   *ledger.StockLedger
	credit  *ledger.CreditLedger
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewService(db *gorm.DB, cat *catalog.Catalog, stock *ledger.StockLedger, credit *ledger.CreditLedger, m *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{
		db:      db,
		catalog: cat,
		stock:   stock,
		credit:  credit,
		metrics: m,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type pricedLine struct {
	catalog.Resolved
	quantity  int
	baseUnits decimal.Decimal
	subtotal  decimal.Decimal
}

// Commit validates the cart, prices it at current unit prices and applies it
// as one unit of work: the sale and its lines, one stock deduction per
// product, and for credit sales the charge to the customer. Any failure rolls
// all of it back.
func (s *Service) Commit(ctx context.Context, req CheckoutRequest) (Detail, error) {
	detail, err := s.commit(ctx, req)
	if err != nil {
		s.metrics.CheckoutRejected(rejectReason(err))
		if apperror.IsBusiness(err) {
			s.log.Warn("checkout rejected", zap.Error(err), zap.String("payment_method", req.PaymentMethod))
		} else {
			s.log.Error("checkout failed", zap.Error(err))
		}
		return Detail{}, err
	}

	total, _ := detail.TotalAmount.Float64()
	s.metrics.SaleCommitted(detail.PaymentMethod, total)
	s.log.Info("sale committed",
		zap.Uint("sale_id", detail.ID),
		zap.String("payment_method", detail.PaymentMethod),
		zap.String("total", detail.TotalAmount.StringFixed(2)),
		zap.Int("lines", len(detail.Lines)))
	return detail, nil
}

func (s *Service) commit(ctx context.Context, req CheckoutRequest) (Detail, error) {
	if err := req.Validate(); err != nil {
		return Detail{}, err
	}

	var (
		sale         models.Sale
		lines        []pricedLine
		customerName string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// units are read inside the unit of work so an edit that drops one
		// cannot slip in between pricing and the insert
		var err error
		lines, err = price(ctx, s.catalog.WithTx(tx), req.Lines)
		if err != nil {
			return err
		}
		total := decimal.Zero
		for _, pl := range lines {
			total = total.Add(pl.subtotal)
		}
		if total.GreaterThan(models.MaxAmount) {
			return apperror.Invalid("lines", "sale total is too large")
		}

		paid, change := decimal.Zero, decimal.Zero
		if req.PaymentMethod == models.PaymentCredit {
			if req.CustomerID == nil {
				return apperror.ErrNoCustomerForCredit
			}
		} else {
			if req.AmountPaid.LessThan(total) {
				return &apperror.InsufficientPaymentError{Total: total, Paid: req.AmountPaid}
			}
			if req.AmountPaid.GreaterThan(models.MaxAmount) {
				return apperror.Invalid("amount_paid", "is too large")
			}
			paid = req.AmountPaid
			change = paid.Sub(total)
		}

		if req.CustomerID != nil {
			var c models.Customer
			err := tx.Select("id", "name").First(&c, *req.CustomerID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("customer", *req.CustomerID)
			}
			if err != nil {
				return fmt.Errorf("load customer %d: %w", *req.CustomerID, err)
			}
			customerName = c.Name
		}

		sale = models.Sale{
			CustomerID:    req.CustomerID,
			TotalAmount:   total,
			AmountPaid:    paid,
			ChangeDue:     change,
			PaymentMethod: req.PaymentMethod,
			SaleDate:      s.now(),
		}
		for _, pl := range lines {
			sale.Lines = append(sale.Lines, models.SaleLine{
				UnitID:    pl.Unit.ID,
				Quantity:  pl.quantity,
				BaseUnits: pl.baseUnits,
				UnitPrice: pl.Unit.Price,
				Subtotal:  pl.subtotal,
			})
		}
		if err := tx.Create(&sale).Error; err != nil {
			return fmt.Errorf("create sale: %w", err)
		}

		stock := s.stock.WithTx(tx)
		for _, need := range perProduct(lines) {
			_, err := stock.TryDeduct(ctx, need.productID, need.baseUnits, ledger.Ref{
				Kind:   models.MovementSale,
				SaleID: &sale.ID,
			})
			if err != nil {
				return err
			}
		}

		if req.PaymentMethod == models.PaymentCredit && total.IsPositive() {
			_, err := s.credit.WithTx(tx).Increase(ctx, *req.CustomerID, total, ledger.Ref{
				Kind:   models.CreditCharge,
				SaleID: &sale.ID,
				Method: models.PaymentCredit,
				Note:   fmt.Sprintf("sale #%d", sale.ID),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Detail{}, err
	}

	return assemble(sale, customerName, lines), nil
}

// price resolves every line at the current unit price. A line whose base
// units or subtotal would not fit a ledger column is a validation error.
func price(ctx context.Context, cat *catalog.Catalog, reqLines []LineRequest) ([]pricedLine, error) {
	lines := make([]pricedLine, 0, len(reqLines))
	for i, l := range reqLines {
		r, err := resolve(ctx, cat, l)
		if err != nil {
			var nf *apperror.NotFoundError
			if errors.As(err, &nf) {
				nf.Line = i + 1
			}
			return nil, err
		}
		pl := pricedLine{
			Resolved:  r,
			quantity:  l.Quantity,
			baseUnits: r.Unit.BaseUnits(l.Quantity),
			subtotal:  r.Unit.Price.Mul(decimal.NewFromInt(int64(l.Quantity))),
		}
		if pl.baseUnits.GreaterThan(models.MaxAmount) || pl.subtotal.GreaterThan(models.MaxAmount) {
			return nil, apperror.Invalid(fmt.Sprintf("lines[%d].quantity", i), "is too large")
		}
		lines = append(lines, pl)
	}
	return lines, nil
}

func resolve(ctx context.Context, cat *catalog.Catalog, l LineRequest) (catalog.Resolved, error) {
	if l.UnitID != 0 {
		return cat.ResolveID(ctx, l.UnitID)
	}
	return cat.Resolve(ctx, l.Barcode)
}

type productNeed struct {
	productID uint
	baseUnits decimal.Decimal
}

// perProduct sums base units of every line per product, ordered by product
// id so concurrent checkouts lock rows in the same order.
func perProduct(lines []pricedLine) []productNeed {
	sums := make(map[uint]decimal.Decimal)
	for _, pl := range lines {
		sums[pl.Product.ID] = sums[pl.Product.ID].Add(pl.baseUnits)
	}
	out := make([]productNeed, 0, len(sums))
	for id, n := range sums {
		out = append(out, productNeed{productID: id, baseUnits: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].productID < out[j].productID })
	return out
}

func assemble(sale models.Sale, customerName string, lines []pricedLine) Detail {
	d := Detail{
		ID:            sale.ID,
		CustomerID:    sale.CustomerID,
		CustomerName:  customerName,
		TotalAmount:   sale.TotalAmount,
		AmountPaid:    sale.AmountPaid,
		ChangeDue:     sale.ChangeDue,
		PaymentMethod: sale.PaymentMethod,
		SaleDate:      sale.SaleDate,
		Lines:         make([]LineDetail, 0, len(lines)),
	}
	for i, pl := range lines {
		sl := sale.Lines[i]
		d.Lines = append(d.Lines, LineDetail{
			ID:               sl.ID,
			UnitID:           pl.Unit.ID,
			ProductID:        pl.Product.ID,
			ProductName:      pl.Product.Name,
			UnitName:         pl.Unit.UnitName,
			Barcode:          pl.Unit.Barcode,
			ConversionFactor: pl.Unit.ConversionFactor,
			Quantity:         sl.Quantity,
			BaseUnits:        sl.BaseUnits,
			UnitPrice:        sl.UnitPrice,
			Subtotal:         sl.Subtotal,
		})
	}
	return d
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return "validation"
	case errors.Is(err, apperror.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperror.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, apperror.ErrInsufficientPayment):
		return "insufficient_payment"
	case errors.Is(err, apperror.ErrNoCustomerForCredit):
		return "no_customer_for_credit"
	case errors.Is(err, apperror.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
