// Package handlers is the JSON API over the POS services.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go-pos-ledger/internal/ai"
	"go-pos-ledger/internal/apperror"
	"go-pos-ledger/internal/catalog"
	"go-pos-ledger/internal/customers"
	"go-pos-ledger/internal/logger"
	"go-pos-ledger/internal/lookup"
	"go-pos-ledger/internal/reports"
	"go-pos-ledger/internal/sales"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Handler holds the services behind the routes.
type Handler struct {
	Catalog   *catalog.Catalog
	Lookup    *lookup.Service
	Sales     *sales.Service
	Customers *customers.Service
	Reports   *reports.Service
	Assistant *ai.Agent

	BaseURL   string         // prefix of uploaded image URLs
	UploadDir string         // where product images are written
	Location  *time.Location // store time zone for date parameters
}

// Register mounts every route under /api.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")

	units := api.Group("/units")
	units.GET("/lookup", h.LookupUnit)
	units.GET("/search", h.SearchUnits)
	units.PUT("/:id/price", h.UpdateUnitPrice)

	vision := api.Group("/vision")
	vision.POST("/detect", h.DetectProduct)
	vision.GET("/health", h.VisionHealth)
	vision.GET("/products", h.VisionProducts)
	vision.GET("/model", h.VisionModel)

	salesGroup := api.Group("/sales")
	salesGroup.POST("", h.Checkout)
	salesGroup.GET("", h.ListSales)
	salesGroup.GET("/daily-summary", h.DailySummary)
	salesGroup.GET("/:id", h.GetSale)

	products := api.Group("/products")
	products.GET("", h.ListProducts)
	products.POST("", h.CreateProduct)
	products.GET("/:id", h.GetProduct)
	products.PUT("/:id", h.UpdateProduct)
	products.DELETE("/:id", h.DeleteProduct)
	products.POST("/:id/restock", h.RestockProduct)
	products.GET("/:id/movements", h.ProductMovements)
	api.POST("/upload", h.UploadImage)

	cust := api.Group("/customers")
	cust.GET("", h.ListCustomers)
	cust.POST("", h.CreateCustomer)
	cust.GET("/:id", h.GetCustomer)
	cust.PUT("/:id", h.UpdateCustomer)
	cust.DELETE("/:id", h.DeleteCustomer)
	cust.POST("/:id/payment", h.RecordPayment)
	cust.GET("/:id/ledger", h.CustomerLedger)

	rep := api.Group("/reports")
	rep.GET("", h.SalesReport)
	rep.GET("/inventory", h.InventoryReport)
	rep.GET("/sales/export", h.ExportSales)

	api.POST("/ask", h.Ask)
}

func (h *Handler) location() *time.Location {
	if h.Location == nil {
		return time.Local
	}
	return h.Location
}

// statusOf maps the error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrValidation),
		errors.Is(err, apperror.ErrInvalidAmount),
		errors.Is(err, apperror.ErrInsufficientPayment),
		errors.Is(err, apperror.ErrNoCustomerForCredit):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperror.ErrExceedsBalance):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrInsufficientStock),
		errors.Is(err, apperror.ErrConflict),
		errors.Is(err, apperror.ErrInUse):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrCollaboratorUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": ...} plus whatever detail the typed
// error carries. Unknown errors are logged and hidden behind a generic message.
func respondError(c *gin.Context, err error) {
	status := statusOf(err)
	log := logger.FromGin(c)

	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	if status == http.StatusNotFound {
		log.Debug("not found", zap.Error(err))
	}

	body := gin.H{"error": err.Error()}

	var (
		verr  *apperror.ValidationError
		nf    *apperror.NotFoundError
		stock *apperror.InsufficientStockError
		pay   *apperror.InsufficientPaymentError
		bal   *apperror.ExceedsBalanceError
	)
	switch {
	case errors.As(err, &verr):
		body["fields"] = verr.Fields
	case errors.As(err, &nf):
		body["entity"] = nf.Entity
		if nf.Line > 0 {
			body["line"] = nf.Line
		}
	case errors.As(err, &stock):
		body["product_id"] = stock.ProductID
		body["product_name"] = stock.ProductName
		body["requested"] = stock.Requested
		body["available"] = stock.Available
		body["shortfall"] = stock.Shortfall()
	case errors.As(err, &pay):
		body["total"] = pay.Total
		body["amount_paid"] = pay.Paid
	case errors.As(err, &bal):
		body["balance"] = bal.Balance
	}
	c.JSON(status, body)
}

// bind decodes the JSON body. Binding-tag failures become field errors so
// the client sees the same shape as service-side validation.
func bind(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return bindError(err)
	}
	return nil
}

func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Invalid("body", "invalid JSON: "+err.Error())
	}

	out := &apperror.ValidationError{}
	for _, fe := range verrs {
		out.Add(fieldPath(fe), tagMessage(fe))
	}
	return out
}

// fieldPath turns "CheckoutRequest.Lines[0].Quantity" into "lines[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	parts := strings.Split(ns, ".")
	for i, p := range parts {
		parts[i] = toSnake(p)
	}
	return strings.Join(parts, ".")
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if prev := s[max(i-1, 0)]; i > 0 && (prev < 'A' || prev > 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind().String() == "slice" {
			return fmt.Sprintf("must have at least %s item(s)", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind().String() == "string" {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func idParam(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.Invalid(name, "must be a positive integer")
	}
	return uint(id), nil
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.Invalid(name, "must be an integer")
	}
	return n, nil
}

// dateQuery parses a YYYY-MM-DD parameter as midnight in the store's zone.
func (h *Handler) dateQuery(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, h.location())
	if err != nil {
		return time.Time{}, apperror.Invalid(name, "must be a date in YYYY-MM-DD format")
	}
	return t, nil
}

// dateRange reads start_date and end_date. end_date is inclusive, so the
// returned End is the following midnight.
func (h *Handler) dateRange(c *gin.Context) (reports.Range, error) {
	start, err := h.dateQuery(c, "start_date")
	if err != nil {
		return reports.Range{}, err
	}
	end, err := h.dateQuery(c, "end_date")
	if err != nil {
		return reports.Range{}, err
	}
	if !end.IsZero() {
		end = end.AddDate(0, 0, 1)
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return reports.Range{}, apperror.Invalid("end_date", "must not be before start_date")
	}
	return reports.Range{Start: start, End: end}, nil
}
