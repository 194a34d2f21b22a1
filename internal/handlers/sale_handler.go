package handlers

import (
	"net/http"
	"time"

	"go-pos-ledger/internal/apperror"
	"go-pos-ledger/internal/sales"

	"github.com/gin-gonic/gin"
)

// POST /api/sales
func (h *Handler) Checkout(c *gin.Context) {
	var req sales.CheckoutRequest
	if err := bind(c, &req); err != nil {
		respondError(c, err)
		return
	}

	sale, err := h.Sales.Commit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

// GET /api/sales?start_date=&end_date=&customer_id=&page=&per_page=
func (h *Handler) ListSales(c *gin.Context) {
	r, err := h.dateRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	page, err := intQuery(c, "page", 1)
	if err != nil {
		respondError(c, err)
		return
	}
	perPage, err := intQuery(c, "per_page", 20)
	if err != nil {
		respondError(c, err)
		return
	}

	f := sales.Filter{Start: r.Start, End: r.End, Page: page, PerPage: perPage}
	if c.Query("customer_id") != "" {
		id, err := intQuery(c, "customer_id", 0)
		if err != nil || id <= 0 {
			respondError(c, apperror.Invalid("customer_id", "must be a positive integer"))
			return
		}
		customerID := uint(id)
		f.CustomerID = &customerID
	}

	result, err := h.Sales.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GET /api/sales/daily-summary?date=
func (h *Handler) DailySummary(c *gin.Context) {
	day, err := h.dateQuery(c, "date")
	if err != nil {
		respondError(c, err)
		return
	}
	if day.IsZero() {
		day = time.Now().In(h.location())
	}

	summary, err := h.Sales.DailySummary(c.Request.Context(), day)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GET /api/sales/:id
func (h *Handler) GetSale(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	sale, err := h.Sales.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}
