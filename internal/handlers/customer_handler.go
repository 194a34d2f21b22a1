package handlers

import (
	"net/http"

	"go-pos-ledger/internal/customers"

	"github.com/gin-gonic/gin"
)

// GET /api/customers?query=
func (h *Handler) ListCustomers(c *gin.Context) {
	list, err := h.Customers.List(c.Request.Context(), c.Query("query"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GET /api/customers/:id
func (h *Handler) GetCustomer(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	customer, err := h.Customers.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

// POST /api/customers
func (h *Handler) CreateCustomer(c *gin.Context) {
	var in customers.Input
	if err := bind(c, &in); err != nil {
		respondError(c, err)
		return
	}

	customer, err := h.Customers.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

// PUT /api/customers/:id
func (h *Handler) UpdateCustomer(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var in customers.Input
	if err := bind(c, &in); err != nil {
		respondError(c, err)
		return
	}

	customer, err := h.Customers.Update(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

// DELETE /api/customers/:id
func (h *Handler) DeleteCustomer(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.Customers.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Customer deleted successfully"})
}

// POST /api/customers/:id/payment
func (h *Handler) RecordPayment(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req customers.PaymentRequest
	if err := bind(c, &req); err != nil {
		respondError(c, err)
		return
	}

	entry, err := h.Customers.Pay(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Payment recorded",
		"entry":       entry,
		"new_balance": entry.BalanceAfter,
	})
}

// GET /api/customers/:id/ledger?limit=
func (h *Handler) CustomerLedger(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	limit, err := intQuery(c, "limit", 50)
	if err != nil {
		respondError(c, err)
		return
	}

	entries, err := h.Customers.Ledger(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
