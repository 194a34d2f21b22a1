package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go-pos-ledger/internal/apperror"
	"go-pos-ledger/internal/catalog"
	"go-pos-ledger/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GET /api/products?category=&low_stock=true
func (h *Handler) ListProducts(c *gin.Context) {
	filter := catalog.ProductFilter{
		Category:     c.Query("category"),
		LowStockOnly: c.Query("low_stock") == "true",
	}

	products, err := h.Catalog.ListProducts(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// GET /api/products/:id
func (h *Handler) GetProduct(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	product, err := h.Catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// POST /api/products
func (h *Handler) CreateProduct(c *gin.Context) {
	var in catalog.ProductInput
	if err := bind(c, &in); err != nil {
		respondError(c, err)
		return
	}

	product, err := h.Catalog.CreateProduct(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// PUT /api/products/:id
// Stock is not editable here; it moves through restocks and sales.
func (h *Handler) UpdateProduct(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var in catalog.ProductInput
	if err := bind(c, &in); err != nil {
		respondError(c, err)
		return
	}

	product, err := h.Catalog.UpdateProduct(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product updated successfully", "product": product})
}

// DELETE /api/products/:id
func (h *Handler) DeleteProduct(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.Catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
}

type restockRequest struct {
	Quantity int    `json:"quantity" binding:"required,min=1,max=100000"`
	UnitID   *uint  `json:"unit_id"`
	Note     string `json:"note" binding:"max=255"`
}

// POST /api/products/:id/restock
func (h *Handler) RestockProduct(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req restockRequest
	if err := bind(c, &req); err != nil {
		respondError(c, err)
		return
	}

	movement, err := h.Catalog.Restock(c.Request.Context(), id, req.Quantity, req.UnitID, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, movement)
}

// GET /api/products/:id/movements?limit=
func (h *Handler) ProductMovements(c *gin.Context) {
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

	movements, err := h.Catalog.Movements(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, movements)
}

type priceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// PUT /api/units/:id/price
func (h *Handler) UpdateUnitPrice(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req priceRequest
	if err := bind(c, &req); err != nil {
		respondError(c, err)
		return
	}

	unit, err := h.Catalog.UpdateUnitPrice(c.Request.Context(), id, req.Price)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, unit)
}

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true}

// POST /api/upload (multipart field "file")
func (h *Handler) UploadImage(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		respondError(c, apperror.Invalid("file", "no file uploaded"))
		return
	}

	name := filepath.Base(file.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	if !imageExtensions[ext] {
		respondError(c, apperror.Invalid("file", "must be a jpg, png, webp or gif image"))
		return
	}

	// e.g. "1767890123_afritada.jpg"
	filename := fmt.Sprintf("%d_%s", time.Now().Unix(), strings.ReplaceAll(name, " ", "_"))
	if err := c.SaveUploadedFile(file, filepath.Join(h.UploadDir, filename)); err != nil {
		respondError(c, fmt.Errorf("save upload: %w", err))
		return
	}

	url := strings.TrimRight(h.BaseURL, "/") + "/uploads/" + filename
	logger.FromGin(c).Info("image uploaded", zap.String("url", url))
	c.JSON(http.StatusOK, gin.H{
		"message": "File uploaded successfully",
		"url":     url,
	})
}
