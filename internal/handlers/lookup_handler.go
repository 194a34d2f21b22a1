package handlers

import (
	"net/http"
	"strings"

	"go-pos-ledger/internal/apperror"

	"github.com/gin-gonic/gin"
)

// GET /api/units/lookup?barcode=
func (h *Handler) LookupUnit(c *gin.Context) {
	barcode := strings.TrimSpace(c.Query("barcode"))
	if barcode == "" {
		respondError(c, apperror.Invalid("barcode", "is required"))
		return
	}

	item, err := h.Lookup.LookupByIdentifier(c.Request.Context(), barcode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// GET /api/units/search?query=&limit=
func (h *Handler) SearchUnits(c *gin.Context) {
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		respondError(c, err)
		return
	}

	items, err := h.Lookup.Search(c.Request.Context(), c.Query("query"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": items, "count": len(items)})
}

type detectRequest struct {
	Image string `json:"image" binding:"required"`
}

// POST /api/vision/detect
// A missing or failing sidecar still answers 200 with unavailable set, so
// the scan screen can fall back to manual entry.
func (h *Handler) DetectProduct(c *gin.Context) {
	var req detectRequest
	if err := bind(c, &req); err != nil {
		respondError(c, err)
		return
	}

	res, err := h.Lookup.Detect(c.Request.Context(), req.Image)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/vision/health
func (h *Handler) VisionHealth(c *gin.Context) {
	health, err := h.Lookup.VisionHealth(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, health)
}

// GET /api/vision/products
func (h *Handler) VisionProducts(c *gin.Context) {
	info, err := h.Lookup.VisionProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": info})
}

// GET /api/vision/model
func (h *Handler) VisionModel(c *gin.Context) {
	info, err := h.Lookup.VisionModel(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": info})
}
