package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GET /api/reports?start_date=&end_date=
// Without dates the report covers all time.
func (h *Handler) SalesReport(c *gin.Context) {
	r, err := h.dateRange(c)
	if err != nil {
		respondError(c, err)
		return
	}

	report, err := h.Reports.Sales(c.Request.Context(), r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GET /api/reports/inventory
func (h *Handler) InventoryReport(c *gin.Context) {
	report, err := h.Reports.Inventory(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GET /api/reports/sales/export?start_date=&end_date=
func (h *Handler) ExportSales(c *gin.Context) {
	r, err := h.dateRange(c)
	if err != nil {
		respondError(c, err)
		return
	}

	// build in memory so a failure can still be reported as JSON
	var buf bytes.Buffer
	if _, err := h.Reports.ExportSales(c.Request.Context(), r, h.location(), &buf); err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("sales_%s.xlsx", time.Now().In(h.location()).Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
