package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type askRequest struct {
	Message string `json:"message" binding:"required,max=2000"`
}

// POST /api/ask
// Answers 503 when no Gemini key is configured.
func (h *Handler) Ask(c *gin.Context) {
	var req askRequest
	if err := bind(c, &req); err != nil {
		respondError(c, err)
		return
	}

	reply, err := h.Assistant.Ask(c.Request.Context(), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}
