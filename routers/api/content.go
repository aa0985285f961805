package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// POST /v1/api/scrape-website
func (h *Handler) ScrapeWebsite(c *gin.Context) {
	var req struct {
		URL       string `json:"url"`
		ProjectID string `json:"projectId"`
	}
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.Extractor.Extract(c.Request.Context(), userID(c), req.URL, req.ProjectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": out})
}
