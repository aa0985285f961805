package api

import (
	"net/http"

	"SceneForge-server/service"

	"github.com/gin-gonic/gin"
)

// The generators below block until the provider finishes, so their routes
// need a server write timeout longer than the slowest polling ceiling.

func (h *Handler) GeneratePromptVideo(c *gin.Context) {
	var req service.PromptVideoRequest
	if !bindJSON(c, &req) {
		return
	}
	req.UserID = userID(c)
	res, err := h.Generators.PromptVideo(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) CreateExplainerVideo(c *gin.Context) {
	var req service.ExplainerRequest
	if !bindJSON(c, &req) {
		return
	}
	req.UserID = userID(c)
	res, err := h.Generators.ExplainerVideo(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GenerateUGCVideo(c *gin.Context) {
	var req service.UGCRequest
	if !bindJSON(c, &req) {
		return
	}
	req.UserID = userID(c)
	res, err := h.Generators.UGCVideo(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) CloneVideoStyle(c *gin.Context) {
	var req service.CloneStyleRequest
	if !bindJSON(c, &req) {
		return
	}
	req.UserID = userID(c)
	res, err := h.Generators.CloneStyle(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /v1/api/generate-voiceover
func (h *Handler) GenerateVoiceover(c *gin.Context) {
	var req struct {
		Script     string `json:"script"`
		VoiceStyle string `json:"voiceStyle"`
		ProjectID  string `json:"projectId"`
	}
	if !bindJSON(c, &req) {
		return
	}
	url, err := h.Voiceover.Generate(c.Request.Context(), req.Script, req.VoiceStyle, req.ProjectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "voiceoverUrl": url, "voiceId": service.VoiceIDFor(req.VoiceStyle)})
}
