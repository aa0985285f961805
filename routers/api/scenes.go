package api

import (
	"net/http"
	"strings"

	"SceneForge-server/models"
	"SceneForge-server/service"

	"github.com/gin-gonic/gin"
)

// POST /v1/api/generate-scenes
func (h *Handler) GenerateScenes(c *gin.Context) {
	var req struct {
		Prompt string `json:"prompt"`
		Script string `json:"script"`
	}
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.Planner.Plan(c.Request.Context(), req.Prompt, req.Script)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /v1/api/generate-scene-video
func (h *Handler) GenerateSceneVideo(c *gin.Context) {
	var req struct {
		Scene      *models.Scene `json:"scene"`
		SceneIndex *int          `json:"sceneIndex"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if req.SceneIndex == nil {
		respondError(c, service.InvalidInput("sceneIndex is required"))
		return
	}
	sub, err := h.Videos.RequestScene(c.Request.Context(), req.Scene, *req.SceneIndex)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// POST /v1/api/check-video-status with {predictionId}, or
// GET /v1/api/check-video-status?predictionId=...
func (h *Handler) CheckVideoStatus(c *gin.Context) {
	id := c.Query("predictionId")
	if id == "" && c.Request.Method == http.MethodPost {
		var req struct {
			PredictionID string `json:"predictionId"`
		}
		if !bindJSON(c, &req) {
			return
		}
		id = req.PredictionID
	}
	st, err := h.Videos.CheckStatus(c.Request.Context(), strings.TrimSpace(id))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// POST /v1/api/projects/:project_id/scene-batches
func (h *Handler) CreateSceneBatch(c *gin.Context) {
	var req struct {
		Title  string         `json:"title"`
		Scenes []models.Scene `json:"scenes"`
	}
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.Projects.CreateBatch(c.Request.Context(), userID(c), c.Param("project_id"), req.Title, req.Scenes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"task_id":    view.Task.ID,
		"project_id": view.Task.ProjectId,
		"scene_jobs": view.SceneJobs,
	})
}
