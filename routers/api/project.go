package api

import (
	"net/http"

	"SceneForge-server/models"
	"SceneForge-server/service"

	"github.com/gin-gonic/gin"
)

// POST /v1/api/projects
func (h *Handler) CreateProject(c *gin.Context) {
	var req struct {
		Title   string         `json:"title"`
		Type    string         `json:"type" binding:"required"`
		Payload models.JSONMap `json:"payload"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, service.InvalidInput("invalid request body: %v", err))
		return
	}
	p, err := h.Projects.Create(c.Request.Context(), userID(c), service.CreateProjectInput{
		Title:   req.Title,
		Type:    req.Type,
		Payload: req.Payload,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project_id": p.ID, "project": p})
}

func (h *Handler) ListProjects(c *gin.Context) {
	projects, err := h.Projects.List(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if projects == nil {
		projects = []models.Project{}
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects, "total": len(projects)})
}

// GET /v1/api/projects/:project_id returns the project and its latest batch.
func (h *Handler) GetProject(c *gin.Context) {
	detail, err := h.Projects.Detail(c.Request.Context(), userID(c), c.Param("project_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) DeleteProject(c *gin.Context) {
	projectID := c.Param("project_id")
	if err := h.Projects.Delete(c.Request.Context(), userID(c), projectID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "project_id": projectID})
}

// RetryProject backs the dashboard's "try again" action.
func (h *Handler) RetryProject(c *gin.Context) {
	res, err := h.Projects.Retry(c.Request.Context(), userID(c), c.Param("project_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
