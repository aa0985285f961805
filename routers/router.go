package routers

import (
	"net/http"

	"SceneForge-server/routers/api"
	"SceneForge-server/routers/middleware"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func InitRouter(h *api.Handler, jwtSecret string, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log), middleware.CORS())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1/api")
	// AI proxy routes work without an account
	open := v1.Group("", middleware.OptionalUser(jwtSecret))
	{
		open.POST("/scrape-website", h.ScrapeWebsite)
		open.POST("/generate-scenes", h.GenerateScenes)
		open.POST("/generate-scene-video", h.GenerateSceneVideo)
		open.POST("/check-video-status", h.CheckVideoStatus)
		open.GET("/check-video-status", h.CheckVideoStatus)
		open.POST("/generate-voiceover", h.GenerateVoiceover)
		open.POST("/generate-prompt-video", h.GeneratePromptVideo)
		open.POST("/create-explainer-video", h.CreateExplainerVideo)
		open.POST("/generate-ugc-video", h.GenerateUGCVideo)
		open.POST("/clone-video-style", h.CloneVideoStyle)
	}
	authed := v1.Group("", middleware.RequireUser(jwtSecret))
	{
		authed.POST("/projects", h.CreateProject)
		authed.GET("/projects", h.ListProjects)
		authed.GET("/projects/:project_id", h.GetProject)
		authed.DELETE("/projects/:project_id", h.DeleteProject)
		authed.POST("/projects/:project_id/retry", h.RetryProject)
		authed.POST("/projects/:project_id/scene-batches", h.CreateSceneBatch)
		authed.GET("/tasks/:task_id", h.GetTaskStatus)
		authed.POST("/tasks/:task_id/cancel", h.CancelTask)
	}
	r.GET("/tasks/:task_id/wss", middleware.RequireUser(jwtSecret), h.TaskProgressWebSocket)
	return r
}
