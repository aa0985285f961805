package api

import (
	"context"
	"errors"
	"io"
	"time"

	"SceneForge-server/models"
	"SceneForge-server/routers/middleware"
	"SceneForge-server/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type ContentExtractor interface {
	Extract(ctx context.Context, userID, rawURL, projectID string) (*service.ExtractedContent, error)
}

type ScenePlanner interface {
	Plan(ctx context.Context, prompt, script string) (*models.ScenesResult, error)
}

type Generators interface {
	PromptVideo(ctx context.Context, req service.PromptVideoRequest) (*service.StudioResult, error)
	ExplainerVideo(ctx context.Context, req service.ExplainerRequest) (*service.StudioResult, error)
	UGCVideo(ctx context.Context, req service.UGCRequest) (*service.StudioResult, error)
	CloneStyle(ctx context.Context, req service.CloneStyleRequest) (*service.StudioResult, error)
}

type VoiceoverGenerator interface {
	Generate(ctx context.Context, script, style, scope string) (string, error)
}

type Projects interface {
	Create(ctx context.Context, userID string, in service.CreateProjectInput) (*models.Project, error)
	List(ctx context.Context, userID string) ([]models.Project, error)
	Detail(ctx context.Context, userID, id string) (*service.ProjectDetail, error)
	Delete(ctx context.Context, userID, id string) error
	Retry(ctx context.Context, userID, id string) (*service.RetryResult, error)
	CreateBatch(ctx context.Context, userID, projectID, title string, scenes []models.Scene) (*service.BatchView, error)
	Batch(ctx context.Context, userID, taskID string) (*service.BatchView, error)
	CancelQueued(ctx context.Context, userID, taskID string) error
}

type BatchCanceller interface {
	CancelBatch(taskID string) bool
}

// Handler holds the dependencies of every route.
type Handler struct {
	Extractor  ContentExtractor
	Planner    ScenePlanner
	Videos     service.VideoService
	Generators Generators
	Voiceover  VoiceoverGenerator
	Projects   Projects
	Canceller  BatchCanceller
	Log        zerolog.Logger

	// PushInterval is how often the task websocket re-reads the batch.
	PushInterval time.Duration
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(service.HTTPStatus(err), gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    service.ErrorCode(err),
	})
}

// bindJSON decodes the body into v. An empty body leaves v zeroed so the
// service reports which fields are missing.
func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, service.InvalidInput("invalid request body: %v", err))
		return false
	}
	return true
}

func userID(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}
