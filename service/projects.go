package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"SceneForge-server/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

// ErrNotFound is returned for missing records and for records owned by
// someone else.
var ErrNotFound = errors.New("not found")

type ProjectStore interface {
	Create(ctx context.Context, p *models.Project) error
	Get(ctx context.Context, id string) (*models.Project, error)
	ListByUser(ctx context.Context, userID string) ([]models.Project, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id, status string, payload models.JSONMap, errMsg string) error
}

type BatchStore interface {
	CreateBatch(ctx context.Context, task *models.Task, jobs []models.SceneJob) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	LatestTaskForProject(ctx context.Context, projectID string) (*models.Task, error)
	UpdateTask(ctx context.Context, id string, u models.TaskUpdate) error
	ListSceneJobs(ctx context.Context, taskID string) ([]models.SceneJob, error)
	SaveSceneJob(ctx context.Context, job models.SceneJob) error
	ResetSceneJobs(ctx context.Context, taskID string) error
}

type Enqueuer interface {
	EnqueueBatch(ctx context.Context, taskID string) error
}

// ProjectService applies ownership and lifecycle rules on top of the stores.
type ProjectService struct {
	projects ProjectStore
	batches  BatchStore
	queue    Enqueuer
	planner  *Planner
	log      zerolog.Logger
}

func NewProjectService(projects ProjectStore, batches BatchStore, queue Enqueuer, planner *Planner, log zerolog.Logger) *ProjectService {
	return &ProjectService{projects: projects, batches: batches, queue: queue, planner: planner, log: log}
}

func notFound(err error) error {
	if models.IsNotFound(err) {
		return ErrNotFound
	}
	return err
}

type CreateProjectInput struct {
	Title   string
	Type    string
	Payload models.JSONMap
}

func (s *ProjectService) Create(ctx context.Context, userID string, in CreateProjectInput) (*models.Project, error) {
	if !models.ValidProjectType(in.Type) {
		return nil, InvalidInput("unknown project type %q", in.Type)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Untitled project"
	}
	p := &models.Project{
		ID:      uuid.NewString(),
		UserID:  userID,
		Title:   title,
		Type:    in.Type,
		Status:  models.ProjectStatusCreated,
		Payload: in.Payload,
	}
	if err := s.projects.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

func (s *ProjectService) List(ctx context.Context, userID string) ([]models.Project, error) {
	return s.projects.ListByUser(ctx, userID)
}

// ownedProject loads a project visible to userID. Projects without an owner
// are visible to everyone; anyone else's project reads as ErrNotFound.
func ownedProject(ctx context.Context, store ProjectStore, userID, id string) (*models.Project, error) {
	p, err := store.Get(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if p.UserID != "" && p.UserID != userID {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *ProjectService) Get(ctx context.Context, userID, id string) (*models.Project, error) {
	return ownedProject(ctx, s.projects, userID, id)
}

type ProjectDetail struct {
	Project    *models.Project `json:"project_detail"`
	RecentTask *models.Task    `json:"recent_task"`
}

// Detail returns the project with its most recent scene batch, if any.
func (s *ProjectService) Detail(ctx context.Context, userID, id string) (*ProjectDetail, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	out := &ProjectDetail{Project: p}
	task, err := s.batches.LatestTaskForProject(ctx, id)
	switch {
	case err == nil:
		out.RecentTask = task
	case !models.IsNotFound(err):
		return nil, fmt.Errorf("load recent task: %w", err)
	}
	return out, nil
}

func (s *ProjectService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	return notFound(s.projects.Delete(ctx, id))
}

type RetryResult struct {
	Project *models.Project `json:"project"`
	TaskID  string          `json:"task_id,omitempty"`
}

// Retry moves a terminal project back to processing. When the project has a
// scene batch, its jobs are reset and the batch is queued again.
func (s *ProjectService) Retry(ctx context.Context, userID, id string) (*RetryResult, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !models.ProjectIsTerminal(p.Status) {
		return nil, InvalidInput("project is %s; only completed or failed projects can be retried", p.Status)
	}

	task, err := s.batches.LatestTaskForProject(ctx, id)
	switch {
	case models.IsNotFound(err):
		task = nil
	case err != nil:
		return nil, fmt.Errorf("load batch: %w", err)
	default:
		if err := s.batches.ResetSceneJobs(ctx, task.ID); err != nil {
			return nil, fmt.Errorf("reset scene jobs: %w", err)
		}
		zero, msg, empty := 0, "queued for retry", ""
		if err := s.batches.UpdateTask(ctx, task.ID, models.TaskUpdate{
			Status:   models.TaskStatusPending,
			Progress: &zero,
			Message:  &msg,
			Result:   &models.TaskResult{},
			Error:    &empty,
		}); err != nil {
			return nil, fmt.Errorf("reset task: %w", err)
		}
	}

	if err := s.projects.UpdateStatus(ctx, id, models.ProjectStatusProcessing, nil, ""); err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	p.Status = models.ProjectStatusProcessing
	p.Error = ""
	res := &RetryResult{Project: p}
	if task == nil {
		return res, nil
	}
	if err := s.queue.EnqueueBatch(ctx, task.ID); err != nil {
		return nil, s.abandonBatch(ctx, id, task.ID, err)
	}
	res.TaskID = task.ID
	return res, nil
}

// abandonBatch fails a batch that never reached the queue and puts the
// project in error, so it can be retried. It returns the enqueue error.
func (s *ProjectService) abandonBatch(ctx context.Context, projectID, taskID string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	err := fmt.Errorf("enqueue batch: %w", cause)
	msg := err.Error()
	now := time.Now()
	if uerr := s.batches.UpdateTask(ctx, taskID, models.TaskUpdate{
		Status:     models.TaskStatusFailed,
		Message:    &msg,
		Error:      &msg,
		FinishedAt: &now,
	}); uerr != nil {
		s.log.Warn().Err(uerr).Str("task_id", taskID).Msg("mark unqueued batch failed")
	}
	if uerr := s.projects.UpdateStatus(ctx, projectID, models.ProjectStatusError, nil, msg); uerr != nil {
		s.log.Warn().Err(uerr).Str("project_id", projectID).Msg("mark project error")
	}
	return err
}

// BatchView is a task with its scene jobs in scene order.
type BatchView struct {
	Task      *models.Task      `json:"task"`
	SceneJobs []models.SceneJob `json:"scene_jobs"`
}

// CreateBatch persists one task plus one pending job per scene and queues it.
func (s *ProjectService) CreateBatch(ctx context.Context, userID, projectID, title string, scenes []models.Scene) (*BatchView, error) {
	if len(scenes) == 0 {
		return nil, InvalidInput("scenes are required")
	}
	scenes, err := s.planner.ValidateScenes(scenes)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, userID, projectID); err != nil {
		return nil, err
	}

	task := &models.Task{
		ID:         uuid.NewString(),
		ProjectId:  projectID,
		Type:       models.TaskTypeSceneBatch,
		Status:     models.TaskStatusPending,
		Message:    fmt.Sprintf("%d scenes queued", len(scenes)),
		Parameters: datatypes.NewJSONType(models.TaskParameters{Title: title, Scenes: scenes}),
	}
	jobs := make([]models.SceneJob, len(scenes))
	for i, sc := range scenes {
		jobs[i] = models.SceneJob{
			ID:         uuid.NewString(),
			TaskID:     task.ID,
			ProjectID:  projectID,
			SceneIndex: i,
			Text:       sc.Text,
			Visuals:    sc.Visuals,
			Style:      sc.Style,
			Duration:   sc.Duration,
			Status:     models.SceneJobPending,
		}
	}
	if err := s.batches.CreateBatch(ctx, task, jobs); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	if err := s.projects.UpdateStatus(ctx, projectID, models.ProjectStatusProcessing, nil, ""); err != nil {
		s.log.Warn().Err(err).Str("project_id", projectID).Msg("mark project processing")
	}
	if err := s.queue.EnqueueBatch(ctx, task.ID); err != nil {
		return nil, s.abandonBatch(ctx, projectID, task.ID, err)
	}
	return &BatchView{Task: task, SceneJobs: jobs}, nil
}

// Batch returns a task with its jobs in scene order.
func (s *ProjectService) Batch(ctx context.Context, userID, taskID string) (*BatchView, error) {
	task, err := s.batches.GetTask(ctx, taskID)
	if err != nil {
		return nil, notFound(err)
	}
	if _, err := s.Get(ctx, userID, task.ProjectId); err != nil {
		return nil, err
	}
	jobs, err := s.batches.ListSceneJobs(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("list scene jobs: %w", err)
	}
	return &BatchView{Task: task, SceneJobs: jobs}, nil
}

// CancelQueued ends a batch no worker has picked up yet. The worker skips
// terminal tasks when it dequeues them.
func (s *ProjectService) CancelQueued(ctx context.Context, userID, taskID string) error {
	view, err := s.Batch(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if models.TaskIsTerminal(view.Task.Status) {
		return InvalidInput("task is already %s", view.Task.Status)
	}
	msg := "batch cancelled"
	now := time.Now()
	if err := s.batches.UpdateTask(ctx, taskID, models.TaskUpdate{
		Status:     models.TaskStatusCancelled,
		Message:    &msg,
		Error:      &msg,
		FinishedAt: &now,
	}); err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	if err := s.projects.UpdateStatus(ctx, view.Task.ProjectId, models.ProjectStatusError, nil, msg); err != nil {
		s.log.Warn().Err(err).Str("project_id", view.Task.ProjectId).Msg("mark project error")
	}
	return nil
}
