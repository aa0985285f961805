package models

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Task statuses. finished/failed/timed_out/cancelled are terminal.
const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusSuccess    = "finished"
	TaskStatusFailed     = "failed"
	TaskStatusTimedOut   = "timed_out"
	TaskStatusCancelled  = "cancelled"

	TaskTypeSceneBatch = "generate_scene_batch"
)

func TaskIsTerminal(status string) bool {
	switch status {
	case TaskStatusSuccess, TaskStatusFailed, TaskStatusTimedOut, TaskStatusCancelled:
		return true
	}
	return false
}

type Task struct {
	ID         string                             `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectId  string                             `gorm:"type:varchar(64);index" json:"projectId"`
	Type       string                             `json:"type"`
	Status     string                             `json:"status"`
	Progress   int                                `json:"progress"`
	Message    string                             `json:"message"`
	Parameters datatypes.JSONType[TaskParameters] `gorm:"type:json" json:"parameters"`
	Result     datatypes.JSONType[TaskResult]     `gorm:"type:json" json:"result"`
	Error      string                             `gorm:"type:text" json:"error"`
	StartedAt  *time.Time                         `json:"startedAt,omitempty"`
	FinishedAt *time.Time                         `json:"finishedAt,omitempty"`
	CreatedAt  time.Time                          `json:"createdAt"`
	UpdatedAt  time.Time                          `json:"updatedAt"`
}

func (Task) TableName() string {
	return "task"
}

type TaskParameters struct {
	Title  string  `json:"title,omitempty"`
	Scenes []Scene `json:"scenes,omitempty"`
}

// TaskResult summarises a finished batch.
type TaskResult struct {
	Outcome   string `json:"outcome,omitempty"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Errored   int    `json:"errored"`
	TimedOut  int    `json:"timed_out"`
}

// TaskUpdate lists the task fields to overwrite; nil fields are left alone.
type TaskUpdate struct {
	Status     string
	Progress   *int
	Message    *string
	Result     *TaskResult
	Error      *string
	StartedAt  *time.Time
	FinishedAt *time.Time
}

func (u TaskUpdate) columns() map[string]interface{} {
	updates := map[string]interface{}{"updated_at": time.Now()}
	if u.Status != "" {
		updates["status"] = u.Status
	}
	if u.Progress != nil {
		updates["progress"] = *u.Progress
	}
	if u.Message != nil {
		updates["message"] = *u.Message
	}
	if u.Result != nil {
		updates["result"] = datatypes.NewJSONType(*u.Result)
	}
	if u.Error != nil {
		updates["error"] = *u.Error
	}
	if u.StartedAt != nil {
		updates["started_at"] = *u.StartedAt
	}
	if u.FinishedAt != nil {
		updates["finished_at"] = *u.FinishedAt
	}
	return updates
}

// Apply copies the non-nil fields of u onto t.
func (u TaskUpdate) Apply(t *Task) {
	if u.Status != "" {
		t.Status = u.Status
	}
	if u.Progress != nil {
		t.Progress = *u.Progress
	}
	if u.Message != nil {
		t.Message = *u.Message
	}
	if u.Result != nil {
		t.Result = datatypes.NewJSONType(*u.Result)
	}
	if u.Error != nil {
		t.Error = *u.Error
	}
	if u.StartedAt != nil {
		t.StartedAt = u.StartedAt
	}
	if u.FinishedAt != nil {
		t.FinishedAt = u.FinishedAt
	}
	t.UpdatedAt = time.Now()
}

// BatchRepo stores scene batch tasks and their scene jobs.
type BatchRepo struct {
	DB *gorm.DB
}

func NewBatchRepo(db *gorm.DB) *BatchRepo {
	return &BatchRepo{DB: db}
}

// CreateBatch inserts the task and one job row per scene in one transaction.
func (r *BatchRepo) CreateBatch(ctx context.Context, task *Task, jobs []SceneJob) error {
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	for i := range jobs {
		jobs[i].CreatedAt = now
		jobs[i].UpdatedAt = now
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(task).Error; err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}
		return tx.Create(&jobs).Error
	})
}

func (r *BatchRepo) GetTask(ctx context.Context, id string) (*Task, error) {
	var t Task
	if err := r.DB.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *BatchRepo) LatestTaskForProject(ctx context.Context, projectID string) (*Task, error) {
	var t Task
	err := r.DB.WithContext(ctx).
		Where("project_id = ? AND type = ?", projectID, TaskTypeSceneBatch).
		Order("created_at DESC").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *BatchRepo) UpdateTask(ctx context.Context, id string, u TaskUpdate) error {
	return r.DB.WithContext(ctx).Model(&Task{}).Where("id = ?", id).Updates(u.columns()).Error
}

func (r *BatchRepo) ListSceneJobs(ctx context.Context, taskID string) ([]SceneJob, error) {
	var jobs []SceneJob
	err := r.DB.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("scene_index ASC").
		Find(&jobs).Error
	return jobs, err
}

// SaveSceneJob overwrites the mutable job columns.
func (r *BatchRepo) SaveSceneJob(ctx context.Context, job SceneJob) error {
	return r.DB.WithContext(ctx).Model(&SceneJob{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"prediction_id": job.PredictionID,
		"status":        job.Status,
		"video_url":     job.VideoURL,
		"error":         job.Error,
		"updated_at":    time.Now(),
	}).Error
}

// ResetSceneJobs puts every job of a task back to pending so the batch can
// run again.
func (r *BatchRepo) ResetSceneJobs(ctx context.Context, taskID string) error {
	return r.DB.WithContext(ctx).Model(&SceneJob{}).Where("task_id = ?", taskID).Updates(map[string]interface{}{
		"prediction_id": "",
		"status":        SceneJobPending,
		"video_url":     "",
		"error":         "",
		"updated_at":    time.Now(),
	}).Error
}
