package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Project lifecycle: created|draft -> processing -> completed|error.
// A retry moves a terminal project back to processing.
const (
	ProjectStatusCreated    = "created"
	ProjectStatusDraft      = "draft"
	ProjectStatusProcessing = "processing"
	ProjectStatusCompleted  = "completed"
	ProjectStatusError      = "error"
)

const (
	ProjectTypeURLToVideo    = "url_to_video"
	ProjectTypePromptToVideo = "prompt_to_video"
	ProjectTypeUGCVideo      = "ugc_video"
	ProjectTypeExplainer     = "explainer_video"
	ProjectTypeSmartVideo    = "smart_video"
	ProjectTypeCloneVideo    = "clone_video"
)

var projectTypes = map[string]bool{
	ProjectTypeURLToVideo:    true,
	ProjectTypePromptToVideo: true,
	ProjectTypeUGCVideo:      true,
	ProjectTypeExplainer:     true,
	ProjectTypeSmartVideo:    true,
	ProjectTypeCloneVideo:    true,
}

func ValidProjectType(t string) bool {
	return projectTypes[t]
}

func ProjectIsTerminal(status string) bool {
	return status == ProjectStatusCompleted || status == ProjectStatusError
}

type Project struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID    string    `gorm:"type:varchar(64);index" json:"user_id"`
	Title     string    `json:"title"`
	Type      string    `gorm:"type:varchar(32)" json:"type"`
	Status    string    `gorm:"type:varchar(32)" json:"status"`
	Payload   JSONMap   `gorm:"type:json" json:"payload"`
	Error     string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Project) TableName() string {
	return "project"
}

// JSONMap is an arbitrary JSON object stored in a json column.
type JSONMap = datatypes.JSONMap

// ProjectRepo persists projects with plain field overwrites; concurrent
// writers race and the last one wins.
type ProjectRepo struct {
	DB *gorm.DB
}

func NewProjectRepo(db *gorm.DB) *ProjectRepo {
	return &ProjectRepo{DB: db}
}

func (r *ProjectRepo) Create(ctx context.Context, p *Project) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	return r.DB.WithContext(ctx).Create(p).Error
}

func (r *ProjectRepo) Get(ctx context.Context, id string) (*Project, error) {
	var p Project
	if err := r.DB.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProjectRepo) ListByUser(ctx context.Context, userID string) ([]Project, error) {
	var out []Project
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (r *ProjectRepo) Delete(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).Delete(&Project{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateStatus overwrites status and error. A nil payload leaves the stored
// payload untouched.
func (r *ProjectRepo) UpdateStatus(ctx context.Context, id, status string, payload JSONMap, errMsg string) error {
	updates := map[string]interface{}{
		"status":     status,
		"error":      errMsg,
		"updated_at": time.Now(),
	}
	if payload != nil {
		updates["payload"] = payload
	}
	return r.DB.WithContext(ctx).Model(&Project{}).Where("id = ?", id).Updates(updates).Error
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
