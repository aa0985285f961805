package models

import (
	"time"
)

const DefaultSceneDuration = 5

// Scene is one planned segment. Its position in ScenesResult.Scenes is its
// playback order and the join key to SceneJob.SceneIndex.
type Scene struct {
	Text     string `json:"text" validate:"required_without=Visuals"`
	Visuals  string `json:"visuals" validate:"required_without=Text"`
	Style    string `json:"style"`
	Duration int    `json:"duration" validate:"gte=1"`
}

type ScenesResult struct {
	Title  string  `json:"title"`
	Scenes []Scene `json:"scenes" validate:"required,min=1,dive"`
}

type SceneJobStatus string

const (
	SceneJobPending    SceneJobStatus = "pending"
	SceneJobGenerating SceneJobStatus = "generating"
	SceneJobCompleted  SceneJobStatus = "completed"
	SceneJobError      SceneJobStatus = "error"
	SceneJobTimedOut   SceneJobStatus = "timed_out"
)

func (s SceneJobStatus) IsTerminal() bool {
	switch s {
	case SceneJobCompleted, SceneJobError, SceneJobTimedOut:
		return true
	}
	return false
}

func (s SceneJobStatus) rank() int {
	switch s {
	case SceneJobPending:
		return 0
	case SceneJobGenerating:
		return 1
	case SceneJobCompleted, SceneJobError, SceneJobTimedOut:
		return 2
	}
	return -1
}

// CanAdvance reports whether a job in status s may move to next. Statuses
// only move forward and terminal statuses never change.
func (s SceneJobStatus) CanAdvance(next SceneJobStatus) bool {
	if s.IsTerminal() || next.rank() < 0 {
		return false
	}
	return next.rank() > s.rank()
}

// SceneJob tracks the provider prediction for one scene of a batch.
type SceneJob struct {
	ID           string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TaskID       string         `gorm:"type:varchar(64);index" json:"task_id"`
	ProjectID    string         `gorm:"type:varchar(64);index" json:"project_id"`
	SceneIndex   int            `json:"scene_index"`
	Text         string         `gorm:"type:text" json:"text"`
	Visuals      string         `gorm:"type:text" json:"visuals"`
	Style        string         `json:"style"`
	Duration     int            `json:"duration"`
	PredictionID string         `gorm:"type:varchar(128)" json:"prediction_id,omitempty"`
	Status       SceneJobStatus `gorm:"type:varchar(32)" json:"status"`
	VideoURL     string         `gorm:"type:text" json:"video_url,omitempty"`
	Error        string         `gorm:"type:text" json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (SceneJob) TableName() string {
	return "scene_job"
}

func (j SceneJob) Scene() Scene {
	return Scene{Text: j.Text, Visuals: j.Visuals, Style: j.Style, Duration: j.Duration}
}
