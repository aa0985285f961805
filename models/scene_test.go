package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSceneJobStatusCanAdvance(t *testing.T) {
	cases := []struct {
		from, to SceneJobStatus
		want     bool
	}{
		{SceneJobPending, SceneJobGenerating, true},
		{SceneJobPending, SceneJobError, true},
		{SceneJobGenerating, SceneJobCompleted, true},
		{SceneJobGenerating, SceneJobError, true},
		{SceneJobGenerating, SceneJobTimedOut, true},
		{SceneJobGenerating, SceneJobGenerating, false},
		{SceneJobGenerating, SceneJobPending, false},
		{SceneJobCompleted, SceneJobGenerating, false},
		{SceneJobCompleted, SceneJobError, false},
		{SceneJobError, SceneJobCompleted, false},
		{SceneJobTimedOut, SceneJobCompleted, false},
		{SceneJobPending, SceneJobStatus("bogus"), false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.from.CanAdvance(tc.to))
		})
	}
}

func TestSceneJobStatusIsTerminal(t *testing.T) {
	assert.False(t, SceneJobPending.IsTerminal())
	assert.False(t, SceneJobGenerating.IsTerminal())
	assert.True(t, SceneJobCompleted.IsTerminal())
	assert.True(t, SceneJobError.IsTerminal())
	assert.True(t, SceneJobTimedOut.IsTerminal())
}

func TestTaskUpdateApply(t *testing.T) {
	task := &Task{Status: TaskStatusPending, Progress: 0, Message: "queued"}
	progress := 50
	TaskUpdate{Status: TaskStatusProcessing, Progress: &progress}.Apply(task)

	assert.Equal(t, TaskStatusProcessing, task.Status)
	assert.Equal(t, 50, task.Progress)
	assert.Equal(t, "queued", task.Message)
	assert.True(t, TaskIsTerminal(TaskStatusTimedOut))
	assert.False(t, TaskIsTerminal(TaskStatusProcessing))
}
