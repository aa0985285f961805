package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"SceneForge-server/models"

	"gorm.io/gorm"
)

type fakeCompleter struct {
	mu       sync.Mutex
	content  string
	err      error
	calls    int
	lastSys  string
	lastUser string
}

func (f *fakeCompleter) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastSys, f.lastUser = system, user
	return f.content, f.err
}

type statusUpdate struct {
	ID      string
	Status  string
	Payload models.JSONMap
	Err     string
}

type fakeProjects struct {
	mu      sync.Mutex
	m       map[string]*models.Project
	updates []statusUpdate
}

func newFakeProjects(ps ...models.Project) *fakeProjects {
	f := &fakeProjects{m: map[string]*models.Project{}}
	for i := range ps {
		p := ps[i]
		f.m[p.ID] = &p
	}
	return f
}

func (f *fakeProjects) Create(ctx context.Context, p *models.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.m[p.ID] = &cp
	return nil
}

func (f *fakeProjects) Get(ctx context.Context, id string) (*models.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.m[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProjects) ListByUser(ctx context.Context, userID string) ([]models.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Project
	for _, p := range f.m {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeProjects) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.m[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.m, id)
	return nil
}

func (f *fakeProjects) UpdateStatus(ctx context.Context, id, status string, payload models.JSONMap, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, statusUpdate{ID: id, Status: status, Payload: payload, Err: errMsg})
	if p, ok := f.m[id]; ok {
		p.Status = status
		p.Error = errMsg
		if payload != nil {
			p.Payload = payload
		}
	}
	return nil
}

func (f *fakeProjects) statuses(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, u := range f.updates {
		if u.ID == id {
			out = append(out, u.Status)
		}
	}
	return out
}

func (f *fakeProjects) get(id string) models.Project {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.m[id]
}

type fakeBatches struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
	jobs  map[string]*models.SceneJob
	saves int
}

func newFakeBatches() *fakeBatches {
	return &fakeBatches{tasks: map[string]*models.Task{}, jobs: map[string]*models.SceneJob{}}
}

func (f *fakeBatches) CreateBatch(ctx context.Context, task *models.Task, jobs []models.SceneJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *task
	f.tasks[task.ID] = &cp
	for i := range jobs {
		j := jobs[i]
		f.jobs[j.ID] = &j
	}
	return nil
}

func (f *fakeBatches) GetTask(ctx context.Context, id string) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeBatches) LatestTaskForProject(ctx context.Context, projectID string) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.ProjectId == projectID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBatches) UpdateTask(ctx context.Context, id string, u models.TaskUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.Apply(t)
	return nil
}

func (f *fakeBatches) ListSceneJobs(ctx context.Context, taskID string) ([]models.SceneJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SceneJob
	for _, j := range f.jobs {
		if j.TaskID == taskID {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].SceneIndex < out[b].SceneIndex })
	return out, nil
}

func (f *fakeBatches) SaveSceneJob(ctx context.Context, job models.SceneJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	cp := job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeBatches) ResetSceneJobs(ctx context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.TaskID == taskID {
			j.Status = models.SceneJobPending
			j.PredictionID, j.VideoURL, j.Error = "", "", ""
		}
	}
	return nil
}

func (f *fakeBatches) task(id string) models.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.tasks[id]
}

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []string
	err      error
}

func (f *fakeQueue) EnqueueBatch(ctx context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, taskID)
	return nil
}

var errTransport = errors.New("connection reset")

// pollStep is one scripted answer of fakeVideos.CheckStatus; err wins over
// status.
type pollStep struct {
	status JobStatus
	err    error
}

func stepDone(url string) pollStep {
	return pollStep{status: JobStatus{Status: PredictionSucceeded, VideoURL: url}}
}

func stepRunning() pollStep {
	return pollStep{status: JobStatus{Status: PredictionProcessing}}
}

func stepFailed(msg string) pollStep {
	return pollStep{status: JobStatus{Status: PredictionFailed, Error: msg}}
}

type fakeVideos struct {
	mu           sync.Mutex
	configErr    error
	submitErr    map[int]error
	renderErr    error
	steps        map[string][]pollStep
	polls        map[string]int
	submitted    []int
	lastPrompt   string
	lastDuration int
}

func newFakeVideos() *fakeVideos {
	return &fakeVideos{submitErr: map[int]error{}, steps: map[string][]pollStep{}, polls: map[string]int{}}
}

func (f *fakeVideos) Configured() error { return f.configErr }

func (f *fakeVideos) RequestScene(ctx context.Context, scene *models.Scene, index int) (*SceneSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, index)
	if err := f.submitErr[index]; err != nil {
		return nil, err
	}
	return &SceneSubmission{PredictionID: fmt.Sprintf("pred-%d", index), Status: PredictionStarting, SceneIndex: index}, nil
}

func (f *fakeVideos) RenderPrompt(ctx context.Context, prompt string, duration int) (*SceneSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPrompt, f.lastDuration = prompt, duration
	if f.renderErr != nil {
		return nil, f.renderErr
	}
	return &SceneSubmission{PredictionID: "render-1", Status: PredictionStarting}, nil
}

func (f *fakeVideos) CheckStatus(ctx context.Context, predictionID string) (*JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	steps := f.steps[predictionID]
	n := f.polls[predictionID]
	f.polls[predictionID]++
	if len(steps) == 0 {
		return &JobStatus{Status: PredictionProcessing}, nil
	}
	if n >= len(steps) {
		n = len(steps) - 1
	}
	if steps[n].err != nil {
		return nil, steps[n].err
	}
	st := steps[n].status
	return &st, nil
}

func (f *fakeVideos) pollCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[id]
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (f *fakeStore) Upload(ctx context.Context, objectName string, r io.Reader, size int64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[objectName] = b
	return "https://cdn.test/" + objectName, nil
}

type fakeTTS struct {
	audio   []byte
	err     error
	voiceID string
}

func (f *fakeTTS) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	f.voiceID = voiceID
	return f.audio, f.err
}
