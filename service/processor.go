package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"SceneForge-server/models"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const mirrorConcurrency = 4

// MirrorBudget bounds the copy of a batch's finished videos into the object
// store. The queue timeout has to leave room for it.
const MirrorBudget = 10 * time.Minute

// pollRegistry maps running task ids to the cancel func of their batch run.
type pollRegistry struct {
	sync.Mutex
	m map[string]context.CancelFunc
}

func (r *pollRegistry) register(taskID string, cancel context.CancelFunc) {
	r.Lock()
	defer r.Unlock()
	r.m[taskID] = cancel
}

func (r *pollRegistry) unregister(taskID string) {
	r.Lock()
	defer r.Unlock()
	delete(r.m, taskID)
}

func (r *pollRegistry) cancel(taskID string) bool {
	r.Lock()
	defer r.Unlock()
	if cancel, ok := r.m[taskID]; ok {
		cancel()
		delete(r.m, taskID)
		return true
	}
	return false
}

// Processor runs queued scene batches through the Orchestrator and keeps the
// task, scene_job and project rows in step with it.
type Processor struct {
	batches      BatchStore
	projects     ProjectStore
	orchestrator *Orchestrator
	store        ObjectStore
	mirror       bool
	httpClient   *http.Client
	polls        *pollRegistry
	log          zerolog.Logger
}

type ProcessorOptions struct {
	// MirrorOutputs copies each finished scene video into the object store.
	MirrorOutputs bool
	Store         ObjectStore
}

func NewProcessor(batches BatchStore, projects ProjectStore, orchestrator *Orchestrator, opts ProcessorOptions, log zerolog.Logger) *Processor {
	return &Processor{
		batches:      batches,
		projects:     projects,
		orchestrator: orchestrator,
		store:        opts.Store,
		mirror:       opts.MirrorOutputs && opts.Store != nil,
		httpClient:   &http.Client{Timeout: 5 * time.Minute},
		polls:        &pollRegistry{m: make(map[string]context.CancelFunc)},
		log:          log,
	}
}

// StartProcessor runs the asynq consumer in the background.
func (p *Processor) StartProcessor(redis asynq.RedisClientOpt, concurrency int) *asynq.Server {
	srv := asynq.NewServer(redis, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"default": 1,
		},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSceneBatch, p.HandleSceneBatch)

	p.log.Info().Int("concurrency", concurrency).Msg("starting batch processor")
	go func() {
		if err := srv.Run(mux); err != nil {
			p.log.Fatal().Err(err).Msg("batch processor stopped")
		}
	}()
	return srv
}

// CancelBatch stops tracking a running batch. Provider jobs keep running.
func (p *Processor) CancelBatch(taskID string) bool {
	return p.polls.cancel(taskID)
}

func (p *Processor) HandleSceneBatch(ctx context.Context, t *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	err := p.RunBatch(ctx, payload.TaskID)
	if models.IsNotFound(err) {
		return fmt.Errorf("task %s: %v: %w", payload.TaskID, err, asynq.SkipRetry)
	}
	return err
}

// RunBatch drives one persisted batch to its end. Only storage errors are
// returned; batch outcomes are written to the task and project rows.
func (p *Processor) RunBatch(ctx context.Context, taskID string) error {
	task, err := p.batches.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if models.TaskIsTerminal(task.Status) {
		p.log.Info().Str("task_id", taskID).Str("status", task.Status).Msg("batch already finished, skipping")
		return nil
	}
	rows, err := p.batches.ListSceneJobs(ctx, taskID)
	if err != nil {
		return fmt.Errorf("list scene jobs: %w", err)
	}
	log := p.log.With().Str("task_id", taskID).Str("project_id", task.ProjectId).Logger()

	if len(rows) == 0 {
		msg := "batch has no scenes"
		return p.batches.UpdateTask(ctx, taskID, models.TaskUpdate{Status: models.TaskStatusFailed, Error: &msg})
	}

	now := time.Now()
	zero, msg := 0, "generating scene videos"
	if err := p.batches.UpdateTask(ctx, taskID, models.TaskUpdate{
		Status:    models.TaskStatusProcessing,
		Progress:  &zero,
		Message:   &msg,
		StartedAt: &now,
	}); err != nil {
		return fmt.Errorf("mark task processing: %w", err)
	}
	if err := p.projects.UpdateStatus(ctx, task.ProjectId, models.ProjectStatusProcessing, nil, ""); err != nil {
		log.Warn().Err(err).Msg("mark project processing")
	}

	byIndex := lo.KeyBy(rows, func(j models.SceneJob) int { return j.SceneIndex })
	scenes := make([]models.Scene, len(rows))
	for i := range scenes {
		row, ok := byIndex[i]
		if !ok {
			failMsg := fmt.Sprintf("scene index %d missing from batch", i)
			return p.batches.UpdateTask(ctx, taskID, models.TaskUpdate{Status: models.TaskStatusFailed, Error: &failMsg})
		}
		scenes[i] = row.Scene()
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.polls.register(taskID, cancel)
	defer func() {
		p.polls.unregister(taskID)
		cancel()
	}()

	done := 0
	report, runErr := p.orchestrator.Run(runCtx, scenes, func(j BatchJob) {
		row := byIndex[j.SceneIndex]
		row.PredictionID = j.PredictionID
		row.Status = j.Status
		row.VideoURL = j.VideoURL
		row.Error = j.Error
		if err := p.batches.SaveSceneJob(ctx, row); err != nil {
			log.Warn().Err(err).Int("scene_index", j.SceneIndex).Msg("save scene job")
		}
		byIndex[j.SceneIndex] = row

		if j.Status.IsTerminal() {
			done++
			progress := done * 100 / len(scenes)
			if err := p.batches.UpdateTask(ctx, taskID, models.TaskUpdate{Progress: &progress}); err != nil {
				log.Warn().Err(err).Msg("update progress")
			}
		}
	})
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Warn().Err(runErr).Msg("batch run ended early")
	}
	if p.mirror && report.Outcome == BatchFinished {
		p.mirrorCompleted(ctx, byIndex, log)
	}
	return p.finish(ctx, task, report, byIndex, log)
}

// mirrorCompleted copies finished scene videos into the object store once
// polling is over, a few downloads at a time and within MirrorBudget. A
// failed copy keeps the provider URL.
func (p *Processor) mirrorCompleted(ctx context.Context, byIndex map[int]models.SceneJob, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, MirrorBudget)
	defer cancel()

	done := lo.Filter(lo.Values(byIndex), func(j models.SceneJob, _ int) bool {
		return j.Status == models.SceneJobCompleted && j.VideoURL != ""
	})
	urls := make([]string, len(done))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mirrorConcurrency)
	for k, row := range done {
		g.Go(func() error {
			urls[k] = p.mirrorVideo(gctx, log, row)
			return nil
		})
	}
	_ = g.Wait()

	for k, row := range done {
		if urls[k] == row.VideoURL {
			continue
		}
		row.VideoURL = urls[k]
		if err := p.batches.SaveSceneJob(context.WithoutCancel(ctx), row); err != nil {
			log.Warn().Err(err).Int("scene_index", row.SceneIndex).Msg("save mirrored scene job")
		}
		byIndex[row.SceneIndex] = row
	}
}

func (p *Processor) mirrorVideo(ctx context.Context, log zerolog.Logger, row models.SceneJob) string {
	objectName := fmt.Sprintf("projects/%s/scenes/%03d-%s.mp4", row.ProjectID, row.SceneIndex, row.ID)
	url, err := Mirror(ctx, p.store, p.httpClient, row.VideoURL, objectName)
	if err != nil {
		log.Warn().Err(err).Int("scene_index", row.SceneIndex).Msg("mirror scene video, keeping provider url")
		return row.VideoURL
	}
	return url
}

func (p *Processor) finish(ctx context.Context, task *models.Task, report *BatchReport, byIndex map[int]models.SceneJob, log zerolog.Logger) error {
	// the run context may be gone; the final write still has to land
	ctx = context.WithoutCancel(ctx)

	result := models.TaskResult{
		Outcome:   string(report.Outcome),
		Total:     len(report.Jobs),
		Completed: report.Completed,
		Errored:   report.Errored,
		TimedOut:  report.TimedOut,
	}
	status, msg, errMsg := models.TaskStatusSuccess, "", ""
	switch report.Outcome {
	case BatchFinished:
		msg = fmt.Sprintf("%d of %d scenes completed, %d failed", report.Completed, len(report.Jobs), report.Errored)
	case BatchTimedOut:
		status = models.TaskStatusTimedOut
		msg = fmt.Sprintf("timed out after %d polls with %d scenes unfinished", report.Attempts, report.TimedOut)
		errMsg = msg
	case BatchNoJobs:
		status = models.TaskStatusFailed
		msg = "no scene could be submitted"
		errMsg = msg
	case BatchCancelled:
		status = models.TaskStatusCancelled
		msg = "batch cancelled"
		errMsg = msg
	}
	finished := time.Now()
	progress := 100
	if err := p.batches.UpdateTask(ctx, task.ID, models.TaskUpdate{
		Status:     status,
		Progress:   &progress,
		Message:    &msg,
		Result:     &result,
		Error:      &errMsg,
		FinishedAt: &finished,
	}); err != nil {
		return fmt.Errorf("finish task: %w", err)
	}

	if report.Outcome == BatchFinished && report.Completed > 0 {
		videos := make([]map[string]interface{}, 0, len(byIndex))
		for i := 0; i < len(byIndex); i++ {
			j := byIndex[i]
			if j.Status == models.SceneJobCompleted {
				videos = append(videos, map[string]interface{}{"scene_index": i, "video_url": j.VideoURL})
			}
		}
		payload := p.projectPayload(ctx, task.ProjectId)
		payload["task_id"] = task.ID
		payload["title"] = task.Parameters.Data().Title
		payload["scene_videos"] = videos
		if err := p.projects.UpdateStatus(ctx, task.ProjectId, models.ProjectStatusCompleted, payload, ""); err != nil {
			log.Warn().Err(err).Msg("mark project completed")
		}
	} else {
		if errMsg == "" {
			errMsg = "no scene video was generated"
		}
		if err := p.projects.UpdateStatus(ctx, task.ProjectId, models.ProjectStatusError, nil, errMsg); err != nil {
			log.Warn().Err(err).Msg("mark project error")
		}
	}
	log.Info().Str("outcome", string(report.Outcome)).Int("completed", report.Completed).Int("errored", report.Errored).Msg("batch done")
	return nil
}

// projectPayload returns a copy of the stored payload so batch results are
// added next to what earlier stages saved.
func (p *Processor) projectPayload(ctx context.Context, projectID string) models.JSONMap {
	out := models.JSONMap{}
	project, err := p.projects.Get(ctx, projectID)
	if err != nil {
		return out
	}
	for k, v := range project.Payload {
		out[k] = v
	}
	return out
}
