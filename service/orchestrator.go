package service

import (
	"context"
	"errors"
	"time"

	"SceneForge-server/models"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// BatchOutcome is how a batch run ended.
type BatchOutcome string

const (
	BatchFinished  BatchOutcome = "finished"
	BatchTimedOut  BatchOutcome = "timed_out"
	BatchNoJobs    BatchOutcome = "no_jobs"
	BatchCancelled BatchOutcome = "cancelled"
)

// SceneVideos is the part of VideoService the orchestrator drives.
type SceneVideos interface {
	RequestScene(ctx context.Context, scene *models.Scene, index int) (*SceneSubmission, error)
	CheckStatus(ctx context.Context, predictionID string) (*JobStatus, error)
}

// BatchJob tracks one scene through submission and polling.
type BatchJob struct {
	SceneIndex   int                   `json:"sceneIndex"`
	Scene        models.Scene          `json:"scene"`
	PredictionID string                `json:"predictionId,omitempty"`
	Status       models.SceneJobStatus `json:"status"`
	VideoURL     string                `json:"videoUrl,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// BatchReport is the final state of every job plus per-status counts.
type BatchReport struct {
	Outcome   BatchOutcome `json:"outcome"`
	Jobs      []BatchJob   `json:"jobs"`
	Completed int          `json:"completed"`
	Errored   int          `json:"errored"`
	TimedOut  int          `json:"timedOut"`
	Attempts  int          `json:"attempts"`
}

// Orchestrator drives a scene batch against a SceneVideos backend: bounded
// concurrent submission, then shared-interval polling up to maxAttempts.
type Orchestrator struct {
	videos      SceneVideos
	interval    time.Duration
	maxAttempts int
	concurrency int
	log         zerolog.Logger
}

func NewOrchestrator(videos SceneVideos, interval time.Duration, maxAttempts, concurrency int, log zerolog.Logger) *Orchestrator {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Orchestrator{
		videos:      videos,
		interval:    interval,
		maxAttempts: maxAttempts,
		concurrency: concurrency,
		log:         log,
	}
}

// batch holds per-job state. It is only touched from the goroutine running
// Orchestrator.Run, so onUpdate is never called concurrently.
type batch struct {
	jobs     []BatchJob
	onUpdate func(BatchJob)
}

func (b *batch) advance(i int, next models.SceneJobStatus, mutate func(*BatchJob)) bool {
	j := &b.jobs[i]
	if !j.Status.CanAdvance(next) {
		return false
	}
	j.Status = next
	if mutate != nil {
		mutate(j)
	}
	if b.onUpdate != nil {
		b.onUpdate(*j)
	}
	return true
}

type submitResult struct {
	sub *SceneSubmission
	err error
}

type pollResult struct {
	status *JobStatus
	err    error
}

// Run submits one prediction per scene, then polls the live ones on a fixed
// interval until all are terminal or the attempt ceiling is hit. Job i always
// belongs to scenes[i]. onUpdate receives a copy of a job after each change.
func (o *Orchestrator) Run(ctx context.Context, scenes []models.Scene, onUpdate func(BatchJob)) (*BatchReport, error) {
	b := &batch{jobs: make([]BatchJob, len(scenes)), onUpdate: onUpdate}
	for i, s := range scenes {
		b.jobs[i] = BatchJob{SceneIndex: i, Scene: s, Status: models.SceneJobPending}
	}

	// Step 1: concurrent submission, one result per job.
	results := make([]submitResult, len(scenes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i := range scenes {
		g.Go(func() error {
			sub, err := o.videos.RequestScene(gctx, &scenes[i], i)
			results[i] = submitResult{sub: sub, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range results {
		if r.err != nil {
			o.log.Warn().Err(r.err).Int("scene_index", i).Msg("scene submission failed")
			b.advance(i, models.SceneJobError, func(j *BatchJob) { j.Error = r.err.Error() })
			continue
		}
		b.advance(i, models.SceneJobGenerating, func(j *BatchJob) { j.PredictionID = r.sub.PredictionID })
	}

	if err := ctx.Err(); err != nil {
		return o.report(b, BatchCancelled, 0), err
	}

	// Step 2: nothing to wait for.
	live := lo.FilterMap(b.jobs, func(j BatchJob, _ int) (int, bool) {
		return j.SceneIndex, j.PredictionID != ""
	})
	if len(live) == 0 {
		return o.report(b, BatchNoJobs, 0), nil
	}

	// Step 3: poll on a shared timer.
	attempts := 0
	err := PollUntil(ctx, PollOptions{Interval: o.interval, MaxAttempts: o.maxAttempts, Op: "scene batch"}, func(ctx context.Context, attempt int) (bool, error) {
		attempts = attempt
		o.tick(ctx, b, live)
		return lo.EveryBy(live, func(i int) bool { return b.jobs[i].Status.IsTerminal() }), nil
	})

	var timeout *TimeoutError
	switch {
	case err == nil:
		return o.report(b, BatchFinished, attempts), nil
	case errors.As(err, &timeout):
		for _, i := range live {
			b.advance(i, models.SceneJobTimedOut, func(j *BatchJob) { j.Error = timeout.Error() })
		}
		return o.report(b, BatchTimedOut, timeout.Attempts), nil
	default:
		return o.report(b, BatchCancelled, attempts), err
	}
}

func (o *Orchestrator) tick(ctx context.Context, b *batch, live []int) {
	pending := lo.Filter(live, func(i int, _ int) bool { return !b.jobs[i].Status.IsTerminal() })
	results := make([]pollResult, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for k, i := range pending {
		id := b.jobs[i].PredictionID
		g.Go(func() error {
			st, err := o.videos.CheckStatus(gctx, id)
			results[k] = pollResult{status: st, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for k, i := range pending {
		r := results[k]
		if r.err != nil {
			if !retryable(r.err) {
				o.log.Warn().Err(r.err).Int("scene_index", i).Msg("status poll rejected")
				b.advance(i, models.SceneJobError, func(j *BatchJob) { j.Error = r.err.Error() })
				continue
			}
			// retried on the next tick
			o.log.Debug().Err(r.err).Int("scene_index", i).Msg("status poll failed")
			continue
		}
		switch r.status.Status {
		case PredictionSucceeded:
			if r.status.VideoURL != "" {
				b.advance(i, models.SceneJobCompleted, func(j *BatchJob) { j.VideoURL = r.status.VideoURL })
			}
		case PredictionFailed, PredictionCanceled:
			msg := r.status.Error
			if msg == "" {
				msg = "prediction " + r.status.Status
			}
			b.advance(i, models.SceneJobError, func(j *BatchJob) { j.Error = msg })
		}
	}
}

func (o *Orchestrator) report(b *batch, outcome BatchOutcome, attempts int) *BatchReport {
	jobs := append([]BatchJob(nil), b.jobs...)
	return &BatchReport{
		Outcome:   outcome,
		Jobs:      jobs,
		Completed: lo.CountBy(jobs, func(j BatchJob) bool { return j.Status == models.SceneJobCompleted }),
		Errored:   lo.CountBy(jobs, func(j BatchJob) bool { return j.Status == models.SceneJobError }),
		TimedOut:  lo.CountBy(jobs, func(j BatchJob) bool { return j.Status == models.SceneJobTimedOut }),
		Attempts:  attempts,
	}
}
