package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bobarin/imagetiming/internal/logging"
	"github.com/bobarin/imagetiming/internal/models"
	"github.com/bobarin/imagetiming/internal/pipeline"
	"github.com/bobarin/imagetiming/internal/queue"
)

const dequeueTimeout = 5 * time.Second

// JobStore is the slice of the database the worker needs.
type JobStore interface {
	GetJobRequest(ctx context.Context, id uuid.UUID) (*models.CreateTimelineRequest, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error
	SaveSectionTimelines(ctx context.Context, jobID uuid.UUID, sections []models.SectionTimeline) error
	CompleteJob(ctx context.Context, id uuid.UUID, sectionCount int, resultPath *string) error
	UpdateJobError(ctx context.Context, id uuid.UUID, errorMessage string) error
}

type JobSource interface {
	DequeueAllocate(ctx context.Context, timeout time.Duration) (*queue.Job, error)
}

type Uploader interface {
	UploadTimeline(ctx context.Context, jobID uuid.UUID, data []byte) (string, error)
}

type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
}

type Worker struct {
	store     JobStore
	source    JobSource
	uploader  Uploader // nil when storage is not configured
	runner    Runner
	logger    *zap.Logger
	uploadSem chan struct{}
}

func New(store JobStore, source JobSource, uploader Uploader, runner Runner, logger *zap.Logger) *Worker {
	return &Worker{
		store:     store,
		source:    source,
		uploader:  uploader,
		runner:    runner,
		logger:    logging.OrNop(logger).Named("worker"),
		uploadSem: make(chan struct{}, 2),
	}
}

// Start runs concurrency consumers until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	w.logger.Info("worker started", zap.Int("concurrency", concurrency))

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx)
	}

	<-ctx.Done()
	w.logger.Info("worker shutting down")
}

func (w *Worker) processQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.source.DequeueAllocate(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to dequeue", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		w.Process(ctx, job)
	}
}

// Process runs one job and records its outcome.
func (w *Worker) Process(ctx context.Context, job *queue.Job) {
	log := w.logger.With(zap.String("job_id", job.ID.String()))
	log.Info("processing job", zap.String("type", job.Type))

	if err := w.store.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning); err != nil {
		log.Warn("failed to update job status", zap.Error(err))
	}

	if err := w.handleAllocate(ctx, job.ID, log); err != nil {
		log.Error("job failed", zap.Error(err))
		if err := w.store.UpdateJobError(ctx, job.ID, err.Error()); err != nil {
			log.Warn("failed to record job error", zap.Error(err))
		}
		return
	}
	log.Info("job completed")
}

func (w *Worker) handleAllocate(ctx context.Context, jobID uuid.UUID, log *zap.Logger) error {
	req, err := w.store.GetJobRequest(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job request: %w", err)
	}

	strategy, err := models.ParseStrategy(req.Strategy)
	if err != nil {
		return err
	}

	result, err := w.runner.Run(ctx, pipeline.Input{
		Strategy:  strategy,
		Durations: req.AudioTiming,
		Script:    req.Script,
		Subtitles: req.Subtitles,
		Images:    req.Images,
	})
	if err != nil {
		return fmt.Errorf("failed to allocate timeline: %w", err)
	}

	for i := range result.Sections {
		result.Sections[i].JobID = jobID
	}
	if err := w.store.SaveSectionTimelines(ctx, jobID, result.Sections); err != nil {
		return fmt.Errorf("failed to save sections: %w", err)
	}

	var resultPath *string
	if w.uploader != nil {
		doc := models.TimelineDocument{
			JobID:       &jobID,
			Strategy:    strategy,
			GeneratedAt: time.Now().UTC(),
			Sections:    result.Sections,
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal timeline: %w", err)
		}

		var p string
		err = w.uploadWithLimit(ctx, func() error {
			var err error
			p, err = w.uploader.UploadTimeline(ctx, jobID, data)
			return err
		})
		if err != nil {
			// sections are already stored; the document is a convenience copy
			log.Warn("failed to upload timeline", zap.Error(err))
		} else {
			resultPath = &p
		}
	}

	if err := w.store.CompleteJob(ctx, jobID, len(result.Sections), resultPath); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	log.Info("timeline allocated",
		zap.Int("sections", result.Stats.Sections),
		zap.Int("skipped", result.Stats.Skipped),
		zap.Int("fallbacks", result.Stats.Fallbacks),
		zap.Int("clips", result.Stats.Clips))
	return nil
}

// uploadWithLimit bounds concurrent storage uploads across consumers.
func (w *Worker) uploadWithLimit(ctx context.Context, fn func() error) error {
	select {
	case w.uploadSem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("upload cancelled while waiting for slot: %w", ctx.Err())
	}
	defer func() { <-w.uploadSem }()

	return fn()
}
