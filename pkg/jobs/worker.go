package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ginthi/docregistry/pkg/errs"
	"github.com/ginthi/docregistry/pkg/metrics"
)

// Revalidator checks stored documents against one schema version.
type Revalidator interface {
	Revalidate(ctx context.Context, schemaID string, sampleSize int) (Result, error)
}

// WorkerPool processes queued revalidation jobs using a pool of goroutines.
type WorkerPool struct {
	store       *JobStore
	revalidator Revalidator
	cfg         *JobConfig
	metrics     *metrics.Metrics
	logger      *slog.Logger
	wg          sync.WaitGroup
}

// NewWorkerPool creates a new worker pool. m may be nil.
func NewWorkerPool(store *JobStore, revalidator Revalidator, cfg *JobConfig, m *metrics.Metrics, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultJobConfig()
	}
	return &WorkerPool{
		store:       store,
		revalidator: revalidator,
		cfg:         cfg,
		metrics:     m,
		logger:      logger,
	}
}

// Run starts cfg.Concurrency workers and the cleanup loop. It blocks until
// ctx is cancelled, then waits for all workers to finish.
func (wp *WorkerPool) Run(ctx context.Context) {
	if wp.store == nil || !wp.cfg.Enabled {
		wp.logger.Info("job worker pool disabled")
		return
	}

	wp.logger.Info("job worker pool starting",
		"concurrency", wp.cfg.Concurrency,
		"maxRetries", wp.cfg.MaxRetries,
		"pollInterval", wp.cfg.PollInterval.String())

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		wp.cleanupLoop(ctx)
	}()

	for i := 0; i < wp.cfg.Concurrency; i++ {
		wp.wg.Add(1)
		go func(workerID int) {
			defer wp.wg.Done()
			wp.workerLoop(ctx, workerID)
		}(i)
	}

	<-ctx.Done()
	wp.logger.Info("job worker pool shutting down, waiting for workers to finish")
	wp.wg.Wait()
	wp.logger.Info("job worker pool stopped")
}

func (wp *WorkerPool) workerLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(wp.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wp.processOne(ctx, workerID)
		}
	}
}

// processOne claims and runs a single job.
func (wp *WorkerPool) processOne(ctx context.Context, workerID int) {
	job, err := wp.store.Claim(ctx, wp.cfg.MaxRetries)
	if err != nil {
		if ctx.Err() == nil {
			wp.logger.Error("failed to claim job", "workerID", workerID, "error", err)
		}
		return
	}
	if job == nil {
		return
	}

	log := wp.logger.With("workerID", workerID, "jobID", job.ID, "schemaID", job.SchemaID)
	log.Info("processing job", "collection", job.Collection, "attempt", job.AttemptCount)

	start := time.Now()
	res, err := wp.revalidator.Revalidate(ctx, job.SchemaID, wp.cfg.SampleSize)
	// Job bookkeeping outlives shutdown so a finished run is not lost.
	bg := context.WithoutCancel(ctx)
	if err != nil {
		maxRetries := wp.cfg.MaxRetries
		if errs.HasCode(err, errs.CodeNotFound) {
			// The schema is gone; retrying cannot help.
			maxRetries = 0
		}
		log.Error("job failed", "error", err)
		if failErr := wp.store.Fail(bg, job.ID, err.Error(), maxRetries); failErr != nil {
			log.Error("failed to mark job as failed", "error", failErr)
		}
		if job.AttemptCount < maxRetries {
			wp.metrics.IncRevalidationJob("retried")
		} else {
			wp.metrics.IncRevalidationJob("failed")
		}
		return
	}

	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}
	log.Info("job completed",
		"checked", res.Checked,
		"invalid", res.Invalid,
		"duration", res.Duration.String())
	if err := wp.store.Complete(bg, job.ID, res); err != nil {
		log.Error("failed to mark job as complete", "error", err)
		return
	}
	wp.metrics.IncRevalidationJob("succeeded")
}

// cleanupLoop periodically recovers stuck jobs and deletes old finished jobs.
func (wp *WorkerPool) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wp.cleanup(ctx)
		}
	}
}

func (wp *WorkerPool) cleanup(ctx context.Context) {
	if wp.cfg.ClaimTimeout > 0 {
		recovered, err := wp.store.CleanupStuckJobs(ctx, wp.cfg.ClaimTimeout)
		if err != nil {
			wp.logger.Error("failed to cleanup stuck jobs", "error", err)
		} else if recovered > 0 {
			wp.logger.Info("recovered stuck jobs", "count", recovered)
		}
	}

	if wp.cfg.RetentionDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -wp.cfg.RetentionDays)
		deleted, err := wp.store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			wp.logger.Error("failed to delete old jobs", "error", err)
		} else if deleted > 0 {
			wp.logger.Info("deleted old jobs", "count", deleted)
		}
	}
}
