package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ginthi/docregistry/pkg/errs"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// JobStore provides database operations for revalidation jobs.
type JobStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// AutoMigrate creates or updates the revalidation_jobs table.
func (s *JobStore) AutoMigrate() error {
	return s.db.AutoMigrate(&RevalidationJob{})
}

// JobListFilter defines filters for listing jobs.
type JobListFilter struct {
	ClientID    string
	SchemaID    string
	Collection  string
	State       string
	RequestedBy string
}

// Enqueue creates a new queued job. Only one job per schema version may be
// queued or running: when one exists it is returned with created false.
func (s *JobStore) Enqueue(ctx context.Context, job *RevalidationJob) (result *RevalidationJob, created bool, err error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.State == "" {
		job.State = JobStateQueued
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = s.now()
	}
	key := job.SchemaID
	job.IdempotencyKey = &key

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing RevalidationJob
		err := tx.Where("idempotency_key = ? AND state IN ?", key, activeStates).First(&existing).Error
		if err == nil {
			result = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check idempotency key: %w", err)
		}

		// Terminal jobs release their key so the unique index admits the new job.
		if err := tx.Model(&RevalidationJob{}).
			Where("idempotency_key = ? AND state IN ?", key, terminalStates).
			Update("idempotency_key", nil).Error; err != nil {
			return fmt.Errorf("release idempotency key: %w", err)
		}

		if err := tx.Create(job).Error; err != nil {
			return err
		}
		result, created = job, true
		return nil
	})
	if err == nil {
		return result, created, nil
	}

	// Another transaction may have created the job between our check and
	// create.
	var raced RevalidationJob
	if lookupErr := s.db.WithContext(ctx).
		Where("idempotency_key = ? AND state IN ?", key, activeStates).
		First(&raced).Error; lookupErr == nil {
		return &raced, false, nil
	}
	return nil, false, fmt.Errorf("enqueue job: %w", err)
}

// Claim atomically picks the oldest queued job and transitions it to
// running. Uses FOR UPDATE SKIP LOCKED where supported. Returns nil if no
// jobs are available.
func (s *JobStore) Claim(ctx context.Context, maxRetries int) (*RevalidationJob, error) {
	var job RevalidationJob

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Raw(`
			SELECT * FROM revalidation_jobs
			WHERE state = ? AND attempt_count <= ?
			ORDER BY requested_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`, JobStateQueued, maxRetries).Scan(&job)

		if result.Error != nil {
			// SQLite has no row locks; it serializes writers instead.
			result = tx.Where("state = ? AND attempt_count <= ?", JobStateQueued, maxRetries).
				Order("requested_at ASC").
				Limit(1).
				Find(&job)
			if result.Error != nil {
				return result.Error
			}
		}
		if job.ID == "" {
			return nil
		}

		now := s.now()
		return tx.Model(&RevalidationJob{}).Where("id = ? AND state = ?", job.ID, JobStateQueued).
			Updates(map[string]any{
				"state":         JobStateRunning,
				"started_at":    now,
				"attempt_count": gorm.Expr("attempt_count + 1"),
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if job.ID == "" {
		return nil, nil
	}

	if err := s.db.WithContext(ctx).First(&job, "id = ?", job.ID).Error; err != nil {
		return nil, fmt.Errorf("reload claimed job: %w", err)
	}
	return &job, nil
}

// Complete marks a running job as succeeded and stores its result.
func (s *JobStore) Complete(ctx context.Context, jobID string, res Result) error {
	now := s.now()
	samples := Samples(res.Samples)
	if samples == nil {
		samples = Samples{}
	}
	result := s.db.WithContext(ctx).Model(&RevalidationJob{}).
		Where("id = ? AND state = ?", jobID, JobStateRunning).
		Updates(map[string]any{
			"state":             JobStateSucceeded,
			"finished_at":       now,
			"documents_checked": res.Checked,
			"documents_invalid": res.Invalid,
			"samples":           samples,
			"duration_ms":       res.Duration.Milliseconds(),
			"message":           fmt.Sprintf("Checked %d documents, %d invalid", res.Checked, res.Invalid),
		})
	if result.Error != nil {
		return fmt.Errorf("complete job: %w", result.Error)
	}
	return nil
}

// Fail records a failed attempt. Jobs within maxRetries attempts are
// re-queued; others become failed.
func (s *JobStore) Fail(ctx context.Context, jobID, errMsg string, maxRetries int) error {
	db := s.db.WithContext(ctx)

	var job RevalidationJob
	if err := db.First(&job, "id = ?", jobID).Error; err != nil {
		return fmt.Errorf("load job for fail: %w", err)
	}

	updates := map[string]any{
		"last_error":  errMsg,
		"finished_at": s.now(),
	}
	if job.AttemptCount < maxRetries {
		updates["state"] = JobStateQueued
		updates["started_at"] = nil
		updates["finished_at"] = nil
	} else {
		updates["state"] = JobStateFailed
		updates["message"] = "Max retries exceeded: " + errMsg
	}

	if err := db.Model(&RevalidationJob{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// Cancel marks a queued job as canceled. Running jobs finish on their own.
func (s *JobStore) Cancel(ctx context.Context, jobID string) error {
	db := s.db.WithContext(ctx)
	result := db.Model(&RevalidationJob{}).
		Where("id = ? AND state = ?", jobID, JobStateQueued).
		Updates(map[string]any{
			"state":       JobStateCanceled,
			"finished_at": s.now(),
			"message":     "Canceled by user",
		})
	if result.Error != nil {
		return fmt.Errorf("cancel job: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	return errs.Newf(errs.CodeConflict, "Job %s is %s; only queued jobs can be canceled", jobID, job.State)
}

// Get retrieves a job by ID. Returns errs.ErrNotFound when absent.
func (s *JobStore) Get(ctx context.Context, jobID string) (*RevalidationJob, error) {
	var job RevalidationJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// List returns jobs matching filter, newest first. The page token is the
// last job's requested_at and ID.
func (s *JobStore) List(ctx context.Context, filter JobListFilter, pageSize int, pageToken string) ([]RevalidationJob, string, int, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	q := s.db.WithContext(ctx).Model(&RevalidationJob{})
	if filter.ClientID != "" {
		q = q.Where("client_id = ?", filter.ClientID)
	}
	if filter.SchemaID != "" {
		q = q.Where("schema_id = ?", filter.SchemaID)
	}
	if filter.Collection != "" {
		q = q.Where("collection = ?", filter.Collection)
	}
	if filter.State != "" {
		q = q.Where("state = ?", filter.State)
	}
	if filter.RequestedBy != "" {
		q = q.Where("requested_by = ?", filter.RequestedBy)
	}
	q = q.Session(&gorm.Session{})

	var totalSize int64
	if err := q.Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count jobs: %w", err)
	}

	page := q.Order("requested_at DESC").Order("id DESC").Limit(pageSize + 1)
	if pageToken != "" {
		at, id, err := decodePageToken(pageToken)
		if err != nil {
			return nil, "", 0, err
		}
		page = page.Where("requested_at < ? OR (requested_at = ? AND id < ?)", at, at, id)
	}

	var records []RevalidationJob
	if err := page.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list jobs: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		last := records[pageSize-1]
		nextToken = last.RequestedAt.UTC().Format(time.RFC3339Nano) + "|" + last.ID
		records = records[:pageSize]
	}
	return records, nextToken, int(totalSize), nil
}

// CleanupStuckJobs re-queues running jobs whose started_at is older than
// claimTimeout.
func (s *JobStore) CleanupStuckJobs(ctx context.Context, claimTimeout time.Duration) (int64, error) {
	cutoff := s.now().Add(-claimTimeout)
	result := s.db.WithContext(ctx).Model(&RevalidationJob{}).
		Where("state = ? AND started_at < ?", JobStateRunning, cutoff).
		Updates(map[string]any{
			"state":      JobStateQueued,
			"started_at": nil,
			"last_error": "Timed out (stuck job recovery)",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup stuck jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteOlderThan removes terminal jobs finished before cutoff.
func (s *JobStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("state IN ? AND finished_at < ?", terminalStates, cutoff).
		Delete(&RevalidationJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func decodePageToken(token string) (time.Time, string, error) {
	ts, id, ok := strings.Cut(token, "|")
	if ok && id != "" {
		if at, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return at, id, nil
		}
	}
	return time.Time{}, "", errs.Newf(errs.CodeBadRequest, "invalid page token: %s", token)
}
