// Package jobs queues and runs document revalidation jobs. A job checks every
// stored document of one client and collection against a schema version and
// records how many no longer conform.
package jobs

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobState represents the lifecycle state of a revalidation job.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateCanceled  JobState = "canceled"
)

var (
	activeStates   = []JobState{JobStateQueued, JobStateRunning}
	terminalStates = []JobState{JobStateSucceeded, JobStateFailed, JobStateCanceled}
)

// Samples is a list of violation lines stored as a JSON column.
type Samples []string

// Scan implements the sql.Scanner interface for Samples.
func (s *Samples) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for Samples: %T", value)
	}
	return json.Unmarshal(bytes, s)
}

// Value implements the driver.Valuer interface for Samples.
func (s Samples) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// RevalidationJob is the GORM model for a revalidation job.
type RevalidationJob struct {
	ID               string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	ClientID         string     `gorm:"column:client_id;type:varchar(36);index:idx_job_client_state,priority:1;not null"`
	SchemaID         string     `gorm:"column:schema_id;type:varchar(36);not null"`
	Collection       string     `gorm:"column:collection;type:varchar(100);not null"`
	SchemaVersion    int        `gorm:"column:schema_version"`
	RequestedBy      string     `gorm:"column:requested_by;type:varchar(255);not null"`
	RequestedAt      time.Time  `gorm:"column:requested_at;not null"`
	State            JobState   `gorm:"column:state;type:varchar(20);index:idx_job_client_state,priority:2;index:idx_job_state;not null;default:queued"`
	Message          string     `gorm:"column:message;type:text"`
	StartedAt        *time.Time `gorm:"column:started_at"`
	FinishedAt       *time.Time `gorm:"column:finished_at"`
	AttemptCount     int        `gorm:"column:attempt_count;default:0"`
	LastError        string     `gorm:"column:last_error;type:text"`
	IdempotencyKey   *string    `gorm:"column:idempotency_key;type:varchar(64);uniqueIndex:idx_job_idemp_key"`
	DocumentsChecked int        `gorm:"column:documents_checked"`
	DocumentsInvalid int        `gorm:"column:documents_invalid"`
	Samples          Samples    `gorm:"column:samples;type:text"`
	DurationMs       int64      `gorm:"column:duration_ms"`
}

// TableName returns the GORM table name.
func (RevalidationJob) TableName() string { return "revalidation_jobs" }

// IsTerminal returns true if the job is in a terminal state.
func (j *RevalidationJob) IsTerminal() bool {
	switch j.State {
	case JobStateSucceeded, JobStateFailed, JobStateCanceled:
		return true
	}
	return false
}

// Result is the outcome of one revalidation run.
type Result struct {
	Checked  int
	Invalid  int
	Samples  []string
	Duration time.Duration
}
