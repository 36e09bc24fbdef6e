package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ginthi/docregistry/pkg/errs"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListFilter narrows List results. Empty fields match everything.
type ListFilter struct {
	ClientID     string
	Actor        string
	ResourceType string
	Action       string
	Outcome      string
}

// Store persists audit events.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the audit_events table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Event{}); err != nil {
		return fmt.Errorf("migrate audit events: %w", err)
	}
	return nil
}

// Append records an event.
func (s *Store) Append(ctx context.Context, event *Event) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// Get returns the event with the given ID or errs.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Event, error) {
	var ev Event
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&ev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("get audit event: %w", err)
	}
	return &ev, nil
}

// List returns events newest first. pageToken is an RFC 3339 timestamp from
// a previous page; events strictly older than it are returned. The total
// counts every event matching filter.
func (s *Store) List(ctx context.Context, filter ListFilter, pageSize int, pageToken string) ([]Event, string, int, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	base := s.db.WithContext(ctx).Model(&Event{})
	for col, v := range map[string]string{
		"client_id":     filter.ClientID,
		"actor":         filter.Actor,
		"resource_type": filter.ResourceType,
		"action":        filter.Action,
		"outcome":       filter.Outcome,
	} {
		if v != "" {
			base = base.Where(col+" = ?", v)
		}
	}
	base = base.Session(&gorm.Session{})

	var totalSize int64
	if err := base.Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count audit events: %w", err)
	}

	query := base.Order("created_at DESC").Order("id DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, errs.Newf(errs.CodeBadRequest, "invalid page token: %v", err)
		}
		query = query.Where("created_at < ?", t)
	}

	var records []Event
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list audit events: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].CreatedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}
	return records, nextToken, int(totalSize), nil
}

// DeleteOlderThan removes events created before cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&Event{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old audit events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
