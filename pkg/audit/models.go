// Package audit records mutating API calls and serves them back through a
// read-only API.
package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Metadata is free-form event detail stored as a JSON column.
type Metadata map[string]any

// Scan implements the sql.Scanner interface for Metadata.
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for Metadata: %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface for Metadata.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Event is one audited API call.
type Event struct {
	ID            string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	ClientID      string    `gorm:"column:client_id;type:varchar(36);index:idx_audit_client_time,priority:1"`
	CorrelationID string    `gorm:"column:correlation_id;type:varchar(255)"`
	RequestID     string    `gorm:"column:request_id;type:varchar(255)"`
	Actor         string    `gorm:"column:actor;type:varchar(255);index:idx_audit_actor_time,priority:1;not null"`
	Method        string    `gorm:"column:method;type:varchar(16);not null"`
	Path          string    `gorm:"column:path;type:varchar(1024);not null"`
	ResourceType  string    `gorm:"column:resource_type;type:varchar(64)"`
	ResourceID    string    `gorm:"column:resource_id;type:varchar(255)"`
	Collection    string    `gorm:"column:collection;type:varchar(100)"`
	Action        string    `gorm:"column:action;type:varchar(64)"`
	Outcome       string    `gorm:"column:outcome;type:varchar(16);not null"` // success, failure, denied
	StatusCode    int       `gorm:"column:status_code"`
	Metadata      Metadata  `gorm:"column:metadata;type:text"`
	CreatedAt     time.Time `gorm:"column:created_at;index:idx_audit_client_time,priority:2;index:idx_audit_actor_time,priority:2;not null"`
}

// TableName returns the GORM table name.
func (Event) TableName() string { return "audit_events" }
