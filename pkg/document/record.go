package document

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ginthi/docregistry/pkg/dynamic"
	"github.com/ginthi/docregistry/pkg/schema"
)

// Data holds a document's declared attributes, stored as a JSON column.
type Data map[string]any

// Scan implements the sql.Scanner interface for Data.
func (d *Data) Scan(value any) error {
	if value == nil {
		*d = Data{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for Data: %T", value)
	}
	out := map[string]any{}
	if err := schema.UnmarshalJSON(bytes, &out); err != nil {
		return err
	}
	*d = out
	return nil
}

// Value implements the driver.Valuer interface for Data.
func (d Data) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Record is one row of a collection table. Every collection shares this
// layout; the table name is the schema name.
type Record struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	ClientID  string    `gorm:"column:client_id;type:varchar(36);not null"`
	VendorID  *string   `gorm:"column:vendor_id;type:varchar(36)"`
	Data      Data      `gorm:"column:data;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
	CreatedBy *string   `gorm:"column:created_by;type:varchar(255)"`
	UpdatedBy *string   `gorm:"column:updated_by;type:varchar(255)"`
}

// Envelope returns the record's envelope fields.
func (r *Record) Envelope() dynamic.Envelope {
	return dynamic.Envelope{
		ID:        r.ID,
		ClientID:  r.ClientID,
		VendorID:  r.VendorID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		CreatedBy: r.CreatedBy,
		UpdatedBy: r.UpdatedBy,
	}
}

// row flattens the record for filter evaluation. Timestamps compare as
// RFC 3339 strings.
func (r *Record) row() map[string]any {
	out := make(map[string]any, len(r.Data)+len(dynamic.EnvelopeKeys))
	for k, v := range r.Data {
		out[k] = v
	}
	out[dynamic.KeyID] = r.ID
	out[dynamic.KeyClientID] = r.ClientID
	out[dynamic.KeyVendorID] = deref(r.VendorID)
	out[dynamic.KeyCreatedAt] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	out[dynamic.KeyUpdatedAt] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	out[dynamic.KeyCreatedBy] = deref(r.CreatedBy)
	out[dynamic.KeyUpdatedBy] = deref(r.UpdatedBy)
	return out
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
