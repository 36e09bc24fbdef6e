package schema

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// FieldType is the declared type of a schema field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldDate    FieldType = "date"
	FieldBoolean FieldType = "boolean"
	FieldArray   FieldType = "array"
	FieldObject  FieldType = "object"
)

// FieldTypes lists every accepted field type in declaration order.
var FieldTypes = []FieldType{FieldString, FieldNumber, FieldDate, FieldBoolean, FieldArray, FieldObject}

// Valid reports whether t is one of FieldTypes.
func (t FieldType) Valid() bool {
	for _, ft := range FieldTypes {
		if t == ft {
			return true
		}
	}
	return false
}

// FieldDefinition declares one attribute of a document type.
// Unique is recorded but never enforced. RefSchema is informational.
type FieldDefinition struct {
	Name          string    `json:"name" yaml:"name"`
	Type          FieldType `json:"type" yaml:"type"`
	Required      bool      `json:"required" yaml:"required"`
	Unique        bool      `json:"unique" yaml:"unique"`
	Default       any       `json:"default,omitempty" yaml:"default,omitempty"`
	AllowedValues []any     `json:"allowed_values,omitempty" yaml:"allowed_values,omitempty"`
	RefSchema     string    `json:"ref_schema,omitempty" yaml:"ref_schema,omitempty"`
	Description   string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// HasDefault reports whether a default value was declared.
func (f FieldDefinition) HasDefault() bool { return f.Default != nil }

// FieldList is an ordered list of field definitions stored as a JSON column.
type FieldList []FieldDefinition

// Scan implements the sql.Scanner interface for FieldList.
func (l *FieldList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for FieldList: %T", value)
	}
	return UnmarshalJSON(bytes, l)
}

// Value implements the driver.Valuer interface for FieldList.
func (l FieldList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Names returns the field names in declaration order.
func (l FieldList) Names() []string {
	names := make([]string, len(l))
	for i, f := range l {
		names[i] = f.Name
	}
	return names
}

// Lookup returns the field with the given name.
func (l FieldList) Lookup(name string) (FieldDefinition, bool) {
	for _, f := range l {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// SchemaDefinition is one version of a client's document type.
type SchemaDefinition struct {
	ID          string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	ClientID    string    `gorm:"column:client_id;type:varchar(36);uniqueIndex:idx_schema_client_name_version,priority:1;not null" json:"client_id"`
	SchemaName  string    `gorm:"column:schema_name;type:varchar(100);uniqueIndex:idx_schema_client_name_version,priority:2;not null" json:"schema_name"`
	Version     int       `gorm:"column:version;uniqueIndex:idx_schema_client_name_version,priority:3;not null" json:"version"`
	IsActive    bool      `gorm:"column:is_active;not null" json:"is_active"`
	Description string    `gorm:"column:description;type:text;not null" json:"description"`
	Fields      FieldList `gorm:"column:fields;type:text;not null" json:"fields"`
	CreatedAt   time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
	CreatedBy   *string   `gorm:"column:created_by;type:varchar(255)" json:"created_by,omitempty"`
	UpdatedBy   *string   `gorm:"column:updated_by;type:varchar(255)" json:"updated_by,omitempty"`
}

// TableName returns the GORM table name.
func (SchemaDefinition) TableName() string { return "schema_definitions" }

// Key identifies the (client, schema name) pair all versions share.
func (d *SchemaDefinition) Key() Key {
	return Key{ClientID: d.ClientID, SchemaName: d.SchemaName}
}

// Revision fingerprints the stored state of this version. It changes on every
// update, so caches keyed by Key can detect stale entries.
func (d *SchemaDefinition) Revision() string {
	return fmt.Sprintf("%s@%d", d.ID, d.UpdatedAt.UnixNano())
}

// Key is the (client_id, schema_name) pair.
type Key struct {
	ClientID   string
	SchemaName string
}

func (k Key) String() string { return k.ClientID + "_" + k.SchemaName }
