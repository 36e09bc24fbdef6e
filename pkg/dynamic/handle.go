// Package dynamic builds typed record descriptors from schema field
// definitions at runtime and caches them per (client, schema name).
package dynamic

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ginthi/docregistry/pkg/errs"
	"github.com/ginthi/docregistry/pkg/schema"
)

// Envelope keys present on every document. Schema fields may not reuse them.
const (
	KeyID        = "id"
	KeyClientID  = "client_id"
	KeyVendorID  = "vendor_id"
	KeyCreatedAt = "created_at"
	KeyUpdatedAt = "updated_at"
	KeyCreatedBy = "created_by"
	KeyUpdatedBy = "updated_by"
)

// EnvelopeKeys lists the envelope keys in output order.
var EnvelopeKeys = []string{KeyID, KeyClientID, KeyVendorID, KeyCreatedAt, KeyUpdatedAt, KeyCreatedBy, KeyUpdatedBy}

// Attribute is one declared attribute of a document type.
type Attribute struct {
	Name          string           `json:"name"`
	Kind          schema.FieldType `json:"kind"`
	Mandatory     bool             `json:"mandatory"`
	Nullable      bool             `json:"nullable"`
	Default       any              `json:"default,omitempty"`
	AllowedValues []any            `json:"allowed_values,omitempty"`
	RefSchema     string           `json:"ref_schema,omitempty"`
	Description   string           `json:"description,omitempty"`
}

// TypeHandle describes a synthesized document type bound to its collection.
type TypeHandle struct {
	Name        string      `json:"name"`
	Collection  string      `json:"collection"`
	ClientID    string      `json:"client_id"`
	Fingerprint string      `json:"fingerprint"`
	Attributes  []Attribute `json:"attributes"`
	index       map[string]int
}

func newTypeHandle(clientID, schemaName string, fields []schema.FieldDefinition, fingerprint string) *TypeHandle {
	h := &TypeHandle{
		Name:        schema.TypeName(schemaName),
		Collection:  schemaName,
		ClientID:    clientID,
		Fingerprint: fingerprint,
		Attributes:  make([]Attribute, 0, len(fields)),
		index:       make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		attr := Attribute{
			Name:          f.Name,
			Kind:          f.Type,
			Default:       f.Default,
			AllowedValues: f.AllowedValues,
			RefSchema:     f.RefSchema,
			Description:   f.Description,
		}
		switch {
		case f.Required && !f.HasDefault():
			attr.Mandatory = true
		case !f.Required:
			attr.Nullable = true
		}
		h.index[f.Name] = len(h.Attributes)
		h.Attributes = append(h.Attributes, attr)
	}
	return h
}

// Attribute returns the attribute with the given name.
func (h *TypeHandle) Attribute(name string) (Attribute, bool) {
	i, ok := h.index[name]
	if !ok {
		return Attribute{}, false
	}
	return h.Attributes[i], true
}

// Declares reports whether name is a declared attribute.
func (h *TypeHandle) Declares(name string) bool {
	_, ok := h.index[name]
	return ok
}

// Project keeps only declared attributes of data.
func (h *TypeHandle) Project(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if h.Declares(k) {
			out[k] = v
		}
	}
	return out
}

// New materializes a document of this type. Undeclared keys are dropped,
// absent attributes take their default (or null when nullable), and a
// missing mandatory attribute is a validation error.
func (h *TypeHandle) New(env Envelope, data map[string]any) (*Document, error) {
	attrs := make(map[string]any, len(h.Attributes))
	var missing []string
	for _, a := range h.Attributes {
		if v, ok := data[a.Name]; ok {
			attrs[a.Name] = v
			continue
		}
		switch {
		case a.Default != nil:
			attrs[a.Name] = a.Default
		case a.Nullable:
			attrs[a.Name] = nil
		default:
			missing = append(missing, fmt.Sprintf("Required field '%s' is missing", a.Name))
		}
	}
	if len(missing) > 0 {
		return nil, errs.Validation(missing)
	}
	return &Document{Envelope: env, Type: h, Attributes: attrs}, nil
}

// Load wraps stored data in a document of this type. Stored keys the type no
// longer declares are hidden and absent attributes read as their default or
// null; mandatory attributes are not enforced.
func (h *TypeHandle) Load(env Envelope, data map[string]any) *Document {
	attrs := make(map[string]any, len(h.Attributes))
	for _, a := range h.Attributes {
		if v, ok := data[a.Name]; ok {
			attrs[a.Name] = v
		} else {
			attrs[a.Name] = a.Default
		}
	}
	return &Document{Envelope: env, Type: h, Attributes: attrs}
}

// Envelope holds the fields every stored document carries.
type Envelope struct {
	ID        string
	ClientID  string
	VendorID  *string
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy *string
	UpdatedBy *string
}

// Document is an instance of a synthesized type.
type Document struct {
	Envelope
	Type       *TypeHandle
	Attributes map[string]any
}

// Get returns an attribute value.
func (d *Document) Get(name string) (any, bool) {
	v, ok := d.Attributes[name]
	return v, ok
}

// Set assigns a declared attribute. Undeclared names are rejected.
func (d *Document) Set(name string, value any) error {
	if d.Type != nil && !d.Type.Declares(name) {
		return fmt.Errorf("attribute %q is not declared by %s", name, d.Type.Name)
	}
	d.Attributes[name] = value
	return nil
}

// Flatten renders the envelope and attributes as one map.
func (d *Document) Flatten() map[string]any {
	out := make(map[string]any, len(d.Attributes)+len(EnvelopeKeys))
	for k, v := range d.Attributes {
		out[k] = v
	}
	out[KeyID] = d.ID
	out[KeyClientID] = d.ClientID
	out[KeyVendorID] = d.VendorID
	out[KeyCreatedAt] = d.CreatedAt
	out[KeyUpdatedAt] = d.UpdatedAt
	out[KeyCreatedBy] = d.CreatedBy
	out[KeyUpdatedBy] = d.UpdatedBy
	return out
}

// MarshalJSON encodes the flattened document.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Flatten())
}
