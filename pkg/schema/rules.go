package schema

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
)

const (
	// A schema name becomes a table name and part of its index name
	// ("idx_<name>_client_id"), which must fit the 63 byte identifier limit.
	maxSchemaNameLength  = 48
	maxFieldNameLength   = 63
	maxDescriptionLength = 500
	maxRefSchemaLength   = 200
)

var schemaNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// reservedNames are tables owned by the service itself. A schema name becomes
// a table name, so these cannot be used.
var reservedNames = mapset.NewSet(
	"schema_definitions",
	"clients",
	"vendors",
	"audit_events",
	"schema_migrations",
	"migration_lock",
	"revalidation_jobs",
)

// envelopeFields are set on every stored document and cannot be declared.
var envelopeFields = mapset.NewSet(
	"id", "client_id", "vendor_id", "created_at", "updated_at", "created_by", "updated_by",
)

// IsReservedName reports whether name collides with a service table.
func IsReservedName(name string) bool {
	return reservedNames.Contains(strings.ToLower(name))
}

// ValidateClientID checks that id is a UUID string.
func ValidateClientID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid client_id format. Must be a valid UUID, got: %s", id)
	}
	return nil
}

// CheckSchemaName returns a violation message for name, or "" when valid.
func CheckSchemaName(name string) string {
	switch {
	case name == "":
		return "schema_name must not be empty"
	case len(name) > maxSchemaNameLength:
		return fmt.Sprintf("schema_name must be at most %d characters", maxSchemaNameLength)
	case !schemaNamePattern.MatchString(name):
		return fmt.Sprintf("schema_name '%s' must start with a letter and contain only letters, digits and underscores", name)
	case IsReservedName(name):
		return fmt.Sprintf("schema_name '%s' is reserved", name)
	}
	return ""
}

// CheckDescription returns a violation message for a schema description, or
// "" when valid.
func CheckDescription(description string) string {
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return fmt.Sprintf("description must be at most %d characters", maxDescriptionLength)
	}
	return ""
}

// CheckFields returns one violation per problem found in fields.
func CheckFields(fields []FieldDefinition) []string {
	if len(fields) == 0 {
		return []string{"at least one field is required"}
	}

	var violations []string
	seen := mapset.NewThreadUnsafeSet[string]()
	for i, f := range fields {
		switch {
		case strings.TrimSpace(f.Name) == "":
			violations = append(violations, fmt.Sprintf("field %d: name must not be empty", i))
			continue
		case len(f.Name) > maxFieldNameLength:
			violations = append(violations, fmt.Sprintf("field '%s': name must be at most %d characters", f.Name, maxFieldNameLength))
		}
		if envelopeFields.Contains(f.Name) {
			violations = append(violations, fmt.Sprintf("field '%s' is a reserved document attribute", f.Name))
		}
		if !seen.Add(f.Name) {
			violations = append(violations, fmt.Sprintf("field '%s' is declared more than once", f.Name))
		}
		if !f.Type.Valid() {
			violations = append(violations, fmt.Sprintf("field '%s': type must be one of %s", f.Name, joinTypes()))
		}
		if utf8.RuneCountInString(f.Description) > maxDescriptionLength {
			violations = append(violations, fmt.Sprintf("field '%s': description must be at most %d characters", f.Name, maxDescriptionLength))
		}
		if utf8.RuneCountInString(f.RefSchema) > maxRefSchemaLength {
			violations = append(violations, fmt.Sprintf("field '%s': ref_schema must be at most %d characters", f.Name, maxRefSchemaLength))
		}
	}
	return violations
}

func joinTypes() string {
	parts := make([]string, len(FieldTypes))
	for i, t := range FieldTypes {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
