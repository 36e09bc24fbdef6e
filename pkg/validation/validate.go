// Package validation checks document data against the fields of a schema
// version. Every violated rule is reported; checking never stops at the
// first failure.
package validation

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/ginthi/docregistry/pkg/errs"
	"github.com/ginthi/docregistry/pkg/schema"
)

// Mode selects which rules apply.
type Mode int

const (
	// Full applies every rule, including required-field presence.
	Full Mode = iota
	// Patch skips required-field presence; used for partial updates where
	// absent keys keep their stored value.
	Patch
)

var expectedNames = map[schema.FieldType]string{
	schema.FieldString:  "string",
	schema.FieldNumber:  "number",
	schema.FieldBoolean: "boolean",
	schema.FieldArray:   "array",
	schema.FieldObject:  "object",
	schema.FieldDate:    "date string (ISO format)",
}

// Validate returns one message per violated rule, in field order. An empty
// result means data conforms to fields.
func Validate(data map[string]any, fields []schema.FieldDefinition) []string {
	return check(data, fields, Full)
}

// ValidatePatch is Validate without the required-field rule.
func ValidatePatch(data map[string]any, fields []schema.FieldDefinition) []string {
	return check(data, fields, Patch)
}

// Check runs the rules for mode and returns a CodeValidation error when any
// rule is violated.
func Check(data map[string]any, fields []schema.FieldDefinition, mode Mode) error {
	if violations := check(data, fields, mode); len(violations) > 0 {
		return errs.Validation(violations)
	}
	return nil
}

func check(data map[string]any, fields []schema.FieldDefinition, mode Mode) []string {
	var violations []string
	for _, f := range fields {
		value, present := data[f.Name]
		if !present {
			if f.Required && mode == Full {
				violations = append(violations, fmt.Sprintf("Required field '%s' is missing", f.Name))
			}
			continue
		}

		if !MatchesType(f.Type, value) {
			violations = append(violations, fmt.Sprintf("Field '%s' must be %s, got %s",
				f.Name, expectedNames[f.Type], KindOf(value)))
		}

		// Allowed values are checked even when the type check failed.
		if len(f.AllowedValues) > 0 && !contains(f.AllowedValues, value) {
			violations = append(violations, fmt.Sprintf("Field '%s' must be one of %s, got '%v'",
				f.Name, render(f.AllowedValues), value))
		}
	}
	return violations
}

// MatchesType reports whether value is acceptable for a field of type t.
// Booleans are never numbers. Dates are accepted as any string.
func MatchesType(t schema.FieldType, value any) bool {
	switch t {
	case schema.FieldString, schema.FieldDate:
		_, ok := value.(string)
		return ok
	case schema.FieldNumber:
		return isNumber(value)
	case schema.FieldBoolean:
		_, ok := value.(bool)
		return ok
	case schema.FieldArray:
		if value == nil {
			return false
		}
		k := reflect.TypeOf(value).Kind()
		return (k == reflect.Slice || k == reflect.Array) && !isBytes(value)
	case schema.FieldObject:
		if value == nil {
			return false
		}
		rt := reflect.TypeOf(value)
		return rt.Kind() == reflect.Map && rt.Key().Kind() == reflect.String
	}
	return false
}

// KindOf names the JSON kind of value.
func KindOf(value any) string {
	switch {
	case value == nil:
		return "null"
	case isNumber(value):
		return "number"
	}
	switch value.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	}
	switch reflect.TypeOf(value).Kind() {
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map:
		return "object"
	}
	return fmt.Sprintf("%T", value)
}

func isNumber(value any) bool {
	switch value.(type) {
	case float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return true
	}
	return false
}

func isBytes(value any) bool {
	_, ok := value.([]byte)
	return ok
}

func contains(allowed []any, value any) bool {
	v := normalize(value)
	for _, a := range allowed {
		if reflect.DeepEqual(normalize(a), v) {
			return true
		}
	}
	return false
}

// normalize maps every numeric representation onto float64 so that 1 and 1.0
// compare equal, recursing into arrays and objects.
func normalize(value any) any {
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return v.String()
		}
		return f
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = normalize(e)
		}
		return out
	}
	if isNumber(value) {
		return reflect.ValueOf(value).Convert(reflect.TypeOf(float64(0))).Float()
	}
	return value
}

func render(values []any) string {
	b, err := json.Marshal(values)
	if err != nil {
		return fmt.Sprint(values)
	}
	return string(b)
}
