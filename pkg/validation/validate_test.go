package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginthi/docregistry/pkg/errs"
	"github.com/ginthi/docregistry/pkg/schema"
)

var purchaseOrder = []schema.FieldDefinition{
	{Name: "po_number", Type: schema.FieldString, Required: true},
	{Name: "amount", Type: schema.FieldNumber, Required: true},
	{Name: "status", Type: schema.FieldString, AllowedValues: []any{"open", "closed"}},
	{Name: "delivered_on", Type: schema.FieldDate},
	{Name: "lines", Type: schema.FieldArray},
	{Name: "meta", Type: schema.FieldObject},
	{Name: "urgent", Type: schema.FieldBoolean},
}

func TestValidate_PurchaseOrderScenario(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want []string
	}{
		{
			name: "valid",
			data: map[string]any{"po_number": "PO-1", "amount": 100.0},
		},
		{
			name: "missing required",
			data: map[string]any{"amount": 100.0},
			want: []string{"Required field 'po_number' is missing"},
		},
		{
			name: "wrong type",
			data: map[string]any{"po_number": "PO-1", "amount": "bad"},
			want: []string{"Field 'amount' must be number, got string"},
		},
		{
			name: "several violations are all reported",
			data: map[string]any{"status": "draft", "urgent": "yes"},
			want: []string{
				"Required field 'po_number' is missing",
				"Required field 'amount' is missing",
				`Field 'status' must be one of ["open","closed"], got 'draft'`,
				"Field 'urgent' must be boolean, got string",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Validate(tt.data, purchaseOrder))
		})
	}
}

func TestValidate_TypeMapping(t *testing.T) {
	tests := []struct {
		name  string
		field schema.FieldType
		value any
		ok    bool
	}{
		{"int is number", schema.FieldNumber, 3, true},
		{"float is number", schema.FieldNumber, 3.5, true},
		{"json number is number", schema.FieldNumber, json.Number("12"), true},
		{"bool is not number", schema.FieldNumber, true, false},
		{"numeric string is not number", schema.FieldNumber, "12", false},
		{"any string is a date", schema.FieldDate, "next tuesday", true},
		{"number is not a date", schema.FieldDate, 20240101, false},
		{"array", schema.FieldArray, []any{1, "a"}, true},
		{"typed slice is array", schema.FieldArray, []string{"a"}, true},
		{"object is not array", schema.FieldArray, map[string]any{}, false},
		{"object", schema.FieldObject, map[string]any{"k": 1}, true},
		{"null is not object", schema.FieldObject, nil, false},
		{"bool", schema.FieldBoolean, false, true},
		{"null is not string", schema.FieldString, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, MatchesType(tt.field, tt.value))
		})
	}
}

func TestValidate_AllowedValuesAfterTypeError(t *testing.T) {
	fields := []schema.FieldDefinition{
		{Name: "priority", Type: schema.FieldString, AllowedValues: []any{"low", "high"}},
	}
	got := Validate(map[string]any{"priority": 3.0}, fields)
	assert.Equal(t, []string{
		"Field 'priority' must be string, got number",
		`Field 'priority' must be one of ["low","high"], got '3'`,
	}, got)
}

func TestValidate_AllowedNumbersCompareByValue(t *testing.T) {
	fields := []schema.FieldDefinition{
		{Name: "tier", Type: schema.FieldNumber, AllowedValues: []any{1.0, 2.0}},
	}
	assert.Empty(t, Validate(map[string]any{"tier": 1}, fields))
	assert.Empty(t, Validate(map[string]any{"tier": json.Number("2")}, fields))
	assert.Len(t, Validate(map[string]any{"tier": 3}, fields), 1)
}

func TestValidate_EmptyAllowedValuesAllowsAnything(t *testing.T) {
	fields := []schema.FieldDefinition{{Name: "note", Type: schema.FieldString, AllowedValues: []any{}}}
	assert.Empty(t, Validate(map[string]any{"note": "anything"}, fields))
}

func TestValidate_UndeclaredKeysIgnored(t *testing.T) {
	assert.Empty(t, Validate(map[string]any{"po_number": "PO-1", "amount": 1, "extra": true}, purchaseOrder))
}

func TestValidatePatch(t *testing.T) {
	assert.Empty(t, ValidatePatch(map[string]any{"amount": 5}, purchaseOrder))
	assert.Equal(t, []string{"Field 'amount' must be number, got boolean"},
		ValidatePatch(map[string]any{"amount": false}, purchaseOrder))
}

func TestCheck(t *testing.T) {
	require.NoError(t, Check(map[string]any{"po_number": "PO-1", "amount": 1}, purchaseOrder, Full))

	err := Check(map[string]any{}, purchaseOrder, Full)
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodeValidation))
	assert.Equal(t, "Validation errors: Required field 'po_number' is missing; Required field 'amount' is missing", err.Error())
}
