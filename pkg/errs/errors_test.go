package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"direct", New(CodeNotFound, "missing"), CodeNotFound},
		{"wrapped by fmt", fmt.Errorf("outer: %w", New(CodeConflict, "dup")), CodeConflict},
		{"wrap", Wrap(errors.New("boom"), CodeInternal, "store failed"), CodeInternal},
		{"plain error", errors.New("plain"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("get schema: %w", New(CodeNotFound, "schema not found"))
	assert.True(t, HasCode(err, CodeNotFound))
	assert.False(t, HasCode(err, CodeForbidden))
	assert.False(t, HasCode(nil, CodeNotFound))
}

func TestValidation(t *testing.T) {
	err := Validation([]string{"Required field 'po_number' is missing", "Field 'amount' must be number, got string"})

	assert.Equal(t, CodeValidation, err.Code)
	assert.Equal(t, "Validation errors: Required field 'po_number' is missing; Field 'amount' must be number, got string", err.Error())
	assert.Len(t, ViolationsOf(fmt.Errorf("create: %w", err)), 2)
}

func TestWrapUnwrap(t *testing.T) {
	base := errors.New("connection refused")
	err := Wrap(base, CodeInternal, "")

	assert.ErrorIs(t, err, base)
	assert.Equal(t, "connection refused", err.Error())
}
