package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vasiliy-maslov/restaurant-pos/internal/apperr"
)

func TestFieldError(t *testing.T) {
	err := apperr.Fieldf("table_ids[1]", "invalid id %q", "abc")

	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, `table_ids[1]: invalid id "abc"`, err.Error())

	var fe *apperr.FieldError
	if assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &fe)) {
		assert.Equal(t, "table_ids[1]", fe.Field)
	}
}

func TestIsClientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "not_found", err: apperr.NotFound("order", 1), want: true},
		{name: "conflict", err: apperr.Conflict("order %d already paid", 1), want: true},
		{name: "unauthorized", err: apperr.Unauthorized("token expired"), want: true},
		{name: "forbidden", err: apperr.ErrForbidden, want: true},
		{name: "internal", err: errors.New("connection refused"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.IsClientError(tt.err))
		})
	}
}
