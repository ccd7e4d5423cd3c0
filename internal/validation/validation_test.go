package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Seats int    `json:"seats" validate:"min=1"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	err := New().Struct(sample{Email: "not-an-email"})
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))

	fields := map[string]string{}
	for _, f := range verr.Fields {
		fields[f.Field] = f.Error
	}
	assert.Equal(t, "this field is required", fields["name"])
	assert.Equal(t, "must be a valid email address", fields["email"])
	assert.Equal(t, "must be at least 1", fields["seats"])
}

func TestStructAcceptsValidInput(t *testing.T) {
	require.NoError(t, New().Struct(sample{Name: "Ada", Email: "ada@example.com", Seats: 2}))
}

func TestNewError(t *testing.T) {
	err := NewError("passing_score", "required for PASS_FAIL")
	assert.Equal(t, "validation failed: passing_score: required for PASS_FAIL", err.Error())
}
