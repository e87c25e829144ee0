package validator_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subrelay/pkg/validator"
)

func TestValidationErrors_Error(t *testing.T) {
	t.Parallel()

	t.Run("returns default message when no errors", func(t *testing.T) {
		t.Parallel()
		var errs validator.ValidationErrors
		assert.Equal(t, "validation failed", errs.Error())
	})

	t.Run("joins field messages", func(t *testing.T) {
		t.Parallel()
		var errs validator.ValidationErrors
		errs.Add(validator.ValidationError{Field: "email", Message: "is required"})
		errs.Add(validator.ValidationError{Field: "userId", Message: "is required"})
		assert.Equal(t, "validation failed: email: is required; userId: is required", errs.Error())
	})
}

func TestValidationErrors_Fields(t *testing.T) {
	t.Parallel()

	errs := validator.ValidationErrors{
		{Field: "email", Message: "field is required"},
		{Field: "email", Message: "must be a valid email address"},
		{Field: "priceId", Message: "field is required"},
	}

	fields := errs.Fields()
	assert.Len(t, fields, 2)
	assert.Equal(t, []string{"field is required", "must be a valid email address"}, fields["email"])
	assert.True(t, errs.Has("priceId"))
	assert.False(t, errs.Has("userId"))
}

func TestApply(t *testing.T) {
	t.Parallel()

	t.Run("nil when all rules pass", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.RequiredString("userId", "u1"),
			validator.ValidEmail("email", "a@b.co"),
		)
		assert.NoError(t, err)
	})

	t.Run("collects every failure", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.RequiredString("userId", " "),
			validator.RequiredString("email", ""),
			validator.ValidEmail("email", ""),
		)
		require.Error(t, err)

		ve := validator.ExtractValidationErrors(err)
		require.Len(t, ve, 2)
		assert.True(t, ve.Has("userId"))
		assert.True(t, ve.Has("email"))
	})

	t.Run("detected through wrapping", func(t *testing.T) {
		t.Parallel()
		err := fmt.Errorf("initiate: %w", validator.Apply(validator.RequiredString("userId", "")))
		assert.True(t, validator.IsValidationError(err))
		assert.False(t, validator.IsValidationError(fmt.Errorf("other")))
	})
}
