package validator_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/subrelay/pkg/validator"
)

func TestValidEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		email string
		valid bool
	}{
		{"", true},
		{"user@example.com", true},
		{"first.last+tag@mail.example.org", true},
		{"user@localhost", false},
		{"user@example..com", false},
		{"@example.com", false},
		{"Name <user@example.com>", false},
		{"not-an-email", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.valid, validator.ValidEmail("email", tt.email).Check())
		})
	}
}

func TestValidURL(t *testing.T) {
	t.Parallel()

	assert.True(t, validator.ValidURL("url", "").Check())
	assert.True(t, validator.ValidURL("url", "https://example.com/success").Check())
	assert.False(t, validator.ValidURL("url", "ftp://example.com").Check())
	assert.False(t, validator.ValidURL("url", "/relative").Check())
}

func TestStringRules(t *testing.T) {
	t.Parallel()

	assert.False(t, validator.RequiredString("f", "\t").Check())
	assert.True(t, validator.RequiredString("f", "x").Check())
	assert.True(t, validator.MaxLenString("f", strings.Repeat("a", 4), 4).Check())
	assert.False(t, validator.MaxLenString("f", strings.Repeat("a", 5), 4).Check())
	assert.True(t, validator.OneOf("f", "mongo", "mongo", "postgres").Check())
	assert.False(t, validator.OneOf("f", "mysql", "mongo", "postgres").Check())
}
