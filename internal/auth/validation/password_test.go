package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy(t *testing.T) {
	t.Parallel()

	v := NewPasswordValidator(DefaultPasswordPolicy())

	tests := []struct {
		name     string
		password string
		want     error
	}{
		{"valid", "Sup3rSecret", nil},
		{"valid with special", "Sup3r$ecret", nil},
		{"too short", "Ab1", ErrPasswordTooShort},
		{"too long", strings.Repeat("Aa1", 50), ErrPasswordTooLong},
		{"no uppercase", "sup3rsecret", ErrMissingUppercase},
		{"no lowercase", "SUP3RSECRET", ErrMissingLowercase},
		{"no number", "SuperSecret", ErrMissingNumber},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, v.Validate(tt.password), tt.want)
		})
	}
}

func TestRequireSpecial(t *testing.T) {
	t.Parallel()

	policy := DefaultPasswordPolicy()
	policy.RequireSpecial = true
	v := NewPasswordValidator(policy)

	assert.ErrorIs(t, v.Validate("Sup3rSecret"), ErrMissingSpecial)
	assert.NoError(t, v.Validate("Sup3r$ecret"))
}
