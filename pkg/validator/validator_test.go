package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/campaign-api/pkg/errors"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "+1234567890", "+1234567890", false},
		{"dashes", "+1-234-567-890", "+1234567890", false},
		{"spaces", " +1 234 567 890 ", "+1234567890", false},
		{"parentheses", "+1 (234) 567-890", "+1234567890", false},
		{"tab and newline", "+1\t234\n567890", "+1234567890", false},
		{"fifteen digits", "+123456789012345", "+123456789012345", false},
		{"missing plus", "1234567890", "", true},
		{"too short", "+123456789", "", true},
		{"too long", "+1234567890123456", "", true},
		{"letters", "+12345abc890", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				appErr, ok := errors.As(err)
				require.True(t, ok)
				assert.Equal(t, errors.ErrValidation, appErr.Code)
				assert.Equal(t, "phone_number", appErr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePhoneIsIdempotent(t *testing.T) {
	variants := []string{"+44 20 7946 0958", "+44-20-7946-0958", "+442079460958", "+44 (20) 7946-0958"}

	var first string
	for i, v := range variants {
		got, err := NormalizePhone(v)
		require.NoError(t, err)
		if i == 0 {
			first = got
		}
		assert.Equal(t, first, got)

		again, err := NormalizePhone(got)
		require.NoError(t, err)
		assert.Equal(t, got, again)
	}
}

func TestNormalizeEmail(t *testing.T) {
	got, err := NormalizeEmail("  Jane.Doe@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", got)

	for _, bad := range []string{"jane", "jane@", "@example.com", "jane doe@example.com"} {
		_, err := NormalizeEmail(bad)
		require.Error(t, err, bad)
		appErr, ok := errors.As(err)
		require.True(t, ok)
		assert.Equal(t, "email", appErr.Field)
	}
}

func TestStructReportsJSONFieldName(t *testing.T) {
	type input struct {
		Name string `json:"name" validate:"required,min=1,max=5"`
	}

	err := Struct(&input{Name: "too long name"})
	require.Error(t, err)
	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrValidation, appErr.Code)
	assert.Equal(t, "name", appErr.Field)
	assert.Contains(t, appErr.Message, "must not exceed 5")

	assert.NoError(t, Struct(&input{Name: "ok"}))
}

func TestStructOptionalPointerMustNotBeBlank(t *testing.T) {
	type input struct {
		Name *string `json:"name" validate:"omitnil,min=1,max=5"`
	}

	assert.NoError(t, Struct(&input{}))

	blank := ""
	appErr, ok := errors.As(Struct(&input{Name: &blank}))
	require.True(t, ok)
	assert.Equal(t, "name", appErr.Field)
	assert.Equal(t, "name is required", appErr.Message)
}
