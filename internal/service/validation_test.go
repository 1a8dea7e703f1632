package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patientcheck/patientcheck/internal/model"
)

func TestParseCheckRequest_Valid(t *testing.T) {
	req, err := ParseCheckRequest("8888888888", "2000-01-01")
	require.NoError(t, err)
	assert.Equal(t, "8888888888", req.ExternalNumber)
	assert.Equal(t, model.Date{Year: 2000, Month: 1, Day: 1}, req.DateOfBirth)

	// No checksum or length floor: short identifiers are queried as given.
	req, err = ParseCheckRequest("6", "2000-01-01")
	require.NoError(t, err)
	assert.Equal(t, "6", req.ExternalNumber)
}

func TestParseCheckRequest_KeepsNumberVerbatim(t *testing.T) {
	req, err := ParseCheckRequest(" 8888888888 ", "2000-01-01")
	require.NoError(t, err)
	assert.Equal(t, " 8888888888 ", req.ExternalNumber)
}

func TestParseCheckRequest_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		number     string
		dob        string
		wantFields []string
	}{
		{"missing date", "6", "", []string{FieldDateOfBirth}},
		{"missing number", "", "2000-01-01", []string{FieldExternalNumber}},
		{"blank number", "   ", "2000-01-01", []string{FieldExternalNumber}},
		{"both missing", "", "", []string{FieldExternalNumber, FieldDateOfBirth}},
		{"bad date format", "8888888888", "01/01/2000", []string{FieldDateOfBirth}},
		{"impossible date", "8888888888", "2001-02-29", []string{FieldDateOfBirth}},
		{"datetime", "8888888888", "2000-01-01T00:00:00Z", []string{FieldDateOfBirth}},
		{"padded date", "8888888888", " 2000-01-01 ", []string{FieldDateOfBirth}},
		{"number too long", strings.Repeat("9", MaxExternalNumberLength+1), "2000-01-01", []string{FieldExternalNumber}},
		{"control characters", "888\n888", "2000-01-01", []string{FieldExternalNumber}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseCheckRequest(tt.number, tt.dob)
			require.Error(t, err)
			assert.Equal(t, model.CheckRequest{}, req)

			ve, ok := AsValidationError(err)
			require.True(t, ok)

			var got []string
			for _, f := range ve.Fields {
				got = append(got, f.Field)
				assert.NotEmpty(t, f.Message)
			}
			assert.Equal(t, tt.wantFields, got)
		})
	}
}

func TestValidationError_Renamed(t *testing.T) {
	ve := &ValidationError{Fields: []FieldError{
		{Field: FieldExternalNumber, Message: "is required"},
		{Field: FieldDateOfBirth, Message: "is required"},
	}}

	renamed := ve.Renamed(map[string]string{FieldExternalNumber: "nhsNumber"})

	assert.Equal(t, "nhsNumber", renamed.Fields[0].Field)
	assert.Equal(t, FieldDateOfBirth, renamed.Fields[1].Field)
	assert.Equal(t, FieldExternalNumber, ve.Fields[0].Field, "receiver must be untouched")
	assert.Contains(t, renamed.Error(), "nhsNumber: is required")
}
