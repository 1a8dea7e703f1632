package service

import (
	"errors"
	"strings"
	"unicode"

	"github.com/patientcheck/patientcheck/internal/model"
)

// Request field names on the canonical route.
const (
	FieldExternalNumber = "externalNumber"
	FieldDateOfBirth    = "dateOfBirth"
)

// MaxExternalNumberLength bounds the identifier accepted from callers.
const MaxExternalNumberLength = 32

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every invalid field of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Renamed returns a copy with field names mapped through names.
// Unmapped fields keep their name.
func (e *ValidationError) Renamed(names map[string]string) *ValidationError {
	out := &ValidationError{Fields: make([]FieldError, len(e.Fields))}
	for i, f := range e.Fields {
		if to, ok := names[f.Field]; ok {
			f.Field = to
		}
		out.Fields[i] = f
	}
	return out
}

// AsValidationError unwraps err into a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// ParseCheckRequest validates raw input. The number is passed through as
// given and must match a registered identifier exactly; its format is not
// checked so any registered identifier can be queried.
func ParseCheckRequest(number, dateOfBirth string) (model.CheckRequest, error) {
	var (
		req    model.CheckRequest
		fields []FieldError
	)

	switch {
	case strings.TrimSpace(number) == "":
		fields = append(fields, FieldError{Field: FieldExternalNumber, Message: "is required"})
	case len(number) > MaxExternalNumberLength:
		fields = append(fields, FieldError{Field: FieldExternalNumber, Message: "is too long"})
	case strings.IndexFunc(number, unicode.IsControl) >= 0:
		fields = append(fields, FieldError{Field: FieldExternalNumber, Message: "contains control characters"})
	default:
		req.ExternalNumber = number
	}

	if strings.TrimSpace(dateOfBirth) == "" {
		fields = append(fields, FieldError{Field: FieldDateOfBirth, Message: "is required"})
	} else if dob, err := model.ParseDate(dateOfBirth); err != nil {
		fields = append(fields, FieldError{Field: FieldDateOfBirth, Message: "must be a date in YYYY-MM-DD format"})
	} else {
		req.DateOfBirth = dob
	}

	if len(fields) > 0 {
		return model.CheckRequest{}, &ValidationError{Fields: fields}
	}
	return req, nil
}
