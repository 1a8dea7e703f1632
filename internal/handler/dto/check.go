// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/patientcheck/patientcheck/internal/model"
	"github.com/patientcheck/patientcheck/internal/service"
)

// ErrNotText is returned when a field holds neither a string nor a number.
var ErrNotText = errors.New("must be a string")

// Text is a request field that accepts a JSON string or a bare JSON number.
// Partners commonly send identifiers as numbers. null decodes to "".
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*t = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return ErrNotText
	}
	*t = Text(n.String())
	return nil
}

// CheckRequest is the body of POST /api/v1/checks.
type CheckRequest struct {
	ExternalNumber Text `json:"externalNumber"`
	DateOfBirth    Text `json:"dateOfBirth"`
}

// CheckResponse is the answer to POST /api/v1/checks.
type CheckResponse struct {
	NumberMatched bool `json:"numberMatched"`
	DateMatched   bool `json:"dateMatched"`
}

// LegacyCheckRequest is the body of POST /radar_check/.
type LegacyCheckRequest struct {
	NHSNumber   Text `json:"nhsNumber"`
	DateOfBirth Text `json:"dateOfBirth"`
}

// LegacyCheckResponse is the answer to POST /radar_check/.
// Each field reports whether the submitted value of the same name matched.
type LegacyCheckResponse struct {
	NHSNumber   bool `json:"nhsNumber"`
	DateOfBirth bool `json:"dateOfBirth"`
}

// LegacyFieldNames maps canonical request fields to their legacy names.
var LegacyFieldNames = map[string]string{
	service.FieldExternalNumber: "nhsNumber",
	service.FieldDateOfBirth:    "dateOfBirth",
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error  string               `json:"error"`
	Code   string               `json:"code"`
	Fields []service.FieldError `json:"fields,omitempty"`
}

// ToCheckResponse converts a check result to its canonical response.
func ToCheckResponse(r model.CheckResult) *CheckResponse {
	return &CheckResponse{
		NumberMatched: r.NumberMatched,
		DateMatched:   r.DateMatched,
	}
}

// ToLegacyCheckResponse converts a check result to the legacy response.
func ToLegacyCheckResponse(r model.CheckResult) *LegacyCheckResponse {
	return &LegacyCheckResponse{
		NHSNumber:   r.NumberMatched,
		DateOfBirth: r.DateMatched,
	}
}
