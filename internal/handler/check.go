package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/patientcheck/patientcheck/internal/auth"
	"github.com/patientcheck/patientcheck/internal/handler/dto"
	"github.com/patientcheck/patientcheck/internal/model"
	"github.com/patientcheck/patientcheck/internal/service"
)

// CheckIDHeader carries the check ID for support correlation.
const CheckIDHeader = "X-Check-ID"

// Checker answers verification requests.
type Checker interface {
	Check(ctx context.Context, req model.CheckRequest) (*model.CheckOutcome, error)
}

// CheckHandler handles patient verification requests.
type CheckHandler struct {
	svc    Checker
	logger *slog.Logger
}

// NewCheckHandler creates a new CheckHandler.
func NewCheckHandler(svc Checker, logger *slog.Logger) *CheckHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckHandler{
		svc:    svc,
		logger: logger,
	}
}

// Check handles POST /api/v1/checks.
func (h *CheckHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req dto.CheckRequest
	if !h.decode(w, r, &req, nil) {
		return
	}

	result, ok := h.run(w, r, string(req.ExternalNumber), string(req.DateOfBirth), nil)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dto.ToCheckResponse(result))
}

// LegacyCheck handles POST /radar_check/, the partner-compatible route.
func (h *CheckHandler) LegacyCheck(w http.ResponseWriter, r *http.Request) {
	var req dto.LegacyCheckRequest
	if !h.decode(w, r, &req, dto.LegacyFieldNames) {
		return
	}

	result, ok := h.run(w, r, string(req.NHSNumber), string(req.DateOfBirth), dto.LegacyFieldNames)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dto.ToLegacyCheckResponse(result))
}

// decode reads a JSON object body into dst, writing the error response on failure.
func (h *CheckHandler) decode(w http.ResponseWriter, r *http.Request, dst any, names map[string]string) bool {
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(dst)
	if err == nil {
		err = expectEOF(dec)
	}
	if err == nil {
		return true
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
		return false
	}

	field := "body"
	message := "must be a JSON object"
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		message = "is required"
	case errors.As(err, &typeErr) && typeErr.Field != "":
		field = typeErr.Field
		message = "has the wrong type"
	case errors.Is(err, dto.ErrNotText):
		message = "fields must be strings"
	}

	h.writeValidationError(w, &service.ValidationError{
		Fields: []service.FieldError{{Field: field, Message: message}},
	}, names)
	return false
}

// errTrailingData is returned when a body holds more than one JSON value.
var errTrailingData = errors.New("unexpected data after JSON object")

// expectEOF fails unless the decoder has consumed the whole body.
func expectEOF(dec *json.Decoder) error {
	err := dec.Decode(&json.RawMessage{})
	switch {
	case err == nil:
		return errTrailingData
	case errors.Is(err, io.EOF):
		return nil
	default:
		return err
	}
}

// run validates the fields and performs the check, writing the error response on failure.
func (h *CheckHandler) run(w http.ResponseWriter, r *http.Request, number, dateOfBirth string, names map[string]string) (model.CheckResult, bool) {
	req, err := service.ParseCheckRequest(number, dateOfBirth)
	if err != nil {
		if ve, ok := service.AsValidationError(err); ok {
			h.writeValidationError(w, ve, names)
			return model.CheckResult{}, false
		}
		h.handleServiceError(w, r, err)
		return model.CheckResult{}, false
	}

	outcome, err := h.svc.Check(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return model.CheckResult{}, false
	}

	h.logger.Info("check_completed",
		"check_id", outcome.ID,
		"source", outcome.Source,
		"credential_id", auth.CredentialIDFromContext(r.Context()),
	)

	w.Header().Set(CheckIDHeader, outcome.ID)
	return outcome.Result, true
}

func (h *CheckHandler) writeValidationError(w http.ResponseWriter, ve *service.ValidationError, names map[string]string) {
	if names != nil {
		ve = ve.Renamed(names)
	}
	writeJSON(w, http.StatusUnprocessableEntity, dto.ErrorResponse{
		Error:  "Request validation failed",
		Code:   "VALIDATION_FAILED",
		Fields: ve.Fields,
	})
}

// handleServiceError maps service errors to HTTP responses.
func (h *CheckHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Patient records are temporarily unavailable")
	default:
		h.logger.Error("check failed",
			"error", err,
			"credential_id", auth.CredentialIDFromContext(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
