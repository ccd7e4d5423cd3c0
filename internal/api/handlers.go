package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/coach-onboarding/internal/accounts"
	"github.com/hackgods/coach-onboarding/internal/availability"
	"github.com/hackgods/coach-onboarding/internal/pipeline"
	redisclient "github.com/hackgods/coach-onboarding/internal/redis"
	"github.com/hackgods/coach-onboarding/internal/survey"
	"github.com/hackgods/coach-onboarding/internal/validation"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: a missing slot is both ErrSlotUnavailable and ErrSlotNotFound
// and is reported as unavailable.
var errorMappings = []errorMapping{
	{pipeline.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{pipeline.ErrAlreadyLinked, http.StatusConflict, "already_linked"},
	{availability.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},
	{survey.ErrRetakeNotAllowed, http.StatusConflict, "retake_not_allowed"},
	{survey.ErrSurveyNotOpen, http.StatusConflict, "survey_not_open"},
	{survey.ErrInvalidStatus, http.StatusConflict, "invalid_status"},
	{availability.ErrInvalidBookingStatus, http.StatusConflict, "invalid_booking_status"},
	{accounts.ErrEmailTaken, http.StatusConflict, "email_taken"},
	{pipeline.ErrProspectBusy, http.StatusConflict, "resource_busy"},
	{availability.ErrSlotBusy, http.StatusConflict, "resource_busy"},
	{survey.ErrSubmissionBusy, http.StatusConflict, "resource_busy"},
	{redisclient.ErrLockNotAcquired, http.StatusConflict, "resource_busy"},
	{pipeline.ErrProspectNotFound, http.StatusNotFound, "prospect_not_found"},
	{pipeline.ErrTokenNotFound, http.StatusNotFound, "token_not_found"},
	{availability.ErrCalendarNotFound, http.StatusNotFound, "calendar_not_found"},
	{availability.ErrSlotNotFound, http.StatusNotFound, "slot_not_found"},
	{availability.ErrBookingNotFound, http.StatusNotFound, "booking_not_found"},
	{survey.ErrSurveyNotFound, http.StatusNotFound, "survey_not_found"},
	{survey.ErrQuestionNotFound, http.StatusNotFound, "question_not_found"},
	{survey.ErrQuestionMismatch, http.StatusNotFound, "question_not_found"},
	{availability.ErrCalendarMismatch, http.StatusBadRequest, "calendar_mismatch"},
	{survey.ErrInvalidReorder, http.StatusBadRequest, "invalid_reorder"},
}

// writeServiceError maps a service error onto a status and a stable code.
// Anything unrecognised is logged and reported as a bare 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Fields: verr.Fields})
		return
	}

	var answers survey.AnswerErrors
	if errors.As(err, &answers) {
		code := "invalid_answer_format"
		if errors.Is(err, survey.ErrMissingRequiredAnswer) {
			code = "missing_required_answer"
		}
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: code, Answers: answers})
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}

	loggerFrom(r.Context()).Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "")
}
