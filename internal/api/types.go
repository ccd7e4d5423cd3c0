package api

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hackgods/coach-onboarding/internal/availability"
	"github.com/hackgods/coach-onboarding/internal/pipeline"
	"github.com/hackgods/coach-onboarding/internal/survey"
	"github.com/hackgods/coach-onboarding/internal/validation"
)

type NotesRequest struct {
	Notes *string `json:"notes"`
}

type ScheduleInterviewRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       *string   `json:"notes"`
}

type InterviewResultRequest struct {
	Result pipeline.InterviewResult `json:"result"`
	Notes  *string                  `json:"notes"`
}

type BookingRequest struct {
	SlotID     uuid.UUID                  `json:"slot_id"`
	Date       civil.Date                 `json:"date"`
	Booker     availability.Booker        `json:"booker"`
	ProspectID *uuid.UUID                 `json:"prospect_id"`
	Status     availability.BookingStatus `json:"status"`
}

type BookingStatusRequest struct {
	Status availability.BookingStatus `json:"status"`
}

type ReorderRequest struct {
	QuestionIDs []uuid.UUID `json:"question_ids"`
}

type ErrorResponse struct {
	Error   string                  `json:"error"`
	Details string                  `json:"details,omitempty"`
	Fields  []validation.FieldError `json:"fields,omitempty"`
	Answers []survey.AnswerError    `json:"answers,omitempty"`
}
