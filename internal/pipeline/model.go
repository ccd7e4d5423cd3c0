package pipeline

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusAssessmentPending     Status = "ASSESSMENT_PENDING"
	StatusAssessmentCompleted   Status = "ASSESSMENT_COMPLETED"
	StatusOrientationScheduled  Status = "ORIENTATION_SCHEDULED"
	StatusOrientationCompleted  Status = "ORIENTATION_COMPLETED"
	StatusBusinessFormPending   Status = "BUSINESS_FORM_PENDING"
	StatusBusinessFormSubmitted Status = "BUSINESS_FORM_SUBMITTED"
	StatusInterviewScheduled    Status = "INTERVIEW_SCHEDULED"
	StatusInterviewCompleted    Status = "INTERVIEW_COMPLETED"
	StatusApproved              Status = "APPROVED"
	StatusRejected              Status = "REJECTED"
	StatusAcceptancePending     Status = "ACCEPTANCE_PENDING"
	StatusPaymentPending        Status = "PAYMENT_PENDING"
	StatusPaymentCompleted      Status = "PAYMENT_COMPLETED"
	StatusAccountCreated        Status = "ACCOUNT_CREATED"
)

// Statuses lists every pipeline status in pipeline order.
var Statuses = []Status{
	StatusAssessmentPending,
	StatusAssessmentCompleted,
	StatusOrientationScheduled,
	StatusOrientationCompleted,
	StatusBusinessFormPending,
	StatusBusinessFormSubmitted,
	StatusInterviewScheduled,
	StatusInterviewCompleted,
	StatusApproved,
	StatusRejected,
	StatusAcceptancePending,
	StatusPaymentPending,
	StatusPaymentCompleted,
	StatusAccountCreated,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no action may start from s.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusAccountCreated
}

type InterviewResult string

const (
	InterviewApproved InterviewResult = "APPROVED"
	InterviewRejected InterviewResult = "REJECTED"
)

// BusinessForm is filled in once by the prospect through the business form link.
type BusinessForm struct {
	Company         string `json:"company" validate:"required,max=200"`
	Bio             string `json:"bio" validate:"required"`
	Vision          string `json:"vision"`
	Mission         string `json:"mission"`
	Services        string `json:"services" validate:"required"`
	ProposedPricing string `json:"proposed_pricing"`
}

type Payment struct {
	AmountCents int64     `json:"amount_cents" validate:"min=1"`
	Currency    string    `json:"currency" validate:"required,len=3"`
	ProviderRef string    `json:"provider_ref" validate:"required"`
	PaidAt      time.Time `json:"paid_at"`
}

type Prospect struct {
	ID           uuid.UUID
	Name         string
	Email        string
	Phone        *string
	ReferrerName *string
	Status       Status

	// Tokens grant unauthenticated access to one external form each. A nil
	// token has not been issued; an issued token is never replaced.
	AssessmentToken   string
	BusinessFormToken *string
	AcceptanceToken   *string

	OrientationBookingID   *uuid.UUID
	OrientationScheduledAt *time.Time
	OrientationCompletedAt *time.Time
	OrientationNotes       *string

	InterviewScheduledAt *time.Time
	InterviewCompletedAt *time.Time
	InterviewNotes       *string
	InterviewResult      *InterviewResult

	BusinessForm   *BusinessForm
	Payment        *Payment
	CoachProfileID *uuid.UUID
	Notes          *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatusHistory is one append-only row per successful transition.
type StatusHistory struct {
	ID         uuid.UUID
	ProspectID uuid.UUID
	FromStatus *Status
	ToStatus   Status
	Notes      *string
	Actor      *string
	CreatedAt  time.Time
}
