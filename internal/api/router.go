package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/coach-onboarding/internal/availability"
	"github.com/hackgods/coach-onboarding/internal/pipeline"
	"github.com/hackgods/coach-onboarding/internal/survey"
	"github.com/hackgods/coach-onboarding/pkg/logging"
)

type ProspectService interface {
	CreateProspect(ctx context.Context, in pipeline.NewProspect) (*pipeline.Prospect, error)
	Get(ctx context.Context, id uuid.UUID) (*pipeline.Prospect, error)
	List(ctx context.Context, f pipeline.ListFilter) ([]pipeline.Prospect, error)
	History(ctx context.Context, id uuid.UUID) ([]pipeline.StatusHistory, error)
	CompleteAssessment(ctx context.Context, token string) (*pipeline.Prospect, error)
	ScheduleOrientation(ctx context.Context, id uuid.UUID, req pipeline.OrientationRequest) (*pipeline.Orientation, error)
	CompleteOrientation(ctx context.Context, id uuid.UUID, notes *string) (*pipeline.Prospect, error)
	GenerateBusinessFormToken(ctx context.Context, id uuid.UUID) (*pipeline.Prospect, error)
	SubmitBusinessForm(ctx context.Context, token string, form pipeline.BusinessForm) (*pipeline.Prospect, error)
	ScheduleInterview(ctx context.Context, id uuid.UUID, when time.Time, notes *string) (*pipeline.Prospect, error)
	CompleteInterview(ctx context.Context, id uuid.UUID, result pipeline.InterviewResult, notes *string) (*pipeline.Prospect, error)
	GenerateAcceptanceToken(ctx context.Context, id uuid.UUID) (*pipeline.Prospect, error)
	AcceptOffer(ctx context.Context, token string) (*pipeline.Prospect, error)
	RecordPayment(ctx context.Context, id uuid.UUID, pay pipeline.Payment) (*pipeline.Prospect, error)
	CreateCoachFromProspect(ctx context.Context, id uuid.UUID) (*pipeline.Account, error)
	Reject(ctx context.Context, id uuid.UUID, notes *string) (*pipeline.Prospect, error)
}

type AvailabilityService interface {
	CreateCalendar(ctx context.Context, in availability.NewCalendar) (*availability.Calendar, error)
	CreateSlot(ctx context.Context, calendarID uuid.UUID, in availability.NewSlot) (*availability.CalendarSlot, error)
	DeactivateSlot(ctx context.Context, slotID uuid.UUID) (*availability.CalendarSlot, error)
	ListAvailableSlots(ctx context.Context, calendarID uuid.UUID, lookaheadDays int) (*availability.Availability, error)
	ReserveSlot(ctx context.Context, req availability.ReserveRequest) (*availability.Reservation, error)
	CancelBooking(ctx context.Context, bookingID uuid.UUID) (*availability.Booking, error)
	UpdateBookingStatus(ctx context.Context, bookingID uuid.UUID, to availability.BookingStatus) (*availability.Booking, error)
}

type SurveyService interface {
	CreateSurvey(ctx context.Context, in survey.Settings) (*survey.Survey, error)
	UpdateSurvey(ctx context.Context, id uuid.UUID, in survey.Settings) (*survey.Survey, error)
	GetSurvey(ctx context.Context, id uuid.UUID) (*survey.Survey, error)
	ListSurveys(ctx context.Context) ([]survey.Survey, error)
	Publish(ctx context.Context, id uuid.UUID) (*survey.Survey, error)
	Close(ctx context.Context, id uuid.UUID) (*survey.Survey, error)
	AddQuestion(ctx context.Context, surveyID uuid.UUID, in survey.QuestionInput) (*survey.Question, error)
	UpdateQuestion(ctx context.Context, surveyID, questionID uuid.UUID, in survey.QuestionInput) (*survey.Question, error)
	DeleteQuestion(ctx context.Context, surveyID, questionID uuid.UUID) error
	ListQuestions(ctx context.Context, surveyID uuid.UUID) ([]survey.Question, error)
	ReorderQuestions(ctx context.Context, surveyID uuid.UUID, ids []uuid.UUID) ([]survey.Question, error)
	Submit(ctx context.Context, surveyID uuid.UUID, sub survey.Submission) (*survey.SubmissionResult, error)
	ListResults(ctx context.Context, surveyID uuid.UUID) ([]survey.SubmissionResult, error)
}

type RouterConfig struct {
	Prospects    ProspectService
	Availability AvailabilityService
	Surveys      SurveyService
	PgPool       Pinger
	Redis        *redis.Client
	Gatherer     prometheus.Gatherer
	Logger       *zap.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logging.OrNop(cfg.Logger)))
	r.Use(TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(ActorMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Prospect pipeline
	p := cfg.Prospects
	r.Route("/prospects", func(r chi.Router) {
		r.Post("/", createProspectHandler(p))
		r.Get("/", listProspectsHandler(p))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getProspectHandler(p))
			r.Get("/history", prospectHistoryHandler(p))
			r.Post("/orientation", scheduleOrientationHandler(p))
			r.Post("/orientation/complete", completeOrientationHandler(p))
			r.Post("/business-form-token", businessFormTokenHandler(p))
			r.Post("/interview", scheduleInterviewHandler(p))
			r.Post("/interview/result", completeInterviewHandler(p))
			r.Post("/acceptance-token", acceptanceTokenHandler(p))
			r.Post("/payment", recordPaymentHandler(p))
			r.Post("/account", createAccountHandler(p))
			r.Post("/reject", rejectProspectHandler(p))
		})
	})

	// Callbacks from the external assessment, business form and offer pages
	r.Post("/assessments/{token}/complete", completeAssessmentHandler(p))
	r.Post("/business-forms/{token}", submitBusinessFormHandler(p))
	r.Post("/offers/{token}/accept", acceptOfferHandler(p))

	// Availability
	a := cfg.Availability
	r.Post("/calendars", createCalendarHandler(a))
	r.Post("/calendars/{id}/slots", createSlotHandler(a))
	r.Get("/calendars/{id}/availability", listAvailabilityHandler(a))
	r.Post("/calendars/{id}/bookings", reserveSlotHandler(a))
	r.Delete("/slots/{id}", deactivateSlotHandler(a))
	r.Post("/bookings/{id}/cancel", cancelBookingHandler(a))
	r.Post("/bookings/{id}/status", bookingStatusHandler(a))

	// Surveys and quizzes
	s := cfg.Surveys
	r.Route("/surveys", func(r chi.Router) {
		r.Post("/", createSurveyHandler(s))
		r.Get("/", listSurveysHandler(s))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getSurveyHandler(s))
			r.Put("/", updateSurveyHandler(s))
			r.Post("/publish", publishSurveyHandler(s))
			r.Post("/close", closeSurveyHandler(s))
			r.Get("/questions", listQuestionsHandler(s))
			r.Post("/questions", addQuestionHandler(s))
			r.Put("/questions/order", reorderQuestionsHandler(s))
			r.Put("/questions/{question_id}", updateQuestionHandler(s))
			r.Delete("/questions/{question_id}", deleteQuestionHandler(s))
			r.Post("/submissions", submitSurveyHandler(s))
			r.Get("/results", listResultsHandler(s))
		})
	})

	return r
}
