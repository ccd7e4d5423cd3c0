package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hackgods/coach-onboarding/internal/availability"
	"github.com/hackgods/coach-onboarding/internal/pipeline"
	"github.com/hackgods/coach-onboarding/internal/survey"
	"github.com/hackgods/coach-onboarding/internal/validation"
)

// Stubs embed the interface so only the methods a test needs are implemented.

type stubProspects struct {
	ProspectService
	create func(ctx context.Context, in pipeline.NewProspect) (*pipeline.Prospect, error)
	reject func(ctx context.Context, id uuid.UUID, notes *string) (*pipeline.Prospect, error)
	list   func(ctx context.Context, f pipeline.ListFilter) ([]pipeline.Prospect, error)
}

func (s stubProspects) CreateProspect(ctx context.Context, in pipeline.NewProspect) (*pipeline.Prospect, error) {
	return s.create(ctx, in)
}

func (s stubProspects) Reject(ctx context.Context, id uuid.UUID, notes *string) (*pipeline.Prospect, error) {
	return s.reject(ctx, id, notes)
}

func (s stubProspects) List(ctx context.Context, f pipeline.ListFilter) ([]pipeline.Prospect, error) {
	return s.list(ctx, f)
}

type stubAvailability struct {
	AvailabilityService
	reserve func(ctx context.Context, req availability.ReserveRequest) (*availability.Reservation, error)
}

func (s stubAvailability) ReserveSlot(ctx context.Context, req availability.ReserveRequest) (*availability.Reservation, error) {
	return s.reserve(ctx, req)
}

type stubSurveys struct {
	SurveyService
	survey *survey.Survey
	submit func(ctx context.Context, id uuid.UUID, sub survey.Submission) (*survey.SubmissionResult, error)
}

func (s stubSurveys) GetSurvey(ctx context.Context, id uuid.UUID) (*survey.Survey, error) {
	if s.survey == nil || s.survey.ID != id {
		return nil, survey.ErrSurveyNotFound
	}
	return s.survey, nil
}

func (s stubSurveys) Submit(ctx context.Context, id uuid.UUID, sub survey.Submission) (*survey.SubmissionResult, error) {
	return s.submit(ctx, id, sub)
}

func newTestRouter(t *testing.T, cfg RouterConfig) http.Handler {
	t.Helper()
	cfg.Logger = zaptest.NewLogger(t)
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.NewRegistry()
	}
	return NewRouter(cfg)
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestWriteServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid transition", fmt.Errorf("%w: approve from NEW", pipeline.ErrInvalidTransition), http.StatusConflict, "invalid_transition"},
		{"already linked", pipeline.ErrAlreadyLinked, http.StatusConflict, "already_linked"},
		{"slot unavailable", availability.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},
		{"missing slot reads as unavailable", fmt.Errorf("%w: %w", availability.ErrSlotUnavailable, availability.ErrSlotNotFound), http.StatusConflict, "slot_unavailable"},
		{"retake", survey.ErrRetakeNotAllowed, http.StatusConflict, "retake_not_allowed"},
		{"busy", pipeline.ErrProspectBusy, http.StatusConflict, "resource_busy"},
		{"prospect not found", pipeline.ErrProspectNotFound, http.StatusNotFound, "prospect_not_found"},
		{"token not found", pipeline.ErrTokenNotFound, http.StatusNotFound, "token_not_found"},
		{"survey not found", fmt.Errorf("load: %w", survey.ErrSurveyNotFound), http.StatusNotFound, "survey_not_found"},
		{"invalid reorder", survey.ErrInvalidReorder, http.StatusBadRequest, "invalid_reorder"},
		{"validation", validation.NewError("email", "must be a valid email address"), http.StatusBadRequest, "validation_failed"},
		{"missing answer", survey.AnswerErrors{
			{QuestionID: uuid.New(), Reason: "bad", Err: survey.ErrInvalidAnswerFormat},
			{QuestionID: uuid.New(), Reason: "an answer is required", Err: survey.ErrMissingRequiredAnswer},
		}, http.StatusUnprocessableEntity, "missing_required_answer"},
		{"bad answer", survey.AnswerErrors{
			{QuestionID: uuid.New(), Reason: "bad", Err: survey.ErrInvalidAnswerFormat},
		}, http.StatusUnprocessableEntity, "invalid_answer_format"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Error)
		})
	}
}

func TestWriteServiceErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password authentication failed"))

	assert.NotContains(t, rec.Body.String(), "password")
}

func TestCreateProspect(t *testing.T) {
	var got pipeline.NewProspect
	h := newTestRouter(t, RouterConfig{Prospects: stubProspects{
		create: func(_ context.Context, in pipeline.NewProspect) (*pipeline.Prospect, error) {
			got = in
			return &pipeline.Prospect{ID: uuid.New(), Name: in.Name, Email: in.Email, Status: pipeline.StatusAssessmentPending}, nil
		},
	}})

	rec := do(t, h, http.MethodPost, "/prospects", `{"name":"Jordan Lee","email":"jordan@example.com"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Jordan Lee", got.Name)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var p pipeline.Prospect
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, pipeline.StatusAssessmentPending, p.Status)
}

func TestCreateProspectBadBody(t *testing.T) {
	h := newTestRouter(t, RouterConfig{Prospects: stubProspects{}})

	rec := do(t, h, http.MethodPost, "/prospects", `{"name":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request_body", decodeError(t, rec).Error)
}

func TestRejectCarriesActorAndNotes(t *testing.T) {
	var (
		actor *string
		notes *string
	)
	id := uuid.New()
	h := newTestRouter(t, RouterConfig{Prospects: stubProspects{
		reject: func(ctx context.Context, got uuid.UUID, n *string) (*pipeline.Prospect, error) {
			actor = pipeline.ActorFrom(ctx)
			notes = n
			return &pipeline.Prospect{ID: got, Status: pipeline.StatusRejected}, nil
		},
	}})

	rec := do(t, h, http.MethodPost, "/prospects/"+id.String()+"/reject", `{"notes":"not a fit"}`,
		map[string]string{"X-Actor": "admin@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, actor)
	assert.Equal(t, "admin@example.com", *actor)
	require.NotNil(t, notes)
	assert.Equal(t, "not a fit", *notes)

	rec = do(t, h, http.MethodPost, "/prospects/"+id.String()+"/reject", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, actor)
	assert.Nil(t, notes)
}

func TestInvalidTransitionIsConflict(t *testing.T) {
	h := newTestRouter(t, RouterConfig{Prospects: stubProspects{
		reject: func(context.Context, uuid.UUID, *string) (*pipeline.Prospect, error) {
			return nil, fmt.Errorf("%w: reject from REJECTED", pipeline.ErrInvalidTransition)
		},
	}})

	rec := do(t, h, http.MethodPost, "/prospects/"+uuid.NewString()+"/reject", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeError(t, rec).Error)
}

func TestInvalidUUIDParam(t *testing.T) {
	h := newTestRouter(t, RouterConfig{Prospects: stubProspects{}})

	rec := do(t, h, http.MethodPost, "/prospects/not-a-uuid/reject", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_id", decodeError(t, rec).Error)
}

func TestListProspectsQuery(t *testing.T) {
	var got pipeline.ListFilter
	h := newTestRouter(t, RouterConfig{Prospects: stubProspects{
		list: func(_ context.Context, f pipeline.ListFilter) ([]pipeline.Prospect, error) {
			got = f
			return nil, nil
		},
	}})

	rec := do(t, h, http.MethodGet, "/prospects?status=INTERVIEW_SCHEDULED&limit=20&offset=40", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	require.NotNil(t, got.Status)
	assert.Equal(t, pipeline.StatusInterviewScheduled, *got.Status)
	assert.Equal(t, 20, got.Limit)
	assert.Equal(t, 40, got.Offset)

	rec = do(t, h, http.MethodGet, "/prospects?limit=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_limit", decodeError(t, rec).Error)
}

func TestReserveSlot(t *testing.T) {
	calendarID, slotID := uuid.New(), uuid.New()
	var got availability.ReserveRequest
	h := newTestRouter(t, RouterConfig{Availability: stubAvailability{
		reserve: func(_ context.Context, req availability.ReserveRequest) (*availability.Reservation, error) {
			got = req
			if req.Booker.Name == "late" {
				return nil, availability.ErrSlotUnavailable
			}
			return &availability.Reservation{MeetingLink: "https://meet.example.com/x"}, nil
		},
	}})

	body := `{"slot_id":"` + slotID.String() + `","date":"2026-10-19","booker":{"name":"%s","email":"a@example.com"}}`
	rec := do(t, h, http.MethodPost, "/calendars/"+calendarID.String()+"/bookings", fmt.Sprintf(body, "Alex"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, calendarID, got.CalendarID)
	assert.Equal(t, slotID, got.SlotID)
	assert.Equal(t, "2026-10-19", got.Date.String())

	rec = do(t, h, http.MethodPost, "/calendars/"+calendarID.String()+"/bookings", fmt.Sprintf(body, "late"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_unavailable", decodeError(t, rec).Error)
}

func TestSubmitSurveyHidesScore(t *testing.T) {
	sv := &survey.Survey{ID: uuid.New(), ShowResults: false, Status: survey.StatusPublished}
	pct, passed := 80, true
	h := newTestRouter(t, RouterConfig{Surveys: stubSurveys{
		survey: sv,
		submit: func(_ context.Context, id uuid.UUID, sub survey.Submission) (*survey.SubmissionResult, error) {
			return &survey.SubmissionResult{ID: uuid.New(), SurveyID: id, ScorePercentage: &pct, Passed: &passed, CorrectCount: 4, ScoreableCount: 5}, nil
		},
	}})

	rec := do(t, h, http.MethodPost, "/surveys/"+sv.ID.String()+"/submissions", `{"answers":{}}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var res survey.SubmissionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Nil(t, res.ScorePercentage)
	assert.Nil(t, res.Passed)
}

func TestSubmitSurveyAnswerErrors(t *testing.T) {
	sv := &survey.Survey{ID: uuid.New()}
	qid := uuid.New()
	h := newTestRouter(t, RouterConfig{Surveys: stubSurveys{
		survey: sv,
		submit: func(context.Context, uuid.UUID, survey.Submission) (*survey.SubmissionResult, error) {
			return nil, survey.AnswerErrors{{QuestionID: qid, Reason: "an answer is required", Err: survey.ErrMissingRequiredAnswer}}
		},
	}})

	rec := do(t, h, http.MethodPost, "/surveys/"+sv.ID.String()+"/submissions", `{"answers":{}}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	resp := decodeError(t, rec)
	assert.Equal(t, "missing_required_answer", resp.Error)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, qid, resp.Answers[0].QuestionID)
}

func TestRouterBuildsWithPartialServices(t *testing.T) {
	var h http.Handler
	require.NotPanics(t, func() {
		h = newTestRouter(t, RouterConfig{
			Prospects:    stubProspects{},
			Availability: stubAvailability{},
			Surveys:      stubSurveys{},
		})
	})
	require.NotPanics(t, func() {
		newTestRouter(t, RouterConfig{})
	})

	id := uuid.NewString()
	rec := do(t, h, http.MethodGet, "/surveys/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/prospects/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	h := newTestRouter(t, RouterConfig{PgPool: pool, Redis: rdb, Env: "test", Version: "v1"})

	rec := do(t, h, http.MethodGet, "/health/live", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"v1","env":"test"}`, rec.Body.String())

	pool.ExpectPing()
	rec = do(t, h, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ready ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, "ok", ready.Status)

	pool.ExpectPing().WillReturnError(errors.New("down"))
	rec = do(t, h, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "coach_onboarding_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	h := newTestRouter(t, RouterConfig{Gatherer: reg})
	rec := do(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "coach_onboarding_test_total 1")
}
