package survey

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hackgods/coach-onboarding/internal/metrics"
	redisclient "github.com/hackgods/coach-onboarding/internal/redis"
	"github.com/hackgods/coach-onboarding/internal/validation"
	"github.com/hackgods/coach-onboarding/pkg/logging"
)

var tracer = otel.Tracer("coach-onboarding/survey")

var (
	ErrRetakeNotAllowed = errors.New("survey does not allow retakes")
	ErrSurveyNotOpen    = errors.New("survey is not open for submissions")
	ErrInvalidStatus    = errors.New("invalid survey status change")
	ErrSubmissionBusy   = errors.New("submission in progress, please retry")
	ErrQuestionMismatch = errors.New("question does not belong to survey")
)

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	validate *validation.Validator
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   *zap.Logger
	hashKey  []byte
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(l) }
}

// WithRespondentKey sets the HMAC key for the respondent hash that enforces
// the retake rule without storing who answered an anonymous survey.
func WithRespondentKey(key []byte) Option {
	return func(s *Service) { s.hashKey = key }
}

func NewService(repo Repository, locker redisclient.Locker, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		locker:   locker,
		validate: validation.New(),
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settings is the authoring input for a survey.
type Settings struct {
	Title        string    `json:"title" validate:"required,max=200"`
	Description  string    `json:"description"`
	Type         Type      `json:"type" validate:"required,oneof=QUIZ SURVEY"`
	ScoreMode    ScoreMode `json:"score_mode" validate:"omitempty,oneof=NO_SCORING SCORE_ONLY PASS_FAIL"`
	PassingScore *int      `json:"passing_score" validate:"omitempty,min=0,max=100"`
	AllowRetake  bool      `json:"allow_retake"`
	ShowResults  bool      `json:"show_results"`
	IsAnonymous  bool      `json:"is_anonymous"`
}

// normalize applies the scoring rules: plain surveys are never scored and
// only PASS_FAIL keeps a passing score, which it requires.
func (in Settings) normalize() (Settings, error) {
	if in.Type == TypeSurvey || in.ScoreMode == "" {
		in.ScoreMode = ScoreNone
	}
	if in.ScoreMode != ScorePassFail {
		in.PassingScore = nil
		return in, nil
	}
	if in.PassingScore == nil {
		return in, validation.NewError("passing_score", "this field is required")
	}
	return in, nil
}

func (s *Service) CreateSurvey(ctx context.Context, in Settings) (*Survey, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	return s.repo.CreateSurvey(ctx, Survey{
		ID:           uuid.New(),
		Title:        in.Title,
		Description:  in.Description,
		Type:         in.Type,
		ScoreMode:    in.ScoreMode,
		PassingScore: in.PassingScore,
		AllowRetake:  in.AllowRetake,
		ShowResults:  in.ShowResults,
		IsAnonymous:  in.IsAnonymous,
		Status:       StatusDraft,
	})
}

func (s *Service) UpdateSurvey(ctx context.Context, id uuid.UUID, in Settings) (*Survey, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	cur, err := s.repo.GetSurvey(ctx, id)
	if err != nil {
		return nil, err
	}
	cur.Title = in.Title
	cur.Description = in.Description
	cur.Type = in.Type
	cur.ScoreMode = in.ScoreMode
	cur.PassingScore = in.PassingScore
	cur.AllowRetake = in.AllowRetake
	cur.ShowResults = in.ShowResults
	cur.IsAnonymous = in.IsAnonymous
	return s.repo.UpdateSurvey(ctx, *cur)
}

func (s *Service) GetSurvey(ctx context.Context, id uuid.UUID) (*Survey, error) {
	return s.repo.GetSurvey(ctx, id)
}

func (s *Service) ListSurveys(ctx context.Context) ([]Survey, error) {
	return s.repo.ListSurveys(ctx)
}

// Publish opens a draft survey with at least one question.
func (s *Service) Publish(ctx context.Context, id uuid.UUID) (*Survey, error) {
	cur, err := s.repo.GetSurvey(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status != StatusDraft {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidStatus, cur.Status, StatusPublished)
	}
	qs, err := s.repo.ListQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, validation.NewError("questions", "a survey needs at least one question")
	}
	cur.Status = StatusPublished
	return s.repo.UpdateSurvey(ctx, *cur)
}

func (s *Service) Close(ctx context.Context, id uuid.UUID) (*Survey, error) {
	cur, err := s.repo.GetSurvey(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status != StatusPublished {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidStatus, cur.Status, StatusClosed)
	}
	cur.Status = StatusClosed
	return s.repo.UpdateSurvey(ctx, *cur)
}

type OptionInput struct {
	ID        *uuid.UUID `json:"id"`
	Text      string     `json:"text" validate:"required"`
	IsCorrect bool       `json:"is_correct"`
}

// QuestionInput is the authoring input for a question. Only the fields of
// the chosen type are read.
type QuestionInput struct {
	Type       QuestionType  `json:"question_type" validate:"required,oneof=MULTIPLE_CHOICE MULTIPLE_SELECT LIKERT_SCALE TEXT_SHORT TEXT_LONG"`
	Text       string        `json:"text" validate:"required"`
	IsRequired bool          `json:"is_required"`
	Options    []OptionInput `json:"options" validate:"dive"`
	Likert     *LikertConfig `json:"likert"`
	MinLength  *int          `json:"min_length" validate:"omitempty,min=0"`
	MaxLength  *int          `json:"max_length" validate:"omitempty,min=1"`
}

func (in QuestionInput) config() (Config, error) {
	switch {
	case in.Type.IsChoice():
		if len(in.Options) < 2 {
			return nil, validation.NewError("options", "choice questions need at least 2 options")
		}
		cfg := ChoiceConfig{Options: make([]ChoiceOption, 0, len(in.Options))}
		seen := make(map[uuid.UUID]bool, len(in.Options))
		correct := 0
		for _, o := range in.Options {
			id := uuid.New()
			if o.ID != nil {
				id = *o.ID
			}
			if seen[id] {
				return nil, validation.NewError("options", "option ids must be unique")
			}
			seen[id] = true
			if o.IsCorrect {
				correct++
			}
			cfg.Options = append(cfg.Options, ChoiceOption{ID: id, Text: o.Text, IsCorrect: o.IsCorrect})
		}
		if in.Type == MultipleChoice && correct > 1 {
			return nil, validation.NewError("options", "a multiple choice question has at most one correct option")
		}
		return cfg, nil

	case in.Type == LikertScale:
		if in.Likert == nil {
			return nil, validation.NewError("likert", "this field is required")
		}
		if in.Likert.MaxValue <= in.Likert.MinValue {
			return nil, validation.NewError("likert", "max_value must be greater than min_value")
		}
		return *in.Likert, nil

	case in.Type.IsText():
		if in.MinLength != nil && in.MaxLength != nil && *in.MinLength > *in.MaxLength {
			return nil, validation.NewError("max_length", "must not be less than min_length")
		}
		return TextConfig{MinLength: in.MinLength, MaxLength: in.MaxLength}, nil
	}
	return nil, validation.NewError("question_type", "unknown question type")
}

func (s *Service) AddQuestion(ctx context.Context, surveyID uuid.UUID, in QuestionInput) (*Question, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	cfg, err := in.config()
	if err != nil {
		return nil, err
	}
	return s.repo.AddQuestion(ctx, Question{
		ID:         uuid.New(),
		SurveyID:   surveyID,
		Type:       in.Type,
		Text:       in.Text,
		IsRequired: in.IsRequired,
		Config:     cfg,
	})
}

func (s *Service) UpdateQuestion(ctx context.Context, surveyID, questionID uuid.UUID, in QuestionInput) (*Question, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	cfg, err := in.config()
	if err != nil {
		return nil, err
	}
	cur, err := s.repo.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if cur.SurveyID != surveyID {
		return nil, ErrQuestionMismatch
	}
	cur.Type = in.Type
	cur.Text = in.Text
	cur.IsRequired = in.IsRequired
	cur.Config = cfg
	return s.repo.UpdateQuestion(ctx, *cur)
}

func (s *Service) DeleteQuestion(ctx context.Context, surveyID, questionID uuid.UUID) error {
	cur, err := s.repo.GetQuestion(ctx, questionID)
	if err != nil {
		return err
	}
	if cur.SurveyID != surveyID {
		return ErrQuestionMismatch
	}
	return s.repo.DeleteQuestion(ctx, questionID)
}

func (s *Service) ListQuestions(ctx context.Context, surveyID uuid.UUID) ([]Question, error) {
	if _, err := s.repo.GetSurvey(ctx, surveyID); err != nil {
		return nil, err
	}
	return s.repo.ListQuestions(ctx, surveyID)
}

// ReorderQuestions sets the display and scoring order to ids, which must list
// every question of the survey exactly once.
func (s *Service) ReorderQuestions(ctx context.Context, surveyID uuid.UUID, ids []uuid.UUID) ([]Question, error) {
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, ErrInvalidReorder
		}
		seen[id] = true
	}
	return s.repo.ReorderQuestions(ctx, surveyID, ids)
}

// Submission is one respondent's raw answers keyed by question id.
type Submission struct {
	RespondentID *uuid.UUID                    `json:"respondent_id"`
	Answers      map[uuid.UUID]json.RawMessage `json:"answers"`
}

// Submit validates, scores and stores a submission. The retake rule is checked
// before anything else so a blocked respondent learns that first.
func (s *Service) Submit(ctx context.Context, surveyID uuid.UUID, sub Submission) (*SubmissionResult, error) {
	ctx, span := tracer.Start(ctx, "survey.submit")
	defer span.End()
	span.SetAttributes(attribute.String("survey_id", surveyID.String()))

	sv, err := s.repo.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}

	res, err := s.submit(ctx, sv, sub)
	s.metrics.ObserveSubmission(string(sv.ScoreMode), submitOutcome(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("survey submitted",
		zap.String("survey_id", surveyID.String()),
		zap.String("submission_id", res.ID.String()))
	return res, nil
}

func (s *Service) submit(ctx context.Context, sv *Survey, sub Submission) (*SubmissionResult, error) {
	if sv.Status != StatusPublished {
		return nil, ErrSurveyNotOpen
	}

	if sub.RespondentID == nil && !sv.AllowRetake {
		return nil, validation.NewError("respondent_id", "this field is required")
	}
	var respondentHash string
	if sub.RespondentID != nil {
		respondentHash = s.hashRespondent(sv.ID, *sub.RespondentID)
	}
	respondent := sub.RespondentID
	if sv.IsAnonymous {
		respondent = nil
	}

	questions, err := s.repo.ListQuestions(ctx, sv.ID)
	if err != nil {
		return nil, err
	}

	store := func(ctx context.Context) (*SubmissionResult, error) {
		return s.repo.Submit(ctx, sv.ID, respondentHash, func(prior int) (SubmissionResult, error) {
			if prior > 0 && !sv.AllowRetake {
				return SubmissionResult{}, ErrRetakeNotAllowed
			}

			parsed, err := validateAnswers(questions, sub.Answers)
			if err != nil {
				return SubmissionResult{}, err
			}

			score := grade(*sv, questions, parsed)
			return SubmissionResult{
				ID:              uuid.New(),
				SurveyID:        sv.ID,
				RespondentID:    respondent,
				RespondentHash:  respondentHash,
				Answers:         answeredOnly(sub.Answers),
				ScorePercentage: score.Percentage,
				Passed:          score.Passed,
				CorrectCount:    score.Correct,
				ScoreableCount:  score.Scoreable,
				SubmittedAt:     s.now().UTC(),
			}, nil
		})
	}

	if respondentHash == "" {
		return store(ctx)
	}

	var res *SubmissionResult
	err = s.locker.WithLock(ctx, redisclient.SubmissionKey(sv.ID, respondentHash), func(lockCtx context.Context) error {
		var err error
		res, err = store(lockCtx)
		return err
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return nil, ErrSubmissionBusy
	}
	return res, err
}

// hashRespondent identifies a respondent within one survey. Anonymous results
// keep only this value, so they can be counted but not traced back.
func (s *Service) hashRespondent(surveyID, respondentID uuid.UUID) string {
	mac := hmac.New(sha256.New, s.hashKey)
	mac.Write(surveyID[:])
	mac.Write(respondentID[:])
	return hex.EncodeToString(mac.Sum(nil))
}

func answeredOnly(raw map[uuid.UUID]json.RawMessage) map[uuid.UUID]json.RawMessage {
	out := make(map[uuid.UUID]json.RawMessage, len(raw))
	for id, v := range raw {
		if !isBlank(v) {
			out[id] = v
		}
	}
	return out
}

func (s *Service) ListResults(ctx context.Context, surveyID uuid.UUID) ([]SubmissionResult, error) {
	if _, err := s.repo.GetSurvey(ctx, surveyID); err != nil {
		return nil, err
	}
	return s.repo.ListResults(ctx, surveyID)
}

func submitOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRetakeNotAllowed):
		return "retake_not_allowed"
	case errors.Is(err, ErrMissingRequiredAnswer), errors.Is(err, ErrInvalidAnswerFormat):
		return "invalid_answers"
	case errors.Is(err, ErrSurveyNotOpen):
		return "not_open"
	default:
		return "error"
	}
}
