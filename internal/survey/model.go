package survey

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeQuiz   Type = "QUIZ"
	TypeSurvey Type = "SURVEY"
)

type ScoreMode string

const (
	ScoreNone     ScoreMode = "NO_SCORING"
	ScoreOnly     ScoreMode = "SCORE_ONLY"
	ScorePassFail ScoreMode = "PASS_FAIL"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPublished Status = "PUBLISHED"
	StatusClosed    Status = "CLOSED"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "MULTIPLE_CHOICE"
	MultipleSelect QuestionType = "MULTIPLE_SELECT"
	LikertScale    QuestionType = "LIKERT_SCALE"
	TextShort      QuestionType = "TEXT_SHORT"
	TextLong       QuestionType = "TEXT_LONG"
)

func (t QuestionType) IsChoice() bool {
	return t == MultipleChoice || t == MultipleSelect
}

func (t QuestionType) IsText() bool {
	return t == TextShort || t == TextLong
}

type Survey struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Type         Type      `json:"type"`
	ScoreMode    ScoreMode `json:"score_mode"`
	PassingScore *int      `json:"passing_score,omitempty"`
	AllowRetake  bool      `json:"allow_retake"`
	ShowResults  bool      `json:"show_results"`
	IsAnonymous  bool      `json:"is_anonymous"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ChoiceOption struct {
	ID        uuid.UUID `json:"id"`
	Text      string    `json:"text"`
	IsCorrect bool      `json:"is_correct"`
}

// Config is the type-specific part of a question: ChoiceConfig,
// LikertConfig or TextConfig.
type Config interface {
	isConfig()
}

type ChoiceConfig struct {
	Options []ChoiceOption `json:"options"`
}

type LikertConfig struct {
	MinValue int    `json:"min_value"`
	MaxValue int    `json:"max_value"`
	MinLabel string `json:"min_label,omitempty"`
	MaxLabel string `json:"max_label,omitempty"`
}

type TextConfig struct {
	MinLength *int `json:"min_length,omitempty"`
	MaxLength *int `json:"max_length,omitempty"`
}

func (ChoiceConfig) isConfig() {}
func (LikertConfig) isConfig() {}
func (TextConfig) isConfig()   {}

// CorrectSet returns the ids of the options flagged correct.
func (c ChoiceConfig) CorrectSet() map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool)
	for _, o := range c.Options {
		if o.IsCorrect {
			out[o.ID] = true
		}
	}
	return out
}

func (c ChoiceConfig) has(id uuid.UUID) bool {
	for _, o := range c.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

type Question struct {
	ID         uuid.UUID    `json:"id"`
	SurveyID   uuid.UUID    `json:"survey_id"`
	Type       QuestionType `json:"question_type"`
	Text       string       `json:"text"`
	IsRequired bool         `json:"is_required"`
	SortOrder  int          `json:"sort_order"`
	Config     Config       `json:"config"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Choice returns the question's options when it is a choice question.
func (q Question) Choice() (ChoiceConfig, bool) {
	c, ok := q.Config.(ChoiceConfig)
	return c, ok && q.Type.IsChoice()
}

func (q *Question) UnmarshalJSON(b []byte) error {
	type plain Question
	var raw struct {
		plain
		Config json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*q = Question(raw.plain)
	cfg, err := DecodeConfig(q.Type, raw.Config)
	if err != nil {
		return err
	}
	q.Config = cfg
	return nil
}

// DecodeConfig decodes the stored config of a question of type t.
func DecodeConfig(t QuestionType, raw []byte) (Config, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}
	switch {
	case t.IsChoice():
		var c ChoiceConfig
		err := json.Unmarshal(raw, &c)
		return c, err
	case t == LikertScale:
		var c LikertConfig
		err := json.Unmarshal(raw, &c)
		return c, err
	case t.IsText():
		var c TextConfig
		err := json.Unmarshal(raw, &c)
		return c, err
	default:
		return nil, fmt.Errorf("unknown question type %q", t)
	}
}

// SubmissionResult is one scored (or unscored) submission.
type SubmissionResult struct {
	ID              uuid.UUID                     `json:"id"`
	SurveyID        uuid.UUID                     `json:"survey_id"`
	RespondentID    *uuid.UUID                    `json:"respondent_id,omitempty"`
	RespondentHash  string                        `json:"-"`
	Answers         map[uuid.UUID]json.RawMessage `json:"answers"`
	ScorePercentage *int                          `json:"score_percentage"`
	Passed          *bool                         `json:"passed"`
	CorrectCount    int                           `json:"correct_count"`
	ScoreableCount  int                           `json:"scoreable_count"`
	SubmittedAt     time.Time                     `json:"submitted_at"`
}

// ForRespondent hides the score when the survey does not show results.
func (r SubmissionResult) ForRespondent(s Survey) SubmissionResult {
	if s.ShowResults {
		return r
	}
	r.ScorePercentage = nil
	r.Passed = nil
	r.CorrectCount = 0
	r.ScoreableCount = 0
	return r
}
