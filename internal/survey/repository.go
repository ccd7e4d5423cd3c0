package survey

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrSurveyNotFound   = errors.New("survey not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrInvalidReorder   = errors.New("reorder must list every question of the survey exactly once")
)

// SubmitFunc receives how many results the respondent already has for the
// survey and builds the result to store, or aborts with an error.
type SubmitFunc func(prior int) (SubmissionResult, error)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	CreateSurvey(ctx context.Context, s Survey) (*Survey, error)
	GetSurvey(ctx context.Context, id uuid.UUID) (*Survey, error)
	UpdateSurvey(ctx context.Context, s Survey) (*Survey, error)
	ListSurveys(ctx context.Context) ([]Survey, error)

	// AddQuestion appends q after the survey's last question.
	AddQuestion(ctx context.Context, q Question) (*Question, error)
	GetQuestion(ctx context.Context, id uuid.UUID) (*Question, error)
	UpdateQuestion(ctx context.Context, q Question) (*Question, error)
	// DeleteQuestion removes the question and closes the gap in sort order.
	DeleteQuestion(ctx context.Context, id uuid.UUID) error
	ListQuestions(ctx context.Context, surveyID uuid.UUID) ([]Question, error)
	// ReorderQuestions sets sort_order to each id's index in one transaction.
	ReorderQuestions(ctx context.Context, surveyID uuid.UUID, ids []uuid.UUID) ([]Question, error)

	// Submit serialises submissions of one respondent to one survey, counts the
	// earlier results carrying respondentHash and stores what fn returns. An
	// empty hash is never counted.
	Submit(ctx context.Context, surveyID uuid.UUID, respondentHash string, fn SubmitFunc) (*SubmissionResult, error)
	ListResults(ctx context.Context, surveyID uuid.UUID) ([]SubmissionResult, error)
}
