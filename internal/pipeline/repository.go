package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrProspectNotFound = errors.New("prospect not found")
	ErrTokenNotFound    = errors.New("token not found")
	ErrDuplicateToken   = errors.New("token already in use")
)

type TokenKind string

const (
	TokenAssessment   TokenKind = "assessment"
	TokenBusinessForm TokenKind = "business_form"
	TokenAcceptance   TokenKind = "acceptance"
)

// Change describes the history row appended for a transition. Unchanged makes
// the transition a no-op: nothing is written and the current prospect is
// returned.
type Change struct {
	Notes     *string
	Actor     *string
	Unchanged bool
}

// MutateFunc receives the freshly locked prospect and mutates it in place.
// Returning an error aborts the transition without writing anything.
type MutateFunc func(ctx context.Context, p *Prospect) (Change, error)

type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// Create inserts p and its first history row (FromStatus nil).
	Create(ctx context.Context, p Prospect, first Change) (*Prospect, error)
	Get(ctx context.Context, id uuid.UUID) (*Prospect, error)
	GetByToken(ctx context.Context, kind TokenKind, token string) (*Prospect, error)
	List(ctx context.Context, f ListFilter) ([]Prospect, error)
	History(ctx context.Context, prospectID uuid.UUID) ([]StatusHistory, error)

	// Transition reads the prospect under a row lock, applies fn, then writes the
	// prospect and exactly one history row in the same transaction.
	Transition(ctx context.Context, id uuid.UUID, fn MutateFunc) (*Prospect, error)
}
