package pipeline

import (
	"context"
	"testing"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestPgRepositoryGetByTokenMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)

	mock.ExpectQuery("FROM prospects WHERE acceptance_token").
		WithArgs("tok").
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetByToken(context.Background(), TokenAcceptance, "tok")
	require.ErrorIs(t, err, ErrTokenNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryTransitionMissingProspectRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM prospects WHERE id = \\$1 FOR UPDATE").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	called := false
	_, err = repo.Transition(context.Background(), id, func(context.Context, *Prospect) (Change, error) {
		called = true
		return Change{}, nil
	})
	require.ErrorIs(t, err, ErrProspectNotFound)
	require.False(t, called)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryHistoryRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	prospectID := uuid.New()
	from := string(StatusAssessmentPending)

	mock.ExpectQuery("FROM prospect_status_history").
		WithArgs(prospectID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "prospect_id", "from_status", "to_status", "notes", "actor", "created_at"}).
			AddRow(uuid.New(), prospectID, nil, string(StatusAssessmentPending), nil, nil, testNow).
			AddRow(uuid.New(), prospectID, &from, string(StatusAssessmentCompleted), nil, nil, testNow))

	got, err := repo.History(context.Background(), prospectID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Nil(t, got[0].FromStatus)
	require.NotNil(t, got[1].FromStatus)
	require.Equal(t, StatusAssessmentPending, *got[1].FromStatus)
	require.Equal(t, StatusAssessmentCompleted, got[1].ToStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}
