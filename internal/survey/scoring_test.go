package survey

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func choiceQuestion(t QuestionType, opts ...ChoiceOption) Question {
	return Question{ID: uuid.New(), Type: t, IsRequired: true, Config: ChoiceConfig{Options: opts}}
}

func opt(correct bool) ChoiceOption {
	return ChoiceOption{ID: uuid.New(), Text: "option", IsCorrect: correct}
}

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func intPtr(v int) *int { return &v }

func TestGrade_TwoQuestionQuiz(t *testing.T) {
	a, b := opt(true), opt(false)
	q1 := choiceQuestion(MultipleChoice, a, b)
	x, y, z := opt(true), opt(false), opt(true)
	q2 := choiceQuestion(MultipleSelect, x, y, z)
	questions := []Question{q1, q2}

	// q1 right, q2 picks only one of the two correct options.
	answers, err := validateAnswers(questions, map[uuid.UUID]json.RawMessage{
		q1.ID: rawJSON(t, a.ID.String()),
		q2.ID: rawJSON(t, []string{x.ID.String()}),
	})
	require.NoError(t, err)

	t.Run("pass at 50", func(t *testing.T) {
		s := Survey{Type: TypeQuiz, ScoreMode: ScorePassFail, PassingScore: intPtr(50)}
		got := grade(s, questions, answers)
		require.NotNil(t, got.Percentage)
		assert.Equal(t, 50, *got.Percentage)
		require.NotNil(t, got.Passed)
		assert.True(t, *got.Passed)
		assert.Equal(t, 1, got.Correct)
		assert.Equal(t, 2, got.Scoreable)
	})

	t.Run("fail at 60", func(t *testing.T) {
		s := Survey{Type: TypeQuiz, ScoreMode: ScorePassFail, PassingScore: intPtr(60)}
		got := grade(s, questions, answers)
		require.NotNil(t, got.Passed)
		assert.False(t, *got.Passed)
	})

	t.Run("score only has no verdict", func(t *testing.T) {
		got := grade(Survey{Type: TypeQuiz, ScoreMode: ScoreOnly}, questions, answers)
		require.NotNil(t, got.Percentage)
		assert.Equal(t, 50, *got.Percentage)
		assert.Nil(t, got.Passed)
	})

	t.Run("no scoring", func(t *testing.T) {
		got := grade(Survey{Type: TypeQuiz, ScoreMode: ScoreNone}, questions, answers)
		assert.Nil(t, got.Percentage)
		assert.Nil(t, got.Passed)
	})

	t.Run("plain survey is never scored", func(t *testing.T) {
		got := grade(Survey{Type: TypeSurvey, ScoreMode: ScoreOnly}, questions, answers)
		assert.Nil(t, got.Percentage)
	})
}

func TestGrade_MultiSelectNeedsExactSet(t *testing.T) {
	a, b, c := opt(true), opt(false), opt(true)
	q := choiceQuestion(MultipleSelect, a, b, c)
	s := Survey{Type: TypeQuiz, ScoreMode: ScoreOnly}

	cases := []struct {
		name     string
		selected []uuid.UUID
		want     int
	}{
		{"exact", []uuid.UUID{a.ID, c.ID}, 100},
		{"exact reversed", []uuid.UUID{c.ID, a.ID}, 100},
		{"subset", []uuid.UUID{a.ID}, 0},
		{"superset", []uuid.UUID{a.ID, b.ID, c.ID}, 0},
		{"wrong", []uuid.UUID{b.ID}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := grade(s, []Question{q}, map[uuid.UUID]answer{q.ID: {options: tc.selected}})
			require.NotNil(t, got.Percentage)
			assert.Equal(t, tc.want, *got.Percentage)
		})
	}
}

func TestGrade_NoScoreableQuestions(t *testing.T) {
	text := Question{ID: uuid.New(), Type: TextShort, Config: TextConfig{}}
	noCorrect := choiceQuestion(MultipleChoice, opt(false), opt(false))
	s := Survey{Type: TypeQuiz, ScoreMode: ScorePassFail, PassingScore: intPtr(50)}

	got := grade(s, []Question{text, noCorrect}, map[uuid.UUID]answer{})
	assert.Nil(t, got.Percentage)
	assert.Nil(t, got.Passed)
	assert.Zero(t, got.Scoreable)
}

func TestGrade_UnansweredCountsAsWrong(t *testing.T) {
	a := opt(true)
	q1 := choiceQuestion(MultipleChoice, a, opt(false))
	q2 := choiceQuestion(MultipleChoice, opt(true), opt(false))
	q2.IsRequired = false

	got := grade(Survey{Type: TypeQuiz, ScoreMode: ScoreOnly}, []Question{q1, q2},
		map[uuid.UUID]answer{q1.ID: {options: []uuid.UUID{a.ID}}})
	require.NotNil(t, got.Percentage)
	assert.Equal(t, 50, *got.Percentage)
}

func TestRoundPercent(t *testing.T) {
	cases := []struct {
		correct, total, want int
	}{
		{2, 3, 67},
		{1, 3, 33},
		{1, 8, 13},
		{1, 2, 50},
		{0, 5, 0},
		{7, 7, 100},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, roundPercent(tc.correct, tc.total), "%d/%d", tc.correct, tc.total)
	}
}
