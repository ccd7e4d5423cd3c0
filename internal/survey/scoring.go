package survey

import "github.com/google/uuid"

// Score is the outcome of grading one submission.
type Score struct {
	Percentage *int
	Passed     *bool
	Correct    int
	Scoreable  int
}

// isScoreable reports whether q contributes to a quiz score: a choice question
// with at least one option flagged correct.
func isScoreable(q Question) (map[uuid.UUID]bool, bool) {
	cfg, ok := q.Choice()
	if !ok {
		return nil, false
	}
	correct := cfg.CorrectSet()
	return correct, len(correct) > 0
}

// grade scores validated answers according to the survey's score mode.
// Unanswered scoreable questions count as incorrect.
func grade(s Survey, questions []Question, answers map[uuid.UUID]answer) Score {
	if s.Type != TypeQuiz || s.ScoreMode == ScoreNone || s.ScoreMode == "" {
		return Score{}
	}

	var out Score
	for _, q := range questions {
		correct, ok := isScoreable(q)
		if !ok {
			continue
		}
		out.Scoreable++
		if a, answered := answers[q.ID]; answered && matches(q.Type, correct, a.options) {
			out.Correct++
		}
	}

	if out.Scoreable == 0 {
		return out
	}

	pct := roundPercent(out.Correct, out.Scoreable)
	out.Percentage = &pct

	if s.ScoreMode == ScorePassFail && s.PassingScore != nil {
		passed := pct >= *s.PassingScore
		out.Passed = &passed
	}
	return out
}

// matches: single choice is correct iff the option is flagged correct; multi
// select iff the selection equals the correct set exactly.
func matches(t QuestionType, correct map[uuid.UUID]bool, selected []uuid.UUID) bool {
	switch t {
	case MultipleChoice:
		return len(selected) == 1 && correct[selected[0]]
	case MultipleSelect:
		if len(selected) != len(correct) {
			return false
		}
		for _, id := range selected {
			if !correct[id] {
				return false
			}
		}
		return true
	}
	return false
}

// roundPercent is 100*correct/total rounded half up.
func roundPercent(correct, total int) int {
	return (200*correct + total) / (2 * total)
}
