package survey

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	ErrMissingRequiredAnswer = errors.New("missing required answer")
	ErrInvalidAnswerFormat   = errors.New("invalid answer format")
)

// AnswerError is the failure for one question.
type AnswerError struct {
	QuestionID uuid.UUID `json:"question_id"`
	Reason     string    `json:"reason"`
	Err        error     `json:"-"`
}

func (e AnswerError) Error() string {
	return fmt.Sprintf("question %s: %s", e.QuestionID, e.Reason)
}

func (e AnswerError) Unwrap() error { return e.Err }

// AnswerErrors collects every failing question of one submission. errors.Is
// matches ErrMissingRequiredAnswer and ErrInvalidAnswerFormat through it.
type AnswerErrors []AnswerError

func (e AnswerErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, a := range e {
		parts = append(parts, a.Error())
	}
	return "invalid answers: " + strings.Join(parts, "; ")
}

func (e AnswerErrors) Unwrap() []error {
	out := make([]error, 0, len(e))
	for _, a := range e {
		out = append(out, a)
	}
	return out
}

// answer is a validated answer in typed form.
type answer struct {
	options []uuid.UUID
	value   int
	text    string
}

// validateAnswers checks every answer against its question and returns the
// parsed answers keyed by question id. Unanswered optional questions are absent.
func validateAnswers(questions []Question, raw map[uuid.UUID]json.RawMessage) (map[uuid.UUID]answer, error) {
	var errs AnswerErrors
	parsed := make(map[uuid.UUID]answer, len(raw))

	known := make(map[uuid.UUID]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true

		a, present, err := parseAnswer(q, raw[q.ID])
		switch {
		case err != nil:
			errs = append(errs, AnswerError{QuestionID: q.ID, Reason: err.Error(), Err: ErrInvalidAnswerFormat})
		case !present && q.IsRequired:
			errs = append(errs, AnswerError{QuestionID: q.ID, Reason: "an answer is required", Err: ErrMissingRequiredAnswer})
		case present:
			parsed[q.ID] = a
		}
	}

	for id := range raw {
		if !known[id] {
			errs = append(errs, AnswerError{QuestionID: id, Reason: "not a question of this survey", Err: ErrInvalidAnswerFormat})
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return parsed, nil
}

func isBlank(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func parseAnswer(q Question, raw json.RawMessage) (answer, bool, error) {
	if isBlank(raw) {
		return answer{}, false, nil
	}

	switch q.Type {
	case MultipleChoice:
		cfg, _ := q.Choice()
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return answer{}, true, errors.New("expected one option id")
		}
		if strings.TrimSpace(s) == "" {
			return answer{}, false, nil
		}
		id, err := uuid.Parse(s)
		if err != nil || !cfg.has(id) {
			return answer{}, true, fmt.Errorf("unknown option %q", s)
		}
		return answer{options: []uuid.UUID{id}}, true, nil

	case MultipleSelect:
		cfg, _ := q.Choice()
		var ids []string
		if err := json.Unmarshal(raw, &ids); err != nil {
			return answer{}, true, errors.New("expected a list of option ids")
		}
		if len(ids) == 0 {
			return answer{}, false, nil
		}
		seen := make(map[uuid.UUID]bool, len(ids))
		out := make([]uuid.UUID, 0, len(ids))
		for _, s := range ids {
			id, err := uuid.Parse(s)
			if err != nil || !cfg.has(id) {
				return answer{}, true, fmt.Errorf("unknown option %q", s)
			}
			if seen[id] {
				return answer{}, true, fmt.Errorf("option %q selected twice", s)
			}
			seen[id] = true
			out = append(out, id)
		}
		return answer{options: out}, true, nil

	case LikertScale:
		cfg, _ := q.Config.(LikertConfig)
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var decoded any
		if err := dec.Decode(&decoded); err != nil {
			return answer{}, true, errors.New("expected an integer")
		}
		n, ok := decoded.(json.Number)
		if !ok {
			return answer{}, true, errors.New("expected an integer")
		}
		v, err := n.Int64()
		if err != nil {
			return answer{}, true, errors.New("expected an integer")
		}
		if v < int64(cfg.MinValue) || v > int64(cfg.MaxValue) {
			return answer{}, true, fmt.Errorf("must be between %d and %d", cfg.MinValue, cfg.MaxValue)
		}
		return answer{value: int(v)}, true, nil

	case TextShort, TextLong:
		cfg, _ := q.Config.(TextConfig)
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return answer{}, true, errors.New("expected text")
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return answer{}, false, nil
		}
		n := utf8.RuneCountInString(s)
		if cfg.MinLength != nil && n < *cfg.MinLength {
			return answer{}, true, fmt.Errorf("must be at least %d characters", *cfg.MinLength)
		}
		if cfg.MaxLength != nil && n > *cfg.MaxLength {
			return answer{}, true, fmt.Errorf("must be at most %d characters", *cfg.MaxLength)
		}
		return answer{text: s}, true, nil
	}

	return answer{}, true, fmt.Errorf("unsupported question type %q", q.Type)
}
