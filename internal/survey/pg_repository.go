package survey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/coach-onboarding/internal/db"
)

type PgRepository struct {
	pool db.Pool
}

func NewPgRepository(pool db.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const (
	surveyColumns   = `id, title, description, type, score_mode, passing_score, allow_retake, show_results, is_anonymous, status, created_at, updated_at`
	questionColumns = `id, survey_id, question_type, text, is_required, sort_order, config, created_at, updated_at`
	resultColumns   = `id, survey_id, respondent_id, answers, score_percentage, passed, correct_count, scoreable_count, submitted_at`
)

// Helpers

func scanSurvey(row pgx.Row) (*Survey, error) {
	var (
		s                      Survey
		typ, scoreMode, status string
	)
	err := row.Scan(&s.ID, &s.Title, &s.Description, &typ, &scoreMode, &s.PassingScore,
		&s.AllowRetake, &s.ShowResults, &s.IsAnonymous, &status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSurveyNotFound
		}
		return nil, err
	}
	s.Type = Type(typ)
	s.ScoreMode = ScoreMode(scoreMode)
	s.Status = Status(status)
	return &s, nil
}

func scanQuestion(row pgx.Row) (*Question, error) {
	var (
		q   Question
		typ string
		cfg []byte
	)
	err := row.Scan(&q.ID, &q.SurveyID, &typ, &q.Text, &q.IsRequired, &q.SortOrder, &cfg, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}
	q.Type = QuestionType(typ)
	q.Config, err = DecodeConfig(q.Type, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode question config: %w", err)
	}
	return &q, nil
}

func scanResult(row pgx.Row) (*SubmissionResult, error) {
	var (
		r       SubmissionResult
		answers []byte
	)
	err := row.Scan(&r.ID, &r.SurveyID, &r.RespondentID, &answers, &r.ScorePercentage, &r.Passed,
		&r.CorrectCount, &r.ScoreableCount, &r.SubmittedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &r.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	return &r, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var result []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func lockSurvey(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var locked uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM surveys WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSurveyNotFound
	}
	return err
}

// Interface methods

func (r *PgRepository) CreateSurvey(ctx context.Context, s Survey) (*Survey, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO surveys (id, title, description, type, score_mode, passing_score, allow_retake,
		                     show_results, is_anonymous, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+surveyColumns,
		s.ID, s.Title, s.Description, string(s.Type), string(s.ScoreMode), s.PassingScore,
		s.AllowRetake, s.ShowResults, s.IsAnonymous, string(s.Status))
	created, err := scanSurvey(row)
	if err != nil {
		return nil, fmt.Errorf("insert survey: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetSurvey(ctx context.Context, id uuid.UUID) (*Survey, error) {
	return scanSurvey(r.pool.QueryRow(ctx, `SELECT `+surveyColumns+` FROM surveys WHERE id = $1`, id))
}

func (r *PgRepository) UpdateSurvey(ctx context.Context, s Survey) (*Survey, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE surveys
		SET title = $2,
		    description = $3,
		    type = $4,
		    score_mode = $5,
		    passing_score = $6,
		    allow_retake = $7,
		    show_results = $8,
		    is_anonymous = $9,
		    status = $10,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+surveyColumns,
		s.ID, s.Title, s.Description, string(s.Type), string(s.ScoreMode), s.PassingScore,
		s.AllowRetake, s.ShowResults, s.IsAnonymous, string(s.Status))
	return scanSurvey(row)
}

func (r *PgRepository) ListSurveys(ctx context.Context) ([]Survey, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+surveyColumns+` FROM surveys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSurvey)
}

func (r *PgRepository) AddQuestion(ctx context.Context, q Question) (*Question, error) {
	cfg, err := json.Marshal(q.Config)
	if err != nil {
		return nil, fmt.Errorf("encode question config: %w", err)
	}

	var created *Question
	err = db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockSurvey(ctx, tx, q.SurveyID); err != nil {
			return err
		}
		created, err = scanQuestion(tx.QueryRow(ctx, `
			INSERT INTO survey_questions (id, survey_id, question_type, text, is_required, sort_order, config,
			                              created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5,
			        (SELECT COALESCE(MAX(sort_order) + 1, 0) FROM survey_questions WHERE survey_id = $2),
			        $6, now(), now())
			RETURNING `+questionColumns,
			q.ID, q.SurveyID, string(q.Type), q.Text, q.IsRequired, cfg))
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) GetQuestion(ctx context.Context, id uuid.UUID) (*Question, error) {
	return scanQuestion(r.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM survey_questions WHERE id = $1`, id))
}

func (r *PgRepository) UpdateQuestion(ctx context.Context, q Question) (*Question, error) {
	cfg, err := json.Marshal(q.Config)
	if err != nil {
		return nil, fmt.Errorf("encode question config: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE survey_questions
		SET question_type = $2,
		    text = $3,
		    is_required = $4,
		    config = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+questionColumns,
		q.ID, string(q.Type), q.Text, q.IsRequired, cfg)
	return scanQuestion(row)
}

func (r *PgRepository) DeleteQuestion(ctx context.Context, id uuid.UUID) error {
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		var surveyID uuid.UUID
		err := tx.QueryRow(ctx, `DELETE FROM survey_questions WHERE id = $1 RETURNING survey_id`, id).Scan(&surveyID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrQuestionNotFound
			}
			return fmt.Errorf("delete question: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE survey_questions q
			SET sort_order = ranked.pos - 1
			FROM (
				SELECT id, row_number() OVER (ORDER BY sort_order) AS pos
				FROM survey_questions
				WHERE survey_id = $1
			) ranked
			WHERE q.id = ranked.id AND q.sort_order <> ranked.pos - 1
		`, surveyID)
		if err != nil {
			return fmt.Errorf("compact sort order: %w", err)
		}
		return nil
	})
}

func (r *PgRepository) ListQuestions(ctx context.Context, surveyID uuid.UUID) ([]Question, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+questionColumns+`
		FROM survey_questions
		WHERE survey_id = $1
		ORDER BY sort_order
	`, surveyID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanQuestion)
}

func (r *PgRepository) ReorderQuestions(ctx context.Context, surveyID uuid.UUID, ids []uuid.UUID) ([]Question, error) {
	var reordered []Question

	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockSurvey(ctx, tx, surveyID); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `SELECT id FROM survey_questions WHERE survey_id = $1`, surveyID)
		if err != nil {
			return err
		}
		existing, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return err
		}
		if !isPermutation(existing, ids) {
			return ErrInvalidReorder
		}

		order := make([]string, len(ids))
		for i, id := range ids {
			order[i] = id.String()
		}

		// (survey_id, sort_order) is unique DEFERRABLE INITIALLY DEFERRED, so the
		// rewrite is checked once at commit.
		_, err = tx.Exec(ctx, `
			UPDATE survey_questions q
			SET sort_order = o.pos - 1,
			    updated_at = now()
			FROM unnest($2::uuid[]) WITH ORDINALITY AS o(id, pos)
			WHERE q.id = o.id AND q.survey_id = $1
		`, surveyID, order)
		if err != nil {
			return fmt.Errorf("reorder questions: %w", err)
		}

		rows, err = tx.Query(ctx, `
			SELECT `+questionColumns+`
			FROM survey_questions
			WHERE survey_id = $1
			ORDER BY sort_order
		`, surveyID)
		if err != nil {
			return err
		}
		reordered, err = collect(rows, scanQuestion)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reordered, nil
}

func isPermutation(existing, ids []uuid.UUID) bool {
	if len(existing) != len(ids) {
		return false
	}
	want := make(map[uuid.UUID]bool, len(existing))
	for _, id := range existing {
		want[id] = true
	}
	for _, id := range ids {
		if !want[id] {
			return false
		}
		delete(want, id)
	}
	return len(want) == 0
}

func (r *PgRepository) Submit(ctx context.Context, surveyID uuid.UUID, respondentHash string, fn SubmitFunc) (*SubmissionResult, error) {
	var stored *SubmissionResult

	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		prior := 0
		if respondentHash != "" {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
				surveyID.String()+":"+respondentHash); err != nil {
				return fmt.Errorf("lock respondent: %w", err)
			}
			if err := tx.QueryRow(ctx, `
				SELECT COUNT(*) FROM survey_submissions WHERE survey_id = $1 AND respondent_hash = $2
			`, surveyID, respondentHash).Scan(&prior); err != nil {
				return fmt.Errorf("count submissions: %w", err)
			}
		}

		res, err := fn(prior)
		if err != nil {
			return err
		}

		answers, err := json.Marshal(res.Answers)
		if err != nil {
			return fmt.Errorf("encode answers: %w", err)
		}

		stored, err = scanResult(tx.QueryRow(ctx, `
			INSERT INTO survey_submissions (id, survey_id, respondent_id, respondent_hash, answers,
			                                score_percentage, passed, correct_count, scoreable_count, submitted_at)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, now())
			RETURNING `+resultColumns,
			res.ID, res.SurveyID, res.RespondentID, res.RespondentHash, answers, res.ScorePercentage, res.Passed,
			res.CorrectCount, res.ScoreableCount))
		if err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *PgRepository) ListResults(ctx context.Context, surveyID uuid.UUID) ([]SubmissionResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+resultColumns+`
		FROM survey_submissions
		WHERE survey_id = $1
		ORDER BY submitted_at
	`, surveyID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanResult)
}
