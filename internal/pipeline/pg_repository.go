package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/coach-onboarding/internal/db"
)

type PgRepository struct {
	pool db.Pool
}

func NewPgRepository(pool db.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const prospectColumns = `id, name, email, phone, referrer_name, status,
	assessment_token, business_form_token, acceptance_token,
	orientation_booking_id, orientation_scheduled_at, orientation_completed_at, orientation_notes,
	interview_scheduled_at, interview_completed_at, interview_notes, interview_result,
	business_form, payment, coach_profile_id, notes, created_at, updated_at`

const historyColumns = `id, prospect_id, from_status, to_status, notes, actor, created_at`

// Helpers

func scanProspect(row pgx.Row) (*Prospect, error) {
	var (
		p               Prospect
		status          string
		interviewResult *string
		form, payment   []byte
	)
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.ReferrerName,
		&status,
		&p.AssessmentToken,
		&p.BusinessFormToken,
		&p.AcceptanceToken,
		&p.OrientationBookingID,
		&p.OrientationScheduledAt,
		&p.OrientationCompletedAt,
		&p.OrientationNotes,
		&p.InterviewScheduledAt,
		&p.InterviewCompletedAt,
		&p.InterviewNotes,
		&interviewResult,
		&form,
		&payment,
		&p.CoachProfileID,
		&p.Notes,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProspectNotFound
		}
		return nil, err
	}

	p.Status = Status(status)
	if interviewResult != nil {
		r := InterviewResult(*interviewResult)
		p.InterviewResult = &r
	}
	if len(form) > 0 {
		p.BusinessForm = &BusinessForm{}
		if err := json.Unmarshal(form, p.BusinessForm); err != nil {
			return nil, fmt.Errorf("decode business form: %w", err)
		}
	}
	if len(payment) > 0 {
		p.Payment = &Payment{}
		if err := json.Unmarshal(payment, p.Payment); err != nil {
			return nil, fmt.Errorf("decode payment: %w", err)
		}
	}
	return &p, nil
}

func scanHistory(row pgx.Row) (*StatusHistory, error) {
	var (
		h    StatusHistory
		from *string
		to   string
	)
	if err := row.Scan(&h.ID, &h.ProspectID, &from, &to, &h.Notes, &h.Actor, &h.CreatedAt); err != nil {
		return nil, err
	}
	if from != nil {
		s := Status(*from)
		h.FromStatus = &s
	}
	h.ToStatus = Status(to)
	return &h, nil
}

func jsonOrNil(v any) ([]byte, error) {
	switch x := v.(type) {
	case *BusinessForm:
		if x == nil {
			return nil, nil
		}
	case *Payment:
		if x == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func resultArg(r *InterviewResult) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}

func statusArg(s *Status) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateToken, pgErr.ConstraintName)
	}
	return err
}

func insertHistory(ctx context.Context, q db.Querier, prospectID uuid.UUID, from *Status, to Status, c Change) error {
	_, err := q.Exec(ctx, `
		INSERT INTO prospect_status_history (id, prospect_id, from_status, to_status, notes, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, clock_timestamp())
	`, uuid.New(), prospectID, statusArg(from), string(to), c.Notes, c.Actor)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

// Interface methods

func (r *PgRepository) Create(ctx context.Context, p Prospect, first Change) (*Prospect, error) {
	var created *Prospect

	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		created, err = scanProspect(tx.QueryRow(ctx, `
			INSERT INTO prospects (id, name, email, phone, referrer_name, status, assessment_token, notes,
			                       created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
			RETURNING `+prospectColumns,
			p.ID, p.Name, p.Email, p.Phone, p.ReferrerName, string(p.Status), p.AssessmentToken, p.Notes))
		if err != nil {
			return fmt.Errorf("insert prospect: %w", mapUniqueViolation(err))
		}
		return insertHistory(ctx, tx, created.ID, nil, created.Status, first)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Prospect, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+prospectColumns+` FROM prospects WHERE id = $1`, id)
	return scanProspect(row)
}

func (r *PgRepository) GetByToken(ctx context.Context, kind TokenKind, token string) (*Prospect, error) {
	var column string
	switch kind {
	case TokenAssessment:
		column = "assessment_token"
	case TokenBusinessForm:
		column = "business_form_token"
	case TokenAcceptance:
		column = "acceptance_token"
	default:
		return nil, fmt.Errorf("unknown token kind %q", kind)
	}

	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+prospectColumns+` FROM prospects WHERE `+column+` = $1`, token)
	p, err := scanProspect(row)
	if errors.Is(err, ErrProspectNotFound) {
		return nil, ErrTokenNotFound
	}
	return p, err
}

func (r *PgRepository) List(ctx context.Context, f ListFilter) ([]Prospect, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+prospectColumns+`
		FROM prospects
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, statusArg(f.Status), limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Prospect
	for rows.Next() {
		p, err := scanProspect(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) History(ctx context.Context, prospectID uuid.UUID) ([]StatusHistory, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+historyColumns+`
		FROM prospect_status_history
		WHERE prospect_id = $1
		ORDER BY created_at, id
	`, prospectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []StatusHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *h)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) Transition(ctx context.Context, id uuid.UUID, fn MutateFunc) (*Prospect, error) {
	var updated *Prospect

	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanProspect(tx.QueryRow(ctx, `
			SELECT `+prospectColumns+` FROM prospects WHERE id = $1 FOR UPDATE
		`, id))
		if err != nil {
			return err
		}

		from := current.Status
		next := *current
		change, err := fn(db.WithTx(ctx, tx), &next)
		if err != nil {
			return err
		}
		if change.Unchanged {
			updated = current
			return nil
		}

		form, err := jsonOrNil(next.BusinessForm)
		if err != nil {
			return err
		}
		payment, err := jsonOrNil(next.Payment)
		if err != nil {
			return err
		}

		updated, err = scanProspect(tx.QueryRow(ctx, `
			UPDATE prospects
			SET status = $2,
			    business_form_token = $3,
			    acceptance_token = $4,
			    orientation_booking_id = $5,
			    orientation_scheduled_at = $6,
			    orientation_completed_at = $7,
			    orientation_notes = $8,
			    interview_scheduled_at = $9,
			    interview_completed_at = $10,
			    interview_notes = $11,
			    interview_result = $12,
			    business_form = $13,
			    payment = $14,
			    coach_profile_id = $15,
			    notes = $16,
			    updated_at = now()
			WHERE id = $1
			RETURNING `+prospectColumns,
			id,
			string(next.Status),
			next.BusinessFormToken,
			next.AcceptanceToken,
			next.OrientationBookingID,
			next.OrientationScheduledAt,
			next.OrientationCompletedAt,
			next.OrientationNotes,
			next.InterviewScheduledAt,
			next.InterviewCompletedAt,
			next.InterviewNotes,
			resultArg(next.InterviewResult),
			form,
			payment,
			next.CoachProfileID,
			next.Notes,
		))
		if err != nil {
			return fmt.Errorf("update prospect: %w", mapUniqueViolation(err))
		}

		return insertHistory(ctx, tx, id, &from, updated.Status, change)
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}
