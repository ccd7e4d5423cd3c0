package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/coach-onboarding/internal/db"
)

type PgStore struct {
	pool db.Pool
}

func NewPgStore(pool db.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// CreateCoach inserts both rows in one transaction, joining the caller's
// transaction when ctx carries one.
func (s *PgStore) CreateCoach(ctx context.Context, u User, p CoachProfile) error {
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, email, name, role, password_hash, must_change_password, created_at)
			VALUES ($1, lower($2), $3, $4, $5, $6, now())
		`, u.ID, u.Email, u.Name, u.Role, u.PasswordHash, u.MustChangePassword)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrEmailTaken
			}
			return fmt.Errorf("insert user: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO coach_profiles (id, user_id, prospect_id, phone, created_at)
			VALUES ($1, $2, $3, $4, now())
		`, p.ID, p.UserID, p.ProspectID, p.Phone)
		if err != nil {
			return fmt.Errorf("insert coach profile: %w", err)
		}
		return nil
	})
}
