// Package accounts creates login-capable coach accounts for prospects that
// finished the onboarding pipeline.
package accounts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrEmailTaken = errors.New("email already belongs to an account")

const (
	RoleCoach = "COACH"

	passwordLength   = 16
	passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"
)

// Identity is what the issuer needs to know about the new coach.
type Identity struct {
	ProspectID uuid.UUID
	Name       string
	Email      string
	Phone      *string
}

type User struct {
	ID                 uuid.UUID
	Email              string
	Name               string
	Role               string
	PasswordHash       []byte
	MustChangePassword bool
	CreatedAt          time.Time
}

type CoachProfile struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	ProspectID uuid.UUID
	Phone      *string
	CreatedAt  time.Time
}

// Credentials is returned once to the caller. The temporary password is not
// stored anywhere in plaintext.
type Credentials struct {
	UserID            uuid.UUID
	CoachProfileID    uuid.UUID
	TemporaryPassword string
}

// Store persists a user together with its coach profile.
type Store interface {
	CreateCoach(ctx context.Context, u User, p CoachProfile) error
}

type Issuer struct {
	store Store
	cost  int
}

type Option func(*Issuer)

// WithCost sets the bcrypt cost.
func WithCost(cost int) Option {
	return func(i *Issuer) { i.cost = cost }
}

func NewIssuer(store Store, opts ...Option) *Issuer {
	i := &Issuer{store: store, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue creates the user and coach profile and returns a fresh temporary
// password. The account must change it on first login.
func (i *Issuer) Issue(ctx context.Context, id Identity) (*Credentials, error) {
	pwd, err := temporaryPassword()
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), i.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := User{
		ID:                 uuid.New(),
		Email:              id.Email,
		Name:               id.Name,
		Role:               RoleCoach,
		PasswordHash:       hash,
		MustChangePassword: true,
	}
	profile := CoachProfile{
		ID:         uuid.New(),
		UserID:     user.ID,
		ProspectID: id.ProspectID,
		Phone:      id.Phone,
	}

	if err := i.store.CreateCoach(ctx, user, profile); err != nil {
		return nil, err
	}

	return &Credentials{
		UserID:            user.ID,
		CoachProfileID:    profile.ID,
		TemporaryPassword: pwd,
	}, nil
}

func temporaryPassword() (string, error) {
	limit := big.NewInt(int64(len(passwordAlphabet)))
	b := make([]byte, passwordLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		b[i] = passwordAlphabet[n.Int64()]
	}
	return string(b), nil
}
