package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hackgods/coach-onboarding/internal/accounts"
	"github.com/hackgods/coach-onboarding/internal/availability"
	"github.com/hackgods/coach-onboarding/internal/config"
	"github.com/hackgods/coach-onboarding/internal/metrics"
	redisclient "github.com/hackgods/coach-onboarding/internal/redis"
	"github.com/hackgods/coach-onboarding/internal/validation"
	"github.com/hackgods/coach-onboarding/pkg/logging"
)

var tracer = otel.Tracer("coach-onboarding/pipeline")

var (
	ErrInvalidTransition = errors.New("invalid pipeline transition")
	ErrAlreadyLinked     = errors.New("prospect is already linked to a coach profile")
	ErrProspectBusy      = errors.New("prospect is being updated, please retry")
)

// SlotReserver books orientation slots.
type SlotReserver interface {
	ReserveSlot(ctx context.Context, req availability.ReserveRequest) (*availability.Reservation, error)
	CancelBooking(ctx context.Context, bookingID uuid.UUID) (*availability.Booking, error)
}

// AccountIssuer creates the coach account at the end of the pipeline.
type AccountIssuer interface {
	Issue(ctx context.Context, id accounts.Identity) (*accounts.Credentials, error)
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	slots    SlotReserver
	accounts AccountIssuer
	tokens   TokenGenerator
	validate *validation.Validator
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(l) }
}

func WithTokenGenerator(g TokenGenerator) Option {
	return func(s *Service) { s.tokens = g }
}

func NewService(repo Repository, locker redisclient.Locker, slots SlotReserver, issuer AccountIssuer, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		locker:   locker,
		slots:    slots,
		accounts: issuer,
		tokens:   NewTokenGenerator(cfg.TokenBytes),
		validate: validation.New(),
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type actorKey struct{}

// WithActor records who performs the transitions made with ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor recorded by WithActor, if any.
func ActorFrom(ctx context.Context) *string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return &a
	}
	return nil
}

// transition runs fn against the locked prospect. Callers serialise on a
// per-prospect redis lock first, then on the row lock taken by the repository.
func (s *Service) transition(ctx context.Context, action Action, id uuid.UUID, fn MutateFunc) (*Prospect, error) {
	ctx, span := tracer.Start(ctx, "pipeline."+string(action))
	defer span.End()
	span.SetAttributes(attribute.String("prospect_id", id.String()))

	var updated *Prospect
	err := s.locker.WithLock(ctx, redisclient.ProspectKey(id), func(lockCtx context.Context) error {
		p, err := s.repo.Transition(lockCtx, id, func(txCtx context.Context, p *Prospect) (Change, error) {
			c, err := fn(txCtx, p)
			if err != nil {
				return c, err
			}
			if c.Actor == nil {
				c.Actor = ActorFrom(ctx)
			}
			return c, nil
		})
		if err != nil {
			return err
		}
		updated = p
		return nil
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		err = ErrProspectBusy
	}

	s.metrics.ObserveTransition(string(action), outcome(err))
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("prospect transition failed",
			zap.String("prospect_id", id.String()),
			zap.String("action", string(action)),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("prospect transitioned",
		zap.String("prospect_id", id.String()),
		zap.String("action", string(action)),
		zap.String("status", string(updated.Status)))
	return updated, nil
}

func advance(p *Prospect, action Action) error {
	to, err := Next(action, p.Status)
	if err != nil {
		return err
	}
	p.Status = to
	return nil
}

// byToken resolves an external token to its prospect and runs the transition,
// re-checking the token against the locked row.
func (s *Service) byToken(ctx context.Context, kind TokenKind, token string, action Action, fn func(p *Prospect) error) (*Prospect, error) {
	if token == "" {
		return nil, ErrTokenNotFound
	}
	p, err := s.repo.GetByToken(ctx, kind, token)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, action, p.ID, func(_ context.Context, p *Prospect) (Change, error) {
		if tokenOf(p, kind) != token {
			return Change{}, ErrTokenNotFound
		}
		if err := advance(p, action); err != nil {
			return Change{}, err
		}
		if fn != nil {
			if err := fn(p); err != nil {
				return Change{}, err
			}
		}
		return Change{}, nil
	})
}

func tokenOf(p *Prospect, kind TokenKind) string {
	switch kind {
	case TokenAssessment:
		return p.AssessmentToken
	case TokenBusinessForm:
		if p.BusinessFormToken != nil {
			return *p.BusinessFormToken
		}
	case TokenAcceptance:
		if p.AcceptanceToken != nil {
			return *p.AcceptanceToken
		}
	}
	return ""
}

// NewProspect is the input for CreateProspect.
type NewProspect struct {
	Name         string  `json:"name" validate:"required,max=200"`
	Email        string  `json:"email" validate:"required,email"`
	Phone        *string `json:"phone" validate:"omitempty,max=40"`
	ReferrerName *string `json:"referrer_name" validate:"omitempty,max=200"`
	Notes        *string `json:"notes"`
	// AssessmentCompleted starts the prospect past the external assessment.
	AssessmentCompleted bool `json:"assessment_completed"`
}

func (s *Service) CreateProspect(ctx context.Context, in NewProspect) (*Prospect, error) {
	ctx, span := tracer.Start(ctx, "pipeline.create")
	defer span.End()

	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	token, err := s.tokens.NewToken()
	if err != nil {
		return nil, err
	}

	status := StatusAssessmentPending
	if in.AssessmentCompleted {
		status = StatusAssessmentCompleted
	}

	p, err := s.repo.Create(ctx, Prospect{
		ID:              uuid.New(),
		Name:            in.Name,
		Email:           in.Email,
		Phone:           in.Phone,
		ReferrerName:    in.ReferrerName,
		Status:          status,
		AssessmentToken: token,
		Notes:           in.Notes,
	}, Change{Notes: in.Notes, Actor: ActorFrom(ctx)})
	s.metrics.ObserveTransition("create", outcome(err))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create prospect: %w", err)
	}

	s.logger.Info("prospect created", zap.String("prospect_id", p.ID.String()), zap.String("status", string(p.Status)))
	return p, nil
}

// CompleteAssessment is called by the external assessment form.
func (s *Service) CompleteAssessment(ctx context.Context, token string) (*Prospect, error) {
	return s.byToken(ctx, TokenAssessment, token, ActionCompleteAssessment, nil)
}

type OrientationRequest struct {
	CalendarID uuid.UUID  `json:"calendar_id"`
	SlotID     uuid.UUID  `json:"slot_id"`
	Date       civil.Date `json:"date"`
}

type Orientation struct {
	Prospect    *Prospect            `json:"prospect"`
	Booking     availability.Booking `json:"booking"`
	MeetingLink string               `json:"meeting_link"`
}

// ScheduleOrientation reserves the slot and moves the prospect to
// ORIENTATION_SCHEDULED. The reservation joins the prospect's transaction; if
// the prospect write still fails the booking is cancelled.
func (s *Service) ScheduleOrientation(ctx context.Context, id uuid.UUID, req OrientationRequest) (*Orientation, error) {
	var res *availability.Reservation

	p, err := s.transition(ctx, ActionScheduleOrientation, id, func(txCtx context.Context, p *Prospect) (Change, error) {
		if err := advance(p, ActionScheduleOrientation); err != nil {
			return Change{}, err
		}

		booker := availability.Booker{Name: p.Name, Email: p.Email}
		if p.Phone != nil {
			booker.Phone = *p.Phone
		}
		prospectID := p.ID
		r, err := s.slots.ReserveSlot(txCtx, availability.ReserveRequest{
			CalendarID: req.CalendarID,
			SlotID:     req.SlotID,
			Date:       req.Date,
			Booker:     booker,
			ProspectID: &prospectID,
			Status:     availability.BookingConfirmed,
		})
		if err != nil {
			return Change{}, err
		}
		res = r

		at := r.StartsAt
		p.OrientationScheduledAt = &at
		p.OrientationBookingID = &r.Booking.ID
		return Change{}, nil
	})
	if err != nil {
		if res != nil {
			s.compensate(ctx, res.Booking.ID)
		}
		return nil, err
	}

	return &Orientation{Prospect: p, Booking: res.Booking, MeetingLink: res.MeetingLink}, nil
}

func (s *Service) compensate(ctx context.Context, bookingID uuid.UUID) {
	_, err := s.slots.CancelBooking(context.WithoutCancel(ctx), bookingID)
	if err == nil {
		s.logger.Info("orientation booking cancelled after failed transition", zap.String("booking_id", bookingID.String()))
		return
	}
	if errors.Is(err, availability.ErrBookingNotFound) {
		// rolled back with the prospect transaction
		return
	}
	s.logger.Error("cancel orphaned orientation booking", zap.String("booking_id", bookingID.String()), zap.Error(err))
}

func (s *Service) CompleteOrientation(ctx context.Context, id uuid.UUID, notes *string) (*Prospect, error) {
	return s.transition(ctx, ActionCompleteOrientation, id, func(_ context.Context, p *Prospect) (Change, error) {
		if err := advance(p, ActionCompleteOrientation); err != nil {
			return Change{}, err
		}
		now := s.now().UTC()
		p.OrientationCompletedAt = &now
		p.OrientationNotes = notes
		return Change{Notes: notes}, nil
	})
}

// GenerateBusinessFormToken issues the business form token. Calling it again
// once issued returns the prospect unchanged with the same token.
func (s *Service) GenerateBusinessFormToken(ctx context.Context, id uuid.UUID) (*Prospect, error) {
	return s.issueToken(ctx, id, ActionIssueBusinessForm, StatusBusinessFormPending, func(p *Prospect) **string {
		return &p.BusinessFormToken
	})
}

// GenerateAcceptanceToken issues the offer acceptance token, idempotently.
func (s *Service) GenerateAcceptanceToken(ctx context.Context, id uuid.UUID) (*Prospect, error) {
	return s.issueToken(ctx, id, ActionIssueAcceptance, StatusAcceptancePending, func(p *Prospect) **string {
		return &p.AcceptanceToken
	})
}

func (s *Service) issueToken(ctx context.Context, id uuid.UUID, action Action, issued Status, field func(*Prospect) **string) (*Prospect, error) {
	return s.transition(ctx, action, id, func(_ context.Context, p *Prospect) (Change, error) {
		tok := field(p)
		if p.Status == issued && *tok != nil {
			return Change{Unchanged: true}, nil
		}
		if err := advance(p, action); err != nil {
			return Change{}, err
		}
		if *tok == nil {
			t, err := s.tokens.NewToken()
			if err != nil {
				return Change{}, err
			}
			*tok = &t
		}
		return Change{}, nil
	})
}

// SubmitBusinessForm is called by the external business form.
func (s *Service) SubmitBusinessForm(ctx context.Context, token string, form BusinessForm) (*Prospect, error) {
	if err := s.validate.Struct(form); err != nil {
		return nil, err
	}
	return s.byToken(ctx, TokenBusinessForm, token, ActionSubmitBusinessForm, func(p *Prospect) error {
		f := form
		p.BusinessForm = &f
		return nil
	})
}

func (s *Service) ScheduleInterview(ctx context.Context, id uuid.UUID, when time.Time, notes *string) (*Prospect, error) {
	if when.IsZero() {
		return nil, validation.NewError("scheduled_at", "this field is required")
	}
	return s.transition(ctx, ActionScheduleInterview, id, func(_ context.Context, p *Prospect) (Change, error) {
		if err := advance(p, ActionScheduleInterview); err != nil {
			return Change{}, err
		}
		at := when.UTC()
		p.InterviewScheduledAt = &at
		if notes != nil {
			p.InterviewNotes = notes
		}
		return Change{Notes: notes}, nil
	})
}

// CompleteInterview records the interview outcome; REJECTED ends the pipeline.
func (s *Service) CompleteInterview(ctx context.Context, id uuid.UUID, result InterviewResult, notes *string) (*Prospect, error) {
	var action Action
	switch result {
	case InterviewApproved:
		action = ActionApprove
	case InterviewRejected:
		action = ActionRejectInterview
	default:
		return nil, validation.NewError("result", "must be one of [APPROVED REJECTED]")
	}

	return s.transition(ctx, action, id, func(_ context.Context, p *Prospect) (Change, error) {
		if err := advance(p, action); err != nil {
			return Change{}, err
		}
		now := s.now().UTC()
		r := result
		p.InterviewCompletedAt = &now
		p.InterviewResult = &r
		if notes != nil {
			p.InterviewNotes = notes
		}
		return Change{Notes: notes}, nil
	})
}

// AcceptOffer is called by the external acceptance form.
func (s *Service) AcceptOffer(ctx context.Context, token string) (*Prospect, error) {
	return s.byToken(ctx, TokenAcceptance, token, ActionAcceptOffer, nil)
}

// RecordPayment is the payment provider callback.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, pay Payment) (*Prospect, error) {
	if err := s.validate.Struct(pay); err != nil {
		return nil, err
	}
	if pay.PaidAt.IsZero() {
		pay.PaidAt = s.now().UTC()
	}
	return s.transition(ctx, ActionRecordPayment, id, func(_ context.Context, p *Prospect) (Change, error) {
		if err := advance(p, ActionRecordPayment); err != nil {
			return Change{}, err
		}
		paid := pay
		p.Payment = &paid
		return Change{}, nil
	})
}

type Account struct {
	Prospect          *Prospect `json:"prospect"`
	UserID            uuid.UUID `json:"user_id"`
	CoachProfileID    uuid.UUID `json:"coach_profile_id"`
	TemporaryPassword string    `json:"temporary_password"`
}

// CreateCoachFromProspect creates the coach account and links it. The
// temporary password is only ever returned here.
func (s *Service) CreateCoachFromProspect(ctx context.Context, id uuid.UUID) (*Account, error) {
	var creds *accounts.Credentials

	p, err := s.transition(ctx, ActionCreateAccount, id, func(txCtx context.Context, p *Prospect) (Change, error) {
		if p.CoachProfileID != nil {
			return Change{}, ErrAlreadyLinked
		}
		if err := advance(p, ActionCreateAccount); err != nil {
			return Change{}, err
		}

		c, err := s.accounts.Issue(txCtx, accounts.Identity{
			ProspectID: p.ID,
			Name:       p.Name,
			Email:      p.Email,
			Phone:      p.Phone,
		})
		if err != nil {
			return Change{}, fmt.Errorf("issue account: %w", err)
		}
		creds = c
		p.CoachProfileID = &c.CoachProfileID
		return Change{}, nil
	})
	if err != nil {
		return nil, err
	}

	return &Account{
		Prospect:          p,
		UserID:            creds.UserID,
		CoachProfileID:    creds.CoachProfileID,
		TemporaryPassword: creds.TemporaryPassword,
	}, nil
}

// Reject ends the pipeline from any non-terminal status.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, notes *string) (*Prospect, error) {
	return s.transition(ctx, ActionReject, id, func(_ context.Context, p *Prospect) (Change, error) {
		if err := advance(p, ActionReject); err != nil {
			return Change{}, err
		}
		return Change{Notes: notes}, nil
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prospect, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Prospect, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, validation.NewError("status", "unknown status")
	}
	return s.repo.List(ctx, f)
}

func (s *Service) History(ctx context.Context, id uuid.UUID) ([]StatusHistory, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, id)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrAlreadyLinked):
		return "already_linked"
	case errors.Is(err, availability.ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrProspectBusy):
		return "busy"
	default:
		return "error"
	}
}
