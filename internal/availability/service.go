package availability

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

	"github.com/hackgods/coach-onboarding/internal/config"
	"github.com/hackgods/coach-onboarding/internal/metrics"
	redisclient "github.com/hackgods/coach-onboarding/internal/redis"
	"github.com/hackgods/coach-onboarding/internal/validation"
	"github.com/hackgods/coach-onboarding/pkg/logging"
)

var tracer = otel.Tracer("coach-onboarding/availability")

var (
	ErrSlotUnavailable      = errors.New("slot has no remaining capacity for that date")
	ErrSlotBusy             = errors.New("slot is being booked, please retry")
	ErrInvalidBookingStatus = errors.New("invalid booking status transition")
	ErrCalendarMismatch     = errors.New("slot does not belong to calendar")
)

type Service struct {
	repo      Repository
	locker    redisclient.Locker
	validate  *validation.Validator
	now       func() time.Time
	fallback  *time.Location
	lookahead int
	holdTTL   time.Duration
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(l) }
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, opts ...Option) (*Service, error) {
	loc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("load default timezone: %w", err)
	}
	s := &Service{
		repo:      repo,
		locker:    locker,
		validate:  validation.New(),
		now:       time.Now,
		fallback:  loc,
		lookahead: clampLookahead(cfg.LookaheadDays, 30),
		holdTTL:   cfg.PendingHoldTTL,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewCalendar is the input for CreateCalendar.
type NewCalendar struct {
	Name        string `json:"name" validate:"required"`
	MeetingLink string `json:"meeting_link" validate:"omitempty,url"`
	Timezone    string `json:"timezone" validate:"omitempty,timezone"`
}

func (s *Service) CreateCalendar(ctx context.Context, in NewCalendar) (*Calendar, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	return s.repo.CreateCalendar(ctx, Calendar{
		ID:          uuid.New(),
		Name:        in.Name,
		MeetingLink: in.MeetingLink,
		Timezone:    in.Timezone,
		IsActive:    true,
	})
}

// NewSlot is the input for CreateSlot. SpecificDate turns the slot into a one-off.
type NewSlot struct {
	DayOfWeek    int         `json:"day_of_week" validate:"min=0,max=6"`
	StartTime    string      `json:"start_time" validate:"required"`
	EndTime      string      `json:"end_time" validate:"required"`
	MaxBookings  int         `json:"max_bookings" validate:"min=1"`
	SpecificDate *civil.Date `json:"specific_date"`
	Timezone     string      `json:"timezone" validate:"omitempty,timezone"`
}

func (s *Service) CreateSlot(ctx context.Context, calendarID uuid.UUID, in NewSlot) (*CalendarSlot, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	start, err := ParseTimeOfDay(in.StartTime)
	if err != nil {
		return nil, validation.NewError("start_time", err.Error())
	}
	end, err := ParseTimeOfDay(in.EndTime)
	if err != nil {
		return nil, validation.NewError("end_time", err.Error())
	}
	if !start.Before(end) {
		return nil, validation.NewError("end_time", "must be after start_time")
	}

	day := time.Weekday(in.DayOfWeek)
	if in.SpecificDate != nil {
		if !in.SpecificDate.IsValid() {
			return nil, validation.NewError("specific_date", "must be a valid date")
		}
		day = in.SpecificDate.Weekday()
	}

	if _, err := s.repo.GetCalendar(ctx, calendarID); err != nil {
		return nil, err
	}

	return s.repo.CreateSlot(ctx, CalendarSlot{
		ID:           uuid.New(),
		CalendarID:   calendarID,
		DayOfWeek:    day,
		StartTime:    start,
		EndTime:      end,
		MaxBookings:  in.MaxBookings,
		IsActive:     true,
		SpecificDate: in.SpecificDate,
		Timezone:     in.Timezone,
	})
}

func (s *Service) DeactivateSlot(ctx context.Context, slotID uuid.UUID) (*CalendarSlot, error) {
	return s.repo.SetSlotActive(ctx, slotID, false)
}

// ListAvailableSlots projects the calendar's active slots over the lookahead
// window and returns every occurrence that still has capacity.
func (s *Service) ListAvailableSlots(ctx context.Context, calendarID uuid.UUID, lookaheadDays int) (*Availability, error) {
	ctx, span := tracer.Start(ctx, "availability.list")
	defer span.End()
	span.SetAttributes(attribute.String("calendar_id", calendarID.String()))

	cal, err := s.repo.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, fmt.Errorf("load calendar: %w", err)
	}

	slots, err := s.repo.ListSlots(ctx, calendarID)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}

	days := clampLookahead(lookaheadDays, s.lookahead)
	now := s.now()

	// Zones can put "today" a day either side of UTC.
	utcToday := civil.DateOf(now.UTC())
	booked, err := s.repo.CountActiveBookings(ctx, calendarID, utcToday.AddDays(-1), utcToday.AddDays(days+1))
	if err != nil {
		return nil, fmt.Errorf("count bookings: %w", err)
	}

	occurrences := []Occurrence{}
	if cal.IsActive {
		occurrences, err = project(*cal, slots, booked, now, days, s.fallback)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if occurrences == nil {
			occurrences = []Occurrence{}
		}
	}

	return &Availability{
		CalendarID:  cal.ID,
		MeetingLink: cal.MeetingLink,
		Occurrences: occurrences,
	}, nil
}

// ReserveRequest identifies one occurrence and who is booking it.
type ReserveRequest struct {
	CalendarID uuid.UUID
	SlotID     uuid.UUID
	Date       civil.Date
	Booker     Booker
	ProspectID *uuid.UUID
	// Status defaults to CONFIRMED; only PENDING and CONFIRMED are accepted.
	Status BookingStatus
}

// ReserveSlot books one seat of an occurrence. Capacity is re-checked inside the
// reservation transaction, so the loser of a race for the last seat gets
// ErrSlotUnavailable.
func (s *Service) ReserveSlot(ctx context.Context, req ReserveRequest) (*Reservation, error) {
	ctx, span := tracer.Start(ctx, "availability.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("calendar_id", req.CalendarID.String()),
		attribute.String("slot_id", req.SlotID.String()),
		attribute.String("date", req.Date.String()),
	)

	res, err := s.reserve(ctx, req)
	s.metrics.ObserveReservation(outcome(err))
	if err != nil {
		span.RecordError(err)
		if !errors.Is(err, ErrSlotUnavailable) {
			s.logger.Warn("slot reservation failed",
				zap.String("slot_id", req.SlotID.String()),
				zap.String("date", req.Date.String()),
				zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("slot reserved",
		zap.String("booking_id", res.Booking.ID.String()),
		zap.String("slot_id", req.SlotID.String()),
		zap.String("date", req.Date.String()))
	return res, nil
}

func (s *Service) reserve(ctx context.Context, req ReserveRequest) (*Reservation, error) {
	if err := s.validate.Struct(req.Booker); err != nil {
		return nil, err
	}
	if !req.Date.IsValid() {
		return nil, validation.NewError("date", "must be a valid date")
	}
	status := req.Status
	if status == "" {
		status = BookingConfirmed
	}
	if status != BookingConfirmed && status != BookingPending {
		return nil, validation.NewError("status", "must be PENDING or CONFIRMED")
	}

	var (
		booking          *Booking
		meetingLink      string
		startsAt, endsAt time.Time
	)

	err := s.locker.WithLock(ctx, redisclient.SlotKey(req.SlotID, req.Date.String()), func(lockCtx context.Context) error {
		b, err := s.repo.Reserve(lockCtx, req.SlotID, req.Date, func(st ReserveState) (Booking, error) {
			if st.Slot.CalendarID != req.CalendarID {
				return Booking{}, ErrCalendarMismatch
			}
			if !st.Calendar.IsActive || !appliesOn(st.Slot, req.Date, st.Overridden) {
				return Booking{}, ErrSlotUnavailable
			}
			loc, err := resolveLocation(st.Slot, st.Calendar, s.fallback)
			if err != nil {
				return Booking{}, err
			}
			start := st.Slot.StartTime.On(req.Date, loc)
			if !start.After(s.now()) {
				return Booking{}, ErrSlotUnavailable
			}
			if st.Active >= st.Slot.MaxBookings {
				return Booking{}, ErrSlotUnavailable
			}

			meetingLink = st.Calendar.MeetingLink
			startsAt, endsAt = start, st.Slot.EndTime.On(req.Date, loc)
			return Booking{
				ID:          uuid.New(),
				CalendarID:  st.Slot.CalendarID,
				SlotID:      st.Slot.ID,
				BookingDate: req.Date,
				StartTime:   st.Slot.StartTime,
				EndTime:     st.Slot.EndTime,
				Status:      status,
				Booker:      req.Booker,
				ProspectID:  req.ProspectID,
			}, nil
		})
		if err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrSlotNotFound):
			return nil, fmt.Errorf("%w: %w", ErrSlotUnavailable, err)
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			return nil, ErrSlotBusy
		}
		return nil, err
	}

	return &Reservation{
		Booking:     *booking,
		MeetingLink: meetingLink,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
	}, nil
}

// CancelBooking releases the booking's seat.
func (s *Service) CancelBooking(ctx context.Context, bookingID uuid.UUID) (*Booking, error) {
	return s.UpdateBookingStatus(ctx, bookingID, BookingCancelled)
}

func (s *Service) UpdateBookingStatus(ctx context.Context, bookingID uuid.UUID, to BookingStatus) (*Booking, error) {
	if !to.Valid() {
		return nil, validation.NewError("status", "unknown booking status")
	}
	current, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanMoveTo(to) {
		return nil, ErrInvalidBookingStatus
	}

	updated, err := s.repo.UpdateBookingStatus(ctx, bookingID, current.Status, to)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			// status changed underneath us
			return nil, ErrInvalidBookingStatus
		}
		return nil, fmt.Errorf("update booking status: %w", err)
	}
	return updated, nil
}

// ExpirePendingBookings cancels PENDING bookings left unconfirmed past the
// hold period so their seats become bookable again. A zero hold period
// disables expiry.
func (s *Service) ExpirePendingBookings(ctx context.Context) ([]Booking, error) {
	if s.holdTTL <= 0 {
		return nil, nil
	}
	expired, err := s.repo.ExpirePendingBookings(ctx, s.now().Add(-s.holdTTL))
	if err != nil {
		return nil, fmt.Errorf("expire pending bookings: %w", err)
	}
	for _, b := range expired {
		s.metrics.ObserveReservation("expired")
		s.logger.Info("pending booking expired",
			zap.String("booking_id", b.ID.String()),
			zap.String("slot_id", b.SlotID.String()),
			zap.String("date", b.BookingDate.String()))
	}
	return expired, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrSlotBusy):
		return "busy"
	default:
		return "error"
	}
}
